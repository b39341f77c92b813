package config

import "testing"

func TestLoadDefaultsLogLevelToInfo(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoadReadsLogLevelFromEnv(t *testing.T) {
	t.Setenv("SQIGL_LOG_LEVEL", "debug")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadReadsDefaultStatementTimeoutFromEnv(t *testing.T) {
	t.Setenv("SQIGL_DEFAULT_STATEMENT_TIMEOUT_MS", "5000")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultStatementTimeoutMS != 5000 {
		t.Errorf("DefaultStatementTimeoutMS = %d, want 5000", cfg.DefaultStatementTimeoutMS)
	}
}
