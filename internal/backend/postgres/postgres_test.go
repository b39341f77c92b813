package postgres

import "testing"

func TestFirstNonEmptyPrefersEarliestNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("firstNonEmpty = %q, want %q", got, "b")
	}
	if got := firstNonEmpty("a", "b"); got != "a" {
		t.Errorf("firstNonEmpty = %q, want %q", got, "a")
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty = %q, want empty", got)
	}
}

func TestTimeoutMillisUnsetIsNil(t *testing.T) {
	t.Setenv(StatementTimeoutEnvVar, "")
	ms, err := timeoutMillis(StatementTimeoutEnvVar)
	if err != nil {
		t.Fatal(err)
	}
	if ms != nil {
		t.Errorf("timeoutMillis = %v, want nil", ms)
	}
}

func TestTimeoutMillisConvertsSecondsToMilliseconds(t *testing.T) {
	t.Setenv(StatementTimeoutEnvVar, "1.5")
	ms, err := timeoutMillis(StatementTimeoutEnvVar)
	if err != nil {
		t.Fatal(err)
	}
	if ms == nil || *ms != 1500 {
		t.Errorf("timeoutMillis = %v, want 1500", ms)
	}
}

func TestTimeoutMillisRejectsNegative(t *testing.T) {
	t.Setenv(StatementTimeoutEnvVar, "-1")
	if _, err := timeoutMillis(StatementTimeoutEnvVar); err == nil {
		t.Fatal("expected a negative timeout to be rejected")
	}
}

func TestTimeoutMillisRejectsUnparseable(t *testing.T) {
	t.Setenv(StatementTimeoutEnvVar, "not-a-number")
	if _, err := timeoutMillis(StatementTimeoutEnvVar); err == nil {
		t.Fatal("expected an unparseable timeout to be rejected")
	}
}
