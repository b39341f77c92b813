package validate

import "testing"

func TestFeatureTitleAcceptsAlphanumericAndHyphen(t *testing.T) {
	if err := Struct(FeatureTitle{Title: "ABC-123-ticket"}); err != nil {
		t.Fatalf("expected a valid title to pass, got %v", err)
	}
}

func TestFeatureTitleAcceptsDotSeparatedIdentifiers(t *testing.T) {
	if err := Struct(FeatureTitle{Title: "a.b"}); err != nil {
		t.Fatalf("dot-separated identifiers are valid semver prerelease syntax, got %v", err)
	}
}

func TestFeatureTitleRejectsInvalidCharacters(t *testing.T) {
	if err := Struct(FeatureTitle{Title: "has a space"}); err == nil {
		t.Fatal("expected a title containing a space to be rejected")
	}
}

func TestFeatureTitleRejectsEmpty(t *testing.T) {
	if err := Struct(FeatureTitle{Title: ""}); err == nil {
		t.Fatal("expected an empty title to be rejected")
	}
}
