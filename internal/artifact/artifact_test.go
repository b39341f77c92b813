package artifact

import (
	"bytes"
	"testing"

	"github.com/sqigl/sqigl/internal/version"
)

// fakeArtifact streams a fixed list of scripts, in order, computing its
// content id the same way a real backend implementation would.
type fakeArtifact struct {
	scripts []string
	version *version.Version
}

func (f *fakeArtifact) Compatible(v *version.Version) bool { return true }
func (f *fakeArtifact) Version() *version.Version          { return f.version }
func (f *fakeArtifact) Spec() (version.Req, *version.Version) {
	return version.FromEmpty(), f.version
}

func (f *fakeArtifact) Scripts(consumer ScriptConsumer) (ContentId, error) {
	h := NewHash()
	for _, s := range f.scripts {
		if err := consumer.Accept(s); err != nil {
			return ContentId{}, err
		}
		h.Write([]byte(s))
	}
	id := h.Sum()
	if err := consumer.Commit(id); err != nil {
		return ContentId{}, err
	}
	return id, nil
}

func TestContentIdMatchesStreamedBytes(t *testing.T) {
	a := &fakeArtifact{scripts: []string{"create table t();", "alter table t add column x int;"}}

	var buf bytes.Buffer
	id, err := WriteTo(a, &buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	want := NewHash()
	want.Write(buf.Bytes())
	if id != want.Sum() {
		t.Fatalf("content id %s does not match sha256 of streamed bytes", id)
	}
}

func TestComputeContentIDMatchesWriteTo(t *testing.T) {
	a := &fakeArtifact{scripts: []string{"select 1;", "select 2;"}}

	var buf bytes.Buffer
	viaWrite, err := WriteTo(a, &buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	viaCompute, err := ComputeContentID(a)
	if err != nil {
		t.Fatalf("ComputeContentID: %v", err)
	}

	if viaWrite != viaCompute {
		t.Fatalf("content id via WriteTo (%s) != via ComputeContentID (%s)", viaWrite, viaCompute)
	}
}

func TestContentIdIsOrderSensitive(t *testing.T) {
	a := &fakeArtifact{scripts: []string{"a;", "b;"}}
	b := &fakeArtifact{scripts: []string{"b;", "a;"}}

	idA, err := ComputeContentID(a)
	if err != nil {
		t.Fatal(err)
	}
	idB, err := ComputeContentID(b)
	if err != nil {
		t.Fatal(err)
	}
	if idA == idB {
		t.Fatal("different script order must produce different content ids")
	}
}

func TestContentIdTextRoundTrip(t *testing.T) {
	a := &fakeArtifact{scripts: []string{"x;"}}
	id, err := ComputeContentID(a)
	if err != nil {
		t.Fatal(err)
	}

	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var got ContentId
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch: %s != %s", got, id)
	}
}

func TestUnmarshalTextRejectsWrongWidth(t *testing.T) {
	var id ContentId
	if err := id.UnmarshalText([]byte("deadbeef")); err == nil {
		t.Fatal("expected an error for a digest shorter than 32 bytes")
	}
}

func TestToStringMatchesStreamedBytes(t *testing.T) {
	a := &fakeArtifact{scripts: []string{"one;", "two;"}}
	s, err := ToString(a)
	if err != nil {
		t.Fatal(err)
	}
	if s != "one;two;" {
		t.Fatalf("ToString = %q, want %q", s, "one;two;")
	}
}
