// Package artifact defines the Artifact/ScriptConsumer pair that every
// buildable and storable thing in sqigl implements: a build's output, a
// saved migration, and a generated delta are all artifacts. An artifact
// does not hold its scripts as an in-memory blob — it streams them, in a
// fixed deterministic order, to whatever ScriptConsumer the caller supplies,
// and the content id it reports is always the SHA-256 of exactly those
// bytes.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/sqigl/sqigl/internal/version"
)

// ContentId is the SHA-256 digest of an artifact's concatenated script
// bytes, used as the key of the artifact row a backend records for every
// applied migration.
type ContentId [32]byte

// String renders the digest as lowercase hex.
func (c ContentId) String() string {
	return hex.EncodeToString(c[:])
}

// MarshalText implements encoding.TextMarshaler.
func (c ContentId) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ContentId) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("content id %q: %w", text, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("content id %q: must be exactly 32 bytes, found %d", text, len(b))
	}
	copy(c[:], b)
	return nil
}

// Artifact represents built code that can be applied to a database, or
// staged for review before being applied.
type Artifact interface {
	// Compatible reports whether this artifact may be applied to a
	// database currently at v.
	Compatible(v *version.Version) bool

	// Version is the version this artifact produces.
	Version() *version.Version

	// Spec reports the compatibility requirement this artifact expects of
	// the database it is applied to, and the version it leaves the
	// database at once applied.
	Spec() (version.Req, *version.Version)

	// Scripts streams the artifact's SQL scripts to consumer, in a fixed
	// order, and returns the SHA-256 content id of their concatenated
	// bytes. Implementations must call consumer.Commit exactly once, with
	// that same id, before returning.
	Scripts(consumer ScriptConsumer) (ContentId, error)
}

// ScriptConsumer receives an artifact's scripts one at a time, in the
// order Scripts decides to stream them.
type ScriptConsumer interface {
	// Accept is called once per script, with its full SQL text.
	Accept(script string) error

	// Commit is called exactly once, after every script has been
	// accepted, with the content id of everything streamed so far.
	Commit(id ContentId) error
}

// Kind identifies the category of error a ScriptConsumer or Artifact.Scripts
// call can fail with.
type Kind int

const (
	// KindIncompatible means the artifact is incompatible with the
	// deployment it was asked to apply to.
	KindIncompatible Kind = iota
	// KindIO wraps an underlying I/O failure.
	KindIO
	// KindEncoding means script bytes were not valid UTF-8.
	KindEncoding
	// KindDatabase wraps an underlying database-driver failure.
	KindDatabase
)

// ProcessingError is returned by Artifact.Scripts and ScriptConsumer
// methods. Err, when non-nil, is the underlying cause and is reachable via
// errors.Unwrap.
type ProcessingError struct {
	Kind Kind
	Err  error
}

func (e *ProcessingError) Error() string {
	switch e.Kind {
	case KindIncompatible:
		return "the artifact is incompatible with this deployment"
	case KindIO:
		return fmt.Sprintf("i/o error: %v", e.Err)
	case KindEncoding:
		return fmt.Sprintf("encoding error: %v", e.Err)
	case KindDatabase:
		return fmt.Sprintf("database error: %v", e.Err)
	default:
		return fmt.Sprintf("unknown error: %v", e.Err)
	}
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Incompatible returns the sentinel error Scripts should return when asked
// to process an artifact against a database it cannot be applied to.
func Incompatible() error {
	return &ProcessingError{Kind: KindIncompatible}
}

// IOError wraps err as an I/O ProcessingError.
func IOError(err error) error {
	return &ProcessingError{Kind: KindIO, Err: err}
}

// EncodingError wraps err as an encoding ProcessingError.
func EncodingError(err error) error {
	return &ProcessingError{Kind: KindEncoding, Err: err}
}

// DatabaseError wraps err as a database ProcessingError.
func DatabaseError(err error) error {
	return &ProcessingError{Kind: KindDatabase, Err: err}
}

// byteSinkConsumer streams accepted scripts straight to an io.Writer,
// ignoring the final content id.
type byteSinkConsumer struct {
	w io.Writer
}

func (c *byteSinkConsumer) Accept(script string) error {
	if _, err := io.WriteString(c.w, script); err != nil {
		return IOError(err)
	}
	return nil
}

func (c *byteSinkConsumer) Commit(ContentId) error { return nil }

// WriteTo streams a's scripts to w and returns their content id.
func WriteTo(a Artifact, w io.Writer) (ContentId, error) {
	return a.Scripts(&byteSinkConsumer{w: w})
}

// ToString renders a's concatenated scripts as a single string.
func ToString(a Artifact) (string, error) {
	var buf countingBuilder
	id, err := WriteTo(a, &buf)
	if err != nil {
		return "", err
	}
	_ = id
	return buf.String(), nil
}

type countingBuilder struct {
	b []byte
}

func (c *countingBuilder) Write(p []byte) (int, error) {
	c.b = append(c.b, p...)
	return len(p), nil
}

func (c *countingBuilder) String() string { return string(c.b) }

// nullConsumer discards every script and only cares about the final
// content id, so it is used whenever a caller wants ContentId without
// materializing any script text.
type nullConsumer struct {
	id ContentId
}

func (c *nullConsumer) Accept(string) error { return nil }

func (c *nullConsumer) Commit(id ContentId) error {
	c.id = id
	return nil
}

// ComputeContentID streams a's scripts through a discarding consumer and
// returns only the resulting content id.
func ComputeContentID(a Artifact) (ContentId, error) {
	c := &nullConsumer{}
	id, err := a.Scripts(c)
	if err != nil {
		return ContentId{}, err
	}
	return id, nil
}

// Hash incrementally computes a ContentId the way Scripts implementations
// should: feed it every script in streaming order, then call Sum.
type Hash struct {
	h io.Writer
	s interface {
		Sum([]byte) []byte
	}
}

// NewHash returns a fresh incremental content-id hash.
func NewHash() *Hash {
	h := sha256.New()
	return &Hash{h: h, s: h}
}

// Write feeds script bytes into the hash. It never fails.
func (h *Hash) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum returns the ContentId of everything written so far.
func (h *Hash) Sum() ContentId {
	var id ContentId
	copy(id[:], h.s.Sum(nil))
	return id
}
