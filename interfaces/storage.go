package interfaces

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Object is the result of reading a published path.
type Object struct {
	Body        []byte
	ContentType string
}

var (
	// ErrNotFound is returned when no object (or alias) resolves for a path.
	ErrNotFound = errors.New("object not found")

	// ErrNotDirectory is returned when a path component that must be a directory
	// exists as something else. This is a configuration error and is never retried.
	ErrNotDirectory = errors.New("not a directory")

	// ErrInvalidPath is returned for empty, absolute or root-escaping paths.
	ErrInvalidPath = errors.New("invalid object path")

	// ErrProcessFailure is returned when an external tool invocation fails.
	ErrProcessFailure = errors.New("external process failed")

	// ErrPushFailed is returned when a checkpoint was created locally but could
	// not be propagated to the remote. The local checkpoint is kept.
	ErrPushFailed = errors.New("push to remote failed")

	// ErrMirrorDiverged is returned when the primary of a mirror accepted a
	// write but the secondary did not.
	ErrMirrorDiverged = errors.New("mirror secondary diverged from primary")

	// ErrBackendUnavailable is returned when a remote backend is not accessible.
	ErrBackendUnavailable = errors.New("publisher backend unavailable")

	// ErrInvalidLocationURI is returned when a publisher location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid publisher location URI")
)

// ProcessError carries the argv and the diagnostic output of a failed
// external tool invocation.
type ProcessError struct {
	Args   []string
	Output string
	Err    error
}

func (e *ProcessError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", strings.Join(e.Args, " "), e.Err, out)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

func (e *ProcessError) Is(target error) bool {
	return target == ErrProcessFailure
}

// Publisher publishes a tree of content to a single backend.
//
// Writes are bracketed by Commit/Rollback. Backends with transactional state
// (git) turn a Commit into a checkpoint; other backends treat the boundary as
// a no-op or an audit record.
type Publisher interface {
	// Put stores body at path. An empty contentType is inferred from the path's extension.
	Put(ctx context.Context, path string, body io.Reader, contentType string) error

	// Delete removes the object at path. contentType selects alias resolution
	// and must match the one used at write time.
	Delete(ctx context.Context, path string, contentType string) error

	// Get reads the object at path, trying aliases in order.
	Get(ctx context.Context, path string) (*Object, error)

	// Exists reports whether path (or an alias) resolves. It never fails.
	Exists(ctx context.Context, path string) bool

	// List returns every object path relative to the root, with forward
	// slashes, excluding backend bookkeeping objects.
	List(ctx context.Context) ([]string, error)

	// Rollback discards uncommitted backend-local state.
	Rollback(ctx context.Context) error

	// Commit records a durable checkpoint with message.
	Commit(ctx context.Context, message string) error

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this publisher.
	LocationURI() string
}

// Prober is implemented by publishers backed by a remote service that can
// report whether the service is reachable.
type Prober interface {
	Available(ctx context.Context) bool
}

// PutBytes is a convenience wrapper for publishing an in-memory body.
func PutBytes(ctx context.Context, p Publisher, path string, data []byte, contentType string) error {
	return p.Put(ctx, path, bytes.NewReader(data), contentType)
}

// CleanPath normalizes a caller-supplied object path: NFC, forward slashes,
// no leading slash, no "." or ".." segments. Paths escaping the root are rejected.
func CleanPath(p string) (string, error) {
	p = norm.NFC.String(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes root", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// PublisherFactory creates publishers from location URIs.
type PublisherFactory interface {
	// PublisherForLocation creates a publisher from a location URI.
	// Supports file://, git://, s3://, ipfs://, vault://, http(s)://
	PublisherForLocation(locationURI string) (Publisher, error)

	// CreateMirror pairs two publishers, primary first.
	CreateMirror(primary, secondary Publisher) Publisher
}
