package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ruteri/content-publisher/fsutils"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/ruteri/content-publisher/mimeutils"
)

const (
	// DefaultLogName is the commit log object kept at the publisher root.
	DefaultLogName = "log.txt"

	// LogTimeLayout formats commit log timestamps.
	LogTimeLayout = "1/2/2006, 3:04:05 PM"
)

var (
	errIsDir  error = syscall.EISDIR
	errNotDir error = syscall.ENOTDIR
)

// aliasSuffixes are tried in order when resolving a path for reading.
var aliasSuffixes = []string{"", ".html"}

// FileOptions tunes a FilePublisher.
type FileOptions struct {
	// LogName is the commit log path relative to the root. Defaults to DefaultLogName.
	LogName string

	// Exclude lists root-relative paths hidden from List. Directories are
	// excluded together with everything beneath them.
	Exclude []string
}

// FilePublisher implements a publisher using the local file system.
// Commit appends a line to a plain-text log at the root; Rollback is a no-op.
type FilePublisher struct {
	root        string
	logName     string
	exclude     map[string]struct{}
	log         *slog.Logger
	locationURI string
	now         func() time.Time

	// serializes read-modify-write of the commit log
	logMu sync.Mutex
}

// NewFilePublisher creates a file publisher rooted at root, creating the directory if needed.
func NewFilePublisher(root string, opts FileOptions, log *slog.Logger) (*FilePublisher, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := fsutils.MkdirAll(root); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	logName := opts.LogName
	if logName == "" {
		logName = DefaultLogName
	}
	logName, err := interfaces.CleanPath(logName)
	if err != nil {
		return nil, fmt.Errorf("invalid log name: %w", err)
	}

	exclude := map[string]struct{}{logName: {}}
	for _, e := range opts.Exclude {
		cleaned, err := interfaces.CleanPath(e)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude entry: %w", err)
		}
		exclude[cleaned] = struct{}{}
	}

	return &FilePublisher{
		root:        root,
		logName:     logName,
		exclude:     exclude,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", filepath.ToSlash(root)),
		now:         time.Now,
	}, nil
}

// Put writes body to root/path. HTML content is stored under a .html suffix.
func (p *FilePublisher) Put(ctx context.Context, path string, body io.Reader, contentType string) error {
	clean, err := interfaces.CleanPath(path)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = mimeutils.InferType(clean)
	}

	target := p.fullPath(mimeutils.HTMLPath(clean, contentType))
	n, err := fsutils.WriteFile(target, body)
	if err != nil {
		return err
	}

	p.log.Debug("Stored object in file",
		slog.String("path", target),
		slog.String("content_type", contentType),
		slog.Int64("size", n))

	return nil
}

// Delete removes the object at path, applying the same .html aliasing as Put.
// It does not fall back to other aliases.
func (p *FilePublisher) Delete(ctx context.Context, path string, contentType string) error {
	clean, err := interfaces.CleanPath(path)
	if err != nil {
		return err
	}

	target := p.fullPath(mimeutils.HTMLPath(clean, contentType))
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", clean, interfaces.ErrNotFound)
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if err := os.Remove(target); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	p.log.Debug("Deleted object from file", slog.String("path", target))
	return nil
}

// Get reads the first of path, path.html that resolves to a file.
func (p *FilePublisher) Get(ctx context.Context, path string) (*interfaces.Object, error) {
	clean, err := interfaces.CleanPath(path)
	if err != nil {
		return nil, err
	}

	for _, suffix := range aliasSuffixes {
		candidate := clean + suffix
		data, err := os.ReadFile(p.fullPath(candidate))
		if err != nil {
			if isUnresolvable(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read file: %w", err)
		}

		p.log.Debug("Fetched object from file",
			slog.String("path", candidate),
			slog.Int("size", len(data)))

		return &interfaces.Object{
			Body:        data,
			ContentType: mimeutils.InferType(candidate),
		}, nil
	}

	return nil, fmt.Errorf("%s: %w", clean, interfaces.ErrNotFound)
}

// Exists reports whether path or path.html is a file.
func (p *FilePublisher) Exists(ctx context.Context, path string) bool {
	clean, err := interfaces.CleanPath(path)
	if err != nil {
		return false
	}

	for _, suffix := range aliasSuffixes {
		info, err := os.Stat(p.fullPath(clean + suffix))
		if err == nil && !info.IsDir() {
			return true
		}
		if err != nil && !isUnresolvable(err) {
			p.log.Debug("Failed to stat file", slog.String("path", clean+suffix), "err", err)
		}
	}
	return false
}

// List returns every file under the root except excluded bookkeeping objects.
func (p *FilePublisher) List(ctx context.Context) ([]string, error) {
	files, err := fsutils.WalkDir(p.root, p.excluded)
	if err != nil {
		return nil, err
	}

	res := files[:0]
	for _, f := range files {
		if !p.excluded(f) {
			res = append(res, f)
		}
	}
	return res, nil
}

// Rollback is a no-op: the filesystem has no staging area.
func (p *FilePublisher) Rollback(ctx context.Context) error {
	p.log.Debug("Rollback requested on file publisher, nothing to discard")
	return nil
}

// Commit appends "<timestamp> <message>" to the commit log. It always
// appends, even if nothing was written since the previous commit.
func (p *FilePublisher) Commit(ctx context.Context, message string) error {
	p.logMu.Lock()
	defer p.logMu.Unlock()

	var text string
	data, err := os.ReadFile(p.fullPath(p.logName))
	switch {
	case err == nil:
		text = string(data)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to read commit log: %w", err)
	}

	text += p.now().Format(LogTimeLayout) + " " + message + "\n"
	if err := p.Put(ctx, p.logName, strings.NewReader(text), mimeutils.PlainText); err != nil {
		return fmt.Errorf("failed to write commit log: %w", err)
	}

	p.log.Info("Committed to file log",
		slog.String("log", p.logName),
		slog.String("message", message))

	return nil
}

// Name returns a unique identifier for this publisher.
func (p *FilePublisher) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(p.root))
}

// LocationURI returns the URI that identifies this publisher.
func (p *FilePublisher) LocationURI() string {
	return p.locationURI
}

// Root returns the directory all paths are resolved beneath.
func (p *FilePublisher) Root() string {
	return p.root
}

func (p *FilePublisher) fullPath(clean string) string {
	return filepath.Join(p.root, filepath.FromSlash(clean))
}

// excluded reports whether rel, or a directory containing it, is hidden from List.
func (p *FilePublisher) excluded(rel string) bool {
	for {
		if _, ok := p.exclude[rel]; ok {
			return true
		}
		i := strings.LastIndex(rel, "/")
		if i < 0 {
			return false
		}
		rel = rel[:i]
	}
}

// isUnresolvable reports errors that make an alias candidate fall through
// to the next one: missing files, directories, and non-directory parents.
func isUnresolvable(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, errIsDir) || errors.Is(pathErr.Err, errNotDir)
	}
	return false
}
