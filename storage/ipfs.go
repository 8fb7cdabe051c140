package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/ruteri/content-publisher/mimeutils"
)

const mfsDirectory = "directory"

// mfsShell is the subset of the IPFS HTTP API used for publishing into MFS.
type mfsShell interface {
	FilesWrite(ctx context.Context, path string, data io.Reader, options ...shell.FilesOpt) error
	FilesRead(ctx context.Context, path string, options ...shell.FilesOpt) (io.ReadCloser, error)
	FilesStat(ctx context.Context, path string, options ...shell.FilesOpt) (*shell.FilesStatObject, error)
	FilesLs(ctx context.Context, path string, options ...shell.FilesOpt) ([]*shell.MfsLsEntry, error)
	FilesRm(ctx context.Context, path string, force bool) error
	IsUp() bool
}

// IPFSPublisher publishes into a directory of the IPFS mutable file system
// (MFS) of a node. MFS keeps no content types: they are inferred from the
// stored name. Commit reports the CID of the published directory.
type IPFSPublisher struct {
	shell       mfsShell
	address     string
	root        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSPublisher creates an IPFS publisher talking to the node API at
// address (host:port) and publishing below the MFS directory root.
func NewIPFSPublisher(address, root string, log *slog.Logger) (*IPFSPublisher, error) {
	if log == nil {
		log = slog.Default()
	}
	if !strings.HasPrefix(root, "/") {
		return nil, fmt.Errorf("%w: MFS root %q must be absolute", interfaces.ErrInvalidLocationURI, root)
	}

	return newIPFSPublisherWithShell(shell.NewShell(address), address, root, log), nil
}

func newIPFSPublisherWithShell(sh mfsShell, address, root string, log *slog.Logger) *IPFSPublisher {
	root = path.Clean(root)
	return &IPFSPublisher{
		shell:       sh,
		address:     address,
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", address, root),
	}
}

// Put writes body to the MFS file for path, creating parent directories.
func (b *IPFSPublisher) Put(ctx context.Context, p string, body io.Reader, contentType string) error {
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = mimeutils.InferType(clean)
	}

	target := b.mfsPath(mimeutils.HTMLPath(clean, contentType))
	err = b.shell.FilesWrite(ctx, target, body,
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("failed to write MFS file: %w", err)
	}

	b.log.Debug("Stored object in IPFS",
		slog.String("path", target),
		slog.String("content_type", contentType))

	return nil
}

// Delete removes the MFS file stored for path and contentType.
func (b *IPFSPublisher) Delete(ctx context.Context, p string, contentType string) error {
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return err
	}

	target := b.mfsPath(mimeutils.HTMLPath(clean, contentType))
	isFile, err := b.isFile(ctx, target)
	if err != nil {
		return err
	}
	if !isFile {
		return fmt.Errorf("%s: %w", clean, interfaces.ErrNotFound)
	}

	if err := b.shell.FilesRm(ctx, target, true); err != nil {
		return fmt.Errorf("failed to remove MFS file: %w", err)
	}

	b.log.Debug("Deleted object from IPFS", slog.String("path", target))
	return nil
}

// Get reads the first of path, path.html that is a file in MFS.
func (b *IPFSPublisher) Get(ctx context.Context, p string) (*interfaces.Object, error) {
	start := time.Now()
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return nil, err
	}

	for _, suffix := range aliasSuffixes {
		target := b.mfsPath(clean + suffix)
		isFile, err := b.isFile(ctx, target)
		if err != nil {
			return nil, err
		}
		if !isFile {
			continue
		}

		reader, err := b.shell.FilesRead(ctx, target)
		if err != nil {
			b.log.Error("Failed to read data from IPFS",
				slog.String("path", target),
				"err", err,
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("failed to read MFS file: %w", err)
		}
		data, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read MFS file: %w", err)
		}

		b.log.Debug("Fetched object from IPFS",
			slog.String("path", target),
			slog.Int("size", len(data)),
			slog.Duration("duration", time.Since(start)))

		return &interfaces.Object{
			Body:        data,
			ContentType: mimeutils.InferType(clean + suffix),
		}, nil
	}

	return nil, fmt.Errorf("%s: %w", clean, interfaces.ErrNotFound)
}

// Exists reports whether path or path.html is a file in MFS.
func (b *IPFSPublisher) Exists(ctx context.Context, p string) bool {
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return false
	}

	for _, suffix := range aliasSuffixes {
		isFile, err := b.isFile(ctx, b.mfsPath(clean+suffix))
		if err != nil {
			b.log.Warn("Failed to stat MFS path", slog.String("path", clean+suffix), "err", err)
			return false
		}
		if isFile {
			return true
		}
	}
	return false
}

// List walks the MFS directory and returns every file below it.
func (b *IPFSPublisher) List(ctx context.Context) ([]string, error) {
	var files []string
	if err := b.walk(ctx, "", &files); err != nil {
		if isIPFSNotFound(err) {
			return []string{}, nil
		}
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func (b *IPFSPublisher) walk(ctx context.Context, rel string, files *[]string) error {
	entries, err := b.shell.FilesLs(ctx, b.mfsPath(rel))
	if err != nil {
		return fmt.Errorf("failed to list MFS directory: %w", err)
	}

	for _, entry := range entries {
		child := path.Join(rel, entry.Name)
		stat, err := b.shell.FilesStat(ctx, b.mfsPath(child))
		if err != nil {
			return fmt.Errorf("failed to stat MFS path: %w", err)
		}
		if stat.Type == mfsDirectory {
			if err := b.walk(ctx, child, files); err != nil {
				return err
			}
			continue
		}
		*files = append(*files, child)
	}
	return nil
}

// Rollback is a no-op: MFS writes are applied immediately.
func (b *IPFSPublisher) Rollback(ctx context.Context) error {
	return nil
}

// Commit logs the CID of the published directory, which addresses the
// current snapshot of the tree.
func (b *IPFSPublisher) Commit(ctx context.Context, message string) error {
	stat, err := b.shell.FilesStat(ctx, b.root)
	if err != nil {
		if isIPFSNotFound(err) {
			b.log.Debug("Nothing published to IPFS yet", slog.String("root", b.root))
			return nil
		}
		return fmt.Errorf("failed to stat MFS root: %w", err)
	}

	b.log.Info("Published IPFS snapshot",
		slog.String("root", b.root),
		slog.String("cid", stat.Hash),
		slog.String("message", message))

	return nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSPublisher) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this publisher.
func (b *IPFSPublisher) Name() string {
	return fmt.Sprintf("ipfs-%s", b.address)
}

// LocationURI returns the URI that identifies this publisher.
func (b *IPFSPublisher) LocationURI() string {
	return b.locationURI
}

func (b *IPFSPublisher) mfsPath(clean string) string {
	return path.Join(b.root, clean)
}

func (b *IPFSPublisher) isFile(ctx context.Context, target string) (bool, error) {
	stat, err := b.shell.FilesStat(ctx, target)
	if err != nil {
		if isIPFSNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat MFS path: %w", err)
	}
	return stat.Type != mfsDirectory, nil
}

// isIPFSNotFound matches the API's message for missing MFS paths.
func isIPFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no link named")
}
