package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ruteri/content-publisher/interfaces"
	"github.com/ruteri/content-publisher/syncutils"
)

const gitDir = ".git"

// GitOptions tunes a GitPublisher.
type GitOptions struct {
	// Push propagates every checkpoint to Remote after it is created.
	Push   bool
	Remote string

	// Init runs git init in the root if it is not a repository yet.
	Init bool

	// Exclude lists additional root-relative paths hidden from List.
	Exclude []string

	// Binary is the git executable. Defaults to "git" resolved on PATH.
	Binary string
}

// GitPublisher publishes into the working tree of a git repository. Put and
// Delete edit the tree like a FilePublisher, Commit turns the tree into a
// checkpoint and Rollback restores the last checkpoint.
//
// All mutations hold the same lock so a checkpoint never captures a
// half-written tree.
type GitPublisher struct {
	files       *FilePublisher
	root        string
	opts        GitOptions
	mu          *syncutils.Mutex
	log         *slog.Logger
	locationURI string
}

// NewGitPublisher creates a git publisher for the repository at root.
func NewGitPublisher(root string, opts GitOptions, log *slog.Logger) (*GitPublisher, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.Binary == "" {
		opts.Binary = "git"
	}

	// The working tree has no commit log object of its own: pointing the
	// file publisher's log at .git keeps log.txt an ordinary object.
	files, err := NewFilePublisher(root, FileOptions{
		LogName: gitDir,
		Exclude: opts.Exclude,
	}, log)
	if err != nil {
		return nil, err
	}

	p := &GitPublisher{
		files:       files,
		root:        root,
		opts:        opts,
		mu:          syncutils.NewMutex(),
		log:         log,
		locationURI: gitLocationURI(root, opts),
	}

	if opts.Init {
		if err := p.init(context.Background()); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *GitPublisher) init(ctx context.Context) error {
	if info, err := os.Stat(filepath.Join(p.root, gitDir)); err == nil && info.IsDir() {
		return nil
	}
	if _, err := p.git(ctx, nil, "init", "-q"); err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	p.log.Info("Initialized git repository", slog.String("root", p.root))
	return nil
}

// Put writes body into the working tree.
func (p *GitPublisher) Put(ctx context.Context, path string, body io.Reader, contentType string) error {
	release, err := p.mu.Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := checkWorkTreePath(path); err != nil {
		return err
	}
	return p.files.Put(ctx, path, body, contentType)
}

// Delete removes the object from the working tree.
func (p *GitPublisher) Delete(ctx context.Context, path string, contentType string) error {
	release, err := p.mu.Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := checkWorkTreePath(path); err != nil {
		return err
	}
	return p.files.Delete(ctx, path, contentType)
}

// Get reads the object from the working tree.
func (p *GitPublisher) Get(ctx context.Context, path string) (*interfaces.Object, error) {
	if err := checkWorkTreePath(path); err != nil {
		return nil, err
	}
	return p.files.Get(ctx, path)
}

// Exists reports whether the object is present in the working tree.
func (p *GitPublisher) Exists(ctx context.Context, path string) bool {
	if checkWorkTreePath(path) != nil {
		return false
	}
	return p.files.Exists(ctx, path)
}

// List returns the objects in the working tree, without repository metadata.
func (p *GitPublisher) List(ctx context.Context) ([]string, error) {
	return p.files.List(ctx)
}

// Rollback discards every working tree change since the last checkpoint,
// including untracked files. Ignored files are left alone.
func (p *GitPublisher) Rollback(ctx context.Context) error {
	release, err := p.mu.Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	hasHead, err := p.hasHead(ctx)
	if err != nil {
		return err
	}

	if hasHead {
		if _, err := p.git(ctx, nil, "reset", "-q", "--hard", "HEAD"); err != nil {
			return err
		}
	} else if _, err := p.git(ctx, nil, "read-tree", "--empty"); err != nil {
		return err
	}

	if _, err := p.git(ctx, nil, "clean", "-fdq"); err != nil {
		return err
	}

	p.log.Info("Rolled back working tree", slog.String("root", p.root))
	return nil
}

// Commit stages the whole working tree and records it as a checkpoint with
// message. Nothing is recorded if the tree matches the last checkpoint.
//
// The message is handed to git on stdin and is never part of the argument
// list, so it cannot be read as an option or a command.
func (p *GitPublisher) Commit(ctx context.Context, message string) error {
	release, err := p.mu.Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, err := p.git(ctx, nil, "add", "-A"); err != nil {
		return err
	}

	status, err := p.git(ctx, nil, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		p.log.Debug("Nothing to commit", slog.String("root", p.root))
		return nil
	}

	_, err = p.git(ctx, strings.NewReader(message),
		"commit", "-q", "--no-verify", "--allow-empty-message", "--cleanup=verbatim", "-F", "-")
	if err != nil {
		return err
	}

	p.log.Info("Created checkpoint",
		slog.String("root", p.root),
		slog.Int("message_len", len(message)))

	if !p.opts.Push {
		return nil
	}

	if _, err := p.git(ctx, nil, "push", "-q", p.opts.Remote, "HEAD"); err != nil {
		p.log.Error("Failed to push checkpoint",
			slog.String("remote", p.opts.Remote),
			"err", err)
		return fmt.Errorf("%w: %w", interfaces.ErrPushFailed, err)
	}

	p.log.Debug("Pushed checkpoint", slog.String("remote", p.opts.Remote))
	return nil
}

// Name returns a unique identifier for this publisher.
func (p *GitPublisher) Name() string {
	return fmt.Sprintf("git-%s", filepath.Base(p.root))
}

// LocationURI returns the URI that identifies this publisher.
func (p *GitPublisher) LocationURI() string {
	return p.locationURI
}

func (p *GitPublisher) hasHead(ctx context.Context) (bool, error) {
	_, err := p.git(ctx, nil, "rev-parse", "-q", "--verify", "HEAD")
	if err == nil {
		return true, nil
	}

	// rev-parse --verify -q exits 1 without output when the ref is missing
	var pe *interfaces.ProcessError
	var exitErr *exec.ExitError
	if errors.As(err, &pe) && errors.As(pe.Err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// git runs one git command in the repository root and returns its stdout.
// Arguments are passed as argv, no shell is involved.
func (p *GitPublisher) git(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, p.opts.Binary, args...)
	cmd.Dir = p.root
	cmd.Stdin = stdin
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &interfaces.ProcessError{
			Args:   append([]string{p.opts.Binary}, args...),
			Output: stderr.String() + stdout.String(),
			Err:    err,
		}
	}

	return stdout.String(), nil
}

// checkWorkTreePath rejects paths inside the repository metadata directory.
func checkWorkTreePath(path string) error {
	clean, err := interfaces.CleanPath(path)
	if err != nil {
		return err
	}
	if clean == gitDir || strings.HasPrefix(clean, gitDir+"/") {
		return fmt.Errorf("%w: %q is repository metadata", interfaces.ErrInvalidPath, path)
	}
	return nil
}

func gitLocationURI(root string, opts GitOptions) string {
	uri := fmt.Sprintf("git://%s", filepath.ToSlash(root))
	if opts.Push {
		uri += fmt.Sprintf("?push=true&remote=%s", opts.Remote)
	}
	return uri
}
