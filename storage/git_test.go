package storage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/content-publisher/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found on PATH")
	}
}

// runGit runs git in dir for test setup and assertions.
func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return string(out)
}

func newTestGitPublisher(t *testing.T, opts GitOptions) *GitPublisher {
	t.Helper()
	requireGit(t)

	opts.Init = true
	p, err := NewGitPublisher(t.TempDir(), opts, testLogger())
	require.NoError(t, err)

	runGit(t, p.root, "config", "user.name", "Publisher Test")
	runGit(t, p.root, "config", "user.email", "publisher@example.com")
	runGit(t, p.root, "config", "commit.gpgsign", "false")
	return p
}

func commitCount(t *testing.T, dir string) int {
	t.Helper()
	cmd := exec.Command("git", "rev-list", "--count", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		// unborn HEAD
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	require.NoError(t, err)
	return n
}

func lastCommitMessage(t *testing.T, dir string) string {
	t.Helper()
	return strings.TrimRight(runGit(t, dir, "log", "-1", "--format=%B"), "\n")
}

func TestGitPublisher_WorkTree(t *testing.T) {
	ctx := context.Background()
	p := newTestGitPublisher(t, GitOptions{})

	files, err := p.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, files, ".git must not be listed")

	require.NoError(t, interfaces.PutBytes(ctx, p, "hello.txt", []byte("Hello world"), "text/plain"))
	require.NoError(t, interfaces.PutBytes(ctx, p, "post", []byte("<html></html>"), "text/html"))
	require.NoError(t, interfaces.PutBytes(ctx, p, "log.txt", []byte("not bookkeeping here"), "text/plain"))

	files, err = p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello.txt", "log.txt", "post.html"}, files)

	obj, err := p.Get(ctx, "post")
	require.NoError(t, err)
	assert.Equal(t, "text/html", obj.ContentType)
	assert.True(t, p.Exists(ctx, "post.html"))

	require.NoError(t, p.Delete(ctx, "hello.txt", "text/plain"))
	assert.False(t, p.Exists(ctx, "hello.txt"))
	_, err = p.Get(ctx, "hello.txt")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestGitPublisher_RejectsMetadataPaths(t *testing.T) {
	ctx := context.Background()
	p := newTestGitPublisher(t, GitOptions{})

	for _, path := range []string{".git", ".git/config", "x/../.git/HEAD"} {
		t.Run(path, func(t *testing.T) {
			assert.ErrorIs(t, interfaces.PutBytes(ctx, p, path, []byte("x"), ""), interfaces.ErrInvalidPath)
			assert.ErrorIs(t, p.Delete(ctx, path, ""), interfaces.ErrInvalidPath)
			_, err := p.Get(ctx, path)
			assert.ErrorIs(t, err, interfaces.ErrInvalidPath)
			assert.False(t, p.Exists(ctx, path))
		})
	}
}

func TestGitPublisher_CommitWithoutChangesIsNoop(t *testing.T) {
	ctx := context.Background()
	p := newTestGitPublisher(t, GitOptions{})

	// Nothing staged on a fresh repository.
	require.NoError(t, p.Commit(ctx, "empty"))
	assert.Equal(t, 0, commitCount(t, p.root))

	require.NoError(t, interfaces.PutBytes(ctx, p, "hello.txt", []byte("Hello world"), "text/plain"))
	require.NoError(t, p.Commit(ctx, "first"))
	assert.Equal(t, 1, commitCount(t, p.root))

	require.NoError(t, p.Commit(ctx, "second"))
	assert.Equal(t, 1, commitCount(t, p.root))
	assert.Equal(t, "first", lastCommitMessage(t, p.root))

	// Rewriting identical content is not a change either.
	require.NoError(t, interfaces.PutBytes(ctx, p, "hello.txt", []byte("Hello world"), "text/plain"))
	require.NoError(t, p.Commit(ctx, "third"))
	assert.Equal(t, 1, commitCount(t, p.root))

	require.NoError(t, p.Delete(ctx, "hello.txt", "text/plain"))
	require.NoError(t, p.Commit(ctx, "remove hello"))
	assert.Equal(t, 2, commitCount(t, p.root))
	assert.Empty(t, strings.TrimSpace(runGit(t, p.root, "ls-files")))
}

func TestGitPublisher_CommitMessagesAreLiteral(t *testing.T) {
	ctx := context.Background()
	p := newTestGitPublisher(t, GitOptions{})

	messages := []string{
		"test --dry-run",
		`test" --dry-run "`,
		"test; touch foo.txt",
		"test\nmulti line",
		"-m injected",
		"$(touch bar.txt) `touch baz.txt`",
	}

	for i, msg := range messages {
		t.Run(fmt.Sprintf("message %d", i), func(t *testing.T) {
			require.NoError(t, interfaces.PutBytes(ctx, p, fmt.Sprintf("file%d.txt", i), []byte(msg), "text/plain"))
			require.NoError(t, p.Commit(ctx, msg))

			assert.Equal(t, i+1, commitCount(t, p.root), "a dry run would not create a checkpoint")
			assert.Equal(t, msg, lastCommitMessage(t, p.root))
		})
	}

	for _, name := range []string{"foo.txt", "bar.txt", "baz.txt"} {
		assert.NoFileExists(t, filepath.Join(p.root, name))
		assert.NoFileExists(t, name)
	}
}

func TestGitPublisher_Rollback(t *testing.T) {
	ctx := context.Background()
	p := newTestGitPublisher(t, GitOptions{})

	require.NoError(t, interfaces.PutBytes(ctx, p, "hello.txt", []byte("Hello world"), "text/plain"))
	require.NoError(t, interfaces.PutBytes(ctx, p, "keep/page", []byte("<p>keep</p>"), "text/html"))
	require.NoError(t, p.Commit(ctx, "initial"))

	require.NoError(t, interfaces.PutBytes(ctx, p, "hello.txt", []byte("changed"), "text/plain"))
	require.NoError(t, interfaces.PutBytes(ctx, p, "new/dir/extra.txt", []byte("extra"), "text/plain"))
	require.NoError(t, p.Delete(ctx, "keep/page", "text/html"))

	require.NoError(t, p.Rollback(ctx))

	obj, err := p.Get(ctx, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", string(obj.Body))

	files, err := p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello.txt", "keep/page.html"}, files)
	assert.NoDirExists(t, filepath.Join(p.root, "new"))
	assert.Equal(t, 1, commitCount(t, p.root))
}

func TestGitPublisher_RollbackWithoutCheckpoint(t *testing.T) {
	ctx := context.Background()
	p := newTestGitPublisher(t, GitOptions{})

	require.NoError(t, interfaces.PutBytes(ctx, p, "draft.txt", []byte("draft"), "text/plain"))
	runGit(t, p.root, "add", "-A")
	require.NoError(t, interfaces.PutBytes(ctx, p, "untracked.txt", []byte("x"), "text/plain"))

	require.NoError(t, p.Rollback(ctx))

	files, err := p.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestGitPublisher_Push(t *testing.T) {
	ctx := context.Background()
	requireGit(t)

	remote := filepath.Join(t.TempDir(), "remote.git")
	runGit(t, filepath.Dir(remote), "init", "-q", "--bare", remote)

	p := newTestGitPublisher(t, GitOptions{Push: true})
	runGit(t, p.root, "remote", "add", "origin", remote)
	assert.Contains(t, p.LocationURI(), "push=true")

	require.NoError(t, interfaces.PutBytes(ctx, p, "index.html", []byte("<p>hi</p>"), "text/html"))
	require.NoError(t, p.Commit(ctx, "publish"))

	branch := strings.TrimSpace(runGit(t, p.root, "rev-parse", "--abbrev-ref", "HEAD"))
	local := strings.TrimSpace(runGit(t, p.root, "rev-parse", "HEAD"))
	pushed := strings.TrimSpace(runGit(t, remote, "rev-parse", branch))
	assert.Equal(t, local, pushed)
}

func TestGitPublisher_PushFailureKeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	p := newTestGitPublisher(t, GitOptions{Push: true, Remote: "nowhere"})

	require.NoError(t, interfaces.PutBytes(ctx, p, "index.html", []byte("<p>hi</p>"), "text/html"))
	err := p.Commit(ctx, "publish")
	assert.ErrorIs(t, err, interfaces.ErrPushFailed)
	assert.ErrorIs(t, err, interfaces.ErrProcessFailure)

	assert.Equal(t, 1, commitCount(t, p.root))
	assert.Equal(t, "publish", lastCommitMessage(t, p.root))
}

func TestGitPublisher_ProcessFailure(t *testing.T) {
	requireGit(t)
	ctx := context.Background()

	// Not a repository and not asked to create one.
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	p, err := NewGitPublisher(dir, GitOptions{}, testLogger())
	require.NoError(t, err)

	require.NoError(t, interfaces.PutBytes(ctx, p, "a.txt", []byte("a"), ""))
	err = p.Commit(ctx, "never")
	require.ErrorIs(t, err, interfaces.ErrProcessFailure)

	var pe *interfaces.ProcessError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "git", pe.Args[0])
	assert.NotEmpty(t, pe.Output)

	assert.ErrorIs(t, p.Rollback(ctx), interfaces.ErrProcessFailure)

	p.opts.Binary = filepath.Join(dir, "no-such-git")
	assert.ErrorIs(t, p.Commit(ctx, "missing tool"), interfaces.ErrProcessFailure)
}

func TestGitPublisher_ConcurrentPutsAreSerialized(t *testing.T) {
	ctx := context.Background()
	p := newTestGitPublisher(t, GitOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, interfaces.PutBytes(ctx, p, fmt.Sprintf("pages/%02d.txt", i), []byte("x"), ""))
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, p.Commit(ctx, "concurrent"))
	}()
	wg.Wait()

	require.NoError(t, p.Commit(ctx, "rest"))
	assert.Empty(t, strings.TrimSpace(runGit(t, p.root, "status", "--porcelain")))

	files, err := p.List(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 16)
}

func TestNewGitPublisher_InitIsIdempotent(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()

	_, err := NewGitPublisher(dir, GitOptions{Init: true}, testLogger())
	require.NoError(t, err)
	head, err := os.ReadFile(filepath.Join(dir, ".git", "HEAD"))
	require.NoError(t, err)

	p, err := NewGitPublisher(dir, GitOptions{Init: true}, testLogger())
	require.NoError(t, err)
	again, err := os.ReadFile(filepath.Join(dir, ".git", "HEAD"))
	require.NoError(t, err)

	assert.Equal(t, head, again)
	assert.Equal(t, "git-"+filepath.Base(dir), p.Name())
}
