// Package fsutils provides the filesystem helpers shared by the file-backed
// publishers: recursive directory creation, write with parent creation and a
// recursive walk.
package fsutils

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/ruteri/content-publisher/interfaces"
)

// MkdirAll creates dir and any missing parents. An existing directory is not
// an error; an existing non-directory anywhere on the way is ErrNotDirectory.
func MkdirAll(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s: %w", dir, interfaces.ErrNotDirectory)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		// ENOTDIR from a file somewhere up the chain
		if isNotDir(err) {
			return fmt.Errorf("%s: %w", dir, interfaces.ErrNotDirectory)
		}
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}

	parent := filepath.Dir(dir)
	if parent != dir {
		if err := MkdirAll(parent); err != nil {
			return err
		}
	}

	if err := os.Mkdir(dir, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// WriteFile writes r to filename, creating missing parent directories first.
// The data goes to a temporary file in the same directory that is renamed
// onto filename once complete, so a failing reader leaves any previous
// content in place.
func WriteFile(filename string, r io.Reader) (int64, error) {
	dir := filepath.Dir(filename)
	if err := MkdirAll(dir); err != nil {
		return 0, err
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		if isNotDir(err) {
			return 0, fmt.Errorf("%s: %w", filename, interfaces.ErrNotDirectory)
		}
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	tmp := f.Name()

	n, werr := io.Copy(f, r)
	cerr := f.Close()
	if werr != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("failed to write file: %w", werr)
	}
	if cerr != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("failed to close file: %w", cerr)
	}

	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("failed to replace %s: %w", filename, err)
	}
	return n, nil
}

// WalkDir returns every non-directory entry below root, relative to root with
// forward slashes, sorted. Directories for which skipDir returns true are not
// descended into. A missing root yields an empty list.
func WalkDir(root string, skipDir func(rel string) bool) ([]string, error) {
	files := []string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && skipDir != nil && skipDir(rel) {
				return fs.SkipDir
			}
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

var errNotDir error = syscall.ENOTDIR

func isNotDir(err error) bool {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr.Err, errNotDir)
	}
	return false
}
