package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/content-publisher/fsutils"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/ruteri/content-publisher/mimeutils"
)

// publishDir stores every file below dir under its relative path and
// commits with message. Hidden directories are skipped. Any failure rolls
// the publisher back to its last checkpoint.
func publishDir(ctx context.Context, p interfaces.Publisher, dir, message string, log *slog.Logger) (n int, err error) {
	files, err := fsutils.WalkDir(dir, func(rel string) bool {
		return strings.HasPrefix(filepath.Base(rel), ".")
	})
	if err != nil {
		return 0, err
	}

	defer func() {
		if err == nil {
			return
		}
		if rbErr := p.Rollback(ctx); rbErr != nil {
			log.Error("Rollback failed", "err", rbErr)
			err = errors.Join(err, rbErr)
		}
	}()

	for _, rel := range files {
		if err := putFile(ctx, p, dir, rel); err != nil {
			return n, err
		}
		n++
		log.Debug("Stored object", slog.String("path", rel))
	}

	if err := p.Commit(ctx, message); err != nil {
		return n, err
	}
	return n, nil
}

func putFile(ctx context.Context, p interfaces.Publisher, dir, rel string) error {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := p.Put(ctx, rel, f, mimeutils.InferType(rel)); err != nil {
		return fmt.Errorf("put %s: %w", rel, err)
	}
	return nil
}
