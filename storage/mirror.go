package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ruteri/content-publisher/interfaces"
)

// MirrorPublisher publishes every write to a primary and then a secondary
// publisher. Reads are served by the primary only.
//
// A failing primary aborts the operation before the secondary is touched.
// A failing secondary is reported as ErrMirrorDiverged: the primary already
// holds the change.
type MirrorPublisher struct {
	primary   interfaces.Publisher
	secondary interfaces.Publisher
	log       *slog.Logger
}

// NewMirrorPublisher pairs primary and secondary.
func NewMirrorPublisher(primary, secondary interfaces.Publisher, logger *slog.Logger) *MirrorPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &MirrorPublisher{
		primary:   primary,
		secondary: secondary,
		log:       logger,
	}
}

// Put buffers body and stores it in both publishers.
func (m *MirrorPublisher) Put(ctx context.Context, path string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	return m.fanOut(ctx, "put", path, func(p interfaces.Publisher) error {
		return p.Put(ctx, path, bytes.NewReader(data), contentType)
	})
}

// Delete removes the object from both publishers. An object already absent
// from the secondary counts as deleted there.
func (m *MirrorPublisher) Delete(ctx context.Context, path string, contentType string) error {
	return m.fanOut(ctx, "delete", path, func(p interfaces.Publisher) error {
		err := p.Delete(ctx, path, contentType)
		if p == m.secondary && errors.Is(err, interfaces.ErrNotFound) {
			m.log.Warn("Object already absent from secondary",
				slog.String("backend_name", p.Name()),
				slog.String("path", path))
			return nil
		}
		return err
	})
}

// Get reads from the primary.
func (m *MirrorPublisher) Get(ctx context.Context, path string) (*interfaces.Object, error) {
	return m.primary.Get(ctx, path)
}

// Exists checks the primary.
func (m *MirrorPublisher) Exists(ctx context.Context, path string) bool {
	return m.primary.Exists(ctx, path)
}

// List lists the primary.
func (m *MirrorPublisher) List(ctx context.Context) ([]string, error) {
	return m.primary.List(ctx)
}

// Rollback rolls back both publishers.
func (m *MirrorPublisher) Rollback(ctx context.Context) error {
	return m.fanOut(ctx, "rollback", "", func(p interfaces.Publisher) error {
		return p.Rollback(ctx)
	})
}

// Commit commits both publishers with the same message.
func (m *MirrorPublisher) Commit(ctx context.Context, message string) error {
	return m.fanOut(ctx, "commit", "", func(p interfaces.Publisher) error {
		return p.Commit(ctx, message)
	})
}

// Name returns the name of this publisher.
func (m *MirrorPublisher) Name() string {
	return "mirror"
}

// LocationURI combines the location URIs of both publishers.
func (m *MirrorPublisher) LocationURI() string {
	return "mirror:[" + m.primary.LocationURI() + "," + m.secondary.LocationURI() + "]"
}

// Available reports whether both halves are reachable. Halves that cannot
// probe their backend count as available.
func (m *MirrorPublisher) Available(ctx context.Context) bool {
	for _, p := range []interfaces.Publisher{m.primary, m.secondary} {
		if prober, ok := p.(interfaces.Prober); ok && !prober.Available(ctx) {
			m.log.Warn("Mirror half unavailable", slog.String("publisher", p.Name()))
			return false
		}
	}
	return true
}

// Primary returns the publisher reads are served from.
func (m *MirrorPublisher) Primary() interfaces.Publisher {
	return m.primary
}

// Secondary returns the publisher that follows the primary.
func (m *MirrorPublisher) Secondary() interfaces.Publisher {
	return m.secondary
}

func (m *MirrorPublisher) fanOut(ctx context.Context, op, path string, apply func(interfaces.Publisher) error) error {
	start := time.Now()

	if err := apply(m.primary); err != nil {
		m.log.Debug("Primary failed, secondary left untouched",
			slog.String("op", op),
			slog.String("backend_name", m.primary.Name()),
			slog.String("path", path),
			"err", err)
		return err
	}

	if err := apply(m.secondary); err != nil {
		m.log.Error("Secondary diverged from primary",
			slog.String("op", op),
			slog.String("backend_name", m.secondary.Name()),
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %s %s: %w", interfaces.ErrMirrorDiverged, op, m.secondary.Name(), err)
	}

	m.log.Debug("Mirrored operation",
		slog.String("op", op),
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	return nil
}
