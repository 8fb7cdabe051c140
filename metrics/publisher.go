package metrics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ruteri/content-publisher/interfaces"
)

const (
	statusOK       = "ok"
	statusNotFound = "not_found"
	statusError    = "error"
)

// instrumentedPublisher records the outcome and latency of every call to
// the wrapped publisher.
type instrumentedPublisher struct {
	interfaces.Publisher
	m *MetricsServer
}

// Instrument wraps p so its operations are counted and timed.
func (m *MetricsServer) Instrument(p interfaces.Publisher) interfaces.Publisher {
	return &instrumentedPublisher{Publisher: p, m: m}
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, interfaces.ErrNotFound):
		return statusNotFound
	default:
		return statusError
	}
}

func (p *instrumentedPublisher) record(op string, start time.Time, err error) {
	p.m.observe(p.Name(), op, statusOf(err), time.Since(start))
}

func (p *instrumentedPublisher) Put(ctx context.Context, path string, body io.Reader, contentType string) (err error) {
	defer func(start time.Time) { p.record("put", start, err) }(time.Now())
	return p.Publisher.Put(ctx, path, body, contentType)
}

func (p *instrumentedPublisher) Delete(ctx context.Context, path string, contentType string) (err error) {
	defer func(start time.Time) { p.record("delete", start, err) }(time.Now())
	return p.Publisher.Delete(ctx, path, contentType)
}

func (p *instrumentedPublisher) Get(ctx context.Context, path string) (obj *interfaces.Object, err error) {
	defer func(start time.Time) { p.record("get", start, err) }(time.Now())
	return p.Publisher.Get(ctx, path)
}

func (p *instrumentedPublisher) Exists(ctx context.Context, path string) bool {
	start := time.Now()
	found := p.Publisher.Exists(ctx, path)
	var err error
	if !found {
		err = interfaces.ErrNotFound
	}
	p.record("exists", start, err)
	return found
}

func (p *instrumentedPublisher) List(ctx context.Context) (files []string, err error) {
	defer func(start time.Time) { p.record("list", start, err) }(time.Now())
	return p.Publisher.List(ctx)
}

func (p *instrumentedPublisher) Rollback(ctx context.Context) (err error) {
	defer func(start time.Time) { p.record("rollback", start, err) }(time.Now())
	return p.Publisher.Rollback(ctx)
}

func (p *instrumentedPublisher) Commit(ctx context.Context, message string) (err error) {
	defer func(start time.Time) { p.record("commit", start, err) }(time.Now())
	return p.Publisher.Commit(ctx, message)
}

// Available forwards to the wrapped publisher when it can probe its backend.
func (p *instrumentedPublisher) Available(ctx context.Context) bool {
	if prober, ok := p.Publisher.(interfaces.Prober); ok {
		return prober.Available(ctx)
	}
	return true
}
