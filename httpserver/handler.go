package httpserver

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/ruteri/content-publisher/api"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/ruteri/content-publisher/syncutils"
	"golang.org/x/crypto/blake2b"
)

const (
	// RequestIDHeader echoes or assigns an ID used to correlate log lines.
	RequestIDHeader = "X-Request-ID"

	// DefaultMaxBodySize bounds uploaded objects (32MB).
	DefaultMaxBodySize = 32 << 20

	// SitePrefix is where published content is served for preview.
	SitePrefix = "/site/"

	// maxCommitBodySize bounds the JSON body of commit requests.
	maxCommitBodySize = 64 << 10

	indexName = "index"
)

// Handler serves the object API on top of a Publisher. Mutating requests
// are applied one at a time in arrival order.
type Handler struct {
	publisher   interfaces.Publisher
	writes      *syncutils.Mutex
	maxBodySize int64
	log         *slog.Logger
}

// NewHandler creates a handler publishing through p. maxBodySize of zero
// means DefaultMaxBodySize.
func NewHandler(p interfaces.Publisher, maxBodySize int64, log *slog.Logger) *Handler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		publisher:   p,
		writes:      syncutils.NewMutex(),
		maxBodySize: maxBodySize,
		log:         log.With(slog.String("publisher", p.Name())),
	}
}

// objectPath extracts the decoded object path from /api/objects/{path}.
func objectPath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, api.ObjectsPath+"/")
}

// ETag is the quoted hex BLAKE2b-256 of body.
func ETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (h *Handler) requestLog(w http.ResponseWriter, r *http.Request) *slog.Logger {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return h.log.With(slog.String("request_id", id))
}

// writeError maps publisher errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var maxBytesErr *http.MaxBytesError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrInvalidPath):
		status = http.StatusBadRequest
	case errors.As(err, &maxBytesErr):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Error("Request failed", "err", err)
	} else {
		log.Debug("Request rejected", slog.Int("status", status), "err", err)
	}
	http.Error(w, err.Error(), status)
}

// lockWrites waits for the write lock for as long as the client waits.
func (h *Handler) lockWrites(w http.ResponseWriter, r *http.Request, log *slog.Logger) (func(), bool) {
	release, err := h.writes.Lock(r.Context())
	if err != nil {
		log.Warn("Gave up waiting for write lock", "err", err)
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return nil, false
	}
	return release, true
}

// HandleList returns every stored name as a JSON array.
//
// URL format: GET /api/objects
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(w, r)

	files, err := h.publisher.List(r.Context())
	if err != nil {
		h.writeError(w, log, err)
		return
	}
	if files == nil {
		files = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(files)
}

// HandleGet returns an object body with its content type and ETag. A
// matching If-None-Match yields 304.
//
// URL format: GET /api/objects/{path}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(w, r)

	obj, err := h.publisher.Get(r.Context(), objectPath(r))
	if err != nil {
		h.writeError(w, log, err)
		return
	}

	writeObject(w, r, obj)
}

// HandleSite serves the published content the way a static web server
// would: a directory path falls back to its index page.
//
// URL format: GET /site/{path}
func (h *Handler) HandleSite(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(w, r)

	p := strings.TrimPrefix(r.URL.Path, SitePrefix)
	if p == "" || strings.HasSuffix(p, "/") {
		p += indexName
	}

	obj, err := h.publisher.Get(r.Context(), p)
	if errors.Is(err, interfaces.ErrNotFound) && path.Base(p) != indexName {
		obj, err = h.publisher.Get(r.Context(), p+"/"+indexName)
	}
	if err != nil {
		h.writeError(w, log, err)
		return
	}

	writeObject(w, r, obj)
}

func writeObject(w http.ResponseWriter, r *http.Request, obj *interfaces.Object) {
	etag := ETag(obj.Body)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", fmt.Sprint(len(obj.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Body)
}

// HandleHead reports whether an object exists.
//
// URL format: HEAD /api/objects/{path}
func (h *Handler) HandleHead(w http.ResponseWriter, r *http.Request) {
	h.requestLog(w, r)

	if !h.publisher.Exists(r.Context(), objectPath(r)) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandlePut stores the request body. The Content-Type header is optional;
// when absent the type is inferred from the path.
//
// URL format: PUT /api/objects/{path}
func (h *Handler) HandlePut(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(w, r)
	p := objectPath(r)

	if _, err := interfaces.CleanPath(p); err != nil {
		h.writeError(w, log, err)
		return
	}

	release, ok := h.lockWrites(w, r, log)
	if !ok {
		return
	}
	defer release()

	body := http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := h.publisher.Put(r.Context(), p, body, r.Header.Get("Content-Type")); err != nil {
		h.writeError(w, log, err)
		return
	}

	log.Info("Object stored", slog.String("path", p))
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes an object. The content_type query parameter selects
// the .html alias the same way Put does.
//
// URL format: DELETE /api/objects/{path}?content_type=text/html
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(w, r)
	p := objectPath(r)

	release, ok := h.lockWrites(w, r, log)
	if !ok {
		return
	}
	defer release()

	if err := h.publisher.Delete(r.Context(), p, r.URL.Query().Get(api.ContentTypeParam)); err != nil {
		h.writeError(w, log, err)
		return
	}

	log.Info("Object deleted", slog.String("path", p))
	w.WriteHeader(http.StatusNoContent)
}

// HandleCommit records a checkpoint.
//
// URL format: POST /api/commit
// Request body: {"message": "..."}
func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(w, r)

	var req api.CommitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommitBodySize)).Decode(&req); err != nil {
		log.Debug("Invalid commit request", "err", err)
		http.Error(w, "invalid commit request", http.StatusBadRequest)
		return
	}

	release, ok := h.lockWrites(w, r, log)
	if !ok {
		return
	}
	defer release()

	if err := h.publisher.Commit(r.Context(), req.Message); err != nil {
		h.writeError(w, log, err)
		return
	}

	log.Info("Committed", slog.String("message", req.Message))
	w.WriteHeader(http.StatusNoContent)
}

// HandleRollback discards uncommitted changes.
//
// URL format: POST /api/rollback
func (h *Handler) HandleRollback(w http.ResponseWriter, r *http.Request) {
	log := h.requestLog(w, r)

	release, ok := h.lockWrites(w, r, log)
	if !ok {
		return
	}
	defer release()

	if err := h.publisher.Rollback(r.Context()); err != nil {
		h.writeError(w, log, err)
		return
	}

	log.Info("Rolled back")
	w.WriteHeader(http.StatusNoContent)
}
