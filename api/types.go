package api

// Routes served by httpserver.
const (
	ObjectsPath  = "/api/objects"
	CommitPath   = "/api/commit"
	RollbackPath = "/api/rollback"

	// ContentTypeParam selects the stored name on DELETE.
	ContentTypeParam = "content_type"
)

// CommitRequest is the body of POST /api/commit.
type CommitRequest struct {
	Message string `json:"message"`
}

// StatusResponse is returned by the health endpoints.
type StatusResponse struct {
	Status string `json:"status"`
}
