/*
Package api defines the wire types of the publishing HTTP API shared by the
server in package httpserver and the client in package clients.

# Endpoints

	GET    /api/objects            JSON array of stored names
	GET    /api/objects/{path}     object body with Content-Type and ETag
	HEAD   /api/objects/{path}     200 or 404
	PUT    /api/objects/{path}     store the request body
	DELETE /api/objects/{path}     ?content_type= selects the .html alias
	POST   /api/commit             CommitRequest
	POST   /api/rollback           discard uncommitted changes

Write endpoints may require signed requests, see package cryptoutils.

# Errors

Errors are returned as plain text. Unknown paths map to 404, paths escaping
the publishing root to 400, backend outages to 503 and everything else to 500.
*/
package api
