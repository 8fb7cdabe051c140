// Package mimeutils maps filename extensions to content types.
package mimeutils

import (
	"path"
	"strings"
)

const (
	// HTML is the content type that triggers .html path aliasing.
	HTML = "text/html"

	// PlainText is used for the commit log object.
	PlainText = "text/plain"

	// Default is returned for unrecognized extensions.
	Default = "application/octet-stream"
)

var types = map[string]string{
	".html": HTML,
	".css":  "text/css",
	".txt":  PlainText,
	".js":   "application/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".png":  "image/png",
	".svg":  "image/svg+xml",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
}

// InferType returns the content type for filename's extension, or Default.
func InferType(filename string) string {
	if ct, ok := types[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return Default
}

// HTMLPath returns the effective storage path for p: HTML content gains a
// .html suffix unless it already has one.
func HTMLPath(p, contentType string) string {
	if IsHTML(contentType) && !strings.HasSuffix(p, ".html") {
		return p + ".html"
	}
	return p
}

// IsHTML reports whether contentType is text/html, ignoring parameters.
func IsHTML(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), HTML)
}
