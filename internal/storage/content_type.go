package storage

import (
	"mime"
	"path/filepath"
	"strings"
)

// archiveTypes covers the documents this service exports. Other extensions
// fall back to the mime table.
var archiveTypes = map[string]string{
	".json": "application/json",
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
}

// DetectContentType returns provided when set, otherwise a type derived from
// the key's extension, otherwise application/octet-stream.
func DetectContentType(provided, key string) string {
	if provided != "" {
		return provided
	}
	ext := strings.ToLower(filepath.Ext(key))
	if t, ok := archiveTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
