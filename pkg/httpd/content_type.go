package httpd

import (
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
}

// ContentType maps a file name to its Content-Type by extension.
// Unknown extensions are served as text/plain.
func ContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "text/plain"
}
