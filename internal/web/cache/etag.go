// Package cache implements HTTP conditional requests for JSON resources.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

// CacheControl is sent with every tagged response. Resources are private to
// the caller and must be revalidated on each use.
const CacheControl = "private, no-cache"

// ETag returns a weak entity tag for body
func ETag(body []byte) string {
	hash := sha256.Sum256(body)
	return `W/"` + hex.EncodeToString(hash[:16]) + `"`
}

// ParseIfNoneMatch splits an If-None-Match header into entity tags
func ParseIfNoneMatch(header string) []string {
	var etags []string
	for _, part := range strings.Split(header, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			etags = append(etags, tag)
		}
	}
	return etags
}

// Matches reports whether etag satisfies an If-None-Match header using weak
// comparison
func Matches(header, etag string) bool {
	want := strings.TrimPrefix(etag, "W/")
	for _, tag := range ParseIfNoneMatch(header) {
		if tag == "*" || strings.TrimPrefix(tag, "W/") == want {
			return true
		}
	}
	return false
}

// RenderJSON writes v as a 200 JSON response tagged with its ETag, or a bare
// 304 when the request already holds the current representation. It only
// fails when v cannot be encoded, before anything is written.
func RenderJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}

	etag := ETag(buf.Bytes())
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", CacheControl)

	if Matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
	return nil
}
