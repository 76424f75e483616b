package composer

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
)

// ETag is a strong validator over a serialized body.
func ETag(body []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}

func notModified(r *http.Request, etag string) bool {
	if r == nil {
		return false
	}
	for tag := range strings.SplitSeq(r.Header.Get("If-None-Match"), ",") {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "W/"))
		if tag == etag || tag == "*" {
			return true
		}
	}
	return false
}

// WriteBody writes a serialized payload with an ETag, answering 304 when the
// client already holds it.
func WriteBody(w http.ResponseWriter, r *http.Request, status int, contentType string, body []byte) {
	etag := ETag(body)
	w.Header().Set("ETag", etag)
	if status == http.StatusOK && notModified(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, contentType string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	WriteBody(w, r, status, contentType, body)
	return nil
}

// WriteError writes {"detail": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"detail": msg})
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
