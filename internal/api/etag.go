package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"
	"net/http"
	"strings"
	"time"
)

// Client reuse windows for revalidated routes.
const (
	gameMaxAge   = 5 * time.Minute
	searchMaxAge = time.Minute
)

// taggedWriter holds back a 200 body while hashing it. Any other status
// switches it to pass-through so errors stream unbuffered.
type taggedWriter struct {
	http.ResponseWriter
	body        bytes.Buffer
	sum         hash.Hash
	status      int
	passThrough bool
}

func (w *taggedWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	if status != http.StatusOK {
		w.passThrough = true
		w.ResponseWriter.WriteHeader(status)
	}
}

func (w *taggedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if w.passThrough {
		return w.ResponseWriter.Write(b)
	}
	w.sum.Write(b)
	return w.body.Write(b)
}

// tag returns the strong entity tag of everything written so far.
func (w *taggedWriter) tag() string {
	return `"` + base64.RawURLEncoding.EncodeToString(w.sum.Sum(nil)[:18]) + `"`
}

// revalidate tags 200 responses with a hash of their body and answers
// conditional GETs whose If-None-Match carries that tag with 304.
// Responses advertise maxAge through Cache-Control.
func revalidate(maxAge time.Duration) func(http.Handler) http.Handler {
	cacheControl := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			tw := &taggedWriter{ResponseWriter: w, sum: sha256.New()}
			next.ServeHTTP(tw, r)
			if tw.passThrough {
				return
			}

			etag := tw.tag()
			h := w.Header()
			h.Set("ETag", etag)
			h.Set("Cache-Control", cacheControl)

			if noneMatch(r.Header.Get("If-None-Match"), etag) {
				h.Del("Content-Type")
				h.Del("Content-Length")
				w.WriteHeader(http.StatusNotModified)
				return
			}

			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				_, _ = w.Write(tw.body.Bytes())
			}
		})
	}
}

// noneMatch reports whether an If-None-Match value matches etag under
// weak comparison.
func noneMatch(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
