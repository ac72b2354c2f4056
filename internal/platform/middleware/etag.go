package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// bufferedResponseWriter holds a response until the ETag is known.
type bufferedResponseWriter struct {
	header     http.Header
	buf        bytes.Buffer
	statusCode int
	wrapped    http.ResponseWriter
}

func (w *bufferedResponseWriter) Header() http.Header       { return w.header }
func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }
func (w *bufferedResponseWriter) WriteHeader(code int)        { w.statusCode = code }

func (w *bufferedResponseWriter) flush() error {
	w.wrapped.WriteHeader(w.statusCode)
	_, err := w.wrapped.Write(w.buf.Bytes())
	return err
}

// ETag hashes successful GET responses into a strong ETag and answers a
// matching If-None-Match with 304. Responses are marked private and must be
// revalidated, which lets calendar clients poll cheaply.
func ETag() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}

			res := c.Response()
			orig := res.Writer
			buf := &bufferedResponseWriter{header: orig.Header(), statusCode: http.StatusOK, wrapped: orig}
			res.Writer = buf
			err := next(c)
			res.Writer = orig
			if err != nil {
				if buf.buf.Len() > 0 {
					return buf.flush()
				}
				return err
			}

			if buf.statusCode != http.StatusOK {
				return buf.flush()
			}

			etag := computeETag(buf.buf.Bytes())
			h := orig.Header()
			h.Set("ETag", etag)
			h.Set("Cache-Control", "private, no-cache")
			h.Set("Vary", "Authorization")
			if etagMatch(req.Header.Get("If-None-Match"), etag) {
				h.Del(echo.HeaderContentLength)
				orig.WriteHeader(http.StatusNotModified)
				res.Status = http.StatusNotModified
				return nil
			}
			return buf.flush()
		}
	}
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// etagMatch reports whether an If-None-Match value matches etag, accepting
// lists, the wildcard and weak validators.
func etagMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == etag {
			return true
		}
	}
	return false
}
