package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxLoggedBody = 2048

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// пароли в лог не попадают
func loggedBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if strings.HasPrefix(r.URL.Path, "/api/user/") {
		return "[redacted]"
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	if len(data) > maxLoggedBody {
		return string(data[:maxLoggedBody]) + "..."
	}
	return string(data)
}

func LogMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			body := loggedBody(r)

			lw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lw, r)

			logger.Infof("method=%s path=%s status=%d size=%d duration=%s body=%s outputheaders=%v",
				r.Method,
				r.URL.Path,
				lw.status,
				lw.size,
				time.Since(start),
				body,
				lw.Header(),
			)
		})
	}
}
