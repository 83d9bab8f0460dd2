package api

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/fulldump/box"
)

func Compression(next box.H) box.H {
	return func(ctx context.Context) {
		r := box.GetRequest(ctx)
		w := box.GetResponse(ctx)

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next(ctx)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		box.GetBoxContext(ctx).Response = gzipResponseWriter{Writer: gz, ResponseWriter: w}
		next(ctx)
	}
}

type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// Flush pushes the compressed bytes written so far, find streams its rows.
func (w gzipResponseWriter) Flush() {
	if gz, ok := w.Writer.(*gzip.Writer); ok {
		gz.Flush()
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
