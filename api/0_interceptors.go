package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/fulldump/box"
)

// AccessLog prints one line per request, l is usually backed by zap through
// zap.NewStdLog.
func AccessLog(l *log.Logger) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			r := box.GetRequest(ctx)
			now := time.Now()
			defer func() {
				l.Println(formatRemoteAddr(r), r.Method, r.URL.String(), time.Since(now))
			}()

			next(ctx)
		}
	}
}

func formatRemoteAddr(r *http.Request) string {
	xorigin := strings.TrimSpace(strings.Split(
		r.Header.Get("X-Forwarded-For"), ",")[0])
	if xorigin != "" {
		return xorigin
	}

	i := strings.LastIndex(r.RemoteAddr, ":")
	if i < 0 {
		return r.RemoteAddr
	}
	return r.RemoteAddr[:i]
}
