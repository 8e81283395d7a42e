package server

import (
	"compress/gzip"
	"net/http"
	"strings"
	"sync"
)

// gzipMinSize is the smallest body worth compressing. Most API replies
// (errors, {"success":true}, single tokens) stay below it.
const gzipMinSize = 1024

var gzipWriterPool = sync.Pool{
	New: func() any { return gzip.NewWriter(nil) },
}

// gzipMiddleware compresses responses for clients that advertise gzip support.
func gzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		// Avoid double-encoding
		if ce := w.Header().Get("Content-Encoding"); ce != "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Accept-Encoding")
		gzrw := &gzipResponseWriter{ResponseWriter: w, status: http.StatusOK}
		defer gzrw.Close()
		next.ServeHTTP(gzrw, r)
	})
}

// gzipResponseWriter holds the body back until gzipMinSize bytes have been
// written, then commits to compression. Shorter bodies go out as written.
type gzipResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	passthrough bool
	buf         []byte
	gz          *gzip.Writer
}

func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if g.wroteHeader {
		return
	}
	g.wroteHeader = true
	g.status = statusCode
	if statusCode == http.StatusNoContent || statusCode == http.StatusNotModified {
		g.passthrough = true
		g.ResponseWriter.WriteHeader(statusCode)
	}
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	if g.passthrough {
		return g.ResponseWriter.Write(b)
	}
	if g.gz != nil {
		return g.gz.Write(b)
	}

	g.buf = append(g.buf, b...)
	if len(g.buf) < gzipMinSize {
		return len(b), nil
	}
	if err := g.startGzip(); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (g *gzipResponseWriter) startGzip() error {
	g.Header().Set("Content-Encoding", "gzip")
	g.Header().Del("Content-Length")
	g.ResponseWriter.WriteHeader(g.status)

	g.gz = gzipWriterPool.Get().(*gzip.Writer)
	g.gz.Reset(g.ResponseWriter)
	_, err := g.gz.Write(g.buf)
	g.buf = nil
	return err
}

// Close flushes whatever is still buffered, compressed or not.
func (g *gzipResponseWriter) Close() error {
	if g.passthrough {
		return nil
	}
	if g.gz != nil {
		err := g.gz.Close()
		gzipWriterPool.Put(g.gz)
		g.gz = nil
		return err
	}
	g.ResponseWriter.WriteHeader(g.status)
	if len(g.buf) == 0 {
		return nil
	}
	_, err := g.ResponseWriter.Write(g.buf)
	g.buf = nil
	return err
}
