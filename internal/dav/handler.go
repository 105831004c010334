// Package dav wires the filesystem bridge into a WebDAV HTTP handler.
package dav

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/peerdav/peerdav/internal/bridge"
	"github.com/peerdav/peerdav/internal/logging"
	"github.com/peerdav/peerdav/internal/metrics"
	"github.com/peerdav/peerdav/internal/mfs"
)

// Handler serves WebDAV requests against the bridge. COPY is handled here
// rather than by webdav.Handler: the remote store can duplicate an object
// server-side in one RPC, which beats the library's read-and-rewrite copy.
type Handler struct {
	dav    *webdav.Handler
	fs     *bridge.FS
	prefix string
}

// NewHandler builds the WebDAV handler with request logging and metrics
// middleware.
func NewHandler(fs *bridge.FS, ls webdav.LockSystem, prefix string) http.Handler {
	h := &Handler{
		fs:     fs,
		prefix: prefix,
		dav: &webdav.Handler{
			Prefix:     prefix,
			FileSystem: fs,
			LockSystem: ls,
			Logger: func(r *http.Request, err error) {
				if err != nil {
					logging.Debug("webdav request failed",
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Error(err))
				}
			},
		},
	}
	return logging.Middleware(metrics.Middleware(h))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Lock tokens the client presented travel in the request context so
	// the bridge can recognize the lock holder on mutating calls.
	ctx := bridge.WithTokens(r.Context(), ifTokens(r.Header.Get("If")))
	r = r.WithContext(ctx)

	if r.Method == "COPY" {
		h.handleCopy(w, r)
		return
	}
	h.dav.ServeHTTP(w, r)
}

func (h *Handler) handleCopy(w http.ResponseWriter, r *http.Request) {
	src, ok := h.stripPrefix(r.URL.Path)
	if !ok {
		http.Error(w, "path outside prefix", http.StatusNotFound)
		return
	}

	destHeader := r.Header.Get("Destination")
	if destHeader == "" {
		http.Error(w, "missing Destination header", http.StatusBadRequest)
		return
	}
	destURL, err := url.Parse(destHeader)
	if err != nil {
		http.Error(w, "bad Destination header", http.StatusBadRequest)
		return
	}
	dest, ok := h.stripPrefix(destURL.Path)
	if !ok {
		http.Error(w, "destination outside prefix", http.StatusBadGateway)
		return
	}

	depth := r.Header.Get("Depth")
	if depth != "" && depth != "0" && depth != "infinity" {
		http.Error(w, "bad Depth header", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	overwrite := r.Header.Get("Overwrite") != "F"
	_, destErr := h.fs.Stat(ctx, dest)
	existed := destErr == nil

	// A Depth: 0 copy of a collection duplicates the collection without
	// its members (RFC 4918 §9.8.3); everything else is the store's
	// native full copy.
	if depth == "0" {
		if fi, err := h.fs.Stat(ctx, src); err == nil && fi.IsDir() {
			err = h.copyCollectionShallow(ctx, dest, existed, overwrite)
			h.finishCopy(w, err, existed)
			return
		}
	}

	err = h.fs.Copy(ctx, src, dest, overwrite)
	h.finishCopy(w, err, existed)
}

func (h *Handler) copyCollectionShallow(ctx context.Context, dest string, existed, overwrite bool) error {
	if existed {
		if !overwrite {
			return &os.PathError{Op: "copy", Path: dest, Err: os.ErrExist}
		}
		if err := h.fs.RemoveAll(ctx, dest); err != nil {
			return err
		}
	}
	return h.fs.Mkdir(ctx, dest, 0755)
}

func (h *Handler) finishCopy(w http.ResponseWriter, err error, existed bool) {
	if err != nil {
		http.Error(w, err.Error(), copyStatus(err))
		return
	}
	if existed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) stripPrefix(path string) (string, bool) {
	if h.prefix == "" {
		return path, true
	}
	rest := strings.TrimPrefix(path, h.prefix)
	if rest == path {
		return "", false
	}
	if rest == "" {
		rest = "/"
	}
	return rest, true
}

func copyStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusCreated
	case errors.Is(err, webdav.ErrLocked):
		return http.StatusLocked
	case os.IsNotExist(err):
		return http.StatusNotFound
	case os.IsExist(err):
		return http.StatusPreconditionFailed
	case errors.Is(err, mfs.ErrRemoteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ifTokens pulls submitted lock tokens out of an If header. Resource tags
// are angle-bracketed too, so only token-shaped URIs are kept.
func ifTokens(header string) []string {
	var tokens []string
	for {
		i := strings.IndexByte(header, '<')
		if i < 0 {
			break
		}
		j := strings.IndexByte(header[i:], '>')
		if j < 0 {
			break
		}
		tok := header[i+1 : i+j]
		if strings.HasPrefix(tok, "opaquelocktoken:") || strings.HasPrefix(tok, "urn:") {
			tokens = append(tokens, tok)
		}
		header = header[i+j+1:]
	}
	return tokens
}
