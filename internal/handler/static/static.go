// Package static serves the bundled web client.
package static

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Banner is the plain-text answer of GET / when no client bundle is configured.
const Banner = "Chat relay server is running"

// Handler serves files from a directory, falling back to index.html for client-side routes.
type Handler struct {
	root  string
	files http.Handler
}

// New creates the static handler. An empty dir serves only the banner.
func New(dir string) *Handler {
	h := &Handler{root: dir}
	if dir != "" {
		h.files = http.FileServer(http.Dir(dir))
	}
	return h
}

// RegisterRoutes 注册静态资源路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	if h.files == nil {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(Banner))
		})
		return
	}
	r.Get("/*", h.serve)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	name := filepath.Join(h.root, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	info, err := os.Stat(name)
	switch {
	case err == nil && !info.IsDir():
		h.files.ServeHTTP(w, r)
	case err == nil || errors.Is(err, fs.ErrNotExist):
		// client-side route
		http.ServeFile(w, r, filepath.Join(h.root, "index.html"))
	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
