// Package httpui serves a built storefront bundle next to the API.
package httpui

import (
	"io/fs"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
)

// Handler serves fsys as a single page app.
//   - Real files are served as is (hashed assets cache forever).
//   - Unknown paths fall back to index.html for client-side routes.
//   - /api/ paths are never answered here.
func Handler(fsys fs.FS) (http.Handler, error) {
	if !exists(fsys, "index.html") {
		return nil, fs.ErrNotExist
	}

	_ = mime.AddExtensionType(".js", "application/javascript; charset=utf-8")
	_ = mime.AddExtensionType(".mjs", "application/javascript; charset=utf-8")
	_ = mime.AddExtensionType(".css", "text/css; charset=utf-8")
	_ = mime.AddExtensionType(".svg", "image/svg+xml")

	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		p := path.Clean("/" + r.URL.Path)
		if p == "/api" || strings.HasPrefix(p, "/api/") {
			http.NotFound(w, r)
			return
		}

		try := strings.TrimPrefix(p, "/")
		if try == "" {
			try = "index.html"
		}
		if exists(fsys, try) {
			setCacheHeaders(w, try)
			fileServer.ServeHTTP(w, r)
			return
		}

		// SPA fallback
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		setCacheHeaders(w, "index.html")
		fileServer.ServeHTTP(w, r2)
	}), nil
}

func exists(fsys fs.FS, name string) bool {
	st, err := fs.Stat(fsys, name)
	return err == nil && !st.IsDir()
}

func setCacheHeaders(w http.ResponseWriter, name string) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".js", ".mjs", ".css", ".png", ".jpg", ".jpeg", ".webp", ".gif", ".svg", ".ico", ".woff", ".woff2", ".ttf", ".map":
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	default:
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
