package server

import (
	"bytes"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/conneroisu/assetforge/internal/version"
)

func (s *DevServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Cache-Control", "no-store")

	root := http.Dir(s.opts.Root)
	name := path.Clean("/" + r.URL.Path)

	info, err := stat(root, name)
	if err != nil {
		if name == "/" {
			s.serveIndex(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}

	if info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		name = path.Join(name, "index.html")
		if info, err = stat(root, name); err != nil || info.IsDir() {
			if path.Dir(name) == "/" {
				s.serveIndex(w, r)
				return
			}
			http.NotFound(w, r)
			return
		}
	}

	f, err := root.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	if s.hub == nil || path.Ext(name) != ".html" {
		http.ServeContent(w, r, path.Base(name), info.ModTime(), f)
		return
	}

	doc, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, path.Base(name), info.ModTime(), bytes.NewReader(InjectScript(doc)))
}

func (s *DevServer) serveIndex(w http.ResponseWriter, r *http.Request) {
	pages := listPages(s.opts.Root)

	var buf bytes.Buffer
	if err := IndexPage(pages).Render(r.Context(), &buf); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render index")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	out := buf.Bytes()
	if s.hub != nil {
		out = InjectScript(out)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(out)
}

func (s *DevServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"root":      s.opts.Root,
	}
	if s.hub != nil {
		health["livereload_clients"] = s.hub.Clients()
	}
	if s.opts.Status != nil {
		health["tasks"] = s.opts.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode health response")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *DevServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug(r.Context(), "Request", "method", r.Method, "path", r.URL.Path,
			"status", sw.status, "duration", time.Since(start))
	})
}

func stat(root http.FileSystem, name string) (fs.FileInfo, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}
