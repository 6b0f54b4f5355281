package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/choraleia/opengpt/pkg/utils"
)

// attachStatic serves a built web client from dir:
//  1. Intercepts GET/HEAD requests not under /api or /healthz
//  2. If a static file matches, serve it directly and Abort
//  3. If no match and path has no '.' and Accept includes text/html, treat as SPA and serve index.html
//  4. otherwise pass through
func attachStatic(engine *gin.Engine, dir string) {
	distFS := resolveStaticFS(dir)
	if distFS == nil {
		utils.GetLogger().Warn("Static dir has no index.html, not serving it", "dir", dir)
		return
	}

	idx := &indexFile{fsys: distFS}
	fileServer := http.FileServer(http.FS(distFS))

	engine.Use(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			return
		}
		p := c.Request.URL.Path
		// API and websocket routes fall through.
		if strings.HasPrefix(p, "/api") || p == "/healthz" {
			return
		}
		if p == "/" {
			idx.serve(c)
			return
		}
		trimmed := strings.TrimPrefix(p, "/")
		if fi, err := fs.Stat(distFS, trimmed); err == nil {
			if fi.IsDir() {
				idx.serve(c)
				return
			}
			fileServer.ServeHTTP(c.Writer, c.Request)
			c.Abort()
			return
		}

		// SPA fallback: serve index.html for client-side routes.
		if !strings.Contains(trimmed, ".") && acceptHTML(c.Request.Header.Get("Accept")) {
			idx.serve(c)
			return
		}
	})
}

func resolveStaticFS(dir string) fs.FS {
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil
	}
	dfs := os.DirFS(dir)
	if _, err := fs.Stat(dfs, "index.html"); err != nil {
		return nil
	}
	return dfs
}

// indexFile lazily loads index.html once and serves it with a weak ETag.
type indexFile struct {
	fsys    fs.FS
	once    sync.Once
	data    []byte
	err     error
	etag    string
	modTime time.Time
}

func (f *indexFile) load() {
	f.data, f.err = fs.ReadFile(f.fsys, "index.html")
	if f.err != nil {
		return
	}
	if fi, err := fs.Stat(f.fsys, "index.html"); err == nil {
		f.modTime = fi.ModTime()
	} else {
		f.modTime = time.Now()
	}
	h := sha256.Sum256(f.data)
	f.etag = `W/"` + hex.EncodeToString(h[:8]) + `"`
}

func (f *indexFile) serve(c *gin.Context) {
	f.once.Do(f.load)
	if f.err != nil || len(f.data) == 0 {
		return
	}

	if c.Request.Header.Get("If-None-Match") == f.etag {
		c.Status(http.StatusNotModified)
		c.Abort()
		return
	}
	c.Header("ETag", f.etag)
	c.Header("Cache-Control", "no-cache")
	c.Header("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(c.Writer, c.Request, "index.html", f.modTime, bytes.NewReader(f.data))
	c.Abort()
}

// acceptHTML determines if the given accept header string indicates
// that the client accepts HTML content.
func acceptHTML(accept string) bool {
	// Treat missing Accept as HTML navigation.
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		p := strings.TrimSpace(strings.ToLower(part))
		if strings.HasPrefix(p, "text/html") || strings.HasPrefix(p, "application/xhtml+xml") {
			return true
		}
	}
	return false
}
