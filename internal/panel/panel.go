package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// indexFile is served for "/" and for any path that does not name a file.
const indexFile = "index.html"

// Handler returns the console handler, to be mounted under a prefix with
// http.StripPrefix.
//
// When dir names an existing directory the files are read from it on every
// request; otherwise the embedded copy is used. Unknown paths serve the
// index page so links into the console survive a reload.
func Handler(dir string) http.Handler {
	return handler(assets(dir))
}

// assets picks the file system backing the console.
func assets(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	web, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("panel: embedded console missing: %v", err))
	}
	return web
}

func handler(files fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(files))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The console is small and changes with the binary.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		name := path.Clean(r.URL.Path)
		if name == "." || name == "/" {
			fileServer.ServeHTTP(w, r)
			return
		}

		if info, err := fs.Stat(files, name[1:]); err != nil || info.IsDir() {
			http.ServeFileFS(w, r, files, indexFile)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
