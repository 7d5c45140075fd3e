// Package web holds the viewer's shell and static assets.
package web

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

//go:embed static
var static embed.FS

// ShellPath is the page every navigation starts from.
const ShellPath = "/index.html"

// Assets returns the static asset tree. A non-empty dir overrides the
// embedded tree with files on disk.
func Assets(dir string) (fs.FS, error) {
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("assets dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("assets dir %s is not a directory", dir)
		}
		return os.DirFS(dir), nil
	}
	return Embedded(), nil
}

// Embedded returns the compiled-in asset tree.
func Embedded() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
