// Package web holds the embedded page templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates static
var files embed.FS

// Templates returns the template tree: layouts/, partials/ and pages/.
func Templates() fs.FS {
	return mustSub("templates")
}

// Static returns the assets served under /static/.
func Static() fs.FS {
	return mustSub("static")
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		// dir is a literal embedded above.
		panic(err)
	}
	return sub
}
