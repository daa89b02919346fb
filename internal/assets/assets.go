// Package assets embeds the static files served under /static.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed static
var files embed.FS

// Static returns the asset tree rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
