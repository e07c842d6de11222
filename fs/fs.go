// Package fs embeds application assets so compiled binaries ship self-contained.
package fs

import "embed"

//go:embed migrations
var FS embed.FS
