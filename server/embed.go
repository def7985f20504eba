package server

import "embed"

//go:embed web
var webFiles embed.FS
