// Package web holds the browser control page.
package web

import _ "embed"

//go:embed index.html
var Index []byte
