// Package rules holds the built-in warning rule scripts.
package rules

import "embed"

// FS contains every built-in *.risor rule.
//
//go:embed *.risor
var FS embed.FS
