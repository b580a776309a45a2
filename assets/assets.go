// Package assets embeds the notification email templates shipped with the
// binary.
package assets

import "embed"

//go:embed "emails"
var EmbeddedFiles embed.FS
