// Package dashboard embeds the status page served by the status server at
// "/". The page lists every site and follows /api/sse for live updates.
package dashboard

import "embed"

// Assets holds assets/index.html.
//
//go:embed assets/*
var Assets embed.FS
