package prompts

import "embed"

// Classify is the system prompt that maps an utterance to add, view or update.
//
//go:embed classify.md
var Classify string

// Extract is the system prompt that turns a task description into the
// 14-field JSON task record.
//
//go:embed extract.md
var Extract string

// Suggest is the text/template for resource recommendations. It receives the
// contact list.
//
//go:embed suggest.tmpl
var Suggest string

// SQL holds the per-action text/templates (add, view, update) and the shared
// schema block they include.
//
//go:embed sql/*.tmpl
var SQL embed.FS
