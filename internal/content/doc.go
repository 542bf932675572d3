// Package content maps validated gemini requests onto a content root.
//
// Targets are classified as regular files, directories served through an
// index document, directories needing a generated listing, or form documents
// (two-phase input capture). Every resolved path stays beneath the root,
// symlinks included.
package content
