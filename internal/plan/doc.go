// Package plan parses, mutates and persists track plan documents.
//
// A plan document is a Markdown file holding one track heading, phase
// headings and task list items, each carrying a status marker:
//
//	# [~] Track: Add auth (auth_20250101)
//
//	## [x] Phase 1: Schema [checkpoint: 9f8e7d6]
//	- [x] Task: Create users table [a1b2c3d]
//	    - [x] Write migration
//
// Parse builds a Tree from the document; Render writes it back. Only lines
// whose item was mutated are regenerated, so an unmodified tree renders to
// the exact input bytes. Brackets the parser does not recognize are kept
// verbatim.
//
// Store couples a Tree with the track's metadata record and guards writes
// with a content hash token: a mutation fails with
// errors.ErrConcurrentModification when either file changed on disk since
// it was loaded.
package plan
