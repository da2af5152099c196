// Package vault writes notes into a local Obsidian-style vault folder.
//
// Paths are vault-relative and slash-separated. Create never replaces an
// existing file, which lets the inbox detect name collisions without racing
// another writer.
package vault
