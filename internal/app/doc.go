// Package app wires the credential manager, the Drive client, the vault and
// the inbox engine into one service used by every command.
//
// The App owns the settings document as the credential persister, so a
// refreshed or revoked token reaches disk before the caller sees the result.
// ManualSync refuses to run while signed out and records the last sync time
// only for successful runs.
package app
