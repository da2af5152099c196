// Package inbox drains the Rapture mailbox folder into the vault.
//
// The remote folder is treated as a transient mailbox: every file found is
// downloaded, written locally under a name that never clobbers an existing
// note, and only then deleted remotely. One file's failure never stops the
// rest of the run. Runs are single-flight; an overlapping SyncNow returns
// immediately with "Sync already in progress".
package inbox
