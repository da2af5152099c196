// Package drive provides the Google Drive client for the Rapture mailbox.
//
// The mailbox is a folder (by default Rapture/Obsidian) that phones drop
// markdown notes into. The client can:
//   - Locate the mailbox folder with a two-stage name lookup
//   - List the markdown files inside it, newest first
//   - Download a file's content
//   - Delete a file, treating an already-deleted file as success
//
// OAuth Authentication:
// Every request carries a bearer token from a Credentials source. When Drive
// answers 401 the client refreshes the credentials once and replays the
// call; a second 401 is returned as ErrUnauthorized.
//
// Example usage:
//
//	client, err := drive.NewClient(ctx, drive.Options{Credentials: manager})
//	if err != nil {
//	    return err
//	}
//
//	folderID, err := client.LocateMailboxFolder(ctx)
//	if err != nil || folderID == "" {
//	    return err
//	}
//
//	files, err := client.ListFiles(ctx, folderID)
package drive
