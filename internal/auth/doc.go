// Package auth manages the Google OAuth credential lifecycle for the inbox.
//
// The OAuth client secret lives in a token gateway service, so the code
// exchange and refresh are plain JSON POSTs to that gateway rather than to
// Google directly. A Manager tracks expiry with a five minute buffer,
// refreshes on demand, adopts a rotated refresh token when the gateway
// issues one and clears every credential when a refresh is rejected.
//
// Every mutation is handed to a Persister so the record survives restarts.
package auth
