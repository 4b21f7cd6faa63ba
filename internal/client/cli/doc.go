// Package cli provides the interactive pocketchat command-line client.
//
// It wires configuration, the local key-value store, the outbox, and the
// sync engine into an interactive REPL. All commands that talk to a remote
// destination take its base URL as the first argument; state is kept per
// destination host, so several servers can be used side by side.
//
// Key commands:
//   - login / logout — store or clear an access token for a destination
//   - send           — queue a message for later delivery
//   - drain / queue  — deliver or inspect the pending queue
//   - sync           — pull conversations into the local cache
//   - recent         — list cached conversations
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
