// Package lib provides a Go SDK to run and follow restorewatch restores programmatically.
//
// This package allows applications to upload backup artifacts to a restorewatch server and
// follow the restore progress without shelling out to the restorewatch CLI binary. It is
// useful for scripting, automation, and building tools on top of restorewatch.
//
// # Quick Start
//
// Create a client and restore an artifact following its progress:
//
//	client, err := lib.New(lib.Config{
//	    ServerURL: "http://127.0.0.1:8080",
//	    Token:     os.Getenv("RESTOREWATCH_TOKEN"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := client.Restore(ctx, lib.RestoreOpts{
//	    Path: "/backups/school-2024.sql.gz",
//	    OnProgress: func(v lib.View) {
//	        fmt.Printf("%s %d%%\n", v.Stage, v.Progress)
//	    },
//	})
//
// Restore returns when the operation reaches a terminal stage. Progress is delivered through
// a push channel, if the channel is lost the client reconciles the status from the server
// event log before giving up.
//
// # Encrypted artifacts
//
// Encrypted artifacts need a decryption key. Set [RestoreOpts].DecryptionKey, or
// [RestoreOpts].KeyFunc to ask for it only when the artifact is detected as encrypted. Without
// any of them the restore stops before uploading and returns [ErrKeyRequired].
//
// Artifacts can be encrypted with [Seal], and classified locally with [Inspect].
//
// # Operations
//
// Query and manage server operations:
//
//	ops, _ := client.ListOperations(ctx, nil)
//	events, _ := client.History(ctx, ops[0].ID)
//	client.Cancel(ctx, ops[0].ID)
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Operation does not exist.
//   - [ErrAlreadyExists]: Operation already exists.
//   - [ErrNotValid]: Invalid input (e.g. an unknown artifact kind).
//   - [ErrUnauthorized]: The token was rejected by the server.
//   - [ErrKeyRequired]: An encrypted artifact had no decryption key.
//   - [ErrOperationFailed]: The server restore ended failed.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines, every restore owns its own
// progress state.
package lib
