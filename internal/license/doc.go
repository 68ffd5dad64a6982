// Package license implements the client side of the license protocol: key
// verification against the license server, the heartbeat that proves the
// key stays authorized while the game runs, and persistence of the key
// between launches.
//
// # Session Lifecycle
//
// A Session starts Unverified. Verify (or VerifyAsync followed by Apply)
// posts the key to /check; a "success" result moves the session to
// Verified and persists the key exactly once. StartHeartbeat then runs a
// single worker posting to /heartbeat every interval. The first failed
// heartbeat moves the session to Disconnected, notifies the Notifier and
// ends the worker. There is no retry; a Disconnected session must be
// verified again.
//
//	session, _ := license.NewSession(license.Options{Server: client, Store: store})
//	defer session.Close()
//
//	if _, err := session.Verify(ctx, key); err != nil {
//	    fmt.Println(license.UserMessage(err))
//	    return
//	}
//	_ = session.StartHeartbeat(key)
//
// # Concurrency
//
// All state lives on the Session behind a mutex. Start and stop of the
// worker are serialized by a second mutex which the worker never takes,
// so stopping can wait for the worker to exit without deadlocking. Each
// worker carries a generation number and only mutates state while it is
// still the current worker.
package license
