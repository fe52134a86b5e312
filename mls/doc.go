// Package mls implements the asynchronous messaging core wrapped by the
// boundary layer in package ffi.
//
// The package owns client identity, conversation and message state, the
// consent ledger, the local persisted store, and the event dispatcher that
// feeds push subscriptions. Network interaction goes through the Backend
// interface; the in-memory backend shipped here lets multiple clients in one
// process exchange welcomes and messages, which is what the tests use.
//
// Cryptographic protocol concerns (MLS group encryption, wallet signature
// verification) are out of scope for this package; it models the state
// machine and event flow the boundary layer needs to expose.
package mls
