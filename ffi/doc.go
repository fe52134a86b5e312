// Package ffi is the flat boundary layer over the messaging core in package
// mls. It is the Go-callable form of the C ABI exported by the capi build:
// every object crosses as an opaque handle, every fallible operation returns
// an integer status code, and failure detail travels through a per-thread
// error channel.
//
// Status codes: 0 is success; StatusFailure (-1) means the wrapped operation
// failed and the error channel holds a message for the calling thread;
// StatusFatal (-2) means a panic inside submitted work was caught at the
// boundary; StatusInvalid (-3) means malformed input (null or unknown handle,
// bad argument) rejected before any work was submitted. Accessors that return
// a primitive use a type-specific sentinel ("" , nil, -1) with the same
// error-channel contract.
//
// Handles are created by exactly one constructor-class function and released
// by exactly one matching *Free function. No other function frees a handle.
// Calling into this package with a handle after freeing it fails with
// StatusInvalid; it is never dereferenced.
//
// Streams deliver events through caller-supplied callbacks on a dedicated
// goroutine per stream: invocations for one stream are sequential and
// ordered, independent streams deliver concurrently. Conversation and message
// event payloads are owned handles the callback receiver must free; consent
// batches, preference batches, deletion IDs, and close reasons are borrowed
// and valid only for the duration of the callback.
package ffi
