// Package main provides the C API for xmtpcore, enabling cross-language
// interoperability with C applications and other language bindings.
//
// # Overview
//
// The capi package projects the Go boundary layer (package ffi) onto C
// linkage: every exported xmtp_* function is a thin shim over the matching
// ffi function, converting C strings, byte buffers, and function pointers to
// their Go forms. All boundary semantics (handles, status codes, the
// per-thread error channel, stream lifecycle) live in package ffi.
//
// # Build Instructions
//
// To build as a C shared library:
//
//	go build -buildmode=c-shared -o libxmtp.so ./capi/
//
// This generates:
//   - libxmtp.so: The shared library
//   - libxmtp.h: Auto-generated C header file with function declarations
//
// # C API Usage
//
//	void* client = NULL;
//	int32_t st = xmtp_client_create("grpc.example.net", true, "/tmp/client.db",
//	                                NULL, 0, inbox_id, account, 0, "app/1.0", &client);
//	if (st != 0) {
//	    char buf[256];
//	    xmtp_last_error_message(buf, sizeof buf);
//	    fprintf(stderr, "create failed: %s\n", buf);
//	    return 1;
//	}
//
//	xmtp_client_register_identity(client, signature, signature_len);
//
//	void* conversation = NULL;
//	xmtp_client_create_dm(client, peer_inbox_id, &conversation);
//	xmtp_conversation_send(conversation, (uint8_t*)"hi", 2, NULL);
//
//	// Cleanup
//	xmtp_conversation_free(conversation);
//	xmtp_client_free(client);
//
// # Error Handling
//
// Fallible functions return an int32 status: 0 success, -1 operation failed,
// -2 panic caught at the boundary, -3 invalid input. On failure the message
// for the calling thread is available through xmtp_last_error_length and
// xmtp_last_error_message; the next failing call on the same thread
// overwrites it, and succeeding calls leave it untouched, so the message is
// only meaningful right after a non-success status. xmtp_last_error_message
// truncates to fit the buffer and always NUL-terminates;
// xmtp_last_error_length excludes the terminator, so allocate length + 1.
// Accessors signal failure with a sentinel (NULL, -1) plus the error channel.
//
// # Callback Bridging
//
// Stream functions accept C function pointers plus a user_data pointer that
// is passed through unchanged. Callbacks for one stream are invoked
// sequentially, in event order, from a dedicated Go goroutine; independent
// streams deliver concurrently. Conversation and message callbacks receive
// owned handles the receiver must free with xmtp_conversation_free or
// xmtp_message_free. Consent batches, preference batches, deletion IDs, and
// close reasons are borrowed and freed by the library when the callback
// returns; copy anything you keep.
//
// # Memory Management
//
// Strings and byte buffers returned by accessors are copies owned by the
// caller; release them with xmtp_string_free and xmtp_bytes_free. Handles
// are released by exactly one matching *_free function. Freeing a handle
// twice fails with status -3 rather than corrupting memory.
//
// # Files
//
//   - xmtp_c.go: exported xmtp_* functions
//   - callbacks.go: C function pointer bridges
//   - xmtp_types.h: shared C typedefs for callbacks and records
//   - doc.go: This documentation file
package main
