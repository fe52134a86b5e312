package main

/*
#include <stdlib.h>
#include "xmtp_types.h"

// cgo cannot call C function pointers directly, so each callback type gets a
// static bridge.

static void xmtp_invoke_conversation_callback(xmtp_conversation_callback_t cb, void* conversation, void* user_data) {
	cb(conversation, user_data);
}

static void xmtp_invoke_message_callback(xmtp_message_callback_t cb, void* message, void* user_data) {
	cb(message, user_data);
}

static void xmtp_invoke_consent_callback(xmtp_consent_callback_t cb, const xmtp_consent_record_t* records, size_t count, void* user_data) {
	cb(records, count, user_data);
}

static void xmtp_invoke_preference_callback(xmtp_preference_callback_t cb, const xmtp_preference_update_t* updates, size_t count, void* user_data) {
	cb(updates, count, user_data);
}

static void xmtp_invoke_deletion_callback(xmtp_deletion_callback_t cb, const char* message_id, void* user_data) {
	cb(message_id, user_data);
}

static void xmtp_invoke_stream_closed_callback(xmtp_stream_closed_callback_t cb, const char* error, void* user_data) {
	cb(error, user_data);
}
*/
import "C"

import (
	"unsafe"

	"github.com/opd-ai/xmtpcore/ffi"
)

// conversationCallback binds a C conversation callback and its user data into
// a Go closure the boundary layer can invoke.
func conversationCallback(cb C.xmtp_conversation_callback_t, userData unsafe.Pointer) ffi.ConversationCallback {
	if cb == nil {
		return nil
	}
	return func(conversation unsafe.Pointer) {
		C.xmtp_invoke_conversation_callback(cb, conversation, userData)
	}
}

func messageCallback(cb C.xmtp_message_callback_t, userData unsafe.Pointer) ffi.MessageCallback {
	if cb == nil {
		return nil
	}
	return func(message unsafe.Pointer) {
		C.xmtp_invoke_message_callback(cb, message, userData)
	}
}

// consentCallback marshals each batch into C memory for the duration of the
// call and releases it afterwards; the receiver must copy what it keeps.
func consentCallback(cb C.xmtp_consent_callback_t, userData unsafe.Pointer) ffi.ConsentCallback {
	if cb == nil {
		return nil
	}
	return func(records []ffi.ConsentRecord) {
		arr, cleanup := consentRecordsToC(records)
		defer cleanup()
		C.xmtp_invoke_consent_callback(cb, arr, C.size_t(len(records)), userData)
	}
}

func preferenceCallback(cb C.xmtp_preference_callback_t, userData unsafe.Pointer) ffi.PreferenceCallback {
	if cb == nil {
		return nil
	}
	return func(updates []ffi.PreferenceUpdate) {
		arr, cleanup := preferenceUpdatesToC(updates)
		defer cleanup()
		C.xmtp_invoke_preference_callback(cb, arr, C.size_t(len(updates)), userData)
	}
}

func deletionCallback(cb C.xmtp_deletion_callback_t, userData unsafe.Pointer) ffi.DeletionCallback {
	if cb == nil {
		return nil
	}
	return func(messageID string) {
		id := C.CString(messageID)
		defer C.free(unsafe.Pointer(id))
		C.xmtp_invoke_deletion_callback(cb, id, userData)
	}
}

// closeCallback passes NULL for a normal close and the failure reason for an
// abnormal one.
func closeCallback(cb C.xmtp_stream_closed_callback_t, userData unsafe.Pointer) ffi.CloseCallback {
	if cb == nil {
		return nil
	}
	return func(reason string) {
		var cReason *C.char
		if reason != "" {
			cReason = C.CString(reason)
			defer C.free(unsafe.Pointer(cReason))
		}
		C.xmtp_invoke_stream_closed_callback(cb, cReason, userData)
	}
}

func consentRecordsToC(records []ffi.ConsentRecord) (*C.xmtp_consent_record_t, func()) {
	if len(records) == 0 {
		return nil, func() {}
	}
	arr := (*C.xmtp_consent_record_t)(C.malloc(C.size_t(len(records)) * C.size_t(unsafe.Sizeof(C.xmtp_consent_record_t{}))))
	entries := unsafe.Slice(arr, len(records))
	for i, r := range records {
		entries[i].entity_type = C.int32_t(r.EntityType)
		entries[i].state = C.int32_t(r.State)
		entries[i].entity = C.CString(r.Entity)
	}
	return arr, func() {
		for i := range entries {
			C.free(unsafe.Pointer(entries[i].entity))
		}
		C.free(unsafe.Pointer(arr))
	}
}

func preferenceUpdatesToC(updates []ffi.PreferenceUpdate) (*C.xmtp_preference_update_t, func()) {
	if len(updates) == 0 {
		return nil, func() {}
	}
	arr := (*C.xmtp_preference_update_t)(C.malloc(C.size_t(len(updates)) * C.size_t(unsafe.Sizeof(C.xmtp_preference_update_t{}))))
	entries := unsafe.Slice(arr, len(updates))
	for i, u := range updates {
		entries[i].kind = C.int32_t(u.Kind)
		entries[i].consent.entity_type = C.int32_t(u.Consent.EntityType)
		entries[i].consent.state = C.int32_t(u.Consent.State)
		entries[i].consent.entity = C.CString(u.Consent.Entity)
		if len(u.HmacKey) > 0 {
			entries[i].hmac_key = (*C.uint8_t)(C.CBytes(u.HmacKey))
			entries[i].hmac_key_len = C.size_t(len(u.HmacKey))
		} else {
			entries[i].hmac_key = nil
			entries[i].hmac_key_len = 0
		}
	}
	return arr, func() {
		for i := range entries {
			C.free(unsafe.Pointer(entries[i].consent.entity))
			if entries[i].hmac_key != nil {
				C.free(unsafe.Pointer(entries[i].hmac_key))
			}
		}
		C.free(unsafe.Pointer(arr))
	}
}
