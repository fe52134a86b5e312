package main

/*
#include <stdlib.h>
#include "xmtp_types.h"
*/
import "C"

import (
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/xmtpcore/ffi"
)

func main() {} // Required for c-shared build mode

// Helper conversions between C and Go representations.

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func goBytes(p *C.uint8_t, n C.size_t) []byte {
	if p == nil || n == 0 {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(p), C.int(n))
}

func goStringArray(arr **C.char, count C.size_t) []string {
	if arr == nil || count == 0 {
		return nil
	}
	out := make([]string, int(count))
	for i, s := range unsafe.Slice(arr, int(count)) {
		out[i] = C.GoString(s)
	}
	return out
}

// cOwnedBytes copies b into C memory and stores its length in outLen. The
// caller owns the result and frees it with xmtp_bytes_free.
func cOwnedBytes(b []byte, outLen *C.size_t) *C.uint8_t {
	if outLen != nil {
		*outLen = C.size_t(len(b))
	}
	if len(b) == 0 {
		return nil
	}
	return (*C.uint8_t)(C.CBytes(b))
}

//export xmtp_init_logger
func xmtp_init_logger(level *C.char) {
	parsed, err := logrus.ParseLevel(goString(level))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "xmtp_init_logger",
			"level":    goString(level),
		}).Warn("Unknown log level, keeping current")
		return
	}
	logrus.SetLevel(parsed)
}

//export xmtp_version
func xmtp_version() *C.char {
	return C.CString(ffi.LibraryVersion())
}

//export xmtp_generate_inbox_id
func xmtp_generate_inbox_id(accountIdentifier *C.char, nonce C.uint64_t) *C.char {
	return C.CString(ffi.GenerateInboxID(goString(accountIdentifier), uint64(nonce)))
}

//export xmtp_string_free
func xmtp_string_free(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

//export xmtp_bytes_free
func xmtp_bytes_free(p *C.uint8_t) {
	if p != nil {
		C.free(unsafe.Pointer(p))
	}
}

// xmtp_last_error_length returns the message length in bytes excluding the
// NUL terminator; a full copy needs that length plus one.
//
//export xmtp_last_error_length
func xmtp_last_error_length() C.int32_t {
	return C.int32_t(ffi.LastErrorLength())
}

// copyErrorMessage copies the calling thread's error message into dst,
// truncated to fit, always NUL-terminated. Returns the number of message
// bytes copied, or -1 when dst cannot hold even the terminator.
func copyErrorMessage(dst []byte) int {
	if len(dst) == 0 {
		return -1
	}
	n := copy(dst[:len(dst)-1], ffi.LastErrorMessage())
	dst[n] = 0
	return n
}

//export xmtp_last_error_message
func xmtp_last_error_message(buf *C.char, bufLen C.size_t) C.int32_t {
	if buf == nil {
		return -1
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(bufLen))
	return C.int32_t(copyErrorMessage(dst))
}

//export xmtp_active_handle_count
func xmtp_active_handle_count() C.int32_t {
	return C.int32_t(ffi.ActiveHandleCount())
}

// Client lifecycle and identity.

//export xmtp_client_create
func xmtp_client_create(host *C.char, isSecure C.bool, dbPath *C.char, encryptionKey *C.uint8_t, encryptionKeyLen C.size_t, inboxID *C.char, accountIdentifier *C.char, identifierKind C.int32_t, appVersion *C.char, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientCreate(&ffi.ClientOptions{
		Host:              goString(host),
		IsSecure:          bool(isSecure),
		DBPath:            goString(dbPath),
		EncryptionKey:     goBytes(encryptionKey, encryptionKeyLen),
		InboxID:           goString(inboxID),
		AccountIdentifier: goString(accountIdentifier),
		IdentifierKind:    int32(identifierKind),
		AppVersion:        goString(appVersion),
	}, out))
}

//export xmtp_client_free
func xmtp_client_free(client unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientFree(client))
}

//export xmtp_client_inbox_id
func xmtp_client_inbox_id(client unsafe.Pointer) *C.char {
	id := ffi.ClientInboxID(client)
	if id == "" {
		return nil
	}
	return C.CString(id)
}

//export xmtp_client_installation_id
func xmtp_client_installation_id(client unsafe.Pointer, outLen *C.size_t) *C.uint8_t {
	return cOwnedBytes(ffi.ClientInstallationID(client), outLen)
}

//export xmtp_client_installation_id_hex
func xmtp_client_installation_id_hex(client unsafe.Pointer) *C.char {
	id := ffi.ClientInstallationIDHex(client)
	if id == "" {
		return nil
	}
	return C.CString(id)
}

//export xmtp_client_is_registered
func xmtp_client_is_registered(client unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientIsRegistered(client))
}

//export xmtp_client_register_identity
func xmtp_client_register_identity(client unsafe.Pointer, signature *C.uint8_t, signatureLen C.size_t) C.int32_t {
	return C.int32_t(ffi.ClientRegisterIdentity(client, goBytes(signature, signatureLen)))
}

//export xmtp_client_can_message
func xmtp_client_can_message(client unsafe.Pointer, identifiers **C.char, count C.size_t, results *C.int32_t) C.int32_t {
	ids := goStringArray(identifiers, count)
	if results == nil {
		return C.int32_t(ffi.ClientCanMessage(client, ids, nil))
	}
	out := make([]int32, len(ids))
	st := ffi.ClientCanMessage(client, ids, out)
	if st == ffi.StatusOK {
		dst := unsafe.Slice(results, len(ids))
		for i, v := range out {
			dst[i] = C.int32_t(v)
		}
	}
	return C.int32_t(st)
}

//export xmtp_client_sign_with_installation_key
func xmtp_client_sign_with_installation_key(client unsafe.Pointer, text *C.char, outLen *C.size_t) *C.uint8_t {
	return cOwnedBytes(ffi.ClientSignWithInstallationKey(client, goString(text)), outLen)
}

//export xmtp_client_verify_signed_with_installation_key
func xmtp_client_verify_signed_with_installation_key(client unsafe.Pointer, text *C.char, signature *C.uint8_t, signatureLen C.size_t) C.int32_t {
	return C.int32_t(ffi.ClientVerifySignedWithInstallationKey(client, goString(text), goBytes(signature, signatureLen)))
}

//export xmtp_client_set_consent_states
func xmtp_client_set_consent_states(client unsafe.Pointer, records *C.xmtp_consent_record_t, count C.size_t) C.int32_t {
	var batch []ffi.ConsentRecord
	if records != nil && count > 0 {
		entries := unsafe.Slice(records, int(count))
		batch = make([]ffi.ConsentRecord, len(entries))
		for i, e := range entries {
			batch[i] = ffi.ConsentRecord{
				EntityType: int32(e.entity_type),
				State:      int32(e.state),
				Entity:     goString(e.entity),
			}
		}
	}
	return C.int32_t(ffi.ClientSetConsentStates(client, batch))
}

//export xmtp_client_get_consent_state
func xmtp_client_get_consent_state(client unsafe.Pointer, entityType C.int32_t, entity *C.char, out *C.int32_t) C.int32_t {
	var state int32
	st := ffi.ClientGetConsentState(client, int32(entityType), goString(entity), &state)
	if st == ffi.StatusOK && out != nil {
		*out = C.int32_t(state)
	}
	return C.int32_t(st)
}

//export xmtp_client_message_by_id
func xmtp_client_message_by_id(client unsafe.Pointer, messageID *C.char, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientMessageByID(client, goString(messageID), out))
}

//export xmtp_client_delete_message_by_id
func xmtp_client_delete_message_by_id(client unsafe.Pointer, messageID *C.char, outDeleted *C.int32_t) C.int32_t {
	var deleted int32
	st := ffi.ClientDeleteMessageByID(client, goString(messageID), &deleted)
	if st == ffi.StatusOK && outDeleted != nil {
		*outDeleted = C.int32_t(deleted)
	}
	return C.int32_t(st)
}

//export xmtp_client_sync_welcomes
func xmtp_client_sync_welcomes(client unsafe.Pointer, outNew *C.int32_t) C.int32_t {
	var n int32
	st := ffi.ClientSyncWelcomes(client, &n)
	if st == ffi.StatusOK && outNew != nil {
		*outNew = C.int32_t(n)
	}
	return C.int32_t(st)
}

//export xmtp_client_sync_all
func xmtp_client_sync_all(client unsafe.Pointer, outConversations *C.int32_t, outMessages *C.int32_t) C.int32_t {
	var convs, msgs int32
	st := ffi.ClientSyncAll(client, &convs, &msgs)
	if st == ffi.StatusOK {
		if outConversations != nil {
			*outConversations = C.int32_t(convs)
		}
		if outMessages != nil {
			*outMessages = C.int32_t(msgs)
		}
	}
	return C.int32_t(st)
}

// Conversation creation and lookup.

//export xmtp_client_create_group
func xmtp_client_create_group(client unsafe.Pointer, memberInboxIDs **C.char, memberCount C.size_t, name *C.char, description *C.char, imageURL *C.char, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientCreateGroup(client, goStringArray(memberInboxIDs, memberCount), &ffi.GroupOptions{
		Name:        goString(name),
		Description: goString(description),
		ImageURL:    goString(imageURL),
	}, out))
}

//export xmtp_client_create_dm
func xmtp_client_create_dm(client unsafe.Pointer, peerInboxID *C.char, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientCreateDM(client, goString(peerInboxID), out))
}

//export xmtp_client_find_dm_by_inbox_id
func xmtp_client_find_dm_by_inbox_id(client unsafe.Pointer, peerInboxID *C.char, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientFindDMByInboxID(client, goString(peerInboxID), out))
}

//export xmtp_client_conversation_by_id
func xmtp_client_conversation_by_id(client unsafe.Pointer, conversationID *C.char, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientConversationByID(client, goString(conversationID), out))
}

//export xmtp_client_list_conversations
func xmtp_client_list_conversations(client unsafe.Pointer, conversationType C.int32_t, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientListConversations(client, int32(conversationType), out))
}

//export xmtp_conversation_list_len
func xmtp_conversation_list_len(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ConversationListLen(list))
}

//export xmtp_conversation_list_get
func xmtp_conversation_list_get(list unsafe.Pointer, index C.int32_t, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ConversationListGet(list, int32(index), out))
}

//export xmtp_conversation_list_free
func xmtp_conversation_list_free(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ConversationListFree(list))
}

// Conversation accessors and operations.

//export xmtp_conversation_free
func xmtp_conversation_free(conversation unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ConversationFree(conversation))
}

//export xmtp_conversation_id
func xmtp_conversation_id(conversation unsafe.Pointer) *C.char {
	id := ffi.ConversationID(conversation)
	if id == "" {
		return nil
	}
	return C.CString(id)
}

//export xmtp_conversation_created_at_ns
func xmtp_conversation_created_at_ns(conversation unsafe.Pointer) C.int64_t {
	return C.int64_t(ffi.ConversationCreatedAtNs(conversation))
}

//export xmtp_conversation_type
func xmtp_conversation_type(conversation unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ConversationType(conversation))
}

//export xmtp_conversation_dm_peer_inbox_id
func xmtp_conversation_dm_peer_inbox_id(conversation unsafe.Pointer) *C.char {
	return C.CString(ffi.ConversationDMPeerInboxID(conversation))
}

//export xmtp_conversation_added_by_inbox_id
func xmtp_conversation_added_by_inbox_id(conversation unsafe.Pointer) *C.char {
	return C.CString(ffi.ConversationAddedByInboxID(conversation))
}

//export xmtp_conversation_is_active
func xmtp_conversation_is_active(conversation unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ConversationIsActive(conversation))
}

//export xmtp_conversation_name
func xmtp_conversation_name(conversation unsafe.Pointer) *C.char {
	return C.CString(ffi.ConversationName(conversation))
}

//export xmtp_conversation_description
func xmtp_conversation_description(conversation unsafe.Pointer) *C.char {
	return C.CString(ffi.ConversationDescription(conversation))
}

//export xmtp_conversation_image_url
func xmtp_conversation_image_url(conversation unsafe.Pointer) *C.char {
	return C.CString(ffi.ConversationImageURL(conversation))
}

//export xmtp_conversation_update_name
func xmtp_conversation_update_name(conversation unsafe.Pointer, name *C.char) C.int32_t {
	return C.int32_t(ffi.ConversationUpdateName(conversation, goString(name)))
}

//export xmtp_conversation_update_description
func xmtp_conversation_update_description(conversation unsafe.Pointer, description *C.char) C.int32_t {
	return C.int32_t(ffi.ConversationUpdateDescription(conversation, goString(description)))
}

//export xmtp_conversation_update_image_url
func xmtp_conversation_update_image_url(conversation unsafe.Pointer, imageURL *C.char) C.int32_t {
	return C.int32_t(ffi.ConversationUpdateImageURL(conversation, goString(imageURL)))
}

//export xmtp_conversation_send
func xmtp_conversation_send(conversation unsafe.Pointer, content *C.uint8_t, contentLen C.size_t, outMessageID **C.char) C.int32_t {
	var id string
	st := ffi.ConversationSend(conversation, goBytes(content, contentLen), &id)
	if st == ffi.StatusOK && outMessageID != nil {
		*outMessageID = C.CString(id)
	}
	return C.int32_t(st)
}

//export xmtp_conversation_sync
func xmtp_conversation_sync(conversation unsafe.Pointer, outNew *C.int32_t) C.int32_t {
	var n int32
	st := ffi.ConversationSync(conversation, &n)
	if st == ffi.StatusOK && outNew != nil {
		*outNew = C.int32_t(n)
	}
	return C.int32_t(st)
}

//export xmtp_conversation_list_messages
func xmtp_conversation_list_messages(conversation unsafe.Pointer, sentAfterNs C.int64_t, sentBeforeNs C.int64_t, limit C.int32_t, descending C.bool, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ConversationListMessages(conversation, &ffi.ListMessagesOptions{
		SentAfterNs:  int64(sentAfterNs),
		SentBeforeNs: int64(sentBeforeNs),
		Limit:        int32(limit),
		Descending:   bool(descending),
	}, out))
}

//export xmtp_conversation_add_members
func xmtp_conversation_add_members(conversation unsafe.Pointer, inboxIDs **C.char, count C.size_t) C.int32_t {
	return C.int32_t(ffi.ConversationAddMembers(conversation, goStringArray(inboxIDs, count)))
}

//export xmtp_conversation_remove_members
func xmtp_conversation_remove_members(conversation unsafe.Pointer, inboxIDs **C.char, count C.size_t) C.int32_t {
	return C.int32_t(ffi.ConversationRemoveMembers(conversation, goStringArray(inboxIDs, count)))
}

//export xmtp_conversation_members
func xmtp_conversation_members(conversation unsafe.Pointer, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ConversationMembers(conversation, out))
}

//export xmtp_member_list_len
func xmtp_member_list_len(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.MemberListLen(list))
}

//export xmtp_member_list_inbox_id
func xmtp_member_list_inbox_id(list unsafe.Pointer, index C.int32_t) *C.char {
	id := ffi.MemberListInboxID(list, int32(index))
	if id == "" {
		return nil
	}
	return C.CString(id)
}

//export xmtp_member_list_account_identifier
func xmtp_member_list_account_identifier(list unsafe.Pointer, index C.int32_t) *C.char {
	return C.CString(ffi.MemberListAccountIdentifier(list, int32(index)))
}

//export xmtp_member_list_permission_level
func xmtp_member_list_permission_level(list unsafe.Pointer, index C.int32_t) C.int32_t {
	return C.int32_t(ffi.MemberListPermissionLevel(list, int32(index)))
}

//export xmtp_member_list_consent_state
func xmtp_member_list_consent_state(list unsafe.Pointer, index C.int32_t) C.int32_t {
	return C.int32_t(ffi.MemberListConsentState(list, int32(index)))
}

//export xmtp_member_list_free
func xmtp_member_list_free(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.MemberListFree(list))
}

//export xmtp_conversation_is_admin
func xmtp_conversation_is_admin(conversation unsafe.Pointer, inboxID *C.char) C.int32_t {
	return C.int32_t(ffi.ConversationIsAdmin(conversation, goString(inboxID)))
}

//export xmtp_conversation_is_super_admin
func xmtp_conversation_is_super_admin(conversation unsafe.Pointer, inboxID *C.char) C.int32_t {
	return C.int32_t(ffi.ConversationIsSuperAdmin(conversation, goString(inboxID)))
}

//export xmtp_conversation_update_admin_list
func xmtp_conversation_update_admin_list(conversation unsafe.Pointer, inboxID *C.char, action C.int32_t) C.int32_t {
	return C.int32_t(ffi.ConversationUpdateAdminList(conversation, goString(inboxID), int32(action)))
}

//export xmtp_conversation_consent_state
func xmtp_conversation_consent_state(conversation unsafe.Pointer, out *C.int32_t) C.int32_t {
	var state int32
	st := ffi.ConversationConsentState(conversation, &state)
	if st == ffi.StatusOK && out != nil {
		*out = C.int32_t(state)
	}
	return C.int32_t(st)
}

//export xmtp_conversation_update_consent_state
func xmtp_conversation_update_consent_state(conversation unsafe.Pointer, state C.int32_t) C.int32_t {
	return C.int32_t(ffi.ConversationUpdateConsentState(conversation, int32(state)))
}

// Message list and message accessors.

//export xmtp_message_list_len
func xmtp_message_list_len(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.MessageListLen(list))
}

//export xmtp_message_list_get
func xmtp_message_list_get(list unsafe.Pointer, index C.int32_t, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.MessageListGet(list, int32(index), out))
}

//export xmtp_message_list_free
func xmtp_message_list_free(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.MessageListFree(list))
}

//export xmtp_message_free
func xmtp_message_free(message unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.MessageFree(message))
}

//export xmtp_message_id
func xmtp_message_id(message unsafe.Pointer) *C.char {
	id := ffi.MessageID(message)
	if id == "" {
		return nil
	}
	return C.CString(id)
}

//export xmtp_message_conversation_id
func xmtp_message_conversation_id(message unsafe.Pointer) *C.char {
	return C.CString(ffi.MessageConversationID(message))
}

//export xmtp_message_sender_inbox_id
func xmtp_message_sender_inbox_id(message unsafe.Pointer) *C.char {
	return C.CString(ffi.MessageSenderInboxID(message))
}

//export xmtp_message_sent_at_ns
func xmtp_message_sent_at_ns(message unsafe.Pointer) C.int64_t {
	return C.int64_t(ffi.MessageSentAtNs(message))
}

//export xmtp_message_kind
func xmtp_message_kind(message unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.MessageKind(message))
}

//export xmtp_message_delivery_status
func xmtp_message_delivery_status(message unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.MessageDeliveryStatus(message))
}

//export xmtp_message_content
func xmtp_message_content(message unsafe.Pointer, outLen *C.size_t) *C.uint8_t {
	return cOwnedBytes(ffi.MessageContent(message), outLen)
}

// Streams.

//export xmtp_client_stream_conversations
func xmtp_client_stream_conversations(client unsafe.Pointer, conversationType C.int32_t, callback C.xmtp_conversation_callback_t, onClose C.xmtp_stream_closed_callback_t, userData unsafe.Pointer, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientStreamConversations(client, int32(conversationType),
		conversationCallback(callback, userData), closeCallback(onClose, userData), out))
}

//export xmtp_client_stream_all_messages
func xmtp_client_stream_all_messages(client unsafe.Pointer, conversationType C.int32_t, callback C.xmtp_message_callback_t, onClose C.xmtp_stream_closed_callback_t, userData unsafe.Pointer, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientStreamAllMessages(client, int32(conversationType),
		messageCallback(callback, userData), closeCallback(onClose, userData), out))
}

//export xmtp_conversation_stream_messages
func xmtp_conversation_stream_messages(conversation unsafe.Pointer, callback C.xmtp_message_callback_t, onClose C.xmtp_stream_closed_callback_t, userData unsafe.Pointer, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ConversationStreamMessages(conversation,
		messageCallback(callback, userData), closeCallback(onClose, userData), out))
}

//export xmtp_client_stream_consent
func xmtp_client_stream_consent(client unsafe.Pointer, callback C.xmtp_consent_callback_t, onClose C.xmtp_stream_closed_callback_t, userData unsafe.Pointer, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientStreamConsent(client,
		consentCallback(callback, userData), closeCallback(onClose, userData), out))
}

//export xmtp_client_stream_preferences
func xmtp_client_stream_preferences(client unsafe.Pointer, callback C.xmtp_preference_callback_t, onClose C.xmtp_stream_closed_callback_t, userData unsafe.Pointer, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientStreamPreferences(client,
		preferenceCallback(callback, userData), closeCallback(onClose, userData), out))
}

//export xmtp_client_stream_deletions
func xmtp_client_stream_deletions(client unsafe.Pointer, callback C.xmtp_deletion_callback_t, onClose C.xmtp_stream_closed_callback_t, userData unsafe.Pointer, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientStreamDeletions(client,
		deletionCallback(callback, userData), closeCallback(onClose, userData), out))
}

//export xmtp_stream_stop
func xmtp_stream_stop(stream unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.StreamStop(stream))
}

//export xmtp_stream_is_closed
func xmtp_stream_is_closed(stream unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.StreamIsClosed(stream))
}

//export xmtp_stream_free
func xmtp_stream_free(stream unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.StreamFree(stream))
}

// Device sync: archive export, import, sync requests, and remote archives.

func goArchiveOptions(opts *C.xmtp_archive_options_t) *ffi.ArchiveOptions {
	if opts == nil {
		return nil
	}
	return &ffi.ArchiveOptions{
		Elements: int32(opts.elements),
		StartNs:  int64(opts.start_ns),
		EndNs:    int64(opts.end_ns),
	}
}

//export xmtp_client_create_archive
func xmtp_client_create_archive(client unsafe.Pointer, path *C.char, opts *C.xmtp_archive_options_t, key *C.uint8_t, keyLen C.size_t) C.int32_t {
	return C.int32_t(ffi.ClientCreateArchive(client, goString(path), goArchiveOptions(opts), goBytes(key, keyLen)))
}

//export xmtp_client_import_archive
func xmtp_client_import_archive(client unsafe.Pointer, path *C.char, key *C.uint8_t, keyLen C.size_t) C.int32_t {
	return C.int32_t(ffi.ClientImportArchive(client, goString(path), goBytes(key, keyLen)))
}

//export xmtp_archive_metadata
func xmtp_archive_metadata(path *C.char, key *C.uint8_t, keyLen C.size_t, out *C.xmtp_archive_metadata_t) C.int32_t {
	var meta ffi.ArchiveMetadata
	st := ffi.ArchiveMetadataFromFile(goString(path), goBytes(key, keyLen), &meta)
	if st == ffi.StatusOK && out != nil {
		out.version = C.int32_t(meta.Version)
		out.exported_at_ns = C.int64_t(meta.ExportedAtNs)
		out.elements = C.int32_t(meta.Elements)
		out.start_ns = C.int64_t(meta.StartNs)
		out.end_ns = C.int64_t(meta.EndNs)
	}
	return C.int32_t(st)
}

//export xmtp_client_send_sync_request
func xmtp_client_send_sync_request(client unsafe.Pointer, opts *C.xmtp_archive_options_t) C.int32_t {
	return C.int32_t(ffi.ClientSendSyncRequest(client, goArchiveOptions(opts)))
}

//export xmtp_client_send_archive
func xmtp_client_send_archive(client unsafe.Pointer, opts *C.xmtp_archive_options_t, pin *C.char) C.int32_t {
	return C.int32_t(ffi.ClientSendArchive(client, goArchiveOptions(opts), goString(pin)))
}

//export xmtp_client_process_archive
func xmtp_client_process_archive(client unsafe.Pointer, pin *C.char) C.int32_t {
	return C.int32_t(ffi.ClientProcessArchive(client, goString(pin)))
}

//export xmtp_client_list_available_archives
func xmtp_client_list_available_archives(client unsafe.Pointer, daysCutoff C.int64_t, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientListAvailableArchives(client, int64(daysCutoff), out))
}

//export xmtp_available_archive_list_len
func xmtp_available_archive_list_len(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.AvailableArchiveListLen(list))
}

//export xmtp_available_archive_pin
func xmtp_available_archive_pin(list unsafe.Pointer, index C.int32_t) *C.char {
	pin := ffi.AvailableArchivePin(list, int32(index))
	if pin == "" {
		return nil
	}
	return C.CString(pin)
}

//export xmtp_available_archive_exported_at_ns
func xmtp_available_archive_exported_at_ns(list unsafe.Pointer, index C.int32_t) C.int64_t {
	return C.int64_t(ffi.AvailableArchiveExportedAtNs(list, int32(index)))
}

//export xmtp_available_archive_sent_by
func xmtp_available_archive_sent_by(list unsafe.Pointer, index C.int32_t, outLen *C.size_t) *C.uint8_t {
	return cOwnedBytes(ffi.AvailableArchiveSentBy(list, int32(index)), outLen)
}

//export xmtp_available_archive_list_free
func xmtp_available_archive_list_free(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.AvailableArchiveListFree(list))
}

// Inbox state queries.

//export xmtp_client_inbox_state
func xmtp_client_inbox_state(client unsafe.Pointer, refresh C.int32_t, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientInboxState(client, refresh != 0, out))
}

//export xmtp_client_fetch_inbox_states
func xmtp_client_fetch_inbox_states(client unsafe.Pointer, inboxIDs **C.char, count C.size_t, out *unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.ClientFetchInboxStates(client, goStringArray(inboxIDs, count), out))
}

//export xmtp_inbox_state_list_len
func xmtp_inbox_state_list_len(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.InboxStateListLen(list))
}

//export xmtp_inbox_state_inbox_id
func xmtp_inbox_state_inbox_id(list unsafe.Pointer, index C.int32_t) *C.char {
	id := ffi.InboxStateInboxID(list, int32(index))
	if id == "" {
		return nil
	}
	return C.CString(id)
}

//export xmtp_inbox_state_recovery_identifier
func xmtp_inbox_state_recovery_identifier(list unsafe.Pointer, index C.int32_t) *C.char {
	id := ffi.InboxStateRecoveryIdentifier(list, int32(index))
	if id == "" {
		return nil
	}
	return C.CString(id)
}

//export xmtp_inbox_state_identifier_count
func xmtp_inbox_state_identifier_count(list unsafe.Pointer, index C.int32_t) C.int32_t {
	return C.int32_t(ffi.InboxStateIdentifierCount(list, int32(index)))
}

//export xmtp_inbox_state_identifier_at
func xmtp_inbox_state_identifier_at(list unsafe.Pointer, index C.int32_t, identifierIndex C.int32_t) *C.char {
	id := ffi.InboxStateIdentifierAt(list, int32(index), int32(identifierIndex))
	if id == "" {
		return nil
	}
	return C.CString(id)
}

//export xmtp_inbox_state_installation_count
func xmtp_inbox_state_installation_count(list unsafe.Pointer, index C.int32_t) C.int32_t {
	return C.int32_t(ffi.InboxStateInstallationCount(list, int32(index)))
}

//export xmtp_inbox_state_installation_at
func xmtp_inbox_state_installation_at(list unsafe.Pointer, index C.int32_t, installationIndex C.int32_t) *C.char {
	id := ffi.InboxStateInstallationAt(list, int32(index), int32(installationIndex))
	if id == "" {
		return nil
	}
	return C.CString(id)
}

//export xmtp_inbox_state_list_free
func xmtp_inbox_state_list_free(list unsafe.Pointer) C.int32_t {
	return C.int32_t(ffi.InboxStateListFree(list))
}
