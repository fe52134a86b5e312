package xmtpcore

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/opd-ai/xmtpcore/ffi"
)

// Conversation is a managed handle to one group or DM. All methods are safe
// for concurrent use. Close is idempotent; an unclosed conversation is
// reclaimed by its finalizer.
type Conversation struct {
	mu     sync.Mutex
	handle unsafe.Pointer
	closed bool
	client *Client
}

func newConversation(client *Client, handle unsafe.Pointer) *Conversation {
	conv := &Conversation{handle: handle, client: client}
	runtime.SetFinalizer(conv, func(conv *Conversation) { conv.Close() })
	return conv
}

func (conv *Conversation) raw() (unsafe.Pointer, error) {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.closed {
		return nil, errClosed("conversation")
	}
	return conv.handle, nil
}

// Close releases the conversation handle. The conversation itself persists
// and can be looked up again through the client.
func (conv *Conversation) Close() error {
	conv.mu.Lock()
	if conv.closed {
		conv.mu.Unlock()
		return nil
	}
	conv.closed = true
	handle := conv.handle
	conv.mu.Unlock()

	runtime.SetFinalizer(conv, nil)
	defer pinThread()()
	return statusError(ffi.ConversationFree(handle))
}

// ID returns the conversation ID.
func (conv *Conversation) ID() (string, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return "", err
	}
	id := ffi.ConversationID(h)
	if id == "" {
		return "", lastError(CategoryOperational, "no conversation ID")
	}
	return id, nil
}

// CreatedAtNs returns the creation timestamp in nanoseconds.
func (conv *Conversation) CreatedAtNs() (int64, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return 0, err
	}
	ns := ffi.ConversationCreatedAtNs(h)
	if ns < 0 {
		return 0, lastError(CategoryOperational, "no creation timestamp")
	}
	return ns, nil
}

// Type reports whether this is a DM, group, or sync conversation.
func (conv *Conversation) Type() (ConversationType, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return 0, err
	}
	t := ffi.ConversationType(h)
	if t < 0 {
		return 0, lastError(CategoryOperational, "no conversation type")
	}
	return ConversationType(t), nil
}

// DMPeerInboxID returns the peer inbox of a DM. Fails for groups.
func (conv *Conversation) DMPeerInboxID() (string, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return "", err
	}
	peer := ffi.ConversationDMPeerInboxID(h)
	if peer == "" {
		return "", lastError(CategoryOperational, "no DM peer")
	}
	return peer, nil
}

// AddedByInboxID returns the inbox that added this installation.
func (conv *Conversation) AddedByInboxID() (string, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return "", err
	}
	added := ffi.ConversationAddedByInboxID(h)
	if added == "" {
		return "", lastError(CategoryOperational, "no adder recorded")
	}
	return added, nil
}

// IsActive reports whether this installation is still a member.
func (conv *Conversation) IsActive() (bool, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return false, err
	}
	switch ffi.ConversationIsActive(h) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, lastError(CategoryOperational, "activity check failed")
	}
}

// Name returns the group name. Empty for DMs and unnamed groups.
func (conv *Conversation) Name() (string, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return "", err
	}
	return ffi.ConversationName(h), nil
}

// Description returns the group description.
func (conv *Conversation) Description() (string, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return "", err
	}
	return ffi.ConversationDescription(h), nil
}

// ImageURL returns the group image URL.
func (conv *Conversation) ImageURL() (string, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return "", err
	}
	return ffi.ConversationImageURL(h), nil
}

// UpdateName renames the group and records a membership-change message.
func (conv *Conversation) UpdateName(name string) error {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ConversationUpdateName(h, name))
}

// UpdateDescription changes the group description.
func (conv *Conversation) UpdateDescription(description string) error {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ConversationUpdateDescription(h, description))
}

// UpdateImageURL changes the group image URL.
func (conv *Conversation) UpdateImageURL(url string) error {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ConversationUpdateImageURL(h, url))
}

// Send publishes content to the conversation. Returns the new message ID.
func (conv *Conversation) Send(content []byte) (string, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return "", err
	}
	var messageID string
	if err := statusError(ffi.ConversationSend(h, content, &messageID)); err != nil {
		return "", err
	}
	return messageID, nil
}

// Sync pulls this conversation's pending messages. Returns the number of new
// messages.
func (conv *Conversation) Sync() (int, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return 0, err
	}
	var n int32
	if err := statusError(ffi.ConversationSync(h, &n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Messages queries local message history per opts, oldest first by default.
func (conv *Conversation) Messages(opts ListMessagesOptions) ([]Message, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return nil, err
	}
	var listHandle unsafe.Pointer
	st := ffi.ConversationListMessages(h, &ffi.ListMessagesOptions{
		SentAfterNs:  opts.SentAfterNs,
		SentBeforeNs: opts.SentBeforeNs,
		Limit:        int32(opts.Limit),
		Descending:   opts.Descending,
	}, &listHandle)
	if err := statusError(st); err != nil {
		return nil, err
	}
	defer ffi.MessageListFree(listHandle)

	n := ffi.MessageListLen(listHandle)
	if n < 0 {
		return nil, lastError(CategoryOperational, "message list unavailable")
	}
	out := make([]Message, 0, n)
	for i := int32(0); i < n; i++ {
		var msgHandle unsafe.Pointer
		if err := statusError(ffi.MessageListGet(listHandle, i, &msgHandle)); err != nil {
			return nil, err
		}
		out = append(out, takeMessage(msgHandle))
	}
	return out, nil
}

// AddMembers invites inboxes to the group.
func (conv *Conversation) AddMembers(inboxIDs []string) error {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ConversationAddMembers(h, inboxIDs))
}

// RemoveMembers removes inboxes from the group. Requires admin standing
// except when leaving.
func (conv *Conversation) RemoveMembers(inboxIDs []string) error {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ConversationRemoveMembers(h, inboxIDs))
}

// Members returns the current membership.
func (conv *Conversation) Members() ([]Member, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return nil, err
	}
	var listHandle unsafe.Pointer
	if err := statusError(ffi.ConversationMembers(h, &listHandle)); err != nil {
		return nil, err
	}
	defer ffi.MemberListFree(listHandle)

	n := ffi.MemberListLen(listHandle)
	if n < 0 {
		return nil, lastError(CategoryOperational, "member list unavailable")
	}
	out := make([]Member, 0, n)
	for i := int32(0); i < n; i++ {
		out = append(out, Member{
			InboxID:           ffi.MemberListInboxID(listHandle, i),
			AccountIdentifier: ffi.MemberListAccountIdentifier(listHandle, i),
			PermissionLevel:   PermissionLevel(ffi.MemberListPermissionLevel(listHandle, i)),
			ConsentState:      ConsentState(ffi.MemberListConsentState(listHandle, i)),
		})
	}
	return out, nil
}

// Admins returns the inboxes with admin standing.
func (conv *Conversation) Admins() ([]string, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return nil, err
	}
	return ffi.ConversationAdmins(h), nil
}

// SuperAdmins returns the inboxes with super admin standing.
func (conv *Conversation) SuperAdmins() ([]string, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return nil, err
	}
	return ffi.ConversationSuperAdmins(h), nil
}

// IsAdmin reports whether inboxID holds admin standing. Super admin is a
// distinct standing and reports false here.
func (conv *Conversation) IsAdmin(inboxID string) (bool, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return false, err
	}
	switch ffi.ConversationIsAdmin(h, inboxID) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, lastError(CategoryOperational, "admin check failed")
	}
}

// IsSuperAdmin reports whether inboxID holds super admin standing.
func (conv *Conversation) IsSuperAdmin(inboxID string) (bool, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return false, err
	}
	switch ffi.ConversationIsSuperAdmin(h, inboxID) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, lastError(CategoryOperational, "super admin check failed")
	}
}

// UpdateAdminList promotes or demotes an inbox. Requires super admin
// standing.
func (conv *Conversation) UpdateAdminList(inboxID string, action AdminAction) error {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ConversationUpdateAdminList(h, inboxID, int32(action)))
}

// ConsentState returns this conversation's recorded consent state.
func (conv *Conversation) ConsentState() (ConsentState, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return ConsentStateUnknown, err
	}
	var state int32
	if err := statusError(ffi.ConversationConsentState(h, &state)); err != nil {
		return ConsentStateUnknown, err
	}
	return ConsentState(state), nil
}

// UpdateConsentState records a consent decision for this conversation.
func (conv *Conversation) UpdateConsentState(state ConsentState) error {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ConversationUpdateConsentState(h, int32(state)))
}

// Message is an immutable snapshot of one stored message.
type Message struct {
	ID             string
	ConversationID string
	SenderInboxID  string
	SentAtNs       int64
	Kind           MessageKind
	DeliveryStatus DeliveryStatus
	Content        []byte
}

// takeMessage copies a message handle's fields into a value and frees the
// handle.
func takeMessage(h unsafe.Pointer) Message {
	defer ffi.MessageFree(h)
	return Message{
		ID:             ffi.MessageID(h),
		ConversationID: ffi.MessageConversationID(h),
		SenderInboxID:  ffi.MessageSenderInboxID(h),
		SentAtNs:       ffi.MessageSentAtNs(h),
		Kind:           MessageKind(ffi.MessageKind(h)),
		DeliveryStatus: DeliveryStatus(ffi.MessageDeliveryStatus(h)),
		Content:        ffi.MessageContent(h),
	}
}
