package ffi

import (
	"context"
	"unsafe"

	"github.com/opd-ai/xmtpcore/mls"
)

// GroupOptions carries optional metadata for group creation across the
// boundary.
type GroupOptions struct {
	Name        string
	Description string
	ImageURL    string
}

// ListMessagesOptions filters and bounds a message query across the boundary.
// Zero values mean unbounded.
type ListMessagesOptions struct {
	SentAfterNs  int64
	SentBeforeNs int64
	Limit        int32
	Descending   bool
}

// ClientCreateGroup creates a group with the given members and stores an
// owned conversation handle in out.
func ClientCreateGroup(h unsafe.Pointer, memberInboxIDs []string, opts *GroupOptions, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	var groupOpts mls.GroupOptions
	if opts != nil {
		groupOpts = mls.GroupOptions{
			Name:        opts.Name,
			Description: opts.Description,
			ImageURL:    opts.ImageURL,
		}
	}
	return guardAsync(func(ctx context.Context) error {
		g, err := c.CreateGroup(memberInboxIDs, groupOpts)
		if err != nil {
			return err
		}
		*out = handles.put(kindConversation, g)
		return nil
	})
}

// ClientCreateDM creates or returns the DM with peerInboxID and stores an
// owned conversation handle in out.
func ClientCreateDM(h unsafe.Pointer, peerInboxID string, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guardAsync(func(ctx context.Context) error {
		g, err := c.CreateDM(peerInboxID)
		if err != nil {
			return err
		}
		*out = handles.put(kindConversation, g)
		return nil
	})
}

// ClientFindDMByInboxID looks up the DM with peerInboxID. On success out
// holds an owned conversation handle, or nil when no DM exists.
func ClientFindDMByInboxID(h unsafe.Pointer, peerInboxID string, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guard(func() error {
		*out = nil
		if g := c.FindDMByInboxID(peerInboxID); g != nil {
			*out = handles.put(kindConversation, g)
		}
		return nil
	})
}

// ClientConversationByID looks up a conversation by ID and stores an owned
// conversation handle in out. Unknown IDs fail with StatusFailure.
func ClientConversationByID(h unsafe.Pointer, conversationID string, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guard(func() error {
		g := c.ConversationByID(conversationID)
		if g == nil {
			return invalidf("unknown conversation %q", conversationID)
		}
		*out = handles.put(kindConversation, g)
		return nil
	})
}

// ClientListConversations lists conversations newest-first, filtered by
// conversationType (-1 for all), and stores an owned list handle in out.
func ClientListConversations(h unsafe.Pointer, conversationType int32, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guardAsync(func(ctx context.Context) error {
		groups := c.Conversations(mls.ConversationType(conversationType))
		*out = handles.put(kindConversationList, groups)
		return nil
	})
}

// ConversationListLen returns the number of entries in a conversation list,
// or -1 on error.
func ConversationListLen(h unsafe.Pointer) int32 {
	obj, err := handles.get(kindConversationList, h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return int32(len(obj.([]*mls.Group)))
}

// ConversationListGet stores an owned conversation handle for the entry at
// index in out.
func ConversationListGet(h unsafe.Pointer, index int32, out *unsafe.Pointer) int32 {
	obj, err := handles.get(kindConversationList, h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	groups := obj.([]*mls.Group)
	if index < 0 || int(index) >= len(groups) {
		return statusOf(invalidf("conversation list index %d out of range [0,%d)", index, len(groups)))
	}
	*out = handles.put(kindConversation, groups[index])
	return statusOf(nil)
}

// ConversationListFree releases a conversation list handle. Handles obtained
// through ConversationListGet stay valid.
func ConversationListFree(h unsafe.Pointer) int32 {
	_, err := handles.take(kindConversationList, h)
	return statusOf(err)
}

// ConversationFree releases a conversation handle.
func ConversationFree(h unsafe.Pointer) int32 {
	_, err := handles.take(kindConversation, h)
	return statusOf(err)
}

// ConversationID returns the conversation ID, or "" on error.
func ConversationID(h unsafe.Pointer) string {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return g.ID()
}

// ConversationCreatedAtNs returns the creation timestamp in nanoseconds, or
// -1 on error.
func ConversationCreatedAtNs(h unsafe.Pointer) int64 {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return g.CreatedAtNs()
}

// ConversationType returns the conversation type, or -1 on error.
func ConversationType(h unsafe.Pointer) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return int32(g.Type())
}

// ConversationDMPeerInboxID returns the peer inbox ID of a DM, or "" for
// groups and on error.
func ConversationDMPeerInboxID(h unsafe.Pointer) string {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return g.DMPeerInboxID()
}

// ConversationAddedByInboxID returns the inbox that added this client to the
// conversation, or "" on error.
func ConversationAddedByInboxID(h unsafe.Pointer) string {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return g.AddedByInboxID()
}

// ConversationIsActive reports membership as 1 or 0, or -1 on error.
func ConversationIsActive(h unsafe.Pointer) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return -1
	}
	if g.IsActive() {
		return 1
	}
	return 0
}

// ConversationName returns the group name, or "" on error.
func ConversationName(h unsafe.Pointer) string {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return g.Name()
}

// ConversationDescription returns the group description, or "" on error.
func ConversationDescription(h unsafe.Pointer) string {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return g.Description()
}

// ConversationImageURL returns the group image URL, or "" on error.
func ConversationImageURL(h unsafe.Pointer) string {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return g.ImageURL()
}

// ConversationUpdateName sets the group name.
func ConversationUpdateName(h unsafe.Pointer, name string) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return g.UpdateName(name)
	})
}

// ConversationUpdateDescription sets the group description.
func ConversationUpdateDescription(h unsafe.Pointer, description string) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return g.UpdateDescription(description)
	})
}

// ConversationUpdateImageURL sets the group image URL.
func ConversationUpdateImageURL(h unsafe.Pointer, url string) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return g.UpdateImageURL(url)
	})
}

// ConversationSend publishes content to the conversation. The new message ID
// lands in out.
func ConversationSend(h unsafe.Pointer, content []byte, out *string) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		id, err := g.Send(content)
		if err != nil {
			return err
		}
		if out != nil {
			*out = id
		}
		return nil
	})
}

// ConversationSync pulls new messages for this conversation from the
// backend. The number of new messages lands in out.
func ConversationSync(h unsafe.Pointer, out *int32) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		n, err := g.Sync()
		if err != nil {
			return err
		}
		if out != nil {
			*out = int32(n)
		}
		return nil
	})
}

// ConversationListMessages queries locally stored messages and stores an
// owned message list handle in out. opts may be nil for an unbounded,
// oldest-first query.
func ConversationListMessages(h unsafe.Pointer, opts *ListMessagesOptions, out *unsafe.Pointer) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	var query mls.ListMessagesOptions
	if opts != nil {
		query = mls.ListMessagesOptions{
			SentAfterNs:  opts.SentAfterNs,
			SentBeforeNs: opts.SentBeforeNs,
			Limit:        int(opts.Limit),
			Descending:   opts.Descending,
		}
	}
	return guardAsync(func(ctx context.Context) error {
		msgs := g.Messages(query)
		*out = handles.put(kindMessageList, msgs)
		return nil
	})
}

// ConversationAddMembers adds members by inbox ID and delivers welcomes.
func ConversationAddMembers(h unsafe.Pointer, inboxIDs []string) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return g.AddMembers(inboxIDs)
	})
}

// ConversationRemoveMembers removes members by inbox ID.
func ConversationRemoveMembers(h unsafe.Pointer, inboxIDs []string) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return g.RemoveMembers(inboxIDs)
	})
}

// ConversationMembers stores an owned member list handle in out.
func ConversationMembers(h unsafe.Pointer, out *unsafe.Pointer) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guard(func() error {
		*out = handles.put(kindMemberList, g.Members())
		return nil
	})
}

// MemberListLen returns the number of entries in a member list, or -1 on
// error.
func MemberListLen(h unsafe.Pointer) int32 {
	obj, err := handles.get(kindMemberList, h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return int32(len(obj.([]mls.GroupMember)))
}

// MemberListInboxID returns the inbox ID of the entry at index, or "" on
// error.
func MemberListInboxID(h unsafe.Pointer, index int32) string {
	m, ok := memberAt(h, index)
	if !ok {
		return ""
	}
	return m.InboxID
}

// MemberListAccountIdentifier returns the account identifier of the entry at
// index, or "" on error.
func MemberListAccountIdentifier(h unsafe.Pointer, index int32) string {
	m, ok := memberAt(h, index)
	if !ok {
		return ""
	}
	return m.AccountIdentifier
}

// MemberListPermissionLevel returns the permission level of the entry at
// index, or -1 on error.
func MemberListPermissionLevel(h unsafe.Pointer, index int32) int32 {
	m, ok := memberAt(h, index)
	if !ok {
		return -1
	}
	return int32(m.PermissionLevel)
}

// MemberListConsentState returns the consent state of the entry at index, or
// -1 on error.
func MemberListConsentState(h unsafe.Pointer, index int32) int32 {
	m, ok := memberAt(h, index)
	if !ok {
		return -1
	}
	return int32(m.ConsentState)
}

func memberAt(h unsafe.Pointer, index int32) (mls.GroupMember, bool) {
	obj, err := handles.get(kindMemberList, h)
	if err != nil {
		statusOf(err)
		return mls.GroupMember{}, false
	}
	members := obj.([]mls.GroupMember)
	if index < 0 || int(index) >= len(members) {
		statusOf(invalidf("member list index %d out of range [0,%d)", index, len(members)))
		return mls.GroupMember{}, false
	}
	return members[index], true
}

// MemberListFree releases a member list handle.
func MemberListFree(h unsafe.Pointer) int32 {
	_, err := handles.take(kindMemberList, h)
	return statusOf(err)
}

// ConversationAdmins returns the inbox IDs holding admin permission, or nil
// on error.
func ConversationAdmins(h unsafe.Pointer) []string {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return nil
	}
	return g.Admins()
}

// ConversationSuperAdmins returns the inbox IDs holding super admin
// permission, or nil on error.
func ConversationSuperAdmins(h unsafe.Pointer) []string {
	g, err := conversationFromHandle(h)
	if err != nil {
		statusOf(err)
		return nil
	}
	return g.SuperAdmins()
}

// ConversationIsAdmin reports whether inboxID holds at least admin
// permission: 1 or 0, or negative status on error.
func ConversationIsAdmin(h unsafe.Pointer, inboxID string) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if g.IsAdmin(inboxID) {
		return 1
	}
	return 0
}

// ConversationIsSuperAdmin reports whether inboxID holds super admin
// permission: 1 or 0, or negative status on error.
func ConversationIsSuperAdmin(h unsafe.Pointer, inboxID string) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if g.IsSuperAdmin(inboxID) {
		return 1
	}
	return 0
}

// ConversationUpdateAdminList applies an admin list action (add or remove
// admin or super admin) to inboxID. Only super admins may call it.
func ConversationUpdateAdminList(h unsafe.Pointer, inboxID string, action int32) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return g.UpdateAdminList(inboxID, mls.AdminAction(action))
	})
}

// ConversationConsentState stores the conversation's consent state in out.
func ConversationConsentState(h unsafe.Pointer, out *int32) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output state"))
	}
	return guard(func() error {
		*out = int32(g.ConsentState())
		return nil
	})
}

// ConversationUpdateConsentState sets the conversation's consent state.
func ConversationUpdateConsentState(h unsafe.Pointer, state int32) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return g.UpdateConsentState(mls.ConsentState(state))
	})
}

// MessageListLen returns the number of entries in a message list, or -1 on
// error.
func MessageListLen(h unsafe.Pointer) int32 {
	obj, err := handles.get(kindMessageList, h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return int32(len(obj.([]mls.StoredMessage)))
}

// MessageListGet stores an owned message handle for the entry at index in
// out.
func MessageListGet(h unsafe.Pointer, index int32, out *unsafe.Pointer) int32 {
	obj, err := handles.get(kindMessageList, h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	msgs := obj.([]mls.StoredMessage)
	if index < 0 || int(index) >= len(msgs) {
		return statusOf(invalidf("message list index %d out of range [0,%d)", index, len(msgs)))
	}
	msg := msgs[index]
	*out = handles.put(kindMessage, &msg)
	return statusOf(nil)
}

// MessageListFree releases a message list handle. Handles obtained through
// MessageListGet stay valid.
func MessageListFree(h unsafe.Pointer) int32 {
	_, err := handles.take(kindMessageList, h)
	return statusOf(err)
}

// MessageFree releases a message handle.
func MessageFree(h unsafe.Pointer) int32 {
	_, err := handles.take(kindMessage, h)
	return statusOf(err)
}

// MessageID returns the message ID, or "" on error.
func MessageID(h unsafe.Pointer) string {
	m, err := messageFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return m.ID
}

// MessageConversationID returns the parent conversation ID, or "" on error.
func MessageConversationID(h unsafe.Pointer) string {
	m, err := messageFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return m.GroupID
}

// MessageSenderInboxID returns the sender's inbox ID, or "" on error.
func MessageSenderInboxID(h unsafe.Pointer) string {
	m, err := messageFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return m.SenderInboxID
}

// MessageSentAtNs returns the send timestamp in nanoseconds, or -1 on error.
func MessageSentAtNs(h unsafe.Pointer) int64 {
	m, err := messageFromHandle(h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return m.SentAtNs
}

// MessageKind returns the message kind, or -1 on error.
func MessageKind(h unsafe.Pointer) int32 {
	m, err := messageFromHandle(h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return int32(m.Kind)
}

// MessageDeliveryStatus returns the delivery status, or -1 on error.
func MessageDeliveryStatus(h unsafe.Pointer) int32 {
	m, err := messageFromHandle(h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return int32(m.DeliveryStatus)
}

// MessageContent returns the message payload, or nil on error.
func MessageContent(h unsafe.Pointer) []byte {
	m, err := messageFromHandle(h)
	if err != nil {
		statusOf(err)
		return nil
	}
	return m.Content
}
