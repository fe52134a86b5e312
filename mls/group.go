package mls

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AdminAction selects the operation for UpdateAdminList.
type AdminAction int32

const (
	AdminActionAdd AdminAction = iota
	AdminActionRemove
	AdminActionAddSuper
	AdminActionRemoveSuper
)

// GroupOptions carries optional metadata for group creation.
type GroupOptions struct {
	Name        string
	Description string
	ImageURL    string
}

// ListMessagesOptions filters and bounds a message query.
type ListMessagesOptions struct {
	// SentAfterNs/SentBeforeNs bound the query; zero means unbounded.
	SentAfterNs  int64
	SentBeforeNs int64
	// Limit caps the result count; zero means no cap.
	Limit int
	// Descending returns newest-first when set.
	Descending bool
}

// Group is one conversation (group or DM) a client participates in.
// All methods are safe for concurrent use.
type Group struct {
	client *Client

	mu             sync.RWMutex
	id             string
	convType       ConversationType
	createdAtNs    int64
	creatorInboxID string
	addedByInboxID string
	name           string
	description    string
	imageURL       string
	members        []GroupMember
	messages       []StoredMessage
	messageCursor  uint64
	active         bool
	consent        ConsentState
}

func (c *Client) newGroupFromSnapshot(gs groupSnapshot) *Group {
	return &Group{
		client:         c,
		id:             gs.ID,
		convType:       gs.Type,
		createdAtNs:    gs.CreatedAtNs,
		creatorInboxID: gs.CreatorInboxID,
		addedByInboxID: gs.AddedByInboxID,
		name:           gs.Name,
		description:    gs.Description,
		imageURL:       gs.ImageURL,
		members:        append([]GroupMember(nil), gs.Members...),
		messages:       append([]StoredMessage(nil), gs.Messages...),
		messageCursor:  gs.MessageCursor,
		active:         gs.Active,
	}
}

func (g *Group) snapshot() groupSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return groupSnapshot{
		ID:             g.id,
		Type:           g.convType,
		CreatedAtNs:    g.createdAtNs,
		CreatorInboxID: g.creatorInboxID,
		AddedByInboxID: g.addedByInboxID,
		Name:           g.name,
		Description:    g.description,
		ImageURL:       g.imageURL,
		Members:        append([]GroupMember(nil), g.members...),
		Messages:       append([]StoredMessage(nil), g.messages...),
		MessageCursor:  g.messageCursor,
		Active:         g.active,
	}
}

// welcomeSnapshot is the group state shipped inside a Welcome: membership and
// metadata, but not this client's local message history or cursor.
func (g *Group) welcomeSnapshot() groupSnapshot {
	gs := g.snapshot()
	gs.Messages = nil
	gs.MessageCursor = 0
	return gs
}

// Client returns the client this conversation belongs to.
func (g *Group) Client() *Client {
	return g.client
}

// ID returns the hex conversation ID.
func (g *Group) ID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.id
}

// Type returns the conversation type.
func (g *Group) Type() ConversationType {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.convType
}

// CreatedAtNs returns the creation timestamp in nanoseconds.
func (g *Group) CreatedAtNs() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.createdAtNs
}

// CreatorInboxID returns the inbox that created the conversation.
func (g *Group) CreatorInboxID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.creatorInboxID
}

// AddedByInboxID returns the inbox that added this client, or the creator for
// self-created conversations.
func (g *Group) AddedByInboxID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.addedByInboxID
}

// IsActive reports whether this client is still a member.
func (g *Group) IsActive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Name returns the group name.
func (g *Group) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// Description returns the group description.
func (g *Group) Description() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.description
}

// ImageURL returns the group image URL.
func (g *Group) ImageURL() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.imageURL
}

// DMPeerInboxID returns the other participant of a DM. Empty for groups.
func (g *Group) DMPeerInboxID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.convType != ConversationTypeDM {
		return ""
	}
	self := g.client.InboxID()
	for _, m := range g.members {
		if m.InboxID != self {
			return m.InboxID
		}
	}
	return ""
}

// Members returns a copy of the membership list.
func (g *Group) Members() []GroupMember {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]GroupMember(nil), g.members...)
}

// ConsentState returns this conversation's consent state as recorded in the
// client's consent ledger.
func (g *Group) ConsentState() ConsentState {
	return g.client.lookupConsent(ConsentEntityConversation, g.ID())
}

// UpdateConsentState records a consent state for this conversation.
func (g *Group) UpdateConsentState(state ConsentState) error {
	return g.client.SetConsentStates([]ConsentRecord{{
		EntityType: ConsentEntityConversation,
		State:      state,
		Entity:     g.ID(),
	}})
}

// UpdateName sets the group name and records a membership-change message.
func (g *Group) UpdateName(name string) error {
	return g.updateMetadata(func() { g.name = name }, "group name updated")
}

// UpdateDescription sets the group description.
func (g *Group) UpdateDescription(desc string) error {
	return g.updateMetadata(func() { g.description = desc }, "group description updated")
}

// UpdateImageURL sets the group image URL.
func (g *Group) UpdateImageURL(url string) error {
	return g.updateMetadata(func() { g.imageURL = url }, "group image updated")
}

func (g *Group) updateMetadata(apply func(), note string) error {
	if g.Type() == ConversationTypeDM {
		return fmt.Errorf("update metadata: not supported for DMs")
	}
	g.mu.Lock()
	apply()
	g.mu.Unlock()
	if err := g.client.persist(); err != nil {
		return err
	}
	g.recordMembershipChange(note)
	return nil
}

// Send appends content to the conversation, publishes it, and returns the new
// message ID. The message is recorded with DeliveryStatusFailed if publishing
// fails, and the error is returned.
func (g *Group) Send(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("send: empty content")
	}
	if !g.IsActive() {
		return "", fmt.Errorf("send: no longer a member of conversation %s", g.ID())
	}
	msg := StoredMessage{
		ID:                   newID(),
		GroupID:              g.ID(),
		SenderInboxID:        g.client.InboxID(),
		SenderInstallationID: g.client.InstallationID(),
		SentAtNs:             time.Now().UnixNano(),
		Kind:                 MessageKindApplication,
		DeliveryStatus:       DeliveryStatusUnpublished,
		Content:              append([]byte(nil), content...),
	}

	err := g.client.backend.PublishMessage(Envelope{GroupID: msg.GroupID, Message: msg})
	if err != nil {
		msg.DeliveryStatus = DeliveryStatusFailed
	} else {
		msg.DeliveryStatus = DeliveryStatusPublished
	}

	g.mu.Lock()
	g.messages = append(g.messages, msg)
	g.mu.Unlock()

	if perr := g.client.persist(); perr != nil && err == nil {
		err = perr
	}
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	g.client.dispatcher.emitMessage(g, &msg)
	logrus.WithFields(logrus.Fields{
		"function":   "Group.Send",
		"group_id":   msg.GroupID,
		"message_id": msg.ID,
	}).Debug("Message published")
	return msg.ID, nil
}

// Sync pulls messages published by other members since the last sync.
// Returns the number of new messages.
func (g *Group) Sync() (int, error) {
	g.mu.RLock()
	cursor := g.messageCursor
	id := g.id
	g.mu.RUnlock()

	envs, err := g.client.backend.QueryMessages(id, cursor)
	if err != nil {
		return 0, fmt.Errorf("sync conversation %s: %w", id, err)
	}

	self := g.client.InboxID()
	var fresh []StoredMessage
	g.mu.Lock()
	for _, env := range envs {
		if env.Seq > g.messageCursor {
			g.messageCursor = env.Seq
		}
		if env.Message.SenderInboxID == self {
			continue // own messages are already in local history
		}
		if g.hasMessageLocked(env.Message.ID) {
			continue // already merged from an archive
		}
		m := env.Message
		m.DeliveryStatus = DeliveryStatusPublished
		g.messages = append(g.messages, m)
		fresh = append(fresh, m)
	}
	g.mu.Unlock()

	if len(fresh) > 0 {
		if err := g.client.persist(); err != nil {
			return 0, err
		}
	}
	for i := range fresh {
		g.client.dispatcher.emitMessage(g, &fresh[i])
	}
	return len(fresh), nil
}

// Messages returns conversation history matching the options.
func (g *Group) Messages(opts ListMessagesOptions) []StoredMessage {
	g.mu.RLock()
	out := make([]StoredMessage, 0, len(g.messages))
	for _, m := range g.messages {
		if opts.SentAfterNs != 0 && m.SentAtNs <= opts.SentAfterNs {
			continue
		}
		if opts.SentBeforeNs != 0 && m.SentAtNs >= opts.SentBeforeNs {
			continue
		}
		out = append(out, m)
	}
	g.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if opts.Descending {
			return out[i].SentAtNs > out[j].SentAtNs
		}
		return out[i].SentAtNs < out[j].SentAtNs
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// messageByID looks up a message in this conversation's history.
func (g *Group) messageByID(id string) (StoredMessage, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, m := range g.messages {
		if m.ID == id {
			return m, true
		}
	}
	return StoredMessage{}, false
}

// hasMessageLocked reports whether a message ID exists in local history.
// Callers hold g.mu.
func (g *Group) hasMessageLocked(id string) bool {
	for _, m := range g.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// mergeMessage adds an archived message to local history unless a message
// with the same ID is already present. Returns whether it was added.
func (g *Group) mergeMessage(m StoredMessage) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, have := range g.messages {
		if have.ID == m.ID {
			return false
		}
	}
	g.messages = append(g.messages, m)
	sort.SliceStable(g.messages, func(i, j int) bool {
		return g.messages[i].SentAtNs < g.messages[j].SentAtNs
	})
	return true
}

// deleteMessage removes a message from local history. Returns whether it was
// present.
func (g *Group) deleteMessage(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range g.messages {
		if m.ID == id {
			g.messages = append(g.messages[:i], g.messages[i+1:]...)
			return true
		}
	}
	return false
}

// AddMembers invites inboxes into the group and sends them welcomes.
func (g *Group) AddMembers(inboxIDs []string) error {
	if len(inboxIDs) == 0 {
		return fmt.Errorf("add members: no inbox IDs given")
	}
	if g.Type() == ConversationTypeDM {
		return fmt.Errorf("add members: not supported for DMs")
	}
	self := g.client.InboxID()

	g.mu.Lock()
	var added []string
	for _, id := range inboxIDs {
		if g.hasMemberLocked(id) {
			continue
		}
		g.members = append(g.members, GroupMember{InboxID: id, PermissionLevel: PermissionMember})
		added = append(added, id)
	}
	g.mu.Unlock()

	if len(added) == 0 {
		return nil
	}
	if err := g.client.persist(); err != nil {
		return err
	}
	now := time.Now().UnixNano()
	for _, id := range added {
		w := Welcome{InboxID: id, Group: g.welcomeSnapshot(), SenderID: self, CreatedAtNs: now}
		if err := g.client.backend.PublishWelcome(w); err != nil {
			return fmt.Errorf("add members: welcome %s: %w", id, err)
		}
	}
	g.recordMembershipChange(fmt.Sprintf("added %d member(s)", len(added)))
	return nil
}

// RemoveMembers drops inboxes from the group. Requires admin standing.
func (g *Group) RemoveMembers(inboxIDs []string) error {
	if len(inboxIDs) == 0 {
		return fmt.Errorf("remove members: no inbox IDs given")
	}
	self := g.client.InboxID()
	if !g.IsAdmin(self) && !g.IsSuperAdmin(self) {
		return fmt.Errorf("remove members: %s is not an admin", self)
	}

	g.mu.Lock()
	removed := 0
	for _, id := range inboxIDs {
		for i, m := range g.members {
			if m.InboxID == id {
				g.members = append(g.members[:i], g.members[i+1:]...)
				removed++
				break
			}
		}
	}
	g.mu.Unlock()

	if removed == 0 {
		return nil
	}
	if err := g.client.persist(); err != nil {
		return err
	}
	g.recordMembershipChange(fmt.Sprintf("removed %d member(s)", removed))
	return nil
}

// Leave marks this client as no longer a member.
func (g *Group) Leave() error {
	self := g.client.InboxID()
	g.mu.Lock()
	for i, m := range g.members {
		if m.InboxID == self {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	g.active = false
	g.mu.Unlock()
	return g.client.persist()
}

func (g *Group) hasMemberLocked(inboxID string) bool {
	for _, m := range g.members {
		if m.InboxID == inboxID {
			return true
		}
	}
	return false
}

// Admins returns inbox IDs with admin standing (not super admins).
func (g *Group) Admins() []string {
	return g.membersAt(PermissionAdmin)
}

// SuperAdmins returns inbox IDs with super admin standing.
func (g *Group) SuperAdmins() []string {
	return g.membersAt(PermissionSuperAdmin)
}

func (g *Group) membersAt(level PermissionLevel) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, m := range g.members {
		if m.PermissionLevel == level {
			out = append(out, m.InboxID)
		}
	}
	return out
}

// IsAdmin reports whether the inbox has admin standing.
func (g *Group) IsAdmin(inboxID string) bool {
	return g.permissionOf(inboxID) == PermissionAdmin
}

// IsSuperAdmin reports whether the inbox has super admin standing.
func (g *Group) IsSuperAdmin(inboxID string) bool {
	return g.permissionOf(inboxID) == PermissionSuperAdmin
}

func (g *Group) permissionOf(inboxID string) PermissionLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, m := range g.members {
		if m.InboxID == inboxID {
			return m.PermissionLevel
		}
	}
	return PermissionMember
}

// UpdateAdminList changes a member's admin standing. Only super admins may
// change the admin list.
func (g *Group) UpdateAdminList(inboxID string, action AdminAction) error {
	self := g.client.InboxID()
	if !g.IsSuperAdmin(self) {
		return fmt.Errorf("update admin list: %s is not a super admin", self)
	}

	g.mu.Lock()
	found := false
	for i := range g.members {
		if g.members[i].InboxID != inboxID {
			continue
		}
		found = true
		switch action {
		case AdminActionAdd:
			g.members[i].PermissionLevel = PermissionAdmin
		case AdminActionRemove, AdminActionRemoveSuper:
			g.members[i].PermissionLevel = PermissionMember
		case AdminActionAddSuper:
			g.members[i].PermissionLevel = PermissionSuperAdmin
		}
	}
	g.mu.Unlock()

	if !found {
		return fmt.Errorf("update admin list: %s is not a member", inboxID)
	}
	if err := g.client.persist(); err != nil {
		return err
	}
	g.recordMembershipChange("admin list updated")
	return nil
}

// recordMembershipChange appends a membership-change message and notifies
// message subscribers.
func (g *Group) recordMembershipChange(note string) {
	msg := StoredMessage{
		ID:                   newID(),
		GroupID:              g.ID(),
		SenderInboxID:        g.client.InboxID(),
		SenderInstallationID: g.client.InstallationID(),
		SentAtNs:             time.Now().UnixNano(),
		Kind:                 MessageKindMembershipChange,
		DeliveryStatus:       DeliveryStatusPublished,
		Content:              []byte(note),
	}
	g.mu.Lock()
	g.messages = append(g.messages, msg)
	g.mu.Unlock()
	g.client.dispatcher.emitMessage(g, &msg)
}
