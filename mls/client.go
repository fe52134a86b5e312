package mls

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Version is the core library version reported across the boundary.
const Version = "0.3.0"

// Options configures a core client.
type Options struct {
	// Host selects the backend; clients sharing a host share a network.
	Host string
	// IsSecure records whether the host is TLS-secured. Informational.
	IsSecure bool
	// DBPath is the persisted store location. Empty = ephemeral.
	DBPath string
	// EncryptionKey optionally seals the store. Must be nil or 32 bytes.
	EncryptionKey []byte
	// InboxID is the identity this client operates as.
	InboxID string
	// AccountIdentifier is the wallet or passkey identifier behind the inbox.
	AccountIdentifier string
	// IdentifierKind is the kind of AccountIdentifier.
	IdentifierKind IdentifierKind
	// AppVersion tags backend requests with the embedding application's
	// version. Informational.
	AppVersion string
	// Backend overrides host-based backend resolution. Used by tests.
	Backend Backend
}

// Client is the asynchronous messaging core: identity, conversations,
// consent, persistence, and event dispatch.
type Client struct {
	opts       Options
	backend    Backend
	store      *Store
	dispatcher *dispatcher

	installPriv ed25519.PrivateKey
	installPub  ed25519.PublicKey

	mu            sync.RWMutex
	registered    bool
	groups        map[string]*Group
	consent       map[consentKey]ConsentState
	welcomeCursor uint64
	closed        bool
}

// consentKey identifies one consent ledger entry.
type consentKey struct {
	entityType ConsentEntityType
	entity     string
}

// NewClient opens (or restores) a client for the given options.
func NewClient(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("new client: missing host")
	}
	if opts.InboxID == "" {
		return nil, fmt.Errorf("new client: missing inbox ID")
	}
	if opts.AccountIdentifier == "" {
		return nil, fmt.Errorf("new client: missing account identifier")
	}

	store, err := OpenStore(opts.DBPath, opts.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}
	snap, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}
	if snap != nil && snap.InboxID != opts.InboxID {
		return nil, fmt.Errorf("new client: store at %s belongs to inbox %s", opts.DBPath, snap.InboxID)
	}

	backend := opts.Backend
	if backend == nil {
		backend = BackendFor(opts.Host)
	}

	c := &Client{
		opts:       opts,
		backend:    backend,
		store:      store,
		dispatcher: newDispatcher(),
		groups:     make(map[string]*Group),
		consent:    make(map[consentKey]ConsentState),
	}

	if snap != nil {
		seed := snap.InstallationSeed
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("new client: corrupt installation key in store")
		}
		c.installPriv = ed25519.NewKeyFromSeed(seed)
		c.registered = snap.Registered
		c.welcomeCursor = snap.WelcomeCursor
		for _, gs := range snap.Groups {
			c.groups[gs.ID] = c.newGroupFromSnapshot(gs)
		}
		for _, r := range snap.Consent {
			c.consent[consentKey{r.EntityType, r.Entity}] = r.State
		}
	} else {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("new client: generate installation key: %w", err)
		}
		c.installPriv = priv
	}
	c.installPub = c.installPriv.Public().(ed25519.PublicKey)

	if err := c.persist(); err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function":    "NewClient",
		"inbox_id":    opts.InboxID,
		"restored":    snap != nil,
		"app_version": opts.AppVersion,
	}).Info("Client opened")
	return c, nil
}

// InboxID returns this client's inbox ID.
func (c *Client) InboxID() string { return c.opts.InboxID }

// AccountIdentifier returns the account identifier the client was built with.
func (c *Client) AccountIdentifier() string { return c.opts.AccountIdentifier }

// InstallationID returns the installation public key bytes.
func (c *Client) InstallationID() []byte {
	return append([]byte(nil), c.installPub...)
}

// IsRegistered reports whether the identity has been registered with the
// backend.
func (c *Client) IsRegistered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

// RegisterIdentity publishes the identity to the backend. The signature is
// the account holder's approval of this installation; it must be non-empty.
func (c *Client) RegisterIdentity(signature []byte) error {
	if len(signature) == 0 {
		return fmt.Errorf("register identity: missing account signature")
	}
	c.mu.Lock()
	if c.registered {
		c.mu.Unlock()
		return nil
	}
	c.registered = true
	c.mu.Unlock()

	if err := c.backend.RegisterInstallation(c.opts.InboxID, c.opts.AccountIdentifier, c.InstallationID()); err != nil {
		c.mu.Lock()
		c.registered = false
		c.mu.Unlock()
		return fmt.Errorf("register identity: %w", err)
	}
	return c.persist()
}

// CanMessage reports, per account identifier, whether a registered inbox
// exists for it.
func (c *Client) CanMessage(accountIdentifiers []string) (map[string]bool, error) {
	if len(accountIdentifiers) == 0 {
		return nil, fmt.Errorf("can message: no identifiers given")
	}
	return c.backend.CanMessage(accountIdentifiers), nil
}

// SignWithInstallationKey signs text with the installation private key.
func (c *Client) SignWithInstallationKey(text string) []byte {
	return ed25519.Sign(c.installPriv, []byte(text))
}

// VerifySignedWithInstallationKey checks a signature produced by
// SignWithInstallationKey.
func (c *Client) VerifySignedWithInstallationKey(text string, sig []byte) bool {
	return ed25519.Verify(c.installPub, []byte(text), sig)
}

// SetConsentStates applies a batch of consent records, persists them, and
// notifies consent and preference subscribers.
func (c *Client) SetConsentStates(records []ConsentRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("set consent states: empty batch")
	}
	for _, r := range records {
		if r.Entity == "" {
			return fmt.Errorf("set consent states: record with empty entity")
		}
	}
	c.mu.Lock()
	for _, r := range records {
		c.consent[consentKey{r.EntityType, r.Entity}] = r.State
	}
	c.mu.Unlock()

	if err := c.persist(); err != nil {
		return err
	}

	batch := append([]ConsentRecord(nil), records...)
	c.dispatcher.emitConsent(batch)
	updates := make([]PreferenceUpdate, len(batch))
	for i, r := range batch {
		updates[i] = PreferenceUpdate{Kind: PreferenceUpdateConsent, Consent: r}
	}
	c.dispatcher.emitPreferences(updates)
	return nil
}

// ConsentState looks up the recorded consent state for an entity.
func (c *Client) ConsentState(t ConsentEntityType, entity string) (ConsentState, error) {
	if entity == "" {
		return ConsentStateUnknown, fmt.Errorf("consent state: empty entity")
	}
	return c.lookupConsent(t, entity), nil
}

func (c *Client) lookupConsent(t ConsentEntityType, entity string) ConsentState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.consent[consentKey{t, entity}]
}

// CreateGroup starts a group conversation with the given member inboxes and
// sends each a welcome.
func (c *Client) CreateGroup(memberInboxIDs []string, opts GroupOptions) (*Group, error) {
	now := time.Now().UnixNano()
	self := c.InboxID()
	g := &Group{
		client:         c,
		id:             newID(),
		convType:       ConversationTypeGroup,
		createdAtNs:    now,
		creatorInboxID: self,
		addedByInboxID: self,
		name:           opts.Name,
		description:    opts.Description,
		imageURL:       opts.ImageURL,
		active:         true,
		members: []GroupMember{{
			InboxID:           self,
			AccountIdentifier: c.AccountIdentifier(),
			PermissionLevel:   PermissionSuperAdmin,
		}},
	}
	for _, id := range memberInboxIDs {
		if id == self {
			continue
		}
		g.members = append(g.members, GroupMember{InboxID: id, PermissionLevel: PermissionMember})
	}

	if err := c.adoptGroup(g); err != nil {
		return nil, err
	}
	for _, id := range memberInboxIDs {
		if id == self {
			continue
		}
		w := Welcome{InboxID: id, Group: g.welcomeSnapshot(), SenderID: self, CreatedAtNs: now}
		if err := c.backend.PublishWelcome(w); err != nil {
			return nil, fmt.Errorf("create group: welcome %s: %w", id, err)
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "Client.CreateGroup",
		"group_id": g.ID(),
		"members":  len(memberInboxIDs),
	}).Debug("Group created")
	return g, nil
}

// CreateDM starts (or returns an existing) direct conversation with a peer
// inbox.
func (c *Client) CreateDM(peerInboxID string) (*Group, error) {
	if peerInboxID == "" {
		return nil, fmt.Errorf("create dm: empty peer inbox ID")
	}
	if peerInboxID == c.InboxID() {
		return nil, fmt.Errorf("create dm: cannot DM self")
	}
	if existing := c.FindDMByInboxID(peerInboxID); existing != nil {
		return existing, nil
	}

	now := time.Now().UnixNano()
	self := c.InboxID()
	g := &Group{
		client:         c,
		id:             newID(),
		convType:       ConversationTypeDM,
		createdAtNs:    now,
		creatorInboxID: self,
		addedByInboxID: self,
		active:         true,
		members: []GroupMember{
			{InboxID: self, AccountIdentifier: c.AccountIdentifier(), PermissionLevel: PermissionSuperAdmin},
			{InboxID: peerInboxID, PermissionLevel: PermissionMember},
		},
	}
	if err := c.adoptGroup(g); err != nil {
		return nil, err
	}
	w := Welcome{InboxID: peerInboxID, Group: g.welcomeSnapshot(), SenderID: self, CreatedAtNs: now}
	if err := c.backend.PublishWelcome(w); err != nil {
		return nil, fmt.Errorf("create dm: welcome: %w", err)
	}
	return g, nil
}

// adoptGroup records a new conversation, persists, and notifies subscribers.
func (c *Client) adoptGroup(g *Group) error {
	c.mu.Lock()
	c.groups[g.ID()] = g
	c.mu.Unlock()
	if err := c.persist(); err != nil {
		return err
	}
	c.dispatcher.emitConversation(g)
	return nil
}

// FindDMByInboxID returns the DM with the given peer, or nil.
func (c *Client) FindDMByInboxID(peerInboxID string) *Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, g := range c.groups {
		if g.Type() == ConversationTypeDM && g.DMPeerInboxID() == peerInboxID {
			return g
		}
	}
	return nil
}

// ConversationByID returns the conversation with the given ID, or nil.
func (c *Client) ConversationByID(id string) *Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.groups[id]
}

// Conversations lists conversations of the given type (ConversationTypeAll
// for every type), newest first.
func (c *Client) Conversations(filter ConversationType) []*Group {
	c.mu.RLock()
	out := make([]*Group, 0, len(c.groups))
	for _, g := range c.groups {
		if filter != ConversationTypeAll && g.Type() != filter {
			continue
		}
		out = append(out, g)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAtNs() > out[j].CreatedAtNs()
	})
	return out
}

// SyncWelcomes pulls pending invitations and materializes new conversations.
// Returns the number of new conversations.
func (c *Client) SyncWelcomes() (int, error) {
	c.mu.RLock()
	cursor := c.welcomeCursor
	c.mu.RUnlock()

	welcomes, err := c.backend.QueryWelcomes(c.InboxID(), cursor)
	if err != nil {
		return 0, fmt.Errorf("sync welcomes: %w", err)
	}

	var fresh []*Group
	c.mu.Lock()
	for _, w := range welcomes {
		if w.Seq > c.welcomeCursor {
			c.welcomeCursor = w.Seq
		}
		if _, exists := c.groups[w.Group.ID]; exists {
			continue
		}
		gs := w.Group
		gs.AddedByInboxID = w.SenderID
		gs.Active = true
		g := c.newGroupFromSnapshot(gs)
		c.groups[g.ID()] = g
		fresh = append(fresh, g)
	}
	c.mu.Unlock()

	if len(fresh) > 0 {
		if err := c.persist(); err != nil {
			return 0, err
		}
	}
	for _, g := range fresh {
		c.dispatcher.emitConversation(g)
	}
	return len(fresh), nil
}

// SyncAll pulls welcomes and then syncs every conversation. Returns the
// number of new conversations and new messages.
func (c *Client) SyncAll() (int, int, error) {
	newGroups, err := c.SyncWelcomes()
	if err != nil {
		return 0, 0, err
	}
	newMessages := 0
	for _, g := range c.Conversations(ConversationTypeAll) {
		n, err := g.Sync()
		if err != nil {
			return newGroups, newMessages, err
		}
		newMessages += n
	}
	return newGroups, newMessages, nil
}

// MessageByID searches all conversations for a message.
func (c *Client) MessageByID(id string) (StoredMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, g := range c.groups {
		if m, ok := g.messageByID(id); ok {
			return m, nil
		}
	}
	return StoredMessage{}, fmt.Errorf("message %s not found", id)
}

// DeleteMessageByID removes a message from local history and notifies
// deletion subscribers. Returns the number of rows removed (0 or 1).
func (c *Client) DeleteMessageByID(id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("delete message: empty ID")
	}
	c.mu.RLock()
	groups := make([]*Group, 0, len(c.groups))
	for _, g := range c.groups {
		groups = append(groups, g)
	}
	c.mu.RUnlock()

	for _, g := range groups {
		if g.deleteMessage(id) {
			if err := c.persist(); err != nil {
				return 0, err
			}
			c.dispatcher.emitDeletion(id)
			return 1, nil
		}
	}
	return 0, nil
}

// SubscribeConversations registers for new-conversation events.
func (c *Client) SubscribeConversations(filter ConversationType) *ConversationSubscription {
	return c.dispatcher.subscribeConversations(filter)
}

// SubscribeMessages registers for message events, for one conversation
// (groupID non-empty) or all conversations matching the filter.
func (c *Client) SubscribeMessages(groupID string, filter ConversationType) *MessageSubscription {
	return c.dispatcher.subscribeMessages(groupID, filter)
}

// SubscribeConsent registers for consent batch events.
func (c *Client) SubscribeConsent() *ConsentSubscription {
	return c.dispatcher.subscribeConsent()
}

// SubscribePreferences registers for preference batch events.
func (c *Client) SubscribePreferences() *PreferenceSubscription {
	return c.dispatcher.subscribePreferences()
}

// SubscribeDeletions registers for message deletion events.
func (c *Client) SubscribeDeletions() *DeletionSubscription {
	return c.dispatcher.subscribeDeletions()
}

// persist writes the current state through the store.
func (c *Client) persist() error {
	if c.store.Ephemeral() {
		return nil
	}
	c.mu.RLock()
	snap := &snapshot{
		InboxID:           c.opts.InboxID,
		AccountIdentifier: c.opts.AccountIdentifier,
		IdentifierKind:    c.opts.IdentifierKind,
		InstallationSeed:  c.installPriv.Seed(),
		Registered:        c.registered,
		WelcomeCursor:     c.welcomeCursor,
	}
	groups := make([]*Group, 0, len(c.groups))
	for _, g := range c.groups {
		groups = append(groups, g)
	}
	for key, state := range c.consent {
		snap.Consent = append(snap.Consent, ConsentRecord{EntityType: key.entityType, State: state, Entity: key.entity})
	}
	c.mu.RUnlock()
	for _, g := range groups {
		snap.Groups = append(snap.Groups, g.snapshot())
	}
	return c.store.Save(snap)
}

// Close shuts the client down: subscriptions end, state is flushed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.dispatcher.closeAll()
	return c.persist()
}
