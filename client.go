package xmtpcore

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/xmtpcore/ffi"
)

// Version returns the library version string.
func Version() string {
	return ffi.LibraryVersion()
}

// GenerateInboxID derives the deterministic inbox ID for an account
// identifier and nonce.
func GenerateInboxID(accountIdentifier string, nonce uint64) string {
	return ffi.GenerateInboxID(accountIdentifier, nonce)
}

// Signer produces account signatures during identity registration.
type Signer interface {
	// AccountIdentifier returns the account this signer controls.
	AccountIdentifier() string
	// IdentifierKind names the identifier scheme.
	IdentifierKind() IdentifierKind
	// Sign produces the account's signature over text.
	Sign(text string) ([]byte, error)
}

// StaticSigner is a Signer backed by a caller-supplied signing function.
type StaticSigner struct {
	identifier string
	kind       IdentifierKind
	sign       func(text string) ([]byte, error)
}

// NewStaticSigner builds a Signer for an Ethereum-style identifier.
func NewStaticSigner(accountIdentifier string, sign func(text string) ([]byte, error)) *StaticSigner {
	return &StaticSigner{identifier: accountIdentifier, kind: IdentifierKindEthereum, sign: sign}
}

func (s *StaticSigner) AccountIdentifier() string      { return s.identifier }
func (s *StaticSigner) IdentifierKind() IdentifierKind { return s.kind }
func (s *StaticSigner) Sign(text string) ([]byte, error) {
	return s.sign(text)
}

// Environment selects a backend endpoint preset.
type Environment int

const (
	EnvironmentLocal Environment = iota
	EnvironmentDev
	EnvironmentProduction
)

func (e Environment) host() string {
	switch e {
	case EnvironmentDev:
		return "grpc.dev.xmtp.network:443"
	case EnvironmentProduction:
		return "grpc.production.xmtp.network:443"
	default:
		return "localhost:5556"
	}
}

func (e Environment) secure() bool {
	return e != EnvironmentLocal
}

// ClientBuilder assembles client configuration before any boundary call is
// made. Validation failures surface from Build as CategoryValidation errors.
type ClientBuilder struct {
	signer        Signer
	env           Environment
	hostOverride  string
	dbPath        string
	encryptionKey []byte
	nonce         uint64
	appVersion    string
}

// NewClientBuilder starts a builder for the account controlled by signer.
func NewClientBuilder(signer Signer) *ClientBuilder {
	return &ClientBuilder{signer: signer}
}

// Environment selects an endpoint preset.
func (b *ClientBuilder) Environment(env Environment) *ClientBuilder {
	b.env = env
	return b
}

// Host overrides the environment preset with an explicit endpoint.
func (b *ClientBuilder) Host(host string) *ClientBuilder {
	b.hostOverride = host
	return b
}

// DBPath sets the local database location. Empty keeps state in memory.
func (b *ClientBuilder) DBPath(path string) *ClientBuilder {
	b.dbPath = path
	return b
}

// EncryptionKey encrypts the local database. Must be 32 bytes.
func (b *ClientBuilder) EncryptionKey(key []byte) *ClientBuilder {
	b.encryptionKey = key
	return b
}

// Nonce varies the inbox ID derived for the account. Zero is the default
// inbox.
func (b *ClientBuilder) Nonce(nonce uint64) *ClientBuilder {
	b.nonce = nonce
	return b
}

// AppVersion tags backend requests with the embedding application's
// version.
func (b *ClientBuilder) AppVersion(version string) *ClientBuilder {
	b.appVersion = version
	return b
}

// Build validates the configuration and opens the client.
func (b *ClientBuilder) Build() (*Client, error) {
	if b.signer == nil {
		return nil, &Error{Category: CategoryValidation, Message: "builder requires a signer"}
	}
	account := b.signer.AccountIdentifier()
	if account == "" {
		return nil, &Error{Category: CategoryValidation, Message: "signer has no account identifier"}
	}
	if len(b.encryptionKey) != 0 && len(b.encryptionKey) != 32 {
		return nil, &Error{Category: CategoryValidation, Message: fmt.Sprintf("encryption key must be 32 bytes, got %d", len(b.encryptionKey))}
	}

	host := b.hostOverride
	secure := true
	if host == "" {
		host = b.env.host()
		secure = b.env.secure()
	}
	inboxID := ffi.GenerateInboxID(account, b.nonce)

	defer pinThread()()
	var handle unsafe.Pointer
	st := ffi.ClientCreate(&ffi.ClientOptions{
		Host:              host,
		IsSecure:          secure,
		DBPath:            b.dbPath,
		EncryptionKey:     b.encryptionKey,
		InboxID:           inboxID,
		AccountIdentifier: account,
		IdentifierKind:    int32(b.signer.IdentifierKind()),
		AppVersion:        b.appVersion,
	}, &handle)
	if err := statusError(st); err != nil {
		return nil, err
	}

	c := &Client{handle: handle, signer: b.signer, inboxID: inboxID}
	runtime.SetFinalizer(c, func(c *Client) { c.Close() })
	logrus.WithFields(logrus.Fields{
		"function": "ClientBuilder.Build",
		"inbox_id": inboxID,
		"host":     host,
	}).Debug("Client built")
	return c, nil
}

// Client is a managed handle to one inbox installation. All methods are safe
// for concurrent use. Close is idempotent; an unclosed client is reclaimed by
// its finalizer.
type Client struct {
	mu      sync.Mutex
	handle  unsafe.Pointer
	closed  bool
	signer  Signer
	inboxID string
}

// raw returns the underlying handle, or a validation error after Close.
func (c *Client) raw() (unsafe.Pointer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed("client")
	}
	return c.handle, nil
}

// Close releases the client. Conversations, messages, and streams obtained
// from it remain valid until they are released themselves.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	handle := c.handle
	c.mu.Unlock()

	runtime.SetFinalizer(c, nil)
	defer pinThread()()
	return statusError(ffi.ClientFree(handle))
}

// InboxID returns the inbox ID this client was built for.
func (c *Client) InboxID() string { return c.inboxID }

// InstallationID returns the installation public key bytes.
func (c *Client) InstallationID() ([]byte, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	id := ffi.ClientInstallationID(h)
	if id == nil {
		return nil, lastError(CategoryOperational, "no installation ID")
	}
	return id, nil
}

// IsRegistered reports whether the identity is registered with the backend.
func (c *Client) IsRegistered() (bool, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return false, err
	}
	switch ffi.ClientIsRegistered(h) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, lastError(CategoryOperational, "registration check failed")
	}
}

// Register completes identity registration: the signer approves this
// installation and the approval is published. A no-op when already
// registered.
func (c *Client) Register() error {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return err
	}
	registered, err := c.IsRegistered()
	if err != nil {
		return err
	}
	if registered {
		return nil
	}

	installation := ffi.ClientInstallationID(h)
	text := fmt.Sprintf("XMTP : Authorize installation %x for inbox %s", installation, c.inboxID)
	signature, err := c.signer.Sign(text)
	if err != nil {
		return &Error{Category: CategoryOperational, Message: fmt.Sprintf("signer: %v", err)}
	}
	return statusError(ffi.ClientRegisterIdentity(h, signature))
}

// CanMessage reports, per account identifier, whether a registered inbox
// exists for it.
func (c *Client) CanMessage(accountIdentifiers []string) (map[string]bool, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	results := make([]int32, len(accountIdentifiers))
	if err := statusError(ffi.ClientCanMessage(h, accountIdentifiers, results)); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(accountIdentifiers))
	for i, id := range accountIdentifiers {
		out[id] = results[i] == 1
	}
	return out, nil
}

// SignWithInstallationKey signs text with the installation key.
func (c *Client) SignWithInstallationKey(text string) ([]byte, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	sig := ffi.ClientSignWithInstallationKey(h, text)
	if sig == nil {
		return nil, lastError(CategoryOperational, "signing failed")
	}
	return sig, nil
}

// VerifySignedWithInstallationKey reports whether signature is a valid
// installation-key signature over text.
func (c *Client) VerifySignedWithInstallationKey(text string, signature []byte) (bool, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return false, err
	}
	switch ffi.ClientVerifySignedWithInstallationKey(h, text, signature) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, lastError(CategoryValidation, "verification failed")
	}
}

// SetConsentStates applies a batch of consent records atomically.
func (c *Client) SetConsentStates(records []ConsentRecord) error {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return err
	}
	batch := make([]ffi.ConsentRecord, len(records))
	for i, r := range records {
		batch[i] = ffi.ConsentRecord{
			EntityType: int32(r.EntityType),
			State:      int32(r.State),
			Entity:     r.Entity,
		}
	}
	return statusError(ffi.ClientSetConsentStates(h, batch))
}

// ConsentState looks up the recorded consent state for an entity.
func (c *Client) ConsentState(entityType ConsentEntityType, entity string) (ConsentState, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return ConsentStateUnknown, err
	}
	var state int32
	if err := statusError(ffi.ClientGetConsentState(h, int32(entityType), entity, &state)); err != nil {
		return ConsentStateUnknown, err
	}
	return ConsentState(state), nil
}

// MessageByID looks up a message across all conversations.
func (c *Client) MessageByID(id string) (Message, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return Message{}, err
	}
	var msgHandle unsafe.Pointer
	if err := statusError(ffi.ClientMessageByID(h, id, &msgHandle)); err != nil {
		return Message{}, err
	}
	return takeMessage(msgHandle), nil
}

// DeleteMessageByID removes a message from local history. Returns the number
// of rows removed (0 or 1).
func (c *Client) DeleteMessageByID(id string) (int, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return 0, err
	}
	var deleted int32
	if err := statusError(ffi.ClientDeleteMessageByID(h, id, &deleted)); err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// SyncWelcomes pulls pending invitations. Returns the number of new
// conversations.
func (c *Client) SyncWelcomes() (int, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return 0, err
	}
	var n int32
	if err := statusError(ffi.ClientSyncWelcomes(h, &n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

// SyncAll pulls welcomes and then every conversation's messages. Returns the
// new conversation and message counts.
func (c *Client) SyncAll() (int, int, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return 0, 0, err
	}
	var convs, msgs int32
	if err := statusError(ffi.ClientSyncAll(h, &convs, &msgs)); err != nil {
		return 0, 0, err
	}
	return int(convs), int(msgs), nil
}

// CreateGroup starts a group conversation with the given member inboxes.
func (c *Client) CreateGroup(memberInboxIDs []string, opts GroupOptions) (*Conversation, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var convHandle unsafe.Pointer
	st := ffi.ClientCreateGroup(h, memberInboxIDs, &ffi.GroupOptions{
		Name:        opts.Name,
		Description: opts.Description,
		ImageURL:    opts.ImageURL,
	}, &convHandle)
	if err := statusError(st); err != nil {
		return nil, err
	}
	return newConversation(c, convHandle), nil
}

// CreateDM starts (or returns the existing) direct conversation with a peer
// inbox.
func (c *Client) CreateDM(peerInboxID string) (*Conversation, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var convHandle unsafe.Pointer
	if err := statusError(ffi.ClientCreateDM(h, peerInboxID, &convHandle)); err != nil {
		return nil, err
	}
	return newConversation(c, convHandle), nil
}

// FindDMByInboxID returns the DM with the given peer, or nil when none
// exists.
func (c *Client) FindDMByInboxID(peerInboxID string) (*Conversation, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var convHandle unsafe.Pointer
	if err := statusError(ffi.ClientFindDMByInboxID(h, peerInboxID, &convHandle)); err != nil {
		return nil, err
	}
	if convHandle == nil {
		return nil, nil
	}
	return newConversation(c, convHandle), nil
}

// ConversationByID returns the conversation with the given ID.
func (c *Client) ConversationByID(id string) (*Conversation, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var convHandle unsafe.Pointer
	if err := statusError(ffi.ClientConversationByID(h, id, &convHandle)); err != nil {
		return nil, err
	}
	return newConversation(c, convHandle), nil
}

// Conversations lists conversations of the given type, newest first.
func (c *Client) Conversations(filter ConversationType) ([]*Conversation, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var listHandle unsafe.Pointer
	if err := statusError(ffi.ClientListConversations(h, int32(filter), &listHandle)); err != nil {
		return nil, err
	}
	defer ffi.ConversationListFree(listHandle)

	n := ffi.ConversationListLen(listHandle)
	if n < 0 {
		return nil, lastError(CategoryOperational, "conversation list unavailable")
	}
	out := make([]*Conversation, 0, n)
	for i := int32(0); i < n; i++ {
		var convHandle unsafe.Pointer
		if err := statusError(ffi.ConversationListGet(listHandle, i, &convHandle)); err != nil {
			for _, conv := range out {
				conv.Close()
			}
			return nil, err
		}
		out = append(out, newConversation(c, convHandle))
	}
	return out, nil
}
