package mls

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Welcome invites an inbox into an existing conversation. It carries enough
// group state for the invitee to materialize the conversation locally.
type Welcome struct {
	Seq         uint64
	InboxID     string
	Group       groupSnapshot
	SenderID    string
	CreatedAtNs int64
}

// Envelope is one published message as seen by the network.
type Envelope struct {
	Seq     uint64
	GroupID string
	Message StoredMessage
}

// SyncRequest asks the inbox's other installations to publish an archive of
// their records.
type SyncRequest struct {
	Seq         uint64
	InboxID     string
	RequestedBy []byte
	Options     ArchiveOptions
	CreatedAtNs int64
}

// RemoteArchive is a pin-sealed archive published to the inbox's sync group.
type RemoteArchive struct {
	Seq      uint64
	InboxID  string
	Pin      string
	SentBy   []byte
	Metadata ArchiveMetadata
	Blob     []byte
}

// Backend is the network surface the core talks to. Implementations must be
// safe for concurrent use.
type Backend interface {
	// RegisterInstallation announces an identity so other clients can
	// resolve and message it. Registering the same inbox again with a new
	// installation key adds that installation to the inbox.
	RegisterInstallation(inboxID, accountIdentifier string, installationID []byte) error

	// ResolveInboxID maps an account identifier to a registered inbox ID.
	// Returns "" if the identifier is unknown.
	ResolveInboxID(accountIdentifier string) string

	// CanMessage reports which account identifiers belong to registered
	// inboxes.
	CanMessage(accountIdentifiers []string) map[string]bool

	// PublishWelcome delivers a group invitation to each listed inbox.
	PublishWelcome(w Welcome) error

	// QueryWelcomes returns welcomes for an inbox with Seq > after.
	QueryWelcomes(inboxID string, after uint64) ([]Welcome, error)

	// PublishMessage appends a message envelope to a group's log.
	PublishMessage(env Envelope) error

	// QueryMessages returns envelopes for a group with Seq > after.
	QueryMessages(groupID string, after uint64) ([]Envelope, error)

	// InboxStates returns the registered state for each known inbox ID.
	// Unknown IDs are omitted from the result.
	InboxStates(inboxIDs []string) []InboxState

	// PublishSyncRequest records a device sync request for an inbox.
	PublishSyncRequest(r SyncRequest) error

	// QuerySyncRequests returns sync requests for an inbox with Seq > after.
	QuerySyncRequests(inboxID string, after uint64) ([]SyncRequest, error)

	// PublishArchive stores a pin-sealed archive in the inbox's sync group.
	PublishArchive(a RemoteArchive) error

	// QueryArchives returns archives for an inbox exported at or after
	// sinceNs, oldest first.
	QueryArchives(inboxID string, sinceNs int64) ([]RemoteArchive, error)
}

// MemoryBackend is an in-process Backend. Clients created against the same
// host share one instance, so two clients in one process form a two-node
// network.
type MemoryBackend struct {
	mu            sync.RWMutex
	inboxes       map[string]string // account identifier -> inbox ID
	registrations map[string]*registration
	welcomes      map[string][]Welcome
	messages      map[string][]Envelope
	syncRequests  map[string][]SyncRequest
	archives      map[string][]RemoteArchive
	seq           uint64
}

// registration is one inbox's identity record: the account identifier behind
// it and every installation key registered for it.
type registration struct {
	accountIdentifier string
	installations     [][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		inboxes:       make(map[string]string),
		registrations: make(map[string]*registration),
		welcomes:      make(map[string][]Welcome),
		messages:      make(map[string][]Envelope),
		syncRequests:  make(map[string][]SyncRequest),
		archives:      make(map[string][]RemoteArchive),
	}
}

// RegisterInstallation records the identity mapping and the installation key.
func (b *MemoryBackend) RegisterInstallation(inboxID, accountIdentifier string, installationID []byte) error {
	if inboxID == "" || accountIdentifier == "" {
		return fmt.Errorf("register installation: empty inbox ID or account identifier")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inboxes[accountIdentifier] = inboxID
	reg, ok := b.registrations[inboxID]
	if !ok {
		reg = &registration{accountIdentifier: accountIdentifier}
		b.registrations[inboxID] = reg
	}
	if len(installationID) > 0 && !reg.hasInstallation(installationID) {
		reg.installations = append(reg.installations, append([]byte(nil), installationID...))
	}
	return nil
}

func (r *registration) hasInstallation(id []byte) bool {
	for _, inst := range r.installations {
		if bytes.Equal(inst, id) {
			return true
		}
	}
	return false
}

// ResolveInboxID maps an account identifier to its inbox ID.
func (b *MemoryBackend) ResolveInboxID(accountIdentifier string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inboxes[accountIdentifier]
}

// CanMessage reports registration status per identifier.
func (b *MemoryBackend) CanMessage(accountIdentifiers []string) map[string]bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]bool, len(accountIdentifiers))
	for _, id := range accountIdentifiers {
		_, ok := b.inboxes[id]
		out[id] = ok
	}
	return out
}

// PublishWelcome queues the welcome for its target inbox.
func (b *MemoryBackend) PublishWelcome(w Welcome) error {
	if w.InboxID == "" {
		return fmt.Errorf("publish welcome: empty target inbox ID")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	w.Seq = b.seq
	b.welcomes[w.InboxID] = append(b.welcomes[w.InboxID], w)
	return nil
}

// QueryWelcomes returns welcomes newer than the cursor.
func (b *MemoryBackend) QueryWelcomes(inboxID string, after uint64) ([]Welcome, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Welcome
	for _, w := range b.welcomes[inboxID] {
		if w.Seq > after {
			out = append(out, w)
		}
	}
	return out, nil
}

// PublishMessage appends to the group log.
func (b *MemoryBackend) PublishMessage(env Envelope) error {
	if env.GroupID == "" {
		return fmt.Errorf("publish message: empty group ID")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	env.Seq = b.seq
	b.messages[env.GroupID] = append(b.messages[env.GroupID], env)
	return nil
}

// QueryMessages returns envelopes newer than the cursor.
func (b *MemoryBackend) QueryMessages(groupID string, after uint64) ([]Envelope, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Envelope
	for _, env := range b.messages[groupID] {
		if env.Seq > after {
			out = append(out, env)
		}
	}
	return out, nil
}

// InboxStates returns registered identity state per inbox ID.
func (b *MemoryBackend) InboxStates(inboxIDs []string) []InboxState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []InboxState
	for _, id := range inboxIDs {
		reg, ok := b.registrations[id]
		if !ok {
			continue
		}
		s := InboxState{
			InboxID:            id,
			RecoveryIdentifier: reg.accountIdentifier,
			Identifiers:        []string{reg.accountIdentifier},
		}
		for _, inst := range reg.installations {
			s.InstallationIDs = append(s.InstallationIDs, append([]byte(nil), inst...))
		}
		out = append(out, s)
	}
	return out
}

// PublishSyncRequest records a device sync request for the inbox.
func (b *MemoryBackend) PublishSyncRequest(r SyncRequest) error {
	if r.InboxID == "" {
		return fmt.Errorf("publish sync request: empty inbox ID")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	r.Seq = b.seq
	b.syncRequests[r.InboxID] = append(b.syncRequests[r.InboxID], r)
	return nil
}

// QuerySyncRequests returns sync requests newer than the cursor.
func (b *MemoryBackend) QuerySyncRequests(inboxID string, after uint64) ([]SyncRequest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []SyncRequest
	for _, r := range b.syncRequests[inboxID] {
		if r.Seq > after {
			out = append(out, r)
		}
	}
	return out, nil
}

// PublishArchive stores a sealed archive for the inbox.
func (b *MemoryBackend) PublishArchive(a RemoteArchive) error {
	if a.InboxID == "" {
		return fmt.Errorf("publish archive: empty inbox ID")
	}
	if a.Pin == "" {
		return fmt.Errorf("publish archive: empty pin")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	a.Seq = b.seq
	b.archives[a.InboxID] = append(b.archives[a.InboxID], a)
	return nil
}

// QueryArchives returns archives exported at or after sinceNs.
func (b *MemoryBackend) QueryArchives(inboxID string, sinceNs int64) ([]RemoteArchive, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []RemoteArchive
	for _, a := range b.archives[inboxID] {
		if a.Metadata.ExportedAtNs >= sinceNs {
			out = append(out, a)
		}
	}
	return out, nil
}

var (
	backendsMu sync.Mutex
	backends   = make(map[string]*MemoryBackend)
)

// BackendFor returns the process-wide backend for a host URL, creating it on
// first use. Clients pointed at the same host see each other.
func BackendFor(host string) Backend {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	b, ok := backends[host]
	if !ok {
		b = NewMemoryBackend()
		backends[host] = b
		logrus.WithFields(logrus.Fields{
			"function": "BackendFor",
			"host":     host,
		}).Debug("Created in-memory backend")
	}
	return b
}
