package mls

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

// ArchiveKeySize is the minimum encryption key length for archive files.
// Longer keys are truncated to this size.
const ArchiveKeySize = 32

// archiveVersion is written into every archive and checked on import.
const archiveVersion uint16 = 1

// ArchiveElements selects which record kinds an archive carries.
type ArchiveElements int32

const (
	ArchiveElementMessages ArchiveElements = 1 << iota
	ArchiveElementConsent
)

// ArchiveEverything selects all record kinds.
const ArchiveEverything = ArchiveElementMessages | ArchiveElementConsent

// ArchiveOptions bounds what an archive includes. A zero Elements value means
// everything; StartNs and EndNs, when positive, bound message timestamps.
type ArchiveOptions struct {
	Elements ArchiveElements `cbor:"1,keyasint"`
	StartNs  int64           `cbor:"2,keyasint"`
	EndNs    int64           `cbor:"3,keyasint"`
}

func (o ArchiveOptions) elements() ArchiveElements {
	if o.Elements == 0 {
		return ArchiveEverything
	}
	return o.Elements
}

// ArchiveMetadata describes an archive without its contents.
type ArchiveMetadata struct {
	Version      uint16          `cbor:"1,keyasint"`
	ExportedAtNs int64           `cbor:"2,keyasint"`
	Elements     ArchiveElements `cbor:"3,keyasint"`
	StartNs      int64           `cbor:"4,keyasint"`
	EndNs        int64           `cbor:"5,keyasint"`
}

// archivePayload is the sealed body of an archive file or remote archive.
type archivePayload struct {
	Metadata ArchiveMetadata `cbor:"1,keyasint"`
	InboxID  string          `cbor:"2,keyasint"`
	Groups   []groupSnapshot `cbor:"3,keyasint"`
	Consent  []ConsentRecord `cbor:"4,keyasint"`
}

// AvailableArchive describes a remote archive that can be imported.
type AvailableArchive struct {
	Pin                string
	Version            uint16
	ExportedAtNs       int64
	SentByInstallation []byte
}

// InboxState is the registered identity state of one inbox: the recovery
// identifier behind it, every associated account identifier, and every
// installation key registered for it.
type InboxState struct {
	InboxID            string
	RecoveryIdentifier string
	Identifiers        []string
	InstallationIDs    [][]byte
}

// archiveKey validates an encryption key and fixes it to the secretbox size.
func archiveKey(key []byte) (*[32]byte, error) {
	if len(key) < ArchiveKeySize {
		return nil, fmt.Errorf("archive key must be at least %d bytes, got %d", ArchiveKeySize, len(key))
	}
	out := new([32]byte)
	copy(out[:], key[:ArchiveKeySize])
	return out, nil
}

// pinKey derives the sealing key for a remote archive from its pin.
func pinKey(pin string) *[32]byte {
	sum := sha256.Sum256([]byte("xmtp-archive-pin:" + pin))
	out := new([32]byte)
	copy(out[:], sum[:])
	return out
}

// sealArchive encodes and encrypts a payload. The nonce is prepended.
func sealArchive(p *archivePayload, key *[32]byte) ([]byte, error) {
	raw, err := cbor.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("seal archive: encode: %w", err)
	}
	var nonce [storeNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("seal archive: nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], raw, &nonce, key), nil
}

// openArchive decrypts and decodes a sealed payload.
func openArchive(blob []byte, key *[32]byte) (*archivePayload, error) {
	if len(blob) < storeNonceSize {
		return nil, fmt.Errorf("open archive: ciphertext shorter than nonce")
	}
	var nonce [storeNonceSize]byte
	copy(nonce[:], blob[:storeNonceSize])
	raw, ok := secretbox.Open(nil, blob[storeNonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("open archive: decryption failed (wrong key?)")
	}
	var p archivePayload
	if err := cbor.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("open archive: decode: %w", err)
	}
	if p.Metadata.Version != archiveVersion {
		return nil, fmt.Errorf("open archive: unsupported version %d", p.Metadata.Version)
	}
	return &p, nil
}

// buildArchive collects the client's records per the options.
func (c *Client) buildArchive(opts ArchiveOptions) *archivePayload {
	elements := opts.elements()
	p := &archivePayload{
		Metadata: ArchiveMetadata{
			Version:      archiveVersion,
			ExportedAtNs: time.Now().UnixNano(),
			Elements:     elements,
			StartNs:      opts.StartNs,
			EndNs:        opts.EndNs,
		},
		InboxID: c.InboxID(),
	}

	for _, g := range c.Conversations(ConversationTypeAll) {
		gs := g.snapshot()
		if elements&ArchiveElementMessages == 0 {
			gs.Messages = nil
		} else if opts.StartNs > 0 || opts.EndNs > 0 {
			kept := gs.Messages[:0]
			for _, m := range gs.Messages {
				if opts.StartNs > 0 && m.SentAtNs < opts.StartNs {
					continue
				}
				if opts.EndNs > 0 && m.SentAtNs > opts.EndNs {
					continue
				}
				kept = append(kept, m)
			}
			gs.Messages = kept
		}
		p.Groups = append(p.Groups, gs)
	}

	if elements&ArchiveElementConsent != 0 {
		c.mu.RLock()
		for key, state := range c.consent {
			p.Consent = append(p.Consent, ConsentRecord{EntityType: key.entityType, State: state, Entity: key.entity})
		}
		c.mu.RUnlock()
	}
	return p
}

// mergeArchive folds archived records into local state, skipping everything
// already known, and notifies subscribers of what is new.
func (c *Client) mergeArchive(p *archivePayload) error {
	if p.InboxID != c.InboxID() {
		return fmt.Errorf("merge archive: archive belongs to inbox %s", p.InboxID)
	}

	var freshGroups []*Group
	type pendingMerge struct {
		group    *Group
		messages []StoredMessage
	}
	var pending []pendingMerge
	var freshConsent []ConsentRecord
	changed := false

	c.mu.Lock()
	for _, gs := range p.Groups {
		existing, ok := c.groups[gs.ID]
		if !ok {
			g := c.newGroupFromSnapshot(gs)
			c.groups[gs.ID] = g
			freshGroups = append(freshGroups, g)
			changed = true
			continue
		}
		if len(gs.Messages) > 0 {
			pending = append(pending, pendingMerge{group: existing, messages: gs.Messages})
		}
	}
	for _, r := range p.Consent {
		key := consentKey{r.EntityType, r.Entity}
		if _, ok := c.consent[key]; ok {
			continue
		}
		c.consent[key] = r.State
		freshConsent = append(freshConsent, r)
		changed = true
	}
	c.mu.Unlock()

	// Group locks nest outside the client lock, so message merges run after
	// it is released.
	var freshMessages []struct {
		group *Group
		msg   StoredMessage
	}
	for _, pm := range pending {
		for _, m := range pm.messages {
			if pm.group.mergeMessage(m) {
				freshMessages = append(freshMessages, struct {
					group *Group
					msg   StoredMessage
				}{pm.group, m})
				changed = true
			}
		}
	}

	if changed {
		if err := c.persist(); err != nil {
			return err
		}
	}
	for _, g := range freshGroups {
		c.dispatcher.emitConversation(g)
	}
	for i := range freshMessages {
		c.dispatcher.emitMessage(freshMessages[i].group, &freshMessages[i].msg)
	}
	if len(freshConsent) > 0 {
		c.dispatcher.emitConsent(freshConsent)
	}
	logrus.WithFields(logrus.Fields{
		"function":     "Client.mergeArchive",
		"new_groups":   len(freshGroups),
		"new_messages": len(freshMessages),
		"new_consent":  len(freshConsent),
	}).Debug("Merged archive")
	return nil
}

// CreateArchive exports the client's records to a sealed file at path.
// key must be at least 32 bytes.
func (c *Client) CreateArchive(path string, opts ArchiveOptions, key []byte) error {
	if path == "" {
		return fmt.Errorf("create archive: empty path")
	}
	k, err := archiveKey(key)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	blob, err := sealArchive(c.buildArchive(opts), k)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	return nil
}

// ImportArchive reads a sealed archive file and merges its records into
// local state. Records already present are left untouched.
func (c *Client) ImportArchive(path string, key []byte) error {
	p, err := readArchiveFile(path, key)
	if err != nil {
		return fmt.Errorf("import archive: %w", err)
	}
	return c.mergeArchive(p)
}

// ReadArchiveMetadata reads an archive file's metadata without importing it.
func ReadArchiveMetadata(path string, key []byte) (ArchiveMetadata, error) {
	p, err := readArchiveFile(path, key)
	if err != nil {
		return ArchiveMetadata{}, fmt.Errorf("archive metadata: %w", err)
	}
	return p.Metadata, nil
}

func readArchiveFile(path string, key []byte) (*archivePayload, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	k, err := archiveKey(key)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return openArchive(blob, k)
}

// SendSyncRequest asks the inbox's other installations to publish an archive
// of their records.
func (c *Client) SendSyncRequest(opts ArchiveOptions) error {
	return c.backend.PublishSyncRequest(SyncRequest{
		InboxID:     c.InboxID(),
		RequestedBy: c.InstallationID(),
		Options:     opts,
		CreatedAtNs: time.Now().UnixNano(),
	})
}

// PendingSyncRequests returns sync requests published by the inbox's other
// installations.
func (c *Client) PendingSyncRequests() ([]SyncRequest, error) {
	all, err := c.backend.QuerySyncRequests(c.InboxID(), 0)
	if err != nil {
		return nil, fmt.Errorf("pending sync requests: %w", err)
	}
	self := c.InstallationID()
	out := all[:0]
	for _, r := range all {
		if string(r.RequestedBy) == string(self) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// SendArchive publishes a pin-sealed archive to the inbox's sync group so
// another installation can import it with the same pin.
func (c *Client) SendArchive(opts ArchiveOptions, pin string) error {
	if pin == "" {
		return fmt.Errorf("send archive: empty pin")
	}
	p := c.buildArchive(opts)
	blob, err := sealArchive(p, pinKey(pin))
	if err != nil {
		return fmt.Errorf("send archive: %w", err)
	}
	return c.backend.PublishArchive(RemoteArchive{
		InboxID:  c.InboxID(),
		Pin:      pin,
		SentBy:   c.InstallationID(),
		Metadata: p.Metadata,
		Blob:     blob,
	})
}

// ListAvailableArchives lists archives published for this inbox by other
// installations, newest first. daysCutoff limits how far back to look;
// zero or negative means no limit.
func (c *Client) ListAvailableArchives(daysCutoff int64) ([]AvailableArchive, error) {
	var sinceNs int64
	if daysCutoff > 0 {
		sinceNs = time.Now().Add(-time.Duration(daysCutoff) * 24 * time.Hour).UnixNano()
	}
	archives, err := c.backend.QueryArchives(c.InboxID(), sinceNs)
	if err != nil {
		return nil, fmt.Errorf("list available archives: %w", err)
	}
	self := c.InstallationID()
	var out []AvailableArchive
	for _, a := range archives {
		if string(a.SentBy) == string(self) {
			continue
		}
		out = append(out, AvailableArchive{
			Pin:                a.Pin,
			Version:            a.Metadata.Version,
			ExportedAtNs:       a.Metadata.ExportedAtNs,
			SentByInstallation: append([]byte(nil), a.SentBy...),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExportedAtNs > out[j].ExportedAtNs
	})
	return out, nil
}

// ProcessArchive imports a remote archive published for this inbox. An empty
// pin selects the newest archive; otherwise the pin must match exactly.
func (c *Client) ProcessArchive(pin string) error {
	archives, err := c.backend.QueryArchives(c.InboxID(), 0)
	if err != nil {
		return fmt.Errorf("process archive: %w", err)
	}
	var picked *RemoteArchive
	for i := range archives {
		a := &archives[i]
		if pin != "" {
			if a.Pin == pin {
				picked = a
			}
			continue
		}
		if picked == nil || a.Metadata.ExportedAtNs > picked.Metadata.ExportedAtNs {
			picked = a
		}
	}
	if picked == nil {
		if pin != "" {
			return fmt.Errorf("process archive: no archive with pin %q", pin)
		}
		return fmt.Errorf("process archive: no archives available")
	}
	p, err := openArchive(picked.Blob, pinKey(picked.Pin))
	if err != nil {
		return fmt.Errorf("process archive: %w", err)
	}
	return c.mergeArchive(p)
}

// InboxState returns this inbox's registered identity state. Before
// registration the backend has no record, so the local identity is reported.
// The refresh flag is accepted for call-site symmetry; the in-process backend
// has no cached copy to refresh.
func (c *Client) InboxState(refresh bool) (InboxState, error) {
	states := c.backend.InboxStates([]string{c.InboxID()})
	if len(states) == 0 {
		return InboxState{
			InboxID:            c.InboxID(),
			RecoveryIdentifier: c.AccountIdentifier(),
			Identifiers:        []string{c.AccountIdentifier()},
			InstallationIDs:    [][]byte{c.InstallationID()},
		}, nil
	}
	return states[0], nil
}

// FetchInboxStates returns the registered identity state of each given inbox.
// Unknown inbox IDs are omitted.
func (c *Client) FetchInboxStates(inboxIDs []string) ([]InboxState, error) {
	if len(inboxIDs) == 0 {
		return nil, fmt.Errorf("fetch inbox states: no inbox IDs given")
	}
	return c.backend.InboxStates(inboxIDs), nil
}
