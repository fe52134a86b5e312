package mls

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ConversationType distinguishes direct messages from groups.
type ConversationType int32

const (
	ConversationTypeDM ConversationType = iota
	ConversationTypeGroup
	ConversationTypeSync
)

// ConversationTypeAll is the filter value matching every conversation type.
const ConversationTypeAll ConversationType = -1

// IdentifierKind is the kind of an account identifier.
type IdentifierKind int32

const (
	IdentifierKindEthereum IdentifierKind = iota
	IdentifierKindPasskey
)

// ConsentState records whether an entity is allowed to reach this inbox.
type ConsentState int32

const (
	ConsentStateUnknown ConsentState = iota
	ConsentStateAllowed
	ConsentStateDenied
)

// ConsentEntityType is what a consent record refers to.
type ConsentEntityType int32

const (
	ConsentEntityConversation ConsentEntityType = iota
	ConsentEntityInbox
)

// MessageKind distinguishes application content from membership changes.
type MessageKind int32

const (
	MessageKindApplication MessageKind = iota + 1
	MessageKindMembershipChange
)

// DeliveryStatus tracks whether a message reached the network.
type DeliveryStatus int32

const (
	DeliveryStatusUnpublished DeliveryStatus = iota + 1
	DeliveryStatusPublished
	DeliveryStatusFailed
)

// PermissionLevel is a member's standing within a group.
type PermissionLevel int32

const (
	PermissionMember PermissionLevel = iota
	PermissionAdmin
	PermissionSuperAdmin
)

// ConsentRecord pairs an entity with its consent state.
type ConsentRecord struct {
	EntityType ConsentEntityType `cbor:"1,keyasint"`
	State      ConsentState      `cbor:"2,keyasint"`
	Entity     string            `cbor:"3,keyasint"`
}

// PreferenceUpdateKind is the kind of a preference update event.
type PreferenceUpdateKind int32

const (
	PreferenceUpdateConsent PreferenceUpdateKind = iota
	PreferenceUpdateHmacKey
)

// PreferenceUpdate is a user preference change delivered to subscribers.
type PreferenceUpdate struct {
	Kind    PreferenceUpdateKind
	Consent ConsentRecord
	HmacKey []byte
}

// StoredMessage is one message in a conversation's history.
type StoredMessage struct {
	ID                   string         `cbor:"1,keyasint"`
	GroupID              string         `cbor:"2,keyasint"`
	SenderInboxID        string         `cbor:"3,keyasint"`
	SenderInstallationID []byte         `cbor:"4,keyasint"`
	SentAtNs             int64          `cbor:"5,keyasint"`
	Kind                 MessageKind    `cbor:"6,keyasint"`
	DeliveryStatus       DeliveryStatus `cbor:"7,keyasint"`
	Content              []byte         `cbor:"8,keyasint"`
}

// GroupMember describes one member of a conversation.
type GroupMember struct {
	InboxID           string          `cbor:"1,keyasint"`
	AccountIdentifier string          `cbor:"2,keyasint"`
	PermissionLevel   PermissionLevel `cbor:"3,keyasint"`
	ConsentState      ConsentState    `cbor:"4,keyasint"`
}

// GenerateInboxID derives a stable inbox ID from an account identifier and a
// nonce. The same identifier and nonce always produce the same inbox ID.
func GenerateInboxID(accountIdentifier string, nonce uint64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s/%d", strings.ToLower(accountIdentifier), nonce))
	return hex.EncodeToString(sum[:])
}

// newID returns a fresh hex identifier for groups and messages.
func newID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
