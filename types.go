package xmtpcore

// ConversationType distinguishes direct and group conversations.
type ConversationType int32

const (
	ConversationTypeDM    ConversationType = 0
	ConversationTypeGroup ConversationType = 1
	ConversationTypeSync  ConversationType = 2

	// ConversationTypeAll matches every conversation type in listings and
	// streams.
	ConversationTypeAll ConversationType = -1
)

// IdentifierKind names the account identifier scheme.
type IdentifierKind int32

const (
	IdentifierKindEthereum IdentifierKind = 0
	IdentifierKindPasskey  IdentifierKind = 1
)

// ConsentState records whether an entity may reach this inbox.
type ConsentState int32

const (
	ConsentStateUnknown ConsentState = 0
	ConsentStateAllowed ConsentState = 1
	ConsentStateDenied  ConsentState = 2
)

// ConsentEntityType names what a consent record refers to.
type ConsentEntityType int32

const (
	ConsentEntityConversation ConsentEntityType = 0
	ConsentEntityInbox        ConsentEntityType = 1
)

// MessageKind distinguishes payload messages from membership bookkeeping.
type MessageKind int32

const (
	MessageKindApplication      MessageKind = 1
	MessageKindMembershipChange MessageKind = 2
)

// DeliveryStatus tracks a message's publish state.
type DeliveryStatus int32

const (
	DeliveryStatusUnpublished DeliveryStatus = 1
	DeliveryStatusPublished   DeliveryStatus = 2
	DeliveryStatusFailed      DeliveryStatus = 3
)

// PermissionLevel is a member's standing within a group.
type PermissionLevel int32

const (
	PermissionMember     PermissionLevel = 0
	PermissionAdmin      PermissionLevel = 1
	PermissionSuperAdmin PermissionLevel = 2
)

// AdminAction selects the operation for UpdateAdminList.
type AdminAction int32

const (
	AdminActionAdd AdminAction = iota
	AdminActionRemove
	AdminActionAddSuper
	AdminActionRemoveSuper
)

// ConsentRecord is one consent ledger entry.
type ConsentRecord struct {
	EntityType ConsentEntityType
	State      ConsentState
	Entity     string
}

// PreferenceUpdateKind names the preference stream event types.
type PreferenceUpdateKind int32

const (
	PreferenceUpdateConsent PreferenceUpdateKind = 0
	PreferenceUpdateHmacKey PreferenceUpdateKind = 1
)

// PreferenceUpdate is one preference stream event.
type PreferenceUpdate struct {
	Kind    PreferenceUpdateKind
	Consent ConsentRecord
	HmacKey []byte
}

// Member describes one conversation participant.
type Member struct {
	InboxID           string
	AccountIdentifier string
	PermissionLevel   PermissionLevel
	ConsentState      ConsentState
}

// GroupOptions carries optional metadata for group creation.
type GroupOptions struct {
	Name        string
	Description string
	ImageURL    string
}

// ListMessagesOptions filters and bounds a message query. Zero values mean
// unbounded, oldest first.
type ListMessagesOptions struct {
	SentAfterNs  int64
	SentBeforeNs int64
	Limit        int
	Descending   bool
}
