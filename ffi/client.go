package ffi

import (
	"context"
	"encoding/hex"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/xmtpcore/mls"
)

// ClientOptions carries everything needed to construct a client across the
// boundary. Fields mirror the C options struct one to one.
type ClientOptions struct {
	// Host selects the backend endpoint. Clients sharing a host share a
	// backend.
	Host     string
	IsSecure bool
	// DBPath is the local database location. Empty means ephemeral.
	DBPath string
	// EncryptionKey encrypts the local database when 32 bytes are given.
	EncryptionKey []byte
	// InboxID must match the identity derived for AccountIdentifier.
	InboxID           string
	AccountIdentifier string
	IdentifierKind    int32
	// AppVersion tags backend requests. Informational.
	AppVersion string
}

// ConsentRecord is the flat boundary form of a consent ledger entry.
type ConsentRecord struct {
	EntityType int32
	State      int32
	Entity     string
}

// PreferenceUpdate is the flat boundary form of a preference sync event.
type PreferenceUpdate struct {
	Kind    int32
	Consent ConsentRecord
	HmacKey []byte
}

// LibraryVersion returns the core version string.
func LibraryVersion() string {
	return mls.Version
}

// GenerateInboxID derives the inbox ID for an account identifier and nonce.
func GenerateInboxID(accountIdentifier string, nonce uint64) string {
	return mls.GenerateInboxID(accountIdentifier, nonce)
}

// ClientCreate constructs a client from opts and stores its handle in out.
func ClientCreate(opts *ClientOptions, out *unsafe.Pointer) int32 {
	if opts == nil {
		return statusOf(invalidf("nil client options"))
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	if len(opts.EncryptionKey) != 0 && len(opts.EncryptionKey) != 32 {
		return statusOf(invalidf("encryption key must be 32 bytes, got %d", len(opts.EncryptionKey)))
	}
	return guardAsync(func(ctx context.Context) error {
		c, err := mls.NewClient(mls.Options{
			Host:              opts.Host,
			IsSecure:          opts.IsSecure,
			DBPath:            opts.DBPath,
			EncryptionKey:     opts.EncryptionKey,
			InboxID:           opts.InboxID,
			AccountIdentifier: opts.AccountIdentifier,
			IdentifierKind:    mls.IdentifierKind(opts.IdentifierKind),
			AppVersion:        opts.AppVersion,
		})
		if err != nil {
			return err
		}
		*out = handles.put(kindClient, c)
		logrus.WithFields(logrus.Fields{
			"function": "ClientCreate",
			"inbox_id": c.InboxID(),
		}).Debug("created client handle")
		return nil
	})
}

// ClientFree releases a client handle and shuts the client down. The handle
// is invalid afterwards; a second free fails with StatusInvalid.
func ClientFree(h unsafe.Pointer) int32 {
	obj, err := handles.take(kindClient, h)
	if err != nil {
		return statusOf(err)
	}
	return guard(func() error {
		return obj.(*mls.Client).Close()
	})
}

// ClientInboxID returns the client's inbox ID, or "" on error.
func ClientInboxID(h unsafe.Pointer) string {
	c, err := clientFromHandle(h)
	if err != nil {
		statusOf(err)
		return ""
	}
	return c.InboxID()
}

// ClientInstallationID returns the installation key as raw bytes, or nil on
// error.
func ClientInstallationID(h unsafe.Pointer) []byte {
	c, err := clientFromHandle(h)
	if err != nil {
		statusOf(err)
		return nil
	}
	return c.InstallationID()
}

// ClientInstallationIDHex returns the installation key as lowercase hex, or
// "" on error.
func ClientInstallationIDHex(h unsafe.Pointer) string {
	b := ClientInstallationID(h)
	if b == nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// ClientIsRegistered reports registration as 1 or 0, or -1 on error.
func ClientIsRegistered(h unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		statusOf(err)
		return -1
	}
	if c.IsRegistered() {
		return 1
	}
	return 0
}

// ClientRegisterIdentity completes identity registration with the signature
// produced by the account's signer.
func ClientRegisterIdentity(h unsafe.Pointer, signature []byte) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return c.RegisterIdentity(signature)
	})
}

// ClientCanMessage checks reachability for each identifier. Results land in
// out, which must be at least as long as identifiers: 1 reachable, 0 not.
func ClientCanMessage(h unsafe.Pointer, identifiers []string, out []int32) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if len(out) < len(identifiers) {
		return statusOf(invalidf("result buffer holds %d entries, need %d", len(out), len(identifiers)))
	}
	return guardAsync(func(ctx context.Context) error {
		reach, err := c.CanMessage(identifiers)
		if err != nil {
			return err
		}
		for i, id := range identifiers {
			if reach[id] {
				out[i] = 1
			} else {
				out[i] = 0
			}
		}
		return nil
	})
}

// ClientSignWithInstallationKey signs text with the installation key and
// returns the signature, or nil on error.
func ClientSignWithInstallationKey(h unsafe.Pointer, text string) []byte {
	c, err := clientFromHandle(h)
	if err != nil {
		statusOf(err)
		return nil
	}
	return c.SignWithInstallationKey(text)
}

// ClientVerifySignedWithInstallationKey reports whether signature is a valid
// installation-key signature over text: 1 valid, 0 invalid, negative status
// on error.
func ClientVerifySignedWithInstallationKey(h unsafe.Pointer, text string, signature []byte) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if c.VerifySignedWithInstallationKey(text, signature) {
		return 1
	}
	return 0
}

// ClientSetConsentStates applies a batch of consent records atomically and
// notifies consent and preference streams once.
func ClientSetConsentStates(h unsafe.Pointer, records []ConsentRecord) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	coreRecords := make([]mls.ConsentRecord, len(records))
	for i, r := range records {
		coreRecords[i] = mls.ConsentRecord{
			EntityType: mls.ConsentEntityType(r.EntityType),
			State:      mls.ConsentState(r.State),
			Entity:     r.Entity,
		}
	}
	return guardAsync(func(ctx context.Context) error {
		return c.SetConsentStates(coreRecords)
	})
}

// ClientGetConsentState looks up the consent state for an entity and stores
// it in out.
func ClientGetConsentState(h unsafe.Pointer, entityType int32, entity string, out *int32) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output state"))
	}
	return guardAsync(func(ctx context.Context) error {
		state, err := c.ConsentState(mls.ConsentEntityType(entityType), entity)
		if err != nil {
			return err
		}
		*out = int32(state)
		return nil
	})
}

// ClientMessageByID looks up a message by ID and stores an owned message
// handle in out.
func ClientMessageByID(h unsafe.Pointer, messageID string, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guardAsync(func(ctx context.Context) error {
		msg, err := c.MessageByID(messageID)
		if err != nil {
			return err
		}
		*out = handles.put(kindMessage, &msg)
		return nil
	})
}

// ClientDeleteMessageByID deletes a locally stored message. The number of
// rows removed (0 or 1) lands in out.
func ClientDeleteMessageByID(h unsafe.Pointer, messageID string, out *int32) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		n, err := c.DeleteMessageByID(messageID)
		if err != nil {
			return err
		}
		if out != nil {
			*out = int32(n)
		}
		return nil
	})
}

// ClientSyncWelcomes pulls pending welcomes from the backend. The number of
// new conversations lands in out.
func ClientSyncWelcomes(h unsafe.Pointer, out *int32) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		n, err := c.SyncWelcomes()
		if err != nil {
			return err
		}
		if out != nil {
			*out = int32(n)
		}
		return nil
	})
}

// ClientSyncAll pulls welcomes and then every conversation's messages. The
// conversation and message counts land in outConversations and outMessages.
func ClientSyncAll(h unsafe.Pointer, outConversations, outMessages *int32) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		convs, msgs, err := c.SyncAll()
		if err != nil {
			return err
		}
		if outConversations != nil {
			*outConversations = int32(convs)
		}
		if outMessages != nil {
			*outMessages = int32(msgs)
		}
		return nil
	})
}
