package mls

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, backend Backend, account string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		Host:              "test",
		Backend:           backend,
		InboxID:           GenerateInboxID(account, 0),
		AccountIdentifier: account,
	})
	require.NoError(t, err)
	require.NoError(t, c.RegisterIdentity([]byte("approved")))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing host", Options{InboxID: "i", AccountIdentifier: "a"}},
		{"missing inbox", Options{Host: "h", AccountIdentifier: "a"}},
		{"missing account", Options{Host: "h", InboxID: "i"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestRegisterIdentity(t *testing.T) {
	backend := NewMemoryBackend()
	account := "0xAccount1"
	c, err := NewClient(Options{
		Host:              "test",
		Backend:           backend,
		InboxID:           GenerateInboxID(account, 0),
		AccountIdentifier: account,
	})
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.IsRegistered())
	assert.Error(t, c.RegisterIdentity(nil)) // signature required

	require.NoError(t, c.RegisterIdentity([]byte("approved")))
	assert.True(t, c.IsRegistered())

	// Registering twice is a no-op.
	require.NoError(t, c.RegisterIdentity([]byte("again")))

	reach, err := c.CanMessage([]string{account, "0xStranger"})
	require.NoError(t, err)
	assert.True(t, reach[account])
	assert.False(t, reach["0xStranger"])
}

func TestInstallationKeySignatures(t *testing.T) {
	backend := NewMemoryBackend()
	c := newTestClient(t, backend, "0xSigner")

	sig := c.SignWithInstallationKey("a statement")
	assert.True(t, c.VerifySignedWithInstallationKey("a statement", sig))
	assert.False(t, c.VerifySignedWithInstallationKey("another statement", sig))

	// A different installation cannot produce valid signatures for this one.
	other := newTestClient(t, backend, "0xOther")
	assert.False(t, c.VerifySignedWithInstallationKey("a statement", other.SignWithInstallationKey("a statement")))
}

func TestClientRestoresFromStore(t *testing.T) {
	backend := NewMemoryBackend()
	path := filepath.Join(t.TempDir(), "client.db")
	account := "0xPersisted"
	opts := Options{
		Host:              "test",
		Backend:           backend,
		DBPath:            path,
		InboxID:           GenerateInboxID(account, 0),
		AccountIdentifier: account,
	}

	c, err := NewClient(opts)
	require.NoError(t, err)
	require.NoError(t, c.RegisterIdentity([]byte("approved")))
	installation := c.InstallationID()

	g, err := c.CreateGroup(nil, GroupOptions{Name: "survivors"})
	require.NoError(t, err)
	_, err = g.Send([]byte("before restart"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	// A fresh client on the same store comes back with identity and history.
	c2, err := NewClient(opts)
	require.NoError(t, err)
	defer c2.Close()

	assert.True(t, c2.IsRegistered())
	assert.Equal(t, installation, c2.InstallationID())
	g2 := c2.ConversationByID(g.ID())
	require.NotNil(t, g2)
	msgs := g2.Messages(ListMessagesOptions{})
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("before restart"), msgs[0].Content)
}

func TestClientRejectsForeignStore(t *testing.T) {
	backend := NewMemoryBackend()
	path := filepath.Join(t.TempDir(), "client.db")

	c, err := NewClient(Options{
		Host: "test", Backend: backend, DBPath: path,
		InboxID:           GenerateInboxID("0xFirst", 0),
		AccountIdentifier: "0xFirst",
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = NewClient(Options{
		Host: "test", Backend: backend, DBPath: path,
		InboxID:           GenerateInboxID("0xSecond", 0),
		AccountIdentifier: "0xSecond",
	})
	assert.Error(t, err)
}

func TestCreateDM(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")
	bob := newTestClient(t, backend, "0xBob")

	_, err := alice.CreateDM("")
	assert.Error(t, err)
	_, err = alice.CreateDM(alice.InboxID())
	assert.Error(t, err)

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	assert.Equal(t, ConversationTypeDM, dm.Type())
	assert.Equal(t, bob.InboxID(), dm.DMPeerInboxID())

	// A second create returns the same conversation.
	again, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	assert.Same(t, dm, again)
	assert.Same(t, dm, alice.FindDMByInboxID(bob.InboxID()))
}

func TestWelcomeAndMessageSync(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")
	bob := newTestClient(t, backend, "0xBob")

	g, err := alice.CreateGroup([]string{bob.InboxID()}, GroupOptions{Name: "shared"})
	require.NoError(t, err)
	_, err = g.Send([]byte("one"))
	require.NoError(t, err)
	_, err = g.Send([]byte("two"))
	require.NoError(t, err)

	// Bob has nothing until he syncs.
	assert.Empty(t, bob.Conversations(ConversationTypeAll))

	newConvs, newMsgs, err := bob.SyncAll()
	require.NoError(t, err)
	assert.Equal(t, 1, newConvs)
	assert.Equal(t, 2, newMsgs)

	bg := bob.ConversationByID(g.ID())
	require.NotNil(t, bg)
	assert.Equal(t, "shared", bg.Name())
	assert.Equal(t, alice.InboxID(), bg.AddedByInboxID())

	msgs := bg.Messages(ListMessagesOptions{})
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("one"), msgs[0].Content)
	assert.Equal(t, alice.InboxID(), msgs[0].SenderInboxID)

	// A repeated sync pulls nothing new.
	newConvs, newMsgs, err = bob.SyncAll()
	require.NoError(t, err)
	assert.Zero(t, newConvs)
	assert.Zero(t, newMsgs)

	// Replies flow back to Alice the same way.
	_, err = bg.Send([]byte("reply"))
	require.NoError(t, err)
	n, err := g.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	msgs = g.Messages(ListMessagesOptions{Descending: true, Limit: 1})
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("reply"), msgs[0].Content)
}

func TestConversationsNewestFirst(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")
	bob := newTestClient(t, backend, "0xBob")

	first, err := alice.CreateGroup(nil, GroupOptions{Name: "first"})
	require.NoError(t, err)
	second, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)

	all := alice.Conversations(ConversationTypeAll)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID(), all[0].ID())
	assert.Equal(t, first.ID(), all[1].ID())

	dms := alice.Conversations(ConversationTypeDM)
	require.Len(t, dms, 1)
	assert.Equal(t, second.ID(), dms[0].ID())
}

func TestSetConsentStates(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	assert.Error(t, alice.SetConsentStates(nil))

	entity := GenerateInboxID("0xBob", 0)
	require.NoError(t, alice.SetConsentStates([]ConsentRecord{
		{EntityType: ConsentEntityInbox, State: ConsentStateDenied, Entity: entity},
	}))

	state, err := alice.ConsentState(ConsentEntityInbox, entity)
	require.NoError(t, err)
	assert.Equal(t, ConsentStateDenied, state)

	_, err = alice.ConsentState(ConsentEntityInbox, "")
	assert.Error(t, err)
}

func TestMessageByIDAndDelete(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	g, err := alice.CreateGroup(nil, GroupOptions{})
	require.NoError(t, err)
	id, err := g.Send([]byte("findable"))
	require.NoError(t, err)

	msg, err := alice.MessageByID(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("findable"), msg.Content)

	n, err := alice.DeleteMessageByID(id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = alice.MessageByID(id)
	assert.Error(t, err)

	n, err = alice.DeleteMessageByID(id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCloseIsIdempotent(t *testing.T) {
	backend := NewMemoryBackend()
	c, err := NewClient(Options{
		Host: "test", Backend: backend,
		InboxID:           GenerateInboxID("0xDone", 0),
		AccountIdentifier: "0xDone",
	})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
