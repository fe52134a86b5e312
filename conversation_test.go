package xmtpcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupMetadata(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xC0DE000000000000000000000000000000000001")
	bob := newTestClient(t, host, "0xC0DE000000000000000000000000000000000002")

	g, err := alice.CreateGroup([]string{bob.InboxID()}, GroupOptions{
		Name:        "planning",
		Description: "weekly planning",
		ImageURL:    "https://example.com/g.png",
	})
	require.NoError(t, err)
	defer g.Close()

	name, err := g.Name()
	require.NoError(t, err)
	assert.Equal(t, "planning", name)

	desc, err := g.Description()
	require.NoError(t, err)
	assert.Equal(t, "weekly planning", desc)

	kind, err := g.Type()
	require.NoError(t, err)
	assert.Equal(t, ConversationTypeGroup, kind)

	active, err := g.IsActive()
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, g.UpdateName("planning v2"))
	name, err = g.Name()
	require.NoError(t, err)
	assert.Equal(t, "planning v2", name)
}

func TestDMAccessorsAndFind(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xC0DE000000000000000000000000000000000003")
	bob := newTestClient(t, host, "0xC0DE000000000000000000000000000000000004")

	missing, err := alice.FindDMByInboxID(bob.InboxID())
	require.NoError(t, err)
	assert.Nil(t, missing)

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()

	kind, err := dm.Type()
	require.NoError(t, err)
	assert.Equal(t, ConversationTypeDM, kind)

	peer, err := dm.DMPeerInboxID()
	require.NoError(t, err)
	assert.Equal(t, bob.InboxID(), peer)

	found, err := alice.FindDMByInboxID(bob.InboxID())
	require.NoError(t, err)
	require.NotNil(t, found)
	defer found.Close()

	dmID, err := dm.ID()
	require.NoError(t, err)
	foundID, err := found.ID()
	require.NoError(t, err)
	assert.Equal(t, dmID, foundID)

	looked, err := alice.ConversationByID(dmID)
	require.NoError(t, err)
	defer looked.Close()
}

func TestConversationByIDUnknown(t *testing.T) {
	c := newTestClient(t, testHost(t), "0xC0DE000000000000000000000000000000000005")
	_, err := c.ConversationByID("no-such-conversation")
	require.Error(t, err)
	requireCategory(t, err, CategoryValidation)
}

func TestConversationsListing(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xC0DE000000000000000000000000000000000006")
	bob := newTestClient(t, host, "0xC0DE000000000000000000000000000000000007")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()
	g, err := alice.CreateGroup([]string{bob.InboxID()}, GroupOptions{Name: "both"})
	require.NoError(t, err)
	defer g.Close()

	all, err := alice.Conversations(ConversationTypeAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, conv := range all {
		defer conv.Close()
	}

	// Newest first.
	gID, err := g.ID()
	require.NoError(t, err)
	firstID, err := all[0].ID()
	require.NoError(t, err)
	assert.Equal(t, gID, firstID)

	groups, err := alice.Conversations(ConversationTypeGroup)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	groups[0].Close()
}

func TestConversationCloseIsIdempotent(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xC0DE000000000000000000000000000000000008")
	bob := newTestClient(t, host, "0xC0DE000000000000000000000000000000000009")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	require.NoError(t, dm.Close())
	require.NoError(t, dm.Close())

	_, err = dm.ID()
	requireCategory(t, err, CategoryValidation)
	_, err = dm.Sync()
	requireCategory(t, err, CategoryValidation)
}

func TestMessagesQuery(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xC0DE00000000000000000000000000000000000A")
	bob := newTestClient(t, host, "0xC0DE00000000000000000000000000000000000B")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()

	for _, body := range []string{"one", "two", "three"} {
		_, err := dm.Send([]byte(body))
		require.NoError(t, err)
	}

	msgs, err := dm.Messages(ListMessagesOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []byte("one"), msgs[0].Content)
	assert.Equal(t, []byte("three"), msgs[2].Content)
	assert.Equal(t, DeliveryStatusPublished, msgs[0].DeliveryStatus)

	newest, err := dm.Messages(ListMessagesOptions{Descending: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, []byte("three"), newest[0].Content)

	after, err := dm.Messages(ListMessagesOptions{SentAfterNs: msgs[0].SentAtNs})
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, []byte("two"), after[0].Content)
}

func TestSendValidation(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xC0DE00000000000000000000000000000000000C")
	bob := newTestClient(t, host, "0xC0DE00000000000000000000000000000000000D")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()

	_, err = dm.Send(nil)
	require.Error(t, err)
}

func TestMembershipAndAdmins(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xC0DE00000000000000000000000000000000000E")
	bob := newTestClient(t, host, "0xC0DE00000000000000000000000000000000000F")
	carol := newTestClient(t, host, "0xC0DE000000000000000000000000000000000010")

	g, err := alice.CreateGroup([]string{bob.InboxID()}, GroupOptions{Name: "crew"})
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.AddMembers([]string{carol.InboxID()}))
	members, err := g.Members()
	require.NoError(t, err)
	require.Len(t, members, 3)

	super, err := g.IsSuperAdmin(alice.InboxID())
	require.NoError(t, err)
	assert.True(t, super)

	// Super admin standing is distinct from admin standing.
	admin, err := g.IsAdmin(alice.InboxID())
	require.NoError(t, err)
	assert.False(t, admin)

	require.NoError(t, g.UpdateAdminList(bob.InboxID(), AdminActionAdd))
	admin, err = g.IsAdmin(bob.InboxID())
	require.NoError(t, err)
	assert.True(t, admin)

	admins, err := g.Admins()
	require.NoError(t, err)
	assert.Equal(t, []string{bob.InboxID()}, admins)

	require.NoError(t, g.RemoveMembers([]string{carol.InboxID()}))
	members, err = g.Members()
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestConversationConsent(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xC0DE000000000000000000000000000000000011")
	bob := newTestClient(t, host, "0xC0DE000000000000000000000000000000000012")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()

	state, err := dm.ConsentState()
	require.NoError(t, err)
	assert.Equal(t, ConsentStateUnknown, state)

	require.NoError(t, dm.UpdateConsentState(ConsentStateDenied))
	state, err = dm.ConsentState()
	require.NoError(t, err)
	assert.Equal(t, ConsentStateDenied, state)

	// The decision also lands in the client's consent ledger.
	dmID, err := dm.ID()
	require.NoError(t, err)
	ledger, err := alice.ConsentState(ConsentEntityConversation, dmID)
	require.NoError(t, err)
	assert.Equal(t, ConsentStateDenied, ledger)
}

func TestPeerSyncPullsReply(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xC0DE000000000000000000000000000000000013")
	bob := newTestClient(t, host, "0xC0DE000000000000000000000000000000000014")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()
	_, err = dm.Send([]byte("ping"))
	require.NoError(t, err)

	welcomed, err := bob.SyncWelcomes()
	require.NoError(t, err)
	require.Equal(t, 1, welcomed)

	dmID, err := dm.ID()
	require.NoError(t, err)
	bobDM, err := bob.ConversationByID(dmID)
	require.NoError(t, err)
	defer bobDM.Close()

	n, err := bobDM.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = bobDM.Send([]byte("pong"))
	require.NoError(t, err)
	n, err = dm.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs, err := dm.Messages(ListMessagesOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, bob.InboxID(), msgs[1].SenderInboxID)
}
