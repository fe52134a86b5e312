package mls

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendValidation(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	g, err := alice.CreateGroup(nil, GroupOptions{})
	require.NoError(t, err)

	_, err = g.Send(nil)
	assert.Error(t, err)
	_, err = g.Send([]byte{})
	assert.Error(t, err)
}

func TestSendRecordsDeliveryStatus(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	g, err := alice.CreateGroup(nil, GroupOptions{})
	require.NoError(t, err)
	id, err := g.Send([]byte("delivered"))
	require.NoError(t, err)

	msg, err := alice.MessageByID(id)
	require.NoError(t, err)
	assert.Equal(t, DeliveryStatusPublished, msg.DeliveryStatus)
	assert.Equal(t, MessageKindApplication, msg.Kind)
}

func TestMessagesFiltering(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	g, err := alice.CreateGroup(nil, GroupOptions{})
	require.NoError(t, err)

	var stamps []int64
	for i := 0; i < 6; i++ {
		id, err := g.Send([]byte(fmt.Sprintf("n%d", i)))
		require.NoError(t, err)
		msg, err := alice.MessageByID(id)
		require.NoError(t, err)
		stamps = append(stamps, msg.SentAtNs)
	}

	tests := []struct {
		name string
		opts ListMessagesOptions
		want []string
	}{
		{"all ascending", ListMessagesOptions{}, []string{"n0", "n1", "n2", "n3", "n4", "n5"}},
		{"limit", ListMessagesOptions{Limit: 2}, []string{"n0", "n1"}},
		{"descending limit", ListMessagesOptions{Descending: true, Limit: 2}, []string{"n5", "n4"}},
		{"sent after", ListMessagesOptions{SentAfterNs: stamps[3]}, []string{"n4", "n5"}},
		{"sent before", ListMessagesOptions{SentBeforeNs: stamps[2]}, []string{"n0", "n1"}},
		{"window", ListMessagesOptions{SentAfterNs: stamps[0], SentBeforeNs: stamps[3]}, []string{"n1", "n2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := g.Messages(tt.opts)
			var got []string
			for _, m := range msgs {
				got = append(got, string(m.Content))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGroupMembership(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")
	bob := newTestClient(t, backend, "0xBob")
	carol := newTestClient(t, backend, "0xCarol")

	g, err := alice.CreateGroup([]string{bob.InboxID()}, GroupOptions{Name: "trio"})
	require.NoError(t, err)
	require.Len(t, g.Members(), 2)

	// Adding a member delivers a welcome the new member can sync.
	require.NoError(t, g.AddMembers([]string{carol.InboxID()}))
	require.Len(t, g.Members(), 3)

	n, err := carol.SyncWelcomes()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	cg := carol.ConversationByID(g.ID())
	require.NotNil(t, cg)
	assert.True(t, cg.IsActive())

	// Adding an existing member changes nothing.
	require.NoError(t, g.AddMembers([]string{carol.InboxID()}))
	assert.Len(t, g.Members(), 3)

	require.NoError(t, g.RemoveMembers([]string{carol.InboxID()}))
	assert.Len(t, g.Members(), 2)
}

func TestRemoveMembersRequiresAdmin(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")
	bob := newTestClient(t, backend, "0xBob")

	g, err := alice.CreateGroup([]string{bob.InboxID()}, GroupOptions{})
	require.NoError(t, err)

	_, err = bob.SyncWelcomes()
	require.NoError(t, err)
	bg := bob.ConversationByID(g.ID())
	require.NotNil(t, bg)

	// Bob is a plain member and may not remove anyone but himself.
	assert.Error(t, bg.RemoveMembers([]string{alice.InboxID()}))
	require.NoError(t, bg.Leave())
	assert.False(t, bg.IsActive())
}

func TestAdminList(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")
	bob := newTestClient(t, backend, "0xBob")

	g, err := alice.CreateGroup([]string{bob.InboxID()}, GroupOptions{})
	require.NoError(t, err)

	self := alice.InboxID()
	peer := bob.InboxID()

	assert.True(t, g.IsSuperAdmin(self))
	assert.False(t, g.IsAdmin(self)) // admin standing is distinct from super admin
	assert.False(t, g.IsAdmin(peer))
	assert.Equal(t, []string{self}, g.SuperAdmins())
	assert.Empty(t, g.Admins())

	require.NoError(t, g.UpdateAdminList(peer, AdminActionAdd))
	assert.True(t, g.IsAdmin(peer))
	assert.False(t, g.IsSuperAdmin(peer))
	assert.Equal(t, []string{peer}, g.Admins())

	require.NoError(t, g.UpdateAdminList(peer, AdminActionAddSuper))
	assert.True(t, g.IsSuperAdmin(peer))

	require.NoError(t, g.UpdateAdminList(peer, AdminActionRemoveSuper))
	assert.False(t, g.IsAdmin(peer))

	assert.Error(t, g.UpdateAdminList("not-a-member", AdminActionAdd))
}

func TestAdminListRequiresSuperAdmin(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")
	bob := newTestClient(t, backend, "0xBob")

	g, err := alice.CreateGroup([]string{bob.InboxID()}, GroupOptions{})
	require.NoError(t, err)
	_, err = bob.SyncWelcomes()
	require.NoError(t, err)
	bg := bob.ConversationByID(g.ID())
	require.NotNil(t, bg)

	assert.Error(t, bg.UpdateAdminList(bob.InboxID(), AdminActionAdd))
}

func TestMetadataUpdatesRecordMembershipChanges(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	g, err := alice.CreateGroup(nil, GroupOptions{Name: "before"})
	require.NoError(t, err)
	require.NoError(t, g.UpdateName("after"))
	assert.Equal(t, "after", g.Name())

	msgs := g.Messages(ListMessagesOptions{})
	require.NotEmpty(t, msgs)
	assert.Equal(t, MessageKindMembershipChange, msgs[len(msgs)-1].Kind)
}

func TestSendToInactiveConversationFails(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")
	bob := newTestClient(t, backend, "0xBob")

	g, err := alice.CreateGroup([]string{bob.InboxID()}, GroupOptions{})
	require.NoError(t, err)
	_, err = bob.SyncWelcomes()
	require.NoError(t, err)
	bg := bob.ConversationByID(g.ID())
	require.NotNil(t, bg)
	require.NoError(t, bg.Leave())

	_, err = bg.Send([]byte("ghost"))
	assert.Error(t, err)
}
