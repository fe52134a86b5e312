package mls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainGroups(t *testing.T, ch <-chan *Group, n int) []*Group {
	t.Helper()
	var out []*Group
	for len(out) < n {
		select {
		case g := <-ch:
			out = append(out, g)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func drainMessages(t *testing.T, ch <-chan *StoredMessage, n int) []*StoredMessage {
	t.Helper()
	var out []*StoredMessage
	for len(out) < n {
		select {
		case m := <-ch:
			out = append(out, m)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestSubscribeConversationsFilter(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")
	bob := newTestClient(t, backend, "0xBob")

	all := alice.SubscribeConversations(ConversationTypeAll)
	defer all.Close()
	dmsOnly := alice.SubscribeConversations(ConversationTypeDM)
	defer dmsOnly.Close()

	g, err := alice.CreateGroup(nil, GroupOptions{})
	require.NoError(t, err)
	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)

	got := drainGroups(t, all.Events(), 2)
	assert.Equal(t, g.ID(), got[0].ID())
	assert.Equal(t, dm.ID(), got[1].ID())

	filtered := drainGroups(t, dmsOnly.Events(), 1)
	assert.Equal(t, dm.ID(), filtered[0].ID())
	select {
	case extra := <-dmsOnly.Events():
		t.Fatalf("unexpected extra event for %s", extra.ID())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeMessagesPerConversation(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	first, err := alice.CreateGroup(nil, GroupOptions{})
	require.NoError(t, err)
	second, err := alice.CreateGroup(nil, GroupOptions{})
	require.NoError(t, err)

	firstOnly := alice.SubscribeMessages(first.ID(), ConversationTypeAll)
	defer firstOnly.Close()
	everything := alice.SubscribeMessages("", ConversationTypeAll)
	defer everything.Close()

	_, err = first.Send([]byte("to first"))
	require.NoError(t, err)
	_, err = second.Send([]byte("to second"))
	require.NoError(t, err)

	scoped := drainMessages(t, firstOnly.Events(), 1)
	assert.Equal(t, []byte("to first"), scoped[0].Content)

	broad := drainMessages(t, everything.Events(), 2)
	assert.Equal(t, []byte("to first"), broad[0].Content)
	assert.Equal(t, []byte("to second"), broad[1].Content)
}

func TestSubscriptionCloseEndsChannel(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	sub := alice.SubscribeDeletions()
	sub.Close()
	sub.Close() // idempotent

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestClosedSubscriberReceivesNothingNew(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	sub := alice.SubscribeConversations(ConversationTypeAll)
	sub.Close()

	_, err := alice.CreateGroup(nil, GroupOptions{})
	require.NoError(t, err)

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestConsentAndPreferenceEvents(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	consent := alice.SubscribeConsent()
	defer consent.Close()
	prefs := alice.SubscribePreferences()
	defer prefs.Close()

	records := []ConsentRecord{
		{EntityType: ConsentEntityInbox, State: ConsentStateAllowed, Entity: "inbox-1"},
		{EntityType: ConsentEntityInbox, State: ConsentStateDenied, Entity: "inbox-2"},
	}
	require.NoError(t, alice.SetConsentStates(records))

	select {
	case batch := <-consent.Events():
		assert.Equal(t, records, batch)
	case <-time.After(2 * time.Second):
		t.Fatal("no consent batch")
	}

	select {
	case updates := <-prefs.Events():
		require.Len(t, updates, 2)
		assert.Equal(t, PreferenceUpdateConsent, updates[0].Kind)
		assert.Equal(t, records[0], updates[0].Consent)
	case <-time.After(2 * time.Second):
		t.Fatal("no preference batch")
	}
}

func TestDeletionEvents(t *testing.T) {
	backend := NewMemoryBackend()
	alice := newTestClient(t, backend, "0xAlice")

	g, err := alice.CreateGroup(nil, GroupOptions{})
	require.NoError(t, err)
	id, err := g.Send([]byte("transient"))
	require.NoError(t, err)

	sub := alice.SubscribeDeletions()
	defer sub.Close()

	n, err := alice.DeleteMessageByID(id)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	select {
	case got := <-sub.Events():
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no deletion event")
	}
}

func TestClientCloseEndsSubscriptions(t *testing.T) {
	backend := NewMemoryBackend()
	c, err := NewClient(Options{
		Host: "test", Backend: backend,
		InboxID:           GenerateInboxID("0xEnding", 0),
		AccountIdentifier: "0xEnding",
	})
	require.NoError(t, err)

	convs := c.SubscribeConversations(ConversationTypeAll)
	msgs := c.SubscribeMessages("", ConversationTypeAll)

	require.NoError(t, c.Close())

	_, open := <-convs.Events()
	assert.False(t, open)
	_, open = <-msgs.Events()
	assert.False(t, open)

	// Subscribing after close yields an already-ended feed.
	late := c.SubscribeDeletions()
	_, open = <-late.Events()
	assert.False(t, open)
}
