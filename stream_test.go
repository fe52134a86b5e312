package xmtpcore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// messageCollector accumulates stream deliveries for assertions.
type messageCollector struct {
	mu       sync.Mutex
	messages []Message
	closes   []string
}

func (c *messageCollector) onMessage(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

func (c *messageCollector) onClose(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, reason)
}

func (c *messageCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *messageCollector) closeReasons() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.closes...)
}

func TestStreamAllMessagesDelivers(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0x57EA000000000000000000000000000000000001")
	bob := newTestClient(t, host, "0x57EA000000000000000000000000000000000002")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()

	var col messageCollector
	s, err := alice.StreamAllMessages(ConversationTypeAll, col.onMessage, col.onClose)
	require.NoError(t, err)
	defer s.Close()

	_, err = dm.Send([]byte("first"))
	require.NoError(t, err)
	_, err = dm.Send([]byte("second"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return col.count() == 2 },
		2*time.Second, 10*time.Millisecond)
	col.mu.Lock()
	assert.Equal(t, []byte("first"), col.messages[0].Content)
	assert.Equal(t, []byte("second"), col.messages[1].Content)
	col.mu.Unlock()
}

func TestStreamEndSignalsNormalClose(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0x57EA000000000000000000000000000000000003")
	bob := newTestClient(t, host, "0x57EA000000000000000000000000000000000004")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()

	var col messageCollector
	s, err := alice.StreamAllMessages(ConversationTypeAll, col.onMessage, col.onClose)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.IsClosed())
	require.NoError(t, s.End())

	// End returns immediately; the close callback fires with an empty
	// reason once the delivery goroutine exits.
	require.Eventually(t, func() bool { return s.IsClosed() },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{""}, col.closeReasons())

	// Nothing sent after End reaches the callback.
	_, err = dm.Send([]byte("too late"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, col.count())
}

func TestStreamEndFromOwnCallback(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0x57EA00000000000000000000000000000000000F")
	bob := newTestClient(t, host, "0x57EA000000000000000000000000000000000010")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()

	var col messageCollector
	var s *Stream
	s, err = alice.StreamAllMessages(ConversationTypeAll, func(Message) {
		s.End()
	}, col.onClose)
	require.NoError(t, err)
	defer s.Close()

	_, err = dm.Send([]byte("stop yourself"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.IsClosed() },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{""}, col.closeReasons())
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	c := newTestClient(t, testHost(t), "0x57EA000000000000000000000000000000000005")

	s, err := c.StreamDeletions(func(string) {}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.True(t, s.IsClosed())
	err = s.End()
	requireCategory(t, err, CategoryValidation)
}

func TestStreamConversationMessagesOnly(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0x57EA000000000000000000000000000000000006")
	bob := newTestClient(t, host, "0x57EA000000000000000000000000000000000007")
	carol := newTestClient(t, host, "0x57EA000000000000000000000000000000000008")

	dmBob, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dmBob.Close()
	dmCarol, err := alice.CreateDM(carol.InboxID())
	require.NoError(t, err)
	defer dmCarol.Close()

	var col messageCollector
	s, err := dmBob.StreamMessages(col.onMessage, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = dmCarol.Send([]byte("elsewhere"))
	require.NoError(t, err)
	_, err = dmBob.Send([]byte("here"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return col.count() == 1 },
		2*time.Second, 10*time.Millisecond)
	col.mu.Lock()
	assert.Equal(t, []byte("here"), col.messages[0].Content)
	col.mu.Unlock()
}

func TestStreamConversationsSurfacesWelcomes(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0x57EA000000000000000000000000000000000009")
	bob := newTestClient(t, host, "0x57EA00000000000000000000000000000000000A")

	var mu sync.Mutex
	var ids []string
	s, err := bob.StreamConversations(ConversationTypeAll, func(conv *Conversation) {
		id, err := conv.ID()
		conv.Close()
		if err != nil {
			return
		}
		mu.Lock()
		ids = append(ids, id)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	defer s.Close()

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()
	dmID, err := dm.ID()
	require.NoError(t, err)

	welcomed, err := bob.SyncWelcomes()
	require.NoError(t, err)
	require.Equal(t, 1, welcomed)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) == 1 && ids[0] == dmID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamConsentBatches(t *testing.T) {
	c := newTestClient(t, testHost(t), "0x57EA00000000000000000000000000000000000B")

	var mu sync.Mutex
	var batches [][]ConsentRecord
	s, err := c.StreamConsent(func(records []ConsentRecord) {
		mu.Lock()
		batches = append(batches, records)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	defer s.Close()

	records := []ConsentRecord{
		{EntityType: ConsentEntityInbox, State: ConsentStateAllowed, Entity: GenerateInboxID("0xP1", 0)},
		{EntityType: ConsentEntityInbox, State: ConsentStateDenied, Entity: GenerateInboxID("0xP2", 0)},
	}
	require.NoError(t, c.SetConsentStates(records))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, records, batches[0])
	mu.Unlock()
}

func TestStreamDeletionsDeliversIDs(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0x57EA00000000000000000000000000000000000C")
	bob := newTestClient(t, host, "0x57EA00000000000000000000000000000000000D")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()
	msgID, err := dm.Send([]byte("short lived"))
	require.NoError(t, err)

	var mu sync.Mutex
	var deleted []string
	s, err := alice.StreamDeletions(func(id string) {
		mu.Lock()
		deleted = append(deleted, id)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	defer s.Close()

	n, err := alice.DeleteMessageByID(msgID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(deleted) == 1 && deleted[0] == msgID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamStartValidation(t *testing.T) {
	c := newTestClient(t, testHost(t), "0x57EA00000000000000000000000000000000000E")
	require.NoError(t, c.Close())

	_, err := c.StreamAllMessages(ConversationTypeAll, func(Message) {}, nil)
	requireCategory(t, err, CategoryValidation)
	_, err = c.StreamConversations(ConversationTypeAll, func(*Conversation) {}, nil)
	requireCategory(t, err, CategoryValidation)
}
