package xmtpcore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHost gives each test a private backend so state never leaks between
// tests.
func testHost(t *testing.T) string {
	return "backend-" + t.Name()
}

func testSigner(account string) *StaticSigner {
	return NewStaticSigner(account, func(text string) ([]byte, error) {
		return []byte("signed:" + text), nil
	})
}

func newTestClient(t *testing.T, host, account string) *Client {
	t.Helper()
	c, err := NewClientBuilder(testSigner(account)).Host(host).Build()
	require.NoError(t, err)
	require.NoError(t, c.Register())
	t.Cleanup(func() { c.Close() })
	return c
}

func requireCategory(t *testing.T, err error, want Category) {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, want, e.Category)
}

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name    string
		builder *ClientBuilder
	}{
		{
			name:    "nil signer",
			builder: NewClientBuilder(nil),
		},
		{
			name:    "empty account identifier",
			builder: NewClientBuilder(testSigner("")),
		},
		{
			name:    "short encryption key",
			builder: NewClientBuilder(testSigner("0xB11D000000000000000000000000000000000001")).EncryptionKey(make([]byte, 16)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.builder.Host(testHost(t)).Build()
			require.Error(t, err)
			assert.Nil(t, c)
			requireCategory(t, err, CategoryValidation)
		})
	}
}

func TestBuildAndRegister(t *testing.T) {
	account := "0xB11D000000000000000000000000000000000002"
	c, err := NewClientBuilder(testSigner(account)).Host(testHost(t)).Build()
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, GenerateInboxID(account, 0), c.InboxID())
	assert.Len(t, c.InboxID(), 64)

	installation, err := c.InstallationID()
	require.NoError(t, err)
	assert.Len(t, installation, 32)

	registered, err := c.IsRegistered()
	require.NoError(t, err)
	assert.False(t, registered)

	require.NoError(t, c.Register())
	registered, err = c.IsRegistered()
	require.NoError(t, err)
	assert.True(t, registered)

	// Registering again is a no-op.
	require.NoError(t, c.Register())
}

func TestBuilderNonceVariesInbox(t *testing.T) {
	account := "0xB11D000000000000000000000000000000000003"
	assert.NotEqual(t, GenerateInboxID(account, 0), GenerateInboxID(account, 7))

	c, err := NewClientBuilder(testSigner(account)).Host(testHost(t)).Nonce(7).Build()
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, GenerateInboxID(account, 7), c.InboxID())
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := newTestClient(t, testHost(t), "0xB11D000000000000000000000000000000000004")
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.InstallationID()
	requireCategory(t, err, CategoryValidation)
	_, err = c.SyncWelcomes()
	requireCategory(t, err, CategoryValidation)
}

func TestCanMessage(t *testing.T) {
	host := testHost(t)
	registered := "0xB11D000000000000000000000000000000000005"
	newTestClient(t, host, registered)
	c := newTestClient(t, host, "0xB11D000000000000000000000000000000000006")

	unknown := "0xB11D0000000000000000000000000000000000FF"
	results, err := c.CanMessage([]string{registered, unknown})
	require.NoError(t, err)
	assert.True(t, results[registered])
	assert.False(t, results[unknown])
}

func TestInstallationKeySignatures(t *testing.T) {
	host := testHost(t)
	c := newTestClient(t, host, "0xB11D000000000000000000000000000000000007")
	other := newTestClient(t, host, "0xB11D000000000000000000000000000000000008")

	sig, err := c.SignWithInstallationKey("attest")
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	ok, err := c.VerifySignedWithInstallationKey("attest", sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = other.VerifySignedWithInstallationKey("attest", sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsentStates(t *testing.T) {
	c := newTestClient(t, testHost(t), "0xB11D000000000000000000000000000000000009")
	peer := GenerateInboxID("0xB11D00000000000000000000000000000000000A", 0)

	state, err := c.ConsentState(ConsentEntityInbox, peer)
	require.NoError(t, err)
	assert.Equal(t, ConsentStateUnknown, state)

	require.NoError(t, c.SetConsentStates([]ConsentRecord{
		{EntityType: ConsentEntityInbox, State: ConsentStateAllowed, Entity: peer},
	}))
	state, err = c.ConsentState(ConsentEntityInbox, peer)
	require.NoError(t, err)
	assert.Equal(t, ConsentStateAllowed, state)
}

func TestDMSyncBetweenClients(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xB11D00000000000000000000000000000000000B")
	bob := newTestClient(t, host, "0xB11D00000000000000000000000000000000000C")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()

	msgID, err := dm.Send([]byte("hello bob"))
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	convs, msgs, err := bob.SyncAll()
	require.NoError(t, err)
	assert.Equal(t, 1, convs)
	assert.Equal(t, 1, msgs)

	msg, err := bob.MessageByID(msgID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello bob"), msg.Content)
	assert.Equal(t, alice.InboxID(), msg.SenderInboxID)
	assert.Equal(t, MessageKindApplication, msg.Kind)
}

func TestMessageByIDUnknown(t *testing.T) {
	c := newTestClient(t, testHost(t), "0xB11D00000000000000000000000000000000000D")
	_, err := c.MessageByID("no-such-message")
	require.Error(t, err)
	requireCategory(t, err, CategoryOperational)
}

func TestDeleteMessageByID(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xB11D00000000000000000000000000000000000E")
	bob := newTestClient(t, host, "0xB11D00000000000000000000000000000000000F")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)
	defer dm.Close()
	msgID, err := dm.Send([]byte("ephemeral"))
	require.NoError(t, err)

	deleted, err := alice.DeleteMessageByID(msgID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// Already gone.
	deleted, err = alice.DeleteMessageByID(msgID)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestErrorMessagesStableAcrossGoroutines(t *testing.T) {
	c := newTestClient(t, testHost(t), "0xB11D000000000000000000000000000000000012")

	// Each goroutine's failures must carry that call's own message, not an
	// empty string or another goroutine's, even as goroutines hop between
	// OS threads.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		id := fmt.Sprintf("missing-%02d", i)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := c.MessageByID(id)
				var e *Error
				if !errors.As(err, &e) {
					t.Errorf("want *Error, got %v", err)
					return
				}
				if e.Category != CategoryOperational || !strings.Contains(e.Message, id) {
					t.Errorf("got category %v message %q, want %q", e.Category, e.Message, id)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestReverseOrderRelease(t *testing.T) {
	host := testHost(t)
	alice := newTestClient(t, host, "0xB11D000000000000000000000000000000000010")
	bob := newTestClient(t, host, "0xB11D000000000000000000000000000000000011")

	dm, err := alice.CreateDM(bob.InboxID())
	require.NoError(t, err)

	// The conversation handle outlives its client.
	require.NoError(t, alice.Close())
	require.NoError(t, dm.Close())
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Category: CategoryValidation, Message: "bad input"}
	assert.Equal(t, "validation: bad input", err.Error())

	var e *Error
	assert.True(t, errors.As(error(err), &e))
}

func TestVersionReported(t *testing.T) {
	assert.NotEmpty(t, Version())
}
