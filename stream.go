package xmtpcore

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/opd-ai/xmtpcore/ffi"
)

// Stream is a managed handle to one live subscription. Callbacks run
// sequentially on the stream's own goroutine; independent streams deliver
// concurrently. End and Close are safe to call from any goroutine, including
// the stream's own callbacks.
type Stream struct {
	mu     sync.Mutex
	handle unsafe.Pointer
	closed bool
}

func newStream(handle unsafe.Pointer) *Stream {
	s := &Stream{handle: handle}
	runtime.SetFinalizer(s, func(s *Stream) { s.Close() })
	return s
}

func (s *Stream) raw() (unsafe.Pointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed("stream")
	}
	return s.handle, nil
}

// End signals the stream to stop and returns without waiting. No new
// delivery begins after End returns; an in-flight callback completes, and
// the close callback fires once the delivery goroutine exits. IsClosed
// reports when that has happened. The handle stays valid until Close.
func (s *Stream) End() error {
	defer pinThread()()
	h, err := s.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.StreamStop(h))
}

// IsClosed reports whether delivery has ended. A released stream reports
// closed.
func (s *Stream) IsClosed() bool {
	defer pinThread()()
	h, err := s.raw()
	if err != nil {
		return true
	}
	return ffi.StreamIsClosed(h) == 1
}

// Close stops delivery without waiting and releases the handle. Idempotent;
// an unclosed stream is reclaimed by its finalizer.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handle := s.handle
	s.mu.Unlock()

	runtime.SetFinalizer(s, nil)
	defer pinThread()()
	return statusError(ffi.StreamFree(handle))
}

// StreamConversations delivers each conversation this client is added to.
// onConversation receives an owned *Conversation; onClose may be nil.
func (c *Client) StreamConversations(filter ConversationType, onConversation func(*Conversation), onClose func(reason string)) (*Stream, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var streamHandle unsafe.Pointer
	st := ffi.ClientStreamConversations(h, int32(filter), func(convHandle unsafe.Pointer) {
		onConversation(newConversation(c, convHandle))
	}, closeCallback(onClose), &streamHandle)
	if err := statusError(st); err != nil {
		return nil, err
	}
	return newStream(streamHandle), nil
}

// StreamAllMessages delivers every new message across conversations matching
// filter.
func (c *Client) StreamAllMessages(filter ConversationType, onMessage func(Message), onClose func(reason string)) (*Stream, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var streamHandle unsafe.Pointer
	st := ffi.ClientStreamAllMessages(h, int32(filter), messageCallback(onMessage), closeCallback(onClose), &streamHandle)
	if err := statusError(st); err != nil {
		return nil, err
	}
	return newStream(streamHandle), nil
}

// StreamMessages delivers new messages in this conversation only.
func (conv *Conversation) StreamMessages(onMessage func(Message), onClose func(reason string)) (*Stream, error) {
	defer pinThread()()
	h, err := conv.raw()
	if err != nil {
		return nil, err
	}
	var streamHandle unsafe.Pointer
	st := ffi.ConversationStreamMessages(h, messageCallback(onMessage), closeCallback(onClose), &streamHandle)
	if err := statusError(st); err != nil {
		return nil, err
	}
	return newStream(streamHandle), nil
}

// StreamConsent delivers consent record batches as they sync. The slice is
// owned by the callback's caller; copy it to retain it.
func (c *Client) StreamConsent(onConsent func([]ConsentRecord), onClose func(reason string)) (*Stream, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var streamHandle unsafe.Pointer
	st := ffi.ClientStreamConsent(h, func(records []ffi.ConsentRecord) {
		batch := make([]ConsentRecord, len(records))
		for i, r := range records {
			batch[i] = ConsentRecord{
				EntityType: ConsentEntityType(r.EntityType),
				State:      ConsentState(r.State),
				Entity:     r.Entity,
			}
		}
		onConsent(batch)
	}, closeCallback(onClose), &streamHandle)
	if err := statusError(st); err != nil {
		return nil, err
	}
	return newStream(streamHandle), nil
}

// StreamPreferences delivers preference update batches as they sync.
func (c *Client) StreamPreferences(onPreferences func([]PreferenceUpdate), onClose func(reason string)) (*Stream, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var streamHandle unsafe.Pointer
	st := ffi.ClientStreamPreferences(h, func(updates []ffi.PreferenceUpdate) {
		batch := make([]PreferenceUpdate, len(updates))
		for i, u := range updates {
			batch[i] = PreferenceUpdate{
				Kind: PreferenceUpdateKind(u.Kind),
				Consent: ConsentRecord{
					EntityType: ConsentEntityType(u.Consent.EntityType),
					State:      ConsentState(u.Consent.State),
					Entity:     u.Consent.Entity,
				},
				HmacKey: u.HmacKey,
			}
		}
		onPreferences(batch)
	}, closeCallback(onClose), &streamHandle)
	if err := statusError(st); err != nil {
		return nil, err
	}
	return newStream(streamHandle), nil
}

// StreamDeletions delivers the ID of each locally deleted message.
func (c *Client) StreamDeletions(onDeletion func(messageID string), onClose func(reason string)) (*Stream, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var streamHandle unsafe.Pointer
	st := ffi.ClientStreamDeletions(h, ffi.DeletionCallback(onDeletion), closeCallback(onClose), &streamHandle)
	if err := statusError(st); err != nil {
		return nil, err
	}
	return newStream(streamHandle), nil
}

func messageCallback(onMessage func(Message)) ffi.MessageCallback {
	return func(msgHandle unsafe.Pointer) {
		onMessage(takeMessage(msgHandle))
	}
}

func closeCallback(onClose func(reason string)) ffi.CloseCallback {
	if onClose == nil {
		return nil
	}
	return ffi.CloseCallback(onClose)
}
