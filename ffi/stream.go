package ffi

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/xmtpcore/mls"
)

// Callback types invoked by stream delivery goroutines. Conversation and
// message callbacks receive owned handles the receiver must free. Consent
// batches, preference batches, and deletion IDs are borrowed and valid only
// for the duration of the call. The close callback receives "" for a normal
// close or the failure reason for an abnormal one.
type (
	ConversationCallback func(conversation unsafe.Pointer)
	MessageCallback      func(message unsafe.Pointer)
	ConsentCallback      func(records []ConsentRecord)
	PreferenceCallback   func(updates []PreferenceUpdate)
	DeletionCallback     func(messageID string)
	CloseCallback        func(reason string)
)

// Stream lifecycle states. A stream is created active, moves to stop
// requested when the caller asks it to end, and reaches closed when its
// delivery goroutine exits.
const (
	streamActive int32 = iota + 1
	streamStopRequested
	streamClosed
)

// stream pairs a core subscription with the delivery goroutine draining it.
// Callbacks for one stream run sequentially on that goroutine, in event
// order; independent streams deliver concurrently.
type stream struct {
	mu    sync.Mutex
	state int32
	// stop closes the subscription feed. Idempotent.
	stop func()
}

func newStream(stop func()) *stream {
	return &stream{state: streamActive, stop: stop}
}

// requestStop moves the stream out of the active state and closes its feed.
// An in-progress callback completes; no new delivery begins afterwards.
func (s *stream) requestStop() {
	s.mu.Lock()
	if s.state == streamActive {
		s.state = streamStopRequested
	}
	s.mu.Unlock()
	s.stop()
}

func (s *stream) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != streamActive
}

func (s *stream) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == streamClosed
}

// invoke runs one callback with panic containment. A panicking callback ends
// the stream abnormally instead of unwinding into the runtime.
func (s *stream) invoke(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "stream.invoke",
				"panic":    r,
			}).Error("recovered panic in stream callback")
			err = fmt.Errorf("stream callback panicked: %v", r)
		}
	}()
	fn()
	return nil
}

// run hosts the delivery loop on a dedicated goroutine. When the loop ends,
// for any reason, the feed is closed, the stream is marked closed, and the
// close callback fires exactly once.
func (s *stream) run(onClose CloseCallback, deliver func() error) {
	sharedExecutor().spawn(func(ctx context.Context) {
		reason := ""
		if err := deliver(); err != nil {
			reason = err.Error()
		}
		s.stop()
		s.mu.Lock()
		s.state = streamClosed
		s.mu.Unlock()
		if onClose != nil {
			s.invoke(func() { onClose(reason) })
		}
	})
}

// ClientStreamConversations starts a stream of new conversations, filtered
// by conversationType (-1 for all), and stores an owned stream handle in
// out. Each delivery carries an owned conversation handle.
func ClientStreamConversations(h unsafe.Pointer, conversationType int32, onConversation ConversationCallback, onClose CloseCallback, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if onConversation == nil {
		return statusOf(invalidf("nil conversation callback"))
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guard(func() error {
		sub := c.SubscribeConversations(mls.ConversationType(conversationType))
		s := newStream(sub.Close)
		s.run(onClose, func() error {
			for g := range sub.Events() {
				if s.stopRequested() {
					return nil
				}
				g := g
				if err := s.invoke(func() { onConversation(handles.put(kindConversation, g)) }); err != nil {
					return err
				}
			}
			return nil
		})
		*out = handles.put(kindStream, s)
		return nil
	})
}

// ClientStreamAllMessages starts a stream of messages across every
// conversation the client belongs to, filtered by conversationType (-1 for
// all). Each delivery carries an owned message handle.
func ClientStreamAllMessages(h unsafe.Pointer, conversationType int32, onMessage MessageCallback, onClose CloseCallback, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return startMessageStream(c, "", conversationType, onMessage, onClose, out)
}

// ConversationStreamMessages starts a stream of messages for a single
// conversation. Each delivery carries an owned message handle.
func ConversationStreamMessages(h unsafe.Pointer, onMessage MessageCallback, onClose CloseCallback, out *unsafe.Pointer) int32 {
	g, err := conversationFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return startMessageStream(g.Client(), g.ID(), int32(mls.ConversationTypeAll), onMessage, onClose, out)
}

func startMessageStream(c *mls.Client, groupID string, conversationType int32, onMessage MessageCallback, onClose CloseCallback, out *unsafe.Pointer) int32 {
	if onMessage == nil {
		return statusOf(invalidf("nil message callback"))
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guard(func() error {
		sub := c.SubscribeMessages(groupID, mls.ConversationType(conversationType))
		s := newStream(sub.Close)
		s.run(onClose, func() error {
			for msg := range sub.Events() {
				if s.stopRequested() {
					return nil
				}
				msg := msg
				if err := s.invoke(func() { onMessage(handles.put(kindMessage, msg)) }); err != nil {
					return err
				}
			}
			return nil
		})
		*out = handles.put(kindStream, s)
		return nil
	})
}

// ClientStreamConsent starts a stream of consent ledger updates. Each
// delivery carries a borrowed batch.
func ClientStreamConsent(h unsafe.Pointer, onConsent ConsentCallback, onClose CloseCallback, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if onConsent == nil {
		return statusOf(invalidf("nil consent callback"))
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guard(func() error {
		sub := c.SubscribeConsent()
		s := newStream(sub.Close)
		s.run(onClose, func() error {
			for records := range sub.Events() {
				if s.stopRequested() {
					return nil
				}
				batch := make([]ConsentRecord, len(records))
				for i, r := range records {
					batch[i] = ConsentRecord{
						EntityType: int32(r.EntityType),
						State:      int32(r.State),
						Entity:     r.Entity,
					}
				}
				if err := s.invoke(func() { onConsent(batch) }); err != nil {
					return err
				}
			}
			return nil
		})
		*out = handles.put(kindStream, s)
		return nil
	})
}

// ClientStreamPreferences starts a stream of preference updates. Each
// delivery carries a borrowed batch.
func ClientStreamPreferences(h unsafe.Pointer, onPreferences PreferenceCallback, onClose CloseCallback, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if onPreferences == nil {
		return statusOf(invalidf("nil preference callback"))
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guard(func() error {
		sub := c.SubscribePreferences()
		s := newStream(sub.Close)
		s.run(onClose, func() error {
			for updates := range sub.Events() {
				if s.stopRequested() {
					return nil
				}
				batch := make([]PreferenceUpdate, len(updates))
				for i, u := range updates {
					batch[i] = PreferenceUpdate{
						Kind: int32(u.Kind),
						Consent: ConsentRecord{
							EntityType: int32(u.Consent.EntityType),
							State:      int32(u.Consent.State),
							Entity:     u.Consent.Entity,
						},
						HmacKey: u.HmacKey,
					}
				}
				if err := s.invoke(func() { onPreferences(batch) }); err != nil {
					return err
				}
			}
			return nil
		})
		*out = handles.put(kindStream, s)
		return nil
	})
}

// ClientStreamDeletions starts a stream of locally deleted message IDs. Each
// delivery carries a borrowed ID string.
func ClientStreamDeletions(h unsafe.Pointer, onDeletion DeletionCallback, onClose CloseCallback, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if onDeletion == nil {
		return statusOf(invalidf("nil deletion callback"))
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guard(func() error {
		sub := c.SubscribeDeletions()
		s := newStream(sub.Close)
		s.run(onClose, func() error {
			for id := range sub.Events() {
				if s.stopRequested() {
					return nil
				}
				id := id
				if err := s.invoke(func() { onDeletion(id) }); err != nil {
					return err
				}
			}
			return nil
		})
		*out = handles.put(kindStream, s)
		return nil
	})
}

// StreamStop asks a stream to end and returns without waiting: an in-flight
// callback completes, no new delivery begins after the call returns, and the
// close callback fires when the delivery goroutine exits. Idempotent, and
// safe to call from within the stream's own callbacks. StreamIsClosed
// reports when the goroutine has actually finished.
func StreamStop(h unsafe.Pointer) int32 {
	s, err := streamFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guard(func() error {
		s.requestStop()
		return nil
	})
}

// StreamIsClosed reports whether the stream has fully closed: 1 closed, 0
// still active. Unknown handles report 1.
func StreamIsClosed(h unsafe.Pointer) int32 {
	s, err := streamFromHandle(h)
	if err != nil {
		statusOf(err)
		return 1
	}
	if s.closed() {
		return 1
	}
	return 0
}

// StreamFree releases a stream handle, requesting a stop if the stream is
// still active. It does not wait for the delivery goroutine; an in-progress
// callback completes and the close callback still fires.
func StreamFree(h unsafe.Pointer) int32 {
	obj, err := handles.take(kindStream, h)
	if err != nil {
		return statusOf(err)
	}
	return guard(func() error {
		obj.(*stream).requestStop()
		return nil
	})
}
