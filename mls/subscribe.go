package mls

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// subscriptionBuffer is the channel depth for every subscription. Events past
// a stalled subscriber are dropped with a warning rather than blocking the
// core.
const subscriptionBuffer = 256

// ConversationSubscription delivers newly discovered conversations.
type ConversationSubscription struct {
	ch     chan *Group
	filter ConversationType
	cancel func()
	once   sync.Once
}

// Events is the ordered conversation event channel. Closed when the
// subscription ends.
func (s *ConversationSubscription) Events() <-chan *Group { return s.ch }

// Close detaches the subscription and closes the event channel.
func (s *ConversationSubscription) Close() { s.once.Do(s.cancel) }

// MessageSubscription delivers stored messages as they arrive.
type MessageSubscription struct {
	ch      chan *StoredMessage
	groupID string // "" = all conversations
	filter  ConversationType
	cancel  func()
	once    sync.Once
}

// Events is the ordered message event channel. Closed when the subscription
// ends.
func (s *MessageSubscription) Events() <-chan *StoredMessage { return s.ch }

// Close detaches the subscription and closes the event channel.
func (s *MessageSubscription) Close() { s.once.Do(s.cancel) }

// ConsentSubscription delivers consent record batches.
type ConsentSubscription struct {
	ch     chan []ConsentRecord
	cancel func()
	once   sync.Once
}

// Events is the ordered consent batch channel.
func (s *ConsentSubscription) Events() <-chan []ConsentRecord { return s.ch }

// Close detaches the subscription and closes the event channel.
func (s *ConsentSubscription) Close() { s.once.Do(s.cancel) }

// PreferenceSubscription delivers preference update batches.
type PreferenceSubscription struct {
	ch     chan []PreferenceUpdate
	cancel func()
	once   sync.Once
}

// Events is the ordered preference batch channel.
func (s *PreferenceSubscription) Events() <-chan []PreferenceUpdate { return s.ch }

// Close detaches the subscription and closes the event channel.
func (s *PreferenceSubscription) Close() { s.once.Do(s.cancel) }

// DeletionSubscription delivers IDs of deleted messages.
type DeletionSubscription struct {
	ch     chan string
	cancel func()
	once   sync.Once
}

// Events is the ordered deletion event channel.
func (s *DeletionSubscription) Events() <-chan string { return s.ch }

// Close detaches the subscription and closes the event channel.
func (s *DeletionSubscription) Close() { s.once.Do(s.cancel) }

// dispatcher fans client events out to subscriptions. Emission order is
// preserved per subscription; a full subscription drops the event.
type dispatcher struct {
	mu           sync.Mutex
	nextID       int
	conversation map[int]*ConversationSubscription
	message      map[int]*MessageSubscription
	consent      map[int]*ConsentSubscription
	preference   map[int]*PreferenceSubscription
	deletion     map[int]*DeletionSubscription
	closed       bool
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		conversation: make(map[int]*ConversationSubscription),
		message:      make(map[int]*MessageSubscription),
		consent:      make(map[int]*ConsentSubscription),
		preference:   make(map[int]*PreferenceSubscription),
		deletion:     make(map[int]*DeletionSubscription),
	}
}

func (d *dispatcher) subscribeConversations(filter ConversationType) *ConversationSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	sub := &ConversationSubscription{ch: make(chan *Group, subscriptionBuffer), filter: filter}
	sub.cancel = func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.conversation[id]; ok {
			delete(d.conversation, id)
			close(sub.ch)
		}
	}
	if d.closed {
		close(sub.ch)
		return sub
	}
	d.conversation[id] = sub
	return sub
}

func (d *dispatcher) subscribeMessages(groupID string, filter ConversationType) *MessageSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	sub := &MessageSubscription{ch: make(chan *StoredMessage, subscriptionBuffer), groupID: groupID, filter: filter}
	sub.cancel = func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.message[id]; ok {
			delete(d.message, id)
			close(sub.ch)
		}
	}
	if d.closed {
		close(sub.ch)
		return sub
	}
	d.message[id] = sub
	return sub
}

func (d *dispatcher) subscribeConsent() *ConsentSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	sub := &ConsentSubscription{ch: make(chan []ConsentRecord, subscriptionBuffer)}
	sub.cancel = func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.consent[id]; ok {
			delete(d.consent, id)
			close(sub.ch)
		}
	}
	if d.closed {
		close(sub.ch)
		return sub
	}
	d.consent[id] = sub
	return sub
}

func (d *dispatcher) subscribePreferences() *PreferenceSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	sub := &PreferenceSubscription{ch: make(chan []PreferenceUpdate, subscriptionBuffer)}
	sub.cancel = func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.preference[id]; ok {
			delete(d.preference, id)
			close(sub.ch)
		}
	}
	if d.closed {
		close(sub.ch)
		return sub
	}
	d.preference[id] = sub
	return sub
}

func (d *dispatcher) subscribeDeletions() *DeletionSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	sub := &DeletionSubscription{ch: make(chan string, subscriptionBuffer)}
	sub.cancel = func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.deletion[id]; ok {
			delete(d.deletion, id)
			close(sub.ch)
		}
	}
	if d.closed {
		close(sub.ch)
		return sub
	}
	d.deletion[id] = sub
	return sub
}

func (d *dispatcher) emitConversation(g *Group) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.conversation {
		if sub.filter != ConversationTypeAll && sub.filter != g.Type() {
			continue
		}
		select {
		case sub.ch <- g:
		default:
			logrus.WithFields(logrus.Fields{
				"function": "dispatcher.emitConversation",
				"group_id": g.ID(),
			}).Warn("Dropping conversation event for stalled subscriber")
		}
	}
}

func (d *dispatcher) emitMessage(g *Group, msg *StoredMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.message {
		if sub.groupID != "" && sub.groupID != msg.GroupID {
			continue
		}
		if sub.groupID == "" && sub.filter != ConversationTypeAll && sub.filter != g.Type() {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			logrus.WithFields(logrus.Fields{
				"function":   "dispatcher.emitMessage",
				"message_id": msg.ID,
			}).Warn("Dropping message event for stalled subscriber")
		}
	}
}

func (d *dispatcher) emitConsent(records []ConsentRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.consent {
		select {
		case sub.ch <- records:
		default:
			logrus.WithField("function", "dispatcher.emitConsent").
				Warn("Dropping consent batch for stalled subscriber")
		}
	}
}

func (d *dispatcher) emitPreferences(updates []PreferenceUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.preference {
		select {
		case sub.ch <- updates:
		default:
			logrus.WithField("function", "dispatcher.emitPreferences").
				Warn("Dropping preference batch for stalled subscriber")
		}
	}
}

func (d *dispatcher) emitDeletion(messageID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range d.deletion {
		select {
		case sub.ch <- messageID:
		default:
			logrus.WithField("function", "dispatcher.emitDeletion").
				Warn("Dropping deletion event for stalled subscriber")
		}
	}
}

// closeAll ends every subscription. Used on client shutdown.
func (d *dispatcher) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, sub := range d.conversation {
		delete(d.conversation, id)
		close(sub.ch)
	}
	for id, sub := range d.message {
		delete(d.message, id)
		close(sub.ch)
	}
	for id, sub := range d.consent {
		delete(d.consent, id)
		close(sub.ch)
	}
	for id, sub := range d.preference {
		delete(d.preference, id)
		close(sub.ch)
	}
	for id, sub := range d.deletion {
		delete(d.deletion, id)
		close(sub.ch)
	}
}
