package ffi

import (
	"sync"
	"unsafe"

	"github.com/opd-ai/xmtpcore/mls"
)

// handleKind tags a registry entry so a handle passed to the wrong function
// family is rejected instead of misinterpreted.
type handleKind int32

const (
	kindClient handleKind = iota + 1
	kindConversation
	kindConversationList
	kindMessage
	kindMessageList
	kindMemberList
	kindStream
	kindInboxStateList
	kindArchiveList
)

func (k handleKind) String() string {
	switch k {
	case kindClient:
		return "client"
	case kindConversation:
		return "conversation"
	case kindConversationList:
		return "conversation list"
	case kindMessage:
		return "message"
	case kindMessageList:
		return "message list"
	case kindMemberList:
		return "member list"
	case kindStream:
		return "stream"
	case kindInboxStateList:
		return "inbox state list"
	case kindArchiveList:
		return "archive list"
	default:
		return "unknown"
	}
}

type handleEntry struct {
	kind handleKind
	obj  interface{}
}

// handleRegistry maps opaque handle tokens to live objects. Tokens are small
// integers disguised as pointers; they are never dereferenced, so a stale or
// fabricated token fails lookup instead of corrupting memory.
type handleRegistry struct {
	mu      sync.RWMutex
	nextID  uintptr
	entries map[uintptr]handleEntry
}

var handles = &handleRegistry{
	nextID:  1,
	entries: make(map[uintptr]handleEntry),
}

// put registers obj and returns its opaque token.
func (r *handleRegistry) put(kind handleKind, obj interface{}) unsafe.Pointer {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.entries[id] = handleEntry{kind: kind, obj: obj}
	return unsafe.Pointer(id)
}

// get resolves a token without removing it.
func (r *handleRegistry) get(kind handleKind, p unsafe.Pointer) (interface{}, error) {
	if p == nil {
		return nil, invalidf("nil %s handle", kind)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[uintptr(p)]
	if !ok {
		return nil, invalidf("unknown %s handle", kind)
	}
	if e.kind != kind {
		return nil, invalidf("handle is a %s, not a %s", e.kind, kind)
	}
	return e.obj, nil
}

// take resolves a token and removes it, so a second free of the same handle
// fails lookup rather than double-releasing.
func (r *handleRegistry) take(kind handleKind, p unsafe.Pointer) (interface{}, error) {
	if p == nil {
		return nil, invalidf("nil %s handle", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[uintptr(p)]
	if !ok {
		return nil, invalidf("unknown %s handle", kind)
	}
	if e.kind != kind {
		return nil, invalidf("handle is a %s, not a %s", e.kind, kind)
	}
	delete(r.entries, uintptr(p))
	return e.obj, nil
}

// count returns the number of live entries, optionally restricted to a kind.
func (r *handleRegistry) count(kind handleKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if kind == 0 {
		return len(r.entries)
	}
	n := 0
	for _, e := range r.entries {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// ActiveHandleCount reports the number of live handles of every kind. It
// exists for leak checks in embedding hosts and tests.
func ActiveHandleCount() int {
	return handles.count(0)
}

func clientFromHandle(p unsafe.Pointer) (*mls.Client, error) {
	obj, err := handles.get(kindClient, p)
	if err != nil {
		return nil, err
	}
	return obj.(*mls.Client), nil
}

func conversationFromHandle(p unsafe.Pointer) (*mls.Group, error) {
	obj, err := handles.get(kindConversation, p)
	if err != nil {
		return nil, err
	}
	return obj.(*mls.Group), nil
}

func messageFromHandle(p unsafe.Pointer) (*mls.StoredMessage, error) {
	obj, err := handles.get(kindMessage, p)
	if err != nil {
		return nil, err
	}
	return obj.(*mls.StoredMessage), nil
}

func streamFromHandle(p unsafe.Pointer) (*stream, error) {
	obj, err := handles.get(kindStream, p)
	if err != nil {
		return nil, err
	}
	return obj.(*stream), nil
}
