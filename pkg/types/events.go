package types

import (
	"slices"
	"sync"
)

// ChatEventType identifies the kind of chat loop event.
type ChatEventType string

const (
	EventSessionStart ChatEventType = "session_start"
	EventUserMessage  ChatEventType = "user_message"
	EventWaitStart    ChatEventType = "wait_start"
	EventReplySkipped ChatEventType = "reply_skipped"
	EventReply        ChatEventType = "reply"
	EventTriggered    ChatEventType = "triggered"
	EventHookOutput   ChatEventType = "hook_output"
	EventSessionEnd   ChatEventType = "session_end"
)

// ChatEvent represents an event emitted by the chat loop.
type ChatEvent struct {
	Type    ChatEventType
	Content string   // set for UserMessage, Reply and HookOutput
	Signals []string // set for Triggered
	Error   error    // set for Reply and SessionEnd on failure
}

// subscriber is an identified event callback.
type subscriber struct {
	id uint64
	fn func(ChatEvent)
}

// EventEmitter provides a simple pub-sub mechanism for chat events.
type EventEmitter struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID uint64
}

// NewEventEmitter creates a new EventEmitter.
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{}
}

// Subscribe registers a callback to receive events. Callbacks run in
// subscription order. Returns an unsubscribe function that removes the
// callback by ID and keeps the others in order.
func (e *EventEmitter) Subscribe(fn func(ChatEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.subs = slices.DeleteFunc(e.subs, func(s subscriber) bool { return s.id == id })
	}
}

// Emit sends an event to all subscribers.
func (e *EventEmitter) Emit(event ChatEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.subs {
		s.fn(event)
	}
}
