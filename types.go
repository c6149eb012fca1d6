package pawgraph

import (
	"fmt"
	"sync"
	"time"
)

// Config holds configuration for a pawgraph Engine
type Config struct {
	Debug bool
	// SafepointTimeout bounds how long a capture waits for every registered
	// thread to reach a poll point before reporting a LivenessError
	SafepointTimeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Debug:            false,
		SafepointTimeout: 10 * time.Second,
	}
}

// SymbolObject is an interned, identity-bearing name. Two symbols with the
// same spelling are the same pointer; symbols are leaves of the object graph.
type SymbolObject struct {
	name string
}

// Name returns the symbol's spelling
func (s *SymbolObject) Name() string { return s.name }

// String returns a string representation for debugging
func (s *SymbolObject) String() string { return fmt.Sprintf(":%s", s.name) }

// SymbolTable interns symbols so spelling maps to a single identity
type SymbolTable struct {
	mu      sync.RWMutex
	symbols map[string]*SymbolObject
}

// NewSymbolTable creates an empty symbol table
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		symbols: make(map[string]*SymbolObject),
	}
}

// Intern returns the symbol for name, creating it on first use
func (st *SymbolTable) Intern(name string) *SymbolObject {
	st.mu.RLock()
	sym, exists := st.symbols[name]
	st.mu.RUnlock()
	if exists {
		return sym
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if sym, exists := st.symbols[name]; exists {
		return sym
	}
	sym = &SymbolObject{name: name}
	st.symbols[name] = sym
	return sym
}

// Len returns the number of interned symbols
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.symbols)
}

// HashEntry is one bucket entry of a hash-shaped object's storage.
// Collisions chain through NextInLookup.
type HashEntry struct {
	Key          interface{}
	Value        interface{}
	NextInLookup *HashEntry
}

// StoredList is an ordered collection used as internal object storage.
// Elements may be heap entities or primitives; the list itself carries no
// identity in the object graph, only its elements do.
type StoredList struct {
	mu    sync.RWMutex
	items []interface{}
}

// NewStoredList creates a new StoredList from a slice of items
func NewStoredList(items []interface{}) *StoredList {
	return &StoredList{items: items}
}

// Items returns a snapshot copy of the underlying items
func (pl *StoredList) Items() []interface{} {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	out := make([]interface{}, len(pl.items))
	copy(out, pl.items)
	return out
}

// Len returns the number of items in the list
func (pl *StoredList) Len() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return len(pl.items)
}

// Get returns the item at the given index (0-based), nil if out of bounds
func (pl *StoredList) Get(index int) interface{} {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	if index < 0 || index >= len(pl.items) {
		return nil
	}
	return pl.items[index]
}

// Append adds an item to the end of the list
func (pl *StoredList) Append(item interface{}) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.items = append(pl.items, item)
}

// String returns a string representation for debugging
func (pl *StoredList) String() string {
	return fmt.Sprintf("(list len=%d)", pl.Len())
}

// ChannelMessage represents a message in a channel buffer
type ChannelMessage struct {
	SenderID int
	Value    interface{}
}

// StoredChannel is a queue object with an optionally bounded buffer.
// BufferSize 0 means unbounded. The walker reads the buffered contents;
// send/receive are for the embedding runtime.
type StoredChannel struct {
	mu         sync.RWMutex
	bufferSize int
	messages   []ChannelMessage
	closed     bool
}

// NewStoredChannel creates a new channel; bufferSize 0 means unbounded
func NewStoredChannel(bufferSize int) *StoredChannel {
	return &StoredChannel{
		bufferSize: bufferSize,
		messages:   make([]ChannelMessage, 0),
	}
}

// Send appends a value to the channel buffer
func (ch *StoredChannel) Send(senderID int, value interface{}) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return fmt.Errorf("channel is closed")
	}
	if ch.bufferSize > 0 && len(ch.messages) >= ch.bufferSize {
		return fmt.Errorf("channel buffer is full (%d messages)", ch.bufferSize)
	}

	ch.messages = append(ch.messages, ChannelMessage{SenderID: senderID, Value: value})
	return nil
}

// Receive removes and returns the oldest buffered value
func (ch *StoredChannel) Receive() (interface{}, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if len(ch.messages) == 0 {
		return nil, false
	}
	msg := ch.messages[0]
	ch.messages = ch.messages[1:]
	return msg.Value, true
}

// Close marks the channel closed; buffered contents remain readable
func (ch *StoredChannel) Close() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.closed = true
}

// IsClosed reports whether the channel has been closed
func (ch *StoredChannel) IsClosed() bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.closed
}

// Contents returns a snapshot of the buffered values, oldest first
func (ch *StoredChannel) Contents() []interface{} {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	out := make([]interface{}, len(ch.messages))
	for i, msg := range ch.messages {
		out[i] = msg.Value
	}
	return out
}

// String returns a string representation for debugging
func (ch *StoredChannel) String() string {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	if ch.bufferSize > 0 {
		return fmt.Sprintf("(channel %d/%d)", len(ch.messages), ch.bufferSize)
	}
	return fmt.Sprintf("(channel %d)", len(ch.messages))
}
