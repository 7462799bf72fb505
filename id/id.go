// Package id defines prefix-qualified identifiers for chrono records.
//
// IDs render as "prefix_uuid" where the UUID is version 7, so string
// ordering follows creation time. Dead letters, chain items, enqueue
// requests, execution logs and engine instances each carry their own
// prefix so an id seen in a log line or an API response is self-describing.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefix identifies the record type encoded in an ID.
type Prefix string

// Prefix constants for all chrono record types.
const (
	PrefixDeadLetter Prefix = "dl"
	PrefixChainItem  Prefix = "chn"
	PrefixRequest    Prefix = "req"
	PrefixLog        Prefix = "log"
	PrefixInstance   Prefix = "inst"
)

// ID is a prefixed, time-ordered unique identifier.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	prefix Prefix
	uuid   uuid.UUID
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix.
func New(prefix Prefix) ID {
	u, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source fails.
		u = uuid.New()
	}
	return ID{prefix: prefix, uuid: u}
}

// Parse parses "prefix_uuid" into an ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	i := strings.LastIndexByte(s, '_')
	if i <= 0 {
		return Nil, fmt.Errorf("id: parse %q: missing prefix", s)
	}
	u, err := uuid.Parse(s[i+1:])
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{prefix: Prefix(s[:i]), uuid: u}, nil
}

// ParseWithPrefix parses s and checks that its prefix matches expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.prefix != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.prefix)
	}
	return parsed, nil
}

// NewDeadLetterID generates a new dead-letter item ID.
func NewDeadLetterID() ID { return New(PrefixDeadLetter) }

// NewChainItemID generates a new chain queue item ID.
func NewChainItemID() ID { return New(PrefixChainItem) }

// NewRequestID generates a new enqueue request ID.
func NewRequestID() ID { return New(PrefixRequest) }

// NewLogID generates a new execution log ID.
func NewLogID() ID { return New(PrefixLog) }

// NewInstanceID generates a new engine instance ID.
func NewInstanceID() ID { return New(PrefixInstance) }

// ParseDeadLetterID parses s and validates the "dl" prefix.
func ParseDeadLetterID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDeadLetter) }

// String returns "prefix_uuid", or "" for Nil.
func (i ID) String() string {
	if i.IsNil() {
		return ""
	}
	return string(i.prefix) + "_" + i.uuid.String()
}

// Prefix returns the record type prefix.
func (i ID) Prefix() Prefix { return i.prefix }

// UUID returns the underlying UUID.
func (i ID) UUID() uuid.UUID { return i.uuid }

// IsNil reports whether the ID is the zero value.
func (i ID) IsNil() bool { return i.uuid == uuid.Nil }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
