// Package types holds the identifiers and enumerations shared across the
// protocol, db, and net packages: swap IDs, blockchain network tags, and the
// per-role status enumerations (spec.md §3.5, §4.4, §4.5).
package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// SwapID uniquely identifies a single swap attempt. It is issued by the
// initiating side (Taker) when a swap is created and used as the persistence
// key by both parties (spec.md §3.6).
type SwapID uuid.UUID

// NewSwapID generates a new random SwapID.
func NewSwapID() SwapID {
	return SwapID(uuid.New())
}

// ParseSwapID parses a canonical hyphenated UUID string into a SwapID.
func ParseSwapID(s string) (SwapID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SwapID{}, fmt.Errorf("invalid swap id %q: %w", s, err)
	}
	return SwapID(u), nil
}

// String returns the canonical hyphenated UUID representation.
func (id SwapID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id SwapID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *SwapID) UnmarshalText(data []byte) error {
	u, err := uuid.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("invalid swap id: %w", err)
	}
	*id = SwapID(u)
	return nil
}

// Value implements driver.Valuer so a SwapID can be stored directly as a db key.
func (id SwapID) Value() (driver.Value, error) {
	return id.String(), nil
}

// IsZero reports whether id is the zero-value UUID.
func (id SwapID) IsZero() bool {
	return id == SwapID{}
}
