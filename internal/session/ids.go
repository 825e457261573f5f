package session

import (
	"strings"

	"github.com/google/uuid"
)

// IDGenerator produces fresh session ids.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random session ids: a UUIDv4 rendered as 32
// lowercase hex characters without hyphens, matching the fixed-width id
// column.
//
// Uses github.com/google/uuid package for RFC 4122 compliant UUIDs.
//
// Thread-safety: UUIDGenerator is stateless and safe for concurrent use.
type UUIDGenerator struct{}

// Generate returns a new id.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.Must(uuid.NewRandom()).String(), "-", "")
}
