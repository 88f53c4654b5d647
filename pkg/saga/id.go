package saga

import (
	"strings"

	"github.com/google/uuid"
)

// ID identifies a saga instance within its saga kind.
type ID string

func (i ID) String() string {
	return string(i)
}

func (i ID) IsZero() bool {
	return i == ""
}

var idNamespace = uuid.MustParse("5b8f0f64-2d6a-4c8e-9a57-1f3cb9e0a7d2")

// NewID derives a stable identity from parts. Equal parts always give the
// same ID, which keeps locators deterministic across redelivery and replay.
func NewID(parts ...string) ID {
	return ID(uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "\x1f"))).String())
}
