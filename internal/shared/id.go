package shared

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random 32 character hexadecimal identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
