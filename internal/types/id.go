package types

import (
	"github.com/google/uuid"
)

// ID is an opaque identifier shared by all aggregates.
type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// ValidID reports whether v looks like an identifier we issued or accept
// from collaborators (uuid or short alphanumeric keys).
func ValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	if _, err := uuid.Parse(v); err == nil {
		return true
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}
