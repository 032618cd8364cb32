package chat

import (
	"strings"
)

// Kind distinguishes the two participant populations of the portal.
type Kind string

const (
	KindCandidate Kind = "candidate"
	KindHR        Kind = "hr"
)

// ParseKind accepts only the exact lowercase kind names used on the wire.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindCandidate:
		return KindCandidate, nil
	case KindHR:
		return KindHR, nil
	default:
		return "", &ValidationError{Field: "kind", Reason: "must be candidate or hr"}
	}
}

// Identity addresses a participant. Ids are only unique within a kind.
type Identity struct {
	ID   string `json:"participantId"`
	Kind Kind   `json:"participantKind"`
}

// NewIdentity validates id and kind and returns the identity.
func NewIdentity(id, kind string) (Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, &ValidationError{Field: "id", Reason: "required"}
	}
	k, err := ParseKind(kind)
	if err != nil {
		return Identity{}, err
	}
	return Identity{ID: id, Kind: k}, nil
}

// Key renders the identity as "<id>_<kind>".
func (i Identity) Key() string {
	return i.ID + roomSeparator + string(i.Kind)
}

func (i Identity) String() string {
	return i.Key()
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Kind == ""
}
