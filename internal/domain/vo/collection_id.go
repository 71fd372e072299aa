package vo

import (
	"fmt"
	"strings"
)

// CollectionIDLength is the length of a hex-encoded Cardano policy ID
// (a 28 byte blake2b-224 hash).
const CollectionIDLength = 56

// Rule names a structural rule of the collection identifier scheme.
type Rule string

const (
	RuleEmpty   Rule = "empty"
	RuleLength  Rule = "length"
	RuleCharset Rule = "charset"
)

// InvalidIdentifierError is returned when a candidate identifier breaks
// one of the scheme's structural rules.
type InvalidIdentifierError struct {
	Rule  Rule
	Input string

	// Position is the byte offset of the first offending character
	// for RuleCharset, -1 otherwise.
	Position int
}

func (e *InvalidIdentifierError) Error() string {
	switch e.Rule {
	case RuleEmpty:
		return "invalid policy id: value is empty"
	case RuleLength:
		return fmt.Sprintf("invalid policy id: expected %d characters, got %d", CollectionIDLength, len(e.Input))
	case RuleCharset:
		return fmt.Sprintf("invalid policy id: non-hex character %q at position %d", e.Input[e.Position], e.Position)
	default:
		return fmt.Sprintf("invalid policy id: rule %s violated", e.Rule)
	}
}

// CollectionID is a validated collection identifier ("policy ID").
// The zero value is not valid; use ParseCollectionID.
type CollectionID struct {
	value string
}

// ParseCollectionID validates id and returns the normalized CollectionID.
// It performs no I/O. Surrounding whitespace is ignored and upper-case
// hex digits are folded to lower case.
func ParseCollectionID(id string) (CollectionID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return CollectionID{}, &InvalidIdentifierError{Rule: RuleEmpty, Input: id, Position: -1}
	}
	if len(id) != CollectionIDLength {
		return CollectionID{}, &InvalidIdentifierError{Rule: RuleLength, Input: id, Position: -1}
	}
	for i := 0; i < len(id); i++ {
		if !isHexDigit(id[i]) {
			return CollectionID{}, &InvalidIdentifierError{Rule: RuleCharset, Input: id, Position: i}
		}
	}
	return CollectionID{value: strings.ToLower(id)}, nil
}

// MustCollectionID parses id, panicking if invalid.
// Use only in tests or for compile-time constants.
func MustCollectionID(id string) CollectionID {
	cid, err := ParseCollectionID(id)
	if err != nil {
		panic(err)
	}
	return cid
}

// String returns the normalized identifier.
func (c CollectionID) String() string {
	return c.value
}

// IsValid returns true if c was produced by ParseCollectionID.
func (c CollectionID) IsValid() bool {
	return c.value != ""
}

// Equals checks if two IDs are equal.
func (c CollectionID) Equals(other CollectionID) bool {
	return c.value == other.value
}

func isHexDigit(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'a' && b <= 'f':
		return true
	case b >= 'A' && b <= 'F':
		return true
	}
	return false
}
