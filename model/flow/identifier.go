package flow

import (
	"encoding/hex"
	"fmt"
)

const (
	// IdentifierLen is the length in bytes of an Identifier.
	IdentifierLen = 32
)

// Identifier represents a 32-byte unique identifier for a peer taking part in
// chain synchronization. It is comparable, so it can be used as a map key, and
// cheap to copy.
type Identifier [IdentifierLen]byte

// ZeroID is the lowest value in the 32-byte ID space.
var ZeroID = Identifier{}

// HexStringToIdentifier converts a hex string to an identifier. The input
// must be 64 characters long and contain only valid hex characters.
func HexStringToIdentifier(hexString string) (Identifier, error) {
	var identifier Identifier
	i, err := hex.Decode(identifier[:], []byte(hexString))
	if err != nil {
		return identifier, err
	}
	if i != IdentifierLen {
		return identifier, fmt.Errorf("malformed input, expected %d bytes (%d hex chars), decoded %d", IdentifierLen, 2*IdentifierLen, i)
	}
	return identifier, nil
}

// MustHexStringToIdentifier converts a hex string to an identifier and panics
// if the conversion fails. Only intended for constants and tests.
func MustHexStringToIdentifier(hexString string) Identifier {
	id, err := HexStringToIdentifier(hexString)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the hex string representation of the identifier.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// TerminalString returns a shortened hex representation for log output.
func (id Identifier) TerminalString() string {
	return fmt.Sprintf("%x…", id[:4])
}

// IsZero returns true if the identifier is the zero identifier.
func (id Identifier) IsZero() bool {
	return id == ZeroID
}

// IdentifierList defines a sortable list of identifiers
type IdentifierList []Identifier

// Len returns length of the IdentiferList in the number of stored identifiers.
func (il IdentifierList) Len() int {
	return len(il)
}

// Contains returns whether the list contains the given identifier.
func (il IdentifierList) Contains(target Identifier) bool {
	for _, id := range il {
		if id == target {
			return true
		}
	}
	return false
}
