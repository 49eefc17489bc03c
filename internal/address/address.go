package address

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var hexAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Account is a trader's wallet address as reported by a provider or typed by a user.
// Case is preserved; compare with Equal.
type Account string

// IsValid reports whether s is 0x followed by exactly 40 hex digits.
func IsValid(s string) bool {
	return hexAddressPattern.MatchString(s)
}

// Format shortens s to its first 6 and last 4 characters for display.
// Strings shorter than 10 characters are returned unchanged.
func Format(s string) string {
	if len(s) < 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// Normalize trims surrounding whitespace.
func Normalize(s string) Account {
	return Account(strings.TrimSpace(s))
}

// Parse normalizes s and rejects anything that is not a hex address.
func Parse(s string) (Account, error) {
	a := Normalize(s)
	if !IsValid(string(a)) {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return a, nil
}

func (a Account) String() string { return string(a) }

// Short is Format applied to the account.
func (a Account) Short() string { return Format(string(a)) }

func (a Account) IsZero() bool { return a == "" }

// Equal compares two accounts ignoring case and surrounding whitespace.
func (a Account) Equal(b Account) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(string(a)), strings.TrimSpace(string(b)))
}

// Lower is the canonical comparison key, used for map keys and storage.
func (a Account) Lower() string {
	return strings.ToLower(strings.TrimSpace(string(a)))
}

// Common converts the account for use with go-ethereum APIs.
func (a Account) Common() (common.Address, error) {
	if !IsValid(string(a)) {
		return common.Address{}, fmt.Errorf("invalid address %q", string(a))
	}
	return common.HexToAddress(string(a)), nil
}

// FromCommon returns the EIP-55 checksummed form of addr.
func FromCommon(addr common.Address) Account {
	return Account(addr.Hex())
}
