// Package types holds the dependency-free shapes shared across every
// component of the core: identity, normalized records, mapping rows,
// lots, and audit events. Nothing in this package imports anything else
// under tbotcore/internal — components depend on types, not on each other,
// to avoid the cyclic-helper problem the original system suffered from.
package types

import (
	"fmt"
	"regexp"
	"strings"
)

// identityPattern matches four tokens joined by underscores: entity,
// jurisdiction and broker (uppercase letters only) and bot id (uppercase
// letters or digits).
var identityPattern = regexp.MustCompile(`^[A-Z]{2,6}_[A-Z]{2,4}_[A-Z]{2,10}_[A-Z0-9]{2,6}$`)

// Identity4 scopes every persistent path, database, and audit record.
type Identity4 struct {
	Entity       string
	Jurisdiction string
	Broker       string
	BotID        string
}

func (id Identity4) String() string {
	return fmt.Sprintf("%s_%s_%s_%s", id.Entity, id.Jurisdiction, id.Broker, id.BotID)
}

// ParseIdentity4 validates and splits a raw identity string.
func ParseIdentity4(raw string) (Identity4, error) {
	if !identityPattern.MatchString(raw) {
		return Identity4{}, fmt.Errorf("identity: invalid identity string %q", raw)
	}
	parts := strings.SplitN(raw, "_", 4)
	if len(parts) != 4 {
		return Identity4{}, fmt.Errorf("identity: expected 4 segments, got %d in %q", len(parts), raw)
	}
	return Identity4{
		Entity:       parts[0],
		Jurisdiction: parts[1],
		Broker:       parts[2],
		BotID:        parts[3],
	}, nil
}

// Validate re-checks an already-constructed Identity4 against the regex,
// used after callers build one field-by-field rather than from a raw string.
func (id Identity4) Validate() error {
	_, err := ParseIdentity4(id.String())
	return err
}

// IdentityPattern exposes the compiled regex for callers (e.g. HTTP input
// validation) that need it without re-compiling.
func IdentityPattern() *regexp.Regexp {
	return identityPattern
}
