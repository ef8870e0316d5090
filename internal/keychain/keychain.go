// Package keychain stores, retrieves, replaces and removes credentials in the
// host's secure credential store.
//
// A credential is addressed by (kind, account, realm):
//   - InternetPassword: realm is the server attribute
//   - GenericPassword: realm is the service attribute
//
// Records may carry an optional 32-bit owner tag, set at creation time. The
// tag is not part of the lookup key; it only groups records so that the
// application that created them can remove all of them at once.
//
// The host store itself is reached through a Facility. On macOS that is
// Keychain Services; elsewhere it is the desktop keyring. Tests use
// MemoryFacility.
package keychain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the item class a CredentialStore operates on.
type Kind int

const (
	InternetPassword Kind = iota + 1
	GenericPassword
)

func (k Kind) String() string {
	switch k {
	case InternetPassword:
		return "internet-password"
	case GenericPassword:
		return "generic-password"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a config or flag value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "internet-password", "internet":
		return InternetPassword, nil
	case "generic-password", "generic":
		return GenericPassword, nil
	}
	return 0, fmt.Errorf("unknown item kind %q (want internet-password or generic-password)", s)
}

// Owner tags records created by one application.
type Owner uint32

// ParseOwner accepts a decimal or 0x-prefixed integer, or a four-character
// code such as "KSTH".
func ParseOwner(s string) (Owner, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty owner tag")
	}
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return Owner(v), nil
	}
	if len(s) == 4 {
		var v uint32
		for i := 0; i < 4; i++ {
			if s[i] < 0x20 || s[i] > 0x7e {
				return 0, fmt.Errorf("owner tag %q: four-char code must be printable ASCII", s)
			}
			v = v<<8 | uint32(s[i])
		}
		return Owner(v), nil
	}
	return 0, fmt.Errorf("owner tag %q: want an integer or a four-character code", s)
}

// String returns the four-character code when it parses back to o, and
// 0x-prefixed hex otherwise.
func (o Owner) String() string {
	code := string([]byte{byte(o >> 24), byte(o >> 16), byte(o >> 8), byte(o)})
	if back, err := ParseOwner(code); err == nil && back == o {
		return code
	}
	return fmt.Sprintf("0x%08x", uint32(o))
}

// MatchLimit bounds how many records a query may touch.
type MatchLimit int

const (
	// MatchDefault leaves the limit to the facility.
	MatchDefault MatchLimit = iota
	MatchOne
	MatchAll
)

// Query describes records to find, create, update or delete.
//
// Account and Realm are matched exactly, the empty string included, unless
// AnyKey is set.
type Query struct {
	Kind    Kind
	Account string
	Realm   string
	// AnyKey drops the account and realm predicates, so the query selects
	// every record of Kind (narrowed by Owner). Only bulk removal sets it.
	AnyKey bool
	// Owner is nil when the query carries no owner predicate.
	Owner *Owner

	Limit            MatchLimit
	ReturnData       bool
	ReturnAttributes bool

	// Data is the secret payload; only set for Add.
	Data []byte
}

// Record is a record returned by CopyMatching.
type Record struct {
	Account string
	Realm   string
	Label   string
	Data    []byte
}

// Capabilities describes facility behavior that differs between platforms.
type Capabilities struct {
	// DeletesAllMatches reports whether one Delete with MatchAll removes every
	// matching record. Keychain Services on macOS removes one per call.
	DeletesAllMatches bool
}

// Facility is the host secure-storage facility.
//
// Implementations report success as a nil error and "no record matched" as
// ErrItemNotFound. Every other failure is opaque to this package.
type Facility interface {
	CopyMatching(q Query) ([]Record, error)
	Add(q Query) error
	Update(q Query, data []byte) error
	Delete(q Query) error
	Capabilities() Capabilities
}

// Store is the set of credential operations offered to application code.
type Store interface {
	Kind() Kind
	Lookup(account, realm string) (string, bool, error)
	Add(secret, account, realm string, opts ...RecordOption) error
	Upsert(secret, account, realm string, opts ...RecordOption) error
	RemoveOne(account, realm string, opts ...RecordOption) error
	RemoveAllByOwner(owner Owner) error
}

// RecordOption adjusts the query built for one operation.
type RecordOption func(*recordOptions)

type recordOptions struct {
	owner *Owner
}

// WithOwner tags a created record with owner, or restricts an update or
// removal to records carrying that tag.
func WithOwner(owner Owner) RecordOption {
	return func(o *recordOptions) {
		o.owner = &owner
	}
}

func applyOptions(opts []RecordOption) recordOptions {
	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
