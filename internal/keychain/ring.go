package keychain

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

const ownerPrefix = "owner="

// RingFacility stores credentials in a desktop keyring (Secret Service,
// KWallet, keyctl, wincred, pass or an encrypted file).
//
// Each record is one keyring item keyed "kind/realm/account" (path-escaped),
// with the owner tag in the item description.
type RingFacility struct {
	mu   sync.Mutex
	ring keyring.Keyring
}

// NewRingFacility wraps an opened keyring.
func NewRingFacility(ring keyring.Keyring) *RingFacility {
	return &RingFacility{ring: ring}
}

// OpenRingFacility opens the first available keyring backend allowed by opts.
func OpenRingFacility(opts SystemOptions) (*RingFacility, error) {
	name := opts.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	cfg := keyring.Config{
		ServiceName:             name,
		KWalletAppID:            name,
		KWalletFolder:           name,
		LibSecretCollectionName: name,
		WinCredPrefix:           name,
		FileDir:                 opts.FileDir,
	}
	if opts.FilePassword != nil {
		cfg.FilePasswordFunc = keyring.PromptFunc(opts.FilePassword)
	}
	for _, b := range opts.Backends {
		cfg.AllowedBackends = append(cfg.AllowedBackends, keyring.BackendType(b))
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewRingFacility(ring), nil
}

// Capabilities reports that Delete removes every match.
func (f *RingFacility) Capabilities() Capabilities {
	return Capabilities{DeletesAllMatches: true}
}

type ringKey struct {
	kind    string
	realm   string
	account string
}

func encodeRingKey(kind Kind, realm, account string) string {
	return kind.String() + "/" + url.PathEscape(realm) + "/" + url.PathEscape(account)
}

func decodeRingKey(key string) (ringKey, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return ringKey{}, false
	}
	realm, err := url.PathUnescape(parts[1])
	if err != nil {
		return ringKey{}, false
	}
	account, err := url.PathUnescape(parts[2])
	if err != nil {
		return ringKey{}, false
	}
	return ringKey{kind: parts[0], realm: realm, account: account}, true
}

func ringOwner(item keyring.Item) (Owner, bool) {
	if !strings.HasPrefix(item.Description, ownerPrefix) {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(item.Description, ownerPrefix), 10, 32)
	if err != nil {
		return 0, false
	}
	return Owner(v), true
}

func fromRingError(op string, err error) error {
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrItemNotFound
	}
	return fmt.Errorf("keyring %s: %w", op, err)
}

type ringMatch struct {
	raw  string
	key  ringKey
	item keyring.Item
}

// match returns the items selected by q, honoring q.Limit == MatchOne.
func (f *RingFacility) match(q Query) ([]ringMatch, error) {
	ownerOK := func(item keyring.Item) bool {
		if q.Owner == nil {
			return true
		}
		o, ok := ringOwner(item)
		return ok && o == *q.Owner
	}

	if !q.AnyKey {
		key := encodeRingKey(q.Kind, q.Realm, q.Account)
		item, err := f.ring.Get(key)
		if err != nil {
			return nil, fromRingError("get", err)
		}
		if !ownerOK(item) {
			return nil, nil
		}
		return []ringMatch{{raw: key, key: ringKey{q.Kind.String(), q.Realm, q.Account}, item: item}}, nil
	}

	keys, err := f.ring.Keys()
	if err != nil {
		return nil, fromRingError("keys", err)
	}
	sort.Strings(keys)

	var out []ringMatch
	for _, key := range keys {
		rk, ok := decodeRingKey(key)
		if !ok || rk.kind != q.Kind.String() {
			continue
		}
		item, err := f.ring.Get(key)
		if err != nil {
			if errors.Is(err, keyring.ErrKeyNotFound) {
				continue
			}
			return nil, fromRingError("get", err)
		}
		if !ownerOK(item) {
			continue
		}
		out = append(out, ringMatch{raw: key, key: rk, item: item})
		if q.Limit == MatchOne {
			break
		}
	}
	return out, nil
}

func (f *RingFacility) CopyMatching(q Query) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matches, err := f.match(q)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrItemNotFound
	}
	records := make([]Record, 0, len(matches))
	for _, m := range matches {
		var rec Record
		if q.ReturnAttributes {
			rec.Account = m.key.account
			rec.Realm = m.key.realm
			rec.Label = m.item.Label
		}
		if q.ReturnData {
			rec.Data = bytes.Clone(m.item.Data)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (f *RingFacility) Add(q Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := encodeRingKey(q.Kind, q.Realm, q.Account)
	if _, err := f.ring.Get(key); err == nil {
		return ErrDuplicateItem
	} else if !errors.Is(err, keyring.ErrKeyNotFound) {
		return fromRingError("get", err)
	}

	item := keyring.Item{
		Key:                       key,
		Data:                      bytes.Clone(q.Data),
		Label:                     fmt.Sprintf("%s@%s", q.Account, q.Realm),
		KeychainNotSynchronizable: true,
	}
	if q.Owner != nil {
		item.Description = ownerPrefix + strconv.FormatUint(uint64(*q.Owner), 10)
	}
	if err := f.ring.Set(item); err != nil {
		return fromRingError("set", err)
	}
	return nil
}

func (f *RingFacility) Update(q Query, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	matches, err := f.match(q)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return ErrItemNotFound
	}
	for _, m := range matches {
		item := m.item
		item.Key = m.raw
		item.Data = bytes.Clone(data)
		if err := f.ring.Set(item); err != nil {
			return fromRingError("set", err)
		}
	}
	return nil
}

func (f *RingFacility) Delete(q Query) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	matches, err := f.match(q)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return ErrItemNotFound
	}
	for _, m := range matches {
		if err := f.ring.Remove(m.raw); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fromRingError("remove", err)
		}
	}
	return nil
}
