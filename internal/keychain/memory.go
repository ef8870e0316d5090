package keychain

import (
	"bytes"
	"fmt"
	"sync"
)

// Facility operation names, as passed to MemoryFacility.Hook.
const (
	OpCopyMatching = "copy_matching"
	OpAdd          = "add"
	OpUpdate       = "update"
	OpDelete       = "delete"
)

type memoryRecord struct {
	kind    Kind
	account string
	realm   string
	owner   *Owner
	label   string
	data    []byte
}

// MemoryFacility is an in-memory Facility for testing.
type MemoryFacility struct {
	mu         sync.Mutex
	records    []*memoryRecord
	deletesAll bool
	calls      map[string]int

	// Hook, when set, runs before every operation. A non-nil return is
	// reported as that operation's status and the operation is skipped.
	Hook func(op string, q Query) error
}

// NewMemoryFacility creates an empty facility whose deletes honor MatchAll.
func NewMemoryFacility() *MemoryFacility {
	return &MemoryFacility{deletesAll: true, calls: make(map[string]int)}
}

// NewSingleDeleteMemoryFacility creates an empty facility that removes at
// most one record per Delete, like Keychain Services on macOS.
func NewSingleDeleteMemoryFacility() *MemoryFacility {
	return &MemoryFacility{calls: make(map[string]int)}
}

func (m *MemoryFacility) Capabilities() Capabilities {
	return Capabilities{DeletesAllMatches: m.deletesAll}
}

// Calls returns how many times op has been invoked.
func (m *MemoryFacility) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Len returns the number of records held.
func (m *MemoryFacility) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Put stores raw bytes under (kind, account, realm) without any checks, so
// tests can plant records a well-behaved writer would never create.
func (m *MemoryFacility) Put(kind Kind, account, realm string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, &memoryRecord{
		kind:    kind,
		account: account,
		realm:   realm,
		data:    data,
	})
}

func (m *MemoryFacility) enter(op string, q Query) error {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
	if m.Hook != nil {
		return m.Hook(op, q)
	}
	return nil
}

func (r *memoryRecord) matches(q Query) bool {
	if r.kind != q.Kind {
		return false
	}
	if !q.AnyKey && (r.account != q.Account || r.realm != q.Realm) {
		return false
	}
	if q.Owner != nil && (r.owner == nil || *r.owner != *q.Owner) {
		return false
	}
	return true
}

func (m *MemoryFacility) match(q Query) []int {
	var idx []int
	for i, r := range m.records {
		if r.matches(q) {
			idx = append(idx, i)
			if q.Limit == MatchOne {
				break
			}
		}
	}
	return idx
}

func (m *MemoryFacility) CopyMatching(q Query) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCopyMatching, q); err != nil {
		return nil, err
	}

	idx := m.match(q)
	if len(idx) == 0 {
		return nil, ErrItemNotFound
	}
	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		r := m.records[i]
		rec := Record{}
		if q.ReturnAttributes {
			rec.Account = r.account
			rec.Realm = r.realm
			rec.Label = r.label
		}
		if q.ReturnData {
			rec.Data = bytes.Clone(r.data)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryFacility) Add(q Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpAdd, q); err != nil {
		return err
	}

	for _, r := range m.records {
		if r.kind == q.Kind && r.account == q.Account && r.realm == q.Realm {
			return ErrDuplicateItem
		}
	}
	rec := &memoryRecord{
		kind:    q.Kind,
		account: q.Account,
		realm:   q.Realm,
		label:   fmt.Sprintf("%s@%s", q.Account, q.Realm),
		data:    bytes.Clone(q.Data),
	}
	if q.Owner != nil {
		o := *q.Owner
		rec.owner = &o
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryFacility) Update(q Query, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpUpdate, q); err != nil {
		return err
	}

	idx := m.match(q)
	if len(idx) == 0 {
		return ErrItemNotFound
	}
	for _, i := range idx {
		m.records[i].data = bytes.Clone(data)
	}
	return nil
}

func (m *MemoryFacility) Delete(q Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpDelete, q); err != nil {
		return err
	}

	idx := m.match(q)
	if len(idx) == 0 {
		return ErrItemNotFound
	}
	if !m.deletesAll {
		idx = idx[:1]
	}

	kept := m.records[:0]
	j := 0
	for i, r := range m.records {
		if j < len(idx) && idx[j] == i {
			j++
			continue
		}
		kept = append(kept, r)
	}
	for k := len(kept); k < len(m.records); k++ {
		m.records[k] = nil
	}
	m.records = kept
	return nil
}
