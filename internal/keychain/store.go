package keychain

import (
	"log/slog"
	"unicode/utf8"
)

// CredentialStore reads and writes credentials of one Kind through a
// Facility. It holds no mutable state and is safe for concurrent use; the
// facility provides whatever atomicity it provides per call and nothing more.
type CredentialStore struct {
	facility   Facility
	kind       Kind
	deletesAll bool
	logger     *slog.Logger
}

// New creates a CredentialStore for kind. The facility's capabilities are
// read once here.
func New(facility Facility, kind Kind) *CredentialStore {
	return &CredentialStore{
		facility:   facility,
		kind:       kind,
		deletesAll: facility.Capabilities().DeletesAllMatches,
		logger:     slog.With("component", "keychain", "kind", kind.String()),
	}
}

// Kind returns the item kind this store operates on.
func (s *CredentialStore) Kind() Kind {
	return s.kind
}

func (s *CredentialStore) query(account, realm string, owner *Owner) Query {
	q := Query{
		Kind:    s.kind,
		Account: account,
		Realm:   realm,
	}
	if owner != nil {
		o := *owner
		q.Owner = &o
	}
	return q
}

func (s *CredentialStore) ownerQuery(owner Owner) Query {
	return Query{Kind: s.kind, AnyKey: true, Owner: &owner}
}

// Lookup returns the secret for (account, realm). A missing record is
// reported as ok == false with a nil error.
func (s *CredentialStore) Lookup(account, realm string) (string, bool, error) {
	q := s.query(account, realm, nil)
	q.Limit = MatchOne
	q.ReturnData = true
	q.ReturnAttributes = true

	records, err := s.facility.CopyMatching(q)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, unavailable("lookup", err)
	}
	if len(records) == 0 {
		return "", false, nil
	}

	data := records[0].Data
	if data == nil || !utf8.Valid(data) {
		return "", false, ErrMalformedRecord
	}
	return string(data), true, nil
}

// Add creates a record. It fails if the facility already holds one for the
// same key.
func (s *CredentialStore) Add(secret, account, realm string, opts ...RecordOption) error {
	o := applyOptions(opts)
	q := s.query(account, realm, o.owner)
	q.Data = []byte(secret)

	if err := s.facility.Add(q); err != nil {
		return unavailable("add", err)
	}
	return nil
}

// Upsert replaces the secret of an existing record, or creates the record
// when none matches.
func (s *CredentialStore) Upsert(secret, account, realm string, opts ...RecordOption) error {
	o := applyOptions(opts)
	q := s.query(account, realm, o.owner)

	err := s.facility.Update(q, []byte(secret))
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		s.logger.Debug("no record to update, creating", "account", account, "realm", realm)
		return s.Add(secret, account, realm, opts...)
	default:
		return unavailable("upsert", err)
	}
}

// RemoveOne deletes the record for (account, realm). Removing a record that
// does not exist succeeds.
func (s *CredentialStore) RemoveOne(account, realm string, opts ...RecordOption) error {
	o := applyOptions(opts)
	q := s.query(account, realm, o.owner)

	if err := s.facility.Delete(q); err != nil && !isNotFound(err) {
		return unavailable("remove", err)
	}
	return nil
}

// RemoveAllByOwner deletes every record of this kind tagged with owner.
//
// Where one delete call removes only a single match, it probes and deletes
// until nothing matches. That loop does not terminate if another writer keeps
// adding records with the same owner. A failure stops the loop and leaves
// already-deleted records deleted.
func (s *CredentialStore) RemoveAllByOwner(owner Owner) error {
	del := s.ownerQuery(owner)
	del.Limit = MatchAll

	if s.deletesAll {
		if err := s.facility.Delete(del); err != nil && !isNotFound(err) {
			return unavailable("remove all", err)
		}
		return nil
	}

	probe := s.ownerQuery(owner)
	probe.Limit = MatchOne
	probe.ReturnAttributes = true

	for n := 0; ; n++ {
		records, err := s.facility.CopyMatching(probe)
		if err != nil && !isNotFound(err) {
			return unavailable("remove all", err)
		}
		if err != nil || len(records) == 0 {
			s.logger.Debug("owner records removed", "owner", owner.String(), "iterations", n)
			return nil
		}

		if err := s.facility.Delete(del); err != nil && !isNotFound(err) {
			return unavailable("remove all", err)
		}
	}
}
