package keychain

import (
	"errors"
	"fmt"
	"time"

	"github.com/benaskins/keystash/internal/audit"
)

// AuditedStore wraps a Store and adds audit logging and metadata tracking.
type AuditedStore struct {
	inner    Store
	audit    *audit.Logger
	metadata *MetadataStore
	actor    string // "cli" or "library"
}

// NewAuditedStore wraps an existing store with audit logging.
func NewAuditedStore(inner Store, auditLog *audit.Logger, metadata *MetadataStore, actor string) *AuditedStore {
	return &AuditedStore{
		inner:    inner,
		audit:    auditLog,
		metadata: metadata,
		actor:    actor,
	}
}

func (s *AuditedStore) Kind() Kind {
	return s.inner.Kind()
}

func (s *AuditedStore) entry(action audit.Action, account, realm string, owner *Owner, err error) audit.Entry {
	e := audit.Entry{
		Action:  action,
		Kind:    s.inner.Kind().String(),
		Account: account,
		Realm:   realm,
		Actor:   s.actor,
	}
	if owner != nil {
		e.Owner = owner.String()
	}
	if err != nil {
		e.Error = err.Error()
		var ue *UnavailableError
		if errors.As(err, &ue) {
			e.Code = ue.Code
		}
	}
	return e
}

// touch records a successful write in the metadata file.
func (s *AuditedStore) touch(account, realm string, owner *Owner, rotated bool) error {
	key := MetadataKey(s.inner.Kind(), account, realm)
	now := time.Now().UTC()
	meta := s.metadata.Get(key)
	if meta == nil {
		meta = &SecretMetadata{
			Kind:      s.inner.Kind().String(),
			Account:   account,
			Realm:     realm,
			CreatedAt: now,
		}
	} else {
		meta.UpdatedAt = now
	}
	if owner != nil {
		meta.Owner = owner.String()
	}
	if rotated {
		meta.LastRotated = now
	}
	return s.metadata.Set(key, meta)
}

func (s *AuditedStore) Lookup(account, realm string) (string, bool, error) {
	val, ok, err := s.inner.Lookup(account, realm)

	e := s.entry(audit.ActionRead, account, realm, nil, err)
	if err == nil {
		e.Found = &ok
	}
	// Audit logging is best-effort; a failure to log does not block the operation.
	s.audit.Log(e)

	if err != nil {
		return "", false, fmt.Errorf("audited store lookup: %w", err)
	}
	return val, ok, nil
}

func (s *AuditedStore) Add(secret, account, realm string, opts ...RecordOption) error {
	o := applyOptions(opts)
	err := s.inner.Add(secret, account, realm, opts...)
	s.audit.Log(s.entry(audit.ActionAdd, account, realm, o.owner, err))
	if err != nil {
		return fmt.Errorf("audited store add: %w", err)
	}

	if err := s.touch(account, realm, o.owner, false); err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}
	return nil
}

func (s *AuditedStore) Upsert(secret, account, realm string, opts ...RecordOption) error {
	o := applyOptions(opts)
	err := s.inner.Upsert(secret, account, realm, opts...)
	s.audit.Log(s.entry(audit.ActionWrite, account, realm, o.owner, err))
	if err != nil {
		return fmt.Errorf("audited store upsert: %w", err)
	}

	if err := s.touch(account, realm, o.owner, false); err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}
	return nil
}

func (s *AuditedStore) RemoveOne(account, realm string, opts ...RecordOption) error {
	o := applyOptions(opts)
	err := s.inner.RemoveOne(account, realm, opts...)
	s.audit.Log(s.entry(audit.ActionDelete, account, realm, o.owner, err))
	if err != nil {
		return fmt.Errorf("audited store remove: %w", err)
	}

	// An owner filter may have matched nothing; keep metadata for a record
	// that is still there.
	if o.owner != nil {
		if _, ok, err := s.inner.Lookup(account, realm); err != nil || ok {
			return nil
		}
	}
	if err := s.metadata.Delete(MetadataKey(s.inner.Kind(), account, realm)); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	return nil
}

func (s *AuditedStore) RemoveAllByOwner(owner Owner) error {
	err := s.inner.RemoveAllByOwner(owner)
	s.audit.Log(s.entry(audit.ActionPurge, "", "", &owner, err))
	if err != nil {
		return fmt.Errorf("audited store remove all: %w", err)
	}

	if _, err := s.metadata.DeleteOwned(s.inner.Kind(), owner); err != nil {
		return fmt.Errorf("deleting metadata: %w", err)
	}
	return nil
}

// Rotate runs a rotation command, stores its output as the new secret for
// (account, realm), and logs the rotation. The stored secret is left
// untouched if the command fails.
func (s *AuditedStore) Rotate(account, realm, command string, opts ...RecordOption) error {
	o := applyOptions(opts)

	output, err := runRotationCommand(command)
	if err != nil {
		e := s.entry(audit.ActionRotate, account, realm, o.owner, err)
		e.Trigger = "hook"
		e.Command = command
		s.audit.Log(e)
		return fmt.Errorf("rotation command failed: %w", err)
	}

	err = s.inner.Upsert(output, account, realm, opts...)
	e := s.entry(audit.ActionRotate, account, realm, o.owner, err)
	e.Trigger = "hook"
	e.Command = command
	s.audit.Log(e)
	if err != nil {
		return fmt.Errorf("storing rotated secret: %w", err)
	}

	if err := s.touch(account, realm, o.owner, true); err != nil {
		return fmt.Errorf("saving rotation metadata: %w", err)
	}
	return nil
}

// Metadata returns the metadata store for direct access.
func (s *AuditedStore) Metadata() *MetadataStore {
	return s.metadata
}
