package keychain

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/benaskins/keystash/internal/audit"
)

func setupAuditedStore(t *testing.T) (*AuditedStore, *MemoryFacility, string) {
	t.Helper()
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")
	metaPath := filepath.Join(dir, "metadata.json")

	auditLog, err := audit.NewLogger(auditPath)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	meta, err := NewMetadataStore(metaPath)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	f := NewMemoryFacility()
	store := NewAuditedStore(New(f, InternetPassword), auditLog, meta, "cli")

	return store, f, auditPath
}

func readAuditEntries(t *testing.T, path string) []audit.Entry {
	t.Helper()
	entries, err := audit.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return entries
}

func filterEntries(entries []audit.Entry, action audit.Action) []audit.Entry {
	var result []audit.Entry
	for _, e := range entries {
		if e.Action == action {
			result = append(result, e)
		}
	}
	return result
}

func TestAuditedStoreUpsertLogsWrite(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	if err := store.Upsert("value", "user", "server", WithOwner(0x4b535448)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != audit.ActionWrite {
		t.Errorf("expected credential_write, got %v", e.Action)
	}
	if e.Account != "user" || e.Realm != "server" {
		t.Errorf("expected user@server, got %s@%s", e.Account, e.Realm)
	}
	if e.Owner != "KSTH" {
		t.Errorf("expected owner KSTH, got %q", e.Owner)
	}
	if e.Kind != "internet-password" {
		t.Errorf("expected internet-password, got %q", e.Kind)
	}
	if e.Actor != "cli" {
		t.Errorf("expected cli, got %q", e.Actor)
	}

	meta := store.Metadata().Get(MetadataKey(InternetPassword, "user", "server"))
	if meta == nil {
		t.Fatal("expected metadata")
	}
	if meta.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestAuditedStoreLookupLogsRead(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	store.Add("val", "user", "server")
	store.Lookup("user", "server")
	store.Lookup("user", "missing")

	reads := filterEntries(readAuditEntries(t, auditPath), audit.ActionRead)
	if len(reads) != 2 {
		t.Fatalf("expected 2 read entries, got %d", len(reads))
	}
	if reads[0].Found == nil || !*reads[0].Found {
		t.Errorf("expected first read found")
	}
	if reads[1].Found == nil || *reads[1].Found {
		t.Errorf("expected second read not found")
	}
}

func TestAuditedStoreLogsFailureCode(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)
	store.Add("val", "user", "server")

	err := store.Add("again", "user", "server")
	if err == nil {
		t.Fatal("expected duplicate add to fail")
	}

	adds := filterEntries(readAuditEntries(t, auditPath), audit.ActionAdd)
	if len(adds) != 2 {
		t.Fatalf("expected 2 add entries, got %d", len(adds))
	}
	if adds[1].Code != CodeDuplicate {
		t.Errorf("expected code %d, got %d", CodeDuplicate, adds[1].Code)
	}
	if adds[1].Error == "" {
		t.Error("expected error text in audit entry")
	}
}

func TestAuditedStoreRemoveOneLogsDelete(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	store.Add("val", "user", "server")
	if err := store.RemoveOne("user", "server"); err != nil {
		t.Fatalf("RemoveOne: %v", err)
	}

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Action != audit.ActionDelete {
		t.Errorf("expected credential_delete, got %v", entries[1].Action)
	}
	if store.Metadata().Get(MetadataKey(InternetPassword, "user", "server")) != nil {
		t.Error("expected metadata removed")
	}
}

func TestAuditedStoreRemoveOneOwnerMismatchKeepsMetadata(t *testing.T) {
	store, _, _ := setupAuditedStore(t)
	key := MetadataKey(InternetPassword, "user", "server")

	store.Add("val", "user", "server", WithOwner(1))
	if err := store.RemoveOne("user", "server", WithOwner(2)); err != nil {
		t.Fatalf("RemoveOne: %v", err)
	}
	if _, ok, _ := store.Lookup("user", "server"); !ok {
		t.Fatal("record owned by someone else must survive")
	}
	if store.Metadata().Get(key) == nil {
		t.Error("expected metadata kept for the surviving record")
	}

	if err := store.RemoveOne("user", "server", WithOwner(1)); err != nil {
		t.Fatalf("RemoveOne: %v", err)
	}
	if store.Metadata().Get(key) != nil {
		t.Error("expected metadata removed with the record")
	}
}

func TestAuditedStoreRemoveAllByOwner(t *testing.T) {
	store, f, auditPath := setupAuditedStore(t)

	store.Add("s", "a1", "realm", WithOwner(1))
	store.Add("s", "a2", "realm", WithOwner(1))
	store.Add("s", "a3", "realm", WithOwner(2))

	if err := store.RemoveAllByOwner(1); err != nil {
		t.Fatalf("RemoveAllByOwner: %v", err)
	}
	if f.Len() != 1 {
		t.Errorf("expected 1 record left, got %d", f.Len())
	}

	purges := filterEntries(readAuditEntries(t, auditPath), audit.ActionPurge)
	if len(purges) != 1 {
		t.Fatalf("expected 1 purge entry, got %d", len(purges))
	}
	if purges[0].Owner != Owner(1).String() {
		t.Errorf("expected owner %s, got %q", Owner(1), purges[0].Owner)
	}

	all := store.Metadata().All()
	if len(all) != 1 {
		t.Fatalf("expected 1 metadata entry left, got %d", len(all))
	}
	if store.Metadata().Get(MetadataKey(InternetPassword, "a3", "realm")) == nil {
		t.Error("expected a3 metadata to survive")
	}
}

func TestAuditedStoreRotate(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	store.Add("old-value", "user", "server")

	if err := store.Rotate("user", "server", "echo new-value"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	val, ok, err := store.Lookup("user", "server")
	if err != nil || !ok {
		t.Fatalf("Lookup after rotate: %v (ok=%v)", err, ok)
	}
	if val != "new-value" {
		t.Errorf("expected 'new-value', got %q", val)
	}

	rotates := filterEntries(readAuditEntries(t, auditPath), audit.ActionRotate)
	if len(rotates) != 1 {
		t.Fatalf("expected 1 rotate entry, got %d", len(rotates))
	}
	if rotates[0].Command != "echo new-value" {
		t.Errorf("expected command 'echo new-value', got %q", rotates[0].Command)
	}

	meta := store.Metadata().Get(MetadataKey(InternetPassword, "user", "server"))
	if meta == nil {
		t.Fatal("expected metadata")
	}
	if meta.LastRotated.IsZero() {
		t.Error("expected LastRotated to be set")
	}
}

func TestAuditedStoreRotateCreatesMissing(t *testing.T) {
	store, _, _ := setupAuditedStore(t)

	if err := store.Rotate("user", "server", "printf fresh"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	val, _, _ := store.Lookup("user", "server")
	if val != "fresh" {
		t.Errorf("expected 'fresh', got %q", val)
	}
}

func TestAuditedStoreRotateFailure(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	store.Add("original", "user", "server")

	if err := store.Rotate("user", "server", "exit 1"); err == nil {
		t.Error("expected error from failing rotation command")
	}

	val, _, _ := store.Lookup("user", "server")
	if val != "original" {
		t.Errorf("expected original value preserved, got %q", val)
	}

	rotates := filterEntries(readAuditEntries(t, auditPath), audit.ActionRotate)
	if len(rotates) != 1 {
		t.Fatalf("expected 1 rotate entry, got %d", len(rotates))
	}
	if rotates[0].Error == "" {
		t.Error("expected error in audit entry")
	}
}

func TestAuditedStoreRotateEmptyOutput(t *testing.T) {
	store, _, _ := setupAuditedStore(t)
	store.Add("original", "user", "server")

	if err := store.Rotate("user", "server", "true"); err == nil {
		t.Error("expected error when the command prints nothing")
	}
}

func TestMetadataStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	key := MetadataKey(GenericPassword, "user", "svc")

	ms1, _ := NewMetadataStore(path)
	ms1.Set(key, &SecretMetadata{Kind: "generic-password", Account: "user", Realm: "svc", Owner: "KSTH"})

	ms2, _ := NewMetadataStore(path)
	meta := ms2.Get(key)
	if meta == nil {
		t.Fatal("expected metadata after reload")
	}
	if meta.Owner != "KSTH" {
		t.Errorf("expected KSTH, got %q", meta.Owner)
	}
}

func TestRotationCommandReportsStderr(t *testing.T) {
	_, err := runRotationCommand("echo vault sealed >&2; exit 3")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exit code 3") || !strings.Contains(err.Error(), "vault sealed") {
		t.Errorf("expected exit code and stderr in error, got %v", err)
	}
}
