package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	ts := time.Date(2026, 2, 19, 10, 30, 0, 0, time.UTC)
	found := true

	l.Log(Entry{
		Timestamp: ts,
		Action:    ActionRead,
		Kind:      "internet-password",
		Account:   "user",
		Realm:     "server",
		Found:     &found,
	})

	l.Log(Entry{
		Timestamp: ts.Add(time.Hour),
		Action:    ActionWrite,
		Account:   "user",
		Realm:     "server",
		Owner:     "KSTH",
		Actor:     "cli",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var e1 Entry
	json.Unmarshal([]byte(lines[0]), &e1)
	if e1.Action != ActionRead {
		t.Errorf("expected credential_read, got %v", e1.Action)
	}
	if e1.Realm != "server" {
		t.Errorf("expected server, got %q", e1.Realm)
	}
	if e1.Found == nil || !*e1.Found {
		t.Errorf("expected found=true, got %v", e1.Found)
	}

	var e2 Entry
	json.Unmarshal([]byte(lines[1]), &e2)
	if e2.Action != ActionWrite {
		t.Errorf("expected credential_write, got %v", e2.Action)
	}
	if e2.Owner != "KSTH" {
		t.Errorf("expected KSTH, got %q", e2.Owner)
	}
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	l1, _ := NewLogger(path)
	l1.Log(Entry{Action: ActionWrite, Account: "first"})
	l1.Close()

	l2, _ := NewLogger(path)
	l2.Log(Entry{Action: ActionRead, Account: "second"})
	l2.Close()

	entries, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Account != "second" {
		t.Errorf("expected second, got %q", entries[1].Account)
	}
}

func TestLoggerDefaultTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	defer l.Close()

	before := time.Now().UTC()
	l.Log(Entry{Action: ActionRead, Account: "test"})
	after := time.Now().UTC()

	data, _ := os.ReadFile(path)
	var e Entry
	json.Unmarshal(data, &e)

	if e.Timestamp.Before(before) || e.Timestamp.After(after) {
		t.Errorf("timestamp %v not between %v and %v", e.Timestamp, before, after)
	}
}

func TestLoggerFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	l.Close()

	info, _ := os.Stat(path)
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}

func TestDecodeSkipsGarbage(t *testing.T) {
	input := `{"action":"credential_read","account":"a"}
not json

{"action":"credential_delete","account":"b","code":-25293}
`
	entries, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Code != -25293 {
		t.Errorf("expected code -25293, got %d", entries[1].Code)
	}
}

func TestReadAllMissingFile(t *testing.T) {
	_, err := ReadAll(filepath.Join(t.TempDir(), "missing.log"))
	if err == nil {
		t.Error("expected error for missing log")
	}
}

func TestDrainOnlyCompleteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	content := `{"action":"credential_add","account":"a"}` + "\n" + `{"action":"credential_re`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []Entry
	offset, err := drain(f, 0, func(e Entry) { got = append(got, e) })
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(got) != 1 || got[0].Account != "a" {
		t.Fatalf("expected one entry for a, got %+v", got)
	}
	want := int64(strings.Index(content, "\n") + 1)
	if offset != want {
		t.Errorf("offset = %d, want %d", offset, want)
	}
}

func TestFollowSeesNewEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()
	l.Log(Entry{Action: ActionRead, Account: "before"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, func(e Entry) {
			select {
			case got <- e:
			default:
			}
		})
	}()

	// Keep appending until the watcher has registered and reports one.
	deadline := time.After(4 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case e := <-got:
			if e.Account != "after" {
				t.Fatalf("expected entry for after, got %q", e.Account)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Follow: %v", err)
			}
			return
		case <-tick.C:
			l.Log(Entry{Action: ActionWrite, Account: "after"})
		case <-deadline:
			t.Fatal("timed out waiting for followed entry")
		}
	}
}
