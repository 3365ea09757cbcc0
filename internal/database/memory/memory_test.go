package memory

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

var _ database.Ledger = (*Ledger)(nil)

func user(id, employeeID, name string) attendance.User {
	return attendance.User{
		ID:           id,
		EmployeeID:   employeeID,
		Name:         name,
		Department:   "Engineering",
		FaceImage:    []byte{0xff, 0xd8, 0xff},
		RegisteredAt: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}
}

func TestUpsertUser_InsertAndReplace(t *testing.T) {
	ctx := context.Background()
	l := New()

	if _, err := l.UpsertUser(ctx, user("u1", "E-1", "Alice")); err != nil {
		t.Fatalf("UpsertUser() error: %v", err)
	}
	if _, err := l.UpsertUser(ctx, user("u2", "E-2", "Bob")); err != nil {
		t.Fatalf("UpsertUser() error: %v", err)
	}

	// Same employee id, new internal id: replaced in place, id kept.
	replacement := user("u3", "E-1", "Alice Smith")
	replacement.FaceImage = []byte{1, 2, 3}
	stored, err := l.UpsertUser(ctx, replacement)
	if err != nil {
		t.Fatalf("UpsertUser() error: %v", err)
	}
	if stored.ID != "u1" {
		t.Errorf("expected preserved id u1, got %s", stored.ID)
	}

	users, err := l.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].ID != "u1" || users[0].Name != "Alice Smith" {
		t.Errorf("expected replaced Alice first, got %+v", users[0])
	}
	if string(users[0].FaceImage) != "\x01\x02\x03" {
		t.Error("expected replacement image to win")
	}
	if users[1].ID != "u2" {
		t.Errorf("expected Bob second, got %s", users[1].ID)
	}
}

func TestUpsertUser_Idempotent(t *testing.T) {
	ctx := context.Background()
	l := New()
	u := user("u1", "E-1", "Alice")

	for range 3 {
		if _, err := l.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser() error: %v", err)
		}
	}
	users, _ := l.ListUsers(ctx)
	if len(users) != 1 {
		t.Errorf("expected 1 user after repeated upsert, got %d", len(users))
	}
}

func TestGetAndDeleteUser(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.UpsertUser(ctx, user("u1", "E-1", "Alice"))

	got, err := l.GetUser(ctx, "u1")
	if err != nil || got.Name != "Alice" {
		t.Fatalf("GetUser() = %+v, %v", got, err)
	}

	if _, err := l.GetUser(ctx, "missing"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := l.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteUser() error: %v", err)
	}
	if err := l.DeleteUser(ctx, "u1"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRecords_NewestFirstAndMostRecent(t *testing.T) {
	ctx := context.Background()
	l := New()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	if r, err := l.MostRecentRecordFor(ctx, "u1"); err != nil || r != nil {
		t.Fatalf("expected no record, got %+v, %v", r, err)
	}

	appends := []attendance.Record{
		{ID: "r1", UserID: "u1", Type: attendance.PunchIn, Timestamp: base},
		{ID: "r2", UserID: "u2", Type: attendance.PunchIn, Timestamp: base.Add(time.Minute)},
		{ID: "r3", UserID: "u1", Type: attendance.PunchOut, Timestamp: base.Add(time.Hour)},
	}
	for _, r := range appends {
		if err := l.AppendRecord(ctx, r); err != nil {
			t.Fatalf("AppendRecord() error: %v", err)
		}
	}

	records, err := l.ListRecords(ctx, database.RecordFilter{})
	if err != nil {
		t.Fatalf("ListRecords() error: %v", err)
	}
	if len(records) != 3 || records[0].ID != "r3" || records[2].ID != "r1" {
		t.Errorf("expected newest first r3..r1, got %+v", records)
	}

	last, err := l.MostRecentRecordFor(ctx, "u1")
	if err != nil || last == nil || last.ID != "r3" {
		t.Errorf("expected r3 as most recent, got %+v, %v", last, err)
	}

	filtered, _ := l.ListRecords(ctx, database.RecordFilter{UserID: "u1", Limit: 1})
	if len(filtered) != 1 || filtered[0].ID != "r3" {
		t.Errorf("expected filtered [r3], got %+v", filtered)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.UpsertUser(ctx, user("u1", "E-1", "Alice"))
	l.AppendRecord(ctx, attendance.Record{ID: "r1", UserID: "u1", Type: attendance.PunchIn, Timestamp: time.Now()})

	if err := l.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error: %v", err)
	}
	users, _ := l.ListUsers(ctx)
	records, _ := l.ListRecords(ctx, database.RecordFilter{})
	if len(users) != 0 || len(records) != 0 {
		t.Errorf("expected empty ledger, got %d users %d records", len(users), len(records))
	}
}

func TestOpen_PersistsSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	l.UpsertUser(ctx, user("u1", "E-1", "Alice"))
	l.AppendRecord(ctx, attendance.Record{ID: "r1", UserID: "u1", Type: attendance.PunchIn, Timestamp: time.Now()})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("snapshot is not JSON: %v", err)
	}
	for _, key := range []string{"faceauth_users", "faceauth_logs"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("expected key %s in snapshot", key)
		}
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	snap := reopened.Snapshot()
	if len(snap.Users) != 1 || len(snap.Records) != 1 {
		t.Errorf("expected 1 user and 1 record after reopen, got %d/%d", len(snap.Users), len(snap.Records))
	}
	if string(snap.Users[0].FaceImage) != "\xff\xd8\xff" {
		t.Error("expected face image to survive the round trip")
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	os.WriteFile(path, []byte("{not json"), 0o600)

	if _, err := Open(path); err == nil {
		t.Error("expected error for corrupt ledger file")
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(filepath.Join(dir, "missing-dir", "ledger.json")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestOpen_SharedFileKeepsBothWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	server, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer server.Close()
	cli, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer cli.Close()

	if _, err := cli.UpsertUser(ctx, user("u1", "E-1", "Alice")); err != nil {
		t.Fatalf("UpsertUser() error: %v", err)
	}
	if err := server.AppendRecord(ctx, attendance.Record{ID: "r1", UserID: "u1", Type: attendance.PunchIn, Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendRecord() error: %v", err)
	}

	users, err := server.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error: %v", err)
	}
	if len(users) != 1 || users[0].EmployeeID != "E-1" {
		t.Errorf("expected the server to see the user added by the other ledger, got %+v", users)
	}
	if _, err := server.GetUser(ctx, "u1"); err != nil {
		t.Errorf("GetUser() error: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	snap := reopened.Snapshot()
	if len(snap.Users) != 1 || len(snap.Records) != 1 {
		t.Errorf("expected 1 user and 1 record on disk, got %d/%d", len(snap.Users), len(snap.Records))
	}
}

func TestOpen_SharedFileClearIsNotUndone(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.json")

	server, _ := Open(path)
	defer server.Close()
	server.UpsertUser(ctx, user("u1", "E-1", "Alice"))
	server.AppendRecord(ctx, attendance.Record{ID: "r1", UserID: "u1", Type: attendance.PunchIn, Timestamp: time.Now()})

	cli, _ := Open(path)
	defer cli.Close()
	if err := cli.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error: %v", err)
	}

	if err := server.AppendRecord(ctx, attendance.Record{ID: "r2", UserID: "u2", Type: attendance.PunchIn, Timestamp: time.Now()}); err != nil {
		t.Fatalf("AppendRecord() error: %v", err)
	}
	snap := server.Snapshot()
	if len(snap.Users) != 0 {
		t.Errorf("expected cleared users to stay cleared, got %d", len(snap.Users))
	}
	if len(snap.Records) != 1 || snap.Records[0].ID != "r2" {
		t.Errorf("expected only r2 after clear, got %+v", snap.Records)
	}
	if last, _ := server.MostRecentRecordFor(ctx, "u1"); last != nil {
		t.Errorf("expected no record for u1 after clear, got %+v", last)
	}
}

func TestErrorInjection(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	l := New()
	l.AppendError = boom
	l.MostRecentError = boom

	if err := l.AppendRecord(ctx, attendance.Record{}); !errors.Is(err, boom) {
		t.Errorf("expected injected append error, got %v", err)
	}
	if _, err := l.MostRecentRecordFor(ctx, "u1"); !errors.Is(err, boom) {
		t.Errorf("expected injected lookup error, got %v", err)
	}
}
