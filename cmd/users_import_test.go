package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/database/memory"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staff.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

func TestLoadManifest_ResolvesImagePaths(t *testing.T) {
	path := writeManifest(t, `
users:
  - name: Jane Doe
    employee_id: " E-042 "
    department: Sales
    image: photos/jane.jpg
  - name: Petr Novák
    employee_id: E-043
    image: /srv/faces/petr.jpg
`)

	manifest, err := loadManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(manifest.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(manifest.Users))
	}

	jane := manifest.Users[0]
	if jane.EmployeeID != "E-042" {
		t.Errorf("expected trimmed employee id, got %q", jane.EmployeeID)
	}
	if want := filepath.Join(filepath.Dir(path), "photos", "jane.jpg"); jane.Image != want {
		t.Errorf("expected image %q, got %q", want, jane.Image)
	}
	if jane.Department != "Sales" {
		t.Errorf("expected department Sales, got %q", jane.Department)
	}

	if got := manifest.Users[1].Image; got != "/srv/faces/petr.jpg" {
		t.Errorf("expected absolute path kept, got %q", got)
	}
}

func TestLoadManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty",
			content: "users: []\n",
			wantErr: "no users",
		},
		{
			name:    "invalid yaml",
			content: "users: [\n",
			wantErr: "failed to parse manifest",
		},
		{
			name: "missing image",
			content: `
users:
  - name: Jane
    employee_id: E-1
`,
			wantErr: "image is required",
		},
		{
			name: "duplicate employee id",
			content: `
users:
  - name: Jane
    employee_id: E-1
    image: a.jpg
  - name: John
    employee_id: E-1
    image: b.jpg
`,
			wantErr: "already used by entry 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadManifest(writeManifest(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadManifest_MissingFile(t *testing.T) {
	_, err := loadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read manifest") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{59 * time.Second, "59.0s"},
		{90 * time.Second, "1m 30s"},
		{10*time.Minute + 5*time.Second, "10m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestOrderedUsers_StoresInManifestOrder(t *testing.T) {
	ctx := context.Background()
	ledger := memory.New()
	turns := newImportTurns()

	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer turns.done(i)

			// Later entries finish their checks first.
			time.Sleep(time.Duration(n-i) * 5 * time.Millisecond)
			if i == 2 {
				return // rejected entry, never stored
			}
			users := orderedUsers{UserWriter: ledger, turns: turns, index: i}
			if _, err := users.UpsertUser(ctx, attendance.User{
				ID:         fmt.Sprintf("u%d", i),
				EmployeeID: fmt.Sprintf("E-%d", i),
				Name:       fmt.Sprintf("User %d", i),
			}); err != nil {
				t.Errorf("UpsertUser(%d): %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	users, err := ledger.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	var got []string
	for _, u := range users {
		got = append(got, u.EmployeeID)
	}
	want := "E-0,E-1,E-3,E-4,E-5"
	if strings.Join(got, ",") != want {
		t.Errorf("stored order = %v, want %s", got, want)
	}
}
