package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/constants"
	"github.com/kozaktomas/faceauth-station/internal/database"
	"github.com/kozaktomas/faceauth-station/internal/workflow"
)

var usersImportCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Register users in bulk from a manifest",
	Long: `Register users in bulk from a YAML manifest.

Image paths are relative to the manifest file. Every entry goes through
the same quality check as an interactive registration; rejected entries
are reported and skipped. Quality checks run in parallel, users are stored
in manifest order, which is the order the kiosk uses to pick candidates.

Manifest format:
  users:
    - name: Jane Doe
      employee_id: E-042
      department: Sales
      image: photos/jane.jpg

Examples:
  faceauth users import staff.yaml
  faceauth users import staff.yaml --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runUsersImport,
}

func init() {
	usersCmd.AddCommand(usersImportCmd)

	usersImportCmd.Flags().Int("concurrency", constants.DefaultImportConcurrency, "Number of parallel registrations")
}

// ImportManifest lists users to register.
type ImportManifest struct {
	Users []ImportEntry `yaml:"users"`
}

// ImportEntry is one user of an import manifest.
type ImportEntry struct {
	Name       string `yaml:"name"`
	EmployeeID string `yaml:"employee_id"`
	Department string `yaml:"department"`
	Image      string `yaml:"image"`
}

// loadManifest parses a manifest and resolves image paths against its
// directory.
func loadManifest(path string) (*ImportManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest ImportManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(manifest.Users) == 0 {
		return nil, errors.New("manifest has no users")
	}

	dir := filepath.Dir(path)
	seen := make(map[string]int, len(manifest.Users))
	var errs []error
	for i := range manifest.Users {
		e := &manifest.Users[i]
		e.EmployeeID = strings.TrimSpace(e.EmployeeID)
		if e.Image == "" {
			errs = append(errs, fmt.Errorf("entry %d (%s): image is required", i+1, e.EmployeeID))
		} else if !filepath.IsAbs(e.Image) {
			e.Image = filepath.Join(dir, e.Image)
		}
		if prev, ok := seen[e.EmployeeID]; ok && e.EmployeeID != "" {
			errs = append(errs, fmt.Errorf("entry %d: employee id %s already used by entry %d", i+1, e.EmployeeID, prev))
		}
		seen[e.EmployeeID] = i + 1
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &manifest, nil
}

type importFailure struct {
	index int
	entry ImportEntry
	err   error
}

// importTurns lets parallel imports store users in manifest order. Entry i
// may write once entries 0..i-1 are finished.
type importTurns struct {
	mu   sync.Mutex
	cond *sync.Cond
	next int
}

func newImportTurns() *importTurns {
	t := &importTurns{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// wait blocks until it is entry i's turn.
func (t *importTurns) wait(i int) {
	t.mu.Lock()
	for t.next < i {
		t.cond.Wait()
	}
	t.mu.Unlock()
}

// done ends entry i's turn. It must be called exactly once per entry.
func (t *importTurns) done(i int) {
	t.wait(i)
	t.mu.Lock()
	t.next = i + 1
	t.cond.Broadcast()
	t.mu.Unlock()
}

// orderedUsers delays UpsertUser until it is the entry's turn.
type orderedUsers struct {
	database.UserWriter
	turns *importTurns
	index int
}

func (o orderedUsers) UpsertUser(ctx context.Context, u attendance.User) (attendance.User, error) {
	o.turns.wait(o.index)
	return o.UserWriter.UpsertUser(ctx, u)
}

func runUsersImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	manifest, err := loadManifest(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	total := len(manifest.Users)
	fmt.Printf("Importing %d users with %d workers\n", total, concurrency)

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Registering"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("users"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var imported, failed atomic.Int64
	var mu sync.Mutex
	var failures []importFailure

	start := time.Now()
	sem := make(chan struct{}, concurrency)
	turns := newImportTurns()
	var wg sync.WaitGroup

	for i, entry := range manifest.Users {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, entry ImportEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			defer turns.done(i)

			users := orderedUsers{UserWriter: a.ledger, turns: turns, index: i}
			if err := importEntry(ctx, a, users, entry); err != nil {
				failed.Add(1)
				mu.Lock()
				failures = append(failures, importFailure{index: i, entry: entry, err: err})
				mu.Unlock()
			} else {
				imported.Add(1)
			}
			_ = bar.Add(1)
		}(i, entry)
	}
	wg.Wait()
	_ = bar.Finish()
	slices.SortFunc(failures, func(x, y importFailure) int { return x.index - y.index })

	fmt.Printf("\n\nImported %d of %d users in %s\n", imported.Load(), total, formatDuration(time.Since(start)))
	if len(failures) == 0 {
		return nil
	}
	fmt.Printf("Failed (%d):\n", len(failures))
	for _, f := range failures {
		fmt.Printf("  %s (%s): %v\n", f.entry.EmployeeID, f.entry.Name, f.err)
	}
	return fmt.Errorf("%d of %d users were not imported", failed.Load(), total)
}

func importEntry(ctx context.Context, a *app, users database.UserWriter, entry ImportEntry) error {
	image, err := readImageFile(entry.Image)
	if err != nil {
		return err
	}
	flow := workflow.NewRegistration(a.gateway, users, workflow.Options{Logger: a.logger})
	form := workflow.Form{Name: entry.Name, EmployeeID: entry.EmployeeID, Department: entry.Department}
	_, err = registerUser(ctx, flow, form, image)
	return err
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
