package attendance

import (
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"
)

func TestChooseChallenge_CoversVocabulary(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	seen := make(map[LivenessAction]int)
	for range 500 {
		a := ChooseChallenge(rng)
		if !a.Valid() {
			t.Fatalf("ChooseChallenge returned unknown action %q", a)
		}
		seen[a]++
	}
	for _, a := range LivenessActions() {
		if seen[a] == 0 {
			t.Errorf("action %q never chosen in 500 draws", a)
		}
	}
}

func TestChooseChallenge_Deterministic(t *testing.T) {
	a := rand.New(rand.NewPCG(42, 7))
	b := rand.New(rand.NewPCG(42, 7))
	for i := range 20 {
		if x, y := ChooseChallenge(a), ChooseChallenge(b); x != y {
			t.Fatalf("draw %d differs for equal seeds: %q vs %q", i, x, y)
		}
	}
}

func TestChooseChallenge_NilRandom(t *testing.T) {
	if a := ChooseChallenge(nil); !a.Valid() {
		t.Errorf("expected valid action, got %q", a)
	}
}

func TestLivenessActions_ExactVocabulary(t *testing.T) {
	want := []string{
		"Blink your eyes",
		"Smile widely",
		"Turn head slightly left",
		"Turn head slightly right",
		"Open your mouth",
	}
	got := LivenessActions()
	if len(got) != len(want) {
		t.Fatalf("expected %d actions, got %d", len(want), len(got))
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("action %d = %q, want %q", i, got[i], want[i])
		}
	}

	// Returned slice is a copy.
	got[0] = "Jump"
	if LivenessActions()[0] != ActionBlink {
		t.Error("LivenessActions must not expose the internal slice")
	}
}

func TestParsePunchType(t *testing.T) {
	tests := []struct {
		input   string
		want    PunchType
		wantErr bool
	}{
		{"IN", PunchIn, false},
		{"in", PunchIn, false},
		{" check-in ", PunchIn, false},
		{"PUNCH_OUT", PunchOut, false},
		{"out", PunchOut, false},
		{"", "", true},
		{"sideways", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePunchType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePunchType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePunchType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidatePunch(t *testing.T) {
	in := &Record{Type: PunchIn, Timestamp: time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)}
	out := &Record{Type: PunchOut, Timestamp: time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)}

	tests := []struct {
		name    string
		punch   PunchType
		last    *Record
		wantErr error
	}{
		{"first in", PunchIn, nil, nil},
		{"in after out", PunchIn, out, nil},
		{"in after in", PunchIn, in, ErrAlreadyCheckedIn},
		{"out after in", PunchOut, in, nil},
		{"first out", PunchOut, nil, ErrNotCheckedIn},
		{"out after out", PunchOut, out, ErrNotCheckedIn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePunch(tt.punch, tt.last)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected legal punch, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var pe *PunchError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PunchError, got %T", err)
			}
			if pe.Last != tt.last {
				t.Error("PunchError should carry the last record")
			}
		})
	}
}

func TestPunchError_Messages(t *testing.T) {
	last := &Record{Type: PunchIn, Timestamp: time.Now()}
	err := ValidatePunch(PunchIn, last)
	if !strings.HasPrefix(err.Error(), "Already checked in (last: ") {
		t.Errorf("unexpected message %q", err.Error())
	}

	err = ValidatePunch(PunchOut, nil)
	if err.Error() != "Cannot check out: not checked in" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestValidatePunch_UnknownType(t *testing.T) {
	if err := ValidatePunch("SIDEWAYS", nil); err == nil {
		t.Error("expected error for unknown punch type")
	}
}

func TestLatestFor_UsesTimestampNotOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: "a", UserID: "u1", Type: PunchIn, Timestamp: base},
		{ID: "b", UserID: "u2", Type: PunchIn, Timestamp: base.Add(3 * time.Hour)},
		{ID: "c", UserID: "u1", Type: PunchOut, Timestamp: base.Add(2 * time.Hour)},
	}

	got := LatestFor(records, "u1")
	if got == nil || got.ID != "c" {
		t.Fatalf("expected record c, got %+v", got)
	}

	if LatestFor(records, "nobody") != nil {
		t.Error("expected nil for unknown user")
	}
}

func TestCandidatePool(t *testing.T) {
	users := make([]User, 5)
	for i := range users {
		users[i] = User{ID: string(rune('a' + i))}
	}

	tests := []struct {
		name        string
		limit       int
		order       CandidateOrder
		wantIDs     string
		wantDropped int
	}{
		{"no cap", 0, OrderRegistration, "abcde", 0},
		{"cap above size", 10, OrderRegistration, "abcde", 0},
		{"first registered", 3, OrderRegistration, "abc", 2},
		{"newest registered", 3, OrderNewest, "cde", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, dropped := CandidatePool(users, tt.limit, tt.order)
			var ids strings.Builder
			for _, u := range pool {
				ids.WriteString(u.ID)
			}
			if ids.String() != tt.wantIDs {
				t.Errorf("pool = %q, want %q", ids.String(), tt.wantIDs)
			}
			if dropped != tt.wantDropped {
				t.Errorf("dropped = %d, want %d", dropped, tt.wantDropped)
			}
		})
	}
}

func TestParseCandidateOrder(t *testing.T) {
	if o, err := ParseCandidateOrder(""); err != nil || o != OrderRegistration {
		t.Errorf("empty order: got %q, %v", o, err)
	}
	if o, err := ParseCandidateOrder("Newest"); err != nil || o != OrderNewest {
		t.Errorf("newest: got %q, %v", o, err)
	}
	if _, err := ParseCandidateOrder("random"); err == nil {
		t.Error("expected error for unknown order")
	}
}

func TestVerificationResult_Accepted(t *testing.T) {
	ok := VerificationResult{Match: true, UserID: "u1", LivenessConfirmed: true}
	if !ok.Accepted() {
		t.Error("expected accepted result")
	}

	cases := map[string]VerificationResult{
		"no match":    {Match: false, UserID: "u1", LivenessConfirmed: true},
		"no liveness": {Match: true, UserID: "u1", LivenessConfirmed: false, Confidence: 0.99},
		"spoof":       {Match: true, UserID: "u1", LivenessConfirmed: true, SpoofDetected: true},
		"no user":     {Match: true, LivenessConfirmed: true},
	}
	for name, r := range cases {
		if r.Accepted() {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"  JOHN DOE ", "john doe"},
		{"Žluťoučký kůň", "zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeName(tt.input); got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatchesQuery(t *testing.T) {
	u := User{Name: "Jiří Dvořák", EmployeeID: "STU-001", Department: "Computer Science"}

	for _, q := range []string{"", "jiri", "DVORAK", "stu-001", "stu 001", "science"} {
		if !MatchesQuery(u, q) {
			t.Errorf("expected %q to match", q)
		}
	}
	if MatchesQuery(u, "physics") {
		t.Error("expected physics not to match")
	}
}
