package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/config"
	"github.com/kozaktomas/faceauth-station/internal/database/memory"
	"github.com/kozaktomas/faceauth-station/internal/workflow"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Kiosk: config.KioskConfig{
			MaxCandidates:      40,
			CandidateOrder:     "registration",
			SuccessReturnDelay: 3500 * time.Millisecond,
		},
	}
}

// testJPEG returns a small valid JPEG image.
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.Set(x, y, color.RGBA{R: 180, G: 140, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// imageJSONRequest posts img as a base64 data URI
func imageJSONRequest(t *testing.T, path string, img []byte) *http.Request {
	t.Helper()
	return jsonRequest(t, http.MethodPost, path, map[string]string{
		"image": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
	})
}

// imageMultipartRequest posts img as the "image" form file
func imageMultipartRequest(t *testing.T, path string, img []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "frame.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(img)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%v'", expectedMessage, result["error"])
	}
}

// stubVerifier answers every verification with a fixed result.
type stubVerifier struct {
	mu     sync.Mutex
	result attendance.VerificationResult
	calls  int
}

func (v *stubVerifier) Verify(_ context.Context, _ []byte, _ []attendance.User, _ attendance.LivenessAction) attendance.VerificationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.result
}

// stubChecker accepts or rejects every registration image.
type stubChecker struct {
	validation attendance.ImageValidation
}

func (c *stubChecker) ValidateImage(_ context.Context, _ []byte) attendance.ImageValidation {
	return c.validation
}

func (c *stubChecker) Normalize(image []byte) ([]byte, error) {
	return image, nil
}

// kioskFixture wires both workflows to a memory ledger.
type kioskFixture struct {
	ledger       *memory.Ledger
	verifier     *stubVerifier
	checker      *stubChecker
	clock        *clockwork.FakeClock
	broadcaster  *EventBroadcaster
	attendance   *workflow.Attendance
	registration *workflow.Registration
	handler      *KioskHandler
}

var testNow = time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

func newKioskFixture(t *testing.T) *kioskFixture {
	t.Helper()
	f := &kioskFixture{
		ledger:      memory.New(),
		verifier:    &stubVerifier{},
		checker:     &stubChecker{validation: attendance.ImageValidation{Valid: true}},
		clock:       clockwork.NewFakeClockAt(testNow),
		broadcaster: NewEventBroadcaster(),
	}
	opts := workflow.Options{Clock: f.clock, OnChange: f.broadcaster.Publish}
	f.attendance = workflow.NewAttendance(f.verifier, f.ledger, opts)
	f.registration = workflow.NewRegistration(f.checker, f.ledger, opts)
	workflow.Link(f.attendance, f.registration)
	f.handler = NewKioskHandler(f.attendance, f.registration, nil)
	return f
}

// addUser registers a user directly in the ledger.
func (f *kioskFixture) addUser(t *testing.T, id, employeeID, name string) attendance.User {
	t.Helper()
	u, err := f.ledger.UpsertUser(context.Background(), attendance.User{
		ID:           id,
		EmployeeID:   employeeID,
		Name:         name,
		FaceImage:    []byte{0xff, 0xd8, 0xff},
		RegisteredAt: testNow,
	})
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	return u
}
