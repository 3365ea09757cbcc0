package ai

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

var statusPattern = regexp.MustCompile(`\b(400|401|403|429|503)\b`)

// StatusCode extracts the HTTP status of a provider error, 0 when unknown.
// Typed SDK errors are preferred; the message text is the fallback.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}

	var gErr genai.APIError
	if errors.As(err, &gErr) && gErr.Code != 0 {
		return gErr.Code
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil && gErrPtr.Code != 0 {
		return gErrPtr.Code
	}
	var oErr *openai.Error
	if errors.As(err, &oErr) && oErr.StatusCode != 0 {
		return oErr.StatusCode
	}

	if m := statusPattern.FindString(err.Error()); m != "" {
		code, _ := strconv.Atoi(m)
		return code
	}
	return 0
}

// FriendlyError turns a provider error into the message shown on the kiosk.
func FriendlyError(err error) string {
	switch StatusCode(err) {
	case http.StatusBadRequest:
		return "Request too large (400). Try clearing some users."
	case http.StatusUnauthorized, http.StatusForbidden:
		return "API Key Invalid or Expired (403)."
	case http.StatusTooManyRequests:
		return "AI quota exceeded (429). Try again later."
	case http.StatusServiceUnavailable:
		return "AI Service Unavailable (503). Try again."
	}
	if err == nil {
		return "Unknown Error"
	}
	return err.Error()
}
