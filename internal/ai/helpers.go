package ai

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
)

//go:embed prompts/verify_face.txt
var verifyFacePrompt string

//go:embed prompts/validate_face.txt
var validateFacePrompt string

var verifyFaceTemplate = template.Must(template.New("verify_face").Parse(verifyFacePrompt))

// maxJSONAttempts bounds the parse-error feedback loop.
const maxJSONAttempts = 3

const mimeJPEG = "image/jpeg"

// buildVerifyPrompt renders the verification instructions for a request
// with candidateCount registered user images.
func buildVerifyPrompt(candidateCount int, action attendance.LivenessAction) string {
	var b strings.Builder
	err := verifyFaceTemplate.Execute(&b, struct {
		LastIndex int
		Action    string
	}{candidateCount - 1, string(action)})
	if err != nil {
		// The template is embedded and its data is fixed.
		panic("rendering verify prompt: " + err.Error())
	}
	return b.String()
}

// buildValidatePrompt returns the registration image quality prompt.
func buildValidatePrompt() string {
	return strings.TrimSpace(validateFacePrompt)
}

// parseFeedback is the message sent back to the model after unparsable JSON.
func parseFeedback(err error) string {
	return fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Remember to escape quotes inside strings with backslash.", err)
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
