package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

// TransportMessage is shown when the status check itself failed.
const TransportMessage = "Error checking status of your video. Please try again in a moment."

const unknownFailureMessage = "Generation failed for an unknown reason."

var (
	errorPrefix   = regexp.MustCompile(`(?i)^\s*error\s*:\s*`)
	modelNotFound = regexp.MustCompile(`(?i)(\bmodel\b.*?\b(not found|does not exist)\b)|(\bNOT_FOUND\b.*?\bmodel\b)|(\bmodel[_ ]not[_ ]found\b)`)
)

// UserMessage turns a raw backend error into the text shown to the user.
// Redundant "Error: " prefixes are removed and model-not-found failures are
// rewritten into an access request naming modelLabel.
func UserMessage(raw, modelLabel string) string {
	msg := strings.TrimSpace(raw)
	for {
		loc := errorPrefix.FindStringIndex(msg)
		if loc == nil {
			break
		}
		msg = strings.TrimSpace(msg[loc[1]:])
	}
	if msg == "" {
		return unknownFailureMessage
	}
	if modelNotFound.MatchString(msg) {
		label := strings.TrimSpace(modelLabel)
		if label == "" {
			label = "this model"
		}
		return fmt.Sprintf("Your project does not have access to %s yet. Request access to %s, or choose another model and try again.", label, label)
	}
	return msg
}

// TimeoutMessage is shown when polling gave up after attempts checks.
func TimeoutMessage(attempts int) string {
	return fmt.Sprintf("Video generation timed out after %d attempts. The job may still finish later; check your history before retrying.", attempts)
}

// SubmissionMessage is shown when the backend rejected the request outright.
func SubmissionMessage(err error, modelLabel string) string {
	if err == nil {
		return unknownFailureMessage
	}
	return UserMessage(err.Error(), modelLabel)
}
