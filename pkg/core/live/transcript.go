package live

import (
	"strings"
	"sync"
)

// TurnAccumulator buffers partial transcript fragments per speaker until a
// turn-complete signal, then emits one finalized pair. Both buffers reset
// together on flush and on session start.
type TurnAccumulator struct {
	mu        sync.Mutex
	user      strings.Builder
	assistant strings.Builder
}

// AppendUser appends an input-transcription fragment.
func (a *TurnAccumulator) AppendUser(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.WriteString(text)
}

// AppendAssistant appends an output-transcription fragment.
func (a *TurnAccumulator) AppendAssistant(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.assistant.WriteString(text)
}

// User returns the live user-side transcript.
func (a *TurnAccumulator) User() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.String()
}

// Assistant returns the live assistant-side transcript.
func (a *TurnAccumulator) Assistant() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.assistant.String()
}

// Flush returns the finalized pair and clears both buffers for the next
// turn. emit is false when both sides are empty or whitespace; such pairs
// are suppressed.
func (a *TurnAccumulator) Flush() (user, assistant string, emit bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	user = a.user.String()
	assistant = a.assistant.String()
	a.user.Reset()
	a.assistant.Reset()
	emit = strings.TrimSpace(user) != "" || strings.TrimSpace(assistant) != ""
	return user, assistant, emit
}

// Reset clears both buffers without emitting.
func (a *TurnAccumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.assistant.Reset()
}
