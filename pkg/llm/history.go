package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wayfarer/pkg/utils"
)

// ChatHistory manages one conversation's messages together with the rolling
// summary used by the sliding-window compaction.
type ChatHistory struct {
	messages []Message
	summary  string
	mu       sync.RWMutex
}

// NewChatHistory creates an empty history.
func NewChatHistory() *ChatHistory {
	return &ChatHistory{
		messages: make([]Message, 0),
	}
}

// Add appends a message to the history.
func (h *ChatHistory) Add(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

// GetMessages returns a copy of the current history.
func (h *ChatHistory) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len returns the number of stored messages.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// GetMessagesForUI returns user and assistant messages only, skipping
// system prompts and raw tool traffic the UI should not replay.
func (h *ChatHistory) GetMessagesForUI() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Message, 0, len(h.messages))
	for _, m := range h.messages {
		if m.Role == "user" || m.Role == "assistant" {
			out = append(out, m)
		}
	}
	return out
}

// EnsureSystemMessage guarantees the history starts with the given system
// prompt, inserting or refreshing the leading system message as needed.
func (h *ChatHistory) EnsureSystemMessage(prompt string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) > 0 && h.messages[0].Role == "system" {
		h.messages[0] = NewSystemMessage(prompt)
		return
	}
	h.messages = append([]Message{NewSystemMessage(prompt)}, h.messages...)
}

// GetSummary returns the rolling conversation summary, if any.
func (h *ChatHistory) GetSummary() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.summary
}

// SetSummary replaces the rolling conversation summary.
func (h *ChatHistory) SetSummary(summary string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summary = summary
}

// TruncateHistory drops everything except the leading system message and
// the most recent keepCount messages. Summarized turns live on in the
// summary slot only. The cut never lands inside a tool round-trip: a kept
// window that would start with tool results is widened until it also holds
// the assistant message that issued the calls, since providers reject a
// tool result whose call has been dropped.
func (h *ChatHistory) TruncateHistory(keepCount int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if keepCount <= 0 || len(h.messages) <= keepCount {
		return
	}

	var head []Message
	body := h.messages
	if len(body) > 0 && body[0].Role == "system" {
		head = body[:1]
		body = body[1:]
	}

	if len(body) <= keepCount {
		return
	}

	start := len(body) - keepCount
	for start > 0 && body[start].Role == "tool" {
		start--
	}

	kept := body[start:]
	h.messages = append(append([]Message{}, head...), kept...)
}

// historySnapshot is the on-disk representation of a ChatHistory.
type historySnapshot struct {
	Summary  string    `json:"summary,omitempty"`
	Messages []Message `json:"messages"`
}

// Save persists the history as JSON at the given path.
func (h *ChatHistory) Save(path string) error {
	h.mu.RLock()
	snap := historySnapshot{
		Summary:  h.summary,
		Messages: h.messages,
	}
	h.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// Load restores a history from disk. A missing file leaves the history
// empty and is not an error.
func (h *ChatHistory) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history: %w", err)
	}

	var snap historySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse history: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.summary = snap.Summary
	h.messages = snap.Messages
	if h.messages == nil {
		h.messages = make([]Message, 0)
	}
	return nil
}

// ProcessImages moves inline base64 image blocks out to files under dir so
// persisted histories stay small. Blocks already referencing files or URLs
// are left untouched.
func (h *ChatHistory) ProcessImages(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for mi := range h.messages {
		for bi := range h.messages[mi].Content {
			block := &h.messages[mi].Content[bi]
			if block.Type != BlockTypeImage || block.Source == nil {
				continue
			}
			src := block.Source
			if src.Type != "base64" || len(src.Data) == 0 {
				continue
			}

			if err := os.MkdirAll(dir, 0755); err != nil {
				continue
			}

			_, ext := utils.DetectMimeAndExt(src.Data)
			path := filepath.Join(dir, utils.GenerateID()+ext)
			if err := os.WriteFile(path, src.Data, 0644); err != nil {
				continue
			}

			src.Type = "file"
			src.Path = path
			src.Data = nil
		}
	}
}
