package llm

import (
	"encoding/base64"
	"time"
)

//----------------------------------------------------------------
// Message
//----------------------------------------------------------------

// Message represents a single conversation turn.
type Message struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`    // "user", "assistant", "system", "tool"
	Content   []ContentBlock `json:"content"` // Ordered content blocks
	Timestamp int64          `json:"timestamp,omitempty"`

	// ToolCalls holds tool invocation requests produced by the LLM
	// (role: assistant only).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool result message back to the call that
	// produced it (role: tool only).
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	// Usage carries the token statistics of the turn that produced this
	// message, when the provider reported them.
	Usage *LLMUsage `json:"usage,omitempty"`
}

// ToolCall represents a tool invocation request produced by the LLM.
type ToolCall struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Function FunctionCall `json:"function"`

	// Meta holds provider-specific payloads (e.g. Gemini's thought
	// signature) that must be echoed back verbatim. Never serialized.
	Meta map[string]any `json:"-"`
}

// FunctionCall contains the concrete tool name and its JSON argument string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

//----------------------------------------------------------------
// ContentBlock
//----------------------------------------------------------------

// ContentBlock is one unit of message content.
// Supported types: text, thinking, image, error.
type ContentBlock struct {
	Type string `json:"type"`

	// Text payload (type: "text" | "thinking" | "error")
	Text string `json:"text,omitempty"`

	// Image payload (type: "image")
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource describes where an image block's bytes come from.
type ImageSource struct {
	Type      string `json:"type"`       // "base64" | "url" | "file"
	MediaType string `json:"media_type"` // "image/jpeg", "image/png", ...
	Data      []byte `json:"-"`          // Raw bytes (not serialized directly)
	URL       string `json:"url,omitempty"`
	Path      string `json:"path,omitempty"` // Local path (type: "file")
}

// MarshalJSON encodes base64 sources with the raw bytes inlined.
func (is *ImageSource) MarshalJSON() ([]byte, error) {
	if is.Type == "base64" && len(is.Data) > 0 {
		return []byte(`{"type":"base64","media_type":"` + is.MediaType + `","data":"` + base64.StdEncoding.EncodeToString(is.Data) + `"}`), nil
	}
	if is.Type == "file" {
		return []byte(`{"type":"file","media_type":"` + is.MediaType + `","path":"` + is.Path + `"}`), nil
	}
	return []byte(`{"type":"` + is.Type + `","media_type":"` + is.MediaType + `","url":"` + is.URL + `"}`), nil
}

// UnmarshalJSON decodes inlined base64 data back into raw bytes.
func (is *ImageSource) UnmarshalJSON(data []byte) error {
	type Alias ImageSource
	aux := &struct {
		DataBase64 string `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(is),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.DataBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(aux.DataBase64)
		if err != nil {
			return err
		}
		is.Data = decoded
	}

	return nil
}

//----------------------------------------------------------------
// StreamChunk
//----------------------------------------------------------------

// StreamChunk is one incremental fragment of a streaming LLM response.
type StreamChunk struct {
	// Newly produced content blocks (incremental).
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`

	// Newly produced tool calls (incremental).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// IsFinal marks the last chunk of a stream.
	IsFinal bool `json:"is_final"`

	// FinishReason is set on the final chunk only.
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage statistics; guaranteed on the final chunk when the provider
	// reports them.
	Usage *LLMUsage `json:"usage,omitempty"`

	// Error is a user-displayable error description.
	Error string `json:"error,omitempty"`

	// RawError, when set, aborts stream consumption. Never serialized.
	RawError error `json:"-"`
}

//----------------------------------------------------------------
// Helper constructors - Message
//----------------------------------------------------------------

// NewTextMessage builds a plain text message for the given role.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   []ContentBlock{{Type: BlockTypeText, Text: text}},
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(text string) Message {
	return NewTextMessage("system", text)
}

// NewUserMessage builds a user message.
func NewUserMessage(text string) Message {
	return NewTextMessage("user", text)
}

// NewAssistantMessage builds an assistant message.
func NewAssistantMessage(text string) Message {
	return NewTextMessage("assistant", text)
}

// AddContentBlock appends a content block to the message.
func (m *Message) AddContentBlock(block ContentBlock) {
	m.Content = append(m.Content, block)
}

// GetTextContent concatenates all text blocks (thinking excluded).
func (m *Message) GetTextContent() string {
	var result string
	for _, block := range m.Content {
		if block.Type == BlockTypeText {
			result += block.Text
		}
	}
	return result
}

// GetThinkingContent concatenates all thinking blocks.
func (m *Message) GetThinkingContent() string {
	var result string
	for _, block := range m.Content {
		if block.Type == BlockTypeThinking {
			result += block.Text
		}
	}
	return result
}

// HasImages reports whether any block carries image data.
func (m *Message) HasImages() bool {
	for _, block := range m.Content {
		if block.Type == BlockTypeImage {
			return true
		}
	}
	return false
}

//----------------------------------------------------------------
// Helper constructors - ContentBlock
//----------------------------------------------------------------

// NewTextBlock builds a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// NewThinkingBlock builds a thinking block.
func NewThinkingBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeThinking, Text: text}
}

// NewErrorBlock builds an error block shown to the user.
func NewErrorBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeError, Text: text}
}

// NewImageBlock builds an image block from raw bytes.
func NewImageBlock(data []byte, mimeType string) ContentBlock {
	return ContentBlock{
		Type: BlockTypeImage,
		Source: &ImageSource{
			Type:      "base64",
			MediaType: mimeType,
			Data:      data,
		},
	}
}

// NewImageBlockFromFile builds an image block referencing a local file.
func NewImageBlockFromFile(path, mimeType string) ContentBlock {
	return ContentBlock{
		Type: BlockTypeImage,
		Source: &ImageSource{
			Type:      "file",
			MediaType: mimeType,
			Path:      path,
		},
	}
}

// NewImageBlockFromURL builds an image block referencing a remote URL.
func NewImageBlockFromURL(url, mimeType string) ContentBlock {
	return ContentBlock{
		Type: BlockTypeImage,
		Source: &ImageSource{
			Type:      "url",
			MediaType: mimeType,
			URL:       url,
		},
	}
}

//----------------------------------------------------------------
// Helper constructors - StreamChunk
//----------------------------------------------------------------

// NewTextChunk builds a chunk carrying a single text block.
func NewTextChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{{Type: BlockTypeText, Text: text}}}
}

// NewThinkingChunk builds a chunk carrying a single thinking block.
func NewThinkingChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{{Type: BlockTypeThinking, Text: text}}}
}

// NewFinalChunk builds the terminal chunk of a stream.
func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		Usage:        usage,
	}
}

// NewErrorChunk builds an error chunk. When fatal is true the RawError is
// attached so consumers abort the stream instead of merely displaying it.
func NewErrorChunk(text string, rawErr error, fatal bool) StreamChunk {
	c := StreamChunk{Error: text}
	if fatal {
		c.RawError = rawErr
	}
	return c
}
