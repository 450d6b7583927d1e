package llm

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history in the shape the voice
// platform sends (chat-completions style). Adapters translate it to their own
// wire format on every request.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model's request to run one tool. ID is provider assigned.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition is advertised to the model. Schema is a JSON schema object.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      any    `json:"parameters"`
	Terminal    bool   `json:"-"`
}

type Request struct {
	Messages     []Message
	SystemPrompt string
	Tools        []ToolDefinition
}

// Response holds the raw provider payload of a non-streaming call. Only the
// adapter that produced it knows how to read it.
type Response struct {
	Provider string
	Raw      []byte
}

// Chunk is one streamed text fragment. A chunk with Err set is always the last one.
type Chunk struct {
	Text string
	Err  error
}

// Adapter normalizes one LLM wire protocol. Implementations must be safe for
// concurrent use by independent calls.
type Adapter interface {
	Name() string
	Chat(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
	IsToolCallResponse(resp *Response) bool
	ExtractToolCalls(resp *Response) []ToolCall
	BuildToolCallMessage(resp *Response) Message
	BuildToolResult(toolCallID string, content any) Message
	TextContent(resp *Response) string
}

// UnmarshalJSON accepts content either as a string or as an array of typed
// parts; text parts are concatenated.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role       Role            `json:"role"`
		Content    json.RawMessage `json:"content"`
		ToolCalls  []wireToolCall  `json:"tool_calls"`
		ToolCallID string          `json:"tool_call_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.ToolCallID = raw.ToolCallID
	m.Content = contentText(raw.Content)
	m.ToolCalls = nil
	for _, tc := range raw.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, tc.toToolCall())
	}
	return nil
}

// MarshalJSON writes tool calls in the chat-completions shape so a history can
// be echoed back to the voice platform unchanged.
func (m Message) MarshalJSON() ([]byte, error) {
	out := struct {
		Role       Role           `json:"role"`
		Content    string         `json:"content,omitempty"`
		ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
		ToolCallID string         `json:"tool_call_id,omitempty"`
	}{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, newWireToolCall(tc))
	}
	return json.Marshal(out)
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func newWireToolCall(tc ToolCall) wireToolCall {
	w := wireToolCall{ID: tc.ID, Type: "function"}
	w.Function.Name = tc.Name
	w.Function.Arguments = EncodeArguments(tc.Arguments)
	return w
}

func (w wireToolCall) toToolCall() ToolCall {
	return ToolCall{ID: w.ID, Name: w.Function.Name, Arguments: DecodeArguments(w.Function.Arguments)}
}

// DecodeArguments parses a JSON object string; malformed or empty input yields
// an empty map.
func DecodeArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	_ = json.Unmarshal([]byte(raw), &args)
	return args
}

func EncodeArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ContentString renders a tool result for the model: strings pass through,
// everything else is JSON encoded.
func ContentString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case error:
		return v.Error()
	}
	b, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(b)
}

func contentText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Text != "" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return string(raw)
}
