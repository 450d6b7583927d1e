package mock

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/tidwall/gjson"
)

// Step is one scripted Chat reply.
type Step struct {
	Text      string
	ToolCalls []llm.ToolCall
	Err       error
}

type LLMConfig struct {
	// Steps are returned in order; the last one repeats once exhausted.
	Steps []Step
	// StreamChunks are yielded by Stream. Empty means the text of the most
	// recent Chat reply as a single chunk.
	StreamChunks []string
	// StreamOpenErr fails Stream before any chunk.
	StreamOpenErr error
	// StreamErr is delivered after StreamChunks.
	StreamErr error
}

// LLMAdapter is a scripted adapter that records every request it receives.
type LLMAdapter struct {
	cfg LLMConfig

	mu             sync.Mutex
	next           int
	lastText       string
	ChatRequests   []llm.Request
	StreamRequests []llm.Request
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if len(cfg.Steps) == 0 {
		cfg.Steps = []Step{{Text: "mock response"}}
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

type wire struct {
	Text      string         `json:"text"`
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`
}

func (a *LLMAdapter) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	a.mu.Lock()
	a.ChatRequests = append(a.ChatRequests, cloneRequest(req))
	step := a.cfg.Steps[min(a.next, len(a.cfg.Steps)-1)]
	a.next++
	a.lastText = step.Text
	a.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	raw, err := json.Marshal(wire{Text: step.Text, ToolCalls: step.ToolCalls})
	if err != nil {
		return nil, err
	}
	return &llm.Response{Provider: a.Name(), Raw: raw}, nil
}

func (a *LLMAdapter) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	a.mu.Lock()
	a.StreamRequests = append(a.StreamRequests, cloneRequest(req))
	chunks := a.cfg.StreamChunks
	if len(chunks) == 0 {
		chunks = []string{a.lastText}
	}
	a.mu.Unlock()

	if a.cfg.StreamOpenErr != nil {
		return nil, a.cfg.StreamOpenErr
	}
	out := make(chan llm.Chunk, len(chunks)+1)
	for _, c := range chunks {
		out <- llm.Chunk{Text: c}
	}
	if a.cfg.StreamErr != nil {
		out <- llm.Chunk{Err: a.cfg.StreamErr}
	}
	close(out)
	return out, nil
}

func (a *LLMAdapter) IsToolCallResponse(resp *llm.Response) bool {
	return len(a.ExtractToolCalls(resp)) > 0
}

func (a *LLMAdapter) ExtractToolCalls(resp *llm.Response) []llm.ToolCall {
	if resp == nil {
		return nil
	}
	var out []llm.ToolCall
	gjson.GetBytes(resp.Raw, "tool_calls").ForEach(func(_, tc gjson.Result) bool {
		args := map[string]any{}
		_ = json.Unmarshal([]byte(tc.Get("arguments").Raw), &args)
		out = append(out, llm.ToolCall{ID: tc.Get("id").String(), Name: tc.Get("name").String(), Arguments: args})
		return true
	})
	return out
}

func (a *LLMAdapter) BuildToolCallMessage(resp *llm.Response) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: a.TextContent(resp), ToolCalls: a.ExtractToolCalls(resp)}
}

func (a *LLMAdapter) BuildToolResult(toolCallID string, content any) llm.Message {
	return llm.Message{Role: llm.RoleTool, ToolCallID: toolCallID, Content: llm.ContentString(content)}
}

func (a *LLMAdapter) TextContent(resp *llm.Response) string {
	if resp == nil {
		return ""
	}
	return gjson.GetBytes(resp.Raw, "text").String()
}

// ChatCalls returns how many Chat requests were made.
func (a *LLMAdapter) ChatCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ChatRequests)
}

func cloneRequest(req llm.Request) llm.Request {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	return req
}

var _ llm.Adapter = (*LLMAdapter)(nil)
