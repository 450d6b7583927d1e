package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/goccy/go-json"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/resilience"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
	apiVersion       = "2023-06-01"
)

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Client    *http.Client
}

// Adapter speaks the Messages API. History is kept in the chat-completions
// shape and translated on every request: tool results fold into user turns as
// tool_result blocks, assistant tool calls become tool_use blocks.
//
// The Messages API rejects tool_use blocks in a request that declares no
// tools, so definitions seen on earlier requests are remembered and re-sent
// with tool_choice none when a tool-less request carries tool history.
type Adapter struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	client    *http.Client
	known     *haxmap.Map[string, llm.ToolDefinition]
}

func NewAdapter(cfg Config) *Adapter {
	a := &Adapter{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		maxTokens: cfg.MaxTokens,
		client:    cfg.Client,
		known:     haxmap.New[string, llm.ToolDefinition](),
	}
	if a.model == "" {
		a.model = defaultModel
	}
	if a.baseURL == "" {
		a.baseURL = defaultBaseURL
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultMaxTokens
	}
	if a.client == nil {
		a.client = &http.Client{Timeout: 60 * time.Second}
	}
	return a
}

func (a *Adapter) Name() string { return "anthropic" }

func (a *Adapter) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body, err := a.buildRequest(req, false)
	if err != nil {
		return nil, err
	}
	resp, err := a.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("anthropic: invalid response body")
	}
	return &llm.Response{Provider: a.Name(), Raw: raw}, nil
}

func (a *Adapter) Stream(ctx context.Context, req llm.Request) (<-chan llm.Chunk, error) {
	body, err := a.buildRequest(req, true)
	if err != nil {
		return nil, err
	}
	resp, err := a.post(ctx, body)
	if err != nil {
		return nil, err
	}
	out := make(chan llm.Chunk, 128)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if !gjson.Valid(data) {
				continue
			}
			switch gjson.Get(data, "type").String() {
			case "content_block_delta":
				if gjson.Get(data, "delta.type").String() != "text_delta" {
					continue
				}
				text := gjson.Get(data, "delta.text").String()
				if text == "" {
					continue
				}
				if !send(ctx, out, llm.Chunk{Text: text}) {
					return
				}
			case "error":
				send(ctx, out, llm.Chunk{Err: fmt.Errorf("anthropic stream: %s", gjson.Get(data, "error.message").String())})
				return
			case "message_stop":
				return
			}
		}
		if err := scanner.Err(); err != nil {
			send(ctx, out, llm.Chunk{Err: err})
		}
	}()
	return out, nil
}

func (a *Adapter) IsToolCallResponse(resp *llm.Response) bool {
	if resp == nil {
		return false
	}
	return gjson.GetBytes(resp.Raw, "stop_reason").String() == "tool_use"
}

func (a *Adapter) ExtractToolCalls(resp *llm.Response) []llm.ToolCall {
	if resp == nil {
		return nil
	}
	var out []llm.ToolCall
	gjson.GetBytes(resp.Raw, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() != "tool_use" {
			return true
		}
		args := map[string]any{}
		if input := block.Get("input"); input.IsObject() {
			_ = json.Unmarshal([]byte(input.Raw), &args)
		}
		out = append(out, llm.ToolCall{
			ID:        block.Get("id").String(),
			Name:      block.Get("name").String(),
			Arguments: args,
		})
		return true
	})
	return out
}

// BuildToolCallMessage records the tool_use blocks as chat-completions style
// tool calls; convertMessages turns them back into blocks on the next request.
func (a *Adapter) BuildToolCallMessage(resp *llm.Response) llm.Message {
	return llm.Message{
		Role:      llm.RoleAssistant,
		Content:   a.TextContent(resp),
		ToolCalls: a.ExtractToolCalls(resp),
	}
}

func (a *Adapter) BuildToolResult(toolCallID string, content any) llm.Message {
	return llm.Message{
		Role:       llm.RoleTool,
		ToolCallID: toolCallID,
		Content:    llm.ContentString(content),
	}
}

func (a *Adapter) TextContent(resp *llm.Response) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	gjson.GetBytes(resp.Raw, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			b.WriteString(block.Get("text").String())
		}
		return true
	})
	return b.String()
}

type turn struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// convertMessages translates chat-completions history into Messages API
// turns. A tool result joins the previous user turn when that turn already
// holds blocks, so two user turns never sit next to each other for one batch
// of results.
func convertMessages(messages []llm.Message) []*turn {
	out := make([]*turn, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.Role == llm.RoleSystem:
			continue
		case msg.Role == llm.RoleTool:
			block := map[string]any{
				"type":        "tool_result",
				"tool_use_id": msg.ToolCallID,
				"content":     msg.Content,
			}
			if n := len(out); n > 0 && out[n-1].Role == string(llm.RoleUser) {
				if blocks, ok := out[n-1].Content.([]any); ok {
					out[n-1].Content = append(blocks, block)
					continue
				}
			}
			out = append(out, &turn{Role: string(llm.RoleUser), Content: []any{block}})
		case msg.Role == llm.RoleAssistant && len(msg.ToolCalls) > 0:
			blocks := make([]any, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			out = append(out, &turn{Role: string(llm.RoleAssistant), Content: blocks})
		default:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			out = append(out, &turn{Role: string(msg.Role), Content: msg.Content})
		}
	}
	return out
}

func convertTools(tools []llm.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.Schema,
		})
	}
	return out
}

// historyTools returns a definition for every tool the history calls, in
// first-use order. Tools never declared to this adapter get an open schema.
func (a *Adapter) historyTools(messages []llm.Message) []llm.ToolDefinition {
	var out []llm.ToolDefinition
	seen := map[string]bool{}
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if seen[tc.Name] {
				continue
			}
			seen[tc.Name] = true
			def, ok := a.known.Get(tc.Name)
			if !ok {
				def = llm.ToolDefinition{Name: tc.Name, Schema: map[string]any{"type": "object"}}
			}
			out = append(out, def)
		}
	}
	return out
}

func (a *Adapter) buildRequest(req llm.Request, stream bool) ([]byte, error) {
	rawMessages, err := json.Marshal(convertMessages(req.Messages))
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	body := []byte(`{}`)
	if body, err = sjson.SetBytes(body, "model", a.model); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "max_tokens", a.maxTokens); err != nil {
		return nil, err
	}
	if body, err = sjson.SetRawBytes(body, "messages", rawMessages); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		if body, err = sjson.SetBytes(body, "system", req.SystemPrompt); err != nil {
			return nil, err
		}
	}
	tools := req.Tools
	for _, t := range tools {
		a.known.Set(t.Name, t)
	}
	disabled := false
	if len(tools) == 0 {
		tools = a.historyTools(req.Messages)
		disabled = len(tools) > 0
	}
	if len(tools) > 0 {
		rawTools, err := json.Marshal(convertTools(tools))
		if err != nil {
			return nil, fmt.Errorf("encode tools: %w", err)
		}
		if body, err = sjson.SetRawBytes(body, "tools", rawTools); err != nil {
			return nil, err
		}
	}
	if disabled {
		if body, err = sjson.SetBytes(body, "tool_choice.type", "none"); err != nil {
			return nil, err
		}
	}
	if stream {
		if body, err = sjson.SetBytes(body, "stream", true); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (a *Adapter) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := resilience.CheckResponse(a.Name(), resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func send(ctx context.Context, out chan<- llm.Chunk, c llm.Chunk) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- c:
		return true
	}
}

var _ llm.Adapter = (*Adapter)(nil)
