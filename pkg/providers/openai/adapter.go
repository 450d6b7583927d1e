package openai

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/resilience"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var providerBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"together": "https://api.together.xyz/v1",
	"mistral":  "https://api.mistral.ai/v1",
	"ollama":   "http://localhost:11434/v1",
}

// BaseURLFor returns the chat-completions base URL of a known provider, or
// the OpenAI one for anything else.
func BaseURLFor(provider string) string {
	if u, ok := providerBaseURLs[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return u
	}
	return providerBaseURLs["openai"]
}

type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	Client      *http.Client
}

// Adapter speaks the chat-completions protocol shared by OpenAI, Groq,
// Together, Mistral, Ollama and compatible endpoints.
type Adapter struct {
	name        string
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	client      *http.Client
}

func NewAdapter(cfg Config) *Adapter {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = "openai"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = BaseURLFor(name)
	}
	apiKey := cfg.APIKey
	if apiKey == "" && name == "ollama" {
		apiKey = "ollama"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Adapter{
		name:        name,
		apiKey:      apiKey,
		model:       model,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		client:      client,
	}
}

func (a *Adapter) Name() string { return a.name }

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
		return nil, fmt.Errorf("%s: invalid response body", a.name)
	}
	if !gjson.GetBytes(raw, "choices.0").Exists() {
		return nil, fmt.Errorf("%s: no choices", a.name)
	}
	return &llm.Response{Provider: a.name, Raw: raw}, nil
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
			if data == "[DONE]" {
				return
			}
			if !gjson.Valid(data) {
				continue
			}
			if msg := gjson.Get(data, "error.message"); msg.Exists() {
				send(ctx, out, llm.Chunk{Err: fmt.Errorf("%s stream: %s", a.name, msg.String())})
				return
			}
			text := gjson.Get(data, "choices.0.delta.content").String()
			if text == "" {
				continue
			}
			if !send(ctx, out, llm.Chunk{Text: text}) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			send(ctx, out, llm.Chunk{Err: err})
		}
	}()
	return out, nil
}

// IsToolCallResponse reports whether the first choice carries tool calls.
func (a *Adapter) IsToolCallResponse(resp *llm.Response) bool {
	if resp == nil {
		return false
	}
	calls := gjson.GetBytes(resp.Raw, "choices.0.message.tool_calls")
	return calls.IsArray() && len(calls.Array()) > 0
}

func (a *Adapter) ExtractToolCalls(resp *llm.Response) []llm.ToolCall {
	if resp == nil {
		return nil
	}
	var out []llm.ToolCall
	gjson.GetBytes(resp.Raw, "choices.0.message.tool_calls").ForEach(func(_, tc gjson.Result) bool {
		out = append(out, llm.ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: llm.DecodeArguments(tc.Get("function.arguments").String()),
		})
		return true
	})
	return out
}

// BuildToolCallMessage returns the assistant message as the provider sent it.
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
	return gjson.GetBytes(resp.Raw, "choices.0.message.content").String()
}

func (a *Adapter) buildRequest(req llm.Request, stream bool) ([]byte, error) {
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, req.Messages...)
	rawMessages, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}

	body := []byte(`{}`)
	if body, err = sjson.SetBytes(body, "model", a.model); err != nil {
		return nil, err
	}
	if body, err = sjson.SetRawBytes(body, "messages", rawMessages); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "temperature", a.temperature); err != nil {
		return nil, err
	}
	if len(req.Tools) > 0 {
		rawTools, err := json.Marshal(mapTools(req.Tools))
		if err != nil {
			return nil, fmt.Errorf("encode tools: %w", err)
		}
		if body, err = sjson.SetRawBytes(body, "tools", rawTools); err != nil {
			return nil, err
		}
		if body, err = sjson.SetBytes(body, "tool_choice", "auto"); err != nil {
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
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := resilience.CheckResponse(a.name, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func mapTools(tools []llm.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Schema,
			},
		})
	}
	return out
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
