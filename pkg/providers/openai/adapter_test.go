package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/frontdesk/pkg/llm"
	"github.com/harunnryd/frontdesk/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const toolCallResponse = `{
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [
        {"id": "call_1", "type": "function", "function": {"name": "lookup_customer", "arguments": "{\"phone_number\":\"5551234567\"}"}},
        {"id": "call_2", "type": "function", "function": {"name": "check_availability", "arguments": "{\"service_type\":\"AC Tune-Up\",\"preferred_date\":\"2025-03-15\"}"}}
      ]
    }
  }]
}`

const textResponse = `{"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"We have a 9am slot."}}]}`

func TestChatSendsSystemPromptAndTools(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		captured, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, textResponse)
	}))
	defer srv.Close()

	a := NewAdapter(Config{Provider: "groq", APIKey: "key", Model: "llama", BaseURL: srv.URL, Temperature: 0.4})
	resp, err := a.Chat(context.Background(), llm.Request{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Tools:        []llm.ToolDefinition{{Name: "transfer_call", Description: "transfer", Schema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, "llama", gjson.GetBytes(captured, "model").String())
	assert.Equal(t, "system", gjson.GetBytes(captured, "messages.0.role").String())
	assert.Equal(t, "be brief", gjson.GetBytes(captured, "messages.0.content").String())
	assert.Equal(t, "user", gjson.GetBytes(captured, "messages.1.role").String())
	assert.Equal(t, "function", gjson.GetBytes(captured, "tools.0.type").String())
	assert.Equal(t, "transfer_call", gjson.GetBytes(captured, "tools.0.function.name").String())
	assert.Equal(t, "auto", gjson.GetBytes(captured, "tool_choice").String())
	assert.False(t, gjson.GetBytes(captured, "stream").Exists())

	assert.False(t, a.IsToolCallResponse(resp))
	assert.Equal(t, "We have a 9am slot.", a.TextContent(resp))
}

func TestChatOmitsToolsAndSystemWhenAbsent(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, textResponse)
	}))
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL})
	_, err := a.Chat(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(captured, "tools").Exists())
	assert.False(t, gjson.GetBytes(captured, "tool_choice").Exists())
	assert.Equal(t, "user", gjson.GetBytes(captured, "messages.0.role").String())
}

func TestToolCallResponseRoundTrip(t *testing.T) {
	a := NewAdapter(Config{})
	resp := &llm.Response{Provider: "openai", Raw: []byte(toolCallResponse)}

	require.True(t, a.IsToolCallResponse(resp))
	calls := a.ExtractToolCalls(resp)
	require.Len(t, calls, 2)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "lookup_customer", calls[0].Name)
	assert.Equal(t, "5551234567", calls[0].Arguments["phone_number"])
	assert.Equal(t, "check_availability", calls[1].Name)

	msg := a.BuildToolCallMessage(resp)
	assert.Equal(t, llm.RoleAssistant, msg.Role)
	require.Len(t, msg.ToolCalls, 2)

	result := a.BuildToolResult("call_1", map[string]any{"found": true})
	assert.Equal(t, llm.RoleTool, result.Role)
	assert.Equal(t, "call_1", result.ToolCallID)
	assert.JSONEq(t, `{"found":true}`, result.Content)

	// The history shape is re-consumable: tool_call ids survive into the next request.
	body, err := a.buildRequest(llm.Request{Messages: []llm.Message{msg, result}}, false)
	require.NoError(t, err)
	assert.Equal(t, "call_1", gjson.GetBytes(body, "messages.0.tool_calls.0.id").String())
	assert.Equal(t, "call_1", gjson.GetBytes(body, "messages.1.tool_call_id").String())
	assert.JSONEq(t, `{"phone_number":"5551234567"}`, gjson.GetBytes(body, "messages.0.tool_calls.0.function.arguments").String())
}

func TestStreamYieldsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, gjson.GetBytes(body, "stream").Bool())
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hello", " there", ""} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL})
	ch, err := a.Stream(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	var got []string
	for c := range ch {
		require.NoError(t, c.Err)
		got = append(got, c.Text)
	}
	assert.Equal(t, []string{"Hello", " there"}, got)
}

func TestRateLimitMapsToRateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	}))
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL})
	_, err := a.Chat(context.Background(), llm.Request{})
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimit(err))
}

func TestBaseURLFor(t *testing.T) {
	assert.Equal(t, "https://api.groq.com/openai/v1", BaseURLFor("groq"))
	assert.Equal(t, "http://localhost:11434/v1", BaseURLFor("Ollama"))
	assert.Equal(t, "https://api.openai.com/v1", BaseURLFor("custom"))
}
