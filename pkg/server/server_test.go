package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/frontdesk/pkg/agent"
	"github.com/harunnryd/frontdesk/pkg/calllog"
	"github.com/harunnryd/frontdesk/pkg/conversation"
	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/store"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"github.com/harunnryd/frontdesk/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "vapi-secret"

// scriptedConversation resolves every number against a tenant store and
// answers each turn with fixed fragments.
type scriptedConversation struct {
	tenants     tenant.Lookup
	fragments   []string
	disposition *tools.Disposition
	requests    []conversation.Request
}

func (c *scriptedConversation) Resolve(ctx context.Context, toNumber string) (*tenant.Config, error) {
	cfg, err := tenant.Resolve(ctx, c.tenants, toNumber)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTenantNotFound)
	}
	return cfg, nil
}

func (c *scriptedConversation) Handle(ctx context.Context, _ *tenant.Config, req conversation.Request, sink agent.Sink) {
	c.requests = append(c.requests, req)
	for _, f := range c.fragments {
		if err := sink.Emit(ctx, f); err != nil {
			return
		}
	}
	_ = sink.Complete(ctx, c.disposition)
}

type fixedPrompt string

func (p fixedPrompt) Assemble(*tenant.Config) string { return string(p) }

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *scriptedConversation) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = st.CreateClient(context.Background(), tenant.Config{
		ID:               "client-1",
		CompanyName:      "Acme HVAC",
		PhoneNumber:      "+15551234567",
		IndustryVertical: "hvac",
	})
	require.NoError(t, err)

	conv := &scriptedConversation{tenants: st, fragments: []string{"Hello ", "there."}}
	srv := New(Config{Secret: secret, Model: "gpt-4o"}, Deps{
		Conversation: conv,
		Clients:      st,
		Prompts:      fixedPrompt("You are the receptionist."),
		CallLogs:     st,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st, conv
}

func post(t *testing.T, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func bearer() http.Header {
	return http.Header{"Authorization": {"Bearer " + secret}}
}

const chatBody = `{"call":{"id":"call-1","toNumber":"(555) 123-4567","customer":{"number":"+15550009999"}},"messages":[{"role":"user","content":"hi"}]}`

func TestChatStreamsCompletionChunks(t *testing.T) {
	ts, _, conv := newTestServer(t)
	resp := post(t, ts.URL+"/vapi/chat", chatBody, bearer())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, events, 4)
	assert.Equal(t, "[DONE]", events[3])

	var first completionChunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	assert.Equal(t, "chat.completion.chunk", first.Object)
	assert.Equal(t, "gpt-4o", first.Model)
	assert.True(t, strings.HasPrefix(first.ID, "chatcmpl-"))
	assert.Equal(t, "assistant", first.Choices[0].Delta.Role)
	assert.Equal(t, "Hello ", first.Choices[0].Delta.Content)
	assert.Nil(t, first.Choices[0].FinishReason)

	var stop completionChunk
	require.NoError(t, json.Unmarshal([]byte(events[2]), &stop))
	require.NotNil(t, stop.Choices[0].FinishReason)
	assert.Equal(t, "stop", *stop.Choices[0].FinishReason)
	assert.Equal(t, first.ID, stop.ID)

	require.Len(t, conv.requests, 1)
	assert.Equal(t, "call-1", conv.requests[0].CallID)
	assert.Equal(t, "+15550009999", conv.requests[0].CallerNumber)
}

func TestChatAuth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := post(t, ts.URL+"/vapi/chat", chatBody, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, ts.URL+"/vapi/chat", chatBody, http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, ts.URL+"/vapi/chat", chatBody, http.Header{"X-Vapi-Secret": {secret}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEmptySecretFailsClosed(t *testing.T) {
	closed := httptest.NewServer(New(Config{}, Deps{}).Handler())
	t.Cleanup(closed.Close)
	for _, path := range []string{"/vapi/chat", "/vapi/webhook"} {
		resp := post(t, closed.URL+path, `{not json`, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp = post(t, closed.URL+path, `{not json`, http.Header{"Authorization": {"Bearer "}})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	open := httptest.NewServer(New(Config{AllowAnonymous: true}, Deps{}).Handler())
	t.Cleanup(open.Close)
	resp := post(t, open.URL+"/vapi/chat", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatUnknownTenant(t *testing.T) {
	ts, _, conv := newTestServer(t)
	resp := post(t, ts.URL+"/vapi/chat", `{"call":{"toNumber":"+19998887777"},"messages":[]}`, bearer())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":"No active client found for this phone number."}`, string(body))
	assert.Empty(t, conv.requests)
}

func TestChatRejectsMalformedBody(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := post(t, ts.URL+"/vapi/chat", `{not json`, bearer())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookRecordsEndOfCall(t *testing.T) {
	ts, st, _ := newTestServer(t)
	body := `{"message":{
		"type":"end-of-call-report",
		"endedReason":"customer-ended-call",
		"call":{"id":"call-7","customer":{"number":"+15550001234"},"phoneNumbers":[{"number":"+15551234567"}],
			"startedAt":"2024-06-03T14:00:00.000Z","endedAt":"2024-06-03T14:02:05.400Z"},
		"artifact":{"analysis":{"summary":"Booked a tune-up."},"transcript":"AI: hi"}
	}}`
	resp := post(t, ts.URL+"/vapi/webhook", body, bearer())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"received":true}`, string(raw))

	logs, err := st.ListCallLogs(context.Background(), "client-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "call-7", logs[0].CallID)
	assert.Equal(t, "customer-ended-call", logs[0].Outcome)
	assert.Equal(t, "Booked a tune-up.", logs[0].Summary)
	require.NotNil(t, logs[0].DurationSeconds)
	assert.Equal(t, 125, *logs[0].DurationSeconds)
}

func TestWebhookTranscriptFallbackAndUnknownOutcome(t *testing.T) {
	ts, st, _ := newTestServer(t)
	transcript := strings.Repeat("x", 700)
	body := `{"message":{"type":"end-of-call-report","call":{"id":"call-8","toNumber":"+15551234567"},"artifact":{"transcript":"` + transcript + `"}}}`
	post(t, ts.URL+"/vapi/webhook", body, bearer())

	logs, err := st.ListCallLogs(context.Background(), "client-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "unknown", logs[0].Outcome)
	assert.Len(t, logs[0].Summary, 500)
	assert.Nil(t, logs[0].DurationSeconds)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	ts, st, _ := newTestServer(t)
	for _, body := range []string{
		`{"message":{"type":"status-update","call":{"toNumber":"+15551234567"}}}`,
		`{"message":{"type":"end-of-call-report","call":{"toNumber":"+19998887777"}}}`,
		`garbage`,
	} {
		resp := post(t, ts.URL+"/vapi/webhook", body, bearer())
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	logs, err := st.ListCallLogs(context.Background(), "client-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

type failingTenants struct{ err error }

func (f failingTenants) FindByPhone(context.Context, string) (*tenant.Config, error) {
	return nil, f.err
}

func (f failingTenants) FindByID(context.Context, string) (*tenant.Config, error) {
	return nil, f.err
}

type discardLogs struct{}

func (discardLogs) InsertCallLog(context.Context, calllog.Entry) error { return nil }

func TestWebhookSurfacesLookupFailure(t *testing.T) {
	body := []byte(`{"message":{"type":"end-of-call-report","call":{"id":"call-9","toNumber":"+15551234567"}}}`)

	broken := errorsx.Wrap(errors.New("database is locked"), errorsx.ReasonStoreQuery)
	srv := New(Config{Secret: secret}, Deps{
		Conversation: &scriptedConversation{tenants: failingTenants{err: broken}},
		CallLogs:     discardLogs{},
	})
	err := srv.logEndOfCall(context.Background(), body)
	require.Error(t, err)
	assert.ErrorContains(t, err, "database is locked")

	srv = New(Config{Secret: secret}, Deps{
		Conversation: &scriptedConversation{tenants: failingTenants{err: tenant.ErrNotFound}},
		CallLogs:     discardLogs{},
	})
	assert.NoError(t, srv.logEndOfCall(context.Background(), body))
}

func TestCreateClient(t *testing.T) {
	ts, st, _ := newTestServer(t)
	resp := post(t, ts.URL+"/clients", `{
		"company_name":"Drip Plumbing","phone_number":"555-222-3333","industry_vertical":"plumbing",
		"services":[{"service_name":"Drain cleaning","base_price":150,"duration_minutes":90}],
		"call_config":{"transfer_number":"+15550002222","emergency_keywords":["flood"]}
	}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "+15552223333", created["phone_number"])
	assert.NotEmpty(t, created["id"])

	cfg, err := st.FindByPhone(context.Background(), "+15552223333")
	require.NoError(t, err)
	assert.Equal(t, "Drip Plumbing", cfg.CompanyName)
	assert.Equal(t, []string{"flood"}, cfg.CallConfig.EmergencyKeywords)
	require.Len(t, cfg.Services, 1)
}

func TestCreateClientValidation(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := post(t, ts.URL+"/clients", `{"company_name":"X","phone_number":"5551112222"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, ts.URL+"/clients", `{"company_name":"X","phone_number":"5551112222","industry_vertical":"bakery"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "hvac, plumbing, spa")
}

func TestClientConfig(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/clients/client-1/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Client struct {
			ID          string `json:"id"`
			CompanyName string `json:"company_name"`
		} `json:"client"`
		AssembledPrompt string `json:"assembled_prompt"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "client-1", out.Client.ID)
	assert.Equal(t, "You are the receptionist.", out.AssembledPrompt)

	missing, err := http.Get(ts.URL + "/clients/nope/config")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestClientCallsPaging(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/clients/client-1/calls?limit=500&offset=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		Calls  []json.RawMessage `json:"calls"`
		Limit  int               `json:"limit"`
		Offset int               `json:"offset"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 200, out.Limit)
	assert.Equal(t, 0, out.Offset)
	assert.NotNil(t, out.Calls)
}

func TestAdminCORS(t *testing.T) {
	ts, _, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/clients", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthAndNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	nf, err := http.Get(ts.URL + "/nowhere")
	require.NoError(t, err)
	defer nf.Body.Close()
	assert.Equal(t, http.StatusNotFound, nf.StatusCode)
}

func TestWebsocketConversation(t *testing.T) {
	ts, _, conv := newTestServer(t)
	conv.disposition = &tools.Disposition{Action: tools.ActionTransfer, Priority: tools.PriorityNormal}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-Vapi-Secret": {secret}})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(chatBody)))
	var frames []wsFrame
	for len(frames) < 3 {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var f wsFrame
		require.NoError(t, json.Unmarshal(msg, &f))
		frames = append(frames, f)
	}
	assert.Equal(t, frameFragment, frames[0].Type)
	assert.Equal(t, "Hello ", frames[0].Text)
	assert.Equal(t, "call-1", frames[0].CallID)
	assert.Equal(t, frameComplete, frames[2].Type)
	require.NotNil(t, frames[2].Disposition)
	assert.Equal(t, tools.ActionTransfer, frames[2].Disposition.Action)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"call":{"toNumber":"+19998887777"}}`)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var f wsFrame
	require.NoError(t, json.Unmarshal(msg, &f))
	assert.Equal(t, frameError, f.Type)
	assert.Equal(t, msgNoTenant, f.Error)
}
