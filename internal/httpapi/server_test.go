package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meggy-ai/meggy/internal/accounts"
	"github.com/meggy-ai/meggy/internal/agents"
	"github.com/meggy-ai/meggy/internal/auth"
	"github.com/meggy-ai/meggy/internal/chat"
	"github.com/meggy-ai/meggy/internal/config"
	"github.com/meggy-ai/meggy/internal/memory"
	"github.com/meggy-ai/meggy/internal/responder"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	users := accounts.NewInMemoryStore()
	agentStore := agents.NewInMemoryStore()
	chatStore := chat.NewInMemoryStore()
	memoryStore := memory.NewInMemoryStore()

	tokens, err := auth.NewTokenManager("test-secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	extractor := memory.NewExtractor(memoryStore, users, nil, nil)
	retriever := memory.NewRetriever(memoryStore, users, nil, nil)
	chatService := chat.NewService(chatStore, users, agentStore, extractor, retriever,
		responder.NewPlaceholder(), nil, nil, chat.ServiceOptions{})

	srv := New(config.Config{}, users, tokens, agentStore, chatService, chatStore,
		memoryStore, "in-memory", nil, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON issues a request and decodes the JSON body, if any, into a map.
func doJSON(t *testing.T, method, url, token string, payload any) (int, map[string]any) {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer res.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	return res.StatusCode, decoded
}

// registerUser creates an account and returns its id and token pair.
func registerUser(t *testing.T, baseURL, email string) (userID, access, refresh string) {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, baseURL+"/v1/auth/register", "", map[string]string{
		"email":        email,
		"password":     "hunter2-but-longer",
		"display_name": "Alex",
	})
	if status != http.StatusCreated {
		t.Fatalf("register status = %d, want %d (body %+v)", status, http.StatusCreated, body)
	}

	user, _ := body["user"].(map[string]any)
	tokens, _ := body["tokens"].(map[string]any)
	userID, _ = user["id"].(string)
	access, _ = tokens["access_token"].(string)
	refresh, _ = tokens["refresh_token"].(string)
	if userID == "" || access == "" || refresh == "" {
		t.Fatalf("register response missing fields: %+v", body)
	}
	return userID, access, refresh
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		status, body := doJSON(t, http.MethodGet, ts.URL+path, "", nil)
		if status != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, status)
		}
		if body["store_mode"] != "in-memory" {
			t.Fatalf("GET %s store_mode = %v, want in-memory", path, body["store_mode"])
		}
	}
}

func TestRegisterLoginRefresh(t *testing.T) {
	ts := newTestServer(t)
	_, _, refresh := registerUser(t, ts.URL, "alex@example.com")

	// The email is now taken.
	status, body := doJSON(t, http.MethodPost, ts.URL+"/v1/auth/register", "", map[string]string{
		"email":    "alex@example.com",
		"password": "another-password",
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", status)
	}
	if body["code"] != "email_taken" {
		t.Fatalf("duplicate register code = %v, want email_taken", body["code"])
	}

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/auth/register", "", map[string]string{
		"email":    "not-an-email",
		"password": "hunter2-but-longer",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("bad email register status = %d, want 400", status)
	}

	status, body = doJSON(t, http.MethodPost, ts.URL+"/v1/auth/login", "", map[string]string{
		"email":    "Alex@Example.com",
		"password": "hunter2-but-longer",
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d, want 200 (body %+v)", status, body)
	}

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/auth/login", "", map[string]string{
		"email":    "alex@example.com",
		"password": "wrong-password",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad password login status = %d, want 401", status)
	}

	status, body = doJSON(t, http.MethodPost, ts.URL+"/v1/auth/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	if status != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200 (body %+v)", status, body)
	}
	if tokens, _ := body["tokens"].(map[string]any); tokens["access_token"] == "" {
		t.Fatalf("refresh response missing access token: %+v", body)
	}

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/auth/refresh", "", map[string]string{
		"refresh_token": "garbage",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("garbage refresh status = %d, want 401", status)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/v1/users/me", "/v1/agents", "/v1/conversation", "/v1/memories"} {
		status, _ := doJSON(t, http.MethodGet, ts.URL+path, "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("GET %s without token status = %d, want 401", path, status)
		}
	}
}

func TestChatTurnFlow(t *testing.T) {
	ts := newTestServer(t)
	userID, access, _ := registerUser(t, ts.URL, "alex@example.com")

	status, body := doJSON(t, http.MethodPost, ts.URL+"/v1/conversation/messages", access, map[string]string{
		"content": "My name is Alex. I love hiking.",
	})
	if status != http.StatusCreated {
		t.Fatalf("send status = %d, want 201 (body %+v)", status, body)
	}
	userMsg, _ := body["user_message"].(map[string]any)
	assistantMsg, _ := body["assistant_message"].(map[string]any)
	if userMsg["content"] != "My name is Alex. I love hiking." {
		t.Fatalf("user_message content = %v", userMsg["content"])
	}
	if assistantMsg["content"] != "This is a placeholder response. LLM integration coming soon." {
		t.Fatalf("assistant_message content = %v", assistantMsg["content"])
	}
	if extractions, _ := body["extractions"].([]any); len(extractions) != 2 {
		t.Fatalf("extractions = %d, want 2 (%+v)", len(extractions), body["extractions"])
	}

	status, body = doJSON(t, http.MethodGet, ts.URL+"/v1/conversation", access, nil)
	if status != http.StatusOK {
		t.Fatalf("conversation status = %d, want 200", status)
	}
	if body["title"] != chat.DefaultConversationTitle {
		t.Fatalf("conversation title = %v, want %q", body["title"], chat.DefaultConversationTitle)
	}
	if body["user_id"] != userID {
		t.Fatalf("conversation user_id = %v, want %q", body["user_id"], userID)
	}

	status, body = doJSON(t, http.MethodGet, ts.URL+"/v1/conversation/messages", access, nil)
	if status != http.StatusOK {
		t.Fatalf("messages status = %d, want 200", status)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}

	status, body = doJSON(t, http.MethodGet, ts.URL+"/v1/memories", access, nil)
	if status != http.StatusOK {
		t.Fatalf("memories status = %d, want 200", status)
	}
	memories, _ := body["memories"].([]any)
	if len(memories) != 2 {
		t.Fatalf("memories = %d, want 2", len(memories))
	}

	first, _ := memories[0].(map[string]any)
	memID, _ := first["id"].(string)
	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/memories/"+memID, access, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete memory status = %d, want 204", status)
	}

	status, body = doJSON(t, http.MethodDelete, ts.URL+"/v1/memories", access, nil)
	if status != http.StatusOK {
		t.Fatalf("clear memories status = %d, want 200", status)
	}
	if deleted, _ := body["deleted"].(float64); deleted != 1 {
		t.Fatalf("deleted = %v, want 1", body["deleted"])
	}
}

func TestSendMessageRejectsBlankContent(t *testing.T) {
	ts := newTestServer(t)
	_, access, _ := registerUser(t, ts.URL, "alex@example.com")

	status, body := doJSON(t, http.MethodPost, ts.URL+"/v1/conversation/messages", access, map[string]string{
		"content": "   ",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("blank send status = %d, want 400", status)
	}
	if body["code"] != "invalid_request" {
		t.Fatalf("blank send code = %v, want invalid_request", body["code"])
	}
}

func TestMemoriesRejectUnknownTypeFilter(t *testing.T) {
	ts := newTestServer(t)
	_, access, _ := registerUser(t, ts.URL, "alex@example.com")

	status, body := doJSON(t, http.MethodGet, ts.URL+"/v1/memories?type=hopes", access, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unknown type status = %d, want 400", status)
	}
	if body["code"] != "invalid_type" {
		t.Fatalf("unknown type code = %v, want invalid_type", body["code"])
	}
}

func TestAgentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, access, _ := registerUser(t, ts.URL, "alex@example.com")

	status, body := doJSON(t, http.MethodGet, ts.URL+"/v1/agents/default", access, nil)
	if status != http.StatusOK {
		t.Fatalf("default agent status = %d, want 200", status)
	}
	if body["name"] != "Meggy" {
		t.Fatalf("default agent name = %v, want Meggy", body["name"])
	}

	status, body = doJSON(t, http.MethodPost, ts.URL+"/v1/agents", access, map[string]any{
		"name":          "Coach",
		"llm_provider":  agents.ProviderOllama,
		"model":         "llama3.2:latest",
		"system_prompt": "You are a running coach.",
	})
	if status != http.StatusCreated {
		t.Fatalf("create agent status = %d, want 201 (body %+v)", status, body)
	}
	agentID, _ := body["id"].(string)
	if agentID == "" {
		t.Fatalf("create agent response missing id: %+v", body)
	}

	status, body = doJSON(t, http.MethodGet, ts.URL+"/v1/agents", access, nil)
	if status != http.StatusOK {
		t.Fatalf("list agents status = %d, want 200", status)
	}
	if list, _ := body["agents"].([]any); len(list) != 2 {
		t.Fatalf("agents = %d, want 2", len(list))
	}

	status, body = doJSON(t, http.MethodPut, ts.URL+"/v1/agents/"+agentID, access, map[string]any{
		"name": "Head Coach",
	})
	if status != http.StatusOK {
		t.Fatalf("update agent status = %d, want 200 (body %+v)", status, body)
	}
	if body["name"] != "Head Coach" {
		t.Fatalf("updated name = %v, want Head Coach", body["name"])
	}

	status, body = doJSON(t, http.MethodPut, ts.URL+"/v1/agents/"+agentID, access, map[string]any{
		"temperature": 7.5,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("invalid update status = %d, want 400 (body %+v)", status, body)
	}
	if body["code"] != "validation_failed" {
		t.Fatalf("invalid update code = %v, want validation_failed", body["code"])
	}

	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/agents/"+agentID, access, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete agent status = %d, want 204", status)
	}
	status, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/agents/"+agentID, access, nil)
	if status != http.StatusNotFound {
		t.Fatalf("get deleted agent status = %d, want 404", status)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	ts := newTestServer(t)
	_, access, refresh := registerUser(t, ts.URL, "alex@example.com")

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/conversation/messages", access, map[string]string{
		"content": "I live in Boston.",
	})
	if status != http.StatusCreated {
		t.Fatalf("send status = %d, want 201", status)
	}

	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/users/me", access, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete me status = %d, want 204", status)
	}

	// The refresh token is signed but the account is gone.
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/auth/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("refresh after delete status = %d, want 401", status)
	}

	// The token still parses, so authenticated routes report the missing user.
	status, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/users/me", access, nil)
	if status != http.StatusNotFound {
		t.Fatalf("me after delete status = %d, want 404", status)
	}

	// The email is free for a fresh start.
	registerUser(t, ts.URL, "alex@example.com")
}
