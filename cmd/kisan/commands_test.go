package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func TestClient_PostAskSendsAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /ask": `{"query_id":1,"answered":true,"text":"water in the morning"}`,
	})

	resp, err := ts.client().post("/ask", map[string]string{"prompt": "when to water?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sub struct {
		QueryID  int64  `json:"query_id"`
		Answered bool   `json:"answered"`
		Text     string `json:"text"`
	}
	if err := decodeJSON(resp, &sub); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !sub.Answered || sub.Text != "water in the morning" {
		t.Errorf("submission = %+v", sub)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(ts.requests))
	}
	req := ts.requests[0]
	if req.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", req.Auth)
	}
	if !strings.Contains(req.Body, "when to water?") {
		t.Errorf("body = %q", req.Body)
	}
}

func TestClient_ErrorStatusSurfacesBody(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get("/queries/999")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var out map[string]any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v", err)
	}
}

func TestAskCommand_QueuedPrintsNotice(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /ask": `{"query_id":7,"answered":false,"notice":"You are offline."}`,
	})

	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = orig })

	askCmd.SetArgs(nil)
	if err := askCmd.RunE(askCmd, []string{"will", "it", "rain?"}); err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(ts.requests))
	}
	if !strings.Contains(ts.requests[0].Body, "will it rain?") {
		t.Errorf("body = %q", ts.requests[0].Body)
	}
}

func TestConnectivityCommand_ReportsOn(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /connectivity": `{"online":true}`,
	})

	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = orig })

	if err := connectivityCmd.RunE(connectivityCmd, []string{"on"}); err != nil {
		t.Fatalf("connectivity on failed: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(ts.requests))
	}
	if !strings.Contains(ts.requests[0].Body, "true") {
		t.Errorf("body = %q", ts.requests[0].Body)
	}
}

func TestConnectivityCommand_RejectsBadArgument(t *testing.T) {
	ts := newTestServer(t, nil)

	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = orig })

	if err := connectivityCmd.RunE(connectivityCmd, []string{"maybe"}); err == nil {
		t.Fatal("expected error for bad argument")
	}
}
