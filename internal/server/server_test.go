package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"docqa/internal/app"
	"docqa/internal/ratelimit"
	"docqa/pkg/ai"
	"docqa/pkg/domain"
)

type stubGenerator struct {
	answer string
	err    error
}

func (g stubGenerator) GenerateAnswer(_ context.Context, _, docContext string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if docContext == "" {
		return g.answer + " (general)", nil
	}
	return g.answer, nil
}

func newTestServer(t *testing.T, gen app.Generator, mutate ...func(*Config)) *httptest.Server {
	t.Helper()
	return newTestServerWithApp(t, app.Config{Generator: gen, UploadDir: t.TempDir()}, mutate...)
}

func newTestServerWithApp(t *testing.T, appCfg app.Config, mutate ...func(*Config)) *httptest.Server {
	t.Helper()
	a, err := app.New(appCfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{App: a}
	for _, m := range mutate {
		m(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

type upload struct {
	name    string
	content string
}

func multipartBody(t *testing.T, field string, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile(field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(f.content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, ts *httptest.Server, path string, files ...upload) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, "files", files...)
	resp, err := http.Post(ts.URL+path, contentType, body)
	if err != nil {
		t.Fatalf("upload request: %v", err)
	}
	return resp
}

func postChat(t *testing.T, ts *httptest.Server, path string, payload any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal chat: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("chat request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectError(t *testing.T, resp *http.Response, status int, code string) errorResponse {
	t.Helper()
	if resp.StatusCode != status {
		resp.Body.Close()
		t.Fatalf("status = %d, want %d", resp.StatusCode, status)
	}
	body := decode[errorResponse](t, resp)
	if body.Success || body.Code != code || body.Error == "" {
		t.Fatalf("unexpected error body %#v, want code %s", body, code)
	}
	if body.RequestID == "" || body.RequestID != resp.Header.Get("X-Request-Id") {
		t.Fatalf("requestId %q does not match header %q", body.RequestID, resp.Header.Get("X-Request-Id"))
	}
	return body
}

func manual(words int) string {
	parts := make([]string, words)
	for i := range parts {
		if i%8 == 0 {
			parts[i] = "turbine"
		} else {
			parts[i] = fmt.Sprintf("maintenance%d", i%5)
		}
	}
	return strings.Join(parts, " ")
}

func TestUploadChatHistoryAndDelete(t *testing.T) {
	ts := newTestServer(t, stubGenerator{answer: "Check the turbine."})

	resp := postUpload(t, ts, "/upload", upload{name: "manual.txt", content: manual(120)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	up := decode[app.UploadResult](t, resp)
	if !up.Success || len(up.Results) != 1 || len(up.Errors) != 0 {
		t.Fatalf("unexpected upload result %#v", up)
	}
	if up.TotalDocuments != 1 || up.TotalChunks != up.Results[0].Chunks {
		t.Fatalf("unexpected totals %#v", up)
	}
	docID := up.Results[0].DocumentID

	resp, err := http.Get(ts.URL + "/documents")
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	docs := decode[[]domain.DocumentSummary](t, resp)
	if len(docs) != 1 || docs[0].ID != docID || docs[0].Filename != "manual.txt" {
		t.Fatalf("unexpected documents %#v", docs)
	}

	resp = postChat(t, ts, "/chat", chatRequest{Message: "how do I service the turbine"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	chat := decode[chatResponse](t, resp)
	if !chat.Success || chat.Answer != "Check the turbine." || !chat.HasDocuments {
		t.Fatalf("unexpected chat response %#v", chat)
	}
	if len(chat.Sources) != 1 || chat.Sources[0] != "manual.txt" || chat.SessionID == "" {
		t.Fatalf("unexpected chat sources/session %#v", chat)
	}

	resp, err = http.Get(ts.URL + "/history/" + chat.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	turns := decode[[]domain.Turn](t, resp)
	if len(turns) != 1 || turns[0].Message != "how do I service the turbine" {
		t.Fatalf("unexpected history %#v", turns)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/documents/"+docID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	del := decode[deleteResponse](t, resp)
	if !del.Success || del.DeletedDocument != "manual.txt" || del.RemainingDocuments != 0 {
		t.Fatalf("unexpected delete response %#v", del)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	body := expectError(t, resp, http.StatusNotFound, "DOCUMENT_NOT_FOUND")
	if body.Error != "Document not found" {
		t.Fatalf("error = %q", body.Error)
	}
}

func TestAPIPrefixedRoutes(t *testing.T) {
	ts := newTestServer(t, stubGenerator{answer: "hi"})

	resp := postUpload(t, ts, "/api/upload", upload{name: "notes.txt", content: manual(80)})
	up := decode[app.UploadResult](t, resp)
	if !up.Success {
		t.Fatalf("upload via /api failed: %#v", up)
	}

	resp, err := http.Get(ts.URL + "/api/upload/documents")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if docs := decode[[]domain.DocumentSummary](t, resp); len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	resp = postChat(t, ts, "/api/chat", chatRequest{Message: "turbine", SessionID: "fixed-session"})
	chat := decode[chatResponse](t, resp)
	resp, err = http.Get(ts.URL + "/api/chat/history/" + chat.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if turns := decode[[]domain.Turn](t, resp); len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/upload/documents/"+up.Results[0].DocumentID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	health := decode[app.Health](t, resp)
	if health.Status != "ok" || health.Documents != 0 || health.VectorStore != 0 {
		t.Fatalf("unexpected health %#v", health)
	}
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t, stubGenerator{answer: "x"})

	resp := postUpload(t, ts, "/upload")
	expectError(t, resp, http.StatusBadRequest, "UPLOAD_NO_FILES")

	resp, err := http.Post(ts.URL+"/upload", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	expectError(t, resp, http.StatusBadRequest, "UPLOAD_NO_FILES")

	files := make([]upload, 6)
	for i := range files {
		files[i] = upload{name: fmt.Sprintf("f%d.txt", i), content: manual(40)}
	}
	resp = postUpload(t, ts, "/upload", files...)
	expectError(t, resp, http.StatusBadRequest, "UPLOAD_TOO_MANY_FILES")

	resp, err = http.Get(ts.URL + "/documents")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if docs := decode[[]domain.DocumentSummary](t, resp); len(docs) != 0 {
		t.Fatalf("rejected batch mutated library: %d documents", len(docs))
	}
}

func TestUploadReportsPerFileErrors(t *testing.T) {
	ts := newTestServer(t, stubGenerator{answer: "x"})

	resp := postUpload(t, ts, "/upload",
		upload{name: "photo.png", content: "not a document"},
		upload{name: "ok.txt", content: manual(60)},
		upload{name: "empty.txt", content: "   "},
	)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	up := decode[app.UploadResult](t, resp)
	if !up.Success || len(up.Results) != 1 || up.Results[0].Filename != "ok.txt" {
		t.Fatalf("unexpected results %#v", up.Results)
	}
	if len(up.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %#v", up.Errors)
	}
	if up.Errors[0].Filename != "photo.png" || up.Errors[0].Error != "Unsupported file type: .png" {
		t.Fatalf("unexpected first error %#v", up.Errors[0])
	}
	if up.Errors[1].Error != "No readable content found in document" {
		t.Fatalf("unexpected second error %#v", up.Errors[1])
	}

	resp = postUpload(t, ts, "/upload", upload{name: "photo.png", content: "nope"})
	up = decode[app.UploadResult](t, resp)
	if up.Success || len(up.Results) != 0 || up.TotalDocuments != 1 {
		t.Fatalf("all-failed batch should report success=false, got %#v", up)
	}
}

func TestUploadOversizeFilesFailIndividually(t *testing.T) {
	ts := newTestServerWithApp(t, app.Config{
		Generator:    stubGenerator{answer: "x"},
		UploadDir:    t.TempDir(),
		MaxFileBytes: 200,
	})

	big := strings.Repeat("oversize ", 100)
	resp := postUpload(t, ts, "/upload",
		upload{name: "big1.txt", content: big},
		upload{name: "small.txt", content: manual(15)},
		upload{name: "big2.txt", content: big},
	)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	up := decode[app.UploadResult](t, resp)
	if !up.Success || len(up.Results) != 1 || up.Results[0].Filename != "small.txt" {
		t.Fatalf("unexpected results %#v", up.Results)
	}
	if len(up.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %#v", up.Errors)
	}
	for i, want := range []string{"big1.txt", "big2.txt"} {
		if up.Errors[i].Filename != want || up.Errors[i].Error != "File too large" {
			t.Fatalf("error %d = %#v, want %s too large", i, up.Errors[i], want)
		}
	}
}

func TestChatErrors(t *testing.T) {
	ts := newTestServer(t, stubGenerator{err: fmt.Errorf("%w: upstream down", ai.ErrService)})

	resp := postChat(t, ts, "/chat", chatRequest{Message: "   "})
	expectError(t, resp, http.StatusBadRequest, "CHAT_MESSAGE_REQUIRED")

	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	expectError(t, resp, http.StatusBadRequest, "INVALID_JSON")

	resp = postChat(t, ts, "/chat", chatRequest{Message: "hello there", SessionID: "s-1"})
	body := expectError(t, resp, http.StatusInternalServerError, "CHAT_GENERATION_FAILED")
	if body.Error != "AI service error: upstream down" {
		t.Fatalf("error = %q, want generator message", body.Error)
	}

	resp, err = http.Get(ts.URL + "/history/s-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if turns := decode[[]domain.Turn](t, resp); len(turns) != 0 {
		t.Fatalf("failed chat recorded %d turns", len(turns))
	}
}

func TestChatWithoutDocumentsUsesGeneralFraming(t *testing.T) {
	ts := newTestServer(t, stubGenerator{answer: "Hello"})
	resp := postChat(t, ts, "/chat", chatRequest{Message: "hi there"})
	chat := decode[chatResponse](t, resp)
	if chat.HasDocuments || chat.Answer != "Hello (general)" || len(chat.Sources) != 0 {
		t.Fatalf("unexpected response %#v", chat)
	}
}

func TestHistoryUnknownSessionIsEmptyArray(t *testing.T) {
	ts := newTestServer(t, stubGenerator{answer: "x"})
	resp, err := http.Get(ts.URL + "/history/nobody")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	defer resp.Body.Close()
	raw := new(bytes.Buffer)
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if got := strings.TrimSpace(raw.String()); got != "[]" {
		t.Fatalf("body = %q, want []", got)
	}
}

func TestMethodAndRouteErrors(t *testing.T) {
	ts := newTestServer(t, stubGenerator{answer: "x"})

	resp, err := http.Get(ts.URL + "/chat")
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	expectError(t, resp, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")

	resp, err = http.Get(ts.URL + "/documents/some-id")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	expectError(t, resp, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	expectError(t, resp, http.StatusNotFound, "NOT_FOUND")
}

func TestChatRateLimitWithRedis(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.New(ratelimit.Config{
		Limit:     1,
		Window:    time.Minute,
		RedisAddr: redis.Addr(),
		Prefix:    "docqa:ratelimit:chat",
	})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ts := newTestServer(t, stubGenerator{answer: "ok"}, func(c *Config) {
		c.ChatLimiter = limiter
	})

	resp := postChat(t, ts, "/chat", chatRequest{Message: "first question"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", resp.StatusCode)
	}

	resp = postChat(t, ts, "/api/chat", chatRequest{Message: "second question"})
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After header")
	}
	expectError(t, resp, http.StatusTooManyRequests, "RATE_LIMITED")

	// other routes keep their own quota
	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
}

func TestUploadRateLimitLocal(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.Config{Limit: 1, Window: time.Minute})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ts := newTestServer(t, stubGenerator{answer: "ok"}, func(c *Config) {
		c.UploadLimiter = limiter
	})

	resp := postUpload(t, ts, "/upload", upload{name: "a.txt", content: manual(60)})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first upload expected 200, got %d", resp.StatusCode)
	}
	resp = postUpload(t, ts, "/upload", upload{name: "b.txt", content: manual(60)})
	expectError(t, resp, http.StatusTooManyRequests, "RATE_LIMITED")
}

func TestStaticFrontend(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>docqa</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	ts := newTestServer(t, stubGenerator{answer: "x"}, func(c *Config) {
		c.StaticDir = dir
	})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if csp := resp.Header.Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'self'") {
		t.Fatalf("frontend CSP = %q", csp)
	}

	resp2, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp2.Body.Close()
	if csp := resp2.Header.Get("Content-Security-Policy"); !strings.Contains(csp, "default-src 'none'") {
		t.Fatalf("api CSP = %q", csp)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, stubGenerator{answer: "x"}, func(c *Config) {
		c.CORSAllowedOrigins = []string{"http://localhost:5173"}
	})
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestNewRequiresApp(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without app")
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		status int
		msg    string
		want   string
	}{
		{http.StatusBadRequest, "Message is required", "CHAT_MESSAGE_REQUIRED"},
		{http.StatusNotFound, "Document not found", "DOCUMENT_NOT_FOUND"},
		{http.StatusBadRequest, "something odd", "INVALID_REQUEST"},
		{http.StatusBadGateway, "upstream", "INTERNAL_ERROR"},
		{http.StatusConflict, "conflict", "REQUEST_FAILED"},
	}
	for _, tc := range cases {
		if got := errorCode(tc.status, tc.msg); got != tc.want {
			t.Fatalf("errorCode(%d, %q) = %q, want %q", tc.status, tc.msg, got, tc.want)
		}
	}
}
