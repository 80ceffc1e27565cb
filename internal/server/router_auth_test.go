package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/folio/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func (s *testServer) do(method, target, token string, form url.Values) *httptest.ResponseRecorder {
	var request *http.Request
	if form != nil {
		request = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		request = httptest.NewRequest(method, target, http.NoBody)
	}
	if token != "" {
		request.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: token})
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeEnvelope(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected json body, got %q: %v", recorder.Body.String(), err)
	}
	return body
}

func TestAccessGuardRendersDenialPageForFetch(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.do(http.MethodGet, "/list/1", "", nil)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
	call := server.renderer.last(t)
	if call.name != templateError {
		t.Fatalf("expected error template, got %s", call.name)
	}
	if call.data["code"] != codeDenied || call.data["msg"] != msgNoPermission || call.data["baseUrl"] != testBaseURL {
		t.Fatalf("unexpected denial context %v", call.data)
	}
	if len(server.listings.queries) != 0 {
		t.Fatalf("guarded handler must not run")
	}
}

func TestAccessGuardReturnsJSONForSubmit(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.do(http.MethodPost, "/add", "", url.Values{"title": {"t"}})

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
	body := decodeEnvelope(t, recorder)
	if body["code"] != float64(codeDenied) || body["msg"] != msgNoPermission || body["message"] != msgNoPermission {
		t.Fatalf("unexpected envelope %v", body)
	}
	if body["success"] != float64(0) || body["baseUrl"] != testBaseURL {
		t.Fatalf("unexpected envelope %v", body)
	}
	if server.content.createCalls != 0 {
		t.Fatalf("guarded handler must not run")
	}
	if len(server.renderer.calls) != 0 {
		t.Fatalf("submit denial must not render a page")
	}
}

func TestAccessGuardRejectsTokenWithoutAccount(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.do(http.MethodPost, "/add", tokenGhost, url.Values{})

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected denial, got %d", recorder.Code)
	}
	if server.content.createCalls != 0 {
		t.Fatalf("guarded handler must not run")
	}
}

func TestAccessGuardPassesAuthorizedRequests(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.do(http.MethodGet, "/list/1", tokenReader, nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	if len(server.listings.queries) != 1 {
		t.Fatalf("expected one listing build, got %d", len(server.listings.queries))
	}
	query := server.listings.queries[0]
	if query.OwnerID == nil || *query.OwnerID != 2 {
		t.Fatalf("expected listing narrowed to owner 2, got %+v", query)
	}
}

func TestAccessGuardLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/add", http.NoBody)
	scopeFrom(ctx).State = auth.Unauthenticated(auth.ErrExpiredToken)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{baseURL: testBaseURL, logger: zap.New(core)}

	handler.accessGuard(ctx)

	if !ctx.IsAborted() {
		t.Fatalf("expected chain to be aborted")
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entries[0].Level)
	}
	hasExpired := false
	for _, field := range entries[0].Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entries[0].Context)
	}
}

func TestAccessGuardLogsInvalidTokenAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/add", http.NoBody)
	scopeFrom(ctx).State = auth.Unauthenticated(auth.ErrInvalidToken)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{baseURL: testBaseURL, logger: zap.New(core)}

	handler.accessGuard(ctx)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %v", entries)
	}
}

func TestRequestIDHeaderIsSanitized(t *testing.T) {
	testCases := []struct {
		name     string
		incoming string
		wantKept bool
	}{
		{name: "absent", incoming: ""},
		{name: "well formed", incoming: "req-42_a.b", wantKept: true},
		{name: "too long", incoming: strings.Repeat("a", maxRequestIDLength+1)},
		{name: "control characters", incoming: "abc\ndef"},
		{name: "spaces", incoming: "abc def"},
		{name: "forged log field", incoming: `x" level=error`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			server := newTestServer(t, zap.New(core))
			request := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
			if testCase.incoming != "" {
				request.Header.Set(requestIDHeader, testCase.incoming)
			}
			recorder := httptest.NewRecorder()
			server.handler.ServeHTTP(recorder, request)

			echoed := recorder.Header().Get(requestIDHeader)
			if testCase.wantKept {
				if echoed != testCase.incoming {
					t.Fatalf("expected id %q to be kept, got %q", testCase.incoming, echoed)
				}
			} else {
				if echoed == testCase.incoming || !validRequestID(echoed) {
					t.Fatalf("expected a generated id, got %q", echoed)
				}
			}
			entries := logs.FilterMessage("http request").All()
			if len(entries) != 1 || entries[0].ContextMap()["request_id"] != echoed {
				t.Fatalf("expected the access log to carry id %q", echoed)
			}
		})
	}
}
