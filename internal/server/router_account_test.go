package server

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/MarcoPoloResearchLab/folio/internal/auth"
	"github.com/MarcoPoloResearchLab/folio/internal/users"
)

func TestLoginRejectsInvalidCredentials(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.do(http.MethodPost, "/login", "", url.Values{"nickName": {"alice"}, "password": {"wrong"}})

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", recorder.Code)
	}
	expected := `{"code":400,"msg":"invalid credentials"}`
	if recorder.Body.String() != expected {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
	if len(recorder.Result().Cookies()) != 0 {
		t.Fatalf("expected no cookie on failed login")
	}
}

func TestLoginSetsTokenCookie(t *testing.T) {
	server := newTestServer(t, nil)
	server.accounts.authErr = nil
	server.accounts.authUser = users.User{ID: 2, Name: "reader"}

	recorder := server.do(http.MethodPost, "/login", "", url.Values{"nickName": {"reader"}, "password": {"pw"}})

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recorder.Code)
	}
	body := decodeEnvelope(t, recorder)
	if body["token"] != "token-2" || body["baseUrl"] != testBaseURL {
		t.Fatalf("unexpected envelope %v", body)
	}
	cookies := recorder.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != auth.DefaultCookieName || cookies[0].Value != "token-2" {
		t.Fatalf("unexpected cookies %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatalf("expected http-only cookie")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := server.do(http.MethodPost, "/logout", tokenReader, url.Values{})

	cookies := recorder.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected expiring cookie, got %v", cookies)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, nil)
	recorder := server.do(http.MethodGet, "/healthz", "", nil)
	if recorder.Code != http.StatusOK || recorder.Body.String() != `{"status":"ok"}` {
		t.Fatalf("unexpected health response %d %s", recorder.Code, recorder.Body.String())
	}
}
