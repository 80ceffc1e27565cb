package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"github.com/MarcoPoloResearchLab/folio/internal/auth"
	"github.com/MarcoPoloResearchLab/folio/internal/content"
	"github.com/MarcoPoloResearchLab/folio/internal/listing"
	"github.com/MarcoPoloResearchLab/folio/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const testBaseURL = "https://folio.test"

type stubResolver struct {
	states map[string]auth.State
}

func (s stubResolver) Resolve(request *http.Request) auth.State {
	cookie, err := request.Cookie(auth.DefaultCookieName)
	if err != nil {
		return auth.Unauthenticated(auth.ErrMissingToken)
	}
	if state, ok := s.states[cookie.Value]; ok {
		return state
	}
	return auth.Unauthenticated(auth.ErrInvalidToken)
}

func (s stubResolver) CookieName() string {
	return auth.DefaultCookieName
}

type stubTokens struct{}

func (stubTokens) Issue(userID int64) (string, time.Time, error) {
	return fmt.Sprintf("token-%d", userID), time.Unix(1700086400, 0), nil
}

func (stubTokens) TTL() time.Duration {
	return 24 * time.Hour
}

type stubAccounts struct {
	AccountService
	principals map[int64]access.Principal
	names      map[int64]string
	authUser   users.User
	authErr    error
}

func (s *stubAccounts) LoadPrincipal(_ context.Context, subject int64) (access.Principal, bool, error) {
	principal, ok := s.principals[subject]
	return principal, ok, nil
}

func (s *stubAccounts) Authenticate(context.Context, string, string) (users.User, error) {
	return s.authUser, s.authErr
}

func (s *stubAccounts) DisplayNames(_ context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if name, ok := s.names[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

type stubContent struct {
	ContentService
	articles    map[int64]content.Article
	updateErr   error
	createCalls int
}

func (s *stubContent) ArticleByID(_ context.Context, articleID int64) (content.Article, error) {
	article, ok := s.articles[articleID]
	if !ok {
		return content.Article{}, access.NewServiceError("content.article_by_id", "not_found", access.ErrAuthOrNotFound)
	}
	return article, nil
}

func (s *stubContent) CreateArticle(context.Context, access.Principal, content.ArticleInput) (content.Article, error) {
	s.createCalls++
	return content.Article{ID: 100}, nil
}

func (s *stubContent) UpdateArticle(context.Context, access.Principal, int64, content.ArticleInput) error {
	return s.updateErr
}

func (s *stubContent) ToggleArticleState(context.Context, access.Principal, int64) (content.ArticleState, error) {
	return content.StateHidden, s.updateErr
}

func (s *stubContent) CommentsForArticle(context.Context, int64) ([]content.Comment, error) {
	return nil, nil
}

func (s *stubContent) TagNames(_ context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		names[id] = "general"
	}
	return names, nil
}

type stubViews struct {
	recorded  []int64
	recordErr error
}

func (s *stubViews) RecordView(_ context.Context, articleID int64) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, articleID)
	return nil
}

func (s *stubViews) Count(context.Context, int64) (int64, error) {
	return int64(len(s.recorded)), nil
}

type stubListings struct {
	result  listing.Result
	err     error
	queries []listing.Query
	// invalidations counts hot-list cache drops.
	invalidations int
}

func (s *stubListings) Build(_ context.Context, query listing.Query, _ *access.Principal) (listing.Result, error) {
	s.queries = append(s.queries, query)
	return s.result, s.err
}

func (s *stubListings) InvalidateHotList(context.Context) {
	s.invalidations++
}

type renderCall struct {
	name string
	data map[string]any
}

type stubRenderer struct {
	calls []renderCall
}

func (s *stubRenderer) Render(w io.Writer, name string, data map[string]any) error {
	s.calls = append(s.calls, renderCall{name: name, data: data})
	_, err := io.WriteString(w, "rendered "+name)
	return err
}

func (s *stubRenderer) last(t *testing.T) renderCall {
	t.Helper()
	if len(s.calls) == 0 {
		t.Fatalf("expected a rendered page")
	}
	return s.calls[len(s.calls)-1]
}

type testServer struct {
	handler  http.Handler
	accounts *stubAccounts
	content  *stubContent
	views    *stubViews
	listings *stubListings
	renderer *stubRenderer
}

const (
	tokenReader = "reader-token"
	tokenOwner  = "owner-token"
	tokenGhost  = "ghost-token"
)

func newTestServer(t *testing.T, logger *zap.Logger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	server := &testServer{
		accounts: &stubAccounts{
			principals: map[int64]access.Principal{
				1: {ID: 1, PrivilegeLevel: 1},
				2: {ID: 2, PrivilegeLevel: 5},
			},
			names:   map[int64]string{1: "owner", 2: "reader"},
			authErr: users.ErrInvalidCredentials,
		},
		content: &stubContent{
			articles: map[int64]content.Article{
				10: {ID: 10, OwnerID: 1, TagID: 1, Title: "leveled", Content: "body", RequiredLevel: 5, State: content.StateVisible},
				11: {ID: 11, OwnerID: 1, TagID: 1, Title: "private", Content: "body", RequiredLevel: access.SentinelLevel, State: content.StateVisible},
				12: {ID: 12, OwnerID: 1, TagID: 1, Title: "unlisted", Content: "body", RequiredLevel: 1, State: content.StateHidden},
			},
		},
		views:    &stubViews{},
		listings: &stubListings{result: listing.Result{Page: 1, TotalPages: 1, Banner: listing.AnonymousBanner()}},
		renderer: &stubRenderer{},
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler, err := NewHTTPHandler(Dependencies{
		Resolver: stubResolver{states: map[string]auth.State{
			tokenOwner:  auth.Authorized(1),
			tokenReader: auth.Authorized(2),
			tokenGhost:  auth.Authorized(77),
		}},
		Tokens:   stubTokens{},
		Accounts: server.accounts,
		Content:  server.content,
		Views:    server.views,
		Listings: server.listings,
		Renderer: server.renderer,
		BaseURL:  testBaseURL,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	server.handler = handler
	return server
}

var errStoreUnavailable = errors.New("sqlite: database is locked at /var/lib/folio.db")
