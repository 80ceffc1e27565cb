package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"github.com/MarcoPoloResearchLab/folio/internal/auth"
	"github.com/MarcoPoloResearchLab/folio/internal/content"
	"github.com/MarcoPoloResearchLab/folio/internal/listing"
	"github.com/MarcoPoloResearchLab/folio/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingResolver = errors.New("auth resolver dependency required")
	errMissingIssuer   = errors.New("token issuer dependency required")
	errMissingAccounts = errors.New("account service dependency required")
	errMissingContent  = errors.New("content service dependency required")
	errMissingViews    = errors.New("view recorder dependency required")
	errMissingListings = errors.New("listing builder dependency required")
	errMissingRenderer = errors.New("renderer dependency required")
)

// StateResolver decodes the auth state carried by a request.
type StateResolver interface {
	Resolve(request *http.Request) auth.State
	CookieName() string
}

// TokenIssuer mints session tokens for signed-in accounts.
type TokenIssuer interface {
	Issue(userID int64) (string, time.Time, error)
	TTL() time.Duration
}

// AccountService manages accounts and principals.
type AccountService interface {
	Register(ctx context.Context, input users.RegisterInput) (users.User, error)
	Authenticate(ctx context.Context, name, password string) (users.User, error)
	Get(ctx context.Context, userID int64) (users.User, error)
	DisplayNames(ctx context.Context, userIDs []int64) (map[int64]string, error)
	LoadPrincipal(ctx context.Context, subject int64) (access.Principal, bool, error)
	UpdateProfile(ctx context.Context, principal access.Principal, input users.ProfileInput) (users.User, error)
}

// ContentService reads and mutates articles, comments and tags.
type ContentService interface {
	CreateArticle(ctx context.Context, principal access.Principal, input content.ArticleInput) (content.Article, error)
	ArticleByID(ctx context.Context, articleID int64) (content.Article, error)
	OwnedArticle(ctx context.Context, principal access.Principal, articleID int64) (content.Article, error)
	UpdateArticle(ctx context.Context, principal access.Principal, articleID int64, input content.ArticleInput) error
	ToggleArticleState(ctx context.Context, principal access.Principal, articleID int64) (content.ArticleState, error)
	CreateComment(ctx context.Context, principal access.Principal, articleID int64, body string) (content.Comment, error)
	OwnedComment(ctx context.Context, principal access.Principal, commentID int64) (content.Comment, error)
	UpdateComment(ctx context.Context, principal access.Principal, commentID int64, body string) error
	DeleteComment(ctx context.Context, principal access.Principal, commentID int64) (int64, error)
	CommentsForArticle(ctx context.Context, articleID int64) ([]content.Comment, error)
	Tags(ctx context.Context) ([]content.Tag, error)
	TagNames(ctx context.Context, tagIDs []int64) (map[int64]string, error)
}

// ViewRecorder records and reports article views.
type ViewRecorder interface {
	RecordView(ctx context.Context, articleID int64) error
	Count(ctx context.Context, articleID int64) (int64, error)
}

// ListingBuilder assembles listing pages and owns the cached hot list.
type ListingBuilder interface {
	Build(ctx context.Context, query listing.Query, viewer *access.Principal) (listing.Result, error)
	InvalidateHotList(ctx context.Context)
}

// Dependencies wires the HTTP layer to its collaborators.
type Dependencies struct {
	Resolver       StateResolver
	Tokens         TokenIssuer
	Accounts       AccountService
	Content        ContentService
	Views          ViewRecorder
	Listings       ListingBuilder
	Renderer       Renderer
	BaseURL        string
	AllowedOrigins []string
	SecureCookies  bool
	Logger         *zap.Logger
}

// NewHTTPHandler builds the site router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Resolver == nil:
		return nil, errMissingResolver
	case deps.Tokens == nil:
		return nil, errMissingIssuer
	case deps.Accounts == nil:
		return nil, errMissingAccounts
	case deps.Content == nil:
		return nil, errMissingContent
	case deps.Views == nil:
		return nil, errMissingViews
	case deps.Listings == nil:
		return nil, errMissingListings
	case deps.Renderer == nil:
		return nil, errMissingRenderer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &httpHandler{
		resolver:      deps.Resolver,
		tokens:        deps.Tokens,
		accounts:      deps.Accounts,
		content:       deps.Content,
		views:         deps.Views,
		listings:      deps.Listings,
		renderer:      deps.Renderer,
		baseURL:       deps.BaseURL,
		secureCookies: deps.SecureCookies,
		logger:        logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}
	router.Use(handler.resolveViewer)

	router.GET("/healthz", handler.handleHealth)
	router.GET("/", handler.handleRoot)
	router.GET("/home", handler.handleHome)
	router.GET("/home/:page", handler.handleHome)
	router.GET("/search", handler.handleSearch)
	router.GET("/search/:page", handler.handleSearch)
	router.GET("/article/:id", handler.handleArticle)
	router.POST("/login", handler.handleLogin)
	router.POST("/logout", handler.handleLogout)
	router.GET("/register", handler.handleRegisterPage)
	router.POST("/register", handler.handleRegister)

	protected := router.Group("/")
	protected.Use(handler.accessGuard)
	protected.GET("/list", handler.handleMyList)
	protected.GET("/list/:page", handler.handleMyList)
	protected.GET("/add", handler.handleAddPage)
	protected.POST("/add", handler.handleAddArticle)
	protected.GET("/edit/:id", handler.handleEditPage)
	protected.POST("/edit/:id", handler.handleEditArticle)
	protected.POST("/delete/:id", handler.handleToggleArticle)
	protected.POST("/comment/:id", handler.handleAddComment)
	protected.GET("/commentedit/:id", handler.handleCommentEditPage)
	protected.POST("/editcomment/:id", handler.handleEditComment)
	protected.POST("/delcomment/:id", handler.handleDeleteComment)
	protected.GET("/profile", handler.handleProfilePage)
	protected.POST("/profile", handler.handleUpdateProfile)

	return router, nil
}

type httpHandler struct {
	resolver      StateResolver
	tokens        TokenIssuer
	accounts      AccountService
	content       ContentService
	views         ViewRecorder
	listings      ListingBuilder
	renderer      Renderer
	baseURL       string
	secureCookies bool
	logger        *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleRoot(c *gin.Context) {
	c.Redirect(http.StatusFound, "/home/1")
}
