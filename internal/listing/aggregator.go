// Package listing assembles paginated article listings with their hot list and banner.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"github.com/MarcoPoloResearchLab/folio/internal/cache"
	"github.com/MarcoPoloResearchLab/folio/internal/content"
	"github.com/MarcoPoloResearchLab/folio/internal/users"
	"github.com/MarcoPoloResearchLab/folio/internal/views"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	// PageSize is the number of articles on one listing page.
	PageSize = 10
	// HotListSize is the number of hot-list entries shown next to every listing.
	HotListSize = 8

	hotListCacheKey = "folio:hotlist:v1"

	opBuild        = "listing.build"
	reasonEnrich   = "enrich_failed"
	reasonQuery    = "query_failed"
	reasonOutRange = "page_out_of_range"
)

var errMissingDependency = errors.New("listing: missing dependency")

// UserDirectory resolves account data for enrichment and the banner.
type UserDirectory interface {
	Get(ctx context.Context, userID int64) (users.User, error)
	DisplayNames(ctx context.Context, userIDs []int64) (map[int64]string, error)
}

// ContentCatalog supplies tag names and per-article comment and owner counts.
type ContentCatalog interface {
	TagNames(ctx context.Context, tagIDs []int64) (map[int64]string, error)
	CommentCounts(ctx context.Context, articleIDs []int64) (map[int64]int64, error)
	CountOwned(ctx context.Context, ownerID int64) (int64, error)
}

// ViewStats supplies view aggregates.
type ViewStats interface {
	Counts(ctx context.Context, articleIDs []int64) (map[int64]int64, error)
	HotList(ctx context.Context, limit int) ([]views.HotEntry, error)
}

// Query selects which listing to build.
type Query struct {
	Page    int
	OwnerID *int64
	Search  string
	TagID   *int64
}

// Row is one enriched listing entry.
type Row struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	OwnerID       int64     `json:"ownerId"`
	OwnerName     string    `json:"ownerName"`
	TagID         int64     `json:"tagId"`
	TagName       string    `json:"tagName"`
	RequiredLevel int       `json:"requiredLevel"`
	ViewCount     int64     `json:"viewCount"`
	CommentCount  int64     `json:"commentCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Banner is the signed-in summary shown in the page header.
type Banner struct {
	Login     bool   `json:"login"`
	Avatar    string `json:"avatar"`
	Name      string `json:"name,omitempty"`
	Level     int    `json:"level,omitempty"`
	PostCount int64  `json:"post_count,omitempty"`
}

// AnonymousBanner is shown to signed-out visitors and whenever the banner cannot be built.
func AnonymousBanner() Banner {
	return Banner{Login: false, Avatar: ""}
}

// Result is a fully assembled listing page.
type Result struct {
	Rows       []Row
	Page       int
	TotalItems int64
	TotalPages int
	HotList    []views.HotEntry
	Banner     Banner
}

// Config wires the aggregator's collaborators.
type Config struct {
	Database   *gorm.DB
	Users      UserDirectory
	Content    ContentCatalog
	Views      ViewStats
	Cache      cache.Cache
	HotListTTL time.Duration
	Logger     *zap.Logger
}

// Aggregator builds listing pages.
type Aggregator struct {
	db         *gorm.DB
	users      UserDirectory
	content    ContentCatalog
	views      ViewStats
	cache      cache.Cache
	hotListTTL time.Duration
	logger     *zap.Logger
}

// NewAggregator validates cfg and constructs an Aggregator. A nil cache or a
// non-positive TTL disables hot-list caching.
func NewAggregator(cfg Config) (*Aggregator, error) {
	switch {
	case cfg.Database == nil:
		return nil, fmt.Errorf("%w: database", errMissingDependency)
	case cfg.Users == nil:
		return nil, fmt.Errorf("%w: users", errMissingDependency)
	case cfg.Content == nil:
		return nil, fmt.Errorf("%w: content", errMissingDependency)
	case cfg.Views == nil:
		return nil, fmt.Errorf("%w: views", errMissingDependency)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		db:         cfg.Database,
		users:      cfg.Users,
		content:    cfg.Content,
		views:      cfg.Views,
		cache:      cfg.Cache,
		hotListTTL: cfg.HotListTTL,
		logger:     logger,
	}, nil
}

// ParsePage interprets a page path segment. Missing, non-numeric and values below 1
// are not ok; callers redirect to page 1.
func ParsePage(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// TotalPages returns the page count for total items; an empty listing has one page.
func TotalPages(total int64) int {
	if total <= 0 {
		return 1
	}
	return int((total + PageSize - 1) / PageSize)
}

// Build assembles the listing for query as seen by viewer (nil for anonymous).
func (a *Aggregator) Build(ctx context.Context, query Query, viewer *access.Principal) (Result, error) {
	if query.Page < 1 {
		return Result{}, access.Invalid("invalid page")
	}

	var (
		rows    []Row
		total   int64
		hotList []views.HotEntry
		banner  = AnonymousBanner()
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		rows, total, err = a.pageRows(groupCtx, query)
		return err
	})
	group.Go(func() error {
		var err error
		hotList, err = a.hotList(groupCtx)
		return err
	})
	if viewer != nil {
		group.Go(func() error {
			banner = a.banner(groupCtx, viewer.ID)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	return Result{
		Rows:       rows,
		Page:       query.Page,
		TotalItems: total,
		TotalPages: TotalPages(total),
		HotList:    hotList,
		Banner:     banner,
	}, nil
}

func (a *Aggregator) filtered(ctx context.Context, query Query) *gorm.DB {
	tx := a.db.WithContext(ctx).
		Model(&content.Article{}).
		Where("state = ? AND required_level <> ?", content.StateVisible, access.SentinelLevel)
	if query.OwnerID != nil {
		tx = tx.Where("owner_id = ?", *query.OwnerID)
	}
	if query.TagID != nil {
		tx = tx.Where("tag_id = ?", *query.TagID)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		tx = tx.Where(`(title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	return tx
}

func (a *Aggregator) pageRows(ctx context.Context, query Query) ([]Row, int64, error) {
	var total int64
	if err := a.filtered(ctx, query).Count(&total).Error; err != nil {
		a.logger.Error("listing count failed", zap.String("operation", opBuild), zap.Error(err))
		return nil, 0, access.NewServiceError(opBuild, reasonQuery, err)
	}
	if query.Page > TotalPages(total) && query.Page != 1 {
		return nil, 0, access.NewServiceError(opBuild, reasonOutRange, access.ErrPageOutOfRange)
	}

	var articles []content.Article
	if err := a.filtered(ctx, query).
		Order("updated_at DESC, id DESC").
		Limit(PageSize).
		Offset((query.Page - 1) * PageSize).
		Find(&articles).Error; err != nil {
		a.logger.Error("listing page query failed", zap.String("operation", opBuild), zap.Error(err))
		return nil, 0, access.NewServiceError(opBuild, reasonQuery, err)
	}

	rows, err := a.enrich(ctx, articles)
	if err != nil {
		a.logger.Error("listing enrichment failed", zap.String("operation", opBuild), zap.Int("page", query.Page), zap.Error(err))
		return nil, 0, access.NewServiceError("listing", reasonEnrich, err)
	}
	return rows, total, nil
}

// enrich attaches owner name, tag name, view and comment counts to every article.
// A single missing lookup fails the whole page.
func (a *Aggregator) enrich(ctx context.Context, articles []content.Article) ([]Row, error) {
	rows := make([]Row, 0, len(articles))
	if len(articles) == 0 {
		return rows, nil
	}
	articleIDs := make([]int64, 0, len(articles))
	ownerIDs := make([]int64, 0, len(articles))
	tagIDs := make([]int64, 0, len(articles))
	for _, article := range articles {
		articleIDs = append(articleIDs, article.ID)
		ownerIDs = append(ownerIDs, article.OwnerID)
		tagIDs = append(tagIDs, article.TagID)
	}

	var (
		ownerNames    map[int64]string
		tagNames      map[int64]string
		viewCounts    map[int64]int64
		commentCounts map[int64]int64
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		ownerNames, err = a.users.DisplayNames(groupCtx, ownerIDs)
		return err
	})
	group.Go(func() (err error) {
		tagNames, err = a.content.TagNames(groupCtx, tagIDs)
		return err
	})
	group.Go(func() (err error) {
		viewCounts, err = a.views.Counts(groupCtx, articleIDs)
		return err
	})
	group.Go(func() (err error) {
		commentCounts, err = a.content.CommentCounts(groupCtx, articleIDs)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, article := range articles {
		ownerName, ok := ownerNames[article.OwnerID]
		if !ok {
			return nil, fmt.Errorf("owner %d of article %d not found", article.OwnerID, article.ID)
		}
		tagName, ok := tagNames[article.TagID]
		if !ok {
			return nil, fmt.Errorf("tag %d of article %d not found", article.TagID, article.ID)
		}
		rows = append(rows, Row{
			ID:            article.ID,
			Title:         article.Title,
			OwnerID:       article.OwnerID,
			OwnerName:     ownerName,
			TagID:         article.TagID,
			TagName:       tagName,
			RequiredLevel: article.RequiredLevel,
			ViewCount:     viewCounts[article.ID],
			CommentCount:  commentCounts[article.ID],
			CreatedAt:     article.CreatedAt,
			UpdatedAt:     article.UpdatedAt,
		})
	}
	return rows, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user search text match literally inside a LIKE pattern.
func escapeLike(text string) string {
	return likeEscaper.Replace(text)
}

// InvalidateHotList drops the cached hot list so the next build recomputes it.
// Callers invoke it after any change to an article's visibility.
func (a *Aggregator) InvalidateHotList(ctx context.Context) {
	if !a.cachingHotList() {
		return
	}
	if err := a.cache.Del(ctx, hotListCacheKey); err != nil {
		a.logger.Warn("hot list cache invalidation failed", zap.Error(err))
	}
}

func (a *Aggregator) cachingHotList() bool {
	return a.cache != nil && a.hotListTTL > 0
}

func (a *Aggregator) hotList(ctx context.Context) ([]views.HotEntry, error) {
	if a.cachingHotList() {
		raw, err := a.cache.Get(ctx, hotListCacheKey)
		switch {
		case err == nil:
			var entries []views.HotEntry
			decodeErr := json.Unmarshal([]byte(raw), &entries)
			if decodeErr != nil {
				a.logger.Warn("hot list cache entry unreadable", zap.Error(decodeErr))
				break
			}
			stale, staleErr := a.staleHotList(ctx, entries)
			if staleErr != nil {
				return nil, staleErr
			}
			if !stale {
				return entries, nil
			}
		case !errors.Is(err, cache.ErrMiss):
			a.logger.Warn("hot list cache read failed", zap.Error(err))
		}
	}

	entries, err := a.views.HotList(ctx, HotListSize)
	if err != nil {
		return nil, err
	}
	if a.cachingHotList() {
		if payload, encodeErr := json.Marshal(entries); encodeErr == nil {
			if setErr := a.cache.Set(ctx, hotListCacheKey, string(payload), a.hotListTTL); setErr != nil {
				a.logger.Warn("hot list cache write failed", zap.Error(setErr))
			}
		}
	}
	return entries, nil
}

// staleHotList reports whether a cached entry has since become hidden or
// owner-only, or was removed.
func (a *Aggregator) staleHotList(ctx context.Context, entries []views.HotEntry) (bool, error) {
	if len(entries) == 0 {
		return false, nil
	}
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ArticleID)
	}
	var eligible int64
	err := a.db.WithContext(ctx).
		Model(&content.Article{}).
		Where("id IN ? AND state = ? AND required_level <> ?", ids, content.StateVisible, access.SentinelLevel).
		Count(&eligible).Error
	if err != nil {
		return false, err
	}
	return eligible != int64(len(ids)), nil
}

// banner never fails; any lookup error degrades to the anonymous banner.
func (a *Aggregator) banner(ctx context.Context, userID int64) Banner {
	user, err := a.users.Get(ctx, userID)
	if err != nil {
		a.logger.Warn("banner user lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return AnonymousBanner()
	}
	count, err := a.content.CountOwned(ctx, userID)
	if err != nil {
		a.logger.Warn("banner article count failed", zap.Int64("user_id", userID), zap.Error(err))
		return AnonymousBanner()
	}
	return Banner{
		Login:     true,
		Avatar:    user.AvatarURL,
		Name:      user.Name,
		Level:     user.PrivilegeLevel,
		PostCount: count,
	}
}
