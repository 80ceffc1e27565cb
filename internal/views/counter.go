// Package views records article reads and derives view counts and the hot list.
package views

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"github.com/MarcoPoloResearchLab/folio/internal/content"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opRecordView = "views.record"
	opCounts     = "views.counts"
	opHotList    = "views.hot_list"

	// DefaultHotListSize is the number of entries the site shows in its hot list.
	DefaultHotListSize = 8
)

var errMissingDatabase = errors.New("database handle is required")

// ViewEvent is one recorded read of an article. Rows are only ever appended.
type ViewEvent struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ArticleID  int64     `gorm:"column:article_id;not null;index"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ViewEvent) TableName() string {
	return "view_events"
}

// HotEntry is one ranked hot-list article.
type HotEntry struct {
	ArticleID int64  `json:"articleId" gorm:"column:article_id"`
	Title     string `json:"title" gorm:"column:title"`
	Views     int64  `json:"views" gorm:"column:views"`
}

// CounterConfig describes the dependencies of a Counter.
type CounterConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Counter appends view events and aggregates them.
type Counter struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewCounter constructs a Counter.
func NewCounter(cfg CounterConfig) (*Counter, error) {
	if cfg.Database == nil {
		return nil, access.NewServiceError("views.counter.new", "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{db: cfg.Database, clock: clock, logger: logger}, nil
}

// RecordView appends one view event for articleID. Repeated reads are not deduplicated.
func (c *Counter) RecordView(ctx context.Context, articleID int64) error {
	event := ViewEvent{ArticleID: articleID, OccurredAt: c.clock().UTC()}
	if err := c.db.WithContext(ctx).Create(&event).Error; err != nil {
		return access.NewServiceError(opRecordView, "insert_failed", err)
	}
	return nil
}

// Count returns the number of recorded views of articleID.
func (c *Counter) Count(ctx context.Context, articleID int64) (int64, error) {
	counts, err := c.Counts(ctx, []int64{articleID})
	if err != nil {
		return 0, err
	}
	return counts[articleID], nil
}

type viewCount struct {
	ArticleID int64 `gorm:"column:article_id"`
	Total     int64 `gorm:"column:total"`
}

// Counts returns view totals keyed by article id; ids without views map to zero.
func (c *Counter) Counts(ctx context.Context, articleIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(articleIDs))
	if len(articleIDs) == 0 {
		return counts, nil
	}
	var rows []viewCount
	if err := c.db.WithContext(ctx).
		Model(&ViewEvent{}).
		Select("article_id, COUNT(*) AS total").
		Where("article_id IN ?", articleIDs).
		Group("article_id").
		Scan(&rows).Error; err != nil {
		c.logger.Error("view count query failed", zap.String("operation", opCounts), zap.Error(err))
		return nil, access.NewServiceError(opCounts, "query_failed", err)
	}
	for _, id := range articleIDs {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.ArticleID] = row.Total
	}
	return counts, nil
}

// HotList ranks listable articles by view count, highest first, ties broken by id.
// Articles that were never viewed still qualify.
func (c *Counter) HotList(ctx context.Context, limit int) ([]HotEntry, error) {
	if limit <= 0 {
		limit = DefaultHotListSize
	}
	entries := make([]HotEntry, 0, limit)
	err := c.db.WithContext(ctx).
		Table("articles AS a").
		Select("a.id AS article_id, a.title AS title, COUNT(v.id) AS views").
		Joins("LEFT JOIN view_events AS v ON v.article_id = a.id").
		Where("a.state = ? AND a.required_level <> ?", content.StateVisible, access.SentinelLevel).
		Group("a.id, a.title").
		Order("views DESC, a.id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		c.logger.Error("hot list query failed", zap.String("operation", opHotList), zap.Error(err))
		return nil, access.NewServiceError(opHotList, "query_failed", err)
	}
	return entries, nil
}
