package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew       = "content.service.new"
	opCreateArticle    = "content.create_article"
	opArticleByID      = "content.article_by_id"
	opOwnedArticle     = "content.owned_article"
	opUpdateArticle    = "content.update_article"
	opToggleState      = "content.toggle_article_state"
	opCreateComment    = "content.create_comment"
	opOwnedComment     = "content.owned_comment"
	opUpdateComment    = "content.update_comment"
	opDeleteComment    = "content.delete_comment"
	opListComments     = "content.list_comments"
	opCommentCounts    = "content.comment_counts"
	opTags             = "content.tags"
	opCountOwned       = "content.count_owned"
	queryIDOwner       = "id = ? AND owner_id = ?"
	reasonNotOwned     = "not_owned"
	reasonQueryFailed  = "query_failed"
	reasonUpdateFailed = "update_failed"
	reasonInsertFailed = "insert_failed"
	reasonMarkupFailed = "markup_failed"
	maxTitleLength     = 200
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies required for content operations.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns article, comment and tag rows. Every mutation of an existing row is
// authorized by a single id+owner predicate.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the content service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, access.NewServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// ArticleInput carries the editable article fields.
type ArticleInput struct {
	TagID         int64
	Title         string
	Content       string
	RequiredLevel int
}

func (s *Service) validateArticle(ctx context.Context, operation string, input ArticleInput) (ArticleInput, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return input, access.Invalid("title is required")
	}
	if utf8.RuneCountInString(input.Title) > maxTitleLength {
		return input, access.Invalid("title is too long")
	}
	if strings.TrimSpace(input.Content) == "" {
		return input, access.Invalid("content is required")
	}
	if !access.ValidRequiredLevel(input.RequiredLevel) {
		return input, access.Invalid("invalid required level")
	}
	if input.TagID <= 0 {
		return input, access.Invalid("tag is required")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Tag{}).Where("id = ?", input.TagID).Count(&count).Error; err != nil {
		s.logError(operation, "tag_lookup_failed", err, zap.Int64("tag_id", input.TagID))
		return input, access.NewServiceError(operation, "tag_lookup_failed", err)
	}
	if count == 0 {
		return input, access.Invalid("unknown tag")
	}
	return input, nil
}

// CreateArticle stores a new visible article owned by principal.
func (s *Service) CreateArticle(ctx context.Context, principal access.Principal, input ArticleInput) (Article, error) {
	input, err := s.validateArticle(ctx, opCreateArticle, input)
	if err != nil {
		return Article{}, err
	}
	now := s.clock().UTC()
	article := Article{
		OwnerID:       principal.ID,
		TagID:         input.TagID,
		Title:         input.Title,
		Content:       input.Content,
		RequiredLevel: input.RequiredLevel,
		State:         StateVisible,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&article).Error; err != nil {
		s.logError(opCreateArticle, reasonInsertFailed, err, zap.Int64("owner_id", principal.ID))
		return Article{}, access.NewServiceError(opCreateArticle, reasonInsertFailed, err)
	}
	return article, nil
}

// ArticleByID loads an article for the read path. Hidden articles are returned; the
// caller applies the visibility policy.
func (s *Service) ArticleByID(ctx context.Context, articleID int64) (Article, error) {
	var article Article
	err := s.db.WithContext(ctx).Where("id = ?", articleID).Take(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Article{}, access.NewServiceError(opArticleByID, "not_found", access.ErrAuthOrNotFound)
	}
	if err != nil {
		s.logError(opArticleByID, reasonQueryFailed, err, zap.Int64("article_id", articleID))
		return Article{}, access.NewServiceError(opArticleByID, reasonQueryFailed, err)
	}
	return article, nil
}

// OwnedArticle loads an article only if principal owns it.
func (s *Service) OwnedArticle(ctx context.Context, principal access.Principal, articleID int64) (Article, error) {
	var article Article
	err := s.db.WithContext(ctx).Where(queryIDOwner, articleID, principal.ID).Take(&article).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Article{}, access.NewServiceError(opOwnedArticle, reasonNotOwned, access.ErrAuthOrNotFound)
	}
	if err != nil {
		s.logError(opOwnedArticle, reasonQueryFailed, err, zap.Int64("article_id", articleID))
		return Article{}, access.NewServiceError(opOwnedArticle, reasonQueryFailed, err)
	}
	return article, nil
}

// UpdateArticle rewrites an owned article's fields.
func (s *Service) UpdateArticle(ctx context.Context, principal access.Principal, articleID int64, input ArticleInput) error {
	input, err := s.validateArticle(ctx, opUpdateArticle, input)
	if err != nil {
		return err
	}
	return s.updateOwned(ctx, opUpdateArticle, &Article{}, articleID, principal.ID, map[string]interface{}{
		"tag_id":         input.TagID,
		"title":          input.Title,
		"content":        input.Content,
		"required_level": input.RequiredLevel,
		"updated_at":     s.clock().UTC(),
	})
}

// ToggleArticleState flips an owned article between visible and hidden and returns
// the new state.
func (s *Service) ToggleArticleState(ctx context.Context, principal access.Principal, articleID int64) (ArticleState, error) {
	err := s.updateOwned(ctx, opToggleState, &Article{}, articleID, principal.ID, map[string]interface{}{
		"state":      gorm.Expr("1 - state"),
		"updated_at": s.clock().UTC(),
	})
	if err != nil {
		return StateHidden, err
	}
	article, err := s.OwnedArticle(ctx, principal, articleID)
	if err != nil {
		return StateHidden, err
	}
	return article.State, nil
}

// CreateComment attaches a comment to an article the principal is allowed to read.
func (s *Service) CreateComment(ctx context.Context, principal access.Principal, articleID int64, body string) (Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, access.Invalid("comment is required")
	}
	article, err := s.ArticleByID(ctx, articleID)
	if err != nil {
		return Comment{}, err
	}
	gate := access.Gate{OwnerID: article.OwnerID, RequiredLevel: article.RequiredLevel}
	if !access.CanRead(gate, &principal).Permitted() {
		return Comment{}, access.NewServiceError(opCreateComment, "not_readable", access.ErrAuthOrNotFound)
	}

	markup, err := RenderMarkup(body)
	if err != nil {
		s.logError(opCreateComment, reasonMarkupFailed, err, zap.Int64("article_id", articleID))
		return Comment{}, access.NewServiceError(opCreateComment, reasonMarkupFailed, err)
	}
	now := s.clock().UTC()
	comment := Comment{
		ArticleID:  articleID,
		OwnerID:    principal.ID,
		Body:       body,
		MarkupBody: markup,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logError(opCreateComment, reasonInsertFailed, err, zap.Int64("article_id", articleID))
		return Comment{}, access.NewServiceError(opCreateComment, reasonInsertFailed, err)
	}
	return comment, nil
}

// OwnedComment loads a comment only if principal owns it.
func (s *Service) OwnedComment(ctx context.Context, principal access.Principal, commentID int64) (Comment, error) {
	var comment Comment
	err := s.db.WithContext(ctx).Where(queryIDOwner, commentID, principal.ID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, access.NewServiceError(opOwnedComment, reasonNotOwned, access.ErrAuthOrNotFound)
	}
	if err != nil {
		s.logError(opOwnedComment, reasonQueryFailed, err, zap.Int64("comment_id", commentID))
		return Comment{}, access.NewServiceError(opOwnedComment, reasonQueryFailed, err)
	}
	return comment, nil
}

// UpdateComment rewrites an owned comment's body.
func (s *Service) UpdateComment(ctx context.Context, principal access.Principal, commentID int64, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return access.Invalid("comment is required")
	}
	markup, err := RenderMarkup(body)
	if err != nil {
		s.logError(opUpdateComment, reasonMarkupFailed, err, zap.Int64("comment_id", commentID))
		return access.NewServiceError(opUpdateComment, reasonMarkupFailed, err)
	}
	return s.updateOwned(ctx, opUpdateComment, &Comment{}, commentID, principal.ID, map[string]interface{}{
		"body":        body,
		"markup_body": markup,
		"updated_at":  s.clock().UTC(),
	})
}

// DeleteComment soft-deletes an owned comment and returns the article it belonged to.
func (s *Service) DeleteComment(ctx context.Context, principal access.Principal, commentID int64) (int64, error) {
	comment, err := s.OwnedComment(ctx, principal, commentID)
	if err != nil {
		return 0, err
	}
	result := s.db.WithContext(ctx).Where(queryIDOwner, commentID, principal.ID).Delete(&Comment{})
	if result.Error != nil {
		s.logError(opDeleteComment, reasonUpdateFailed, result.Error, zap.Int64("comment_id", commentID))
		return 0, access.NewServiceError(opDeleteComment, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, access.NewServiceError(opDeleteComment, reasonNotOwned, access.ErrAuthOrNotFound)
	}
	return comment.ArticleID, nil
}

// CommentsForArticle lists live comments on an article, oldest first.
func (s *Service) CommentsForArticle(ctx context.Context, articleID int64) ([]Comment, error) {
	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("article_id = ?", articleID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error; err != nil {
		s.logError(opListComments, reasonQueryFailed, err, zap.Int64("article_id", articleID))
		return nil, access.NewServiceError(opListComments, reasonQueryFailed, err)
	}
	return comments, nil
}

type articleCount struct {
	ArticleID int64 `gorm:"column:article_id"`
	Total     int64 `gorm:"column:total"`
}

// CommentCounts returns the number of live comments per article; ids without
// comments map to zero.
func (s *Service) CommentCounts(ctx context.Context, articleIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(articleIDs))
	if len(articleIDs) == 0 {
		return counts, nil
	}
	var rows []articleCount
	if err := s.db.WithContext(ctx).
		Model(&Comment{}).
		Select("article_id, COUNT(*) AS total").
		Where("article_id IN ?", articleIDs).
		Group("article_id").
		Scan(&rows).Error; err != nil {
		s.logError(opCommentCounts, reasonQueryFailed, err)
		return nil, access.NewServiceError(opCommentCounts, reasonQueryFailed, err)
	}
	for _, id := range articleIDs {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.ArticleID] = row.Total
	}
	return counts, nil
}

// Tags lists all tags by name.
func (s *Service) Tags(ctx context.Context) ([]Tag, error) {
	var tags []Tag
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&tags).Error; err != nil {
		s.logError(opTags, reasonQueryFailed, err)
		return nil, access.NewServiceError(opTags, reasonQueryFailed, err)
	}
	return tags, nil
}

// TagNames maps each requested tag id that exists to its name.
func (s *Service) TagNames(ctx context.Context, tagIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(tagIDs))
	if len(tagIDs) == 0 {
		return names, nil
	}
	var tags []Tag
	if err := s.db.WithContext(ctx).Where("id IN ?", tagIDs).Find(&tags).Error; err != nil {
		s.logError(opTags, reasonQueryFailed, err)
		return nil, access.NewServiceError(opTags, reasonQueryFailed, err)
	}
	for _, tag := range tags {
		names[tag.ID] = tag.Name
	}
	return names, nil
}

// CountOwned returns how many articles ownerID has written, in any state.
func (s *Service) CountOwned(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Article{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		s.logError(opCountOwned, reasonQueryFailed, err, zap.Int64("owner_id", ownerID))
		return 0, access.NewServiceError(opCountOwned, reasonQueryFailed, err)
	}
	return count, nil
}

// updateOwned applies updates to the row matching id and owner in one statement.
// No match is reported as ErrAuthOrNotFound whether the row is missing or foreign.
func (s *Service) updateOwned(ctx context.Context, operation string, model interface{}, id, ownerID int64, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(model).Where(queryIDOwner, id, ownerID).Updates(updates)
	if result.Error != nil {
		s.logError(operation, reasonUpdateFailed, result.Error, zap.Int64("id", id), zap.Int64("owner_id", ownerID))
		return access.NewServiceError(operation, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return access.NewServiceError(operation, reasonNotOwned, fmt.Errorf("%w: id %d", access.ErrAuthOrNotFound, id))
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("content service error", attrs...)
}
