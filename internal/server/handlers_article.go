package server

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/folio/internal/access"
	"github.com/MarcoPoloResearchLab/folio/internal/content"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	templateArticle = "article.html"
	templateAdd     = "add.html"
	templateEdit    = "edit.html"
)

func parseID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, access.Invalid("invalid id")
	}
	return id, nil
}

// handleArticle serves the read path. The visibility decision is made per request;
// hidden articles stay readable by id. A missing id and a denied read get the same
// answer so the page never reveals that a private article exists.
func (h *httpHandler) handleArticle(c *gin.Context) {
	articleID, err := parseID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	article, err := h.content.ArticleByID(ctx, articleID)
	if errors.Is(err, access.ErrAuthOrNotFound) {
		h.deny(c, msgNoPermission)
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	principal := principalFrom(c)
	decision := access.CanRead(access.Gate{OwnerID: article.OwnerID, RequiredLevel: article.RequiredLevel}, principal)
	if !decision.Permitted() {
		h.deny(c, msgNoPermission)
		return
	}
	if decision.RecordsView() {
		if err := h.views.RecordView(ctx, article.ID); err != nil {
			h.logger.Warn("view recording failed", zap.Int64("article_id", article.ID), zap.Error(err))
		}
	}

	comments, err := h.content.CommentsForArticle(ctx, article.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ownerIDs := []int64{article.OwnerID}
	for _, comment := range comments {
		ownerIDs = append(ownerIDs, comment.OwnerID)
	}
	names, err := h.accounts.DisplayNames(ctx, ownerIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	tagNames, err := h.content.TagNames(ctx, []int64{article.TagID})
	if err != nil {
		h.respondError(c, err)
		return
	}
	viewCount, err := h.views.Count(ctx, article.ID)
	if err != nil {
		h.logger.Warn("view count failed", zap.Int64("article_id", article.ID), zap.Error(err))
	}
	body, err := content.RenderMarkup(article.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}

	viewerID := int64(0)
	if principal != nil {
		viewerID = principal.ID
	}
	commentViews := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		commentViews = append(commentViews, map[string]any{
			"id":        comment.ID,
			"ownerName": names[comment.OwnerID],
			"body":      template.HTML(comment.MarkupBody),
			"createdAt": comment.CreatedAt,
			"mine":      comment.OwnerID == viewerID,
		})
	}

	h.renderPage(c, http.StatusOK, templateArticle, map[string]any{
		"id":        article.ID,
		"title":     article.Title,
		"body":      template.HTML(body),
		"ownerName": names[article.OwnerID],
		"tagName":   tagNames[article.TagID],
		"hidden":    article.State == content.StateHidden,
		"ownerOnly": article.RequiredLevel == access.SentinelLevel,
		"mine":      article.OwnerID == viewerID,
		"viewCount": viewCount,
		"updatedAt": article.UpdatedAt,
		"comments":  commentViews,
	})
}

func articleInputFromForm(c *gin.Context) (content.ArticleInput, error) {
	tagID, err := strconv.ParseInt(strings.TrimSpace(c.PostForm("tagId")), 10, 64)
	if err != nil {
		return content.ArticleInput{}, access.Invalid("tag is required")
	}
	level := access.AnonymousLevel
	if rawLevel := strings.TrimSpace(c.PostForm("level")); rawLevel != "" {
		level, err = strconv.Atoi(rawLevel)
		if err != nil {
			return content.ArticleInput{}, access.Invalid("invalid required level")
		}
	}
	return content.ArticleInput{
		TagID:         tagID,
		Title:         c.PostForm("title"),
		Content:       c.PostForm("content"),
		RequiredLevel: level,
	}, nil
}

func (h *httpHandler) handleAddPage(c *gin.Context) {
	tags, err := h.content.Tags(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.renderPage(c, http.StatusOK, templateAdd, map[string]any{
		"tags":          tags,
		"sentinelLevel": access.SentinelLevel,
	})
}

func (h *httpHandler) handleAddArticle(c *gin.Context) {
	input, err := articleInputFromForm(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	article, err := h.content.CreateArticle(c.Request.Context(), *principalFrom(c), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOK(c, "article created", gin.H{"id": article.ID})
}

func (h *httpHandler) handleEditPage(c *gin.Context) {
	articleID, err := parseID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	article, err := h.content.OwnedArticle(ctx, *principalFrom(c), articleID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	tags, err := h.content.Tags(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.renderPage(c, http.StatusOK, templateEdit, map[string]any{
		"article":       article,
		"tags":          tags,
		"sentinelLevel": access.SentinelLevel,
	})
}

func (h *httpHandler) handleEditArticle(c *gin.Context) {
	articleID, err := parseID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	input, err := articleInputFromForm(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.content.UpdateArticle(c.Request.Context(), *principalFrom(c), articleID, input); err != nil {
		h.respondError(c, err)
		return
	}
	h.listings.InvalidateHotList(c.Request.Context())
	h.respondOK(c, "article updated", gin.H{"id": articleID})
}

// handleToggleArticle flips an owned article between listed and hidden.
func (h *httpHandler) handleToggleArticle(c *gin.Context) {
	articleID, err := parseID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	state, err := h.content.ToggleArticleState(c.Request.Context(), *principalFrom(c), articleID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.listings.InvalidateHotList(c.Request.Context())
	h.respondOK(c, "article "+state.String(), gin.H{"id": articleID, "state": state.String()})
}
