package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const templateCommentEdit = "comment_edit.html"

func (h *httpHandler) handleAddComment(c *gin.Context) {
	articleID, err := parseID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	comment, err := h.content.CreateComment(c.Request.Context(), *principalFrom(c), articleID, c.PostForm("content"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOK(c, "comment added", gin.H{"id": comment.ID, "articleId": articleID})
}

func (h *httpHandler) handleCommentEditPage(c *gin.Context) {
	commentID, err := parseID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	comment, err := h.content.OwnedComment(c.Request.Context(), *principalFrom(c), commentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.renderPage(c, http.StatusOK, templateCommentEdit, map[string]any{
		"id":        comment.ID,
		"articleId": comment.ArticleID,
		"content":   comment.Body,
	})
}

func (h *httpHandler) handleEditComment(c *gin.Context) {
	commentID, err := parseID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.content.UpdateComment(c.Request.Context(), *principalFrom(c), commentID, c.PostForm("content")); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOK(c, "comment updated", gin.H{"id": commentID})
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	commentID, err := parseID(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	articleID, err := h.content.DeleteComment(c.Request.Context(), *principalFrom(c), commentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOK(c, "comment deleted", gin.H{"id": commentID, "articleId": articleID})
}
