package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio-backend/internal/comments"
	"portfolio-backend/internal/content"
	"portfolio-backend/internal/likes"
)

func (h *httpHandler) handleListPosts(c *gin.Context) {
	posts, err := h.posts.ListPublished(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

type postResponsePayload struct {
	content.Post
	PageHTML   string `json:"page_html"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
}

// handleGetPost serves a single published post with the content fragment for
// the requested page. Missing and unpublished slugs are indistinguishable to
// the caller; query failures are not folded into that outcome.
func (h *httpHandler) handleGetPost(c *gin.Context) {
	slug := c.Param("slug")
	post, err := h.posts.GetBySlug(c.Request.Context(), slug)
	if errors.Is(err, content.ErrPostNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	page := content.ParsePageParam(c.Query("page"))
	fragment, total := content.SelectPage(post.Content, page)
	if page < 1 {
		page = 1
	}
	if page > total {
		page = total
	}

	c.JSON(http.StatusOK, postResponsePayload{
		Post:       post,
		PageHTML:   fragment,
		Page:       page,
		TotalPages: total,
	})
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	postID := strings.TrimSpace(c.Query("post_id"))
	if postID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_post_id"})
		return
	}
	rows, err := h.comments.ListByPost(c.Request.Context(), postID)
	if err != nil {
		h.logger.Error("comment list failed", zap.String("post_id", postID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": rows})
}

type createCommentPayload struct {
	PostID  string `json:"post_id"`
	Content string `json:"content"`
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	claims, ok := sessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createCommentPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PostID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	comment, err := h.comments.Create(c.Request.Context(), request.PostID, commentAuthor(claims), request.Content)
	if errors.Is(err, comments.ErrEmptyContent) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_content"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	claims, ok := sessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	isAdmin, err := h.admins.IsAllowed(c.Request.Context(), claims.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	err = h.comments.Delete(c.Request.Context(), c.Param("id"), claims.Subject, isAdmin)
	switch {
	case errors.Is(err, comments.ErrCommentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, comments.ErrNotCommentAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (h *httpHandler) handleLikeStatus(c *gin.Context) {
	postID := strings.TrimSpace(c.Query("post_id"))
	if postID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_post_id"})
		return
	}
	status, err := h.likes.Status(c.Request.Context(), postID, c.Query("fingerprint"))
	if errors.Is(err, likes.ErrMissingFingerprint) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_fingerprint"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, status)
}

type toggleLikePayload struct {
	PostID      string `json:"post_id"`
	Fingerprint string `json:"fingerprint"`
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	var request toggleLikePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PostID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	status, err := h.likes.Toggle(c.Request.Context(), request.PostID, request.Fingerprint)
	if errors.Is(err, likes.ErrMissingFingerprint) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_fingerprint"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// respondServiceError maps coded content-service failures onto 500s without
// losing the machine-readable code.
func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	var serviceErr *content.ServiceError
	if errors.As(err, &serviceErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": serviceErr.Code()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
