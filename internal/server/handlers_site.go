package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio-backend/internal/contact"
	"portfolio-backend/internal/content"
	"portfolio-backend/internal/guestbook"
)

func (h *httpHandler) handleListGuestbook(c *gin.Context) {
	entries, err := h.guestbook.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type createEntryPayload struct {
	Message string `json:"message"`
}

func (h *httpHandler) handleCreateGuestbookEntry(c *gin.Context) {
	claims, ok := sessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createEntryPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	author := commentAuthor(claims)
	entry, err := h.guestbook.Create(c.Request.Context(), guestbook.Author{
		UserID:    author.UserID,
		Name:      author.Name,
		AvatarURL: author.AvatarURL,
	}, request.Message)
	if errors.Is(err, guestbook.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_message"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *httpHandler) handleDeleteGuestbookEntry(c *gin.Context) {
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

	err = h.guestbook.Delete(c.Request.Context(), c.Param("id"), claims.Subject, isAdmin)
	switch {
	case errors.Is(err, guestbook.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, guestbook.ErrNotEntryAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (h *httpHandler) handleContact(c *gin.Context) {
	if h.relay == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "contact_disabled"})
		return
	}

	var submission contact.Submission
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.relay.Submit(c.Request.Context(), submission)
	if errors.Is(err, contact.ErrInvalidSubmission) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
		return
	}
	if err != nil {
		h.logger.Warn("contact relay failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "relay_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

type postEditorPayload struct {
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	Content   string   `json:"content"`
	Excerpt   string   `json:"excerpt"`
	Tags      []string `json:"tags"`
	Published bool     `json:"published"`
}

func (p postEditorPayload) toInput() content.PostInput {
	return content.PostInput{
		Title:     p.Title,
		Slug:      p.Slug,
		Content:   p.Content,
		Excerpt:   p.Excerpt,
		Tags:      p.Tags,
		Published: p.Published,
	}
}

func (h *httpHandler) handleAdminListPosts(c *gin.Context) {
	posts, err := h.posts.ListAll(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *httpHandler) handleAdminCreatePost(c *gin.Context) {
	var request postEditorPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	post, err := h.posts.Create(c.Request.Context(), request.toInput())
	if h.respondEditorError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *httpHandler) handleAdminUpdatePost(c *gin.Context) {
	var request postEditorPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	post, err := h.posts.Update(c.Request.Context(), c.Param("id"), request.toInput())
	if h.respondEditorError(c, err) {
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *httpHandler) handleAdminDeletePost(c *gin.Context) {
	err := h.posts.Delete(c.Request.Context(), c.Param("id"))
	if h.respondEditorError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAdminTogglePublish(c *gin.Context) {
	post, err := h.posts.TogglePublish(c.Request.Context(), c.Param("id"))
	if h.respondEditorError(c, err) {
		return
	}
	c.JSON(http.StatusOK, post)
}

// respondEditorError translates editor failures; reports whether it wrote a
// response.
func (h *httpHandler) respondEditorError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, content.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, content.ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "slug_taken"})
	case errors.Is(err, content.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
	default:
		h.respondServiceError(c, err)
	}
	return true
}
