package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"portfolio-backend/internal/admins"
	"portfolio-backend/internal/auth"
	"portfolio-backend/internal/comments"
	"portfolio-backend/internal/contact"
	"portfolio-backend/internal/content"
	"portfolio-backend/internal/events"
	"portfolio-backend/internal/guestbook"
	"portfolio-backend/internal/likes"
	"portfolio-backend/internal/users"
)

const sessionContextKey = "portfolio_session"

var (
	errMissingGoogleVerifier = errors.New("google verifier dependency required")
	errMissingGitHubVerifier = errors.New("github verifier dependency required")
	errMissingSessionManager = errors.New("session manager dependency required")
	errMissingContentService = errors.New("content service dependency required")
	errMissingAdminsService  = errors.New("admins service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// ProviderVerifier validates an OAuth provider credential.
type ProviderVerifier interface {
	Verify(ctx context.Context, token string) (auth.ProviderClaims, error)
}

// SessionManager issues and validates backend session tokens.
type SessionManager interface {
	IssueSession(ctx context.Context, claims auth.ProviderClaims) (string, int64, error)
	ValidateSession(token string) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP surface to the domain services.
type Dependencies struct {
	GoogleVerifier   ProviderVerifier
	GitHubVerifier   ProviderVerifier
	Sessions         SessionManager
	ContentService   *content.Service
	CommentsService  *comments.Service
	LikesService     *likes.Service
	GuestbookService *guestbook.Service
	AdminsService    *admins.Service
	UsersService     *users.Service
	ContactRelay     *contact.Relay
	Dispatcher       *events.Dispatcher
	AllowedOrigin    string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin handler for the whole API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GoogleVerifier == nil {
		return nil, errMissingGoogleVerifier
	}
	if deps.GitHubVerifier == nil {
		return nil, errMissingGitHubVerifier
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}
	if deps.ContentService == nil {
		return nil, errMissingContentService
	}
	if deps.AdminsService == nil {
		return nil, errMissingAdminsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	allowedOrigin := deps.AllowedOrigin
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{allowedOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		google:     deps.GoogleVerifier,
		github:     deps.GitHubVerifier,
		sessions:   deps.Sessions,
		posts:      deps.ContentService,
		comments:   deps.CommentsService,
		likes:      deps.LikesService,
		guestbook:  deps.GuestbookService,
		admins:     deps.AdminsService,
		identities: deps.UsersService,
		relay:      deps.ContactRelay,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}

	router.POST("/auth/google", handler.handleGoogleAuth)
	router.POST("/auth/github", handler.handleGitHubAuth)

	// Row access mirrors the hosted gateway the SPA talked to: list routes
	// filter by equality on post_id.
	api := router.Group("/api")
	api.GET("/posts", handler.handleListPosts)
	api.GET("/posts/:slug", handler.handleGetPost)
	api.GET("/comments", handler.handleListComments)
	api.GET("/likes", handler.handleLikeStatus)
	api.POST("/likes/toggle", handler.handleToggleLike)
	api.GET("/guestbook", handler.handleListGuestbook)
	api.POST("/contact", handler.handleContact)

	authed := api.Group("/")
	authed.Use(handler.authorizeRequest)
	authed.POST("/comments", handler.handleCreateComment)
	authed.DELETE("/comments/:id", handler.handleDeleteComment)
	authed.POST("/guestbook", handler.handleCreateGuestbookEntry)
	authed.DELETE("/guestbook/:id", handler.handleDeleteGuestbookEntry)
	authed.GET("/admin/me", handler.handleAdminMe)

	editor := authed.Group("/admin")
	editor.Use(handler.requireAdmin)
	editor.GET("/posts", handler.handleAdminListPosts)
	editor.POST("/posts", handler.handleAdminCreatePost)
	editor.PUT("/posts/:id", handler.handleAdminUpdatePost)
	editor.DELETE("/posts/:id", handler.handleAdminDeletePost)
	editor.POST("/posts/:id/publish", handler.handleAdminTogglePublish)

	router.GET("/realtime", handler.handleRealtime)

	return router, nil
}

type httpHandler struct {
	google     ProviderVerifier
	github     ProviderVerifier
	sessions   SessionManager
	posts      *content.Service
	comments   *comments.Service
	likes      *likes.Service
	guestbook  *guestbook.Service
	admins     *admins.Service
	identities *users.Service
	relay      *contact.Relay
	dispatcher *events.Dispatcher
	logger     *zap.Logger
}

type providerAuthPayload struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	var request providerAuthPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.completeSignIn(c, h.google, request.IDToken)
}

func (h *httpHandler) handleGitHubAuth(c *gin.Context) {
	var request providerAuthPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.AccessToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.completeSignIn(c, h.github, request.AccessToken)
}

func (h *httpHandler) completeSignIn(c *gin.Context, verifier ProviderVerifier, credential string) {
	claims, err := verifier.Verify(c.Request.Context(), credential)
	if err != nil {
		h.logger.Warn("provider token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if h.identities != nil {
		_, err = h.identities.RecordSignIn(c.Request.Context(), users.Profile{
			Provider:    claims.Provider,
			Subject:     claims.Subject,
			Email:       claims.Email,
			DisplayName: claims.Name,
			AvatarURL:   claims.AvatarURL,
		})
		if err != nil {
			h.logger.Warn("identity record failed", zap.Error(err))
		}
	}

	token, expiresIn, err := h.sessions.IssueSession(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Email:       claims.Email,
		Name:        claims.Name,
		AvatarURL:   claims.AvatarURL,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.sessions.ValidateSession(token)
	if err != nil {
		h.logger.Warn("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionContextKey, claims)
	c.Next()
}

// requireAdmin enforces the allow-list. Authenticated visitors whose email is
// absent stay signed-in-unverified and receive the access-denied response.
func (h *httpHandler) requireAdmin(c *gin.Context) {
	claims, ok := sessionFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	allowed, err := h.admins.IsAllowed(c.Request.Context(), claims.Email)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if !allowed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access_denied"})
		return
	}
	c.Next()
}

func sessionFromContext(c *gin.Context) (auth.SessionClaims, bool) {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}

// commentAuthor derives the denormalized author identity from the session,
// mirroring the fallbacks the sign-in providers leave open.
func commentAuthor(claims auth.SessionClaims) comments.Author {
	name := strings.TrimSpace(claims.Name)
	if name == "" && claims.Email != "" {
		name = strings.SplitN(claims.Email, "@", 2)[0]
	}
	if name == "" {
		name = "Anonymous"
	}
	return comments.Author{
		UserID:    claims.Subject,
		Name:      name,
		AvatarURL: claims.AvatarURL,
	}
}

func (h *httpHandler) handleAdminMe(c *gin.Context) {
	claims, ok := sessionFromContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"state": admins.GateSignedOut})
		return
	}
	state, err := h.admins.Resolve(c.Request.Context(), claims.Email, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state": state,
		"email": claims.Email,
		"name":  claims.Name,
	})
}
