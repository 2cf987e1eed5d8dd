package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"portfolio-backend/internal/admins"
	"portfolio-backend/internal/auth"
	"portfolio-backend/internal/comments"
	"portfolio-backend/internal/content"
	"portfolio-backend/internal/events"
	"portfolio-backend/internal/guestbook"
	"portfolio-backend/internal/likes"
	"portfolio-backend/internal/users"
)

type sequenceIDGenerator struct {
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("id-%d", g.next), nil
}

type stubVerifier struct {
	claims auth.ProviderClaims
	err    error
}

func (v stubVerifier) Verify(_ context.Context, _ string) (auth.ProviderClaims, error) {
	return v.claims, v.err
}

type stubSessionManager struct {
	sessions map[string]auth.SessionClaims
}

func (m stubSessionManager) IssueSession(_ context.Context, claims auth.ProviderClaims) (string, int64, error) {
	return "issued-token", 3600, nil
}

func (m stubSessionManager) ValidateSession(token string) (auth.SessionClaims, error) {
	claims, ok := m.sessions[token]
	if !ok {
		return auth.SessionClaims{}, errors.New("unknown token")
	}
	return claims, nil
}

type routerFixture struct {
	handler http.Handler
	db      *gorm.DB
	posts   *content.Service
	admins  *admins.Service
}

func sessionClaims(subject, email, name string) auth.SessionClaims {
	claims := auth.SessionClaims{Email: email, Name: name}
	claims.Subject = subject
	return claims
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&content.Post{},
		&comments.Comment{},
		&likes.Like{},
		&guestbook.Entry{},
		&admins.Admin{},
		&users.Identity{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	clock := func() time.Time { return time.Unix(1755000000, 0).UTC() }
	ids := &sequenceIDGenerator{}
	dispatcher := events.NewDispatcher()

	contentService, err := content.NewService(content.ServiceConfig{Database: db, Clock: clock, IDProvider: ids})
	if err != nil {
		t.Fatalf("failed to construct content service: %v", err)
	}
	commentsService, err := comments.NewService(comments.ServiceConfig{Database: db, Clock: clock, IDProvider: ids, Publisher: dispatcher})
	if err != nil {
		t.Fatalf("failed to construct comments service: %v", err)
	}
	likesService, err := likes.NewService(likes.ServiceConfig{Database: db, Clock: clock, IDProvider: ids})
	if err != nil {
		t.Fatalf("failed to construct likes service: %v", err)
	}
	guestbookService, err := guestbook.NewService(guestbook.ServiceConfig{Database: db, Clock: clock, IDProvider: ids, Publisher: dispatcher})
	if err != nil {
		t.Fatalf("failed to construct guestbook service: %v", err)
	}
	adminsService, err := admins.NewService(admins.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct admins service: %v", err)
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}

	sessions := stubSessionManager{sessions: map[string]auth.SessionClaims{
		"visitor-token": sessionClaims("google:visitor", "visitor@example.com", "Visitor"),
		"owner-token":   sessionClaims("google:owner", "owner@example.com", "Owner"),
	}}

	handler, err := NewHTTPHandler(Dependencies{
		GoogleVerifier:   stubVerifier{claims: auth.ProviderClaims{Provider: auth.ProviderGoogle, Subject: "visitor", Email: "visitor@example.com", Name: "Visitor"}},
		GitHubVerifier:   stubVerifier{err: auth.ErrGitHubTokenRejected},
		Sessions:         sessions,
		ContentService:   contentService,
		CommentsService:  commentsService,
		LikesService:     likesService,
		GuestbookService: guestbookService,
		AdminsService:    adminsService,
		UsersService:     usersService,
		Dispatcher:       dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	if err := adminsService.Grant(context.Background(), "owner@example.com"); err != nil {
		t.Fatalf("failed to grant admin: %v", err)
	}

	return routerFixture{handler: handler, db: db, posts: contentService, admins: adminsService}
}

func performRequest(t *testing.T, handler http.Handler, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	payload := map[string]any{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestMutatingRoutesRequireBearerToken(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodPost, "/api/comments", "", map[string]string{"post_id": "p", "content": "hi"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", recorder.Code)
	}

	recorder = performRequest(t, fixture.handler, http.MethodPost, "/api/comments", "bogus-token", map[string]string{"post_id": "p", "content": "hi"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", recorder.Code)
	}
}

func TestEditorRoutesDenyNonListedEmails(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodGet, "/api/admin/posts", "visitor-token", nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-listed email, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	if payload["error"] != "access_denied" {
		t.Fatalf("expected access_denied body, got %v", payload)
	}

	recorder = performRequest(t, fixture.handler, http.MethodGet, "/api/admin/posts", "owner-token", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected allow-listed email to pass, got %d", recorder.Code)
	}
}

func TestAdminMeReportsGateState(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodGet, "/api/admin/me", "visitor-token", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
	if payload := decodeBody(t, recorder); payload["state"] != string(admins.GateUnverified) {
		t.Fatalf("expected unverified state, got %v", payload)
	}

	recorder = performRequest(t, fixture.handler, http.MethodGet, "/api/admin/me", "owner-token", nil)
	if payload := decodeBody(t, recorder); payload["state"] != string(admins.GateAdmin) {
		t.Fatalf("expected admin state, got %v", payload)
	}
}

func TestGetPostReturnsNotFoundForMissingSlug(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodGet, "/api/posts/missing", "", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if payload := decodeBody(t, recorder); payload["error"] != "not_found" {
		t.Fatalf("expected not_found body, got %v", payload)
	}
}

func TestGetPostServesClampedPage(t *testing.T) {
	fixture := newRouterFixture(t)

	post, err := fixture.posts.Create(context.Background(), content.PostInput{
		Title:     "Paged",
		Content:   "<p>A</p><p>__________PAGE_BREAK__________</p><p>B</p>",
		Published: true,
	})
	if err != nil {
		t.Fatalf("failed to create post: %v", err)
	}

	recorder := performRequest(t, fixture.handler, http.MethodGet, "/api/posts/"+post.Slug+"?page=5", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["page_html"] != "<p>B</p>" {
		t.Fatalf("expected clamp to last fragment, got %v", payload["page_html"])
	}
	if payload["total_pages"] != float64(2) {
		t.Fatalf("expected 2 total pages, got %v", payload["total_pages"])
	}
	if payload["page"] != float64(2) {
		t.Fatalf("expected clamped page 2, got %v", payload["page"])
	}
}

func TestCommentLifecycleOverHTTP(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodPost, "/api/comments", "visitor-token", map[string]string{
		"post_id": "post-1",
		"content": "first!",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected create status: %d body %s", recorder.Code, recorder.Body.String())
	}
	created := decodeBody(t, recorder)
	commentID, _ := created["id"].(string)
	if commentID == "" {
		t.Fatalf("create response missing id: %v", created)
	}
	if created["user_name"] != "Visitor" {
		t.Fatalf("author not stamped from session: %v", created)
	}

	recorder = performRequest(t, fixture.handler, http.MethodGet, "/api/comments?post_id=post-1", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected list status: %d", recorder.Code)
	}
	listed := decodeBody(t, recorder)
	rows, _ := listed["comments"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 comment, got %v", listed)
	}

	// Another signed-in visitor cannot delete someone else's comment, but the
	// allow-listed owner can.
	recorder = performRequest(t, fixture.handler, http.MethodDelete, "/api/comments/"+commentID, "owner-token", nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected admin delete to succeed, got %d", recorder.Code)
	}
}

func TestListCommentsRequiresPostID(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodGet, "/api/comments", "", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without post_id, got %d", recorder.Code)
	}
}

func TestLikeToggleRoundTripOverHTTP(t *testing.T) {
	fixture := newRouterFixture(t)

	body := map[string]string{"post_id": "post-1", "fingerprint": "device-a"}
	recorder := performRequest(t, fixture.handler, http.MethodPost, "/api/likes/toggle", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
	}
	status := decodeBody(t, recorder)
	if status["liked"] != true || status["count"] != float64(1) {
		t.Fatalf("unexpected toggle result: %v", status)
	}

	recorder = performRequest(t, fixture.handler, http.MethodPost, "/api/likes/toggle", "", body)
	status = decodeBody(t, recorder)
	if status["liked"] != false || status["count"] != float64(0) {
		t.Fatalf("expected round trip back to neutral, got %v", status)
	}

	recorder = performRequest(t, fixture.handler, http.MethodGet, "/api/likes?post_id=post-1", "", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without fingerprint, got %d", recorder.Code)
	}
}

func TestGoogleSignInIssuesSession(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodPost, "/auth/google", "", map[string]string{"id_token": "provider-token"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["access_token"] != "issued-token" {
		t.Fatalf("expected issued session token, got %v", payload)
	}
	if payload["token_type"] != "Bearer" {
		t.Fatalf("expected Bearer token type, got %v", payload)
	}

	var identity users.Identity
	if err := fixture.db.Where("provider = ? AND subject = ?", "google", "visitor").First(&identity).Error; err != nil {
		t.Fatalf("expected sign-in to record the identity: %v", err)
	}
}

func TestGitHubSignInRejectsBadToken(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodPost, "/auth/github", "", map[string]string{"access_token": "bad"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for rejected provider token, got %d", recorder.Code)
	}
}

func TestContactRouteDisabledWithoutRelay(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodPost, "/api/contact", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "subject": "s", "message": "m",
	})
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when no relay is configured, got %d", recorder.Code)
	}
}

func TestGuestbookCreateRequiresSession(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodPost, "/api/guestbook", "", map[string]string{"message": "hi"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", recorder.Code)
	}

	recorder = performRequest(t, fixture.handler, http.MethodPost, "/api/guestbook", "visitor-token", map[string]string{"message": "hi"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected signed-in create to succeed, got %d body %s", recorder.Code, recorder.Body.String())
	}

	recorder = performRequest(t, fixture.handler, http.MethodGet, "/api/guestbook", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected list status: %d", recorder.Code)
	}
	listed := decodeBody(t, recorder)
	entries, _ := listed["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %v", listed)
	}
}

func TestEditorPostLifecycleOverHTTP(t *testing.T) {
	fixture := newRouterFixture(t)

	recorder := performRequest(t, fixture.handler, http.MethodPost, "/api/admin/posts", "owner-token", map[string]any{
		"title":   "Draft Post",
		"content": "<p>body</p>",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("unexpected create status: %d body %s", recorder.Code, recorder.Body.String())
	}
	created := decodeBody(t, recorder)
	postID, _ := created["id"].(string)
	if postID == "" {
		t.Fatalf("create response missing id: %v", created)
	}

	// Drafts stay invisible on the public surface until published.
	recorder = performRequest(t, fixture.handler, http.MethodGet, "/api/posts/"+created["slug"].(string), "", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected draft to be hidden, got %d", recorder.Code)
	}

	recorder = performRequest(t, fixture.handler, http.MethodPost, "/api/admin/posts/"+postID+"/publish", "owner-token", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected publish status: %d", recorder.Code)
	}

	recorder = performRequest(t, fixture.handler, http.MethodGet, "/api/posts/"+created["slug"].(string), "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected published post to resolve, got %d", recorder.Code)
	}

	recorder = performRequest(t, fixture.handler, http.MethodDelete, "/api/admin/posts/"+postID, "owner-token", nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected delete status: %d", recorder.Code)
	}

	recorder = performRequest(t, fixture.handler, http.MethodDelete, "/api/admin/posts/"+postID, "owner-token", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for already-deleted post, got %d", recorder.Code)
	}
}
