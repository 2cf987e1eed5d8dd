package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingAccessToken = errors.New("access token must not be empty")
	errMissingAPIBaseURL  = errors.New("github api base url required")
	// ErrGitHubTokenRejected reports that GitHub did not accept the token.
	ErrGitHubTokenRejected = errors.New("auth: github rejected access token")
)

// GitHubVerifierConfig bundles configuration for the GitHub verifier.
type GitHubVerifierConfig struct {
	APIBaseURL string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// GitHubVerifier validates a GitHub OAuth access token by asking the GitHub
// API who it belongs to. Unlike Google there is no signed ID token to check
// offline, so this is necessarily an online lookup.
type GitHubVerifier struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGitHubVerifier constructs a verifier with validated configuration.
func NewGitHubVerifier(cfg GitHubVerifierConfig) (*GitHubVerifier, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		return nil, errMissingAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHubVerifier{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type githubUserPayload struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmailPayload struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Verify resolves the token to a GitHub account and returns its identity.
func (v *GitHubVerifier) Verify(ctx context.Context, accessToken string) (ProviderClaims, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return ProviderClaims{}, errMissingAccessToken
	}

	var user githubUserPayload
	if err := v.getJSON(ctx, accessToken, "/user", &user); err != nil {
		return ProviderClaims{}, err
	}
	if user.ID == 0 {
		return ProviderClaims{}, ErrGitHubTokenRejected
	}

	email := user.Email
	if email == "" {
		// The profile email is often hidden; the emails endpoint carries
		// the primary verified address.
		var addresses []githubEmailPayload
		if err := v.getJSON(ctx, accessToken, "/user/emails", &addresses); err != nil {
			v.logger.Debug("github emails lookup failed", zap.Error(err))
		} else {
			for _, address := range addresses {
				if address.Primary && address.Verified {
					email = address.Email
					break
				}
			}
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return ProviderClaims{
		Provider:  ProviderGitHub,
		Subject:   strconv.FormatInt(user.ID, 10),
		Email:     email,
		Name:      name,
		AvatarURL: user.AvatarURL,
		IssuedAt:  time.Now().UTC(),
	}, nil
}

func (v *GitHubVerifier) getJSON(ctx context.Context, accessToken, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	response, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
		return ErrGitHubTokenRejected
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("github request %s returned status %d", path, response.StatusCode)
	}

	return json.NewDecoder(response.Body).Decode(target)
}
