package auth

import "time"

const (
	// ProviderGoogle labels identities verified through Google ID tokens.
	ProviderGoogle = "google"
	// ProviderGitHub labels identities verified through GitHub access tokens.
	ProviderGitHub = "github"
)

// ProviderClaims exposes the validated identity data an OAuth provider
// returned: who signed in plus the profile fields stamped onto comments.
type ProviderClaims struct {
	Provider  string
	Subject   string
	Email     string
	Name      string
	AvatarURL string
	Issuer    string
	Expiry    time.Time
	IssuedAt  time.Time
}
