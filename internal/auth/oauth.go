package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// Profile is the normalized result of a provider exchange — the subset of
// an identity provider's user object that account linking needs. Every
// provider maps its own response shape onto this one struct, so the linker
// never sees provider-specific payloads.
type Profile struct {
	ExternalID   string // the provider's stable subject identifier
	Email        string
	Name         string // display name, may be empty
	Nickname     string // provider username/handle, may be empty
	Token        string // OAuth access token
	RefreshToken string // may be empty; not every provider issues one
}

// Provider runs the authorization-code flow for one identity provider.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. The server redirects the browser to the provider's consent page
//     (AuthURL, carrying an anti-CSRF state value).
//  2. The provider redirects back to our callback with a short-lived code.
//  3. Exchange trades the code for an access token server-to-server, then
//     fetches the user object and maps it to a Profile.
//
// The token exchange uses the client secret and happens entirely
// server-side; access tokens never reach the browser.
type Provider interface {
	Name() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// ProviderCredentials is the registration material for one OAuth app,
// carried in config. A provider with an empty ClientID is not wired into
// the router.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// NewProviders builds the provider registry, keyed by the name that
// appears in /auth/{provider}/... paths. Providers without credentials are
// skipped, so a deployment can enable any subset.
func NewProviders(googleCreds, githubCreds, facebookCreds ProviderCredentials) map[string]Provider {
	providers := make(map[string]Provider)

	if googleCreds.ClientID != "" {
		providers["google"] = NewGoogleProvider(googleCreds)
	}
	if githubCreds.ClientID != "" {
		providers["github"] = NewGitHubProvider(githubCreds)
	}
	if facebookCreds.ClientID != "" {
		providers["facebook"] = NewFacebookProvider(facebookCreds)
	}

	return providers
}

// fetchJSON performs an authenticated GET against a provider's user-info
// endpoint and decodes the JSON body into out. Shared by every provider.
func fetchJSON(ctx context.Context, config *oauth2.Config, token *oauth2.Token, url string, out any) error {
	client := config.Client(ctx, token)

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", url, err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Google

// GoogleProvider authenticates against Google's OIDC userinfo endpoint.
// Scopes: openid email profile. AccessTypeOffline asks for a refresh token
// so repeat callbacks can rotate it.
type GoogleProvider struct {
	config *oauth2.Config
}

func NewGoogleProvider(creds ProviderCredentials) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.CallbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging google code: %w", err)
	}

	// "sub" is the stable subject identifier; email can change, sub cannot.
	var info struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := fetchJSON(ctx, p.config, token, "https://www.googleapis.com/oauth2/v3/userinfo", &info); err != nil {
		return nil, fmt.Errorf("auth: google userinfo: %w", err)
	}

	if info.Sub == "" {
		return nil, fmt.Errorf("auth: google returned an empty subject")
	}

	return &Profile{
		ExternalID:   info.Sub,
		Email:        info.Email,
		Name:         info.Name,
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// ---------------------------------------------------------------------------
// GitHub

// GitHubProvider authenticates against the GitHub /user API. GitHub's
// numeric user ID is the stable identifier; the login doubles as a
// nickname for username derivation.
type GitHubProvider struct {
	config *oauth2.Config
}

func NewGitHubProvider(creds ProviderCredentials) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.CallbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
	}
}

func (p *GitHubProvider) Name() string { return "github" }

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging github code: %w", err)
	}

	var info struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"` // empty if hidden in GitHub settings
		Name  string `json:"name"`
	}
	if err := fetchJSON(ctx, p.config, token, "https://api.github.com/user", &info); err != nil {
		return nil, fmt.Errorf("auth: github user: %w", err)
	}

	if info.ID == 0 {
		return nil, fmt.Errorf("auth: github returned an invalid user (ID = 0)")
	}

	return &Profile{
		ExternalID:   strconv.FormatInt(info.ID, 10),
		Email:        info.Email,
		Name:         info.Name,
		Nickname:     info.Login,
		Token:        token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// ---------------------------------------------------------------------------
// Facebook

// FacebookProvider authenticates against the Graph API /me endpoint.
// Facebook issues no refresh tokens in this flow; RefreshToken stays empty.
type FacebookProvider struct {
	config *oauth2.Config
}

func NewFacebookProvider(creds ProviderCredentials) *FacebookProvider {
	return &FacebookProvider{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.CallbackURL,
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     facebook.Endpoint,
		},
	}
}

func (p *FacebookProvider) Name() string { return "facebook" }

func (p *FacebookProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *FacebookProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging facebook code: %w", err)
	}

	var info struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := fetchJSON(ctx, p.config, token,
		"https://graph.facebook.com/me?fields=id,name,email", &info); err != nil {
		return nil, fmt.Errorf("auth: facebook me: %w", err)
	}

	if info.ID == "" {
		return nil, fmt.Errorf("auth: facebook returned an empty user ID")
	}

	return &Profile{
		ExternalID: info.ID,
		Email:      info.Email,
		Name:       info.Name,
		Token:      token.AccessToken,
	}, nil
}
