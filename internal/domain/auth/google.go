package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

const (
	googleProvider  = "google"
	googleIssuerURL = "https://accounts.google.com"
)

// googleSignIn holds the OAuth client and a lazily discovered id token verifier.
type googleSignIn struct {
	oauth *oauth2.Config

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

// googleProfile is the subset of id token claims sign-in relies on.
type googleProfile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// newGoogleSignIn returns nil when the client is not fully configured.
func newGoogleSignIn(cfg GoogleConfig) *googleSignIn {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" || strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil
	}
	return &googleSignIn{oauth: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "email"},
		Endpoint:     google.Endpoint,
	}}
}

func (g *googleSignIn) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifier != nil {
		return g.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, googleIssuerURL)
	if err != nil {
		return nil, err
	}
	g.verifier = provider.Verifier(&oidc.Config{ClientID: g.oauth.ClientID})
	return g.verifier, nil
}

func (s *service) googleClient() (*googleSignIn, error) {
	if s.google == nil {
		return nil, apperrors.Wrap(apperrors.CodeAuthNotConfigured, "google sign-in is not configured", nil)
	}
	return s.google, nil
}

// GoogleAuthURL builds the consent URL with an S256 challenge derived from verifier.
func (s *service) GoogleAuthURL(_ context.Context, state, verifier string) (string, error) {
	g, err := s.googleClient()
	if err != nil {
		return "", err
	}
	if state == "" || verifier == "" {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "missing oauth state or verifier", nil)
	}
	return g.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

func (s *service) GoogleCallback(ctx context.Context, code, verifier string) (TokenPair, error) {
	g, err := s.googleClient()
	if err != nil {
		return TokenPair{}, err
	}
	if strings.TrimSpace(code) == "" || strings.TrimSpace(verifier) == "" {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeInvalidInput, "missing oauth code or verifier", nil)
	}
	token, err := g.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeOAuthExchange, "failed to exchange oauth code", err)
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeOAuthExchange, "missing id_token in oauth response", nil)
	}
	idVerifier, err := g.idTokenVerifier(ctx)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeOAuthExchange, "failed to discover google keys", err)
	}
	idToken, err := idVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeInvalidToken, "failed to verify id token", err)
	}
	var profile googleProfile
	if err := idToken.Claims(&profile); err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeInvalidToken, "failed to parse id token claims", err)
	}
	user, err := s.signInWithGoogle(ctx, profile)
	if err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(ctx, user)
}

// signInWithGoogle resolves the account for a verified Google profile. A known subject signs in
// directly, a verified email that matches a password account is linked to it, and anything else
// becomes a new account without a usable password.
func (s *service) signInWithGoogle(ctx context.Context, profile googleProfile) (User, error) {
	if profile.Subject == "" {
		return User{}, apperrors.Wrap(apperrors.CodeInvalidToken, "missing google subject", nil)
	}
	if !profile.EmailVerified {
		return User{}, apperrors.Wrap(apperrors.CodeInvalidCreds, "google account email not verified", nil)
	}
	email, err := normalizeEmail(profile.Email)
	if err != nil {
		return User{}, apperrors.Wrap(apperrors.CodeInvalidToken, "invalid email in id token", err)
	}

	identity, found, err := s.repo.FindIdentity(ctx, googleProvider, profile.Subject)
	if err != nil {
		return User{}, apperrors.Wrap(apperrors.CodeAuth, "failed to fetch identity", err)
	}
	if found {
		user, ok, err := s.repo.GetByID(ctx, identity.UserID)
		if err != nil {
			return User{}, apperrors.Wrap(apperrors.CodeAuth, "failed to load user", err)
		}
		if !ok {
			return User{}, apperrors.Wrap(apperrors.CodeUserNotFound, "user not found", nil)
		}
		return user, nil
	}

	user, exists, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return User{}, apperrors.Wrap(apperrors.CodeAuth, "failed to check existing user", err)
	}
	if !exists {
		hash, err := bcrypt.GenerateFromPassword([]byte(oauth2.GenerateVerifier()), bcrypt.DefaultCost)
		if err != nil {
			return User{}, apperrors.Wrap(apperrors.CodeAuth, "failed to seal account password", err)
		}
		if user, err = s.createUser(ctx, email, nicknameFromEmail(email), string(hash)); err != nil {
			return User{}, err
		}
	}
	if _, err := s.repo.LinkIdentity(ctx, Identity{
		UserID:          user.ID,
		Provider:        googleProvider,
		ProviderSubject: profile.Subject,
		ProviderEmail:   email,
	}); err != nil {
		return User{}, apperrors.Wrap(apperrors.CodeAuth, "failed to link google identity", err)
	}
	s.logger.Info("google identity linked", "userId", user.ID, "newAccount", !exists)
	return user, nil
}
