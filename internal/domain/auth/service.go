package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

// Service exposes authentication workflows.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (Profile, error)
	Login(ctx context.Context, req LoginRequest) (TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	ValidateToken(ctx context.Context, token string) (Claims, error)
	Profile(ctx context.Context, userID int64) (Profile, error)
	// Logout ends the session of claims; its access and refresh tokens stop validating.
	Logout(ctx context.Context, claims Claims) error
	GoogleAuthURL(ctx context.Context, state, verifier string) (string, error)
	GoogleCallback(ctx context.Context, code, verifier string) (TokenPair, error)
}

const (
	// defaultTier is embedded when the tier cannot be resolved, matching an account without a
	// subscription row.
	defaultTier       = "FREE"
	maxNicknameLength = 24
	minPasswordLength = 8
	fallbackNickname  = "trader"
)

type service struct {
	cfg      Config
	repo     Repository
	tiers    TierResolver
	sessions SessionStore
	google   *googleSignIn
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the auth service. tiers and sessions may be nil: tokens then carry the
// FREE tier and sign-out cannot revoke sessions.
func NewService(cfg Config, repo Repository, tiers TierResolver, sessions SessionStore, logger *slog.Logger) Service {
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &service{
		cfg:      cfg,
		repo:     repo,
		tiers:    tiers,
		sessions: sessions,
		google:   newGoogleSignIn(cfg.Google),
		logger:   logger.With("component", "auth.service"),
		now:      time.Now,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (Profile, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return Profile{}, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid email address", err)
	}
	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		nickname = nicknameFromEmail(email)
	} else if err := validateNickname(nickname); err != nil {
		return Profile{}, apperrors.Wrap(apperrors.CodeInvalidInput, err.Error(), nil)
	}
	if len(req.Password) < minPasswordLength {
		return Profile{}, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("password must be at least %d characters", minPasswordLength), nil)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Profile{}, apperrors.Wrap(apperrors.CodeAuth, "failed to hash password", err)
	}
	user, err := s.createUser(ctx, email, nickname, string(hashed))
	if err != nil {
		return Profile{}, err
	}
	s.logger.Info("account registered", "userId", user.ID)
	return toProfile(user, s.resolveTier(ctx, user.ID)), nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (TokenPair, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid email address", err)
	}
	if req.Password == "" {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeInvalidInput, "password cannot be empty", nil)
	}
	user, found, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeAuth, "failed to fetch user", err)
	}
	if !found || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeInvalidCreds, "invalid email or password", nil)
	}
	return s.issuePair(ctx, user)
}

// Refresh rotates a refresh token: the old session is revoked and a new pair carrying the
// current tier is issued.
func (s *service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, userID, err := s.parseToken(refreshToken, refreshAudience)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.checkSession(ctx, claims.SessionID); err != nil {
		return TokenPair{}, err
	}
	user, found, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeAuth, "failed to load user", err)
	}
	if !found {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeUserNotFound, "user not found", nil)
	}
	if err := s.revoke(ctx, claims.SessionID, claims.ExpiresAt.Time); err != nil {
		return TokenPair{}, err
	}
	return s.issuePair(ctx, user)
}

func (s *service) ValidateToken(ctx context.Context, token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, apperrors.Wrap(apperrors.CodeInvalidToken, "token missing", nil)
	}
	claims, userID, err := s.parseToken(token, accessAudience)
	if err != nil {
		return Claims{}, err
	}
	if err := s.checkSession(ctx, claims.SessionID); err != nil {
		return Claims{}, err
	}
	return Claims{
		UserID:    userID,
		Email:     claims.Email,
		Tier:      claims.Tier,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *service) Profile(ctx context.Context, userID int64) (Profile, error) {
	user, found, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return Profile{}, apperrors.Wrap(apperrors.CodeAuth, "failed to load profile", err)
	}
	if !found {
		return Profile{}, apperrors.Wrap(apperrors.CodeUserNotFound, "user not found", nil)
	}
	return toProfile(user, s.resolveTier(ctx, user.ID)), nil
}

func (s *service) Logout(ctx context.Context, claims Claims) error {
	if claims.SessionID == "" {
		return nil
	}
	// The refresh token of this session expires no later than this.
	if err := s.revoke(ctx, claims.SessionID, s.now().Add(s.cfg.RefreshTokenTTL)); err != nil {
		return err
	}
	s.logger.Info("signed out", "userId", claims.UserID)
	return nil
}

func (s *service) issuePair(ctx context.Context, user User) (TokenPair, error) {
	tier := s.resolveTier(ctx, user.ID)
	sessionID := newSessionID()
	access, err := s.signToken(user, tier, sessionID, accessAudience, s.cfg.TokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.signToken(user, tier, sessionID, refreshAudience, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.TokenTTL.Seconds()),
		User:         toProfile(user, tier),
	}, nil
}

// resolveTier never fails sign-in; an unreachable subscription store reads as FREE.
func (s *service) resolveTier(ctx context.Context, userID int64) string {
	if s.tiers == nil {
		return defaultTier
	}
	tier, err := s.tiers(ctx, userID)
	if err != nil || tier == "" {
		s.logger.Warn("tier lookup failed, issuing free tier", "userId", userID, "error", err)
		return defaultTier
	}
	return tier
}

func (s *service) checkSession(ctx context.Context, sessionID string) error {
	if s.sessions == nil {
		return nil
	}
	revoked, err := s.sessions.Revoked(ctx, sessionID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeAuth, "failed to check session", err)
	}
	if revoked {
		return apperrors.Wrap(apperrors.CodeInvalidToken, "session has ended", nil)
	}
	return nil
}

func (s *service) revoke(ctx context.Context, sessionID string, until time.Time) error {
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sessionID, until); err != nil {
		return apperrors.Wrap(apperrors.CodeAuth, "failed to end session", err)
	}
	return nil
}

func (s *service) createUser(ctx context.Context, email, nickname, passwordHash string) (User, error) {
	user, err := s.repo.Create(ctx, email, nickname, passwordHash)
	if errors.Is(err, ErrEmailExists) {
		return User{}, apperrors.Wrap(apperrors.CodeEmailExists, "email already registered", err)
	}
	if err != nil {
		return User{}, apperrors.Wrap(apperrors.CodeAuth, "failed to create user", err)
	}
	return user, nil
}

func toProfile(user User, tier string) Profile {
	return Profile{
		ID:        user.ID,
		Email:     user.Email,
		Nickname:  user.Nickname,
		Tier:      tier,
		CreatedAt: user.CreatedAt,
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", errors.New("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", err
	}
	if addr.Address != email {
		return "", errors.New("email must be a bare address")
	}
	return email, nil
}

func nicknameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-'
}

// validateNickname rejects '$' and other symbols so a nickname never reads as a cashtag.
func validateNickname(nickname string) error {
	if len([]rune(nickname)) > maxNicknameLength {
		return fmt.Errorf("nickname cannot exceed %d characters", maxNicknameLength)
	}
	for _, r := range nickname {
		if !nicknameRune(r) {
			return errors.New("nickname may contain only letters, digits, '.', '-' and '_'")
		}
	}
	return nil
}

// nicknameFromEmail keeps the allowed characters of the local part.
func nicknameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	count := 0
	for _, r := range local {
		if count == maxNicknameLength {
			break
		}
		if nicknameRune(r) {
			b.WriteRune(r)
			count++
		}
	}
	if b.Len() == 0 {
		return fallbackNickname
	}
	return b.String()
}
