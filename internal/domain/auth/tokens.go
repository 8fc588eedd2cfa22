package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/yanqian/cashtags/pkg/errors"
)

const (
	defaultIssuer   = "cashtags"
	accessAudience  = "cashtags-api"
	refreshAudience = "cashtags-refresh"
)

// tokenClaims is the JWT body. Access and refresh tokens of one sign-in share a session id and
// differ only by audience and lifetime.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Tier      string `json:"tier,omitempty"`
	SessionID string `json:"sid"`
}

func newSessionID() string {
	return uuid.NewString()
}

func (s *service) signToken(user User, tier, sessionID, audience string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			Audience:  jwt.ClaimStrings{audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:     user.Email,
		Tier:      tier,
		SessionID: sessionID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeAuth, "failed to sign token", err)
	}
	return signed, nil
}

// parseToken verifies signature, issuer, audience and expiry and returns the claims with the
// numeric user id.
func (s *service) parseToken(raw, audience string) (tokenClaims, int64, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return tokenClaims{}, 0, apperrors.Wrap(apperrors.CodeInvalidToken, "token expired", err)
		}
		return tokenClaims{}, 0, apperrors.Wrap(apperrors.CodeInvalidToken, "token validation failed", err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return tokenClaims{}, 0, apperrors.Wrap(apperrors.CodeInvalidToken, "token subject invalid", err)
	}
	if claims.SessionID == "" {
		return tokenClaims{}, 0, apperrors.Wrap(apperrors.CodeInvalidToken, "token session missing", nil)
	}
	return claims, userID, nil
}
