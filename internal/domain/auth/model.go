package auth

import "time"

// Config drives token issuance and Google sign-in.
type Config struct {
	Secret string
	// Issuer is stamped into every token and required on verification. Defaults to "cashtags".
	Issuer          string
	TokenTTL        time.Duration
	RefreshTokenTTL time.Duration
	Google          GoogleConfig
}

// GoogleConfig holds OAuth client settings for Google sign-in.
type GoogleConfig struct {
	ClientID             string
	ClientSecret         string
	RedirectURL          string
	PostLoginRedirectURL string
}

// User is a persisted account.
type User struct {
	ID           int64
	Email        string
	Nickname     string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity links an account to an external provider subject.
type Identity struct {
	ID              int64
	UserID          int64
	Provider        string
	ProviderSubject string
	ProviderEmail   string
	LinkedAt        time.Time
}

// RegisterRequest is the sign-up payload. Nickname is optional and derived from the email when blank.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
}

// LoginRequest is the password sign-in payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Profile is the public view of an account, including the subscription tier its tokens carry.
type Profile struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenPair is returned by every successful sign-in and refresh.
type TokenPair struct {
	Token        string  `json:"token"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresIn    int64   `json:"expiresIn"`
	User         Profile `json:"user"`
}

// Claims describe a verified access token. Tier is the subscription tier at issue time; it is
// refreshed whenever the token pair is rotated.
type Claims struct {
	UserID    int64
	Email     string
	Tier      string
	SessionID string
	ExpiresAt time.Time
}
