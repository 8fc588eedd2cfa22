package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/yanqian/cashtags/internal/domain/auth"
)

// Register creates a password account.
func (h *Handler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	user, err := h.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Login exchanges email and password for tokens.
func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	resp, err := h.authSvc.Login(c.Request.Context(), req)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token into a new token pair.
func (h *Handler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	resp, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Profile returns the signed in user.
func (h *Handler) Profile(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	user, err := h.authSvc.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Logout ends the caller's session so its access and refresh tokens stop working.
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.authSvc.Logout(c.Request.Context(), claims); err != nil {
		abortWithAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GoogleLogin starts the PKCE flow and redirects to Google.
func (h *Handler) GoogleLogin(c *gin.Context) {
	state, verifier := oauth2.GenerateVerifier(), oauth2.GenerateVerifier()
	authURL, err := h.authSvc.GoogleAuthURL(c.Request.Context(), state, verifier)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	setGoogleStateCookie(c, state, verifier)
	c.Redirect(http.StatusFound, authURL)
}

// GoogleCallback completes the PKCE flow. With a post-login URL configured the tokens are handed to
// the dashboard in the URL fragment, otherwise they are returned as JSON.
func (h *Handler) GoogleCallback(c *gin.Context) {
	state, verifier, ok := takeGoogleStateCookie(c)
	if !ok || state != c.Query("state") {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_oauth_state", "sign-in session expired, please try again", nil))
		return
	}
	if errParam := c.Query("error"); errParam != "" {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "oauth_denied", errParam, nil))
		return
	}
	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "missing authorization code", nil))
		return
	}

	pair, err := h.authSvc.GoogleCallback(c.Request.Context(), code, verifier)
	if err != nil {
		abortWithAppError(c, err)
		return
	}

	target := strings.TrimSpace(h.authCfg.Google.PostLoginRedirectURL)
	if target == "" {
		c.JSON(http.StatusOK, pair)
		return
	}
	fragment := url.Values{}
	fragment.Set("token", pair.Token)
	fragment.Set("refreshToken", pair.RefreshToken)
	fragment.Set("expiresIn", strconv.FormatInt(pair.ExpiresIn, 10))
	c.Redirect(http.StatusFound, target+"#"+fragment.Encode())
}

const (
	googleStateCookie = "cashtags_google_state"
	googleStatePath   = "/api/auth/google"
	googleStateMaxAge = 5 * time.Minute
)

// setGoogleStateCookie stores "state.verifier"; both halves are base64url so '.' never occurs in them.
func setGoogleStateCookie(c *gin.Context, state, verifier string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(googleStateCookie, state+"."+verifier, int(googleStateMaxAge.Seconds()), googleStatePath, "", c.Request.TLS != nil, true)
}

// takeGoogleStateCookie reads and clears the pending sign-in.
func takeGoogleStateCookie(c *gin.Context) (state, verifier string, ok bool) {
	value, err := c.Cookie(googleStateCookie)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(googleStateCookie, "", -1, googleStatePath, "", c.Request.TLS != nil, true)
	if err != nil {
		return "", "", false
	}
	state, verifier, ok = strings.Cut(value, ".")
	return state, verifier, ok && state != "" && verifier != ""
}
