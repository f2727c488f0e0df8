// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/roomie/internal/auth"
	"github.com/hitoshi/roomie/internal/middleware"
	"github.com/hitoshi/roomie/internal/model"
)

// oauthSessionCookie はOAuth stateを紐付けるブラウザセッションIDのCookie名。
const oauthSessionCookie = "oauth_session"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) (*model.User, *auth.Credential, error)
	Signin(ctx context.Context, in auth.SigninInput) (*model.User, *auth.Credential, error)
	BeginOAuth(ctx context.Context) (loginURL, browserSessionID string, err error)
	CompleteOAuth(ctx context.Context, browserSessionID, state, code string) (*auth.OAuthResult, error)
	VerifyHandoff(ctx context.Context, code string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL   string
	CookieDomain  string
	CookieSecure  bool
	OAuthStateTTL time.Duration
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.OAuthStateTTL <= 0 {
		config.OAuthStateTTL = auth.DefaultOAuthStateTTL
	}
	config.FrontendURL = strings.TrimRight(config.FrontendURL, "/")
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type userResponse struct {
	User *model.User `json:"user"`
}

type verifyStateRequest struct {
	State string `json:"state"`
}

// Signup はパスワードでユーザーを登録する。
// POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupInput
	if !decodeJSON(w, r, &req) {
		return
	}
	user, cred, err := h.service.Signup(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.setTokenCookie(w, cred)
	writeJSON(w, http.StatusCreated, userResponse{User: user})
}

// Signin はパスワードでログインする。
// POST /api/v1/auth/signin
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req auth.SigninInput
	if !decodeJSON(w, r, &req) {
		return
	}
	user, cred, err := h.service.Signin(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.setTokenCookie(w, cred)
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// Logout は資格情報Cookieを削除する。サーバー側で失効させる仕組みはない。
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, middleware.TokenCookieName, http.SameSiteStrictMode)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /api/v1/auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	loginURL, sid, err := h.service.BeginOAuth(r.Context())
	if err != nil {
		slog.Error("failed to begin oauth", slog.String("error", err.Error()))
		h.redirectSigninError(w, r, "Could not start Google sign-in")
		return
	}

	// stateはサーバー側に保存し、ブラウザにはセッションIDのみを渡す
	http.SetCookie(w, &http.Cookie{
		Name:     oauthSessionCookie,
		Value:    sid,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.config.OAuthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /api/v1/auth/google/callback?code=xxx&state=yyy
//
// stateが一致しない場合は403のJSONを返す。その他の失敗はフロントエンドの
// サインイン画面へエラーメッセージ付きでリダイレクトする。
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var sid string
	if c, err := r.Cookie(oauthSessionCookie); err == nil {
		sid = c.Value
	}
	h.clearCookie(w, oauthSessionCookie, http.SameSiteLaxMode)

	if providerErr := q.Get("error"); providerErr != "" {
		slog.Info("oauth denied by provider", slog.String("error", providerErr))
		h.redirectSigninError(w, r, "Google sign-in was cancelled")
		return
	}

	result, err := h.service.CompleteOAuth(r.Context(), sid, q.Get("state"), q.Get("code"))
	if err != nil {
		var apiErr *model.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeStateMismatch:
			middleware.WriteErrorResponse(w, http.StatusForbidden, apiErr)
		case errors.As(err, &apiErr):
			h.redirectSigninError(w, r, apiErr.Message)
		case errors.Is(err, auth.ErrEmailNotVerified):
			h.redirectSigninError(w, r, "Google account email is not verified")
		default:
			slog.Error("oauth callback failed", slog.String("error", err.Error()))
			h.redirectSigninError(w, r, "Google sign-in failed")
		}
		return
	}

	h.setTokenCookie(w, result.Credential)
	target := h.config.FrontendURL + "/auth-callback?state=" + url.QueryEscape(result.HandoffCode)
	http.Redirect(w, r, target, http.StatusFound)
}

// VerifyState はハンドオフコードを消費する。成功は1つのコードにつき1回だけ。
// POST /api/v1/auth/verify-state
func (h *AuthHandler) VerifyState(w http.ResponseWriter, r *http.Request) {
	var req verifyStateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.VerifyHandoff(r.Context(), req.State); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "State verified"})
}

// setTokenCookie は資格情報をHTTP Only・SameSite=StrictのCookieに設定する。
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, cred *auth.Credential) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    cred.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		Expires:  cred.ExpiresAt,
		MaxAge:   int(time.Until(cred.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string, sameSite http.SameSite) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: sameSite,
	})
}

func (h *AuthHandler) redirectSigninError(w http.ResponseWriter, r *http.Request, message string) {
	target := h.config.FrontendURL + "/signin?error=" + url.QueryEscape(message)
	http.Redirect(w, r, target, http.StatusFound)
}
