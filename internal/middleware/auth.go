// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/roomie/internal/model"
)

// TokenCookieName は資格情報（JWT）を保持するCookieの名前。
const TokenCookieName = "token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// callerContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
	callerContextKey = contextKey("caller")

	// slotContextKey はロギングミドルウェアが用意する呼び出し元の格納先のキー。
	slotContextKey = contextKey("caller_slot")
)

// callerSlot は内側のミドルウェアで認証された呼び出し元を外側のミドルウェアへ伝える。
type callerSlot struct {
	caller *model.Caller
}

// Authenticator は資格情報を検証し、呼び出し元を返すインターフェース。
// auth.TokenIssuerが実装する。
type Authenticator interface {
	Authenticate(token string) (*model.Caller, error)
}

// NewAuthMiddleware は資格情報を必須とするミドルウェアを返す。
// 資格情報がない、または無効な場合は401 UNAUTHORIZEDを返す。
func NewAuthMiddleware(authn Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			caller, err := authn.Authenticate(token)
			if err != nil {
				slog.Info("credential rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
		})
	}
}

// NewOptionalAuthMiddleware は資格情報があれば呼び出し元をコンテキストに注入するミドルウェアを返す。
// 資格情報がない、または無効な場合も匿名として処理を続ける。
func NewOptionalAuthMiddleware(authn Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			caller, err := authn.Authenticate(token)
			if err != nil {
				slog.Debug("ignoring invalid credential",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
		})
	}
}

// tokenFromRequest はCookie、なければAuthorizationヘッダーのBearerトークンを返す。
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const bearer = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(bearer) && strings.EqualFold(h[:len(bearer)], bearer) {
		return strings.TrimSpace(h[len(bearer):])
	}
	return ""
}

// CallerFromContext はリクエストコンテキストから呼び出し元を取得する。
// 匿名リクエストの場合はnilを返す。
func CallerFromContext(ctx context.Context) *model.Caller {
	caller, _ := ctx.Value(callerContextKey).(*model.Caller)
	return caller
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	caller := CallerFromContext(ctx)
	if caller == nil || caller.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return caller.UserID, nil
}

// ContextWithCaller はコンテキストに呼び出し元を注入する。
// ロギングミドルウェアの格納先があれば、そこにも記録する。
func ContextWithCaller(ctx context.Context, caller *model.Caller) context.Context {
	if slot, ok := ctx.Value(slotContextKey).(*callerSlot); ok {
		slot.caller = caller
	}
	return context.WithValue(ctx, callerContextKey, caller)
}
