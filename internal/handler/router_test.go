package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/roomie/internal/auth"
	"github.com/hitoshi/roomie/internal/listing"
	"github.com/hitoshi/roomie/internal/media"
	"github.com/hitoshi/roomie/internal/middleware"
	"github.com/hitoshi/roomie/internal/model"
	"github.com/hitoshi/roomie/internal/payment"
	"github.com/hitoshi/roomie/internal/submission"
	"github.com/hitoshi/roomie/internal/user"
)

// --- モック定義 ---

type stubAuthenticator struct{}

func (stubAuthenticator) Authenticate(token string) (*model.Caller, error) {
	if token == "valid" {
		return &model.Caller{UserID: "u1"}, nil
	}
	return nil, errors.New("invalid token")
}

type stubHealthChecker struct {
	err error
}

func (s stubHealthChecker) PingContext(context.Context) error {
	return s.err
}

const testCSRFToken = "csrf-token-value"

func newTestRouter(t *testing.T, health HealthChecker) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		HealthChecker:     health,
		Authenticator:     stubAuthenticator{},
		CORSAllowedOrigin: "https://app.example.com",
		RateLimiter:       rl,
		AuthService: &mockAuthService{
			beginOAuthFn: func(context.Context) (string, string, error) {
				return "https://accounts.google.com/auth", "sid", nil
			},
			completeOAuthFn: func(context.Context, string, string, string) (*auth.OAuthResult, error) {
				return nil, model.NewStateMismatchError()
			},
			signinFn: func(context.Context, auth.SigninInput) (*model.User, *auth.Credential, error) {
				return &model.User{ID: "u1"}, testCredential(), nil
			},
		},
		AuthConfig: AuthHandlerConfig{FrontendURL: "https://app.example.com"},
		ListingService: &mockListingService{
			listFn: func(context.Context, model.ListingFilter) ([]*model.Listing, error) {
				return []*model.Listing{}, nil
			},
			getFn: func(_ context.Context, id string) (*model.Listing, error) {
				return &model.Listing{ID: id}, nil
			},
			byOwnerFn: func(context.Context, string) ([]*model.Listing, error) {
				return []*model.Listing{}, nil
			},
			createFn: func(context.Context, string, listing.CreateInput, *media.Upload) (*model.Listing, error) {
				return &model.Listing{ID: "new"}, nil
			},
			feedFn: func(context.Context, model.ListingFilter, string) ([]byte, error) {
				return []byte("<rss/>"), nil
			},
		},
		SubmissionService: &mockSubmissionService{
			submitFn: func(_ context.Context, _ submission.SubmitInput, caller *model.Caller) (*model.Submission, error) {
				s := &model.Submission{ID: "s1"}
				if caller != nil {
					s.SubmitterUserID = caller.UserID
				}
				return s, nil
			},
		},
		UserService: &mockUserService{
			meFn: func(_ context.Context, userID string) (*user.Profile, error) {
				return &user.Profile{User: &model.User{ID: userID}}, nil
			},
		},
		PaymentService: &mockPaymentService{
			historyFn: func(context.Context, string) ([]*model.Payment, error) {
				return []*model.Payment{}, nil
			},
			createIntentFn: func(context.Context, string, payment.IntentInput) (*payment.IntentResult, error) {
				return &payment.IntentResult{}, nil
			},
		},
	})
}

// newUnsafeRequest はCSRFトークンと任意の資格情報を付けた状態変更リクエストを作る。
func newUnsafeRequest(method, path, body, token string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.TokenCookieName, Value: token})
	}
	return req
}

// --- テスト ---

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t, stubHealthChecker{})

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
	}{
		{"health", httptest.NewRequest(http.MethodGet, "/health", nil), http.StatusOK},
		{"browse is public", httptest.NewRequest(http.MethodGet, "/api/v1/forms", nil), http.StatusOK},
		{"feed is public", httptest.NewRequest(http.MethodGet, "/api/v1/forms/feed.rss", nil), http.StatusOK},
		{"get is public", httptest.NewRequest(http.MethodGet, "/api/v1/forms/l1", nil), http.StatusOK},
		{"my listings requires auth", httptest.NewRequest(http.MethodGet, "/api/v1/forms/my-listings", nil), http.StatusUnauthorized},
		{"user me requires auth", httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil), http.StatusUnauthorized},
		{"payment history requires auth", httptest.NewRequest(http.MethodGet, "/api/v1/payments/history", nil), http.StatusUnauthorized},
		{"create without csrf", httptest.NewRequest(http.MethodPost, "/api/v1/forms", strings.NewReader(`{}`)), http.StatusForbidden},
		{"create without auth", newUnsafeRequest(http.MethodPost, "/api/v1/forms", `{}`, ""), http.StatusUnauthorized},
		{"create with auth", newUnsafeRequest(http.MethodPost, "/api/v1/forms", `{}`, "valid"), http.StatusCreated},
		{"anonymous submission", newUnsafeRequest(http.MethodPost, "/api/v1/submissions", `{}`, ""), http.StatusCreated},
		{"submission with bad token stays anonymous", newUnsafeRequest(http.MethodPost, "/api/v1/submissions", `{}`, "bogus"), http.StatusCreated},
		{"signin", newUnsafeRequest(http.MethodPost, "/api/v1/auth/signin", `{}`, ""), http.StatusOK},
		{"create intent", newUnsafeRequest(http.MethodPost, "/api/v1/payments/create-intent", `{}`, "valid"), http.StatusOK},
		{"google login", httptest.NewRequest(http.MethodGet, "/api/v1/auth/google", nil), http.StatusFound},
		{"google callback state mismatch", httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?state=x&code=y", nil), http.StatusForbidden},
		{"csrf token endpoint", httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tt.req)
			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s: status = %d, want %d (body: %s)",
					tt.req.Method, tt.req.URL.Path, rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRouter_AuthenticatedRequestReachesHandler(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"_id":"u1"`) {
		t.Errorf("unexpected response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_SecurityAndCORSHeaders(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forms", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestRouter_HealthUnavailable(t *testing.T) {
	router := newTestRouter(t, stubHealthChecker{err: errors.New("down")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRouter_AuthIPRateLimit(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)
	router := NewRouter(&RouterDeps{
		Authenticator: stubAuthenticator{},
		RateLimiter:   rl,
		AuthRateLimit: IPRateLimit{Requests: 2, Window: time.Minute},
		AuthService:   &mockAuthService{},
	})

	var last int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.RemoteAddr = "203.0.113.5:1234"
		req.Header.Set("X-CSRF-Token", testCSRFToken)
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
}
