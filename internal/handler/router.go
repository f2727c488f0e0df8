package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/roomie/internal/metrics"
	"github.com/hitoshi/roomie/internal/middleware"
)

// APIPrefix は全APIエンドポイントの共通プレフィックス。
const APIPrefix = "/api/v1"

// HealthChecker はデータストアの疎通確認インターフェース。
// *sql.DBと*database.MongoDBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// IPRateLimit はIP単位のレート制限の設定。Requestsが0以下の場合は制限しない。
type IPRateLimit struct {
	Requests int
	Window   time.Duration
}

func (l IPRateLimit) middleware() func(http.Handler) http.Handler {
	if l.Requests <= 0 || l.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.NewIPRateLimit(l.Requests, l.Window)
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker       HealthChecker
	Authenticator       middleware.Authenticator
	CORSAllowedOrigin   string
	CSRFConfig          middleware.CSRFConfig
	RateLimiter         *middleware.RateLimiter
	AuthRateLimit       IPRateLimit
	SubmissionRateLimit IPRateLimit
	Metrics             metrics.MetricsCollector
	Logger              *slog.Logger
	// ExposeErrorDetail がtrueの場合、内部エラーのレスポンスに原因を含める（開発環境用）。
	ExposeErrorDetail bool

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 募集
	ListingService ListingServiceInterface

	// 応募
	SubmissionService SubmissionServiceInterface

	// ユーザー
	UserService UserServiceInterface

	// 決済
	PaymentService PaymentServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → CSRF → Auth/OptionalAuth → RateLimit
//
// /auth/* と POST /submissions にはIP単位のレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.CSRFConfig.ExemptPaths = append(deps.CSRFConfig.ExemptPaths,
		APIPrefix+"/auth/google",
		APIPrefix+"/auth/google/callback",
	)

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
	if deps.ExposeErrorDetail {
		r.Use(withErrorDetail)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	listingHandler := NewListingHandler(deps.ListingService, deps.AuthConfig.FrontendURL)
	subHandler := NewSubmissionHandler(deps.SubmissionService)
	userHandler := NewUserHandler(deps.UserService)
	paymentHandler := NewPaymentHandler(deps.PaymentService)

	requireAuth := middleware.NewAuthMiddleware(deps.Authenticator)
	optionalAuth := middleware.NewOptionalAuthMiddleware(deps.Authenticator)
	general := deps.RateLimiter.GeneralMiddleware()

	r.Get("/health", healthHandler(deps.HealthChecker))

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", healthHandler(deps.HealthChecker))

		// --- 認証 ---
		r.Route("/auth", func(r chi.Router) {
			r.Use(deps.AuthRateLimit.middleware())

			r.Post("/signup", authHandler.Signup)
			r.Post("/signin", authHandler.Signin)
			r.Post("/logout", authHandler.Logout)
			r.Get("/google", authHandler.GoogleLogin)
			r.Get("/google/callback", authHandler.GoogleCallback)
			r.Post("/verify-state", authHandler.VerifyState)
			r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
		})

		// --- 募集 ---
		r.Route("/forms", func(r chi.Router) {
			r.Get("/", listingHandler.List)
			r.Get("/feed.rss", listingHandler.Feed)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth, general)
				r.Get("/my-listings", listingHandler.MyListings)
				r.With(deps.RateLimiter.ListingCreationMiddleware()).Post("/", listingHandler.Create)
				r.Put("/{id}", listingHandler.Update)
				r.Post("/{id}/favorite", listingHandler.Favorite)
				r.Post("/{id}/boost", listingHandler.Boost)
			})

			r.Get("/{id}", listingHandler.Get)
		})

		// --- 応募 ---
		r.Route("/submissions", func(r chi.Router) {
			r.With(deps.SubmissionRateLimit.middleware(), optionalAuth).Post("/", subHandler.Submit)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth, general)
				r.Get("/form/{formId}", subHandler.ListForListing)
				r.Get("/my-submissions", subHandler.MySubmissions)
				r.Put("/{id}/status", subHandler.UpdateStatus)
				r.Put("/{id}/read", subHandler.MarkRead)
			})
		})

		// --- ユーザー・決済 ---
		r.Group(func(r chi.Router) {
			r.Use(requireAuth, general)

			r.Get("/user/me", userHandler.Me)
			r.Get("/user/favorites", userHandler.Favorites)

			r.Post("/payments/create-intent", paymentHandler.CreateIntent)
			r.Post("/payments/confirm", paymentHandler.Confirm)
			r.Get("/payments/history", paymentHandler.History)
		})
	})

	return r
}

// healthHandler はデータストアへの疎通を確認するハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
