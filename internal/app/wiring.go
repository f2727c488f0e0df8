package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/roomie/internal/auth"
	"github.com/hitoshi/roomie/internal/config"
	"github.com/hitoshi/roomie/internal/database"
	"github.com/hitoshi/roomie/internal/handler"
	"github.com/hitoshi/roomie/internal/listing"
	"github.com/hitoshi/roomie/internal/logger"
	"github.com/hitoshi/roomie/internal/media"
	"github.com/hitoshi/roomie/internal/metrics"
	"github.com/hitoshi/roomie/internal/middleware"
	"github.com/hitoshi/roomie/internal/payment"
	"github.com/hitoshi/roomie/internal/repository"
	"github.com/hitoshi/roomie/internal/security"
	"github.com/hitoshi/roomie/internal/statestore"
	"github.com/hitoshi/roomie/internal/submission"
	"github.com/hitoshi/roomie/internal/user"
)

const (
	// externalHTTPTimeout はGoogleと決済事業者へのリクエストのタイムアウト。
	externalHTTPTimeout = 10 * time.Second
	// submissionRateWindow は匿名応募のIPレート制限の単位時間。
	submissionRateWindow = time.Minute
)

// stores はSTORAGE_DRIVERに応じて生成したリポジトリ群。
type stores struct {
	users       repository.UserRepository
	listings    repository.ListingRepository
	submissions repository.SubmissionRepository
	payments    repository.PaymentRepository
	health      handler.HealthChecker
	closeFn     func() error
}

// Close はデータストアへの接続を閉じる。
func (s *stores) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// openStores は設定されたドライバーでデータストアに接続し、リポジトリを生成する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StorageDriver {
	case config.DriverMongo:
		m, err := database.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		slog.Info("mongodb connection established",
			slog.String("uri", logger.MaskURL(cfg.MongoURI)),
			slog.String("database", cfg.MongoDatabase),
		)
		if err := repository.EnsureMongoIndexes(ctx, m.Database); err != nil {
			m.Close()
			return nil, err
		}
		return &stores{
			users:       repository.NewMongoUserRepo(m.Database),
			listings:    repository.NewMongoListingRepo(m.Database),
			submissions: repository.NewMongoSubmissionRepo(m.Database),
			payments:    repository.NewMongoPaymentRepo(m.Database),
			health:      m,
			closeFn:     m.Close,
		}, nil

	case config.DriverPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established",
			slog.String("database_url", logger.MaskURL(cfg.DatabaseURL)),
		)
		return &stores{
			users:       repository.NewPostgresUserRepo(db),
			listings:    repository.NewPostgresListingRepo(db),
			submissions: repository.NewPostgresSubmissionRepo(db),
			payments:    repository.NewPostgresPaymentRepo(db),
			health:      db,
			closeFn:     db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// openStateStore はOAuth stateとハンドオフコードの保存先を生成する。
// REDIS_URLが未設定の場合はプロセス内メモリを使用する（単一インスタンス向け）。
func openStateStore(ctx context.Context, cfg *config.Config) (statestore.Store, io.Closer, error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL is not set; using in-memory state store (single instance only)")
		s := statestore.NewMemoryStore()
		return s, s, nil
	}

	s, err := statestore.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Ping(ctx); err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis state store connected", slog.String("redis_url", logger.MaskURL(cfg.RedisURL)))
	return s, s, nil
}

// openImageStore は画像ストレージを生成する。未設定の場合はnilを返し、画像アップロードは無効になる。
func openImageStore(ctx context.Context, cfg *config.Config) (media.ImageStore, error) {
	if !cfg.ImageUploadEnabled() {
		slog.Info("MINIO_ENDPOINT is not set; image upload disabled")
		return nil, nil
	}
	store, err := media.NewMinioImageStore(ctx, media.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.MinioPublicURL,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newPaymentProvider は決済事業者クライアントを生成する。キー未設定の場合はnilを返す。
// STRIPE_API_URLを明示した場合（stripe-mock等）はSSRF対策なしのクライアントを使用する。
func newPaymentProvider(cfg *config.Config, guard security.SSRFGuardService) payment.Provider {
	if !cfg.PaymentsEnabled() {
		slog.Info("STRIPE_SECRET_KEY is not set; payments disabled")
		return nil
	}
	client := guard.NewSafeClient(externalHTTPTimeout)
	if cfg.StripeAPIURL != "" {
		client = &http.Client{Timeout: externalHTTPTimeout}
	}
	return payment.NewStripeProvider(payment.StripeConfig{
		SecretKey:  cfg.StripeSecretKey,
		APIURL:     cfg.StripeAPIURL,
		HTTPClient: client,
		Logger:     slog.Default(),
	})
}

// rateLimiterConfig は設定値（req/min）からユーザー単位のレート制限設定を組み立てる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitListing > 0 {
		rl.ListingRate = rate.Limit(float64(cfg.RateLimitListing) / 60.0)
		rl.ListingBurst = cfg.RateLimitListing
	}
	return rl
}

// apiDeps はAPIサーバーの構築に必要な外部依存。
type apiDeps struct {
	stores    *stores
	states    statestore.Store
	images    media.ImageStore
	collector metrics.MetricsCollector
	guard     security.SSRFGuardService
}

// buildAPI はサービス層を組み立て、ルーターとレートリミッターを返す。
// 呼び出し側はサーバー停止後にRateLimiter.Stopを呼ぶ。
func buildAPI(cfg *config.Config, deps apiDeps) (http.Handler, *middleware.RateLimiter) {
	st := deps.stores
	safeClient := deps.guard.NewSafeClient(externalHTTPTimeout)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		HTTPClient:   safeClient,
	})
	authService := auth.NewService(
		st.users, oauthProvider, tokens, auth.NewPasswordHasher(cfg.BcryptCost),
		deps.states, deps.collector,
		auth.ServiceConfig{HandoffTTL: cfg.HandoffTTL, OAuthStateTTL: cfg.OAuthStateTTL},
	)

	sanitizer := security.NewTextSanitizer()
	listingService := listing.NewService(st.listings, st.users, sanitizer, deps.guard, deps.images, deps.collector)
	submissionService := submission.NewService(st.submissions, st.listings, sanitizer, deps.collector)
	paymentService := payment.NewService(st.payments, newPaymentProvider(cfg, deps.guard), listingService)
	userService := user.NewService(st.users, st.listings)

	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:     st.health,
		Authenticator:     authService.Tokens(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:         rateLimiter,
		AuthRateLimit:       handler.IPRateLimit{Requests: cfg.RateLimitAuth, Window: cfg.RateLimitAuthWindow},
		SubmissionRateLimit: handler.IPRateLimit{Requests: cfg.RateLimitSubmission, Window: submissionRateWindow},
		Metrics:             deps.collector,
		Logger:              slog.Default(),
		ExposeErrorDetail:   !cfg.IsProduction(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:   cfg.FrontendURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			OAuthStateTTL: cfg.OAuthStateTTL,
		},
		ListingService:    listingService,
		SubmissionService: submissionService,
		UserService:       userService,
		PaymentService:    paymentService,
	})
	return router, rateLimiter
}

// closeQuietly は終了処理のエラーをログに記録する。
func closeQuietly(name string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("failed to close "+name, slog.String("error", err.Error()))
	}
}
