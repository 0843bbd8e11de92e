package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/plantcare/internal/database"
	"github.com/hitoshi/plantcare/internal/middleware"
)

// RouterMetrics はルーターが記録するメトリクスの記録先。
type RouterMetrics interface {
	middleware.HTTPRecorder
	PlantOpRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionResolver   middleware.SessionResolver
	SessionCookie     *middleware.SessionCookie
	CORSAllowedOrigin string
	HSTS              bool
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  database.Pinger
	Metrics        RouterMetrics
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 植物・ユーザー
	PlantService PlantServiceInterface
	UserService  UserServiceInterface

	// STATIC_DIRが設定されている場合のみSPAを配信する
	StaticDir string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Metrics → Recovery → SecurityHeaders → CORS → Compress
//
// 認証が必要なルートにはさらに Session → RequireAuth → RateLimit(General) を重ねる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(chimw.Compress(5))

	var plantRecorder PlantOpRecorder
	if deps.Metrics != nil {
		plantRecorder = deps.Metrics
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionCookie, deps.AuthConfig)
	plantHandler := NewPlantHandler(deps.PlantService, plantRecorder)
	userHandler := NewUserHandler(deps.UserService, deps.SessionCookie)

	// --- 認証不要のルート ---

	r.Get("/health", HealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.With(deps.RateLimiter.LoginMiddleware()).Post("/api/auth/login", authHandler.Login)
	r.Post("/api/auth/logout", authHandler.Logout)
	r.Get("/api/me", authHandler.Me)
	r.Get("/api/config", authHandler.Config)

	// GitHub連携が未設定の場合はルート自体を登録しない
	if deps.AuthConfig.OAuthEnabled {
		r.Route("/auth/github", func(r chi.Router) {
			r.Get("/", authHandler.GitHubLogin)
			r.Get("/callback", authHandler.GitHubCallback)
		})
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver, deps.SessionCookie))
		r.Use(middleware.RequireAuth)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/items", func(r chi.Router) {
			r.Get("/", plantHandler.ListItems)
			r.Post("/", plantHandler.CreateItem)
			r.Put("/{id}", plantHandler.UpdateItem)
			r.Delete("/{id}", plantHandler.DeleteItem)
		})

		r.Delete("/api/users/me", userHandler.Withdraw)
	})

	if deps.StaticDir != "" {
		r.NotFound(SPAHandler(deps.StaticDir).ServeHTTP)
	}

	return r
}
