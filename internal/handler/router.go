package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/partban/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBを受け付けることができる。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder // nilの場合はHTTPステータスを記録しない

	// 認証・プロフィール
	AuthService     AuthServiceInterface
	IdentityService IdentityServiceInterface
	AuthConfig      AuthHandlerConfig

	// 週・パート
	WeekService  WeekServiceInterface
	Hub          Broadcaster
	ClaimService ClaimServiceInterface

	// 管理者
	ResetService       ResetServiceInterface
	AdminService       AdminServiceInterface
	SessionInvalidator SessionInvalidator
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Metrics → Logging
//	→（認証ルート以外）Session → RateLimit(General)
//	→（変更系のみ）RateLimit(Mutation)
//
// 認証ルート（/auth/*）とヘルスチェックはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.AuthService, deps.IdentityService, deps.AuthConfig)
	weekHandler := NewWeekHandler(deps.WeekService, deps.Hub)
	partHandler := NewPartHandler(deps.ClaimService)
	adminHandler := NewAdminHandler(deps.ResetService, deps.AdminService, deps.IdentityService, deps.SessionInvalidator)

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// プロフィール
		r.Put("/api/profile", authHandler.UpdateProfile)

		// 週
		r.Route("/api/weeks/{key}", func(r chi.Router) {
			r.Get("/", weekHandler.ResolveWeek)
			r.Get("/events", weekHandler.Events)

			// リセットは変更系レート制限を追加
			r.With(deps.RateLimiter.MutationMiddleware()).Post("/reset", adminHandler.ResetWeek)
		})

		// パートの確保・解放（変更系レート制限を追加）
		// 週はIDで参照する。週キーのルートと同一セグメントのパラメータ名が
		// 衝突するため、別プレフィックスに置く
		r.Route("/api/parts/{weekID}/{number}/claim", func(r chi.Router) {
			r.Use(deps.RateLimiter.MutationMiddleware())
			r.Post("/", partHandler.Claim)
			r.Delete("/", partHandler.Release)
		})

		// 管理者
		r.Put("/api/admin/users/{id}", adminHandler.SetAdmin)
	})

	return r
}
