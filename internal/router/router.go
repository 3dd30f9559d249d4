package router

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/achievement"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/activity"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/ledger"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/ranking"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
// It is intentionally simple and conservative so it works with most setups.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Clickjacking protection
			w.Header().Set("X-Frame-Options", "DENY")

			// Referrer policy
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")

			next.ServeHTTP(w, r)
		})
	}
}

// BearerGuard verifies an HS256 service token on mutating routes when
// SERVICE_JWT_SECRET is set. Authentication proper belongs to the
// gateway in front of this service; this is only a shared-secret check
// between services, disabled by default.
func BearerGuard(secret string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
}

// RegisterRoutes wires every service and mounts the HTTP handlers on
// the standard library's http.ServeMux. rdb may be nil when no Redis is
// configured.
func RegisterRoutes(logger *zap.SugaredLogger, db *sqlx.DB, rdb *redis.Client, cacheTTL time.Duration) http.Handler {
	mux := http.NewServeMux()

	// composition point: services first, handlers on top
	identitySvc := identity.NewService(db, nil)
	ledgerSvc := ledger.NewService(db, nil)
	activitySvc := activity.NewService(db, nil, identitySvc)
	rankingSvc := ranking.NewService(db, nil, rdb, cacheTTL)
	metrics := achievement.NewMetrics(activitySvc, ledgerSvc)
	achievementSvc := achievement.NewService(db, nil, metrics, ledgerSvc, logger)

	identityHandler := identity.NewHandler(identitySvc, logger)
	ledgerHandler := ledger.NewHandler(ledgerSvc, identitySvc, logger)
	activityHandler := activity.NewHandler(activitySvc, identitySvc, logger)
	rankingHandler := ranking.NewHandler(rankingSvc, identitySvc, logger)
	achievementHandler := achievement.NewHandler(achievementSvc, identitySvc, logger)

	guard := BearerGuard(os.Getenv("SERVICE_JWT_SECRET"))

	// health
	mux.HandleFunc("GET /reputation-api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// identity
	mux.HandleFunc("POST /reputation-api/users", guard(identityHandler.Provision))
	mux.HandleFunc("GET /reputation-api/identity/resolve", identityHandler.Resolve)
	mux.HandleFunc("POST /reputation-api/identity/merge", guard(identityHandler.Merge))

	// ledger
	mux.HandleFunc("POST /reputation-api/points", guard(ledgerHandler.Award))
	mux.HandleFunc("GET /reputation-api/users/{id}/balance", ledgerHandler.Balance)
	mux.HandleFunc("GET /reputation-api/users/{id}/history", ledgerHandler.History)

	// ranking
	mux.HandleFunc("GET /reputation-api/leaderboard", rankingHandler.Leaderboard)
	mux.HandleFunc("GET /reputation-api/users/{id}/rank", rankingHandler.RankOf)

	// activity aggregation and recorders
	mux.HandleFunc("GET /reputation-api/users/{id}/activity", activityHandler.Counts)
	mux.HandleFunc("POST /reputation-api/activity/checkins", guard(activityHandler.RecordCheckin))
	mux.HandleFunc("POST /reputation-api/activity/quiz-results", guard(activityHandler.RecordQuizResult))
	mux.HandleFunc("POST /reputation-api/activity/ai-messages", guard(activityHandler.RecordAIMessage))
	mux.HandleFunc("POST /reputation-api/activity/purchases", guard(activityHandler.RecordPurchase))

	// achievements
	mux.HandleFunc("POST /reputation-api/users/{id}/achievements/evaluate", guard(achievementHandler.Evaluate))
	mux.HandleFunc("GET /reputation-api/users/{id}/achievements", achievementHandler.ListUnlocked)

	// wrap with security headers middleware then logging middleware
	handler := LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
	return handler
}
