package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/grvbrk/vidcatalog_server/internal/auth"
	"github.com/grvbrk/vidcatalog_server/internal/catalog"
	"github.com/grvbrk/vidcatalog_server/internal/models"
	"github.com/grvbrk/vidcatalog_server/internal/observability"
	"github.com/grvbrk/vidcatalog_server/internal/utils"
	"go.uber.org/zap"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// Authenticator turns a bearer credential into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*models.Identity, error)
}

type MiddlewareHandler struct {
	Logger        *zap.Logger
	Authenticator Authenticator
	Metrics       *observability.Metrics
}

func NewMiddlewareHandler(logger *zap.Logger, authenticator Authenticator, metrics *observability.Metrics) *MiddlewareHandler {
	return &MiddlewareHandler{
		Logger:        logger,
		Authenticator: authenticator,
		Metrics:       metrics,
	}
}

// Authenticate resolves the bearer credential on every request; nothing is
// cached between requests.
func (mh *MiddlewareHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		identity, err := mh.Authenticator.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, catalog.ErrStorage) {
				mh.Logger.Error("identity provider failed", zap.Error(err))
				utils.WriteError(w, http.StatusInternalServerError, catalog.Detail(err))
				return
			}
			mh.Logger.Debug("credential rejected", zap.Error(err))
			w.Header().Set("WWW-Authenticate", "Bearer")
			utils.WriteError(w, http.StatusUnauthorized, catalog.Detail(err))
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (mh *MiddlewareHandler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", routePattern(r)),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("origin", r.Header.Get("Origin")),
		}
		if status >= http.StatusInternalServerError {
			mh.Logger.Error("request", fields...)
			return
		}
		mh.Logger.Info("request", fields...)
	})
}

func (mh *MiddlewareHandler) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		mh.Metrics.Requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		mh.Metrics.Duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (mh *MiddlewareHandler) Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// routePattern is only complete after the router has matched the request.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return "unmatched"
}

func GetIdentityFromContext(r *http.Request) (*models.Identity, bool) {
	identity, ok := r.Context().Value(IdentityContextKey).(*models.Identity)
	return identity, ok && identity != nil
}
