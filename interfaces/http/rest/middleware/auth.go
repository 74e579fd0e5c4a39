package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"stackture/pkg/auth"
	"stackture/pkg/common"
	pkgerrors "stackture/pkg/errors"
)

// AuthConfig configures caller identification
type AuthConfig struct {
	// Validator checks bearer tokens. When nil every request runs as
	// DefaultUser, or as the X-User-ID header if one is sent.
	Validator   *auth.JWTValidator
	DefaultUser string

	// TrustGateway accepts identities forwarded by API Gateway in
	// X-User-ID when X-API-Gateway-Authorized is set.
	TrustGateway bool

	// Per-minute request budgets; zero disables the limit.
	IPRequestsPerMinute   int
	UserRequestsPerMinute int
}

// Authenticate resolves the caller and stores it in the request context
func Authenticate(cfg AuthConfig, errs *pkgerrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	var ipLimiter, userLimiter auth.RateLimiter
	if cfg.IPRequestsPerMinute > 0 {
		ipLimiter = auth.NewPerMinuteLimiter(cfg.IPRequestsPerMinute)
	}
	if cfg.UserRequestsPerMinute > 0 {
		userLimiter = auth.NewPerMinuteLimiter(cfg.UserRequestsPerMinute)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ipLimiter != nil {
				if allowed, _ := ipLimiter.Allow(r.Context(), clientIP(r)); !allowed {
					errs.Handle(w, r, pkgerrors.NewRateLimitError(cfg.IPRequestsPerMinute, "minute"))
					return
				}
			}

			caller, err := identify(cfg, r)
			if err != nil {
				logger.Debug("Authentication failed", zap.Error(err))
				errs.Handle(w, r, pkgerrors.NewUnauthorizedError(err.Error()))
				return
			}

			if userLimiter != nil {
				if allowed, _ := userLimiter.Allow(r.Context(), caller.UserID); !allowed {
					errs.Handle(w, r, pkgerrors.NewRateLimitError(cfg.UserRequestsPerMinute, "minute"))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(common.WithCaller(r.Context(), caller)))
		})
	}
}

func identify(cfg AuthConfig, r *http.Request) (common.Caller, error) {
	if cfg.TrustGateway && r.Header.Get("X-API-Gateway-Authorized") == "true" {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			return common.Caller{}, errors.New("missing user context from API Gateway")
		}
		return common.Caller{UserID: userID, Roles: splitRoles(r.Header.Get("X-User-Roles")), Via: common.ViaGateway}, nil
	}

	if cfg.Validator == nil {
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			return common.Caller{UserID: userID, Roles: []string{"authenticated"}, Via: common.ViaHeader}, nil
		}
		return common.Caller{UserID: cfg.DefaultUser, Roles: []string{"authenticated"}, Via: common.ViaDefault}, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return common.Caller{}, errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return common.Caller{}, errors.New("invalid authorization header format")
	}

	claims, err := cfg.Validator.ValidateToken(parts[1])
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return common.Caller{}, errors.New("token has expired")
	case errors.Is(err, auth.ErrInvalidSignature):
		return common.Caller{}, errors.New("invalid token signature")
	case err != nil:
		return common.Caller{}, errors.New("invalid token")
	}
	roles := claims.Roles
	if len(roles) == 0 {
		roles = []string{"authenticated"}
	}
	return common.Caller{UserID: claims.UserID, Roles: roles, Via: common.ViaBearer}, nil
}

func splitRoles(header string) []string {
	if header == "" {
		return []string{"authenticated"}
	}
	return strings.Split(header, ",")
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
