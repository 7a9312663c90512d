package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Shadowcake59/ChatVerse/pkg/config"
)

// IPConnectionCounter reports how many live connections an address holds.
type IPConnectionCounter func(ipAddr string) int

// IPConnectionCycler closes one of the address's existing connections to
// make room for a new one.
type IPConnectionCycler func(ipAddr string)

// NewConnectionLimiter caps concurrent connections per client IP. Identity
// is only known after the in-band authenticate step, so the limit keys on
// address rather than user.
func NewConnectionLimiter(
	logger *slog.Logger,
	counter IPConnectionCounter,
	cycler IPConnectionCycler,
	cfg config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MaxPerIP <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			count := counter(reqMeta.IP)
			if count < cfg.MaxPerIP {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("Connection limit reached", slog.String("ip", reqMeta.IP), slog.Int("count", count))
			switch cfg.Mode {
			case "reject":
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			case "cycle":
				cycler(reqMeta.IP)
				next.ServeHTTP(w, r)
			default:
				logger.Error("Invalid connection limit mode configured", slog.String("mode", cfg.Mode))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
