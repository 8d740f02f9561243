package api

import (
	"net/http"
	"time"

	"github.com/haltman-io/mailfwd/internal/domain"
)

// Admission-control windows. Limits come from config; a limit of 0 disables
// the individual window and GlobalPerMinute < 0 disables the whole stack.
const (
	windowGlobal = time.Minute
	window10Min  = 10 * time.Minute
	windowHour   = time.Hour
)

type keyFunc func(r *http.Request) string

func keyByIP(scope string) keyFunc {
	return func(r *http.Request) string { return scope + ":ip:" + clientIP(r) }
}

func keyByQuery(scope, param string) keyFunc {
	return func(r *http.Request) string {
		v := domain.Normalize(r.URL.Query().Get(param))
		if v == "" {
			v = "missing"
		}
		if len(v) > 254 {
			v = v[:254]
		}
		return scope + ":" + param + ":" + v
	}
}

// limit builds a middleware enforcing one fixed window. Denials carry the
// same shape the rest of the API uses.
func (h *Handlers) limit(where string, key keyFunc, limitN int, window time.Duration, reason string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.cfg.RateLimit.Disabled() || h.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			if !h.limiter.Allow(r.Context(), key(r), limitN, window) {
				respondError(w, http.StatusTooManyRequests, map[string]interface{}{
					"error":  "rate_limited",
					"where":  where,
					"reason": reason,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handlers) globalLimiter() func(http.Handler) http.Handler {
	return h.limit("global", keyByIP("global"), h.cfg.RateLimit.GlobalPerMinute, windowGlobal, "too_many_requests")
}

func (h *Handlers) subscribeLimiters() []func(http.Handler) http.Handler {
	rl := h.cfg.RateLimit
	return []func(http.Handler) http.Handler{
		h.limit("subscribe", keyByIP("subscribe"), rl.SubscribePerIP10Min, window10Min, "too_many_requests_ip"),
		h.limit("subscribe", keyByQuery("subscribe", "to"), rl.SubscribePerDestHour, windowHour, "too_many_requests_to"),
		h.limit("subscribe", keyByQuery("subscribe", "name"), rl.SubscribePerAliasHour, windowHour, "too_many_requests_alias"),
	}
}

func (h *Handlers) unsubscribeLimiters() []func(http.Handler) http.Handler {
	rl := h.cfg.RateLimit
	return []func(http.Handler) http.Handler{
		h.limit("unsubscribe", keyByIP("unsubscribe"), rl.UnsubscribePerIP10Min, window10Min, "too_many_requests_ip"),
		h.limit("unsubscribe", keyByQuery("unsubscribe", "alias"), rl.UnsubscribePerAddrHour, windowHour, "too_many_requests_address"),
	}
}

func (h *Handlers) confirmLimiters() []func(http.Handler) http.Handler {
	rl := h.cfg.RateLimit
	return []func(http.Handler) http.Handler{
		h.limit("confirm", keyByIP("confirm"), rl.ConfirmPerIP10Min, window10Min, "too_many_requests_ip"),
		h.limit("confirm", keyByQuery("confirm", "token"), rl.ConfirmPerToken10Min, window10Min, "too_many_requests_token"),
	}
}
