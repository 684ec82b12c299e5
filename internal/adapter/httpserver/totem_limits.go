package httpserver

import (
	"github.com/LucasSchemes/servidor-propaganda/internal/platform/config"
	apperrors "github.com/LucasSchemes/servidor-propaganda/internal/platform/errors"
	"github.com/jonboulle/clockwork"
)

// totemLimits admits a new totem connection only if the per-IP connect rate, the
// instance-wide cap and the per-IP cap all allow it.
type totemLimits struct {
	rate   *connectionRateLimiter
	global *globalConnectionLimiter
	perIP  *ipConnectionLimiter
}

func newTotemLimits(cfg *config.Config, clock clockwork.Clock) *totemLimits {
	return &totemLimits{
		rate:   newConnectionRateLimiter(cfg.TotemConnectRate, cfg.TotemConnectBurst, clock),
		global: newGlobalConnectionLimiter(int64(cfg.MaxTotemConnections)),
		perIP:  newIPConnectionLimiter(cfg.MaxTotemConnectionsPerIP),
	}
}

// acquire reserves a slot for ip. The returned release must be called exactly once when
// the connection ends.
func (l *totemLimits) acquire(ip string) (release func(), err error) {
	if !l.rate.Allow(ip) {
		return nil, apperrors.RateLimitedError("too many connection attempts").WithField("client_ip", ip)
	}
	if !l.global.Acquire() {
		return nil, apperrors.UnavailableError("totem connection limit reached").
			WithField("current", l.global.Current())
	}
	if !l.perIP.Acquire(ip) {
		l.global.Release()
		return nil, apperrors.RateLimitedError("too many connections from this address").WithField("client_ip", ip)
	}

	return func() {
		l.perIP.Release(ip)
		l.global.Release()
	}, nil
}
