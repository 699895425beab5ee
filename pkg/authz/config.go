package authz

import (
	"fmt"
	"log/slog"
)

// Mode selects how the actor is identified.
type Mode string

const (
	// ModeHeader trusts X-User-Principal / X-User-Role (dev, trusted proxy).
	ModeHeader Mode = "header"
	// ModeJWT reads an Authorization bearer token.
	ModeJWT Mode = "jwt"
)

// NewExtractor builds the Extractor for mode. jwtCfg is ignored unless mode
// is ModeJWT.
func NewExtractor(mode Mode, jwtCfg JWTConfig, logger *slog.Logger) (Extractor, error) {
	switch mode {
	case "", ModeHeader:
		if logger != nil {
			logger.Warn("identity taken from request headers; deploy behind an authenticating proxy")
		}
		return HeaderExtractor, nil
	case ModeJWT:
		if jwtCfg.Logger == nil {
			jwtCfg.Logger = logger
		}
		return NewJWTExtractor(jwtCfg)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}
