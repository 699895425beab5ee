package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the bearer-token extractor.
type JWTConfig struct {
	// SubjectClaim is the claim holding the actor ID. Default: "sub".
	SubjectClaim string

	// RoleClaim is the claim path holding the actor role. Dot notation
	// reaches nested claims ("realm_access.roles"). For array claims the
	// first recognized role wins. Default: "role".
	RoleClaim string

	// PublicKeyPath is a PEM-encoded RSA public key for RS256 verification.
	// When empty, tokens are parsed without verification (trusted proxy mode).
	PublicKeyPath string

	// Issuer and Audience are validated when set.
	Issuer   string
	Audience string

	Logger *slog.Logger
}

// NewJWTExtractor returns an Extractor reading "Authorization: Bearer <token>".
func NewJWTExtractor(cfg JWTConfig) (Extractor, error) {
	if cfg.SubjectClaim == "" {
		cfg.SubjectClaim = "sub"
	}
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var publicKey *rsa.PublicKey
	if cfg.PublicKeyPath != "" {
		key, err := loadRSAPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		publicKey = key
		cfg.Logger.Info("JWT extractor: using RS256 verification", "keyPath", cfg.PublicKeyPath)
	} else {
		cfg.Logger.Warn("JWT extractor: no public key configured, tokens parsed without verification (trusted proxy mode)")
	}

	return func(r *http.Request) (Actor, error) {
		token := bearerToken(r)
		if token == "" {
			return Actor{}, ErrNoIdentity
		}

		claims, err := parseClaims(token, publicKey, cfg)
		if err != nil {
			return Actor{}, err
		}

		subject, _ := lookupClaim(claims, cfg.SubjectClaim).(string)
		if strings.TrimSpace(subject) == "" {
			return Actor{}, fmt.Errorf("token has no %q claim", cfg.SubjectClaim)
		}

		role, err := roleFromClaim(lookupClaim(claims, cfg.RoleClaim))
		if err != nil {
			return Actor{}, fmt.Errorf("subject %s: %w", subject, err)
		}

		return Actor{ID: subject, Role: role}, nil
	}, nil
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key from %s: %w", path, err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from %s", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA (got %T)", parsed)
	}
	return rsaKey, nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseClaims(tokenString string, publicKey *rsa.PublicKey, cfg JWTConfig) (jwt.MapClaims, error) {
	var opts []jwt.ParserOption
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var (
		token *jwt.Token
		err   error
	)
	if publicKey != nil {
		token, err = jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return publicKey, nil
		}, opts...)
	} else {
		token, _, err = jwt.NewParser(opts...).ParseUnverified(tokenString, jwt.MapClaims{})
	}
	if err != nil {
		return nil, fmt.Errorf("JWT parse error: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}

// lookupClaim walks a dot-separated path through nested claim maps.
func lookupClaim(claims jwt.MapClaims, path string) any {
	var current any = map[string]any(claims)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

func roleFromClaim(v any) (Role, error) {
	switch val := v.(type) {
	case string:
		return ParseRole(val)
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				if role, err := ParseRole(s); err == nil {
					return role, nil
				}
			}
		}
		return "", errors.New("no recognized role in role claim")
	case nil:
		return "", errors.New("missing role claim")
	default:
		return "", fmt.Errorf("unsupported role claim type %T", v)
	}
}
