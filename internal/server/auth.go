package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"qualflow/internal/domain"
	"qualflow/internal/engine/auth"
)

type AuthConfig struct {
	JWTSecret string
	// AllowActorHeader accepts X-Actor-Id without credentials. Local use only.
	AllowActorHeader bool
	// EnableDevLogin exposes POST /auth/dev/login for minting tokens.
	EnableDevLogin bool
	Logger         *zap.Logger
}

type Principal struct {
	Actor  domain.Actor
	Source string
}

type principalKey struct{}

func (c AuthConfig) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromRequest(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok && p.Actor.ID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// SignToken mints an HS256 token for actor valid for ttl.
func SignToken(secret string, actor domain.Actor, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "qualflow",
		},
		Name: actor.Name,
		Role: string(actor.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseJWT(token, secret string) (jwtClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return jwtClaims{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return jwtClaims{}, err
	}
	if !parsed.Valid {
		return jwtClaims{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return jwtClaims{}, errors.New("subject claim required")
	}
	return claims, nil
}

// authenticateJWT trusts a role carried in the token; tokens without one are
// resolved against the actor directory.
func authenticateJWT(ctx context.Context, dir auth.Directory, token, secret string) (Principal, error) {
	claims, err := parseJWT(token, secret)
	if err != nil {
		return Principal{}, err
	}
	if claims.Role != "" {
		role, err := auth.ParseRole(claims.Role)
		if err != nil {
			return Principal{}, err
		}
		name := claims.Name
		if name == "" {
			name = claims.Subject
		}
		return Principal{Actor: domain.Actor{ID: claims.Subject, Name: name, Role: role}, Source: "jwt"}, nil
	}
	actor, err := dir.Resolve(ctx, claims.Subject)
	if err != nil {
		return Principal{}, err
	}
	return Principal{Actor: actor, Source: "jwt"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, dir auth.Directory) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): cfg.EnableDevLogin,
		path.Join(basePath, "openapi.json"):   true,
	}
	deny := func(w http.ResponseWriter, msg string) {
		respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", msg, nil))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			ctx := req.Context()
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKey := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			actorHeader := strings.TrimSpace(req.Header.Get("X-Actor-Id"))

			var (
				p   Principal
				err error
			)
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					deny(w, "invalid credentials")
					return
				}
				p, err = authenticateJWT(ctx, dir, token, cfg.JWTSecret)
			case apiKey != "":
				var actor domain.Actor
				actor, err = dir.ResolveAPIKey(ctx, apiKey)
				p = Principal{Actor: actor, Source: "api_key"}
			case actorHeader != "" && cfg.AllowActorHeader:
				cfg.logger().Warn("unauthenticated X-Actor-Id header accepted", zap.String("actor_id", actorHeader))
				var actor domain.Actor
				actor, err = dir.Resolve(ctx, actorHeader)
				p = Principal{Actor: actor, Source: "actor_header"}
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if err != nil {
				cfg.logger().Debug("authentication failed", zap.Error(err))
				var unknown auth.UnknownActorError
				if errors.As(err, &unknown) {
					deny(w, err.Error())
					return
				}
				deny(w, "invalid credentials")
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(ctx, p)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
