package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/fluxpool/pkg/core"
)

// JWTConfig configures bearer token authentication
type JWTConfig struct {
	// SecretKey verifies HMAC-signed tokens.
	SecretKey string

	// ValidMethods is the list of accepted signing algorithms. Default: HS256.
	ValidMethods []string

	// Issuer requires a matching `iss` claim when set.
	Issuer string

	// Audience requires a matching `aud` claim when set.
	Audience []string

	// Leeway allows small clock skew for exp/nbf/iat validation.
	Leeway time.Duration

	// SkipPaths are served without a token.
	SkipPaths []string

	Logger core.Logger
}

// JWT rejects requests without a valid "Authorization: Bearer <token>".
// It panics on an empty secret.
func JWT(config JWTConfig) Middleware {
	if config.SecretKey == "" {
		panic("JWT: SecretKey must be provided")
	}
	secret := []byte(config.SecretKey)

	validMethods := config.ValidMethods
	if len(validMethods) == 0 {
		validMethods = []string{"HS256"}
	}
	options := []jwt.ParserOption{jwt.WithValidMethods(validMethods)}
	if config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(config.Leeway))
	}
	if config.Issuer != "" {
		options = append(options, jwt.WithIssuer(config.Issuer))
	}
	if len(config.Audience) > 0 {
		options = append(options, jwt.WithAudience(config.Audience...))
	}
	parser := jwt.NewParser(options...)

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	}

	logger := config.Logger
	if logger == nil {
		logger = core.NewNopLogger()
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if skipped(ctx.Path(), config.SkipPaths) {
				next(ctx)
				return
			}

			tokenString, err := credentials(ctx, "Bearer")
			if err == nil {
				var token *jwt.Token
				token, err = parser.Parse(tokenString, keyFunc)
				if err == nil && !token.Valid {
					err = ErrInvalidCredentials
				}
			}
			if err != nil {
				logger.Debugf("jwt: %s %s: %v", ctx.Method(), ctx.Path(), err)
				unauthorized(ctx, `Bearer realm="fluxpool", error="invalid_token"`)
				return
			}
			next(ctx)
		}
	}
}

// TokenGenerator signs HS256 tokens for scrapers and probes
type TokenGenerator struct {
	secret []byte
	issuer string
}

func NewTokenGenerator(secret []byte, issuer string) *TokenGenerator {
	return &TokenGenerator{secret: secret, issuer: issuer}
}

// Generate signs a token for subject that expires after expiresIn
func (g *TokenGenerator) Generate(subject string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    g.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
