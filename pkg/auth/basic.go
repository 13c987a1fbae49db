package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
)

// BasicConfig configures HTTP basic authentication against a bcrypt hash
type BasicConfig struct {
	Username string
	// PasswordHash is a bcrypt hash, see HashPassword.
	PasswordHash string
	SkipPaths    []string
}

// HashPassword returns the bcrypt hash to put in BasicConfig.PasswordHash
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Basic rejects requests whose basic-auth credentials do not match config.
// It panics on an empty username or an invalid hash.
func Basic(config BasicConfig) Middleware {
	if config.Username == "" {
		panic("Basic: Username must be provided")
	}
	if _, err := bcrypt.Cost([]byte(config.PasswordHash)); err != nil {
		panic(fmt.Sprintf("Basic: PasswordHash is not a bcrypt hash: %v", err))
	}
	hash := []byte(config.PasswordHash)

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if skipped(ctx.Path(), config.SkipPaths) {
				next(ctx)
				return
			}
			if err := checkBasic(ctx, config.Username, hash); err != nil {
				unauthorized(ctx, `Basic realm="fluxpool"`)
				return
			}
			next(ctx)
		}
	}
}

func checkBasic(ctx *fasthttp.RequestCtx, username string, hash []byte) error {
	encoded, err := credentials(ctx, "Basic")
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ErrInvalidCredentials
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}
