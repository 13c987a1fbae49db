// Package auth guards fasthttp handlers with bearer JWTs or HTTP basic auth.
// The admin listener uses it to protect /metrics and /ready.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
)

// Middleware wraps a fasthttp handler
type Middleware func(next fasthttp.RequestHandler) fasthttp.RequestHandler

var (
	ErrMissingCredentials = errors.New("auth: credentials missing")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// unauthorized writes a 401 with a challenge for scheme. The cause is not
// reflected to the caller.
func unauthorized(ctx *fasthttp.RequestCtx, challenge string) {
	ctx.Response.Header.Set(fasthttp.HeaderWWWAuthenticate, challenge)
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"error":"unauthorized"}`)
}

func skipped(path []byte, skip []string) bool {
	for _, p := range skip {
		if string(path) == p {
			return true
		}
	}
	return false
}

// credentials splits an Authorization header into its value for scheme
func credentials(ctx *fasthttp.RequestCtx, scheme string) (string, error) {
	header := string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization))
	if header == "" {
		return "", ErrMissingCredentials
	}
	got, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(got, scheme) || value == "" {
		return "", fmt.Errorf("%w: expected %s scheme", ErrInvalidCredentials, scheme)
	}
	return value, nil
}
