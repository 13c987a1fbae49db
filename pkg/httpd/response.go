package httpd

import (
	"bufio"
	"fmt"
	"html"
	"io"

	"github.com/valyala/fasthttp"
)

// DefaultServerName is sent in the Server header
const DefaultServerName = "fluxpool"

// errorPage renders the HTML body sent with every error status
func errorPage(code int, msg string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html lang="en"><head><title>Error page</title></head>`+
		`<body><h1><b>%d %s</b></h1><p>%s</p></body></html>`,
		code, fasthttp.StatusMessage(code), html.EscapeString(msg))
}

// newResponse returns a pooled response that closes the connection after it
// is written. Release it with fasthttp.ReleaseResponse.
func newResponse(serverName string) *fasthttp.Response {
	resp := fasthttp.AcquireResponse()
	resp.SetConnectionClose()
	resp.Header.SetServer(serverName)
	return resp
}

// setError turns resp into an error page and returns code
func setError(resp *fasthttp.Response, code int, msg string) int {
	resp.ResetBody()
	resp.SetStatusCode(code)
	resp.Header.SetContentType("text/html")
	resp.SetBodyString(errorPage(code, msg))
	return code
}

// writeResponse serializes resp to w and flushes
func writeResponse(w io.Writer, resp *fasthttp.Response) error {
	bw := bufio.NewWriter(w)
	if err := resp.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// bodySize is the Content-Length actually declared on resp
func bodySize(resp *fasthttp.Response) int64 {
	if n := resp.Header.ContentLength(); n > 0 {
		return int64(n)
	}
	return 0
}
