// Package header decides which headers cross each leg of a proxied call:
//
//	Client <--> Proxy <--> Upstream provider
//
// Each leg negotiates its own connection, compression and framing. A
// converted call also re-encodes the body, so no framing header can be
// carried from one leg to the other.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RequestIDHeader carries the call record ID back to the client.
const RequestIDHeader = "X-Switchboard-Request-Id"

// hopByHop headers describe one transport connection (RFC 9110 7.6.1).
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// upstreamDrop lists client headers never sent upstream. Host is derived
// from the provider URL; Accept-Encoding is left to http.Transport, which
// then decompresses transparently; Content-Length is recomputed for the
// outbound body; the request ID belongs to the proxy.
var upstreamDrop = headerSet(hopByHop, "Host", "Accept-Encoding", "Content-Length", RequestIDHeader)

// clientDrop lists provider headers never copied to the client. The body
// the proxy holds is already decompressed and possibly converted, so the
// upstream encoding and length no longer describe it; fiber sets both.
var clientDrop = headerSet(hopByHop, "Content-Encoding", "Content-Length")

func headerSet(base []string, extra ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, h := range append(append([]string(nil), base...), extra...) {
		set[http.CanonicalHeaderKey(h)] = struct{}{}
	}
	return set
}

// Handler filters headers between the client and the provider.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// UpstreamRequestHeaders returns the client headers to forward. Credentials
// pass through; the upstream client replaces them when it holds its own key.
func (h *Handler) UpstreamRequestHeaders(c *fiber.Ctx) http.Header {
	out := make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, drop := upstreamDrop[k]; !drop {
			out.Add(k, string(value))
		}
	})
	return out
}

// SetClientResponseHeaders copies the provider's response headers onto the
// client response, joining repeated values with commas.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, header http.Header) {
	for k, v := range header {
		if _, drop := clientDrop[http.CanonicalHeaderKey(k)]; !drop {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}
