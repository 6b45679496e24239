package resource

import (
	"net/url"
	"strings"
)

// DefaultGateway serves content-addressed resources over HTTP.
const DefaultGateway = "https://ipfs.io"

// Translator rewrites content-addressed URIs to gateway URLs.
// The zero value uses DefaultGateway.
type Translator struct {
	Gateway string
}

// Translate returns an HTTP-fetchable URL for uri.
//
//	ipfs://<cid>[/path]   -> <gw>/ipfs/<cid>[/path]
//	ipfs://ipfs/<cid>     -> <gw>/ipfs/<cid>
//	ipns://<name>[/path]  -> <gw>/ipns/<name>[/path]
//	/ipfs/<cid>, /ipns/.. -> <gw>/ipfs/<cid>, <gw>/ipns/..
//	http(s)://...         -> unchanged
//
// Anything else is not a renderable URL and yields ok=false.
func (t Translator) Translate(uri string) (string, bool) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", false
	}
	gw := strings.TrimRight(t.Gateway, "/")
	if gw == "" {
		gw = DefaultGateway
	}

	scheme, rest, hasScheme := strings.Cut(uri, "://")
	if !hasScheme {
		for _, p := range []string{"/ipfs/", "/ipns/"} {
			if strings.HasPrefix(uri, p) && len(uri) > len(p) {
				return gw + uri, true
			}
		}
		return "", false
	}

	switch strings.ToLower(scheme) {
	case "ipfs":
		rest = strings.TrimPrefix(rest, "ipfs/")
		rest = strings.TrimLeft(rest, "/")
		if rest == "" {
			return "", false
		}
		return gw + "/ipfs/" + rest, true
	case "ipns":
		rest = strings.TrimLeft(rest, "/")
		if rest == "" {
			return "", false
		}
		return gw + "/ipns/" + rest, true
	case "http", "https":
		u, err := url.Parse(uri)
		if err != nil || u.Host == "" {
			return "", false
		}
		return uri, true
	}
	return "", false
}

// TranslateURI is Translator{}.Translate.
func TranslateURI(uri string) (string, bool) { return Translator{}.Translate(uri) }
