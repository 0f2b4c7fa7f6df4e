package origins

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ExtensionOrigin is the sentinel identity for extension traffic that
// declares no target origin. It is distinct from any normalized web
// origin and shares one trust/session scope across all such traffic.
const ExtensionOrigin = "ethgate-extension"

// UnknownIdentity is what ParseOrigin yields for connections that sent
// no Origin header at all.
const UnknownIdentity = "unknown"

// ParseOrigin normalizes a raw Origin header value into an identity.
// Absolute http(s)/ws(s) URLs become scheme://host with the hostname
// lowercased and default ports dropped; the empty string becomes
// UnknownIdentity; anything else is passed through lowercased.
func ParseOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UnknownIdentity
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())

	port := u.Port()
	switch {
	case port == "":
	case port == "80" && (scheme == "http" || scheme == "ws"):
		port = ""
	case port == "443" && (scheme == "https" || scheme == "wss"):
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}

	return scheme + "://" + host
}

// Extension describes a browser-extension peer as declared in its
// connection handshake.
type Extension struct {
	Browser string
	ID      string
}

var extensionSchemes = map[string]string{
	"chrome-extension":     "chrome",
	"moz-extension":        "firefox",
	"safari-web-extension": "safari",
}

// ExtensionFromRequest extracts an extension descriptor from a
// connection handshake. Browsers identify extension pages through the
// Origin header scheme (for example chrome-extension://<id>), so a
// request whose Origin does not use an extension scheme yields no
// descriptor.
func ExtensionFromRequest(r *http.Request) (*Extension, bool) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil, false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return nil, false
	}

	browser, ok := extensionSchemes[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, false
	}

	return &Extension{Browser: browser, ID: strings.ToLower(u.Host)}, true
}
