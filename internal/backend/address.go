// Package backend builds addresses for proxied bot and integration backends
// and performs the HTTP calls to them.
package backend

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned for host/port values that cannot form a URL.
var ErrInvalidAddress = errors.New("invalid backend address")

// Address is where a bot backend listens.
type Address struct {
	Scheme string
	Host   string
	Port   int
}

// NewAddress validates a registered host and port. The host may carry an
// http:// or https:// prefix, which selects the scheme; the default is http.
func NewAddress(host string, port int) (Address, error) {
	scheme := "http"
	h := strings.TrimSpace(host)
	if i := strings.Index(h, "://"); i >= 0 {
		scheme = strings.ToLower(h[:i])
		h = h[i+3:]
	}
	h = strings.TrimSuffix(h, "/")

	if scheme != "http" && scheme != "https" {
		return Address{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, scheme)
	}
	if h == "" {
		return Address{}, fmt.Errorf("%w: empty host", ErrInvalidAddress)
	}
	if strings.ContainsAny(h, "/?#@ ") {
		return Address{}, fmt.Errorf("%w: host %q must not contain a path or credentials", ErrInvalidAddress, host)
	}
	// Bracketed IPv6 literals are accepted; any other colon means an embedded port.
	if strings.HasPrefix(h, "[") {
		if !strings.HasSuffix(h, "]") || net.ParseIP(h[1:len(h)-1]) == nil {
			return Address{}, fmt.Errorf("%w: host %q", ErrInvalidAddress, host)
		}
		h = h[1 : len(h)-1]
	} else if strings.Contains(h, ":") && net.ParseIP(h) == nil {
		return Address{}, fmt.Errorf("%w: host %q must not carry a port", ErrInvalidAddress, host)
	}
	if port < 1 || port > 65535 {
		return Address{}, fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	return Address{Scheme: scheme, Host: h, Port: port}, nil
}

// String returns scheme://host:port.
func (a Address) String() string {
	return a.Scheme + "://" + net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// URL joins the address with an escaped absolute path and optional query.
func (a Address) URL(escapedPath string, query url.Values) string {
	u := a.String() + escapedPath
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ParseBaseURL validates an integration URL: absolute http(s) with a host.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: url %q must be http or https", ErrInvalidAddress, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: url %q has no host", ErrInvalidAddress, raw)
	}
	return u, nil
}

// JoinURL appends path to an integration base URL and sets query.
func JoinURL(base, path string, query url.Values) (string, error) {
	u, err := ParseBaseURL(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	} else {
		u.RawQuery = ""
	}
	return u.String(), nil
}
