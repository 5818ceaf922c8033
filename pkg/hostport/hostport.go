// Package hostport splits and completes network addresses whose port is
// optional, which net.SplitHostPort refuses.
package hostport

import (
	"errors"
	"net"
	"strings"
)

// Split splits a network address of the form "host", "host:port", "[host]",
// "[host]:port", "[ipv6-host%zone]", or "[ipv6-host%zone]:port" into host or
// ipv6-host%zone and port. Port will be an empty string if not supplied.
func Split(hostport string) (host string, port string, err error) {
	if hostport == "" {
		return "", "", nil
	}

	opens, closes := strings.Count(hostport, "["), strings.Count(hostport, "]")
	switch {
	case opens > 1:
		return "", "", errors.New("too many '['")
	case closes > 1:
		return "", "", errors.New("too many ']'")
	case opens == 1 && closes == 0:
		return "", "", errors.New("missing ']'")
	case opens == 0 && closes == 1:
		return "", "", errors.New("missing '['")
	}

	var rest string
	if opens == 1 {
		if hostport[0] != '[' {
			return "", "", errors.New("nothing can come before '['")
		}
		end := strings.IndexByte(hostport, ']')
		host, rest = hostport[1:end], hostport[end+1:]
	} else {
		// unbracketed, so the last colon separates the port
		i := strings.LastIndexByte(hostport, ':')
		if i < 0 {
			return hostport, "", nil
		}
		host, rest = hostport[:i], hostport[i:]
	}

	if rest == "" {
		return host, "", nil
	}
	if rest[0] != ':' || strings.Count(rest, ":") != 1 {
		return "", "", errors.New("poorly separated or formatted port")
	}
	return host, rest[1:], nil
}

// WithDefaultPort returns addr as host:port, filling in port when addr has
// none. An empty host is kept, so ":11300" stays a listen-all address.
func WithDefaultPort(addr, port string) (string, error) {
	host, p, err := Split(addr)
	if err != nil {
		return "", err
	}
	if p == "" {
		p = port
	}
	return net.JoinHostPort(host, p), nil
}
