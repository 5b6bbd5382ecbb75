// Package locator parses the service-locator strings used to name transport
// endpoints (spec.md §6, "parse an address from a string locator") and
// resolves the indirect ones against an address-discovery backend.
//
// A locator has the form "scheme:key1=val1,key2=val2,...". Two schemes are
// understood:
//
//	udp:host=10.0.0.4,port=7000   -- resolves directly to "10.0.0.4:7000"
//	etcd:endpoint=127.0.0.1:2379,name=shard-3
//	                              -- looked up in etcd under the name key
package locator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Options is the parsed key=value payload of a locator string.
type Options map[string]string

// Locator is a parsed, not-yet-resolved service locator.
type Locator struct {
	Scheme  string
	Options Options
}

// Parse splits a locator string of the form "scheme:k1=v1,k2=v2" into its
// scheme and options. It does not perform any I/O.
func Parse(s string) (Locator, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Locator{}, fmt.Errorf("locator: missing scheme in %q", s)
	}
	opts := make(Options)
	if rest != "" {
		for _, pair := range strings.Split(rest, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return Locator{}, fmt.Errorf("locator: malformed option %q in %q", pair, s)
			}
			opts[k] = v
		}
	}
	return Locator{Scheme: scheme, Options: opts}, nil
}

// Resolve returns the "host:port" a driver can dial for this locator. For
// scheme "udp" it is computed directly from the host/port options. For
// scheme "etcd" a Resolver is required to perform the lookup.
func (l Locator) Resolve(ctx context.Context, r Resolver) (string, error) {
	switch l.Scheme {
	case "udp":
		host, port := l.Options["host"], l.Options["port"]
		if host == "" || port == "" {
			return "", fmt.Errorf("locator: udp scheme requires host and port, got %v", l.Options)
		}
		return host + ":" + port, nil
	case "etcd":
		if r == nil {
			return "", fmt.Errorf("locator: etcd scheme requires a Resolver")
		}
		name := l.Options["name"]
		if name == "" {
			return "", fmt.Errorf("locator: etcd scheme requires name, got %v", l.Options)
		}
		return r.Resolve(ctx, name)
	default:
		return "", fmt.Errorf("locator: unknown scheme %q", l.Scheme)
	}
}

// Resolver looks up the current "host:port" for a named transport endpoint.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
	Close() error
}

// DefaultResolveTimeout bounds how long a single Resolve call may block
// before giving up, so a session construction never hangs indefinitely on
// a partitioned discovery backend.
const DefaultResolveTimeout = 3 * time.Second
