// Package proxy supplies outbound proxies for the HTTP client and the
// browser. Pool provisioning lives elsewhere; Static only rotates through
// a configured list.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
)

// ErrNoProxy is returned when a provider has nothing to hand out.
var ErrNoProxy = errors.New("no proxy available")

// Info describes one usable proxy.
type Info struct {
	URL *url.URL
}

// String returns the proxy URL.
func (i *Info) String() string { return i.URL.String() }

// Provider yields a proxy for the next session.
type Provider interface {
	Get(ctx context.Context) (*Info, error)
}

// Static rotates round-robin over a fixed list.
type Static struct {
	mu   sync.Mutex
	list []*url.URL
	next int
}

// NewStatic parses the given proxy URLs.
func NewStatic(raw []string) (*Static, error) {
	s := &Static{}
	for _, r := range raw {
		u, err := url.Parse(r)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", r)
		}
		s.list = append(s.list, u)
	}
	return s, nil
}

// Get returns the next proxy in rotation.
func (s *Static) Get(ctx context.Context) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.list) == 0 {
		return nil, ErrNoProxy
	}
	u := s.list[s.next%len(s.list)]
	s.next++
	return &Info{URL: u}, nil
}
