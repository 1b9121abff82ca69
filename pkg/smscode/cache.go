// Package smscode holds SMS login codes delivered out of band. An operator
// or a forwarding device posts the code to Server; the phone login flow
// polls Cache until it shows up.
package smscode

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	code      string
	expiresAt time.Time
}

// Cache is a bounded, expiring code store keyed by phone number.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, entry]
	ttl time.Duration
	now func() time.Time
}

// NewCache creates a cache holding at most size codes for ttl each.
func NewCache(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = 128
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, ttl: ttl, now: time.Now}, nil
}

// Key is the cache key for a phone number.
func Key(phone string) string { return "xq_" + phone }

// Put stores a code for phone, replacing any earlier one.
func (c *Cache) Put(phone, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(Key(phone), entry{code: code, expiresAt: c.now().Add(c.ttl)})
}

// Code returns the pending code for phone and consumes it. Expired codes
// are dropped.
func (c *Cache) Code(phone string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(phone)
	e, ok := c.lru.Get(key)
	if !ok {
		return "", false
	}
	c.lru.Remove(key)
	if c.now().After(e.expiresAt) {
		return "", false
	}
	return e.code, true
}
