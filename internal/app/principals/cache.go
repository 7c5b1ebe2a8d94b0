package principals

import (
	"context"
	"strings"
	"sync"
)

// Principal is the directory view of a calendar user or bookable resource.
type Principal struct {
	URI         string
	DisplayName string
	Email       string
	Resource    bool
}

// LocalID is the last path segment of a principal uri, e.g.
// "principals/users/alice" -> "alice".
func LocalID(principalURI string) string {
	trimmed := strings.TrimSuffix(principalURI, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// Directory is the external principal directory service.
type Directory interface {
	Lookup(ctx context.Context, principalURI string) (Principal, bool, error)
	LookupByHref(ctx context.Context, href string) (Principal, bool, error)
}

// Cache is a best-effort read-through cache over the directory. Hits may be
// stale; callers that need freshness call Invalidate first.
type Cache struct {
	directory Directory

	mu     sync.RWMutex
	byURI  map[string]Principal
	byHref map[string]Principal
}

func NewCache(directory Directory) *Cache {
	return &Cache{
		directory: directory,
		byURI:     map[string]Principal{},
		byHref:    map[string]Principal{},
	}
}

func (c *Cache) Lookup(ctx context.Context, principalURI string) (Principal, bool, error) {
	c.mu.RLock()
	cached, ok := c.byURI[principalURI]
	c.mu.RUnlock()
	if ok {
		return cached, true, nil
	}

	principal, found, err := c.directory.Lookup(ctx, principalURI)
	if err != nil || !found {
		return Principal{}, false, err
	}
	c.mu.Lock()
	c.byURI[principalURI] = principal
	c.mu.Unlock()
	return principal, true, nil
}

func (c *Cache) LookupByHref(ctx context.Context, href string) (Principal, bool, error) {
	c.mu.RLock()
	cached, ok := c.byHref[href]
	c.mu.RUnlock()
	if ok {
		return cached, true, nil
	}

	principal, found, err := c.directory.LookupByHref(ctx, href)
	if err != nil || !found {
		return Principal{}, false, err
	}
	c.mu.Lock()
	c.byHref[href] = principal
	c.byURI[principal.URI] = principal
	c.mu.Unlock()
	return principal, true, nil
}

func (c *Cache) Invalidate(principalURI string) {
	c.mu.Lock()
	delete(c.byURI, principalURI)
	for href, p := range c.byHref {
		if p.URI == principalURI {
			delete(c.byHref, href)
		}
	}
	c.mu.Unlock()
}
