package pattern

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// ErrBadProduct is returned for product names that are not a single path
// element below the pattern root.
var ErrBadProduct = errors.New("invalid product name")

// CheckProduct rejects empty names and names that would leave the root.
func CheckProduct(product string) error {
	if product == "" || product == "." || product == ".." ||
		strings.ContainsAny(product, `/\`) || product != filepath.Base(product) {
		return fmt.Errorf("%w: %q", ErrBadProduct, product)
	}
	return nil
}

// Cache keeps decoded pattern sets keyed by product so repeated counts do
// not decode the files again.
type Cache struct {
	Root string

	mu   sync.Mutex
	sets map[string]*Set
}

// NewCache creates a cache that resolves products as subdirectories of root.
func NewCache(root string) *Cache {
	return &Cache{Root: root, sets: make(map[string]*Set)}
}

// Dir returns the pattern directory for product. Callers must check the
// name with CheckProduct first.
func (c *Cache) Dir(product string) string {
	return filepath.Join(c.Root, product)
}

// Get returns the set for product, loading it on first use. Load failures
// are not cached.
func (c *Cache) Get(product string) (*Set, error) {
	if err := CheckProduct(product); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if set, ok := c.sets[product]; ok {
		return set, nil
	}
	set, err := LoadSet(c.Dir(product))
	if err != nil {
		return nil, err
	}
	if c.sets == nil {
		c.sets = make(map[string]*Set)
	}
	c.sets[product] = set
	return set, nil
}

// Invalidate drops the cached set for product, e.g. after re-registration.
// The caller must make sure no count is still using it.
func (c *Cache) Invalidate(product string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.sets[product]; ok {
		set.Close()
		delete(c.sets, product)
	}
}

// Len returns the number of cached products.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sets)
}

// Close releases every cached set.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for product, set := range c.sets {
		if err := set.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.sets, product)
	}
	return firstErr
}
