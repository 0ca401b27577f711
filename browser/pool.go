package browser

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Pool hands out entries of a resource list (user agents, proxies) uniformly
// at random. Quarantined entries are avoided until their TTL expires, unless
// every entry is quarantined.
type Pool struct {
	kind    string
	entries []string

	mu          sync.Mutex
	rnd         *rand.Rand
	quarantined *expirable.LRU[string, struct{}]
}

// NewPool builds a pool over entries. A zero ttl disables quarantine.
func NewPool(kind string, entries []string, ttl time.Duration) (*Pool, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s pool has no entries", kind)
	}
	p := &Pool{
		kind:    kind,
		entries: append([]string(nil), entries...),
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	if ttl > 0 {
		p.quarantined = expirable.NewLRU[string, struct{}](len(entries), nil, ttl)
	}
	return p, nil
}

// Pick returns a random entry.
func (p *Pool) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := p.entries
	if p.quarantined != nil && p.quarantined.Len() > 0 {
		healthy := make([]string, 0, len(p.entries))
		for _, e := range p.entries {
			if _, bad := p.quarantined.Peek(e); !bad {
				healthy = append(healthy, e)
			}
		}
		if len(healthy) > 0 {
			candidates = healthy
		}
	}
	return candidates[p.rnd.IntN(len(candidates))]
}

// Quarantine marks entry as recently failed.
func (p *Pool) Quarantine(entry string) {
	if p == nil || p.quarantined == nil || entry == "" {
		return
	}
	p.quarantined.Add(entry, struct{}{})
}

// Quarantined reports whether entry is currently avoided.
func (p *Pool) Quarantined(entry string) bool {
	if p == nil || p.quarantined == nil {
		return false
	}
	_, ok := p.quarantined.Peek(entry)
	return ok
}

// Len returns the number of entries.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Kind names the resource the pool holds.
func (p *Pool) Kind() string {
	return p.kind
}
