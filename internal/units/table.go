// Package units implements the unit conversion primitive over the generic
// conversion table, behind an explicit caller-owned cache.
package units

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/eppchris/recettes/internal/catalog"
)

// maxHops bounds the conversion walk used for standard-unit aggregation.
// The conversion tables are user-editable, so cycles are possible; past the
// bound the walk fails closed and the quantity keeps its original unit.
const maxHops = 3

// Source loads the reference data the table caches.
type Source interface {
	AllUnits(ctx context.Context) ([]catalog.Unit, error)
	AllGenericConversions(ctx context.Context) ([]catalog.UnitConversion, error)
}

type edge struct {
	to     string
	factor float64
}

// Table resolves unit conversions against a cached copy of the units
// reference table and the generic conversion edges. The cache is refreshed
// lazily once it is older than the TTL; the clock is injectable so tests
// control staleness deterministically.
type Table struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	loadedAt time.Time
	aliases  map[string]string // lowercased technical/fr/jp name -> technical code
	edges    map[string][]edge // from code -> outgoing edges
}

// NewTable creates a conversion table cache. A nil now defaults to
// time.Now; a zero ttl means every call reloads.
func NewTable(source Source, ttl time.Duration, now func() time.Time) *Table {
	if now == nil {
		now = time.Now
	}
	return &Table{source: source, ttl: ttl, now: now}
}

// Invalidate drops the cached data; the next call reloads.
func (t *Table) Invalidate() {
	t.mu.Lock()
	t.loadedAt = time.Time{}
	t.mu.Unlock()
}

// Refresh reloads the reference data unconditionally.
func (t *Table) Refresh(ctx context.Context) error {
	units, err := t.source.AllUnits(ctx)
	if err != nil {
		return err
	}
	conversions, err := t.source.AllGenericConversions(ctx)
	if err != nil {
		return err
	}

	aliases := make(map[string]string, len(units)*3)
	for _, u := range units {
		code := strings.ToLower(u.Code)
		aliases[code] = code
		if u.NameFr != "" {
			aliases[strings.ToLower(u.NameFr)] = code
		}
		if u.NameJp != "" {
			aliases[strings.ToLower(u.NameJp)] = code
		}
	}
	edges := make(map[string][]edge, len(conversions))
	for _, c := range conversions {
		from := strings.ToLower(c.FromUnit)
		edges[from] = append(edges[from], edge{to: strings.ToLower(c.ToUnit), factor: c.Factor})
	}

	t.mu.Lock()
	t.aliases = aliases
	t.edges = edges
	t.loadedAt = t.now()
	t.mu.Unlock()
	return nil
}

func (t *Table) ensure(ctx context.Context) error {
	t.mu.RLock()
	fresh := !t.loadedAt.IsZero() && t.now().Sub(t.loadedAt) < t.ttl
	t.mu.RUnlock()
	if fresh {
		return nil
	}
	return t.Refresh(ctx)
}

// resolve maps a unit name (technical code, French or Japanese display
// name) to its technical code. Unknown units fold to their lowercased
// spelling so conversion edges referencing them still match.
func (t *Table) resolve(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if code, ok := t.aliases[u]; ok {
		return code
	}
	return u
}

// Convert converts a quantity between two units: identity when the units
// match case-insensitively, then a direct conversion edge, then a one-hop
// chain through an intermediate unit. Returns nil when no path exists;
// callers must treat nil as "no conversion available", not as zero.
func (t *Table) Convert(ctx context.Context, qty float64, from, to string) (*float64, error) {
	if strings.EqualFold(strings.TrimSpace(from), strings.TrimSpace(to)) {
		return &qty, nil
	}
	if err := t.ensure(ctx); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	fromCode := t.resolve(from)
	toCode := t.resolve(to)
	if fromCode == toCode {
		return &qty, nil
	}

	// Direct edge, preferred over any chain.
	for _, e := range t.edges[fromCode] {
		if e.to == toCode {
			v := qty * e.factor
			return &v, nil
		}
	}

	// One-hop chain from -> intermediate -> to.
	for _, e1 := range t.edges[fromCode] {
		for _, e2 := range t.edges[e1.to] {
			if e2.to == toCode {
				v := qty * e1.factor * e2.factor
				return &v, nil
			}
		}
	}
	return nil, nil
}

// ToStandard re-expresses a quantity in the standard aggregation unit,
// walking conversion edges breadth-first up to maxHops. Returns nil when
// the standard unit is unreachable.
func (t *Table) ToStandard(ctx context.Context, qty float64, unit, standard string) (*float64, error) {
	if strings.EqualFold(strings.TrimSpace(unit), strings.TrimSpace(standard)) {
		return &qty, nil
	}
	if err := t.ensure(ctx); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	start := t.resolve(unit)
	target := t.resolve(standard)
	if start == target {
		return &qty, nil
	}

	type node struct {
		code   string
		factor float64
		depth  int
	}
	visited := map[string]bool{start: true}
	queue := []node{{code: start, factor: 1, depth: 0}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.depth >= maxHops {
			continue
		}
		for _, e := range t.edges[n.code] {
			if e.to == target {
				v := qty * n.factor * e.factor
				return &v, nil
			}
			if !visited[e.to] {
				visited[e.to] = true
				queue = append(queue, node{code: e.to, factor: n.factor * e.factor, depth: n.depth + 1})
			}
		}
	}
	return nil, nil
}
