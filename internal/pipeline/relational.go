package pipeline

// EquiJoin performs an inner hash join. The right side is indexed by key, a later
// right element replacing an earlier one with the same key. Every left element
// with a match yields merge(left, right); output follows left order.
func EquiJoin[L, R any, K comparable, M any](
	left []L,
	right []R,
	leftKey func(L) K,
	rightKey func(R) K,
	merge func(L, R) M,
) []M {
	index := make(map[K]R, len(right))
	for _, r := range right {
		index[rightKey(r)] = r
	}

	out := make([]M, 0, min(len(left), len(index)))
	for _, l := range left {
		if r, ok := index[leftKey(l)]; ok {
			out = append(out, merge(l, r))
		}
	}
	return out
}

// Groups is the result of GroupBy: groups in first-seen key order.
type Groups[K comparable, T any] struct {
	keys  []K
	items map[K][]T
}

// GroupBy partitions items by key. Keys keep first-seen order and each group
// keeps input order.
func GroupBy[T any, K comparable](items []T, keyOf func(T) K) *Groups[K, T] {
	g := &Groups[K, T]{items: make(map[K][]T)}
	for _, it := range items {
		k := keyOf(it)
		if _, seen := g.items[k]; !seen {
			g.keys = append(g.keys, k)
		}
		g.items[k] = append(g.items[k], it)
	}
	return g
}

// Keys returns the group keys in first-seen order.
func (g *Groups[K, T]) Keys() []K { return g.keys }

// Get returns the members of group k.
func (g *Groups[K, T]) Get(k K) []T { return g.items[k] }

// Len is the number of groups.
func (g *Groups[K, T]) Len() int { return len(g.keys) }

// First collapses every group to its first member.
func (g *Groups[K, T]) First() []T {
	out := make([]T, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, g.items[k][0])
	}
	return out
}
