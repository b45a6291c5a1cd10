package mixer

import "slices"

// ApplyOrder stable-sorts groups so keys listed in order come first in that
// relative order and unlisted keys follow in their current relative order.
// The result is reached through single moves so observers see incremental
// changes. Unknown keys in order are ignored.
func (e *Engine) ApplyOrder(order []string) {
	if len(order) == 0 || len(e.groups) < 2 {
		return
	}

	rank := make(map[string]int, len(order))
	for i, key := range order {
		if _, ok := rank[key]; !ok {
			rank[key] = i
		}
	}
	last := len(order)
	rankOf := func(g *Group) int {
		if r, ok := rank[g.key]; ok {
			return r
		}
		return last
	}

	sorted := slices.Clone(e.groups)
	slices.SortStableFunc(sorted, func(a, b *Group) int {
		return rankOf(a) - rankOf(b)
	})

	for i, g := range sorted {
		from := slices.Index(e.groups, g)
		if from != i {
			e.move(from, i)
		}
	}
}

// Move relocates the group at from to index to, shifting the groups in
// between. Out-of-range indexes are ignored.
func (e *Engine) Move(from, to int) bool {
	if from < 0 || from >= len(e.groups) || to < 0 || to >= len(e.groups) || from == to {
		return false
	}
	e.move(from, to)
	return true
}

func (e *Engine) move(from, to int) {
	g := e.groups[from]
	e.groups = slices.Delete(e.groups, from, from+1)
	e.groups = slices.Insert(e.groups, to, g)
	e.emit.emit(Change{Key: g.key, Field: FieldMoved, Index: to, From: from})
}

// Order returns the display keys in current order.
func (e *Engine) Order() []string {
	keys := make([]string, len(e.groups))
	for i, g := range e.groups {
		keys[i] = g.key
	}
	return keys
}
