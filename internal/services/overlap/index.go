// Package overlap merges concurrently live pools whose price ranges
// intersect into composite zones.
package overlap

import (
	"sort"

	"LiqPool/internal/domain/models"
)

// Interval is one pool's price range on the index.
type Interval struct {
	ID    string
	Side  models.Side
	Start float64
	End   float64
}

func (iv Interval) overlaps(lo, hi float64) bool { return iv.Start <= hi && iv.End >= lo }

// sideList is sorted by (Start, ID). maxLen is the widest interval on the
// list and bounds how far left of lo a query starts scanning.
type sideList struct {
	items  []Interval
	maxLen float64
}

func (l *sideList) search(start float64, id string) int {
	return sort.Search(len(l.items), func(i int) bool {
		it := l.items[i]
		return it.Start > start || (it.Start == start && it.ID >= id)
	})
}

func (l *sideList) insert(iv Interval) {
	i := l.search(iv.Start, iv.ID)
	l.items = append(l.items, Interval{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = iv
	if n := iv.End - iv.Start; n > l.maxLen {
		l.maxLen = n
	}
}

func (l *sideList) remove(iv Interval) bool {
	i := l.search(iv.Start, iv.ID)
	if i >= len(l.items) || l.items[i].ID != iv.ID {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	if iv.End-iv.Start >= l.maxLen {
		l.maxLen = 0
		for _, it := range l.items {
			l.maxLen = max(l.maxLen, it.End-it.Start)
		}
	}
	return true
}

func (l *sideList) query(lo, hi float64) []Interval {
	i := sort.Search(len(l.items), func(i int) bool { return l.items[i].Start >= lo-l.maxLen })
	var out []Interval
	for ; i < len(l.items) && l.items[i].Start <= hi; i++ {
		if l.items[i].End >= lo {
			out = append(out, l.items[i])
		}
	}
	return out
}

// Index is a side-partitioned interval index. With side mixing enabled all
// intervals share one list.
type Index struct {
	mix   bool
	sides map[models.Side]*sideList
	byID  map[string]Interval
}

func NewIndex(allowSideMixing bool) *Index {
	return &Index{
		mix:   allowSideMixing,
		sides: make(map[models.Side]*sideList),
		byID:  make(map[string]Interval),
	}
}

func (x *Index) list(side models.Side) *sideList {
	if x.mix {
		side = ""
	}
	l, ok := x.sides[side]
	if !ok {
		l = &sideList{}
		x.sides[side] = l
	}
	return l
}

// Insert adds iv; an id already on the index is rejected.
func (x *Index) Insert(iv Interval) bool {
	if _, ok := x.byID[iv.ID]; ok {
		return false
	}
	x.list(iv.Side).insert(iv)
	x.byID[iv.ID] = iv
	return true
}

// Remove deletes the interval with id.
func (x *Index) Remove(id string) (Interval, bool) {
	iv, ok := x.byID[id]
	if !ok {
		return Interval{}, false
	}
	x.list(iv.Side).remove(iv)
	delete(x.byID, id)
	return iv, true
}

// Get returns the interval with id.
func (x *Index) Get(id string) (Interval, bool) {
	iv, ok := x.byID[id]
	return iv, ok
}

// Query returns intervals on side that intersect [lo, hi], ordered by start.
func (x *Index) Query(side models.Side, lo, hi float64) []Interval {
	return x.list(side).query(lo, hi)
}

// Len returns the number of indexed intervals.
func (x *Index) Len() int { return len(x.byID) }
