package pool

import (
	"sort"
	"time"

	"LiqPool/pkg/clock"
)

// Entry is one scheduled expiry.
type Entry struct {
	ID        string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// WheelConfig sizes the wheel levels. Slot counts are fixed at construction.
type WheelConfig struct {
	Seconds int
	Minutes int
	Hours   int
	Days    int
}

// DefaultWheelConfig is seconds[60], minutes[60], hours[24], days[7].
func DefaultWheelConfig() WheelConfig {
	return WheelConfig{Seconds: 60, Minutes: 60, Hours: 24, Days: 7}
}

const (
	levelSeconds = iota
	levelMinutes
	levelHours
	levelDays
	levelOverflow
	numLevels
)

type slotRef struct {
	level int
	slot  int
	index int
}

type wentry struct {
	Entry
	at int64
}

// TimingWheel is a hierarchical timing wheel with one-second resolution.
// Entries live in the finest level whose span covers their remaining delay
// and cascade down as coarser slots come due. Entries further out than the
// coarsest level's span wait in an overflow list.
//
// Slot units are fixed at a second, a minute, an hour and a day. Counts below
// the defaults are raised to them; only the day count changes how far ahead
// entries are held before falling into the overflow list.
type TimingWheel struct {
	cur    int64
	levels [numLevels - 1][][]wentry
	over   []wentry
	index  map[string]slotRef
	counts [numLevels]int
	unit   [numLevels - 1]int64
	span   [numLevels - 1]int64
}

// NewTimingWheel positions the wheel at start (truncated to the second).
func NewTimingWheel(start time.Time, cfg WheelConfig) *TimingWheel {
	def := DefaultWheelConfig()
	if cfg.Seconds < 60 {
		cfg.Seconds = def.Seconds
	}
	if cfg.Minutes < 60 {
		cfg.Minutes = def.Minutes
	}
	if cfg.Hours < 24 {
		cfg.Hours = def.Hours
	}
	if cfg.Days < 1 {
		cfg.Days = def.Days
	}
	w := &TimingWheel{
		cur:   start.Unix(),
		index: make(map[string]slotRef),
		unit:  [numLevels - 1]int64{1, 60, 3600, 86400},
	}
	sizes := [numLevels - 1]int{cfg.Seconds, cfg.Minutes, cfg.Hours, cfg.Days}
	for l, n := range sizes {
		w.levels[l] = make([][]wentry, n)
		w.span[l] = w.unit[l] * int64(n)
	}
	// A level only reaches as far as the next level's unit, so cascades line
	// up with rollover boundaries.
	for l := 0; l < len(w.span)-1; l++ {
		w.span[l] = w.unit[l+1]
	}
	return w
}

// Now returns the wheel's current time.
func (w *TimingWheel) Now() time.Time { return time.Unix(w.cur, 0).UTC() }

// Len returns the number of scheduled entries.
func (w *TimingWheel) Len() int { return len(w.index) }

// Scheduled reports whether id is on the wheel.
func (w *TimingWheel) Scheduled(id string) bool {
	_, ok := w.index[id]
	return ok
}

// Schedule places id on the wheel. It fails when id is already scheduled,
// when expiresAt does not round up past the wheel's current second, or when
// expiresAt precedes createdAt. A fractional expiry fires on the next whole
// second, never before it.
func (w *TimingWheel) Schedule(id string, expiresAt, createdAt time.Time) bool {
	if _, ok := w.index[id]; ok {
		return false
	}
	at := ceilUnix(expiresAt)
	if at <= w.cur {
		return false
	}
	if !createdAt.IsZero() && expiresAt.Before(createdAt) {
		return false
	}
	w.place(wentry{Entry: Entry{ID: id, ExpiresAt: expiresAt, CreatedAt: createdAt}, at: at})
	return true
}

// Cancel removes id in O(1).
func (w *TimingWheel) Cancel(id string) bool {
	ref, ok := w.index[id]
	if !ok {
		return false
	}
	w.remove(ref)
	delete(w.index, id)
	return true
}

// Tick advances the wheel to now and returns every entry that expired on the
// way, in expiry order. Moving backward returns clock.ErrBackward.
func (w *TimingWheel) Tick(now time.Time) ([]Entry, error) {
	target := now.Unix()
	if target < w.cur {
		return nil, clock.ErrBackward
	}
	var fired []Entry
	for w.cur < target {
		w.cur = w.next(target)
		w.cascade()
		fired = w.drain(fired)
	}
	sortEntries(fired)
	return fired, nil
}

// ExpireDue lists entries due at or before now without advancing the wheel.
func (w *TimingWheel) ExpireDue(now time.Time) []Entry {
	limit := now.Unix()
	var out []Entry
	visit := func(e wentry) {
		if e.at <= limit {
			out = append(out, e.Entry)
		}
	}
	for l := range w.levels {
		if w.counts[l] == 0 {
			continue
		}
		for _, slot := range w.levels[l] {
			for _, e := range slot {
				visit(e)
			}
		}
	}
	for _, e := range w.over {
		visit(e)
	}
	sortEntries(out)
	return out
}

func ceilUnix(t time.Time) int64 {
	s := t.Unix()
	if t.Nanosecond() > 0 {
		s++
	}
	return s
}

// next returns the next second worth visiting on the way to target: every
// second while the seconds level holds entries, otherwise the next boundary
// of the finest non-empty level, otherwise target.
func (w *TimingWheel) next(target int64) int64 {
	step := w.cur + 1
	if w.counts[levelSeconds] > 0 {
		return step
	}
	for l := levelMinutes; l < numLevels; l++ {
		if w.counts[l] == 0 {
			continue
		}
		u := w.unit[min(l, levelDays)]
		b := (w.cur/u + 1) * u
		return min(b, target)
	}
	return target
}

// cascade moves entries from coarse slots that came due at cur into finer
// levels, coarsest first.
func (w *TimingWheel) cascade() {
	if w.cur%w.unit[levelDays] == 0 {
		if w.counts[levelOverflow] > 0 {
			over := w.over
			w.over = nil
			w.counts[levelOverflow] = 0
			for _, e := range over {
				w.place(e)
			}
		}
		w.redistribute(levelDays)
	}
	if w.cur%w.unit[levelHours] == 0 {
		w.redistribute(levelHours)
	}
	if w.cur%w.unit[levelMinutes] == 0 {
		w.redistribute(levelMinutes)
	}
}

func (w *TimingWheel) redistribute(level int) {
	if w.counts[level] == 0 {
		return
	}
	idx := w.slotFor(level, w.cur)
	slot := w.levels[level][idx]
	if len(slot) == 0 {
		return
	}
	w.levels[level][idx] = slot[:0:0]
	w.counts[level] -= len(slot)
	for _, e := range slot {
		w.place(e)
	}
}

func (w *TimingWheel) drain(fired []Entry) []Entry {
	idx := w.slotFor(levelSeconds, w.cur)
	slot := w.levels[levelSeconds][idx]
	if len(slot) == 0 {
		return fired
	}
	var keep []wentry
	for _, e := range slot {
		if e.at <= w.cur {
			delete(w.index, e.ID)
			fired = append(fired, e.Entry)
			continue
		}
		keep = append(keep, e)
	}
	w.counts[levelSeconds] -= len(slot) - len(keep)
	w.levels[levelSeconds][idx] = keep
	for i, e := range keep {
		w.index[e.ID] = slotRef{level: levelSeconds, slot: idx, index: i}
	}
	return fired
}

// place files e into the finest level that covers its remaining delay.
func (w *TimingWheel) place(e wentry) {
	delta := e.at - w.cur
	if delta < 1 {
		// already due: the current seconds slot drains on this tick
		delta = 0
	}
	level := levelOverflow
	for l := levelSeconds; l <= levelDays; l++ {
		if delta < w.span[l] {
			level = l
			break
		}
	}
	if level == levelOverflow {
		w.over = append(w.over, e)
		w.index[e.ID] = slotRef{level: levelOverflow, index: len(w.over) - 1}
		w.counts[levelOverflow]++
		return
	}
	at := e.at
	if at < w.cur {
		at = w.cur
	}
	idx := w.slotFor(level, at)
	w.levels[level][idx] = append(w.levels[level][idx], e)
	w.index[e.ID] = slotRef{level: level, slot: idx, index: len(w.levels[level][idx]) - 1}
	w.counts[level]++
}

func (w *TimingWheel) slotFor(level int, at int64) int {
	n := int64(len(w.levels[level]))
	return int((at / w.unit[level]) % n)
}

// remove swap-deletes the entry at ref and fixes the moved entry's index.
func (w *TimingWheel) remove(ref slotRef) {
	var list *[]wentry
	if ref.level == levelOverflow {
		list = &w.over
	} else {
		list = &w.levels[ref.level][ref.slot]
	}
	s := *list
	last := len(s) - 1
	if ref.index != last {
		s[ref.index] = s[last]
		moved := s[ref.index]
		w.index[moved.ID] = slotRef{level: ref.level, slot: ref.slot, index: ref.index}
	}
	*list = s[:last]
	w.counts[ref.level]--
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].ExpiresAt.Equal(es[j].ExpiresAt) {
			return es[i].ExpiresAt.Before(es[j].ExpiresAt)
		}
		return es[i].ID < es[j].ID
	})
}
