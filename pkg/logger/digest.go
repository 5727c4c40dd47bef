package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
)

// Publisher ships digests; the Kafka producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// DigestConfig controls how often repeated warnings and errors are shipped.
type DigestConfig struct {
	Interval   time.Duration
	MaxEntries int
	Topic      string
	Publisher  Publisher
}

// DigestEntry is one distinct (level, message, fields, caller) with the
// number of times it was logged inside the window.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Digest deduplicates warnings and errors and ships them in batches, so a
// flapping feed produces one record per window instead of one per retry.
type Digest struct {
	cfg     DigestConfig
	mu      sync.Mutex
	entries map[uint64]*DigestEntry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func NewDigest(cfg DigestConfig) *Digest {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Digest{
		cfg:     cfg,
		entries: make(map[uint64]*DigestEntry),
		ctx:     ctx,
		cancel:  cancel,
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Add records one occurrence.
func (d *Digest) Add(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now().UTC()
	key := digestKey(level, message, fields, caller)

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		d.entries[key] = &DigestEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	if len(d.entries) >= d.cfg.MaxEntries {
		d.flushLocked()
	}
}

// Pending returns the number of distinct entries waiting to be shipped.
func (d *Digest) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Close ships what is pending and waits for in-flight publishes.
func (d *Digest) Close() {
	d.once.Do(func() {
		d.cancel()
		d.wg.Wait()
	})
}

func digestKey(level, message string, fields map[string]interface{}, caller string) uint64 {
	// map keys marshal in sorted order, so equal inputs hash equally
	raw, _ := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	return xxhash.Sum64(raw)
}

func (d *Digest) loop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
		case <-d.ctx.Done():
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
			return
		}
	}
}

func (d *Digest) flushLocked() {
	if len(d.entries) == 0 {
		return
	}
	batch := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		batch = append(batch, *e)
	}
	d.entries = make(map[uint64]*DigestEntry)
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })

	if d.cfg.Publisher == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.cfg.Publisher.Publish(ctx, d.cfg.Topic, nil, batch); err != nil {
			fmt.Fprintf(os.Stderr, "logger: ship digest of %d entries: %v\n", len(batch), err)
		}
	}()
}
