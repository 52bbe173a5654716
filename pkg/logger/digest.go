package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships an aggregated payload to an external channel.
type Publisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type DigestConfig struct {
	Interval  time.Duration // flush period
	MaxUnique int           // flush early once this many distinct entries are pending
	MsgType   string
	Publisher Publisher
}

type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// ErrorDigest collapses repeated error logs and publishes them in batches.
type ErrorDigest struct {
	cfg     DigestConfig
	mu      sync.Mutex
	entries map[string]*DigestEntry
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func NewErrorDigest(cfg *DigestConfig) *ErrorDigest {
	c := DigestConfig{Interval: 30 * time.Second, MaxUnique: 100, MsgType: "log_digest"}
	if cfg != nil {
		if cfg.Interval > 0 {
			c.Interval = cfg.Interval
		}
		if cfg.MaxUnique > 0 {
			c.MaxUnique = cfg.MaxUnique
		}
		if cfg.MsgType != "" {
			c.MsgType = cfg.MsgType
		}
		c.Publisher = cfg.Publisher
	}
	d := &ErrorDigest{cfg: c, entries: map[string]*DigestEntry{}, stop: make(chan struct{})}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *ErrorDigest) Add(level, msg string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := digestKey(level, msg, fields, caller)

	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		d.entries[key] = &DigestEntry{Level: level, Message: msg, Fields: fields, Caller: caller, Count: 1, FirstSeen: now, LastSeen: now}
	}
	if len(d.entries) >= d.cfg.MaxUnique {
		d.flushLocked()
	}
}

// Pending reports the number of distinct entries not yet published.
func (d *ErrorDigest) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *ErrorDigest) loop() {
	defer d.wg.Done()
	t := time.NewTicker(d.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
		case <-d.stop:
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
			return
		}
	}
}

func (d *ErrorDigest) flushLocked() {
	if len(d.entries) == 0 {
		return
	}
	batch := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		batch = append(batch, *e)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	d.entries = map[string]*DigestEntry{}

	if d.cfg.Publisher == nil {
		return
	}
	pub, typ := d.cfg.Publisher, d.cfg.MsgType
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pub.PublishMessage(ctx, typ, batch); err != nil {
			// the logger itself feeds this digest, so report out of band
			fmt.Fprintf(os.Stderr, "publish log digest: %v\n", err)
		}
	}()
}

// Close flushes pending entries and waits for in-flight publishes.
func (d *ErrorDigest) Close() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func digestKey(level, msg string, fields map[string]interface{}, caller string) string {
	b, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, msg, fields, caller})
	return fmt.Sprintf("%x", sha256.Sum256(b))
}
