package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a digest to a topic. The Kafka producer adapter in
// internal/repository implements it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	Source         string        // process identity stamped on every digest (coordinator, worker id)
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries before an early flush
	Topic          string
	Publisher      Publisher
}

// DigestEntry is one distinct (level, message, fields, caller) tuple seen in
// the window and how often it occurred.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

type Digest struct {
	Source      string        `json:"source"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	Entries     []DigestEntry `json:"entries"`
}

// LogCollector deduplicates warn/error entries and publishes them as a
// periodic digest instead of one message per log line.
type LogCollector struct {
	config *CollectionConfig

	mu          sync.Mutex
	entries     map[string]*DigestEntry
	windowStart time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	c := &LogCollector{
		config:      config,
		entries:     make(map[string]*DigestEntry),
		windowStart: time.Now().UTC(),
		done:        make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now().UTC()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
		return
	}
	c.entries[key] = &DigestEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
	if len(c.entries) >= c.config.CountThreshold {
		c.flushLocked(now)
	}
}

// json.Marshal sorts map keys, so equal field sets hash equally.
func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	raw, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (c *LogCollector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked(time.Now().UTC())
			c.mu.Unlock()
		case <-c.done:
			c.mu.Lock()
			c.flushLocked(time.Now().UTC())
			c.mu.Unlock()
			return
		}
	}
}

// caller holds mu
func (c *LogCollector) flushLocked(now time.Time) {
	if len(c.entries) == 0 {
		c.windowStart = now
		return
	}

	d := Digest{
		Source:      c.config.Source,
		WindowStart: c.windowStart,
		WindowEnd:   now,
		Entries:     make([]DigestEntry, 0, len(c.entries)),
	}
	for _, e := range c.entries {
		d.Entries = append(d.Entries, *e)
	}
	sort.Slice(d.Entries, func(i, j int) bool {
		if d.Entries[i].Count != d.Entries[j].Count {
			return d.Entries[i].Count > d.Entries[j].Count
		}
		return d.Entries[i].FirstSeen.Before(d.Entries[j].FirstSeen)
	})

	c.entries = make(map[string]*DigestEntry)
	c.windowStart = now

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, d); err != nil {
			// the logger itself may be what feeds us; avoid recursion
			fmt.Fprintf(os.Stderr, "log digest publish failed: %v\n", err)
		}
	}()
}

// Close flushes what is pending and waits for in-flight publishes.
func (c *LogCollector) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}
