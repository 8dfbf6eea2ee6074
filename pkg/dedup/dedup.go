// Package dedup suppresses QoS-1 redeliveries: the broker may hand the same
// inbound message to us more than once, and processing a duplicate telemetry
// or ack message would double-count votes and audit updates.
package dedup

import (
	"crypto/sha256"
	"sync"
	"time"
)

type seenEntry struct {
	key    [sha256.Size]byte
	expiry time.Time
}

// Deduper remembers recently seen messages, identified by a hash of topic
// and payload, for a TTL. Entries are kept in arrival order so the cap
// evicts oldest-first.
type Deduper struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	seen  map[[sha256.Size]byte]time.Time
	order []seenEntry
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{
		ttl:  ttl,
		max:  max,
		seen: make(map[[sha256.Size]byte]time.Time, max),
	}
}

// ShouldProcess reports whether this topic/payload combination has not been
// seen within the TTL, and records it.
func (d *Deduper) ShouldProcess(topic string, payload []byte) bool {
	h := sha256.New()
	h.Write([]byte(topic))
	h.Write(payload)
	var key [sha256.Size]byte
	h.Sum(key[:0])

	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false
	}
	exp := now.Add(d.ttl)
	d.seen[key] = exp
	d.order = append(d.order, seenEntry{key: key, expiry: exp})
	d.compact(now)
	return true
}

// compact drops expired entries from the head of the arrival order, then
// whatever else is oldest until the cap holds. Entries whose map expiry no
// longer matches were re-recorded later and are skipped here.
func (d *Deduper) compact(now time.Time) {
	i := 0
	for ; i < len(d.order); i++ {
		e := d.order[i]
		exp, ok := d.seen[e.key]
		if ok && exp.Equal(e.expiry) && now.Before(exp) {
			break
		}
		if ok && exp.Equal(e.expiry) {
			delete(d.seen, e.key)
		}
	}
	for len(d.seen) > d.max && i < len(d.order) {
		e := d.order[i]
		if exp, ok := d.seen[e.key]; ok && exp.Equal(e.expiry) {
			delete(d.seen, e.key)
		}
		i++
	}
	d.order = d.order[i:]
}
