// Package srvmon implements the ServerMonitor: a background heartbeat over
// a fixed set of addresses (cache shards) with hash-mod-N primary selection
// and up-set fallback, grounded on util/srvmon.py.
package srvmon

import (
	"hash/fnv"
	"log"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls whether and how often heartbeats run.
type Config struct {
	Enable   bool
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultConfig mirrors srvmon.py's configure() defaults: enabled, 1s
// interval, 5s dial timeout.
func DefaultConfig() Config {
	return Config{Enable: true, Interval: time.Second, Timeout: 5 * time.Second}
}

// Monitor tracks the up/down status of a fixed ordered list of addresses and
// picks a primary shard index per key by hashing, falling back to any
// up shard when the primary is down.
type Monitor struct {
	logger   *log.Logger
	servers  []string
	statuses []int32 // atomically updated; 1 = up, 0 = down
	stop     chan struct{}
	stopOnce sync.Once
}

// New starts heartbeat goroutines (unless cfg.Enable is false, in which
// case all servers are assumed up and no goroutines are started) for each
// address and returns a Monitor. timeout overrides cfg.Timeout when
// nonzero, mirroring srvmon.py's per-cache-backend timeout override.
func New(logger *log.Logger, servers []string, timeout time.Duration, cfg Config) *Monitor {
	if timeout == 0 {
		timeout = cfg.Timeout
	}
	m := &Monitor{
		logger:   logger,
		servers:  append([]string{}, servers...),
		statuses: make([]int32, len(servers)),
		stop:     make(chan struct{}),
	}
	for i := range m.statuses {
		atomic.StoreInt32(&m.statuses[i], 1)
	}
	if !cfg.Enable {
		return m
	}
	for i, addr := range m.servers {
		go m.heartbeat(i, addr, timeout, cfg.Interval)
	}
	return m
}

func (m *Monitor) logStatus(addr string, up bool) {
	if m.logger == nil {
		return
	}
	if up {
		m.logger.Printf("[INFO] server %s is up", addr)
	} else {
		m.logger.Printf("[WARNING] server %s is down", addr)
	}
}

func (m *Monitor) heartbeat(index int, addr string, timeout, interval time.Duration) {
	time.Sleep(time.Duration(rand.Float64() * float64(time.Second)))
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		conn, err := net.DialTimeout("tcp", addr, timeout)
		up := err == nil
		if up {
			conn.Close()
		}
		prev := atomic.LoadInt32(&m.statuses[index]) == 1
		if prev != up {
			m.logStatus(addr, up)
		}
		if up {
			atomic.StoreInt32(&m.statuses[index], 1)
		} else {
			atomic.StoreInt32(&m.statuses[index], 0)
		}
		time.Sleep(interval)
	}
}

// Stop halts all heartbeat goroutines. It does not close any connections
// since heartbeats dial-and-close on each probe. Calling Stop more than
// once is safe.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) isUp(index int) bool {
	return atomic.LoadInt32(&m.statuses[index]) == 1
}

func hashKey(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}

// GetServerIndex returns the shard index to use for key: the hash-mod-N
// primary if it's up, else a hash-mod-(available) fallback among the up
// shards, preserving their relative order. It returns ok=false when no
// shard is up.
func (m *Monitor) GetServerIndex(key string) (index int, ok bool) {
	n := len(m.servers)
	if n == 0 {
		return 0, false
	}
	h := hashKey(key)
	primary := int(h % uint64(n))
	if m.isUp(primary) {
		return primary, true
	}
	var avail []int
	for i := 0; i < n; i++ {
		if m.isUp(i) {
			avail = append(avail, i)
		}
	}
	if len(avail) == 0 {
		return 0, false
	}
	return avail[int(h%uint64(len(avail)))], true
}

// NotifyServerDown marks index as down immediately, without waiting for the
// next heartbeat tick; called by the cache client on a connection failure.
func (m *Monitor) NotifyServerDown(index int) {
	if atomic.LoadInt32(&m.statuses[index]) == 1 {
		m.logStatus(m.servers[index], false)
	}
	atomic.StoreInt32(&m.statuses[index], 0)
}
