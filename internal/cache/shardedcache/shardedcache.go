// Package shardedcache implements cache.Cache over a set of Redis-protocol
// (RESP2) shards, selected per key by srvmon.Monitor and spoken to directly
// over net.Conn — grounded on cache/redis.py's sharded get/set and the
// server-connection-string parsing of its configure().
package shardedcache

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/vsemionov/wordbase/internal/srvmon"
)

// Server is one shard's connection parameters, as parsed from a
// "[password@]host[:port][:db]" connection string (cache/redis.py's
// configure()).
type Server struct {
	Host     string
	Port     int
	DB       int
	Password string
}

func (s Server) addr() string { return net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) }

// ParseServers parses a comma-separated list of connection strings as used
// by the redis section's "servers" key.
func ParseServers(spec string) ([]Server, error) {
	var servers []Server
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s, err := parseServer(part)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("shardedcache: no server connection strings specified")
	}
	return servers, nil
}

func parseServer(spec string) (Server, error) {
	var password string
	at := strings.LastIndex(spec, "@")
	if at >= 0 {
		password = spec[:at]
		spec = spec[at+1:]
	}

	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 1:
		return Server{Host: parts[0], Port: 6379, Password: password}, nil
	case 2:
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return Server{}, fmt.Errorf("shardedcache: invalid port in %q", spec)
		}
		return Server{Host: parts[0], Port: port, Password: password}, nil
	case 3:
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return Server{}, fmt.Errorf("shardedcache: invalid port in %q", spec)
		}
		db, err := strconv.Atoi(parts[2])
		if err != nil {
			return Server{}, fmt.Errorf("shardedcache: invalid db in %q", spec)
		}
		return Server{Host: parts[0], Port: port, DB: db, Password: password}, nil
	default:
		return Server{}, fmt.Errorf("shardedcache: invalid connection string format: %q", spec)
	}
}

// Config controls per-shard network timeouts and the TTL applied on every
// read and write, mirroring cache/redis.py's configure().
type Config struct {
	Timeout time.Duration
	TTL     time.Duration
}

// Cache is a cache.Cache implementation sharding keys across a fixed set
// of RESP2 servers, with shard selection and failover delegated to a
// srvmon.Monitor.
type Cache struct {
	servers []Server
	cfg     Config
	monitor *srvmon.Monitor
}

// New returns a Cache dialing each server lazily, per operation, with
// shard health tracked by an internally-created srvmon.Monitor.
func New(servers []Server, cfg Config, srvmonCfg srvmon.Config) *Cache {
	addrs := make([]string, len(servers))
	for i, s := range servers {
		addrs[i] = s.addr()
	}
	return &Cache{
		servers: servers,
		cfg:     cfg,
		monitor: srvmon.New(nil, addrs, cfg.Timeout, srvmonCfg),
	}
}

func (c *Cache) dial(ctx context.Context, index int) (net.Conn, *bufio.ReadWriter, error) {
	s := c.servers[index]
	d := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return nil, nil, err
	}
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if s.Password != "" {
		if _, err := roundTrip(rw, "AUTH", s.Password); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}
	if s.DB != 0 {
		if _, err := roundTrip(rw, "SELECT", strconv.Itoa(s.DB)); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}
	return conn, rw, nil
}

func roundTrip(rw *bufio.ReadWriter, args ...string) (respValue, error) {
	if err := writeCommand(rw.Writer, args...); err != nil {
		return respValue{}, err
	}
	if err := rw.Flush(); err != nil {
		return respValue{}, err
	}
	v, err := readValue(rw.Reader)
	if err != nil {
		return respValue{}, err
	}
	if v.kind == respErr {
		return respValue{}, fmt.Errorf("shardedcache: server error: %s", v.s)
	}
	return v, nil
}

func (c *Cache) deadline(conn net.Conn) {
	if c.cfg.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.cfg.Timeout))
	}
}

// Get returns the value stored for key, refreshing its TTL on hit when a
// TTL is configured — mirroring redis.py's pipelined GET+EXPIRE. A miss,
// a down shard, or any connection error all report ok=false; callers
// always have the Backend to fall back on.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	index, ok := c.monitor.GetServerIndex(key)
	if !ok {
		return "", false
	}
	conn, rw, err := c.dial(ctx, index)
	if err != nil {
		c.monitor.NotifyServerDown(index)
		return "", false
	}
	defer conn.Close()
	c.deadline(conn)

	if err := writeCommand(rw.Writer, "GET", key); err != nil {
		c.monitor.NotifyServerDown(index)
		return "", false
	}
	if c.cfg.TTL > 0 {
		if err := writeCommand(rw.Writer, "EXPIRE", key, strconv.Itoa(int(c.cfg.TTL.Seconds()))); err != nil {
			c.monitor.NotifyServerDown(index)
			return "", false
		}
	}
	if err := rw.Flush(); err != nil {
		c.monitor.NotifyServerDown(index)
		return "", false
	}

	v, err := readValue(rw.Reader)
	if err != nil {
		c.monitor.NotifyServerDown(index)
		return "", false
	}
	if c.cfg.TTL > 0 {
		if _, err := readValue(rw.Reader); err != nil {
			c.monitor.NotifyServerDown(index)
			return "", false
		}
	}

	if v.kind != respBulk {
		return "", false
	}
	return v.s, true
}

// Set stores value under key with the configured TTL, if any. Failures are
// swallowed beyond marking the shard down: caching is best-effort.
func (c *Cache) Set(ctx context.Context, key, value string) {
	index, ok := c.monitor.GetServerIndex(key)
	if !ok {
		return
	}
	conn, rw, err := c.dial(ctx, index)
	if err != nil {
		c.monitor.NotifyServerDown(index)
		return
	}
	defer conn.Close()
	c.deadline(conn)

	if err := writeCommand(rw.Writer, "SET", key, value); err != nil {
		c.monitor.NotifyServerDown(index)
		return
	}
	if c.cfg.TTL > 0 {
		if err := writeCommand(rw.Writer, "EXPIRE", key, strconv.Itoa(int(c.cfg.TTL.Seconds()))); err != nil {
			c.monitor.NotifyServerDown(index)
			return
		}
	}
	if err := rw.Flush(); err != nil {
		c.monitor.NotifyServerDown(index)
		return
	}
	if _, err := readValue(rw.Reader); err != nil {
		c.monitor.NotifyServerDown(index)
		return
	}
	if c.cfg.TTL > 0 {
		readValue(rw.Reader)
	}
}

// Close stops the embedded monitor's heartbeats. The cache itself holds no
// persistent connections to close.
func (c *Cache) Close() error {
	c.monitor.Stop()
	return nil
}
