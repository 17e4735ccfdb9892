package shardedcache

import "testing"

func TestParseServersSingleHost(t *testing.T) {
	servers, err := ParseServers("localhost")
	if err != nil {
		t.Fatalf("ParseServers: %v", err)
	}
	if len(servers) != 1 || servers[0].Host != "localhost" || servers[0].Port != 6379 {
		t.Fatalf("got %+v", servers)
	}
}

func TestParseServersHostPort(t *testing.T) {
	servers, err := ParseServers("cache1:6380")
	if err != nil {
		t.Fatalf("ParseServers: %v", err)
	}
	if servers[0].Host != "cache1" || servers[0].Port != 6380 {
		t.Fatalf("got %+v", servers[0])
	}
}

func TestParseServersHostPortDB(t *testing.T) {
	servers, err := ParseServers("cache1:6380:2")
	if err != nil {
		t.Fatalf("ParseServers: %v", err)
	}
	if servers[0].DB != 2 {
		t.Fatalf("got %+v", servers[0])
	}
}

func TestParseServersWithPassword(t *testing.T) {
	servers, err := ParseServers("secret@cache1:6380")
	if err != nil {
		t.Fatalf("ParseServers: %v", err)
	}
	if servers[0].Password != "secret" || servers[0].Host != "cache1" {
		t.Fatalf("got %+v", servers[0])
	}
}

func TestParseServersMultiple(t *testing.T) {
	servers, err := ParseServers("a:6379, b:6380")
	if err != nil {
		t.Fatalf("ParseServers: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %+v", servers)
	}
}

func TestParseServersEmptyFails(t *testing.T) {
	if _, err := ParseServers(""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseServersInvalidPort(t *testing.T) {
	if _, err := ParseServers("cache1:notaport"); err == nil {
		t.Fatalf("expected error")
	}
}
