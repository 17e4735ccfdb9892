package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wordbase.conf")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConf(t, "[modules]\ndb = pgsql\n")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Wordbase.Port != 2628 {
		t.Fatalf("got port %d", c.Wordbase.Port)
	}
	if c.Wordbase.Timeout != 30*time.Second {
		t.Fatalf("got timeout %v", c.Wordbase.Timeout)
	}
	if c.Modules.MP != "thread" {
		t.Fatalf("got mp %q", c.Modules.MP)
	}
	if c.Dict.DefaultStrategy != "prefix" {
		t.Fatalf("got default strategy %q", c.Dict.DefaultStrategy)
	}
}

func TestLoadOverridesFields(t *testing.T) {
	path := writeConf(t, `
[wordbase]
host = 127.0.0.1
port = 2700

[dict]
server = testserver
strategies = exact:exact,prefix

[modules]
mp = fork
db = pgsql
cache = redis
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Wordbase.Host != "127.0.0.1" || c.Wordbase.Port != 2700 {
		t.Fatalf("got %+v", c.Wordbase)
	}
	if c.Dict.Server != "testserver" {
		t.Fatalf("got %+v", c.Dict)
	}
	if c.Dict.DefaultStrategy != "exact" || len(c.Dict.Strategies) != 2 {
		t.Fatalf("got %+v", c.Dict)
	}
	if c.Modules.MP != "fork" || c.Modules.Cache != "redis" {
		t.Fatalf("got %+v", c.Modules)
	}
}

func TestLoadRejectsUnknownMP(t *testing.T) {
	path := writeConf(t, "[modules]\nmp = gevent\ndb = pgsql\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadRejectsMissingDB(t *testing.T) {
	path := writeConf(t, "[modules]\nmp = thread\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadRejectsBadStrategiesFormat(t *testing.T) {
	path := writeConf(t, "[modules]\ndb = pgsql\n[dict]\nstrategies = exact,prefix\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadRejectsDefaultNotInSet(t *testing.T) {
	path := writeConf(t, "[modules]\ndb = pgsql\n[dict]\nstrategies = soundex:exact,prefix\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Fatal("expected error")
	}
}
