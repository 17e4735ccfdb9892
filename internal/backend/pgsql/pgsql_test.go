package pgsql

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := Config{}.withDefaults()
	want := DefaultConfig()
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
}

func TestWithDefaultsPreservesOverrides(t *testing.T) {
	cfg := Config{Host: "db.internal", Port: 6543, User: "wb", Database: "wbprod", Schema: "wb"}.withDefaults()
	if cfg.Host != "db.internal" || cfg.Port != 6543 || cfg.User != "wb" || cfg.Database != "wbprod" || cfg.Schema != "wb" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestWithDefaultsFillsOnlyZeroFields(t *testing.T) {
	cfg := Config{Port: 5433}.withDefaults()
	if cfg.Host != "localhost" || cfg.Port != 5433 || cfg.User != "nobody" || cfg.Database != "wordbase" || cfg.Schema != "public" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestDSNIncludesAllFields(t *testing.T) {
	b := NewBackend(Config{Host: "h", Port: 1, User: "u", Password: "p", Database: "d"})
	dsn := b.dsn()
	for _, want := range []string{"host=h", "port=1", "user=u", "password=p", "dbname=d", "sslmode=disable"} {
		if !contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestNewBackendAppliesDefaultSchema(t *testing.T) {
	b := NewBackend(Config{})
	if b.schema() != "public" {
		t.Fatalf("got %q", b.schema())
	}
}

func TestCloseWithoutOpenIsNoop(t *testing.T) {
	b := NewBackend(Config{})
	if err := b.Close(); err != nil {
		t.Fatalf("Close on unopened backend: %v", err)
	}
}
