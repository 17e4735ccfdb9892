// Package config loads the wordbase server's INI configuration file,
// generalizing smtpd's YAML-based Config/ServerConfig split (smtpd/config.go)
// to the section layout described by the [wordbase]/[dict]/[modules]/
// [thread]/[fork]/[pgsql]/[redis]/[srvmon] sections.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// WordbaseConfig is the [wordbase] section: listener and process settings.
type WordbaseConfig struct {
	Host    string        `ini:"host"`
	Port    int           `ini:"port"`
	Backlog int           `ini:"backlog"`
	Timeout time.Duration `ini:"timeout"`
	PidFile string        `ini:"pidfile"`
	User    string        `ini:"user"`
	Group   string        `ini:"group"`
}

// DictConfig is the [dict] section: server identity banner fields and the
// strategy registry.
type DictConfig struct {
	Server string `ini:"server"`
	Domain string `ini:"domain"`
	Info   string `ini:"info"`

	// Parsed out of the raw "strategies" key by parseStrategies; not
	// mapped directly by ini.v1.
	DefaultStrategy string `ini:"-"`
	Strategies      []string `ini:"-"`
}

// ModulesConfig is the [modules] section: which worker-dispatch, storage,
// and cache implementations to construct, replacing the original's
// modules.mp()/db()/cache() dynamic-loading indirection with a plain name.
type ModulesConfig struct {
	MP    string `ini:"mp"`    // "thread" or "fork"
	DB    string `ini:"db"`    // e.g. "pgsql"
	Cache string `ini:"cache"` // e.g. "redis", or "none"
}

// DispatchConfig is the shared shape of [thread] and [fork]: whichever one
// ModulesConfig.MP selects.
type DispatchConfig struct {
	MaxClients int `ini:"max-clients"`
}

// PgsqlConfig is the [pgsql] section.
type PgsqlConfig struct {
	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"password"`
	Database string `ini:"database"`
	Schema   string `ini:"schema"`
}

// RedisConfig is the [redis] section.
type RedisConfig struct {
	Servers string        `ini:"servers"`
	Timeout time.Duration `ini:"timeout"`
	TTL     time.Duration `ini:"ttl"`
}

// SrvmonConfig is the [srvmon] section.
type SrvmonConfig struct {
	Enable   bool          `ini:"enable"`
	Interval time.Duration `ini:"interval"`
	Timeout  time.Duration `ini:"timeout"`
}

// Config is the fully parsed configuration file, one field per INI section.
type Config struct {
	Wordbase WordbaseConfig
	Dict     DictConfig
	Modules  ModulesConfig
	Thread   DispatchConfig
	Fork     DispatchConfig
	Pgsql    PgsqlConfig
	Redis    RedisConfig
	Srvmon   SrvmonConfig

	LogFile           string
	LogSyslogFacility string
}

func defaults() Config {
	return Config{
		Wordbase: WordbaseConfig{
			Host:    "0.0.0.0",
			Port:    2628,
			Backlog: 20,
			Timeout: 30 * time.Second,
			PidFile: "/var/run/wordbase.pid",
		},
		Dict: DictConfig{
			Server:          "wordbase",
			DefaultStrategy: "prefix",
			Strategies:      []string{"exact", "prefix"},
		},
		Modules: ModulesConfig{
			MP:    "thread",
			Cache: "none",
		},
		Thread: DispatchConfig{MaxClients: 20},
		Fork:   DispatchConfig{MaxClients: 20},
		Pgsql: PgsqlConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "nobody",
			Database: "wordbase",
			Schema:   "public",
		},
		Redis: RedisConfig{
			Timeout: 5 * time.Second,
		},
		Srvmon: SrvmonConfig{
			Enable:   true,
			Interval: time.Second,
			Timeout:  5 * time.Second,
		},
	}
}

// Load parses the INI file at path into a Config: it starts from the
// built-in defaults, then maps each section present in the file over them,
// so only keys given in the file replace a default.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	c := defaults()

	if s := f.Section("wordbase"); s != nil {
		mapSection(s, &c.Wordbase)
	}
	if s := f.Section("dict"); s != nil {
		mapSection(s, &c.Dict)
		if strat := s.Key("strategies").String(); strat != "" {
			def, names, err := parseStrategies(strat)
			if err != nil {
				return nil, err
			}
			c.Dict.DefaultStrategy = def
			c.Dict.Strategies = names
		}
	}
	if s := f.Section("modules"); s != nil {
		mapSection(s, &c.Modules)
	}
	if s := f.Section("thread"); s != nil {
		mapSection(s, &c.Thread)
	}
	if s := f.Section("fork"); s != nil {
		mapSection(s, &c.Fork)
	}
	if s := f.Section("pgsql"); s != nil {
		mapSection(s, &c.Pgsql)
	}
	if s := f.Section("redis"); s != nil {
		mapSection(s, &c.Redis)
	}
	if s := f.Section("srvmon"); s != nil {
		mapSection(s, &c.Srvmon)
	}
	if s := f.Section("logging"); s != nil {
		c.LogFile = s.Key("file").String()
		c.LogSyslogFacility = s.Key("syslogfacility").String()
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// mapSection is a thin wrapper over ini.v1's MapTo and returns its error
// unchanged. Load does not check that error, so a value that fails to
// convert leaves its field at the default.
func mapSection(s *ini.Section, dest interface{}) error {
	return s.MapTo(dest)
}

// parseStrategies splits the "default:name1,name2,…" format described by
// spec §6 into a default strategy name and the ordered set of enabled
// names.
func parseStrategies(spec string) (string, []string, error) {
	idx := strings.IndexByte(spec, ':')
	if idx < 0 {
		return "", nil, fmt.Errorf("config: strategies must be \"default:name1,name2,...\", got %q", spec)
	}
	def := strings.TrimSpace(spec[:idx])
	var names []string
	for _, n := range strings.Split(spec[idx+1:], ",") {
		n = strings.TrimSpace(n)
		if n != "" {
			names = append(names, n)
		}
	}
	if def == "" || len(names) == 0 {
		return "", nil, fmt.Errorf("config: strategies must name a default and at least one strategy, got %q", spec)
	}
	found := false
	for _, n := range names {
		if n == def {
			found = true
			break
		}
	}
	if !found {
		return "", nil, fmt.Errorf("config: default strategy %q is not in the enabled set %v", def, names)
	}
	return def, names, nil
}

// Validate rejects configurations that are structurally fine per ini.v1
// but semantically invalid: an mp value other than "thread" or "fork", or
// an empty db name. Strategy names and the db/cache module names are not
// checked here.
func (c *Config) Validate() error {
	if c.Modules.MP != "thread" && c.Modules.MP != "fork" {
		return fmt.Errorf("config: [modules] mp must be \"thread\" or \"fork\", got %q", c.Modules.MP)
	}
	if c.Modules.DB == "" {
		return fmt.Errorf("config: [modules] db must name a storage backend")
	}
	return nil
}
