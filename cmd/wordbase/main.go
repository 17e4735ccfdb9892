// Command wordbase is a RFC 2229 DICT protocol server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/vsemionov/wordbase/internal/backend"
	"github.com/vsemionov/wordbase/internal/backend/pgsql"
	"github.com/vsemionov/wordbase/internal/cache"
	"github.com/vsemionov/wordbase/internal/cache/shardedcache"
	"github.com/vsemionov/wordbase/internal/config"
	"github.com/vsemionov/wordbase/internal/dispatch"
	"github.com/vsemionov/wordbase/internal/handlers"
	"github.com/vsemionov/wordbase/internal/match"
	"github.com/vsemionov/wordbase/internal/procctl"
	"github.com/vsemionov/wordbase/internal/session"
	"github.com/vsemionov/wordbase/internal/srvmon"
	"github.com/vsemionov/wordbase/internal/wordlog"
)

const (
	programName     = "wordbase"
	programVersion  = "1.0"
	defaultConfPath = "/etc/wordbase.conf"
)

const usageHelp = `Usage: wordbase [-f conf_file] [-d command] [-D]

Options:
 -v            print version information and exit
 -h            print this help message and exit
 -f conf_file  read the specified configuration file
 -d command    daemon control: start, stop, or restart
 -D            debug mode

Daemon control commands:
 start         start daemon
 stop          stop daemon
 restart       restart daemon
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	confPath := fs.String("f", defaultConfPath, "path to configuration file")
	daemonCmd := fs.String("d", "", "daemon control command: start, stop, or restart")
	debugMode := fs.Bool("D", false, "enable debug mode")
	version := fs.Bool("v", false, "print version information and exit")
	help := fs.Bool("h", false, "print this help message and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usageHelp)
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "excess argument(s)")
		fmt.Fprint(os.Stderr, usageHelp)
		return 2
	}
	if *version {
		fmt.Printf("%s %s\n", programName, programVersion)
		return 0
	}
	if *help {
		fmt.Print(usageHelp)
		return 0
	}
	switch *daemonCmd {
	case "", "start", "stop", "restart":
	default:
		fmt.Fprintf(os.Stderr, "command %q not recognized\n", *daemonCmd)
		fmt.Fprint(os.Stderr, usageHelp)
		return 2
	}

	cfg, err := config.Load(*confPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, logCloser, err := wordlog.New(wordlog.Config{
		File:           cfg.LogFile,
		SyslogFacility: cfg.LogSyslogFacility,
		Date:           true,
		Time:           true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logCloser.Close()

	ctrl := procctl.New(procctl.Config{PidFile: cfg.Wordbase.PidFile})

	if *daemonCmd == "stop" {
		if err := ctrl.Stop(); err != nil {
			logger.Errorf("%v", err)
			return 1
		}
		return 0
	}

	if *daemonCmd == "start" || *daemonCmd == "restart" {
		var isParent bool
		if *daemonCmd == "restart" {
			isParent, err = ctrl.Restart()
		} else {
			isParent, err = ctrl.Daemonize()
		}
		if err != nil {
			logger.Errorf("%v", err)
			return 1
		}
		if isParent {
			return 0
		}
		defer ctrl.Release()
	}

	if err := serve(cfg, *debugMode, logger); err != nil {
		logger.Critf("terminating on unhandled error: %v", err)
		return 1
	}
	return 0
}

// serve wires every package into a listener loop and runs until a
// terminate signal arrives.
func serve(cfg *config.Config, debugMode bool, logger *wordlog.Logger) error {
	registry, err := match.NewRegistry(cfg.Dict.Strategies, cfg.Dict.DefaultStrategy)
	if err != nil {
		return err
	}

	newBackend, err := backendFactory(cfg)
	if err != nil {
		return err
	}

	newCache, closeCache, err := cacheFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	serverString := cfg.Dict.Server
	if serverString == "" {
		serverString = fmt.Sprintf("%s %s", programName, programVersion)
	}

	h := handlers.New(handlers.Config{ServerString: serverString, ServerInfoFile: cfg.Dict.Info}, registry, logger)
	sess := session.New(session.Config{
		ServerString: serverString,
		Domain:       cfg.Dict.Domain,
		Timeout:      cfg.Wordbase.Timeout,
		DebugMode:    debugMode,
	}, h, newBackend, newCache, logger)

	maxClients := cfg.Thread.MaxClients
	if cfg.Modules.MP == "fork" {
		maxClients = cfg.Fork.MaxClients
	}
	disp := dispatch.New(maxClients, logger)

	addr := net.JoinHostPort(cfg.Wordbase.Host, strconv.Itoa(cfg.Wordbase.Port))
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if err := procctl.DropPrivileges(cfg.Wordbase.User, cfg.Wordbase.Group); err != nil {
		ln.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopSignals := procctl.WatchSignals(logger, func() {
		logger.Infof("reload signal received; listener restart on reload is not yet implemented")
	}, cancel)
	defer stopSignals()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger.Infof("listening on %s", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Errorf("accept: %v", err)
				return err
			}
		}
		disp.Dispatch(ctx, sess.Serve, conn)
	}
}

func backendFactory(cfg *config.Config) (func() backend.Backend, error) {
	switch cfg.Modules.DB {
	case "pgsql":
		pcfg := pgsql.Config{
			Host:     cfg.Pgsql.Host,
			Port:     cfg.Pgsql.Port,
			User:     cfg.Pgsql.User,
			Password: cfg.Pgsql.Password,
			Database: cfg.Pgsql.Database,
			Schema:   cfg.Pgsql.Schema,
		}
		return func() backend.Backend { return pgsql.NewBackend(pcfg) }, nil
	default:
		return nil, fmt.Errorf("config: unsupported [modules] db %q", cfg.Modules.DB)
	}
}

// sharedCache adapts a single, process-wide *shardedcache.Cache into a
// per-session cache.Cache handle whose Close is a no-op: the shards'
// connection pools (and the health-monitoring heartbeats backing them) are
// shared per-process per spec section 5, while Backend handles remain one
// per session. The real Cache is closed once, by cacheFactory's returned
// shutdown function, at process exit.
type sharedCache struct {
	c *shardedcache.Cache
}

func (s sharedCache) Get(ctx context.Context, key string) (string, bool) { return s.c.Get(ctx, key) }
func (s sharedCache) Set(ctx context.Context, key, value string)        { s.c.Set(ctx, key, value) }
func (s sharedCache) Close() error                                      { return nil }

func cacheFactory(cfg *config.Config, logger *wordlog.Logger) (func() cache.Cache, func() error, error) {
	switch cfg.Modules.Cache {
	case "", "none":
		return func() cache.Cache { return cache.None{} }, func() error { return nil }, nil
	case "redis":
		servers, err := shardedcache.ParseServers(cfg.Redis.Servers)
		if err != nil {
			return nil, nil, err
		}
		scfg := shardedcache.Config{Timeout: cfg.Redis.Timeout, TTL: cfg.Redis.TTL}
		smcfg := srvmon.Config{Enable: cfg.Srvmon.Enable, Interval: cfg.Srvmon.Interval, Timeout: cfg.Srvmon.Timeout}
		shared := shardedcache.New(servers, scfg, smcfg)
		return func() cache.Cache { return sharedCache{c: shared} }, shared.Close, nil
	default:
		return nil, nil, fmt.Errorf("config: unsupported [modules] cache %q", cfg.Modules.Cache)
	}
}
