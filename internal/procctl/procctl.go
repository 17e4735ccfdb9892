// Package procctl wraps daemonization, privilege dropping, and signal
// handling, generalizing the teacher's control.Run/control.RunConfig
// (smtpd/control.go) — a go-daemon.Context driving start/stop/restart and
// a SIGHUP/SIGUSR1/SIGTERM signal loop — onto wordbase's own CLI surface
// (`-d {start|stop|restart}`) and the original wordbase.py's drop_privs.
package procctl

import (
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"runtime"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/abligh/go-daemon"

	"github.com/vsemionov/wordbase/internal/wordlog"
)

// Config holds the pidfile location used to daemonize and to find a
// running daemon to signal.
type Config struct {
	PidFile     string
	PidFileMode os.FileMode
}

// Controller mediates daemonization and start/stop/restart control,
// mirroring smtpd's use of daemon.Context in Run.
type Controller struct {
	ctx *daemon.Context
}

// New returns a Controller bound to cfg.
func New(cfg Config) *Controller {
	mode := cfg.PidFileMode
	if mode == 0 {
		mode = 0644
	}
	return &Controller{ctx: &daemon.Context{
		PidFileName: cfg.PidFile,
		PidFilePerm: mode,
		Umask:       027,
	}}
}

// Daemonize forks into the background, the way smtpd.Run calls d.Reborn().
// isParent is true in the original process, which should exit immediately;
// the child continues past Daemonize to run the server.
func (c *Controller) Daemonize() (isParent bool, err error) {
	child, err := c.ctx.Reborn()
	if err != nil {
		return false, fmt.Errorf("procctl: daemonize: %w", err)
	}
	return child != nil, nil
}

// Release removes the pidfile; call after the child process has finished
// serving, mirroring smtpd.Run's deferred d.Release().
func (c *Controller) Release() error {
	return c.ctx.Release()
}

// Stop signals a running daemon (found via the pidfile) to terminate.
func (c *Controller) Stop() error {
	p, err := c.ctx.Search()
	if err != nil {
		return fmt.Errorf("procctl: daemon not running: %w", err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("procctl: signaling daemon: %w", err)
	}
	return nil
}

// Restart stops the running daemon, waits for its pidfile to clear, then
// daemonizes afresh.
func (c *Controller) Restart() (isParent bool, err error) {
	if err := c.Stop(); err != nil {
		return false, err
	}
	for i := 0; i < 50; i++ {
		if _, err := c.ctx.Search(); err != nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return c.Daemonize()
}

// DropPrivileges switches the process to the named user (and group, or the
// user's primary group if group is empty), mirroring wordbase.py's
// drop_privs. A blank user is a no-op.
func DropPrivileges(username, groupname string) error {
	if username == "" {
		return nil
	}
	u, err := user.Lookup(username)
	if err != nil {
		return fmt.Errorf("procctl: lookup user %q: %w", username, err)
	}
	gidStr := u.Gid
	if groupname != "" {
		g, err := user.LookupGroup(groupname)
		if err != nil {
			return fmt.Errorf("procctl: lookup group %q: %w", groupname, err)
		}
		gidStr = g.Gid
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return fmt.Errorf("procctl: invalid gid %q: %w", gidStr, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("procctl: invalid uid %q: %w", u.Uid, err)
	}
	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("procctl: setgid: %w", err)
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("procctl: setuid: %w", err)
	}
	return nil
}

// WatchSignals installs the process-lifetime signal handlers: SIGHUP
// calls onReload (what a reload does is up to the caller; existing
// sessions are not touched), SIGUSR1 forces a GC pass the way
// control.RunConfig's usr1 handler does, and SIGTERM/SIGINT trigger
// onTerminate and stop the watch loop. It returns a function that stops
// watching and restores default signal handling.
func WatchSignals(logger *wordlog.Logger, onReload func(), onTerminate func()) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGTERM, os.Interrupt)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				switch sig {
				case syscall.SIGHUP:
					logger.Infof("reload signal received")
					onReload()
				case syscall.SIGUSR1:
					logger.Infof("running GC()")
					runtime.GC()
					debug.FreeOSMemory()
					logger.Infof("GC() done")
				default:
					logger.Infof("terminate signal received")
					onTerminate()
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
