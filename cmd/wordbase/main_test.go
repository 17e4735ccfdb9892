package main

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vsemionov/wordbase/internal/config"
	"github.com/vsemionov/wordbase/internal/wordlog"
)

func TestRunVersion(t *testing.T) {
	if code := run([]string{"-v"}); code != 0 {
		t.Fatalf("got exit code %d", code)
	}
}

func TestRunHelp(t *testing.T) {
	if code := run([]string{"-h"}); code != 0 {
		t.Fatalf("got exit code %d", code)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	if code := run([]string{"-x"}); code != 2 {
		t.Fatalf("got exit code %d", code)
	}
}

func TestRunExcessArguments(t *testing.T) {
	if code := run([]string{"extra"}); code != 2 {
		t.Fatalf("got exit code %d", code)
	}
}

func TestRunBadDaemonCommand(t *testing.T) {
	if code := run([]string{"-d", "bogus"}); code != 2 {
		t.Fatalf("got exit code %d", code)
	}
}

func TestRunMissingConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.conf")
	if code := run([]string{"-f", path}); code != 1 {
		t.Fatalf("got exit code %d", code)
	}
}

func TestRunStopWithoutRunningDaemon(t *testing.T) {
	confPath := writeTestConf(t, "none")
	if code := run([]string{"-f", confPath, "-d", "stop"}); code != 1 {
		t.Fatalf("got exit code %d", code)
	}
}

func writeTestConf(t *testing.T, cacheModule string) string {
	t.Helper()
	dir := t.TempDir()
	body := `
[wordbase]
host = 127.0.0.1
port = 32765
pidfile = ` + filepath.Join(dir, "wordbase.pid") + `

[dict]
server = wordbase test
domain = example.org
strategies = exact:exact,prefix

[modules]
mp = thread
db = pgsql
cache = ` + cacheModule + `

[pgsql]
host = 127.0.0.1
port = 1
database = wordbase
`
	path := filepath.Join(dir, "wordbase.conf")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// TestServeRejectsWhenBackendUnreachable dials the real listener end to
// end: with an unreachable pgsql backend, the session should open, fail to
// reach the database, and report 420 without ever sending a banner. The
// listener goroutine outlives the test; it is torn down when the test
// binary exits, same as control_test.go's sendTestMail fixture upstream.
func TestServeRejectsWhenBackendUnreachable(t *testing.T) {
	confPath := writeTestConf(t, "none")

	cfg, err := config.Load(confPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	logger, closer, err := wordlog.New(wordlog.Config{})
	if err != nil {
		t.Fatalf("wordlog.New: %v", err)
	}
	defer closer.Close()

	go serve(cfg, false, logger)

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.DialTimeout("tcp", "127.0.0.1:32765", 200*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("could not dial listener: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if !strings.HasPrefix(line, "420") {
		t.Fatalf("got %q", line)
	}
}
