package session

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/vsemionov/wordbase/internal/backend"
	"github.com/vsemionov/wordbase/internal/cache"
	"github.com/vsemionov/wordbase/internal/handlers"
	"github.com/vsemionov/wordbase/internal/match"
	"github.com/vsemionov/wordbase/internal/wordlog"
)

type fakeBackend struct {
	failOpen bool
}

func (f *fakeBackend) Open(context.Context) error {
	if f.failOpen {
		return backend.NewBackendError(errTestDial)
	}
	return nil
}
func (f *fakeBackend) Close() error { return nil }
func (f *fakeBackend) ListDictionaries(context.Context) ([]backend.DictionaryInfo, error) {
	return []backend.DictionaryInfo{{Name: "foldoc", ShortDesc: "Free Online Dictionary of Computing"}}, nil
}
func (f *fakeBackend) DictionaryInfo(ctx context.Context, name string) (bool, string, error) {
	return false, "", nil
}
func (f *fakeBackend) Words(context.Context, string) ([]string, error) { return []string{"cache"}, nil }
func (f *fakeBackend) ExpandVirtual(context.Context, string) ([]string, error) {
	return nil, backend.ErrVirtualDictionary
}
func (f *fakeBackend) Definitions(context.Context, string, string) ([]string, error) {
	return []string{"a memory layer in front of slower storage"}, nil
}

type dialErr string

func (e dialErr) Error() string { return string(e) }

const errTestDial = dialErr("dial failed")

type fakeCache struct{}

func (fakeCache) Get(context.Context, string) (string, bool) { return "", false }
func (fakeCache) Set(context.Context, string, string)        {}
func (fakeCache) Close() error                                { return nil }

func testLogger(t *testing.T) *wordlog.Logger {
	t.Helper()
	l, closer, err := wordlog.New(wordlog.Config{})
	if err != nil {
		t.Fatalf("wordlog.New: %v", err)
	}
	t.Cleanup(func() { closer.Close() })
	return l
}

func newTestSession(t *testing.T, failOpen bool) (*Session, func() backend.Backend) {
	t.Helper()
	registry := match.NewDefaultRegistry()
	h := handlers.New(handlers.Config{ServerString: "wordbase 1.0"}, registry, testLogger(t))
	newBackend := func() backend.Backend { return &fakeBackend{failOpen: failOpen} }
	newCache := func() cache.Cache { return fakeCache{} }
	s := New(Config{
		ServerString: "wordbase 1.0",
		Domain:       "example.org",
		Timeout:      2 * time.Second,
	}, h, newBackend, newCache, testLogger(t))
	return s, newBackend
}

func dial(t *testing.T) (net.Conn, *bufio.Reader, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	return server, bufio.NewReader(client), client
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func TestServeBannerAndQuit(t *testing.T) {
	s, _ := newTestSession(t, false)
	server, r, client := dial(t)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		s.Serve(context.Background(), server)
		close(done)
	}()

	banner := readLine(t, r)
	if !strings.HasPrefix(banner, "220 ") {
		t.Fatalf("got banner %q", banner)
	}
	if !strings.Contains(banner, "wordbase 1.0") {
		t.Fatalf("banner missing server string: %q", banner)
	}

	client.Write([]byte("QUIT\r\n"))
	resp := readLine(t, r)
	if !strings.HasPrefix(resp, "221") {
		t.Fatalf("got %q", resp)
	}

	<-done
}

func TestServeBackendOpenFailureSends420(t *testing.T) {
	s, _ := newTestSession(t, true)
	server, r, client := dial(t)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		s.Serve(context.Background(), server)
		close(done)
	}()

	resp := readLine(t, r)
	if !strings.HasPrefix(resp, "420") {
		t.Fatalf("got %q", resp)
	}

	<-done
}

func TestServeSyntaxErrorContinues(t *testing.T) {
	s, _ := newTestSession(t, false)
	server, r, client := dial(t)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		s.Serve(context.Background(), server)
		close(done)
	}()

	readLine(t, r) // banner

	client.Write([]byte("BOGUS\r\n"))
	resp := readLine(t, r)
	if !strings.HasPrefix(resp, "500") {
		t.Fatalf("got %q", resp)
	}

	client.Write([]byte("DEFINE\r\n"))
	resp = readLine(t, r)
	if !strings.HasPrefix(resp, "501") {
		t.Fatalf("got %q", resp)
	}

	client.Write([]byte("QUIT\r\n"))
	resp = readLine(t, r)
	if !strings.HasPrefix(resp, "221") {
		t.Fatalf("got %q", resp)
	}

	<-done
}

func TestServeClosesOnPeerDisconnect(t *testing.T) {
	s, _ := newTestSession(t, false)
	server, r, client := dial(t)

	done := make(chan struct{})
	go func() {
		s.Serve(context.Background(), server)
		close(done)
	}()

	readLine(t, r) // banner
	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after peer disconnect")
	}
}

func TestServeDefineRoundtrip(t *testing.T) {
	s, _ := newTestSession(t, false)
	server, r, client := dial(t)
	defer client.Close()

	done := make(chan struct{})
	go func() {
		s.Serve(context.Background(), server)
		close(done)
	}()

	readLine(t, r) // banner

	client.Write([]byte("DEFINE foldoc cache\r\n"))
	resp := readLine(t, r)
	if !strings.HasPrefix(resp, "150") {
		t.Fatalf("got %q", resp)
	}

	client.Write([]byte("QUIT\r\n"))
	<-done
}
