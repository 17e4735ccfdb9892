// Package handlers implements one routine per DICT verb (§4.7), building
// responses from the backend, cache, and match registry, and maps the
// command protocol's error taxonomy onto status lines — generalizing the
// teacher's per-verb dispatch in goms/inboundconnection.go from SMTP verbs
// to DICT verbs, as a switch on the verb rather than a handler table.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"time"

	"github.com/vsemionov/wordbase/internal/backend"
	"github.com/vsemionov/wordbase/internal/cache"
	"github.com/vsemionov/wordbase/internal/lineio"
	"github.com/vsemionov/wordbase/internal/match"
	"github.com/vsemionov/wordbase/internal/parser"
	"github.com/vsemionov/wordbase/internal/wordlog"
)

// Config holds the server-identity fields SHOW SERVER needs.
type Config struct {
	ServerString   string
	ServerInfoFile string
}

// Handlers builds DICT protocol responses. A Handlers is immutable after
// construction and safe to share across sessions.
type Handlers struct {
	cfg      Config
	registry *match.Registry
	logger   *wordlog.Logger
}

// New returns a Handlers bound to cfg and registry.
func New(cfg Config, registry *match.Registry, logger *wordlog.Logger) *Handlers {
	return &Handlers{cfg: cfg, registry: registry, logger: logger}
}

func escaped(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			out = append(out, '\\', '\\')
		case '"':
			out = append(out, '\\', '"')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

// sendText writes a (possibly multi-line) text body line by line, using
// the same trailing-newline-tolerant splitting as the cache's word-list
// encoding (cache.DecodeList), so a definition or info text ending in a
// newline does not produce a spurious trailing blank line.
func sendText(conn *lineio.LineIO, text string) error {
	for _, line := range cache.DecodeList(text) {
		if err := conn.WriteLine(line, true); err != nil {
			return err
		}
	}
	return nil
}

// Dispatch handles one parsed command, returning endSession and any error
// that should end the session (a BackendError, mapped by the session to
// "420 Server temporarily unavailable"). ErrInvalidDictionary (DEFINE,
// MATCH, SHOW INFO) and ErrInvalidStrategy (MATCH) are written here as
// 550/551 status lines and not returned; any other error, including
// ErrVirtualDictionary, is returned.
func (h *Handlers) Dispatch(ctx context.Context, conn *lineio.LineIO, be backend.Backend, ca cache.Cache, cmd parser.Command) (bool, error) {
	switch cmd.Verb {
	case "":
		return false, nil
	case "QUIT":
		return true, conn.WriteStatus(221, "Closing Connection")
	case "HELP":
		return false, h.handleHelp(conn)
	case "STATUS":
		return false, conn.WriteStatus(210, "up")
	case "CLIENT":
		h.logger.Infof("client: %s", cmd.Args[0])
		return false, conn.WriteStatus(250, "ok")
	case "SHOW":
		return false, h.handleShow(ctx, conn, be, cmd)
	case "MATCH":
		return false, h.handleMatch(ctx, conn, be, ca, cmd)
	case "DEFINE":
		return false, h.handleDefine(ctx, conn, be, ca, cmd)
	case "T":
		return false, h.handleTime(ctx, conn, be, ca, cmd)
	case "OPTION", "AUTH", "SASLAUTH", "SASLRESP":
		return false, conn.WriteStatus(502, "Command not implemented")
	default:
		return false, conn.WriteStatus(502, "Command not implemented")
	}
}

// HandleSyntaxError writes the 500/501 response for a parser.Result with
// OK == false.
func HandleSyntaxError(conn *lineio.LineIO, verbSeen string) error {
	if verbSeen == "" {
		return conn.WriteStatus(500, "Syntax error, command not recognized")
	}
	return conn.WriteStatus(501, "Syntax error, illegal parameters")
}

func (h *Handlers) handleHelp(conn *lineio.LineIO) error {
	if err := conn.WriteStatus(113, "help text follows"); err != nil {
		return err
	}
	if err := conn.WriteText(helpLines); err != nil {
		return err
	}
	return conn.WriteStatus(250, "ok")
}

// validateDBName rejects the sentinel "--exit--" the same way the backend
// rejects an unknown name, so callers need only handle one error kind.
func validateDBName(name string) error {
	if name == backend.StopDBName {
		return backend.ErrInvalidDictionary
	}
	return nil
}

// withInvalidDB runs fn and, if it failed with ErrInvalidDictionary,
// writes the 550 status instead of propagating — the Go equivalent of the
// original's handle_550 decorator.
func withInvalidDB(conn *lineio.LineIO, logger *wordlog.Logger, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if errors.Is(err, backend.ErrInvalidDictionary) {
		logger.Debugf("invalid database: %v", err)
		return conn.WriteStatus(550, `Invalid database, use "SHOW DB" for list of databases`)
	}
	return err
}

func (h *Handlers) handleShow(ctx context.Context, conn *lineio.LineIO, be backend.Backend, cmd parser.Command) error {
	switch cmd.Args[0] {
	case "DB":
		return h.showDB(ctx, conn, be)
	case "STRAT":
		return h.showStrat(conn)
	case "SERVER":
		return h.showServer(conn)
	case "INFO":
		database := cmd.Args[1]
		return withInvalidDB(conn, h.logger, func() error {
			return h.showInfo(ctx, conn, be, database)
		})
	default:
		return conn.WriteStatus(502, "Command not implemented")
	}
}

func (h *Handlers) showDB(ctx context.Context, conn *lineio.LineIO, be backend.Backend) error {
	dbs, err := be.ListDictionaries(ctx)
	if err != nil {
		return err
	}
	if len(dbs) == 0 {
		return conn.WriteStatus(554, "No databases present")
	}

	// Stable-sort real dictionaries before virtual ones, preserving
	// db_order within each group; mirrors a quirk of the original's
	// list.sort(key=lambda t: t[1]).
	sorted := append([]backend.DictionaryInfo{}, dbs...)
	sort.SliceStable(sorted, func(i, j int) bool { return !sorted[i].Virtual && sorted[j].Virtual })

	if err := conn.WriteStatus(110, fmt.Sprintf("%d databases present - text follows", len(sorted))); err != nil {
		return err
	}
	for _, d := range sorted {
		line := fmt.Sprintf("%s \"%s\"", d.Name, escaped(d.ShortDesc))
		if err := conn.WriteLine(line, true); err != nil {
			return err
		}
	}
	if err := conn.WriteTextEnd(); err != nil {
		return err
	}
	return conn.WriteStatus(250, "ok")
}

func (h *Handlers) showStrat(conn *lineio.LineIO) error {
	strats := h.registry.GetStrategies()
	if len(strats) == 0 {
		return conn.WriteStatus(555, "No strategies available")
	}
	if err := conn.WriteStatus(111, fmt.Sprintf("%d strategies available - text follows", len(strats))); err != nil {
		return err
	}
	for _, s := range strats {
		line := fmt.Sprintf("%s \"%s\"", s.Name, escaped(s.Description))
		if err := conn.WriteLine(line, true); err != nil {
			return err
		}
	}
	return conn.WriteTextEnd()
}

func (h *Handlers) showInfo(ctx context.Context, conn *lineio.LineIO, be backend.Backend, database string) error {
	if err := validateDBName(database); err != nil {
		return err
	}
	virtual, info, err := be.DictionaryInfo(ctx, database)
	if err != nil {
		return err
	}
	if err := conn.WriteStatus(112, "database information follows"); err != nil {
		return err
	}
	switch {
	case info != "":
		if err := sendText(conn, info); err != nil {
			return err
		}
	case virtual:
		names, err := be.ExpandVirtual(ctx, database)
		if err != nil {
			return err
		}
		for _, name := range names {
			_, memberInfo, err := be.DictionaryInfo(ctx, name)
			if err != nil {
				return err
			}
			if err := conn.WriteLine(fmt.Sprintf("================ %s ================", name), true); err != nil {
				return err
			}
			if memberInfo != "" {
				if err := sendText(conn, memberInfo); err != nil {
					return err
				}
			}
		}
	}
	if err := conn.WriteTextEnd(); err != nil {
		return err
	}
	return conn.WriteStatus(250, "ok")
}

func (h *Handlers) showServer(conn *lineio.LineIO) error {
	if err := conn.WriteStatus(114, "server information follows"); err != nil {
		return err
	}
	if err := conn.WriteLine(h.cfg.ServerString, true); err != nil {
		return err
	}
	if h.cfg.ServerInfoFile != "" {
		data, err := os.ReadFile(h.cfg.ServerInfoFile)
		if err != nil {
			h.logger.Warnf("reading server info file %q: %v", h.cfg.ServerInfoFile, err)
		} else {
			for _, line := range cache.DecodeList(string(data)) {
				if err := conn.WriteLine(line, true); err != nil {
					return err
				}
			}
		}
	}
	if err := conn.WriteTextEnd(); err != nil {
		return err
	}
	return conn.WriteStatus(250, "ok")
}

// dbEntry mirrors _get_dbs: the full set of dictionaries keyed by name,
// preserving db_order via the slice index.
type dbEntry struct {
	virtual   bool
	shortDesc string
}

func getDBs(ctx context.Context, be backend.Backend) (map[string]dbEntry, []string, error) {
	dbs, err := be.ListDictionaries(ctx)
	if err != nil {
		return nil, nil, err
	}
	index := make(map[string]dbEntry, len(dbs))
	order := make([]string, len(dbs))
	for i, d := range dbs {
		index[d.Name] = dbEntry{virtual: d.Virtual, shortDesc: d.ShortDesc}
		order[i] = d.Name
	}
	return index, order, nil
}

func retrieveWords(ctx context.Context, be backend.Backend, ca cache.Cache, dbName string) ([]string, []string, error) {
	wordsKey := cache.WordsKey(dbName)
	preprocKey := cache.PreprocKey(dbName)

	var words []string
	if v, ok := ca.Get(ctx, wordsKey); ok {
		words = cache.DecodeList(v)
	} else {
		w, err := be.Words(ctx, dbName)
		if err != nil {
			return nil, nil, err
		}
		words = w
		ca.Set(ctx, wordsKey, cache.EncodeList(words))
	}

	var preprocessed []string
	if v, ok := ca.Get(ctx, preprocKey); ok {
		preprocessed = cache.DecodeList(v)
	} else {
		preprocessed = match.PreprocessAll(words)
		ca.Set(ctx, preprocKey, cache.EncodeList(preprocessed))
	}

	return words, preprocessed, nil
}

// matchEntry is one real dictionary's filtered headwords.
type matchEntry struct {
	dbName string
	words  []string
}

func findMatches(ctx context.Context, be backend.Backend, ca cache.Cache, registry *match.Registry, dbs map[string]dbEntry, order []string, database, strategy, word string) ([]matchEntry, int, error) {
	strat := strategy
	if strat == "." {
		strat = ""
	}
	filter, err := registry.GetFilter(strat)
	if err != nil {
		return nil, 0, err
	}

	addMatches := func(dbName string) (matchEntry, int, error) {
		words, preprocessed, err := retrieveWords(ctx, be, ca, dbName)
		if err != nil {
			return matchEntry{}, 0, err
		}
		filtered := filter(word, words, preprocessed)
		return matchEntry{dbName: dbName, words: filtered}, len(filtered), nil
	}

	getMatches := func(dbName string) ([]matchEntry, int, error) {
		entry, ok := dbs[dbName]
		if !ok {
			return nil, 0, backend.ErrInvalidDictionary
		}
		if !entry.virtual {
			m, n, err := addMatches(dbName)
			if err != nil {
				return nil, 0, err
			}
			return []matchEntry{m}, n, nil
		}
		members, err := be.ExpandVirtual(ctx, dbName)
		if err != nil {
			return nil, 0, err
		}
		var entries []matchEntry
		total := 0
		for _, name := range members {
			m, n, err := addMatches(name)
			if err != nil {
				return nil, 0, err
			}
			entries = append(entries, m)
			total += n
		}
		return entries, total, nil
	}

	if err := validateDBName(database); err != nil {
		return nil, 0, err
	}

	var all []matchEntry
	numMatches := 0

	if database == "*" || database == "!" {
		for _, name := range order {
			entry := dbs[name]
			if entry.virtual {
				continue
			}
			if name == backend.StopDBName {
				break
			}
			entries, n, err := getMatches(name)
			if err != nil {
				return nil, 0, err
			}
			all = append(all, entries...)
			numMatches += n
			if database == "!" && n > 0 {
				break
			}
		}
	} else {
		entries, n, err := getMatches(database)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, entries...)
		numMatches = n
	}

	return all, numMatches, nil
}

func (h *Handlers) handleMatch(ctx context.Context, conn *lineio.LineIO, be backend.Backend, ca cache.Cache, cmd parser.Command) error {
	database, strategy, word := cmd.Args[0], cmd.Args[1], cmd.Args[2]

	return withInvalidDB(conn, h.logger, func() error {
		dbs, order, err := getDBs(ctx, be)
		if err != nil {
			return err
		}
		entries, numMatches, err := findMatches(ctx, be, ca, h.registry, dbs, order, database, strategy, word)
		if err != nil {
			if errors.Is(err, match.ErrInvalidStrategy) {
				h.logger.Debugf("invalid strategy: %q", strategy)
				return conn.WriteStatus(551, `Invalid strategy, use "SHOW STRAT" for a list of strategies`)
			}
			return err
		}
		if numMatches == 0 {
			return conn.WriteStatus(552, "No match")
		}

		if err := conn.WriteStatus(152, fmt.Sprintf("%d matches found - text follows", numMatches)); err != nil {
			return err
		}
		for _, entry := range entries {
			for _, w := range entry.words {
				line := fmt.Sprintf("%s \"%s\"", entry.dbName, escaped(w))
				if err := conn.WriteLine(line, true); err != nil {
					return err
				}
			}
		}
		if err := conn.WriteTextEnd(); err != nil {
			return err
		}
		return conn.WriteStatus(250, "ok")
	})
}

func (h *Handlers) handleDefine(ctx context.Context, conn *lineio.LineIO, be backend.Backend, ca cache.Cache, cmd parser.Command) error {
	database, word := cmd.Args[0], cmd.Args[1]

	return withInvalidDB(conn, h.logger, func() error {
		dbs, order, err := getDBs(ctx, be)
		if err != nil {
			return err
		}
		entries, _, err := findMatches(ctx, be, ca, h.registry, dbs, order, database, "exact", word)
		if err != nil {
			return err
		}

		type resolved struct {
			dbName    string
			shortDesc string
			word      string
			defs      []string
		}
		var all []resolved
		numDefs := 0
		for _, entry := range entries {
			for _, w := range entry.words {
				defs, err := be.Definitions(ctx, entry.dbName, w)
				if err != nil {
					return err
				}
				all = append(all, resolved{dbName: entry.dbName, shortDesc: dbs[entry.dbName].shortDesc, word: w, defs: defs})
				numDefs += len(defs)
			}
		}

		if numDefs == 0 {
			return conn.WriteStatus(552, "No match")
		}

		if err := conn.WriteStatus(150, fmt.Sprintf("%d definitions retrieved - definitions follow", numDefs)); err != nil {
			return err
		}
		for _, r := range all {
			for _, definition := range r.defs {
				header := fmt.Sprintf("\"%s\" %s \"%s\" - text follows", escaped(r.word), r.dbName, escaped(r.shortDesc))
				if err := conn.WriteStatus(151, header); err != nil {
					return err
				}
				if err := sendText(conn, definition); err != nil {
					return err
				}
				if err := conn.WriteTextEnd(); err != nil {
					return err
				}
			}
		}
		return conn.WriteStatus(250, "ok")
	})
}

// discardConn is a net.Conn that discards every write and never yields a
// read, used by T to run its N warm-up repetitions without producing wire
// output — the Go equivalent of debug.NullConnection.
type discardConn struct{}

func (discardConn) Read([]byte) (int, error)         { return 0, io.EOF }
func (discardConn) Write(b []byte) (int, error)       { return len(b), nil }
func (discardConn) Close() error                      { return nil }
func (discardConn) LocalAddr() net.Addr               { return nil }
func (discardConn) RemoteAddr() net.Addr              { return nil }
func (discardConn) SetDeadline(time.Time) error       { return nil }
func (discardConn) SetReadDeadline(time.Time) error   { return nil }
func (discardConn) SetWriteDeadline(time.Time) error  { return nil }

func (h *Handlers) handleTime(ctx context.Context, conn *lineio.LineIO, be backend.Backend, ca cache.Cache, cmd parser.Command) error {
	n := 0
	fmt.Sscanf(cmd.Args[0], "%d", &n)
	sub := *cmd.Sub

	start := time.Now()
	for i := 0; i < n; i++ {
		discard := lineio.New(discardConn{})
		if _, err := h.Dispatch(ctx, discard, be, ca, sub); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	if _, err := h.Dispatch(ctx, conn, be, ca, sub); err != nil {
		return err
	}

	return conn.WriteStatus(280, fmt.Sprintf("time: %.3f s", elapsed.Seconds()))
}
