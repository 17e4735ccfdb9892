// Package cache defines the word-list memoization interface shared by
// session handlers, and a no-op implementation for when no cache backend
// is configured.
package cache

import "context"

// WordsKey and PreprocKey return the cache keys handlers use to memoize a
// dictionary's headword list and its preprocessed (match.Preprocess'd)
// form, mirroring the original _retrieve_words key naming.
func WordsKey(dbName string) string   { return "words:" + dbName }
func PreprocKey(dbName string) string { return "preproc:" + dbName }

// Cache is the interface session handlers use to memoize per-dictionary
// word lists. Get returns ok=false on a miss (including when no backend is
// reachable); it never distinguishes "miss" from "down" to callers, which
// always have the Backend to fall back on.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool)
	Set(ctx context.Context, key, value string)
	Close() error
}

// EncodeList joins items with newlines for storage as a single cache
// value. Because the newline-joined representation can't otherwise
// distinguish a single trailing empty string from its absence, a mangled
// representation appends a sentinel empty element before joining, matching
// the original format_list/parse_list round-trip.
func EncodeList(items []string) string {
	if len(items) > 0 && items[len(items)-1] == "" {
		items = append(append([]string{}, items...), "")
	}
	out := ""
	for i, it := range items {
		if i > 0 {
			out += "\n"
		}
		out += it
	}
	return out
}

// DecodeList splits a value produced by EncodeList back into its items,
// with Python str.splitlines() semantics: unlike a plain split on '\n', a
// trailing newline does not produce a final empty element. This is what
// lets EncodeList's mangle convention round-trip a genuine trailing empty
// string.
func DecodeList(value string) []string {
	if value == "" {
		return []string{}
	}
	var items []string
	start := 0
	for i := 0; i < len(value); i++ {
		if value[i] == '\n' {
			items = append(items, value[start:i])
			start = i + 1
		}
	}
	if start < len(value) {
		items = append(items, value[start:])
	}
	return items
}

// None is the no-op Cache used when no cache backend is configured: every
// Get misses, every Set is discarded.
type None struct{}

func (None) Get(ctx context.Context, key string) (string, bool) { return "", false }
func (None) Set(ctx context.Context, key, value string)         {}
func (None) Close() error                                       { return nil }

var _ Cache = None{}
