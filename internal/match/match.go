// Package match implements the DICT strategy registry and headword
// preprocessing/filtering pipeline used by MATCH and DEFINE.
package match

import (
	"errors"
	"strings"
)

// ErrInvalidStrategy is returned by GetFilter when the named strategy is
// not in the active registry.
var ErrInvalidStrategy = errors.New("match: invalid strategy")

// Test evaluates a strategy against an already-preprocessed query and
// headword.
type Test func(query, headword string) bool

// Strategy is a named predicate over (query, headword) pairs.
type Strategy struct {
	Name        string
	Description string
	Test        Test
}

// Filter selects, in order, the original (un-preprocessed) headwords whose
// preprocessed form satisfies the strategy's test against the preprocessed
// query.
type Filter func(query string, headwords, preprocessed []string) []string

func matchExact(query, headword string) bool { return headword == query }

func matchPrefix(query, headword string) bool { return strings.HasPrefix(headword, query) }

// builtinStrategies is the registry shipped by default, in advertised order.
var builtinStrategies = []Strategy{
	{Name: "exact", Description: "Match headwords exactly", Test: matchExact},
	{Name: "prefix", Description: "Match prefixes", Test: matchPrefix},
}

const defaultStrategyName = "prefix"

// Registry is an ordered, queryable set of strategies with one designated
// default. A Registry is immutable after construction, so it may be shared
// across sessions without locking.
type Registry struct {
	order  []string
	byName map[string]Strategy
	def    string
}

// NewDefaultRegistry returns the registry containing exactly the built-in
// strategies, with "prefix" as the default.
func NewDefaultRegistry() *Registry {
	r := &Registry{byName: make(map[string]Strategy)}
	for _, s := range builtinStrategies {
		r.order = append(r.order, s.Name)
		r.byName[s.Name] = s
	}
	r.def = defaultStrategyName
	return r
}

// NewRegistry builds a registry narrowed to the named subset of the
// built-in strategies, in the given order, with the given default. It
// returns an error if any named strategy is unknown or the default is not
// among them — configuration errors here are fatal at startup, per spec.
func NewRegistry(names []string, def string) (*Registry, error) {
	builtin := make(map[string]Strategy, len(builtinStrategies))
	for _, s := range builtinStrategies {
		builtin[s.Name] = s
	}

	r := &Registry{byName: make(map[string]Strategy)}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s, ok := builtin[name]
		if !ok {
			return nil, errors.New("match: unsupported strategy: " + name)
		}
		if _, dup := r.byName[name]; dup {
			continue
		}
		r.order = append(r.order, name)
		r.byName[name] = s
	}

	def = strings.TrimSpace(def)
	if _, ok := r.byName[def]; !ok {
		return nil, errors.New("match: default strategy not in list of advertised strategies")
	}
	r.def = def
	return r, nil
}

// Preprocess lowercases s, strips ASCII punctuation, and collapses
// whitespace runs to a single space. It is pure and deterministic, and
// idempotent: Preprocess(Preprocess(s)) == Preprocess(s).
func Preprocess(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	lastWasSpace := false
	wroteAny := false
	for _, r := range s {
		if isASCIIPunctuation(r) {
			continue
		}
		if isSpace(r) {
			if wroteAny && !lastWasSpace {
				sb.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		sb.WriteRune(toLower(r))
		lastWasSpace = false
		wroteAny = true
	}
	out := sb.String()
	return strings.TrimRight(out, " ")
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// isASCIIPunctuation mirrors Python's string.punctuation: the ASCII
// punctuation set, stripped entirely (not treated as a separator).
func isASCIIPunctuation(r rune) bool {
	switch {
	case r >= '!' && r <= '/':
		return true
	case r >= ':' && r <= '@':
		return true
	case r >= '[' && r <= '`':
		return true
	case r >= '{' && r <= '~':
		return true
	}
	return false
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// PreprocessAll returns the preprocessed forms of headwords, aligned
// index-wise with the input; the result has the same length as the input.
func PreprocessAll(headwords []string) []string {
	out := make([]string, len(headwords))
	for i, w := range headwords {
		out[i] = Preprocess(w)
	}
	return out
}

// GetFilter looks up strategyName (or the registry default, when empty) and
// returns a Filter closure over its Test. It fails with ErrInvalidStrategy
// when the name is not in the registry.
func (r *Registry) GetFilter(strategyName string) (Filter, error) {
	name := strategyName
	if name == "" {
		name = r.def
	}
	s, found := r.byName[name]
	if !found {
		return nil, ErrInvalidStrategy
	}
	test := s.Test
	return func(query string, headwords, preprocessed []string) []string {
		pq := Preprocess(query)
		var matches []string
		for i, ph := range preprocessed {
			if test(pq, ph) {
				matches = append(matches, headwords[i])
			}
		}
		return matches
	}, nil
}

// GetStrategies returns the active strategies, name to description, in
// advertised order.
func (r *Registry) GetStrategies() []Strategy {
	out := make([]Strategy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Default returns the name of the default strategy.
func (r *Registry) Default() string {
	return r.def
}
