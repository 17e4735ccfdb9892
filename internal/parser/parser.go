// Package parser is a hand-written recursive-descent tokenizer for the DICT
// command grammar: quoted strings, escapes, atom concatenation, and the
// per-verb argument shapes of RFC 2229 plus the debug shortcuts. It holds no
// shared mutable state between calls; each call to Parse is independent and
// safe to run concurrently without external locking (unlike a combinator
// grammar built on a shared-state library, which would need a process-wide
// lock — see DESIGN.md).
package parser

import (
	"strconv"
	"strings"
)

// Command is a tagged value (verb, args...) as produced by Parse.
type Command struct {
	Verb string
	Args []string
	// Sub holds the parsed subcommand for a "T" (debug time) command.
	Sub *Command
}

// Result is the outcome of a Parse call. When OK is false, Verb names the
// canonical uppercase verb recognised before the argument mismatch, or "" if
// no verb was recognised at all.
type Result struct {
	OK   bool
	Cmd  Command
	Verb string
}

func ok(cmd Command) Result    { return Result{OK: true, Cmd: cmd} }
func fail(verb string) Result  { return Result{OK: false, Verb: verb} }
func failUnrecognized() Result { return Result{OK: false, Verb: ""} }

var knownVerbs = map[string]bool{
	"DEFINE": true, "MATCH": true, "SHOW": true, "CLIENT": true,
	"STATUS": true, "HELP": true, "QUIT": true, "OPTION": true,
	"AUTH": true, "SASLAUTH": true, "SASLRESP": true,
}

// debugShortcuts maps a one-letter debug shortcut verb to the canonical verb
// it expands to; "T" is its own canonical verb (a repeat-and-time wrapper).
var debugShortcuts = map[string]string{
	"D": "DEFINE", "M": "MATCH", "S": "STATUS", "H": "HELP", "Q": "QUIT", "T": "T",
}

func isCTL(c byte) bool { return c < 0x20 || c == 0x7f }

func isWS(c byte) bool { return c == ' ' || c == '\t' }

// scanQuoted scans the body of a quoted string starting just after the
// opening quote, up to and including the matching unescaped closing quote.
// It returns the unescaped content and the index just past the closing
// quote.
func scanQuoted(s string, i int, quote byte) (string, int, error) {
	var sb strings.Builder
	n := len(s)
	for i < n {
		c := s[i]
		if c == quote {
			return sb.String(), i + 1, nil
		}
		if c == '\\' {
			if i+1 >= n {
				return "", 0, errSyntax
			}
			sb.WriteByte(s[i+1])
			i += 2
			continue
		}
		if isCTL(c) {
			return "", 0, errSyntax
		}
		sb.WriteByte(c)
		i++
	}
	return "", 0, errSyntax
}

var errSyntax = strconvError("parser: syntax error")

type strconvError string

func (e strconvError) Error() string { return string(e) }

// scanWord scans one DICT "word" starting at i: one or more concatenated
// atoms, quoted strings, and bare quoted-pairs, with no intervening
// whitespace. It returns the concatenated, unescaped word and the index
// just past it.
func scanWord(s string, i int) (string, int, error) {
	var sb strings.Builder
	n := len(s)
	consumed := false

	for i < n {
		c := s[i]
		switch {
		case isWS(c):
			if !consumed {
				return "", 0, errSyntax
			}
			return sb.String(), i, nil
		case c == '"':
			part, ni, err := scanQuoted(s, i+1, '"')
			if err != nil {
				return "", 0, err
			}
			sb.WriteString(part)
			i = ni
			consumed = true
		case c == '\'':
			part, ni, err := scanQuoted(s, i+1, '\'')
			if err != nil {
				return "", 0, err
			}
			sb.WriteString(part)
			i = ni
			consumed = true
		case c == '\\':
			if i+1 >= n {
				return "", 0, errSyntax
			}
			sb.WriteByte(s[i+1])
			i += 2
			consumed = true
		case isCTL(c):
			if !consumed {
				return "", 0, errSyntax
			}
			return sb.String(), i, nil
		default:
			j := i
			for j < n {
				cj := s[j]
				if isWS(cj) || cj == '"' || cj == '\'' || cj == '\\' || isCTL(cj) {
					break
				}
				j++
			}
			sb.WriteString(s[i:j])
			i = j
			consumed = true
		}
	}
	if !consumed {
		return "", 0, errSyntax
	}
	return sb.String(), i, nil
}

// tokenize splits s into whitespace-separated words, honouring quoting and
// escapes. Leading/trailing whitespace is ignored; an empty s yields no
// words.
func tokenize(s string) ([]string, error) {
	var words []string
	i := 0
	n := len(s)
	for i < n {
		if isWS(s[i]) {
			i++
			continue
		}
		word, ni, err := scanWord(s, i)
		if err != nil {
			return nil, err
		}
		words = append(words, word)
		i = ni
	}
	return words, nil
}

// scanTextTail parses a DICT "text" production: words joined by literal
// whitespace runs, preserving the original inter-word spacing verbatim
// (only quote/escape syntax is unescaped).
func scanTextTail(s string) (string, error) {
	var sb strings.Builder
	i := 0
	n := len(s)
	for i < n {
		if isWS(s[i]) {
			j := i
			for j < n && isWS(s[j]) {
				j++
			}
			sb.WriteString(s[i:j])
			i = j
			continue
		}
		word, ni, err := scanWord(s, i)
		if err != nil {
			return "", err
		}
		sb.WriteString(word)
		i = ni
	}
	return sb.String(), nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Parse converts a single line (no trailing CRLF) into a Command. Parser
// state is encapsulated entirely in local variables; Parse never panics and
// always returns a definite Result. debugMode enables the D/M/S/H/Q/T
// shortcuts per spec section 4.2.
func Parse(line string, debugMode bool) Result {
	trimmed := strings.Trim(line, " \t")
	if trimmed == "" {
		return ok(Command{Verb: ""})
	}

	verbWord, afterVerb, err := scanWord(trimmed, 0)
	if err != nil {
		return failUnrecognized()
	}
	verbUpper := strings.ToUpper(verbWord)

	tail := strings.TrimLeft(trimmed[afterVerb:], " \t")

	canonical, shortcut, recognized := classifyWithDebug(verbUpper, debugMode)
	if !recognized {
		return failUnrecognized()
	}

	switch canonical {
	case "DEFINE":
		return parseDefine(tail, shortcut)
	case "MATCH":
		return parseMatch(tail, shortcut)
	case "SHOW":
		return parseShow(tail)
	case "CLIENT":
		return parseTextVerb("CLIENT", tail)
	case "STATUS", "HELP", "QUIT":
		return parseNoArgs(canonical, tail)
	case "OPTION", "AUTH", "SASLAUTH", "SASLRESP":
		return parseTextVerb(canonical, tail)
	case "T":
		return parseTime(tail, debugMode)
	default:
		return failUnrecognized()
	}
}

func classifyWithDebug(verbUpper string, debugMode bool) (canonical string, shortcut bool, recognized bool) {
	if knownVerbs[verbUpper] {
		return verbUpper, false, true
	}
	if debugMode {
		if c, ok := debugShortcuts[verbUpper]; ok {
			return c, true, true
		}
	}
	return "", false, false
}

func parseDefine(tail string, shortcut bool) Result {
	args, err := tokenize(tail)
	if err != nil {
		return fail("DEFINE")
	}
	if !shortcut {
		if len(args) != 2 {
			return fail("DEFINE")
		}
		return ok(Command{Verb: "DEFINE", Args: args})
	}
	switch len(args) {
	case 1:
		return ok(Command{Verb: "DEFINE", Args: []string{"*", args[0]}})
	case 2:
		return ok(Command{Verb: "DEFINE", Args: args})
	default:
		return fail("DEFINE")
	}
}

func parseMatch(tail string, shortcut bool) Result {
	args, err := tokenize(tail)
	if err != nil {
		return fail("MATCH")
	}
	if !shortcut {
		if len(args) != 3 {
			return fail("MATCH")
		}
		return ok(Command{Verb: "MATCH", Args: args})
	}
	switch len(args) {
	case 1:
		return ok(Command{Verb: "MATCH", Args: []string{"*", ".", args[0]}})
	case 2:
		return ok(Command{Verb: "MATCH", Args: []string{"*", args[0], args[1]}})
	case 3:
		return ok(Command{Verb: "MATCH", Args: args})
	default:
		return fail("MATCH")
	}
}

func parseShow(tail string) Result {
	args, err := tokenize(tail)
	if err != nil || len(args) == 0 {
		return fail("SHOW")
	}
	switch strings.ToUpper(args[0]) {
	case "DB", "DATABASES":
		if len(args) != 1 {
			return fail("SHOW")
		}
		return ok(Command{Verb: "SHOW", Args: []string{"DB"}})
	case "STRAT", "STRATEGIES":
		if len(args) != 1 {
			return fail("SHOW")
		}
		return ok(Command{Verb: "SHOW", Args: []string{"STRAT"}})
	case "SERVER":
		if len(args) != 1 {
			return fail("SHOW")
		}
		return ok(Command{Verb: "SHOW", Args: []string{"SERVER"}})
	case "INFO":
		if len(args) != 2 {
			return fail("SHOW")
		}
		return ok(Command{Verb: "SHOW", Args: []string{"INFO", args[1]}})
	default:
		return fail("SHOW")
	}
}

func parseNoArgs(verb string, tail string) Result {
	args, err := tokenize(tail)
	if err != nil || len(args) != 0 {
		return fail(verb)
	}
	return ok(Command{Verb: verb})
}

func parseTextVerb(verb string, tail string) Result {
	text, err := scanTextTail(tail)
	if err != nil {
		return fail(verb)
	}
	return ok(Command{Verb: verb, Args: []string{text}})
}

func parseTime(tail string, debugMode bool) Result {
	numWord, afterNum, err := scanWord(tail, 0)
	if err != nil || !isAllDigits(numWord) {
		return fail("T")
	}
	n, convErr := strconv.Atoi(numWord)
	if convErr != nil {
		return fail("T")
	}
	_ = n
	subLine := strings.TrimLeft(tail[afterNum:], " \t")
	if subLine == "" {
		return fail("T")
	}
	subResult := Parse(subLine, debugMode)
	if !subResult.OK {
		return fail("T")
	}
	return ok(Command{Verb: "T", Args: []string{numWord}, Sub: &subResult.Cmd})
}
