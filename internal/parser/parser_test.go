package parser

import (
	"reflect"
	"testing"
)

func TestEmptyLine(t *testing.T) {
	r := Parse("", false)
	if !r.OK || r.Cmd.Verb != "" {
		t.Fatalf("got %+v", r)
	}
	r = Parse("   ", false)
	if !r.OK || r.Cmd.Verb != "" {
		t.Fatalf("got %+v", r)
	}
}

func TestDefine(t *testing.T) {
	r := Parse(`DEFINE en "the"`, false)
	if !r.OK {
		t.Fatalf("parse failed: %+v", r)
	}
	want := Command{Verb: "DEFINE", Args: []string{"en", "the"}}
	if !reflect.DeepEqual(r.Cmd, want) {
		t.Fatalf("got %+v, want %+v", r.Cmd, want)
	}
}

func TestCaseInsensitiveVerb(t *testing.T) {
	r := Parse("define en the", false)
	if !r.OK || r.Cmd.Verb != "DEFINE" {
		t.Fatalf("got %+v", r)
	}
}

func TestQuoteConcatenation(t *testing.T) {
	r := Parse(`MATCH en exact foo"bar baz"qux`, false)
	if !r.OK {
		t.Fatalf("parse failed: %+v", r)
	}
	if r.Cmd.Args[2] != "foobar bazqux" {
		t.Fatalf("got %q", r.Cmd.Args[2])
	}
}

func TestEscapeAnyChar(t *testing.T) {
	r := Parse(`DEFINE en \"quoted\\word`, false)
	if !r.OK {
		t.Fatalf("parse failed: %+v", r)
	}
	if r.Cmd.Args[1] != `"quoted\word` {
		t.Fatalf("got %q", r.Cmd.Args[1])
	}
}

func TestUnterminatedQuoteFails(t *testing.T) {
	r := Parse(`DEFINE en "unterminated`, false)
	if r.OK {
		t.Fatalf("expected failure")
	}
}

func TestSyntaxErrorUnknownVerb(t *testing.T) {
	r := Parse("\x01garbage", false)
	if r.OK {
		t.Fatalf("expected failure")
	}
	if r.Verb != "" {
		t.Fatalf("expected nil verb, got %q", r.Verb)
	}
}

func TestIllegalParamsKeepsVerb(t *testing.T) {
	r := Parse("DEFINE en", false)
	if r.OK {
		t.Fatalf("expected failure")
	}
	if r.Verb != "DEFINE" {
		t.Fatalf("expected DEFINE, got %q", r.Verb)
	}
}

func TestShowVariants(t *testing.T) {
	cases := map[string]Command{
		"SHOW DB":          {Verb: "SHOW", Args: []string{"DB"}},
		"SHOW DATABASES":   {Verb: "SHOW", Args: []string{"DB"}},
		"SHOW STRAT":       {Verb: "SHOW", Args: []string{"STRAT"}},
		"SHOW SERVER":      {Verb: "SHOW", Args: []string{"SERVER"}},
		"SHOW INFO en":     {Verb: "SHOW", Args: []string{"INFO", "en"}},
	}
	for line, want := range cases {
		r := Parse(line, false)
		if !r.OK {
			t.Fatalf("%s: parse failed: %+v", line, r)
		}
		if !reflect.DeepEqual(r.Cmd, want) {
			t.Fatalf("%s: got %+v, want %+v", line, r.Cmd, want)
		}
	}
}

func TestDebugShortcutsDisabledByDefault(t *testing.T) {
	r := Parse("D en", false)
	if r.OK {
		t.Fatalf("expected D to be unrecognized without debug mode")
	}
	if r.Verb != "" {
		t.Fatalf("expected nil verb, got %q", r.Verb)
	}
}

func TestDebugShortcuts(t *testing.T) {
	r := Parse("D the", true)
	if !r.OK {
		t.Fatalf("parse failed: %+v", r)
	}
	want := Command{Verb: "DEFINE", Args: []string{"*", "the"}}
	if !reflect.DeepEqual(r.Cmd, want) {
		t.Fatalf("got %+v, want %+v", r.Cmd, want)
	}

	r = Parse("M en the", true)
	want = Command{Verb: "MATCH", Args: []string{"*", "en", "the"}}
	if !r.OK || !reflect.DeepEqual(r.Cmd, want) {
		t.Fatalf("got %+v, want %+v", r.Cmd, want)
	}

	r = Parse("S", true)
	if !r.OK || r.Cmd.Verb != "STATUS" {
		t.Fatalf("got %+v", r)
	}
}

func TestTimeCommand(t *testing.T) {
	r := Parse("T 5 STATUS", true)
	if !r.OK {
		t.Fatalf("parse failed: %+v", r)
	}
	if r.Cmd.Verb != "T" || r.Cmd.Args[0] != "5" {
		t.Fatalf("got %+v", r.Cmd)
	}
	if r.Cmd.Sub == nil || r.Cmd.Sub.Verb != "STATUS" {
		t.Fatalf("got sub %+v", r.Cmd.Sub)
	}
}

func TestTabSeparators(t *testing.T) {
	r := Parse("DEFINE\ten\tthe", false)
	if !r.OK {
		t.Fatalf("parse failed: %+v", r)
	}
}

func TestClientFreeText(t *testing.T) {
	r := Parse("CLIENT some client software 1.0", false)
	if !r.OK || r.Cmd.Verb != "CLIENT" {
		t.Fatalf("got %+v", r)
	}
	if r.Cmd.Args[0] != "some client software 1.0" {
		t.Fatalf("got %q", r.Cmd.Args[0])
	}
}

func TestOptionAlwaysParses(t *testing.T) {
	r := Parse("OPTION MIME", false)
	if !r.OK || r.Cmd.Verb != "OPTION" {
		t.Fatalf("got %+v", r)
	}
}

func TestDeterminismNeverPanics(t *testing.T) {
	inputs := []string{"", " ", "\"", "'", "\\", "DEFINE", "a b c d e", "T", "T x y"}
	for _, in := range inputs {
		_ = Parse(in, true)
		_ = Parse(in, false)
	}
}
