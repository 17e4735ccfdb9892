package cache

import (
	"context"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]string{
		{},
		{"the", "thesis"},
		{"a", "", "b"},
		{"only-empty-tail", ""},
		{""},
	}
	for _, items := range cases {
		encoded := EncodeList(items)
		decoded := DecodeList(encoded)
		want := items
		if want == nil {
			want = []string{}
		}
		if !reflect.DeepEqual(decoded, want) {
			t.Errorf("round trip %v: encoded %q, decoded %v", items, encoded, decoded)
		}
	}
}

func TestDecodeEmptyValue(t *testing.T) {
	if got := DecodeList(""); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestKeys(t *testing.T) {
	if WordsKey("en") != "words:en" {
		t.Fatalf("got %q", WordsKey("en"))
	}
	if PreprocKey("en") != "preproc:en" {
		t.Fatalf("got %q", PreprocKey("en"))
	}
}

func TestNoneAlwaysMisses(t *testing.T) {
	var c None
	ctx := context.Background()
	c.Set(ctx, "k", "v")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss from None cache")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
