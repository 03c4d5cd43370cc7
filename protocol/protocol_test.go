package protocol

import "testing"

func TestParseRecognizedCommands(t *testing.T) {
	cases := []struct {
		line string
		want Command
	}{
		{"get foo", Command{Kind: Get, Key: []byte("foo")}},
		{"insert foo bar", Command{Kind: Insert, Key: []byte("foo"), Value: []byte("bar")}},
		{"update foo bar", Command{Kind: Update, Key: []byte("foo"), Value: []byte("bar")}},
		{"delete foo", Command{Kind: Delete, Key: []byte("foo")}},
	}

	for _, c := range cases {
		got := Parse([]byte(c.line))
		if got.Kind != c.want.Kind || string(got.Key) != string(c.want.Key) || string(got.Value) != string(c.want.Value) {
			t.Errorf("Parse(%q) = %+v, want %+v", c.line, got, c.want)
		}
	}
}

func TestParseRejectsMalformedOrUnknown(t *testing.T) {
	cases := []string{
		"",
		"help",
		"get",
		"get foo bar",
		"insert foo",
		"frobnicate foo bar",
	}

	for _, line := range cases {
		got := Parse([]byte(line))
		if got.Kind != Unknown {
			t.Errorf("Parse(%q).Kind = %v, want Unknown", line, got.Kind)
		}
	}
}

func TestRenderNotFound(t *testing.T) {
	if got, want := RenderNotFound([]byte("missing")), "missing not found"; got != want {
		t.Errorf("RenderNotFound = %q, want %q", got, want)
	}
}
