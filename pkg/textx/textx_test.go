package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	got := SanitizeText(in)
	want := "hello\nworld\t!"
	if got != want {
		t.Fatalf("SanitizeText(%q) = %q, want %q", in, got, want)
	}
}

func TestSanitizeTextTrims(t *testing.T) {
	if got := SanitizeText("  plain  "); got != "plain" {
		t.Fatalf("got %q", got)
	}
}

func TestStem(t *testing.T) {
	cases := []struct{ in, want string }{
		{"quiz.pdf", "quiz"},
		{"archive.tar.gz", "archive.tar"},
		{".gitignore", ".gitignore"},
		{"", ""},
		{"dir/report.docx", "report"},
		{"noext", "noext"},
	}
	for _, c := range cases {
		if got := Stem(c.in); got != c.want {
			t.Errorf("Stem(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("héllo", 3); got != "hél" {
		t.Fatalf("got %q", got)
	}
	if got := Snippet("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Snippet("x", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}
