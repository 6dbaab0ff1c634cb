package urlnorm

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase host", "https://Example.COM/News/Story", "https://example.com/News/Story"},
		{"strip fragment", "https://example.com/a#section", "https://example.com/a"},
		{"trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"root keeps slash", "https://example.com/", "https://example.com/"},
		{"utm stripped", "https://example.com/a?utm_source=x&id=5", "https://example.com/a?id=5"},
		{"fbclid stripped", "https://example.com/a?fbclid=abc&id=5", "https://example.com/a?id=5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	if !Equal("https://Example.com/a/?utm_source=x", "https://example.com/a") {
		t.Error("expected equal URLs to normalize the same")
	}
	if Equal("https://example.com/a", "https://example.com/b") {
		t.Error("expected different paths to be unequal")
	}
}

func TestResolve(t *testing.T) {
	got, err := Resolve("https://example.com/news/", "../tag/marico/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://example.com/tag/marico"
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}
