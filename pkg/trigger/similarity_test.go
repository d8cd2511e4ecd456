package trigger

import (
	"math"
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"lowercases and strips punctuation", "Hello, World!", []string{"hello", "world"}},
		{"apostrophe joins", "It's fine", []string{"its", "fine"}},
		{"collapses whitespace", "  a \t b\n\nc  ", []string{"a", "b", "c"}},
		{"only punctuation", "?!... ---", nil},
		{"keeps digits and underscores", "v2 snake_case", []string{"v2", "snake_case"}},
		{"unicode letters", "ÉCOLE Straße", []string{"école", "straße"}},
		{"fullwidth folds", "ＡＢＣ", []string{"abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical", func(t *testing.T) {
		a := []string{"rewrite", "the", "intro"}
		if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
			t.Errorf("expected 1, got %f", got)
		}
	})

	t.Run("disjoint", func(t *testing.T) {
		if got := CosineSimilarity([]string{"a"}, []string{"b"}); got != 0 {
			t.Errorf("expected 0, got %f", got)
		}
	})

	t.Run("term frequency matters", func(t *testing.T) {
		// a = {x:2, y:1}, b = {x:1}: 2 / (sqrt(5) * 1)
		got := CosineSimilarity([]string{"x", "x", "y"}, []string{"x"})
		want := 2 / math.Sqrt(5)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("expected %f, got %f", want, got)
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Tokenize("Rewrite the intro paragraph")
		b := Tokenize("Rewrite the intro paragraph differently")
		if CosineSimilarity(a, b) != CosineSimilarity(b, a) {
			t.Error("expected similarity to be symmetric")
		}
	})

	t.Run("zero vectors", func(t *testing.T) {
		cases := [][2][]string{
			{nil, nil},
			{nil, {"a"}},
			{{"a"}, {}},
			{Tokenize("!!!"), Tokenize("???")},
		}
		for _, c := range cases {
			got := CosineSimilarity(c[0], c[1])
			if math.IsNaN(got) || got != 0 {
				t.Errorf("CosineSimilarity(%q, %q) = %f, want 0", c[0], c[1], got)
			}
		}
	})
}
