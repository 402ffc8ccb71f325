package sandbox

import (
	"path/filepath"
	"testing"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	base := t.TempDir()
	return New(base, []string{"SOUL.md"}, []string{"patches", "skills_generated"})
}

func TestIsSafe(t *testing.T) {
	s := newTestSandbox(t)

	cases := []struct {
		path string
		want bool
	}{
		{"SOUL.md", true},
		{"patches/quest-1.md", true},
		{"skills_generated/x", true},
		{"skills_generated/nested/deep/file.md", true},

		// Traversal and absolute paths.
		{"../../etc/passwd", false},
		{"/etc/passwd", false},
		{"patches/../../../etc/passwd", false},
		{"skills_generated/../SOUL2.md", false},

		// Prefix collision: a sibling dir that merely starts with an
		// allowed root's name must not be accepted.
		{"skills_generatedEvil/x", false},
		{"patchesX/y", false},

		// The directory roots themselves are not file targets.
		{"patches", false},
		{"skills_generated", false},

		{"", false},
		{"OTHER.md", false},
	}
	for _, c := range cases {
		if got := s.IsSafe(c.path); got != c.want {
			t.Errorf("IsSafe(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestIsSafeTraversalBackIn(t *testing.T) {
	s := newTestSandbox(t)
	// A path that leaves an allowed root and comes back into another allowed
	// root still resolves inside the sandbox and is accepted.
	if !s.IsSafe("patches/../skills_generated/tool.md") {
		t.Error("IsSafe should accept a path that resolves inside an allowed root")
	}
}

func TestResolve(t *testing.T) {
	base := t.TempDir()
	s := New(base, []string{"SOUL.md"}, nil)
	want, _ := filepath.Abs(filepath.Join(base, "SOUL.md"))
	if got := s.Resolve("SOUL.md"); got != want {
		t.Errorf("Resolve(SOUL.md) = %q, want %q", got, want)
	}
}
