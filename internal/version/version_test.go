package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestColoredWithoutColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	for _, v := range []string{"0.1.0-dev", "1.2.3", "2.0.0-rc.1", "7"} {
		if got := Colored(v); got != v {
			t.Errorf("Colored(%q) = %q", v, got)
		}
	}
}

func TestColoredWithColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = prev }()

	if got := Colored("1.2.3"); got == "1.2.3" {
		t.Fatalf("expected escape sequences in %q", got)
	}
}

func TestShort(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	defer func() { Version, GitCommit = origVersion, origCommit }()

	tests := []struct {
		version, commit, want string
	}{
		{"0.1.0", "", "0.1.0"},
		{"", "", "dev"},
		{"1.0.0", "1234567890abcdef", "1.0.0 (1234567890ab)"},
		{" 1.0.0 ", "abc", "1.0.0 (abc)"},
	}
	for _, tt := range tests {
		Version, GitCommit = tt.version, tt.commit
		if got := Short(); got != tt.want {
			t.Errorf("Short() with %q/%q = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}
