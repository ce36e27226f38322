package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

const (
	maxSeedBytes = 64 << 10
	maxFuzzInput = 16 << 10
)

// addScenarioSeeds adds every scenario file from the testdata tree.
func addScenarioSeeds(f *testing.F) {
	root := filepath.Join("..", "scenario", "testdata")
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || filepath.Ext(path) != ".toml" {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(src))
		return nil
	})
	f.Add([]byte{})
	f.Add([]byte("[[signature]]\nname = \"f\"\ntemplate = [\"T\"]\nparams = [\"T\"]\n\n[[call]]\nsignature = \"f\"\nargs = [\"int\"]\n"))
}

// typeSeeds are argument spellings that reach every parser branch.
var typeSeeds = []string{
	"int",
	"const char*",
	"char const* volatile",
	"int[4]",
	"int[]",
	"double[8]&",
	"fn(int, ...) -> void",
	"fn() -> int*",
	"__attribute__((address_space(2))) int*",
	"__strong Box<int>*",
	"Box<Box<int>>",
	"Box<int>::value_type",
	"(int*)",
	"-7",
	"",
	"int&&",
	"Box<",
}

func clampSeed(src []byte) []byte {
	if len(src) > maxSeedBytes {
		return append([]byte(nil), src[:maxSeedBytes]...)
	}
	return src
}
