package assetcache

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandManifest turns configured manifest entries into the fixed list of
// paths to precache. Plain paths are kept as they are; glob entries are
// matched against fsys, whose root corresponds to "/". Duplicates are
// dropped, keeping the first occurrence.
func ExpandManifest(fsys fs.FS, entries []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry, "/") {
			return nil, fmt.Errorf("manifest entry %q must start with /", entry)
		}
		if !strings.ContainsAny(entry, "*?[{") {
			add(entry)
			continue
		}

		pattern := strings.TrimPrefix(entry, "/")
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("manifest entry %q is not a valid pattern", entry)
		}
		if fsys == nil {
			return nil, fmt.Errorf("manifest entry %q needs an asset tree to expand against", entry)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", entry, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("manifest entry %q matches no assets", entry)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add("/" + m)
		}
	}
	return out, nil
}
