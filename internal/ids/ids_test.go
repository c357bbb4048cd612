package ids

import (
	"sort"
	"testing"
)

func TestNewIsUniqueAndSortable(t *testing.T) {
	const n = 1000
	generated := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := New()
		if len(id) != 26 {
			t.Fatalf("unexpected id length: %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id: %s", id)
		}
		seen[id] = struct{}{}
		generated = append(generated, id)
	}
	if !sort.StringsAreSorted(generated) {
		t.Fatal("ids generated in sequence are not lexicographically ordered")
	}
}
