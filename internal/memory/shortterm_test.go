package memory

import "testing"

func TestShortTermWindowEviction(t *testing.T) {
	buf := NewShortTerm(3)
	for _, content := range []string{"a", "b", "c", "d"} {
		buf.Append("s1", "main", Turn{Role: "user", Content: content})
	}

	turns := buf.Recent("s1", "main")
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(turns))
	}
	if turns[0].Content != "b" || turns[2].Content != "d" {
		t.Errorf("window = %v, want oldest b, newest d", turns)
	}
}

func TestShortTermBranchesAreIndependent(t *testing.T) {
	buf := NewShortTerm(5)
	buf.Append("s1", "main", Turn{Role: "user", Content: "on main"})
	buf.Append("s1", "alt", Turn{Role: "user", Content: "on alt"})

	if got := buf.Recent("s1", "main"); len(got) != 1 || got[0].Content != "on main" {
		t.Errorf("main = %v", got)
	}
	if got := buf.Recent("s1", "alt"); len(got) != 1 || got[0].Content != "on alt" {
		t.Errorf("alt = %v", got)
	}
}

func TestShortTermEmptyBranchDefaultsToMain(t *testing.T) {
	buf := NewShortTerm(5)
	buf.Append("s1", "", Turn{Role: "user", Content: "hi"})

	if got := buf.Recent("s1", "main"); len(got) != 1 {
		t.Errorf("main = %v, want the turn appended with empty branch", got)
	}
}

func TestShortTermSeedTrims(t *testing.T) {
	buf := NewShortTerm(2)
	buf.Seed("s1", "main", []Turn{
		{Content: "a"}, {Content: "b"}, {Content: "c"},
	})

	turns := buf.Recent("s1", "main")
	if len(turns) != 2 || turns[0].Content != "b" {
		t.Errorf("seeded window = %v, want last two turns", turns)
	}
}
