package codemode

import "testing"

func TestSprintfPlaceholdersSubstitutesInOrder(t *testing.T) {
	got := sprintfPlaceholders("{} plus {} is {}", []any{1, 2, 3})
	if got != "1 plus 2 is 3" {
		t.Fatalf("got %q", got)
	}
}

func TestSprintfPlaceholdersLeavesExtraPlaceholdersUntouched(t *testing.T) {
	got := sprintfPlaceholders("{} and {}", []any{"only one"})
	if got != "only one and {}" {
		t.Fatalf("got %q", got)
	}
}

func TestSprintfPlaceholdersIgnoresLoneBrace(t *testing.T) {
	got := sprintfPlaceholders("a { b } c {}", []any{"x"})
	if got != "a { b } c x" {
		t.Fatalf("got %q", got)
	}
}
