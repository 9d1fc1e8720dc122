package codemode

import "strings"

import "testing"

func TestEnsureOutAssignedRewritesTrailingExpression(t *testing.T) {
	got := ensureOutAssigned("x := 2\nx + 3")
	if got != "x := 2\n__out = x + 3" {
		t.Fatalf("got %q", got)
	}
}

func TestEnsureOutAssignedLeavesExistingOutAlone(t *testing.T) {
	code := "__out = 5"
	if got := ensureOutAssigned(code); got != code {
		t.Fatalf("expected no change, got %q", got)
	}
}

func TestEnsureOutAssignedSkipsDeclarationsAndBlocks(t *testing.T) {
	got := ensureOutAssigned("if true {\n}")
	if got != "if true {\n}" {
		t.Fatalf("a trailing closing brace must not be rewritten, got %q", got)
	}
	if got := ensureOutAssigned("y := 1"); got != "y := 1" {
		t.Fatalf("a trailing declaration must not be rewritten, got %q", got)
	}
}

func TestIsAssignableExpression(t *testing.T) {
	cases := map[string]bool{
		"x + 1":              true,
		"x := 1":              false,
		"var y = 1":           false,
		"return x":            false,
		"__out = 1":           false,
		"}":                   false,
		"func run() any {":    false,
	}
	for line, want := range cases {
		if got := isAssignableExpression(line); got != want {
			t.Errorf("isAssignableExpression(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestStripPackageAndImportsRemovesHeaderLines(t *testing.T) {
	code := "package main\n\nimport (\n\t\"fmt\"\n)\n\nx := 1"
	got := stripPackageAndImports(code)
	if strings.Contains(got, "package") || strings.Contains(got, "import") || strings.Contains(got, "\"fmt\"") {
		t.Fatalf("expected package/import lines stripped, got %q", got)
	}
	if !strings.Contains(got, "x := 1") {
		t.Fatalf("expected the real statement to survive, got %q", got)
	}
}

func TestPrepareWrappedProgramInjectsHelperImport(t *testing.T) {
	program, err := prepareWrappedProgram(`codemode.Sprintf("hi")`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(program, `codemode "`+helpersPackagePath+`"`) {
		t.Fatalf("expected the helpers package to be imported under the codemode alias, got:\n%s", program)
	}
	if !strings.Contains(program, "func run() interface{} {") {
		t.Fatalf("expected the snippet to be wrapped in run(), got:\n%s", program)
	}
}

func TestPrepareWrappedProgramStripsUserSuppliedPackageLine(t *testing.T) {
	program, err := prepareWrappedProgram("package main\n\n__out = 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(program, "package main") != 1 {
		t.Fatalf("expected exactly one package clause, got:\n%s", program)
	}
}
