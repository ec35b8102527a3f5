package compiler

import (
	"strings"
	"testing"
)

//  Shared test helpers.

// mustCompile runs the full pipeline on the c64 target and fails the
// test on any error.
func mustCompile(t *testing.T, src string) *Result {
	t.Helper()
	result, err := Compile(src, "test.p8", TargetC64)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return result
}

// compileError runs the pipeline and returns the diagnostics text,
// failing the test when compilation unexpectedly succeeds.
func compileError(t *testing.T, src string) string {
	t.Helper()
	result, err := Compile(src, "test.p8", TargetC64)
	if err == nil {
		t.Fatalf("expected a compile error, got none.\nAssembly:\n%s", result.Assembly)
	}
	var sb strings.Builder
	if result != nil {
		for _, d := range result.Diagnostics {
			sb.WriteString(d.String())
			sb.WriteString("\n")
		}
	}
	if sb.Len() == 0 {
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// mustParse parses one module and fails the test on error.
func mustParse(t *testing.T, src string) *Module {
	t.Helper()
	mod, err := ParseModule(src, "test.p8", NewNameGen())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return mod
}

// assertContains checks that the generated code contains the substring.
func assertContains(t *testing.T, code, expected string) {
	t.Helper()
	if !strings.Contains(code, expected) {
		t.Errorf("expected code to contain %q, but it didn't.\nCode:\n%s", expected, code)
	}
}

func assertNotContains(t *testing.T, code, unexpected string) {
	t.Helper()
	if strings.Contains(code, unexpected) {
		t.Errorf("expected code NOT to contain %q, but it did.\nCode:\n%s", unexpected, code)
	}
}

func countOccurrences(s, sub string) int {
	return strings.Count(s, sub)
}

// wrapStart builds a minimal program with the statements inside
// main.start.
func wrapStart(body string) string {
	return "main {\n    sub start() {\n" + body + "\n    }\n}\n"
}
