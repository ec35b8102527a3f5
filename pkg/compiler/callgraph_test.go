package compiler

import (
	"testing"

	"github.com/nalgeon/be"
)

// buildGraph parses and resolves a program, then builds its call graph.
func buildGraph(t *testing.T, src string) (*Program, *CallGraph) {
	t.Helper()
	namegen := NewNameGen()
	mod, err := ParseModule(src, "test.p8", namegen)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	program := &Program{Name: "test", Modules: []*Module{mod}}
	mod.SetParent(program)
	LinkParents(program)
	errors := NewErrorSink()
	NewNameResolver(program, errors).Resolve()
	if errors.HasErrors() {
		t.Fatalf("resolution failed: %v", errors.Err())
	}
	return program, BuildCallGraph(program)
}

const graphSrc = `
main {
    sub leaf() {
        ubyte v
        v = 1
    }
    sub middle() {
        leaf()
    }
    sub lonely() {
        ubyte v
        v = 1
    }
    sub start() {
        middle()
    }
}
`

func TestCallersAndCallees(t *testing.T) {
	program, graph := buildGraph(t, graphSrc)
	start := findSubroutine(program, "start")
	middle := findSubroutine(program, "middle")
	leaf := findSubroutine(program, "leaf")
	lonely := findSubroutine(program, "lonely")

	be.Equal(t, []*Subroutine{middle}, graph.Callees(start))
	be.Equal(t, []*Subroutine{leaf}, graph.Callees(middle))
	be.Equal(t, []*Subroutine{middle}, graph.Callers(leaf))
	be.Equal(t, 0, len(graph.Callers(lonely)))
}

func TestReachableFromEntry(t *testing.T) {
	program, graph := buildGraph(t, graphSrc)
	entry := EntryPoint(program)
	be.Equal(t, "start", entry.Name)

	reachable := graph.ReachableFrom(entry)
	be.True(t, reachable[findSubroutine(program, "start")])
	be.True(t, reachable[findSubroutine(program, "middle")])
	be.True(t, reachable[findSubroutine(program, "leaf")])
	be.True(t, !reachable[findSubroutine(program, "lonely")])
}

func TestForAllSubroutines(t *testing.T) {
	program, graph := buildGraph(t, graphSrc)
	var names []string
	graph.ForAllSubroutines(program.Modules[0], func(s *Subroutine) {
		names = append(names, s.Name)
	})
	be.Equal(t, 4, len(names))
}

func TestRecursionDetection(t *testing.T) {
	_, graph := buildGraph(t, `
main {
    sub a() {
        b()
    }
    sub b() {
        a()
    }
    sub start() {
        a()
    }
}
`)
	errors := NewErrorSink()
	graph.CheckRecursion(errors)
	warnings := 0
	for _, d := range errors.Diagnostics() {
		if d.Severity == SeverityWarning {
			warnings++
		}
	}
	// both a and b are mutually recursive
	be.Equal(t, 2, warnings)
	be.True(t, !errors.HasErrors())
}

func TestAddressOfSubroutineCountsAsReference(t *testing.T) {
	program, graph := buildGraph(t, `
main {
    sub handler() {
        ubyte v
        v = 1
    }
    sub start() {
        uword ptr
        ptr = &handler
    }
}
`)
	handler := findSubroutine(program, "handler")
	be.Equal(t, 1, len(graph.Callers(handler)))
}
