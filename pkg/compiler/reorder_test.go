package compiler

import (
	"testing"

	"github.com/nalgeon/be"
)

// reorderProgram runs resolution and the reorder pass over one module.
func reorderProgram(t *testing.T, src string) *Program {
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
	NewStatementReorderer(program, errors, namegen).Reorder()
	if errors.HasErrors() {
		t.Fatalf("unexpected errors: %v", errors.Err())
	}
	return program
}

func blockNames(mod *Module) []string {
	var names []string
	for _, st := range mod.Statements {
		if b, ok := st.(*Block); ok {
			names = append(names, b.Name)
		}
	}
	return names
}

func TestBlockOrdering(t *testing.T) {
	program := reorderProgram(t, `
late $c000 {
}
early $0900 {
}
main {
    sub start() {
    }
}
noaddr {
    ubyte v
}
`)
	// main first (no explicit address), then by address, no-address last
	be.Equal(t, []string{"main", "early", "late", "noaddr"}, blockNames(program.Modules[0]))
}

func TestMainWithAddressIsNotMovedToFront(t *testing.T) {
	program := reorderProgram(t, `
main $c000 {
    sub start() {
    }
}
other $0900 {
    ubyte v
}
`)
	be.Equal(t, []string{"other", "main"}, blockNames(program.Modules[0]))
}

func TestDeclarationHoisting(t *testing.T) {
	program := reorderProgram(t, `
main {
    sub start() {
        x = 1
        ubyte x
        %option force_output
    }
}
`)
	sub := findSubroutine(program, "start")
	// directive first, then the declaration, then the code
	_, isDirective := sub.Statements[0].(*Directive)
	be.True(t, isDirective)
	_, isDecl := sub.Statements[1].(*VarDecl)
	be.True(t, isDecl)
	_, isAssign := sub.Statements[2].(*Assignment)
	be.True(t, isAssign)
}

func TestStartSubroutinePromotion(t *testing.T) {
	program := reorderProgram(t, `
main {
    sub helper() {
        ubyte v
        v = 1
    }
    sub start() {
    }
}
`)
	block := program.Modules[0].Statements[0].(*Block)
	var subs []string
	for _, st := range block.Statements {
		if s, ok := st.(*Subroutine); ok {
			subs = append(subs, s.Name)
		}
	}
	be.Equal(t, []string{"start", "helper"}, subs)
}

func TestSplitNonConstantInitializer(t *testing.T) {
	program := reorderProgram(t, `
main {
    sub start() {
        ubyte y
        y = 3
        ubyte x = y + 1
    }
}
`)
	sub := findSubroutine(program, "start")
	// the declaration of x is bare and hoisted; an assignment x = y + 1
	// takes its original position
	var xDecl *VarDecl
	assignments := 0
	for _, st := range sub.Statements {
		if d, ok := st.(*VarDecl); ok && d.Name == "x" {
			xDecl = d
		}
		if _, ok := st.(*Assignment); ok {
			assignments++
		}
	}
	if xDecl == nil {
		t.Fatal("declaration of x not found")
	}
	be.True(t, xDecl.Value == nil)
	be.Equal(t, 2, assignments)
}

func TestConstantInitializerIsNotSplit(t *testing.T) {
	program := reorderProgram(t, wrapStart("ubyte x = 5"))
	sub := findSubroutine(program, "start")
	decl := sub.Statements[0].(*VarDecl)
	be.True(t, decl.Value != nil)
}

func TestAugmentedAssignDesugaring(t *testing.T) {
	program := reorderProgram(t, wrapStart("ubyte x\nx += 5"))
	sub := findSubroutine(program, "start")
	var a *Assignment
	for _, st := range sub.Statements {
		if asg, ok := st.(*Assignment); ok {
			a = asg
		}
	}
	if a == nil {
		t.Fatal("assignment not found")
	}
	// x op= e  becomes  x = x op e
	be.Equal(t, "", a.AugOp)
	bin := a.Value.(*BinaryExpr)
	be.Equal(t, "+", bin.Op)
	ref := bin.Left.(*IdentifierRef)
	be.Equal(t, "x", ref.String())
	be.Equal(t, 5, bin.Right.(*NumericLiteral).IntValue())
}

func TestWhenChoiceSorting(t *testing.T) {
	program := reorderProgram(t, wrapStart(`ubyte x
ubyte y
x = 1
when x {
    else -> { y = 0 }
    9 -> { y = 9 }
    2, 7 -> { y = 2 }
    5 -> { y = 5 }
}`))
	var w *WhenStmt
	Walk(program, func(n Node) bool {
		if ws, ok := n.(*WhenStmt); ok {
			w = ws
		}
		return true
	})
	if w == nil {
		t.Fatal("when statement not found")
	}
	// ordered by smallest constant; else last
	be.Equal(t, 2, w.Choices[0].Values[0].(*NumericLiteral).IntValue())
	be.Equal(t, 5, w.Choices[1].Values[0].(*NumericLiteral).IntValue())
	be.Equal(t, 9, w.Choices[2].Values[0].(*NumericLiteral).IntValue())
	be.True(t, w.Choices[3].Values == nil)
}

func TestStructAssignDesugaring(t *testing.T) {
	program := reorderProgram(t, `
main {
    struct Point {
        ubyte x
        ubyte y
    }
    Point p1
    Point p2
    sub start() {
        p1 = p2
    }
}
`)
	sub := findSubroutine(program, "start")
	var assigns []*Assignment
	for _, st := range sub.Statements {
		if a, ok := st.(*Assignment); ok {
			assigns = append(assigns, a)
		}
	}
	be.Equal(t, 2, len(assigns))
	be.Equal(t, "p1$x", assigns[0].Target.Identifier.String())
	be.Equal(t, "p1$y", assigns[1].Target.Identifier.String())

	// the struct variables themselves are flattened at block level
	block := program.Modules[0].Statements[0].(*Block)
	var flat []string
	for _, st := range block.Statements {
		if d, ok := st.(*VarDecl); ok {
			flat = append(flat, d.Name)
		}
	}
	be.Equal(t, []string{"p1$x", "p1$y", "p2$x", "p2$y"}, flat)
}

func TestStructValueListMismatch(t *testing.T) {
	diags := compileError(t, `
main {
    struct Point {
        ubyte x
        ubyte y
    }
    Point p
    sub start() {
        p = [1, 2, 3]
    }
}
`)
	assertContains(t, diags, "2 member(s), value list has 3")
}

func TestStructMemberAccessIsRenamed(t *testing.T) {
	program := reorderProgram(t, `
main {
    struct Point {
        ubyte x
        ubyte y
    }
    Point p
    sub start() {
        ubyte v
        v = p.x
    }
}
`)
	sub := findSubroutine(program, "start")
	var a *Assignment
	for _, st := range sub.Statements {
		if asg, ok := st.(*Assignment); ok {
			a = asg
		}
	}
	ref := a.Value.(*IdentifierRef)
	be.Equal(t, "p$x", ref.String())
}
