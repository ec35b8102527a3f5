package compiler

import (
	"fmt"
	"strings"
)

//  Scopes and name lookup.
//
// A node is a scope when it introduces a named environment: Module,
// Block, Subroutine, StructDecl and AnonymousScope. Scopes compose into
// a chain that is walked outward until the Program root. Lookup is by
// dotted name path; absolute lookup starts from the root.

// Scope is implemented by every node that introduces a named environment.
type Scope interface {
	Node
	ScopeName() string
	// LookupLocal finds a declaration by name in this scope only.
	LookupLocal(name string) Node
}

func (m *Module) ScopeName() string     { return m.Name }
func (b *Block) ScopeName() string      { return b.Name }
func (s *Subroutine) ScopeName() string { return s.Name }
func (s *StructDecl) ScopeName() string { return s.Name }
func (a *AnonymousScope) ScopeName() string {
	return a.Name
}

// lookupInStatements scans a statement list for a declaration named name.
func lookupInStatements(stmts []Node, name string) Node {
	for _, st := range stmts {
		switch d := st.(type) {
		case *VarDecl:
			if d.Name == name {
				return d
			}
		case *Subroutine:
			if d.Name == name {
				return d
			}
		case *Label:
			if d.Name == name {
				return d
			}
		case *StructDecl:
			if d.Name == name {
				return d
			}
		case *Block:
			if d.Name == name {
				return d
			}
		}
	}
	return nil
}

func (m *Module) LookupLocal(name string) Node { return lookupInStatements(m.Statements, name) }
func (b *Block) LookupLocal(name string) Node  { return lookupInStatements(b.Statements, name) }
func (s *Subroutine) LookupLocal(name string) Node {
	return lookupInStatements(s.Statements, name)
}
func (a *AnonymousScope) LookupLocal(name string) Node {
	return lookupInStatements(a.Statements, name)
}
func (s *StructDecl) LookupLocal(name string) Node {
	for _, d := range s.Decls {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// enclosingScope returns the nearest scope at or above n's parent.
func enclosingScope(n Node) Scope {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if s, ok := p.(Scope); ok {
			return s
		}
	}
	return nil
}

// Lookup resolves a dotted name path starting from the given scope,
// ascending through enclosing scopes up to the program root, then
// consulting the other modules' blocks. It returns the unique
// declaration, or nil with ambiguous=false when nothing is bound, or
// nil with ambiguous=true when two bindings are reachable at the same
// distance.
func Lookup(path []string, from Scope) (result Node, ambiguous bool) {
	if len(path) == 0 {
		return nil, false
	}
	head := path[0]

	// ascend through enclosing scopes
	for scope := from; scope != nil; {
		if found := scope.LookupLocal(head); found != nil {
			return followPath(found, path[1:])
		}
		scope = enclosingScope(scope)
	}

	// cross-module: a top-level block name from any module
	program := rootProgram(from)
	if program == nil {
		return nil, false
	}
	var hits []Node
	for _, mod := range program.Modules {
		if found := mod.LookupLocal(head); found != nil {
			hits = append(hits, found)
		}
	}
	switch len(hits) {
	case 0:
		return nil, false
	case 1:
		return followPath(hits[0], path[1:])
	default:
		return nil, true
	}
}

// LookupAbsolute resolves a dotted path starting from the program root.
func LookupAbsolute(path []string, program *Program) Node {
	if len(path) == 0 {
		return nil
	}
	for _, mod := range program.Modules {
		if found := mod.LookupLocal(path[0]); found != nil {
			if r, _ := followPath(found, path[1:]); r != nil {
				return r
			}
		}
	}
	return nil
}

// followPath walks the remaining dotted components through named children.
func followPath(n Node, rest []string) (Node, bool) {
	for _, name := range rest {
		scope, ok := n.(Scope)
		if !ok {
			// struct member access through a variable: s.member
			if vd, isVar := n.(*VarDecl); isVar && vd.Struct != nil {
				scope = vd.Struct
			} else {
				return nil, false
			}
		}
		n = scope.LookupLocal(name)
		if n == nil {
			return nil, false
		}
	}
	return n, false
}

func rootProgram(n Node) *Program {
	for n != nil {
		if p, ok := n.(*Program); ok {
			return p
		}
		n = n.Parent()
	}
	return nil
}

//  Scoped names.
//
// Every declaration caches its canonical dotted path from the program
// root; the assembly emitter uses it as the label name. The cache is
// computed on demand and must be invalidated when a pass moves a
// declaration across scopes.

func computeScopedName(n Node, ownName string) string {
	parts := []string{ownName}
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch s := p.(type) {
		case *Block:
			parts = append(parts, s.Name)
		case *Subroutine:
			parts = append(parts, s.Name)
		case *AnonymousScope:
			parts = append(parts, s.Name)
		}
	}
	// reverse
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// ScopedName returns the canonical dotted path of the declaration.
func (d *VarDecl) ScopedName() string {
	if d.scopedName == "" {
		d.scopedName = computeScopedName(d, d.Name)
	}
	return d.scopedName
}

func (s *Subroutine) ScopedName() string {
	if s.scopedName == "" {
		s.scopedName = computeScopedName(s, s.Name)
	}
	return s.scopedName
}

func (l *Label) ScopedName() string {
	if l.scopedName == "" {
		l.scopedName = computeScopedName(l, l.Name)
	}
	return l.scopedName
}

// InvalidateScopedName drops the cached path; the next ScopedName call
// recomputes it from the current tree position.
func (d *VarDecl) InvalidateScopedName()    { d.scopedName = "" }
func (s *Subroutine) InvalidateScopedName() { s.scopedName = "" }
func (l *Label) InvalidateScopedName()      { l.scopedName = "" }

// NameGen hands out unique generated names. A single instance is
// threaded through the passes that synthesize declarations or scopes.
type NameGen struct {
	counters map[string]int
}

func NewNameGen() *NameGen {
	return &NameGen{counters: make(map[string]int)}
}

// Next returns prefix_N with a per-prefix increasing sequence number.
func (g *NameGen) Next(prefix string) string {
	g.counters[prefix]++
	return fmt.Sprintf("%s_%d", prefix, g.counters[prefix])
}
