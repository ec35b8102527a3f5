package compiler

import "strings"

//  Name/scope resolution.
//
// Attaches every identifier reference to its unique declaration via the
// scope chain, reports unresolved and ambiguous names, and flags
// duplicate declarations within one scope. Unresolved references get a
// placeholder declaration so that later passes keep running and can
// produce better diagnostics.

type NameResolver struct {
	program *Program
	errors  *ErrorSink
}

func NewNameResolver(program *Program, errors *ErrorSink) *NameResolver {
	return &NameResolver{program: program, errors: errors}
}

// Resolve runs the resolution pass over the whole program.
func (r *NameResolver) Resolve() {
	Walk(r.program, func(n Node) bool {
		switch t := n.(type) {
		case *Module, *Block, *Subroutine, *AnonymousScope:
			r.checkDuplicates(n.(Scope))
		case *IdentifierRef:
			r.resolveReference(t)
		case *VarDecl:
			if t.Type == DTStruct && t.Struct == nil {
				r.resolveStructRef(t)
			}
			// warm the scoped-name cache used for label emission
			t.ScopedName()
		}
		return true
	})
}

func (r *NameResolver) resolveReference(ref *IdentifierRef) {
	if ref.target != nil {
		return
	}
	scope := enclosingScope(ref)
	if scope == nil {
		r.errors.Errorf(ref.Pos(), "UNRESOLVED_NAME: %s has no enclosing scope", ref)
		ref.target = r.placeholder(ref)
		return
	}
	found, ambiguous := Lookup(ref.Path, scope)
	if ambiguous {
		r.errors.Errorf(ref.Pos(), "AMBIGUOUS_NAME: %s is reachable through more than one binding", ref)
		ref.target = r.placeholder(ref)
		return
	}
	if found == nil {
		r.errors.Errorf(ref.Pos(), "UNRESOLVED_NAME: undefined symbol %s", ref)
		ref.target = r.placeholder(ref)
		return
	}
	ref.target = found
}

func (r *NameResolver) resolveStructRef(decl *VarDecl) {
	scope := enclosingScope(decl)
	if scope == nil {
		return
	}
	found, _ := Lookup([]string{decl.StructName}, scope)
	if sd, ok := found.(*StructDecl); ok {
		decl.Struct = sd
		return
	}
	r.errors.Errorf(decl.Pos(), "UNRESOLVED_NAME: unknown struct %s", decl.StructName)
}

// placeholder builds a fake ubyte declaration standing in for an
// unresolved name, keeping later passes alive.
func (r *NameResolver) placeholder(ref *IdentifierRef) Node {
	decl := &VarDecl{
		Kind: VarKindVar,
		Type: DTUbyte,
		Name: strings.Join(ref.Path, "."),
	}
	decl.setPos(ref.Pos())
	decl.SetParent(ref.Parent())
	return decl
}

// checkDuplicates reports two declarations of the same name in one scope.
func (r *NameResolver) checkDuplicates(scope Scope) {
	var stmts []Node
	if c, ok := scope.(StatementContainer); ok {
		stmts = c.Body()
	}
	seen := make(map[string]Node)
	report := func(name string, n Node) {
		if name == "" {
			return
		}
		if prev, dup := seen[name]; dup {
			r.errors.Errorf(n.Pos(), "duplicate name %q in scope %s (first declared at %s)",
				name, scope.ScopeName(), prev.Pos())
			return
		}
		seen[name] = n
	}
	for _, st := range stmts {
		switch d := st.(type) {
		case *VarDecl:
			report(d.Name, d)
		case *Subroutine:
			report(d.Name, d)
		case *Label:
			report(d.Name, d)
		case *StructDecl:
			report(d.Name, d)
		case *Block:
			report(d.Name, d)
		}
	}
}
