package compiler

import (
	"math"
	"sort"
)

//  Statement reordering and desugaring.
//
// One pass that (in order): canonicalizes the block order of every
// module, hoists declarations and directives within scopes, promotes
// the start subroutine, splits non-constant initializers, desugars
// augmented and struct assignments, and sorts when-choices. After it
// runs, no augmented operator and no struct-typed assignment remains in
// the tree.

// hoistedDirectives are the directives that belong above the variable
// declarations of a scope.
var hoistedDirectives = map[string]bool{
	"output":     true,
	"launcher":   true,
	"zeropage":   true,
	"zpreserved": true,
	"address":    true,
	"option":     true,
}

type StatementReorderer struct {
	program *Program
	errors  *ErrorSink
	namegen *NameGen
}

func NewStatementReorderer(program *Program, errors *ErrorSink, namegen *NameGen) *StatementReorderer {
	return &StatementReorderer{program: program, errors: errors, namegen: namegen}
}

func (r *StatementReorderer) Reorder() {
	r.reorderBlocks()
	r.hoistDeclarations()
	r.promoteStart()
	r.splitInitializers()
	RewriteTree(r.program, augAssignDesugarer{})
	RewriteTree(r.program, &structDesugarer{errors: r.errors})
	r.sortWhenChoices()
}

// orderingMods expresses an arbitrary reordering of a statement list
// through the walker's primitives: remove everything, then append in
// the desired order.
func orderingMods(container StatementContainer, desired []Node) []Modification {
	current := container.Body()
	same := len(current) == len(desired)
	if same {
		for i := range current {
			if current[i] != desired[i] {
				same = false
				break
			}
		}
	}
	if same {
		return nil
	}
	var mods []Modification
	for _, st := range current {
		mods = append(mods, Remove(st, container))
	}
	for _, st := range desired {
		mods = append(mods, InsertLast(st, container))
	}
	return mods
}

// reorderBlocks partitions each module's statements into blocks and
// non-blocks, appends the blocks sorted by address (no address sorts
// last), moves main to the front unless it has an explicit address, and
// moves library blocks to the very end.
func (r *StatementReorderer) reorderBlocks() {
	var mods []Modification
	for _, mod := range r.program.Modules {
		var blocks []*Block
		var rest []Node
		for _, st := range mod.Statements {
			if b, ok := st.(*Block); ok {
				blocks = append(blocks, b)
			} else {
				rest = append(rest, st)
			}
		}
		sort.SliceStable(blocks, func(i, j int) bool {
			return blockSortAddress(blocks[i]) < blockSortAddress(blocks[j])
		})

		desired := rest
		var main *Block
		var libraries, normal []*Block
		for _, b := range blocks {
			switch {
			case b.Name == "main" && b.Address < 0:
				main = b
			case b.Library:
				libraries = append(libraries, b)
			default:
				normal = append(normal, b)
			}
		}
		if main != nil {
			desired = append(desired, main)
		}
		for _, b := range normal {
			desired = append(desired, b)
		}
		for _, b := range libraries {
			desired = append(desired, b)
		}
		mods = append(mods, orderingMods(mod, desired)...)
	}
	for _, m := range mods {
		m.apply()
	}
}

func blockSortAddress(b *Block) int {
	if b.Address < 0 {
		return math.MaxInt
	}
	return b.Address
}

// hoistDeclarations moves variable declarations to the top of every
// scope and the fixed directive set above them.
func (r *StatementReorderer) hoistDeclarations() {
	var mods []Modification
	Walk(r.program, func(n Node) bool {
		container, ok := n.(StatementContainer)
		if !ok {
			return true
		}
		if _, isModule := n.(*Module); isModule {
			return true // module ordering is the block reorder's job
		}
		var directives, decls, rest []Node
		for _, st := range container.Body() {
			switch d := st.(type) {
			case *Directive:
				if hoistedDirectives[d.Name] {
					directives = append(directives, st)
				} else {
					rest = append(rest, st)
				}
			case *VarDecl:
				// a non-constant initializer must keep its evaluation
				// point; the initializer splitter hoists the bare
				// declaration afterwards
				if d.Value != nil && !isCompileTimeConstant(d.Value) {
					rest = append(rest, st)
				} else {
					decls = append(decls, st)
				}
			case *StructDecl:
				decls = append(decls, st)
			default:
				rest = append(rest, st)
			}
		}
		desired := append(append(directives, decls...), rest...)
		mods = append(mods, orderingMods(container, desired)...)
		return true
	})
	for _, m := range mods {
		m.apply()
	}
}

// promoteStart makes the start subroutine the first subroutine of its
// enclosing block.
func (r *StatementReorderer) promoteStart() {
	var mods []Modification
	for _, mod := range r.program.Modules {
		for _, st := range mod.Statements {
			block, ok := st.(*Block)
			if !ok {
				continue
			}
			var start *Subroutine
			firstSubIdx := -1
			for i, bs := range block.Statements {
				if sub, isSub := bs.(*Subroutine); isSub {
					if firstSubIdx < 0 {
						firstSubIdx = i
					}
					if sub.Name == "start" {
						start = sub
						break
					}
				}
			}
			if start == nil || block.Statements[firstSubIdx] == start {
				continue
			}
			anchor := block.Statements[firstSubIdx]
			mods = append(mods,
				Remove(start, block),
				InsertBefore(anchor, start, block))
			start.InvalidateScopedName()
		}
	}
	for _, m := range mods {
		m.apply()
	}
}

// splitInitializers rewrites  var x = e  with a non-constant e into a
// bare declaration plus an assignment at the original position, then
// hoists the new bare declarations.
func (r *StatementReorderer) splitInitializers() {
	var mods []Modification
	Walk(r.program, func(n Node) bool {
		decl, ok := n.(*VarDecl)
		if !ok {
			return true
		}
		if decl.Kind != VarKindVar || decl.Value == nil || decl.Type == DTStruct {
			return true
		}
		if isCompileTimeConstant(decl.Value) {
			return true
		}
		container, isContainer := decl.Parent().(StatementContainer)
		if !isContainer {
			return true
		}
		bare := &VarDecl{
			Kind: decl.Kind, Type: decl.Type, Zp: decl.Zp,
			Name: decl.Name, ArraySize: decl.ArraySize,
			StructName: decl.StructName, Struct: decl.Struct,
		}
		bare.setPos(decl.Pos())
		ident := &IdentifierRef{Path: []string{decl.Name}}
		ident.setPos(decl.Value.Pos())
		target := &AssignTarget{Identifier: ident}
		target.setPos(decl.Value.Pos())
		assign := &Assignment{Target: target, Value: decl.Value}
		assign.setPos(decl.Value.Pos())
		mods = append(mods,
			InsertAfter(decl, assign, container),
			Replace(decl, bare, container))
		return true
	})
	for _, m := range mods {
		m.apply()
	}
	if len(mods) > 0 {
		r.hoistDeclarations()
	}
}

// isCompileTimeConstant reports whether the expression consists only of
// literals (after folding, anything still non-literal is runtime code).
func isCompileTimeConstant(e Expression) bool {
	switch t := e.(type) {
	case *NumericLiteral, *StringLiteral:
		return true
	case *ArrayLiteral:
		for _, v := range t.Values {
			if !isCompileTimeConstant(v) {
				return false
			}
		}
		return true
	case *RangeExpr:
		return t.Size() >= 0
	}
	return false
}

// augAssignDesugarer rewrites  x op= e  into  x = x op e. The constant
// folder and the in-place code generator then specialize the result.
type augAssignDesugarer struct{}

func (augAssignDesugarer) Rewrite(n Node) []Modification {
	a, ok := n.(*Assignment)
	if !ok || a.AugOp == "" {
		return nil
	}
	targetExpr := a.Target.AsExpression()
	if targetExpr == nil {
		return nil // register targets are handled by the general path
	}
	rhs := &BinaryExpr{Left: targetExpr, Op: a.AugOp, Right: a.Value}
	rhs.setPos(a.Pos())
	plain := &Assignment{Target: a.Target, Value: rhs}
	plain.setPos(a.Pos())
	return []Modification{Replace(a, plain, a.Parent())}
}

// structDesugarer flattens struct-typed variables into individually
// named members and expands struct assignments memberwise.
type structDesugarer struct {
	errors *ErrorSink
}

func flattenedName(varName, member string) string {
	return varName + "$" + member
}

func (s *structDesugarer) Rewrite(n Node) []Modification {
	switch t := n.(type) {
	case *VarDecl:
		return s.flattenDecl(t)
	case *Assignment:
		return s.expandAssignment(t)
	case *IdentifierRef:
		return s.rewriteMemberRef(t)
	}
	return nil
}

func (s *structDesugarer) flattenDecl(decl *VarDecl) []Modification {
	if decl.Type != DTStruct || decl.Struct == nil {
		return nil
	}
	container, ok := decl.Parent().(StatementContainer)
	if !ok {
		return nil
	}
	members := decl.Struct.Decls
	if len(members) == 0 {
		return []Modification{Remove(decl, container)}
	}
	flat := make([]*VarDecl, len(members))
	for i, m := range members {
		fd := &VarDecl{Kind: VarKindVar, Type: m.Type, Zp: decl.Zp,
			Name: flattenedName(decl.Name, m.Name), Value: copyValue(m.Value)}
		fd.setPos(decl.Pos())
		flat[i] = fd
	}
	var mods []Modification
	for i := len(flat) - 1; i >= 1; i-- {
		mods = append(mods, InsertAfter(decl, flat[i], container))
	}
	mods = append(mods, Replace(decl, flat[0], container))
	return mods
}

func copyValue(e Expression) Expression {
	if e == nil {
		return nil
	}
	return copyExpression(e)
}

// expandAssignment rewrites s1 = s2 (both struct-typed) and
// s = [v1, ..., vN] into memberwise assignments.
func (s *structDesugarer) expandAssignment(a *Assignment) []Modification {
	if a.Target == nil || a.Target.Identifier == nil {
		return nil
	}
	decl, ok := a.Target.Identifier.Target().(*VarDecl)
	if !ok || decl.Type != DTStruct || decl.Struct == nil {
		return nil
	}
	container, isContainer := a.Parent().(StatementContainer)
	if !isContainer {
		return nil
	}
	members := decl.Struct.Decls

	makeAssign := func(member string, value Expression) *Assignment {
		path := append([]string(nil), a.Target.Identifier.Path...)
		path[len(path)-1] = flattenedName(path[len(path)-1], member)
		ident := &IdentifierRef{Path: path}
		ident.setPos(a.Pos())
		target := &AssignTarget{Identifier: ident}
		target.setPos(a.Pos())
		na := &Assignment{Target: target, Value: value}
		na.setPos(a.Pos())
		return na
	}

	var expanded []*Assignment
	switch rhs := a.Value.(type) {
	case *IdentifierRef:
		srcDecl, isVar := rhs.Target().(*VarDecl)
		if !isVar || srcDecl.Type != DTStruct || srcDecl.Struct == nil {
			s.errors.Errorf(a.Pos(), "cannot assign %s to struct variable %s", rhs, decl.Name)
			return nil
		}
		if srcDecl.Struct != decl.Struct {
			s.errors.Errorf(a.Pos(), "struct type mismatch: %s vs %s", decl.StructName, srcDecl.StructName)
			return nil
		}
		for _, m := range members {
			srcPath := append([]string(nil), rhs.Path...)
			srcPath[len(srcPath)-1] = flattenedName(srcPath[len(srcPath)-1], m.Name)
			srcRef := &IdentifierRef{Path: srcPath}
			srcRef.setPos(a.Pos())
			expanded = append(expanded, makeAssign(m.Name, srcRef))
		}
	case *ArrayLiteral:
		if len(rhs.Values) != len(members) {
			s.errors.Errorf(a.Pos(), "struct %s has %d member(s), value list has %d",
				decl.StructName, len(members), len(rhs.Values))
			return nil
		}
		for i, m := range members {
			expanded = append(expanded, makeAssign(m.Name, rhs.Values[i]))
		}
	default:
		s.errors.Errorf(a.Pos(), "cannot assign this value to struct variable %s", decl.Name)
		return nil
	}

	var mods []Modification
	for i := len(expanded) - 1; i >= 1; i-- {
		mods = append(mods, InsertAfter(a, expanded[i], container))
	}
	mods = append(mods, Replace(a, expanded[0], container))
	return mods
}

// rewriteMemberRef renames a dotted reference through a struct variable
// (s.member) to the flattened variable name (s$member).
func (s *structDesugarer) rewriteMemberRef(ref *IdentifierRef) []Modification {
	if len(ref.Path) < 2 || ref.Target() == nil {
		return nil
	}
	member, ok := ref.Target().(*VarDecl)
	if !ok {
		return nil
	}
	if _, inStruct := member.Parent().(*StructDecl); !inStruct {
		return nil
	}
	newPath := append([]string(nil), ref.Path[:len(ref.Path)-2]...)
	newPath = append(newPath, flattenedName(ref.Path[len(ref.Path)-2], ref.Path[len(ref.Path)-1]))
	ref.Path = newPath
	ref.target = nil // re-resolved after desugaring
	return nil
}

// sortWhenChoices orders each when statement's arms by the smallest
// constant in the arm's value list; the else arm sorts last.
func (r *StatementReorderer) sortWhenChoices() {
	Walk(r.program, func(n Node) bool {
		w, ok := n.(*WhenStmt)
		if !ok {
			return true
		}
		key := func(c *WhenChoice) float64 {
			if c.Values == nil {
				return math.Inf(1) // else arm
			}
			smallest := math.Inf(1)
			for _, v := range c.Values {
				if lit, isLit := v.(*NumericLiteral); isLit && lit.Value < smallest {
					smallest = lit.Value
				}
			}
			return smallest
		}
		sort.SliceStable(w.Choices, func(i, j int) bool {
			return key(w.Choices[i]) < key(w.Choices[j])
		})
		return true
	})
}
