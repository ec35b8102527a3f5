package compiler

//  Dead code removal.
//
// Runs after name resolution so the call graph is meaningful. Removes
// unreferenced subroutines, empty blocks and modules, warns about
// statements following an unconditional terminator, and eliminates
// duplicate consecutive stores to the same target.

type DeadCodeRemover struct {
	program *Program
	graph   *CallGraph
	errors  *ErrorSink
	entry   *Subroutine
}

func NewDeadCodeRemover(program *Program, graph *CallGraph, errors *ErrorSink) *DeadCodeRemover {
	return &DeadCodeRemover{
		program: program,
		graph:   graph,
		errors:  errors,
		entry:   EntryPoint(program),
	}
}

func (d *DeadCodeRemover) Remove() {
	RewriteTree(d.program, d)
	d.removeEmptyBlocksAndModules()
	d.warnUnreachable()
	RewriteTree(d.program, duplicateAssignmentRemover{})
}

func (d *DeadCodeRemover) Rewrite(n Node) []Modification {
	sub, ok := n.(*Subroutine)
	if !ok {
		return nil
	}
	if sub == d.entry || sub.IsAsm || sub.Address >= 0 {
		return nil
	}
	if block := enclosingBlock(sub); block != nil && block.ForceOutput() {
		return nil
	}
	container, isContainer := sub.Parent().(StatementContainer)
	if !isContainer {
		return nil
	}
	if len(d.graph.Callers(sub)) == 0 {
		return []Modification{Remove(sub, container)}
	}
	if !sub.ContainsCode() && !containsVariables(sub.Statements) {
		return []Modification{Remove(sub, container)}
	}
	return nil
}

func containsVariables(stmts []Node) bool {
	for _, st := range stmts {
		if _, ok := st.(*VarDecl); ok {
			return true
		}
	}
	return false
}

// removeEmptyBlocksAndModules drops blocks with no code and no
// variables (unless force_output) and non-library modules left with
// no statements.
func (d *DeadCodeRemover) removeEmptyBlocksAndModules() {
	var mods []Modification
	for _, mod := range d.program.Modules {
		for _, st := range mod.Statements {
			block, ok := st.(*Block)
			if !ok {
				continue
			}
			if block.ForceOutput() {
				continue
			}
			if !blockContainsCode(block) && !containsVariables(block.Statements) {
				mods = append(mods, Remove(block, mod))
			}
		}
	}
	for _, m := range mods {
		m.apply()
	}

	mods = mods[:0]
	for _, mod := range d.program.Modules {
		if mod.Library {
			continue
		}
		if len(mod.Statements) == 0 {
			mods = append(mods, Remove(mod, d.program))
		}
	}
	for _, m := range mods {
		m.apply()
	}
}

func blockContainsCode(b *Block) bool {
	for _, st := range b.Statements {
		switch s := st.(type) {
		case *Directive, *VarDecl, *StructDecl, *Label:
		case *Subroutine:
			if s.ContainsCode() || s.Address >= 0 || s.IsAsm {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// warnUnreachable diagnoses (but keeps) the first statement following
// an unconditional terminator.
func (d *DeadCodeRemover) warnUnreachable() {
	Walk(d.program, func(n Node) bool {
		container, ok := n.(StatementContainer)
		if !ok {
			return true
		}
		stmts := container.Body()
		for i := 0; i < len(stmts)-1; i++ {
			if !isTerminator(stmts[i]) {
				continue
			}
			next := stmts[i+1]
			if !statementCanFollowTerminator(next) {
				d.errors.Warnf(next.Pos(), "unreachable code")
			}
			break
		}
		return true
	})
}

func isTerminator(n Node) bool {
	switch t := n.(type) {
	case *Return, *Break, *Jump:
		return true
	case *FunctionCallStmt:
		// a call that never returns ends the flow as well
		path := t.Target.Path
		return len(path) > 0 && path[len(path)-1] == "exit"
	}
	return false
}

// statementCanFollowTerminator lists the node kinds that are legitimate
// after an unconditional jump: join points and non-executed entities.
func statementCanFollowTerminator(n Node) bool {
	switch n.(type) {
	case *Label, *Directive, *VarDecl, *InlineAssembly, *Subroutine, *StructDecl:
		return true
	}
	return false
}

// duplicateAssignmentRemover drops the first of two consecutive plain
// assignments to the same RAM-resident target when the second one's
// value is trivial and does not mention the target.
type duplicateAssignmentRemover struct{}

func (duplicateAssignmentRemover) Rewrite(n Node) []Modification {
	container, ok := n.(StatementContainer)
	if !ok {
		return nil
	}
	var mods []Modification
	stmts := container.Body()
	for i := 0; i < len(stmts)-1; i++ {
		a1, ok1 := stmts[i].(*Assignment)
		a2, ok2 := stmts[i+1].(*Assignment)
		if !ok1 || !ok2 {
			continue
		}
		if IsAugmentable(a1) || IsAugmentable(a2) {
			continue
		}
		if !a1.Target.Equals(a2.Target) {
			continue
		}
		if !targetInRegularRAM(a1.Target) {
			continue // I/O registers must see every store
		}
		if !isTrivialValue(a2.Value) || mentionsTarget(a2.Value, a2.Target) {
			continue
		}
		mods = append(mods, Remove(a1, container))
	}
	return mods
}

// targetInRegularRAM reports whether the target's storage is a normal
// variable (not memory-mapped I/O, not a register).
func targetInRegularRAM(t *AssignTarget) bool {
	switch {
	case t.Identifier != nil:
		decl, ok := t.Identifier.Target().(*VarDecl)
		return ok && decl.Kind != VarKindMemory
	case t.ArrayIndexed != nil:
		decl, ok := t.ArrayIndexed.Identifier.Target().(*VarDecl)
		return ok && decl.Kind != VarKindMemory
	}
	return false
}

// isTrivialValue accepts only expressions with no evaluation work:
// literals, plain references, direct memory reads.
func isTrivialValue(e Expression) bool {
	switch e.(type) {
	case *NumericLiteral, *StringLiteral, *IdentifierRef, *AddressOf, *DirectMemoryRead:
		return true
	}
	return false
}

func mentionsTarget(e Expression, target *AssignTarget) bool {
	found := false
	Walk(e, func(n Node) bool {
		if ref, ok := n.(*IdentifierRef); ok {
			if target.Identifier != nil && target.Identifier.Equals(ref) {
				found = true
			}
		}
		return !found
	})
	return found
}
