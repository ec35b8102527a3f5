package compiler

//  Call graph.
//
// Built by walking every function call, jump and address-of whose
// target resolves to a subroutine. Used by the dead-code remover and the
// recursion check. Recursion is reported but does not abort
// compilation.

type CallGraph struct {
	program *Program
	callees map[*Subroutine][]*Subroutine
	callers map[*Subroutine][]*Subroutine
	allSubs []*Subroutine
}

func BuildCallGraph(program *Program) *CallGraph {
	g := &CallGraph{
		program: program,
		callees: make(map[*Subroutine][]*Subroutine),
		callers: make(map[*Subroutine][]*Subroutine),
	}
	Walk(program, func(n Node) bool {
		switch t := n.(type) {
		case *Subroutine:
			g.allSubs = append(g.allSubs, t)
		case *FunctionCall:
			g.addEdge(n, t.Target)
		case *FunctionCallStmt:
			g.addEdge(n, t.Target)
		case *Jump:
			if t.Identifier != nil {
				g.addEdge(n, t.Identifier)
			}
		case *AddressOf:
			// taking a subroutine's address keeps it alive
			g.addEdge(n, t.Identifier)
		}
		return true
	})
	return g
}

func (g *CallGraph) addEdge(site Node, target *IdentifierRef) {
	callee, ok := target.Target().(*Subroutine)
	if !ok {
		return
	}
	caller := enclosingSubroutine(site)
	if caller == nil {
		return // call from block-level code; callee stays reachable via the block
	}
	if !containsSub(g.callees[caller], callee) {
		g.callees[caller] = append(g.callees[caller], callee)
	}
	if !containsSub(g.callers[callee], caller) {
		g.callers[callee] = append(g.callers[callee], caller)
	}
}

func containsSub(list []*Subroutine, s *Subroutine) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Callers returns the subroutines that call sub.
func (g *CallGraph) Callers(sub *Subroutine) []*Subroutine { return g.callers[sub] }

// Callees returns the subroutines that sub calls.
func (g *CallGraph) Callees(sub *Subroutine) []*Subroutine { return g.callees[sub] }

// ReachableFrom returns the set of subroutines transitively reachable
// from the entry point, the entry point included.
func (g *CallGraph) ReachableFrom(entry *Subroutine) map[*Subroutine]bool {
	reachable := make(map[*Subroutine]bool)
	if entry == nil {
		return reachable
	}
	worklist := []*Subroutine{entry}
	reachable[entry] = true
	for len(worklist) > 0 {
		curr := worklist[0]
		worklist = worklist[1:]
		for _, callee := range g.callees[curr] {
			if !reachable[callee] {
				reachable[callee] = true
				worklist = append(worklist, callee)
			}
		}
	}
	return reachable
}

// ForAllSubroutines invokes action on every subroutine of the module.
func (g *CallGraph) ForAllSubroutines(module *Module, action func(*Subroutine)) {
	Walk(module, func(n Node) bool {
		if sub, ok := n.(*Subroutine); ok {
			action(sub)
		}
		return true
	})
}

// CheckRecursion reports every subroutine that can (transitively) call
// itself. Recursion is a warning: the generated code has no call stack
// discipline for local variables, but compilation proceeds.
func (g *CallGraph) CheckRecursion(errors *ErrorSink) {
	for _, sub := range g.allSubs {
		if g.reaches(sub, sub, make(map[*Subroutine]bool)) {
			errors.Warnf(sub.Pos(), "subroutine %s is recursive; variables are not stack-allocated", sub.ScopedName())
		}
	}
}

func (g *CallGraph) reaches(from, to *Subroutine, visited map[*Subroutine]bool) bool {
	for _, callee := range g.callees[from] {
		if callee == to {
			return true
		}
		if !visited[callee] {
			visited[callee] = true
			if g.reaches(callee, to, visited) {
				return true
			}
		}
	}
	return false
}

// EntryPoint returns the program's start subroutine in the main block,
// or nil.
func EntryPoint(program *Program) *Subroutine {
	for _, mod := range program.Modules {
		for _, st := range mod.Statements {
			block, ok := st.(*Block)
			if !ok || block.Name != "main" {
				continue
			}
			for _, bs := range block.Statements {
				if sub, isSub := bs.(*Subroutine); isSub && sub.Name == "start" {
					return sub
				}
			}
		}
	}
	return nil
}
