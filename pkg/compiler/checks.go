package compiler

//  Program-level checks.
//
// Enforces the global invariants that no single pass owns: entry point
// presence, duplicate module and block names, self-referential
// initializers, string literal lengths, literal overflow against the
// declared type, and references into unknown structs.

type ProgramChecker struct {
	program *Program
	errors  *ErrorSink
}

func NewProgramChecker(program *Program, errors *ErrorSink) *ProgramChecker {
	return &ProgramChecker{program: program, errors: errors}
}

func (c *ProgramChecker) Check() {
	c.checkEntryPoint()
	c.checkDuplicateModules()
	c.checkDuplicateBlocks()
	Walk(c.program, func(n Node) bool {
		switch t := n.(type) {
		case *VarDecl:
			c.checkVarDecl(t)
		case *StringLiteral:
			if len(t.Value) < 1 || len(t.Value) > 255 {
				c.errors.Errorf(t.Pos(), "string literal must be 1..255 bytes, got %d", len(t.Value))
			}
		}
		return true
	})
}

func (c *ProgramChecker) checkEntryPoint() {
	if EntryPoint(c.program) == nil {
		c.errors.Errorf(c.program.Pos(), "program entry point is missing ('start' subroutine in 'main' block)")
	}
}

func (c *ProgramChecker) checkDuplicateModules() {
	seen := make(map[string]*Module)
	for _, mod := range c.program.Modules {
		if prev, dup := seen[mod.Name]; dup {
			c.errors.Errorf(mod.Pos(), "duplicate module name %q (first seen at %s)", mod.Name, prev.Pos())
			continue
		}
		seen[mod.Name] = mod
	}
}

func (c *ProgramChecker) checkDuplicateBlocks() {
	seen := make(map[string]*Block)
	for _, mod := range c.program.Modules {
		for _, st := range mod.Statements {
			block, ok := st.(*Block)
			if !ok {
				continue
			}
			if prev, dup := seen[block.Name]; dup {
				c.errors.Errorf(block.Pos(), "duplicate block name %q (first seen at %s)", block.Name, prev.Pos())
				continue
			}
			seen[block.Name] = block
		}
	}
}

func (c *ProgramChecker) checkVarDecl(d *VarDecl) {
	if d.Type == DTStruct && d.Struct == nil {
		c.errors.Errorf(d.Pos(), "reference into unknown struct %q", d.StructName)
	}
	if d.Value == nil {
		return
	}
	if c.initializerMentions(d.Value, d) {
		c.errors.Errorf(d.Pos(), "recursive self-referential initializer for %s", d.Name)
	}
	if lit, ok := d.Value.(*NumericLiteral); ok && d.Type.IsNumeric() && d.Kind != VarKindMemory {
		if !d.Type.ValueFits(lit.Value) {
			c.errors.Errorf(d.Pos(), "value %v overflows declared type %s of %s", lit.Value, d.Type, d.Name)
		}
	}
}

func (c *ProgramChecker) initializerMentions(e Expression, decl *VarDecl) bool {
	found := false
	Walk(e, func(n Node) bool {
		if ref, ok := n.(*IdentifierRef); ok && ref.Target() == Node(decl) {
			found = true
		}
		return !found
	})
	return found
}
