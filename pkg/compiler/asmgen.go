package compiler

import (
	"fmt"
	"strings"
)

//  Assembly generation.
//
// AsmGen walks the checked and desugared AST and emits 64tass assembly
// source text. Blocks and subroutines become named .proc scopes;
// variable storage is emitted per scope and referenced through the
// declarations' canonical scoped names. The augmented-assignment engine
// lives in augassign.go; this file holds program structure emission,
// statement dispatch and the general expression evaluation paths.

type AsmGen struct {
	program *Program
	target  *Target
	errors  *ErrorSink
	out     strings.Builder

	nextLabel   int
	loopStack   []loopLabels
	floatConsts map[string]float64 // label -> value, pooled per block
	curBlock    *Block
}

type loopLabels struct {
	start string
	end   string
}

func NewAsmGen(program *Program, target *Target, errors *ErrorSink) *AsmGen {
	return &AsmGen{
		program:     program,
		target:      target,
		errors:      errors,
		floatConsts: make(map[string]float64),
	}
}

func (g *AsmGen) newLabel() string {
	l := fmt.Sprintf("_l%d", g.nextLabel)
	g.nextLabel++
	return l
}

func (g *AsmGen) line(format string, args ...any) {
	fmt.Fprintf(&g.out, format+"\n", args...)
}

// ins emits one indented instruction.
func (g *AsmGen) ins(format string, args ...any) {
	fmt.Fprintf(&g.out, "\t"+format+"\n", args...)
}

func (g *AsmGen) comment(format string, args ...any) {
	g.line("; "+format, args...)
}

// Generate emits the whole program and returns the assembly text.
func (g *AsmGen) Generate() (string, error) {
	g.header()
	for _, mod := range g.program.Modules {
		for _, st := range mod.Statements {
			if block, ok := st.(*Block); ok {
				g.generateBlock(block)
			}
		}
	}
	g.line("\t.end")
	if g.errors.HasErrors() {
		return "", g.errors.Err()
	}
	return g.out.String(), nil
}

func (g *AsmGen) header() {
	g.comment("code generated by p8c")
	g.comment("target: %s", g.target.Name)
	if g.target.Cpu == Cpu65C02 {
		g.line(".cpu  '65c02'")
	} else {
		g.line(".cpu  '6502'")
	}
	g.line(".enc  'none'")
	g.line("")
	g.comment("---- basic program with sys call ----")
	g.line("* = $%04x", g.target.LoadAddress)
	g.line("\t.word  (+), %d", g.target.BasicSys)
	g.line("\t.null  $9e, format(' %%d ', prog8_entrypoint), $3a, $8f, ' p8c'")
	g.line("+\t.word  0")
	g.line("prog8_entrypoint")
	g.ins("cld")
	g.ins("clc")
	g.ins("jmp  main.start")
	g.line("")
}

func (g *AsmGen) generateBlock(b *Block) {
	g.curBlock = b
	g.floatConsts = make(map[string]float64)

	g.line("")
	g.comment("---- block: '%s' ----", b.Name)
	if b.Address >= 0 {
		g.line(".cerror * > $%04x, 'block address overlaps'", b.Address)
		g.line("* = $%04x", b.Address)
	}
	g.line("%s\t.proc", b.Name)

	g.generateConstsAndMemoryMapped(b.Statements)

	// block-level code (labels, inline asm, statements between subs)
	for _, st := range b.Statements {
		switch st.(type) {
		case *VarDecl, *StructDecl, *Directive, *Subroutine:
			continue
		}
		g.generateStatement(st)
	}

	for _, st := range b.Statements {
		if sub, ok := st.(*Subroutine); ok {
			g.generateSubroutine(sub)
		}
	}

	g.generateVarStorage(b.Statements, b)
	g.generateFloatPool()
	g.line("\t.pend")
}

// generateConstsAndMemoryMapped emits assembler equates for const and
// memory-mapped declarations of one scope.
func (g *AsmGen) generateConstsAndMemoryMapped(stmts []Node) {
	for _, st := range stmts {
		decl, ok := st.(*VarDecl)
		if !ok {
			continue
		}
		switch decl.Kind {
		case VarKindConst:
			if lit, isLit := decl.Value.(*NumericLiteral); isLit {
				if decl.Type == DTFloat {
					g.line("\t%s = %v", decl.Name, lit.Value)
				} else {
					g.line("\t%s = $%04x", decl.Name, uint16(int64(lit.Value)))
				}
			}
		case VarKindMemory:
			if lit, isLit := decl.Value.(*NumericLiteral); isLit {
				g.line("\t%s = $%04x\t; %s", decl.Name, uint16(int64(lit.Value)), decl.Type)
			} else {
				g.errors.Errorf(decl.Pos(), "memory-mapped variable %s needs a constant address", decl.Name)
			}
		}
	}
}

func (g *AsmGen) generateSubroutine(sub *Subroutine) {
	if sub.Address >= 0 {
		// ROM stub defined by address only
		g.line("\t%s = $%04x", sub.Name, sub.Address)
		return
	}
	g.line("")
	g.comment("sub: '%s'", sub.ScopedName())
	g.line("%s\t.proc", sub.Name)
	for _, st := range sub.Statements {
		switch st.(type) {
		case *VarDecl, *StructDecl, *Directive:
			continue
		}
		g.generateStatement(st)
	}
	g.ins("rts")
	g.generateVarStorage(sub.Statements, sub)
	g.line("\t.pend")
}

// generateVarStorage emits the storage area of a scope: plain
// variables, arrays and strings. Variables declared inside anonymous
// scopes below this scope are emitted here too, under their mangled
// labels.
func (g *AsmGen) generateVarStorage(stmts []Node, owner Node) {
	var decls []*VarDecl
	var collect func(stmts []Node)
	collect = func(stmts []Node) {
		for _, st := range stmts {
			switch t := st.(type) {
			case *VarDecl:
				if t.Kind == VarKindVar {
					decls = append(decls, t)
				}
			case *AnonymousScope:
				collect(t.Statements)
			case *IfStmt:
				collect(t.TrueScope.Statements)
				if t.ElseScope != nil {
					collect(t.ElseScope.Statements)
				}
			case *WhileLoop:
				collect(t.Body.Statements)
			case *UntilLoop:
				collect(t.Body.Statements)
			case *RepeatLoop:
				collect(t.Body.Statements)
			case *ForLoop:
				collect(t.Body.Statements)
			case *WhenStmt:
				for _, c := range t.Choices {
					collect(c.Statements)
				}
			}
		}
	}
	collect(stmts)

	if len(decls) == 0 {
		return
	}
	g.comment("variables")
	for _, decl := range decls {
		label := g.localLabel(decl, owner)
		switch {
		case decl.Type == DTUbyte || decl.Type == DTByte:
			g.line("%s\t.byte  ?", label)
		case decl.Type == DTUword || decl.Type == DTWord:
			g.line("%s\t.word  ?", label)
		case decl.Type == DTFloat:
			g.line("%s\t.fill  5\t\t; float", label)
		case decl.Type == DTStr:
			g.generateStringVar(decl, label)
		case decl.Type.IsArray():
			g.generateArrayVar(decl, label)
		default:
			g.errors.Errorf(decl.Pos(), "no storage representation for %s %s", decl.Type, decl.Name)
		}
	}
}

// localLabel is the label a declaration gets inside its owning proc:
// the scoped-name segments below the owner joined with underscores.
func (g *AsmGen) localLabel(decl *VarDecl, owner Node) string {
	full := decl.ScopedName()
	var ownerName string
	switch o := owner.(type) {
	case *Block:
		ownerName = o.Name
	case *Subroutine:
		ownerName = o.ScopedName()
	}
	local := strings.TrimPrefix(full, ownerName+".")
	return asmSafeName(strings.ReplaceAll(local, ".", "_"))
}

// asmSafeName rewrites characters the assembler does not accept in
// label names (the $ of flattened struct members).
func asmSafeName(name string) string {
	return strings.ReplaceAll(name, "$", "_")
}

func (g *AsmGen) generateStringVar(decl *VarDecl, label string) {
	if s, ok := decl.Value.(*StringLiteral); ok {
		g.line("%s\t.null  %s", label, asmStringLiteral(s.Value))
	} else {
		g.line("%s\t.fill  256\t\t; str", label)
	}
}

func (g *AsmGen) generateArrayVar(decl *VarDecl, label string) {
	elemSize := decl.Type.ElementType().ByteSize()
	if arr, ok := decl.Value.(*ArrayLiteral); ok {
		values := make([]string, len(arr.Values))
		for i, v := range arr.Values {
			lit, isLit := v.(*NumericLiteral)
			if !isLit {
				g.errors.Errorf(v.Pos(), "array initializer of %s must be constant", decl.Name)
				return
			}
			if decl.Type == DTArrayFloat {
				values[i] = fmt.Sprintf("%v", lit.Value)
			} else {
				values[i] = fmt.Sprintf("$%02x", uint16(int64(lit.Value)))
			}
		}
		switch decl.Type {
		case DTArrayFloat:
			g.line("%s\t; float array", label)
			for _, v := range arr.Values {
				g.emitFloatBytes(label, v.(*NumericLiteral).Value)
			}
		case DTArrayUword, DTArrayWord:
			g.line("%s\t.word  %s", label, strings.Join(values, ", "))
		default:
			g.line("%s\t.byte  %s", label, strings.Join(values, ", "))
		}
		return
	}
	size := 0
	if lit, ok := decl.ArraySize.(*NumericLiteral); ok {
		size = lit.IntValue()
	}
	g.line("%s\t.fill  %d\t\t; %s", label, size*elemSize, decl.Type)
}

func (g *AsmGen) emitFloatBytes(context string, value float64) {
	b, err := Mflpt5(value)
	if err != nil {
		g.errors.Errorf(Position{}, "%s: %v", context, err)
		return
	}
	g.line("\t.byte  $%02x, $%02x, $%02x, $%02x, $%02x\t; %v", b[0], b[1], b[2], b[3], b[4], value)
}

// generateFloatPool emits the pooled anonymous float constants used by
// the block's code.
func (g *AsmGen) generateFloatPool() {
	if len(g.floatConsts) == 0 {
		return
	}
	g.comment("float constants")
	labels := make([]string, 0, len(g.floatConsts))
	for l := range g.floatConsts {
		labels = append(labels, l)
	}
	// deterministic order
	for i := 0; i < len(labels); i++ {
		for j := i + 1; j < len(labels); j++ {
			if labels[j] < labels[i] {
				labels[i], labels[j] = labels[j], labels[i]
			}
		}
	}
	for _, l := range labels {
		g.line("%s", l)
		g.emitFloatBytes(l, g.floatConsts[l])
	}
}

// floatConstLabel interns a float literal in the block's constant pool.
func (g *AsmGen) floatConstLabel(value float64) string {
	for l, v := range g.floatConsts {
		if v == value {
			return l
		}
	}
	l := fmt.Sprintf("_float_const_%d", len(g.floatConsts))
	g.floatConsts[l] = value
	return l
}

// asmStringLiteral renders a string for a 64tass .null directive,
// escaping unprintable characters as numeric bytes.
func asmStringLiteral(value string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, ch := range value {
		if ch >= 32 && ch < 127 && ch != '"' {
			sb.WriteRune(ch)
		} else {
			sb.WriteString(fmt.Sprintf("\", %d, \"", ch))
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

//  Statement dispatch

func (g *AsmGen) generateStatement(st Node) {
	switch t := st.(type) {
	case *Label:
		g.line("%s", t.Name)
	case *InlineAssembly:
		g.line("%s", t.Assembly)
	case *Assignment:
		g.generateAssignment(t)
	case *PostIncrDecr:
		g.generatePostIncrDecr(t)
	case *FunctionCallStmt:
		g.generateCall(t.Target, t.Args, t.Pos())
	case *Return:
		g.generateReturn(t)
	case *Jump:
		g.generateJump(t)
	case *Break:
		if len(g.loopStack) == 0 {
			g.errors.Errorf(t.Pos(), "break outside a loop")
			return
		}
		g.ins("jmp  %s", g.loopStack[len(g.loopStack)-1].end)
	case *IfStmt:
		g.generateIf(t)
	case *BranchStmt:
		g.generateBranch(t)
	case *WhileLoop:
		g.generateWhile(t)
	case *UntilLoop:
		g.generateUntil(t)
	case *RepeatLoop:
		g.generateRepeat(t)
	case *ForLoop:
		g.generateFor(t)
	case *WhenStmt:
		g.generateWhen(t)
	case *AnonymousScope:
		for _, s := range t.Statements {
			switch s.(type) {
			case *VarDecl, *StructDecl, *Directive:
				continue
			}
			g.generateStatement(s)
		}
	case *NopStmt:
		// nothing
	case *VarDecl, *StructDecl, *Directive, *Subroutine:
		// handled by the scope emitters
	default:
		g.errors.Errorf(st.Pos(), "cannot generate code for %T", st)
	}
}

// varLabel returns the assembly label for a declaration reference.
func (g *AsmGen) varLabel(decl Node) string {
	switch d := decl.(type) {
	case *VarDecl:
		if d.Kind == VarKindMemory || d.Kind == VarKindConst {
			// equates live at block level under their plain name
			if block := enclosingBlock(d); block != nil {
				return block.Name + "." + d.Name
			}
			return d.Name
		}
		return mangleScopedName(d.ScopedName())
	case *Subroutine:
		return d.ScopedName()
	case *Label:
		return mangleScopedName(d.ScopedName())
	case *Block:
		return d.Name
	}
	return "<?>"
}

// mangleScopedName keeps the block and subroutine segments dotted and
// joins anything deeper (anonymous scopes) with underscores, matching
// the storage emitter's labels.
func mangleScopedName(scoped string) string {
	parts := strings.Split(scoped, ".")
	if len(parts) <= 3 {
		return asmSafeName(scoped)
	}
	return asmSafeName(strings.Join(parts[:2], ".") + "." + strings.Join(parts[2:], "_"))
}

func (g *AsmGen) identLabel(ref *IdentifierRef) string {
	if ref.Target() == nil {
		g.errors.Errorf(ref.Pos(), "unresolved reference %s at code generation", ref)
		return "<?>"
	}
	return g.varLabel(ref.Target())
}

func (g *AsmGen) generatePostIncrDecr(p *PostIncrDecr) {
	op := "+"
	if p.Op == "--" {
		op = "-"
	}
	one := &NumericLiteral{Type: DTUbyte, Value: 1}
	one.setPos(p.Pos())
	g.inplaceModification(p.Target, op, one, p.Pos())
}

func (g *AsmGen) generateCall(target *IdentifierRef, args []Expression, pos Position) {
	sub, ok := target.Target().(*Subroutine)
	if !ok {
		g.errors.Errorf(pos, "call target %s is not a subroutine", target)
		return
	}
	if len(args) != len(sub.Params) {
		g.errors.Errorf(pos, "subroutine %s takes %d argument(s), got %d", sub.Name, len(sub.Params), len(args))
		return
	}
	for i, arg := range args {
		param := sub.Params[i]
		if sub.IsAsm && param.Register != "" {
			g.loadIntoRegister(arg, param.Register, pos)
			continue
		}
		// copy into the parameter variable of the callee
		paramLabel := sub.ScopedName() + "." + param.Name
		g.assignExpressionToLabel(arg, paramLabel, param.Type, pos)
	}
	if sub.Address >= 0 {
		g.ins("jsr  $%04x", sub.Address)
	} else {
		g.ins("jsr  %s", sub.ScopedName())
	}
}

func (g *AsmGen) loadIntoRegister(arg Expression, register string, pos Position) {
	switch register {
	case "A":
		g.assignByteExprToA(arg)
	case "X":
		g.assignByteExprToA(arg)
		g.ins("tax")
	case "Y":
		g.assignByteExprToA(arg)
		g.ins("tay")
	case "AY":
		g.assignWordExprToAY(arg)
	default:
		g.errors.Errorf(pos, "unsupported register binding @%s", register)
	}
}

// assignExpressionToLabel stores an evaluated expression into a fixed
// label of a known type.
func (g *AsmGen) assignExpressionToLabel(e Expression, label string, dt DataType, pos Position) {
	switch {
	case dt.IsByte():
		g.assignByteExprToA(e)
		g.ins("sta  %s", label)
	case dt.IsWord():
		g.assignWordExprToAY(e)
		g.ins("sta  %s", label)
		g.ins("sty  %s+1", label)
	case dt == DTFloat:
		g.loadFloatIntoFac1(e, pos)
		g.ins("ldx  #<%s", label)
		g.ins("ldy  #>%s", label)
		g.ins("jsr  %s", RtMovmf)
	default:
		g.errors.Errorf(pos, "cannot pass value of type %s", dt)
	}
}

func (g *AsmGen) generateReturn(r *Return) {
	if len(r.Values) > 0 {
		sub := enclosingSubroutine(r)
		if sub != nil && len(sub.Returns) > 0 {
			ret := sub.Returns[0]
			switch {
			case ret.Type.IsByte():
				g.assignByteExprToA(r.Values[0])
			case ret.Type.IsWord():
				g.assignWordExprToAY(r.Values[0])
			case ret.Type == DTFloat:
				g.loadFloatIntoFac1(r.Values[0], r.Pos())
			}
		}
	}
	g.ins("rts")
}

func (g *AsmGen) generateJump(j *Jump) {
	if j.Identifier != nil {
		g.ins("jmp  %s", g.identLabel(j.Identifier))
		return
	}
	g.ins("jmp  $%04x", j.Address)
}

func (g *AsmGen) generateIf(i *IfStmt) {
	elseLabel := g.newLabel()
	endLabel := g.newLabel()
	g.assignByteExprToA(i.Condition)
	g.ins("beq  %s", elseLabel)
	g.generateStatement(i.TrueScope)
	if i.ElseScope != nil {
		if g.target.SupportsStz() {
			g.ins("bra  %s", endLabel)
		} else {
			g.ins("jmp  %s", endLabel)
		}
		g.line("%s", elseLabel)
		g.generateStatement(i.ElseScope)
		g.line("%s", endLabel)
	} else {
		g.line("%s", elseLabel)
	}
}

var branchInstructions = map[BranchCondition]string{
	BranchCS: "bcs", BranchCC: "bcc", BranchEQ: "beq", BranchNE: "bne",
	BranchMI: "bmi", BranchPL: "bpl", BranchVS: "bvs", BranchVC: "bvc",
}

func (g *AsmGen) generateBranch(b *BranchStmt) {
	trueLabel := g.newLabel()
	endLabel := g.newLabel()
	g.ins("%s  %s", branchInstructions[b.Condition], trueLabel)
	if b.ElseScope != nil {
		g.generateStatement(b.ElseScope)
	}
	g.ins("jmp  %s", endLabel)
	g.line("%s", trueLabel)
	g.generateStatement(b.TrueScope)
	g.line("%s", endLabel)
}

func (g *AsmGen) generateWhile(w *WhileLoop) {
	startLabel := g.newLabel()
	endLabel := g.newLabel()
	g.loopStack = append(g.loopStack, loopLabels{start: startLabel, end: endLabel})
	g.line("%s", startLabel)
	g.assignByteExprToA(w.Condition)
	g.ins("beq  %s", endLabel)
	g.generateStatement(w.Body)
	g.ins("jmp  %s", startLabel)
	g.line("%s", endLabel)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
}

func (g *AsmGen) generateUntil(u *UntilLoop) {
	startLabel := g.newLabel()
	endLabel := g.newLabel()
	g.loopStack = append(g.loopStack, loopLabels{start: startLabel, end: endLabel})
	g.line("%s", startLabel)
	g.generateStatement(u.Body)
	g.assignByteExprToA(u.Condition)
	g.ins("beq  %s", startLabel)
	g.line("%s", endLabel)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
}

func (g *AsmGen) generateRepeat(r *RepeatLoop) {
	startLabel := g.newLabel()
	endLabel := g.newLabel()
	g.loopStack = append(g.loopStack, loopLabels{start: startLabel, end: endLabel})

	if lit, ok := r.Count.(*NumericLiteral); ok && lit.Type.IsByte() {
		// constant byte count: x register countdown
		g.ins("ldx  #%d", lit.IntValue())
		g.line("%s", startLabel)
		g.ins("txa")
		g.ins("pha")
		g.generateStatement(r.Body)
		g.ins("pla")
		g.ins("tax")
		g.ins("dex")
		g.ins("bne  %s", startLabel)
	} else {
		// word counter in scratch
		g.assignWordExprToAY(r.Count)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("sty  %s+1", ZpScratchW1)
		g.line("%s", startLabel)
		g.ins("lda  %s", ZpScratchW1)
		g.ins("ora  %s+1", ZpScratchW1)
		g.ins("beq  %s", endLabel)
		g.generateStatement(r.Body)
		g.ins("lda  %s", ZpScratchW1)
		g.ins("bne  +")
		g.ins("dec  %s+1", ZpScratchW1)
		g.line("+")
		g.ins("dec  %s", ZpScratchW1)
		g.ins("jmp  %s", startLabel)
	}
	g.line("%s", endLabel)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
}

func (g *AsmGen) generateFor(f *ForLoop) {
	if ref, isRef := f.Iterable.(*IdentifierRef); isRef {
		g.generateForOverIterable(f, ref)
		return
	}
	r, ok := f.Iterable.(*RangeExpr)
	if !ok {
		g.errors.Errorf(f.Pos(), "cannot iterate over this expression")
		return
	}
	loopVar := g.identLabel(f.LoopVar)
	loopVarType := declaredType(f.LoopVar.Target())
	if !loopVarType.IsByte() && !loopVarType.IsWord() {
		g.errors.Errorf(f.Pos(), "for loop variable must be an integer type")
		return
	}

	startLabel := g.newLabel()
	endLabel := g.newLabel()
	g.loopStack = append(g.loopStack, loopLabels{start: startLabel, end: endLabel})

	step := 1
	if r.Step != nil {
		lit, isLit := r.Step.(*NumericLiteral)
		if !isLit {
			g.errors.Errorf(f.Pos(), "for loop step must be constant")
			return
		}
		step = lit.IntValue()
	}

	// init: loopvar = from
	g.assignExpressionToLabel(r.From, loopVar, loopVarType, f.Pos())
	g.line("%s", startLabel)
	g.generateStatement(f.Body)

	// compare against the end bound before stepping
	if loopVarType.IsByte() {
		g.assignByteExprToA(r.To)
		g.ins("cmp  %s", loopVar)
		g.ins("beq  %s", endLabel)
	} else {
		g.assignWordExprToAY(r.To)
		g.ins("cmp  %s", loopVar)
		g.ins("bne  +")
		g.ins("cpy  %s+1", loopVar)
		g.ins("beq  %s", endLabel)
		g.line("+")
	}

	stepLit := &NumericLiteral{Type: loopVarType, Value: float64(step)}
	op := "+"
	if step < 0 {
		op = "-"
		stepLit.Value = float64(-step)
	}
	ident := &IdentifierRef{Path: append([]string(nil), f.LoopVar.Path...), target: f.LoopVar.Target()}
	target := &AssignTarget{Identifier: ident}
	g.inplaceModification(target, op, stepLit, f.Pos())
	g.ins("jmp  %s", startLabel)
	g.line("%s", endLabel)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
}

// generateForOverIterable walks a byte array or zero-terminated string,
// assigning each element to the loop variable. The Y index is parked in
// the register scratch around the body.
func (g *AsmGen) generateForOverIterable(f *ForLoop, ref *IdentifierRef) {
	decl, ok := ref.Target().(*VarDecl)
	if !ok || !decl.Type.IsIterable() {
		g.errors.Errorf(f.Pos(), "%s is not an iterable", ref)
		return
	}
	elem := decl.Type.ElementType()
	if !elem.IsByte() {
		g.errors.Errorf(f.Pos(), "for loop over %s elements is not supported here", elem)
		return
	}
	label := g.identLabel(ref)
	loopVar := g.identLabel(f.LoopVar)

	length := -1
	if decl.Type != DTStr {
		switch v := decl.Value.(type) {
		case *ArrayLiteral:
			length = len(v.Values)
		default:
			if size, isLit := decl.ArraySize.(*NumericLiteral); isLit {
				length = size.IntValue()
			}
		}
		if length < 0 {
			g.errors.Errorf(f.Pos(), "cannot determine the length of %s", ref)
			return
		}
	}

	startLabel := g.newLabel()
	endLabel := g.newLabel()
	g.loopStack = append(g.loopStack, loopLabels{start: startLabel, end: endLabel})
	g.ins("ldy  #0")
	g.line(startLabel)
	g.ins("lda  %s,y", label)
	if decl.Type == DTStr {
		g.ins("beq  %s", endLabel) // zero terminator
	}
	g.ins("sta  %s", loopVar)
	g.ins("sty  %s", ZpScratchReg)
	g.generateStatement(f.Body)
	g.ins("ldy  %s", ZpScratchReg)
	g.ins("iny")
	if decl.Type != DTStr {
		g.ins("cpy  #%d", length)
		g.ins("bne  %s", startLabel)
	} else {
		g.ins("jmp  %s", startLabel)
	}
	g.line(endLabel)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
}

func (g *AsmGen) generateWhen(w *WhenStmt) {
	condType := InferType(w.Condition)
	endLabel := g.newLabel()
	if condType.IsByte() {
		g.assignByteExprToA(w.Condition)
	} else if condType.IsWord() {
		g.assignWordExprToAY(w.Condition)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("sty  %s+1", ZpScratchW1)
	} else {
		g.errors.Errorf(w.Pos(), "when condition must be an integer")
		return
	}

	type arm struct {
		label  string
		choice *WhenChoice
	}
	var arms []arm
	var elseArm *WhenChoice
	for _, choice := range w.Choices {
		if choice.Values == nil {
			elseArm = choice
			continue
		}
		label := g.newLabel()
		arms = append(arms, arm{label: label, choice: choice})
		for _, v := range choice.Values {
			lit, ok := v.(*NumericLiteral)
			if !ok {
				g.errors.Errorf(v.Pos(), "when choice values must be constant")
				continue
			}
			value := uint16(int64(lit.Value))
			if condType.IsByte() {
				g.ins("cmp  #%d", value&0xff)
				g.ins("beq  %s", label)
			} else {
				g.ins("lda  %s", ZpScratchW1)
				g.ins("cmp  #<%d", value)
				g.ins("bne  +")
				g.ins("lda  %s+1", ZpScratchW1)
				g.ins("cmp  #>%d", value)
				g.ins("beq  %s", label)
				g.line("+")
			}
		}
	}
	if elseArm != nil {
		for _, st := range elseArm.Statements {
			g.generateStatement(st)
		}
	}
	g.ins("jmp  %s", endLabel)
	for _, a := range arms {
		g.line("%s", a.label)
		for _, st := range a.choice.Statements {
			g.generateStatement(st)
		}
		g.ins("jmp  %s", endLabel)
	}
	g.line("%s", endLabel)
}
