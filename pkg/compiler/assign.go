package compiler

import "fmt"

//  General assignment and expression evaluation.
//
// Storage-kind analysis of assignment targets, the general (non
// augmented) assignment path, and the expression evaluators that leave
// a byte in A, a word in A/Y (lo/hi) or a float in FAC1. The in-place
// augmented engine in augassign.go uses these as its fallback for
// arbitrary right-hand sides.

// StorageKind categorizes an assignment target for codegen dispatch.
type StorageKind int

const (
	StorageVariable StorageKind = iota
	StorageMemory
	StorageArray
	StorageRegister
	StorageStack
)

func (s StorageKind) String() string {
	switch s {
	case StorageVariable:
		return "variable"
	case StorageMemory:
		return "memory"
	case StorageArray:
		return "array"
	case StorageRegister:
		return "register"
	case StorageStack:
		return "stack"
	}
	return "?"
}

// Storage reports the storage kind of the target.
func (t *AssignTarget) Storage() StorageKind {
	switch {
	case t.Identifier != nil:
		return StorageVariable
	case t.MemoryWrite != nil:
		return StorageMemory
	case t.ArrayIndexed != nil:
		return StorageArray
	case t.Register != "":
		return StorageRegister
	}
	return StorageStack
}

// generateAssignment emits one assignment. Augmentable assignments go
// through the in-place engine; everything else evaluates the value and
// stores it.
func (g *AsmGen) generateAssignment(a *Assignment) {
	if a.AugOp != "" {
		// the desugaring pass must have rewritten these
		g.errors.Errorf(a.Pos(), "augmented operator %s= reached code generation", a.AugOp)
		return
	}
	if IsAugmentable(a) && g.tryInplace(a) {
		return
	}
	g.generatePlainAssignment(a)
}

func (g *AsmGen) generatePlainAssignment(a *Assignment) {
	target := a.Target
	switch target.Storage() {
	case StorageVariable:
		dt := target.TargetType()
		label := g.identLabel(target.Identifier)
		g.assignExpressionToLabel(a.Value, label, dt, a.Pos())

	case StorageMemory:
		g.assignByteExprToA(a.Value)
		g.storeAThroughAddress(target.MemoryWrite.Address, a.Pos())

	case StorageArray:
		g.generateArrayElementStore(target.ArrayIndexed, a.Value, a.Pos())

	case StorageRegister:
		g.loadIntoRegister(a.Value, target.Register, a.Pos())

	default:
		g.errors.Errorf(a.Pos(), "unsupported storage kind %s for assignment", target.Storage())
	}
}

// storeAThroughAddress writes A to the byte addressed by the
// expression: directly for a constant address, via (zp),y for a
// pointer variable, through P8ZP_SCRATCH_W2 otherwise.
func (g *AsmGen) storeAThroughAddress(addr Expression, pos Position) {
	switch t := addr.(type) {
	case *NumericLiteral:
		g.ins("sta  $%04x", uint16(int64(t.Value)))

	case *IdentifierRef:
		decl, ok := t.Target().(*VarDecl)
		if !ok || !decl.Type.IsWord() {
			g.errors.Errorf(pos, "memory write through %s requires a uword pointer variable", t)
			return
		}
		ptr := g.identLabel(t)
		if decl.Zp == ZpRequire || decl.Zp == ZpPrefer {
			g.ins("ldy  #0")
			g.ins("sta  (%s),y", ptr)
		} else {
			g.ins("pha")
			g.ins("lda  %s", ptr)
			g.ins("sta  %s", ZpScratchW2)
			g.ins("lda  %s+1", ptr)
			g.ins("sta  %s+1", ZpScratchW2)
			g.ins("pla")
			g.ins("ldy  #0")
			g.ins("sta  (%s),y", ZpScratchW2)
		}

	default:
		// computed address: save A on the cpu stack, evaluate the address
		// into the scratch word, store through (scratch),y
		g.ins("pha")
		g.assignWordExprToAY(addr)
		g.ins("sta  %s", ZpScratchW2)
		g.ins("sty  %s+1", ZpScratchW2)
		g.ins("pla")
		g.ins("ldy  #0")
		g.ins("sta  (%s),y", ZpScratchW2)
	}
}

func (g *AsmGen) generateArrayElementStore(arr *ArrayIndexed, value Expression, pos Position) {
	decl, ok := arr.Identifier.Target().(*VarDecl)
	if !ok || !decl.Type.IsArray() {
		g.errors.Errorf(pos, "%s is not an array", arr.Identifier)
		return
	}
	elem := decl.Type.ElementType()
	label := g.identLabel(arr.Identifier)
	elemSize := elem.ByteSize()

	if lit, isConst := arr.Index.(*NumericLiteral); isConst {
		// fold the offset into the label
		offset := lit.IntValue() * elemSize
		g.assignExpressionToLabel(value, fmt.Sprintf("%s+%d", label, offset), elem, pos)
		return
	}

	switch {
	case elem.IsByte():
		g.assignByteExprToA(value)
		g.ins("pha")
		g.assignByteExprToA(arr.Index)
		g.ins("tay")
		g.ins("pla")
		g.ins("sta  %s,y", label)
	case elem.IsWord():
		g.assignWordExprToAY(value)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("sty  %s+1", ZpScratchW1)
		g.assignByteExprToA(arr.Index)
		g.ins("asl  a")
		g.ins("tay")
		g.ins("lda  %s", ZpScratchW1)
		g.ins("sta  %s,y", label)
		g.ins("lda  %s+1", ZpScratchW1)
		g.ins("sta  %s+1,y", label)
	default:
		g.errors.Errorf(pos, "array element store of type %s with a runtime index is not supported", elem)
	}
}

//  Byte expression evaluation (result in A)

func (g *AsmGen) assignByteExprToA(e Expression) {
	switch t := e.(type) {
	case *NumericLiteral:
		g.ins("lda  #%d", uint8(int64(t.Value)))

	case *IdentifierRef:
		g.ins("lda  %s", g.identLabel(t))

	case *DirectMemoryRead:
		g.loadByteFromAddress(t.Address, t.Pos())

	case *ArrayIndexed:
		g.loadArrayElementByte(t)

	case *AddressOf:
		// low byte of an address in byte context
		g.ins("lda  #<%s", g.identLabel(t.Identifier))

	case *TypecastExpr:
		g.assignCastByteToA(t)

	case *FunctionCall:
		g.generateCall(t.Target, t.Args, t.Pos())

	case *PrefixExpr:
		g.assignByteExprToA(t.Expr)
		switch t.Op {
		case "+":
		case "-":
			g.ins("eor  #$ff")
			g.ins("clc")
			g.ins("adc  #1")
		case "~":
			g.ins("eor  #$ff")
		case "not":
			g.ins("beq  +")
			g.ins("lda  #1")
			g.line("+")
			g.ins("eor  #1")
		}

	case *BinaryExpr:
		g.assignByteBinaryToA(t)

	default:
		g.errors.Errorf(e.Pos(), "cannot evaluate %T as a byte", e)
		g.ins("lda  #0")
	}
}

func (g *AsmGen) assignCastByteToA(c *TypecastExpr) {
	srcType := InferType(c.Expr)
	switch {
	case srcType.IsByte():
		g.assignByteExprToA(c.Expr)
	case srcType.IsWord():
		// truncate to the low byte
		g.assignWordExprToAY(c.Expr)
	default:
		g.errors.Errorf(c.Pos(), "unsupported cast from %s to %s", srcType, c.Type)
		g.ins("lda  #0")
	}
}

func (g *AsmGen) loadByteFromAddress(addr Expression, pos Position) {
	switch t := addr.(type) {
	case *NumericLiteral:
		g.ins("lda  $%04x", uint16(int64(t.Value)))
	case *IdentifierRef:
		decl, ok := t.Target().(*VarDecl)
		if !ok || !decl.Type.IsWord() {
			g.errors.Errorf(pos, "memory read through %s requires a uword pointer variable", t)
			return
		}
		ptr := g.identLabel(t)
		if decl.Zp == ZpRequire || decl.Zp == ZpPrefer {
			g.ins("ldy  #0")
			g.ins("lda  (%s),y", ptr)
		} else {
			g.ins("lda  %s", ptr)
			g.ins("sta  %s", ZpScratchW2)
			g.ins("lda  %s+1", ptr)
			g.ins("sta  %s+1", ZpScratchW2)
			g.ins("ldy  #0")
			g.ins("lda  (%s),y", ZpScratchW2)
		}
	default:
		g.assignWordExprToAY(addr)
		g.ins("sta  %s", ZpScratchW2)
		g.ins("sty  %s+1", ZpScratchW2)
		g.ins("ldy  #0")
		g.ins("lda  (%s),y", ZpScratchW2)
	}
}

func (g *AsmGen) loadArrayElementByte(arr *ArrayIndexed) {
	label := g.identLabel(arr.Identifier)
	if lit, ok := arr.Index.(*NumericLiteral); ok {
		g.ins("lda  %s+%d", label, lit.IntValue())
		return
	}
	g.assignByteExprToA(arr.Index)
	g.ins("tay")
	g.ins("lda  %s,y", label)
}

// assignByteBinaryToA evaluates left, stacks it, evaluates right into
// the byte scratch and applies the operator.
func (g *AsmGen) assignByteBinaryToA(b *BinaryExpr) {
	// comparisons and logical operators produce a 0/1 byte
	switch b.Op {
	case "==", "!=", "<", ">", "<=", ">=":
		g.byteComparisonToA(b)
		return
	case "and", "or", "xor":
		g.byteLogicalToA(b)
		return
	}

	g.assignByteExprToA(b.Left)
	g.ins("pha")
	g.assignByteExprToA(b.Right)
	g.ins("sta  %s", ZpScratchB1)
	g.ins("pla")

	switch b.Op {
	case "+":
		g.ins("clc")
		g.ins("adc  %s", ZpScratchB1)
	case "-":
		g.ins("sec")
		g.ins("sbc  %s", ZpScratchB1)
	case "&":
		g.ins("and  %s", ZpScratchB1)
	case "|":
		g.ins("ora  %s", ZpScratchB1)
	case "^":
		g.ins("eor  %s", ZpScratchB1)
	case "*":
		g.ins("ldy  %s", ZpScratchB1)
		g.ins("jsr  %s", RtMultiplyBytes)
	case "/":
		if InferType(b).IsSigned() {
			g.ins("ldy  %s", ZpScratchB1)
			g.ins("jsr  %s", RtDivmodB)
		} else {
			g.ins("ldy  %s", ZpScratchB1)
			g.ins("jsr  %s", RtDivmodUB)
		}
	case "%":
		if InferType(b).IsSigned() {
			g.errors.Errorf(b.Pos(), "remainder of signed integers is not defined")
			return
		}
		g.ins("ldy  %s", ZpScratchB1)
		g.ins("jsr  %s", RtDivmodUB)
		g.ins("txa") // remainder is returned in X
	case "<<":
		loop := g.newLabel()
		g.ins("ldy  %s", ZpScratchB1)
		g.ins("beq  +")
		g.line(loop)
		g.ins("asl  a")
		g.ins("dey")
		g.ins("bne  %s", loop)
		g.line("+")
	case ">>":
		loop := g.newLabel()
		g.ins("ldy  %s", ZpScratchB1)
		g.ins("beq  +")
		g.line(loop)
		g.ins("lsr  a")
		g.ins("dey")
		g.ins("bne  %s", loop)
		g.line("+")
	default:
		g.errors.Errorf(b.Pos(), "unsupported byte operator %q", b.Op)
	}
}

func (g *AsmGen) byteComparisonToA(b *BinaryExpr) {
	trueLabel := g.newLabel()
	endLabel := g.newLabel()
	g.assignByteExprToA(b.Left)
	g.ins("pha")
	g.assignByteExprToA(b.Right)
	g.ins("sta  %s", ZpScratchB1)
	g.ins("pla")
	g.ins("cmp  %s", ZpScratchB1)
	switch b.Op {
	case "==":
		g.ins("beq  %s", trueLabel)
	case "!=":
		g.ins("bne  %s", trueLabel)
	case "<":
		g.ins("bcc  %s", trueLabel)
	case ">=":
		g.ins("bcs  %s", trueLabel)
	case ">":
		g.ins("beq  +")
		g.ins("bcs  %s", trueLabel)
		g.line("+")
	case "<=":
		g.ins("bcc  %s", trueLabel)
		g.ins("beq  %s", trueLabel)
	}
	g.ins("lda  #0")
	g.ins("jmp  %s", endLabel)
	g.line(trueLabel)
	g.ins("lda  #1")
	g.line(endLabel)
}

func (g *AsmGen) byteLogicalToA(b *BinaryExpr) {
	g.assignByteExprToA(b.Left)
	g.normalizeBool()
	g.ins("pha")
	g.assignByteExprToA(b.Right)
	g.normalizeBool()
	g.ins("sta  %s", ZpScratchB1)
	g.ins("pla")
	switch b.Op {
	case "and":
		g.ins("and  %s", ZpScratchB1)
	case "or":
		g.ins("ora  %s", ZpScratchB1)
	case "xor":
		g.ins("eor  %s", ZpScratchB1)
	}
}

// normalizeBool folds any non-zero A to exactly 1.
func (g *AsmGen) normalizeBool() {
	g.ins("beq  +")
	g.ins("lda  #1")
	g.line("+")
}

//  Word expression evaluation (result in A=lo, Y=hi)

func (g *AsmGen) assignWordExprToAY(e Expression) {
	switch t := e.(type) {
	case *NumericLiteral:
		v := uint16(int64(t.Value))
		g.ins("lda  #<%d", v)
		g.ins("ldy  #>%d", v)

	case *IdentifierRef:
		label := g.identLabel(t)
		g.ins("lda  %s", label)
		g.ins("ldy  %s+1", label)

	case *AddressOf:
		label := g.identLabel(t.Identifier)
		g.ins("lda  #<%s", label)
		g.ins("ldy  #>%s", label)

	case *TypecastExpr:
		srcType := InferType(t.Expr)
		if srcType.IsByte() {
			g.assignByteExprToA(t.Expr)
			g.ins("ldy  #0")
		} else if srcType.IsWord() {
			g.assignWordExprToAY(t.Expr)
		} else {
			g.errors.Errorf(t.Pos(), "unsupported cast from %s to %s", srcType, t.Type)
		}

	case *ArrayIndexed:
		g.loadArrayElementWord(t)

	case *FunctionCall:
		g.generateCall(t.Target, t.Args, t.Pos())

	case *PrefixExpr:
		g.assignWordExprToAY(t.Expr)
		switch t.Op {
		case "+":
		case "-":
			g.ins("sta  %s", ZpScratchW1)
			g.ins("sty  %s+1", ZpScratchW1)
			g.ins("lda  #0")
			g.ins("sec")
			g.ins("sbc  %s", ZpScratchW1)
			g.ins("pha")
			g.ins("lda  #0")
			g.ins("sbc  %s+1", ZpScratchW1)
			g.ins("tay")
			g.ins("pla")
		case "~":
			g.ins("eor  #$ff")
			g.ins("pha")
			g.ins("tya")
			g.ins("eor  #$ff")
			g.ins("tay")
			g.ins("pla")
		default:
			g.errors.Errorf(t.Pos(), "unsupported word prefix operator %q", t.Op)
		}

	case *BinaryExpr:
		g.assignWordBinaryToAY(t)

	default:
		g.errors.Errorf(e.Pos(), "cannot evaluate %T as a word", e)
		g.ins("lda  #0")
		g.ins("ldy  #0")
	}
}

func (g *AsmGen) loadArrayElementWord(arr *ArrayIndexed) {
	label := g.identLabel(arr.Identifier)
	if lit, ok := arr.Index.(*NumericLiteral); ok {
		offset := lit.IntValue() * 2
		g.ins("lda  %s+%d", label, offset)
		g.ins("ldy  %s+%d", label, offset+1)
		return
	}
	g.assignByteExprToA(arr.Index)
	g.ins("asl  a")
	g.ins("tay")
	g.ins("lda  %s,y", label)
	g.ins("pha")
	g.ins("lda  %s+1,y", label)
	g.ins("tay")
	g.ins("pla")
}

func (g *AsmGen) assignWordBinaryToAY(b *BinaryExpr) {
	switch b.Op {
	case "+", "-", "&", "|", "^":
		g.assignWordExprToAY(b.Left)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("sty  %s+1", ZpScratchW1)
		g.assignWordExprToAY(b.Right)
		g.ins("sta  %s", ZpScratchW2)
		g.ins("sty  %s+1", ZpScratchW2)
		var lo, hi string
		switch b.Op {
		case "+":
			g.ins("lda  %s", ZpScratchW1)
			g.ins("clc")
			g.ins("adc  %s", ZpScratchW2)
			g.ins("pha")
			g.ins("lda  %s+1", ZpScratchW1)
			g.ins("adc  %s+1", ZpScratchW2)
			g.ins("tay")
			g.ins("pla")
			return
		case "-":
			g.ins("lda  %s", ZpScratchW1)
			g.ins("sec")
			g.ins("sbc  %s", ZpScratchW2)
			g.ins("pha")
			g.ins("lda  %s+1", ZpScratchW1)
			g.ins("sbc  %s+1", ZpScratchW2)
			g.ins("tay")
			g.ins("pla")
			return
		case "&":
			lo, hi = "and", "and"
		case "|":
			lo, hi = "ora", "ora"
		case "^":
			lo, hi = "eor", "eor"
		}
		g.ins("lda  %s", ZpScratchW1)
		g.ins("%s  %s", lo, ZpScratchW2)
		g.ins("pha")
		g.ins("lda  %s+1", ZpScratchW1)
		g.ins("%s  %s+1", hi, ZpScratchW2)
		g.ins("tay")
		g.ins("pla")

	case "*":
		g.assignWordExprToAY(b.Left)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("sty  %s+1", ZpScratchW1)
		g.assignWordExprToAY(b.Right)
		g.ins("jsr  %s", RtMultiplyWords)

	case "/":
		g.assignWordExprToAY(b.Left)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("sty  %s+1", ZpScratchW1)
		g.assignWordExprToAY(b.Right)
		if InferType(b).IsSigned() {
			g.ins("jsr  %s", RtDivmodW)
		} else {
			g.ins("jsr  %s", RtDivmodUW)
		}

	case "<<", ">>":
		if InferType(b.Right).IsWord() {
			g.errors.Errorf(b.Pos(), "shift amount must be a byte")
			return
		}
		g.assignWordExprToAY(b.Left)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("sty  %s+1", ZpScratchW1)
		g.assignByteExprToA(b.Right)
		g.ins("tax")
		loop := g.newLabel()
		done := g.newLabel()
		g.line(loop)
		g.ins("beq  %s", done)
		if b.Op == "<<" {
			g.ins("asl  %s", ZpScratchW1)
			g.ins("rol  %s+1", ZpScratchW1)
		} else {
			g.ins("lsr  %s+1", ZpScratchW1)
			g.ins("ror  %s", ZpScratchW1)
		}
		g.ins("dex")
		g.ins("bne  %s", loop)
		g.line(done)
		g.ins("lda  %s", ZpScratchW1)
		g.ins("ldy  %s+1", ZpScratchW1)

	default:
		g.errors.Errorf(b.Pos(), "unsupported word operator %q", b.Op)
		g.ins("lda  #0")
		g.ins("ldy  #0")
	}
}

//  Float loading (result in FAC1)

// loadFloatIntoFac1 loads a float value into the ROM floating point
// accumulator. Arbitrary nested float expressions go through FAC1/ARG
// pairs for one operator level; deeper nesting is reported.
func (g *AsmGen) loadFloatIntoFac1(e Expression, pos Position) {
	switch t := e.(type) {
	case *NumericLiteral:
		label := g.floatConstLabel(t.Value)
		g.ins("lda  #<%s", label)
		g.ins("ldy  #>%s", label)
		g.ins("jsr  %s", RtMovfm)

	case *IdentifierRef:
		label := g.identLabel(t)
		g.ins("lda  #<%s", label)
		g.ins("ldy  #>%s", label)
		g.ins("jsr  %s", RtMovfm)

	case *TypecastExpr:
		g.loadFloatIntoFac1(t.Expr, pos)

	case *PrefixExpr:
		if t.Op == "-" {
			g.loadFloatIntoFac1(t.Expr, pos)
			g.ins("lda  #$ff")
			g.ins("eor  $66") // flip FAC1 sign byte
			g.ins("sta  $66")
			return
		}
		g.loadFloatIntoFac1(t.Expr, pos)

	case *BinaryExpr:
		op, ok := floatOps[t.Op]
		if !ok {
			g.errors.Errorf(pos, "unsupported float operator %q", t.Op)
			return
		}
		// the ROM routines compute  mem <op> FAC1, so the memory
		// operand is the left side for - and /, the right otherwise
		var inFac, inMem Expression
		if t.Op == "-" || t.Op == "/" {
			inFac, inMem = t.Right, t.Left
		} else {
			inFac, inMem = t.Left, t.Right
		}
		mem, simple := g.simpleFloatOperand(inMem)
		if !simple {
			g.errors.Errorf(pos, "float expression too complex; assign the subexpression to a variable first")
			return
		}
		g.loadFloatIntoFac1(inFac, pos)
		g.ins("lda  #<%s", mem)
		g.ins("ldy  #>%s", mem)
		g.ins("jsr  %s", op)

	default:
		g.errors.Errorf(pos, "cannot evaluate %T as a float", e)
	}
}

var floatOps = map[string]string{
	"+": RtFadd,
	"-": RtFsub,
	"*": RtFmult,
	"/": RtFdiv,
}

// simpleFloatOperand returns the label of a float literal or variable.
func (g *AsmGen) simpleFloatOperand(e Expression) (string, bool) {
	switch t := e.(type) {
	case *NumericLiteral:
		return g.floatConstLabel(t.Value), true
	case *IdentifierRef:
		return g.identLabel(t), true
	}
	return "", false
}
