package compiler

import "fmt"

//  In-place augmented assignment engine.
//
// Translates assignments flagged augmentable into tuned read-modify
//-write sequences, dispatching along three dimensions: the storage
// kind of the target (variable / pointer memory / indexed array), the
// operand type (byte, word, float) and the shape of the right-hand
// side (literal, other variable, memory read, cast, arbitrary
// expression). Register and stack targets are reserved for the
// non-augmented path and are rejected here.

// tryInplace attempts to emit the assignment as an in-place update.
// Returns false when the shape requires the general path.
func (g *AsmGen) tryInplace(a *Assignment) bool {
	target := a.Target
	switch target.Storage() {
	case StorageVariable, StorageMemory, StorageArray:
	default:
		return false // registers/stack use the general assignment code
	}

	switch value := a.Value.(type) {
	case *PrefixExpr:
		if !sameAsTarget(target, value.Expr) {
			return false
		}
		g.inplacePrefix(target, value.Op, a.Pos())
		return true

	case *TypecastExpr:
		inner := value.Expr
		if cast2, ok := inner.(*TypecastExpr); ok {
			inner = cast2.Expr
		}
		if !sameAsTarget(target, inner) {
			return false
		}
		if g.isRedundantCast(value.Type, InferType(inner)) {
			return true // strip: the store-back would be bit-identical
		}
		return false

	case *BinaryExpr:
		op, operand, ok := extractInplaceOperands(target, value)
		if !ok {
			return false
		}
		for i, o := range operand {
			if !g.inplaceModification(target, op, o, a.Pos()) {
				if i > 0 {
					// partial emission cannot be undone; surface it
					g.errors.Errorf(a.Pos(), "internal: partial in-place emission for %s", target)
				}
				return i > 0
			}
		}
		return true
	}
	return false
}

// isRedundantCast reports whether casting a value of naturalType to
// targetType is a no-op for the augmentable path: same size or wider,
// and not a float conversion.
func (g *AsmGen) isRedundantCast(targetType, naturalType DataType) bool {
	if targetType == DTFloat || naturalType == DTFloat {
		return false
	}
	return targetType.ByteSize() >= naturalType.ByteSize()
}

// extractInplaceOperands decomposes an augmentable binary RHS into the
// operator and the ordered operand list to apply to the target.
func extractInplaceOperands(target *AssignTarget, value *BinaryExpr) (string, []Expression, bool) {
	// A op X, with X an arbitrary expression
	if sameAsTarget(target, value.Left) {
		return value.Op, []Expression{value.Right}, true
	}
	// X op A, associative
	if associativeOperators[value.Op] && sameAsTarget(target, value.Right) {
		return value.Op, []Expression{value.Left}, true
	}
	// two-level tree with the same operator at both levels
	if leftBin, ok := value.Left.(*BinaryExpr); ok && leftBin.Op == value.Op {
		if sameAsTarget(target, leftBin.Left) {
			// (A op X) op Y  ->  apply X then Y
			return value.Op, []Expression{leftBin.Right, value.Right}, true
		}
		if associativeOperators[value.Op] && sameAsTarget(target, leftBin.Right) {
			// (X op A) op Y  ->  apply X then Y
			return value.Op, []Expression{leftBin.Left, value.Right}, true
		}
	}
	if rightBin, ok := value.Right.(*BinaryExpr); ok && rightBin.Op == value.Op && associativeOperators[value.Op] {
		if sameAsTarget(target, rightBin.Left) {
			// X op (A op Y)  ->  apply Y then X
			return value.Op, []Expression{rightBin.Right, value.Left}, true
		}
		if sameAsTarget(target, rightBin.Right) {
			// X op (Y op A)  ->  apply Y then X
			return value.Op, []Expression{rightBin.Left, value.Left}, true
		}
	}
	return "", nil, false
}

// inplaceModification is the central dispatch: target storage kind ×
// operand type. Returns false when this combination must take the
// general path instead.
func (g *AsmGen) inplaceModification(target *AssignTarget, op string, value Expression, pos Position) bool {
	// a shift by a word quantity can never be emitted
	if (op == "<<" || op == ">>") && InferType(value).IsWord() {
		g.errors.Errorf(pos, "shift amount must be a byte, not a word")
		return true // diagnosed; nothing more to emit
	}

	switch target.Storage() {
	case StorageVariable:
		dt := target.TargetType()
		label := g.identLabel(target.Identifier)
		switch {
		case dt.IsByte():
			return g.inplaceByte(label, dt, op, value, pos)
		case dt.IsWord():
			return g.inplaceWord(label, dt, op, value, pos)
		case dt == DTFloat:
			return g.inplaceFloat(label, op, value, pos)
		default:
			g.errors.Errorf(pos, "unknown data type %s for in-place modification of %s", dt, target)
			return true
		}

	case StorageMemory:
		return g.inplaceMemoryByte(target.MemoryWrite.Address, op, value, pos)

	case StorageArray:
		return g.inplaceArrayElement(target.ArrayIndexed, op, value, pos)

	case StorageRegister, StorageStack:
		g.errors.Errorf(pos, "in-place modification of a %s target is not supported at this site", target.Storage())
		return true
	}
	return false
}

//  Operand preparation.
//
// byteOperand/wordOperand normalize the right-hand side into either an
// immediate or an addressable label, evaluating arbitrary expressions
// into the zero-page scratch beforehand so the read-modify-write
// sequence itself stays straight-line.

type asmOperand struct {
	immediate bool
	value     int
	label     string
}

func (o asmOperand) operandText() string {
	if o.immediate {
		return fmt.Sprintf("#%d", o.value)
	}
	return o.label
}

func (g *AsmGen) byteOperand(value Expression, pos Position) asmOperand {
	switch t := value.(type) {
	case *NumericLiteral:
		return asmOperand{immediate: true, value: int(uint8(int64(t.Value)))}
	case *IdentifierRef:
		if declaredType(t.Target()).IsByte() {
			return asmOperand{label: g.identLabel(t)}
		}
	case *DirectMemoryRead:
		if addr, ok := t.Address.(*NumericLiteral); ok {
			return asmOperand{label: fmt.Sprintf("$%04x", uint16(int64(addr.Value)))}
		}
	case *TypecastExpr:
		if g.isRedundantCast(t.Type, InferType(t.Expr)) && InferType(t.Expr).IsByte() {
			return g.byteOperand(t.Expr, pos)
		}
	}
	// arbitrary expression: evaluate to A first, park in the scratch
	g.assignByteExprToA(value)
	g.ins("sta  %s", ZpScratchB1)
	return asmOperand{label: ZpScratchB1}
}

func (g *AsmGen) wordOperand(value Expression, pos Position) asmOperand {
	switch t := value.(type) {
	case *NumericLiteral:
		return asmOperand{immediate: true, value: int(uint16(int64(t.Value)))}
	case *IdentifierRef:
		dt := declaredType(t.Target())
		if dt.IsWord() || dt.IsByte() {
			return asmOperand{label: g.identLabel(t)}
		}
	}
	g.assignWordExprToAY(value)
	g.ins("sta  %s", ZpScratchW2)
	g.ins("sty  %s+1", ZpScratchW2)
	return asmOperand{label: ZpScratchW2}
}

func isPowerOfTwo(v int) bool { return v > 0 && v&(v-1) == 0 }

func log2(v int) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

//  Byte targets

func (g *AsmGen) inplaceByte(label string, dt DataType, op string, value Expression, pos Position) bool {
	if lit, ok := value.(*NumericLiteral); ok {
		return g.inplaceByteLiteral(label, dt, op, lit.IntValue(), pos)
	}
	operand := g.byteOperand(value, pos)
	return g.inplaceByteOperand(label, dt, op, operand, pos)
}

// inplaceByteLiteral emits the cheapest idiom for  label op= value.
func (g *AsmGen) inplaceByteLiteral(label string, dt DataType, op string, value int, pos Position) bool {
	switch op {
	case "+":
		switch {
		case value == 0:
		case value <= 2:
			for i := 0; i < value; i++ {
				g.ins("inc  %s", label)
			}
		default:
			g.ins("lda  %s", label)
			g.ins("clc")
			g.ins("adc  #%d", value)
			g.ins("sta  %s", label)
		}
		return true

	case "-":
		switch {
		case value == 0:
		case value <= 2:
			for i := 0; i < value; i++ {
				g.ins("dec  %s", label)
			}
		default:
			g.ins("lda  %s", label)
			g.ins("sec")
			g.ins("sbc  #%d", value)
			g.ins("sta  %s", label)
		}
		return true

	case "*":
		switch {
		case value == 0:
			g.clearByte(label)
		case value == 1:
		case isPowerOfTwo(value):
			for i := 0; i < log2(value); i++ {
				g.ins("asl  %s", label)
			}
		case optimizedByteMultipliers[value]:
			g.ins("lda  %s", label)
			g.ins("jsr  math.mul_byte_%d", value)
			g.ins("sta  %s", label)
		default:
			g.ins("lda  %s", label)
			g.ins("ldy  #%d", value)
			g.ins("jsr  %s", RtMultiplyBytes)
			g.ins("sta  %s", label)
		}
		return true

	case "/":
		if value == 0 {
			g.errors.Errorf(pos, "division by zero")
			return true
		}
		if value == 1 {
			return true
		}
		if dt == DTByte {
			g.ins("lda  %s", label)
			g.ins("ldy  #%d", value)
			g.ins("jsr  %s", RtDivmodB)
			g.ins("sta  %s", label)
			return true
		}
		if isPowerOfTwo(value) {
			for i := 0; i < log2(value); i++ {
				g.ins("lsr  %s", label)
			}
			return true
		}
		g.ins("lda  %s", label)
		g.ins("ldy  #%d", value)
		g.ins("jsr  %s", RtDivmodUB)
		g.ins("sta  %s", label)
		return true

	case "%":
		if dt == DTByte {
			g.errors.Errorf(pos, "remainder of signed integers is not defined")
			return true
		}
		if value == 0 {
			g.errors.Errorf(pos, "division by zero")
			return true
		}
		if isPowerOfTwo(value) {
			g.ins("lda  %s", label)
			g.ins("and  #%d", value-1)
			g.ins("sta  %s", label)
			return true
		}
		g.ins("lda  %s", label)
		g.ins("ldy  #%d", value)
		g.ins("jsr  %s", RtDivmodUB)
		g.ins("txa")
		g.ins("sta  %s", label)
		return true

	case "&":
		g.ins("lda  %s", label)
		g.ins("and  #%d", value)
		g.ins("sta  %s", label)
		return true
	case "|":
		g.ins("lda  %s", label)
		g.ins("ora  #%d", value)
		g.ins("sta  %s", label)
		return true
	case "^":
		g.ins("lda  %s", label)
		g.ins("eor  #%d", value)
		g.ins("sta  %s", label)
		return true

	case "<<":
		switch {
		case value == 0:
		case value >= 8:
			// shifting an 8-bit value left by 8 or more clears it
			g.clearByte(label)
		default:
			for i := 0; i < value; i++ {
				g.ins("asl  %s", label)
			}
		}
		return true

	case ">>":
		switch {
		case value == 0:
		case value >= 8 && dt == DTUbyte:
			g.clearByte(label)
		case value >= 8:
			// signed: the result is all sign bits
			g.ins("lda  %s", label)
			g.ins("bmi  +")
			g.ins("lda  #0")
			g.ins("beq  ++")
			g.line("+")
			g.ins("lda  #$ff")
			g.line("+")
			g.ins("sta  %s", label)
		case dt == DTByte:
			// arithmetic shift keeps the sign bit
			for i := 0; i < value; i++ {
				g.ins("lda  %s", label)
				g.ins("asl  a")
				g.ins("ror  %s", label)
			}
		default:
			for i := 0; i < value; i++ {
				g.ins("lsr  %s", label)
			}
		}
		return true
	}
	g.errors.Errorf(pos, "unsupported operator %q for in-place byte modification", op)
	return true
}

func (g *AsmGen) clearByte(label string) {
	if g.target.SupportsStz() {
		g.ins("stz  %s", label)
		return
	}
	g.ins("lda  #0")
	g.ins("sta  %s", label)
}

// inplaceByteOperand applies a non-constant byte operand.
func (g *AsmGen) inplaceByteOperand(label string, dt DataType, op string, operand asmOperand, pos Position) bool {
	opnd := operand.operandText()
	switch op {
	case "+":
		g.ins("lda  %s", label)
		g.ins("clc")
		g.ins("adc  %s", opnd)
		g.ins("sta  %s", label)
	case "-":
		g.ins("lda  %s", label)
		g.ins("sec")
		g.ins("sbc  %s", opnd)
		g.ins("sta  %s", label)
	case "&":
		g.ins("lda  %s", label)
		g.ins("and  %s", opnd)
		g.ins("sta  %s", label)
	case "|":
		g.ins("lda  %s", label)
		g.ins("ora  %s", opnd)
		g.ins("sta  %s", label)
	case "^":
		g.ins("lda  %s", label)
		g.ins("eor  %s", opnd)
		g.ins("sta  %s", label)
	case "*":
		g.ins("lda  %s", label)
		g.ins("ldy  %s", opnd)
		g.ins("jsr  %s", RtMultiplyBytes)
		g.ins("sta  %s", label)
	case "/":
		g.ins("lda  %s", label)
		g.ins("ldy  %s", opnd)
		if dt == DTByte {
			g.ins("jsr  %s", RtDivmodB)
		} else {
			g.ins("jsr  %s", RtDivmodUB)
		}
		g.ins("sta  %s", label)
	case "%":
		if dt == DTByte {
			g.errors.Errorf(pos, "remainder of signed integers is not defined")
			return true
		}
		g.ins("lda  %s", label)
		g.ins("ldy  %s", opnd)
		g.ins("jsr  %s", RtDivmodUB)
		g.ins("txa")
		g.ins("sta  %s", label)
	case "<<", ">>":
		loop := g.newLabel()
		done := g.newLabel()
		g.ins("ldx  %s", opnd)
		g.line(loop)
		g.ins("beq  %s", done)
		if op == "<<" {
			g.ins("asl  %s", label)
		} else if dt == DTByte {
			g.ins("lda  %s", label)
			g.ins("asl  a")
			g.ins("ror  %s", label)
		} else {
			g.ins("lsr  %s", label)
		}
		g.ins("dex")
		g.ins("bne  %s", loop)
		g.line(done)
	default:
		g.errors.Errorf(pos, "unsupported operator %q for in-place byte modification", op)
	}
	return true
}

//  Word targets

func (g *AsmGen) inplaceWord(label string, dt DataType, op string, value Expression, pos Position) bool {
	if lit, ok := value.(*NumericLiteral); ok {
		return g.inplaceWordLiteral(label, dt, op, int(uint16(int64(lit.Value))), pos)
	}
	// a byte-sized operand gets the cheaper carry-propagation idioms
	if ref, ok := value.(*IdentifierRef); ok && declaredType(ref.Target()).IsByte() {
		return g.inplaceWordWithByteVar(label, dt, op, g.identLabel(ref), pos)
	}
	operand := g.wordOperand(value, pos)
	return g.inplaceWordOperand(label, dt, op, operand, pos)
}

func (g *AsmGen) inplaceWordLiteral(label string, dt DataType, op string, value int, pos Position) bool {
	lo := value & 0xff
	hi := value >> 8

	switch op {
	case "+":
		switch {
		case value == 0:
		case lo == 0 && hi <= 4:
			// adding a multiple of $100: bump the high byte only
			for i := 0; i < hi; i++ {
				g.ins("inc  %s+1", label)
			}
		case value == 1:
			g.ins("inc  %s", label)
			g.ins("bne  +")
			g.ins("inc  %s+1", label)
			g.line("+")
		case value < 0x100:
			g.ins("lda  %s", label)
			g.ins("clc")
			g.ins("adc  #%d", value)
			g.ins("sta  %s", label)
			g.ins("bcc  +")
			g.ins("inc  %s+1", label)
			g.line("+")
		default:
			g.ins("lda  %s", label)
			g.ins("clc")
			g.ins("adc  #<%d", value)
			g.ins("sta  %s", label)
			g.ins("lda  %s+1", label)
			g.ins("adc  #>%d", value)
			g.ins("sta  %s+1", label)
		}
		return true

	case "-":
		switch {
		case value == 0:
		case lo == 0 && hi <= 4:
			for i := 0; i < hi; i++ {
				g.ins("dec  %s+1", label)
			}
		case value == 1:
			g.ins("lda  %s", label)
			g.ins("bne  +")
			g.ins("dec  %s+1", label)
			g.line("+")
			g.ins("dec  %s", label)
		case value < 0x100:
			g.ins("lda  %s", label)
			g.ins("sec")
			g.ins("sbc  #%d", value)
			g.ins("sta  %s", label)
			g.ins("bcs  +")
			g.ins("dec  %s+1", label)
			g.line("+")
		default:
			g.ins("lda  %s", label)
			g.ins("sec")
			g.ins("sbc  #<%d", value)
			g.ins("sta  %s", label)
			g.ins("lda  %s+1", label)
			g.ins("sbc  #>%d", value)
			g.ins("sta  %s+1", label)
		}
		return true

	case "*":
		switch {
		case value == 0:
			g.clearWord(label)
		case value == 1:
		case isPowerOfTwo(value):
			for i := 0; i < log2(value); i++ {
				g.ins("asl  %s", label)
				g.ins("rol  %s+1", label)
			}
		case optimizedWordMultipliers[value]:
			g.ins("lda  %s", label)
			g.ins("ldy  %s+1", label)
			g.ins("jsr  math.mul_word_%d", value)
			g.ins("sta  %s", label)
			g.ins("sty  %s+1", label)
		default:
			g.ins("lda  %s", label)
			g.ins("sta  %s", ZpScratchW1)
			g.ins("lda  %s+1", label)
			g.ins("sta  %s+1", ZpScratchW1)
			g.ins("lda  #<%d", value)
			g.ins("ldy  #>%d", value)
			g.ins("jsr  %s", RtMultiplyWords)
			g.ins("sta  %s", label)
			g.ins("sty  %s+1", label)
		}
		return true

	case "/":
		if value == 0 {
			g.errors.Errorf(pos, "division by zero")
			return true
		}
		if value == 1 {
			return true
		}
		if dt == DTUword && isPowerOfTwo(value) {
			for i := 0; i < log2(value); i++ {
				g.ins("lsr  %s+1", label)
				g.ins("ror  %s", label)
			}
			return true
		}
		g.wordDivide(label, dt, asmOperand{immediate: true, value: value})
		return true

	case "%":
		if dt == DTWord {
			g.errors.Errorf(pos, "remainder of signed integers is not defined")
			return true
		}
		if value == 0 {
			g.errors.Errorf(pos, "division by zero")
			return true
		}
		g.ins("lda  %s", label)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("lda  %s+1", label)
		g.ins("sta  %s+1", ZpScratchW1)
		g.ins("lda  #<%d", value)
		g.ins("ldy  #>%d", value)
		g.ins("jsr  %s", RtDivmodUW)
		g.ins("stx  %s", label)
		g.ins("sty  %s+1", label)
		return true

	case "&":
		if hi == 0 {
			// narrowing mask: the high byte becomes zero
			g.ins("lda  %s", label)
			g.ins("and  #%d", lo)
			g.ins("sta  %s", label)
			g.clearByte(label + "+1")
			return true
		}
		g.ins("lda  %s", label)
		g.ins("and  #<%d", value)
		g.ins("sta  %s", label)
		g.ins("lda  %s+1", label)
		g.ins("and  #>%d", value)
		g.ins("sta  %s+1", label)
		return true

	case "|":
		if hi == 0 {
			g.ins("lda  %s", label)
			g.ins("ora  #%d", lo)
			g.ins("sta  %s", label)
			return true
		}
		g.ins("lda  %s", label)
		g.ins("ora  #<%d", value)
		g.ins("sta  %s", label)
		g.ins("lda  %s+1", label)
		g.ins("ora  #>%d", value)
		g.ins("sta  %s+1", label)
		return true

	case "^":
		if hi == 0 {
			g.ins("lda  %s", label)
			g.ins("eor  #%d", lo)
			g.ins("sta  %s", label)
			return true
		}
		g.ins("lda  %s", label)
		g.ins("eor  #<%d", value)
		g.ins("sta  %s", label)
		g.ins("lda  %s+1", label)
		g.ins("eor  #>%d", value)
		g.ins("sta  %s+1", label)
		return true

	case "<<":
		switch {
		case value == 0:
		case value >= 16:
			g.clearWord(label)
		case value >= 8:
			// low byte moves into the high byte
			g.ins("lda  %s", label)
			g.ins("sta  %s+1", label)
			g.clearByte(label)
			for i := 8; i < value; i++ {
				g.ins("asl  %s+1", label)
			}
		default:
			for i := 0; i < value; i++ {
				g.ins("asl  %s", label)
				g.ins("rol  %s+1", label)
			}
		}
		return true

	case ">>":
		switch {
		case value == 0:
		case value >= 16 && dt == DTUword:
			g.clearWord(label)
		case value >= 8 && dt == DTUword:
			g.ins("lda  %s+1", label)
			g.ins("sta  %s", label)
			g.clearByte(label + "+1")
			for i := 8; i < value; i++ {
				g.ins("lsr  %s", label)
			}
		case dt == DTWord:
			for i := 0; i < value && i < 16; i++ {
				g.ins("lda  %s+1", label)
				g.ins("asl  a")
				g.ins("ror  %s+1", label)
				g.ins("ror  %s", label)
			}
		default:
			for i := 0; i < value; i++ {
				g.ins("lsr  %s+1", label)
				g.ins("ror  %s", label)
			}
		}
		return true
	}
	g.errors.Errorf(pos, "unsupported operator %q for in-place word modification", op)
	return true
}

func (g *AsmGen) clearWord(label string) {
	if g.target.SupportsStz() {
		g.ins("stz  %s", label)
		g.ins("stz  %s+1", label)
		return
	}
	g.ins("lda  #0")
	g.ins("sta  %s", label)
	g.ins("sta  %s+1", label)
}

// inplaceWordWithByteVar applies a byte-sized variable operand to a
// word target, propagating the carry into the high byte.
func (g *AsmGen) inplaceWordWithByteVar(label string, dt DataType, op string, otherLabel string, pos Position) bool {
	switch op {
	case "+":
		g.ins("lda  %s", label)
		g.ins("clc")
		g.ins("adc  %s", otherLabel)
		g.ins("sta  %s", label)
		g.ins("bcc  +")
		g.ins("inc  %s+1", label)
		g.line("+")
		return true
	case "-":
		g.ins("lda  %s", label)
		g.ins("sec")
		g.ins("sbc  %s", otherLabel)
		g.ins("sta  %s", label)
		g.ins("bcs  +")
		g.ins("dec  %s+1", label)
		g.line("+")
		return true
	case "&":
		// the word operand is the byte zero-extended: high byte clears
		g.ins("lda  %s", label)
		g.ins("and  %s", otherLabel)
		g.ins("sta  %s", label)
		g.clearByte(label + "+1")
		return true
	case "|":
		g.ins("lda  %s", label)
		g.ins("ora  %s", otherLabel)
		g.ins("sta  %s", label)
		return true
	case "^":
		g.ins("lda  %s", label)
		g.ins("eor  %s", otherLabel)
		g.ins("sta  %s", label)
		return true
	case "<<", ">>":
		loop := g.newLabel()
		done := g.newLabel()
		g.ins("ldx  %s", otherLabel)
		g.line(loop)
		g.ins("beq  %s", done)
		if op == "<<" {
			g.ins("asl  %s", label)
			g.ins("rol  %s+1", label)
		} else if dt == DTWord {
			g.ins("lda  %s+1", label)
			g.ins("asl  a")
			g.ins("ror  %s+1", label)
			g.ins("ror  %s", label)
		} else {
			g.ins("lsr  %s+1", label)
			g.ins("ror  %s", label)
		}
		g.ins("dex")
		g.ins("bne  %s", loop)
		g.line(done)
		return true
	}
	// multiplication and division widen the operand first
	g.ins("lda  %s", otherLabel)
	g.ins("sta  %s", ZpScratchW2)
	g.clearByte(ZpScratchW2 + "+1")
	return g.inplaceWordOperand(label, dt, op, asmOperand{label: ZpScratchW2}, pos)
}

// inplaceWordOperand applies a word operand held at a label.
func (g *AsmGen) inplaceWordOperand(label string, dt DataType, op string, operand asmOperand, pos Position) bool {
	if operand.immediate {
		return g.inplaceWordLiteral(label, dt, op, operand.value, pos)
	}
	other := operand.label
	switch op {
	case "+":
		g.ins("lda  %s", label)
		g.ins("clc")
		g.ins("adc  %s", other)
		g.ins("sta  %s", label)
		g.ins("lda  %s+1", label)
		g.ins("adc  %s+1", other)
		g.ins("sta  %s+1", label)
	case "-":
		g.ins("lda  %s", label)
		g.ins("sec")
		g.ins("sbc  %s", other)
		g.ins("sta  %s", label)
		g.ins("lda  %s+1", label)
		g.ins("sbc  %s+1", other)
		g.ins("sta  %s+1", label)
	case "&", "|", "^":
		mnem := map[string]string{"&": "and", "|": "ora", "^": "eor"}[op]
		g.ins("lda  %s", label)
		g.ins("%s  %s", mnem, other)
		g.ins("sta  %s", label)
		g.ins("lda  %s+1", label)
		g.ins("%s  %s+1", mnem, other)
		g.ins("sta  %s+1", label)
	case "*":
		g.ins("lda  %s", label)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("lda  %s+1", label)
		g.ins("sta  %s+1", ZpScratchW1)
		g.ins("lda  %s", other)
		g.ins("ldy  %s+1", other)
		g.ins("jsr  %s", RtMultiplyWords)
		g.ins("sta  %s", label)
		g.ins("sty  %s+1", label)
	case "/":
		g.wordDivide(label, dt, operand)
	case "%":
		if dt == DTWord {
			g.errors.Errorf(pos, "remainder of signed integers is not defined")
			return true
		}
		g.ins("lda  %s", label)
		g.ins("sta  %s", ZpScratchW1)
		g.ins("lda  %s+1", label)
		g.ins("sta  %s+1", ZpScratchW1)
		g.ins("lda  %s", other)
		g.ins("ldy  %s+1", other)
		g.ins("jsr  %s", RtDivmodUW)
		g.ins("stx  %s", label)
		g.ins("sty  %s+1", label)
	default:
		g.errors.Errorf(pos, "unsupported operator %q for in-place word modification", op)
	}
	return true
}

// wordDivide routes signed and unsigned word division to their separate
// runtime routines.
func (g *AsmGen) wordDivide(label string, dt DataType, operand asmOperand) {
	g.ins("lda  %s", label)
	g.ins("sta  %s", ZpScratchW1)
	g.ins("lda  %s+1", label)
	g.ins("sta  %s+1", ZpScratchW1)
	if operand.immediate {
		g.ins("lda  #<%d", operand.value)
		g.ins("ldy  #>%d", operand.value)
	} else {
		g.ins("lda  %s", operand.label)
		g.ins("ldy  %s+1", operand.label)
	}
	if dt == DTWord {
		g.ins("jsr  %s", RtDivmodW)
	} else {
		g.ins("jsr  %s", RtDivmodUW)
	}
	g.ins("sta  %s", label)
	g.ins("sty  %s+1", label)
}

//  Float targets

// inplaceFloat loads the operand into FAC1 through MOVFM, applies the
// ROM operation against the target in memory and stores FAC1 back with
// MOVMF.
func (g *AsmGen) inplaceFloat(label string, op string, value Expression, pos Position) bool {
	romOp, ok := floatOps[op]
	if !ok {
		g.errors.Errorf(pos, "unsupported operator %q for in-place float modification", op)
		return true
	}
	operand, simple := g.simpleFloatOperand(value)
	if !simple {
		return false // general path evaluates the expression
	}
	// FAC1 = operand; then FAC1 = target <op> FAC1 (mem argument in A/Y)
	g.ins("lda  #<%s", operand)
	g.ins("ldy  #>%s", operand)
	g.ins("jsr  %s", RtMovfm)
	g.ins("lda  #<%s", label)
	g.ins("ldy  #>%s", label)
	g.ins("jsr  %s", romOp)
	g.ins("ldx  #<%s", label)
	g.ins("ldy  #>%s", label)
	g.ins("jsr  %s", RtMovmf)
	return true
}

//  Memory byte targets

func (g *AsmGen) inplaceMemoryByte(addr Expression, op string, value Expression, pos Position) bool {
	switch t := addr.(type) {
	case *NumericLiteral:
		// absolute address behaves exactly like a labeled byte variable
		label := fmt.Sprintf("$%04x", uint16(int64(t.Value)))
		return g.inplaceByte(label, DTUbyte, op, value, pos)

	case *IdentifierRef:
		decl, ok := t.Target().(*VarDecl)
		if !ok || !decl.Type.IsWord() {
			g.errors.Errorf(pos, "memory write through %s requires a uword pointer variable", t)
			return true
		}
		operand := g.byteOperand(value, pos)
		ptr := g.identLabel(t)
		if decl.Zp != ZpRequire && decl.Zp != ZpPrefer {
			// copy the pointer into the zero page for the indirect mode
			g.ins("lda  %s", ptr)
			g.ins("sta  %s", ZpScratchW2)
			g.ins("lda  %s+1", ptr)
			g.ins("sta  %s+1", ZpScratchW2)
			ptr = ZpScratchW2
		}
		g.ins("ldy  #0")
		g.ins("lda  (%s),y", ptr)
		if !g.applyByteOpToA(op, operand, pos) {
			return true
		}
		g.ins("sta  (%s),y", ptr)
		return true

	default:
		// computed address: evaluate onto the stack, use the helpers
		operand := g.byteOperand(value, pos)
		g.assignWordExprToAY(addr)
		g.ins("sta  %s", ZpScratchW2)
		g.ins("sty  %s+1", ZpScratchW2)
		g.ins("jsr  %s", RtReadByteStack)
		if !g.applyByteOpToA(op, operand, pos) {
			return true
		}
		g.ins("jsr  %s", RtWriteByteStack)
		return true
	}
}

// applyByteOpToA applies op with the prepared operand to the byte in A.
func (g *AsmGen) applyByteOpToA(op string, operand asmOperand, pos Position) bool {
	opnd := operand.operandText()
	switch op {
	case "+":
		g.ins("clc")
		g.ins("adc  %s", opnd)
	case "-":
		g.ins("sec")
		g.ins("sbc  %s", opnd)
	case "&":
		g.ins("and  %s", opnd)
	case "|":
		g.ins("ora  %s", opnd)
	case "^":
		g.ins("eor  %s", opnd)
	case "*":
		g.ins("ldy  %s", opnd)
		g.ins("jsr  %s", RtMultiplyBytes)
	case "/":
		g.ins("ldy  %s", opnd)
		g.ins("jsr  %s", RtDivmodUB)
	case "<<", ">>":
		if !operand.immediate {
			g.errors.Errorf(pos, "variable shift of a memory byte is not supported here")
			return false
		}
		if operand.value >= 8 {
			g.ins("lda  #0")
			return true
		}
		for i := 0; i < operand.value; i++ {
			if op == "<<" {
				g.ins("asl  a")
			} else {
				g.ins("lsr  a")
			}
		}
	default:
		g.errors.Errorf(pos, "unsupported operator %q for in-place memory modification", op)
		return false
	}
	return true
}

//  Array element targets

func (g *AsmGen) inplaceArrayElement(arr *ArrayIndexed, op string, value Expression, pos Position) bool {
	decl, ok := arr.Identifier.Target().(*VarDecl)
	if !ok || !decl.Type.IsArray() {
		g.errors.Errorf(pos, "%s is not an array", arr.Identifier)
		return true
	}
	elem := decl.Type.ElementType()
	label := g.identLabel(arr.Identifier)

	// a literal index folds into the label, making the element an
	// ordinary variable
	if lit, isConst := arr.Index.(*NumericLiteral); isConst {
		folded := fmt.Sprintf("%s+%d", label, lit.IntValue()*elem.ByteSize())
		switch {
		case elem.IsByte():
			return g.inplaceByte(folded, elem, op, value, pos)
		case elem.IsWord():
			return g.inplaceWord(folded, elem, op, value, pos)
		case elem == DTFloat:
			return g.inplaceFloat(folded, op, value, pos)
		}
		g.errors.Errorf(pos, "unknown element type %s for in-place array modification", elem)
		return true
	}

	// runtime index: read-modify-write through the accumulator
	if !elem.IsByte() {
		return false // word/float elements with runtime index take the general path
	}
	operand := g.byteOperand(value, pos)
	g.assignByteExprToA(arr.Index)
	g.ins("tay")
	g.ins("lda  %s,y", label)
	if !g.applyByteOpToA(op, operand, pos) {
		return true
	}
	g.ins("sta  %s,y", label)
	return true
}

//  Prefix operators in place

// inplacePrefix special-cases negation, bitwise NOT and boolean NOT of
// a target, per operand type.
func (g *AsmGen) inplacePrefix(target *AssignTarget, op string, pos Position) {
	if target.Storage() != StorageVariable {
		if target.Storage() == StorageMemory {
			g.inplacePrefixMemory(target.MemoryWrite.Address, op, pos)
			return
		}
		g.errors.Errorf(pos, "in-place %s of a %s target is not supported at this site", op, target.Storage())
		return
	}
	dt := target.TargetType()
	label := g.identLabel(target.Identifier)

	switch op {
	case "+":
		// identity

	case "-":
		switch {
		case dt.IsByte():
			// 0 - target, expanded inline
			g.ins("lda  #0")
			g.ins("sec")
			g.ins("sbc  %s", label)
			g.ins("sta  %s", label)
		case dt.IsWord():
			g.ins("lda  #0")
			g.ins("sec")
			g.ins("sbc  %s", label)
			g.ins("sta  %s", label)
			g.ins("lda  #0")
			g.ins("sbc  %s+1", label)
			g.ins("sta  %s+1", label)
		case dt == DTFloat:
			// flip the sign bit of the stored representation directly
			g.ins("lda  %s+1", label)
			g.ins("eor  #$80")
			g.ins("sta  %s+1", label)
		default:
			g.errors.Errorf(pos, "cannot negate %s in place", dt)
		}

	case "~":
		switch {
		case dt.IsByte():
			g.ins("lda  %s", label)
			g.ins("eor  #$ff")
			g.ins("sta  %s", label)
		case dt.IsWord():
			g.ins("lda  %s", label)
			g.ins("eor  #$ff")
			g.ins("sta  %s", label)
			g.ins("lda  %s+1", label)
			g.ins("eor  #$ff")
			g.ins("sta  %s+1", label)
		default:
			g.errors.Errorf(pos, "cannot invert %s in place", dt)
		}

	case "not":
		switch {
		case dt.IsByte():
			g.ins("lda  %s", label)
			g.ins("beq  +")
			g.ins("lda  #1")
			g.line("+")
			g.ins("eor  #1")
			g.ins("sta  %s", label)
		case dt.IsWord():
			g.ins("lda  %s", label)
			g.ins("ora  %s+1", label)
			g.ins("beq  +")
			g.ins("lda  #1")
			g.line("+")
			g.ins("eor  #1")
			g.ins("sta  %s", label)
			g.clearByte(label + "+1")
		default:
			g.errors.Errorf(pos, "cannot apply not to %s in place", dt)
		}

	default:
		g.errors.Errorf(pos, "unsupported in-place prefix operator %q", op)
	}
}

func (g *AsmGen) inplacePrefixMemory(addr Expression, op string, pos Position) {
	lit, ok := addr.(*NumericLiteral)
	if !ok {
		g.errors.Errorf(pos, "in-place %s through a computed address is not supported at this site", op)
		return
	}
	label := fmt.Sprintf("$%04x", uint16(int64(lit.Value)))
	switch op {
	case "-":
		g.ins("lda  #0")
		g.ins("sec")
		g.ins("sbc  %s", label)
		g.ins("sta  %s", label)
	case "~":
		g.ins("lda  %s", label)
		g.ins("eor  #$ff")
		g.ins("sta  %s", label)
	case "not":
		g.ins("lda  %s", label)
		g.ins("beq  +")
		g.ins("lda  #1")
		g.line("+")
		g.ins("eor  #1")
		g.ins("sta  %s", label)
	}
}
