package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

//  In-place augmented assignment codegen.

func TestByteAddSmallConstantUsesInc(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte x\nx = 5\nx += 1"))
	assertContains(t, result.Assembly, "inc  main.start.x")
	result = mustCompile(t, wrapStart("ubyte x\nx = 5\nx -= 2"))
	be.Equal(t, 2, countOccurrences(result.Assembly, "dec  main.start.x"))
}

func TestByteAddLargerConstantUsesAdc(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte x\nx = 5\nx += 40"))
	assertContains(t, result.Assembly, "clc")
	assertContains(t, result.Assembly, "adc  #40")
}

func TestShiftByEightOrMoreClears(t *testing.T) {
	// S3: x <<= 9 must clear x, not emit a 9-step asl chain
	result := mustCompile(t, wrapStart("ubyte x\nx = 200\nx <<= 9"))
	assertContains(t, result.Assembly, "lda  #0")
	assertNotContains(t, result.Assembly, "asl  main.start.x")
}

func TestShiftByConstantUnrolls(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte x\nx = 200\nx <<= 3"))
	be.Equal(t, 3, countOccurrences(result.Assembly, "asl  main.start.x"))
}

func TestWordShiftSixteenClearsBothBytes(t *testing.T) {
	result := mustCompile(t, wrapStart("uword w\nw = 1\nw <<= 16"))
	assertContains(t, result.Assembly, "sta  main.start.w")
	assertContains(t, result.Assembly, "sta  main.start.w+1")
	assertNotContains(t, result.Assembly, "rol")
}

func TestWordAddHighByteIdiom(t *testing.T) {
	// S4: w += $0200 bumps the high byte twice, no low-byte update
	result := mustCompile(t, wrapStart("uword w\nw = 0\nw += $0200"))
	be.Equal(t, 2, countOccurrences(result.Assembly, "inc  main.start.w+1"))
	assertNotContains(t, result.Assembly, "adc")
}

func TestWordAddSmallConstantPropagatesCarry(t *testing.T) {
	result := mustCompile(t, wrapStart("uword w\nw = 0\nw += 5"))
	assertContains(t, result.Assembly, "adc  #5")
	assertContains(t, result.Assembly, "bcc  +")
	assertContains(t, result.Assembly, "inc  main.start.w+1")
}

func TestByteMultiplyDispatch(t *testing.T) {
	t.Run("PowerOfTwoBecomesShifts", func(t *testing.T) {
		result := mustCompile(t, wrapStart("ubyte b\nb = 3\nb *= 8"))
		be.Equal(t, 3, countOccurrences(result.Assembly, "asl  main.start.b"))
		assertNotContains(t, result.Assembly, "multiply")
	})
	t.Run("TableMultiplier", func(t *testing.T) {
		result := mustCompile(t, wrapStart("ubyte b\nb = 3\nb *= 25"))
		assertContains(t, result.Assembly, "jsr  math.mul_byte_25")
	})
	t.Run("GeneralMultiplier", func(t *testing.T) {
		result := mustCompile(t, wrapStart("ubyte b\nb = 3\nb *= 23"))
		assertContains(t, result.Assembly, "ldy  #23")
		assertContains(t, result.Assembly, "jsr  math.multiply_bytes")
	})
}

func TestDivisionDispatchesOnSignedness(t *testing.T) {
	t.Run("UnsignedPowerOfTwoIsShift", func(t *testing.T) {
		result := mustCompile(t, wrapStart("ubyte b\nb = 100\nb /= 4"))
		be.Equal(t, 2, countOccurrences(result.Assembly, "lsr  main.start.b"))
	})
	t.Run("SignedGoesToSignedRoutine", func(t *testing.T) {
		result := mustCompile(t, wrapStart("byte b\nb = 100\nb /= 4"))
		assertContains(t, result.Assembly, "jsr  math.divmod_b_asm")
	})
	t.Run("UnsignedGeneralRoutine", func(t *testing.T) {
		result := mustCompile(t, wrapStart("ubyte b\nb = 100\nb /= 7"))
		assertContains(t, result.Assembly, "jsr  math.divmod_ub_asm")
	})
}

func TestSignedRemainderIsError(t *testing.T) {
	diags := compileError(t, wrapStart("byte b\nb = 100\nb %= 3"))
	assertContains(t, diags, "remainder of signed integers")
}

func TestDivisionByLiteralZeroIsError(t *testing.T) {
	diags := compileError(t, wrapStart("uword w\nw = 10\nw /= 0"))
	assertContains(t, diags, "division by zero")
}

func TestShiftByWordQuantityIsError(t *testing.T) {
	diags := compileError(t, wrapStart("ubyte x\nuword w\nw = 2\nx = 1\nx <<= w"))
	assertContains(t, diags, "shift amount must be a byte")
}

func TestWordAndWithByteMaskClearsHighByte(t *testing.T) {
	result := mustCompile(t, wrapStart("uword w\nw = $1234\nw &= $0f"))
	assertContains(t, result.Assembly, "and  #15")
	// the high byte is zeroed rather than masked
	assertContains(t, result.Assembly, "sta  main.start.w+1")
}

func TestWordOrWithByteTouchesOnlyLowByte(t *testing.T) {
	result := mustCompile(t, wrapStart("uword w\nw = $1200\nw |= 3"))
	assertContains(t, result.Assembly, "ora  #3")
	assertNotContains(t, result.Assembly, "ora  #>")
}

func TestInplaceByteWithOtherVariable(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte a\nubyte b\na = 1\nb = 2\na += b"))
	assertContains(t, result.Assembly, "lda  main.start.a")
	assertContains(t, result.Assembly, "adc  main.start.b")
	assertContains(t, result.Assembly, "sta  main.start.a")
}

func TestInplaceWordWithByteVariableCarry(t *testing.T) {
	result := mustCompile(t, wrapStart("uword w\nubyte b\nw = 1000\nb = 5\nw += b"))
	assertContains(t, result.Assembly, "adc  main.start.b")
	assertContains(t, result.Assembly, "inc  main.start.w+1")
}

func TestInplaceNegation(t *testing.T) {
	t.Run("Byte", func(t *testing.T) {
		result := mustCompile(t, wrapStart("byte b\nb = 5\nb = -b"))
		assertContains(t, result.Assembly, "lda  #0")
		assertContains(t, result.Assembly, "sbc  main.start.b")
	})
	t.Run("Float", func(t *testing.T) {
		// float negation flips the stored sign bit, no ROM call
		result := mustCompile(t, wrapStart("float f\nf = 1.5\nf = -f"))
		assertContains(t, result.Assembly, "eor  #$80")
		assertNotContains(t, result.Assembly, "jsr  floats.FSUB")
	})
}

func TestInplaceInvertAndNot(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte b\nb = 5\nb = ~b"))
	assertContains(t, result.Assembly, "eor  #$ff")

	result = mustCompile(t, wrapStart("ubyte b\nb = 5\nb = not b"))
	assertContains(t, result.Assembly, "eor  #1")
}

func TestInplaceFloatOperations(t *testing.T) {
	result := mustCompile(t, wrapStart("float f\nf = 1.0\nf += 2.5"))
	asm := result.Assembly
	assertContains(t, asm, "jsr  floats.MOVFM")
	assertContains(t, asm, "jsr  floats.FADD")
	assertContains(t, asm, "jsr  floats.MOVMF")

	result = mustCompile(t, wrapStart("float f\nfloat g\nf = 10.0\ng = 4.0\nf /= g"))
	assertContains(t, result.Assembly, "jsr  floats.FDIV")
}

func TestInplaceMemoryAbsoluteAddress(t *testing.T) {
	result := mustCompile(t, wrapStart("@($d020) = @($d020) | 1"))
	assertContains(t, result.Assembly, "lda  $d020")
	assertContains(t, result.Assembly, "ora  #1")
	assertContains(t, result.Assembly, "sta  $d020")
}

func TestInplaceMemoryThroughZeroPagePointer(t *testing.T) {
	result := mustCompile(t, wrapStart("uword @zp ptr\nptr = $4000\n@(ptr) = @(ptr) + 1"))
	assertContains(t, result.Assembly, "lda  (main.start.ptr),y")
	assertContains(t, result.Assembly, "sta  (main.start.ptr),y")
}

func TestInplaceMemoryThroughNormalPointerCopiesToScratch(t *testing.T) {
	result := mustCompile(t, wrapStart("uword ptr\nptr = $4000\n@(ptr) = @(ptr) + 1"))
	assertContains(t, result.Assembly, fmt.Sprintf("sta  (%s),y", ZpScratchW2))
}

func TestInplaceMemoryComputedAddressUsesHelpers(t *testing.T) {
	result := mustCompile(t, wrapStart("uword base\nbase = $4000\n@(base + 2) = @(base + 2) ^ 3"))
	assertContains(t, result.Assembly, "jsr  prog8_lib.read_byte_from_address_on_stack")
	assertContains(t, result.Assembly, "jsr  prog8_lib.write_byte_to_address_on_stack")
}

func TestInplaceArrayConstantIndexFoldsOffset(t *testing.T) {
	result := mustCompile(t, `
main {
    ubyte[4] arr = [1, 2, 3, 4]
    sub start() {
        arr[2] = arr[2] + 5
    }
}
`)
	assertContains(t, result.Assembly, "lda  main.arr+2")
	assertContains(t, result.Assembly, "adc  #5")
	assertContains(t, result.Assembly, "sta  main.arr+2")
}

func TestInplaceArrayRuntimeIndex(t *testing.T) {
	result := mustCompile(t, `
main {
    ubyte[4] arr = [1, 2, 3, 4]
    sub start() {
        ubyte i
        i = 1
        arr[i] = arr[i] | 8
    }
}
`)
	assertContains(t, result.Assembly, "lda  main.arr,y")
	assertContains(t, result.Assembly, "sta  main.arr,y")
}

func TestInplaceRegisterTargetIsRejected(t *testing.T) {
	// register targets are reserved for the non-augmented path
	gen := NewAsmGen(&Program{}, TargetC64, NewErrorSink())
	target := &AssignTarget{Register: "A"}
	gen.inplaceModification(target, "+", lit(1), Position{})
	be.True(t, gen.errors.HasErrors())
	assertContains(t, gen.errors.Err().Error(), "not supported at this site")
}

func TestRedundantCastIsStripped(t *testing.T) {
	// x = uword(x) on a uword target emits no code at all
	gen := NewAsmGen(&Program{}, TargetC64, NewErrorSink())
	decl := &VarDecl{Kind: VarKindVar, Type: DTUword, Name: "x"}
	ref := &IdentifierRef{Path: []string{"x"}, target: decl}
	target := &AssignTarget{Identifier: ref}
	cast := &TypecastExpr{Expr: &IdentifierRef{Path: []string{"x"}, target: decl}, Type: DTUword}
	a := &Assignment{Target: target, Value: cast}

	be.True(t, IsAugmentable(a))
	be.True(t, gen.tryInplace(a))
	be.Equal(t, "", gen.out.String())
}

func TestStzGatedOnTarget(t *testing.T) {
	src := wrapStart("ubyte x\nx = 200\nx <<= 9")
	c64, err := Compile(src, "test.p8", TargetC64)
	be.Err(t, err, nil)
	assertNotContains(t, c64.Assembly, "stz")

	cx16, err := Compile(src, "test.p8", TargetCX16)
	be.Err(t, err, nil)
	assertContains(t, cx16.Assembly, "stz  main.start.x")
	assertContains(t, cx16.Assembly, ".cpu  '65c02'")
}

//  Property 5: x op= e and x = x op e produce identical assembly.

func TestAugmentedAndDesugaredFormsAgree(t *testing.T) {
	type combo struct {
		decl string
		augd string
		plain string
	}
	var combos []combo
	for _, op := range []string{"+", "-", "*", "/", "&", "|", "^", "<<", ">>"} {
		combos = append(combos,
			combo{"ubyte x", "x " + op + "= 3", "x = x " + op + " 3"},
			combo{"uword x", "x " + op + "= 3", "x = x " + op + " 3"},
		)
	}
	combos = append(combos,
		combo{"float x", "x += 2.5", "x = x + 2.5"},
		combo{"float x", "x *= 2.5", "x = x * 2.5"},
	)

	for _, c := range combos {
		name := c.decl + " " + c.augd
		t.Run(name, func(t *testing.T) {
			augSrc := wrapStart(c.decl + "\nx = 1\n" + c.augd)
			plainSrc := wrapStart(c.decl + "\nx = 1\n" + c.plain)
			augResult := mustCompile(t, augSrc)
			plainResult := mustCompile(t, plainSrc)
			if augResult.Assembly != plainResult.Assembly {
				t.Errorf("augmented and desugared forms differ.\n-- %s:\n%s\n-- %s:\n%s",
					c.augd, augResult.Assembly, c.plain, plainResult.Assembly)
			}
		})
	}
}

func TestAugmentedFormsAgreeForMemoryTargets(t *testing.T) {
	augResult := mustCompile(t, wrapStart("@($d020) += 1"))
	plainResult := mustCompile(t, wrapStart("@($d020) = @($d020) + 1"))
	be.Equal(t, augResult.Assembly, plainResult.Assembly)
}

func TestAugmentedFormsAgreeForArrayTargets(t *testing.T) {
	src := func(stmt string) string {
		return "main {\n    ubyte[4] arr = [1, 2, 3, 4]\n    sub start() {\n        " + stmt + "\n    }\n}\n"
	}
	augResult := mustCompile(t, src("arr[1] ^= 7"))
	plainResult := mustCompile(t, src("arr[1] = arr[1] ^ 7"))
	be.Equal(t, augResult.Assembly, plainResult.Assembly)
}

//  Dispatch agreement (property 3): what the predicate accepts, the
//  emitter handles through the in-place arm.

func TestPredicateAgreesWithDispatch(t *testing.T) {
	cases := []string{
		"x = x + 3",
		"x = 3 + x",
		"x = (x + 1) + 2",
		"x = (1 + x) + 2",
		"x = 1 + (x + 2)",
		"x = 1 + (2 + x)",
		"x = (x - 1) - 2",
	}
	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			result := mustCompile(t, wrapStart("ubyte x\nx = 9\n"+c))
			// the in-place arm loads and stores the target directly and
			// never routes through the expression scratch byte
			assertNotContains(t, result.Assembly, "pha")
		})
	}
}

func TestShiftVariableAmountLoops(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte x\nubyte n\nx = 1\nn = 3\nx <<= n"))
	assertContains(t, result.Assembly, "ldx  main.start.n")
	assertContains(t, result.Assembly, "asl  main.start.x")
	assertContains(t, result.Assembly, "dex")
}

func TestPostfixIncrementUsesInplaceEngine(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte x\nx = 1\nx++"))
	assertContains(t, result.Assembly, "inc  main.start.x")
	result = mustCompile(t, wrapStart("uword w\nw = 1\nw++"))
	assertContains(t, result.Assembly, "inc  main.start.w")
	assertContains(t, result.Assembly, "inc  main.start.w+1")
}

func TestOperandEvaluationOrderForComplexRhs(t *testing.T) {
	// arbitrary expression operands park in the scratch byte before the
	// read-modify-write sequence
	result := mustCompile(t, wrapStart("ubyte x\nubyte a\nubyte b\nx = 1\na = 2\nb = 3\nx += a * b"))
	assertContains(t, result.Assembly, "jsr  math.multiply_bytes")
	assertContains(t, result.Assembly, fmt.Sprintf("sta  %s", ZpScratchB1))
	assertContains(t, result.Assembly, fmt.Sprintf("adc  %s", ZpScratchB1))
}

func TestUnknownCastTypeIsError(t *testing.T) {
	// a cast with an undefined type must be reported, not emitted
	gen := NewAsmGen(&Program{}, TargetC64, NewErrorSink())
	decl := &VarDecl{Kind: VarKindVar, Type: DTUbyte, Name: "x"}
	ref := &IdentifierRef{Path: []string{"x"}, target: decl}
	target := &AssignTarget{Identifier: ref}
	a := &Assignment{
		Target: target,
		Value:  &TypecastExpr{Expr: &StringLiteral{Value: "zz"}, Type: DTUbyte},
	}
	gen.generateAssignment(a)
	be.True(t, gen.errors.HasErrors())
}

func TestAssemblyHasProgramFrame(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte x\nx = 1"))
	asm := result.Assembly
	assertContains(t, asm, ".cpu  '6502'")
	assertContains(t, asm, "* = $0801")
	assertContains(t, asm, "jmp  main.start")
	assertContains(t, asm, "main\t.proc")
	assertContains(t, asm, "start\t.proc")
	assertContains(t, asm, "x\t.byte  ?")
	assertContains(t, asm, "\t.pend")
	assertContains(t, asm, "\t.end")
	// trailing strings.Contains sanity: block comes after the header
	be.True(t, strings.Index(asm, "* = $0801") < strings.Index(asm, "main\t.proc"))
}
