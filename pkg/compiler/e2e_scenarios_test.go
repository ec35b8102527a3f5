package compiler

import (
	"testing"

	"github.com/nalgeon/be"
)

//  End-to-end scenarios over the whole pipeline.

func TestScenarioConstFolding(t *testing.T) {
	// S1: const ubyte N = 2+3*4 folds to the ubyte literal 14; the
	// assembly references #14 and never a runtime computation
	result := mustCompile(t, `
main {
    const ubyte N = 2+3*4
    sub start() {
        ubyte x
        x = N
    }
}
`)
	assertContains(t, result.Assembly, "#14")
	assertNotContains(t, result.Assembly, "multiply")
}

func TestScenarioDuplicateAssignment(t *testing.T) {
	// S2: of two identical plain stores only one remains
	result := mustCompile(t, wrapStart("ubyte x\nx = 1\nx = 1"))
	be.Equal(t, 1, countOccurrences(result.Assembly, "sta  main.start.x"))
}

func TestScenarioShiftClear(t *testing.T) {
	// S3: x <<= 9 clears x instead of looping asl nine times
	result := mustCompile(t, wrapStart("ubyte x\nx = 3\nx <<= 9"))
	assertNotContains(t, result.Assembly, "asl")
	assertContains(t, result.Assembly, "lda  #0")
}

func TestScenarioWordHighByteIncrement(t *testing.T) {
	// S4: w += $0200 emits inc w+1 twice and no low-byte update
	result := mustCompile(t, wrapStart("uword w\nw = 0\nw += $0200"))
	be.Equal(t, 2, countOccurrences(result.Assembly, "inc  main.start.w+1"))
	assertNotContains(t, result.Assembly, "adc")
}

func TestScenarioRegroupedConstants(t *testing.T) {
	// S5: a = (a + 3) + 5 folds to a + 8 and emits the four-instruction
	// read-modify-write sequence
	result := mustCompile(t, wrapStart("ubyte a\nubyte b\na = 0\nb = 0\na = (a + 3) + 5"))
	asm := result.Assembly
	assertContains(t, asm, "lda  main.start.a")
	assertContains(t, asm, "clc")
	assertContains(t, asm, "adc  #8")
	assertContains(t, asm, "sta  main.start.a")
	assertNotContains(t, asm, "adc  #3")
	assertNotContains(t, asm, "adc  #5")
}

func TestScenarioStructAssignment(t *testing.T) {
	// S6: p1 = p2 becomes memberwise moves; no struct reaches codegen
	result := mustCompile(t, `
main {
    struct P {
        ubyte x
        ubyte y
    }
    P p1
    P p2
    sub start() {
        p1 = p2
    }
}
`)
	Walk(result.Program, func(n Node) bool {
		if a, ok := n.(*Assignment); ok {
			if a.Target.TargetType() == DTStruct {
				t.Errorf("struct-typed assignment survived to codegen: %s", a)
			}
		}
		return true
	})
	assertContains(t, result.Assembly, "lda  main.p2_x")
	assertContains(t, result.Assembly, "sta  main.p1_x")
	assertContains(t, result.Assembly, "lda  main.p2_y")
	assertContains(t, result.Assembly, "sta  main.p1_y")
}

func TestNoAugmentedOperatorReachesCodegen(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte x\nuword w\nx = 1\nw = 2\nx += 3\nw <<= 2\nx -= 1"))
	Walk(result.Program, func(n Node) bool {
		if a, ok := n.(*Assignment); ok && a.AugOp != "" {
			t.Errorf("augmented assignment survived desugaring: %s", a)
		}
		return true
	})
}

func TestControlFlowCompiles(t *testing.T) {
	result := mustCompile(t, `
main {
    sub start() {
        ubyte x
        ubyte y
        x = 10
        y = 0
        while x > 0 {
            x -= 1
            if x == 5 {
                y += 1
            }
            else {
                y += 2
            }
        }
        repeat 4 {
            y <<= 1
        }
        until y == 0 {
            y -= 1
        }
        for x in 0 .. 7 {
            y = x
        }
        when y {
            1 -> { y = 2 }
            else -> { y = 0 }
        }
    }
}
`)
	asm := result.Assembly
	assertContains(t, asm, "beq")
	assertContains(t, asm, "jmp")
	assertContains(t, asm, "cmp")
}

func TestSubroutineCallsAndReturns(t *testing.T) {
	result := mustCompile(t, `
main {
    sub double(ubyte v) -> ubyte {
        return v * 2
    }
    sub start() {
        ubyte x
        x = 3
        x = double(x)
    }
}
`)
	asm := result.Assembly
	assertContains(t, asm, "sta  main.double.v")
	assertContains(t, asm, "jsr  main.double")
	assertContains(t, asm, "rts")
}

func TestRomStubCall(t *testing.T) {
	result := mustCompile(t, `
main {
    asmsub chrout(ubyte char @A) = $ffd2
    sub start() {
        chrout(65)
    }
}
`)
	asm := result.Assembly
	assertContains(t, asm, "lda  #65")
	assertContains(t, asm, "jsr  $ffd2")
}

func TestInlineAssemblyPassesThrough(t *testing.T) {
	result := mustCompile(t, wrapStart("%asm {{\n    lda  #$42\n    nop\n}}"))
	assertContains(t, result.Assembly, "lda  #$42")
	assertContains(t, result.Assembly, "nop")
}

func TestGotoAndLabels(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte x\nx = 1\nagain:\nx += 1\ngoto again"))
	assertContains(t, result.Assembly, "again")
	assertContains(t, result.Assembly, "jmp  main.start.again")
}

func TestBranchOnCpuFlag(t *testing.T) {
	result := mustCompile(t, wrapStart("ubyte x\nx = 1\nif_cs {\n    x = 2\n}"))
	assertContains(t, result.Assembly, "bcs")
}

func TestMemoryMappedVariable(t *testing.T) {
	result := mustCompile(t, `
main {
    memory ubyte border = $d020
    sub start() {
        border = 3
        border += 1
    }
}
`)
	asm := result.Assembly
	assertContains(t, asm, "border = $d020")
	assertContains(t, asm, "sta  main.border")
	assertContains(t, asm, "inc  main.border")
}

func TestStringVariableStorage(t *testing.T) {
	result := mustCompile(t, `
main {
    str greeting = "hello"
    sub start() {
        ubyte x
        x = greeting[0]
    }
}
`)
	asm := result.Assembly
	assertContains(t, asm, `.null  "hello"`)
	assertContains(t, asm, "lda  main.greeting+0")
}

func TestFloatVariableStorageAndInit(t *testing.T) {
	result := mustCompile(t, `
main {
    sub start() {
        float f
        f = 1.0
    }
}
`)
	asm := result.Assembly
	assertContains(t, asm, "f\t.fill  5")
	assertContains(t, asm, "jsr  floats.MOVFM")
	assertContains(t, asm, "jsr  floats.MOVMF")
	// the constant pool holds the mflpt encoding of 1.0
	assertContains(t, asm, "$81, $00, $00, $00, $00")
}

func TestForLoopOverArrayAndString(t *testing.T) {
	result := mustCompile(t, `
main {
    ubyte[3] values = [10, 20, 30]
    str text = "ab"
    sub start() {
        ubyte v
        ubyte sum
        sum = 0
        for v in values {
            sum += v
        }
        for v in text {
            sum += v
        }
    }
}
`)
	asm := result.Assembly
	assertContains(t, asm, "lda  main.values,y")
	assertContains(t, asm, "cpy  #3")
	assertContains(t, asm, "lda  main.text,y")
}

func TestProgramWideParentInvariantHolds(t *testing.T) {
	result := mustCompile(t, `
main {
    const ubyte LIMIT = 10
    ubyte[3] data = [1, 2, 3]
    sub helper(ubyte v) -> ubyte {
        return v + LIMIT
    }
    sub start() {
        ubyte i
        ubyte acc
        acc = 0
        for i in 0 .. 2 {
            acc += data[i]
        }
        acc = helper(acc)
    }
}
`)
	checkParentLinks(t, result.Program)
}
