package compiler

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestInferLiteralAndReferenceTypes(t *testing.T) {
	mod := mustParse(t, `
main {
    ubyte b
    uword w
    float f
    ubyte[4] arr
    sub start() {
        b = 1
    }
}
`)
	program := &Program{Name: "t", Modules: []*Module{mod}}
	mod.SetParent(program)
	LinkParents(program)
	NewNameResolver(program, NewErrorSink()).Resolve()

	mkRef := func(name string) *IdentifierRef {
		ref := &IdentifierRef{Path: []string{name}}
		block := mod.Statements[0].(*Block)
		sub := block.Statements[4].(*Subroutine)
		ref.SetParent(sub)
		found, _ := Lookup(ref.Path, sub)
		ref.target = found
		return ref
	}

	be.Equal(t, DTUbyte, InferType(mkRef("b")))
	be.Equal(t, DTUword, InferType(mkRef("w")))
	be.Equal(t, DTFloat, InferType(mkRef("f")))

	// binary promotion
	bin := &BinaryExpr{Left: mkRef("b"), Op: "+", Right: mkRef("w")}
	be.Equal(t, DTUword, InferType(bin))

	// comparisons yield a boolean byte
	cmp := &BinaryExpr{Left: mkRef("w"), Op: "<", Right: mkRef("w")}
	be.Equal(t, DTUbyte, InferType(cmp))

	// array indexing yields the element type
	idx := &ArrayIndexed{Identifier: mkRef("arr"), Index: NewNumericLiteral(0, Position{})}
	be.Equal(t, DTUbyte, InferType(idx))

	// memory reads are bytes, address-of is a word
	be.Equal(t, DTUbyte, InferType(&DirectMemoryRead{Address: NewNumericLiteral(0xd020, Position{})}))
	be.Equal(t, DTUword, InferType(&AddressOf{Identifier: mkRef("b")}))
}

func TestImplicitWideningInsertsCast(t *testing.T) {
	result := mustCompile(t, `
main {
    sub start() {
        ubyte b
        uword w
        b = 3
        w = b
    }
}
`)
	// the widening shows as a high-byte clear after loading the byte
	assertContains(t, result.Assembly, "ldy  #0")
}

func TestNarrowingRequiresExplicitCast(t *testing.T) {
	diags := compileError(t, wrapStart("ubyte b\nuword w\nw = 3\nb = w"))
	assertContains(t, diags, "explicit cast")
}

func TestNarrowingLiteralThatFitsIsAllowed(t *testing.T) {
	mustCompile(t, wrapStart("ubyte b\nb = 200"))
}

func TestNarrowingLiteralOutOfRange(t *testing.T) {
	diags := compileError(t, wrapStart("ubyte b\nb = 300"))
	assertContains(t, diags, "out of range")
}

func TestArraySizeMismatchIsDiagnosed(t *testing.T) {
	diags := compileError(t, "main {\n    ubyte[2] arr = [1, 2, 3]\n    sub start() {\n        arr[0] = 1\n    }\n}\n")
	assertContains(t, diags, "array size mismatch")
}

//  IsAugmentable

// aug builds a plain assignment x = <value> for the predicate tests.
func aug(value Expression) *Assignment {
	target := &AssignTarget{Identifier: &IdentifierRef{Path: []string{"x"}}}
	return &Assignment{Target: target, Value: value}
}

func xRef() *IdentifierRef  { return &IdentifierRef{Path: []string{"x"}} }
func yRef() *IdentifierRef  { return &IdentifierRef{Path: []string{"y"}} }
func lit(v float64) *NumericLiteral {
	return NewNumericLiteral(v, Position{})
}

func TestIsAugmentableDirect(t *testing.T) {
	// x = x + 1
	be.True(t, IsAugmentable(aug(&BinaryExpr{Left: xRef(), Op: "+", Right: lit(1)})))
	// x = x - y
	be.True(t, IsAugmentable(aug(&BinaryExpr{Left: xRef(), Op: "-", Right: yRef()})))
	// x = y - x is NOT augmentable: minus is not associative
	be.True(t, !IsAugmentable(aug(&BinaryExpr{Left: yRef(), Op: "-", Right: xRef()})))
	// x = 1 + x is augmentable: plus is associative
	be.True(t, IsAugmentable(aug(&BinaryExpr{Left: lit(1), Op: "+", Right: xRef()})))
	// x = y * z does not touch x at all
	be.True(t, !IsAugmentable(aug(&BinaryExpr{Left: yRef(), Op: "*", Right: yRef()})))
}

func TestIsAugmentableTwoLevel(t *testing.T) {
	// x = (x + 1) + 2
	two := &BinaryExpr{
		Left:  &BinaryExpr{Left: xRef(), Op: "+", Right: lit(1)},
		Op:    "+",
		Right: lit(2),
	}
	be.True(t, IsAugmentable(aug(two)))

	// x = (x + 1) * 2: different operators at the two levels
	mixed := &BinaryExpr{
		Left:  &BinaryExpr{Left: xRef(), Op: "+", Right: lit(1)},
		Op:    "*",
		Right: lit(2),
	}
	be.True(t, !IsAugmentable(aug(mixed)))

	// x = (x + x) + 1: the target appears twice
	double := &BinaryExpr{
		Left:  &BinaryExpr{Left: xRef(), Op: "+", Right: xRef()},
		Op:    "+",
		Right: lit(1),
	}
	be.True(t, !IsAugmentable(aug(double)))

	// x = (1 - x) - 2: minus cannot update the right leaf in place
	minus := &BinaryExpr{
		Left:  &BinaryExpr{Left: lit(1), Op: "-", Right: xRef()},
		Op:    "-",
		Right: lit(2),
	}
	be.True(t, !IsAugmentable(aug(minus)))
}

func TestIsAugmentablePrefixAndCast(t *testing.T) {
	// x = -x
	be.True(t, IsAugmentable(aug(&PrefixExpr{Op: "-", Expr: xRef()})))
	// x = ~x
	be.True(t, IsAugmentable(aug(&PrefixExpr{Op: "~", Expr: xRef()})))
	// x = ubyte(x)
	be.True(t, IsAugmentable(aug(&TypecastExpr{Expr: xRef(), Type: DTUbyte})))
	// x = ubyte(word(x)): one nested cast
	be.True(t, IsAugmentable(aug(&TypecastExpr{
		Expr: &TypecastExpr{Expr: xRef(), Type: DTWord},
		Type: DTUbyte,
	})))
	// x = -y is not an in-place update of x
	be.True(t, !IsAugmentable(aug(&PrefixExpr{Op: "-", Expr: yRef()})))
}

func TestIsAugmentableMemoryAndArrayTargets(t *testing.T) {
	// @(53280) = @(53280) | 1
	memTarget := &AssignTarget{MemoryWrite: &DirectMemoryRead{Address: lit(53280)}}
	memAssign := &Assignment{
		Target: memTarget,
		Value: &BinaryExpr{
			Left:  &DirectMemoryRead{Address: lit(53280)},
			Op:    "|",
			Right: lit(1),
		},
	}
	be.True(t, IsAugmentable(memAssign))

	// arr[2] = arr[2] + 1
	arrTarget := &AssignTarget{ArrayIndexed: &ArrayIndexed{
		Identifier: &IdentifierRef{Path: []string{"arr"}}, Index: lit(2)}}
	arrAssign := &Assignment{
		Target: arrTarget,
		Value: &BinaryExpr{
			Left: &ArrayIndexed{
				Identifier: &IdentifierRef{Path: []string{"arr"}}, Index: lit(2)},
			Op:    "+",
			Right: lit(1),
		},
	}
	be.True(t, IsAugmentable(arrAssign))

	// arr[2] = arr[3] + 1 touches a different element
	otherIndex := &Assignment{
		Target: arrTarget,
		Value: &BinaryExpr{
			Left: &ArrayIndexed{
				Identifier: &IdentifierRef{Path: []string{"arr"}}, Index: lit(3)},
			Op:    "+",
			Right: lit(1),
		},
	}
	be.True(t, !IsAugmentable(otherIndex))
}

func TestUndesugaredAugmentedCountsAsAugmentable(t *testing.T) {
	a := aug(lit(1))
	a.AugOp = "+"
	be.True(t, IsAugmentable(a))
}
