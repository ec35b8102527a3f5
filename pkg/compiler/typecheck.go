package compiler

//  Type inference and checking.
//
// Inference is structural and local: literals carry their type,
// references take their declaration's type, operators infer by the
// promotion lattice. The checker validates assignments, inserts
// implicit widening casts, and retypes literals that provably fit a
// narrower target.

// InferType determines the data type of an expression, or DTUndefined
// when it cannot be known (unresolved names, undefined calls).
func InferType(e Expression) DataType {
	switch t := e.(type) {
	case *NumericLiteral:
		return t.Type
	case *StringLiteral:
		return DTStr
	case *ArrayLiteral:
		if t.Type != DTUndefined {
			return t.Type
		}
		elem := DTUndefined
		for _, v := range t.Values {
			elem = LargerOf(elem, InferType(v))
		}
		return elem.ArrayOf()
	case *IdentifierRef:
		return declaredType(t.Target())
	case *BinaryExpr:
		if t.InferredType != DTUndefined {
			return t.InferredType
		}
		switch t.Op {
		case "==", "!=", "<", ">", "<=", ">=", "and", "or", "xor":
			return DTUbyte // boolean result
		case "<<", ">>":
			return InferType(t.Left)
		}
		return LargerOf(InferType(t.Left), InferType(t.Right))
	case *PrefixExpr:
		if t.Op == "not" {
			return DTUbyte
		}
		return InferType(t.Expr)
	case *TypecastExpr:
		return t.Type
	case *FunctionCall:
		if sub, ok := t.Target.Target().(*Subroutine); ok && len(sub.Returns) > 0 {
			return sub.Returns[0].Type
		}
		return DTUndefined
	case *DirectMemoryRead:
		return DTUbyte
	case *AddressOf:
		return DTUword
	case *RangeExpr:
		elem := LargerOf(InferType(t.From), InferType(t.To))
		return elem.ArrayOf()
	case *ArrayIndexed:
		arrayType := declaredType(t.Identifier.Target())
		return arrayType.ElementType()
	}
	return DTUndefined
}

// declaredType returns the type a declaration provides to references.
func declaredType(decl Node) DataType {
	switch d := decl.(type) {
	case *VarDecl:
		return d.Type
	case *Subroutine:
		if len(d.Returns) > 0 {
			return d.Returns[0].Type
		}
		return DTUndefined
	case *Label, *Block:
		return DTUword // usable as an address
	}
	return DTUndefined
}

// TargetType returns the data type of an assignment target.
func (t *AssignTarget) TargetType() DataType {
	switch {
	case t.Identifier != nil:
		return declaredType(t.Identifier.Target())
	case t.MemoryWrite != nil:
		return DTUbyte
	case t.ArrayIndexed != nil:
		return declaredType(t.ArrayIndexed.Identifier.Target()).ElementType()
	case t.Register != "":
		if len(t.Register) > 1 {
			return DTUword // register pair or virtual register
		}
		return DTUbyte
	}
	return DTUndefined
}

// implicitWideningAllowed reports whether value type can silently widen
// into target type: ubyte→uword, byte→word, integer→float, and the
// trivial same-type case.
func implicitWideningAllowed(target, value DataType) bool {
	if target == value {
		return true
	}
	switch {
	case target == DTUword && value == DTUbyte:
		return true
	case target == DTWord && (value == DTByte || value == DTUbyte):
		return true
	case target == DTFloat && value.IsInteger():
		return true
	}
	return false
}

// TypeChecker validates assignments and declarations and inserts
// implicit casts. It is a mutating pass (casts are introduced through
// the modification queue) but runs to completion in one traversal.
type TypeChecker struct {
	errors *ErrorSink
}

func NewTypeChecker(errors *ErrorSink) *TypeChecker {
	return &TypeChecker{errors: errors}
}

func (tc *TypeChecker) Check(program *Program) {
	RewriteTree(program, tc)
	// annotate binary expressions bottom-up for the code generator
	Walk(program, func(n Node) bool {
		if b, ok := n.(*BinaryExpr); ok {
			b.InferredType = InferType(b)
		}
		return true
	})
}

func (tc *TypeChecker) Rewrite(n Node) []Modification {
	switch t := n.(type) {
	case *Assignment:
		return tc.checkAssignment(t)
	case *VarDecl:
		tc.checkVarDecl(t)
	case *Return:
		tc.checkReturn(t)
	}
	return nil
}

func (tc *TypeChecker) checkAssignment(a *Assignment) []Modification {
	if a.AugOp != "" {
		// still sugar; the desugaring pass rewrites it first
		return nil
	}
	targetType := a.Target.TargetType()
	valueType := InferType(a.Value)
	if targetType == DTUndefined || valueType == DTUndefined {
		return nil // unresolved names already diagnosed
	}
	if targetType == DTStruct || valueType == DTStruct {
		return nil // struct assignment is expanded memberwise before here
	}
	if targetType == valueType {
		return nil
	}

	if implicitWideningAllowed(targetType, valueType) {
		cast := &TypecastExpr{Expr: a.Value, Type: targetType, Implicit: true}
		cast.setPos(a.Value.Pos())
		return []Modification{Replace(a.Value, cast, a)}
	}

	// narrowing: only a literal that provably fits
	if lit, ok := a.Value.(*NumericLiteral); ok && targetType.IsNumeric() {
		if targetType.ValueFits(lit.Value) {
			lit.Type = targetType
			return nil
		}
		tc.errors.Errorf(a.Pos(), "value %v out of range for %s", lit.Value, targetType)
		return nil
	}

	tc.errors.Errorf(a.Pos(), "type mismatch: cannot assign %s to %s without an explicit cast",
		valueType, targetType)
	return nil
}

func (tc *TypeChecker) checkVarDecl(d *VarDecl) {
	if d.Value == nil {
		return
	}
	valueType := InferType(d.Value)
	if valueType == DTUndefined {
		return
	}
	if d.Type.IsArray() {
		tc.checkArrayInit(d, valueType)
		return
	}
	if d.Type == DTStruct || d.Kind == VarKindMemory {
		return
	}
	if d.Type == DTStr {
		if _, ok := d.Value.(*StringLiteral); !ok {
			tc.errors.Errorf(d.Pos(), "str variable %s requires a string initializer", d.Name)
		}
		return
	}
	if d.Type == valueType || implicitWideningAllowed(d.Type, valueType) {
		return
	}
	if lit, ok := d.Value.(*NumericLiteral); ok {
		if d.Type.ValueFits(lit.Value) {
			lit.Type = d.Type
			return
		}
		tc.errors.Errorf(d.Pos(), "initializer value %v out of range for %s %s", lit.Value, d.Type, d.Name)
		return
	}
	tc.errors.Errorf(d.Pos(), "type mismatch in initializer of %s: %s does not fit %s",
		d.Name, valueType, d.Type)
}

// checkArrayInit verifies a literal initializer against the declared
// array size; both present means they must agree.
func (tc *TypeChecker) checkArrayInit(d *VarDecl, valueType DataType) {
	arr, ok := d.Value.(*ArrayLiteral)
	if !ok {
		return // ranges are expanded by the const folder first
	}
	if arr.Type == DTUndefined {
		arr.Type = d.Type
	}
	if d.ArraySize != nil {
		if size, isConst := d.ArraySize.(*NumericLiteral); isConst {
			if size.IntValue() != len(arr.Values) {
				tc.errors.Errorf(d.Pos(), "array size mismatch: declared %d, initializer has %d values",
					size.IntValue(), len(arr.Values))
			}
		}
	}
	elem := d.Type.ElementType()
	for _, v := range arr.Values {
		if lit, isLit := v.(*NumericLiteral); isLit {
			if !elem.ValueFits(lit.Value) {
				tc.errors.Errorf(v.Pos(), "array value %v out of range for %s", lit.Value, elem)
			} else {
				lit.Type = elem
			}
		}
	}
}

func (tc *TypeChecker) checkReturn(r *Return) {
	sub := enclosingSubroutine(r)
	if sub == nil {
		if len(r.Values) > 0 {
			tc.errors.Errorf(r.Pos(), "return with value outside a subroutine")
		}
		return
	}
	if len(r.Values) != len(sub.Returns) {
		tc.errors.Errorf(r.Pos(), "subroutine %s returns %d value(s), got %d",
			sub.Name, len(sub.Returns), len(r.Values))
	}
}

//  Augmentable-assignment predicate.
//
// IsAugmentable is the structural gate between general assignment code
// and the specialized in-place code generator: it reports whether the
// RHS of a plain assignment A = RHS can be reshaped into an in-place
// update of A.

// associativeOperators can swap their operands without changing the result.
var associativeOperators = map[string]bool{
	"+": true, "*": true, "&": true, "|": true, "^": true,
	"and": true, "or": true, "xor": true,
}

// IsAugmentable reports whether the assignment can be emitted as an
// in-place modification of its target. The accepted shapes are:
//
//	A = A op X
//	A = X op A        (op associative)
//	A = (x op y) op (z op w)   with the same op twice and A exactly once a leaf
//	A = prefix(A) / cast(A), possibly through one nested cast
func IsAugmentable(a *Assignment) bool {
	if a.AugOp != "" {
		return true // not yet desugared; by definition in-place
	}
	target := a.Target
	if target == nil {
		return false
	}

	switch value := a.Value.(type) {
	case *PrefixExpr:
		return sameAsTarget(target, value.Expr)

	case *TypecastExpr:
		if sameAsTarget(target, value.Expr) {
			return true
		}
		if inner, ok := value.Expr.(*TypecastExpr); ok {
			return sameAsTarget(target, inner.Expr)
		}
		return false

	case *BinaryExpr:
		if sameAsTarget(target, value.Left) {
			return true
		}
		if associativeOperators[value.Op] && sameAsTarget(target, value.Right) {
			return true
		}
		// two-level tree with the same operator at both levels and the
		// target appearing exactly once as a leaf; for non-associative
		// operators only the leftmost leaf position can update in place
		leftBin, leftIsBin := value.Left.(*BinaryExpr)
		rightBin, rightIsBin := value.Right.(*BinaryExpr)
		if leftIsBin && leftBin.Op == value.Op && !rightIsBin {
			if countTargetLeaves(target, value) != 1 {
				return false
			}
			if associativeOperators[value.Op] {
				return true
			}
			return sameAsTarget(target, leftBin.Left)
		}
		if rightIsBin && rightBin.Op == value.Op && !leftIsBin && associativeOperators[value.Op] {
			return countTargetLeaves(target, value) == 1
		}
	}
	return false
}

// sameAsTarget reports whether the expression denotes the same storage
// as the assignment target.
func sameAsTarget(target *AssignTarget, e Expression) bool {
	switch t := e.(type) {
	case *IdentifierRef:
		return target.Identifier != nil && target.Identifier.Equals(t)
	case *DirectMemoryRead:
		return target.MemoryWrite != nil &&
			exprEquals(target.MemoryWrite.Address, t.Address)
	case *ArrayIndexed:
		return target.ArrayIndexed != nil &&
			target.ArrayIndexed.Identifier.Equals(t.Identifier) &&
			exprEquals(target.ArrayIndexed.Index, t.Index)
	}
	return false
}

// exprEquals reports structural equality of two side-effect-free
// expressions (used to recognize the target inside its own RHS).
func exprEquals(a, b Expression) bool {
	switch x := a.(type) {
	case *NumericLiteral:
		y, ok := b.(*NumericLiteral)
		return ok && x.Value == y.Value
	case *IdentifierRef:
		y, ok := b.(*IdentifierRef)
		return ok && x.Equals(y)
	case *BinaryExpr:
		y, ok := b.(*BinaryExpr)
		return ok && x.Op == y.Op && exprEquals(x.Left, y.Left) && exprEquals(x.Right, y.Right)
	case *PrefixExpr:
		y, ok := b.(*PrefixExpr)
		return ok && x.Op == y.Op && exprEquals(x.Expr, y.Expr)
	case *TypecastExpr:
		y, ok := b.(*TypecastExpr)
		return ok && x.Type == y.Type && exprEquals(x.Expr, y.Expr)
	case *DirectMemoryRead:
		y, ok := b.(*DirectMemoryRead)
		return ok && exprEquals(x.Address, y.Address)
	case *AddressOf:
		y, ok := b.(*AddressOf)
		return ok && x.Identifier.Equals(y.Identifier)
	case *ArrayIndexed:
		y, ok := b.(*ArrayIndexed)
		return ok && x.Identifier.Equals(y.Identifier) && exprEquals(x.Index, y.Index)
	}
	return false
}

// countTargetLeaves counts how many leaves of the expression tree
// denote the target.
func countTargetLeaves(target *AssignTarget, e Expression) int {
	if bin, ok := e.(*BinaryExpr); ok {
		return countTargetLeaves(target, bin.Left) + countTargetLeaves(target, bin.Right)
	}
	if sameAsTarget(target, e) {
		return 1
	}
	return 0
}
