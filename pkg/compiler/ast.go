package compiler

import (
	"fmt"
	"strings"
)

//  AST node model
//
// Every node carries its source position and a parent link. Parent links
// form a tree rooted at the Program node; they are established once by
// LinkParents after the parser runs and are maintained afterwards only by
// the tree-walker's modification primitives and ReplaceChild.

// Node is implemented by every AST entity.
type Node interface {
	Pos() Position
	Parent() Node
	SetParent(Node)
}

// Expression is implemented by every node that produces a value.
type Expression interface {
	Node
	exprNode()
}

// Statement is implemented by every node that does not produce a value.
type Statement interface {
	Node
	stmtNode()
}

// node is the embedded base of every AST struct.
type node struct {
	pos    Position
	parent Node
}

func (n *node) Pos() Position     { return n.pos }
func (n *node) Parent() Node      { return n.parent }
func (n *node) SetParent(p Node)  { n.parent = p }
func (n *node) setPos(p Position) { n.pos = p }

// newNode is a convenience for the parser and the rewriting passes.
func newNode(pos Position) node { return node{pos: pos} }

//  Top level

// Program is the root of the AST. Its parent link is nil (the sentinel).
type Program struct {
	node
	Name    string
	Modules []*Module
}

// Module is one source file's worth of directives and blocks.
type Module struct {
	node
	Name       string
	Library    bool
	Statements []Node // Directive and Block nodes
}

// Block is a named section of code and variables, optionally placed at a
// fixed memory address.
type Block struct {
	node
	Name       string
	Address    int // -1 when the block has no explicit address
	Library    bool
	Statements []Node
}

// ForceOutput reports whether the block carries the force_output option.
func (b *Block) ForceOutput() bool {
	for _, st := range b.Statements {
		if d, ok := st.(*Directive); ok && d.Name == "option" {
			for _, arg := range d.Args {
				if arg.Name == "force_output" {
					return true
				}
			}
		}
	}
	return false
}

// Directive is a %-prefixed compiler instruction such as %output or %option.
type Directive struct {
	node
	Name string
	Args []DirectiveArg
}

type DirectiveArg struct {
	Name   string
	Str    string
	Int    uint16
	HasInt bool
}

// Label is a jump target.
type Label struct {
	node
	Name string

	scopedName string
}

//  Declarations

type VarDeclKind int

const (
	VarKindVar VarDeclKind = iota
	VarKindConst
	VarKindMemory // memory-mapped: the value is the fixed address
)

// ZeropageWish expresses a variable's zero-page placement preference.
type ZeropageWish int

const (
	ZpDontCare ZeropageWish = iota
	ZpPrefer
	ZpRequire
	ZpForbid
)

// VarDecl declares a variable, constant or memory-mapped location.
type VarDecl struct {
	node
	Kind       VarDeclKind
	Type       DataType
	Zp         ZeropageWish
	Name       string
	ArraySize  Expression // nil for scalars
	StructName string     // for struct-typed vars
	Value      Expression // initializer, nil when absent

	// Struct is resolved by the name resolver; never traverse it
	// before resolution has run.
	Struct *StructDecl

	scopedName string
}

func (d *VarDecl) String() string {
	return fmt.Sprintf("VarDecl(%s %s kind=%d)", d.Type, d.Name, d.Kind)
}

// StructDecl declares a record type as a homogeneous sequence of
// variable declarations. Struct variables are flattened into
// individually named members before codegen.
type StructDecl struct {
	node
	Name  string
	Decls []*VarDecl
}

// NumMembers returns the number of declared members.
func (s *StructDecl) NumMembers() int { return len(s.Decls) }

// SubParam is one formal parameter of a subroutine. Asm subroutines bind
// parameters to a register or status flag instead of a variable.
type SubParam struct {
	Name     string
	Type     DataType
	Register string // "A", "X", "Y", "AY", "Pc", ... for asmsubs
}

// Subroutine is a callable unit. ROM stubs have an absolute Address and
// no body.
type Subroutine struct {
	node
	Name       string
	Params     []SubParam
	Returns    []SubParam
	Clobbers   []string
	Address    int // -1 unless this is a ROM stub
	IsAsm      bool
	Inline     bool
	Statements []Node

	scopedName string
}

func (s *Subroutine) String() string {
	return fmt.Sprintf("Subroutine(%s, params=%d)", s.Name, len(s.Params))
}

// ContainsCode reports whether the subroutine body holds any executable
// statement (directives and declarations do not count).
func (s *Subroutine) ContainsCode() bool {
	for _, st := range s.Statements {
		switch st.(type) {
		case *Directive, *VarDecl, *StructDecl:
		default:
			return true
		}
	}
	return false
}

//  Expressions

// NumericLiteral is a number tagged with its data type.
type NumericLiteral struct {
	node
	Type  DataType
	Value float64
}

func (*NumericLiteral) exprNode() {}
func (l *NumericLiteral) String() string {
	return fmt.Sprintf("%v:%s", l.Value, l.Type)
}

// IntValue returns the literal as an integer; only valid for integer types.
func (l *NumericLiteral) IntValue() int { return int(l.Value) }

// NewNumericLiteral makes a literal of the smallest fitting integer type
// (or float when the value is fractional or out of integer range).
func NewNumericLiteral(value float64, pos Position) *NumericLiteral {
	dt := DTFloat
	if value == float64(int64(value)) {
		if t := SmallestIntType(value); t != DTFloat {
			dt = t
		}
	}
	return &NumericLiteral{node: newNode(pos), Type: dt, Value: value}
}

// StringLiteral is a text constant.
type StringLiteral struct {
	node
	Value string
}

func (*StringLiteral) exprNode()        {}
func (s *StringLiteral) String() string { return fmt.Sprintf("%q", s.Value) }

// ArrayLiteral is [ v1, v2, ... ].
type ArrayLiteral struct {
	node
	Type   DataType // array type, set during type inference
	Values []Expression
}

func (*ArrayLiteral) exprNode() {}
func (a *ArrayLiteral) String() string {
	return fmt.Sprintf("ArrayLiteral(len=%d)", len(a.Values))
}

// IdentifierRef is a (possibly dotted) reference to a named declaration.
type IdentifierRef struct {
	node
	Path []string

	// target caches the declaration found by the name resolver.
	target Node
}

func (*IdentifierRef) exprNode()        {}
func (i *IdentifierRef) String() string { return strings.Join(i.Path, ".") }

// Target returns the resolved declaration, or nil before resolution.
func (i *IdentifierRef) Target() Node { return i.target }

// Equals reports whether two references name the same path.
func (i *IdentifierRef) Equals(other *IdentifierRef) bool {
	if other == nil || len(i.Path) != len(other.Path) {
		return false
	}
	for k := range i.Path {
		if i.Path[k] != other.Path[k] {
			return false
		}
	}
	return true
}

// BinaryExpr is Left Op Right.
type BinaryExpr struct {
	node
	Left  Expression
	Op    string
	Right Expression

	// InferredType is filled in by the type checker.
	InferredType DataType
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", exprString(b.Left), b.Op, exprString(b.Right))
}

// PrefixExpr is one of +x, -x, ~x, not x.
type PrefixExpr struct {
	node
	Op   string
	Expr Expression
}

func (*PrefixExpr) exprNode() {}
func (p *PrefixExpr) String() string {
	return fmt.Sprintf("(%s %s)", p.Op, exprString(p.Expr))
}

// TypecastExpr converts Expr to Type. Implicit casts are inserted by the
// type checker; explicit ones come from the source.
type TypecastExpr struct {
	node
	Expr     Expression
	Type     DataType
	Implicit bool
}

func (*TypecastExpr) exprNode() {}
func (c *TypecastExpr) String() string {
	return fmt.Sprintf("(%s as %s)", exprString(c.Expr), c.Type)
}

// FunctionCall invokes a subroutine in expression position.
type FunctionCall struct {
	node
	Target *IdentifierRef
	Args   []Expression
}

func (*FunctionCall) exprNode() {}
func (f *FunctionCall) String() string {
	return fmt.Sprintf("FunctionCall(%s, args=%d)", f.Target, len(f.Args))
}

// DirectMemoryRead is @(addr): a byte read through an address expression.
type DirectMemoryRead struct {
	node
	Address Expression
}

func (*DirectMemoryRead) exprNode() {}
func (m *DirectMemoryRead) String() string {
	return fmt.Sprintf("@(%s)", exprString(m.Address))
}

// AddressOf is &identifier: the uword address of a named symbol.
type AddressOf struct {
	node
	Identifier *IdentifierRef
}

func (*AddressOf) exprNode()        {}
func (a *AddressOf) String() string { return "&" + a.Identifier.String() }

// RangeExpr is from .. to [step k].
type RangeExpr struct {
	node
	From Expression
	To   Expression
	Step Expression // nil means step 1
}

func (*RangeExpr) exprNode() {}
func (r *RangeExpr) String() string {
	if r.Step != nil {
		return fmt.Sprintf("%s..%s step %s", exprString(r.From), exprString(r.To), exprString(r.Step))
	}
	return fmt.Sprintf("%s..%s", exprString(r.From), exprString(r.To))
}

// Size returns the number of values a constant range produces, or -1
// when the bounds or step are not constant.
func (r *RangeExpr) Size() int {
	from, okF := r.From.(*NumericLiteral)
	to, okT := r.To.(*NumericLiteral)
	if !okF || !okT {
		return -1
	}
	step := 1
	if r.Step != nil {
		s, ok := r.Step.(*NumericLiteral)
		if !ok {
			return -1
		}
		step = s.IntValue()
	}
	return rangeSize(from.IntValue(), to.IntValue(), step)
}

func rangeSize(from, to, step int) int {
	if step == 0 {
		return -1
	}
	if step > 0 {
		if to < from {
			return 0
		}
		return (to-from)/step + 1
	}
	if to > from {
		return 0
	}
	return (from-to)/(-step) + 1
}

// ArrayIndexed is identifier[index].
type ArrayIndexed struct {
	node
	Identifier *IdentifierRef
	Index      Expression
}

func (*ArrayIndexed) exprNode() {}
func (a *ArrayIndexed) String() string {
	return fmt.Sprintf("%s[%s]", a.Identifier, exprString(a.Index))
}

func exprString(e Expression) string {
	if e == nil {
		return "<nil>"
	}
	if s, ok := e.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", e)
}

//  Statements

// AssignTarget is the left-hand side of an assignment. Exactly one of
// the fields is set; the populated field determines the storage kind the
// code generator dispatches on.
type AssignTarget struct {
	node
	Identifier   *IdentifierRef
	MemoryWrite  *DirectMemoryRead
	ArrayIndexed *ArrayIndexed
	Register     string // "A", "X", "Y" or a virtual register
}

func (t *AssignTarget) String() string {
	switch {
	case t.Identifier != nil:
		return t.Identifier.String()
	case t.MemoryWrite != nil:
		return t.MemoryWrite.String()
	case t.ArrayIndexed != nil:
		return t.ArrayIndexed.String()
	case t.Register != "":
		return "register " + t.Register
	}
	return "<empty target>"
}

// Equals reports whether two targets denote the same storage
// structurally. Used by the duplicate-assignment eliminator.
func (t *AssignTarget) Equals(other *AssignTarget) bool {
	switch {
	case t.Identifier != nil && other.Identifier != nil:
		return t.Identifier.Equals(other.Identifier)
	case t.Register != "" && other.Register != "":
		return t.Register == other.Register
	case t.MemoryWrite != nil && other.MemoryWrite != nil:
		a1, ok1 := t.MemoryWrite.Address.(*NumericLiteral)
		a2, ok2 := other.MemoryWrite.Address.(*NumericLiteral)
		return ok1 && ok2 && a1.Value == a2.Value
	case t.ArrayIndexed != nil && other.ArrayIndexed != nil:
		if !t.ArrayIndexed.Identifier.Equals(other.ArrayIndexed.Identifier) {
			return false
		}
		i1, ok1 := t.ArrayIndexed.Index.(*NumericLiteral)
		i2, ok2 := other.ArrayIndexed.Index.(*NumericLiteral)
		return ok1 && ok2 && i1.Value == i2.Value
	}
	return false
}

// AsExpression returns the target re-expressed as a value-producing
// expression (used when desugaring x op= e into x = x op e).
func (t *AssignTarget) AsExpression() Expression {
	switch {
	case t.Identifier != nil:
		return &IdentifierRef{node: newNode(t.pos), Path: append([]string(nil), t.Identifier.Path...)}
	case t.MemoryWrite != nil:
		return &DirectMemoryRead{node: newNode(t.pos), Address: copyExpression(t.MemoryWrite.Address)}
	case t.ArrayIndexed != nil:
		return &ArrayIndexed{
			node:       newNode(t.pos),
			Identifier: &IdentifierRef{node: newNode(t.pos), Path: append([]string(nil), t.ArrayIndexed.Identifier.Path...)},
			Index:      copyExpression(t.ArrayIndexed.Index),
		}
	}
	return nil
}

// Assignment stores Value into Target. AugOp, when non-empty, is the
// operator of an augmented assignment (x op= e) that the desugaring
// pass has not rewritten yet; it never survives into codegen.
type Assignment struct {
	node
	Target *AssignTarget
	AugOp  string
	Value  Expression
}

func (*Assignment) stmtNode() {}
func (a *Assignment) String() string {
	op := "="
	if a.AugOp != "" {
		op = a.AugOp + "="
	}
	return fmt.Sprintf("Assignment(%s %s %s)", a.Target, op, exprString(a.Value))
}

// PostIncrDecr is target++ or target--.
type PostIncrDecr struct {
	node
	Target *AssignTarget
	Op     string // "++" or "--"
}

func (*PostIncrDecr) stmtNode() {}
func (p *PostIncrDecr) String() string {
	return fmt.Sprintf("(%s %s)", p.Target, p.Op)
}

// FunctionCallStmt invokes a subroutine for its side effects.
type FunctionCallStmt struct {
	node
	Target *IdentifierRef
	Args   []Expression
}

func (*FunctionCallStmt) stmtNode() {}
func (f *FunctionCallStmt) String() string {
	return fmt.Sprintf("FunctionCallStmt(%s, args=%d)", f.Target, len(f.Args))
}

// Return leaves the enclosing subroutine, optionally yielding values.
type Return struct {
	node
	Values []Expression
}

func (*Return) stmtNode() {}
func (r *Return) String() string {
	return fmt.Sprintf("Return(values=%d)", len(r.Values))
}

// Break leaves the innermost loop.
type Break struct{ node }

func (*Break) stmtNode()        {}
func (b *Break) String() string { return "Break" }

// Jump transfers control to an absolute address or a label/subroutine.
type Jump struct {
	node
	Address    int // -1 unless jumping to an absolute address
	Identifier *IdentifierRef
}

func (*Jump) stmtNode() {}
func (j *Jump) String() string {
	if j.Identifier != nil {
		return fmt.Sprintf("Jump(%s)", j.Identifier)
	}
	return fmt.Sprintf("Jump($%04x)", j.Address)
}

// IfStmt branches on a boolean condition.
type IfStmt struct {
	node
	Condition Expression
	TrueScope *AnonymousScope
	ElseScope *AnonymousScope // nil when there is no else part
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	return fmt.Sprintf("IfStmt(%s)", exprString(i.Condition))
}

// BranchCondition selects a CPU status flag to branch on.
type BranchCondition int

const (
	BranchCS BranchCondition = iota // carry set
	BranchCC                        // carry clear
	BranchEQ                        // zero set
	BranchNE                        // zero clear
	BranchMI                        // negative set
	BranchPL                        // negative clear
	BranchVS                        // overflow set
	BranchVC                        // overflow clear
)

var branchConditionNames = map[BranchCondition]string{
	BranchCS: "if_cs", BranchCC: "if_cc", BranchEQ: "if_z", BranchNE: "if_nz",
	BranchMI: "if_neg", BranchPL: "if_pos", BranchVS: "if_vs", BranchVC: "if_vc",
}

func (b BranchCondition) String() string { return branchConditionNames[b] }

// BranchStmt branches directly on a CPU status flag.
type BranchStmt struct {
	node
	Condition BranchCondition
	TrueScope *AnonymousScope
	ElseScope *AnonymousScope
}

func (*BranchStmt) stmtNode() {}
func (b *BranchStmt) String() string {
	return fmt.Sprintf("BranchStmt(%s)", b.Condition)
}

// ForLoop iterates a loop variable over an iterable (range, array or str).
type ForLoop struct {
	node
	LoopVar  *IdentifierRef
	Iterable Expression
	Body     *AnonymousScope
}

func (*ForLoop) stmtNode() {}
func (f *ForLoop) String() string {
	return fmt.Sprintf("ForLoop(%s in %s)", f.LoopVar, exprString(f.Iterable))
}

// WhileLoop runs Body while Condition holds.
type WhileLoop struct {
	node
	Condition Expression
	Body      *AnonymousScope
}

func (*WhileLoop) stmtNode() {}
func (w *WhileLoop) String() string {
	return fmt.Sprintf("WhileLoop(%s)", exprString(w.Condition))
}

// UntilLoop runs Body until Condition holds (condition tested at the end).
type UntilLoop struct {
	node
	Condition Expression
	Body      *AnonymousScope
}

func (*UntilLoop) stmtNode() {}
func (u *UntilLoop) String() string {
	return fmt.Sprintf("UntilLoop(%s)", exprString(u.Condition))
}

// RepeatLoop runs Body a fixed number of times.
type RepeatLoop struct {
	node
	Count Expression
	Body  *AnonymousScope
}

func (*RepeatLoop) stmtNode() {}
func (r *RepeatLoop) String() string {
	return fmt.Sprintf("RepeatLoop(%s)", exprString(r.Count))
}

// WhenChoice is one arm of a when statement. A nil Values slice marks
// the else arm.
type WhenChoice struct {
	node
	Values     []Expression // nil for the else arm
	Statements []Node
}

// WhenStmt is a multi-way choice on a condition value.
type WhenStmt struct {
	node
	Condition Expression
	Choices   []*WhenChoice
}

func (*WhenStmt) stmtNode() {}
func (w *WhenStmt) String() string {
	return fmt.Sprintf("WhenStmt(%s, choices=%d)", exprString(w.Condition), len(w.Choices))
}

// InlineAssembly passes raw assembly text through to the output.
type InlineAssembly struct {
	node
	Assembly string
}

func (*InlineAssembly) stmtNode()        {}
func (a *InlineAssembly) String() string { return "InlineAssembly" }

// NopStmt does nothing; rewriting passes leave one behind where a
// statement list position must be preserved.
type NopStmt struct{ node }

func (*NopStmt) stmtNode()        {}
func (n *NopStmt) String() string { return "Nop" }

// AnonymousScope is an unnamed statement group introducing a scope.
type AnonymousScope struct {
	node
	Name       string // generated, unique within the enclosing scope
	Statements []Node
}

func (*AnonymousScope) stmtNode()        {}
func (a *AnonymousScope) String() string { return "AnonymousScope " + a.Name }

// Declarations and labels are valid in statement position too.
func (*VarDecl) stmtNode()    {}
func (*StructDecl) stmtNode() {}
func (*Label) stmtNode()      {}
func (*Directive) stmtNode()  {}
func (*Subroutine) stmtNode() {}
