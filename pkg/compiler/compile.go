package compiler

//  Compilation driver.
//
// Wires the passes into the fixed pipeline: parse, link, resolve
// names, check types, fold constants, reorder and desugar, re-resolve
// the rewritten tree, fold again, run the program checks, remove dead
// code, and generate assembly. Each pass runs to completion before the
// next starts; a pass that produced error diagnostics halts the
// pipeline after it finishes, so one run surfaces as many problems as
// possible.

// Result carries everything a driver needs after a compilation.
type Result struct {
	Program     *Program
	Assembly    string
	Diagnostics []Diagnostic
}

// Compile runs the whole pipeline over one source text.
func Compile(src, filename string, target *Target) (*Result, error) {
	namegen := NewNameGen()
	module, err := ParseModule(src, filename, namegen)
	if err != nil {
		return nil, err
	}
	program := &Program{Name: moduleName(filename), Modules: []*Module{module}}
	module.SetParent(program)
	return CompileProgram(program, target, namegen)
}

// CompileProgram runs the semantic pipeline and code generation over an
// already-built AST (used by the driver and by tests that construct
// trees directly).
func CompileProgram(program *Program, target *Target, namegen *NameGen) (*Result, error) {
	errors := NewErrorSink()
	result := &Result{Program: program}

	fail := func() (*Result, error) {
		result.Diagnostics = errors.Diagnostics()
		return result, errors.Err()
	}

	LinkParents(program)

	NewNameResolver(program, errors).Resolve()
	if errors.HasErrors() {
		return fail()
	}

	NewTypeChecker(errors).Check(program)
	if errors.HasErrors() {
		return fail()
	}

	folder := NewConstantFolder(program, errors)
	if err := folder.Fold(); err != nil {
		errors.Errorf(program.Pos(), "%v", err)
		return fail()
	}
	if errors.HasErrors() {
		return fail()
	}

	NewStatementReorderer(program, errors, namegen).Reorder()
	if errors.HasErrors() {
		return fail()
	}

	// desugaring introduced new references and renamed flattened ones
	NewNameResolver(program, errors).Resolve()
	if errors.HasErrors() {
		return fail()
	}
	if err := folder.Fold(); err != nil {
		errors.Errorf(program.Pos(), "%v", err)
		return fail()
	}
	NewTypeChecker(errors).Check(program)
	if errors.HasErrors() {
		return fail()
	}

	NewProgramChecker(program, errors).Check()
	if errors.HasErrors() {
		return fail()
	}

	graph := BuildCallGraph(program)
	graph.CheckRecursion(errors)
	NewDeadCodeRemover(program, graph, errors).Remove()
	if errors.HasErrors() {
		return fail()
	}

	asm, err := NewAsmGen(program, target, errors).Generate()
	result.Diagnostics = errors.Diagnostics()
	if err != nil {
		return result, err
	}
	result.Assembly = asm
	return result, nil
}
