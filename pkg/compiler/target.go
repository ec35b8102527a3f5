package compiler

//  Compilation targets.
//
// The emitter distinguishes the 6502 and 65C02 CPUs by querying the
// active target; 65C02-only idioms (stz, bra) are gated on that query.

type CpuType int

const (
	Cpu6502 CpuType = iota
	Cpu65C02
)

// Target describes one supported machine.
type Target struct {
	Name        string
	Cpu         CpuType
	LoadAddress int // default program load address
	BasicSys    int // line number shown in the BASIC launcher
}

var (
	TargetC64 = &Target{
		Name:        "c64",
		Cpu:         Cpu6502,
		LoadAddress: 0x0801,
		BasicSys:    10,
	}
	TargetCX16 = &Target{
		Name:        "cx16",
		Cpu:         Cpu65C02,
		LoadAddress: 0x0801,
		BasicSys:    10,
	}
)

// TargetByName returns the named target or nil.
func TargetByName(name string) *Target {
	switch name {
	case "c64":
		return TargetC64
	case "cx16":
		return TargetCX16
	}
	return nil
}

// SupportsStz reports whether the cpu has the stz/bra 65C02 extensions.
func (t *Target) SupportsStz() bool { return t.Cpu == Cpu65C02 }

// Reserved zero-page scratch labels, addressable by fixed names in the
// emitted assembly. Virtual registers r0..r15 are zero-page words too.
const (
	ZpScratchB1  = "P8ZP_SCRATCH_B1"
	ZpScratchReg = "P8ZP_SCRATCH_REG"
	ZpScratchW1  = "P8ZP_SCRATCH_W1"
	ZpScratchW2  = "P8ZP_SCRATCH_W2"
)

// Runtime library entry points the generated code calls.
const (
	RtMultiplyBytes = "math.multiply_bytes"
	RtMultiplyWords = "math.multiply_words"
	RtDivmodB       = "math.divmod_b_asm"
	RtDivmodUB      = "math.divmod_ub_asm"
	RtDivmodW       = "math.divmod_w_asm"
	RtDivmodUW      = "math.divmod_uw_asm"
	RtLsrByteA      = "math.lsr_byte_A"

	RtReadByteStack  = "prog8_lib.read_byte_from_address_on_stack"
	RtWriteByteStack = "prog8_lib.write_byte_to_address_on_stack"

	RtMovfm  = "floats.MOVFM"
	RtMovmf  = "floats.MOVMF"
	RtConupk = "floats.CONUPK"
	RtFadd   = "floats.FADD"
	RtFsub   = "floats.FSUB"
	RtFmult  = "floats.FMULT"
	RtFdiv   = "floats.FDIV"
	RtFpwr   = "floats.FPWR"
	RtFpwrt  = "floats.FPWRT"
)

// optimizedByteMultipliers are the multipliers with a dedicated
// shift/add product routine in the runtime (math.mul_byte_N).
var optimizedByteMultipliers = map[int]bool{
	3: true, 5: true, 6: true, 7: true, 9: true, 10: true, 11: true,
	12: true, 13: true, 14: true, 15: true, 20: true, 25: true,
	40: true, 50: true, 80: true, 100: true,
}

// optimizedWordMultipliers mirror the byte set for word operands
// (math.mul_word_N).
var optimizedWordMultipliers = map[int]bool{
	3: true, 5: true, 6: true, 7: true, 9: true, 10: true, 12: true,
	15: true, 20: true, 25: true, 40: true, 50: true, 80: true, 100: true,
	320: true, 640: true,
}
