package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	// Ensure every defined opcode has metadata
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if count := OpcodeCount(); count != 53 {
		t.Errorf("Expected 53 opcodes, got %d", count)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpPopTop, "POP_TOP"},
		{OpLoadConst, "LOAD_CONST"},
		{OpLoadFast, "LOAD_FAST"},
		{OpBinaryAdd, "BINARY_ADD"},
		{OpBinaryMatrixMul, "BINARY_MATRIX_MULTIPLY"},
		{OpCallFunctionKw, "CALL_FUNCTION_KW"},
		{OpForIter, "FOR_ITER"},
		{OpMakeFunction, "MAKE_FUNCTION"},
		{OpReturnValue, "RETURN_VALUE"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE) // Not defined
	got := op.String()
	if !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
}

func TestLookupOpcodeRoundTrip(t *testing.T) {
	for _, op := range AllOpcodes() {
		got, ok := LookupOpcode(op.String())
		if !ok || got != op {
			t.Errorf("LookupOpcode(%q) = %v, %v; want %v", op.String(), got, ok, op)
		}
	}
	if _, ok := LookupOpcode("SEND"); ok {
		t.Error("LookupOpcode(SEND) should fail")
	}
}

func TestOpcodeIsJump(t *testing.T) {
	jumps := []Opcode{OpJumpAbsolute, OpJumpForward, OpPopJumpIfFalse, OpPopJumpIfTrue, OpForIter}
	for _, op := range jumps {
		if !op.IsJump() {
			t.Errorf("%s.IsJump() = false, want true", op)
		}
	}

	nonJumps := []Opcode{OpNop, OpBinaryAdd, OpCallFunction, OpReturnValue}
	for _, op := range nonJumps {
		if op.IsJump() {
			t.Errorf("%s.IsJump() = true, want false", op)
		}
	}
}

func TestOpcodeIsConditionalJump(t *testing.T) {
	if OpJumpAbsolute.IsConditionalJump() {
		t.Error("JUMP_ABSOLUTE is unconditional")
	}
	for _, op := range []Opcode{OpPopJumpIfFalse, OpPopJumpIfTrue, OpForIter} {
		if !op.IsConditionalJump() {
			t.Errorf("%s.IsConditionalJump() = false, want true", op)
		}
	}
}

func TestOpcodeIsCall(t *testing.T) {
	for _, op := range []Opcode{OpCallFunction, OpCallFunctionKw, OpCallMethod} {
		if !op.IsCall() {
			t.Errorf("%s.IsCall() = false, want true", op)
		}
	}
	if OpLoadMethod.IsCall() {
		t.Error("LOAD_METHOD is not a call")
	}
}

func TestStackEffects(t *testing.T) {
	tests := []struct {
		op   Opcode
		pop  int
		push int
	}{
		{OpNop, 0, 0},
		{OpPopTop, 1, 0},
		{OpDupTop, 1, 2},
		{OpRotTwo, 2, 2},
		{OpLoadConst, 0, 1},
		{OpBinaryAdd, 2, 1},
		{OpCompareOp, 2, 1},
		{OpUnaryNot, 1, 1},
		{OpStoreSubscr, 3, 0},
		{OpReturnValue, 1, 0},
	}

	for _, tt := range tests {
		info := GetOpcodeInfo(tt.op)
		if info.StackPop != tt.pop {
			t.Errorf("%s.StackPop = %d, want %d", tt.op, info.StackPop, tt.pop)
		}
		if info.StackPush != tt.push {
			t.Errorf("%s.StackPush = %d, want %d", tt.op, info.StackPush, tt.push)
		}
	}
}

func TestOpcodeRanges(t *testing.T) {
	// Verify opcodes are in their expected ranges
	rangeTests := []struct {
		name     string
		ops      []Opcode
		minRange Opcode
		maxRange Opcode
	}{
		{"Stack", []Opcode{OpNop, OpPopTop, OpRotTwo, OpDupTop}, 0x00, 0x0F},
		{"Names", []Opcode{OpLoadConst, OpLoadFast, OpStoreGlobal, OpLoadClosure}, 0x10, 0x2F},
		{"Attributes", []Opcode{OpLoadAttr, OpLoadMethod, OpCallFunctionKw}, 0x30, 0x3F},
		{"Binary", []Opcode{OpBinaryAdd, OpBinarySubscr, OpInplaceTrueDivide}, 0x40, 0x5F},
		{"Unary", []Opcode{OpUnaryNegative, OpCompareOp, OpContainsOp}, 0x60, 0x6F},
		{"Containers", []Opcode{OpBuildList, OpStoreSubscr, OpUnpackSequence}, 0x70, 0x7F},
		{"Control", []Opcode{OpGetIter, OpForIter, OpPopJumpIfTrue}, 0x80, 0x8F},
		{"Functions", []Opcode{OpMakeFunction, OpReturnValue}, 0xA0, 0xFF},
	}

	for _, tt := range rangeTests {
		for _, op := range tt.ops {
			if op < tt.minRange || op > tt.maxRange {
				t.Errorf("%s opcode %s (0x%02X) is outside range [0x%02X, 0x%02X]",
					tt.name, op, byte(op), byte(tt.minRange), byte(tt.maxRange))
			}
		}
	}
}
