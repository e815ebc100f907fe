package bytecode

import "fmt"

// Opcode identifies one stack-machine instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop       Opcode = 0x00 // No operation
	OpPopTop    Opcode = 0x01 // Pop top of stack
	OpRotTwo    Opcode = 0x02 // Swap top two: a b -> b a
	OpRotThree  Opcode = 0x03 // Rotate top three: a b c -> c a b
	OpDupTop    Opcode = 0x04 // Duplicate top of stack
	OpDupTopTwo Opcode = 0x05 // Duplicate top two: a b -> a b a b

	// ========================================================================
	// Names and constants (0x10-0x2F)
	// ========================================================================

	OpLoadConst   Opcode = 0x10 // Push Consts[arg]
	OpLoadFast    Opcode = 0x11 // Push local named ArgVal
	OpStoreFast   Opcode = 0x12 // Pop into local named ArgVal
	OpDeleteFast  Opcode = 0x13 // Unbind local named ArgVal
	OpLoadGlobal  Opcode = 0x14 // Push global (or builtin) named ArgVal
	OpStoreGlobal Opcode = 0x15 // Pop into global named ArgVal
	OpLoadDeref   Opcode = 0x16 // Push contents of cell named ArgVal
	OpStoreDeref  Opcode = 0x17 // Pop into cell named ArgVal
	OpLoadClosure Opcode = 0x18 // Push the cell object named ArgVal

	// ========================================================================
	// Attributes and calls (0x30-0x3F)
	// ========================================================================

	OpLoadAttr       Opcode = 0x30 // obj -> obj.ArgVal
	OpStoreAttr      Opcode = 0x31 // value obj -> (obj.ArgVal = value)
	OpLoadMethod     Opcode = 0x32 // obj -> method-or-null obj-or-method
	OpCallMethod     Opcode = 0x33 // Call method loaded by LOAD_METHOD with arg args
	OpCallFunction   Opcode = 0x34 // fn a1..an -> result
	OpCallFunctionKw Opcode = 0x35 // fn a1..an names -> result (names is a tuple of keyword names)

	// ========================================================================
	// Binary and in-place operators (0x40-0x5F)
	// ========================================================================

	OpBinaryAdd         Opcode = 0x40
	OpBinarySubtract    Opcode = 0x41
	OpBinaryMultiply    Opcode = 0x42
	OpBinaryTrueDivide  Opcode = 0x43
	OpBinaryFloorDivide Opcode = 0x44
	OpBinaryModulo      Opcode = 0x45
	OpBinaryPower       Opcode = 0x46
	OpBinaryMatrixMul   Opcode = 0x47
	OpBinarySubscr      Opcode = 0x48
	OpInplaceAdd        Opcode = 0x50
	OpInplaceSubtract   Opcode = 0x51
	OpInplaceMultiply   Opcode = 0x52
	OpInplaceTrueDivide Opcode = 0x53

	// ========================================================================
	// Unary operators and comparison (0x60-0x6F)
	// ========================================================================

	OpUnaryNegative Opcode = 0x60
	OpUnaryNot      Opcode = 0x61
	OpCompareOp     Opcode = 0x62 // ArgVal is one of < <= == != > >=
	OpIsOp          Opcode = 0x63 // arg 1 inverts
	OpContainsOp    Opcode = 0x64 // arg 1 inverts

	// ========================================================================
	// Containers (0x70-0x7F)
	// ========================================================================

	OpBuildList        Opcode = 0x70
	OpBuildTuple       Opcode = 0x71
	OpBuildMap         Opcode = 0x72 // k1 v1 .. kn vn -> dict
	OpBuildConstKeyMap Opcode = 0x73 // v1 .. vn keys -> dict
	OpStoreSubscr      Opcode = 0x74 // value container key -> (container[key] = value)
	OpUnpackSequence   Opcode = 0x75 // seq -> item_n .. item_1

	// ========================================================================
	// Iteration and control flow (0x80-0x8F)
	// ========================================================================

	OpGetIter        Opcode = 0x80
	OpForIter        Opcode = 0x81 // iter -> iter next, or pop iter and jump when exhausted
	OpJumpAbsolute   Opcode = 0x82
	OpJumpForward    Opcode = 0x83
	OpPopJumpIfFalse Opcode = 0x84
	OpPopJumpIfTrue  Opcode = 0x85

	// ========================================================================
	// Functions and return (0xA0-0xFF)
	// ========================================================================

	OpMakeFunction Opcode = 0xA0 // [defaults] [closure] code -> function; arg flags 0x01 defaults, 0x08 closure
	OpReturnValue  Opcode = 0xF0
)

// MakeFunction flag bits.
const (
	MakeFunctionDefaults = 0x01
	MakeFunctionClosure  = 0x08
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string // Instruction name as it appears in listings and assembly
	StackPop  int    // How many values popped from stack (-1 = depends on arg)
	StackPush int    // How many values pushed to stack (-1 = depends on arg)
	Operand   OperandKind
}

// OperandKind describes how an instruction's argument is interpreted.
type OperandKind uint8

const (
	OperandNone    OperandKind = iota // no argument
	OperandCount                      // small integer (argc, element count, flags)
	OperandConst                      // index into Consts
	OperandName                       // a name (local, global, attribute, cell)
	OperandCompare                    // a comparison operator
	OperandJump                       // a jump target label / instruction index
)

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:       {"NOP", 0, 0, OperandNone},
	OpPopTop:    {"POP_TOP", 1, 0, OperandNone},
	OpRotTwo:    {"ROT_TWO", 2, 2, OperandNone},
	OpRotThree:  {"ROT_THREE", 3, 3, OperandNone},
	OpDupTop:    {"DUP_TOP", 1, 2, OperandNone},
	OpDupTopTwo: {"DUP_TOP_TWO", 2, 4, OperandNone},

	// Names and constants
	OpLoadConst:   {"LOAD_CONST", 0, 1, OperandConst},
	OpLoadFast:    {"LOAD_FAST", 0, 1, OperandName},
	OpStoreFast:   {"STORE_FAST", 1, 0, OperandName},
	OpDeleteFast:  {"DELETE_FAST", 0, 0, OperandName},
	OpLoadGlobal:  {"LOAD_GLOBAL", 0, 1, OperandName},
	OpStoreGlobal: {"STORE_GLOBAL", 1, 0, OperandName},
	OpLoadDeref:   {"LOAD_DEREF", 0, 1, OperandName},
	OpStoreDeref:  {"STORE_DEREF", 1, 0, OperandName},
	OpLoadClosure: {"LOAD_CLOSURE", 0, 1, OperandName},

	// Attributes and calls
	OpLoadAttr:       {"LOAD_ATTR", 1, 1, OperandName},
	OpStoreAttr:      {"STORE_ATTR", 2, 0, OperandName},
	OpLoadMethod:     {"LOAD_METHOD", 1, 2, OperandName},
	OpCallMethod:     {"CALL_METHOD", -1, 1, OperandCount},
	OpCallFunction:   {"CALL_FUNCTION", -1, 1, OperandCount},
	OpCallFunctionKw: {"CALL_FUNCTION_KW", -1, 1, OperandCount},

	// Binary
	OpBinaryAdd:         {"BINARY_ADD", 2, 1, OperandNone},
	OpBinarySubtract:    {"BINARY_SUBTRACT", 2, 1, OperandNone},
	OpBinaryMultiply:    {"BINARY_MULTIPLY", 2, 1, OperandNone},
	OpBinaryTrueDivide:  {"BINARY_TRUE_DIVIDE", 2, 1, OperandNone},
	OpBinaryFloorDivide: {"BINARY_FLOOR_DIVIDE", 2, 1, OperandNone},
	OpBinaryModulo:      {"BINARY_MODULO", 2, 1, OperandNone},
	OpBinaryPower:       {"BINARY_POWER", 2, 1, OperandNone},
	OpBinaryMatrixMul:   {"BINARY_MATRIX_MULTIPLY", 2, 1, OperandNone},
	OpBinarySubscr:      {"BINARY_SUBSCR", 2, 1, OperandNone},
	OpInplaceAdd:        {"INPLACE_ADD", 2, 1, OperandNone},
	OpInplaceSubtract:   {"INPLACE_SUBTRACT", 2, 1, OperandNone},
	OpInplaceMultiply:   {"INPLACE_MULTIPLY", 2, 1, OperandNone},
	OpInplaceTrueDivide: {"INPLACE_TRUE_DIVIDE", 2, 1, OperandNone},

	// Unary and comparison
	OpUnaryNegative: {"UNARY_NEGATIVE", 1, 1, OperandNone},
	OpUnaryNot:      {"UNARY_NOT", 1, 1, OperandNone},
	OpCompareOp:     {"COMPARE_OP", 2, 1, OperandCompare},
	OpIsOp:          {"IS_OP", 2, 1, OperandCount},
	OpContainsOp:    {"CONTAINS_OP", 2, 1, OperandCount},

	// Containers
	OpBuildList:        {"BUILD_LIST", -1, 1, OperandCount},
	OpBuildTuple:       {"BUILD_TUPLE", -1, 1, OperandCount},
	OpBuildMap:         {"BUILD_MAP", -1, 1, OperandCount},
	OpBuildConstKeyMap: {"BUILD_CONST_KEY_MAP", -1, 1, OperandCount},
	OpStoreSubscr:      {"STORE_SUBSCR", 3, 0, OperandNone},
	OpUnpackSequence:   {"UNPACK_SEQUENCE", 1, -1, OperandCount},

	// Iteration and control flow
	OpGetIter:        {"GET_ITER", 1, 1, OperandNone},
	OpForIter:        {"FOR_ITER", 1, 2, OperandJump},
	OpJumpAbsolute:   {"JUMP_ABSOLUTE", 0, 0, OperandJump},
	OpJumpForward:    {"JUMP_FORWARD", 0, 0, OperandJump},
	OpPopJumpIfFalse: {"POP_JUMP_IF_FALSE", 1, 0, OperandJump},
	OpPopJumpIfTrue:  {"POP_JUMP_IF_TRUE", 1, 0, OperandJump},

	// Functions and return
	OpMakeFunction: {"MAKE_FUNCTION", -1, 1, OperandCount},
	OpReturnValue:  {"RETURN_VALUE", 1, 0, OperandNone},
}

// opcodeByName is the reverse of opcodeInfoTable, used by the assembler.
var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupOpcode returns the opcode with the given instruction name.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// String returns the instruction name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsJump returns true if this opcode carries a jump target.
func (op Opcode) IsJump() bool {
	return GetOpcodeInfo(op).Operand == OperandJump
}

// IsConditionalJump returns true for jumps that may fall through.
func (op Opcode) IsConditionalJump() bool {
	return op == OpPopJumpIfFalse || op == OpPopJumpIfTrue || op == OpForIter
}

// IsReturn returns true if this opcode terminates execution.
func (op Opcode) IsReturn() bool {
	return op == OpReturnValue
}

// IsCall returns true if this opcode invokes a callable.
func (op Opcode) IsCall() bool {
	return op == OpCallFunction || op == OpCallFunctionKw || op == OpCallMethod
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
