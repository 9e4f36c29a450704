// Package opcodes defines the instruction set the compiler emits and
// the VM dispatches: one Opcode byte enum, grouped by concern, plus an
// Instruction wrapper for operands.
package opcodes

import "fmt"

// Opcode is a single bytecode instruction tag.
type Opcode byte

// Stack / register transfer (0-19)
const (
	OP_NOP Opcode = iota
	OP_LOAD_CONST     // push constPool[operand]
	OP_LOAD_UNDEFINED // push undefined
	OP_LOAD_NULL      // push null
	OP_LOAD_TRUE
	OP_LOAD_FALSE
	OP_LOAD_THIS
	OP_DUP   // duplicate top of stack
	OP_POP   // discard top of stack
	OP_SWAP  // swap top two stack slots
	OP_ROT3  // rotate top three slots, bringing the third-from-top to the top
	OP_ROT4  // rotate top four slots, bringing the fourth-from-top to the top
)

// Arithmetic (20-39)
const (
	OP_ADD Opcode = iota + 20
	OP_SUB
	OP_MUL
	OP_DIV
	OP_MOD
	OP_POW
	OP_NEG   // unary -
	OP_POS   // unary +
	OP_NOT   // !
	OP_BW_NOT
	OP_INC // ++
	OP_DEC // --
	OP_BW_AND
	OP_BW_OR
	OP_BW_XOR
	OP_SHL
	OP_SHR
	OP_USHR
)

// Comparison (40-59)
const (
	OP_EQ Opcode = iota + 40
	OP_NEQ
	OP_SEQ // ===
	OP_SNEQ
	OP_LT
	OP_LTE
	OP_GT
	OP_GTE
	OP_INSTANCEOF
	OP_IN
	OP_TYPEOF
)

// Bindings / environment (60-89)
const (
	OP_GET_BINDING Opcode = iota + 60 // operand: BindingLocator index into the frame's locator table
	OP_SET_BINDING
	OP_INIT_BINDING // first assignment of a let/const, clears TDZ
	OP_GET_GLOBAL
	OP_SET_GLOBAL
	OP_DELETE_BINDING
	OP_GET_PROPERTY      // operand: constPool key index, or none for computed (pops key)
	OP_GET_PROPERTY_IC   // same, but resolved through an inline-cache slot (operand: IC slot index)
	OP_SET_PROPERTY
	OP_SET_PROPERTY_IC
	OP_GET_PROPERTY_COMPUTED
	OP_SET_PROPERTY_COMPUTED
	OP_DELETE_PROPERTY
	OP_GET_PRIVATE
	OP_SET_PRIVATE
	OP_GET_SUPER_PROPERTY
	OP_SET_SUPER_PROPERTY
)

// Object/array/function construction (90-119)
const (
	OP_NEW_OBJECT Opcode = iota + 90
	OP_NEW_ARRAY
	OP_ARRAY_PUSH     // pop value, append to array below it on the stack
	OP_ARRAY_SPREAD   // pop iterable, spread its elements into the array below
	OP_OBJECT_SET     // pop value+key, set on object below
	OP_OBJECT_SPREAD  // pop object, copy own enumerable props into object below
	OP_MAKE_FUNCTION  // operand: CodeBlock index; closes over current environment
	OP_MAKE_ARROW
	OP_MAKE_CLASS // operand: ClassTemplate index
	OP_MAKE_GENERATOR
	OP_TEMPLATE_CONCAT // operand: number of expression slots; pops them plus quasis from const pool
	OP_TAGGED_TEMPLATE
	OP_TYPEOF_BINDING // typeof on an unresolved identifier must not throw ReferenceError
)

// Calls (120-139)
const (
	OP_CALL Opcode = iota + 120 // operand: argument count
	OP_CALL_SPREAD
	OP_NEW
	OP_NEW_SPREAD
	OP_CALL_OPTIONAL // short-circuits if callee is null/undefined
	OP_SUPER_CALL
	OP_RETURN
	OP_RETURN_UNDEFINED
	OP_THROW
	// OP_CALL_EVAL is the direct-eval form `eval(...)` (operand:
	// argument count): the source compiles and runs against the
	// caller's live environment instead of going through an ordinary
	// callee lookup.
	OP_CALL_EVAL
)

// Control flow (140-169)
const (
	OP_JUMP Opcode = iota + 140 // operand: absolute instruction index
	OP_JUMP_IF_TRUE
	OP_JUMP_IF_FALSE
	OP_JUMP_IF_NULLISH  // for ?? / ?. short-circuit
	OP_JUMP_IF_NOT_NULLISH
	OP_LOOP_HINT // marks a back-edge for potential profiling; never required for correctness
	OP_PUSH_TRY   // operand: handler table index
	OP_POP_TRY
	OP_PUSH_FINALLY
	OP_POP_FINALLY
	OP_ENTER_BLOCK_SCOPE // operand: Scope template index, for per-iteration let bindings
	OP_EXIT_BLOCK_SCOPE
)

// Iteration (170-189)
const (
	OP_GET_ITERATOR Opcode = iota + 170
	OP_GET_ASYNC_ITERATOR
	OP_ITER_NEXT   // pushes value, done
	OP_ITER_CLOSE
	OP_ITER_UNPACK   // pops an iterator-result object; pushes value, done
	OP_ITER_NEXT_RAW // pushes the raw result of calling next() (a promise, for async iterators)
)

// Generators / async (190-209)
const (
	OP_YIELD Opcode = iota + 190
	OP_YIELD_STAR
	OP_AWAIT
	OP_GENERATOR_RETURN
)

// Modules (210-219)
const (
	// OP_IMPORT pops a specifier value and pushes the promise the
	// realm's dynamic-import hook produces for it (`import()`).
	OP_IMPORT Opcode = iota + 210
)

// String returns a human-readable mnemonic, used by disassembly tooling
// and VM debug traces.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP(%d)", byte(op))
}

var opcodeNames = map[Opcode]string{
	OP_NOP: "NOP", OP_LOAD_CONST: "LOAD_CONST", OP_LOAD_UNDEFINED: "LOAD_UNDEFINED",
	OP_LOAD_NULL: "LOAD_NULL", OP_LOAD_TRUE: "LOAD_TRUE", OP_LOAD_FALSE: "LOAD_FALSE",
	OP_LOAD_THIS: "LOAD_THIS", OP_DUP: "DUP", OP_POP: "POP", OP_SWAP: "SWAP", OP_ROT3: "ROT3", OP_ROT4: "ROT4",
	OP_ADD: "ADD", OP_SUB: "SUB", OP_MUL: "MUL", OP_DIV: "DIV", OP_MOD: "MOD", OP_POW: "POW",
	OP_NEG: "NEG", OP_POS: "POS", OP_NOT: "NOT", OP_BW_NOT: "BW_NOT",
	OP_INC: "INC", OP_DEC: "DEC",
	OP_BW_AND: "BW_AND", OP_BW_OR: "BW_OR", OP_BW_XOR: "BW_XOR",
	OP_SHL: "SHL", OP_SHR: "SHR", OP_USHR: "USHR",
	OP_EQ: "EQ", OP_NEQ: "NEQ", OP_SEQ: "SEQ", OP_SNEQ: "SNEQ",
	OP_LT: "LT", OP_LTE: "LTE", OP_GT: "GT", OP_GTE: "GTE",
	OP_INSTANCEOF: "INSTANCEOF", OP_IN: "IN", OP_TYPEOF: "TYPEOF",
	OP_GET_BINDING: "GET_BINDING", OP_SET_BINDING: "SET_BINDING", OP_INIT_BINDING: "INIT_BINDING",
	OP_GET_GLOBAL: "GET_GLOBAL", OP_SET_GLOBAL: "SET_GLOBAL", OP_DELETE_BINDING: "DELETE_BINDING",
	OP_GET_PROPERTY: "GET_PROPERTY", OP_GET_PROPERTY_IC: "GET_PROPERTY_IC",
	OP_SET_PROPERTY: "SET_PROPERTY", OP_SET_PROPERTY_IC: "SET_PROPERTY_IC",
	OP_GET_PROPERTY_COMPUTED: "GET_PROPERTY_COMPUTED", OP_SET_PROPERTY_COMPUTED: "SET_PROPERTY_COMPUTED",
	OP_DELETE_PROPERTY: "DELETE_PROPERTY", OP_GET_PRIVATE: "GET_PRIVATE", OP_SET_PRIVATE: "SET_PRIVATE",
	OP_GET_SUPER_PROPERTY: "GET_SUPER_PROPERTY", OP_SET_SUPER_PROPERTY: "SET_SUPER_PROPERTY",
	OP_NEW_OBJECT: "NEW_OBJECT", OP_NEW_ARRAY: "NEW_ARRAY", OP_ARRAY_PUSH: "ARRAY_PUSH",
	OP_ARRAY_SPREAD: "ARRAY_SPREAD", OP_OBJECT_SET: "OBJECT_SET", OP_OBJECT_SPREAD: "OBJECT_SPREAD",
	OP_MAKE_FUNCTION: "MAKE_FUNCTION", OP_MAKE_ARROW: "MAKE_ARROW", OP_MAKE_CLASS: "MAKE_CLASS",
	OP_MAKE_GENERATOR: "MAKE_GENERATOR", OP_TEMPLATE_CONCAT: "TEMPLATE_CONCAT",
	OP_TAGGED_TEMPLATE: "TAGGED_TEMPLATE", OP_TYPEOF_BINDING: "TYPEOF_BINDING",
	OP_CALL: "CALL", OP_CALL_SPREAD: "CALL_SPREAD", OP_NEW: "NEW", OP_NEW_SPREAD: "NEW_SPREAD",
	OP_CALL_OPTIONAL: "CALL_OPTIONAL", OP_SUPER_CALL: "SUPER_CALL",
	OP_RETURN: "RETURN", OP_RETURN_UNDEFINED: "RETURN_UNDEFINED", OP_THROW: "THROW",
	OP_CALL_EVAL: "CALL_EVAL",
	OP_JUMP: "JUMP", OP_JUMP_IF_TRUE: "JUMP_IF_TRUE", OP_JUMP_IF_FALSE: "JUMP_IF_FALSE",
	OP_JUMP_IF_NULLISH: "JUMP_IF_NULLISH", OP_JUMP_IF_NOT_NULLISH: "JUMP_IF_NOT_NULLISH",
	OP_LOOP_HINT: "LOOP_HINT", OP_PUSH_TRY: "PUSH_TRY", OP_POP_TRY: "POP_TRY",
	OP_PUSH_FINALLY: "PUSH_FINALLY", OP_POP_FINALLY: "POP_FINALLY",
	OP_ENTER_BLOCK_SCOPE: "ENTER_BLOCK_SCOPE", OP_EXIT_BLOCK_SCOPE: "EXIT_BLOCK_SCOPE",
	OP_GET_ITERATOR: "GET_ITERATOR", OP_GET_ASYNC_ITERATOR: "GET_ASYNC_ITERATOR",
	OP_ITER_NEXT: "ITER_NEXT", OP_ITER_CLOSE: "ITER_CLOSE", OP_ITER_UNPACK: "ITER_UNPACK",
	OP_ITER_NEXT_RAW: "ITER_NEXT_RAW",
	OP_YIELD: "YIELD", OP_YIELD_STAR: "YIELD_STAR", OP_AWAIT: "AWAIT",
	OP_GENERATOR_RETURN: "GENERATOR_RETURN",
	OP_IMPORT:           "IMPORT",
}

// Instruction is one decoded bytecode unit: an Opcode plus a single
// operand slot. Most opcodes use Operand as an index into some pool
// (constants, binding locators, jump targets); opcodes that need none
// leave it zero.
type Instruction struct {
	Op      Opcode
	Operand int32
	// Line records the source line for stack traces and the `debugger`
	// statement's step granularity.
	Line int
}

func (i Instruction) String() string {
	return fmt.Sprintf("%-22s %d", i.Op, i.Operand)
}
