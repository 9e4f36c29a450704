// Package registry holds the compiler's output artifacts: the immutable
// CodeBlock the compiler produces per function/script/module body, and
// the Shape transition table the VM consults for inline-cache property
// lookups. Everything here is compiled program data with the lifetime
// of its CodeBlock.
package registry

import (
	"github.com/wudi/esprel/opcodes"
	"github.com/wudi/esprel/values"
)

// BindingLocator is the runtime-facing counterpart of ast.BindingLocator:
// every OP_GET_BINDING/OP_SET_BINDING/OP_INIT_BINDING operand indexes
// into a CodeBlock's Locators table rather than embedding name/depth
// directly in the instruction stream.
type BindingLocator struct {
	Name  string
	Depth int
	Index int
	// Dynamic is true when the compiler could not resolve this name
	// statically (a free variable, or a function containing direct
	// eval/with in scope). The VM resolves every locator by name through
	// the live environment chain, whether or not Dynamic is set; Depth
	// and Index are recorded but not used for indexing.
	Dynamic bool
}

// HandlerKind distinguishes the two jump-control records a CodeBlock's
// Handlers table can hold.
type HandlerKind byte

const (
	HandlerCatch HandlerKind = iota
	HandlerFinally
)

// Handler is one entry in a CodeBlock's exception/finally handler table:
// the instruction range [Start, End) it protects, where control
// transfers on throw/abrupt-completion, and whether that's a catch or a
// finally block.
type Handler struct {
	Kind       HandlerKind
	Start      int
	End        int
	Target     int
	// StackDepth is the operand-stack depth to restore when this
	// handler fires, so a throw from deep inside an expression doesn't
	// leave stale operands behind.
	StackDepth int
}

// ParameterInfo records one formal parameter's shape for the function
// prologue the compiler emits:
// whether it's a rest parameter, and whether it has a default so the
// prologue must evaluate one when the argument is missing/undefined.
type ParameterInfo struct {
	HasDefault bool
	IsRest     bool
	// DefaultCodeBlock is not set by the compiler: default values are
	// compiled inline into the parameter prologue
	// (compileDefaultedBindingInit), so it stays 0.
	DefaultCodeBlock int
}

// CodeBlock is the compiler's immutable output for one function, script
// top level, or module top level. The VM's CallFrame pairs a CodeBlock
// with a concrete environment and instruction pointer.
type CodeBlock struct {
	Name string

	Instructions []opcodes.Instruction
	Constants    []values.Value

	// ChildBlocks holds the CodeBlocks for every nested function/arrow
	// expression/class method defined in this body; OP_MAKE_FUNCTION's
	// operand indexes into this slice.
	ChildBlocks []*CodeBlock

	// ClassTemplates holds every class declared/expressed directly in
	// this body; OP_MAKE_CLASS's operand indexes into this slice.
	ClassTemplates []*ClassTemplate

	// Scopes holds one ScopeTemplate per OP_ENTER_BLOCK_SCOPE site in
	// this body (in emission order); the instruction's Operand indexes
	// into this slice, or is -1 for a `with` statement's object
	// environment (no pre-declared names).
	Scopes []*ScopeTemplate

	// Templates holds one TemplateInfo per template-literal site;
	// OP_TEMPLATE_CONCAT/OP_TAGGED_TEMPLATE's operand indexes into this
	// slice rather than the constant pool, since a template's quasis
	// form a contiguous unit the VM needs as a group (cooked strings
	// plus, for tagged templates, the parallel raw strings).
	Templates []TemplateInfo

	Locators []BindingLocator
	Handlers []Handler

	// LocalBindings lists the names FunctionDeclarationInstantiation
	// must create in a fresh call's function environment before the
	// prologue runs: parameters and hoisted var/function names as
	// initialized-undefined slots, body-top-level let/const as TDZ
	// slots. Script and module top levels ignore this table (their
	// environments are populated by the global object and the module
	// linker respectively).
	LocalBindings []LocalBinding

	Parameters  []ParameterInfo
	NumParams   int
	IsArrow     bool
	IsAsync     bool
	IsGenerator bool
	Strict      bool

	// NumLocals sizes the declarative environment's binding slots this
	// block allocates directly.
	NumLocals int

	// Source carries enough of the original text for Function.prototype
	// .toString() and stack-trace rendering.
	Source string
}

// LocalKind tags how a LocalBinding is created at call time.
type LocalKind byte

const (
	// LocalVar covers parameters, `var`, and hoisted function names:
	// created mutable and already initialized (to undefined).
	LocalVar LocalKind = iota
	// LocalLet covers body-top-level let/class: mutable but
	// uninitialized until the declaration executes (TDZ).
	LocalLet
	// LocalConst is like LocalLet but immutable after initialization.
	LocalConst
)

// LocalBinding is one entry of a CodeBlock's LocalBindings table.
type LocalBinding struct {
	Name string
	Kind LocalKind
}

// ScopeBinding is one lexical name a block-scoped ScopeTemplate
// pre-declares on entry, so the environment it creates can enforce TDZ
// before the name's own declaration opcode runs.
type ScopeBinding struct {
	Name    string
	Mutable bool
}

// ScopeTemplate is the compiler's output for one scope-introducing
// node (block, catch clause, for-head, switch): the let/const/class/
// catch-parameter names OP_ENTER_BLOCK_SCOPE must declare uninitialized
// before the block's first statement runs. `var` and hoisted function
// names are not here — those live in the nearest function/script/module
// environment, per FunctionDeclarationInstantiation's split.
type ScopeTemplate struct {
	Bindings []ScopeBinding
}

// TemplateInfo is a template literal's cooked/raw quasi segments: N+1
// strings surrounding N substitution expressions, compiled and pushed
// onto the operand stack in source order immediately before the
// OP_TEMPLATE_CONCAT/OP_TAGGED_TEMPLATE instruction that consumes them.
type TemplateInfo struct {
	Cooked []string
	Raw    []string
}

// ClassTemplate is the compiler's output for a class declaration/expression:
// everything OP_MAKE_CLASS needs to instantiate the class's prototype,
// static side, and private-name layout at run time.
type ClassTemplate struct {
	Name           string
	HasSuperClass  bool
	Constructor    *CodeBlock // nil if no explicit constructor (derived classes still need a default)
	IsDerivedClass bool

	InstanceMethods []MemberTemplate
	StaticMethods   []MemberTemplate
	InstanceFields  []FieldTemplate
	StaticFields    []FieldTemplate
	StaticBlocks    []*CodeBlock

	PrivateNames []string
}

// MemberTemplate is one method/getter/setter definition inside a
// ClassTemplate.
type MemberTemplate struct {
	Key      string // empty when Computed
	Computed bool
	Kind     string // "method" | "get" | "set"
	Private  bool
	Body     *CodeBlock
}

// FieldTemplate is one instance/static field definition; Initializer is
// nil for a field with no initializer (defaults to undefined).
type FieldTemplate struct {
	Key         string
	Computed    bool
	Private     bool
	Initializer *CodeBlock
}
