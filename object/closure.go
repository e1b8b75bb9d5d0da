package object

import "unsafe"

// GoFunction is the signature every native (Go-implemented) function or
// closure body must have: receives the calling thread and argument
// values, returns result values or an error.
type GoFunction func(th *Thread, args []Value) ([]Value, error)

// LClosure is a script closure: a Proto plus its captured UpVals.
type LClosure struct {
	GCHeader

	Proto   *Proto
	Upvals  []*UpVal
}

// NewLClosure allocates a script closure over proto with one empty
// upvalue slot per entry of proto.Upvalues.
func NewLClosure(proto *Proto) *LClosure {
	return &LClosure{Proto: proto, Upvals: make([]*UpVal, len(proto.Upvalues))}
}

// ToValue boxes c as a VLCL function value.
func (c *LClosure) ToValue() Value {
	return Value{tag: TagLClosure, bits: heapPtr(unsafe.Pointer(c))}
}

// AsLClosure extracts a *LClosure from v, or nil.
func AsLClosure(v Value) *LClosure {
	if v.tag != TagLClosure {
		return nil
	}
	return (*LClosure)(pointerFromBits(v.bits))
}

// Traverse visits the prototype and every captured upvalue.
func (c *LClosure) Traverse(mark func(Value)) {
	if c.Proto != nil {
		mark(c.Proto.protoPseudoValue())
	}
	for _, uv := range c.Upvals {
		if uv != nil {
			uv.Traverse(mark)
		}
	}
}

// CClosure is a native closure: a Go function body plus captured
// values.
type CClosure struct {
	GCHeader

	Fn       GoFunction
	Upvalues []Value
}

// NewCClosure allocates a native closure capturing the given values.
func NewCClosure(fn GoFunction, upvalues []Value) *CClosure {
	return &CClosure{Fn: fn, Upvalues: upvalues}
}

// ToValue boxes c as a VCCL function value.
func (c *CClosure) ToValue() Value {
	return Value{tag: TagCClosure, bits: heapPtr(unsafe.Pointer(c))}
}

// AsCClosure extracts a *CClosure from v, or nil.
func AsCClosure(v Value) *CClosure {
	if v.tag != TagCClosure {
		return nil
	}
	return (*CClosure)(pointerFromBits(v.bits))
}

// Traverse visits every captured upvalue TValue.
func (c *CClosure) Traverse(mark func(Value)) {
	for _, v := range c.Upvalues {
		mark(v)
	}
}

// ---------------------------------------------------------------------------
// Bare native function pointers (VLCF)
// ---------------------------------------------------------------------------

// LightFuncRegistry assigns small integer IDs to bare native functions
// (VLCF values carry no heap pointer, so — unlike CClosure — they
// cannot be GC-managed; Go also forbids reinterpreting a func value as
// an integer, so an ID-indexed registry stands in for the bare pointer).
type LightFuncRegistry struct {
	fns []GoFunction
}

// NewLightFuncRegistry creates an empty registry.
func NewLightFuncRegistry() *LightFuncRegistry { return &LightFuncRegistry{} }

// Register adds fn and returns a VLCF Value wrapping its ID.
func (r *LightFuncRegistry) Register(fn GoFunction) Value {
	id := uint32(len(r.fns))
	r.fns = append(r.fns, fn)
	return Value{tag: TagLCFunc, bits: uint64(id)}
}

// Lookup resolves a VLCF value back to its function. Panics if v is
// not a VLCF value or the ID is out of range.
func (r *LightFuncRegistry) Lookup(v Value) GoFunction {
	if v.tag != TagLCFunc {
		panic("object: LightFuncRegistry.Lookup on non-VLCF value")
	}
	return r.fns[uint32(v.bits)]
}
