package object

import (
	"crypto/sha256"
	"encoding/binary"
	"unsafe"

	"github.com/fxamacker/cbor/v2"
)

// UpvalDesc describes one upvalue slot a closure over this prototype
// must capture: either from the enclosing function's own stack (InStack)
// or from the enclosing closure's upvalue array.
type UpvalDesc struct {
	Name    string
	InStack bool
	Index   uint8
}

// LocalVar is one entry of a prototype's local-variable debug table.
type LocalVar struct {
	Name    string
	StartPC int32
	EndPC   int32
}

// LineInfo is a compact delta-encoded program-counter-to-line map, with
// an absolute line table sampled every AbsLineEvery instructions so
// that a lookup never has to walk more than AbsLineEvery deltas.
type LineInfo struct {
	AbsLineEvery int32
	Deltas       []int8  // Deltas[i] is the line change from instruction i to i+1, -128..127
	AbsLines     []int32 // sampled absolute line numbers
}

// LineAt resolves the source line for instruction pc.
func (li *LineInfo) LineAt(pc int) int {
	if li == nil || len(li.Deltas) == 0 {
		return 0
	}
	every := int(li.AbsLineEvery)
	if every <= 0 {
		every = 1
	}
	sampleIdx := pc / every
	if sampleIdx >= len(li.AbsLines) {
		sampleIdx = len(li.AbsLines) - 1
	}
	line := int(li.AbsLines[sampleIdx])
	for i := sampleIdx * every; i < pc && i < len(li.Deltas); i++ {
		line += int(li.Deltas[i])
	}
	return line
}

// Proto is an immutable-after-compilation compiled function prototype:
// constant pool, bytecode, nested prototypes, upvalue descriptors,
// line info, local-variable debug records, source name.
//
// The VM bytecode executor that would consume Code is out of scope;
// Code is carried opaquely as a byte slice so the object model stays
// meaningful without it.
type Proto struct {
	GCHeader

	Source     *TString
	LineDef    int32
	LastLineDef int32
	NumParams  uint8
	IsVararg   bool
	MaxStack   uint8

	Code      []byte
	Constants []Value
	Protos    []*Proto
	Upvalues  []UpvalDesc
	Lines     *LineInfo
	LocalVars []LocalVar
}

// NewProto allocates an empty prototype for source.
func NewProto(source *TString) *Proto {
	return &Proto{Source: source}
}

// Proto has no script-visible ToValue/AsProto pair: prototypes are not
// one of the nine script-visible base types (script code only ever sees
// the closures built over them). They are still GC-managed objects; the
// collector reaches them through the GC-internal tag that
// protoPseudoValue produces and AsProtoInternal reads.

// Traverse visits the source name, every constant, and every nested
// prototype. Bytecode, line info and local-variable records contain no
// Values and are skipped.
func (p *Proto) Traverse(mark func(Value)) {
	if p.Source != nil {
		mark(p.Source.ToValue())
	}
	for _, c := range p.Constants {
		mark(c)
	}
	for _, np := range p.Protos {
		if np != nil {
			mark(np.protoPseudoValue())
		}
	}
}

// protoPseudoValue lets the collector push a nested Proto onto a gray
// list using the same Value-shaped queue as everything else, without
// exposing a script-visible tag for it. FromValue (dispatch.go)
// resolves this internal tag back to the *Proto.
func (p *Proto) protoPseudoValue() Value {
	return Value{tag: tagProtoInternal, bits: heapPtr(unsafe.Pointer(p))}
}

// ProtoTag exposes the GC-internal-only Proto tag so package gc can
// Init a Proto's header without this package having to export the raw
// constant for general use.
func ProtoTag() Tag { return tagProtoInternal }

// tagProtoInternal is a GC-internal-only tag: collectable (so the write
// barrier / mark logic treats it like any heap reference) but outside
// the nine script-visible base types, so it can never collide with a
// real Value the lexer/compiler could produce.
const tagProtoInternal = Tag(0x0F) | collectBit

// AsProtoInternal extracts a *Proto from a protoPseudoValue.
func AsProtoInternal(v Value) *Proto {
	if v.tag != tagProtoInternal {
		return nil
	}
	return (*Proto)(pointerFromBits(v.bits))
}

// ---------------------------------------------------------------------------
// Content hash
// ---------------------------------------------------------------------------

// ContentHash returns a content address for p computed over its
// constant pool, bytecode, and nested prototypes' hashes.
func (p *Proto) ContentHash() [32]byte {
	h := sha256.New()
	h.Write(p.Code)
	for _, c := range p.Constants {
		var buf [9]byte
		writeConstant(buf[:], c)
		h.Write(buf[:])
	}
	for _, np := range p.Protos {
		sub := np.ContentHash()
		h.Write(sub[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeConstant(buf []byte, v Value) {
	switch {
	case v.IsNil():
		buf[0] = 0
	case v.IsBoolean():
		buf[0] = 1
		if v.Bool() {
			buf[1] = 1
		}
	case v.IsInt():
		buf[0] = 2
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.Int()))
	case v.IsFloat():
		buf[0] = 3
		binary.LittleEndian.PutUint64(buf[1:], uint64frombits(v.Float()))
	case v.IsString():
		buf[0] = 4
		s := AsTString(v)
		sum := sha256.Sum256(s.data)
		copy(buf[1:], sum[:8])
	}
}

func uint64frombits(f float64) uint64 {
	return *(*uint64)(unsafe.Pointer(&f))
}

// ---------------------------------------------------------------------------
// Round-trip encoding (object-model property, not a bytecode-persistence
// feature)
// ---------------------------------------------------------------------------

// protoWire is the CBOR-serializable shadow of Proto: Values are
// flattened into a tagged form since Value itself holds raw heap
// pointers that are meaningless across a serialize/deserialize
// boundary.
type protoWire struct {
	Source      string
	LineDef     int32
	LastLineDef int32
	NumParams   uint8
	IsVararg    bool
	MaxStack    uint8
	Code        []byte
	Constants   []wireValue
	Protos      []protoWire
	Upvalues    []UpvalDesc
	LocalVars   []LocalVar
	AbsEvery    int32
	Deltas      []int8
	AbsLines    []int32
}

type wireValue struct {
	Kind byte // 0=nil 1=bool 2=int 3=float 4=string
	I    int64
	F    float64
	B    bool
	S    string
}

func toWireValue(v Value) wireValue {
	switch {
	case v.IsBoolean():
		return wireValue{Kind: 1, B: v.Bool()}
	case v.IsInt():
		return wireValue{Kind: 2, I: v.Int()}
	case v.IsFloat():
		return wireValue{Kind: 3, F: v.Float()}
	case v.IsString():
		return wireValue{Kind: 4, S: AsTString(v).Content()}
	default:
		return wireValue{Kind: 0}
	}
}

func fromWireValue(w wireValue) Value {
	switch w.Kind {
	case 1:
		return BoolValue(w.B)
	case 2:
		return IntValue(w.I)
	case 3:
		return FloatValue(w.F)
	case 4:
		return NewLongString(w.S).ToValue()
	default:
		return Nil
	}
}

func toWireProto(p *Proto) protoWire {
	w := protoWire{
		LineDef: p.LineDef, LastLineDef: p.LastLineDef,
		NumParams: p.NumParams, IsVararg: p.IsVararg, MaxStack: p.MaxStack,
		Code: p.Code, Upvalues: p.Upvalues, LocalVars: p.LocalVars,
	}
	if p.Source != nil {
		w.Source = p.Source.Content()
	}
	if p.Lines != nil {
		w.AbsEvery = p.Lines.AbsLineEvery
		w.Deltas = p.Lines.Deltas
		w.AbsLines = p.Lines.AbsLines
	}
	for _, c := range p.Constants {
		w.Constants = append(w.Constants, toWireValue(c))
	}
	for _, np := range p.Protos {
		w.Protos = append(w.Protos, toWireProto(np))
	}
	return w
}

func fromWireProto(w protoWire) *Proto {
	p := &Proto{
		Source:      NewLongString(w.Source),
		LineDef:     w.LineDef,
		LastLineDef: w.LastLineDef,
		NumParams:   w.NumParams,
		IsVararg:    w.IsVararg,
		MaxStack:    w.MaxStack,
		Code:        w.Code,
		Upvalues:    w.Upvalues,
		LocalVars:   w.LocalVars,
	}
	if len(w.Deltas) > 0 || len(w.AbsLines) > 0 {
		p.Lines = &LineInfo{AbsLineEvery: w.AbsEvery, Deltas: w.Deltas, AbsLines: w.AbsLines}
	}
	for _, c := range w.Constants {
		p.Constants = append(p.Constants, fromWireValue(c))
	}
	for _, sub := range w.Protos {
		p.Protos = append(p.Protos, fromWireProto(sub))
	}
	return p
}

// MarshalBinary encodes p with CBOR. Proto is round-trippable as an
// object-model property even though bytecode persistence as a feature
// is out of scope.
func (p *Proto) MarshalBinary() ([]byte, error) {
	return cbor.Marshal(toWireProto(p))
}

// UnmarshalProto decodes bytes produced by MarshalBinary.
func UnmarshalProto(data []byte) (*Proto, error) {
	var w protoWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWireProto(w), nil
}
