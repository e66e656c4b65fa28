package token

import (
	"encoding/binary"
	"math"

	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/vmerrors"
)

// schema describes, per spec.md §4.2, the fixed operand shape a given
// opcode encodes: whether a destination slot byte follows the opcode,
// the ordered kinds of its positional operand tokens, and whether a
// result-type ranked annotation trails the operands. The decoder uses
// this table the same way it uses the opcode to know "typed operand
// slices at the current position" (spec.md §2.2) — the wire format
// carries no redundant per-operand kind tag.
type schema struct {
	hasDest      bool
	operandKinds []Kind
	resultType   bool
}

var schemas = map[Opcode]schema{
	HALT:         {false, nil, false},
	LOAD:         {true, []Kind{KindInt32}, false},
	ADD_I32:      {true, []Kind{KindSlot, KindSlot}, false},
	SUB_I32:      {true, []Kind{KindSlot, KindSlot}, false},
	MUL_I32:      {true, []Kind{KindSlot, KindSlot}, false},
	FLOORDIV_I32: {true, []Kind{KindSlot, KindSlot}, false},
	ADD_F32:      {true, []Kind{KindSlot, KindSlot}, true},
	SUB_F32:      {true, []Kind{KindSlot, KindSlot}, true},
	MUL_F32:      {true, []Kind{KindSlot, KindSlot}, true},
	DIV_F32:      {true, []Kind{KindSlot, KindSlot}, true},
	MATMUL_F32:   {true, []Kind{KindSlot, KindSlot}, true},
	CONST_I32:    {true, []Kind{KindInt32}, true},
	CONST_F32:    {true, []Kind{KindFloat32}, true},
	CONSTTENSOR:  {true, []Kind{KindDenseTensor}, true},
	SVALUETENSOR: {true, []Kind{KindSValueTensor}, false},
	RNGTENSOR:    {true, []Kind{KindRNGTensor}, false},
	EXP_F32:      {true, []Kind{KindSlot}, false},
	RELU:         {true, []Kind{KindSlot}, false},
	SOFTMAX:      {true, []Kind{KindSlot}, false},
	RESHAPE:      {true, []Kind{KindSlot, KindShape}, false},
	TRANSPOSE:    {true, []Kind{KindSlot, KindShape}, false},
	MAXPOOL:      {true, []Kind{KindSlot, KindInt32}, false},
	CONVADD:      {true, []Kind{KindSlot, KindSlot, KindSlot}, false},
	GEMM:         {true, []Kind{KindSlot, KindSlot, KindSlot}, false},
	REDUCEMEAN:   {true, []Kind{KindSlot}, false},
	FLATTEN:      {true, []Kind{KindSlot}, false},
	RETV:         {false, []Kind{KindSlot}, false},
	DEVAT:        {false, nil, false},
	NOOP:         {false, nil, false},
	ILLEGAL:      {false, nil, false},
}

// Encode appends ins's wire bytes to buf and returns the extended
// slice. The encoder panics on an unsupported token-in-position
// combination, per spec.md §4.2: "this is a bug indicator, never a
// runtime condition."
func (ins *Instruction) Encode(buf []byte) []byte {
	sch, ok := schemas[ins.Op]
	if !ok {
		vmerrors.Bug("encode: unknown opcode", vmerrors.ErrIllegalOpcode)
	}
	buf = append(buf, byte(ins.Op))
	if sch.hasDest {
		buf = append(buf, byte(ins.Dest))
	}
	if len(sch.operandKinds) != ins.NumOperands {
		vmerrors.Bug("encode: operand count does not match opcode schema", vmerrors.ErrUnknownTokenKind)
	}
	for i, kind := range sch.operandKinds {
		buf = encodeToken(buf, kind, ins.Operands[i])
	}
	if sch.resultType {
		if ins.ResultType == nil {
			vmerrors.Bug("encode: opcode requires a result-type annotation", vmerrors.ErrUnknownTokenKind)
		}
		buf = encodeToken(buf, KindRankedType, *ins.ResultType)
	}
	return buf
}

func encodeToken(buf []byte, kind Kind, tok Token) []byte {
	if tok.Kind != kind {
		vmerrors.Bug("encode: token kind does not match operand position", vmerrors.ErrUnknownTokenKind)
	}
	switch kind {
	case KindSlot:
		return append(buf, byte(tok.Slot))
	case KindInt32:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(tok.Int32))
		return append(buf, tmp[:]...)
	case KindFloat32:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(tok.Float32))
		return append(buf, tmp[:]...)
	case KindShape:
		return encodeShape(buf, tok.Shape)
	case KindDenseTensor:
		return encodeDenseTensor(buf, tok)
	case KindSValueTensor:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(tok.Generator))
		buf = append(buf, tmp[:]...)
		return encodeShape(buf, tok.Shape)
	case KindRNGTensor:
		buf = append(buf, byte(tok.Dist))
		return encodeShape(buf, tok.Shape)
	case KindRankedType:
		buf = append(buf, tok.DType.Code())
		return encodeShape(buf, tok.Shape)
	default:
		vmerrors.Bug("encode: unsupported token kind", vmerrors.ErrUnknownTokenKind)
		return buf
	}
}

// encodeShape writes [len_bytes:2 le][shape_bytes], shape_bytes being
// each dimension as a little-endian uint64 (spec.md §4.2's "standard
// container serializer").
func encodeShape(buf []byte, shape []int) []byte {
	shapeBytes := make([]byte, 8*len(shape))
	for i, d := range shape {
		binary.LittleEndian.PutUint64(shapeBytes[i*8:], uint64(d))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(shapeBytes)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, shapeBytes...)
}

// encodeDenseTensor writes [data_len:2 le][data_bytes][shape_len:2 le]
// [shape_bytes]. data_len counts bytes, not elements; each element is
// 4 bytes regardless of whether the tensor is i32 or f32 (the closed
// element-type set never needs more than 4 bytes per scalar here).
func encodeDenseTensor(buf []byte, tok Token) []byte {
	var dataBytes []byte
	switch tok.DType {
	case tensor.I32:
		dataBytes = make([]byte, 4*len(tok.DenseI32))
		for i, v := range tok.DenseI32 {
			binary.LittleEndian.PutUint32(dataBytes[i*4:], uint32(v))
		}
	default:
		dataBytes = make([]byte, 4*len(tok.DenseF32))
		for i, v := range tok.DenseF32 {
			binary.LittleEndian.PutUint32(dataBytes[i*4:], math.Float32bits(v))
		}
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(dataBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, dataBytes...)
	return encodeShape(buf, tok.Shape)
}

// ToBytes serialises an entire program: each module's DEVAT prefix
// followed by its instructions, concatenated with no other
// intermodule marker (spec.md §4.2/§6).
func (p *Program) ToBytes() []byte {
	var buf []byte
	for _, mod := range p.Modules {
		buf = append(buf, byte(DEVAT), mod.Device)
		for _, ins := range mod.Instructions {
			buf = ins.Encode(buf)
		}
	}
	return buf
}
