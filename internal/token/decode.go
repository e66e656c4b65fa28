package token

import (
	"encoding/binary"
	"math"

	"github.com/crtlang/crt/internal/tensor"
	"github.com/crtlang/crt/internal/vmerrors"
)

// decoder walks a byte slice left to right, matching spec.md §2.2's
// description of the interpreter reading "opcodes and typed operand
// slices at the current position."
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, vmerrors.ErrDecodeOutOfBounds
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) take(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, vmerrors.ErrDecodeOutOfBounds
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) uint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) shape() ([]int, error) {
	nbytes, err := d.uint16()
	if err != nil {
		return nil, err
	}
	b, err := d.take(int(nbytes))
	if err != nil {
		return nil, err
	}
	shape := make([]int, len(b)/8)
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return shape, nil
}

func (d *decoder) token(kind Kind) (Token, error) {
	switch kind {
	case KindSlot:
		b, err := d.byte()
		if err != nil {
			return Token{}, err
		}
		return SlotToken(int(b)), nil
	case KindInt32:
		v, err := d.uint32()
		if err != nil {
			return Token{}, err
		}
		return Int32Token(int32(v)), nil
	case KindFloat32:
		v, err := d.uint32()
		if err != nil {
			return Token{}, err
		}
		return Float32Token(math.Float32frombits(v)), nil
	case KindShape:
		shape, err := d.shape()
		if err != nil {
			return Token{}, err
		}
		return ShapeToken(shape), nil
	case KindDenseTensor:
		return d.denseTensor()
	case KindSValueTensor:
		v, err := d.uint32()
		if err != nil {
			return Token{}, err
		}
		shape, err := d.shape()
		if err != nil {
			return Token{}, err
		}
		return SValueTensorToken(math.Float32frombits(v), shape), nil
	case KindRNGTensor:
		distByte, err := d.byte()
		if err != nil {
			return Token{}, err
		}
		shape, err := d.shape()
		if err != nil {
			return Token{}, err
		}
		return RNGTensorToken(tensor.Distribution(distByte), shape), nil
	case KindRankedType:
		dtByte, err := d.byte()
		if err != nil {
			return Token{}, err
		}
		dt, ok := tensor.DTypeFromCode(dtByte)
		if !ok {
			return Token{}, vmerrors.ErrDTypeMismatch
		}
		shape, err := d.shape()
		if err != nil {
			return Token{}, err
		}
		return RankedTypeToken(dt, shape), nil
	default:
		return Token{}, vmerrors.ErrUnknownTokenKind
	}
}

// denseTensor decodes a dense tensor literal. The wire format stores
// 4-byte elements regardless of dtype; the element dtype comes from
// the instruction's trailing result-type annotation, decoded by the
// caller, so at this point the data is kept as raw f32 bits and
// reinterpreted once that annotation is known (see decodeInstruction).
func (d *decoder) denseTensor() (Token, error) {
	nbytes, err := d.uint16()
	if err != nil {
		return Token{}, err
	}
	data, err := d.take(int(nbytes))
	if err != nil {
		return Token{}, err
	}
	f32 := make([]float32, len(data)/4)
	for i := range f32 {
		f32[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	shape, err := d.shape()
	if err != nil {
		return Token{}, err
	}
	return DenseF32Token(f32, shape), nil
}

// reinterpretDense rewrites a dense tensor token decoded as f32 into
// i32 form when the accompanying result-type annotation says so.
func reinterpretDense(tok Token, dt tensor.DType) Token {
	if dt != tensor.I32 {
		tok.DType = tensor.F32
		return tok
	}
	i32 := make([]int32, len(tok.DenseF32))
	for i, v := range tok.DenseF32 {
		i32[i] = int32(math.Float32bits(v))
	}
	return DenseI32Token(i32, tok.Shape)
}

// decodeInstruction decodes one instruction for opcode op at the
// decoder's current position.
func decodeInstruction(d *decoder, op Opcode) (*Instruction, error) {
	sch, ok := schemas[op]
	if !ok {
		return nil, vmerrors.ErrIllegalOpcode
	}
	ins := &Instruction{Op: op}
	if sch.hasDest {
		b, err := d.byte()
		if err != nil {
			return nil, err
		}
		ins.Dest = int(b)
	}
	for i, kind := range sch.operandKinds {
		tok, err := d.token(kind)
		if err != nil {
			return nil, err
		}
		ins.Operands[i] = tok
	}
	ins.NumOperands = len(sch.operandKinds)
	if sch.resultType {
		tok, err := d.token(KindRankedType)
		if err != nil {
			return nil, err
		}
		ins.ResultType = &tok
		if op == CONSTTENSOR && ins.NumOperands > 0 {
			ins.Operands[0] = reinterpretDense(ins.Operands[0], tok.DType)
		}
	}
	return ins, nil
}

// DecodeProgram parses an entire byte stream into a Program. A module
// begins at a DEVAT marker byte followed by its device tag; it ends
// either at the next DEVAT marker or at end of stream. RETV closes the
// logical return path of a module but does not by itself start a new
// one — only DEVAT does (spec.md §4.2/§6).
func DecodeProgram(buf []byte) (*Program, error) {
	d := &decoder{buf: buf}
	prog := &Program{}
	var cur *Module
	for d.pos < len(d.buf) {
		opByte, err := d.byte()
		if err != nil {
			return nil, err
		}
		op := Opcode(opByte)
		if op == DEVAT {
			devByte, err := d.byte()
			if err != nil {
				return nil, err
			}
			cur = &Module{Device: devByte}
			prog.Modules = append(prog.Modules, cur)
			continue
		}
		if cur == nil {
			cur = &Module{Device: AnyDevice}
			prog.Modules = append(prog.Modules, cur)
		}
		ins, err := decodeInstruction(d, op)
		if err != nil {
			return nil, err
		}
		cur.Instructions = append(cur.Instructions, ins)
	}
	return prog, nil
}
