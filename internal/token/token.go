package token

import "github.com/crtlang/crt/internal/tensor"

// Kind discriminates the tagged token variants of spec.md §3's
// "Token (assembly IR)": opcode reference; slot reference; integer
// literal; float literal; dense tensor literal; scalar-valued tensor;
// RNG tensor; data-type marker; shape marker; ranked tensor type.
// Collapsed here into one struct per the spec's allowance that "an
// implementer may collapse to a single tagged union."
type Kind uint8

const (
	KindSlot Kind = iota
	KindInt32
	KindFloat32
	KindDenseTensor
	KindSValueTensor
	KindRNGTensor
	KindDType
	KindShape
	KindRankedType
)

// Token is the tagged variant described above. Only the fields
// relevant to Kind are populated; the rest are left at their zero
// value, matching the Assembler instruction rule that "only the
// annotations actually required by the opcode are populated."
type Token struct {
	Kind Kind

	Slot int

	Int32 int32
	Float32 float32

	Shape []int

	// DenseF32/DenseI32/DenseI64 hold a dense tensor literal's backing
	// values; only the one matching DType is set (the decoder
	// reinterprets the data per the result-type annotation).
	DenseF32 []float32
	DenseI32 []int32
	DenseI64 []int64

	// Generator is the single fill value for a scalar-valued tensor.
	Generator float32

	// Dist selects the RNG tensor's source distribution.
	Dist tensor.Distribution

	DType tensor.DType
}

// SlotToken builds a slot-reference token.
func SlotToken(slot int) Token { return Token{Kind: KindSlot, Slot: slot} }

// Int32Token builds a 32-bit signed integer literal token.
func Int32Token(v int32) Token { return Token{Kind: KindInt32, Int32: v} }

// Float32Token builds a 32-bit float literal token.
func Float32Token(v float32) Token { return Token{Kind: KindFloat32, Float32: v} }

// ShapeToken builds a bare shape-marker token.
func ShapeToken(shape []int) Token { return Token{Kind: KindShape, Shape: shape} }

// DTypeToken builds a bare data-type marker token.
func DTypeToken(dt tensor.DType) Token { return Token{Kind: KindDType, DType: dt} }

// RankedTypeToken builds a ranked tensor type annotation token.
func RankedTypeToken(dt tensor.DType, shape []int) Token {
	return Token{Kind: KindRankedType, DType: dt, Shape: shape}
}

// DenseF32Token builds a dense f32 tensor literal token.
func DenseF32Token(data []float32, shape []int) Token {
	return Token{Kind: KindDenseTensor, DType: tensor.F32, DenseF32: data, Shape: shape}
}

// DenseI32Token builds a dense i32 tensor literal token.
func DenseI32Token(data []int32, shape []int) Token {
	return Token{Kind: KindDenseTensor, DType: tensor.I32, DenseI32: data, Shape: shape}
}

// SValueTensorToken builds a scalar-valued tensor token.
func SValueTensorToken(generator float32, shape []int) Token {
	return Token{Kind: KindSValueTensor, Generator: generator, Shape: shape}
}

// RNGTensorToken builds an RNG tensor token.
func RNGTensorToken(dist tensor.Distribution, shape []int) Token {
	return Token{Kind: KindRNGTensor, Dist: dist, Shape: shape}
}

// ToTensor materializes the token's literal payload as a *tensor.Tensor.
// Valid only for KindDenseTensor and KindSValueTensor. KindRNGTensor is
// not materialized here: RNGTENSOR is dispatched through the executor
// pool like any other producing opcode, so it draws from a backend's
// persistent RNG stream instead of reconstructing a fresh, identically
// seeded one on every call.
func (t Token) ToTensor() *tensor.Tensor {
	switch t.Kind {
	case KindDenseTensor:
		switch t.DType {
		case tensor.I32:
			return tensor.NewI32(t.DenseI32, t.Shape)
		case tensor.I64:
			return tensor.NewI64(t.DenseI64, t.Shape)
		default:
			return tensor.NewF32(t.DenseF32, t.Shape)
		}
	case KindSValueTensor:
		out := tensor.New(tensor.F32, t.Shape)
		out.Fill(float64(t.Generator))
		return out
	default:
		return nil
	}
}
