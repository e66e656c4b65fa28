package tensor

import "math/rand/v2"

// Distribution identifies the RNGTENSOR source distribution (spec.md
// §3: "0=uniform" / "1=normal").
type Distribution uint8

const (
	Uniform Distribution = 0
	Normal  Distribution = 1
)

// RNGTensor fills a new f32 tensor by drawing from the requested
// distribution. rng is injected so callers (and tests) can make RNG
// draws reproducible without relying on a package-level seed; the CPU
// backend passes the single *rand.Rand it seeds in Init to every
// dispatch, so successive draws continue one stream. A nil rng is
// replaced by a fresh generator with a fixed seed.
func RNGTensor(dist Distribution, shape []int, rng *rand.Rand) *Tensor {
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 1))
	}
	out := New(F32, shape)
	for i := range out.f32 {
		switch dist {
		case Normal:
			out.f32[i] = float32(rng.NormFloat64())
		default:
			out.f32[i] = float32(rng.Float64())
		}
	}
	return out
}
