package tensor

import "github.com/crtlang/crt/internal/vmerrors"

// Gemm computes alpha*(a @ b) + beta*c, the higher-level layer op
// named in spec.md §4.1. Shape of the result is supplied by the
// caller's instruction type annotation per §4.4; here it is simply
// the matmul shape, with c added elementwise (c must already be that
// shape — no broadcasting in the core, per §4.4).
func Gemm(a, b, c *Tensor, alpha, beta float32) (*Tensor, error) {
	prod, err := MatMul(a, b)
	if err != nil {
		return nil, err
	}
	if c == nil {
		for i := range prod.f32 {
			prod.f32[i] *= alpha
		}
		return prod, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !EqualShape(prod.shape, c.shape) {
		return nil, vmerrors.ErrShapeMismatch
	}
	for i := range prod.f32 {
		prod.f32[i] = alpha*prod.f32[i] + beta*c.f32[i]
	}
	return prod, nil
}

// ConvAdd performs a minimal 2-D convolution (t and kernel are both
// plain 2-D [H, W] tensors; stride 1, no padding) of t against kernel and adds bias elementwise
// to the output. It is the reference kernel backing crt.convadd; real
// convolution parameter handling (stride/padding/groups) is out of
// scope per spec.md §1 ("concrete numeric kernels ... treated as a
// black box"), so this is deliberately the simplest faithful kernel.
func ConvAdd(t, kernel, bias *Tensor) (*Tensor, error) {
	t.mu.RLock()
	kernel.mu.RLock()
	defer t.mu.RUnlock()
	defer kernel.mu.RUnlock()

	if t.dtype != F32 || kernel.dtype != F32 {
		return nil, vmerrors.ErrDTypeMismatch
	}
	if len(t.shape) != 2 || len(kernel.shape) != 2 {
		return nil, vmerrors.ErrInvalidShape
	}
	h, w := t.shape[0], t.shape[1]
	kh, kw := kernel.shape[0], kernel.shape[1]
	if kh > h || kw > w {
		return nil, vmerrors.ErrInvalidShape
	}
	oh, ow := h-kh+1, w-kw+1
	out := New(F32, []int{oh, ow})

	for i := 0; i < oh; i++ {
		for j := 0; j < ow; j++ {
			var sum float32
			for ki := 0; ki < kh; ki++ {
				for kj := 0; kj < kw; kj++ {
					sum += t.f32[(i+ki)*w+(j+kj)] * kernel.f32[ki*kw+kj]
				}
			}
			out.f32[i*ow+j] = sum
		}
	}

	if bias != nil {
		return Binary(OpAdd, out, bias)
	}
	return out, nil
}

// MaxPool performs 2-D max pooling over a square window with stride
// equal to the window size (the simplest faithful reference kernel,
// per the same out-of-scope framing as ConvAdd above).
func MaxPool(t *Tensor, window int) (*Tensor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.dtype != F32 {
		return nil, vmerrors.ErrDTypeMismatch
	}
	if len(t.shape) != 2 || window <= 0 {
		return nil, vmerrors.ErrInvalidShape
	}
	h, w := t.shape[0], t.shape[1]
	oh, ow := h/window, w/window
	out := New(F32, []int{oh, ow})

	for i := 0; i < oh; i++ {
		for j := 0; j < ow; j++ {
			max := t.f32[(i*window)*w+(j*window)]
			for wi := 0; wi < window; wi++ {
				for wj := 0; wj < window; wj++ {
					v := t.f32[(i*window+wi)*w+(j*window+wj)]
					if v > max {
						max = v
					}
				}
			}
			out.f32[i*ow+j] = max
		}
	}
	return out, nil
}
