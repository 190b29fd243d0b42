// Package tensor provides a dense, row-major N-dimensional array.
package tensor

import (
	"fmt"

	"github.com/pkg/errors"
)

// Element is the set of element types a Tensor can hold. Images and
// probabilities use float32; voxel occupancy flags use uint8; mesh
// indices use uint32.
type Element interface {
	~float32 | ~uint8 | ~uint32
}

// Shape is the extent of each axis, outermost first.
type Shape []int

// Size returns the number of elements a tensor of this shape holds.
func (s Shape) Size() int {
	if len(s) == 0 {
		return 0
	}
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether both shapes have the same rank and extents.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	return fmt.Sprint([]int(s))
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

// Tensor is a dense array with a fixed shape and row-major layout.
type Tensor[T Element] struct {
	shape   Shape
	strides []int
	data    []T
}

// New allocates a zeroed tensor.
func New[T Element](shape ...int) (*Tensor[T], error) {
	s := Shape(shape)
	if err := validate(s); err != nil {
		return nil, err
	}
	return &Tensor[T]{shape: s.Clone(), strides: strides(s), data: make([]T, s.Size())}, nil
}

// FromData wraps data without copying. len(data) must match the shape.
func FromData[T Element](data []T, shape ...int) (*Tensor[T], error) {
	s := Shape(shape)
	if err := validate(s); err != nil {
		return nil, err
	}
	if len(data) != s.Size() {
		return nil, errors.Errorf("tensor: %d elements do not fill shape %v", len(data), s)
	}
	return &Tensor[T]{shape: s.Clone(), strides: strides(s), data: data}, nil
}

func validate(s Shape) error {
	if len(s) == 0 {
		return errors.New("tensor: rank must be at least 1")
	}
	for i, d := range s {
		if d <= 0 {
			return errors.Errorf("tensor: axis %d has non-positive extent %d", i, d)
		}
	}
	return nil
}

func strides(s Shape) []int {
	st := make([]int, len(s))
	acc := 1
	for i := len(s) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= s[i]
	}
	return st
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor[T]) Shape() Shape { return t.shape.Clone() }

// Rank returns the number of axes.
func (t *Tensor[T]) Rank() int { return len(t.shape) }

// Len returns the number of elements.
func (t *Tensor[T]) Len() int { return len(t.data) }

// Data exposes the backing slice in row-major order.
func (t *Tensor[T]) Data() []T { return t.data }

// Offset returns the flat index of the element at idx. It panics on a
// rank mismatch or out-of-range index, like slice indexing does.
func (t *Tensor[T]) Offset(idx ...int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d indices for rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range [0,%d) on axis %d", v, t.shape[i], i))
		}
		off += v * t.strides[i]
	}
	return off
}

// At returns the element at idx.
func (t *Tensor[T]) At(idx ...int) T { return t.data[t.Offset(idx...)] }

// Set stores v at idx.
func (t *Tensor[T]) Set(v T, idx ...int) { t.data[t.Offset(idx...)] = v }

// Reshape returns a view with a new shape over the same data.
func (t *Tensor[T]) Reshape(shape ...int) (*Tensor[T], error) {
	s := Shape(shape)
	if err := validate(s); err != nil {
		return nil, err
	}
	if s.Size() != len(t.data) {
		return nil, errors.Errorf("tensor: cannot reshape %v into %v", t.shape, s)
	}
	return &Tensor[T]{shape: s.Clone(), strides: strides(s), data: t.data}, nil
}

// Unsqueeze returns a view with a unit axis inserted before axis.
func (t *Tensor[T]) Unsqueeze(axis int) (*Tensor[T], error) {
	if axis < 0 || axis > len(t.shape) {
		return nil, errors.Errorf("tensor: unsqueeze axis %d out of range for rank %d", axis, len(t.shape))
	}
	s := make(Shape, 0, len(t.shape)+1)
	s = append(s, t.shape[:axis]...)
	s = append(s, 1)
	s = append(s, t.shape[axis:]...)
	return t.Reshape(s...)
}

// Squeeze returns a view with the unit axis at axis removed.
func (t *Tensor[T]) Squeeze(axis int) (*Tensor[T], error) {
	if axis < 0 || axis >= len(t.shape) {
		return nil, errors.Errorf("tensor: squeeze axis %d out of range for rank %d", axis, len(t.shape))
	}
	if t.shape[axis] != 1 {
		return nil, errors.Errorf("tensor: cannot squeeze axis %d of extent %d", axis, t.shape[axis])
	}
	s := make(Shape, 0, len(t.shape)-1)
	s = append(s, t.shape[:axis]...)
	s = append(s, t.shape[axis+1:]...)
	return t.Reshape(s...)
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	return &Tensor[T]{
		shape:   t.shape.Clone(),
		strides: append([]int(nil), t.strides...),
		data:    append([]T(nil), t.data...),
	}
}

// Stack joins equally shaped tensors along a new leading axis, in order.
func Stack[T Element](parts []*Tensor[T]) (*Tensor[T], error) {
	if len(parts) == 0 {
		return nil, errors.New("tensor: nothing to stack")
	}
	inner := parts[0].shape
	data := make([]T, 0, len(parts)*inner.Size())
	for i, p := range parts {
		if !p.shape.Equal(inner) {
			return nil, errors.Errorf("tensor: part %d has shape %v, want %v", i, p.shape, inner)
		}
		data = append(data, p.data...)
	}
	shape := append(Shape{len(parts)}, inner...)
	return FromData(data, shape...)
}
