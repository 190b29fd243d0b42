package model

import (
	"fmt"

	"github.com/Brownie44l1/swinvox-api/internal/tensor"
)

// Metadata describes an exported reconstruction network.
type Metadata struct {
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
}

// Contract is the tensor interface a Reconstructor promises:
// input [1, Views, 3, Height, Width] and output [1, 1, Grid, Grid, Grid].
// Views == 0 accepts any number of views.
type Contract struct {
	Views    int `json:"views"`
	Height   int `json:"height"`
	Width    int `json:"width"`
	GridSize int `json:"grid_size"`
}

// InputShape returns the input shape for the given view count.
func (c Contract) InputShape(views int) tensor.Shape {
	return tensor.Shape{1, views, 3, c.Height, c.Width}
}

// OutputShape returns the declared output shape.
func (c Contract) OutputShape() tensor.Shape {
	return tensor.Shape{1, 1, c.GridSize, c.GridSize, c.GridSize}
}

// AcceptsViews reports whether n views satisfy the contract.
func (c Contract) AcceptsViews(n int) bool {
	return n > 0 && (c.Views == 0 || c.Views == n)
}

// ContractFromMetadata derives a contract from exported shapes. A
// non-positive view extent marks a dynamic axis.
func ContractFromMetadata(m Metadata) (Contract, error) {
	in, out := m.InputShape, m.OutputShape
	if len(in) != 5 || in[0] != 1 || in[2] != 3 || in[3] <= 0 || in[4] <= 0 {
		return Contract{}, fmt.Errorf("input shape %v is not [1,N,3,H,W]", in)
	}
	if len(out) != 5 || out[0] != 1 || out[1] != 1 || out[2] <= 0 || out[2] != out[3] || out[3] != out[4] {
		return Contract{}, fmt.Errorf("output shape %v is not [1,1,D,D,D]", out)
	}
	views := int(in[1])
	if views < 0 {
		views = 0
	}
	return Contract{
		Views:    views,
		Height:   int(in[3]),
		Width:    int(in[4]),
		GridSize: int(out[2]),
	}, nil
}
