// Package model wraps the learned reconstruction network behind a single
// shape-checked call.
package model

import (
	"errors"

	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/tensor"
)

// Reconstructor turns an image tensor [1,N,3,H,W] into occupancy
// probabilities [1,1,D,D,D]. Implementations must be safe for concurrent
// use.
type Reconstructor interface {
	Contract() Contract
	Infer(images *tensor.Tensor[float32]) (*tensor.Tensor[float32], error)
}

// Func adapts a plain function to the Reconstructor interface.
type Func struct {
	C  Contract
	Fn func(images *tensor.Tensor[float32]) (*tensor.Tensor[float32], error)
}

func (f Func) Contract() Contract { return f.C }

func (f Func) Infer(images *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	return f.Fn(images)
}

// Unavailable stands in for a backend that could not be loaded. Every
// call fails with CapabilityUnavailable.
type Unavailable struct {
	C   Contract
	Err error
}

func (u Unavailable) Contract() Contract { return u.C }

func (u Unavailable) Infer(*tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	err := u.Err
	if err == nil {
		err = errors.New("no reconstruction backend loaded")
	}
	return nil, reconerr.Wrap(reconerr.CapabilityUnavailable, "infer", err)
}

// Available reports whether r can serve requests.
func Available(r Reconstructor) bool {
	_, down := r.(Unavailable)
	return r != nil && !down
}
