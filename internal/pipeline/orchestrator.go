package pipeline

import (
	"github.com/Brownie44l1/swinvox-api/internal/model"
	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/tensor"
	"github.com/Brownie44l1/swinvox-api/internal/voxel"
)

// Orchestrator adds the batch axis to a view tensor, calls the
// reconstruction backend and checks both sides of the call against the
// backend's contract.
type Orchestrator struct {
	Backend model.Reconstructor
}

// Prepare turns [N,3,H,W] into [1,N,3,H,W] after checking it against the
// backend's input contract.
func (o Orchestrator) Prepare(views *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	if views == nil || views.Len() == 0 {
		return nil, reconerr.New(reconerr.EmptyBatch, "orchestrate", "no views")
	}
	s := views.Shape()
	if len(s) != 4 || s[1] != 3 {
		return nil, reconerr.Newf(reconerr.ContractViolation, "orchestrate", "view tensor %v is not [N,3,H,W]", s)
	}
	c := o.Backend.Contract()
	if !c.AcceptsViews(s[0]) {
		return nil, reconerr.Newf(reconerr.ContractViolation, "orchestrate", "backend takes %d views, got %d", c.Views, s[0])
	}
	batched, err := views.Unsqueeze(0)
	if err != nil {
		return nil, reconerr.Wrap(reconerr.ContractViolation, "orchestrate", err)
	}
	if want := c.InputShape(s[0]); !batched.Shape().Equal(want) {
		return nil, reconerr.Newf(reconerr.ContractViolation, "orchestrate", "input %v does not match %v", batched.Shape(), want)
	}
	return batched, nil
}

// Run reconstructs occupancy probabilities for one object. The backend
// is not called when the input is empty or malformed.
func (o Orchestrator) Run(views *tensor.Tensor[float32]) (*voxel.Occupancy, error) {
	in, err := o.Prepare(views)
	if err != nil {
		return nil, err
	}
	out, err := o.Backend.Infer(in)
	if err != nil {
		if reconerr.KindOf(err) == reconerr.Unknown {
			err = reconerr.Wrap(reconerr.CapabilityUnavailable, "infer", err)
		}
		return nil, err
	}
	return o.occupancy(out)
}

func (o Orchestrator) occupancy(out *tensor.Tensor[float32]) (*voxel.Occupancy, error) {
	if out == nil {
		return nil, reconerr.New(reconerr.ContractViolation, "orchestrate", "backend returned no tensor")
	}
	want := o.Backend.Contract().OutputShape()
	if !out.Shape().Equal(want) {
		return nil, reconerr.Newf(reconerr.ContractViolation, "orchestrate", "output %v does not match %v", out.Shape(), want)
	}
	d := want[2]
	cube, err := out.Reshape(d, d, d)
	if err != nil {
		return nil, reconerr.Wrap(reconerr.ContractViolation, "orchestrate", err)
	}
	occ, err := voxel.OccupancyFromTensor(cube)
	if err != nil {
		return nil, reconerr.Wrap(reconerr.ContractViolation, "orchestrate", err)
	}
	return occ, nil
}
