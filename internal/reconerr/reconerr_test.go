package reconerr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		kind  Kind
		name  string
		fatal bool
	}{
		{InvalidImage, "InvalidImage", false},
		{ShapeMismatch, "ShapeMismatch", false},
		{EmptyBatch, "EmptyBatch", false},
		{InvalidOccupancy, "InvalidOccupancy", false},
		{ContractViolation, "ContractViolation", true},
		{CapabilityUnavailable, "CapabilityUnavailable", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, tc.kind.String())
			assert.Equal(t, tc.fatal, tc.kind.Fatal())
		})
	}
	assert.False(t, Unknown.Fatal())
}

func TestError_Message(t *testing.T) {
	err := AtIndex(InvalidImage, "decode", 2, errors.New("unexpected EOF"))
	assert.Equal(t, "decode: InvalidImage (image 2): unexpected EOF", err.Error())

	err = New(EmptyBatch, "orchestrate", "no views")
	assert.Equal(t, "orchestrate: EmptyBatch: no views", err.Error())
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	cause := errors.New("weights missing")
	err := errors.Wrap(Wrap(CapabilityUnavailable, "load", cause), "startup")

	assert.Equal(t, CapabilityUnavailable, KindOf(err))
	assert.True(t, Is(err, CapabilityUnavailable))
	assert.True(t, IsFatal(err))
	assert.Equal(t, -1, IndexOf(err))
	assert.ErrorIs(t, err, cause)

	shape := errors.Wrap(AtIndex(ShapeMismatch, "crop", 3, cause), "preprocess")
	assert.Equal(t, 3, IndexOf(shape))
	assert.False(t, IsFatal(shape))
}

func TestUnclassified(t *testing.T) {
	assert.Nil(t, Wrap(InvalidImage, "decode", nil))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
	assert.False(t, Is(nil, Unknown))
	assert.Equal(t, -1, IndexOf(errors.New("plain")))
}
