package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/swinvox-api/internal/reconerr"
	"github.com/Brownie44l1/swinvox-api/internal/tensor"
)

// ONNXReconstructor runs an exported network through onnxruntime. The
// graph must have static shapes; input and output tensors are allocated
// once and runs are serialized.
type ONNXReconstructor struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	contract     Contract
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// LoadMetadata reads the shapes and tensor names exported with a model.
func LoadMetadata(path string) (Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	return metadata, nil
}

// NewONNXReconstructor loads the graph at modelPath. libraryPath, when
// set, points at the onnxruntime shared library. Failures are
// CapabilityUnavailable.
func NewONNXReconstructor(modelPath, metadataPath, libraryPath string) (*ONNXReconstructor, error) {
	r, err := newONNXReconstructor(modelPath, metadataPath, libraryPath)
	if err != nil {
		return nil, reconerr.Wrap(reconerr.CapabilityUnavailable, "load model", err)
	}
	return r, nil
}

func newONNXReconstructor(modelPath, metadataPath, libraryPath string) (*ONNXReconstructor, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	contract, err := ContractFromMetadata(metadata)
	if err != nil {
		return nil, err
	}
	if contract.Views == 0 {
		return nil, fmt.Errorf("model input has a dynamic view axis; export with a fixed view count")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("failed to find model: %w", err)
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.WithFields(log.Fields{
		"model":  modelPath,
		"input":  metadata.InputShape,
		"output": metadata.OutputShape,
	}).Info("[Model] Loaded reconstruction network")

	return &ONNXReconstructor{
		session:      session,
		Metadata:     metadata,
		contract:     contract,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (r *ONNXReconstructor) Contract() Contract { return r.contract }

// Infer copies images into the session input, runs the graph and returns
// a copy of the output.
func (r *ONNXReconstructor) Infer(images *tensor.Tensor[float32]) (*tensor.Tensor[float32], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, reconerr.New(reconerr.CapabilityUnavailable, "infer", "session closed")
	}
	in := r.inputTensor.GetData()
	if len(in) != images.Len() {
		return nil, reconerr.Newf(reconerr.ContractViolation, "infer", "input has %d values, session expects %d", images.Len(), len(in))
	}
	copy(in, images.Data())

	if err := r.session.Run(); err != nil {
		return nil, reconerr.Wrap(reconerr.CapabilityUnavailable, "infer", fmt.Errorf("inference failed: %w", err))
	}

	out := append([]float32(nil), r.outputTensor.GetData()...)
	shape := make([]int, len(r.Metadata.OutputShape))
	for i, d := range r.Metadata.OutputShape {
		shape[i] = int(d)
	}
	t, err := tensor.FromData(out, shape...)
	if err != nil {
		return nil, reconerr.Wrap(reconerr.ContractViolation, "infer", err)
	}
	return t, nil
}

// Close releases the session and the onnxruntime environment. It returns
// the first failure but releases everything regardless.
func (r *ONNXReconstructor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if r.inputTensor != nil {
		keep(r.inputTensor.Destroy())
		r.inputTensor = nil
	}
	if r.outputTensor != nil {
		keep(r.outputTensor.Destroy())
		r.outputTensor = nil
	}
	if r.session != nil {
		keep(r.session.Destroy())
		r.session = nil
		keep(ort.DestroyEnvironment())
	}
	if first != nil {
		return fmt.Errorf("onnx close: %w", first)
	}
	return nil
}
