package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/krau/emotagger/hub"
	ort "github.com/yalue/onnxruntime_go"
)

// PackagedModelFile is the single-file model tried before the bundle layout.
const PackagedModelFile = "model.onnx"

// BundleModelFiles are tried, in order, when no packaged model exists. The
// bundle directory may also carry external weight files next to the graph.
var BundleModelFiles = []string{
	filepath.Join("onnx", "model.onnx"),
	filepath.Join("onnx", "model_quantized.onnx"),
}

// ModelPath finds the model graph in dir.
func ModelPath(dir string) (string, error) {
	packaged := filepath.Join(dir, PackagedModelFile)
	if _, err := os.Stat(packaged); err == nil {
		return packaged, nil
	}
	for _, rel := range BundleModelFiles {
		p := filepath.Join(dir, rel)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: neither %s nor an onnx/ bundle found in %s", ErrModelLoad, PackagedModelFile, dir)
}

var supportedInputs = []string{"input_ids", "attention_mask", "token_type_ids"}

type ONNXLoader struct {
	SeqLen       int
	PoolSize     int
	IntraThreads int
}

func (l ONNXLoader) Load(ctx context.Context, art hub.Artifacts, labels []string) (Model, error) {
	if !ort.IsInitialized() {
		return nil, fmt.Errorf("%w: onnx runtime environment not initialized", ErrModelLoad)
	}
	path, err := ModelPath(art.Dir)
	if err != nil {
		return nil, err
	}
	tok, err := LoadTokenizer(art)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get model input/output info: %w", ErrModelLoad, err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: model has no outputs", ErrModelLoad)
	}
	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if !slices.Contains(supportedInputs, in.Name) {
			return nil, fmt.Errorf("%w: unsupported model input %q", ErrModelLoad, in.Name)
		}
		inputNames = append(inputNames, in.Name)
	}
	outShape, err := outputShape(outputs[0].Dimensions, len(labels))
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create session options: %w", ErrModelLoad, err)
	}
	if l.IntraThreads > 0 {
		if err := opts.SetIntraOpNumThreads(l.IntraThreads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("%w: failed to set intra threads: %w", ErrModelLoad, err)
		}
	}

	m := &onnxModel{
		path:       path,
		tokenizer:  tok,
		seqLen:     l.SeqLen,
		inputNames: inputNames,
		outShape:   outShape,
		opts:       opts,
		pool:       make(chan *session, max(l.PoolSize, 1)),
	}
	for i := range cap(m.pool) {
		s, err := m.newSession(outputs[0].Name)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("%w: failed to create ONNX Runtime session %d: %w", ErrModelLoad, i+1, err)
		}
		m.pool <- s
	}
	slog.Info("ONNX model ready",
		slog.String("path", path),
		slog.Any("inputs", inputNames),
		slog.Any("output_shape", []int64(outShape)),
		slog.Int("sessions", cap(m.pool)))
	return m, nil
}

// outputShape resolves the dynamic batch dimension to one. A dynamic class
// dimension is filled from the label count when one is known.
func outputShape(dims ort.Shape, numLabels int) (ort.Shape, error) {
	shape := slices.Clone(dims)
	for i, d := range shape {
		if d >= 0 {
			continue
		}
		switch {
		case i == 0 && len(shape) > 1:
			shape[i] = 1
		case i == len(shape)-1 && numLabels > 0:
			shape[i] = int64(numLabels)
		default:
			return nil, fmt.Errorf("%w: cannot resolve dynamic output dimension %d of %v", ErrModelLoad, i, dims)
		}
	}
	return shape, nil
}

type session struct {
	session *ort.AdvancedSession
	inputs  map[string]*ort.Tensor[int64]
	output  *ort.Tensor[float32]
}

type onnxModel struct {
	path       string
	tokenizer  Tokenizer
	seqLen     int
	inputNames []string
	outShape   ort.Shape
	opts       *ort.SessionOptions
	pool       chan *session
}

func (m *onnxModel) newSession(outputName string) (*session, error) {
	s := &session{inputs: make(map[string]*ort.Tensor[int64], len(m.inputNames))}
	values := make([]ort.Value, 0, len(m.inputNames))
	for _, name := range m.inputNames {
		t, err := ort.NewEmptyTensor[int64](ort.NewShape(1, int64(m.seqLen)))
		if err != nil {
			s.destroy()
			return nil, fmt.Errorf("failed to create input tensor %s: %w", name, err)
		}
		s.inputs[name] = t
		values = append(values, t)
	}
	out, err := ort.NewEmptyTensor[float32](m.outShape)
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	s.output = out

	s.session, err = ort.NewAdvancedSession(
		m.path,
		m.inputNames,
		[]string{outputName},
		values,
		[]ort.Value{out},
		m.opts,
	)
	if err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

func (s *session) destroy() {
	if s.session != nil {
		s.session.Destroy()
	}
	for _, t := range s.inputs {
		t.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

func (m *onnxModel) Predict(ctx context.Context, text string) (Output, error) {
	var s *session
	select {
	case s = <-m.pool:
	case <-ctx.Done():
		return Output{}, fmt.Errorf("%w: %w", ErrInference, ctx.Err())
	}
	defer func() { m.pool <- s }()

	ids, mask, err := m.tokenizer.Encode(text, m.seqLen)
	if err != nil {
		return Output{}, fmt.Errorf("%w: tokenize: %w", ErrInference, err)
	}
	for name, t := range s.inputs {
		data := t.GetData()
		switch name {
		case "input_ids":
			copy(data, ids)
		case "attention_mask":
			copy(data, mask)
		default:
			clear(data)
		}
	}
	if err := s.session.Run(); err != nil {
		return Output{}, fmt.Errorf("%w: onnx run: %w", ErrInference, err)
	}

	raw := s.output.GetData()
	data := make([]float32, len(raw))
	copy(data, raw)
	return Output{Shape: slices.Clone([]int64(m.outShape)), Data: data}, nil
}

func (m *onnxModel) Close() error {
	var errs []error
	for {
		select {
		case s := <-m.pool:
			s.destroy()
			continue
		default:
		}
		break
	}
	if m.opts != nil {
		errs = append(errs, m.opts.Destroy())
		m.opts = nil
	}
	return errors.Join(errs...)
}
