package clip

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Model runs the two CLIP towers. Images arrive as n stacked CHW tensors.
type Model interface {
	EncodeImages(pixels []float32, n int) ([][]float32, error)
	EncodeText(ids, mask []int64) ([]float32, error)
	Close() error
}

type onnxModel struct {
	visual  *ort.DynamicAdvancedSession
	textual *ort.DynamicAdvancedSession
}

func newONNXModel(cfg ModelConfig) (*onnxModel, error) {
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	visual, err := ort.NewDynamicAdvancedSession(cfg.VisualPath,
		[]string{cfg.ImageInput}, []string{cfg.ImageOutput}, nil)
	if err != nil {
		return nil, fmt.Errorf("load visual model %s: %w", cfg.VisualPath, err)
	}
	textual, err := ort.NewDynamicAdvancedSession(cfg.TextualPath,
		[]string{"input_ids", "attention_mask"}, []string{cfg.TextOutput}, nil)
	if err != nil {
		visual.Destroy()
		return nil, fmt.Errorf("load textual model %s: %w", cfg.TextualPath, err)
	}
	return &onnxModel{visual: visual, textual: textual}, nil
}

func (m *onnxModel) EncodeImages(pixels []float32, n int) ([][]float32, error) {
	input, err := ort.NewTensor(ort.NewShape(int64(n), 3, ImageSize, ImageSize), pixels)
	if err != nil {
		return nil, fmt.Errorf("create pixel tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := m.visual.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("visual inference: %w", err)
	}
	defer outputs[0].Destroy()

	return splitRows(outputs[0], n)
}

func (m *onnxModel) EncodeText(ids, mask []int64) ([]float32, error) {
	shape := ort.NewShape(1, int64(len(ids)))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := m.textual.Run([]ort.Value{idsTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("text inference: %w", err)
	}
	defer outputs[0].Destroy()

	rows, err := splitRows(outputs[0], 1)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func splitRows(v ort.Value, n int) ([][]float32, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", v)
	}
	data := t.GetData()
	if n <= 0 || len(data) == 0 || len(data)%n != 0 {
		return nil, fmt.Errorf("output of %d values cannot hold %d embeddings", len(data), n)
	}
	dim := len(data) / n
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = append([]float32(nil), data[i*dim:(i+1)*dim]...)
	}
	return rows, nil
}

func (m *onnxModel) Close() error {
	var firstErr error
	for _, s := range []*ort.DynamicAdvancedSession{m.visual, m.textual} {
		if err := s.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := ort.DestroyEnvironment(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
