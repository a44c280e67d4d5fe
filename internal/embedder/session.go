package embedder

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/daulet/tokenizers"
	onnxruntime "github.com/yalue/onnxruntime_go"

	ctxerrors "github.com/sandy-sachin7/contextd/internal/errors"
)

const maxSequenceTokens = 512

// session wraps one ONNX Runtime inference session plus its tokenizer. It is
// not safe for concurrent use; the queue in embedder.go guarantees a single
// goroutine ever calls embedBatch.
type session struct {
	rt        *onnxruntime.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	dim       int
}

func newSession(modelPath string, dim int) (*session, error) {
	onnxPath := filepath.Join(modelPath, "model.onnx")
	tokenizerPath := filepath.Join(modelPath, "tokenizer.json")

	tok, err := tokenizers.FromFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	inputs, outputs, err := onnxruntime.GetInputOutputInfo(onnxPath)
	if err != nil {
		tok.Close()
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	inputNames := make([]string, len(inputs))
	for i := range inputs {
		inputNames[i] = inputs[i].Name
	}
	outputNames := make([]string, len(outputs))
	for i := range outputs {
		outputNames[i] = outputs[i].Name
	}

	rt, err := onnxruntime.NewDynamicAdvancedSession(onnxPath, inputNames, outputNames, nil)
	if err != nil {
		tok.Close()
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}

	return &session{rt: rt, tokenizer: tok, dim: dim}, nil
}

// embedBatch runs one forward pass over texts, extracting the CLS-token
// pooled embedding per sequence and L2-normalizing each output vector so
// downstream cosine similarity reduces to a dot product.
func (s *session) embedBatch(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allIDs := make([][]int64, len(texts))
	allMask := make([][]int64, len(texts))
	allTypes := make([][]int64, len(texts))
	maxLen := 0

	for i, text := range texts {
		enc := s.tokenizer.EncodeWithOptions(text, true,
			tokenizers.WithReturnAttentionMask(),
			tokenizers.WithReturnTypeIDs(),
		)

		n := len(enc.IDs)
		if n > maxSequenceTokens {
			slog.Warn("embedder: truncating oversize input", "error", ctxerrors.ErrEmbedOverflow, "tokens", len(enc.IDs), "limit", maxSequenceTokens)
			n = maxSequenceTokens
		}
		ids := make([]int64, n)
		mask := make([]int64, n)
		types := make([]int64, n)
		for j := 0; j < n; j++ {
			ids[j] = int64(enc.IDs[j])
			mask[j] = int64(enc.AttentionMask[j])
			types[j] = int64(enc.TypeIDs[j])
		}

		allIDs[i], allMask[i], allTypes[i] = ids, mask, types
		if n > maxLen {
			maxLen = n
		}
	}

	batchSize := len(texts)
	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatTypes := make([]int64, batchSize*maxLen)
	for i := range texts {
		for j := 0; j < maxLen; j++ {
			idx := i*maxLen + j
			if j < len(allIDs[i]) {
				flatIDs[idx] = allIDs[i][j]
				flatMask[idx] = allMask[i][j]
				flatTypes[idx] = allTypes[i][j]
			}
		}
	}

	shape := onnxruntime.NewShape(int64(batchSize), int64(maxLen))

	idTensor, err := onnxruntime.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer idTensor.Destroy()

	maskTensor, err := onnxruntime.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := onnxruntime.NewTensor(shape, flatTypes)
	if err != nil {
		return nil, fmt.Errorf("token type tensor: %w", err)
	}
	defer typeTensor.Destroy()

	inputs := []onnxruntime.Value{idTensor, maskTensor, typeTensor}
	outputs := []onnxruntime.Value{nil}
	if err := s.rt.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	resultTensor, ok := outputs[0].(*onnxruntime.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	defer resultTensor.Destroy()

	flat := resultTensor.GetData()
	result := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		start := i * maxLen * s.dim
		end := start + s.dim
		if end > len(flat) {
			return nil, fmt.Errorf("output size mismatch: batch %d needs %d elements, got %d", i, end, len(flat))
		}
		vec := make([]float32, s.dim)
		copy(vec, flat[start:end])
		normalize(vec)
		result[i] = vec
	}

	return result, nil
}

func normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range v {
		v[i] /= norm
	}
}

func (s *session) close() error {
	s.tokenizer.Close()
	return s.rt.Destroy()
}
