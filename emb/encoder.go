// Package emb runs a sentence-embedding transformer through ONNX Runtime
// and exposes it behind the engine's Embedder capability.
package emb

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// Config locates the ONNX runtime, model and tokenizer artifacts.
type Config struct {
	// OrtDLL is the path to the onnxruntime shared library. Empty means the
	// platform default lookup.
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	// MaxSeqLen caps tokenized input length; longer inputs are truncated.
	MaxSeqLen int
}

// Encoder holds one ONNX session and its tokenizer. The model expects the
// standard BERT-style inputs (input_ids, attention_mask, token_type_ids)
// and yields last_hidden_state; Encode mean-pools it into a single
// L2-normalized vector.
type Encoder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tk        *tokenizer.Tokenizer
	maxSeqLen int
}

// Init loads the tokenizer and creates the ONNX session.
func (e *Encoder) Init(cfg Config) error {
	if cfg.ModelPath == "" {
		return errors.New("model path is required")
	}
	if cfg.TokenizerPath == "" {
		return errors.New("tokenizer path is required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 512
	}

	if cfg.OrtDLL != "" {
		ort.SetSharedLibraryPath(cfg.OrtDLL)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}

	e.session = session
	e.tk = tk
	e.maxSeqLen = cfg.MaxSeqLen
	return nil
}

// Close releases the ONNX session.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		_ = e.session.Destroy()
		e.session = nil
	}
}

// Encode embeds a single text.
func (e *Encoder) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errors.New("encoder is not initialized")
	}

	enc, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	ids := enc.Ids
	mask := enc.AttentionMask
	typeIDs := enc.TypeIds
	if len(ids) > e.maxSeqLen {
		ids = ids[:e.maxSeqLen]
		mask = mask[:e.maxSeqLen]
		typeIDs = typeIDs[:e.maxSeqLen]
	}
	if len(ids) == 0 {
		return nil, errors.New("tokenizer produced no tokens")
	}

	seqLen := int64(len(ids))
	shape := ort.NewShape(1, seqLen)
	idsTensor, err := ort.NewTensor(shape, toInt64(ids))
	if err != nil {
		return nil, err
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, toInt64(mask))
	if err != nil {
		return nil, err
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor(shape, toInt64(typeIDs))
	if err != nil {
		return nil, err
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, fmt.Errorf("run onnx session: %w", err)
	}
	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("unexpected output tensor type")
	}
	defer hidden.Destroy()

	dims := hidden.GetShape()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	return meanPool(hidden.GetData(), mask, int(dims[2])), nil
}

// meanPool averages token vectors weighted by the attention mask and
// L2-normalizes the result.
func meanPool(data []float32, mask []int, hiddenSize int) []float32 {
	out := make([]float32, hiddenSize)
	var count float32
	for tok, m := range mask {
		if m == 0 {
			continue
		}
		base := tok * hiddenSize
		if base+hiddenSize > len(data) {
			break
		}
		for d := 0; d < hiddenSize; d++ {
			out[d] += data[base+d]
		}
		count++
	}
	if count == 0 {
		return out
	}
	var norm float32
	for d := range out {
		out[d] /= count
		norm += out[d] * out[d]
	}
	if norm > 0 {
		inv := 1 / sqrt32(norm)
		for d := range out {
			out[d] *= inv
		}
	}
	return out
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

func toInt64(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
