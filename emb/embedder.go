package emb

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// EmbedderConfig wraps the encoder configuration plus cache settings.
type EmbedderConfig struct {
	Encoder Config
	// CacheDir stores embedded vectors on disk; empty disables the disk
	// cache. ModelID keys cached vectors so switching models invalidates
	// them; it defaults to the model file name.
	CacheDir string
	ModelID  string
}

// Embedder wraps an Encoder with an in-memory and on-disk vector cache. It
// satisfies the engine's Embedder capability.
type Embedder struct {
	enc      *Encoder
	cfg      EmbedderConfig
	mu       sync.RWMutex
	memCache map[string][]float32
}

// NewEmbedder initializes the encoder and prepares the cache directory.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.ModelID == "" && cfg.Encoder.ModelPath != "" {
		cfg.ModelID = filepath.Base(cfg.Encoder.ModelPath)
	}
	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	enc := &Encoder{}
	if err := enc.Init(cfg.Encoder); err != nil {
		return nil, err
	}
	return &Embedder{
		enc:      enc,
		cfg:      cfg,
		memCache: make(map[string][]float32),
	}, nil
}

// Close releases encoder resources.
func (e *Embedder) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc != nil {
		e.enc.Close()
		e.enc = nil
	}
	e.memCache = nil
	return nil
}

// ModelID returns the identifier used for cache keys.
func (e *Embedder) ModelID() string {
	return e.cfg.ModelID
}

// EmbedText embeds a single string with caching.
func (e *Embedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if vec := e.getFromMemory(key); vec != nil {
		return vec, nil
	}
	if vec, err := e.loadFromDisk(key); err == nil {
		e.storeInMemory(key, vec)
		return cloneVector(vec), nil
	}

	e.mu.RLock()
	enc := e.enc
	e.mu.RUnlock()
	if enc == nil {
		return nil, fmt.Errorf("embedder is closed")
	}
	vec, err := enc.Encode(text)
	if err != nil {
		return nil, err
	}
	e.storeInMemory(key, vec)
	_ = e.saveToDisk(key, vec)
	return cloneVector(vec), nil
}

// EmbedTexts embeds a slice of strings sequentially.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *Embedder) cacheKey(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, e.cfg.ModelID)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (e *Embedder) getFromMemory(key string) []float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if vec, ok := e.memCache[key]; ok {
		return cloneVector(vec)
	}
	return nil
}

func (e *Embedder) storeInMemory(key string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.memCache != nil {
		e.memCache[key] = cloneVector(vec)
	}
}

func (e *Embedder) loadFromDisk(key string) ([]float32, error) {
	if e.cfg.CacheDir == "" {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(filepath.Join(e.cfg.CacheDir, key+".bin"))
	if err != nil {
		return nil, err
	}
	return DecodeVector(data)
}

func (e *Embedder) saveToDisk(key string, vec []float32) error {
	if e.cfg.CacheDir == "" {
		return nil
	}
	path := filepath.Join(e.cfg.CacheDir, key+".bin")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, EncodeVector(vec), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// EncodeVector serializes a vector as a little-endian length-prefixed
// float32 array. The same format is used for embedding signatures stored in
// the task database.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(vec)))
	off := 4
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		off += 4
	}
	return buf
}

// DecodeVector parses the EncodeVector format.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("vector blob too small (%d bytes)", len(data))
	}
	length := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) != length*4 {
		return nil, fmt.Errorf("vector blob length mismatch: header %d, payload %d bytes", length, len(data))
	}
	vec := make([]float32, length)
	for i := 0; i < length; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
	}
	return vec, nil
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
