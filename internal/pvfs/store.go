// Package pvfs implements the per-video feature store (PVFS): on-demand
// loading of per-(model, video) embedding matrices for the temporal
// aligner, with an LRU cache sized by total float32 entries.
package pvfs

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// Matrix is a row-major (F_v x D_m) feature matrix with L2-normalized rows.
type Matrix struct {
	Rows int
	Cols int
	Data []float32 // Rows*Cols, row-major
}

// Row returns row j as a slice view into the matrix's backing array.
func (m *Matrix) Row(j int) []float32 {
	return m.Data[j*m.Cols : (j+1)*m.Cols]
}

// key identifies a single cached matrix.
type key struct {
	Model   vectorindex.ModelTag
	VideoID string
}

// Store is the on-demand, optionally-caching loader for per-video feature
// matrices. It is safe for concurrent use; a cache miss for a given key is
// deduplicated so concurrent requests for the same matrix trigger exactly
// one disk read.
type Store struct {
	featuresRoot string // root containing features-<model>/features/<video_id>.<ext>
	ext          string

	cache  *lru.Cache[key, *Matrix]
	budget int // total float32 entries allowed in cache
	used   int
	usedMu sync.Mutex
	group  singleflight.Group
}

// Config controls store construction.
type Config struct {
	FeaturesRoot string
	Extension    string // e.g. "npy"; defaults to "bin"
	// CacheBudgetFloats bounds the cache by total float32 entries across
	// all cached matrices. Default is sized for roughly 32 videos at a
	// typical 300 frames x 768 dims.
	CacheBudgetFloats int
}

// DefaultCacheBudgetFloats covers ~32 videos at 300 frames x 768 dims.
const DefaultCacheBudgetFloats = 32 * 300 * 768

// New constructs a Store. The cache itself is sized generously by entry
// count (not bytes); actual eviction against the float budget is enforced
// in onEvicted plus an admission check in Load.
func New(cfg Config) (*Store, error) {
	if cfg.FeaturesRoot == "" {
		return nil, fmt.Errorf("pvfs: FeaturesRoot is required")
	}
	ext := cfg.Extension
	if ext == "" {
		ext = "bin"
	}
	budget := cfg.CacheBudgetFloats
	if budget <= 0 {
		budget = DefaultCacheBudgetFloats
	}

	s := &Store{featuresRoot: cfg.FeaturesRoot, ext: ext, budget: budget}
	cache, err := lru.NewWithEvict[key, *Matrix](1<<20, s.onEvicted)
	if err != nil {
		return nil, fmt.Errorf("pvfs: build cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

func (s *Store) onEvicted(_ key, m *Matrix) {
	s.usedMu.Lock()
	s.used -= m.Rows * m.Cols
	s.usedMu.Unlock()
}

// Load returns the feature matrix for (model, videoID), loading it from
// disk on first access and serving from cache thereafter. Concurrent
// callers for the same key share one disk read.
func (s *Store) Load(model vectorindex.ModelTag, videoID string) (*Matrix, error) {
	k := key{Model: model, VideoID: videoID}

	if m, ok := s.cache.Get(k); ok {
		return m, nil
	}

	v, err, _ := s.group.Do(fmt.Sprintf("%s/%s", model, videoID), func() (any, error) {
		if m, ok := s.cache.Get(k); ok {
			return m, nil
		}
		m, err := s.loadFromDisk(model, videoID)
		if err != nil {
			return nil, err
		}
		s.admit(k, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Matrix), nil
}

func (s *Store) admit(k key, m *Matrix) {
	size := m.Rows * m.Cols
	s.usedMu.Lock()
	for s.used+size > s.budget && s.cache.Len() > 0 {
		s.usedMu.Unlock()
		s.cache.RemoveOldest()
		s.usedMu.Lock()
	}
	s.used += size
	s.usedMu.Unlock()
	s.cache.Add(k, m)
}

func (s *Store) path(model vectorindex.ModelTag, videoID string) string {
	return filepath.Join(s.featuresRoot, fmt.Sprintf("features-%s", model), "features", videoID+"."+s.ext)
}

func (s *Store) loadFromDisk(model vectorindex.ModelTag, videoID string) (*Matrix, error) {
	p := s.path(model, videoID)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, kferrors.UnknownVideo(fmt.Sprintf("no feature file for video %s, model %s", videoID, model), err)
	}
	return decodeMatrix(data)
}

// decodeMatrix parses the store's flat binary layout: two little-endian
// uint32 header fields (rows, cols) followed by rows*cols little-endian
// float32 values, then re-normalizes any row whose norm has drifted by
// more than 1e-5 from 1.0.
func decodeMatrix(data []byte) (*Matrix, error) {
	if len(data) < 8 {
		return nil, kferrors.BadIndexFile("feature file too short for header", nil)
	}
	rows := int(le32(data[0:4]))
	cols := int(le32(data[4:8]))
	want := 8 + rows*cols*4
	if len(data) != want {
		return nil, kferrors.BadIndexFile(
			fmt.Sprintf("feature file size %d does not match header rows=%d cols=%d", len(data), rows, cols), nil)
	}

	m := &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
	off := 8
	for i := range m.Data {
		m.Data[i] = le32f(data[off : off+4])
		off += 4
	}
	for j := 0; j < rows; j++ {
		renormalizeIfDrifted(m.Row(j))
	}
	return m, nil
}

func renormalizeIfDrifted(row []float32) {
	var sumSq float64
	for _, x := range row {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) <= 1e-5 || norm == 0 {
		return
	}
	inv := float32(1.0 / norm)
	for i := range row {
		row[i] *= inv
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le32f(b []byte) float32 {
	return math.Float32frombits(le32(b))
}
