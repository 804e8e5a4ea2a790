package vectorindex

import (
	"container/heap"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/kfsearch/kfsearch/internal/kferrors"
)

// FlatIndex is an exact brute-force inner-product index over L2-normalized
// float32 rows, held in one contiguous slice. Rows are scanned in parallel
// shards; there is no approximation and no graph structure to eliminate a
// CGO-based ANN dependency (see DESIGN.md).
type FlatIndex struct {
	mu     sync.RWMutex
	dim    int
	n      int
	data   []float32 // n*dim, row-major
	closed bool
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// NewFlatIndexFromRows builds an index directly from in-memory rows. Used
// by tests and by offline index-build tooling; the core only ever loads
// a persisted index via Load.
func NewFlatIndexFromRows(dim int, rows [][]float32) (*FlatIndex, error) {
	idx := NewFlatIndex(dim)
	idx.data = make([]float32, 0, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, kferrors.DimMismatch(
				fmt.Sprintf("row %d has %d components, want %d", i, len(row), dim), nil)
		}
		normalizeInPlace(row)
		idx.data = append(idx.data, row...)
	}
	idx.n = len(rows)
	return idx, nil
}

// Dim returns D_m.
func (idx *FlatIndex) Dim() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dim
}

// Len returns N_m.
func (idx *FlatIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.n
}

// Search returns the top-k hits by descending inner product. query must be
// finite and L2-normalized; violations fail with InvalidQueryVector. If
// fewer than k vectors exist, remaining slots are padded with SentinelID
// and NegInf.
func (idx *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, kferrors.BadIndexFile("index is closed", nil)
	}
	if len(query) != idx.dim {
		return nil, kferrors.InvalidQueryVector(
			fmt.Sprintf("query has %d dims, index has %d", len(query), idx.dim), nil)
	}
	if err := validateQueryVector(query); err != nil {
		return nil, err
	}
	if k <= 0 || idx.n == 0 {
		return padHits(nil, k), nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > idx.n {
		workers = idx.n
	}
	if workers < 1 {
		workers = 1
	}
	shardSize := (idx.n + workers - 1) / workers

	partials := make([][]Hit, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * shardSize
		end := start + shardSize
		if end > idx.n {
			end = idx.n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			partials[w] = idx.topKInRange(query, start, end, k)
		}(w, start, end)
	}
	wg.Wait()

	merged := mergeTopK(partials, k)
	return padHits(merged, k), nil
}

// topKInRange scans rows [start,end) and returns the local top-k, sorted
// descending by score with ties broken by ascending id.
func (idx *FlatIndex) topKInRange(query []float32, start, end, k int) []Hit {
	h := &minHeap{}
	heap.Init(h)

	for i := start; i < end; i++ {
		row := idx.data[i*idx.dim : (i+1)*idx.dim]
		score := dot(query, row)
		hit := Hit{ID: uint64(i), Score: score}
		if h.Len() < k {
			heap.Push(h, hit)
		} else if (*h)[0].Score < score || ((*h)[0].Score == score && (*h)[0].ID > hit.ID) {
			(*h)[0] = hit
			heap.Fix(h, 0)
		}
	}

	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out
}

// Reconstruct returns a copy of the stored vector for id.
func (idx *FlatIndex) Reconstruct(id uint64) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, kferrors.BadIndexFile("index is closed", nil)
	}
	if id >= uint64(idx.n) {
		return nil, kferrors.UnknownID(fmt.Sprintf("id %d out of range [0,%d)", id, idx.n), nil)
	}
	row := idx.data[int(id)*idx.dim : (int(id)+1)*idx.dim]
	out := make([]float32, idx.dim)
	copy(out, row)
	return out, nil
}

// Close releases the index's backing memory.
func (idx *FlatIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	idx.data = nil
	return nil
}

type gobIndex struct {
	Dim  int
	N    int
	Data []float32
}

// Save persists the index to path via gob, using an atomic temp-file
// rename so a crash mid-write never leaves a truncated file behind.
func (idx *FlatIndex) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".flatindex-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(gobIndex{Dim: idx.dim, N: idx.n, Data: idx.data}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load reads a persisted index from path and validates it against the
// declared dimension, returning DimMismatch on disagreement.
func Load(path string, wantDim int) (*FlatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kferrors.BadIndexFile(fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	var g gobIndex
	if err := gob.NewDecoder(f).Decode(&g); err != nil {
		return nil, kferrors.BadIndexFile(fmt.Sprintf("decode %s", path), err)
	}
	if g.Dim != wantDim {
		return nil, kferrors.DimMismatch(
			fmt.Sprintf("%s declares dim %d, model wants %d", path, g.Dim, wantDim), nil)
	}
	if len(g.Data) != g.N*g.Dim {
		return nil, kferrors.BadIndexFile(fmt.Sprintf("%s: data length %d inconsistent with N=%d, dim=%d", path, len(g.Data), g.N, g.Dim), nil)
	}
	return &FlatIndex{dim: g.Dim, n: g.N, data: g.Data}, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func normalizeInPlace(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
}

func validateQueryVector(v []float32) error {
	var sumSq float64
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return kferrors.InvalidQueryVector("query contains NaN or Inf", nil)
		}
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return nil // all-zero is a degenerate but valid query per QE contract
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 1e-3 {
		return kferrors.InvalidQueryVector(fmt.Sprintf("query norm %.6f is not unit length", norm), nil)
	}
	return nil
}

func padHits(hits []Hit, k int) []Hit {
	if k <= 0 {
		return []Hit{}
	}
	out := make([]Hit, k)
	copy(out, hits)
	for i := len(hits); i < k; i++ {
		out[i] = Hit{ID: SentinelID, Score: float32(NegInf)}
	}
	return out
}

// mergeTopK merges sorted-descending partial shard results into a single
// top-k list, ties broken by ascending id.
func mergeTopK(partials [][]Hit, k int) []Hit {
	var all []Hit
	for _, p := range partials {
		all = append(all, p...)
	}
	h := &minHeap{}
	heap.Init(h)
	for _, hit := range all {
		if h.Len() < k {
			heap.Push(h, hit)
		} else if (*h)[0].Score < hit.Score || ((*h)[0].Score == hit.Score && (*h)[0].ID > hit.ID) {
			(*h)[0] = hit
			heap.Fix(h, 0)
		}
	}
	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Hit)
	}
	return out
}

// minHeap is a min-heap on (score asc, id desc) so the root is always the
// weakest member of the current top-k, the one to evict on a better hit.
type minHeap []Hit

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].ID > h[j].ID
}
func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)   { *h = append(*h, x.(Hit)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
