// Package temporal implements the temporal aligner (TA): given a
// multi-sentence query, it finds for each candidate video the best
// monotonically ordered sequence of keyframes, one per sentence, under
// configurable gap constraints.
package temporal

import (
	"context"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/kfsearch/kfsearch/internal/asset"
	"github.com/kfsearch/kfsearch/internal/kferrors"
	"github.com/kfsearch/kfsearch/internal/pvfs"
	"github.com/kfsearch/kfsearch/internal/queryenc"
	"github.com/kfsearch/kfsearch/internal/retrieval"
	"github.com/kfsearch/kfsearch/internal/translate"
	"github.com/kfsearch/kfsearch/internal/vectorindex"
)

// Params are the per-request tunables named in the alignment contract.
type Params struct {
	Model              vectorindex.ModelTag
	K                  int
	TopKPerSentence    int
	MaxCandidateVideos int
	WMin               int
	WMax               int // 0 means unset/unbounded
	AnchorTop          int
	AnchorWindow       int
	AnchorBoost        float32
}

// DefaultParams returns the documented defaults.
func DefaultParams(model vectorindex.ModelTag) Params {
	return Params{
		Model:              model,
		K:                  10,
		TopKPerSentence:    200,
		MaxCandidateVideos: 30,
		WMin:               1,
		WMax:               0,
		AnchorTop:          defaultAnchorTop,
		AnchorWindow:       defaultAnchorWindow,
		AnchorBoost:        defaultAnchorBoost,
	}
}

const (
	defaultAnchorTop    = 5
	defaultAnchorWindow = 2
	defaultAnchorBoost  = float32(0.10)
)

// Result is one video's aligned frame sequence.
type Result struct {
	VideoID string
	Frames  []int // 0-based row indices, ascending, one per sentence
	Score   float32
}

// Response wraps the ranked results with the metadata the spec requires
// to survive an all-candidates-failed outcome.
type Response struct {
	Sentences       []string
	CandidateVideos []string
	Results         []Result
}

// Aligner runs the gap-constrained temporal alignment algorithm.
type Aligner struct {
	re         *retrieval.Engine
	pv         *pvfs.Store
	assets     *asset.Map
	encoders   *queryenc.Registry
	translator translate.Translator
}

// New constructs an Aligner over the engine's shared component handles.
func New(re *retrieval.Engine, pv *pvfs.Store, assets *asset.Map, encoders *queryenc.Registry, translator translate.Translator) *Aligner {
	if translator == nil {
		translator = translate.Passthrough{}
	}
	return &Aligner{re: re, pv: pv, assets: assets, encoders: encoders, translator: translator}
}

// Align runs the full pipeline: sentence segmentation, per-sentence
// retrieval, candidate video selection, per-video DP, and final ranking.
func (a *Aligner) Align(ctx context.Context, query string, p Params) (*Response, error) {
	translated, err := a.translator.Translate(ctx, query)
	if err != nil {
		return nil, err
	}
	sentences := splitSentences(translated)
	if len(sentences) == 0 {
		return &Response{}, nil
	}

	if len(sentences) == 1 {
		return a.singleSentenceFallback(ctx, sentences[0], p)
	}

	enc, err := a.encoders.Get(p.Model)
	if err != nil {
		return nil, err
	}

	sentenceVecs := make([][]float32, len(sentences))
	perSentenceHits := make([][]retrieval.Hit, len(sentences))
	for i, s := range sentences {
		vec, err := enc.EncodeText(ctx, s)
		if err != nil {
			return nil, err
		}
		sentenceVecs[i] = vec
		hits, err := a.re.TextSearchVector(p.Model, vec, p.TopKPerSentence)
		if err != nil {
			return nil, err
		}
		perSentenceHits[i] = hits
	}

	if err := kferrors.FromContext(ctx); err != nil {
		return nil, err
	}

	candidates, hitsByVideo := buildCandidateSet(perSentenceHits, p.MaxCandidateVideos)

	results, err := a.scoreCandidates(ctx, candidates, hitsByVideo, sentenceVecs, p)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].VideoID < results[j].VideoID
	})
	if len(results) > p.K {
		results = results[:p.K]
	}

	return &Response{Sentences: sentences, CandidateVideos: candidates, Results: results}, nil
}

func (a *Aligner) singleSentenceFallback(ctx context.Context, sentence string, p Params) (*Response, error) {
	hits, err := a.re.TextSearch(ctx, p.Model, sentence, p.TopKPerSentence)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var order []string
	byVideo := make(map[string]retrieval.Hit)
	for _, h := range hits {
		vid, err := a.assets.VideoOf(h.ID)
		if err != nil {
			continue
		}
		if !seen[vid] {
			seen[vid] = true
			order = append(order, vid)
			byVideo[vid] = h
		}
	}
	if len(order) > p.K {
		order = order[:p.K]
	}

	results := make([]Result, 0, len(order))
	for _, vid := range order {
		h := byVideo[vid]
		results = append(results, Result{VideoID: vid, Frames: []int{0}, Score: h.Score * 100})
	}
	return &Response{Sentences: []string{sentence}, CandidateVideos: order, Results: results}, nil
}

func splitSentences(text string) []string {
	parts := strings.Split(text, ".")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildCandidateSet scans every sentence's hits in order, admitting
// distinct videos first-seen-wins until maxVideos is reached, and returns
// the per-video list of contributing hits for later anchor bonuses.
func buildCandidateSet(perSentenceHits [][]retrieval.Hit, maxVideos int) ([]string, map[string][][]retrieval.Hit) {
	seen := make(map[string]bool)
	var order []string
	numSentences := len(perSentenceHits)
	perVideoHits := make(map[string][][]retrieval.Hit)

	for i, hits := range perSentenceHits {
		for _, h := range hits {
			// video id is embedded in the asset path's parent directory
			vid := videoIDFromPath(h.AssetPath)
			if vid == "" {
				continue
			}
			if perVideoHits[vid] == nil {
				perVideoHits[vid] = make([][]retrieval.Hit, numSentences)
			}
			perVideoHits[vid][i] = append(perVideoHits[vid][i], h)

			if !seen[vid] {
				if len(order) >= maxVideos {
					continue
				}
				seen[vid] = true
				order = append(order, vid)
			}
		}
	}
	return order, perVideoHits
}

func videoIDFromPath(p string) string {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return ""
	}
	rest := p[:idx]
	idx2 := strings.LastIndexByte(rest, '/')
	if idx2 < 0 {
		return rest
	}
	return rest[idx2+1:]
}

// scoreCandidates fans candidate videos out to worker goroutines: each
// video's similarity matrix construction and DP is independent and the
// natural parallelism boundary.
func (a *Aligner) scoreCandidates(ctx context.Context, candidates []string, hitsByVideo map[string][][]retrieval.Hit, sentenceVecs [][]float32, p Params) ([]Result, error) {
	slots := make([]*Result, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxParallelVideos())

	for i, vid := range candidates {
		i, vid := i, vid
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			if err := kferrors.FromContext(gctx); err != nil {
				return err
			}

			res, ok, err := a.scoreOneVideo(vid, hitsByVideo[vid], sentenceVecs, p)
			if err != nil || !ok {
				return nil // isolate per-video failures, never fail the request
			}
			slots[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, kferrors.Cancelled(err)
	}
	if err := kferrors.FromContext(ctx); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

func maxParallelVideos() int {
	return 8
}

// scoreOneVideo implements Steps 3 and 4 of the alignment algorithm for a
// single candidate video. ok is false when the video must be silently
// skipped (too few frames, load failure, or infeasible DP).
func (a *Aligner) scoreOneVideo(videoID string, hits [][]retrieval.Hit, sentenceVecs [][]float32, p Params) (Result, bool, error) {
	m := len(sentenceVecs)
	matrix, err := a.pv.Load(p.Model, videoID)
	if err != nil {
		return Result{}, false, nil
	}
	if matrix.Rows < m {
		return Result{}, false, nil
	}

	w := buildWeights(matrix, sentenceVecs, hits, videoID, a.assets, p)

	path, raw, ok := runDP(w, matrix.Rows, m, p.WMin, p.WMax)
	if !ok {
		return Result{}, false, nil
	}

	score := raw * (100.0 / float32(m))
	return Result{VideoID: videoID, Frames: path, Score: score}, true, nil
}

// buildWeights computes W_i = S'_i + B_i for every sentence i, using
// gonum for the T_i . V^T similarity matrix multiply.
func buildWeights(matrix *pvfs.Matrix, sentenceVecs [][]float32, hits [][]retrieval.Hit, videoID string, assets *asset.Map, p Params) [][]float32 {
	m := len(sentenceVecs)
	fv := matrix.Rows
	d := matrix.Cols

	t := mat.NewDense(m, d, nil)
	for i, v := range sentenceVecs {
		row := make([]float64, d)
		for j, x := range v {
			row[j] = float64(x)
		}
		t.SetRow(i, row)
	}

	v := mat.NewDense(fv, d, nil)
	for j := 0; j < fv; j++ {
		row := make([]float64, d)
		for k, x := range matrix.Row(j) {
			row[k] = float64(x)
		}
		v.SetRow(j, row)
	}

	var s mat.Dense
	s.Mul(t, v.T()) // m x fv

	w := make([][]float32, m)
	for i := 0; i < m; i++ {
		row := make([]float32, fv)
		for j := 0; j < fv; j++ {
			// The 0.5*x+0.5 shift is redundant before min-max
			// normalization (it cancels out) but harmless.
			row[j] = float32(0.5*s.At(i, j) + 0.5)
		}
		normalizeMinMax(row)
		if i < len(hits) {
			applyAnchorBonus(row, hits[i], videoID, assets, p)
		}
		w[i] = row
	}
	return w
}

func normalizeMinMax(row []float32) {
	if len(row) == 0 {
		return
	}
	a, b := row[0], row[0]
	for _, x := range row {
		if x < a {
			a = x
		}
		if x > b {
			b = x
		}
	}
	if b-a < 1e-6 {
		for i := range row {
			row[i] = 0
		}
		return
	}
	for i := range row {
		row[i] = (row[i] - a) / (b - a)
	}
}

// applyAnchorBonus adds B_i, a triangular-window bonus around the row
// index of each of the sentence's top anchor hits for this video.
// Overlapping windows take the max bonus at each row, not the sum, then
// that combined bonus is added to S'_i once.
func applyAnchorBonus(row []float32, hits []retrieval.Hit, videoID string, assets *asset.Map, p Params) {
	top, window, boost := p.AnchorTop, p.AnchorWindow, p.AnchorBoost
	if top <= 0 {
		top = defaultAnchorTop
	}
	if window <= 0 {
		window = defaultAnchorWindow
	}
	if boost <= 0 {
		boost = defaultAnchorBoost
	}

	n := top
	if len(hits) < n {
		n = len(hits)
	}
	bonus := make([]float32, len(row))
	for _, h := range hits[:n] {
		d, err := assets.Describe(h.ID)
		if err != nil {
			continue
		}
		if d.VideoID != videoID {
			continue
		}
		j := d.FrameNo - 1
		for t := j - window; t <= j+window; t++ {
			if t < 0 || t >= len(row) {
				continue
			}
			bump := boost * (1 - float32(abs(t-j))/float32(window+1))
			if bump > bonus[t] {
				bonus[t] = bump
			}
		}
	}
	for t := range row {
		row[t] += bonus[t]
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

const negInf = float32(math.Inf(-1))
const sentinel = -1

// runDP performs the backward gap-constrained recursion and reconstructs
// the optimal path. ok is false when no feasible path exists.
func runDP(w [][]float32, fv, m, wMin, wMax int) ([]int, float32, bool) {
	if wMax <= 0 {
		wMax = fv // effectively unbounded
	}

	score := make([][]float32, m)
	back := make([][]int, m)
	for t := range score {
		score[t] = make([]float32, fv)
		back[t] = make([]int, fv)
		for j := range back[t] {
			back[t][j] = sentinel
		}
	}

	copy(score[m-1], w[m-1])

	for t := m - 2; t >= 0; t-- {
		bestNext, bestNextIdx := slidingWindowMax(score[t+1], wMin, wMax)
		for j := 0; j < fv; j++ {
			if bestNextIdx[j] == sentinel {
				score[t][j] = negInf
				back[t][j] = sentinel
				continue
			}
			score[t][j] = w[t][j] + bestNext[j]
			back[t][j] = bestNextIdx[j]
		}
	}

	i1 := argmax(score[0])
	if i1 < 0 || score[0][i1] == negInf {
		return nil, 0, false
	}

	path := make([]int, m)
	path[0] = i1
	for t := 0; t < m-1; t++ {
		next := back[t][path[t]]
		if next == sentinel {
			return nil, 0, false
		}
		path[t+1] = next
	}
	return path, score[0][i1], true
}

// slidingWindowMax returns, for every j, the max of nextScore[j'] over
// j' with (j' - j) in [wMin, wMax], and the argmax index (sentinel if
// none feasible). O(F_v) via a monotonic deque.
func slidingWindowMax(nextScore []float32, wMin, wMax int) ([]float32, []int) {
	n := len(nextScore)
	best := make([]float32, n)
	bestIdx := make([]int, n)

	type entry struct {
		idx int
		val float32
	}
	deque := make([]entry, 0, n)
	lo, hi := 0, -1 // window bounds over j' already pushed

	for j := 0; j < n; j++ {
		// admit all j' up to j + wMax
		for hi+1 < n && hi+1 <= j+wMax {
			hi++
			for len(deque) > 0 && deque[len(deque)-1].val <= nextScore[hi] {
				deque = deque[:len(deque)-1]
			}
			deque = append(deque, entry{idx: hi, val: nextScore[hi]})
		}
		// evict j' below j + wMin
		minFeasible := j + wMin
		for len(deque) > 0 && deque[0].idx < minFeasible {
			deque = deque[1:]
		}
		_ = lo
		if len(deque) == 0 {
			best[j] = negInf
			bestIdx[j] = sentinel
			continue
		}
		best[j] = deque[0].val
		bestIdx[j] = deque[0].idx
	}
	return best, bestIdx
}

func argmax(v []float32) int {
	best := -1
	var bestVal float32
	for i, x := range v {
		if best == -1 || x > bestVal {
			best = i
			bestVal = x
		}
	}
	return best
}
