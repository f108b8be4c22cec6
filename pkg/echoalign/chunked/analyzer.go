// Package chunked implements the two-pass analyzer for long recordings. It
// splits the audio into overlapping windows, measures each window with a
// cheap correlator, classifies the offset as constant or drifting, refines
// unreliable windows with a higher-precision method, and aggregates the
// result under a global sanity bound.
//
// Bounding matters here: both the per-window span and the overall analysis
// cap confine the correlation search space. Long files with repeated content
// can otherwise produce a strong correlation peak at a wildly wrong offset.
package chunked

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/align"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/feature"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
)

// Logger is the subset of the module logger the analyzer needs.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Config controls the chunked analysis.
type Config struct {
	ChunkSeconds          float64
	OverlapRatio          float64
	AnalysisCapSeconds    float64
	DriftToleranceSeconds float64
	ConfidenceFloor       float64
	// MaxOffsetSeconds bounds per-chunk and aggregate offsets. Zero means
	// half the chunk span per chunk and half the analyzed span overall.
	MaxOffsetSeconds float64
	// RefineRadiusSeconds is the pass-2 search radius around the anchor
	// offset taken from neighboring reliable chunks.
	RefineRadiusSeconds float64
	Correlation         align.Config
	Feature             feature.Config
	Workers             int
}

// DefaultConfig returns the tuned chunking defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSeconds:          30,
		OverlapRatio:          0.1,
		AnalysisCapSeconds:    300,
		DriftToleranceSeconds: 0.05,
		ConfidenceFloor:       0.5,
		RefineRadiusSeconds:   1.0,
		Correlation:           align.DefaultConfig(),
		Feature:               feature.DefaultConfig(),
	}
}

// Result is the analyzer's final state.
type Result struct {
	Aggregate model.MethodResult
	Drift     model.DriftClass
	Chunks    []model.ChunkResult
}

// Analyzer runs the two-pass pipeline. Stateless across runs.
type Analyzer struct {
	cfg Config
	log Logger
}

// New returns an Analyzer, filling config defaults.
func New(cfg Config, log Logger) *Analyzer {
	def := DefaultConfig()
	if cfg.ChunkSeconds <= 0 {
		cfg.ChunkSeconds = def.ChunkSeconds
	}
	if cfg.OverlapRatio <= 0 || cfg.OverlapRatio >= 1 {
		cfg.OverlapRatio = def.OverlapRatio
	}
	if cfg.AnalysisCapSeconds <= 0 {
		cfg.AnalysisCapSeconds = def.AnalysisCapSeconds
	}
	if cfg.DriftToleranceSeconds <= 0 {
		cfg.DriftToleranceSeconds = def.DriftToleranceSeconds
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	if cfg.RefineRadiusSeconds <= 0 {
		cfg.RefineRadiusSeconds = def.RefineRadiusSeconds
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Analyzer{cfg: cfg, log: log}
}

type window struct {
	index      int
	start, end float64
}

// Run executes PASS1 -> CLASSIFY -> optional PASS2 -> AGGREGATE. The context
// is checked between chunks and between passes so an orchestrator can cancel
// without corrupting state.
func (a *Analyzer) Run(ctx context.Context, master, dub *model.AudioSignal) (*Result, error) {
	span := math.Min(master.Duration(), dub.Duration())
	if span > a.cfg.AnalysisCapSeconds {
		a.log.Debugf("capping analysis span %.1fs -> %.1fs", span, a.cfg.AnalysisCapSeconds)
		span = a.cfg.AnalysisCapSeconds
	}

	windows := a.planWindows(span)
	if len(windows) == 0 {
		return nil, &model.InsufficientAudioError{
			Method:   model.MethodRMSEnvelope,
			Duration: span,
			Minimum:  a.cfg.ChunkSeconds,
		}
	}
	a.log.Infof("chunked analysis: %.1fs span, %d windows of %.0fs", span, len(windows), a.cfg.ChunkSeconds)

	// PASS1_COARSE: cheap envelope correlation per window.
	chunks, err := a.runPass(ctx, master, dub, windows, model.MethodRMSEnvelope, nil)
	if err != nil {
		return nil, err
	}

	// CLASSIFY_DRIFT over reliable chunks.
	drift, spread := a.classify(chunks)
	a.log.Infof("drift classification: %s (spread %.0fms, %d/%d reliable)",
		drift, spread*1000, countReliable(chunks), len(chunks))

	// PASS2_REFINE: re-measure unreliable windows with a higher-precision
	// method, anchored near neighboring reliable offsets so the same
	// false-peak failure cannot recur at finer grain.
	if drift != model.DriftConstant {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		refined, err := a.refine(ctx, master, dub, windows, chunks)
		if err != nil {
			return nil, err
		}
		chunks = refined
		drift, spread = a.classify(chunks)
		a.log.Infof("post-refine classification: %s (spread %.0fms)", drift, spread*1000)
	}

	// AGGREGATE under the global sanity bound.
	return a.aggregate(chunks, drift, span, master.NativeRate())
}

func (a *Analyzer) planWindows(span float64) []window {
	step := a.cfg.ChunkSeconds * (1 - a.cfg.OverlapRatio)
	var windows []window
	for start := 0.0; start+feature.MinDuration <= span; start += step {
		end := start + a.cfg.ChunkSeconds
		if end > span {
			end = span
		}
		windows = append(windows, window{index: len(windows), start: start, end: end})
		if end >= span {
			break
		}
	}
	return windows
}

// runPass measures every window in targets (nil = all) with the given
// method. Windows run concurrently, bounded by cfg.Workers.
func (a *Analyzer) runPass(
	ctx context.Context,
	master, dub *model.AudioSignal,
	windows []window,
	method model.Method,
	anchors map[int]float64,
) ([]model.ChunkResult, error) {

	chunks := make([]model.ChunkResult, len(windows))
	sem := make(chan struct{}, a.cfg.Workers)
	var wg sync.WaitGroup

	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, w window) {
			defer wg.Done()
			defer func() { <-sem }()
			chunks[i] = a.measureWindow(master, dub, w, method, anchors)
		}(i, w)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].StartTime < chunks[j].StartTime })
	return chunks, nil
}

func (a *Analyzer) measureWindow(
	master, dub *model.AudioSignal,
	w window,
	method model.Method,
	anchors map[int]float64,
) model.ChunkResult {

	chunk := model.ChunkResult{Index: w.index, StartTime: w.start, EndTime: w.end}

	maxOffset := a.cfg.MaxOffsetSeconds
	if maxOffset <= 0 {
		maxOffset = 0.5 * (w.end - w.start)
	}

	corrCfg := a.cfg.Correlation
	corrCfg.MaxOffsetSeconds = maxOffset
	if anchors != nil {
		if anchor, ok := anchors[w.index]; ok {
			corrCfg.SearchCenterSeconds = anchor
			corrCfg.SearchRadiusSeconds = a.cfg.RefineRadiusSeconds
		}
	}

	masterWin := sliceSignal(master, w.start, w.end)
	dubWin := sliceSignal(dub, w.start, w.end)

	masterFeat, err := feature.Extract(masterWin, method, a.cfg.Feature)
	if err != nil {
		a.log.Debugf("chunk %d: master extraction failed: %v", w.index, err)
		return chunk
	}
	dubFeat, err := feature.Extract(dubWin, method, a.cfg.Feature)
	if err != nil {
		a.log.Debugf("chunk %d: dub extraction failed: %v", w.index, err)
		return chunk
	}

	res, classification := align.New(corrCfg).Correlate(masterFeat, dubFeat)
	chunk.OffsetSeconds = res.OffsetSeconds
	chunk.Confidence = res.Confidence
	chunk.Prominence = res.PeakProminence
	chunk.Reliable = classification == nil && res.Confidence >= a.cfg.ConfidenceFloor
	if classification != nil {
		a.log.Debugf("chunk %d [%0.fs-%.0fs]: %v", w.index, w.start, w.end, classification)
	}
	return chunk
}

// classify returns CONSTANT_OFFSET when the reliable chunks agree within the
// drift tolerance, DRIFTING otherwise. The spread is the confidence-weighted
// standard deviation of reliable offsets.
func (a *Analyzer) classify(chunks []model.ChunkResult) (model.DriftClass, float64) {
	var offsets, weights []float64
	for _, c := range chunks {
		if c.Reliable {
			offsets = append(offsets, c.OffsetSeconds)
			weights = append(weights, c.Confidence)
		}
	}
	if len(offsets) == 0 {
		return model.DriftUnknown, 0
	}
	if len(offsets) == 1 {
		return model.DriftConstant, 0
	}
	spread := stat.StdDev(offsets, weights)
	if spread <= a.cfg.DriftToleranceSeconds {
		return model.DriftConstant, spread
	}
	return model.DriftDrifting, spread
}

// refine re-runs the unreliable windows with the spectral extractor, each
// anchored to the nearest reliable chunk's offset.
func (a *Analyzer) refine(
	ctx context.Context,
	master, dub *model.AudioSignal,
	windows []window,
	chunks []model.ChunkResult,
) ([]model.ChunkResult, error) {

	anchors := make(map[int]float64)
	var retry []window
	for _, c := range chunks {
		if c.Reliable {
			continue
		}
		if anchor, ok := nearestReliableOffset(chunks, c.Index); ok {
			anchors[c.Index] = anchor
		}
		retry = append(retry, windows[c.Index])
	}
	if len(retry) == 0 {
		return chunks, nil
	}
	a.log.Infof("pass 2: refining %d unreliable chunks", len(retry))

	refined, err := a.runPass(ctx, master, dub, retry, model.MethodSpectral, anchors)
	if err != nil {
		return nil, err
	}

	merged := make([]model.ChunkResult, len(chunks))
	copy(merged, chunks)
	for _, r := range refined {
		if r.Confidence > merged[r.Index].Confidence {
			merged[r.Index] = r
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].StartTime < merged[j].StartTime })
	return merged, nil
}

func nearestReliableOffset(chunks []model.ChunkResult, index int) (float64, bool) {
	bestDist := -1
	var best float64
	for _, c := range chunks {
		if !c.Reliable {
			continue
		}
		dist := c.Index - index
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = c.OffsetSeconds
		}
	}
	return best, bestDist >= 0
}

// aggregate folds the reliable chunks into one MethodResult. Sample offsets
// are expressed at the source's native rate, not the analysis rate.
func (a *Analyzer) aggregate(chunks []model.ChunkResult, drift model.DriftClass, span float64, nativeRate int) (*Result, error) {
	var offsets, weights, proms []float64
	for _, c := range chunks {
		if c.Reliable {
			offsets = append(offsets, c.OffsetSeconds)
			weights = append(weights, c.Confidence)
			proms = append(proms, c.Prominence)
		}
	}
	if len(offsets) == 0 {
		return nil, &model.NoReliablePeakError{
			Method:    model.MethodRMSEnvelope,
			Threshold: a.cfg.ConfidenceFloor,
		}
	}

	offset := stat.Mean(offsets, weights)
	confidence := stat.Mean(weights, nil)

	bound := a.cfg.MaxOffsetSeconds
	if bound <= 0 {
		bound = 0.5 * span
	}
	if math.Abs(offset) > bound {
		return nil, &model.ImplausibleOffsetError{
			Method:        model.MethodRMSEnvelope,
			OffsetSeconds: offset,
			Bound:         bound,
		}
	}

	if drift == model.DriftDrifting {
		// A drifting file has no single true offset; the timeline in
		// Chunks is the real answer. The aggregate is representative only.
		confidence *= 0.75
	}

	return &Result{
		Aggregate: model.MethodResult{
			Method:         model.MethodRMSEnvelope,
			OffsetSeconds:  offset,
			OffsetSamples:  int(math.Round(offset * float64(nativeRate))),
			Confidence:     confidence,
			QualityScore:   confidence,
			PeakProminence: stat.Mean(proms, weights),
			WindowsUsed:    len(offsets),
		},
		Drift:  drift,
		Chunks: chunks,
	}, nil
}

// sliceSignal returns a read-only view of [startSec, endSec).
func sliceSignal(sig *model.AudioSignal, startSec, endSec float64) *model.AudioSignal {
	start := int(startSec * float64(sig.SampleRate))
	end := int(endSec * float64(sig.SampleRate))
	if end > len(sig.Samples) {
		end = len(sig.Samples)
	}
	if start > end {
		start = end
	}
	return &model.AudioSignal{
		Samples:          sig.Samples[start:end],
		SampleRate:       sig.SampleRate,
		NativeSampleRate: sig.NativeSampleRate,
		Channels:         sig.Channels,
	}
}

func countReliable(chunks []model.ChunkResult) int {
	n := 0
	for _, c := range chunks {
		if c.Reliable {
			n++
		}
	}
	return n
}
