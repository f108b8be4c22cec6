// Package echoalign detects the time offset between a master reference track
// and a dub candidate, with a confidence score and enough diagnostics to
// explain why the offset was trusted or flagged.
package echoalign

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/align"
	ealaudio "github.com/himanishpuri/EchoAlign/pkg/echoalign/audio"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/chunked"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/consensus"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/feature"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/sched"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/storage"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/verify"
	"github.com/himanishpuri/EchoAlign/pkg/logger"
)

// analysisService is the default implementation of the Service interface.
type analysisService struct {
	config    *Config
	log       Logger
	storage   Storage
	decoder   Decoder
	embedder  EmbeddingProvider
	scheduler *sched.Scheduler
	featCfg   feature.Config
	verifier  *verify.Verifier
}

// NewService builds a Service from the options.
func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.fileErr != nil {
		return nil, cfg.fileErr
	}

	// Set default logger if none provided
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	// Create or use provided storage; no DB path means no persistence.
	var stor Storage
	if cfg.Storage != nil {
		stor = cfg.Storage
	} else if cfg.DBPath != "" {
		db, err := storage.NewDBClientWithPath(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		stor = db
	}

	dec := cfg.Decoder
	if dec == nil {
		dec = ealaudio.NewDecoder(cfg.TempDir, cfg.SampleRate)
	}

	verifyCfg := verify.DefaultConfig()
	verifyCfg.SeverityThreshold = cfg.VerificationSeverityThreshold
	verifyCfg.HardCeilingSeconds = cfg.HardVerificationCeilingSeconds
	verifyCfg.ConfidenceFloor = cfg.ConfidenceThreshold

	return &analysisService{
		config:    cfg,
		log:       cfg.Logger,
		storage:   stor,
		decoder:   dec,
		embedder:  cfg.Embedder,
		scheduler: sched.New(cfg.DeviceCount, cfg.Prober),
		featCfg:   feature.DefaultConfig(),
		verifier:  verify.New(verifyCfg, cfg.Logger),
	}, nil
}

// Analyze decodes both files and runs the detection pipeline.
func (s *analysisService) Analyze(ctx context.Context, masterPath, dubPath string) (*model.ConsensusResult, error) {
	s.log.Infof("Analyzing pair: master=%s dub=%s", masterPath, dubPath)

	// 1. Decode both tracks at the analysis rate.
	master, err := s.decoder.Decode(ctx, masterPath)
	if err != nil {
		return nil, fmt.Errorf("decoding master: %w", err)
	}
	dub, err := s.decoder.Decode(ctx, dubPath)
	if err != nil {
		return nil, fmt.Errorf("decoding dub: %w", err)
	}

	// 2. Run the pipeline on a default device context.
	dc, devErr := s.scheduler.Acquire(0)
	if devErr != nil {
		s.log.Warnf("device acquisition degraded: %v", devErr)
	}
	defer s.scheduler.Release(dc)

	// An AmbiguousResultError still carries a diagnosable result; persist
	// whatever came back before surfacing the error.
	res, err := s.analyzePair(ctx, master, dub, dc)

	// 3. Persist the report if storage is configured.
	s.persist(masterPath, dubPath, res)
	return res, err
}

// AnalyzeSignals runs the pipeline on already-decoded signals. Nothing is
// persisted: the caller owns the provenance of in-memory data.
func (s *analysisService) AnalyzeSignals(ctx context.Context, master, dub *model.AudioSignal) (*model.ConsensusResult, error) {
	dc, devErr := s.scheduler.Acquire(0)
	if devErr != nil {
		s.log.Warnf("device acquisition degraded: %v", devErr)
	}
	defer s.scheduler.Release(dc)
	return s.analyzePair(ctx, master, dub, dc)
}

// analyzePair is the per-job pipeline: methods -> consensus -> verification.
func (s *analysisService) analyzePair(ctx context.Context, master, dub *model.AudioSignal, dc *sched.DeviceContext) (*model.ConsensusResult, error) {
	if master == nil || dub == nil {
		return nil, errors.New("nil signal")
	}

	span := math.Min(master.Duration(), dub.Duration())
	results := make([]model.MethodResult, 0, len(s.config.EnabledMethods)+2)
	failures := make(map[model.Method]error)

	var drift model.DriftClass
	var chunks []model.ChunkResult

	if span > s.config.LongFileThresholdSeconds {
		// Long file: the chunked two-pass analyzer replaces the direct
		// full-span methods. Bounding the analysis span is what keeps
		// repeated content from producing false long-distance peaks.
		agg, err := s.runChunked(ctx, master, dub)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures[model.MethodRMSEnvelope] = err
		} else {
			results = append(results, agg.Aggregate)
			drift = agg.Drift
			chunks = agg.Chunks
		}

		// A capped-span pre-alignment pass backs up the chunked analyzer:
		// offsets larger than a chunk window can hold are still visible in a
		// single correlation over the capped head of both tracks.
		pre, classification := s.preAlign(
			master.Head(s.config.AnalysisCapSeconds),
			dub.Head(s.config.AnalysisCapSeconds),
		)
		if classification != nil && err == nil {
			s.log.Debugf("capped pre-alignment inconclusive: %v", classification)
		}
		if pre != nil {
			results = append(results, *pre)
		}
	} else {
		// Short file: RMS pre-alignment hint plus every enabled method
		// over the full span.
		pre, classification := s.preAlign(master, dub)
		if classification != nil {
			failures[model.MethodRMSEnvelope] = classification
		}
		if pre != nil {
			results = append(results, *pre)
		}

		direct, directFailures, err := s.runDirect(ctx, master, dub, dc)
		if err != nil {
			return nil, err
		}
		results = append(results, direct...)
		for m, e := range directFailures {
			failures[m] = e
		}
	}

	if len(results) == 0 {
		return nil, &model.AnalysisFailedError{Failures: failures}
	}

	// Consensus across everything that produced a measurement.
	consCfg := consensus.DefaultConfig()
	consCfg.ConfidenceFloor = s.config.ConfidenceThreshold
	consCfg.MaxOffsetSeconds = s.config.MaxOffsetSeconds

	res, err := consensus.Aggregate(results, failures, consCfg)
	if err != nil {
		var noCons *model.NoConsensusError
		if !errors.As(err, &noCons) {
			return nil, err
		}
		// Methods ran but none cleared the floor: return a diagnostics-only
		// result flagged unreliable instead of a bare failure.
		s.log.Warnf("no consensus: %v", err)
		res = consensus.Degraded(results, failures, consCfg)
	}
	res.Drift = drift
	res.Chunks = chunks

	// Sample offsets leave the core at the native rate of the source, even
	// though analysis ran at the internal rate. This happens before
	// verification so a result handed back alongside an ambiguity error is
	// already fully populated.
	finalizeSampleOffsets(res, master.NativeRate())

	// Verification pass; a rejected result keeps its diagnostics but is
	// downgraded, never silently accepted.
	if _, err := s.verifier.Verify(ctx, res, master, dub, s.featCfg); err != nil {
		var ambiguous *model.AmbiguousResultError
		if errors.As(err, &ambiguous) {
			return res, err
		}
		return nil, err
	}

	s.log.Infof("Result: offset=%.3fs confidence=%.2f status=%s", res.OffsetSeconds, res.Confidence, res.Status)
	return res, nil
}

// finalizeSampleOffsets converts the headline and every per-method sample
// offset to the native rate. Direct correlations compute samples against the
// analysis rate; callers only ever see native-rate counts.
func finalizeSampleOffsets(res *model.ConsensusResult, nativeRate int) {
	res.OffsetSamples = int(math.Round(res.OffsetSeconds * float64(nativeRate)))
	res.FrameCounts = model.FrameCountsFor(res.OffsetSeconds)
	for i := range res.Methods {
		res.Methods[i].OffsetSamples = int(math.Round(res.Methods[i].OffsetSeconds * float64(nativeRate)))
	}
}

func (s *analysisService) preAlign(master, dub *model.AudioSignal) (*model.MethodResult, error) {
	corrCfg := s.corrConfig()
	pre := align.NewPreAligner(corrCfg, s.config.RMSConfidenceFloor)
	res, classification := pre.Align(master, dub, s.featCfg)
	if res.Method != model.MethodRMSEnvelope {
		// Extraction failed before correlation.
		return nil, classification
	}
	if res.Advisory {
		s.log.Debugf("pre-alignment advisory only: confidence %.2f below floor", res.Confidence)
	}
	return &res, classification
}

// runDirect measures every enabled method over the full span.
func (s *analysisService) runDirect(ctx context.Context, master, dub *model.AudioSignal, dc *sched.DeviceContext) ([]model.MethodResult, map[model.Method]error, error) {
	var results []model.MethodResult
	failures := make(map[model.Method]error)

	for _, method := range s.config.EnabledMethods {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if method == model.MethodRMSEnvelope {
			continue // covered by the pre-aligner
		}
		spec, ok := methodRegistry[method]
		if !ok {
			failures[method] = fmt.Errorf("method %s not registered", method)
			continue
		}
		if spec.UsesDevice && s.embedder == nil {
			failures[method] = fmt.Errorf("method %s enabled but no embedding provider configured", method)
			continue
		}

		masterFeat, err := spec.Extract(ctx, s, master, dc)
		if err != nil {
			failures[method] = err
			continue
		}
		dubFeat, err := spec.Extract(ctx, s, dub, dc)
		if err != nil {
			failures[method] = err
			continue
		}

		res, classification := align.New(s.corrConfig()).Correlate(masterFeat, dubFeat)
		if classification != nil {
			// Keep the penalized measurement as a diagnostic; the
			// confidence floor excludes it from consensus.
			failures[method] = classification
		}
		results = append(results, res)
	}
	return results, failures, nil
}

func (s *analysisService) runChunked(ctx context.Context, master, dub *model.AudioSignal) (*chunked.Result, error) {
	chunkCfg := chunked.DefaultConfig()
	chunkCfg.ChunkSeconds = s.config.ChunkSizeSeconds
	chunkCfg.OverlapRatio = s.config.ChunkOverlapRatio
	chunkCfg.AnalysisCapSeconds = s.config.AnalysisCapSeconds
	chunkCfg.DriftToleranceSeconds = s.config.DriftToleranceSeconds
	chunkCfg.ConfidenceFloor = s.config.ConfidenceThreshold
	chunkCfg.MaxOffsetSeconds = s.config.MaxOffsetSeconds
	chunkCfg.Correlation = s.corrConfig()
	chunkCfg.Feature = s.featCfg

	return chunked.New(chunkCfg, s.log).Run(ctx, master, dub)
}

func (s *analysisService) corrConfig() align.Config {
	return align.Config{
		MaxOffsetSeconds:  s.config.MaxOffsetSeconds,
		ProminenceRaw:     s.config.ProminenceRaw,
		ProminenceFeature: s.config.ProminenceFeature,
	}
}

// AnalyzeBatch distributes jobs across devices round-robin. Jobs assigned to
// the same device run sequentially; devices run in parallel. A failing job
// reports its error in the results without failing the batch.
func (s *analysisService) AnalyzeBatch(ctx context.Context, jobs []BatchJob) []BatchResult {
	byDevice := make(map[int][]BatchJob)
	for _, job := range jobs {
		device := s.scheduler.Assign(job.ID)
		byDevice[device] = append(byDevice[device], job)
	}

	resultCh := make(chan BatchResult, len(jobs))
	var wg sync.WaitGroup
	for device, deviceJobs := range byDevice {
		wg.Add(1)
		go func(device int, deviceJobs []BatchJob) {
			defer wg.Done()
			for _, job := range deviceJobs {
				if err := ctx.Err(); err != nil {
					resultCh <- BatchResult{JobID: job.ID, Device: device, Err: err}
					continue
				}
				resultCh <- s.runBatchJob(ctx, job)
			}
		}(device, deviceJobs)
	}
	wg.Wait()
	close(resultCh)

	results := make([]BatchResult, 0, len(jobs))
	for r := range resultCh {
		results = append(results, r)
	}
	return results
}

func (s *analysisService) runBatchJob(ctx context.Context, job BatchJob) BatchResult {
	dc, devErr := s.scheduler.Acquire(job.ID)
	if devErr != nil {
		// Non-fatal: the job continues on the CPU path.
		s.log.Warnf("job %d: %v, falling back to CPU", job.ID, devErr)
	}
	defer s.scheduler.Release(dc)

	master, err := s.decoder.Decode(ctx, job.MasterPath)
	if err != nil {
		return BatchResult{JobID: job.ID, Device: dc.Device, Err: fmt.Errorf("decoding master: %w", err)}
	}
	dub, err := s.decoder.Decode(ctx, job.DubPath)
	if err != nil {
		return BatchResult{JobID: job.ID, Device: dc.Device, Err: fmt.Errorf("decoding dub: %w", err)}
	}

	res, err := s.analyzePair(ctx, master, dub, dc)
	if err != nil {
		return BatchResult{JobID: job.ID, Device: dc.Device, Result: res, Err: err}
	}
	s.persist(job.MasterPath, job.DubPath, res)
	return BatchResult{JobID: job.ID, Device: dc.Device, Result: res}
}

func (s *analysisService) persist(masterPath, dubPath string, res *model.ConsensusResult) {
	if s.storage == nil || res == nil {
		return
	}
	jobID := uuid.NewString()
	if err := s.storage.SaveReport(jobID, masterPath, dubPath, res); err != nil {
		s.log.Errorf("failed to persist report %s: %v", jobID, err)
	}
}

// Close releases all resources held by the service.
func (s *analysisService) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
