package echoalign

import (
	"context"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/sched"
)

// Service is the public analysis surface.
type Service interface {
	// Analyze decodes both files and detects the offset of dub relative to
	// master.
	Analyze(ctx context.Context, masterPath, dubPath string) (*model.ConsensusResult, error)
	// AnalyzeSignals runs the pipeline on already-decoded signals.
	AnalyzeSignals(ctx context.Context, master, dub *model.AudioSignal) (*model.ConsensusResult, error)
	// AnalyzeBatch runs a batch of jobs in parallel across the configured
	// devices. Per-job errors are reported in the results, never failing
	// the batch.
	AnalyzeBatch(ctx context.Context, jobs []BatchJob) []BatchResult
	Close() error
}

// Decoder converts a media file into an AudioSignal. The core never parses
// containers or codecs itself.
type Decoder interface {
	Decode(ctx context.Context, path string) (*model.AudioSignal, error)
}

// EmbeddingProvider produces embedding features at a known frame hop. It is
// plugged into the same correlator as any other variant. The device context
// is explicit; providers must not keep hidden device state.
type EmbeddingProvider interface {
	Embed(ctx context.Context, signal *model.AudioSignal, dc *sched.DeviceContext) (*model.FeatureVector, error)
}

// Storage persists analysis reports for later review.
type Storage interface {
	SaveReport(jobID, masterPath, dubPath string, res *model.ConsensusResult) error
	Close() error
}

// Logger is the leveled logging interface the library writes to.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

// BatchJob is one master/dub pair in a batch. ID is the stable identifier
// used for round-robin device assignment.
type BatchJob struct {
	ID         uint64
	MasterPath string
	DubPath    string
}

// BatchResult is the outcome of one batch job.
type BatchResult struct {
	JobID  uint64
	Device int
	Result *model.ConsensusResult
	Err    error
}
