package echoalign

import (
	"context"
	"fmt"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign/feature"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/sched"
)

// methodSpec binds one method of the closed enum to how its features are
// produced and how its result ranks. Adding a method means adding a row
// here; there is no string-keyed dispatch anywhere in the pipeline.
type methodSpec struct {
	// SampleAccurate marks the method whose successful result becomes the
	// consensus primary.
	SampleAccurate bool
	// UsesDevice marks methods that need a compute device context.
	UsesDevice bool
	// Extract produces the feature sequence for one signal.
	Extract func(ctx context.Context, s *analysisService, sig *model.AudioSignal, dc *sched.DeviceContext) (*model.FeatureVector, error)
}

func extractStandard(method model.Method) func(ctx context.Context, s *analysisService, sig *model.AudioSignal, dc *sched.DeviceContext) (*model.FeatureVector, error) {
	return func(ctx context.Context, s *analysisService, sig *model.AudioSignal, dc *sched.DeviceContext) (*model.FeatureVector, error) {
		return feature.Extract(sig, method, s.featCfg)
	}
}

func extractEmbedding(ctx context.Context, s *analysisService, sig *model.AudioSignal, dc *sched.DeviceContext) (*model.FeatureVector, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("embedding method enabled but no provider configured")
	}
	return s.embedder.Embed(ctx, sig, dc)
}

// methodRegistry is the closed binding table for every method kind.
var methodRegistry = map[model.Method]methodSpec{
	model.MethodRawWaveform: {SampleAccurate: true, Extract: extractStandard(model.MethodRawWaveform)},
	model.MethodRMSEnvelope: {Extract: extractStandard(model.MethodRMSEnvelope)},
	model.MethodSpectral:    {Extract: extractStandard(model.MethodSpectral)},
	model.MethodMFCC:        {Extract: extractStandard(model.MethodMFCC)},
	model.MethodOnset:       {Extract: extractStandard(model.MethodOnset)},
	model.MethodEmbedding:   {UsesDevice: true, Extract: extractEmbedding},
}
