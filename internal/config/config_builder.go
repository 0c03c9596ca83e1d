package config

import "time"

// RendererConfigOption is a functional option for configuring a
// RendererConfig, matching the engine's With* builder-option idiom.
type RendererConfigOption func(*RendererConfig)

// WithMaximumFramerate sets the render loop's frame rate cap. Values
// <= 0 are not rejected, here or by the loop controller: the loop then
// runs without a frame rate cap.
func WithMaximumFramerate(fps float64) RendererConfigOption {
	return func(c *RendererConfig) { c.MaximumFramerate = fps }
}

// WithLoopMode selects whether display bundles update and render or
// update only.
func WithLoopMode(mode LoopMode) RendererConfigOption {
	return func(c *RendererConfig) { c.LoopMode = mode }
}

// WithGPUCacheSize sets the resident-bytes budget for C4's eviction
// policy. Zero disables caching entirely.
func WithGPUCacheSize(bytes uint64) RendererConfigOption {
	return func(c *RendererConfig) { c.GPUCacheSizeBytes = bytes }
}

// WithKeepEffects preserves shader/effect residency even past budget.
func WithKeepEffects(keep bool) RendererConfigOption {
	return func(c *RendererConfig) { c.KeepEffects = keep }
}

// WithPendingFlushLimits sets the forceApply/forceUnsubscribe deferred
// flush thresholds.
func WithPendingFlushLimits(forceApply, forceUnsubscribe uint32) RendererConfigOption {
	return func(c *RendererConfig) {
		c.PendingFlushLimits = PendingFlushLimits{ForceApply: forceApply, ForceUnsubscribe: forceUnsubscribe}
	}
}

// WithFrameTimerLimits sets the four named frame-timer budgets.
func WithFrameTimerLimits(sceneResourceUpload, resourceUpload, obRender, total time.Duration) RendererConfigOption {
	return func(c *RendererConfig) {
		c.FrameTimerLimits = FrameTimerLimits{
			SceneResourceUpload:   sceneResourceUpload,
			ResourceUpload:        resourceUpload,
			OffscreenBufferRender: obRender,
			Total:                 total,
		}
	}
}

// WithSystemCompositorEnabled sets SystemCompositorEnabled. No component
// of this module reads the field; no IVI system compositor is attached.
func WithSystemCompositorEnabled(enabled bool) RendererConfigOption {
	return func(c *RendererConfig) { c.SystemCompositorEnabled = enabled }
}

// WithSkipUnmodifiedBuffers sets SkipUnmodifiedBuffers. No component of
// this module reads the field; offscreen buffers are not skipped.
func WithSkipUnmodifiedBuffers(skip bool) RendererConfigOption {
	return func(c *RendererConfig) { c.SkipUnmodifiedBuffers = skip }
}

// Apply applies the given options on top of the receiver.
func (c *RendererConfig) Apply(opts ...RendererConfigOption) *RendererConfig {
	for _, opt := range opts {
		opt(c)
	}
	return c
}
