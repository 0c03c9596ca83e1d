// Package config holds the renderer's configuration surface (§6 of the
// specification) and a TOML file loader. The loader reuses
// github.com/pelletier/go-toml/v2, the configuration library already
// present in the example pack (agiangrant-ctd), so the config surface
// has a real external file format instead of only Go-literal
// construction.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ShellType selects the console/log shell the renderer process runs
// under. Out-of-scope collaborators (DLT, the system shell) are
// represented here only as configuration values, never implemented.
type ShellType int

const (
	ShellNone ShellType = iota
	ShellConsole
	ShellDefault
)

// LoopMode selects whether a display bundle's loop both updates scene
// state and renders, or only updates (used for headless/offscreen-only
// displays that are driven externally).
type LoopMode int

const (
	LoopUpdateAndRender LoopMode = iota
	LoopUpdateOnly
)

// FrameTimerLimits configures the four budgets exposed by the frame
// timer (internal/frametime): scene-resource upload, resource upload,
// offscreen-buffer render, and an aggregate per-frame ceiling.
type FrameTimerLimits struct {
	SceneResourceUpload time.Duration
	ResourceUpload      time.Duration
	OffscreenBufferRender time.Duration
	Total               time.Duration
}

// PendingFlushLimits configures the per-scene deferred-flush policy
// described in spec §4.5.
type PendingFlushLimits struct {
	ForceApply       uint32
	ForceUnsubscribe uint32
}

// WatchdogConfig configures liveness notification intervals per
// thread kind, and the callback invoked on each render-thread
// iteration. The callback itself is wired at runtime, not loaded from
// file.
type WatchdogConfig struct {
	NotificationIntervalMs map[string]uint32 `toml:"notification_interval_ms"`
}

// DLTConfig configures the (unimplemented, out-of-scope) DLT logging
// sink registration. Kept as plain configuration so a host process can
// still read/validate these fields even though this module never
// opens a DLT connection itself.
type DLTConfig struct {
	DisableApplicationRegistration bool   `toml:"disable_application_registration"`
	ApplicationId                  string `toml:"application_id"`
	ApplicationDescription         string `toml:"application_description"`
}

// TCPConfig configures the (out-of-scope) network transport's
// addressing, carried here only as configuration surface.
type TCPConfig struct {
	InterfaceIP string `toml:"interface_ip"`
	DaemonIP    string `toml:"daemon_ip"`
	DaemonPort  uint16 `toml:"daemon_port"`
}

// RendererConfig is the process-wide configuration surface.
type RendererConfig struct {
	ShellType             ShellType          `toml:"-"`
	ShellTypeName         string             `toml:"shell_type"`
	Watchdog              WatchdogConfig     `toml:"watchdog"`
	DLT                   DLTConfig          `toml:"dlt"`
	PeriodicLogsEnabled   bool               `toml:"periodic_logs_enabled"`
	TCP                   TCPConfig          `toml:"tcp"`
	SystemCompositorEnabled bool             `toml:"system_compositor_enabled"`
	LoopMode              LoopMode           `toml:"-"`
	LoopModeName          string             `toml:"loop_mode"`
	MaximumFramerate      float64            `toml:"maximum_framerate"`
	FrameTimerLimits      FrameTimerLimits   `toml:"-"`
	PendingFlushLimits    PendingFlushLimits `toml:"pending_flush_limits"`
	SkipUnmodifiedBuffers bool               `toml:"skip_unmodified_buffers"`

	// GPUCacheSizeBytes is the resident-bytes budget consulted by the
	// resource uploading manager (C4). Zero means "no caching": every
	// not-in-use resource is unloaded each frame.
	GPUCacheSizeBytes uint64 `toml:"gpu_cache_size_bytes"`

	// KeepEffects preserves effect/shader residency even when the byte
	// budget is exceeded by effects alone (see spec's Open Question).
	KeepEffects bool `toml:"keep_effects"`
}

// DisplayConfig configures a single display bundle.
type DisplayConfig struct {
	Width, Height int    `toml:"width"`
	Title         string `toml:"title"`
	MSAASamples   uint32 `toml:"msaa_samples"`
}

// Default returns the configuration the renderer starts from before
// any file or functional options are applied.
func Default() *RendererConfig {
	return &RendererConfig{
		ShellType:        ShellDefault,
		LoopMode:         LoopUpdateAndRender,
		MaximumFramerate: 60,
		FrameTimerLimits: FrameTimerLimits{
			SceneResourceUpload:   8 * time.Millisecond,
			ResourceUpload:        4 * time.Millisecond,
			OffscreenBufferRender: 4 * time.Millisecond,
			Total:                 16 * time.Millisecond,
		},
		PendingFlushLimits: PendingFlushLimits{
			ForceApply:       60,
			ForceUnsubscribe: 600,
		},
	}
}

// LoadFile reads a TOML configuration file and applies it on top of
// Default(). Unknown shell/loop mode names fail closed rather than
// silently falling back to a default, matching the "unknown versions
// fail closed" discipline applied elsewhere in this module (scene
// file format versioning, §6).
func LoadFile(path string) (*RendererConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.ShellTypeName != "" {
		st, err := parseShellType(cfg.ShellTypeName)
		if err != nil {
			return nil, err
		}
		cfg.ShellType = st
	}
	if cfg.LoopModeName != "" {
		lm, err := parseLoopMode(cfg.LoopModeName)
		if err != nil {
			return nil, err
		}
		cfg.LoopMode = lm
	}

	return cfg, nil
}

func parseShellType(name string) (ShellType, error) {
	switch name {
	case "none":
		return ShellNone, nil
	case "console":
		return ShellConsole, nil
	case "default":
		return ShellDefault, nil
	default:
		return 0, fmt.Errorf("config: unknown shell_type %q", name)
	}
}

func parseLoopMode(name string) (LoopMode, error) {
	switch name {
	case "update_and_render":
		return LoopUpdateAndRender, nil
	case "update_only":
		return LoopUpdateOnly, nil
	default:
		return 0, fmt.Errorf("config: unknown loop_mode %q", name)
	}
}
