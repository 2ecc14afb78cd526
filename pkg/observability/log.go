package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks reports every event as a debug log line. It implements
// PipelineHooks, CacheHooks and HTTPHooks.
type LogHooks struct {
	logger *log.Logger
}

// NewLogHooks returns hooks writing to logger.
func NewLogHooks(logger *log.Logger) *LogHooks {
	return &LogHooks{logger: logger}
}

func (h *LogHooks) OnLoad(_ context.Context, dimension, diagrams int, d time.Duration, err error) {
	h.done("load", err, "dimension", dimension, "diagrams", diagrams, "duration", d)
}

func (h *LogHooks) OnLandscapeStart(_ context.Context, diagrams, width int) {
	h.logger.Debug("landscapes started", "diagrams", diagrams, "width", width)
}

func (h *LogHooks) OnLandscapeComplete(_ context.Context, diagrams int, d time.Duration, err error) {
	h.done("landscapes", err, "diagrams", diagrams, "duration", d)
}

func (h *LogHooks) OnDistanceStart(_ context.Context, diagrams, pairs int, metric string) {
	h.logger.Debug("distances started", "diagrams", diagrams, "pairs", pairs, "metric", metric)
}

func (h *LogHooks) OnDistanceComplete(_ context.Context, diagrams, failures int, d time.Duration, err error) {
	h.done("distances", err, "diagrams", diagrams, "failures", failures, "duration", d)
}

func (h *LogHooks) OnPairFailed(_ context.Context, i, j int, err error) {
	h.logger.Warn("pair failed", "i", i, "j", j, "err", err)
}

func (h *LogHooks) OnDiagramsStart(_ context.Context, clouds, dimension int) {
	h.logger.Debug("diagrams started", "clouds", clouds, "dimension", dimension)
}

func (h *LogHooks) OnDiagramsComplete(_ context.Context, clouds int, d time.Duration, err error) {
	h.done("diagrams", err, "clouds", clouds, "duration", d)
}

func (h *LogHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h *LogHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h *LogHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h *LogHooks) OnRequest(_ context.Context, method, route string) {
	h.logger.Debug("request", "method", method, "route", route)
}

func (h *LogHooks) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	h.logger.Info("response", "method", method, "route", route, "status", status, "duration", d)
}

func (h *LogHooks) done(stage string, err error, keyvals ...any) {
	if err != nil {
		h.logger.Debug(stage+" failed", append(keyvals, "err", err)...)
		return
	}
	h.logger.Debug(stage+" complete", keyvals...)
}

var (
	_ PipelineHooks = (*LogHooks)(nil)
	_ CacheHooks    = (*LogHooks)(nil)
	_ HTTPHooks     = (*LogHooks)(nil)
)
