package services

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/sorobansecurityportal/reportpipeline/internal/metrics"
)

// freeOSMemory forces a full collection and returns freed spans to the OS. Large
// report payloads pass through the heap every cycle, so the worker asks for this
// before each cycle when AutoCompactHeap is set.
var freeOSMemory = debug.FreeOSMemory

// reclaimMemory is a hint only. It never fails the cycle.
func reclaimMemory(logCtx *slog.Logger, enabled bool) {
	if !enabled {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logCtx.Warn("Heap reclaim failed.", "panic", r)
		}
	}()

	var before runtime.MemStats
	runtime.ReadMemStats(&before)
	start := time.Now()

	freeOSMemory()
	metrics.HeapReclaims.Add(1)

	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	logCtx.Debug("Heap reclaimed.",
		"duration", time.Since(start).String(),
		"heapReleasedBytes", after.HeapReleased,
		"heapInuseBeforeBytes", before.HeapInuse,
		"heapInuseAfterBytes", after.HeapInuse,
	)
}
