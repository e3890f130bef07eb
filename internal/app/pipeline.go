package app

import (
	"bytes"
	"context"
	"time"

	"gocv.io/x/gocv"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detector"
)

// runCamera is the camera-mode detection loop.
//
// Each tick:
// 1. Read a frame from the camera
// 2. Ask the motion gate whether the frame is worth classifying
// 3. Send it to the detector and ingest the results
// 4. Draw the latest boxes and keep the JPEG for the preview stream
func (a *App) runCamera(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(a.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.processFrame(ctx)
		}
	}
}

// processFrame runs one iteration of the camera loop.
func (a *App) processFrame(ctx context.Context) {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		a.metrics.ReadErrors.Add(1)
		a.logger.Debug("read frame", "error", err)
		return
	}
	defer frame.Close()
	a.metrics.FramesRead.Add(1)

	if !a.gate.Allow(frame) {
		a.metrics.FramesSkipped.Add(1)
		a.updatePreview(frame)
		return
	}

	start := time.Now()
	results, err := a.detector.Detect(ctx, frame)
	a.metrics.InferenceLatencyMs.Store(uint64(time.Since(start).Milliseconds()))
	if err != nil {
		if ctx.Err() == nil {
			a.metrics.DetectorErrors.Add(1)
			a.logger.Warn("detect frame", "error", err)
		}
		a.updatePreview(frame)
		return
	}

	a.metrics.FramesProcessed.Add(1)
	a.handleBatch(results)
	a.updatePreview(frame)
}

// updatePreview annotates frame with the latest results and stores it as JPEG.
func (a *App) updatePreview(frame *gocv.Mat) {
	detector.Annotate(frame, a.LastResults())

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		a.logger.Debug("encode preview", "error", err)
		return
	}
	jpeg := bytes.Clone(buf.GetBytes())
	buf.Close()

	a.mu.Lock()
	a.preview = jpeg
	a.mu.Unlock()
}

// runStream consumes the remote detection stream until ctx is cancelled.
// Batches arrive through handleBatch, registered in New.
func (a *App) runStream(ctx context.Context) {
	a.logger.Info("consuming detection stream")
	a.stream.Run(ctx)
	a.metrics.StreamConnected.Store(0)
}
