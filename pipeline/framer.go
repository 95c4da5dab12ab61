package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

// joinTimeout bounds how long Stop waits for the capture loop before the
// device is released anyway.
const joinTimeout = 2 * time.Second

// Framer owns the capture device. It runs an acquisition loop on its own
// goroutine, applies the configured flip/rotation, publishes the newest
// frame through an atomic cell and keeps a bounded history ring. Readers
// never block the loop and the loop never blocks on readers.
type Framer struct {
	svcs    ServicesFactory
	agentID string

	latest atomic.Pointer[model.Frame]
	ring   *frameRing

	seq     uint64
	frames  int64
	skipped int64

	done chan struct{}
}

func NewFramer(svcs ServicesFactory) *Framer {
	return &Framer{
		svcs:    svcs,
		agentID: uuid.NewString(),
		ring:    newFrameRing(svcs.CfgSvc.GetFrameBufferSize()),
	}
}

// Open claims the device and verifies it by reading one frame. Any failure
// here is a DeviceError; there is no pipeline without frames.
func (f *Framer) Open() error {
	if err := f.svcs.CameraSvc.Open(); err != nil {
		return model.DeviceError{Device: f.svcs.CameraSvc.Name(), Inner: err}
	}

	frame, err := f.svcs.CameraSvc.Read()
	if err != nil {
		return model.DeviceError{Device: f.svcs.CameraSvc.Name(), Inner: err}
	}
	f.publish(frame)

	lgr.Logger.Info(
		"framer opened capture device",
		slog.String("agentID", f.agentID),
		slog.String("camera", f.svcs.CameraSvc.Name()),
		slog.Int("width", frame.Width),
		slog.Int("height", frame.Height),
	)
	return nil
}

// Start launches the acquisition loop. The loop exits when canxCtx is
// cancelled and reports its final stats through statsStream.
func (f *Framer) Start(canxCtx context.Context, statsStream chan interface{}) {
	f.done = make(chan struct{})
	go f.loop(canxCtx, statsStream)
}

func (f *Framer) loop(canxCtx context.Context, statsStream chan interface{}) {
	defer close(f.done)

	interval := time.Duration(0)
	if fps := f.svcs.CfgSvc.GetCameraFPS(); fps > 0 {
		interval = time.Second / time.Duration(fps)
	}

	startTime := time.Now().Unix()

	defer func() {
		uptime := time.Now().Unix() - startTime
		fps := 0
		if uptime > 0 {
			fps = int(float64(f.frames) / float64(uptime))
		}
		statsStream <- model.FramerStats{
			AgentID:   f.agentID,
			Camera:    f.svcs.CameraSvc.Name(),
			FPS:       fps,
			Frames:    f.frames,
			Skipped:   f.skipped,
			Evicted:   f.ring.evictedCount(),
			Uptime:    uptime,
			Timestamp: time.Now().Unix(),
		}
	}()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"framer context cancelled",
				slog.String("agentID", f.agentID),
			)
			return

		default:
			frame, err := f.svcs.CameraSvc.Read()
			if err != nil {
				// A single missed read is not fatal. The watchdog reacts
				// if the device stays silent.
				f.skipped++
				f.svcs.MetricsSvc.ReadErrors.Add(1)
				lgr.Logger.Debug(
					"framer skipped a frame",
					slog.String("agentID", f.agentID),
					slog.Any("error", err),
				)
				continue
			}

			f.publish(frame)
			f.frames++
			f.svcs.MetricsSvc.FramesCaptured.Add(1)

			// Pace to the configured target FPS.
			if interval > 0 {
				time.Sleep(interval)
			}
		}
	}
}

// publish stamps, transforms and swaps in a frame as the newest one, then
// appends it to the history ring.
func (f *Framer) publish(frame model.Frame) {
	f.seq++
	frame.Seq = f.seq
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	frame = applyTransforms(frame, f.svcs.CfgSvc.GetCameraFlip(), f.svcs.CfgSvc.GetCameraRotation())

	f.latest.Store(&frame)
	if f.ring.push(frame) {
		f.svcs.MetricsSvc.FramesDropped.Add(1)
	}
}

// LatestCopy returns an independent copy of the newest frame, or false when
// capture has not produced one yet.
func (f *Framer) LatestCopy() (model.Frame, bool) {
	frame := f.latest.Load()
	if frame == nil {
		return model.Frame{}, false
	}
	return frame.Copy(), true
}

// LastFrameAt reports the capture timestamp of the newest frame. The
// watchdog uses it as its liveness probe; zero means nothing captured yet.
func (f *Framer) LastFrameAt() time.Time {
	frame := f.latest.Load()
	if frame == nil {
		return time.Time{}
	}
	return frame.Timestamp
}

// Recent snapshots up to n frames from the history ring, newest last.
// n <= 0 returns everything the ring holds.
func (f *Framer) Recent(n int) []model.Frame {
	frames := f.ring.snapshot()
	if n > 0 && len(frames) > n {
		frames = frames[len(frames)-n:]
	}
	return frames
}

// Stop waits for the loop to drain and releases the device. The wait is
// bounded so a wedged read cannot hold shutdown hostage.
func (f *Framer) Stop() {
	if f.done != nil {
		select {
		case <-f.done:
		case <-time.After(joinTimeout):
			lgr.Logger.Warn(
				"framer loop did not drain in time; releasing device anyway",
				slog.String("agentID", f.agentID),
			)
		}
	}

	if err := f.svcs.CameraSvc.Close(); err != nil {
		lgr.Logger.Error(
			"error releasing capture device",
			slog.String("agentID", f.agentID),
			slog.Any("error", err),
		)
	}
}

// applyTransforms flips first, then rotates, mirroring how the capture
// settings are interpreted.
func applyTransforms(frame model.Frame, flip bool, rotation int) model.Frame {
	if flip {
		frame = flipHorizontal(frame)
	}
	switch rotation {
	case 90:
		frame = rotate90(frame)
	case 180:
		frame = rotate180(frame)
	case 270:
		frame = rotate270(frame)
	}
	return frame
}

func flipHorizontal(f model.Frame) model.Frame {
	out := make([]byte, len(f.Data))
	for y := 0; y < f.Height; y++ {
		row := y * f.Width * 4
		for x := 0; x < f.Width; x++ {
			src := row + x*4
			dst := row + (f.Width-1-x)*4
			copy(out[dst:dst+4], f.Data[src:src+4])
		}
	}
	f.Data = out
	return f
}

func rotate90(f model.Frame) model.Frame {
	out := make([]byte, len(f.Data))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			src := (y*f.Width + x) * 4
			dst := (x*f.Height + (f.Height - 1 - y)) * 4
			copy(out[dst:dst+4], f.Data[src:src+4])
		}
	}
	return model.Frame{Data: out, Width: f.Height, Height: f.Width, Seq: f.Seq, Timestamp: f.Timestamp}
}

func rotate180(f model.Frame) model.Frame {
	out := make([]byte, len(f.Data))
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		src := i * 4
		dst := (n - 1 - i) * 4
		copy(out[dst:dst+4], f.Data[src:src+4])
	}
	f.Data = out
	return f
}

func rotate270(f model.Frame) model.Frame {
	out := make([]byte, len(f.Data))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			src := (y*f.Width + x) * 4
			dst := ((f.Width-1-x)*f.Height + y) * 4
			copy(out[dst:dst+4], f.Data[src:src+4])
		}
	}
	return model.Frame{Data: out, Width: f.Height, Height: f.Width, Seq: f.Seq, Timestamp: f.Timestamp}
}
