package streamtee

import (
	"context"
	"errors"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/streamtee/streamtee/pkg/xpath"
)

// readRetryDelay is how long the read loop backs off when the demuxer
// reports "try again".
const readRetryDelay = 10 * time.Millisecond

// Config is everything one Controller needs to run sessions.
type Config struct {
	Source SourceConfig

	// OutputPath is the normalized passthrough playlist path; rendition
	// playlists derive from it by suffix.
	OutputPath string

	// ReconnectDelay enables retry after a failed or ended session;
	// zero makes the first outcome final.
	ReconnectDelay time.Duration

	Ladder []Rendition

	CopySegments   SegmentPolicy
	EncodeSegments SegmentPolicy
}

// Outcome says how a session ended when it did not fail.
type Outcome int

const (
	// OutcomeEOF: the source ended on its own.
	OutcomeEOF Outcome = iota
	// OutcomeStopRequested: shutdown was requested and honored.
	OutcomeStopRequested
)

// renditionOutput is one ladder entry as driven by the session;
// satisfied by encodeTarget.
type renditionOutput interface {
	encodeFrame(ctx context.Context, frame *astiav.Frame, pts int64, srcTimeBase astiav.Rational) error
	relayAudio(ctx context.Context, packet *astiav.Packet, srcTimeBase astiav.Rational) error
	finish(ctx context.Context) error
	close()
}

// passthroughOutput is the copy path as driven by the session; satisfied
// by copyTarget.
type passthroughOutput interface {
	writePacket(ctx context.Context, packet *astiav.Packet, srcTimeBase astiav.Rational) error
	finish(ctx context.Context) error
	close()
}

// session is the state of one connect-to-disconnect run. It lives on a
// single goroutine; nothing here is safe for concurrent use.
type session struct {
	cfg   Config
	stats *Stats

	closer      *astikit.Closer
	input       *Input
	decoder     *Decoder
	passthrough passthroughOutput
	targets     []renditionOutput

	readPacket  *astiav.Packet
	relayPacket *astiav.Packet

	// frameIndex counts decoded frames; it doubles as the substitute
	// presentation timestamp (in frame units) when a frame carries none.
	frameIndex int64
}

// runSession runs one full session: open, pump until EOF / stop / error,
// tear down. All native handles are released before it returns, on every
// path.
func runSession(ctx context.Context, cfg Config, stats *Stats) (_ Outcome, _err error) {
	s := &session{
		cfg:    cfg,
		stats:  stats,
		closer: astikit.NewCloser(),
	}
	defer s.closer.Close()

	if err := s.open(ctx); err != nil {
		return OutcomeEOF, err
	}
	return s.pump(ctx)
}

func (s *session) open(ctx context.Context) error {
	input, err := OpenInput(ctx, s.cfg.Source)
	if err != nil {
		return err
	}
	s.input = input
	s.closer.AddWithError(input.Closer.Close)

	decoder, err := newDecoder(ctx, input)
	if err != nil {
		return err
	}
	s.decoder = decoder
	s.closer.Add(decoder.close)

	passthrough, err := newCopyTarget(ctx, input, s.cfg.OutputPath, s.cfg.CopySegments, s.stats)
	if err != nil {
		return err
	}
	s.passthrough = passthrough
	s.closer.Add(passthrough.close)

	for _, rendition := range s.cfg.Ladder {
		target, err := newEncodeTarget(
			ctx,
			rendition,
			input,
			decoder,
			xpath.WithSuffix(s.cfg.OutputPath, "_"+rendition.Name),
			s.cfg.EncodeSegments,
			s.stats,
		)
		if err != nil {
			return err
		}
		s.targets = append(s.targets, target)
		s.closer.Add(target.close)
	}

	s.readPacket = astiav.AllocPacket()
	if s.readPacket == nil {
		return newError(KindAlloc, "unable to allocate the read packet")
	}
	s.closer.Add(s.readPacket.Free)

	s.relayPacket = astiav.AllocPacket()
	if s.relayPacket == nil {
		return newError(KindAlloc, "unable to allocate the relay packet")
	}
	s.closer.Add(s.relayPacket.Free)
	return nil
}

// pump runs the read loop and then finalizes the outputs, whichever way
// the loop ended. A mid-stream fault still gets the encoders flushed and
// the playlists their trailers before the handles are released.
func (s *session) pump(ctx context.Context) (Outcome, error) {
	outcome, err := s.readLoop(ctx)
	return s.finalize(ctx, outcome, err)
}

// finalize flushes and finalizes every output. The loop's own fault
// keeps precedence; a finalization error on an already-failing session
// is only logged.
func (s *session) finalize(ctx context.Context, outcome Outcome, err error) (Outcome, error) {
	if err != nil {
		if finishErr := s.finishAll(ctx); finishErr != nil {
			logger.Warnf(ctx, "unable to finalize the outputs after a session fault: %v", finishErr)
		}
		return outcome, err
	}
	return outcome, s.finishAll(ctx)
}

// readLoop pumps packets until the source ends, a stop is requested or
// something faults. The stop request is polled once per iteration, so
// the packet in flight always completes before the session winds down.
func (s *session) readLoop(ctx context.Context) (Outcome, error) {
	for {
		if ctx.Err() != nil {
			logger.Infof(ctx, "stop requested, finishing the session")
			return OutcomeStopRequested, nil
		}

		s.readPacket.Unref()
		err := s.input.FormatContext.ReadFrame(s.readPacket)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEof):
			logger.Infof(ctx, "the source ended")
			return OutcomeEOF, s.drainAll(ctx)
		case errors.Is(err, astiav.ErrEagain):
			time.Sleep(readRetryDelay)
			continue
		default:
			return OutcomeEOF, newError(KindStreamIO, "unable to read from the source: %w", err)
		}
		s.stats.BytesRead.Add(uint64(s.readPacket.Size()))

		switch s.readPacket.StreamIndex() {
		case s.input.VideoStream.Index():
			if err := s.handleVideoPacket(ctx, s.readPacket); err != nil {
				return OutcomeEOF, err
			}
		case s.audioStreamIndex():
			if err := s.handleAudioPacket(ctx, s.readPacket); err != nil {
				return OutcomeEOF, err
			}
		default:
			// data/subtitle streams are not carried
		}
	}
}

func (s *session) audioStreamIndex() int {
	if s.input.AudioStream == nil {
		return -1
	}
	return s.input.AudioStream.Index()
}

// handleVideoPacket decodes the packet, fans every resulting frame out
// to the renditions in ladder order, then hands the packet itself to the
// passthrough output.
func (s *session) handleVideoPacket(ctx context.Context, packet *astiav.Packet) error {
	if err := s.decoder.decode(ctx, packet, s.onFrame); err != nil {
		return err
	}
	return s.passthrough.writePacket(ctx, packet, s.input.VideoStream.TimeBase())
}

func (s *session) onFrame(ctx context.Context, frame *astiav.Frame) error {
	s.stats.FramesDecoded.Add(1)

	pts := frame.Pts()
	if pts == astiav.NoPtsValue {
		// no usable timestamp anywhere upstream: stamp by frame count
		pts = astiav.RescaleQ(
			s.frameIndex,
			s.input.FrameRate.Invert(),
			s.input.VideoStream.TimeBase(),
		)
	}
	s.frameIndex++

	return s.distributeFrame(ctx, frame, pts, s.input.VideoStream.TimeBase())
}

// distributeFrame hands one decoded frame to every rendition in ladder
// order. The first failing rendition aborts the distribution; the
// session treats that as fatal rather than degrading the ladder.
func (s *session) distributeFrame(
	ctx context.Context,
	frame *astiav.Frame,
	pts int64,
	timeBase astiav.Rational,
) error {
	for _, target := range s.targets {
		if err := target.encodeFrame(ctx, frame, pts, timeBase); err != nil {
			return err
		}
	}
	return nil
}

// handleAudioPacket relays the packet to every rendition output, then to
// the passthrough output. Each write mutates its packet, so the
// renditions get dedicated references.
func (s *session) handleAudioPacket(ctx context.Context, packet *astiav.Packet) error {
	timeBase := s.input.AudioStream.TimeBase()
	for _, target := range s.targets {
		s.relayPacket.Unref()
		if err := s.relayPacket.Ref(packet); err != nil {
			return newError(KindAlloc, "unable to reference an audio packet: %w", err)
		}
		if err := target.relayAudio(ctx, s.relayPacket, timeBase); err != nil {
			return err
		}
	}
	return s.passthrough.writePacket(ctx, packet, timeBase)
}

// drainAll flushes the decoder, pushing the frames it still buffers
// through the renditions.
func (s *session) drainAll(ctx context.Context) error {
	return s.decoder.flush(ctx, s.onFrame)
}

// finishAll flushes every encoder and finalizes every playlist, ladder
// order first, passthrough last. One output failing to finalize must not
// leave the others without their trailers, so the errors are collected
// instead of aborting.
func (s *session) finishAll(ctx context.Context) error {
	var result *multierror.Error
	for _, target := range s.targets {
		result = multierror.Append(result, target.finish(ctx))
	}
	result = multierror.Append(result, s.passthrough.finish(ctx))
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	logger.Infof(
		ctx,
		"session finished: %s read, %s written in total",
		humanize.Bytes(s.stats.BytesRead.Load()),
		humanize.Bytes(s.stats.BytesWritten.Load()),
	)
	return nil
}

// Controller runs sessions and owns the retry decision. Every failure,
// during setup or mid-stream, lands here and gets the same treatment.
type Controller struct {
	cfg   Config
	stats *Stats

	// overridable in tests
	run   func(ctx context.Context, cfg Config, stats *Stats) (Outcome, error)
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewController(cfg Config, stats *Stats) *Controller {
	return &Controller{
		cfg:   cfg,
		stats: stats,
		run:   runSession,
		sleep: sleepCtx,
	}
}

// sleepCtx waits for d unless the context ends first; it reports whether
// the full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Run executes sessions until one ends terminally and returns the
// process exit code. A requested stop is always terminal and always
// successful; with a reconnect delay configured, errors retry after the
// delay and a clean source EOF retries immediately.
func (c *Controller) Run(ctx context.Context) int {
	for {
		c.stats.Sessions.Add(1)
		outcome, err := c.run(ctx, c.cfg, c.stats)

		if outcome == OutcomeStopRequested || ctx.Err() != nil {
			if err != nil {
				logger.Errorf(ctx, "the session ended with an error during shutdown: %v", err)
			}
			return 0
		}

		if err == nil {
			if c.cfg.ReconnectDelay <= 0 {
				return 0
			}
			logger.Infof(ctx, "the source ended, reconnecting")
			continue
		}

		if c.cfg.ReconnectDelay <= 0 {
			logger.Errorf(ctx, "the session failed: %v", err)
			return ExitCode(err)
		}

		logger.Errorf(ctx, "the session failed, reconnecting in %s: %v", c.cfg.ReconnectDelay, err)
		if !c.sleep(ctx, c.cfg.ReconnectDelay) {
			return 0
		}
	}
}
