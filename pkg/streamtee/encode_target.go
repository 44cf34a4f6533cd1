package streamtee

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// targetGOPSeconds: keyframe interval of the rendition encoders.
const targetGOPSeconds = 2

// encodeTarget is the runtime state of one rendition: its segmented
// muxer, the H.264 encoder and the lazily constructed scaler. The scaler
// and its scratch frame are created from the first decoded frame, since
// the source geometry is only known then.
type encodeTarget struct {
	rendition Rendition

	closer *astikit.Closer
	muxer  *astiav.FormatContext

	videoStream *astiav.Stream
	audioStream *astiav.Stream

	encCodec *astiav.Codec
	encCtx   *astiav.CodecContext

	scaler *astiav.SoftwareScaleContext
	scaled *astiav.Frame

	encPacket *astiav.Packet

	stats *Stats
}

// gopSizeForFPS derives the group-of-pictures size from the frame rate:
// roughly one keyframe every targetGOPSeconds.
func gopSizeForFPS(fps float64) int {
	if fps <= 0 {
		fps = 25
	}
	return int(math.Round(fps)) * targetGOPSeconds
}

func (t *encodeTarget) encoderOptions() *astiav.Dictionary {
	d := astiav.NewDictionary()
	if d == nil {
		return nil
	}
	// speed over quality, no added latency, no B-frames: the outputs are
	// consumed live
	d.Set("preset", "veryfast", 0)
	d.Set("tune", "zerolatency", 0)
	d.Set("bf", "0", 0)
	d.Set("g", strconv.Itoa(gopSizeForFPS(t.encCtx.Framerate().Float64())), 0)
	return d
}

func newEncodeTarget(
	ctx context.Context,
	rendition Rendition,
	input *Input,
	decoder *Decoder,
	playlistPath string,
	policy SegmentPolicy,
	stats *Stats,
) (_ *encodeTarget, _err error) {
	t := &encodeTarget{
		rendition: rendition,
		closer:    astikit.NewCloser(),
		stats:     stats,
	}
	defer func() {
		if _err != nil {
			t.closer.Close()
		}
	}()

	muxer, err := astiav.AllocOutputFormatContext(nil, "hls", playlistPath)
	if err != nil {
		return nil, newError(KindStreamIO, "unable to allocate the output context for '%s': %w", playlistPath, err)
	}
	if muxer == nil {
		return nil, newError(KindAlloc, "unable to allocate the output context for '%s'", playlistPath)
	}
	t.muxer = muxer
	t.closer.Add(t.muxer.Free)

	t.encCodec = astiav.FindEncoder(astiav.CodecIDH264)
	if t.encCodec == nil {
		return nil, newError(KindStreamSetup, "unable to find an H.264 encoder")
	}

	t.encCtx = astiav.AllocCodecContext(t.encCodec)
	if t.encCtx == nil {
		return nil, newError(KindAlloc, "unable to allocate the encoder context")
	}
	t.closer.Add(t.encCtx.Free)

	t.encCtx.SetWidth(rendition.Width)
	t.encCtx.SetHeight(rendition.Height)
	if formats := t.encCodec.PixelFormats(); len(formats) > 0 {
		t.encCtx.SetPixelFormat(formats[0])
	} else {
		t.encCtx.SetPixelFormat(astiav.PixelFormatYuv420P)
	}
	t.encCtx.SetSampleAspectRatio(decoder.codecContext.SampleAspectRatio())
	t.encCtx.SetFramerate(input.FrameRate)
	// encoder timebase = inverse of the target frame rate
	t.encCtx.SetTimeBase(input.FrameRate.Invert())
	t.encCtx.SetBitRate(rendition.BitRate)
	if decoder.codecContext.Flags().Has(astiav.CodecContextFlagGlobalHeader) {
		t.encCtx.SetFlags(t.encCtx.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	encOpts := t.encoderOptions()
	if encOpts == nil {
		return nil, newError(KindAlloc, "unable to allocate the encoder options dictionary")
	}
	t.closer.Add(encOpts.Free)
	if err := t.encCtx.Open(t.encCodec, encOpts); err != nil {
		return nil, newError(KindStreamSetup, "unable to open the %s encoder for rendition %s: %w", t.encCodec.Name(), rendition, err)
	}

	t.videoStream = t.muxer.NewStream(t.encCodec)
	if t.videoStream == nil {
		return nil, newError(KindAlloc, "unable to create the output video stream for rendition %s", rendition)
	}
	if err := t.videoStream.CodecParameters().FromCodecContext(t.encCtx); err != nil {
		return nil, newError(KindStreamIO, "unable to fill the output video stream parameters: %w", err)
	}
	t.videoStream.SetTimeBase(t.encCtx.TimeBase())
	t.videoStream.SetAvgFrameRate(input.FrameRate)

	if input.AudioStream != nil {
		t.audioStream = t.muxer.NewStream(nil)
		if t.audioStream == nil {
			return nil, newError(KindAlloc, "unable to create the output audio stream for rendition %s", rendition)
		}
		if err := input.AudioStream.CodecParameters().Copy(t.audioStream.CodecParameters()); err != nil {
			return nil, newError(KindStreamIO, "unable to copy the audio codec parameters: %w", err)
		}
		t.audioStream.CodecParameters().SetCodecTag(0)
		t.audioStream.SetTimeBase(input.AudioStream.TimeBase())
	}

	if !t.muxer.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		ioContext, err := astiav.OpenIOContext(playlistPath, astiav.NewIOContextFlags(astiav.IOContextFlagWrite))
		if err != nil {
			return nil, newError(KindStreamIO, "unable to open '%s' for writing: %w", playlistPath, err)
		}
		t.closer.Add(func() {
			if err := ioContext.Close(); err != nil {
				logger.Errorf(ctx, "unable to close the IO context of '%s': %v", playlistPath, err)
			}
		})
		t.muxer.SetPb(ioContext)
	}

	muxOpts, err := policy.dictionary(segmentPattern(playlistPath))
	if err != nil {
		return nil, err
	}
	t.closer.Add(muxOpts.Free)
	if err := t.muxer.WriteHeader(muxOpts); err != nil {
		return nil, newError(KindStreamIO, "unable to write the header of '%s': %w", playlistPath, err)
	}

	t.encPacket = astiav.AllocPacket()
	if t.encPacket == nil {
		return nil, newError(KindAlloc, "unable to allocate the encoded-packet buffer")
	}
	t.closer.Add(t.encPacket.Free)

	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		logger.Tracef(ctx, "rendition %s muxer options: %s", rendition, spew.Sdump(policy.muxOptions(segmentPattern(playlistPath))))
	}
	logger.Infof(ctx, "rendition %s -> '%s'", rendition, playlistPath)
	return t, nil
}

// ensureScaler constructs the scaler/scratch-frame pair from the first
// observed frame geometry; it is reused for the rest of the session.
func (t *encodeTarget) ensureScaler(ctx context.Context, frame *astiav.Frame) error {
	if t.scaler != nil {
		return nil
	}

	scaler, err := astiav.CreateSoftwareScaleContext(
		frame.Width(), frame.Height(), frame.PixelFormat(),
		t.rendition.Width, t.rendition.Height, t.encCtx.PixelFormat(),
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return newError(KindStreamIO, "unable to create a scaler %dx%d %s -> %s: %w",
			frame.Width(), frame.Height(), frame.PixelFormat(), t.rendition, err)
	}

	scaled := astiav.AllocFrame()
	if scaled == nil {
		scaler.Free()
		return newError(KindAlloc, "unable to allocate the scratch frame for rendition %s", t.rendition)
	}
	scaled.SetWidth(t.rendition.Width)
	scaled.SetHeight(t.rendition.Height)
	scaled.SetPixelFormat(t.encCtx.PixelFormat())
	if err := scaled.AllocBuffer(0); err != nil {
		scaled.Free()
		scaler.Free()
		return newError(KindAlloc, "unable to allocate the scratch frame buffer for rendition %s: %w", t.rendition, err)
	}

	t.scaler = scaler
	t.closer.Add(t.scaler.Free)
	t.scaled = scaled
	t.closer.Add(t.scaled.Free)

	logger.Debugf(ctx, "scaler ready: %dx%d %s -> %s", frame.Width(), frame.Height(), frame.PixelFormat(), t.rendition)
	return nil
}

// encodeFrame scales one decoded frame to the rendition geometry,
// assigns its timestamp (already resolved by the session, in the source
// video timebase) and submits it, draining whatever the encoder is
// willing to emit immediately.
func (t *encodeTarget) encodeFrame(
	ctx context.Context,
	frame *astiav.Frame,
	pts int64,
	srcTimeBase astiav.Rational,
) error {
	if err := t.ensureScaler(ctx, frame); err != nil {
		return err
	}

	// the encoder may still hold references to the scratch buffer
	if err := t.scaled.MakeWritable(); err != nil {
		return newError(KindStreamIO, "unable to make the scratch frame writable: %w", err)
	}
	if err := t.scaler.ScaleFrame(frame, t.scaled); err != nil {
		return newError(KindStreamIO, "unable to scale a frame for rendition %s: %w", t.rendition, err)
	}
	t.scaled.SetPts(astiav.RescaleQ(pts, srcTimeBase, t.encCtx.TimeBase()))

	if err := t.encCtx.SendFrame(t.scaled); err != nil {
		return newError(KindStreamIO, "unable to send a frame to the %s encoder: %w", t.rendition.Name, err)
	}
	t.stats.FramesEncoded.Add(1)
	return t.drain(ctx)
}

// drain writes out every packet the encoder emits without blocking for
// more input.
func (t *encodeTarget) drain(ctx context.Context) error {
	for {
		t.encPacket.Unref()
		err := t.encCtx.ReceivePacket(t.encPacket)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
			return nil
		default:
			return newError(KindStreamIO, "unable to receive a packet from the %s encoder: %w", t.rendition.Name, err)
		}

		t.encPacket.SetStreamIndex(t.videoStream.Index())
		t.encPacket.RescaleTs(t.encCtx.TimeBase(), t.videoStream.TimeBase())
		t.encPacket.SetPos(-1)

		size := t.encPacket.Size()
		if err := t.muxer.WriteInterleavedFrame(t.encPacket); err != nil {
			return newError(KindStreamIO, "unable to write a video packet of rendition %s: %w", t.rendition.Name, err)
		}
		t.stats.BytesWritten.Add(uint64(size))
	}
}

// relayAudio writes one source audio packet into this rendition's output
// unmodified (timestamps rescaled only). The caller hands in a dedicated
// reference; relayAudio may mutate it.
func (t *encodeTarget) relayAudio(
	ctx context.Context,
	packet *astiav.Packet,
	srcTimeBase astiav.Rational,
) error {
	if t.audioStream == nil {
		return nil
	}

	packet.SetStreamIndex(t.audioStream.Index())
	packet.RescaleTs(srcTimeBase, t.audioStream.TimeBase())
	packet.SetPos(-1)

	size := packet.Size()
	if err := t.muxer.WriteInterleavedFrame(packet); err != nil {
		return newError(KindStreamIO, "unable to relay an audio packet to rendition %s: %w", t.rendition.Name, err)
	}
	t.stats.BytesWritten.Add(uint64(size))
	t.stats.PacketsRelayed.Add(1)
	return nil
}

// flush signals "no more input" to the encoder and drains the residual
// packets. Skipping this would lose the frames the codec still buffers.
func (t *encodeTarget) flush(ctx context.Context) error {
	if t.scaler == nil {
		// never saw a frame, nothing is buffered
		return nil
	}
	if err := t.encCtx.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return newError(KindStreamIO, "unable to flush the %s encoder: %w", t.rendition.Name, err)
	}
	return t.drain(ctx)
}

// finish flushes the encoder and finalizes the playlist. It is
// best-effort on error paths: a target that failed mid-write may refuse
// the trailer, which only costs the final playlist update.
func (t *encodeTarget) finish(ctx context.Context) error {
	if err := t.flush(ctx); err != nil {
		return err
	}
	if err := t.muxer.WriteTrailer(); err != nil {
		return newError(KindStreamIO, "unable to write the trailer of rendition %s: %w", t.rendition.Name, err)
	}
	return nil
}

func (t *encodeTarget) close() {
	t.closer.Close()
}
