package streamtee

import (
	"context"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/streamtee/streamtee/pkg/tsfix"
)

// copyTarget is the passthrough output: the source's video and audio
// packets are repackaged into a segmented playlist without transcoding.
// Timestamps are repaired on the way through, since copied packets keep
// whatever damage the source carries.
type copyTarget struct {
	closer *astikit.Closer
	muxer  *astiav.FormatContext

	// outStreams maps an input stream index to its output stream; nil for
	// input streams that are not carried over.
	outStreams []*astiav.Stream

	cursor *tsfix.Cursor

	stats *Stats
}

func newCopyTarget(
	ctx context.Context,
	input *Input,
	playlistPath string,
	policy SegmentPolicy,
	stats *Stats,
) (_ *copyTarget, _err error) {
	t := &copyTarget{
		closer: astikit.NewCloser(),
		stats:  stats,
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

	inStreams := input.FormatContext.Streams()
	t.outStreams = make([]*astiav.Stream, len(inStreams))
	t.cursor = tsfix.NewCursor(len(inStreams))

	for _, inStream := range []*astiav.Stream{input.VideoStream, input.AudioStream} {
		if inStream == nil {
			continue
		}
		outStream := t.muxer.NewStream(nil)
		if outStream == nil {
			return nil, newError(KindAlloc, "unable to create a passthrough output stream")
		}
		if err := inStream.CodecParameters().Copy(outStream.CodecParameters()); err != nil {
			return nil, newError(KindStreamIO, "unable to copy codec parameters of stream #%d: %w", inStream.Index(), err)
		}
		outStream.CodecParameters().SetCodecTag(0)
		outStream.SetTimeBase(inStream.TimeBase())
		t.outStreams[inStream.Index()] = outStream
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

	logger.Infof(ctx, "passthrough -> '%s'", playlistPath)
	return t, nil
}

// writePacket copies one source packet into the passthrough output. The
// caller hands in a dedicated reference; writePacket may mutate it.
// Packets of streams the target does not carry are dropped silently.
func (t *copyTarget) writePacket(
	ctx context.Context,
	packet *astiav.Packet,
	srcTimeBase astiav.Rational,
) error {
	inIndex := packet.StreamIndex()
	if inIndex < 0 || inIndex >= len(t.outStreams) {
		return nil
	}
	outStream := t.outStreams[inIndex]
	if outStream == nil {
		return nil
	}

	// repair in the source timebase, before rescaling
	pts, dts := t.cursor.Repair(inIndex, packet.Pts(), packet.Dts(), packet.Duration())
	packet.SetPts(pts)
	packet.SetDts(dts)

	packet.SetStreamIndex(outStream.Index())
	packet.RescaleTs(srcTimeBase, outStream.TimeBase())
	packet.SetPos(-1)

	size := packet.Size()
	if err := t.muxer.WriteInterleavedFrame(packet); err != nil {
		return newError(KindStreamIO, "unable to write a passthrough packet: %w", err)
	}
	t.stats.BytesWritten.Add(uint64(size))
	t.stats.PacketsCopied.Add(1)
	return nil
}

// finish finalizes the playlist.
func (t *copyTarget) finish(ctx context.Context) error {
	if err := t.muxer.WriteTrailer(); err != nil {
		return newError(KindStreamIO, "unable to write the passthrough trailer: %w", err)
	}
	return nil
}

func (t *copyTarget) close() {
	t.closer.Close()
}
