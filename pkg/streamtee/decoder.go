package streamtee

import (
	"context"
	"errors"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// Decoder wraps the session's single video decoder. Audio is never
// decoded; it travels the pipeline as packets only.
type Decoder struct {
	codec        *astiav.Codec
	codecContext *astiav.CodecContext
	frame        *astiav.Frame
}

func newDecoder(
	ctx context.Context,
	input *Input,
) (_ *Decoder, _err error) {
	d := &Decoder{}
	defer func() {
		if _err != nil {
			d.close()
		}
	}()

	stream := input.VideoStream

	d.codec = astiav.FindDecoder(stream.CodecParameters().CodecID())
	if d.codec == nil {
		return nil, newError(KindStreamSetup, "unable to find a decoder for codec %s", stream.CodecParameters().CodecID())
	}

	d.codecContext = astiav.AllocCodecContext(d.codec)
	if d.codecContext == nil {
		return nil, newError(KindAlloc, "unable to allocate a decoder context")
	}

	if err := stream.CodecParameters().ToCodecContext(d.codecContext); err != nil {
		return nil, newError(KindStreamSetup, "unable to apply codec parameters to the decoder: %w", err)
	}
	d.codecContext.SetFramerate(input.FrameRate)

	if err := d.codecContext.Open(d.codec, nil); err != nil {
		return nil, newError(KindStreamSetup, "unable to open the decoder: %w", err)
	}

	d.frame = astiav.AllocFrame()
	if d.frame == nil {
		return nil, newError(KindAlloc, "unable to allocate the decoded frame")
	}

	logger.Debugf(ctx, "opened %s decoder for video stream #%d", d.codec.Name(), stream.Index())
	return d, nil
}

func (d *Decoder) close() {
	if d.frame != nil {
		d.frame.Free()
		d.frame = nil
	}
	if d.codecContext != nil {
		d.codecContext.Free()
		d.codecContext = nil
	}
}

// decode feeds one packet (nil to flush) and hands every resulting frame
// to onFrame. A codec buffers internally, so one packet yields zero or
// a few frames. Any error ends the session.
func (d *Decoder) decode(
	ctx context.Context,
	packet *astiav.Packet,
	onFrame func(ctx context.Context, frame *astiav.Frame) error,
) error {
	if err := d.codecContext.SendPacket(packet); err != nil {
		return newError(KindStreamIO, "unable to send a packet to the decoder: %w", err)
	}

	for {
		d.frame.Unref()
		err := d.codecContext.ReceiveFrame(d.frame)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
			return nil
		default:
			return newError(KindStreamIO, "unable to receive a frame from the decoder: %w", err)
		}

		if err := onFrame(ctx, d.frame); err != nil {
			return err
		}
	}
}

// flush drains the frames still buffered inside the codec.
func (d *Decoder) flush(
	ctx context.Context,
	onFrame func(ctx context.Context, frame *astiav.Frame) error,
) error {
	return d.decode(ctx, nil, onFrame)
}
