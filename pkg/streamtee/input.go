package streamtee

import (
	"context"
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// network timeouts passed to the demuxer, in microseconds
const ioTimeoutUsec = "5000000"

// Input owns the demuxer of one session's source plus the selected
// streams. AudioStream is nil when the source has no audio.
type Input struct {
	*astikit.Closer
	*astiav.FormatContext

	VideoStream *astiav.Stream
	AudioStream *astiav.Stream

	// FrameRate is the demuxer's estimate for the selected video stream.
	FrameRate astiav.Rational
}

// SourceConfig describes how to open the source.
type SourceConfig struct {
	URL string

	// ForceTCP switches RTSP-family sources to the reliable transport.
	ForceTCP bool
}

func isRTSP(url string) bool {
	return strings.HasPrefix(url, "rtsp://") || strings.HasPrefix(url, "rtsps://")
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func (cfg SourceConfig) options() []muxOption {
	opts := []muxOption{
		// bounded blocking I/O on every protocol
		{"rw_timeout", ioTimeoutUsec},
		// synthesize missing presentation timestamps in the demuxer
		{"fflags", "+genpts"},
	}
	if isRTSP(cfg.URL) {
		opts = append(opts, muxOption{"stimeout", ioTimeoutUsec})
		if cfg.ForceTCP {
			opts = append(opts, muxOption{"rtsp_transport", "tcp"})
		}
	}
	if isHTTP(cfg.URL) {
		// segment/HTTP-family sources reconnect on drop by themselves,
		// with a bounded backoff
		opts = append(opts,
			muxOption{"reconnect", "1"},
			muxOption{"reconnect_streamed", "1"},
			muxOption{"reconnect_delay_max", "5"},
		)
	}
	return opts
}

// OpenInput opens and probes the source and selects the video and
// (optional) audio stream. On failure all acquired handles are released
// before returning.
func OpenInput(
	ctx context.Context,
	cfg SourceConfig,
) (_ *Input, _err error) {
	if cfg.URL == "" {
		return nil, newError(KindInputOpen, "the input URL is empty")
	}

	input := &Input{
		Closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			input.Closer.Close()
		}
	}()

	input.FormatContext = astiav.AllocFormatContext()
	if input.FormatContext == nil {
		return nil, newError(KindAlloc, "unable to allocate a format context")
	}
	input.Closer.Add(input.FormatContext.Free)

	dict := astiav.NewDictionary()
	if dict == nil {
		return nil, newError(KindAlloc, "unable to allocate the input options dictionary")
	}
	input.Closer.Add(dict.Free)
	for _, opt := range cfg.options() {
		logger.Debugf(ctx, "input option '%s' = '%s'", opt.Key, opt.Value)
		dict.Set(opt.Key, opt.Value, 0)
	}

	if err := input.FormatContext.OpenInput(cfg.URL, nil, dict); err != nil {
		return nil, newError(KindInputOpen, "unable to open input '%s': %w", cfg.URL, err)
	}
	input.Closer.Add(input.FormatContext.CloseInput)

	if err := input.FormatContext.FindStreamInfo(nil); err != nil {
		return nil, newError(KindStreamSetup, "unable to get stream info of '%s': %w", cfg.URL, err)
	}

	for _, stream := range input.FormatContext.Streams() {
		switch stream.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if input.VideoStream == nil {
				input.VideoStream = stream
			}
		case astiav.MediaTypeAudio:
			if input.AudioStream == nil {
				input.AudioStream = stream
			}
		}
	}
	if input.VideoStream == nil {
		return nil, &Error{Kind: KindStreamSetup, Err: ErrNoVideoStream}
	}

	input.FrameRate = input.FormatContext.GuessFrameRate(input.VideoStream, nil)
	if input.FrameRate.Num() <= 0 || input.FrameRate.Den() <= 0 {
		logger.Warnf(ctx, "the demuxer could not estimate the frame rate, assuming 25 fps")
		input.FrameRate = astiav.NewRational(25, 1)
	}

	logger.Infof(
		ctx,
		"opened '%s': video stream #%d (%v fps), audio stream: %s",
		cfg.URL,
		input.VideoStream.Index(),
		input.FrameRate.Float64(),
		audioStreamDescription(input.AudioStream),
	)
	return input, nil
}

func audioStreamDescription(stream *astiav.Stream) string {
	if stream == nil {
		return "none"
	}
	return fmt.Sprintf("#%d (%s)", stream.Index(), stream.CodecParameters().CodecID())
}
