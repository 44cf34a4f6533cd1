package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/streamtee/streamtee/pkg/observability"
	"github.com/streamtee/streamtee/pkg/streamtee"
	"github.com/streamtee/streamtee/pkg/xpath"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()
	stats := &streamtee.Stats{}

	ctx, cancelFunc, shutdown, err := initRuntime(flags, stats)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer shutdown()
	defer cancelFunc()

	// the handler only signals; the pipeline notices between packets
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	observability.Go(ctx, func() {
		sig := <-signals
		logger.Infof(ctx, "received %v, requesting stop", sig)
		cancelFunc()
	})

	outputPath, err := xpath.Expand(flags.OutputPath)
	assertNoError(ctx, err)
	outputPath = xpath.NormalizeOutput(outputPath)

	ladder := streamtee.DefaultLadder()
	if flags.LadderPath != "" {
		ladderPath, err := xpath.Expand(flags.LadderPath)
		assertNoError(ctx, err)
		ladder, err = streamtee.LoadLadder(ladderPath)
		assertNoError(ctx, err)
	}
	assertNoError(ctx, streamtee.ValidateLadder(ladder))

	controller := streamtee.NewController(streamtee.Config{
		Source: streamtee.SourceConfig{
			URL:      flags.InputURL,
			ForceTCP: flags.RTSPOverTCP,
		},
		OutputPath:     outputPath,
		ReconnectDelay: time.Duration(flags.ReconnectSec) * time.Second,
		Ladder:         ladder,
		CopySegments: streamtee.SegmentPolicy{
			SegmentSeconds: flags.CopyHLSTime,
			KeepMinutes:    flags.CopyMaxKeepMinutes,
		},
		EncodeSegments: streamtee.SegmentPolicy{
			SegmentSeconds: flags.EncodeHLSTime,
			KeepMinutes:    flags.EncodeMaxKeepMinutes,
		},
	}, stats)

	return controller.Run(ctx)
}
