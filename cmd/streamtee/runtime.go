package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streamtee/streamtee/pkg/astiavlogger"
	"github.com/streamtee/streamtee/pkg/observability"
	"github.com/streamtee/streamtee/pkg/streamtee"
	"github.com/streamtee/streamtee/pkg/xlogger"
)

// initRuntime wires the logger, the libav log bridge and the optional
// debug listener. It returns the cancellable process context plus a
// shutdown function flushing the logs; the cancel is safe to call from
// the signal handler.
func initRuntime(
	flags Flags,
	stats *streamtee.Stats,
) (context.Context, context.CancelFunc, func(), error) {
	l, closeLog, err := xlogger.New(flags.LoggerLevel, flags.LogFile)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}

	astiav.SetLogLevel(astiavlogger.LogLevelToAstiav(l.Level()))
	astiav.SetLogCallback(astiavlogger.Callback(l))

	if flags.ListenNetPprof != "" {
		prometheus.MustRegister(stats)
		observability.Go(ctx, func() {
			http.Handle("/metrics", promhttp.Handler())
			l.Infof("starting to listen for net/pprof requests at '%s'", flags.ListenNetPprof)
			l.Error(http.ListenAndServe(flags.ListenNetPprof, nil))
		})
	}

	ctx, cancelFn := context.WithCancel(ctx)
	return ctx, cancelFn, func() {
		belt.Flush(ctx)
		if err := closeLog(); err != nil {
			l.Errorf("unable to close the log file: %v", err)
		}
	}, nil
}
