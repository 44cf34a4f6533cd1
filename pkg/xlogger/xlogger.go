// Package xlogger assembles the process logger: leveled, timestamped,
// written to the console and, when a log file is configured, mirrored
// into it append-only.
package xlogger

import (
	"fmt"
	"io"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	xlogrus "github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/sirupsen/logrus"
)

// New returns the logger and a close function releasing the log file (if
// any). logFilePath == "" logs to the console only.
func New(level logger.Level, logFilePath string) (logger.Logger, func() error, error) {
	lr := logrus.New()
	lr.SetLevel(logrus.TraceLevel) // filtering is done by the wrapper
	lr.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	closeFn := func() error { return nil }
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open log file '%s': %w", logFilePath, err)
		}
		lr.SetOutput(io.MultiWriter(os.Stderr, f))
		closeFn = f.Close
	} else {
		lr.SetOutput(os.Stderr)
	}

	return xlogrus.New(lr).WithLevel(level), closeFn, nil
}
