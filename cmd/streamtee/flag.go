package main

import (
	"fmt"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/pflag"
)

type Flags struct {
	InputURL   string
	OutputPath string

	RTSPOverTCP  bool
	ReconnectSec int

	EncodeHLSTime        int
	EncodeMaxKeepMinutes int
	CopyHLSTime          int
	CopyMaxKeepMinutes   int

	LadderPath string

	LogFile        string
	LoggerLevel    logger.Level
	ListenNetPprof string
}

func parseFlags() Flags {
	flags := Flags{
		LoggerLevel: logger.LevelInfo,
	}
	pflag.BoolVar(&flags.RTSPOverTCP, "rtsp-tcp", false, "force TCP transport for RTSP sources")
	pflag.IntVar(&flags.ReconnectSec, "reconnect-sec", 0, "seconds to wait before reconnecting after a failure; 0 disables reconnecting")
	pflag.IntVar(&flags.EncodeHLSTime, "encode-hls-time", 4, "segment duration of the rendition outputs, in seconds")
	pflag.IntVar(&flags.EncodeMaxKeepMinutes, "encode-max-keep-minutes", 1, "retention window of the rendition playlists, in minutes")
	pflag.IntVar(&flags.CopyHLSTime, "copy-hls-time", 0, "segment duration of the passthrough output, in seconds; 0 keeps the muxer default")
	pflag.IntVar(&flags.CopyMaxKeepMinutes, "copy-max-keep-minutes", 0, "retention window of the passthrough playlist, in minutes; 0 keeps everything")
	pflag.StringVar(&flags.LadderPath, "ladder", "", "path to a YAML file overriding the built-in rendition ladder")
	pflag.StringVar(&flags.LogFile, "log-file", "", "mirror the log into this file")
	pflag.Var(&flags.LoggerLevel, "log-level", "Log level")
	pflag.StringVar(&flags.ListenNetPprof, "listen-net-pprof", "", "address to listen to for net/pprof requests")
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <input-url> <output-path>\n\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(1)
	}
	flags.InputURL = args[0]
	flags.OutputPath = args[1]
	return flags
}
