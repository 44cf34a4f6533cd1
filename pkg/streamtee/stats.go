package streamtee

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats carries the pipeline counters. The pipeline thread is the only
// writer; the metrics endpoint and the end-of-session summary read them
// concurrently, hence the atomics.
type Stats struct {
	Sessions       atomic.Uint64
	BytesRead      atomic.Uint64
	BytesWritten   atomic.Uint64
	PacketsCopied  atomic.Uint64
	FramesDecoded  atomic.Uint64
	FramesEncoded  atomic.Uint64
	PacketsRelayed atomic.Uint64
}

var (
	descSessions = prometheus.NewDesc(
		"streamtee_sessions_total", "Session attempts (including reconnects)", nil, nil)
	descBytesRead = prometheus.NewDesc(
		"streamtee_source_bytes_total", "Bytes read from the source", nil, nil)
	descBytesWritten = prometheus.NewDesc(
		"streamtee_output_bytes_total", "Bytes written across all outputs", nil, nil)
	descPacketsCopied = prometheus.NewDesc(
		"streamtee_copied_packets_total", "Packets written to the passthrough output", nil, nil)
	descFramesDecoded = prometheus.NewDesc(
		"streamtee_decoded_frames_total", "Video frames decoded", nil, nil)
	descFramesEncoded = prometheus.NewDesc(
		"streamtee_encoded_frames_total", "Video frame encodes across all renditions", nil, nil)
	descPacketsRelayed = prometheus.NewDesc(
		"streamtee_relayed_audio_packets_total", "Audio packets relayed to rendition outputs", nil, nil)
)

var _ prometheus.Collector = (*Stats)(nil)

func (s *Stats) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSessions
	ch <- descBytesRead
	ch <- descBytesWritten
	ch <- descPacketsCopied
	ch <- descFramesDecoded
	ch <- descFramesEncoded
	ch <- descPacketsRelayed
}

func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	counter := func(desc *prometheus.Desc, v *atomic.Uint64) prometheus.Metric {
		return prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v.Load()))
	}
	ch <- counter(descSessions, &s.Sessions)
	ch <- counter(descBytesRead, &s.BytesRead)
	ch <- counter(descBytesWritten, &s.BytesWritten)
	ch <- counter(descPacketsCopied, &s.PacketsCopied)
	ch <- counter(descFramesDecoded, &s.FramesDecoded)
	ch <- counter(descFramesEncoded, &s.FramesEncoded)
	ch <- counter(descPacketsRelayed, &s.PacketsRelayed)
}
