// Package metrics exposes transmitter and receiver counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "udptool"

// Transmit results.
const (
	ResultSent    = "sent"
	ResultDropped = "dropped"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

var (
	// TxPacketsTotal counts scheduled packets by outcome
	TxPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_packets_total",
			Help:      "Total number of scheduled packets by result",
		},
		[]string{"run", "result"},
	)

	TxBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_bytes_total",
			Help:      "Total number of bytes sent",
		},
		[]string{"run"},
	)

	// RxDatagramsTotal counts received datagrams by status string (ok, bad-trunc, ...)
	RxDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rx_datagrams_total",
			Help:      "Total number of datagrams received by classification",
		},
		[]string{"run", "status"},
	)

	RxBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rx_bytes_total",
			Help:      "Total number of bytes received",
		},
		[]string{"run"},
	)

	RxMissingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rx_missing_packets_total",
			Help:      "Total number of sequence numbers declared missing",
		},
		[]string{"run"},
	)

	RxDuplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rx_duplicate_packets_total",
			Help:      "Total number of duplicate packets",
		},
		[]string{"run"},
	)

	// RxPayloadErrorsTotal counts payload bytes that differ from the expected stream
	RxPayloadErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rx_payload_byte_errors_total",
			Help:      "Total number of corrupted payload bytes",
		},
		[]string{"run"},
	)

	RxFlowSwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rx_flow_switches_total",
			Help:      "Number of times the sending endpoint changed",
		},
		[]string{"run"},
	)

	// AverageBandwidth is the sliding-window average in kB/s
	AverageBandwidth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_bandwidth_kilobytes_per_second",
			Help:      "Sliding-window average bandwidth",
		},
		[]string{"run", "direction"},
	)

	MaxBandwidth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_bandwidth_kilobytes_per_second",
			Help:      "Largest sliding-window average bandwidth observed",
		},
		[]string{"run", "direction"},
	)
)

// Directions for the bandwidth gauges.
const (
	DirectionTx = "tx"
	DirectionRx = "rx"
)
