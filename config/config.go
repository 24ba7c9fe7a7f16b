// Package config holds the cluster-wide constants: well-known ports, the
// NodeId-to-address convention, and every protocol timeout and retry bound.
package config

import (
	"fmt"
	"time"
)

const (
	// PrinterPort is the well-known port the print server listens on.
	PrinterPort = 50051

	// BaseNodePort is the port of node 1; node i listens on
	// BaseNodePort + (i - 1).
	BaseNodePort = 50052

	// ProbeTimeout bounds the per-peer connectivity check that runs before
	// every critical-section attempt.
	ProbeTimeout = 1 * time.Second

	// CallTimeout bounds each outbound RequestAccess call.
	CallTimeout = 10 * time.Second

	// GrantTimeout bounds each deferred-grant notification.
	GrantTimeout = 5 * time.Second

	// PrintTimeout bounds the job submission to the print server.
	PrintTimeout = 10 * time.Second

	// RoundTimeout bounds one whole attempt: how long a node waits for the
	// full set of grants before giving the round up.
	RoundTimeout = 60 * time.Second

	// PollInterval is how often the quorum wait re-checks the reply counter.
	PollInterval = 100 * time.Millisecond

	// MaxRetries is the number of rounds attempted before Enter reports
	// failure to the caller.
	MaxRetries = 3

	// RetryDelay is the base backoff between failed rounds; a random jitter
	// of up to the same amount is added on top.
	RetryDelay = 2 * time.Second
)

// NodeAddress derives the listening address of a node from its id, so peers
// can reach each other without a directory service.
func NodeAddress(id int) string {
	return fmt.Sprintf("localhost:%d", BaseNodePort+(id-1))
}

// PrinterAddress is the address of the well-known print server.
func PrinterAddress() string {
	return fmt.Sprintf("localhost:%d", PrinterPort)
}
