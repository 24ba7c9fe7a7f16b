package printer

import (
	"fmt"
	"net"
	"net/rpc"
	"time"

	"github.com/arthursbmatos9/Computacao-Distribuida/lamport"
	"github.com/sirupsen/logrus"
)

// Client submits print jobs on behalf of one node. It shares the node's
// Lamport clock so each submission is a clocked local event and the server's
// reply timestamp is merged back in.
type Client struct {
	nodeID  int
	address string
	clock   *lamport.Clock
	timeout time.Duration
}

// NewClient builds a client for the print server at address.
func NewClient(nodeID int, address string, clock *lamport.Clock, timeout time.Duration) *Client {
	return &Client{
		nodeID:  nodeID,
		address: address,
		clock:   clock,
		timeout: timeout,
	}
}

// Submit sends one job and returns the server's confirmation text. It must
// only be called while the node holds the critical section.
func (c *Client) Submit(content string, seq int) (string, error) {
	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return "", fmt.Errorf("printer: client %d cannot reach server: %w", c.nodeID, err)
	}
	client := rpc.NewClient(conn)
	defer client.Close()

	args := PrintRequest{
		NodeID:    c.nodeID,
		Content:   content,
		Timestamp: c.clock.Tick(),
		Seq:       seq,
	}
	logrus.Infof("P%d: [TS %d] submitting job: %s", c.nodeID, args.Timestamp, content)

	var reply PrintReply
	done := make(chan error, 1)
	go func() { done <- client.Call("Printer.SendToPrinter", args, &reply) }()
	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("printer: client %d submit: %w", c.nodeID, err)
		}
	case <-time.After(c.timeout):
		return "", fmt.Errorf("printer: client %d submit timed out after %v", c.nodeID, c.timeout)
	}

	c.clock.Observe(reply.Timestamp)
	if !reply.Success {
		return "", fmt.Errorf("printer: client %d job rejected", c.nodeID)
	}
	logrus.Infof("P%d: %s", c.nodeID, reply.Confirmation)
	return reply.Confirmation, nil
}
