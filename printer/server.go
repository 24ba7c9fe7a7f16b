// Package printer implements the shared print service and the client nodes
// use to submit one job while holding the critical section. The server is
// stateless: it merges the request timestamp into its own Lamport clock,
// simulates the printing delay, and answers with a confirmation.
package printer

import (
	"fmt"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/arthursbmatos9/Computacao-Distribuida/lamport"
	"github.com/sirupsen/logrus"
)

// PrintRequest is one job submission.
type PrintRequest struct {
	NodeID    int
	Content   string
	Timestamp int
	Seq       int
}

// PrintReply confirms a job. Timestamp carries the server's post-merge
// clock value so the submitting node can observe it.
type PrintReply struct {
	Success      bool
	Confirmation string
	Timestamp    int
}

// ServerOpt customizes the print server.
type ServerOpt func(*Server)

// WithProcessingDelay overrides the simulated printing delay.
func WithProcessingDelay(d time.Duration) ServerOpt {
	return func(s *Server) { s.delay = d }
}

// Server is the print service. It keeps only a Lamport clock; jobs leave no
// state behind.
type Server struct {
	address string
	clock   *lamport.Clock
	delay   time.Duration

	listener net.Listener
	shutdown chan struct{}
	stopOnce sync.Once
}

// NewServer builds a print server listening on address.
func NewServer(address string, opts ...ServerOpt) *Server {
	s := &Server{
		address:  address,
		clock:    lamport.New(),
		delay:    3 * time.Second,
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins accepting job submissions.
func (s *Server) Start() error {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Printer", &printerService{s: s}); err != nil {
		return fmt.Errorf("printer: register: %w", err)
	}
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("printer: cannot listen on %s: %w", s.address, err)
	}
	s.listener = ln
	logrus.Infof("printer: listening on %s", s.address)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.shutdown:
					return
				default:
				}
				logrus.Errorf("printer: accept error: %v", err)
				continue
			}
			go srv.ServeConn(conn)
		}
	}()
	return nil
}

// Stop closes the listener.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
		logrus.Info("printer: stopped")
	})
}

type printerService struct {
	s *Server
}

// SendToPrinter executes one job: merge the clock, hold the artificial
// processing delay, confirm.
func (p *printerService) SendToPrinter(args PrintRequest, reply *PrintReply) error {
	if args.NodeID <= 0 || args.Timestamp < 0 {
		return fmt.Errorf("printer: malformed job from node %d (ts %d)", args.NodeID, args.Timestamp)
	}
	s := p.s
	now := s.clock.Observe(args.Timestamp)

	logrus.Infof("printer: [TS %d] job #%d from client %d: %s", args.Timestamp, args.Seq, args.NodeID, args.Content)
	time.Sleep(s.delay)

	reply.Success = true
	reply.Confirmation = fmt.Sprintf("Impressao realizada - Cliente %d", args.NodeID)
	reply.Timestamp = now
	logrus.Infof("printer: job #%d from client %d done", args.Seq, args.NodeID)
	return nil
}
