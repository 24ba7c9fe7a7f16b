// Command node runs one peer of the distributed print system: it hosts the
// mutual exclusion coordinator and periodically acquires the critical
// section to submit a job to the print server.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/arthursbmatos9/Computacao-Distribuida/config"
	"github.com/arthursbmatos9/Computacao-Distribuida/dimex"
	"github.com/arthursbmatos9/Computacao-Distribuida/lamport"
	"github.com/arthursbmatos9/Computacao-Distribuida/printer"
	"github.com/sirupsen/logrus"
)

func main() {
	id := flag.Int("id", 0, "node id (>= 1)")
	port := flag.Int("port", 0, "listening port (default derived from id)")
	peersArg := flag.String("peers", "", "comma-separated peer ports")
	verbose := flag.Bool("v", false, "enable verbose (debug) logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *id < 1 {
		logrus.Errorf("Usage: %s -id <n> [-port <p>] -peers <p1,p2,...>", os.Args[0])
		os.Exit(1)
	}
	if *port == 0 {
		*port = config.BaseNodePort + (*id - 1)
	}

	peerAddrs, err := parsePeers(*peersArg)
	if err != nil {
		logrus.Errorf("invalid -peers: %v", err)
		os.Exit(1)
	}

	clock := lamport.New()
	dmx := dimex.NewCoordinator(*id, fmt.Sprintf("localhost:%d", *port), peerAddrs, clock)
	if err := dmx.Start(); err != nil {
		logrus.Errorf("P%d: %v", *id, err)
		os.Exit(1)
	}
	defer dmx.Stop()

	prt := printer.NewClient(*id, config.PrinterAddress(), clock, config.PrintTimeout)

	go worker(*id, dmx, prt)

	terminate(*id)
}

// parsePeers maps the configured peer ports back to node ids using the fixed
// port-offset convention.
func parsePeers(arg string) (map[int]string, error) {
	peerAddrs := make(map[int]string)
	if arg == "" {
		return peerAddrs, nil
	}
	for _, field := range strings.Split(arg, ",") {
		port, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("bad port %q: %w", field, err)
		}
		peerID := port - config.BaseNodePort + 1
		if peerID < 1 {
			return nil, fmt.Errorf("port %d is below the node port range", port)
		}
		peerAddrs[peerID] = fmt.Sprintf("localhost:%d", port)
	}
	return peerAddrs, nil
}

// worker drives the node's rounds: wait a random interval, acquire the
// critical section, print one document, release.
func worker(id int, dmx *dimex.Coordinator, prt *printer.Client) {
	// give the other processes a moment to come up
	time.Sleep(2 * time.Second)

	for n := 1; ; n++ {
		wait := time.Duration(5+rand.Intn(11)) * time.Second
		logrus.Infof("P%d: next request in %v", id, wait)
		time.Sleep(wait)

		printOnce(id, n, dmx, prt)
	}
}

// printOnce submits document n inside the critical section. The section is
// released exactly once on every path, including a failed submission.
func printOnce(id, n int, dmx *dimex.Coordinator, prt *printer.Client) {
	if err := dmx.Enter(); err != nil {
		logrus.Warnf("P%d: could not acquire the printer: %v", id, err)
		return
	}
	defer dmx.Exit()

	content := fmt.Sprintf("Documento #%d do Cliente %d", n, id)
	if _, err := prt.Submit(content, n); err != nil {
		logrus.Errorf("P%d: %v", id, err)
	}
	time.Sleep(1 * time.Second)
}

func terminate(id int) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logrus.Infof("P%d: received '%s' signal. Exiting...", id, sig)
}
