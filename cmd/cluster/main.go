// Command cluster runs the whole system in a single process: the print
// server plus N nodes, each periodically printing one document under mutual
// exclusion. While running it captures per-node snapshots once a second and,
// on interrupt, verifies the protocol invariants over everything captured.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/arthursbmatos9/Computacao-Distribuida/config"
	"github.com/arthursbmatos9/Computacao-Distribuida/dimex"
	"github.com/arthursbmatos9/Computacao-Distribuida/lamport"
	"github.com/arthursbmatos9/Computacao-Distribuida/printer"
	"github.com/arthursbmatos9/Computacao-Distribuida/snapshots"
	"github.com/sirupsen/logrus"
)

const snapshotInterval = 1 * time.Second

func main() {
	n := flag.Int("n", 3, "number of nodes")
	verbose := flag.Bool("v", false, "enable verbose (debug) logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if *n < 1 {
		logrus.Errorf("Usage: %s [-v] [-n nodes]", os.Args[0])
		os.Exit(1)
	}

	srv := printer.NewServer(config.PrinterAddress())
	if err := srv.Start(); err != nil {
		logrus.Errorf("%v", err)
		os.Exit(1)
	}
	defer srv.Stop()

	addresses := make(map[int]string, *n)
	for id := 1; id <= *n; id++ {
		addresses[id] = config.NodeAddress(id)
	}

	var inCS int32 // how many nodes believe they hold the section right now
	var overlaps int32

	coordinators := make([]*dimex.Coordinator, 0, *n)
	for id := 1; id <= *n; id++ {
		clock := lamport.New()
		dmx := dimex.NewCoordinator(id, addresses[id], addresses, clock)
		if err := dmx.Start(); err != nil {
			logrus.Errorf("%v", err)
			os.Exit(1)
		}
		defer dmx.Stop()
		coordinators = append(coordinators, dmx)

		prt := printer.NewClient(id, config.PrinterAddress(), clock, config.PrintTimeout)
		go worker(id, dmx, prt, &inCS, &overlaps)
	}

	var mu sync.Mutex
	var sets []snapshots.Set
	go func() {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for range ticker.C {
			set := make(snapshots.Set, 0, len(coordinators))
			for _, dmx := range coordinators {
				set = append(set, dmx.Snapshot())
			}
			mu.Lock()
			sets = append(sets, set)
			mu.Unlock()
		}
	}()

	terminate(&mu, &sets, &overlaps)
}

// worker drives one node exactly as cmd/node does, additionally maintaining
// the shared occupancy counter so overlapping critical sections are caught
// the moment they happen.
func worker(id int, dmx *dimex.Coordinator, prt *printer.Client, inCS, overlaps *int32) {
	time.Sleep(2 * time.Second)

	for n := 1; ; n++ {
		time.Sleep(time.Duration(5+rand.Intn(11)) * time.Second)

		if err := dmx.Enter(); err != nil {
			logrus.Warnf("P%d: could not acquire the printer: %v", id, err)
			continue
		}
		if occupancy := atomic.AddInt32(inCS, 1); occupancy > 1 {
			atomic.AddInt32(overlaps, 1)
			logrus.Errorf("P%d: MUTUAL EXCLUSION VIOLATED: %d nodes in the critical section", id, occupancy)
		}

		content := fmt.Sprintf("Documento #%d do Cliente %d", n, id)
		if _, err := prt.Submit(content, n); err != nil {
			logrus.Errorf("P%d: %v", id, err)
		}
		time.Sleep(1 * time.Second)

		atomic.AddInt32(inCS, -1)
		dmx.Exit()
	}
}

func terminate(mu *sync.Mutex, sets *[]snapshots.Set, overlaps *int32) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logrus.Infof("Received '%s' signal. Exiting...", sig)

	if n := atomic.LoadInt32(overlaps); n > 0 {
		logrus.Errorf("%d critical section overlaps observed at runtime", n)
		os.Exit(1)
	}

	mu.Lock()
	captured := make([]snapshots.Set, len(*sets))
	copy(captured, *sets)
	mu.Unlock()

	logrus.Infof("Verifying %d snapshot sets...", len(captured))
	if err := snapshots.Verify(captured...); err != nil {
		logrus.Errorf("Inconsistency detected in snapshots: %v", err)
		os.Exit(1)
	}
	logrus.Infof("No inconsistencies detected in snapshots!")
}
