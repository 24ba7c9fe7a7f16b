// Command printer runs the shared print server on its well-known port.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arthursbmatos9/Computacao-Distribuida/config"
	"github.com/arthursbmatos9/Computacao-Distribuida/printer"
	"github.com/sirupsen/logrus"
)

func main() {
	port := flag.Int("port", config.PrinterPort, "listening port")
	verbose := flag.Bool("v", false, "enable verbose (debug) logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	srv := printer.NewServer(fmt.Sprintf("localhost:%d", *port))
	if err := srv.Start(); err != nil {
		logrus.Errorf("%v", err)
		os.Exit(1)
	}
	defer srv.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logrus.Infof("printer: received '%s' signal. Exiting...", sig)
}
