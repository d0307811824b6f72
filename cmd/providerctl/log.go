// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcprovider/keyring"
	"github.com/btcsuite/btcprovider/permission"
	"github.com/btcsuite/btcprovider/provider"
	"github.com/btcsuite/btcprovider/wallet"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard error and
// the write-end pipe of an initialized log rotator. Standard output is kept
// for the dispatch result.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stderr.Write(p)
	if logRotatorPipe != nil {
		logRotatorPipe.Write(p)
	}

	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all
// subsystem loggers created from it will write to the backend. When adding
// new subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file. This must be performed early during application startup by
// calling initLogRotator.
var (
	// backendLog is the logging backend used to create all subsystem
	// loggers. The backend must not be used before the log rotator has
	// been initialized, or data races and/or nil pointer dereferences
	// will occur.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	// logRotatorPipe is the write-end pipe for writing to the log
	// rotator. It is written to by the Write method of the logWriter
	// type.
	logRotatorPipe *io.PipeWriter

	log     = backendLog.Logger("PCTL")
	prvdLog = backendLog.Logger("PRVD")
	wlltLog = backendLog.Logger("WLLT")
	krngLog = backendLog.Logger("KRNG")
	permLog = backendLog.Logger("PERM")
)

// Initialize package-global logger variables.
func init() {
	provider.UseLogger(prvdLog)
	wallet.UseLogger(wlltLog)
	keyring.UseLogger(krngLog)
	permission.UseLogger(permLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"PCTL": log,
	"PRVD": prvdLog,
	"WLLT": wlltLog,
	"KRNG": krngLog,
	"PERM": permLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. It must be called before the
// package-global log rotator variables are used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	logRotator = r
	logRotatorPipe = pw

	return nil
}

// closeLogRotator flushes and closes the log rotator if it was started.
func closeLogRotator() {
	if logRotatorPipe != nil {
		logRotatorPipe.Close()
	}
	if logRotator != nil {
		logRotator.Close()
	}
}

// setLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	// Ignore invalid subsystems.
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsystems for stable display.
	sort.Strings(subsystems)

	return subsystems
}
