// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/firstboot/pkg/logging"
)

// ShutdownHandler translates a termination signal into a graceful-stop
// request to the application.
//
// Armed once, before any stage runs, and active until the exec handoff
// replaces this process (after which signals reach the application
// directly). On receipt it invokes the external stop mechanism rather than
// killing anything itself: the request is one-way, and the handler does not
// wait for the application to exit.
type ShutdownHandler struct {
	proc      ProcessManager
	loaderBin string
	logger    *logging.Logger

	sigs chan os.Signal
	done chan struct{}
}

// NewShutdownHandler creates a handler that requests shutdown through the
// given loader binary.
func NewShutdownHandler(proc ProcessManager, loaderBin string, logger *logging.Logger) *ShutdownHandler {
	return &ShutdownHandler{proc: proc, loaderBin: loaderBin, logger: logger}
}

// Arm registers for termination-class signals and starts the relay
// goroutine. Calling Arm twice is a no-op.
func (h *ShutdownHandler) Arm() {
	if h.sigs != nil {
		return
	}
	h.sigs = make(chan os.Signal, 1)
	h.done = make(chan struct{})
	signal.Notify(h.sigs, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		for {
			select {
			case sig := <-h.sigs:
				h.logger.Info("termination signal received, requesting graceful shutdown", "signal", sig.String())
				if _, err := h.proc.Run(context.Background(), h.loaderBin, "--shutdown"); err != nil {
					// Fire-and-forget: the stop request failing is
					// logged, never fatal.
					h.logger.Error("shutdown request failed", "error", err)
				}
			case <-h.done:
				return
			}
		}
	}()
}

// Disarm stops signal delivery and the relay goroutine. Used by tests; the
// production path never disarms — the exec handoff tears the handler down
// along with the rest of the process image.
func (h *ShutdownHandler) Disarm() {
	if h.sigs == nil {
		return
	}
	signal.Stop(h.sigs)
	close(h.done)
	h.sigs = nil
}

// deliver injects a signal as if the OS had delivered it. Test hook.
func (h *ShutdownHandler) deliver(sig os.Signal) {
	h.sigs <- sig
}
