// Copyright 2026 The Pagecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pagecast

import (
	"bufio"
	"io"
	"log"
	"strings"
)

// ProcessKind identifies which of the three supervised processes a
// ManagedProcess handle refers to.
type ProcessKind int

const (
	KindDisplay ProcessKind = iota
	KindRenderer
	KindEncoder
)

func (k ProcessKind) String() string {
	switch k {
	case KindDisplay:
		return "display"
	case KindRenderer:
		return "renderer"
	case KindEncoder:
		return "encoder"
	}
	return "unknown"
}

// ManagedProcess is an ownership wrapper for one spawned OS process.
// It does not supervise the process itself; it carries just enough to
// tear the process down (forced kill always, a graceful close where
// the process supports one) and, for the encoder, to observe its exit.
// Handles are created by the individual managers and torn down by the
// cleanup coordinator.
type ManagedProcess struct {
	kind    ProcessKind
	pid     int
	kill    func() error // forced termination, never nil for real processes
	closefn func() error // graceful termination; nil if there is no graceful path
	wait    func() error // blocks until exit; nil if exit is not observable
}

func (p *ManagedProcess) Kind() ProcessKind {
	return p.kind
}

func (p *ManagedProcess) Pid() int {
	return p.pid
}

// Kill forcibly terminates the process.
func (p *ManagedProcess) Kill() error {
	if p.kill == nil {
		return nil
	}
	return p.kill()
}

// Close asks the process to shut down gracefully.  Processes without a
// graceful path are killed instead.
func (p *ManagedProcess) Close() error {
	if p.closefn == nil {
		return p.Kill()
	}
	return p.closefn()
}

// Wait blocks until the process exits, returning the error from the
// underlying wait (an *exec.ExitError for nonzero exits).
func (p *ManagedProcess) Wait() error {
	if p.wait == nil {
		return nil
	}
	return p.wait()
}

// pumpLines copies r to the logger a line at a time, prefixing each
// line so interleaved process output stays attributable.
func pumpLines(logger *log.Logger, r io.Reader, prefix string) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			logger.Print(prefix, strings.Trim(line, "\n"))
		}
		if err != nil {
			return
		}
	}
}
