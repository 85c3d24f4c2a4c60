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
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
)

// FaultKind classifies an encoder fault recognized on the diagnostic
// stream.
type FaultKind int

const (
	FaultAuth FaultKind = iota
	FaultRefused
	FaultServer
	FaultIO
	FaultBusy
)

func (k FaultKind) String() string {
	switch k {
	case FaultAuth:
		return "authentication"
	case FaultRefused:
		return "connection refused"
	case FaultServer:
		return "server error"
	case FaultIO:
		return "i/o error"
	case FaultBusy:
		return "already publishing"
	}
	return "unknown"
}

// faultSignatures maps the substrings ffmpeg emits for the transport
// faults we care about to their kinds.  Matching is plain substring
// containment; ffmpeg wraps these in varying amounts of context.
var faultSignatures = []struct {
	substr string
	kind   FaultKind
}{
	{"Authentication failed", FaultAuth},
	{"Connection refused", FaultRefused},
	{"Server error", FaultServer},
	{"Input/output error", FaultIO},
	{"Already publishing", FaultBusy},
}

// classifyFault reports whether a diagnostic line matches a known
// fault signature, and if so which one.
func classifyFault(line string) (FaultKind, string, bool) {
	for _, sig := range faultSignatures {
		if strings.Contains(line, sig.substr) {
			return sig.kind, sig.substr, true
		}
	}
	return 0, "", false
}

// HealthMonitor watches one encoder: its diagnostic stream for fault
// signatures, and its exit.  Whichever observation comes first wins.
//
// A monitor is either watching or done, and only the observation that
// makes it done gets to invoke the callbacks: onFault at most once,
// onDone at most once, and neither after retire.  A retired monitor
// goes silent no matter how late the encoder's exit is observed, so a
// teardown-induced exit can neither masquerade as a failure nor tear
// down a successor session.
type HealthMonitor struct {
	mx      sync.Mutex
	done    bool
	onFault func(msg string)
	onDone  func()
	logger  *log.Logger
}

func NewHealthMonitor(onFault func(string), onDone func(), logger *log.Logger) *HealthMonitor {
	return &HealthMonitor{
		onFault: onFault,
		onDone:  onDone,
		logger:  logger,
	}
}

// Watch starts monitoring.  diag is the encoder's stderr; wait blocks
// until the encoder exits.  Watch itself returns immediately.
func (hm *HealthMonitor) Watch(diag io.Reader, wait func() error) {
	go hm.scan(diag)
	go hm.await(wait)
}

// retire moves the monitor to done without recording anything.  Called
// when the controller initiates teardown itself, so the encoder exit
// the teardown causes is not reported as a failure.
func (hm *HealthMonitor) retire() {
	hm.finish()
}

// finish claims the single terminal slot.  Only the caller it returns
// true to may invoke the callbacks.
func (hm *HealthMonitor) finish() bool {
	hm.mx.Lock()
	defer hm.mx.Unlock()
	if hm.done {
		return false
	}
	hm.done = true
	return true
}

// scanDiagLines is a bufio.SplitFunc recognizing both \n and \r as
// line terminators.  ffmpeg ends its recurring progress report with a
// bare \r, and treating that as line continuation would eventually
// overflow the scanner and blind the fault watch.
func scanDiagLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (hm *HealthMonitor) scan(diag io.Reader) {
	sc := bufio.NewScanner(diag)
	sc.Split(scanDiagLines)
	for sc.Scan() {
		line := sc.Text()
		kind, sig, ok := classifyFault(line)
		if !ok {
			continue
		}
		if !hm.finish() {
			return
		}
		hm.logger.Printf("Encoder fault (%v): %s", kind, line)
		hm.onFault("Stream failed: " + sig)
		hm.onDone()
		return
	}
}

func (hm *HealthMonitor) await(wait func() error) {
	code := exitCode(wait())
	if !hm.finish() {
		return
	}
	if code != 0 {
		hm.logger.Printf("Encoder exited with code %d", code)
		hm.onFault(fmt.Sprintf("encoder exited unexpectedly with code %d", code))
	}
	hm.onDone()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
