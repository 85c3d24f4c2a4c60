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
	"log"

	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v3/process"
)

// CleanupCoordinator tears a session's processes down in dependency
// order: encoder first (stop publishing), then the renderer (graceful,
// failures logged and skipped), then the display.  Each handle is
// atomically taken from the session before its termination primitive
// runs, so concurrent and repeated invocations are safe; a second
// caller finds nothing left to take.  After the ordered pass it sweeps
// for stray display servers still squatting on our display number and
// releases the host-wide session lock.
type CleanupCoordinator struct {
	s       *session
	display string
	lock    *flock.Flock
	logger  *log.Logger
}

func NewCleanupCoordinator(s *session, display string, lock *flock.Flock, logger *log.Logger) *CleanupCoordinator {
	return &CleanupCoordinator{
		s:       s,
		display: display,
		lock:    lock,
		logger:  logger,
	}
}

// Cleanup runs the full teardown.  It never fails; per-resource errors
// are logged and the remaining steps still run.  Calling it with no
// session resources held is a no-op.
func (cc *CleanupCoordinator) Cleanup() {
	if p := cc.s.take(KindEncoder); p != nil {
		if e := p.Kill(); e != nil {
			cc.logger.Printf("Failed killing encoder (pid %d): %v", p.Pid(), e)
		}
	}
	if p := cc.s.take(KindRenderer); p != nil {
		// Graceful only; if the browser will not close cleanly we
		// log and move on, and killing the display takes the
		// renderer's canvas out from under it anyway.
		if e := p.Close(); e != nil {
			cc.logger.Printf("Failed closing renderer (pid %d): %v", p.Pid(), e)
		}
	}
	if p := cc.s.take(KindDisplay); p != nil {
		if e := p.Kill(); e != nil {
			cc.logger.Printf("Failed killing display server (pid %d): %v", p.Pid(), e)
		}
	}

	cc.sweepStrays()

	if cc.lock != nil {
		if e := cc.lock.Unlock(); e != nil {
			cc.logger.Printf("Failed releasing session lock: %v", e)
		}
	}
}

// sweepStrays kills any display server process still serving our
// display number.  Crashed sessions can leave one behind, and a stale
// server makes the next startup fail with a display conflict.
func (cc *CleanupCoordinator) sweepStrays() {
	procs, e := process.Processes()
	if e != nil {
		cc.logger.Printf("Failed listing processes for sweep: %v", e)
		return
	}
	for _, p := range procs {
		name, e := p.Name()
		if e != nil || name != "Xvfb" {
			continue
		}
		args, e := p.CmdlineSlice()
		if e != nil {
			continue
		}
		for _, a := range args {
			if a == cc.display {
				cc.logger.Printf("Killing stray display server (pid %d)", p.Pid)
				if e := p.Kill(); e != nil {
					cc.logger.Printf("Failed killing stray display server: %v", e)
				}
				break
			}
		}
	}
}
