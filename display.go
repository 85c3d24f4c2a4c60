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
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DisplayManager spawns the virtual display server and waits for it to
// come up.  Readiness is probed, not assumed: the X server creates a
// unix socket for its display number once it is accepting clients, so
// the manager polls for that socket with a bounded deadline instead of
// sleeping a fixed interval and hoping.
type DisplayManager struct {
	bin    string
	poll   time.Duration
	wait   time.Duration
	logger *log.Logger
}

func NewDisplayManager(cfg Config, logger *log.Logger) *DisplayManager {
	return &DisplayManager{
		bin:    cfg.DisplayBin,
		poll:   cfg.ReadyPoll,
		wait:   cfg.ReadyWait,
		logger: logger,
	}
}

// Start launches the display server for the given display at the given
// geometry and blocks until it is accepting connections.  On probe
// timeout the half-started server is killed before the error returns.
func (dm *DisplayManager) Start(display string, width, height int) (*ManagedProcess, error) {
	screen := fmt.Sprintf("%dx%dx24", width, height)
	cmd := exec.Command(dm.bin, display, "-screen", "0", screen, "-nocursor")

	if stderr, e := cmd.StderrPipe(); e != nil {
		dm.logger.Printf("Failed to capture display stderr: %v", e)
	} else {
		go pumpLines(dm.logger, stderr, "display> ")
	}

	if e := cmd.Start(); e != nil {
		return nil, fmt.Errorf("starting display server: %w", e)
	}
	dm.logger.Printf("Display server started on %s (pid %d)",
		display, cmd.Process.Pid)

	// Reap the process whenever it exits; the handle's kill is the
	// only teardown path a display has.
	go cmd.Wait()

	if e := dm.awaitReady(display); e != nil {
		if ke := cmd.Process.Kill(); ke != nil {
			dm.logger.Printf("Failed killing display server: %v", ke)
		}
		return nil, e
	}

	return &ManagedProcess{
		kind: KindDisplay,
		pid:  cmd.Process.Pid,
		kill: cmd.Process.Kill,
	}, nil
}

func (dm *DisplayManager) awaitReady(display string) error {
	sock := displaySocket(display)
	probe := func() error {
		if _, e := os.Stat(sock); e != nil {
			return e
		}
		return nil
	}
	tries := uint64(dm.wait / dm.poll)
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(dm.poll), tries)
	if e := backoff.Retry(probe, b); e != nil {
		return fmt.Errorf("%w: no socket for display %s after %v",
			ErrDisplayTimeout, display, dm.wait)
	}
	return nil
}

// displaySocket maps an X display id like ":99" or ":99.0" to the unix
// socket the server creates once it is serving that display.
func displaySocket(display string) string {
	num := strings.TrimPrefix(display, ":")
	if i := strings.IndexByte(num, '.'); i >= 0 {
		num = num[:i]
	}
	return filepath.Join("/tmp/.X11-unix", "X"+num)
}
