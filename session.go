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
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// SessionState is the lifecycle state of the streaming session.
type SessionState int

const (
	Idle SessionState = iota
	Starting
	Active
	Stopping
	Failed
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// StreamRequest is the caller's ask: what to render, and where to
// publish it.
type StreamRequest struct {
	// StreamTarget is either a full rtmp:// URL, used verbatim, or a
	// bare stream key for the default ingest endpoint.
	StreamTarget string

	// Content is the HTML payload to render.
	Content string
}

// StatusInfo is a point-in-time snapshot of the session.
type StatusInfo struct {
	Active bool
	State  string
	Error  string
	Since  time.Time
}

// session is the singleton aggregate a controller owns: the lifecycle
// state, the sticky error, and up to three process handles.  All of it
// lives behind one mutex; the handles leave only via take, so teardown
// of any handle happens exactly once no matter how many paths race to
// it.
type session struct {
	mx       sync.Mutex
	state    SessionState
	lastErr  string
	stamp    time.Time
	display  *ManagedProcess
	renderer *ManagedProcess
	encoder  *ManagedProcess
}

func (s *session) setState(st SessionState) {
	s.mx.Lock()
	s.state = st
	s.stamp = time.Now()
	s.mx.Unlock()
}

// recordError records the session error, first writer wins.
func (s *session) recordError(msg string) {
	s.mx.Lock()
	if s.lastErr == "" {
		s.lastErr = msg
	}
	s.mx.Unlock()
}

func (s *session) put(p *ManagedProcess) {
	s.mx.Lock()
	switch p.Kind() {
	case KindDisplay:
		s.display = p
	case KindRenderer:
		s.renderer = p
	case KindEncoder:
		s.encoder = p
	}
	s.mx.Unlock()
}

// take atomically removes and returns the handle of the given kind, or
// nil if it was already taken.
func (s *session) take(kind ProcessKind) *ManagedProcess {
	s.mx.Lock()
	defer s.mx.Unlock()
	var p *ManagedProcess
	switch kind {
	case KindDisplay:
		p, s.display = s.display, nil
	case KindRenderer:
		p, s.renderer = s.renderer, nil
	case KindEncoder:
		p, s.encoder = s.encoder, nil
	}
	return p
}

// The three manager interfaces exist so the controller's sequencing
// and teardown logic can be exercised against fakes.
type displayStarter interface {
	Start(display string, width, height int) (*ManagedProcess, error)
}

type rendererStarter interface {
	Start(display, content string, width, height int) (*ManagedProcess, error)
}

type encoderStarter interface {
	Start(display string, width, height, frameRate int, target string) (*ManagedProcess, io.ReadCloser, error)
}

// Controller owns the one streaming session and the managers that
// build it.  Start, Stop, and Status are safe for concurrent use.
type Controller struct {
	cfg Config
	s   *session

	displayMgr  displayStarter
	rendererMgr rendererStarter
	encoderMgr  encoderStarter

	cleaner *CleanupCoordinator
	flk     *flock.Flock

	mmx     sync.Mutex
	monitor *HealthMonitor

	mlog   *MultiLogger
	log    *Log
	logger *log.Logger
	errlog *log.Logger
}

// NewController returns a controller with its real managers wired up.
// Nothing is spawned until Start.
func NewController(cfg Config) *Controller {
	cfg.setDefaults()

	c := &Controller{
		cfg: cfg,
		s:   &session{state: Idle, stamp: time.Now()},
	}
	c.mlog = NewMultiLogger()
	c.log = NewLog()
	c.mlog.AddLogger(log.New(c.log, "", 0))
	c.errlog = log.New(os.Stderr, "", log.LstdFlags)
	c.mlog.AddLogger(c.errlog)
	c.logger = c.mlog.Logger()

	c.flk = flock.New(cfg.LockPath)
	c.cleaner = NewCleanupCoordinator(c.s, cfg.Display, c.flk, c.logger)
	c.displayMgr = NewDisplayManager(cfg, c.logger)
	c.rendererMgr = NewRenderManager(cfg, c.logger)
	c.encoderMgr = NewEncoderManager(cfg, c.logger)
	return c
}

// SetLogger replaces the default stderr destination with the supplied
// logger.  The in-memory ring keeps receiving everything regardless.
func (c *Controller) SetLogger(l *log.Logger) {
	c.mlog.RemoveLogger(c.errlog)
	c.errlog = l
	if l != nil {
		c.mlog.AddLogger(l)
	}
}

// GetLog returns buffered log records; see Log.GetRecords.
func (c *Controller) GetLog(last int64) ([]LogRecord, int64) {
	return c.log.GetRecords(last)
}

// WatchLog blocks until the log changes or expire elapses.
func (c *Controller) WatchLog(last int64, expire time.Duration) int64 {
	return c.log.Watch(last, expire)
}

// Status reports the session snapshot.  Error is the sticky error of
// the most recent failure, cleared on the next successful Start.
func (c *Controller) Status() StatusInfo {
	c.s.mx.Lock()
	defer c.s.mx.Unlock()
	return StatusInfo{
		Active: c.s.state == Active,
		State:  c.s.state.String(),
		Error:  c.s.lastErr,
		Since:  c.s.stamp,
	}
}

// Start validates the request, claims the single session slot, and
// brings the pipeline up in strict order: display, then renderer, then
// encoder.  Any startup failure tears down whatever had started and
// leaves the session idle with the error recorded.
func (c *Controller) Start(req StreamRequest) error {
	if req.StreamTarget == "" {
		return ErrMissingTarget
	}
	if req.Content == "" {
		return ErrMissingContent
	}

	c.s.mx.Lock()
	if c.s.state == Starting || c.s.state == Active {
		c.s.mx.Unlock()
		return ErrAlreadyActive
	}
	c.s.state = Starting
	c.s.stamp = time.Now()
	c.s.lastErr = ""
	c.s.mx.Unlock()

	if locked, e := c.flk.TryLock(); e != nil || !locked {
		c.s.setState(Idle)
		if e != nil {
			c.logger.Printf("Failed taking session lock: %v", e)
		}
		return ErrAlreadyActive
	}

	if e := c.bringup(req); e != nil {
		c.logger.Printf("Startup failed: %v", e)
		c.s.recordError(e.Error())
		c.s.setState(Failed)
		c.cleaner.Cleanup()
		c.s.setState(Idle)
		return fmt.Errorf("startup failed: %w", e)
	}

	c.s.mx.Lock()
	won := c.s.state == Starting
	if won {
		c.s.state = Active
		c.s.stamp = time.Now()
	}
	c.s.mx.Unlock()
	if !won {
		// A Stop raced the tail of bringup and already decided the
		// session's fate; finish its job on whatever bringup parked
		// after the stop's own cleanup pass.
		c.mmx.Lock()
		mon := c.monitor
		c.monitor = nil
		c.mmx.Unlock()
		if mon != nil {
			mon.retire()
		}
		c.cleaner.Cleanup()
		c.s.setState(Idle)
		return nil
	}

	c.logger.Printf("Session active")
	return nil
}

// bringup performs the ordered spawn, parking each handle in the
// session as soon as it exists so a later failure can reach it.
func (c *Controller) bringup(req StreamRequest) error {
	dp, e := c.displayMgr.Start(c.cfg.Display, c.cfg.Width, c.cfg.Height)
	if e != nil {
		return e
	}
	c.s.put(dp)

	rp, e := c.rendererMgr.Start(c.cfg.Display, req.Content, c.cfg.Width, c.cfg.Height)
	if e != nil {
		return e
	}
	c.s.put(rp)

	target := ResolveTarget(req.StreamTarget, c.cfg.IngestURL)
	ep, diag, e := c.encoderMgr.Start(c.cfg.Display, c.cfg.Width,
		c.cfg.Height, c.cfg.FrameRate, target)
	if e != nil {
		return e
	}
	c.s.put(ep)

	// The callbacks carry the monitor's identity so a stale monitor,
	// outlived by its session, cannot touch a successor.
	var mon *HealthMonitor
	mon = NewHealthMonitor(
		func(msg string) { c.fault(mon, msg) },
		func() { c.teardown(mon) },
		c.logger)
	c.mmx.Lock()
	c.monitor = mon
	c.mmx.Unlock()
	mon.Watch(diag, ep.Wait)
	return nil
}

// owns reports whether mon is still the session's monitor.
func (c *Controller) owns(mon *HealthMonitor) bool {
	c.mmx.Lock()
	defer c.mmx.Unlock()
	return mon != nil && c.monitor == mon
}

// fault is the monitor's error callback.
func (c *Controller) fault(mon *HealthMonitor, msg string) {
	if c.owns(mon) {
		c.s.recordError(msg)
	}
}

// teardown is the monitor's terminal callback: run cleanup, then park
// the session back at idle.  A monitor that no longer owns the session
// gets a no-op.
func (c *Controller) teardown(mon *HealthMonitor) {
	c.mmx.Lock()
	if c.monitor != mon {
		c.mmx.Unlock()
		return
	}
	c.monitor = nil
	c.mmx.Unlock()
	c.cleaner.Cleanup()
	c.s.setState(Idle)
}

// Stop tears the session down.  Stopping an idle session is a no-op;
// Stop never fails.
func (c *Controller) Stop() error {
	c.mmx.Lock()
	mon := c.monitor
	c.monitor = nil
	c.mmx.Unlock()
	if mon != nil {
		// The encoder exit we are about to cause is not a fault.
		mon.retire()
	}

	c.s.mx.Lock()
	if c.s.state != Idle {
		c.s.state = Stopping
		c.s.stamp = time.Now()
	}
	c.s.mx.Unlock()

	c.cleaner.Cleanup()
	c.s.setState(Idle)
	c.logger.Printf("Session stopped")
	return nil
}
