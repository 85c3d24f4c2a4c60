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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package pagecast

import (
	"errors"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeEnv stands in for the three external processes so the
// controller's sequencing and teardown can be tested without spawning
// anything.  Every lifecycle action is appended to events.
type fakeEnv struct {
	mx     sync.Mutex
	events []string
	target string

	failDisplay  error
	failRenderer error
	failEncoder  error

	// holdExit keeps the encoder's exit undelivered after a kill, so
	// tests can release it at a moment of their choosing.
	holdExit bool

	// onRendererStart runs at the top of the renderer spawn, letting
	// tests interleave controller calls mid-bringup.
	onRendererStart func()

	diag *io.PipeWriter
	exit chan error
	dead *sync.Once
}

func (f *fakeEnv) record(ev string) {
	f.mx.Lock()
	f.events = append(f.events, ev)
	f.mx.Unlock()
}

func (f *fakeEnv) eventList() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]string{}, f.events...)
}

func (f *fakeEnv) count(ev string) int {
	n := 0
	for _, e := range f.eventList() {
		if e == ev {
			n++
		}
	}
	return n
}

func (f *fakeEnv) index(ev string) int {
	for i, e := range f.eventList() {
		if e == ev {
			return i
		}
	}
	return -1
}

// exitWith delivers the encoder's exit exactly once and closes its
// diagnostic stream.
func (f *fakeEnv) exitWith(e error) {
	f.mx.Lock()
	dead, diag, exit := f.dead, f.diag, f.exit
	f.mx.Unlock()
	dead.Do(func() {
		exit <- e
		diag.Close()
	})
}

type fakeDisplay struct{ env *fakeEnv }

func (f *fakeDisplay) Start(display string, w, h int) (*ManagedProcess, error) {
	if f.env.failDisplay != nil {
		return nil, f.env.failDisplay
	}
	f.env.record("start display")
	return &ManagedProcess{
		kind: KindDisplay,
		pid:  101,
		kill: func() error {
			f.env.record("kill display")
			return nil
		},
	}, nil
}

type fakeRenderer struct{ env *fakeEnv }

func (f *fakeRenderer) Start(display, content string, w, h int) (*ManagedProcess, error) {
	if f.env.onRendererStart != nil {
		f.env.onRendererStart()
	}
	if f.env.failRenderer != nil {
		return nil, f.env.failRenderer
	}
	f.env.record("start renderer")
	return &ManagedProcess{
		kind: KindRenderer,
		pid:  102,
		kill: func() error {
			f.env.record("kill renderer")
			return nil
		},
		closefn: func() error {
			f.env.record("close renderer")
			return nil
		},
	}, nil
}

type fakeEncoder struct{ env *fakeEnv }

func (f *fakeEncoder) Start(display string, w, h, fr int, target string) (*ManagedProcess, io.ReadCloser, error) {
	if f.env.failEncoder != nil {
		return nil, nil, f.env.failEncoder
	}
	f.env.record("start encoder")
	pr, pw := io.Pipe()
	f.env.mx.Lock()
	f.env.target = target
	f.env.diag = pw
	f.env.exit = make(chan error, 1)
	f.env.dead = &sync.Once{}
	exit := f.env.exit
	f.env.mx.Unlock()
	mp := &ManagedProcess{
		kind: KindEncoder,
		pid:  103,
		kill: func() error {
			f.env.record("kill encoder")
			if !f.env.holdExit {
				f.env.exitWith(errors.New("signal: killed"))
			}
			return nil
		},
		wait: func() error {
			return <-exit
		},
	}
	return mp, pr, nil
}

func newTestController(t *testing.T) (*Controller, *fakeEnv) {
	c := NewController(Config{
		// A display number nothing on the host will be serving,
		// so the stray sweep has nothing to find.
		Display:  ":217",
		LockPath: filepath.Join(t.TempDir(), "pagecast.lock"),
	})
	SetTestLogger(t, c)
	env := &fakeEnv{}
	c.displayMgr = &fakeDisplay{env}
	c.rendererMgr = &fakeRenderer{env}
	c.encoderMgr = &fakeEncoder{env}
	return c, env
}

// shExit produces a genuine process exit error with the given code.
func shExit(code int) error {
	if code == 0 {
		return nil
	}
	return exec.Command("/bin/sh", "-c", "exit "+strconv.Itoa(code)).Run()
}

func TestStartValidation(t *testing.T) {
	Convey("Invalid requests are rejected before anything spawns", t, func() {
		c, env := newTestController(t)

		e := c.Start(StreamRequest{Content: "<html></html>"})
		So(e, ShouldEqual, ErrMissingTarget)

		e = c.Start(StreamRequest{StreamTarget: "key"})
		So(e, ShouldEqual, ErrMissingContent)

		So(env.eventList(), ShouldBeEmpty)
		st := c.Status()
		So(st.Active, ShouldBeFalse)
		So(st.State, ShouldEqual, "idle")
	})
}

func TestStartStop(t *testing.T) {
	Convey("A session starts in order and stops in reverse", t, func() {
		c, env := newTestController(t)

		e := c.Start(StreamRequest{
			StreamTarget: "mykey",
			Content:      "<html></html>",
		})
		So(e, ShouldBeNil)

		st := c.Status()
		So(st.Active, ShouldBeTrue)
		So(st.State, ShouldEqual, "active")
		So(st.Error, ShouldEqual, "")

		So(env.eventList(), ShouldResemble,
			[]string{"start display", "start renderer", "start encoder"})
		So(env.target, ShouldEqual, "rtmp://a.rtmp.youtube.com/live2/mykey")

		Convey("A second start is rejected", func() {
			e := c.Start(StreamRequest{
				StreamTarget: "other",
				Content:      "<html></html>",
			})
			So(e, ShouldEqual, ErrAlreadyActive)
		})

		Convey("Stop tears down encoder, renderer, display in order", func() {
			e := c.Stop()
			So(e, ShouldBeNil)

			st := c.Status()
			So(st.Active, ShouldBeFalse)
			So(st.State, ShouldEqual, "idle")
			So(st.Error, ShouldEqual, "")

			ke := env.index("kill encoder")
			cr := env.index("close renderer")
			kd := env.index("kill display")
			So(ke, ShouldBeGreaterThanOrEqualTo, 0)
			So(cr, ShouldBeGreaterThan, ke)
			So(kd, ShouldBeGreaterThan, cr)

			Convey("A second stop is a no-op", func() {
				So(c.Stop(), ShouldBeNil)
				So(env.count("kill encoder"), ShouldEqual, 1)
				So(env.count("close renderer"), ShouldEqual, 1)
				So(env.count("kill display"), ShouldEqual, 1)
			})
		})
	})
}

func TestVerbatimTarget(t *testing.T) {
	Convey("A full rtmp URL is used verbatim", t, func() {
		c, env := newTestController(t)
		e := c.Start(StreamRequest{
			StreamTarget: "rtmp://ingest.example.com/app/key",
			Content:      "<html></html>",
		})
		So(e, ShouldBeNil)
		So(env.target, ShouldEqual, "rtmp://ingest.example.com/app/key")
		c.Stop()
	})
}

func TestStartupFailure(t *testing.T) {
	Convey("A renderer failure rolls back what had started", t, func() {
		c, env := newTestController(t)
		env.failRenderer = errors.New("no browser found")

		e := c.Start(StreamRequest{
			StreamTarget: "mykey",
			Content:      "<html></html>",
		})
		So(e, ShouldNotBeNil)
		So(e.Error(), ShouldContainSubstring, "no browser found")

		st := c.Status()
		So(st.Active, ShouldBeFalse)
		So(st.State, ShouldEqual, "idle")
		So(st.Error, ShouldContainSubstring, "no browser found")
		So(env.count("kill display"), ShouldEqual, 1)

		Convey("The slot is free again afterwards", func() {
			env.failRenderer = nil
			e := c.Start(StreamRequest{
				StreamTarget: "mykey",
				Content:      "<html></html>",
			})
			So(e, ShouldBeNil)
			So(c.Status().Error, ShouldEqual, "")
			c.Stop()
		})
	})
}

func TestEncoderFault(t *testing.T) {
	Convey("A fault signature on the diagnostic stream fails the session", t, func() {
		c, env := newTestController(t)

		e := c.Start(StreamRequest{
			StreamTarget: "mykey",
			Content:      "<html></html>",
		})
		So(e, ShouldBeNil)

		io.WriteString(env.diag,
			"[rtmp @ 0x1] Server error: Authentication failed.\n")

		So(waitFor(func() bool {
			return !c.Status().Active
		}), ShouldBeTrue)

		st := c.Status()
		So(st.Error, ShouldEqual, "Stream failed: Authentication failed")
		So(waitFor(func() bool {
			return env.count("kill display") == 1
		}), ShouldBeTrue)
		So(c.Status().State, ShouldEqual, "idle")
	})
}

func TestEncoderUnexpectedExit(t *testing.T) {
	Convey("A nonzero encoder exit records an error and cleans up", t, func() {
		c, env := newTestController(t)

		e := c.Start(StreamRequest{
			StreamTarget: "mykey",
			Content:      "<html></html>",
		})
		So(e, ShouldBeNil)

		env.exitWith(shExit(1))

		So(waitFor(func() bool {
			return c.Status().Error != ""
		}), ShouldBeTrue)
		So(c.Status().Error, ShouldEqual,
			"encoder exited unexpectedly with code 1")
		So(waitFor(func() bool {
			return env.count("kill display") == 1
		}), ShouldBeTrue)
		So(c.Status().Active, ShouldBeFalse)
	})
}

func TestEncoderCleanExit(t *testing.T) {
	Convey("A zero encoder exit cleans up without recording an error", t, func() {
		c, env := newTestController(t)

		e := c.Start(StreamRequest{
			StreamTarget: "mykey",
			Content:      "<html></html>",
		})
		So(e, ShouldBeNil)

		env.exitWith(shExit(0))

		So(waitFor(func() bool {
			return env.count("kill display") == 1
		}), ShouldBeTrue)
		st := c.Status()
		So(st.Active, ShouldBeFalse)
		So(st.Error, ShouldEqual, "")
	})
}

func TestStaleMonitorExit(t *testing.T) {
	Convey("A prior session's late encoder exit cannot touch its successor", t, func() {
		c, env := newTestController(t)
		env.holdExit = true

		req := StreamRequest{StreamTarget: "mykey", Content: "<html></html>"}
		So(c.Start(req), ShouldBeNil)

		// Stop kills the encoder, but the old exit stays pending.
		oldExit := env.exit
		So(c.Stop(), ShouldBeNil)
		So(c.Status().State, ShouldEqual, "idle")

		So(c.Start(req), ShouldBeNil)
		So(c.Status().Active, ShouldBeTrue)

		// Now the first encoder's exit finally lands.
		oldExit <- errors.New("signal: killed")
		time.Sleep(100 * time.Millisecond)

		st := c.Status()
		So(st.Active, ShouldBeTrue)
		So(st.State, ShouldEqual, "active")
		So(st.Error, ShouldEqual, "")
		So(env.count("kill encoder"), ShouldEqual, 1)
		So(env.count("kill display"), ShouldEqual, 1)
		c.Stop()
	})
}

func TestStopDuringStartup(t *testing.T) {
	Convey("A stop racing bringup still ends with everything torn down", t, func() {
		c, env := newTestController(t)
		env.onRendererStart = func() {
			env.onRendererStart = nil
			c.Stop()
		}

		e := c.Start(StreamRequest{
			StreamTarget: "mykey",
			Content:      "<html></html>",
		})
		So(e, ShouldBeNil)

		st := c.Status()
		So(st.Active, ShouldBeFalse)
		So(st.State, ShouldEqual, "idle")
		So(env.count("kill display"), ShouldEqual, 1)
		So(env.count("close renderer"), ShouldEqual, 1)
		So(env.count("kill encoder"), ShouldEqual, 1)
	})
}

func TestSessionLock(t *testing.T) {
	Convey("The session lock spans controllers", t, func() {
		lock := filepath.Join(t.TempDir(), "pagecast.lock")

		c1 := NewController(Config{Display: ":217", LockPath: lock})
		SetTestLogger(t, c1)
		env1 := &fakeEnv{}
		c1.displayMgr = &fakeDisplay{env1}
		c1.rendererMgr = &fakeRenderer{env1}
		c1.encoderMgr = &fakeEncoder{env1}

		c2 := NewController(Config{Display: ":218", LockPath: lock})
		SetTestLogger(t, c2)
		env2 := &fakeEnv{}
		c2.displayMgr = &fakeDisplay{env2}
		c2.rendererMgr = &fakeRenderer{env2}
		c2.encoderMgr = &fakeEncoder{env2}

		req := StreamRequest{StreamTarget: "k", Content: "<html></html>"}
		So(c1.Start(req), ShouldBeNil)
		So(c2.Start(req), ShouldEqual, ErrAlreadyActive)

		So(c1.Stop(), ShouldBeNil)
		So(c2.Start(req), ShouldBeNil)
		c2.Stop()
	})
}
