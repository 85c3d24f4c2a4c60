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
	"os"
	"path/filepath"
	"time"
)

// Config carries the tunables for a Controller.  The zero value is
// usable; setDefaults fills in anything left unset.
type Config struct {
	// Display is the X display the virtual display server owns,
	// e.g. ":99".
	Display string

	// Width, Height and FrameRate describe the capture geometry.
	Width     int
	Height    int
	FrameRate int

	// IngestURL is the default RTMP ingest endpoint.  Stream targets
	// that are not full rtmp:// URLs are appended to it as keys.
	IngestURL string

	// ContentPath is where the HTML payload is written before the
	// renderer is pointed at it.  Overwritten on every start.
	ContentPath string

	// DisplayBin, BrowserBin, and EncoderBin name the external
	// binaries.  BrowserBin empty means autodetect.
	DisplayBin string
	BrowserBin string
	EncoderBin string

	// LockPath is the file lock enforcing one active session per
	// host across controller processes.
	LockPath string

	// ReadyPoll and ReadyWait bound the display readiness probe:
	// the display socket is polled every ReadyPoll until it appears
	// or ReadyWait has elapsed.
	ReadyPoll time.Duration
	ReadyWait time.Duration
}

func (c *Config) setDefaults() {
	if c.Display == "" {
		c.Display = ":99"
	}
	if c.Width == 0 {
		c.Width = 1280
	}
	if c.Height == 0 {
		c.Height = 720
	}
	if c.FrameRate == 0 {
		c.FrameRate = 30
	}
	if c.IngestURL == "" {
		c.IngestURL = "rtmp://a.rtmp.youtube.com/live2/"
	}
	if c.ContentPath == "" {
		c.ContentPath = filepath.Join(os.TempDir(), "pagecast", "content.html")
	}
	if c.DisplayBin == "" {
		c.DisplayBin = "Xvfb"
	}
	if c.EncoderBin == "" {
		c.EncoderBin = "ffmpeg"
	}
	if c.LockPath == "" {
		c.LockPath = filepath.Join(os.TempDir(), "pagecast.lock")
	}
	if c.ReadyPoll == 0 {
		c.ReadyPoll = 100 * time.Millisecond
	}
	if c.ReadyWait == 0 {
		c.ReadyWait = 5 * time.Second
	}
}
