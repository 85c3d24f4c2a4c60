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
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// hideChromeJS is evaluated once after load to strip the affordances a
// capture of the page must not show: the cursor and scrollbars.
const hideChromeJS = `() => {
	const style = document.createElement("style")
	style.textContent =
		"* { cursor: none !important; } " +
		"html, body { overflow: hidden !important; }"
	document.head.appendChild(style)
}`

// RenderManager owns the rendering engine: it writes the HTML payload
// to the content path, launches a browser onto the virtual display,
// and drives it over the DevTools protocol until the payload is
// painted.  The browser runs windowed, not headless, because the
// encoder captures the display's framebuffer, not the DevTools
// screencast.
type RenderManager struct {
	bin         string
	contentPath string
	logger      *log.Logger
}

func NewRenderManager(cfg Config, logger *log.Logger) *RenderManager {
	return &RenderManager{
		bin:         cfg.BrowserBin,
		contentPath: cfg.ContentPath,
		logger:      logger,
	}
}

// Start renders content on the given display at the given geometry.
// It returns only after the page has loaded and the post-load script
// has run, so the display is known to be showing the payload before
// the encoder starts capturing it.
func (rm *RenderManager) Start(display, content string, width, height int) (*ManagedProcess, error) {
	if e := rm.writeContent(content); e != nil {
		return nil, fmt.Errorf("writing content: %w", e)
	}

	l := launcher.New().
		Headless(false).
		Leakless(false).
		Set("kiosk").
		Set("no-sandbox").
		Set("window-position", "0,0").
		Set("window-size", fmt.Sprintf("%d,%d", width, height)).
		Set("autoplay-policy", "no-user-gesture-required").
		Set("hide-scrollbars").
		Env(append(os.Environ(), "DISPLAY="+display)...)
	if rm.bin != "" {
		l.Bin(rm.bin)
	} else if path, ok := launcher.LookPath(); ok {
		l.Bin(path)
	}

	u, e := l.Launch()
	if e != nil {
		return nil, fmt.Errorf("launching renderer: %w", e)
	}
	rm.logger.Printf("Renderer started on %s (pid %d)", display, l.PID())

	browser := rod.New().ControlURL(u)
	if e := browser.Connect(); e != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to renderer: %w", e)
	}

	fail := func(e error, what string) (*ManagedProcess, error) {
		if ce := browser.Close(); ce != nil {
			rm.logger.Printf("Failed closing renderer: %v", ce)
		}
		l.Kill()
		return nil, fmt.Errorf("%s: %w", what, e)
	}

	page, e := browser.Page(proto.TargetCreateTarget{
		URL: "file://" + rm.contentPath,
	})
	if e != nil {
		return fail(e, "opening content page")
	}
	if e := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); e != nil {
		return fail(e, "setting viewport")
	}
	if e := page.WaitLoad(); e != nil {
		return fail(e, "loading content")
	}
	if _, e := page.Eval(hideChromeJS); e != nil {
		return fail(e, "hiding page chrome")
	}

	return &ManagedProcess{
		kind: KindRenderer,
		pid:  l.PID(),
		kill: func() error {
			l.Kill()
			return nil
		},
		closefn: browser.Close,
	}, nil
}

func (rm *RenderManager) writeContent(content string) error {
	if e := os.MkdirAll(filepath.Dir(rm.contentPath), 0755); e != nil {
		return e
	}
	return os.WriteFile(rm.contentPath, []byte(content), 0644)
}
