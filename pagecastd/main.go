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

// Command pagecastd runs a pagecast controller behind an HTTP control
// API.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pagecast/pagecast"
	"github.com/pagecast/pagecast/rest"
)

var addr string = "127.0.0.1:8417"
var display string = ":99"
var size string = "1280x720"
var rate int = 30
var ingest string = ""
var content string = ""
var browser string = ""
var ffmpeg string = ""
var lockPath string = ""
var auth string = ""

func main() {
	flag.StringVar(&addr, "a", addr, "listen address")
	flag.StringVar(&display, "d", display, "X display for the virtual display server")
	flag.StringVar(&size, "s", size, "capture resolution (WxH)")
	flag.IntVar(&rate, "r", rate, "capture frame rate")
	flag.StringVar(&ingest, "i", ingest, "default RTMP ingest endpoint")
	flag.StringVar(&content, "c", content, "content file path")
	flag.StringVar(&browser, "browser", browser, "browser binary (autodetect if empty)")
	flag.StringVar(&ffmpeg, "ffmpeg", ffmpeg, "ffmpeg binary")
	flag.StringVar(&lockPath, "lock", lockPath, "session lock file path")
	flag.StringVar(&auth, "auth", auth, "basic auth as user:bcrypt-hash")
	flag.Parse()

	var width, height int
	if n, e := fmt.Sscanf(size, "%dx%d", &width, &height); n != 2 || e != nil {
		log.Fatalf("Bad resolution %q: want WxH", size)
	}

	c := pagecast.NewController(pagecast.Config{
		Display:     display,
		Width:       width,
		Height:      height,
		FrameRate:   rate,
		IngestURL:   ingest,
		ContentPath: content,
		BrowserBin:  browser,
		EncoderBin:  ffmpeg,
		LockPath:    lockPath,
	})

	h := http.Handler(rest.NewHandler(c))
	if auth != "" {
		user, hash, found := strings.Cut(auth, ":")
		if !found {
			log.Fatalf("Bad auth value: want user:bcrypt-hash")
		}
		h = rest.BasicAuth(h, user, hash)
	}

	sigs := make(chan os.Signal, 1)
	done := make(chan bool, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		log.Fatal(http.ListenAndServe(addr, h))
	}()

	// Set up a handler, so that we shutdown cleanly if possible.
	go func() {
		<-sigs
		done <- true
	}()

	// Wait for a termination signal, and tear the session down before
	// exiting so no display server or encoder outlives us.
	<-done
	c.Stop()
	os.Exit(1)
}
