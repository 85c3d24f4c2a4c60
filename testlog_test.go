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
	"strings"
	"sync"
	"testing"
	"time"
)

// testLogWriter routes controller logging through the test log, so
// output shows up attached to the right test.  It goes quiet once the
// test finishes, since supervision goroutines can outlive a test body.
type testLogWriter struct {
	t    *testing.T
	mx   sync.Mutex
	done bool
}

func (w *testLogWriter) Write(b []byte) (int, error) {
	w.mx.Lock()
	defer w.mx.Unlock()
	if !w.done {
		w.t.Log(strings.Trim(string(b), "\n"))
	}
	return len(b), nil
}

func SetTestLogger(t *testing.T, c *Controller) {
	w := &testLogWriter{t: t}
	t.Cleanup(func() {
		w.mx.Lock()
		w.done = true
		w.mx.Unlock()
	})
	c.SetLogger(log.New(w, "", 0))
}

// waitFor polls cond for up to a second; supervision runs on its own
// goroutines so observable effects are eventual.
func waitFor(cond func() bool) bool {
	for i := 0; i < 100; i++ {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
