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

// Package pagecast turns a caller supplied HTML payload into a live
// RTMP stream.  It does this by supervising three external processes:
// a virtual display server (Xvfb), a Chromium instance driven over the
// DevTools protocol that paints the payload into the display, and an
// ffmpeg pipeline that captures the display, encodes it together with
// a synthesized silent audio track, and publishes the result to an
// ingest endpoint.
//
// The package's job is supervision, not rendering: strict startup
// ordering (display, then renderer, then encoder), continuous fault
// detection on the encoder's diagnostic output, and idempotent ordered
// teardown on every exit path.  At most one streaming session may be
// active per controller, and a file lock extends that guarantee across
// controller processes sharing a host.
//
// An HTTP control surface for the controller lives in the rest
// subpackage; the pagecastd command ties the two together into a
// daemon.
package pagecast
