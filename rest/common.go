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

// Package rest exposes a Controller over HTTP, and provides the
// matching client.
package rest

import (
	"time"
)

const (
	mimeJson = "application/json; charset=UTF-8"
)

var ok struct{}

// StatusInfo is the wire form of the session snapshot.  Error is null
// while no failure has been recorded.
type StatusInfo struct {
	Active bool      `json:"active"`
	State  string    `json:"state"`
	Error  *string   `json:"error"`
	Since  time.Time `json:"since"`
}

// StartRequest is the body of POST /stream/start.
type StartRequest struct {
	StreamTarget string `json:"streamTarget"`
	Content      string `json:"content"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
