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

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pagecast/pagecast"
)

// Client talks to a Handler on the other end of an HTTP connection.
type Client struct {
	user    string // HTTP Basic-Auth
	pass    string
	base    string // URI to root of tree on server
	auth    bool
	timeout time.Duration
	client  *http.Client
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) get(url string, etag string, v interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, e := http.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return etag, nil
	}
	if res.StatusCode != http.StatusOK {
		return "", decodeError(res)
	}
	body, e := io.ReadAll(res.Body)
	if e != nil {
		return "", e
	}
	if e := json.Unmarshal(body, v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func (c *Client) post(url string, body interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, e := json.Marshal(body)
		if e != nil {
			return e
		}
		rd = bytes.NewReader(b)
	}
	req, e := http.NewRequestWithContext(ctx, "POST", url, rd)
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", mimeJson)
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return decodeError(res)
	}
	return nil
}

// decodeError prefers the structured error body the server writes,
// falling back to the HTTP status.
func decodeError(res *http.Response) error {
	re := &Error{}
	if body, e := io.ReadAll(res.Body); e == nil {
		if e := json.Unmarshal(body, re); e == nil && re.Code != 0 {
			return re
		}
	}
	return &Error{Code: res.StatusCode, Message: res.Status}
}

// Status returns the current session snapshot.
func (c *Client) Status() (*StatusInfo, error) {
	v := &StatusInfo{}
	if _, e := c.get(c.base+"/stream", "", v); e != nil {
		return nil, e
	}
	return v, nil
}

// Start asks the server to begin streaming content to target.
func (c *Client) Start(target string, content string) error {
	return c.post(c.base+"/stream/start", &StartRequest{
		StreamTarget: target,
		Content:      content,
	})
}

// Stop asks the server to tear the session down.
func (c *Client) Stop() error {
	return c.post(c.base+"/stream/stop", nil)
}

// GetLog fetches the buffered log records, returning them plus a
// cursor for the next call.  Passing the cursor back yields nothing
// until the log has changed.
func (c *Client) GetLog(since int64) ([]pagecast.LogRecord, int64, error) {
	recs := []pagecast.LogRecord{}
	url := c.base + "/log"
	if since != 0 {
		url += "?since=" + strconv.FormatInt(since, 10)
	}
	etag, e := c.get(url, "", &recs)
	if e != nil {
		return nil, since, e
	}
	next := since
	if etag != "" {
		if v, pe := strconv.ParseInt(etag, 10, 64); pe == nil {
			next = v
		}
	}
	return recs, next, nil
}

// NewClient returns a Client handle.  The transport may be nil to use
// a default transport, but it may also be adjusted to support
// additional options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		base:    baseURI,
		timeout: 10 * time.Second,
		client:  &http.Client{Transport: t},
	}
}
