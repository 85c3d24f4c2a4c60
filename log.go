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
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a fixed-size in-memory ring of log records.  It implements
// io.Writer so a log.Logger can feed it, and it hands out monotonic
// record IDs that double as change cookies for the REST log endpoint.
type Log struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

func (l *Log) lock() {
	l.mx.Lock()
}

func (l *Log) unlock() {
	l.mx.Unlock()
}

// Write implements the Writer interface consumed by Logger.
func (l *Log) Write(b []byte) (int, error) {
	if l.maxRecords == 0 {
		l.maxRecords = MaxLogRecords
	}
	if l.records == nil {
		l.records = make([]LogRecord, l.maxRecords)
		l.numRecords = 0
	}
	str := strings.Trim(string(b), "\n")
	l.lock()
	for _, line := range strings.Split(str, "\n") {
		idx := l.numRecords % l.maxRecords
		l.id++
		l.records[idx].Text = line
		l.records[idx].Id = l.id
		l.records[idx].Time = time.Now()
		// numRecords keeps counting past maxRecords once the
		// ring has wrapped; it really tracks the next index.
		l.numRecords++
	}
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.unlock()
	return len(b), nil
}

func (l *Log) Clear() {
	l.lock()
	l.numRecords = 0
	// We presume that we cannot add new records more quickly than
	// once every nanosecond.
	l.id = time.Now().UnixNano()
	l.unlock()
}

// GetRecords returns the stored records, plus an ID suitable for use
// as an Etag.  If last is the ID from a previous call and nothing has
// been logged since, it returns nil immediately rather than repeating
// records.  IDs are not unique across different Log instances.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.lock()
	if l.id == last {
		l.unlock()
		return nil, last
	}
	var recs []LogRecord
	cnt := l.numRecords
	cur := l.numRecords
	if l.numRecords > l.maxRecords {
		recs = make([]LogRecord, 0, l.maxRecords)
		cnt = l.maxRecords
	} else {
		recs = make([]LogRecord, 0, l.numRecords)
	}
	if cnt > cur {
		cnt = cur
	}
	index := cur - cnt
	for j := 0; j < cnt; j++ {
		recs = append(recs, l.records[index%l.maxRecords])
		index++
	}
	id := l.id
	l.unlock()
	return recs, id
}

// Watch blocks until the log has changed relative to last, or until
// expire has elapsed, and returns the current ID.
func (l *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&l.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			l.lock()
			expired = true
			cv.Broadcast()
			l.unlock()
		})
	} else {
		expired = true
	}

	l.lock()
	l.cvs[cv] = true
	for {
		if l.id != last || expired {
			break
		}
		cv.Wait()
	}
	delete(l.cvs, cv)
	if l.id != last {
		last = l.id
	}
	l.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewLog returns a Log instance.
func NewLog() *Log {
	l := &Log{
		maxRecords: MaxLogRecords,
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
	}
	return l
}
