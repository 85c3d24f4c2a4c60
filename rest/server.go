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
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pagecast/pagecast"
)

// Controller is the slice of the pagecast controller the handler
// needs.  *pagecast.Controller satisfies it.
type Controller interface {
	Status() pagecast.StatusInfo
	Start(pagecast.StreamRequest) error
	Stop() error
	GetLog(last int64) ([]pagecast.LogRecord, int64)
}

// Handler wraps a Controller, adding http.Handler functionality.
type Handler struct {
	c Controller
	r *mux.Router
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

func (h *Handler) getStream(w http.ResponseWriter, r *http.Request) {
	st := h.c.Status()
	info := &StatusInfo{
		Active: st.Active,
		State:  st.State,
		Since:  st.Since,
	}
	if st.Error != "" {
		info.Error = &st.Error
	}
	h.writeJson(w, info)
}

func (h *Handler) startStream(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if e := json.NewDecoder(r.Body).Decode(&req); e != nil {
		h.writeError(w, &Error{http.StatusBadRequest, e.Error()})
		return
	}
	e := h.c.Start(pagecast.StreamRequest{
		StreamTarget: req.StreamTarget,
		Content:      req.Content,
	})
	switch {
	case e == nil:
		h.writeJson(w, ok)
	case errors.Is(e, pagecast.ErrAlreadyActive):
		h.writeError(w, &Error{http.StatusConflict, e.Error()})
	case errors.Is(e, pagecast.ErrMissingTarget),
		errors.Is(e, pagecast.ErrMissingContent):
		h.writeError(w, &Error{http.StatusBadRequest, e.Error()})
	default:
		h.writeError(w, &Error{http.StatusInternalServerError, e.Error()})
	}
}

func (h *Handler) stopStream(w http.ResponseWriter, r *http.Request) {
	if e := h.c.Stop(); e != nil {
		// Stop is documented to never fail, but keep the path sane.
		h.writeError(w, &Error{http.StatusInternalServerError, e.Error()})
		return
	}
	h.writeJson(w, ok)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		v, e := strconv.ParseInt(s, 10, 64)
		if e != nil {
			h.writeError(w, &Error{http.StatusBadRequest, "Bad since value"})
			return
		}
		since = v
	}
	recs, id := h.c.GetLog(since)
	etag := strconv.FormatInt(id, 10)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if recs == nil {
		recs = []pagecast.LogRecord{}
	}
	w.Header().Set("Etag", etag)
	h.writeJson(w, recs)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(c Controller) *Handler {
	r := mux.NewRouter()
	h := &Handler{c: c, r: r}
	r.HandleFunc("/stream", h.getStream).Methods("GET")
	r.HandleFunc("/stream/start", h.startStream).Methods("POST")
	r.HandleFunc("/stream/stop", h.stopStream).Methods("POST")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	return h
}
