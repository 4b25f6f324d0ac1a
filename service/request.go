package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/sievedata/pivot/api"
	"github.com/sievedata/pivot/service/srverr"
	"go.uber.org/zap"
)

type Request struct {
	*http.Request
	Logger *zap.Logger
}

func newRequest(w http.ResponseWriter, r *http.Request, c *Core) (*ResponseWriter, *Request) {
	req := &Request{Request: r}
	req.Logger = c.logger.With(zap.String("request_id", req.ID()))
	return &ResponseWriter{
		ResponseWriter: w,
		Logger:         req.Logger,
		request:        req,
	}, req
}

func (r *Request) ID() string {
	return api.RequestIDFromContext(r.Context())
}

// ConfigID extracts the configuration id from the request path.
func (r *Request) ConfigID(w *ResponseWriter) (string, bool) {
	return r.StringFromPath(w, "config")
}

func (r *Request) StringFromPath(w *ResponseWriter, arg string) (string, bool) {
	v := mux.Vars(r.Request)
	s, ok := v[arg]
	if !ok {
		w.Error(srverr.ErrInvalid("no arg %q in path", arg))
		return "", false
	}
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		w.Error(srverr.ErrInvalid("invalid path param %q: %w", arg, err))
		return "", false
	}
	return decoded, true
}

// Unmarshal decodes a JSON request body.  An empty body leaves the
// target untouched, which lets endpoints with optional bodies share
// this path.
func (r *Request) Unmarshal(w *ResponseWriter, body interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(body)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	w.Error(srverr.ErrInvalid("invalid JSON body: %w", err))
	return false
}

type ResponseWriter struct {
	http.ResponseWriter
	Logger  *zap.Logger
	request *Request
	written int32
}

func (w *ResponseWriter) Respond(status int, body interface{}) bool {
	if atomic.CompareAndSwapInt32(&w.written, 0, 1) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		w.Logger.Warn("Error writing response", zap.Error(err))
		return false
	}
	return true
}

func (w *ResponseWriter) Error(err error) {
	if err == context.Canceled && err == w.request.Context().Err() {
		w.Logger.Info("Request context canceled")
		return
	}
	status, res := errorResponse(err)
	if status >= 500 {
		w.Logger.Warn("Error", zap.Int("status", status), zap.Error(err))
	}
	if atomic.CompareAndSwapInt32(&w.written, 0, 1) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(res); err != nil {
			w.Logger.Warn("Error writing response", zap.Error(err))
		}
	}
}

func errorResponse(e error) (status int, ae *api.Error) {
	ae = &api.Error{Type: "Error", Message: e.Error()}

	var se *srverr.Error
	if !errors.As(e, &se) {
		se = &srverr.Error{Err: e}
	}
	if errors.Is(e, os.ErrNotExist) {
		se.Kind = srverr.KindNotFound
	}
	ae.Kind = se.Kind.String()

	switch se.Kind {
	case srverr.KindInvalid:
		status = http.StatusBadRequest
	case srverr.KindNotFound:
		status = http.StatusNotFound
	case srverr.KindExists, srverr.KindConflict:
		status = http.StatusConflict
	case srverr.KindNoCredentials:
		status = http.StatusUnauthorized
	case srverr.KindUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	return status, ae
}
