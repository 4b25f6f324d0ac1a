package service

import (
	"net/http"

	"github.com/sievedata/pivot/api"
)

func handlePivotPost(c *Core, w *ResponseWriter, r *Request) {
	id, ok := r.ConfigID(w)
	if !ok {
		return
	}
	var req api.PivotRequest
	if !r.Unmarshal(w, &req) {
		return
	}
	result, err := c.driver.Compute(r.Context(), id, req)
	if err != nil {
		w.Error(err)
		return
	}
	w.Respond(http.StatusOK, result)
}

func handlePivotGet(c *Core, w *ResponseWriter, r *Request) {
	id, ok := r.ConfigID(w)
	if !ok {
		return
	}
	result, err := c.driver.GetData(r.Context(), id)
	if err != nil {
		w.Error(err)
		return
	}
	w.Respond(http.StatusOK, result)
}

func handleRefreshPost(c *Core, w *ResponseWriter, r *Request) {
	id, ok := r.ConfigID(w)
	if !ok {
		return
	}
	result, err := c.driver.Refresh(r.Context(), id)
	if err != nil {
		w.Error(err)
		return
	}
	w.Respond(http.StatusOK, result)
}

func handleStatusGet(c *Core, w *ResponseWriter, r *Request) {
	id, ok := r.ConfigID(w)
	if !ok {
		return
	}
	rec, err := c.driver.GetStatus(r.Context(), id)
	if err != nil {
		w.Error(err)
		return
	}
	w.Respond(http.StatusOK, rec)
}

func handleSavePost(c *Core, w *ResponseWriter, r *Request) {
	id, ok := r.ConfigID(w)
	if !ok {
		return
	}
	var req api.SaveRequest
	if !r.Unmarshal(w, &req) {
		return
	}
	res, err := c.driver.Save(r.Context(), id, req.Filename)
	if err != nil {
		w.Error(err)
		return
	}
	w.Respond(http.StatusOK, res)
}
