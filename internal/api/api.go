// Copyright (C) 2026 plc-bridge contributors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api is the admin HTTP surface described in §4.7 of the design
// notes: listing configured PLCs, forcing a disconnect, allowing
// a blacklisted PLC to reconnect, and reporting cache/broadcaster
// stats. It follows a familiar REST-handler shape: a struct holding the
// component handles, mounted onto a mux.Router subrouter, every handler
// replying through the same handleError/ErrorResponse convention.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/plc-bridge/bridge/internal/broadcaster"
	"github.com/plc-bridge/bridge/internal/ingestion"
	"github.com/plc-bridge/bridge/internal/store"
	"github.com/plc-bridge/bridge/internal/tagcache"
	"github.com/plc-bridge/bridge/pkg/log"
	"github.com/plc-bridge/bridge/pkg/schema"
)

// @title                      plc-bridge Admin API
// @version                    1.0.0
// @description                Operational control surface for the PLC data bridge.

// @tag.name Admin

// @license.name               MIT License
// @license.url                https://opensource.org/licenses/MIT

// @basePath                   /admin

// Api wires the admin HTTP handlers to the running components. Dev is set
// when the operator wants /admin/swagger mounted, the same kind of toggle
// a GraphQL playground or swagger UI is typically gated behind outside
// of production.
type Api struct {
	Store   store.Store
	Engine  *ingestion.Engine
	Cache   *tagcache.Cache
	Bcaster *broadcaster.Broadcaster
	Dev     bool
}

// ErrorResponse model
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func handleError(err error, statusCode int, rw http.ResponseWriter) {
	log.Warnf("admin api: %s", err.Error())
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(ErrorResponse{
		Status: http.StatusText(statusCode),
		Error:  err.Error(),
	})
}

// MountRoutes registers every /admin/... route on r.
func (a *Api) MountRoutes(r *mux.Router) {
	r = r.PathPrefix("/admin").Subrouter()
	r.StrictSlash(true)

	r.HandleFunc("/plcs", a.getPLCs).Methods(http.MethodGet)
	r.HandleFunc("/plcs/{id}/disconnect", a.disconnectPLC).Methods(http.MethodPost)
	r.HandleFunc("/plcs/{id}/allow-reconnect", a.allowReconnect).Methods(http.MethodPost)
	r.HandleFunc("/stats", a.getStats).Methods(http.MethodGet)

	if a.Dev {
		r.PathPrefix("/swagger").Handler(httpSwagger.WrapHandler)
	}
}

// getPLCs godoc
// @summary     Lists every PLC the schema store knows about
// @tags        Admin
// @produce     json
// @success     200 {object} PLCsResponse
// @failure     500 {object} ErrorResponse
// @router      /admin/plcs [get]
func (a *Api) getPLCs(rw http.ResponseWriter, r *http.Request) {
	ids, err := a.Store.ListConfiguredPLCs(r.Context())
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	writeJSON(rw, PLCsResponse{PLCs: ids})
}

// PLCsResponse model
type PLCsResponse struct {
	PLCs []schema.PlcIdentity `json:"plcs"`
}

// disconnectPLC godoc
// @summary     Forces the ingestion engine to drop and blacklist a PLC
// @tags        Admin
// @param       id path string true "PLC identity"
// @success     204
// @router      /admin/plcs/{id}/disconnect [post]
func (a *Api) disconnectPLC(rw http.ResponseWriter, r *http.Request) {
	id := schema.PlcIdentity(mux.Vars(r)["id"])
	a.Engine.Disconnect(id)
	rw.WriteHeader(http.StatusNoContent)
}

// allowReconnect godoc
// @summary     Removes a PLC from the ingestion engine's reconnect blacklist
// @tags        Admin
// @param       id path string true "PLC identity"
// @success     204
// @router      /admin/plcs/{id}/allow-reconnect [post]
func (a *Api) allowReconnect(rw http.ResponseWriter, r *http.Request) {
	id := schema.PlcIdentity(mux.Vars(r)["id"])
	a.Engine.AllowReconnect(id)
	rw.WriteHeader(http.StatusNoContent)
}

// StatsResponse model
type StatsResponse struct {
	TagCacheSize     int `json:"tag_cache_size"`
	BroadcastClients int `json:"broadcast_clients"`
}

// getStats godoc
// @summary     Reports current cache occupancy and client count
// @tags        Admin
// @produce     json
// @success     200 {object} StatsResponse
// @router      /admin/stats [get]
func (a *Api) getStats(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, StatsResponse{
		TagCacheSize:     a.Cache.Len(),
		BroadcastClients: a.Bcaster.ActiveClients(),
	})
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Add("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(v)
}
