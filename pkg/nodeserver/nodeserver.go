// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package nodeserver is the storage node's HTTP dispatcher: it decodes a
// wire.Request, drives pkg/blockstore, and answers a wire.Response, for
// every command in the §6 table plus the admin probe stubs. It mirrors the
// teacher's serve.go shape: one mux, one ListenAndServe, a /metrics
// endpoint, graceful shutdown on SIGINT/SIGTERM.
package nodeserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/blockstore"
	"github.com/kraklabs/lachepas/pkg/fingerprint"
	"github.com/kraklabs/lachepas/pkg/wire"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lachepas_node_requests_total",
		Help: "Total wire protocol requests handled, by command and outcome.",
	}, []string{"command", "outcome"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "lachepas_node_request_duration_seconds",
		Help: "Wire protocol request handling latency, by command.",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

// Server hosts pkg/blockstore behind the wire protocol's HTTP binding.
type Server struct {
	store *blockstore.Store
}

// New builds a Server over an already-opened Store. Callers run
// store.EnsureBuckets before handing the store to New.
func New(store *blockstore.Store) *Server {
	return &Server{store: store}
}

// Mux builds the http.ServeMux the HTTP server listens on: the dispatch
// endpoint plus /metrics and /healthz.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/gfs", s.handleDispatch)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req wire.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, wire.NewErrorResponse("malformed request: "+err.Error()))
		return
	}

	start := time.Now()
	resp := s.dispatch(req)
	requestDuration.WithLabelValues(req.Command).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if !resp.RC() {
		outcome = "error"
	}
	requestsTotal.WithLabelValues(req.Command, outcome).Inc()

	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp wire.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) dispatch(req wire.Request) wire.Response {
	for _, admin := range wire.AdminCommands {
		if req.Command == admin {
			return wire.NewErrorResponse("not implemented")
		}
	}

	switch req.Command {
	case wire.CmdFileAdd:
		return s.handleFileAdd(req)
	case wire.CmdFileUpdate:
		return s.handleFileUpdate(req)
	case wire.CmdFileDelete:
		return s.handleFileDelete(req)
	case wire.CmdFileRetrieve:
		return s.handleFileRetrieve(req)
	case wire.CmdFileID:
		return s.handleFileID(req)
	case wire.CmdFileList:
		return s.handleFileList(req)
	case wire.CmdDirList:
		return s.handleDirList(req)
	default:
		return wire.NewErrorResponse("unknown command: " + req.Command)
	}
}

func (s *Server) handleFileAdd(req wire.Request) wire.Response {
	uniqueID := req.Headers[wire.HeaderUniqueID]
	if uniqueID == "" {
		return wire.NewErrorResponse("missing gfs_unique_id")
	}

	bucket, name, err := s.store.Add(uniqueID, []byte(req.Payload))
	if err != nil {
		errors.Log(err, uniqueID)
		return errorResponse(err)
	}

	return wire.NewResponse(map[string]string{
		wire.HeaderUniqueID: uniqueID,
		wire.HeaderDir:      bucket,
		wire.HeaderFile:     name,
	}, "")
}

func (s *Server) handleFileUpdate(req wire.Request) wire.Response {
	bucket := req.Headers[wire.HeaderDir]
	name := req.Headers[wire.HeaderFile]
	if bucket == "" || name == "" {
		return wire.NewErrorResponse("missing gfs_dir or gfs_file")
	}

	newID := fingerprint.Bytes([]byte(req.Payload))
	newBucket, newName, err := s.store.Update(bucket, name, []byte(req.Payload), newID)
	if err != nil {
		errors.Log(err, bucket+"/"+name)
		return errorResponse(err)
	}

	return wire.NewResponse(map[string]string{
		wire.HeaderUniqueID: newID,
		wire.HeaderDir:      newBucket,
		wire.HeaderFile:     newName,
	}, "")
}

func (s *Server) handleFileDelete(req wire.Request) wire.Response {
	bucket := req.Headers[wire.HeaderDir]
	name := req.Headers[wire.HeaderFile]
	if err := s.store.Delete(bucket, name); err != nil {
		errors.Log(err, bucket+"/"+name)
		return errorResponse(err)
	}
	return wire.NewResponse(nil, "")
}

func (s *Server) handleFileRetrieve(req wire.Request) wire.Response {
	bucket := req.Headers[wire.HeaderDir]
	name := req.Headers[wire.HeaderFile]
	data, err := s.store.Retrieve(bucket, name)
	if err != nil {
		errors.Log(err, bucket+"/"+name)
		return errorResponse(err)
	}
	return wire.NewResponse(nil, string(data))
}

func (s *Server) handleFileID(req wire.Request) wire.Response {
	bucket := req.Headers[wire.HeaderDir]
	name := req.Headers[wire.HeaderFile]
	id, err := s.store.FingerprintOf(bucket, name)
	if err != nil {
		errors.Log(err, bucket+"/"+name)
		return errorResponse(err)
	}
	return wire.NewResponse(map[string]string{wire.HeaderUniqueID: id}, "")
}

func (s *Server) handleFileList(req wire.Request) wire.Response {
	bucket := req.Headers[wire.HeaderDir]
	files, err := s.store.ListFiles(bucket)
	if err != nil {
		errors.Log(err, bucket)
		return errorResponse(err)
	}
	return wire.NewResponse(map[string]string{wire.HeaderFileList: wire.EncodeList(files)}, "")
}

func (s *Server) handleDirList(_ wire.Request) wire.Response {
	buckets, err := s.store.ListBuckets()
	if err != nil {
		errors.Log(err, "")
		return errorResponse(err)
	}
	return wire.NewResponse(map[string]string{wire.HeaderDirList: wire.EncodeList(buckets)}, "")
}

func errorResponse(err error) wire.Response {
	if ue, ok := errors.As(err); ok {
		return wire.NewErrorResponse(ue.Title)
	}
	return wire.NewErrorResponse(err.Error())
}

// Run starts the HTTP listener at addr and blocks until the process
// receives SIGINT/SIGTERM, then shuts down gracefully. It pre-creates the
// block store's buckets first, exiting fatally on XAttrUnsupported per
// §7's "terminates the server" requirement.
func Run(addr string, store *blockstore.Store) error {
	if err := store.EnsureBuckets(); err != nil {
		return err
	}

	srv := New(store)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		slog.Info("lachepas-node shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}()

	slog.Info("lachepas-node listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.NewInternalError("Node server stopped unexpectedly", err.Error(), "", err)
	}
	return nil
}
