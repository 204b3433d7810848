// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package nodeclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/wire"
)

func fakeNode(t *testing.T, handler func(wire.Request) wire.Response) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wire.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := handler(req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestFileAddEchoesPlacement(t *testing.T) {
	srv := fakeNode(t, func(req wire.Request) wire.Response {
		assert.Equal(t, wire.CmdFileAdd, req.Command)
		assert.Equal(t, "abc123", req.Headers[wire.HeaderUniqueID])
		return wire.NewResponse(map[string]string{
			wire.HeaderUniqueID: "abc123",
			wire.HeaderDir:      "12",
			wire.HeaderFile:     "abc123",
		}, "")
	})
	defer srv.Close()

	c := New("node-a", srv.URL)
	echoedID, dir, file, err := c.FileAdd(context.Background(), "abc123", 8, "SGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "abc123", echoedID)
	assert.Equal(t, "12", dir)
	assert.Equal(t, "abc123", file)
}

func TestFileRetrieveReturnsPayload(t *testing.T) {
	srv := fakeNode(t, func(req wire.Request) wire.Response {
		assert.Equal(t, wire.CmdFileRetrieve, req.Command)
		return wire.NewResponse(nil, "SGVsbG8=")
	})
	defer srv.Close()

	c := New("node-a", srv.URL)
	payload, err := c.FileRetrieve(context.Background(), "12", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "SGVsbG8=", payload)
}

func TestFileListDecodesSeparatedValues(t *testing.T) {
	srv := fakeNode(t, func(req wire.Request) wire.Response {
		return wire.NewResponse(map[string]string{wire.HeaderFileList: wire.EncodeList([]string{"a", "b", "c"})}, "")
	})
	defer srv.Close()

	c := New("node-a", srv.URL)
	files, err := c.FileList(context.Background(), "12")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, files)
}

func TestSendMapsErrorResponseToTransportError(t *testing.T) {
	srv := fakeNode(t, func(req wire.Request) wire.Response {
		return wire.NewErrorResponse("not found")
	})
	defer srv.Close()

	c := New("node-a", srv.URL)
	err := c.FileDelete(context.Background(), "12", "missing")
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.TransportError, ue.Kind)
}

func TestSendMapsConnectionFailureToNodeUnavailable(t *testing.T) {
	c := New("node-a", "http://127.0.0.1:1")
	_, err := c.Send(context.Background(), wire.Request{Command: wire.CmdDirList})
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.NodeUnavailable, ue.Kind)
}

func TestSendMapsTimeoutToTimeoutKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(wire.NewResponse(nil, ""))
	}))
	defer srv.Close()

	c := New("node-a", srv.URL)
	c.httpClient.Timeout = 5 * time.Millisecond
	_, err := c.Send(context.Background(), wire.Request{Command: wire.CmdDirList})
	require.Error(t, err)
	ue, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.Timeout, ue.Kind)
}

func TestAdminProbeReturnsNotImplemented(t *testing.T) {
	srv := fakeNode(t, func(req wire.Request) wire.Response {
		return wire.NewErrorResponse("not implemented")
	})
	defer srv.Close()

	c := New("node-a", srv.URL)
	resp, err := c.AdminProbe(context.Background(), "cpuStat")
	require.Error(t, err)
	assert.Equal(t, "not implemented", resp.Error())
}
