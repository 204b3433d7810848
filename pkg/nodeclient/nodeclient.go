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

// Package nodeclient is the thin RPC collaborator the Replicator and
// Restorer use to talk to one storage node: one call per §6 command, a
// JSON envelope over HTTP, synchronous from the caller's view. It mirrors
// the teacher's status.go remote-status client: an http.Client with a
// fixed timeout, one POST per call, json.Decode of the response body.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kraklabs/lachepas/internal/errors"
	"github.com/kraklabs/lachepas/pkg/wire"
)

// DefaultTimeout bounds every call; the spec assumes send() returns within
// bounded time or fails with Timeout.
const DefaultTimeout = 30 * time.Second

// Client sends one typed request at a time to one named node over HTTP.
type Client struct {
	Name       string
	BaseURL    string
	httpClient *http.Client
}

// New builds a Client for node name dialing baseURL. baseURL is the value
// from the node's [<service-name>] config section.
func New(name, baseURL string) *Client {
	return &Client{
		Name:    name,
		BaseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// endpointPath is the single dispatch endpoint pkg/nodeserver exposes for
// every command in the table, generalized from the teacher's single
// /v1/query endpoint.
const endpointPath = "/gfs"

// Send issues req and decodes the node's Response. Failures are mapped to
// Timeout, NodeUnavailable, or TransportError per spec.md §4.7/§7.
func (c *Client) Send(ctx context.Context, req wire.Request) (wire.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return wire.Response{}, errors.NewTransportError("Cannot encode request", err.Error(), "", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpointPath, bytes.NewReader(body))
	if err != nil {
		return wire.Response{}, errors.NewTransportError("Cannot build request", err.Error(), "", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return wire.Response{}, errors.NewTimeoutError(
				"Node request timed out",
				fmt.Sprintf("%s: %s did not respond within %s", c.Name, req.Command, c.httpClient.Timeout),
				"Check the node's availability and network path",
				err,
			)
		}
		return wire.Response{}, errors.NewNodeUnavailableError(
			"Storage node unreachable",
			fmt.Sprintf("%s: %v", c.Name, err),
			"Check the node's URL in the configuration and that it is running",
			err,
		)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return wire.Response{}, errors.NewTransportError(
			"Node returned an unexpected status",
			fmt.Sprintf("%s: %s returned HTTP %d", c.Name, req.Command, resp.StatusCode),
			"",
			nil,
		)
	}

	var out wire.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return wire.Response{}, errors.NewTransportError("Cannot decode node response", err.Error(), "", err)
	}
	if !out.RC() {
		return out, errors.NewTransportError(
			"Node reported failure",
			fmt.Sprintf("%s: %s: %s", c.Name, req.Command, out.Error()),
			"",
			nil,
		)
	}
	return out, nil
}

// FileAdd stores one block's wire form on the node, keyed by uniqueID.
// Returns the echoed unique_identifier, node_directory, node_file.
func (c *Client) FileAdd(ctx context.Context, uniqueID string, storedFilesize int64, wireForm string) (echoedID, nodeDir, nodeFile string, err error) {
	resp, err := c.Send(ctx, wire.Request{
		Command: wire.CmdFileAdd,
		Headers: map[string]string{
			wire.HeaderFile:     uniqueID,
			wire.HeaderUniqueID: uniqueID,
			wire.HeaderStoredFS: fmt.Sprintf("%d", storedFilesize),
		},
		Payload: wireForm,
	})
	if err != nil {
		return "", "", "", err
	}
	return resp.Headers[wire.HeaderUniqueID], resp.Headers[wire.HeaderDir], resp.Headers[wire.HeaderFile], nil
}

// FileUpdate replaces the content previously stored at (dir, name).
func (c *Client) FileUpdate(ctx context.Context, dir, name, wireForm string) (echoedID, nodeDir, nodeFile string, err error) {
	resp, err := c.Send(ctx, wire.Request{
		Command: wire.CmdFileUpdate,
		Headers: map[string]string{
			wire.HeaderDir:  dir,
			wire.HeaderFile: name,
		},
		Payload: wireForm,
	})
	if err != nil {
		return "", "", "", err
	}
	return resp.Headers[wire.HeaderUniqueID], resp.Headers[wire.HeaderDir], resp.Headers[wire.HeaderFile], nil
}

// FileDelete decrements (or unlinks) the block at (dir, name).
func (c *Client) FileDelete(ctx context.Context, dir, name string) error {
	_, err := c.Send(ctx, wire.Request{
		Command: wire.CmdFileDelete,
		Headers: map[string]string{
			wire.HeaderDir:  dir,
			wire.HeaderFile: name,
		},
	})
	return err
}

// FileRetrieve returns the verbatim stored wire form for (dir, name).
func (c *Client) FileRetrieve(ctx context.Context, dir, name string) (string, error) {
	resp, err := c.Send(ctx, wire.Request{
		Command: wire.CmdFileRetrieve,
		Headers: map[string]string{
			wire.HeaderDir:  dir,
			wire.HeaderFile: name,
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Payload, nil
}

// FileID returns the fingerprint recomputed from stored bytes, for drift
// auditing.
func (c *Client) FileID(ctx context.Context, dir, name string) (string, error) {
	resp, err := c.Send(ctx, wire.Request{
		Command: wire.CmdFileID,
		Headers: map[string]string{
			wire.HeaderDir:  dir,
			wire.HeaderFile: name,
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Headers[wire.HeaderUniqueID], nil
}

// FileList returns every regular filename under dir.
func (c *Client) FileList(ctx context.Context, dir string) ([]string, error) {
	resp, err := c.Send(ctx, wire.Request{
		Command: wire.CmdFileList,
		Headers: map[string]string{wire.HeaderDir: dir},
	})
	if err != nil {
		return nil, err
	}
	return wire.DecodeList(resp.Headers[wire.HeaderFileList]), nil
}

// DirList returns every bucket subdirectory name on the node.
func (c *Client) DirList(ctx context.Context) ([]string, error) {
	resp, err := c.Send(ctx, wire.Request{Command: wire.CmdDirList})
	if err != nil {
		return nil, err
	}
	return wire.DecodeList(resp.Headers[wire.HeaderDirList]), nil
}

// AdminProbe forwards one of wire.AdminCommands verbatim; the node always
// answers {rc:false, error:"not implemented"} per §6, so callers print the
// error rather than treating it as a Client failure.
func (c *Client) AdminProbe(ctx context.Context, command string) (wire.Response, error) {
	return c.Send(ctx, wire.Request{Command: command})
}
