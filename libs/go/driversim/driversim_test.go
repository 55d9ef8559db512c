// Copyright 2024 The P4VFS-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package driversim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/p4vfs/core/libs/go/driverproto"
	"github.com/p4vfs/core/libs/go/log"
)

func TestSimulateOpenRoundTripsThroughMessagePort(t *testing.T) {
	h, err := New(log.New(), "")
	require.NoError(t, err)
	defer h.Close()

	go func() {
		req, err := h.Receive(nil)
		require.NoError(t, err)
		require.Equal(t, driverproto.OpResolveFile, req.Operation)
		require.Equal(t, `c:\ws\a.cpp`, req.ResolveFile.DataName)
		require.NoError(t, h.Reply(driverproto.Reply{RequestID: req.RequestID, RequestResult: driverproto.StatusSuccess}))
	}()

	status, err := h.SimulateOpen(`c:\ws\a.cpp`, `c:\ws`, 100, 1, 1)
	require.NoError(t, err)
	require.Equal(t, driverproto.StatusSuccess, status)
}

func TestSimulateOpenAlternateStreamNeverIssuesRequest(t *testing.T) {
	h, err := New(log.New(), "")
	require.NoError(t, err)
	defer h.Close()

	before := h.ResolveCount()
	status, err := h.SimulateOpen(`c:\ws\a.cpp:Zone.Identifier`, `c:\ws`, 100, 1, 1)
	require.NoError(t, err)
	require.Equal(t, driverproto.StatusSuccess, status)
	require.Equal(t, before, h.ResolveCount())
}

func TestIsInFlightDuringSimulatedOpen(t *testing.T) {
	h, err := New(log.New(), "")
	require.NoError(t, err)
	defer h.Close()

	releaseResolve := make(chan struct{})
	go func() {
		req, err := h.Receive(nil)
		require.NoError(t, err)
		require.True(t, h.IsInFlight(req.ResolveFile.DataName))
		close(releaseResolve)
		require.NoError(t, h.Reply(driverproto.Reply{RequestID: req.RequestID, RequestResult: driverproto.StatusSuccess}))
	}()

	done := make(chan struct{})
	go func() {
		h.SimulateOpen(`c:\ws\a.cpp`, `c:\ws`, 1, 1, 1)
		close(done)
	}()

	select {
	case <-releaseResolve:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for in-flight check")
	}
	<-done
	require.False(t, h.IsInFlight(`c:\ws\a.cpp`))
}

func TestSimulateLogWrite(t *testing.T) {
	h, err := New(log.New(), "")
	require.NoError(t, err)
	defer h.Close()

	go func() {
		req, err := h.Receive(nil)
		require.NoError(t, err)
		require.Equal(t, driverproto.OpLogWrite, req.Operation)
		require.NoError(t, h.Reply(driverproto.Reply{RequestID: req.RequestID, RequestResult: driverproto.StatusSuccess}))
	}()

	require.NoError(t, h.SimulateLogWrite("hello from driver"))
}

func TestControlHarnessFlagsAndVersion(t *testing.T) {
	c := NewControlHarness(driverproto.DriverVersion{Major: 1, Minor: 2, Build: 3, Revision: 4})
	v, err := c.GetVersion()
	require.NoError(t, err)
	require.Equal(t, uint16(1), v.Major)

	require.NoError(t, c.SetFlag(driverproto.FlagShareModeDuringHydrate, true))
	require.True(t, c.Flag(driverproto.FlagShareModeDuringHydrate))

	connected, err := c.GetIsConnected()
	require.NoError(t, err)
	require.True(t, connected)
	c.SetConnected(false)
	connected, err = c.GetIsConnected()
	require.NoError(t, err)
	require.False(t, connected)
}

func TestControlHarnessReparseHandleLifecycle(t *testing.T) {
	c := NewControlHarness(driverproto.DriverVersion{})
	h, err := c.OpenReparsePoint(`c:\ws\a.cpp`, 0, 0)
	require.NoError(t, err)
	require.NoError(t, c.CloseReparsePoint(h))
	require.Error(t, c.CloseReparsePoint(h))
}
