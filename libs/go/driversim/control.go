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
	"fmt"
	"sync"

	"github.com/p4vfs/core/libs/go/driverproto"
)

// ControlHarness simulates the driver's control port: version/flag/
// connection queries and file-id-scoped reparse-point open/close, used by
// cmd/p4vfsctl's control commands and by this package's own tests.
type ControlHarness struct {
	version driverproto.DriverVersion

	mu        sync.Mutex
	connected bool
	flags     map[driverproto.ControlFlag]bool
	trace     uint32
	handles   map[int]string
	nextID    int
}

// NewControlHarness returns a ControlHarness reporting the given version,
// initially connected.
func NewControlHarness(version driverproto.DriverVersion) *ControlHarness {
	return &ControlHarness{
		version:   version,
		connected: true,
		flags:     make(map[driverproto.ControlFlag]bool),
		handles:   make(map[int]string),
	}
}

func (c *ControlHarness) SetTraceEnabled(channels uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace = channels
	return nil
}

func (c *ControlHarness) GetIsConnected() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected, nil
}

// SetConnected lets tests simulate the driver disconnecting.
func (c *ControlHarness) SetConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
}

func (c *ControlHarness) GetVersion() (driverproto.DriverVersion, error) {
	return c.version, nil
}

func (c *ControlHarness) SetFlag(name driverproto.ControlFlag, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flags[name] = value
	return nil
}

// Flag reports the last value SetFlag recorded for name, defaulting to
// false.
func (c *ControlHarness) Flag(name driverproto.ControlFlag) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags[name]
}

func (c *ControlHarness) OpenReparsePoint(path string, desiredAccess, shareMode uint32) (driverproto.ReparseHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handles[id] = path
	return id, nil
}

func (c *ControlHarness) CloseReparsePoint(h driverproto.ReparseHandle) error {
	id, ok := h.(int)
	if !ok {
		return fmt.Errorf("driversim: invalid reparse handle %v", h)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handles[id]; !ok {
		return fmt.Errorf("driversim: unknown reparse handle %d", id)
	}
	delete(c.handles, id)
	return nil
}
