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

// Package driverproto defines the message and control protocol the kernel
// minifilter speaks to the user-mode service (spec.md §6). The filter
// itself is out of scope; this package only carries the request/reply
// shapes and canonical constants both sides must agree on, plus the two
// port interfaces a real driver binding and the in-process simulation
// (libs/go/driversim) both implement.
package driverproto

import "github.com/p4vfs/core/libs/go/reparse"

// Canonical port names, matched verbatim against the kernel minifilter.
const (
	ServicePortName = `\P4VFS_SERVICE_PORT_NAME`
	ControlPortName = `\P4VFS_CONTROL_PORT_NAME`
)

// Operation identifies the request kind carried by a Request.
type Operation int

const (
	OpResolveFile Operation = iota
	OpLogWrite
)

func (o Operation) String() string {
	switch o {
	case OpResolveFile:
		return "ResolveFile"
	case OpLogWrite:
		return "LogWrite"
	default:
		return "Unknown"
	}
}

// Status is the NT-status-shaped result the service hands back to the
// driver in a Reply.
type Status int

const (
	StatusSuccess Status = iota
	StatusRetry
	StatusUnsuccessful
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusRetry:
		return "Retry"
	case StatusUnsuccessful:
		return "Unsuccessful"
	default:
		return "Unknown"
	}
}

// ResolveFilePayload carries the fields spec.md §6 lists for a ResolveFile
// request. On the wire these are length+offset string descriptors relative
// to the enclosing struct; here they are plain Go strings, since this
// package models the protocol's logical shape rather than its byte layout
// (that responsibility belongs to reparse's header/body codec, which this
// protocol has no analogous need to marshal over a real IOCTL boundary).
type ResolveFilePayload struct {
	SessionID  uint32
	VolumeName string
	DataName   string
	ProcessID  uint32
	ThreadID   uint32
}

// LogWritePayload carries a single line of driver-originated log text.
type LogWritePayload struct {
	Text string
}

// Request is one message delivered from the driver to the service.
type Request struct {
	RequestID   uint64
	Operation   Operation
	ResolveFile ResolveFilePayload
	LogWrite    LogWritePayload
}

// Reply is the service's response to a Request, keyed by the same
// RequestID so the driver can match it to the pended I/O.
type Reply struct {
	RequestID     uint64
	RequestResult Status
}

// ControlFlag names a boolean flag settable through the control port.
type ControlFlag string

const (
	FlagSanitizeAttributes     ControlFlag = "SanitizeAttributes"
	FlagShareModeDuringHydrate ControlFlag = "ShareModeDuringHydration"
)

// DriverVersion is the reply to GetVersion.
type DriverVersion struct {
	Major, Minor, Build, Revision uint16
}

// MessagePort is the hydration request channel. A real binding would wrap
// FilterConnectCommunicationPort/FilterGetMessage/FilterReplyMessage;
// driversim implements it over an in-process channel pair instead.
type MessagePort interface {
	// Connect attaches to the driver's message port, loading the driver if
	// necessary. Returns an error if the driver is not present.
	Connect() error
	// Receive blocks for the next Request, or returns an error if the port
	// disconnects or the given cancellation channel closes first.
	Receive(cancel <-chan struct{}) (Request, error)
	// Reply answers a previously received Request.
	Reply(r Reply) error
	// Close tears down the port, unblocking any pending Receive.
	Close() error
}

// ReparseHandle is an opaque reference returned by ControlPort.OpenReparsePoint.
type ReparseHandle interface{}

// ControlPort is the version/flag/connection query channel described in
// spec.md §6.
type ControlPort interface {
	SetTraceEnabled(channels uint32) error
	GetIsConnected() (bool, error)
	GetVersion() (DriverVersion, error)
	SetFlag(name ControlFlag, value bool) error
	OpenReparsePoint(path string, desiredAccess uint32, shareMode uint32) (ReparseHandle, error)
	CloseReparsePoint(h ReparseHandle) error
}

// Tag and GUID re-exported from reparse for convenience of driver-protocol
// callers that only need the wire constants, not the codec.
var (
	ReparseTag  = reparse.Tag
	ReparseGUID = reparse.GUID
)
