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

// Package depot wraps the Perforce command-line client in the session
// abstraction the rest of the core consumes: Connect/Login/Run/Trust/Diff,
// tagged and text output collection, and a small set of typed events
// (Info, Output, Binary, Stat, Input, Prompt) dispatched to a ResultHandler
// trait instead of a deep callback hierarchy.
//
// This package never links the native p4api; every command is run via
// os/exec against the p4 executable on PATH, the same approach teacher's
// non-cgo ExecCmd path and the standalone fabdem-go-perforce client use.
// The C++ client library itself remains an external collaborator per the
// specification's scope.
package depot

import "errors"

var (
	// ErrNotConnected is returned by Run when called on a session that was
	// never successfully connected.
	ErrNotConnected = errors.New("depot: session not connected")
	// ErrUnauthenticated marks a session that connected but could not
	// establish a valid ticket through any rung of the login ladder.
	ErrUnauthenticated = errors.New("depot: session connected but unauthenticated")
	// ErrFaulted marks a session that failed mid-command and must be
	// discarded rather than returned to the pool.
	ErrFaulted = errors.New("depot: session faulted")
	// ErrTrustRequired names the untrusted-fingerprint condition. Connect
	// detects it by matching the probe's output text (isTrustError) before
	// its silent `p4 trust -y -f` retry; it does not return this value.
	ErrTrustRequired = errors.New("depot: server fingerprint not trusted")
)

// Severity classifies a single line of text output.
type Severity int

const (
	SeverityEmpty Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityFailed
	SeverityFatal
)

// Channel identifies which stream a TextLine was read from.
type Channel int

const (
	Stdout Channel = iota
	Stderr
)

// TextLine is one line of unstructured command output.
type TextLine struct {
	Channel  Channel
	Severity Severity
	Text     string
}

// TagRecord is one tagged record: a flat string->string map, the shape
// every `-Ztag` command produces.
type TagRecord map[string]string
