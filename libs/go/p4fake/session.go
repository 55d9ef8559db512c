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

package p4fake

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/p4vfs/core/libs/go/depot"
)

// Session is a depot.Session backed by a Depot's in-memory state rather
// than a real p4 client process. DepotRoot/ClientRoot describe the
// (simplified, one-to-one) view mapping this session's client uses.
type Session struct {
	Store      *Depot
	DepotRoot  string
	ClientRoot string

	mu      sync.Mutex
	cfg     depot.Config
	fault   bool
	closed  bool
}

// NewSession returns a Session reading and writing store under the given
// view mapping.
func NewSession(store *Depot, depotRoot, clientRoot string) *Session {
	return &Session{Store: store, DepotRoot: depotRoot, ClientRoot: clientRoot}
}

func (s *Session) Connect(cfg depot.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.fault = false
	return nil
}

func (s *Session) Login() error { return nil }

func (s *Session) Config() depot.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Session) HasFault() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = false
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Session) Diff(file0, file1 string) ([]string, error) {
	return nil, fmt.Errorf("p4fake: Diff not implemented")
}

// Run dispatches cmd against Store, emitting output through whichever of
// OutputHandler/StatHandler/BinaryHandler handler implements, choosing
// the output path by handler type the way the real session does.
func (s *Session) Run(cmd depot.Command, handler depot.ResultHandler) error {
	switch cmd.Name {
	case "print":
		return s.runPrint(cmd, handler)
	case "sync":
		return s.runSync(cmd, handler)
	case "fstat":
		return s.runFstat(cmd, handler)
	case "changes":
		return s.runChanges(cmd, handler)
	case "reconcile":
		return s.runReconcile(cmd, handler)
	default:
		return fmt.Errorf("p4fake: unsupported command %q", cmd.Name)
	}
}

func emitInfo(handler depot.ResultHandler, format string, args ...interface{}) {
	handler.HandleInfo(0, fmt.Sprintf(format, args...))
}

func emitStderr(handler depot.ResultHandler, text string) {
	if h, ok := handler.(depot.OutputHandler); ok {
		h.HandleOutput(depot.TextLine{Channel: depot.Stderr, Text: text})
	}
}

func emitStdout(handler depot.ResultHandler, text string) {
	if h, ok := handler.(depot.OutputHandler); ok {
		h.HandleOutput(depot.TextLine{Channel: depot.Stdout, Text: text})
	}
}

func emitStat(handler depot.ResultHandler, rec depot.TagRecord) {
	if h, ok := handler.(depot.StatHandler); ok {
		h.HandleStat(rec)
	}
}

func wantsTags(handler depot.ResultHandler) bool {
	_, ok := handler.(depot.Tagger)
	return ok
}

func (s *Session) depotArg(args []string) (string, int32, bool) {
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		path, rev, hasRev := splitRevisionSuffix(a)
		return path, rev, hasRev
	}
	return "", 0, false
}

// splitRevisionSuffix separates a trailing "#N"/"#none"/"#head" or "@N"
// from a depot path argument.
func splitRevisionSuffix(arg string) (path string, rev int32, hasRev bool) {
	if idx := strings.IndexAny(arg, "#@"); idx >= 0 {
		suffix := arg[idx+1:]
		path = arg[:idx]
		if n, err := strconv.Atoi(suffix); err == nil {
			return path, int32(n), true
		}
		return path, 0, false
	}
	return arg, 0, false
}

func (s *Session) clientFile(depotPath string) string {
	return depotPathToClientFile(s.DepotRoot, s.ClientRoot, depotPath)
}
