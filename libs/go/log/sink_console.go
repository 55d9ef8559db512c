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

package log

import "github.com/golang/glog"

// NewConsole returns a sink that writes to glog, the same console sink
// teacher's p4lib and tooling use throughout.
func NewConsole() Sink {
	return &consoleSink{}
}

type consoleSink struct{}

func (c *consoleSink) DebugDepth(depth int, msg string) {
	// glog has no DEBUG level; defer to INFO, same as teacher's glogSink.
	glog.InfoDepth(depth, msg)
}

func (c *consoleSink) InfoDepth(depth int, msg string)    { glog.InfoDepth(depth, msg) }
func (c *consoleSink) WarningDepth(depth int, msg string) { glog.WarningDepth(depth, msg) }
func (c *consoleSink) ErrorDepth(depth int, msg string)   { glog.ErrorDepth(depth, msg) }
func (c *consoleSink) Close()                             { glog.Flush() }
