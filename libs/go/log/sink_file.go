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

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewFile returns a sink that writes newline-delimited JSON records to w,
// suitable for the on-disk log file the service appends to alongside
// its console output.
func NewFile(w io.Writer) Sink {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.DebugLevel)
	return &fileSink{logger: l}
}

type fileSink struct {
	logger *logrus.Logger
}

func (f *fileSink) DebugDepth(_ int, msg string)   { f.logger.Debug(msg) }
func (f *fileSink) InfoDepth(_ int, msg string)    { f.logger.Info(msg) }
func (f *fileSink) WarningDepth(_ int, msg string) { f.logger.Warn(msg) }
func (f *fileSink) ErrorDepth(_ int, msg string)   { f.logger.Error(msg) }
func (f *fileSink) Close() {
	if closer, ok := f.logger.Out.(io.Closer); ok {
		closer.Close()
	}
}
