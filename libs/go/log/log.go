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

// Package log contains the core's logging indirection: a LogDevice-style
// Sink interface with a handful of concrete, one-level-deep implementations
// (console, file, memory, aggregate, filter), and a Logger that queues
// records and drains them from a single writer goroutine so that callers on
// hot paths (the worker pool, the depot session) never block on slow sinks.
package log

import (
	"fmt"
	"strings"
	"sync"
)

// Level identifies the severity of a single log record.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Sink is the single interface every log device implements. Concrete sinks
// never inherit from one another; composites (Aggregate, Filter) hold other
// Sinks rather than subclassing them.
type Sink interface {
	DebugDepth(depth int, msg string)
	InfoDepth(depth int, msg string)
	WarningDepth(depth int, msg string)
	ErrorDepth(depth int, msg string)
	Close()
}

type record struct {
	level Level
	depth int
	msg   string
}

func (r record) deliver(s Sink) {
	switch r.level {
	case Debug:
		s.DebugDepth(r.depth, r.msg)
	case Info:
		s.InfoDepth(r.depth, r.msg)
	case Warning:
		s.WarningDepth(r.depth, r.msg)
	case Error:
		s.ErrorDepth(r.depth, r.msg)
	}
}

// Logger is the primary interface to the logging system. It fans records
// out to every attached sink from a single writer goroutine.
type Logger struct {
	depth int

	mu    sync.Mutex
	sinks []Sink

	queue chan record
	done  chan struct{}
	wg    sync.WaitGroup
}

const defaultQueueDepth = 4096

// New returns a new Logger with zero depth and an already-running writer
// goroutine.
func New() *Logger {
	return NewWithDepth(0)
}

// NewWithDepth returns a new logger with the given depth. For sinks that
// support it (the console sink), this many stack frames are discarded when
// reporting the caller.
func NewWithDepth(depth int) *Logger {
	l := &Logger{
		depth: depth,
		queue: make(chan record, defaultQueueDepth),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

var logger = NewWithDepth(1)

// Get returns the global logger.
func Get() *Logger {
	return logger
}

// drain is the single writer goroutine: it owns delivery order to every
// sink and is the only goroutine that ever calls into a Sink, so Sink
// implementations need not be thread-safe against concurrent callers.
func (l *Logger) drain() {
	defer l.wg.Done()
	for {
		select {
		case rec := <-l.queue:
			l.deliver(rec)
		case <-l.done:
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case rec := <-l.queue:
					l.deliver(rec)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) deliver(rec record) {
	l.mu.Lock()
	sinks := l.sinks
	l.mu.Unlock()
	for _, s := range sinks {
		rec.deliver(s)
	}
}

// AddSink attaches one or more sinks. Call Shutdown when done logging to
// flush and close them.
func (l *Logger) AddSink(s ...Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s...)
}

// Shutdown stops the writer goroutine after draining the queue, then closes
// every attached sink.
func (l *Logger) Shutdown() {
	close(l.done)
	l.wg.Wait()

	l.mu.Lock()
	sinks := l.sinks
	l.mu.Unlock()
	for _, s := range sinks {
		s.Close()
	}
}

func (l *Logger) enqueue(level Level, msg string) {
	select {
	case l.queue <- record{level: level, depth: l.depth + 2, msg: msg}:
	default:
		// The queue is saturated; drop rather than block the caller. A
		// hydration worker must never stall behind a slow log sink.
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.enqueue(Debug, fmt.Sprintf(format, args...)) }
func (l *Logger) Debug(args ...interface{})                  { l.enqueue(Debug, defaultFmt(args...)) }
func (l *Logger) Infof(format string, args ...interface{})   { l.enqueue(Info, fmt.Sprintf(format, args...)) }
func (l *Logger) Info(args ...interface{})                   { l.enqueue(Info, defaultFmt(args...)) }
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.enqueue(Warning, fmt.Sprintf(format, args...))
}
func (l *Logger) Warning(args ...interface{}) { l.enqueue(Warning, defaultFmt(args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.enqueue(Error, fmt.Sprintf(format, args...))
}
func (l *Logger) Error(args ...interface{}) { l.enqueue(Error, defaultFmt(args...)) }

// Package-level helpers delegate to the global logger, mirroring teacher's
// own package-level Debugf/Infof/... forwarding.

func AddSink(s ...Sink)   { logger.AddSink(s...) }
func Shutdown()           { logger.Shutdown() }
func Debugf(format string, args ...interface{})   { logger.Debugf(format, args...) }
func Debug(args ...interface{})                   { logger.Debug(args...) }
func Infof(format string, args ...interface{})    { logger.Infof(format, args...) }
func Info(args ...interface{})                    { logger.Info(args...) }
func Warningf(format string, args ...interface{}) { logger.Warningf(format, args...) }
func Warning(args ...interface{})                 { logger.Warning(args...) }
func Errorf(format string, args ...interface{})   { logger.Errorf(format, args...) }
func Error(args ...interface{})                   { logger.Error(args...) }

const defaultMaxArgs = 10

var defaultFmtStr = strings.TrimSpace(strings.Repeat("%v ", defaultMaxArgs))

func defaultFmt(args ...interface{}) string {
	n := len(args)
	if n > defaultMaxArgs {
		n = defaultMaxArgs
	}
	format := defaultFmtStr[(defaultMaxArgs-n)*3:]
	return fmt.Sprintf(format, args[:n]...)
}
