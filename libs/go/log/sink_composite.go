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

// Aggregate fans a record out to every wrapped sink. It holds Sinks rather
// than extending one, keeping the composite one level deep as spec.md §9
// requires ("never a class hierarchy deeper than one level").
type Aggregate struct {
	sinks []Sink
}

// NewAggregate returns a sink that forwards to every one of sinks.
func NewAggregate(sinks ...Sink) *Aggregate {
	return &Aggregate{sinks: sinks}
}

func (a *Aggregate) DebugDepth(depth int, msg string) {
	for _, s := range a.sinks {
		s.DebugDepth(depth, msg)
	}
}
func (a *Aggregate) InfoDepth(depth int, msg string) {
	for _, s := range a.sinks {
		s.InfoDepth(depth, msg)
	}
}
func (a *Aggregate) WarningDepth(depth int, msg string) {
	for _, s := range a.sinks {
		s.WarningDepth(depth, msg)
	}
}
func (a *Aggregate) ErrorDepth(depth int, msg string) {
	for _, s := range a.sinks {
		s.ErrorDepth(depth, msg)
	}
}
func (a *Aggregate) Close() {
	for _, s := range a.sinks {
		s.Close()
	}
}

// Filter drops records below Min before forwarding to the wrapped sink.
type Filter struct {
	sink Sink
	Min  Level
}

// NewFilter returns a sink that only forwards records at or above min.
func NewFilter(sink Sink, min Level) *Filter {
	return &Filter{sink: sink, Min: min}
}

func (f *Filter) DebugDepth(depth int, msg string) {
	if Debug >= f.Min {
		f.sink.DebugDepth(depth, msg)
	}
}
func (f *Filter) InfoDepth(depth int, msg string) {
	if Info >= f.Min {
		f.sink.InfoDepth(depth, msg)
	}
}
func (f *Filter) WarningDepth(depth int, msg string) {
	if Warning >= f.Min {
		f.sink.WarningDepth(depth, msg)
	}
}
func (f *Filter) ErrorDepth(depth int, msg string) {
	if Error >= f.Min {
		f.sink.ErrorDepth(depth, msg)
	}
}
func (f *Filter) Close() { f.sink.Close() }
