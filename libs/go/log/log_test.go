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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoggerDeliversToMemorySink(t *testing.T) {
	l := NewWithDepth(0)
	mem := NewMemory()
	l.AddSink(mem)

	l.Infof("hydrating %s", "a.cpp")
	l.Warning("clobber check failed")
	l.Shutdown()

	entries := mem.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, Info, entries[0].Level)
	require.Equal(t, "hydrating a.cpp", entries[0].Msg)
	require.Equal(t, Warning, entries[1].Level)
}

func TestMemoryHasLevel(t *testing.T) {
	l := NewWithDepth(0)
	mem := NewMemory()
	l.AddSink(mem)
	l.Info("fine")
	l.Shutdown()
	require.False(t, mem.HasLevel(Error))

	l2 := NewWithDepth(0)
	mem2 := NewMemory()
	l2.AddSink(mem2)
	l2.Error("boom")
	l2.Shutdown()
	require.True(t, mem2.HasLevel(Error))
}

func TestFilterDropsBelowMinimum(t *testing.T) {
	mem := NewMemory()
	f := NewFilter(mem, Warning)
	f.DebugDepth(0, "noise")
	f.InfoDepth(0, "still noise")
	f.WarningDepth(0, "keep")
	f.ErrorDepth(0, "keep too")
	require.Len(t, mem.Entries(), 2)
}

func TestAggregateFansOutToAllSinks(t *testing.T) {
	a := NewMemory()
	b := NewMemory()
	agg := NewAggregate(a, b)
	agg.ErrorDepth(0, "both should see this")
	require.Len(t, a.Entries(), 1)
	require.Len(t, b.Entries(), 1)
}

func TestShutdownDrainsQueuedRecordsBeforeClosing(t *testing.T) {
	l := NewWithDepth(0)
	mem := NewMemory()
	l.AddSink(mem)
	for i := 0; i < 50; i++ {
		l.Info("record")
	}
	l.Shutdown()
	require.Eventually(t, func() bool {
		return len(mem.Entries()) == 50
	}, time.Second, time.Millisecond)
}
