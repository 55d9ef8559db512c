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

package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDisabledReturnsNilAndIsNilSafe(t *testing.T) {
	m := New(false)
	require.Nil(t, m)

	// All of these must be safe to call on a nil *Metrics.
	m.ObserveHydration("copy", "resident", time.Millisecond, 1024)
	m.ObservePoolAllocation("reused")
	m.ObservePoolFault()
	m.SetPoolSize(3)
	m.ObserveSyncFile("resident")
	m.ObserveSyncDuration(time.Second)
	m.SetWorkerQueueDepth(2)
	require.Nil(t, m.Handler())
}

func TestNewEnabledExposesHandler(t *testing.T) {
	m := New(true)
	require.NotNil(t, m)

	m.ObserveHydration("copy", "resident", 10*time.Millisecond, 2048)
	m.ObservePoolAllocation("created")
	m.SetPoolSize(5)

	h := m.Handler()
	require.NotNil(t, h)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "p4vfs_hydrations_total")
	require.Contains(t, rec.Body.String(), "p4vfs_session_pool_size")
}
