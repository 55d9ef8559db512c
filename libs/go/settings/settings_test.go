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

package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithNoFileReturnsDefaults(t *testing.T) {
	out, err := Load("")
	require.NoError(t, err)
	require.Equal(t, InstallDefaults(), out)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p4vfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_pool_size: 16\nhydration_method: stream\n"), 0o600))

	out, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 16, out.WorkerPoolSize)
	require.Equal(t, "stream", out.HydrationMethod)
	// Untouched fields keep their defaults.
	require.Equal(t, InstallDefaults().SessionIdleTimeout, out.SessionIdleTimeout)
}

func TestLoadMissingConfigFileFallsBackToDefaults(t *testing.T) {
	out, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, InstallDefaults(), out)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p4vfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_pool_size: 16\n"), 0o600))

	t.Setenv("P4VFS_WORKER_POOL_SIZE", "32")
	out, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 32, out.WorkerPoolSize)
}

func TestLoadEnvDurationOverride(t *testing.T) {
	t.Setenv("P4VFS_SESSION_IDLE_TIMEOUT", "90s")
	out, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, out.SessionIdleTimeout)
}

func TestLoadEnvBoolOverride(t *testing.T) {
	t.Setenv("P4VFS_SHARE_MODE_DURING_HYDRATION", "true")
	out, err := Load("")
	require.NoError(t, err)
	require.True(t, out.ShareModeDuringHydration)
}

func TestInstallDefaultsMatchesSpecValues(t *testing.T) {
	d := InstallDefaults()
	require.Equal(t, 8, d.SessionPoolSize)
	require.Equal(t, 8, d.WorkerPoolSize)
	require.Equal(t, 8, d.FileOpenRetryCount)
	require.Equal(t, "copy", d.HydrationMethod)
	require.False(t, d.ShareModeDuringHydration)
}
