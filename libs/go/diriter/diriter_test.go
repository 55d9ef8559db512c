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

package diriter

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o777))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "skip", "hidden"), 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("x"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "one.txt"), []byte("x"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "two.txt"), []byte("x"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip", "hidden", "three.txt"), []byte("x"), 0o666))
	return root
}

func TestIteratorVisitsEveryEntry(t *testing.T) {
	root := buildTree(t)

	var mu sync.Mutex
	var visited []string
	it := New(4, DepthFirst, func(item Item) bool {
		mu.Lock()
		visited = append(visited, filepath.Base(item.Path))
		mu.Unlock()
		return true
	})
	it.Run(root, KindDir, 0)

	require.Contains(t, visited, "top.txt")
	require.Contains(t, visited, "one.txt")
	require.Contains(t, visited, "two.txt")
	require.Contains(t, visited, "three.txt")
	require.Contains(t, visited, filepath.Base(root))
}

func TestIteratorSkipsSubtreeWhenVisitorReturnsFalse(t *testing.T) {
	root := buildTree(t)

	var mu sync.Mutex
	var visited []string
	it := New(2, DepthFirst, func(item Item) bool {
		mu.Lock()
		visited = append(visited, filepath.Base(item.Path))
		mu.Unlock()
		return filepath.Base(item.Path) != "skip"
	})
	it.Run(root, KindDir, 0)

	require.Contains(t, visited, "skip")
	require.NotContains(t, visited, "hidden")
	require.NotContains(t, visited, "three.txt")
}

func TestIteratorBreadthFirstStillVisitsAll(t *testing.T) {
	root := buildTree(t)

	var count int
	var mu sync.Mutex
	it := New(3, BreadthFirst, func(Item) bool {
		mu.Lock()
		count++
		mu.Unlock()
		return true
	})
	it.Run(root, KindDir, 0)

	require.Equal(t, 9, count) // root + skip + hidden + a + b + 4 files
}

func TestIteratorSingleWorkerIsDeterministicDepthFirst(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f1.txt"), []byte("x"), 0o666))

	var visited []string
	it := New(1, DepthFirst, func(item Item) bool {
		visited = append(visited, filepath.Base(item.Path))
		return true
	})
	it.Run(root, KindDir, 0)
	require.Equal(t, []string{filepath.Base(root), "f1.txt"}, visited)
}
