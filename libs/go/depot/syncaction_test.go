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

package depot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActionKindString(t *testing.T) {
	require.Equal(t, "added", ActionAdded.String())
	require.Equal(t, "can't clobber writable file", ActionCantClobber.String())
	require.Equal(t, "unknown", ActionKind(999).String())
}

func TestActionKindIsError(t *testing.T) {
	errKinds := []ActionKind{
		ActionNoFilesFound, ActionNoFileAtRevision, ActionInvalidPattern,
		ActionNotInClientView, ActionCantClobber, ActionNeedsResolve, ActionGenericError,
	}
	for _, k := range errKinds {
		require.Truef(t, k.IsError(), "%s should be classified as error", k)
	}

	okKinds := []ActionKind{ActionNone, ActionAdded, ActionUpdated, ActionUpToDate}
	for _, k := range okKinds {
		require.Falsef(t, k.IsError(), "%s should not be classified as error", k)
	}
}

func TestActionFlagsHas(t *testing.T) {
	f := FlagFileWrite | FlagClientClobber
	require.True(t, f.Has(FlagFileWrite))
	require.True(t, f.Has(FlagClientClobber))
	require.False(t, f.Has(FlagHaveFileWrite))
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "Success", OutcomeSuccess.String())
	require.Equal(t, "Warning", OutcomeWarning.String())
	require.Equal(t, "Error", OutcomeError.String())
}
