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

package residency

import (
	"fmt"
	"io"

	"github.com/p4vfs/core/libs/go/depot"
	"github.com/p4vfs/core/libs/go/placeholder"
	"github.com/p4vfs/core/libs/go/reparse"
)

// binaryResult collects a print command's binary payload and discards its
// free-text info lines, satisfying depot.ResultHandler + depot.BinaryHandler.
type binaryResult struct {
	data []byte
}

func (r *binaryResult) HandleInfo(level int, text string) {}
func (r *binaryResult) HandleBinary(chunk []byte)          { r.data = append(r.data, chunk...) }

// streamResult pipes a print command's binary payload directly to a
// PipeWriter instead of buffering it, for hydrateStream's direct-to-
// handle transfer. It satisfies depot.ResultHandler + depot.BinaryHandler.
type streamResult struct {
	w *io.PipeWriter
}

func (r *streamResult) HandleInfo(level int, text string) {}
func (r *streamResult) HandleBinary(chunk []byte) {
	if _, err := r.w.Write(chunk); err != nil {
		// The reader side (FinalizeResidentStream) gave up; Run keeps
		// calling HandleBinary for any remaining chunks, but they have
		// nowhere to go once the pipe is broken.
		return
	}
}

func printSpec(md reparse.Metadata) string {
	rev := depot.RevisionNumber(int32(md.FileRevision))
	return md.DepotPath + rev.String()
}

func fetchBytes(session depot.Session, md reparse.Metadata) ([]byte, error) {
	var result binaryResult
	cmd := depot.Command{Name: "print", Args: []string{"-q", printSpec(md)}}
	if err := session.Run(cmd, &result); err != nil {
		return nil, fmt.Errorf("residency: print %s: %w", printSpec(md), err)
	}
	return result.data, nil
}

// encodeForWrite applies the charset/line-ending transform md.FileType
// implies (spec.md §4.B's encoding contract) to depot bytes already
// fetched for hydration.
func encodeForWrite(data []byte, md reparse.Metadata) ([]byte, error) {
	charset, lineEnding := depot.ClassifyFileType(md.FileType)
	return depot.EncodeForHydration(data, charset, lineEnding)
}

// hydrateCopy prints the full revision into memory, applies the file's
// charset/line-ending transform, then writes the result into the
// placeholder's already-open handle in one call.
func hydrateCopy(session depot.Session, mgr placeholder.Manager, path string, md reparse.Metadata) error {
	data, err := fetchBytes(session, md)
	if err != nil {
		return err
	}
	data, err = encodeForWrite(data, md)
	if err != nil {
		return fmt.Errorf("residency: encode %s: %w", path, err)
	}
	return finalize(mgr, path, data)
}

// hydrateMove prints the full revision into memory, applies the same
// transform as hydrateCopy, then replaces the placeholder's file entirely
// via a temp file renamed over it rather than writing into the already-
// open handle: the rename is atomic and the replacement carries no
// reparse point, so it both clears residency state and preserves the
// target's prior modification time in one step.
func hydrateMove(session depot.Session, mgr placeholder.Manager, path string, md reparse.Metadata) error {
	data, err := fetchBytes(session, md)
	if err != nil {
		return err
	}
	data, err = encodeForWrite(data, md)
	if err != nil {
		return fmt.Errorf("residency: encode %s: %w", path, err)
	}
	if err := mgr.ReplaceResident(path, data); err != nil {
		return fmt.Errorf("residency: replace %s: %w", path, err)
	}
	if err := mgr.ClearOffline(path); err != nil {
		return fmt.Errorf("residency: clear offline attribute on %s: %w", path, err)
	}
	return nil
}

// hydrateStream streams the print command's binary payload directly into
// the placeholder's open handle as it arrives, without buffering a full
// copy first. A charset or line-ending transform needs the whole payload
// in hand before it can run, so a file that needs one falls back to the
// buffered hydrateCopy path instead of half-streaming then rewriting.
func hydrateStream(session depot.Session, mgr placeholder.Manager, path string, md reparse.Metadata) error {
	charset, lineEnding := depot.ClassifyFileType(md.FileType)
	if charset != depot.CharsetNone || lineEnding != depot.LineEndUnix {
		return hydrateCopy(session, mgr, path, md)
	}

	handle, err := mgr.OpenByFileID(path, true)
	if err != nil {
		return fmt.Errorf("residency: reopen %s for write: %w", path, err)
	}

	pr, pw := io.Pipe()
	runErrCh := make(chan error, 1)
	go func() {
		cmd := depot.Command{Name: "print", Args: []string{"-q", printSpec(md)}}
		result := &streamResult{w: pw}
		err := session.Run(cmd, result)
		switch {
		case err != nil:
			pw.CloseWithError(err)
		default:
			pw.Close()
		}
		runErrCh <- err
	}()

	streamErr := mgr.FinalizeResidentStream(handle, pr)
	pr.Close()
	if runErr := <-runErrCh; runErr != nil {
		handle.Close()
		return fmt.Errorf("residency: print %s: %w", printSpec(md), runErr)
	}
	if streamErr != nil {
		handle.Close()
		return fmt.Errorf("residency: stream %s: %w", path, streamErr)
	}
	if err := handle.Close(); err != nil {
		return fmt.Errorf("residency: close %s: %w", path, err)
	}
	if err := mgr.ClearOffline(path); err != nil {
		return fmt.Errorf("residency: clear offline attribute on %s: %w", path, err)
	}
	return nil
}

func finalize(mgr placeholder.Manager, path string, data []byte) error {
	handle, err := mgr.OpenByFileID(path, true)
	if err != nil {
		return fmt.Errorf("residency: reopen %s for write: %w", path, err)
	}
	if err := mgr.FinalizeResident(handle, data); err != nil {
		handle.Close()
		return err
	}
	if err := handle.Close(); err != nil {
		return fmt.Errorf("residency: close %s: %w", path, err)
	}
	if err := mgr.ClearOffline(path); err != nil {
		return fmt.Errorf("residency: clear offline attribute on %s: %w", path, err)
	}
	return nil
}
