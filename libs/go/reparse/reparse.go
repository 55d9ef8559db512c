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

// Package reparse codecs the placeholder metadata carried in a file's
// reparse point: a fixed header plus a versioned body, per spec.md §6 and
// §3. Readers accept both the v1 fixed-width string layout and the v2
// variable-length descriptor layout; writers always emit v2.
package reparse

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Tag is the fixed reparse-point tag that identifies a P4VFS placeholder;
// any other tag value means "not ours."
const Tag uint32 = 0xBAC

// GUID is the fixed reparse GUID placed in every placeholder's header.
// 16 bytes, little-endian field order matching a Windows GUID struct.
var GUID = [16]byte{
	0xAC, 0xBD, 0xA7, 0x3C, 0xDC, 0xA3, 0xB8, 0x4A,
	0x93, 0xCA, 0x2C, 0x81, 0x5E, 0x5E, 0xC1, 0x5A,
}

// ErrUnknownVersion is returned for any body version other than 1 or 2,
// corresponding to spec.md §7's Integrity error class.
var ErrUnknownVersion = errors.New("reparse: unknown payload version")

// ErrTruncated is returned when a payload is shorter than its header
// declares, also an Integrity error.
var ErrTruncated = errors.New("reparse: truncated payload")

// ErrWrongTag is returned when the header's tag or GUID do not match a
// P4VFS placeholder; callers use this to mean "not a placeholder" rather
// than "corrupt placeholder."
var ErrWrongTag = errors.New("reparse: tag/guid mismatch")

const headerSize = 4 /* tag */ + 16 /* guid */ + 2 /* dataLength */

// ResidencyPolicy mirrors spec.md §3's enumeration recorded per placeholder.
type ResidencyPolicy uint16

const (
	ResidencyUndefined ResidencyPolicy = iota
	ResidencyResident
	ResidencySymlink
	ResidencyRemoveFile
)

// PopulatePolicy mirrors spec.md §3's enumeration recorded per placeholder.
type PopulatePolicy uint16

const (
	PopulateUndefined PopulatePolicy = iota
	PopulateDepot
	PopulateShare
)

// ProducerVersion is the (major, minor, build) of the writer that produced
// a placeholder, carried through unchanged by readers.
type ProducerVersion struct {
	Major uint16
	Minor uint16
	Build uint16
}

// Metadata is the in-memory, version-independent form of a placeholder's
// reparse payload. All readers normalize into this shape regardless of
// which wire version they parsed.
type Metadata struct {
	Version          uint16
	Producer         ProducerVersion
	ResidencyPolicy  ResidencyPolicy
	PopulatePolicy   PopulatePolicy
	FileRevision     uint32
	DepotPath        string
	DepotServer      string
	DepotClient      string
	DepotUser        string
	// FileType is the server-reported p4 file type ("text", "utf16", ...)
	// at install time. Only v2 payloads carry it; a v1 payload upgrades
	// with FileType empty, which the hydration path treats as an opaque
	// binary passthrough.
	FileType string
}

// header is the fixed prefix of every reparse point this package writes or
// reads, independent of body version.
type header struct {
	Tag        uint32
	GUID       [16]byte
	DataLength uint16
}

func (h header) isPlaceholder() bool {
	return h.Tag == Tag && h.GUID == GUID
}

func decodeHeader(data []byte) (header, []byte, error) {
	if len(data) < headerSize {
		return header{}, nil, ErrTruncated
	}
	var h header
	h.Tag = binary.LittleEndian.Uint32(data[0:4])
	copy(h.GUID[:], data[4:20])
	h.DataLength = binary.LittleEndian.Uint16(data[20:22])
	body := data[headerSize:]
	if len(body) < int(h.DataLength) {
		return header{}, nil, ErrTruncated
	}
	return h, body[:h.DataLength], nil
}

func encodeHeader(dataLength uint16) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], Tag)
	copy(buf[4:20], GUID[:])
	binary.LittleEndian.PutUint16(buf[20:22], dataLength)
	return buf
}

// IsPlaceholder reports whether data's header carries the P4VFS tag and
// GUID, without attempting to parse the body. This is the fast-path check
// DetectPlaceholder (§4.D) performs against an open handle's reparse data.
func IsPlaceholder(data []byte) bool {
	h, _, err := decodeHeader(data)
	return err == nil && h.isPlaceholder()
}

// Parse decodes a complete reparse point payload (header + body) into
// Metadata, dispatching to the v1 or v2 body codec by the body's own
// version field. It accepts either layout (property P3) and returns
// ErrWrongTag if the header doesn't match a P4VFS placeholder, or
// ErrUnknownVersion/ErrTruncated for a recognized-but-malformed body.
func Parse(data []byte) (Metadata, error) {
	h, body, err := decodeHeader(data)
	if err != nil {
		return Metadata{}, err
	}
	if !h.isPlaceholder() {
		return Metadata{}, ErrWrongTag
	}
	return parseBody(body)
}

// Marshal serializes md as a complete v2 reparse point payload (header +
// body), the layout every writer in this module emits.
func Marshal(md Metadata) []byte {
	body := marshalV2(md)
	return append(encodeHeader(uint16(len(body))), body...)
}

func parseBody(body []byte) (Metadata, error) {
	if len(body) < 2 {
		return Metadata{}, ErrTruncated
	}
	version := binary.LittleEndian.Uint16(body[0:2])
	switch version {
	case 1:
		return parseV1(body)
	case 2:
		return parseV2(body)
	default:
		return Metadata{}, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
}
