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

package reparse

import "encoding/binary"

// v1FixedStringWidth is the fixed byte width of each of the four strings in
// a v1 body, matching the original MAX_PATH-sized fields. Each field is
// UTF-8 bytes padded with trailing zeros; a reader stops at the first zero.
const v1FixedStringWidth = 260

// v1 body layout after the 2-byte version field:
//
//	producerMajor  uint16
//	producerMinor  uint16
//	producerBuild  uint16
//	residencyPolicy uint16
//	populatePolicy  uint16
//	fileRevision    uint16   (16-bit in v1, per spec.md §3)
//	depotPath       [260]byte
//	depotServer     [260]byte
//	depotClient     [260]byte
//	depotUser       [260]byte
const v1FixedHeaderWidth = 2 /* version */ + 2 + 2 + 2 + 2 + 2 + 2

func parseV1(body []byte) (Metadata, error) {
	want := v1FixedHeaderWidth + 4*v1FixedStringWidth
	if len(body) < want {
		return Metadata{}, ErrTruncated
	}
	md := Metadata{Version: 1}
	md.Producer.Major = binary.LittleEndian.Uint16(body[2:4])
	md.Producer.Minor = binary.LittleEndian.Uint16(body[4:6])
	md.Producer.Build = binary.LittleEndian.Uint16(body[6:8])
	md.ResidencyPolicy = ResidencyPolicy(binary.LittleEndian.Uint16(body[8:10]))
	md.PopulatePolicy = PopulatePolicy(binary.LittleEndian.Uint16(body[10:12]))
	md.FileRevision = uint32(binary.LittleEndian.Uint16(body[12:14]))

	offset := v1FixedHeaderWidth
	md.DepotPath = readFixedString(body, offset)
	offset += v1FixedStringWidth
	md.DepotServer = readFixedString(body, offset)
	offset += v1FixedStringWidth
	md.DepotClient = readFixedString(body, offset)
	offset += v1FixedStringWidth
	md.DepotUser = readFixedString(body, offset)

	return md, nil
}

// marshalV1 is used only by tests and by upgrade-path round-trip checks; the
// module's writers always emit v2 (spec.md §9: "new writers emit v2").
func marshalV1(md Metadata) []byte {
	buf := make([]byte, v1FixedHeaderWidth+4*v1FixedStringWidth)
	binary.LittleEndian.PutUint16(buf[0:2], 1)
	binary.LittleEndian.PutUint16(buf[2:4], md.Producer.Major)
	binary.LittleEndian.PutUint16(buf[4:6], md.Producer.Minor)
	binary.LittleEndian.PutUint16(buf[6:8], md.Producer.Build)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(md.ResidencyPolicy))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(md.PopulatePolicy))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(md.FileRevision))

	offset := v1FixedHeaderWidth
	writeFixedString(buf, offset, md.DepotPath)
	offset += v1FixedStringWidth
	writeFixedString(buf, offset, md.DepotServer)
	offset += v1FixedStringWidth
	writeFixedString(buf, offset, md.DepotClient)
	offset += v1FixedStringWidth
	writeFixedString(buf, offset, md.DepotUser)

	return buf
}

func readFixedString(body []byte, offset int) string {
	field := body[offset : offset+v1FixedStringWidth]
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}

func writeFixedString(buf []byte, offset int, s string) {
	field := buf[offset : offset+v1FixedStringWidth]
	n := copy(field, s)
	for i := n; i < len(field); i++ {
		field[i] = 0
	}
}
