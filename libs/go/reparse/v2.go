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

// v2 body layout after the 2-byte version field:
//
//	producerMajor   uint16
//	producerMinor   uint16
//	producerBuild   uint16
//	residencyPolicy uint16
//	populatePolicy  uint16
//	fileRevision    uint32   (32-bit in v2, per spec.md §3)
//	5 string descriptors, in depotPath/depotServer/depotClient/depotUser/
//	fileType order, each {sizeBytes uint16, relativeOffset int16} where
//	relativeOffset is relative to the descriptor's own starting address;
//	then the five strings' bytes, concatenated, pointed to by those
//	descriptors.
const v2FixedHeaderWidth = 2 /* version */ + 2 + 2 + 2 + 2 + 2 + 4
const v2DescriptorWidth = 2 + 2
const v2StringFieldCount = 5

func marshalV2(md Metadata) []byte {
	strs := []string{md.DepotPath, md.DepotServer, md.DepotClient, md.DepotUser, md.FileType}
	descriptorsStart := v2FixedHeaderWidth
	stringsStart := descriptorsStart + len(strs)*v2DescriptorWidth

	total := stringsStart
	for _, s := range strs {
		total += len(s)
	}
	buf := make([]byte, total)

	binary.LittleEndian.PutUint16(buf[0:2], 2)
	binary.LittleEndian.PutUint16(buf[2:4], md.Producer.Major)
	binary.LittleEndian.PutUint16(buf[4:6], md.Producer.Minor)
	binary.LittleEndian.PutUint16(buf[6:8], md.Producer.Build)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(md.ResidencyPolicy))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(md.PopulatePolicy))
	binary.LittleEndian.PutUint32(buf[12:16], md.FileRevision)

	strOffset := stringsStart
	for i, s := range strs {
		descAddr := descriptorsStart + i*v2DescriptorWidth
		relOffset := strOffset - descAddr
		binary.LittleEndian.PutUint16(buf[descAddr:descAddr+2], uint16(len(s)))
		binary.LittleEndian.PutUint16(buf[descAddr+2:descAddr+4], uint16(int16(relOffset)))
		copy(buf[strOffset:strOffset+len(s)], s)
		strOffset += len(s)
	}

	return buf
}

func parseV2(body []byte) (Metadata, error) {
	if len(body) < v2FixedHeaderWidth+v2StringFieldCount*v2DescriptorWidth {
		return Metadata{}, ErrTruncated
	}
	md := Metadata{Version: 2}
	md.Producer.Major = binary.LittleEndian.Uint16(body[2:4])
	md.Producer.Minor = binary.LittleEndian.Uint16(body[4:6])
	md.Producer.Build = binary.LittleEndian.Uint16(body[6:8])
	md.ResidencyPolicy = ResidencyPolicy(binary.LittleEndian.Uint16(body[8:10]))
	md.PopulatePolicy = PopulatePolicy(binary.LittleEndian.Uint16(body[10:12]))
	md.FileRevision = binary.LittleEndian.Uint32(body[12:16])

	descriptorsStart := v2FixedHeaderWidth
	fields := make([]*string, v2StringFieldCount)
	fields[0] = &md.DepotPath
	fields[1] = &md.DepotServer
	fields[2] = &md.DepotClient
	fields[3] = &md.DepotUser
	fields[4] = &md.FileType

	for i, dst := range fields {
		descAddr := descriptorsStart + i*v2DescriptorWidth
		if descAddr+4 > len(body) {
			return Metadata{}, ErrTruncated
		}
		size := int(binary.LittleEndian.Uint16(body[descAddr : descAddr+2]))
		relOffset := int(int16(binary.LittleEndian.Uint16(body[descAddr+2 : descAddr+4])))
		strStart := descAddr + relOffset
		if strStart < 0 || strStart+size > len(body) {
			return Metadata{}, ErrTruncated
		}
		*dst = string(body[strStart : strStart+size])
	}

	return md, nil
}
