// Package climeta decodes the CLI metadata of a managed PE image: the
// metadata root, its heaps and the compressed table stream.
package climeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"csa/internal/pex"
)

const metadataSignature = 0x424a5342 // "BSJB"

var ErrBadMetadata = fmt.Errorf("%w: bad CLI metadata", pex.ErrBadImageFormat)

// Metadata is the decoded metadata of one module.
type Metadata struct {
	Version      string
	MajorVersion uint16
	MinorVersion uint16

	strings []byte
	blobs   []byte
	guids   []byte

	heapSizes byte
	rows      [numTables]uint32
	tables    [numTables][]byte // raw rows per table

	Module           Module
	TypeRefs         []TypeRef
	TypeDefs         []TypeDef
	Fields           []Field
	MethodDefs       []MethodDef
	Params           []Param
	MemberRefs       []MemberRef
	CustomAttributes []CustomAttribute
	PropertyMaps     []PropertyMap
	Properties       []Property
	TypeSpecs        [][]byte
	Assembly         *Assembly
	AssemblyRefs     []AssemblyRef
	NestedClasses    []NestedClass
	GenericParams    []GenericParam
	enclosing        map[uint32]uint32 // nested TypeDef row -> enclosing TypeDef row
}

type stream struct {
	name   string
	offset uint32
	size   uint32
}

// Parse decodes a metadata blob as returned by pex.Image.Metadata.
func Parse(data []byte) (*Metadata, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: root is %d bytes", ErrBadMetadata, len(data))
	}
	if sig := binary.LittleEndian.Uint32(data); sig != metadataSignature {
		return nil, fmt.Errorf("%w: signature 0x%08x", ErrBadMetadata, sig)
	}

	md := &Metadata{
		MajorVersion: binary.LittleEndian.Uint16(data[4:]),
		MinorVersion: binary.LittleEndian.Uint16(data[6:]),
	}
	verLen := binary.LittleEndian.Uint32(data[12:])
	off := uint64(16) + uint64(verLen)
	if off+4 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: version string length %d", ErrBadMetadata, verLen)
	}
	ver := data[16:off]
	if i := bytes.IndexByte(ver, 0); i >= 0 {
		ver = ver[:i]
	}
	md.Version = string(ver)

	// Flags (2 bytes) precede the stream count.
	numStreams := int(binary.LittleEndian.Uint16(data[off+2:]))
	off += 4

	streams := make([]stream, 0, numStreams)
	for i := 0; i < numStreams; i++ {
		if off+8 > uint64(len(data)) {
			return nil, fmt.Errorf("%w: stream header %d", ErrBadMetadata, i)
		}
		s := stream{
			offset: binary.LittleEndian.Uint32(data[off:]),
			size:   binary.LittleEndian.Uint32(data[off+4:]),
		}
		off += 8
		end := bytes.IndexByte(data[off:], 0)
		if end < 0 || end > 32 {
			return nil, fmt.Errorf("%w: stream name %d", ErrBadMetadata, i)
		}
		s.name = string(data[off : off+uint64(end)])
		// Names are NUL-terminated and padded to 4 bytes.
		off += uint64(end+4) &^ 3
		if uint64(s.offset)+uint64(s.size) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: stream %q out of bounds", ErrBadMetadata, s.name)
		}
		streams = append(streams, s)
	}

	var tableStream []byte
	for _, s := range streams {
		body := data[s.offset : s.offset+s.size]
		switch s.name {
		case "#~", "#-":
			tableStream = body
		case "#Strings":
			md.strings = body
		case "#Blob":
			md.blobs = body
		case "#GUID":
			md.guids = body
		}
	}
	if tableStream == nil {
		return nil, fmt.Errorf("%w: no table stream", ErrBadMetadata)
	}

	if err := md.readTables(tableStream); err != nil {
		return nil, err
	}
	if err := md.decode(); err != nil {
		return nil, err
	}
	return md, nil
}

// readTables splits the table stream into per-table row data.
func (md *Metadata) readTables(ts []byte) error {
	if len(ts) < 24 {
		return fmt.Errorf("%w: table stream header", ErrBadMetadata)
	}
	md.heapSizes = ts[6]
	valid := binary.LittleEndian.Uint64(ts[8:])

	off := 24
	for t := 0; t < 64; t++ {
		if valid&(1<<uint(t)) == 0 {
			continue
		}
		if t >= numTables {
			return fmt.Errorf("%w: unsupported table 0x%02x", ErrBadMetadata, t)
		}
		if off+4 > len(ts) {
			return fmt.Errorf("%w: row counts", ErrBadMetadata)
		}
		md.rows[t] = binary.LittleEndian.Uint32(ts[off:])
		off += 4
	}
	// Some obfuscators set this bit and append an extra dword.
	if md.heapSizes&0x40 != 0 {
		off += 4
	}

	for t := 0; t < numTables; t++ {
		if md.rows[t] == 0 {
			continue
		}
		size := uint64(md.rowSize(t)) * uint64(md.rows[t])
		if uint64(off)+size > uint64(len(ts)) {
			return fmt.Errorf("%w: table 0x%02x truncated", ErrBadMetadata, t)
		}
		md.tables[t] = ts[off : uint64(off)+size]
		off += int(size)
	}
	return nil
}

// RowCount returns the number of rows in table t.
func (md *Metadata) RowCount(t int) uint32 {
	if t < 0 || t >= numTables {
		return 0
	}
	return md.rows[t]
}

func (md *Metadata) colSize(c column) int {
	switch c.kind {
	case colU16:
		return 2
	case colU32:
		return 4
	case colString:
		if md.heapSizes&0x01 != 0 {
			return 4
		}
		return 2
	case colGUID:
		if md.heapSizes&0x02 != 0 {
			return 4
		}
		return 2
	case colBlob:
		if md.heapSizes&0x04 != 0 {
			return 4
		}
		return 2
	case colTable:
		if md.rows[c.ref] < 1<<16 {
			return 2
		}
		return 4
	case colCoded:
		ci := codedIndexes[c.ref]
		var max uint32
		for _, t := range ci.tables {
			if t >= 0 && md.rows[t] > max {
				max = md.rows[t]
			}
		}
		if max < 1<<(16-ci.bits) {
			return 2
		}
		return 4
	}
	return 0
}

func (md *Metadata) rowSize(t int) int {
	n := 0
	for _, c := range schema[t] {
		n += md.colSize(c)
	}
	return n
}

// cell reads column col of the 1-based row in table t.
func (md *Metadata) cell(t int, row uint32, col int) uint32 {
	if row == 0 || row > md.rows[t] {
		return 0
	}
	rs := md.rowSize(t)
	b := md.tables[t][int(row-1)*rs:]
	for _, c := range schema[t][:col] {
		b = b[md.colSize(c):]
	}
	if md.colSize(schema[t][col]) == 2 {
		return uint32(binary.LittleEndian.Uint16(b))
	}
	return binary.LittleEndian.Uint32(b)
}

// String returns the #Strings heap entry at idx.
func (md *Metadata) String(idx uint32) string {
	if idx == 0 || int(idx) >= len(md.strings) {
		return ""
	}
	s := md.strings[idx:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

// Blob returns the #Blob heap entry at idx.
func (md *Metadata) Blob(idx uint32) ([]byte, error) {
	if idx == 0 {
		return nil, nil
	}
	if int(idx) >= len(md.blobs) {
		return nil, fmt.Errorf("%w: blob index 0x%x", ErrBadMetadata, idx)
	}
	n, size, err := decompress(md.blobs[idx:])
	if err != nil {
		return nil, fmt.Errorf("blob 0x%x: %w", idx, err)
	}
	start := uint64(idx) + uint64(size)
	end := start + uint64(n)
	if end > uint64(len(md.blobs)) {
		return nil, fmt.Errorf("%w: blob 0x%x overruns heap", ErrBadMetadata, idx)
	}
	return md.blobs[start:end], nil
}

// GUID returns the 1-based #GUID heap entry.
func (md *Metadata) GUID(idx uint32) [16]byte {
	var g [16]byte
	if idx == 0 || uint64(idx)*16 > uint64(len(md.guids)) {
		return g
	}
	copy(g[:], md.guids[(idx-1)*16:])
	return g
}

var errCompressed = errors.New("bad compressed integer")

// decompress reads an ECMA-335 II.23.2 compressed unsigned integer and
// returns the value and its encoded size.
func decompress(b []byte) (uint32, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadMetadata, errCompressed)
	}
	switch {
	case b[0]&0x80 == 0:
		return uint32(b[0]), 1, nil
	case b[0]&0xc0 == 0x80:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("%w: %v", ErrBadMetadata, errCompressed)
		}
		return uint32(b[0]&0x3f)<<8 | uint32(b[1]), 2, nil
	case b[0]&0xe0 == 0xc0:
		if len(b) < 4 {
			return 0, 0, fmt.Errorf("%w: %v", ErrBadMetadata, errCompressed)
		}
		return uint32(b[0]&0x1f)<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), 4, nil
	}
	return 0, 0, fmt.Errorf("%w: %v", ErrBadMetadata, errCompressed)
}

// decodeCoded splits a coded index into table id and row.
func decodeCoded(kind int, v uint32) (int, uint32) {
	ci := codedIndexes[kind]
	tag := v & (1<<ci.bits - 1)
	if int(tag) >= len(ci.tables) {
		return -1, 0
	}
	return ci.tables[tag], v >> ci.bits
}
