package pextest

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// Table ids used by the builder.
const (
	TableModule          = 0x00
	TableTypeRef         = 0x01
	TableTypeDef         = 0x02
	TableField           = 0x04
	TableMethodDef       = 0x06
	TableParam           = 0x08
	TableMemberRef       = 0x0a
	TableCustomAttribute = 0x0c
	TablePropertyMap     = 0x15
	TableProperty        = 0x17
	TableTypeSpec        = 0x1b
	TableAssembly        = 0x20
	TableAssemblyRef     = 0x23
	TableNestedClass     = 0x29
	TableGenericParam    = 0x2a
)

// Metadata builds a CLI metadata blob whose tables and heaps all fit
// 2-byte indexes. Row cells are uint16 or uint32 values written as-is.
type Metadata struct {
	Version string

	strings bytes.Buffer
	strIdx  map[string]uint16
	blobs   bytes.Buffer
	guids   bytes.Buffer
	rows    map[int][][]any
}

// NewMetadata returns an empty builder.
func NewMetadata() *Metadata {
	b := &Metadata{
		Version: "v4.0.30319",
		strIdx:  map[string]uint16{"": 0},
		rows:    map[int][][]any{},
	}
	b.strings.WriteByte(0)
	b.blobs.WriteByte(0)
	return b
}

// String interns s in #Strings.
func (b *Metadata) String(s string) uint16 {
	if idx, ok := b.strIdx[s]; ok {
		return idx
	}
	idx := uint16(b.strings.Len())
	b.strings.WriteString(s)
	b.strings.WriteByte(0)
	b.strIdx[s] = idx
	return idx
}

// Blob appends data to #Blob with its compressed length prefix.
func (b *Metadata) Blob(data []byte) uint16 {
	if len(data) == 0 {
		return 0
	}
	idx := uint16(b.blobs.Len())
	b.blobs.Write(CompressUint(uint32(len(data))))
	b.blobs.Write(data)
	return idx
}

// GUID appends g to #GUID and returns its 1-based index.
func (b *Metadata) GUID(g [16]byte) uint16 {
	b.guids.Write(g[:])
	return uint16(b.guids.Len() / 16)
}

// Row appends a row to table and returns its 1-based index.
func (b *Metadata) Row(table int, cells ...any) uint32 {
	b.rows[table] = append(b.rows[table], cells)
	return uint32(len(b.rows[table]))
}

// Coded packs a coded index.
func Coded(row uint32, tag, bits uint) uint16 {
	return uint16(row<<bits | uint32(tag))
}

// CompressUint encodes v as an ECMA-335 compressed unsigned integer.
func CompressUint(v uint32) []byte {
	switch {
	case v < 0x80:
		return []byte{byte(v)}
	case v < 0x4000:
		return []byte{byte(v>>8) | 0x80, byte(v)}
	default:
		return []byte{byte(v>>24) | 0xc0, byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// Bytes serialises the metadata root, stream headers and streams.
func (b *Metadata) Bytes() []byte {
	ids := make([]int, 0, len(b.rows))
	for id := range b.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var ts bytes.Buffer
	var valid uint64
	for _, id := range ids {
		valid |= 1 << uint(id)
	}
	binary.Write(&ts, binary.LittleEndian, uint32(0))
	ts.Write([]byte{2, 0, 0, 1}) // major, minor, heapSizes, reserved
	binary.Write(&ts, binary.LittleEndian, valid)
	binary.Write(&ts, binary.LittleEndian, uint64(0))
	for _, id := range ids {
		binary.Write(&ts, binary.LittleEndian, uint32(len(b.rows[id])))
	}
	for _, id := range ids {
		for _, row := range b.rows[id] {
			for _, c := range row {
				binary.Write(&ts, binary.LittleEndian, c)
			}
		}
	}

	streams := []struct {
		name string
		data []byte
	}{
		{"#~", ts.Bytes()},
		{"#Strings", b.strings.Bytes()},
		{"#US", []byte{0}},
		{"#GUID", b.guids.Bytes()},
		{"#Blob", b.blobs.Bytes()},
	}

	ver := []byte(b.Version)
	ver = append(ver, 0)
	for len(ver)%4 != 0 {
		ver = append(ver, 0)
	}

	headerLen := 16 + len(ver) + 4
	for _, s := range streams {
		headerLen += 8 + int(alignUp(uint32(len(s.name)+1), 4))
	}

	var root, body bytes.Buffer
	binary.Write(&root, binary.LittleEndian, uint32(0x424a5342))
	binary.Write(&root, binary.LittleEndian, uint16(1))
	binary.Write(&root, binary.LittleEndian, uint16(1))
	binary.Write(&root, binary.LittleEndian, uint32(0))
	binary.Write(&root, binary.LittleEndian, uint32(len(ver)))
	root.Write(ver)
	binary.Write(&root, binary.LittleEndian, uint16(0))
	binary.Write(&root, binary.LittleEndian, uint16(len(streams)))
	for _, s := range streams {
		off := headerLen + body.Len()
		body.Write(s.data)
		pad(&body, 4)
		binary.Write(&root, binary.LittleEndian, uint32(off))
		binary.Write(&root, binary.LittleEndian, uint32(len(s.data)))
		name := append([]byte(s.name), 0)
		for len(name)%4 != 0 {
			name = append(name, 0)
		}
		root.Write(name)
	}
	root.Write(body.Bytes())
	return root.Bytes()
}
