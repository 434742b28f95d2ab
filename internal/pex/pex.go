// Package pex provides helpers for opening PE images, validating their
// headers, locating the CLI header and mapping RVAs to file offsets.
package pex

import (
	"bytes"
	dpe "debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	dosHeaderSize    = 64
	lfanewOffset     = 0x3c
	coffHeaderSize   = 20
	sectionEntrySize = 40
	maxNumSections   = 96 // loader limit

	magicPE32     = 0x10b
	magicPE32Plus = 0x20b
)

// Image is an opened and validated PE binary. It owns a read-only copy of
// the whole file; the file handle itself is not kept open.
type Image struct {
	Path            string
	All             []byte
	Machine         Machine
	Characteristics Characteristics
	PE32Plus        bool
	ImageBase       uint64
	EntryPoint      uint32 // AddressOfEntryPoint
	SizeOfHeaders   uint32
	Sections        []Section
	dirs            []dpe.DataDirectory
}

// Section is a section table entry.
type Section struct {
	Name        string
	VA, VSize   uint32
	Off, Size   uint32
	Permissions uint32
}

// Open reads the file at path and validates its PE headers.
// ErrFileNotFound is returned before any byte is read.
func Open(path string) (*Image, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return NewImage(path, all)
}

// NewImage validates the headers of an in-memory PE image.
func NewImage(path string, data []byte) (*Image, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}
	if data[0] != 'M' || data[1] != 'Z' {
		return nil, fmt.Errorf("%w: missing MZ signature", ErrNotAPEFile)
	}
	if len(data) < dosHeaderSize {
		return nil, fmt.Errorf("%w: MS-DOS header needs %d bytes, have %d", ErrTruncated, dosHeaderSize, len(data))
	}

	// Packers sometimes overlap the PE header with the MS-DOS header, so
	// only offsets that cannot hold a signature at all are rejected.
	lfanew := int64(binary.LittleEndian.Uint32(data[lfanewOffset:]))
	if lfanew < 4 {
		return nil, fmt.Errorf("%w: e_lfanew 0x%x", ErrNotAPEFile, lfanew)
	}
	if lfanew+4 > int64(len(data)) {
		return nil, fmt.Errorf("%w: PE signature offset 0x%x beyond end of file", ErrTruncated, lfanew)
	}
	if !bytes.Equal(data[lfanew:lfanew+4], []byte{'P', 'E', 0, 0}) {
		return nil, fmt.Errorf("%w: bad PE signature % x", ErrNotAPEFile, data[lfanew:lfanew+4])
	}

	coffOff := lfanew + 4
	if coffOff+coffHeaderSize > int64(len(data)) {
		return nil, fmt.Errorf("%w: COFF header", ErrTruncated)
	}
	var fh dpe.FileHeader
	if err := binary.Read(bytes.NewReader(data[coffOff:coffOff+coffHeaderSize]), binary.LittleEndian, &fh); err != nil {
		return nil, fmt.Errorf("%w: COFF header: %v", ErrTruncated, err)
	}

	im := &Image{
		Path:            path,
		All:             data,
		Machine:         Machine(fh.Machine),
		Characteristics: Characteristics(fh.Characteristics),
	}

	optOff := coffOff + coffHeaderSize
	optSize := int64(fh.SizeOfOptionalHeader)
	if optSize == 0 {
		return nil, fmt.Errorf("%w: no optional header", ErrNotAPEFile)
	}
	if optOff+optSize > int64(len(data)) {
		return nil, fmt.Errorf("%w: optional header", ErrTruncated)
	}
	if err := im.readOptionalHeader(data[optOff : optOff+optSize]); err != nil {
		return nil, err
	}

	numSections := int64(fh.NumberOfSections)
	if numSections > maxNumSections {
		numSections = maxNumSections
	}
	secOff := optOff + optSize
	if secOff+numSections*sectionEntrySize > int64(len(data)) {
		return nil, fmt.Errorf("%w: section table", ErrTruncated)
	}
	raw := make([]dpe.SectionHeader32, numSections)
	if err := binary.Read(bytes.NewReader(data[secOff:]), binary.LittleEndian, raw); err != nil {
		return nil, fmt.Errorf("%w: section table: %v", ErrTruncated, err)
	}
	for _, s := range raw {
		im.Sections = append(im.Sections, Section{
			Name:        sectionName(s.Name),
			VA:          s.VirtualAddress,
			VSize:       s.VirtualSize,
			Off:         s.PointerToRawData,
			Size:        s.SizeOfRawData,
			Permissions: s.Characteristics,
		})
	}

	return im, nil
}

// readOptionalHeader decodes a PE32 or PE32+ optional header. Headers that
// declare fewer than 16 data directories are zero-padded.
func (im *Image) readOptionalHeader(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("%w: optional header magic", ErrTruncated)
	}

	switch magic := binary.LittleEndian.Uint16(b); magic {
	case magicPE32:
		var oh dpe.OptionalHeader32
		if err := readPadded(b, &oh); err != nil {
			return err
		}
		im.ImageBase = uint64(oh.ImageBase)
		im.EntryPoint = oh.AddressOfEntryPoint
		im.SizeOfHeaders = oh.SizeOfHeaders
		im.dirs = clampDirs(oh.DataDirectory[:], oh.NumberOfRvaAndSizes, len(b), 96)
	case magicPE32Plus:
		var oh dpe.OptionalHeader64
		if err := readPadded(b, &oh); err != nil {
			return err
		}
		im.PE32Plus = true
		im.ImageBase = oh.ImageBase
		im.EntryPoint = oh.AddressOfEntryPoint
		im.SizeOfHeaders = oh.SizeOfHeaders
		im.dirs = clampDirs(oh.DataDirectory[:], oh.NumberOfRvaAndSizes, len(b), 112)
	default:
		return fmt.Errorf("%w: unknown optional header magic 0x%x", ErrNotAPEFile, magic)
	}
	return nil
}

func readPadded(b []byte, v any) error {
	buf := make([]byte, binary.Size(v))
	copy(buf, b)
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: optional header: %v", ErrTruncated, err)
	}
	return nil
}

// clampDirs keeps only the directories that are both declared and present
// in the header bytes.
func clampDirs(dirs []dpe.DataDirectory, declared uint32, headerLen, fixedLen int) []dpe.DataDirectory {
	n := int(declared)
	if n > len(dirs) {
		n = len(dirs)
	}
	if avail := (headerLen - fixedLen) / 8; avail < n {
		n = avail
	}
	if n < 0 {
		n = 0
	}
	return dirs[:n]
}

func sectionName(raw [8]uint8) string {
	for i, c := range raw {
		if c == 0 {
			return string(raw[:i])
		}
	}
	return string(raw[:])
}

// Close releases the image buffer.
func (im *Image) Close() error {
	im.All = nil
	return nil
}

// DataDirectory returns the data directory at idx, one of the
// IMAGE_DIRECTORY_ENTRY_* constants in debug/pe.
func (im *Image) DataDirectory(idx int) (dpe.DataDirectory, error) {
	if idx < 0 || idx >= len(im.dirs) {
		return dpe.DataDirectory{}, ErrNotPresent
	}
	dd := im.dirs[idx]
	if dd.VirtualAddress == 0 || dd.Size == 0 {
		return dpe.DataDirectory{}, ErrNotPresent
	}
	return dd, nil
}

// RVAToOffset translates an RVA into a file offset using the section
// table. It returns false if the RVA is not backed by file data.
func (im *Image) RVAToOffset(rva uint32) (uint32, bool) {
	if rva < im.SizeOfHeaders && rva < uint32(len(im.All)) {
		return rva, true
	}
	for _, s := range im.Sections {
		span := s.VSize
		if span < s.Size {
			span = s.Size
		}
		if rva < s.VA || rva-s.VA >= span {
			continue
		}
		delta := rva - s.VA
		if delta >= s.Size {
			return 0, false
		}
		// Truncated files declare raw data past the end of the buffer.
		off := uint64(s.Off) + uint64(delta)
		if off >= uint64(len(im.All)) {
			return 0, false
		}
		return uint32(off), true
	}
	return 0, false
}

// ReadRVA returns the size bytes at rva. The slice aliases the image buffer.
func (im *Image) ReadRVA(rva, size uint32) ([]byte, error) {
	off, ok := im.RVAToOffset(rva)
	if !ok {
		return nil, fmt.Errorf("%w: RVA 0x%x is not mapped", ErrTruncated, rva)
	}
	end := uint64(off) + uint64(size)
	if end > uint64(len(im.All)) {
		return nil, fmt.Errorf("%w: RVA range 0x%x+0x%x", ErrTruncated, rva, size)
	}
	return im.All[off:end], nil
}

// ReadCString reads a NUL-terminated string at rva, up to maxLen bytes.
func (im *Image) ReadCString(rva uint32, maxLen int) (string, error) {
	off, ok := im.RVAToOffset(rva)
	if !ok {
		return "", fmt.Errorf("%w: RVA 0x%x is not mapped", ErrTruncated, rva)
	}
	rest := im.All[off:]
	if len(rest) > maxLen {
		rest = rest[:maxLen]
	}
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		return string(rest[:i]), nil
	}
	return "", fmt.Errorf("%w: unterminated string at RVA 0x%x", ErrTruncated, rva)
}
