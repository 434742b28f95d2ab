package pex

import (
	"bytes"
	dpe "debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	exportDirSize  = 40
	maxExportNames = 1 << 16
	maxNameLen     = 4096
)

// Export is a named entry of the export table.
type Export struct {
	Name      string
	Ordinal   uint32
	RVA       uint32
	Forwarder string // "dll.Name" when the entry forwards to another module
}

type exportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// Exports decodes the named entries of the export directory. Images
// without one return an empty slice.
func (im *Image) Exports() ([]Export, error) {
	dd, err := im.DataDirectory(dpe.IMAGE_DIRECTORY_ENTRY_EXPORT)
	if err != nil {
		if errors.Is(err, ErrNotPresent) {
			return nil, nil
		}
		return nil, err
	}

	raw, err := im.ReadRVA(dd.VirtualAddress, exportDirSize)
	if err != nil {
		return nil, fmt.Errorf("export directory: %w", err)
	}
	var ed exportDirectory
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &ed); err != nil {
		return nil, fmt.Errorf("%w: export directory: %v", ErrTruncated, err)
	}

	n := ed.NumberOfNames
	if n > maxExportNames {
		n = maxExportNames
	}
	if n == 0 {
		return nil, nil
	}

	names, err := im.ReadRVA(ed.AddressOfNames, n*4)
	if err != nil {
		return nil, fmt.Errorf("export names: %w", err)
	}
	ordinals, err := im.ReadRVA(ed.AddressOfNameOrdinals, n*2)
	if err != nil {
		return nil, fmt.Errorf("export ordinals: %w", err)
	}

	exports := make([]Export, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := im.ReadCString(binary.LittleEndian.Uint32(names[i*4:]), maxNameLen)
		if err != nil {
			return nil, fmt.Errorf("export name %d: %w", i, err)
		}
		idx := uint32(binary.LittleEndian.Uint16(ordinals[i*2:]))
		if idx >= ed.NumberOfFunctions {
			continue
		}
		fn, err := im.ReadRVA(ed.AddressOfFunctions+idx*4, 4)
		if err != nil {
			return nil, fmt.Errorf("export address %d: %w", idx, err)
		}
		rva := binary.LittleEndian.Uint32(fn)

		e := Export{Name: name, Ordinal: ed.Base + idx, RVA: rva}
		// Forwarders point back into the export directory itself.
		if rva >= dd.VirtualAddress && rva < dd.VirtualAddress+dd.Size {
			if fwd, err := im.ReadCString(rva, maxNameLen); err == nil {
				e.Forwarder = fwd
			}
		}
		exports = append(exports, e)
	}
	return exports, nil
}
