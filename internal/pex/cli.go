package pex

import (
	"bytes"
	dpe "debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
)

const cliHeaderSize = 72

// CLIHeader is the IMAGE_COR20_HEADER of a managed image.
type CLIHeader struct {
	Size                    uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetaData                dpe.DataDirectory
	Flags                   CorFlags
	EntryPointToken         uint32 // token, or RVA when CorNativeEntryPoint is set
	Resources               dpe.DataDirectory
	StrongNameSignature     dpe.DataDirectory
	CodeManagerTable        dpe.DataDirectory
	VTableFixups            dpe.DataDirectory
	ExportAddressTableJumps dpe.DataDirectory
	ManagedNativeHeader     dpe.DataDirectory
}

// CLIHeader decodes the COM descriptor directory. It returns ErrNotManaged
// if the image carries none.
func (im *Image) CLIHeader() (*CLIHeader, error) {
	dd, err := im.DataDirectory(dpe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR)
	if err != nil {
		if errors.Is(err, ErrNotPresent) {
			return nil, ErrNotManaged
		}
		return nil, err
	}

	raw, err := im.ReadRVA(dd.VirtualAddress, cliHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("CLI header: %w", err)
	}

	var h CLIHeader
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: CLI header: %v", ErrTruncated, err)
	}
	if h.Size < cliHeaderSize {
		return nil, fmt.Errorf("%w: CLI header size %d", ErrNotManaged, h.Size)
	}
	return &h, nil
}

// Metadata returns the raw CLI metadata blob.
func (im *Image) Metadata() ([]byte, error) {
	h, err := im.CLIHeader()
	if err != nil {
		return nil, err
	}
	if h.MetaData.VirtualAddress == 0 || h.MetaData.Size == 0 {
		return nil, fmt.Errorf("%w: empty metadata directory", ErrNotManaged)
	}
	return im.ReadRVA(h.MetaData.VirtualAddress, h.MetaData.Size)
}

// HasManagedEntryPoint reports whether the entry point field is a MethodDef token.
func (h *CLIHeader) HasManagedEntryPoint() bool {
	return h.Flags&CorNativeEntryPoint == 0 && h.EntryPointToken>>24 == 0x06 && h.EntryPointToken&0x00ffffff != 0
}
