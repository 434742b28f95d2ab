// Package pextest builds small synthetic PE images for tests.
package pextest

import (
	"bytes"
	dpe "debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	lfanew      = 0x80
	fileAlign   = 0x200
	sectAlign   = 0x1000
	textRVA     = 0x2000
	textOff     = 0x200
	imageBase32 = 0x400000
	imageBase64 = 0x140000000
)

// Image describes the PE file produced by Bytes.
type Image struct {
	Machine         uint16
	Characteristics uint16
	PE32Plus        bool

	// Managed adds a CLI header pointing at Metadata.
	Managed         bool
	CorFlags        uint32
	EntryPointToken uint32
	Metadata        []byte

	// EntryStub is placed at AddressOfEntryPoint. A nil stub gets the
	// default for Machine.
	EntryStub []byte

	DLLName string
	Exports []Export
}

// Export is an export table entry. Entries without a forwarder point at
// the entry stub.
type Export struct {
	Name      string
	Forwarder string
}

type cor20Header struct {
	Size                    uint32
	MajorRuntimeVersion     uint16
	MinorRuntimeVersion     uint16
	MetaData                dpe.DataDirectory
	Flags                   uint32
	EntryPointToken         uint32
	Resources               dpe.DataDirectory
	StrongNameSignature     dpe.DataDirectory
	CodeManagerTable        dpe.DataDirectory
	VTableFixups            dpe.DataDirectory
	ExportAddressTableJumps dpe.DataDirectory
	ManagedNativeHeader     dpe.DataDirectory
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

// DefaultStub returns the entry stub a linker would emit for machine.
func DefaultStub(machine uint16) []byte {
	switch machine {
	case dpe.IMAGE_FILE_MACHINE_I386:
		// jmp dword ptr [0x402000] (_CorExeMain thunk)
		return []byte{0xff, 0x25, 0x00, 0x20, 0x40, 0x00}
	case dpe.IMAGE_FILE_MACHINE_AMD64:
		// jmp qword ptr [rip]
		return []byte{0xff, 0x25, 0x00, 0x00, 0x00, 0x00}
	case dpe.IMAGE_FILE_MACHINE_ARM64:
		// ret
		return []byte{0xc0, 0x03, 0x5f, 0xd6}
	}
	return nil
}

func pad(b *bytes.Buffer, align int) {
	for b.Len()%align != 0 {
		b.WriteByte(0)
	}
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// Bytes lays out the image: headers in the first 0x200 bytes and a single
// .text section at RVA 0x2000 holding the stub, CLI header, metadata and
// export table.
func (im Image) Bytes() []byte {
	var dirs [16]dpe.DataDirectory
	var text bytes.Buffer

	stub := im.EntryStub
	if stub == nil {
		stub = DefaultStub(im.Machine)
	}
	var entry uint32
	if len(stub) > 0 {
		entry = textRVA
		text.Write(stub)
		pad(&text, 16)
	}

	if im.Managed {
		cliOff := text.Len()
		text.Write(make([]byte, 72))
		pad(&text, 4)
		mdRVA := textRVA + uint32(text.Len())
		text.Write(im.Metadata)
		pad(&text, 4)

		h := cor20Header{
			Size:                72,
			MajorRuntimeVersion: 2,
			MinorRuntimeVersion: 5,
			MetaData:            dpe.DataDirectory{VirtualAddress: mdRVA, Size: uint32(len(im.Metadata))},
			Flags:               im.CorFlags,
			EntryPointToken:     im.EntryPointToken,
		}
		var hb bytes.Buffer
		binary.Write(&hb, binary.LittleEndian, &h)
		copy(text.Bytes()[cliOff:], hb.Bytes())
		dirs[dpe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR] = dpe.DataDirectory{
			VirtualAddress: textRVA + uint32(cliOff),
			Size:           72,
		}
	}

	if len(im.Exports) > 0 {
		dirs[dpe.IMAGE_DIRECTORY_ENTRY_EXPORT] = im.writeExports(&text)
	}

	virtSize := uint32(text.Len())
	rawSize := alignUp(virtSize, fileAlign)

	var out bytes.Buffer
	dos := make([]byte, lfanew)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], lfanew)
	out.Write(dos)
	out.WriteString("PE\x00\x00")

	optSize := binary.Size(dpe.OptionalHeader32{})
	if im.PE32Plus {
		optSize = binary.Size(dpe.OptionalHeader64{})
	}
	fh := dpe.FileHeader{
		Machine:              im.Machine,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(optSize),
		Characteristics:      im.Characteristics,
	}
	binary.Write(&out, binary.LittleEndian, &fh)

	sizeOfImage := textRVA + alignUp(virtSize, sectAlign)
	if im.PE32Plus {
		oh := dpe.OptionalHeader64{
			Magic:               0x20b,
			SizeOfCode:          rawSize,
			AddressOfEntryPoint: entry,
			BaseOfCode:          textRVA,
			ImageBase:           imageBase64,
			SectionAlignment:    sectAlign,
			FileAlignment:       fileAlign,
			SizeOfImage:         sizeOfImage,
			SizeOfHeaders:       textOff,
			Subsystem:           dpe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
			NumberOfRvaAndSizes: 16,
			DataDirectory:       dirs,
		}
		binary.Write(&out, binary.LittleEndian, &oh)
	} else {
		oh := dpe.OptionalHeader32{
			Magic:               0x10b,
			SizeOfCode:          rawSize,
			AddressOfEntryPoint: entry,
			BaseOfCode:          textRVA,
			ImageBase:           imageBase32,
			SectionAlignment:    sectAlign,
			FileAlignment:       fileAlign,
			SizeOfImage:         sizeOfImage,
			SizeOfHeaders:       textOff,
			Subsystem:           dpe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
			NumberOfRvaAndSizes: 16,
			DataDirectory:       dirs,
		}
		binary.Write(&out, binary.LittleEndian, &oh)
	}

	sh := dpe.SectionHeader32{
		Name:             [8]uint8{'.', 't', 'e', 'x', 't'},
		VirtualSize:      virtSize,
		VirtualAddress:   textRVA,
		SizeOfRawData:    rawSize,
		PointerToRawData: textOff,
		Characteristics:  dpe.IMAGE_SCN_CNT_CODE | dpe.IMAGE_SCN_MEM_EXECUTE | dpe.IMAGE_SCN_MEM_READ,
	}
	binary.Write(&out, binary.LittleEndian, &sh)
	pad(&out, textOff)

	out.Write(text.Bytes())
	pad(&out, fileAlign)
	return out.Bytes()
}

func (im Image) writeExports(text *bytes.Buffer) dpe.DataDirectory {
	n := uint32(len(im.Exports))
	dirRVA := textRVA + uint32(text.Len())
	funcsRVA := dirRVA + 40
	namesRVA := funcsRVA + 4*n
	ordsRVA := namesRVA + 4*n
	strRVA := ordsRVA + 2*n

	var strs bytes.Buffer
	addStr := func(s string) uint32 {
		rva := strRVA + uint32(strs.Len())
		strs.WriteString(s)
		strs.WriteByte(0)
		return rva
	}
	dll := im.DLLName
	if dll == "" {
		dll = "sample.dll"
	}
	nameRVA := addStr(dll)

	funcs := make([]uint32, n)
	names := make([]uint32, n)
	ords := make([]uint16, n)
	for i, e := range im.Exports {
		names[i] = addStr(e.Name)
		ords[i] = uint16(i)
		funcs[i] = textRVA
		if e.Forwarder != "" {
			funcs[i] = addStr(e.Forwarder)
		}
	}

	ed := exportDirectory{
		Name:                  nameRVA,
		Base:                  1,
		NumberOfFunctions:     n,
		NumberOfNames:         n,
		AddressOfFunctions:    funcsRVA,
		AddressOfNames:        namesRVA,
		AddressOfNameOrdinals: ordsRVA,
	}
	binary.Write(text, binary.LittleEndian, &ed)
	binary.Write(text, binary.LittleEndian, funcs)
	binary.Write(text, binary.LittleEndian, names)
	binary.Write(text, binary.LittleEndian, ords)
	text.Write(strs.Bytes())
	size := textRVA + uint32(text.Len()) - dirRVA
	pad(text, 4)
	return dpe.DataDirectory{VirtualAddress: dirRVA, Size: size}
}

// WriteFile writes data under a per-test temp dir and returns its path.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
