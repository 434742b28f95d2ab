package pex_test

import (
	dpe "debug/pe"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"csa/internal/pex"
	"csa/internal/pex/pextest"
)

func TestOpenFileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.dll")

	_, err := pex.Open(path)
	if !errors.Is(err, pex.ErrFileNotFound) {
		t.Fatalf("Open(%q) error = %v, want ErrFileNotFound", path, err)
	}
	if errors.Is(err, pex.ErrBadImageFormat) {
		t.Errorf("ErrFileNotFound must not match ErrBadImageFormat")
	}
}

func TestOpenBadFormat(t *testing.T) {
	valid := pextest.DefaultSample.Assembly().Bytes()

	corruptPE := append([]byte(nil), valid...)
	corruptPE[0x80] = 'X'

	zeroLfanew := append([]byte(nil), valid...)
	copy(zeroLfanew[0x3c:], []byte{0, 0, 0, 0})

	noOptional := append([]byte(nil), valid...)
	noOptional[0x84+16], noOptional[0x84+17] = 0, 0

	badMagic := append([]byte(nil), valid...)
	badMagic[0x98], badMagic[0x99] = 0x07, 0x01

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, pex.ErrTruncated},
		{"mz only", []byte("MZ"), pex.ErrTruncated},
		{"text file", []byte("this is not a portable executable, just text"), pex.ErrNotAPEFile},
		{"dos header only", valid[:0x40], pex.ErrTruncated},
		{"signature past eof", valid[:0x80], pex.ErrTruncated},
		{"coff header cut", valid[:0x90], pex.ErrTruncated},
		{"optional header cut", valid[:0x100], pex.ErrTruncated},
		{"corrupt pe signature", corruptPE, pex.ErrNotAPEFile},
		{"zero e_lfanew", zeroLfanew, pex.ErrNotAPEFile},
		{"no optional header", noOptional, pex.ErrNotAPEFile},
		{"unknown magic", badMagic, pex.ErrNotAPEFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := pextest.WriteFile(t, "image.dll", tt.data)

			_, err := pex.Open(path)
			if err == nil {
				t.Fatal("Open succeeded, want error")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, pex.ErrBadImageFormat) {
				t.Errorf("error %v does not match ErrBadImageFormat", err)
			}
			if errors.Is(err, pex.ErrFileNotFound) {
				t.Errorf("format error %v matches ErrFileNotFound", err)
			}
		})
	}
}

func TestOpenManaged(t *testing.T) {
	path := pextest.WriteFile(t, "Sample.dll", pextest.DefaultSample.Assembly().Bytes())

	im, err := pex.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer im.Close()

	if im.Machine != pex.MachineI386 {
		t.Errorf("Machine = %v, want I386", im.Machine)
	}
	if im.PE32Plus {
		t.Errorf("PE32Plus = true for a PE32 image")
	}
	if im.ImageBase != 0x400000 {
		t.Errorf("ImageBase = 0x%x, want 0x400000", im.ImageBase)
	}
	if len(im.Sections) != 1 || im.Sections[0].Name != ".text" {
		t.Fatalf("Sections = %+v, want one .text section", im.Sections)
	}

	cli, err := im.CLIHeader()
	if err != nil {
		t.Fatalf("CLIHeader: %v", err)
	}
	if cli.Flags != pex.CorILOnly {
		t.Errorf("Flags = 0x%x, want ILOnly", uint32(cli.Flags))
	}
	if cli.EntryPointToken != pextest.EntryPointToken {
		t.Errorf("EntryPointToken = 0x%08x, want 0x%08x", cli.EntryPointToken, pextest.EntryPointToken)
	}
	if !cli.HasManagedEntryPoint() {
		t.Errorf("HasManagedEntryPoint = false")
	}

	md, err := im.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if string(md[:4]) != "BSJB" {
		t.Errorf("metadata starts with %q, want BSJB", md[:4])
	}

	if got := im.Platform(); got != pex.PlatformAnyCPU64Pref {
		t.Errorf("Platform = %q, want %q", got, pex.PlatformAnyCPU64Pref)
	}
}

func TestPlatformScenarios(t *testing.T) {
	md := pextest.DefaultSample.Metadata()

	tests := []struct {
		name string
		img  pextest.Image
		want string
	}{
		{
			name: "anycpu prefers 32-bit",
			img: pextest.Image{
				Machine:         dpe.IMAGE_FILE_MACHINE_I386,
				Characteristics: dpe.IMAGE_FILE_EXECUTABLE_IMAGE | dpe.IMAGE_FILE_32BIT_MACHINE,
				Managed:         true,
				CorFlags:        uint32(pex.CorILOnly | pex.CorPrefers32Bit),
				Metadata:        md,
			},
			want: "AnyCPU (32-bit preferred)",
		},
		{
			name: "c++/cli mixed mode",
			img: pextest.Image{
				Machine:         dpe.IMAGE_FILE_MACHINE_I386,
				Characteristics: dpe.IMAGE_FILE_EXECUTABLE_IMAGE | dpe.IMAGE_FILE_32BIT_MACHINE | dpe.IMAGE_FILE_DLL,
				Managed:         true,
				Metadata:        md,
			},
			want: "x86",
		},
		{
			name: "x64 pe32+",
			img: pextest.Image{
				Machine:  dpe.IMAGE_FILE_MACHINE_AMD64,
				PE32Plus: true,
				Managed:  true,
				CorFlags: uint32(pex.CorILOnly),
				Metadata: md,
			},
			want: "x64",
		},
		{
			name: "native i386",
			img: pextest.Image{
				Machine:         dpe.IMAGE_FILE_MACHINE_I386,
				Characteristics: dpe.IMAGE_FILE_EXECUTABLE_IMAGE | dpe.IMAGE_FILE_32BIT_MACHINE,
			},
			want: "I386",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im, err := pex.NewImage(tt.name, tt.img.Bytes())
			if err != nil {
				t.Fatalf("NewImage: %v", err)
			}
			if got := im.Platform(); got != tt.want {
				t.Errorf("Platform = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNativeImageIsNotManaged(t *testing.T) {
	img := pextest.Image{Machine: dpe.IMAGE_FILE_MACHINE_AMD64, PE32Plus: true}
	im, err := pex.NewImage("native.exe", img.Bytes())
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	if !im.PE32Plus || im.ImageBase != 0x140000000 {
		t.Errorf("PE32Plus = %v, ImageBase = 0x%x", im.PE32Plus, im.ImageBase)
	}

	_, err = im.CLIHeader()
	if !errors.Is(err, pex.ErrNotManaged) {
		t.Fatalf("CLIHeader error = %v, want ErrNotManaged", err)
	}
	if !errors.Is(err, pex.ErrBadImageFormat) {
		t.Errorf("ErrNotManaged does not match ErrBadImageFormat")
	}
}

func TestRVAToOffset(t *testing.T) {
	im, err := pex.NewImage("sample", pextest.DefaultSample.Assembly().Bytes())
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}

	tests := []struct {
		rva  uint32
		off  uint32
		want bool
	}{
		{0x0, 0x0, true},
		{0x3c, 0x3c, true},
		{0x2000, 0x200, true},
		{0x2010, 0x210, true},
		{0x1000, 0, false},
		{0x9000, 0, false},
	}
	for _, tt := range tests {
		off, ok := im.RVAToOffset(tt.rva)
		if ok != tt.want || (ok && off != tt.off) {
			t.Errorf("RVAToOffset(0x%x) = 0x%x, %v; want 0x%x, %v", tt.rva, off, ok, tt.off, tt.want)
		}
	}

	stub, err := im.ReadRVA(im.EntryPoint, 6)
	if err != nil {
		t.Fatalf("ReadRVA: %v", err)
	}
	if stub[0] != 0xff || stub[1] != 0x25 {
		t.Errorf("entry stub = % x, want ff 25 ...", stub)
	}
	if _, err := im.ReadRVA(0x2000, 0x10000); !errors.Is(err, pex.ErrTruncated) {
		t.Errorf("oversized ReadRVA error = %v, want ErrTruncated", err)
	}
}

func TestExports(t *testing.T) {
	img := pextest.Image{
		Machine:         dpe.IMAGE_FILE_MACHINE_AMD64,
		PE32Plus:        true,
		Characteristics: dpe.IMAGE_FILE_DLL,
		DLLName:         "native.dll",
		Exports: []pextest.Export{
			{Name: "_Z3addii"},
			{Name: "Sleep", Forwarder: "KERNEL32.Sleep"},
		},
	}
	im, err := pex.NewImage("native.dll", img.Bytes())
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}

	exports, err := im.Exports()
	if err != nil {
		t.Fatalf("Exports: %v", err)
	}
	if len(exports) != 2 {
		t.Fatalf("got %d exports, want 2: %+v", len(exports), exports)
	}
	if e := exports[0]; e.Name != "_Z3addii" || e.Ordinal != 1 || e.RVA != 0x2000 || e.Forwarder != "" {
		t.Errorf("exports[0] = %+v", e)
	}
	if e := exports[1]; e.Name != "Sleep" || e.Ordinal != 2 || e.Forwarder != "KERNEL32.Sleep" {
		t.Errorf("exports[1] = %+v", e)
	}

	managed, err := pex.NewImage("sample", pextest.DefaultSample.Assembly().Bytes())
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	if exports, err := managed.Exports(); err != nil || len(exports) != 0 {
		t.Errorf("managed Exports() = %v, %v; want none", exports, err)
	}
}

func TestTruncatedSection(t *testing.T) {
	full := pextest.DefaultSample.Assembly().Bytes()
	// Keep the headers but cut the file inside the .text section.
	im, err := pex.NewImage("short", full[:0x210])
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	if off, ok := im.RVAToOffset(0x2008); !ok || off != 0x208 {
		t.Errorf("RVAToOffset(0x2008) = 0x%x, %v; want 0x208, true", off, ok)
	}
	for _, rva := range []uint32{0x2010, 0x2100} {
		if off, ok := im.RVAToOffset(rva); ok {
			t.Errorf("RVAToOffset(0x%x) = 0x%x past end of file", rva, off)
		}
	}
	if _, err := im.ReadCString(0x2100, 64); !errors.Is(err, pex.ErrTruncated) {
		t.Errorf("ReadCString past end error = %v, want ErrTruncated", err)
	}

	// Directory and arrays survive; the export name string does not.
	img := pextest.Image{
		Machine:         dpe.IMAGE_FILE_MACHINE_AMD64,
		PE32Plus:        true,
		Characteristics: dpe.IMAGE_FILE_DLL,
		EntryStub:       []byte{},
		DLLName:         "x",
		Exports:         []pextest.Export{{Name: "add"}},
	}
	native, err := pex.NewImage("native.dll", img.Bytes()[:0x233])
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	if _, err := native.Exports(); !errors.Is(err, pex.ErrTruncated) {
		t.Errorf("Exports on truncated image error = %v, want ErrTruncated", err)
	}
}

func TestCloseReleasesBuffer(t *testing.T) {
	path := pextest.WriteFile(t, "Sample.dll", pextest.DefaultSample.Assembly().Bytes())
	im, err := pex.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := im.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if im.All != nil {
		t.Errorf("Close kept the image buffer")
	}
	// The file is not held open, so it can be removed right away.
	if err := os.Remove(path); err != nil {
		t.Errorf("Remove after Close: %v", err)
	}
}
