package climeta

import (
	"errors"
	"testing"

	"csa/internal/pex"
	"csa/internal/pex/pextest"
)

func parseSample(t *testing.T) *Metadata {
	t.Helper()
	md, err := Parse(pextest.DefaultSample.Metadata())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return md
}

func TestParseSample(t *testing.T) {
	md := parseSample(t)

	if md.Version != "v4.0.30319" {
		t.Errorf("Version = %q", md.Version)
	}
	if md.Module.Name != "Sample.dll" {
		t.Errorf("Module.Name = %q", md.Module.Name)
	}
	if md.Module.Mvid[0] != 0x5a {
		t.Errorf("Module.Mvid = % x", md.Module.Mvid)
	}
	if md.Assembly == nil {
		t.Fatal("Assembly row missing")
	}
	if md.Assembly.Name != "Sample" || md.Assembly.Version.String() != "1.2.3.4" {
		t.Errorf("Assembly = %+v", md.Assembly)
	}
	if len(md.AssemblyRefs) != 1 || md.AssemblyRefs[0].Name != "System.Runtime" {
		t.Fatalf("AssemblyRefs = %+v", md.AssemblyRefs)
	}
	if got := len(md.AssemblyRefs[0].PublicKeyOrToken); got != 8 {
		t.Errorf("AssemblyRef token has %d bytes, want 8", got)
	}

	counts := map[int]int{
		TableTypeRef:         2,
		TableTypeDef:         4,
		TableField:           3,
		TableMethodDef:       4,
		TableParam:           3,
		TableMemberRef:       1,
		TableCustomAttribute: 1,
		TableProperty:        1,
		TableNestedClass:     1,
		TableGenericParam:    1,
		TableEvent:           0,
	}
	for table, want := range counts {
		if got := md.RowCount(table); got != uint32(want) {
			t.Errorf("RowCount(0x%02x) = %d, want %d", table, got, want)
		}
	}
}

func TestTypeNamesAndRanges(t *testing.T) {
	md := parseSample(t)

	tests := []struct {
		row                   uint32
		name                  string
		depth                 int
		fieldList, fieldEnd   uint32
		methodList, methodEnd uint32
	}{
		{1, "<Module>", 0, 1, 1, 1, 1},
		{2, "Sample.Program", 0, 1, 3, 1, 3},
		{3, "Sample.Program.Inner", 1, 3, 3, 3, 4},
		{4, "Sample.Box", 0, 3, 4, 4, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := md.TypeDefFullName(tt.row); got != tt.name {
				t.Errorf("TypeDefFullName = %q, want %q", got, tt.name)
			}
			if got := md.NestingDepth(tt.row); got != tt.depth {
				t.Errorf("NestingDepth = %d, want %d", got, tt.depth)
			}
			td := md.TypeDefs[tt.row-1]
			if td.FieldList != tt.fieldList || td.FieldEnd != tt.fieldEnd {
				t.Errorf("fields [%d,%d), want [%d,%d)", td.FieldList, td.FieldEnd, tt.fieldList, tt.fieldEnd)
			}
			if td.MethodList != tt.methodList || td.MethodEnd != tt.methodEnd {
				t.Errorf("methods [%d,%d), want [%d,%d)", td.MethodList, td.MethodEnd, tt.methodList, tt.methodEnd)
			}
		})
	}

	if got := md.TypeRefFullName(1); got != "System.Runtime.Versioning.TargetFrameworkAttribute" {
		t.Errorf("TypeRefFullName(1) = %q", got)
	}
	if got := md.DeclaringType(3); got != 3 {
		t.Errorf("DeclaringType(Run) = %d, want 3", got)
	}
	if got := md.DeclaringType(99); got != 0 {
		t.Errorf("DeclaringType(99) = %d, want 0", got)
	}
	if start, end := md.PropertyRange(2); start != 1 || end != 2 {
		t.Errorf("PropertyRange(Program) = [%d,%d), want [1,2)", start, end)
	}
	if start, end := md.PropertyRange(3); start != end {
		t.Errorf("PropertyRange(Inner) = [%d,%d), want empty", start, end)
	}
	if got := md.ParamName(3, 2); got != "flag" {
		t.Errorf("ParamName(Run, 2) = %q, want flag", got)
	}
	if got := md.GenericParamNames(TableTypeDef, 4); len(got) != 1 || got[0] != "T" {
		t.Errorf("GenericParamNames(Box) = %v", got)
	}
}

func TestCustomAttributeRow(t *testing.T) {
	md := parseSample(t)

	ca := md.CustomAttributes[0]
	if ca.ParentTable != TableAssembly || ca.ParentRow != 1 {
		t.Errorf("parent = (0x%02x, %d), want Assembly 1", ca.ParentTable, ca.ParentRow)
	}
	if ca.CtorTable != TableMemberRef || ca.CtorRow != 1 {
		t.Errorf("ctor = (0x%02x, %d), want MemberRef 1", ca.CtorTable, ca.CtorRow)
	}
	mr := md.MemberRefs[0]
	if mr.ClassTable != TableTypeRef || mr.ClassRow != 1 || mr.Name != ".ctor" {
		t.Errorf("MemberRef = %+v", mr)
	}
}

func TestParseErrors(t *testing.T) {
	valid := pextest.DefaultSample.Metadata()

	badSig := append([]byte(nil), valid...)
	badSig[0] = 'X'

	longVersion := append([]byte(nil), valid...)
	longVersion[12] = 0xff
	longVersion[13] = 0xff

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", valid[:8]},
		{"bad signature", badSig},
		{"version overruns", longVersion},
		{"streams cut", valid[:40]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if !errors.Is(err, ErrBadMetadata) {
				t.Fatalf("error = %v, want ErrBadMetadata", err)
			}
			if !errors.Is(err, pex.ErrBadImageFormat) {
				t.Errorf("error %v does not match ErrBadImageFormat", err)
			}
		})
	}
}

func TestDecompress(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint32
		size int
	}{
		{[]byte{0x03}, 0x03, 1},
		{[]byte{0x7f}, 0x7f, 1},
		{[]byte{0x80, 0x80}, 0x80, 2},
		{[]byte{0xae, 0x57}, 0x2e57, 2},
		{[]byte{0xbf, 0xff}, 0x3fff, 2},
		{[]byte{0xc0, 0x00, 0x40, 0x00}, 0x4000, 4},
		{[]byte{0xdf, 0xff, 0xff, 0xff}, 0x1fffffff, 4},
	}
	for _, tt := range tests {
		got, size, err := decompress(tt.in)
		if err != nil || got != tt.want || size != tt.size {
			t.Errorf("decompress(% x) = 0x%x, %d, %v; want 0x%x, %d", tt.in, got, size, err, tt.want, tt.size)
		}
	}

	for _, bad := range [][]byte{nil, {0x80}, {0xc0, 0x00}, {0xff}} {
		if _, _, err := decompress(bad); !errors.Is(err, ErrBadMetadata) {
			t.Errorf("decompress(% x) error = %v, want ErrBadMetadata", bad, err)
		}
	}
}
