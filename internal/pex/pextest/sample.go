package pextest

import dpe "debug/pe"

// Sample describes the metadata produced by SampleMetadata. Its type
// layout is fixed:
//
//	<Module>
//	Sample.Program              fields count, name; Main(string[] args), get_Name(); property Name
//	  Sample.Program.Inner      Run(int x, bool flag)
//	Sample.Box`1<T>             field value; Get()
type Sample struct {
	// TargetFramework is the TargetFrameworkAttribute argument. Empty
	// omits the attribute.
	TargetFramework string
	CoreLibrary     string
	CoreVersion     [4]uint16
	PublicKey       []byte
	Version         string
	// Name is the Assembly row name; empty means "Sample".
	Name string
}

// DefaultSample targets .NET 8.
var DefaultSample = Sample{
	TargetFramework: ".NETCoreApp,Version=v8.0",
	CoreLibrary:     "System.Runtime",
	CoreVersion:     [4]uint16{8, 0, 0, 0},
}

// EntryPointToken is the MethodDef token of Sample.Program.Main.
const EntryPointToken = 0x06000001

// Metadata builds the sample metadata blob.
func (s Sample) Metadata() []byte {
	b := NewMetadata()
	if s.Version != "" {
		b.Version = s.Version
	}

	b.Row(TableModule, uint16(0), b.String("Sample.dll"),
		b.GUID([16]byte{0x5a, 0x3d, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e}),
		uint16(0), uint16(0))

	// ResolutionScope AssemblyRef 1.
	scope := Coded(1, 2, 2)
	b.Row(TableTypeRef, scope, b.String("TargetFrameworkAttribute"), b.String("System.Runtime.Versioning"))
	objRef := b.Row(TableTypeRef, scope, b.String("Object"), b.String("System"))
	extends := Coded(objRef, 1, 2)

	b.Row(TableTypeDef, uint32(0), b.String("<Module>"), uint16(0), uint16(0), uint16(1), uint16(1))
	b.Row(TableTypeDef, uint32(0x00100001), b.String("Program"), b.String("Sample"), extends, uint16(1), uint16(1))
	b.Row(TableTypeDef, uint32(0x00100002), b.String("Inner"), uint16(0), extends, uint16(3), uint16(3))
	b.Row(TableTypeDef, uint32(0x00100001), b.String("Box`1"), b.String("Sample"), extends, uint16(3), uint16(4))

	b.Row(TableField, uint16(0x0001), b.String("count"), b.Blob([]byte{0x06, 0x08}))
	b.Row(TableField, uint16(0x0001), b.String("name"), b.Blob([]byte{0x06, 0x0e}))
	b.Row(TableField, uint16(0x0001), b.String("value"), b.Blob([]byte{0x06, 0x13, 0x00}))

	b.Row(TableMethodDef, uint32(0x2050), uint16(0), uint16(0x0096), b.String("Main"),
		b.Blob([]byte{0x00, 0x01, 0x01, 0x1d, 0x0e}), uint16(1))
	b.Row(TableMethodDef, uint32(0x2060), uint16(0), uint16(0x0886), b.String("get_Name"),
		b.Blob([]byte{0x20, 0x00, 0x0e}), uint16(2))
	b.Row(TableMethodDef, uint32(0x2070), uint16(0), uint16(0x0086), b.String("Run"),
		b.Blob([]byte{0x20, 0x02, 0x01, 0x08, 0x02}), uint16(2))
	b.Row(TableMethodDef, uint32(0x2080), uint16(0), uint16(0x0086), b.String("Get"),
		b.Blob([]byte{0x20, 0x00, 0x13, 0x00}), uint16(4))

	b.Row(TableParam, uint16(0), uint16(1), b.String("args"))
	b.Row(TableParam, uint16(0), uint16(1), b.String("x"))
	b.Row(TableParam, uint16(0), uint16(2), b.String("flag"))

	// MemberRefParent TypeRef 1.
	ctor := b.Row(TableMemberRef, Coded(1, 1, 3), b.String(".ctor"), b.Blob([]byte{0x20, 0x01, 0x01, 0x0e}))

	if s.TargetFramework != "" {
		val := []byte{0x01, 0x00}
		val = append(val, CompressUint(uint32(len(s.TargetFramework)))...)
		val = append(val, s.TargetFramework...)
		val = append(val, 0x00, 0x00)
		// HasCustomAttribute Assembly 1, CustomAttributeType MemberRef.
		b.Row(TableCustomAttribute, Coded(1, 14, 5), Coded(ctor, 3, 3), b.Blob(val))
	}

	b.Row(TablePropertyMap, uint16(2), uint16(1))
	b.Row(TableProperty, uint16(0), b.String("Name"), b.Blob([]byte{0x28, 0x00, 0x0e}))

	name := s.Name
	if name == "" {
		name = "Sample"
	}
	b.Row(TableAssembly, uint32(0x8004), uint16(1), uint16(2), uint16(3), uint16(4), uint32(0),
		b.Blob(s.PublicKey), b.String(name), uint16(0))

	core := s.CoreLibrary
	if core == "" {
		core = "System.Runtime"
	}
	v := s.CoreVersion
	b.Row(TableAssemblyRef, v[0], v[1], v[2], v[3], uint32(0),
		b.Blob([]byte{0xb0, 0x3f, 0x5f, 0x7f, 0x11, 0xd5, 0x0a, 0x3a}), b.String(core), uint16(0), uint16(0))

	b.Row(TableNestedClass, uint16(3), uint16(2))
	// TypeOrMethodDef TypeDef 4.
	b.Row(TableGenericParam, uint16(0), uint16(0), Coded(4, 0, 1), b.String("T"))

	return b.Bytes()
}

// Assembly wraps the sample metadata in an AnyCPU IL-only I386 image.
func (s Sample) Assembly() Image {
	return Image{
		Machine:         dpe.IMAGE_FILE_MACHINE_I386,
		Characteristics: dpe.IMAGE_FILE_EXECUTABLE_IMAGE | dpe.IMAGE_FILE_LARGE_ADDRESS_AWARE,
		Managed:         true,
		CorFlags:        0x1,
		EntryPointToken: EntryPointToken,
		Metadata:        s.Metadata(),
	}
}
