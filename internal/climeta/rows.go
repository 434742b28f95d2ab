package climeta

import "fmt"

// Module is the single Module table row.
type Module struct {
	Name string
	Mvid [16]byte
}

// TypeRef is a TypeRef table row.
type TypeRef struct {
	ScopeTable int
	ScopeRow   uint32
	Name       string
	Namespace  string
}

// TypeDef is a TypeDef table row with its member ranges resolved.
// Member ranges are half-open 1-based row ranges.
type TypeDef struct {
	Flags        uint32
	Name         string
	Namespace    string
	ExtendsTable int
	ExtendsRow   uint32
	FieldList    uint32
	FieldEnd     uint32
	MethodList   uint32
	MethodEnd    uint32
}

// Field is a Field table row.
type Field struct {
	Flags     uint16
	Name      string
	Signature []byte
}

// MethodDef is a MethodDef table row.
type MethodDef struct {
	RVA       uint32
	ImplFlags uint16
	Flags     uint16
	Name      string
	Signature []byte
	ParamList uint32
	ParamEnd  uint32
}

// Param is a Param table row.
type Param struct {
	Flags    uint16
	Sequence uint16
	Name     string
}

// MemberRef is a MemberRef table row.
type MemberRef struct {
	ClassTable int
	ClassRow   uint32
	Name       string
	Signature  []byte
}

// CustomAttribute is a CustomAttribute table row.
type CustomAttribute struct {
	ParentTable int
	ParentRow   uint32
	CtorTable   int
	CtorRow     uint32
	Value       []byte
}

// PropertyMap is a PropertyMap table row with its property range resolved.
type PropertyMap struct {
	Parent       uint32
	PropertyList uint32
	PropertyEnd  uint32
}

// Property is a Property table row.
type Property struct {
	Flags     uint16
	Name      string
	Signature []byte
}

// Version is a four-part assembly version.
type Version struct {
	Major, Minor, Build, Revision uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// Assembly is the Assembly table row.
type Assembly struct {
	HashAlgID uint32
	Version   Version
	Flags     uint32
	PublicKey []byte
	Name      string
	Culture   string
}

// AssemblyRef is an AssemblyRef table row.
type AssemblyRef struct {
	Version          Version
	Flags            uint32
	PublicKeyOrToken []byte
	Name             string
	Culture          string
}

// NestedClass is a NestedClass table row.
type NestedClass struct {
	Nested    uint32
	Enclosing uint32
}

// GenericParam is a GenericParam table row.
type GenericParam struct {
	Number     uint16
	Flags      uint16
	OwnerTable int
	OwnerRow   uint32
	Name       string
}

func (md *Metadata) blobCell(t int, row uint32, col int) ([]byte, error) {
	b, err := md.Blob(md.cell(t, row, col))
	if err != nil {
		return nil, fmt.Errorf("table 0x%02x row %d: %w", t, row, err)
	}
	return b, nil
}

// decode materialises the rows of the tables used for inspection.
func (md *Metadata) decode() error {
	var err error

	if md.rows[TableModule] > 0 {
		md.Module = Module{
			Name: md.String(md.cell(TableModule, 1, 1)),
			Mvid: md.GUID(md.cell(TableModule, 1, 2)),
		}
	}

	for r := uint32(1); r <= md.rows[TableTypeRef]; r++ {
		st, sr := decodeCoded(codedResolutionScope, md.cell(TableTypeRef, r, 0))
		md.TypeRefs = append(md.TypeRefs, TypeRef{
			ScopeTable: st,
			ScopeRow:   sr,
			Name:       md.String(md.cell(TableTypeRef, r, 1)),
			Namespace:  md.String(md.cell(TableTypeRef, r, 2)),
		})
	}

	for r := uint32(1); r <= md.rows[TableTypeDef]; r++ {
		et, er := decodeCoded(codedTypeDefOrRef, md.cell(TableTypeDef, r, 3))
		md.TypeDefs = append(md.TypeDefs, TypeDef{
			Flags:        md.cell(TableTypeDef, r, 0),
			Name:         md.String(md.cell(TableTypeDef, r, 1)),
			Namespace:    md.String(md.cell(TableTypeDef, r, 2)),
			ExtendsTable: et,
			ExtendsRow:   er,
			FieldList:    listStart(md.cell(TableTypeDef, r, 4)),
			MethodList:   listStart(md.cell(TableTypeDef, r, 5)),
		})
	}
	// A run ends where the next type's run starts, or after the last row.
	for i := range md.TypeDefs {
		fieldEnd, methodEnd := md.rows[TableField]+1, md.rows[TableMethodDef]+1
		if i+1 < len(md.TypeDefs) {
			fieldEnd, methodEnd = md.TypeDefs[i+1].FieldList, md.TypeDefs[i+1].MethodList
		}
		md.TypeDefs[i].FieldEnd = clampEnd(md.TypeDefs[i].FieldList, fieldEnd, md.rows[TableField])
		md.TypeDefs[i].MethodEnd = clampEnd(md.TypeDefs[i].MethodList, methodEnd, md.rows[TableMethodDef])
	}

	for r := uint32(1); r <= md.rows[TableField]; r++ {
		f := Field{
			Flags: uint16(md.cell(TableField, r, 0)),
			Name:  md.String(md.cell(TableField, r, 1)),
		}
		if f.Signature, err = md.blobCell(TableField, r, 2); err != nil {
			return err
		}
		md.Fields = append(md.Fields, f)
	}

	for r := uint32(1); r <= md.rows[TableMethodDef]; r++ {
		m := MethodDef{
			RVA:       md.cell(TableMethodDef, r, 0),
			ImplFlags: uint16(md.cell(TableMethodDef, r, 1)),
			Flags:     uint16(md.cell(TableMethodDef, r, 2)),
			Name:      md.String(md.cell(TableMethodDef, r, 3)),
			ParamList: listStart(md.cell(TableMethodDef, r, 5)),
		}
		if m.Signature, err = md.blobCell(TableMethodDef, r, 4); err != nil {
			return err
		}
		md.MethodDefs = append(md.MethodDefs, m)
	}
	for i := range md.MethodDefs {
		end := md.rows[TableParam] + 1
		if i+1 < len(md.MethodDefs) {
			end = md.MethodDefs[i+1].ParamList
		}
		md.MethodDefs[i].ParamEnd = clampEnd(md.MethodDefs[i].ParamList, end, md.rows[TableParam])
	}

	for r := uint32(1); r <= md.rows[TableParam]; r++ {
		md.Params = append(md.Params, Param{
			Flags:    uint16(md.cell(TableParam, r, 0)),
			Sequence: uint16(md.cell(TableParam, r, 1)),
			Name:     md.String(md.cell(TableParam, r, 2)),
		})
	}

	for r := uint32(1); r <= md.rows[TableMemberRef]; r++ {
		ct, cr := decodeCoded(codedMemberRefParent, md.cell(TableMemberRef, r, 0))
		m := MemberRef{ClassTable: ct, ClassRow: cr, Name: md.String(md.cell(TableMemberRef, r, 1))}
		if m.Signature, err = md.blobCell(TableMemberRef, r, 2); err != nil {
			return err
		}
		md.MemberRefs = append(md.MemberRefs, m)
	}

	for r := uint32(1); r <= md.rows[TableCustomAttribute]; r++ {
		pt, pr := decodeCoded(codedHasCustomAttribute, md.cell(TableCustomAttribute, r, 0))
		ct, cr := decodeCoded(codedCustomAttributeType, md.cell(TableCustomAttribute, r, 1))
		ca := CustomAttribute{ParentTable: pt, ParentRow: pr, CtorTable: ct, CtorRow: cr}
		if ca.Value, err = md.blobCell(TableCustomAttribute, r, 2); err != nil {
			return err
		}
		md.CustomAttributes = append(md.CustomAttributes, ca)
	}

	for r := uint32(1); r <= md.rows[TablePropertyMap]; r++ {
		md.PropertyMaps = append(md.PropertyMaps, PropertyMap{
			Parent:       md.cell(TablePropertyMap, r, 0),
			PropertyList: listStart(md.cell(TablePropertyMap, r, 1)),
		})
	}
	for i := range md.PropertyMaps {
		end := md.rows[TableProperty] + 1
		if i+1 < len(md.PropertyMaps) {
			end = md.PropertyMaps[i+1].PropertyList
		}
		md.PropertyMaps[i].PropertyEnd = clampEnd(md.PropertyMaps[i].PropertyList, end, md.rows[TableProperty])
	}

	for r := uint32(1); r <= md.rows[TableProperty]; r++ {
		p := Property{
			Flags: uint16(md.cell(TableProperty, r, 0)),
			Name:  md.String(md.cell(TableProperty, r, 1)),
		}
		if p.Signature, err = md.blobCell(TableProperty, r, 2); err != nil {
			return err
		}
		md.Properties = append(md.Properties, p)
	}

	for r := uint32(1); r <= md.rows[TableTypeSpec]; r++ {
		sig, err := md.blobCell(TableTypeSpec, r, 0)
		if err != nil {
			return err
		}
		md.TypeSpecs = append(md.TypeSpecs, sig)
	}

	if md.rows[TableAssembly] > 0 {
		a := &Assembly{
			HashAlgID: md.cell(TableAssembly, 1, 0),
			Version: Version{
				Major:    uint16(md.cell(TableAssembly, 1, 1)),
				Minor:    uint16(md.cell(TableAssembly, 1, 2)),
				Build:    uint16(md.cell(TableAssembly, 1, 3)),
				Revision: uint16(md.cell(TableAssembly, 1, 4)),
			},
			Flags:   md.cell(TableAssembly, 1, 5),
			Name:    md.String(md.cell(TableAssembly, 1, 7)),
			Culture: md.String(md.cell(TableAssembly, 1, 8)),
		}
		if a.PublicKey, err = md.blobCell(TableAssembly, 1, 6); err != nil {
			return err
		}
		md.Assembly = a
	}

	for r := uint32(1); r <= md.rows[TableAssemblyRef]; r++ {
		a := AssemblyRef{
			Version: Version{
				Major:    uint16(md.cell(TableAssemblyRef, r, 0)),
				Minor:    uint16(md.cell(TableAssemblyRef, r, 1)),
				Build:    uint16(md.cell(TableAssemblyRef, r, 2)),
				Revision: uint16(md.cell(TableAssemblyRef, r, 3)),
			},
			Flags:   md.cell(TableAssemblyRef, r, 4),
			Name:    md.String(md.cell(TableAssemblyRef, r, 6)),
			Culture: md.String(md.cell(TableAssemblyRef, r, 7)),
		}
		if a.PublicKeyOrToken, err = md.blobCell(TableAssemblyRef, r, 5); err != nil {
			return err
		}
		md.AssemblyRefs = append(md.AssemblyRefs, a)
	}

	md.enclosing = make(map[uint32]uint32)
	for r := uint32(1); r <= md.rows[TableNestedClass]; r++ {
		nc := NestedClass{
			Nested:    md.cell(TableNestedClass, r, 0),
			Enclosing: md.cell(TableNestedClass, r, 1),
		}
		md.NestedClasses = append(md.NestedClasses, nc)
		md.enclosing[nc.Nested] = nc.Enclosing
	}

	for r := uint32(1); r <= md.rows[TableGenericParam]; r++ {
		ot, or := decodeCoded(codedTypeOrMethodDef, md.cell(TableGenericParam, r, 2))
		md.GenericParams = append(md.GenericParams, GenericParam{
			Number:     uint16(md.cell(TableGenericParam, r, 0)),
			Flags:      uint16(md.cell(TableGenericParam, r, 1)),
			OwnerTable: ot,
			OwnerRow:   or,
			Name:       md.String(md.cell(TableGenericParam, r, 3)),
		})
	}

	return nil
}

// listStart maps a null list index to an empty run at row 1.
func listStart(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

// clampEnd bounds a half-open member run to the rows that exist.
func clampEnd(start, end, count uint32) uint32 {
	if end > count+1 {
		end = count + 1
	}
	if end < start {
		end = start
	}
	return end
}
