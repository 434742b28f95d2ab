package climeta

// Table identifiers from ECMA-335 II.22.
const (
	TableModule                 = 0x00
	TableTypeRef                = 0x01
	TableTypeDef                = 0x02
	TableFieldPtr               = 0x03
	TableField                  = 0x04
	TableMethodPtr              = 0x05
	TableMethodDef              = 0x06
	TableParamPtr               = 0x07
	TableParam                  = 0x08
	TableInterfaceImpl          = 0x09
	TableMemberRef              = 0x0a
	TableConstant               = 0x0b
	TableCustomAttribute        = 0x0c
	TableFieldMarshal           = 0x0d
	TableDeclSecurity           = 0x0e
	TableClassLayout            = 0x0f
	TableFieldLayout            = 0x10
	TableStandAloneSig          = 0x11
	TableEventMap               = 0x12
	TableEventPtr               = 0x13
	TableEvent                  = 0x14
	TablePropertyMap            = 0x15
	TablePropertyPtr            = 0x16
	TableProperty               = 0x17
	TableMethodSemantics        = 0x18
	TableMethodImpl             = 0x19
	TableModuleRef              = 0x1a
	TableTypeSpec               = 0x1b
	TableImplMap                = 0x1c
	TableFieldRVA               = 0x1d
	TableEncLog                 = 0x1e
	TableEncMap                 = 0x1f
	TableAssembly               = 0x20
	TableAssemblyProcessor      = 0x21
	TableAssemblyOS             = 0x22
	TableAssemblyRef            = 0x23
	TableAssemblyRefProcessor   = 0x24
	TableAssemblyRefOS          = 0x25
	TableFile                   = 0x26
	TableExportedType           = 0x27
	TableManifestResource       = 0x28
	TableNestedClass            = 0x29
	TableGenericParam           = 0x2a
	TableMethodSpec             = 0x2b
	TableGenericParamConstraint = 0x2c

	numTables = 0x2d
)

type colKind uint8

const (
	colU16 colKind = iota
	colU32
	colString
	colGUID
	colBlob
	colTable
	colCoded
)

type column struct {
	kind colKind
	ref  int // table id for colTable, coded index id for colCoded
}

var (
	u16  = column{kind: colU16}
	u32  = column{kind: colU32}
	str  = column{kind: colString}
	guid = column{kind: colGUID}
	blob = column{kind: colBlob}
)

func tbl(t int) column   { return column{kind: colTable, ref: t} }
func coded(c int) column { return column{kind: colCoded, ref: c} }

// Coded index kinds from ECMA-335 II.24.2.6.
const (
	codedTypeDefOrRef = iota
	codedHasConstant
	codedHasCustomAttribute
	codedHasFieldMarshal
	codedHasDeclSecurity
	codedMemberRefParent
	codedHasSemantics
	codedMethodDefOrRef
	codedMemberForwarded
	codedImplementation
	codedCustomAttributeType
	codedResolutionScope
	codedTypeOrMethodDef
)

type codedIndex struct {
	bits   uint
	tables []int // -1 marks an unused tag
}

var codedIndexes = [...]codedIndex{
	codedTypeDefOrRef: {2, []int{TableTypeDef, TableTypeRef, TableTypeSpec}},
	codedHasConstant:  {2, []int{TableField, TableParam, TableProperty}},
	codedHasCustomAttribute: {5, []int{
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec,
	}},
	codedHasFieldMarshal:     {1, []int{TableField, TableParam}},
	codedHasDeclSecurity:     {2, []int{TableTypeDef, TableMethodDef, TableAssembly}},
	codedMemberRefParent:     {3, []int{TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}},
	codedHasSemantics:        {1, []int{TableEvent, TableProperty}},
	codedMethodDefOrRef:      {1, []int{TableMethodDef, TableMemberRef}},
	codedMemberForwarded:     {1, []int{TableField, TableMethodDef}},
	codedImplementation:      {2, []int{TableFile, TableAssemblyRef, TableExportedType}},
	codedCustomAttributeType: {3, []int{-1, -1, TableMethodDef, TableMemberRef, -1}},
	codedResolutionScope:     {2, []int{TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}},
	codedTypeOrMethodDef:     {1, []int{TableTypeDef, TableMethodDef}},
}

// schema lists the columns of every table so rows of tables that are not
// decoded can still be skipped.
var schema = [numTables][]column{
	TableModule:                 {u16, str, guid, guid, guid},
	TableTypeRef:                {coded(codedResolutionScope), str, str},
	TableTypeDef:                {u32, str, str, coded(codedTypeDefOrRef), tbl(TableField), tbl(TableMethodDef)},
	TableFieldPtr:               {tbl(TableField)},
	TableField:                  {u16, str, blob},
	TableMethodPtr:              {tbl(TableMethodDef)},
	TableMethodDef:              {u32, u16, u16, str, blob, tbl(TableParam)},
	TableParamPtr:               {tbl(TableParam)},
	TableParam:                  {u16, u16, str},
	TableInterfaceImpl:          {tbl(TableTypeDef), coded(codedTypeDefOrRef)},
	TableMemberRef:              {coded(codedMemberRefParent), str, blob},
	TableConstant:               {u16, coded(codedHasConstant), blob},
	TableCustomAttribute:        {coded(codedHasCustomAttribute), coded(codedCustomAttributeType), blob},
	TableFieldMarshal:           {coded(codedHasFieldMarshal), blob},
	TableDeclSecurity:           {u16, coded(codedHasDeclSecurity), blob},
	TableClassLayout:            {u16, u32, tbl(TableTypeDef)},
	TableFieldLayout:            {u32, tbl(TableField)},
	TableStandAloneSig:          {blob},
	TableEventMap:               {tbl(TableTypeDef), tbl(TableEvent)},
	TableEventPtr:               {tbl(TableEvent)},
	TableEvent:                  {u16, str, coded(codedTypeDefOrRef)},
	TablePropertyMap:            {tbl(TableTypeDef), tbl(TableProperty)},
	TablePropertyPtr:            {tbl(TableProperty)},
	TableProperty:               {u16, str, blob},
	TableMethodSemantics:        {u16, tbl(TableMethodDef), coded(codedHasSemantics)},
	TableMethodImpl:             {tbl(TableTypeDef), coded(codedMethodDefOrRef), coded(codedMethodDefOrRef)},
	TableModuleRef:              {str},
	TableTypeSpec:               {blob},
	TableImplMap:                {u16, coded(codedMemberForwarded), str, tbl(TableModuleRef)},
	TableFieldRVA:               {u32, tbl(TableField)},
	TableEncLog:                 {u32, u32},
	TableEncMap:                 {u32},
	TableAssembly:               {u32, u16, u16, u16, u16, u32, blob, str, str},
	TableAssemblyProcessor:      {u32},
	TableAssemblyOS:             {u32, u32, u32},
	TableAssemblyRef:            {u16, u16, u16, u16, u32, blob, str, str, blob},
	TableAssemblyRefProcessor:   {u32, tbl(TableAssemblyRef)},
	TableAssemblyRefOS:          {u32, u32, u32, tbl(TableAssemblyRef)},
	TableFile:                   {u32, str, blob},
	TableExportedType:           {u32, u32, str, str, coded(codedImplementation)},
	TableManifestResource:       {u32, u32, str, coded(codedImplementation)},
	TableNestedClass:            {tbl(TableTypeDef), tbl(TableTypeDef)},
	TableGenericParam:           {u16, u16, coded(codedTypeOrMethodDef), str},
	TableMethodSpec:             {coded(codedMethodDefOrRef), blob},
	TableGenericParamConstraint: {tbl(TableGenericParam), coded(codedTypeDefOrRef)},
}
