// Copyright 2025 Atlan. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resources

// ResourceType identifies one asset class flowing through the modding
// paths. Types combine into ResourceTypeSet bit sets.
type ResourceType uint32

// Resource types.
const (
	RTStreamFile ResourceType = 1 << iota
	RTEntityDef
	RTLogicClass
	RTLogicEntity
	RTLogicFX
	RTLogicLibrary
	RTLogicUIWidget
	RTMapEntities
	RTImage
)

// ResourceTypeSet is a combination of resource types.
type ResourceTypeSet uint32

// Common type combinations.
const (
	LogicDeclTypes = ResourceTypeSet(RTLogicClass | RTLogicEntity |
		RTLogicFX | RTLogicLibrary | RTLogicUIWidget)
	SerializedTypes  = ResourceTypeSet(RTEntityDef|RTMapEntities) | LogicDeclTypes
	NoExtensionTypes = SerializedTypes
	StreamDBTypes    = ResourceTypeSet(RTMapEntities | RTImage)
)

// Contains reports whether the set holds t.
func (s ResourceTypeSet) Contains(t ResourceType) bool {
	return s&ResourceTypeSet(t) != 0
}

// IsLogicDecl reports whether t is one of the logic declaration classes.
func (t ResourceType) IsLogicDecl() bool {
	return LogicDeclTypes.Contains(t)
}

// IsSerialized reports whether t's payloads go through the structural
// serializer.
func (t ResourceType) IsSerialized() bool {
	return SerializedTypes.Contains(t)
}

// HasStreamDBHash reports whether t's entries carry a streamdb name hash.
func (t ResourceType) HasStreamDBHash() bool {
	return StreamDBTypes.Contains(t)
}

// String returns the type string used in archives and mod paths.
func (t ResourceType) String() string {
	switch t {
	case RTStreamFile:
		return "rs_streamfile"
	case RTEntityDef:
		return "entityDef"
	case RTLogicClass:
		return "logicClass"
	case RTLogicEntity:
		return "logicEntity"
	case RTLogicFX:
		return "logicFX"
	case RTLogicLibrary:
		return "logicLibrary"
	case RTLogicUIWidget:
		return "logicUIWidget"
	case RTMapEntities:
		return "mapentities"
	case RTImage:
		return "image"
	}
	return "unknown"
}

// typeInfo describes how mod files of one type are handled.
type typeInfo struct {
	typeString string
	typeEnum   ResourceType

	// Whether files of this type may enter a synthesized archive.
	allowMod bool
}

// modTypeTable maps the first path segment of a mod file to its type.
// Only rs_streamfile currently flows through the injected archive; the
// serialized classes are packaged but rejected at injection.
var modTypeTable = []typeInfo{
	{"rs_streamfile", RTStreamFile, true},
	{"entityDef", RTEntityDef, false},
	{"logicClass", RTLogicClass, false},
	{"logicEntity", RTLogicEntity, false},
	{"logicFX", RTLogicFX, false},
	{"logicLibrary", RTLogicLibrary, false},
	{"logicUIWidget", RTLogicUIWidget, false},
	{"mapentities", RTMapEntities, false},
	{"image", RTImage, false},
}

// lookupModType resolves a mod path's leading segment to its type info.
func lookupModType(segment string) *typeInfo {
	for i := range modTypeTable {
		if modTypeTable[i].typeString == segment {
			return &modTypeTable[i]
		}
	}
	return nil
}

// preambleIndex returns the string-table preamble slot for a type, or -1
// when the type has no reserved preamble string.
func preambleIndex(t ResourceType) int64 {
	for i, s := range StringTablePreamble {
		if s == t.String() {
			return int64(i)
		}
	}
	return -1
}
