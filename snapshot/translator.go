package snapshot

import "github.com/coldbrew-vm/vmdbg/wire"

// Translator is the Id-Offset Translator: a small tagged union switched at
// each translation site, per the source's guidance to avoid runtime-dispatched
// closures here. Outside snapshot mode it behaves as the identity; under
// snapshot mode it maps through an IdOffsetMapping derived from the loaded
// NameOffsetMapping.
type Translator struct {
	mapping *IdOffsetMapping
}

// Identity returns the non-snapshot translator: ids pass through unchanged.
func Identity() Translator {
	return Translator{}
}

// Offset returns the snapshot-mode translator backed by mapping.
func Offset(mapping *IdOffsetMapping) Translator {
	return Translator{mapping: mapping}
}

// IsSnapshotMode reports whether this translator maps through a snapshot.
func (t Translator) IsSnapshotMode() bool {
	return t.mapping != nil
}

// ToWire implements wire.IdTranslator: VM-internal id to symbolic offset.
func (t Translator) ToWire(id int) int {
	if t.mapping == nil {
		return id
	}
	return t.mapping.offsetForId(id)
}

// FromWire implements wire.IdTranslator: symbolic offset to VM-internal id.
func (t Translator) FromWire(offset int) int {
	if t.mapping == nil {
		return offset
	}
	return t.mapping.idForOffset(offset)
}

var _ wire.IdTranslator = Translator{}

// IdOffsetMapping is the immutable (after construction) bidirectional mapping
// between VM function/class ids and the symbolic offsets recorded in a
// snapshot's info file.
type IdOffsetMapping struct {
	idToOffset map[int]int
	offsetToId map[int]int
}

// NewIdOffsetMapping builds a mapping from a decoded NameOffsetMapping by
// pairing each name's offset with the VM-internal id that functionIds (for
// function_offsets) or classIds (for class_offsets) gives for the same name.
// Names missing from those maps are left out, so their ids translate as the
// identity.
func NewIdOffsetMapping(m *NameOffsetMapping, functionIds, classIds map[string]int) *IdOffsetMapping {
	idToOffset := make(map[int]int, len(m.FunctionOffsets)+len(m.ClassOffsets))
	offsetToId := make(map[int]int, len(m.FunctionOffsets)+len(m.ClassOffsets))

	for name, offset := range m.FunctionOffsets {
		if id, ok := functionIds[name]; ok {
			idToOffset[id] = offset
			offsetToId[offset] = id
		}
	}
	for name, offset := range m.ClassOffsets {
		if id, ok := classIds[name]; ok {
			idToOffset[id] = offset
			offsetToId[offset] = id
		}
	}
	return &IdOffsetMapping{idToOffset: idToOffset, offsetToId: offsetToId}
}

func (m *IdOffsetMapping) offsetForId(id int) int {
	if off, ok := m.idToOffset[id]; ok {
		return off
	}
	return id
}

func (m *IdOffsetMapping) idForOffset(offset int) int {
	if id, ok := m.offsetToId[offset]; ok {
		return id
	}
	return offset
}
