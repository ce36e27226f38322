package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Field is a named record member.
type Field struct {
	Name string
	Type TypeID
}

// RecordInfo stores metadata for record types.
//
// Template is NoTypeID for ordinary records. For a record whose template
// name is itself a template template parameter (TT<int>), Template holds the
// TemplateParam placeholder and Name is empty.
// The slices are shared with the interner and must not be modified.
type RecordInfo struct {
	Name     string
	Template TypeID
	Args     []TypeID
	Fields   []Field
}

// RegisterRecord creates or finds a record type.
func (in *Interner) RegisterRecord(info RecordInfo) TypeID {
	key := recordKey(info)
	in.mu.Lock()
	defer in.mu.Unlock()
	slot, ok := in.recIndex[key]
	if !ok {
		slot = in.appendRecordInfo(RecordInfo{
			Name:     info.Name,
			Template: info.Template,
			Args:     slices.Clone(info.Args),
			Fields:   slices.Clone(info.Fields),
		})
		in.recIndex[key] = slot
	}
	return in.internLocked(Type{Kind: KindRecord, Payload: slot})
}

// RecordInfo retrieves record metadata by TypeID.
func (in *Interner) RecordInfo(id TypeID) (RecordInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.types) {
		return RecordInfo{}, false
	}
	tt := in.types[id]
	if tt.Kind != KindRecord || int(tt.Payload) >= len(in.recs) {
		return RecordInfo{}, false
	}
	return in.recs[tt.Payload], true
}

// FieldType returns the type of the named field of a record.
func (in *Interner) FieldType(id TypeID, name string) (TypeID, bool) {
	info, ok := in.RecordInfo(id)
	if !ok {
		return NoTypeID, false
	}
	for _, f := range info.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return NoTypeID, false
}

func (in *Interner) appendRecordInfo(info RecordInfo) uint32 {
	in.recs = append(in.recs, info)
	slot, err := safecast.Conv[uint32](len(in.recs) - 1)
	if err != nil {
		panic(fmt.Errorf("record info overflow: %w", err))
	}
	return slot
}

func recordKey(info RecordInfo) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(info.Name))
	b.WriteByte('@')
	b.WriteString(strconv.FormatUint(uint64(info.Template), 10))
	b.WriteByte('<')
	writeIDs(&b, info.Args)
	b.WriteByte('>')
	b.WriteByte('{')
	for i, f := range info.Fields {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Quote(f.Name))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(f.Type), 10))
	}
	b.WriteByte('}')
	return b.String()
}
