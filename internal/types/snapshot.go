package types

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// Snapshot is a serializable copy of the interner tables. TypeIDs are
// indices, so replaying a snapshot into a fresh interner reproduces the same
// IDs.
type Snapshot struct {
	Types   []Type
	Fns     []FnInfo
	Records []RecordInfo
}

// Snapshot copies the interner tables.
func (in *Interner) Snapshot() Snapshot {
	in.mu.RLock()
	defer in.mu.RUnlock()
	snap := Snapshot{
		Types:   slices.Clone(in.types),
		Fns:     make([]FnInfo, len(in.fns)),
		Records: make([]RecordInfo, len(in.recs)),
	}
	for i, fn := range in.fns {
		snap.Fns[i] = FnInfo{Params: slices.Clone(fn.Params), Result: fn.Result, Variadic: fn.Variadic}
	}
	for i, rec := range in.recs {
		snap.Records[i] = RecordInfo{
			Name:     rec.Name,
			Template: rec.Template,
			Args:     slices.Clone(rec.Args),
			Fields:   slices.Clone(rec.Fields),
		}
	}
	return snap
}

// FromSnapshot rebuilds an interner by replaying the snapshot in ID order.
// Every replayed descriptor must land on its recorded ID.
func FromSnapshot(snap Snapshot) (*Interner, error) {
	in := NewInterner()
	for i := in.Len(); i < len(snap.Types); i++ {
		idx, err := safecast.Conv[uint32](i)
		if err != nil {
			return nil, fmt.Errorf("snapshot: type index overflow: %w", err)
		}
		want := TypeID(idx)
		tt := snap.Types[i]
		var got TypeID
		switch tt.Kind {
		case KindFunction:
			if int(tt.Payload) >= len(snap.Fns) {
				return nil, fmt.Errorf("snapshot: type #%d references missing fn slot %d", i, tt.Payload)
			}
			info := snap.Fns[tt.Payload]
			if err := checkRefs(want, info.Result); err != nil {
				return nil, err
			}
			if err := checkRefs(want, info.Params...); err != nil {
				return nil, err
			}
			got = in.RegisterFn(info.Params, info.Result, info.Variadic)
		case KindRecord:
			if int(tt.Payload) >= len(snap.Records) {
				return nil, fmt.Errorf("snapshot: type #%d references missing record slot %d", i, tt.Payload)
			}
			info := snap.Records[tt.Payload]
			if err := checkRefs(want, info.Template); err != nil {
				return nil, err
			}
			if err := checkRefs(want, info.Args...); err != nil {
				return nil, err
			}
			for _, f := range info.Fields {
				if err := checkRefs(want, f.Type); err != nil {
					return nil, err
				}
			}
			got = in.RegisterRecord(info)
		default:
			if err := checkRefs(want, tt.Elem, tt.Bound); err != nil {
				return nil, err
			}
			got = in.Intern(tt)
		}
		if got != want {
			return nil, fmt.Errorf("snapshot: type #%d replayed as #%d", want, got)
		}
	}
	return in, nil
}

// checkRefs ensures children precede their parent, which interning guarantees.
func checkRefs(parent TypeID, ids ...TypeID) error {
	for _, id := range ids {
		if id >= parent {
			return fmt.Errorf("snapshot: type #%d references later type #%d", parent, id)
		}
	}
	return nil
}
