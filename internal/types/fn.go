package types //nolint:revive

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// FnInfo stores metadata for function types.
// The slices are shared with the interner and must not be modified.
type FnInfo struct {
	Params   []TypeID // Parameter types (in order)
	Result   TypeID   // Return type
	Variadic bool     // C-style trailing ellipsis
}

// RegisterFn creates or finds a function type.
func (in *Interner) RegisterFn(params []TypeID, result TypeID, variadic bool) TypeID {
	key := fnKey(params, result, variadic)
	in.mu.Lock()
	defer in.mu.Unlock()
	slot, ok := in.fnIndex[key]
	if !ok {
		slot = in.appendFnInfo(FnInfo{
			Params:   slices.Clone(params),
			Result:   result,
			Variadic: variadic,
		})
		in.fnIndex[key] = slot
	}
	return in.internLocked(Type{Kind: KindFunction, Payload: slot})
}

// FnInfo retrieves function type metadata by TypeID.
func (in *Interner) FnInfo(id TypeID) (FnInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.types) {
		return FnInfo{}, false
	}
	tt := in.types[id]
	if tt.Kind != KindFunction || int(tt.Payload) >= len(in.fns) {
		return FnInfo{}, false
	}
	return in.fns[tt.Payload], true
}

func (in *Interner) appendFnInfo(info FnInfo) uint32 {
	in.fns = append(in.fns, info)
	slot, err := safecast.Conv[uint32](len(in.fns) - 1)
	if err != nil {
		panic(fmt.Errorf("fn info overflow: %w", err))
	}
	return slot
}

func fnKey(params []TypeID, result TypeID, variadic bool) string {
	var b strings.Builder
	writeIDs(&b, params)
	b.WriteString("->")
	b.WriteString(strconv.FormatUint(uint64(result), 10))
	if variadic {
		b.WriteString("...")
	}
	return b.String()
}

func writeIDs(b *strings.Builder, ids []TypeID) {
	for i, id := range ids {
		if i > 0 {
			b.WriteByte('#')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
}
