package types

import (
	"fmt"
	"strings"
)

// ParamNamer maps a template parameter placeholder to its declared name.
// It returns false when the name is unknown.
type ParamNamer func(depth, index uint32) (string, bool)

// Label returns a user-friendly label for a TypeID.
func Label(typesIn *Interner, id TypeID) string {
	return labelDepth(typesIn, id, nil, 0)
}

// LabelQual renders a qualified type. Template parameters are spelled with
// names from namer when it knows them.
func LabelQual(typesIn *Interner, q QualType, namer ParamNamer) string {
	base := labelDepth(typesIn, q.Type, namer, 0)
	quals := q.Quals.String()
	if quals == "" {
		return base
	}
	if tt, ok := typesIn.Lookup(q.Type); ok && tt.Kind == KindPointer {
		return base + " " + quals
	}
	return quals + " " + base
}

func labelDepth(typesIn *Interner, id TypeID, namer ParamNamer, depth int) string {
	if id == NoTypeID {
		return "?"
	}
	if depth > 8 {
		return "..."
	}
	if typesIn == nil {
		return "?"
	}
	tt, ok := typesIn.Lookup(id)
	if !ok {
		return "?"
	}
	switch tt.Kind {
	case KindPrimitive:
		return tt.Name
	case KindPointer:
		return labelElem(typesIn, tt, namer, depth) + "*"
	case KindReference:
		return labelElem(typesIn, tt, namer, depth) + "&"
	case KindArray:
		elem := labelElem(typesIn, tt, namer, depth)
		switch {
		case tt.Bound != NoTypeID:
			return elem + "[" + labelDepth(typesIn, tt.Bound, namer, depth+1) + "]"
		case tt.Count == ArrayUnsized:
			return elem + "[]"
		default:
			return fmt.Sprintf("%s[%d]", elem, tt.Count)
		}
	case KindFunction:
		info, ok := typesIn.FnInfo(id)
		if !ok {
			return "fn(?)"
		}
		params := make([]string, len(info.Params), len(info.Params)+1)
		for i, param := range info.Params {
			params[i] = labelDepth(typesIn, param, namer, depth+1)
		}
		if info.Variadic {
			params = append(params, "...")
		}
		ret := labelDepth(typesIn, info.Result, namer, depth+1)
		return "fn(" + strings.Join(params, ", ") + ") -> " + ret
	case KindRecord:
		return formatRecordType(typesIn, id, namer, depth)
	case KindTemplateParam:
		if namer != nil {
			if name, ok := namer(tt.Depth, tt.Count); ok {
				return name
			}
		}
		return fmt.Sprintf("type-parameter-%d-%d", tt.Depth, tt.Count)
	case KindDependent:
		return labelDepth(typesIn, tt.Elem, namer, depth+1) + "::" + tt.Name
	default:
		return "?"
	}
}

func labelElem(typesIn *Interner, tt Type, namer ParamNamer, depth int) string {
	elem := labelDepth(typesIn, tt.Elem, namer, depth+1)
	if quals := tt.ElemQuals.String(); quals != "" {
		return quals + " " + elem
	}
	return elem
}

func formatRecordType(typesIn *Interner, id TypeID, namer ParamNamer, depth int) string {
	info, ok := typesIn.RecordInfo(id)
	if !ok {
		return "?"
	}
	name := info.Name
	if info.Template != NoTypeID {
		name = labelDepth(typesIn, info.Template, namer, depth+1)
	}
	if len(info.Args) == 0 {
		return name
	}
	args := make([]string, len(info.Args))
	for i, arg := range info.Args {
		args[i] = labelDepth(typesIn, arg, namer, depth+1)
	}
	return name + "<" + strings.Join(args, ", ") + ">"
}
