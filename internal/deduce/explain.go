package deduce

import (
	"fmt"

	"typeforge/internal/types"
)

// Explain renders r as a one-line description for reports. It reads only
// the structured fields of r.
func Explain(in *types.Interner, sig *Signature, r Result) string {
	param := func() string {
		if tp, ok := sig.TemplateParam(r.Param); ok {
			return tp.String()
		}
		return fmt.Sprintf("$%d.%d", r.Param.Depth, r.Param.Index)
	}
	switch r.Kind {
	case Success:
		if r.Return.IsNull() {
			return "deduced " + r.Subst.Format(in, sig)
		}
		return fmt.Sprintf("deduced %s returning %s", r.Subst.Format(in, sig), types.LabelQual(in, r.Return, nil))
	case Incomplete:
		if r.ParamIndex == NoParam {
			return fmt.Sprintf("could not deduce template parameter %s", param())
		}
		return fmt.Sprintf("could not deduce pack element of %s for argument %d", param(), r.ParamIndex)
	case Inconsistent:
		return fmt.Sprintf("argument %d deduces %s as %s, but it was already deduced as %s",
			r.ParamIndex, param(), r.Second.Format(in), r.First.Format(in))
	case NonDeducedMismatch:
		return fmt.Sprintf("argument %d does not match the shape of its parameter", r.ParamIndex)
	case TooManyArguments:
		return fmt.Sprintf("too many arguments: %s takes %d", sig.Name, len(sig.Params))
	case TooFewArguments:
		return fmt.Sprintf("too few arguments: no argument for parameter %d", r.ParamIndex)
	case SubstitutionFailure:
		if r.ParamIndex == NoParam {
			return "substitution failed: " + r.Reason
		}
		return fmt.Sprintf("substitution failed at argument %d: %s", r.ParamIndex, r.Reason)
	default:
		return r.Kind.String()
	}
}
