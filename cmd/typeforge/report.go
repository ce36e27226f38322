package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"typeforge/internal/deduce"
	"typeforge/internal/instcache"
	"typeforge/internal/scenario"
	"typeforge/internal/session"
	"typeforge/internal/types"
)

var (
	okColor       = color.New(color.FgGreen)
	mismatchColor = color.New(color.FgYellow, color.Bold)
	errorColor    = color.New(color.FgRed, color.Bold)
	dimColor      = color.New(color.Faint)
	headerColor   = color.New(color.Bold)
)

const maxLabelWidth = 40

func statusText(r scenario.Report) string {
	switch {
	case r.Err != nil:
		return errorColor.Sprint(runewidth.FillRight("error", 8))
	case !r.OK():
		return mismatchColor.Sprint(runewidth.FillRight("mismatch", 8))
	default:
		return okColor.Sprint(runewidth.FillRight("ok", 8))
	}
}

// outcomeText is the result column: the kind, then bindings and the
// substituted return type on success.
func outcomeText(in *types.Interner, r scenario.Report) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	res := r.Result
	if !res.OK() {
		return res.Kind.String()
	}
	return fmt.Sprintf("%s -> %s", res.Subst.Format(in, r.Call.Signature), types.LabelQual(in, res.Return, r.Call.Signature.Namer()))
}

func renderPretty(out io.Writer, s *session.Session, fr fileReport, opts deduceOptions) {
	in := s.Types()
	width := 0
	for _, r := range fr.Reports {
		width = max(width, runewidth.StringWidth(r.Call.Label()))
	}
	width = min(width, maxLabelWidth)

	headerColor.Fprintln(out, fr.Path)
	for _, r := range fr.Reports {
		if opts.quiet && r.OK() {
			continue
		}
		label := runewidth.FillRight(runewidth.Truncate(r.Call.Label(), width, "..."), width)
		fmt.Fprintf(out, "  %s %s  %s\n", statusText(r), label, outcomeText(in, r))
		for _, m := range r.Mismatch {
			fmt.Fprintf(out, "      %s\n", mismatchColor.Sprint(m))
		}
		if r.Explain != "" && (opts.explain || !r.OK()) {
			for _, line := range strings.Split(r.Explain, "\n") {
				fmt.Fprintf(out, "      %s\n", dimColor.Sprint(line))
			}
		}
	}
}

func renderSummary(out io.Writer, total, failed int, stats instcache.Stats) {
	verdict := okColor.Sprintf("%d ok", total-failed)
	if failed > 0 {
		verdict += ", " + errorColor.Sprintf("%d failed", failed)
	}
	fmt.Fprintf(out, "%d calls: %s; cache %d hits, %d misses, %d computed\n",
		total, verdict, stats.Hits, stats.Misses, stats.Computations)
}

type jsonBinding struct {
	Param string `json:"param"`
	Value string `json:"value"`
}

type jsonCall struct {
	Call       string        `json:"call"`
	Signature  string        `json:"signature"`
	Result     string        `json:"result,omitempty"`
	ParamIndex *int          `json:"param_index,omitempty"`
	Bindings   []jsonBinding `json:"bindings,omitempty"`
	Returns    string        `json:"returns,omitempty"`
	Attrs      []string      `json:"attrs,omitempty"`
	Explain    string        `json:"explain,omitempty"`
	Mismatch   []string      `json:"mismatch,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type jsonFile struct {
	Path  string     `json:"path"`
	Calls []jsonCall `json:"calls"`
}

type jsonPayload struct {
	Files []jsonFile      `json:"files"`
	Cache instcache.Stats `json:"cache"`
}

func renderJSON(out io.Writer, s *session.Session, files []fileReport, stats instcache.Stats) error {
	in := s.Types()
	payload := jsonPayload{Files: make([]jsonFile, 0, len(files)), Cache: stats}
	for _, fr := range files {
		jf := jsonFile{Path: fr.Path, Calls: make([]jsonCall, 0, len(fr.Reports))}
		for _, r := range fr.Reports {
			jf.Calls = append(jf.Calls, toJSONCall(in, r))
		}
		payload.Files = append(payload.Files, jf)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func toJSONCall(in *types.Interner, r scenario.Report) jsonCall {
	sig := r.Call.Signature
	jc := jsonCall{
		Call:      r.Call.Label(),
		Signature: sig.Name,
		Mismatch:  r.Mismatch,
	}
	if r.Err != nil {
		jc.Error = r.Err.Error()
		return jc
	}
	res := r.Result
	jc.Result = res.Kind.String()
	jc.Explain = r.Explain
	if res.ParamIndex != deduce.NoParam {
		idx := res.ParamIndex
		jc.ParamIndex = &idx
	}
	for _, b := range res.Subst.Bindings {
		name := "?"
		if tp, ok := sig.TemplateParam(b.Param); ok {
			name = tp.Name
		}
		jc.Bindings = append(jc.Bindings, jsonBinding{Param: name, Value: b.Arg.Format(in)})
	}
	if res.OK() {
		jc.Returns = types.LabelQual(in, res.Return, sig.Namer())
	}
	for _, k := range res.Attrs {
		jc.Attrs = append(jc.Attrs, k.String())
	}
	return jc
}
