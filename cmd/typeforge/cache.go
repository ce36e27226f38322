package main

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/spf13/cobra"

	"typeforge/internal/deduce"
	"typeforge/internal/session"
	"typeforge/internal/types"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect session snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <snapshot>",
		Short: "Print the signatures and cached results of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := getRunState(cmd)
			if st == nil {
				return fmt.Errorf("missing run state")
			}
			s, err := session.Load(cmd.Context(), args[0], st.cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			return inspectSession(cmd, s)
		},
	})
	return cmd
}

func inspectSession(cmd *cobra.Command, s *session.Session) error {
	out := cmd.OutOrStdout()
	in := s.Types()
	perSig := make(map[session.SignatureID][]int)
	entries := s.Entries()
	for i, e := range entries {
		perSig[e.Signature] = append(perSig[e.Signature], i)
	}
	headerColor.Fprintf(out, "%d signatures, %d cached results, %d types\n", s.Len(), len(entries), in.Len())
	for i := 1; i <= s.Len(); i++ {
		id, err := safecast.Conv[session.SignatureID](i)
		if err != nil {
			return err
		}
		sig, err := s.Signature(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "#%d %s\n", id, signatureText(in, sig))
		for _, idx := range perSig[id] {
			e := entries[idx]
			fmt.Fprintf(out, "    %s  %s\n", dimColor.Sprint(argsText(in, e.Args)), resultText(in, sig, e.Result))
		}
	}
	return nil
}

func signatureText(in *types.Interner, sig *deduce.Signature) string {
	namer := sig.Namer()
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = types.LabelQual(in, p.Type, namer)
		if p.Expansion {
			params[i] += "..."
		}
		if p.HasDefault {
			params[i] += " = default"
		}
	}
	tparams := make([]string, len(sig.TemplateParams))
	for i, tp := range sig.TemplateParams {
		tparams[i] = tp.String()
	}
	return fmt.Sprintf("<%s> %s(%s) -> %s", strings.Join(tparams, ", "), sig.Name, strings.Join(params, ", "), types.LabelQual(in, sig.Result, namer))
}

func resultText(in *types.Interner, sig *deduce.Signature, r deduce.Result) string {
	if !r.OK() {
		return mismatchColor.Sprint(r.Kind.String())
	}
	return okColor.Sprint(r.Subst.Format(in, sig)) + " -> " + types.LabelQual(in, r.Return, sig.Namer())
}

func argsText(in *types.Interner, args []deduce.Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = types.LabelQual(in, a.Type, nil)
		if a.Const {
			parts[i] = strconv.FormatInt(a.Value, 10) + ":" + parts[i]
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
