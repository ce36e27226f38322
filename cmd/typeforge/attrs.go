package main

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"typeforge/internal/attrs"
)

func newAttrsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attrs",
		Short: "List the attributes a signature may carry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			specs := attrs.Specs()
			width := 0
			for _, spec := range specs {
				width = max(width, runewidth.StringWidth(spec.Name))
			}
			headerColor.Fprintf(out, "%s  %-22s %s\n", runewidth.FillRight("name", width), "targets", "traits")
			for _, spec := range specs {
				name := runewidth.FillRight(spec.Name, width)
				if spec.Allows(attrs.TargetFn) {
					name = okColor.Sprint(name)
				} else {
					name = dimColor.Sprint(name)
				}
				fmt.Fprintf(out, "%s  %-22s %s\n", name, targetNames(spec), traitNames(spec))
			}
			return nil
		},
	}
}

func targetNames(spec attrs.Spec) string {
	var parts []string
	for _, t := range []struct {
		target attrs.Target
		name   string
	}{
		{attrs.TargetFn, "fn"},
		{attrs.TargetRecord, "record"},
		{attrs.TargetParam, "param"},
		{attrs.TargetType, "type"},
	} {
		if spec.Allows(t.target) {
			parts = append(parts, t.name)
		}
	}
	return strings.Join(parts, ",")
}

func traitNames(spec attrs.Spec) string {
	var parts []string
	if spec.Has(attrs.TraitInheritable) {
		parts = append(parts, "inherited")
	}
	if spec.Has(attrs.TraitMSInheritance) {
		parts = append(parts, "ms-inheritance")
	}
	if spec.Has(attrs.TraitTakesArgs) {
		parts = append(parts, "args")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
