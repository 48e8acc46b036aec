package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/ecosim/internal/config"
	"github.com/san-kum/ecosim/internal/engine"
	"github.com/san-kum/ecosim/internal/experiment"
	"github.com/san-kum/ecosim/internal/integrators"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/viz"
)

func buildModel(name string) (*engine.Program, error) {
	demo, err := experiment.NewRegistry().GetModel(name)
	if err != nil {
		return nil, err
	}
	return engine.Build(demo.Model())
}

func printOrder(cmd *cobra.Command, args []string) error {
	prog, err := buildModel(args[0])
	if err != nil {
		return err
	}
	fmt.Println(viz.Header("Evaluation order: "+prog.Model.Name, theme()))
	return prog.Schedule.Dump(os.Stdout)
}

func describeModel(cmd *cobra.Command, args []string) error {
	prog, err := buildModel(args[0])
	if err != nil {
		return err
	}
	if err := prog.Describe(os.Stdout); err != nil {
		return err
	}

	m := prog.Model
	sp := m.Space()

	fmt.Println("\n" + viz.Header("Parameters", theme()))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tGROUP\tINDEX\tDEFAULT\tMIN\tMAX\tUNIT")
	for _, p := range m.Parameters() {
		group := "-"
		if g := m.Group(p.Group); g != nil {
			group = g.Name
		}
		def, lo, hi := formatParam(p)
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Name, group, sp.Format(p.Sig), def, lo, hi, m.UnitName(p.Unit))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\n" + viz.Header("Inputs", theme()))
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tINDEX\tUNIT")
	for _, in := range m.Inputs() {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", in.Name, sp.Format(in.Sig), m.UnitName(in.Unit))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println("\n" + viz.Header("Solvers", theme()))
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tMETHOD\tSTEP\tTOLERANCE\tRETRIES")
	for _, s := range m.Solvers() {
		fmt.Fprintf(w, "  %s\t%s\t%g\t%g\t%d\n", s.Name, s.Method, s.Step, s.Tolerance, s.MaxRetries)
	}
	return w.Flush()
}

func formatParam(p *model.Parameter) (def, lo, hi string) {
	switch p.Type {
	case model.ParamBool:
		return fmt.Sprint(p.Default != 0), "", ""
	case model.ParamEnum:
		if i := int(p.Default); i >= 0 && i < len(p.Options) {
			def = p.Options[i]
		}
		return def, "", strings.Join(p.Options, "|")
	}
	return fmt.Sprintf("%g", p.Default), fmt.Sprintf("%g", p.Min), fmt.Sprintf("%g", p.Max)
}

func listModels(cmd *cobra.Command, args []string) error {
	registry := experiment.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPRESETS\tDESCRIPTION")
	for _, name := range registry.ListModels() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(config.ListPresets(name), ","), registry.Description(name))
	}
	return w.Flush()
}

func listSolvers(cmd *cobra.Command, args []string) error {
	for _, name := range integrators.Names() {
		kind := "fixed step"
		if integrators.IsAdaptive(name) {
			kind = "adaptive"
		}
		fmt.Printf("  %-16s %s\n", name, viz.Subtle.Render(kind))
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	presets := config.ListPresets(args[0])
	if len(presets) == 0 {
		fmt.Printf("no presets for model: %s\n", args[0])
		return nil
	}
	fmt.Printf("presets for %s:\n", args[0])
	for _, name := range presets {
		p := config.GetPreset(args[0], name)
		fmt.Printf("  %-20s %s\n", name, viz.Subtle.Render(fmt.Sprintf("%d steps of %v from %s", p.Steps, p.StepDuration, p.StartDate.Format("2006-01-02"))))
	}
	return nil
}
