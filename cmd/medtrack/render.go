package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/medtrack/data-ingress/pkg/converter"
	"github.com/medtrack/data-ingress/pkg/model"
	"github.com/medtrack/data-ingress/pkg/pipeline"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func renderRun(w io.Writer, res *pipeline.RunResult) {
	t := newTable(w, "Pipeline run: "+res.Entity.String())
	t.AppendRows([]table.Row{
		{"Source", res.Source},
		{"State", res.State},
		{"Outcome", res.Outcome},
		{"Rows loaded", res.RowsLoaded},
	})
	if res.Validation != nil {
		t.AppendRow(table.Row{"Validation score", fmt.Sprintf("%.2f", res.Validation.QualityScore)})
	}
	if res.ArchivePath != "" {
		t.AppendRow(table.Row{"Archive", res.ArchivePath})
	}
	if res.Error != nil {
		t.AppendRow(table.Row{"Error", res.Error.Message})
	}
	t.Render()
}

func renderBatch(w io.Writer, s *model.BatchSummary) {
	t := newTable(w, "Daily batch")
	t.AppendHeader(table.Row{"Entity", "Outcome"})
	for _, e := range model.AllEntityTypes() {
		if outcome, ok := s.Results[e]; ok {
			t.AppendRow(table.Row{e, outcome})
		}
	}
	t.AppendFooter(table.Row{"Errors / warnings", fmt.Sprintf("%d / %d", s.Statistics.Errors, s.Statistics.Warnings)})
	t.Render()
}

func renderAudit(w io.Writer, r *model.QualityAuditReport) {
	scores := newTable(w, "Quality score")
	scores.AppendHeader(table.Row{"Dimension", "Score"})
	scores.AppendRows([]table.Row{
		{"Completeness", r.Score.Completeness},
		{"Consistency", r.Score.Consistency},
		{"Accuracy", r.Score.Accuracy},
		{"Timeliness", r.Score.Timeliness},
	})
	scores.AppendSeparator()
	scores.AppendRows([]table.Row{
		{"Overall", r.Score.Overall},
		{"Grade", r.Score.Grade},
	})
	scores.Render()

	comp := newTable(w, "Completeness")
	comp.AppendHeader(table.Row{"Table", "Records", "Complete", "Rate"})
	for _, c := range r.Completeness {
		comp.AppendRow(table.Row{c.Table, c.TotalRecords, c.CompleteRecords, c.CompletenessRate})
	}
	comp.Render()

	cons := newTable(w, "Consistency")
	cons.AppendRows([]table.Row{
		{"Orphaned sales", r.Consistency.OrphanedSales},
		{"Negative stock", r.Consistency.NegativeStock},
		{"Future sales", r.Consistency.FutureSales},
		{"Expired drugs in stock", r.Consistency.ExpiredDrugsInStock},
	})
	cons.Render()

	if len(r.Accuracy.Issues) > 0 {
		acc := newTable(w, "Accuracy")
		acc.AppendHeader(table.Row{"Rule", "Violations", "Example"})
		for _, i := range r.Accuracy.Issues {
			acc.AppendRow(table.Row{i.Rule, i.Violations, i.Example})
		}
		acc.Render()
	}
}

func renderFixes(w io.Writer, res model.FixResult) {
	t := newTable(w, fmt.Sprintf("Applied fixes: %d", res.FixesApplied))
	t.AppendHeader(table.Row{"Table", "ID", "Field", "Old", "New", "Fix"})
	for _, f := range res.Details {
		t.AppendRow(table.Row{f.Table, f.RowID, f.Field, converter.Describe(f.OldValue), converter.Describe(f.NewValue), f.FixType})
	}
	if res.Error != "" {
		t.AppendFooter(table.Row{"Error", res.Error})
	}
	t.Render()
}
