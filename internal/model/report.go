package model

import "time"

// ChartKind selects how a chart's series is drawn.
type ChartKind string

const (
	ChartArea    ChartKind = "area"
	ChartLine    ChartKind = "line"
	ChartScatter ChartKind = "scatter"
	ChartCells   ChartKind = "cells"
)

// Chart is a statistic's series plus the descriptive metadata a renderer needs.
type Chart struct {
	Statistic Statistic `json:"statistic"`
	Kind      ChartKind `json:"kind"`

	// Title is the chart caption.
	Title string `json:"title"`

	// XLabel and YLabel are the axis descriptions.
	XLabel string `json:"x_label"`
	YLabel string `json:"y_label"`

	// XMax and YMax bound the axes; zero leaves the bound to the renderer.
	XMax float64 `json:"x_max,omitempty"`
	YMax float64 `json:"y_max,omitempty"`

	// XTicks labels specific x positions, used by the reuse-period chart.
	XTicks []Tick `json:"x_ticks,omitempty"`

	// Points holds the series for area, line and scatter charts.
	Points []Point `json:"points,omitempty"`

	// Cells holds the occupancy grid for cell charts.
	Cells []Cell `json:"cells,omitempty"`
}

// Tick is a labelled axis position.
type Tick struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// Report contains the results of one analysis run.
type Report struct {
	// ReqID is a unique identifier for this analysis run.
	ReqID string `json:"req_id"`

	// ReportType describes how the run was triggered ("adhoc" or "scheduled").
	ReportType string `json:"report_type"`

	// Timestamp is when the run finished.
	Timestamp time.Time `json:"timestamp"`

	// Source describes the trace source that was analyzed.
	Source string `json:"source"`

	// TargetTableID is the table whose records were analyzed.
	TargetTableID uint64 `json:"target_table_id"`

	// Metadata contains the bucketing summary.
	Metadata Metadata `json:"metadata"`

	// Statistics summarizes each statistic that ran.
	Statistics []StatisticResult `json:"statistics,omitempty"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration"`
}

// StatisticResult summarizes one computed statistic.
type StatisticResult struct {
	Statistic Statistic `json:"statistic"`

	// Points is the number of points in the rendered series.
	Points int `json:"points"`

	// Artifacts lists the files the renderers produced for this statistic.
	Artifacts []string `json:"artifacts,omitempty"`

	// Highlight is a one-line human readable takeaway, e.g. the peak access count.
	Highlight string `json:"highlight,omitempty"`
}
