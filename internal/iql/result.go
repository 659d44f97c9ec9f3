package iql

import "github.com/topolane/topolane/internal/models"

// ResultType discriminates the shape of a Result (spec §6: IQL protocol).
type ResultType string

const (
	ResultFind      ResultType = "find"
	ResultSummarize ResultType = "summarize"
	ResultPath      ResultType = "path"
	ResultExplain   ResultType = "explain"
)

// Result is the structured output of Execute.
type Result struct {
	Type       ResultType       `json:"type"`
	Nodes      []models.Node    `json:"nodes,omitempty"`
	Edges      []models.Edge    `json:"edges,omitempty"`
	PathNodes  []models.Node    `json:"pathNodes,omitempty"`
	Groups     []SummaryGroup   `json:"groups,omitempty"`
	AST        *Query           `json:"ast,omitempty"`
}

// SummaryGroup is one bucket of a SUMMARIZE result.
type SummaryGroup struct {
	Key        string  `json:"key"`
	Count      int     `json:"count"`
	TotalCost  float64 `json:"totalCost"`
}
