package schema

import (
	"encoding/json"
	"fmt"
)

type ReportType string

const (
	ReportScore   ReportType = "score"
	ReportSection ReportType = "section"
)

type CalculationType string

const (
	CalcSum        CalculationType = "sum"
	CalcAverage    CalculationType = "average"
	CalcPercentage CalculationType = "percentage"
)

// ScoreConditionalLogic flags a score range with a message.
type ScoreConditionalLogic struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Flag       bool        `json:"flag_score,omitempty"`
	Message    string      `json:"message,omitempty"`
	ItemsPrint []string    `json:"items_print,omitempty"`
	Match      string      `json:"match"`
	Conditions []Condition `json:"conditions"`
}

// SectionConditionalLogic shows a report section depending on items or scores.
type SectionConditionalLogic struct {
	Match      string      `json:"match"`
	Conditions []Condition `json:"conditions"`
}

// Report is one entry of scores_and_reports.reports, tagged by Type.
type Report struct {
	Type            ReportType      `json:"type"`
	ID              string          `json:"id,omitempty"`
	Name            string          `json:"name"`
	Message         string          `json:"message,omitempty"`
	ItemsPrint      []string        `json:"items_print,omitempty"`
	CalculationType CalculationType `json:"calculation_type,omitempty"`
	ItemsScore      []string        `json:"items_score,omitempty"`

	ScoreLogic   []ScoreConditionalLogic  `json:"-"`
	SectionLogic *SectionConditionalLogic `json:"-"`
}

type reportAlias Report

type reportWire struct {
	reportAlias
	ConditionalLogic json.RawMessage `json:"conditional_logic,omitempty"`
}

func (r *Report) UnmarshalJSON(b []byte) error {
	var w reportWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Report(w.reportAlias)
	if len(w.ConditionalLogic) == 0 || string(w.ConditionalLogic) == "null" {
		return nil
	}
	switch r.Type {
	case ReportScore:
		return json.Unmarshal(w.ConditionalLogic, &r.ScoreLogic)
	case ReportSection:
		r.SectionLogic = &SectionConditionalLogic{}
		return json.Unmarshal(w.ConditionalLogic, r.SectionLogic)
	default:
		return fmt.Errorf("unknown report type %q", r.Type)
	}
}

func (r Report) MarshalJSON() ([]byte, error) {
	w := reportWire{reportAlias: reportAlias(r)}
	var err error
	switch {
	case r.Type == ReportScore && r.ScoreLogic != nil:
		w.ConditionalLogic, err = json.Marshal(r.ScoreLogic)
	case r.Type == ReportSection && r.SectionLogic != nil:
		w.ConditionalLogic, err = json.Marshal(r.SectionLogic)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

type ScoresAndReports struct {
	GenerateReport   bool     `json:"generate_report"`
	ShowScoreSummary bool     `json:"show_score_summary"`
	Reports          []Report `json:"reports"`
}

// ParseScoresAndReports decodes an optional scores_and_reports column.
func ParseScoresAndReports(raw json.RawMessage) (*ScoresAndReports, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var sr ScoresAndReports
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, err
	}
	return &sr, nil
}

// SectionConditionTypes returns the distinct condition types used by section
// logic, in first-seen order.
func (sr *ScoresAndReports) SectionConditionTypes() []ConditionType {
	seen := make(map[ConditionType]struct{})
	var out []ConditionType
	for _, r := range sr.Reports {
		if r.SectionLogic == nil {
			continue
		}
		for _, c := range r.SectionLogic.Conditions {
			if _, ok := seen[c.Type]; ok {
				continue
			}
			seen[c.Type] = struct{}{}
			out = append(out, c.Type)
		}
	}
	return out
}

type SubscaleItemType string

const (
	SubscaleItemItem     SubscaleItemType = "item"
	SubscaleItemSubscale SubscaleItemType = "subscale"
)

type SubscaleItem struct {
	Name string           `json:"name"`
	Type SubscaleItemType `json:"type"`
}

type SubscaleTableRow struct {
	Score        string  `json:"score"`
	RawScore     string  `json:"raw_score"`
	Age          *int    `json:"age,omitempty"`
	Sex          *string `json:"sex,omitempty"`
	OptionalText *string `json:"optional_text,omitempty"`
}

type Subscale struct {
	Name              string             `json:"name"`
	Scoring           CalculationType    `json:"scoring"`
	Items             []SubscaleItem     `json:"items"`
	SubscaleTableData []SubscaleTableRow `json:"subscale_table_data,omitempty"`
}

type TotalScoreRow struct {
	RawScore     string  `json:"raw_score"`
	OptionalText *string `json:"optional_text,omitempty"`
}

type SubscaleSetting struct {
	CalculateTotalScore *CalculationType `json:"calculate_total_score,omitempty"`
	Subscales           []Subscale       `json:"subscales"`
	TotalScoresTable    []TotalScoreRow  `json:"total_scores_table_data,omitempty"`
}

// ParseSubscaleSetting decodes an optional subscale_setting column.
func ParseSubscaleSetting(raw json.RawMessage) (*SubscaleSetting, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s SubscaleSetting
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
