package schema

import (
	"encoding/json"
	"fmt"
)

type ConditionType string

const (
	IncludesOption       ConditionType = "INCLUDES_OPTION"
	NotIncludesOption    ConditionType = "NOT_INCLUDES_OPTION"
	EqualToOption        ConditionType = "EQUAL_TO_OPTION"
	NotEqualToOption     ConditionType = "NOT_EQUAL_TO_OPTION"
	GreaterThan          ConditionType = "GREATER_THAN"
	LessThan             ConditionType = "LESS_THAN"
	Equal                ConditionType = "EQUAL"
	NotEqual             ConditionType = "NOT_EQUAL"
	Between              ConditionType = "BETWEEN"
	OutsideOf            ConditionType = "OUTSIDE_OF"
	GreaterThanDate      ConditionType = "GREATER_THAN_DATE"
	LessThanDate         ConditionType = "LESS_THAN_DATE"
	EqualToDate          ConditionType = "EQUAL_TO_DATE"
	NotEqualToDate       ConditionType = "NOT_EQUAL_TO_DATE"
	BetweenDates         ConditionType = "BETWEEN_DATES"
	OutsideOfDates       ConditionType = "OUTSIDE_OF_DATES"
	GreaterThanTime      ConditionType = "GREATER_THAN_TIME"
	LessThanTime         ConditionType = "LESS_THAN_TIME"
	EqualToTime          ConditionType = "EQUAL_TO_TIME"
	NotEqualToTime       ConditionType = "NOT_EQUAL_TO_TIME"
	BetweenTimes         ConditionType = "BETWEEN_TIMES"
	OutsideOfTimes       ConditionType = "OUTSIDE_OF_TIMES"
	EqualToRowOption     ConditionType = "EQUAL_TO_ROW_OPTION"
	NotEqualToRowOption  ConditionType = "NOT_EQUAL_TO_ROW_OPTION"
	IncludesRowOption    ConditionType = "INCLUDES_ROW_OPTION"
	NotIncludesRowOption ConditionType = "NOT_INCLUDES_ROW_OPTION"
	ScoreEqual           ConditionType = "EQUAL_TO_SCORE"
)

// sources lists the response types a condition type may read from.
var sources = map[ConditionType][]ResponseType{
	IncludesOption:       {MultiSelect},
	NotIncludesOption:    {MultiSelect},
	EqualToOption:        {SingleSelect},
	NotEqualToOption:     {SingleSelect},
	GreaterThan:          {Slider, NumberSelect, SliderRows},
	LessThan:             {Slider, NumberSelect, SliderRows},
	Equal:                {Slider, NumberSelect, SliderRows},
	NotEqual:             {Slider, NumberSelect, SliderRows},
	Between:              {Slider, NumberSelect, SliderRows},
	OutsideOf:            {Slider, NumberSelect, SliderRows},
	GreaterThanDate:      {Date},
	LessThanDate:         {Date},
	EqualToDate:          {Date},
	NotEqualToDate:       {Date},
	BetweenDates:         {Date},
	OutsideOfDates:       {Date},
	GreaterThanTime:      {Time, TimeRange},
	LessThanTime:         {Time, TimeRange},
	EqualToTime:          {Time, TimeRange},
	NotEqualToTime:       {Time, TimeRange},
	BetweenTimes:         {Time, TimeRange},
	OutsideOfTimes:       {Time, TimeRange},
	EqualToRowOption:     {SingleSelectRows},
	NotEqualToRowOption:  {SingleSelectRows},
	IncludesRowOption:    {MultiSelectRows},
	NotIncludesRowOption: {MultiSelectRows},
}

// Supports reports whether a condition of type c can read an item of type t.
func (c ConditionType) Supports(t ResponseType) bool {
	for _, s := range sources[c] {
		if s == t {
			return true
		}
	}
	return false
}

func (c ConditionType) optionBased() bool {
	return c == IncludesOption || c == NotIncludesOption || c == EqualToOption || c == NotEqualToOption
}

func (c ConditionType) rowBased() bool {
	return c == EqualToRowOption || c == NotEqualToRowOption || c == IncludesRowOption || c == NotIncludesRowOption
}

// ConditionPayload is the union of every condition payload shape; only the
// fields of the condition's type are set.
type ConditionPayload struct {
	OptionValue string   `json:"option_value,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
	Date        string   `json:"date,omitempty"`
	MinDate     string   `json:"min_date,omitempty"`
	MaxDate     string   `json:"max_date,omitempty"`
	Time        string   `json:"time,omitempty"`
	MinTime     string   `json:"min_time,omitempty"`
	MaxTime     string   `json:"max_time,omitempty"`
	RowIndex    *int     `json:"row_index,omitempty"`
	FieldName   string   `json:"field_name,omitempty"`
}

type Condition struct {
	ItemName string           `json:"item_name"`
	Type     ConditionType    `json:"type"`
	Payload  ConditionPayload `json:"payload"`
}

// ConditionalLogic decides an item's visibility from earlier answers.
type ConditionalLogic struct {
	Match      string      `json:"match"`
	Conditions []Condition `json:"conditions"`
}

// ParseConditionalLogic decodes an optional conditional_logic column.
func ParseConditionalLogic(raw json.RawMessage) (*ConditionalLogic, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var cl ConditionalLogic
	if err := json.Unmarshal(raw, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

func (cl *ConditionalLogic) checkMatch() error {
	if cl.Match != "any" && cl.Match != "all" {
		return fmt.Errorf("match must be any or all, got %q", cl.Match)
	}
	if len(cl.Conditions) == 0 {
		return fmt.Errorf("no conditions")
	}
	return nil
}

// checkCondition verifies the condition against its source item.
func checkCondition(c Condition, src *Item) error {
	if _, known := sources[c.Type]; !known {
		return fmt.Errorf("unknown condition type %s", c.Type)
	}
	if !c.Type.Supports(src.Type) {
		return fmt.Errorf("condition %s cannot read item %q of type %s", c.Type, c.ItemName, src.Type)
	}
	switch {
	case c.Type.optionBased():
		sv, ok := src.Values.(*SelectValues)
		if !ok || !sv.HasOptionValue(c.Payload.OptionValue) {
			return fmt.Errorf("option %q does not exist in item %q", c.Payload.OptionValue, c.ItemName)
		}
	case c.Type.rowBased():
		mv, ok := src.Values.(*MatrixValues)
		if !ok || c.Payload.RowIndex == nil || !mv.HasRowOption(*c.Payload.RowIndex, c.Payload.OptionValue) {
			return fmt.Errorf("row option %q does not exist in item %q", c.Payload.OptionValue, c.ItemName)
		}
	case c.Type == Between || c.Type == OutsideOf:
		if c.Payload.MinValue == nil || c.Payload.MaxValue == nil || *c.Payload.MinValue > *c.Payload.MaxValue {
			return fmt.Errorf("condition %s needs min_value <= max_value", c.Type)
		}
	}
	return nil
}
