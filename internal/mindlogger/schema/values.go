package schema

import (
	"fmt"
	"strconv"
)

// ResponseValues is the type-dependent answer domain of an item.
type ResponseValues interface {
	validate(t ResponseType) error
}

type Option struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Image    *string  `json:"image,omitempty"`
	Score    *float64 `json:"score,omitempty"`
	Tooltip  *string  `json:"tooltip,omitempty"`
	IsHidden bool     `json:"is_hidden,omitempty"`
	Color    *string  `json:"color,omitempty"`
	Alert    *string  `json:"alert,omitempty"`
	Value    *int     `json:"value,omitempty"`
}

// OptionValue is the value conditions compare against: the explicit value or
// the option position.
func (o Option) OptionValue(index int) string {
	if o.Value != nil {
		return strconv.Itoa(*o.Value)
	}
	return strconv.Itoa(index)
}

type SelectValues struct {
	PaletteName *string  `json:"palette_name,omitempty"`
	Options     []Option `json:"options"`
}

func (v *SelectValues) validate(t ResponseType) error {
	if len(v.Options) == 0 {
		return fmt.Errorf("%s requires at least one option", t)
	}
	ids := make(map[string]struct{}, len(v.Options))
	for _, o := range v.Options {
		if o.ID == "" {
			continue
		}
		if _, dup := ids[o.ID]; dup {
			return fmt.Errorf("duplicate option id %s", o.ID)
		}
		ids[o.ID] = struct{}{}
	}
	return nil
}

// HasOptionValue reports whether any option matches value.
func (v *SelectValues) HasOptionValue(value string) bool {
	for i, o := range v.Options {
		if o.OptionValue(i) == value {
			return true
		}
	}
	return false
}

type SliderAlert struct {
	Value    *int   `json:"value,omitempty"`
	MinValue *int   `json:"min_value,omitempty"`
	MaxValue *int   `json:"max_value,omitempty"`
	Alert    string `json:"alert"`
}

type SliderValues struct {
	MinLabel string        `json:"min_label,omitempty"`
	MaxLabel string        `json:"max_label,omitempty"`
	MinValue int           `json:"min_value"`
	MaxValue int           `json:"max_value"`
	MinImage *string       `json:"min_image,omitempty"`
	MaxImage *string       `json:"max_image,omitempty"`
	Scores   []float64     `json:"scores,omitempty"`
	Alerts   []SliderAlert `json:"alerts,omitempty"`
}

func (v *SliderValues) validate(t ResponseType) error {
	return checkRange(t, v.MinValue, v.MaxValue, len(v.Scores))
}

func checkRange(t ResponseType, min, max, scores int) error {
	if min >= max {
		return fmt.Errorf("%s min_value %d must be below max_value %d", t, min, max)
	}
	if scores > 0 && scores != max-min+1 {
		return fmt.Errorf("%s needs %d scores, got %d", t, max-min+1, scores)
	}
	return nil
}

type SliderRow struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	MinLabel string        `json:"min_label,omitempty"`
	MaxLabel string        `json:"max_label,omitempty"`
	MinValue int           `json:"min_value"`
	MaxValue int           `json:"max_value"`
	Scores   []float64     `json:"scores,omitempty"`
	Alerts   []SliderAlert `json:"alerts,omitempty"`
}

type SliderRowsValues struct {
	Rows []SliderRow `json:"rows"`
}

func (v *SliderRowsValues) validate(t ResponseType) error {
	if len(v.Rows) == 0 {
		return fmt.Errorf("%s requires at least one row", t)
	}
	for _, r := range v.Rows {
		if err := checkRange(t, r.MinValue, r.MaxValue, len(r.Scores)); err != nil {
			return fmt.Errorf("row %s: %w", r.ID, err)
		}
	}
	return nil
}

type MatrixRow struct {
	ID       string  `json:"id"`
	RowName  string  `json:"row_name"`
	RowImage *string `json:"row_image,omitempty"`
	Tooltip  *string `json:"tooltip,omitempty"`
}

type MatrixOption struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Image   *string `json:"image,omitempty"`
	Tooltip *string `json:"tooltip,omitempty"`
}

type MatrixCell struct {
	OptionID string   `json:"option_id"`
	Score    *float64 `json:"score,omitempty"`
	Alert    *string  `json:"alert,omitempty"`
}

type DataMatrixRow struct {
	RowID   string       `json:"row_id"`
	Options []MatrixCell `json:"options"`
}

// MatrixValues backs singleSelectRows and multiSelectRows.
type MatrixValues struct {
	Rows       []MatrixRow     `json:"rows"`
	Options    []MatrixOption  `json:"options"`
	DataMatrix []DataMatrixRow `json:"data_matrix,omitempty"`
}

func (v *MatrixValues) validate(t ResponseType) error {
	if len(v.Rows) == 0 || len(v.Options) == 0 {
		return fmt.Errorf("%s requires rows and options", t)
	}
	rows := make(map[string]struct{}, len(v.Rows))
	for _, r := range v.Rows {
		rows[r.ID] = struct{}{}
	}
	opts := make(map[string]struct{}, len(v.Options))
	for _, o := range v.Options {
		opts[o.ID] = struct{}{}
	}
	for _, d := range v.DataMatrix {
		if _, ok := rows[d.RowID]; !ok {
			return fmt.Errorf("data matrix references unknown row %s", d.RowID)
		}
		for _, c := range d.Options {
			if _, ok := opts[c.OptionID]; !ok {
				return fmt.Errorf("data matrix references unknown option %s", c.OptionID)
			}
		}
	}
	return nil
}

// HasRowOption reports whether row index idx exists and option id is defined.
func (v *MatrixValues) HasRowOption(idx int, optionID string) bool {
	if idx < 0 || idx >= len(v.Rows) {
		return false
	}
	for _, o := range v.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

type NumberSelectValues struct {
	MinValue int `json:"min_value"`
	MaxValue int `json:"max_value"`
}

func (v *NumberSelectValues) validate(t ResponseType) error {
	return checkRange(t, v.MinValue, v.MaxValue, 0)
}

type AudioValues struct {
	MaxDuration int `json:"max_duration"`
}

func (v *AudioValues) validate(t ResponseType) error {
	if v.MaxDuration < 0 {
		return fmt.Errorf("%s max_duration must not be negative", t)
	}
	return nil
}

type AudioPlayerValues struct {
	File string `json:"file"`
}

func (v *AudioPlayerValues) validate(t ResponseType) error {
	if v.File == "" {
		return fmt.Errorf("%s requires a file", t)
	}
	return nil
}

type DrawingValues struct {
	DrawingExample    string `json:"drawing_example,omitempty"`
	DrawingBackground string `json:"drawing_background,omitempty"`
}

func (v *DrawingValues) validate(ResponseType) error { return nil }

type UnityValues struct {
	File string `json:"file"`
}

func (v *UnityValues) validate(ResponseType) error { return nil }

type PhraseField struct {
	Type        string `json:"type"`
	ItemName    string `json:"item_name,omitempty"`
	DisplayMode string `json:"display_mode,omitempty"`
	Text        string `json:"text,omitempty"`
}

type Phrase struct {
	Image  *string       `json:"image,omitempty"`
	Fields []PhraseField `json:"fields"`
}

type PhrasalTemplateValues struct {
	CardTitle string   `json:"card_title,omitempty"`
	Phrases   []Phrase `json:"phrases"`
}

func (v *PhrasalTemplateValues) validate(t ResponseType) error {
	if len(v.Phrases) == 0 {
		return fmt.Errorf("%s requires at least one phrase", t)
	}
	return nil
}

// ItemRefs lists the item names referenced by the template's fields.
func (v *PhrasalTemplateValues) ItemRefs() []string {
	var out []string
	for _, p := range v.Phrases {
		for _, f := range p.Fields {
			if f.Type == "item_response" && f.ItemName != "" {
				out = append(out, f.ItemName)
			}
		}
	}
	return out
}

type HealthRecordOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type HealthRecordValues struct {
	OptInOutOptions []HealthRecordOption `json:"opt_in_out_options"`
}

func (v *HealthRecordValues) validate(ResponseType) error { return nil }
