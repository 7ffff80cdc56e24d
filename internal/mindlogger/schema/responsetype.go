// Package schema holds the typed shape of activity items: response types with
// their config and response values, conditional logic, scores & reports and
// subscales, plus the write-time validation of references between them.
package schema

import (
	"encoding/json"
	"fmt"
)

type ResponseType string

const (
	Text                    ResponseType = "text"
	ParagraphText           ResponseType = "paragraphText"
	SingleSelect            ResponseType = "singleSelect"
	MultiSelect             ResponseType = "multiSelect"
	Slider                  ResponseType = "slider"
	SliderRows              ResponseType = "sliderRows"
	NumberSelect            ResponseType = "numberSelect"
	Date                    ResponseType = "date"
	Time                    ResponseType = "time"
	TimeRange               ResponseType = "timeRange"
	Geolocation             ResponseType = "geolocation"
	Audio                   ResponseType = "audio"
	AudioPlayer             ResponseType = "audioPlayer"
	Photo                   ResponseType = "photo"
	Video                   ResponseType = "video"
	Drawing                 ResponseType = "drawing"
	SingleSelectRows        ResponseType = "singleSelectRows"
	MultiSelectRows         ResponseType = "multiSelectRows"
	Message                 ResponseType = "message"
	ABTrails                ResponseType = "ABTrails"
	Flanker                 ResponseType = "flanker"
	StabilityTracker        ResponseType = "stabilityTracker"
	Unity                   ResponseType = "unity"
	PhrasalTemplate         ResponseType = "phrasalTemplate"
	RequestHealthRecordData ResponseType = "requestHealthRecordData"
)

// variant binds a response type to constructors of its config and values.
type variant struct {
	config func() Config
	values func() ResponseValues
}

var variants = map[ResponseType]variant{
	Text:                    {func() Config { return &TextConfig{} }, nil},
	ParagraphText:           {func() Config { return &TextConfig{} }, nil},
	SingleSelect:            {func() Config { return &SelectConfig{} }, func() ResponseValues { return &SelectValues{} }},
	MultiSelect:             {func() Config { return &SelectConfig{} }, func() ResponseValues { return &SelectValues{} }},
	Slider:                  {func() Config { return &SliderConfig{} }, func() ResponseValues { return &SliderValues{} }},
	SliderRows:              {func() Config { return &SliderConfig{} }, func() ResponseValues { return &SliderRowsValues{} }},
	NumberSelect:            {func() Config { return &BaseConfig{} }, func() ResponseValues { return &NumberSelectValues{} }},
	Date:                    {func() Config { return &BaseConfig{} }, nil},
	Time:                    {func() Config { return &BaseConfig{} }, nil},
	TimeRange:               {func() Config { return &BaseConfig{} }, nil},
	Geolocation:             {func() Config { return &BaseConfig{} }, nil},
	Audio:                   {func() Config { return &BaseConfig{} }, func() ResponseValues { return &AudioValues{} }},
	AudioPlayer:             {func() Config { return &AudioPlayerConfig{} }, func() ResponseValues { return &AudioPlayerValues{} }},
	Photo:                   {func() Config { return &BaseConfig{} }, nil},
	Video:                   {func() Config { return &BaseConfig{} }, nil},
	Drawing:                 {func() Config { return &DrawingConfig{} }, func() ResponseValues { return &DrawingValues{} }},
	SingleSelectRows:        {func() Config { return &SelectConfig{} }, func() ResponseValues { return &MatrixValues{} }},
	MultiSelectRows:         {func() Config { return &SelectConfig{} }, func() ResponseValues { return &MatrixValues{} }},
	Message:                 {func() Config { return &MessageConfig{} }, nil},
	ABTrails:                {func() Config { return &TaskConfig{} }, nil},
	Flanker:                 {func() Config { return &TaskConfig{} }, nil},
	StabilityTracker:        {func() Config { return &TaskConfig{} }, nil},
	Unity:                   {func() Config { return &TaskConfig{} }, func() ResponseValues { return &UnityValues{} }},
	PhrasalTemplate:         {func() Config { return &BaseConfig{} }, func() ResponseValues { return &PhrasalTemplateValues{} }},
	RequestHealthRecordData: {func() Config { return &BaseConfig{} }, func() ResponseValues { return &HealthRecordValues{} }},
}

// Valid reports whether t is a known response type.
func (t ResponseType) Valid() bool {
	_, ok := variants[t]
	return ok
}

// Scorable reports whether items of this type can contribute to scores.
func (t ResponseType) Scorable() bool {
	switch t {
	case SingleSelect, MultiSelect, Slider, SliderRows, SingleSelectRows, MultiSelectRows:
		return true
	}
	return false
}

// HasOptions reports whether the type carries a flat list of options.
func (t ResponseType) HasOptions() bool {
	return t == SingleSelect || t == MultiSelect
}

// Item is the decoded form of an activity item's type-dependent payload.
type Item struct {
	Type   ResponseType
	Config Config
	Values ResponseValues
}

// Decode parses raw config and response values according to the response type.
func Decode(t ResponseType, config, values json.RawMessage) (*Item, error) {
	v, ok := variants[t]
	if !ok {
		return nil, fmt.Errorf("unknown response type %q", t)
	}
	item := &Item{Type: t, Config: v.config()}
	if len(config) > 0 && string(config) != "null" {
		if err := json.Unmarshal(config, item.Config); err != nil {
			return nil, fmt.Errorf("config for %s: %w", t, err)
		}
	}
	if v.values != nil {
		item.Values = v.values()
		if len(values) > 0 && string(values) != "null" {
			if err := json.Unmarshal(values, item.Values); err != nil {
				return nil, fmt.Errorf("response values for %s: %w", t, err)
			}
		}
	} else if len(values) > 0 && string(values) != "null" && string(values) != "{}" {
		return nil, fmt.Errorf("response type %s takes no response values", t)
	}
	if item.Values != nil {
		if err := item.Values.validate(t); err != nil {
			return nil, err
		}
	}
	return item, nil
}
