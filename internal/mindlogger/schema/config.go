package schema

// Config is the type-dependent behavior block of an item.
type Config interface {
	Base() *BaseConfig
}

type AdditionalResponseOption struct {
	TextInputOption   bool `json:"text_input_option"`
	TextInputRequired bool `json:"text_input_required"`
}

// BaseConfig carries the flags shared by every response type.
type BaseConfig struct {
	RemoveBackButton         bool                     `json:"remove_back_button"`
	SkippableItem            bool                     `json:"skippable_item"`
	Timer                    *int                     `json:"timer,omitempty"`
	AddScores                bool                     `json:"add_scores,omitempty"`
	SetAlerts                bool                     `json:"set_alerts,omitempty"`
	AdditionalResponseOption AdditionalResponseOption `json:"additional_response_option"`
}

func (c *BaseConfig) Base() *BaseConfig { return c }

type TextConfig struct {
	BaseConfig
	MaxResponseLength         int    `json:"max_response_length,omitempty"`
	CorrectAnswerRequired     bool   `json:"correct_answer_required,omitempty"`
	CorrectAnswer             string `json:"correct_answer,omitempty"`
	NumericalResponseRequired bool   `json:"numerical_response_required,omitempty"`
	ResponseDataIdentifier    bool   `json:"response_data_identifier,omitempty"`
	ResponseRequired          bool   `json:"response_required,omitempty"`
}

type SelectConfig struct {
	BaseConfig
	Randomize              bool `json:"randomize_options,omitempty"`
	AddTooltip             bool `json:"add_tooltip,omitempty"`
	SetPalette             bool `json:"set_palette,omitempty"`
	AutoAdvance            bool `json:"auto_advance,omitempty"`
	PortraitLayout         bool `json:"portrait_layout,omitempty"`
	ResponseDataIdentifier bool `json:"response_data_identifier,omitempty"`
}

type SliderConfig struct {
	BaseConfig
	ShowTickMarks    bool `json:"show_tick_marks,omitempty"`
	ShowTickLabels   bool `json:"show_tick_labels,omitempty"`
	ContinuousSlider bool `json:"continuous_slider,omitempty"`
}

type AudioPlayerConfig struct {
	BaseConfig
	PlayOnce bool `json:"play_once,omitempty"`
}

type DrawingConfig struct {
	BaseConfig
	ProportionEnabled bool `json:"proportion_enabled,omitempty"`
}

type MessageConfig struct {
	BaseConfig
}

// TaskConfig covers the embedded performance tasks whose content lives outside
// the item schema (ABTrails, flanker, stability tracker, unity).
type TaskConfig struct {
	BaseConfig
	DeviceType string                   `json:"device_type,omitempty"`
	Blocks     []map[string]interface{} `json:"blocks,omitempty"`
	Settings   map[string]interface{}   `json:"settings,omitempty"`
}
