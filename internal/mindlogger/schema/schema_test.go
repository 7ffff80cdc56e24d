package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

const selectValues = `{"options":[{"id":"o1","text":"Yes","value":0,"score":1},{"id":"o2","text":"No","value":1,"score":0}]}`

func TestDecodeDispatchesOnType(t *testing.T) {
	item, err := Decode(SingleSelect, raw(`{"add_scores":true,"randomize_options":true}`), raw(selectValues))
	require.NoError(t, err)
	cfg, ok := item.Config.(*SelectConfig)
	require.True(t, ok)
	assert.True(t, cfg.AddScores)
	assert.True(t, cfg.Randomize)
	vals, ok := item.Values.(*SelectValues)
	require.True(t, ok)
	assert.Len(t, vals.Options, 2)

	item, err = Decode(Slider, raw(`{}`), raw(`{"min_value":0,"max_value":4,"scores":[0,1,2,3,4]}`))
	require.NoError(t, err)
	assert.IsType(t, &SliderValues{}, item.Values)

	item, err = Decode(Text, raw(`{"max_response_length":200}`), nil)
	require.NoError(t, err)
	assert.Nil(t, item.Values)
	assert.Equal(t, 200, item.Config.(*TextConfig).MaxResponseLength)
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name   string
		typ    ResponseType
		values string
	}{
		{"unknown type", ResponseType("hologram"), `{}`},
		{"select without options", SingleSelect, `{"options":[]}`},
		{"duplicate option ids", MultiSelect, `{"options":[{"id":"a","text":"x"},{"id":"a","text":"y"}]}`},
		{"slider inverted range", Slider, `{"min_value":5,"max_value":1}`},
		{"slider score count", Slider, `{"min_value":0,"max_value":2,"scores":[1]}`},
		{"matrix unknown row", SingleSelectRows, `{"rows":[{"id":"r1","row_name":"a"}],"options":[{"id":"o1","text":"x"}],"data_matrix":[{"row_id":"r9","options":[]}]}`},
		{"values on text", Text, `{"options":[]}`},
		{"audio player file", AudioPlayer, `{"file":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.typ, nil, raw(tt.values))
			assert.Error(t, err)
		})
	}
}

func TestEveryTypeDecodesEmptyConfig(t *testing.T) {
	for typ, v := range variants {
		if v.values != nil {
			continue
		}
		_, err := Decode(typ, raw(`{"skippable_item":true}`), nil)
		assert.NoError(t, err, typ)
	}
}

func baseActivity() ActivityDraft {
	return ActivityDraft{
		Name: "Mood",
		Items: []ItemDraft{
			{Name: "q1", ResponseType: SingleSelect, Config: raw(`{"add_scores":true}`), ResponseValues: raw(selectValues)},
			{Name: "q2", ResponseType: Slider, Config: raw(`{"add_scores":false}`), ResponseValues: raw(`{"min_value":0,"max_value":10}`)},
			{Name: "q3", ResponseType: TimeRange, Config: raw(`{}`)},
			{Name: "q4", ResponseType: Text, Config: raw(`{}`)},
		},
	}
}

func TestValidateActivityConditionalLogic(t *testing.T) {
	tests := []struct {
		name    string
		logic   string
		hidden  bool
		wantErr bool
	}{
		{"valid option", `{"match":"any","conditions":[{"item_name":"q1","type":"EQUAL_TO_OPTION","payload":{"option_value":"1"}}]}`, false, false},
		{"unknown option", `{"match":"any","conditions":[{"item_name":"q1","type":"EQUAL_TO_OPTION","payload":{"option_value":"7"}}]}`, false, true},
		{"wrong source type", `{"match":"all","conditions":[{"item_name":"q2","type":"EQUAL_TO_OPTION","payload":{"option_value":"1"}}]}`, false, true},
		{"multi condition on single", `{"match":"all","conditions":[{"item_name":"q1","type":"INCLUDES_OPTION","payload":{"option_value":"1"}}]}`, false, true},
		{"numeric on slider", `{"match":"all","conditions":[{"item_name":"q2","type":"GREATER_THAN","payload":{"value":3}}]}`, false, false},
		{"between inverted", `{"match":"all","conditions":[{"item_name":"q2","type":"BETWEEN","payload":{"min_value":5,"max_value":3}}]}`, false, true},
		{"missing item", `{"match":"any","conditions":[{"item_name":"nope","type":"EQUAL","payload":{"value":1}}]}`, false, true},
		{"hidden item", `{"match":"any","conditions":[{"item_name":"q1","type":"EQUAL_TO_OPTION","payload":{"option_value":"1"}}]}`, true, true},
		{"bad match", `{"match":"some","conditions":[{"item_name":"q1","type":"EQUAL_TO_OPTION","payload":{"option_value":"1"}}]}`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := baseActivity()
			a.Items[3].ConditionalLogic = raw(tt.logic)
			a.Items[3].IsHidden = tt.hidden
			err := ValidateActivity(a)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, "INVALID_CONDITIONAL_LOGIC", e.Code)
			assert.Equal(t, apperr.KindValidation, e.Kind)
		})
	}
}

func TestValidateActivityDuplicateItemName(t *testing.T) {
	a := baseActivity()
	a.Items = append(a.Items, ItemDraft{Name: "q1", ResponseType: Text})
	err := ValidateActivity(a)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "DUPLICATE_ITEM_NAME", e.Code)
}

func TestValidateActivityScoresAndReports(t *testing.T) {
	tests := []struct {
		name    string
		reports string
		wantErr bool
	}{
		{"valid score", `{"reports":[{"type":"score","id":"score_1","name":"S","calculation_type":"sum","items_score":["q1"],"items_print":["q4"]}]}`, false},
		{"score without add_scores", `{"reports":[{"type":"score","id":"score_1","name":"S","items_score":["q2"]}]}`, true},
		{"score on text", `{"reports":[{"type":"score","id":"score_1","name":"S","items_score":["q4"]}]}`, true},
		{"print time range", `{"reports":[{"type":"section","name":"S","items_print":["q3"]}]}`, true},
		{"score logic self ref", `{"reports":[{"type":"score","id":"score_1","name":"S","items_score":["q1"],"conditional_logic":[{"id":"c1","name":"c","match":"any","conditions":[{"item_name":"score_1","type":"GREATER_THAN","payload":{"value":1}}]}]}]}`, false},
		{"score logic foreign ref", `{"reports":[{"type":"score","id":"score_1","name":"S","items_score":["q1"],"conditional_logic":[{"id":"c1","name":"c","match":"any","conditions":[{"item_name":"q1","type":"GREATER_THAN","payload":{"value":1}}]}]}]}`, true},
		{"section on score", `{"reports":[{"type":"score","id":"score_1","name":"S","items_score":["q1"]},{"type":"section","name":"X","conditional_logic":{"match":"all","conditions":[{"item_name":"score_1","type":"GREATER_THAN","payload":{"value":1}}]}}]}`, false},
		{"section on item", `{"reports":[{"type":"section","name":"X","conditional_logic":{"match":"all","conditions":[{"item_name":"q1","type":"EQUAL_TO_OPTION","payload":{"option_value":"0"}}]}}]}`, false},
		{"section unknown", `{"reports":[{"type":"section","name":"X","conditional_logic":{"match":"all","conditions":[{"item_name":"zz","type":"EQUAL","payload":{"value":1}}]}}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := baseActivity()
			a.ScoresAndReports = raw(tt.reports)
			err := ValidateActivity(a)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, "INVALID_SCORE_ITEM", e.Code)
		})
	}
}

func TestValidateActivitySubscales(t *testing.T) {
	tests := []struct {
		name    string
		setting string
		wantErr bool
	}{
		{"valid", `{"subscales":[{"name":"A","scoring":"sum","items":[{"name":"q1","type":"item"}]},{"name":"B","scoring":"sum","items":[{"name":"A","type":"subscale"}]}]}`, false},
		{"missing item", `{"subscales":[{"name":"A","items":[{"name":"zz","type":"item"}]}]}`, true},
		{"no add_scores", `{"subscales":[{"name":"A","items":[{"name":"q2","type":"item"}]}]}`, true},
		{"subscale pointing at item", `{"subscales":[{"name":"A","items":[{"name":"q1","type":"subscale"}]}]}`, true},
		{"duplicate names", `{"subscales":[{"name":"A","items":[]},{"name":"A","items":[]}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := baseActivity()
			a.SubscaleSetting = raw(tt.setting)
			err := ValidateActivity(a)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, "INVALID_SUBSCALE_ITEM", e.Code)
		})
	}
}

func TestReportJSONKeepsConditionalLogic(t *testing.T) {
	in := `{"type":"section","name":"X","conditional_logic":{"match":"all","conditions":[{"item_name":"q1","type":"EQUAL","payload":{"value":1}}]}}`
	var r Report
	require.NoError(t, json.Unmarshal([]byte(in), &r))
	require.NotNil(t, r.SectionLogic)
	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"conditional_logic":{"match":"all"`)
}

func TestSectionConditionTypesDeduplicated(t *testing.T) {
	sr, err := ParseScoresAndReports(raw(`{"reports":[
		{"type":"section","name":"a","conditional_logic":{"match":"any","conditions":[
			{"item_name":"s","type":"GREATER_THAN","payload":{"value":1}},
			{"item_name":"s","type":"GREATER_THAN","payload":{"value":2}},
			{"item_name":"s","type":"LESS_THAN","payload":{"value":3}}]}}]}`))
	require.NoError(t, err)
	assert.Equal(t, []ConditionType{GreaterThan, LessThan}, sr.SectionConditionTypes())
}

func TestLocalizedText(t *testing.T) {
	assert.NoError(t, LocalizedText{"en": "Hi", "fr": "Salut", "pt-BR": "Oi"}.Validate())
	assert.Error(t, LocalizedText{"not a tag!": "x"}.Validate())

	txt := LocalizedText{"en": "Hi", "fr": "Salut"}
	assert.Equal(t, "Salut", txt.Pick("fr-CA"))
	assert.Equal(t, "Hi", txt.Pick("de"))
}
