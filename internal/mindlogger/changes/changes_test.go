package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
)

func snapshot(version string, itemHidden bool, options string) *Snapshot {
	return &Snapshot{
		Applet: entity.AppletHistory{
			IDVersion:   entity.IDVersion("a1", version),
			ID:          "a1",
			AppletAttrs: entity.AppletAttrs{DisplayName: "Mood study", Version: version},
		},
		Activities: []entity.ActivityHistory{{
			IDVersion:     entity.IDVersion("act1", version),
			ID:            "act1",
			ActivityAttrs: entity.ActivityAttrs{Name: "Daily"},
			Items: []entity.ActivityItemHistory{{
				IDVersion: entity.IDVersion("it1", version),
				ID:        "it1",
				ItemAttrs: entity.ItemAttrs{
					Name:           "feeling",
					Question:       datatypes.JSON(`{"en":"How do you feel?"}`),
					ResponseType:   "singleSelect",
					ResponseValues: datatypes.JSON(options),
					Config:         datatypes.JSON(`{"remove_back_button":false,"additional_response_option":{"text_input_option":false}}`),
					IsHidden:       itemHidden,
				},
			}},
		}},
	}
}

const twoOptions = `{"options":[{"id":"o1","text":"Good"},{"id":"o2","text":"Bad"}]}`

func TestCompareItemVisibility(t *testing.T) {
	c := Compare(snapshot("1.0.0", false, twoOptions), snapshot("1.0.1", true, twoOptions))
	require.Len(t, c.Activities, 1)
	assert.Equal(t, "Activity Daily was updated", c.Activities[0].Name)
	require.Len(t, c.Activities[0].Items, 1)
	assert.Equal(t, []string{"Item Visibility was disabled"}, c.Activities[0].Items[0].Changes)

	back := Compare(snapshot("1.0.1", true, twoOptions), snapshot("1.0.2", false, twoOptions))
	assert.Equal(t, []string{"Item Visibility was enabled"}, back.Activities[0].Items[0].Changes)
}

func TestCompareNoChanges(t *testing.T) {
	c := Compare(snapshot("1.0.0", false, twoOptions), snapshot("1.0.1", false, twoOptions))
	assert.True(t, c.Empty())
}

func TestCompareOptionsKeyedByID(t *testing.T) {
	next := `{"options":[{"id":"o1","text":"Great"},{"id":"o3","text":"Meh"}]}`
	c := Compare(snapshot("1.0.0", false, twoOptions), snapshot("1.0.1", false, next))
	require.Len(t, c.Activities, 1)
	changes := c.Activities[0].Items[0].Changes
	assert.Contains(t, changes, "Option Great was updated")
	assert.Contains(t, changes, "Option Meh was added")
	assert.Contains(t, changes, "Option Bad was removed")
}

func TestCompareConfigFlags(t *testing.T) {
	prev := snapshot("1.0.0", false, twoOptions)
	next := snapshot("1.0.1", false, twoOptions)
	next.Activities[0].Items[0].Config = datatypes.JSON(`{"remove_back_button":true,"additional_response_option":{"text_input_option":true},"timer":30}`)
	changes := Compare(prev, next).Activities[0].Items[0].Changes
	assert.ElementsMatch(t, []string{
		"Add Text Input Option was enabled",
		"Remove Back Button was enabled",
		"Timer was set to 30",
	}, changes)
}

func TestCompareActivityAddedAndRemoved(t *testing.T) {
	prev := snapshot("1.0.0", false, twoOptions)
	next := snapshot("1.0.1", false, twoOptions)
	next.Activities[0].ID = "act2"
	next.Activities[0].Name = "Weekly"
	next.Activities[0].IsHidden = true

	c := Compare(prev, next)
	require.Len(t, c.Activities, 2)
	assert.Equal(t, "Activity Weekly was added", c.Activities[0].Name)
	assert.Contains(t, c.Activities[0].Changes, "Activity Visibility was disabled")
	assert.Equal(t, "Activity Daily was removed", c.Activities[1].Name)
}

func TestCompareScoresAndSubscales(t *testing.T) {
	prev := snapshot("1.0.0", false, twoOptions)
	next := snapshot("1.0.1", false, twoOptions)
	prev.Activities[0].ScoresAndReports = datatypes.JSON(`{"generate_report":false,"reports":[{"type":"score","id":"s1","name":"Total"}]}`)
	next.Activities[0].ScoresAndReports = datatypes.JSON(`{"generate_report":true,"reports":[{"type":"section","name":"Intro"}]}`)
	next.Activities[0].SubscaleSetting = datatypes.JSON(`{"subscales":[{"name":"Anxiety","items":[]}]}`)

	changes := Compare(prev, next).Activities[0].Changes
	assert.Contains(t, changes, "Generate Report was enabled")
	assert.Contains(t, changes, "Score Total was removed")
	assert.Contains(t, changes, "Section Intro was added")
	assert.Contains(t, changes, "Subscale Anxiety was added")
}

func TestCompareInitialVersion(t *testing.T) {
	c := Compare(nil, snapshot("1.0.0", false, twoOptions))
	assert.Equal(t, []string{"Applet Mood study was added"}, c.Changes)
	require.Len(t, c.Activities, 1)
	assert.Equal(t, "Activity Daily was added", c.Activities[0].Name)
	assert.Equal(t, "Item feeling was added", c.Activities[0].Items[0].Name)
}

func TestCompareFlowActivities(t *testing.T) {
	prev := snapshot("1.0.0", false, twoOptions)
	next := snapshot("1.0.1", false, twoOptions)
	prev.Flows = []entity.FlowHistory{{ID: "f1", FlowAttrs: entity.FlowAttrs{Name: "Morning"}}}
	next.Flows = []entity.FlowHistory{{
		ID:        "f1",
		FlowAttrs: entity.FlowAttrs{Name: "Morning", IsSingleReport: true},
		Items:     []entity.FlowItemHistory{{ActivityID: entity.IDVersion("act1", "1.0.1")}},
	}}
	c := Compare(prev, next)
	require.Len(t, c.ActivityFlows, 1)
	assert.Equal(t, []string{
		"Combine Reports into a Single File was enabled",
		"Activities in Flow were updated to: Daily",
	}, c.ActivityFlows[0].Changes)
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Remove Back Button", humanize("remove_back_button"))
	assert.Equal(t, "Additional Response Option Foo", humanize("additional_response_option.foo"))
}
