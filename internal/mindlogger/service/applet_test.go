package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/schema"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextVersion(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"", "1.0.0", false},
		{"1.0.0", "1.0.1", false},
		{"2.3.9", "2.3.10", false},
		{"1.0", "", true},
		{"1.x.0", "", true},
	}
	for _, tt := range tests {
		got, err := service.NextVersion(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestAppletCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "1.0.0", f.applet.Version)
	require.Len(t, f.applet.Activities, 1)
	require.Len(t, f.applet.Activities[0].Items, 2)

	roles, err := f.env.Services.Access.Roles(ctx, f.owner.ID, f.applet.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{entity.RoleOwner, entity.RoleRespondent}, roles)

	events, err := f.env.Services.Schedule.List(ctx, f.owner.ID, f.applet.ID, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entity.PeriodicityAlways, events[0].Periodicity.Type)
	assert.Equal(t, f.activityID(), events[0].EntityID())

	h, err := f.env.Services.Applet.GetHistory(ctx, f.owner.ID, f.applet.ID, "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "Mood study", h.DisplayName)
	require.Len(t, h.Activities, 1)
	assert.Equal(t, entity.IDVersion(f.activityID(), "1.0.0"), h.Activities[0].IDVersion)
}

func TestAppletCreateRejectsDuplicateKeys(t *testing.T) {
	f := newFixture(t)
	req := moodApplet(nil)
	req.Activities = append(req.Activities, req.Activities[0])
	_, err := f.env.Services.Applet.Create(context.Background(), f.owner.ID, req)
	assertCode(t, err, "DUPLICATE_ACTIVITY_KEY")
}

func TestAppletUpdateVersioning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apps := f.env.Services.Applet

	same, err := apps.Update(ctx, f.owner.ID, f.applet.ID, resubmit(f.applet))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", same.Version, "identical payload keeps the version")

	req := resubmit(f.applet)
	req.Activities[0].Items[0].IsHidden = true
	updated, err := apps.Update(ctx, f.owner.ID, f.applet.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", updated.Version)
	assert.Equal(t, f.activityID(), updated.Activities[0].ID, "activity keeps its identity")

	versions, err := apps.Versions(ctx, f.owner.ID, f.applet.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.0.0", versions[0].Version)
	assert.Equal(t, "1.0.1", versions[1].Version)

	change, err := apps.Changes(ctx, f.owner.ID, f.applet.ID, "1.0.1")
	require.NoError(t, err)
	require.Len(t, change.Activities, 1)
	require.Len(t, change.Activities[0].Items, 1)
	assert.Equal(t, []string{"Item Visibility was disabled"}, change.Activities[0].Items[0].Changes)

	old, err := apps.GetHistory(ctx, f.owner.ID, f.applet.ID, "1.0.0")
	require.NoError(t, err)
	assert.False(t, old.Activities[0].Items[0].IsHidden, "history is immutable")

	_, err = apps.Changes(ctx, f.owner.ID, f.applet.ID, "9.9.9")
	assertCode(t, err, "APPLET_VERSION_NOT_FOUND")
}

func scoredApplet() *service.AppletRequest {
	return &service.AppletRequest{
		DisplayName: "Screening",
		Description: schema.LocalizedText{"en": "Weekly screening", "fr": "Dépistage"},
		Activities: []service.ActivityRequest{{
			Key:  "screen",
			Name: "Screen",
			ScoresAndReports: json.RawMessage(`{"generate_report":true,"show_score_summary":true,"reports":[
				{"type":"score","id":"score_1","name":"Total","calculation_type":"sum","items_score":["mood"],"items_print":["why"],
				 "conditional_logic":[{"id":"c1","name":"High","match":"any","conditions":[{"item_name":"score_1","type":"GREATER_THAN","payload":{"value":0}}]}]},
				{"type":"section","name":"Follow up","conditional_logic":{"match":"all","conditions":[{"item_name":"mood","type":"EQUAL_TO_OPTION","payload":{"option_value":"1"}}]}}]}`),
			SubscaleSetting: json.RawMessage(`{"subscales":[{"name":"Mood","scoring":"sum","items":[{"name":"mood","type":"item"}]}]}`),
			Items: []service.ItemRequest{
				{
					Name:           "mood",
					Question:       schema.LocalizedText{"en": "Feeling low?"},
					ResponseType:   "singleSelect",
					Config:         json.RawMessage(`{"add_scores":true}`),
					ResponseValues: json.RawMessage(`{"options":[{"id":"o1","text":"Yes","value":0,"score":1},{"id":"o2","text":"No","value":1,"score":0}]}`),
				},
				{
					Name:             "why",
					ResponseType:     "text",
					Config:           json.RawMessage(`{"max_response_length":200}`),
					ConditionalLogic: json.RawMessage(`{"match":"any","conditions":[{"item_name":"mood","type":"EQUAL_TO_OPTION","payload":{"option_value":"0"}}]}`),
				},
			},
		}},
	}
}

func TestAppletRoundTripKeepsLogicAndScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apps := f.env.Services.Applet

	created, err := apps.Create(ctx, f.owner.ID, scoredApplet())
	require.NoError(t, err)

	read, err := apps.GetFull(ctx, f.owner.ID, created.ID)
	require.NoError(t, err)
	require.Len(t, read.Activities, 1)
	act := read.Activities[0]
	assert.JSONEq(t, `{"subscales":[{"name":"Mood","scoring":"sum","items":[{"name":"mood","type":"item"}]}]}`, string(act.SubscaleSetting))
	require.Len(t, act.Items, 2)
	assert.JSONEq(t, `{"match":"any","conditions":[{"item_name":"mood","type":"EQUAL_TO_OPTION","payload":{"option_value":"0"}}]}`,
		string(act.Items[1].ConditionalLogic))

	same, err := apps.Update(ctx, f.owner.ID, created.ID, resubmit(read))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", same.Version, "resubmitting what was read is not a change")

	req := resubmit(read)
	req.Activities[0].Items[1].ConditionalLogic = json.RawMessage(`{"match":"all","conditions":[{"item_name":"mood","type":"EQUAL_TO_OPTION","payload":{"option_value":"0"}}]}`)
	changed, err := apps.Update(ctx, f.owner.ID, created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", changed.Version)

	old, err := apps.GetHistory(ctx, f.owner.ID, created.ID, "1.0.0")
	require.NoError(t, err)
	require.Len(t, old.Activities, 1)
	assert.Contains(t, string(old.Activities[0].ScoresAndReports), "score_1")
}

func TestAppletUpdateRequiresEditor(t *testing.T) {
	f := newFixture(t)
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)

	_, err := f.env.Services.Applet.Update(context.Background(), resp.ID, f.applet.ID, resubmit(f.applet))
	assertCode(t, err, "ACCESS_DENIED")
}

func TestAppletUpdateKeepsEncryption(t *testing.T) {
	f := newFixture(t)
	req := resubmit(f.applet)
	other := *req.Encryption
	other.PublicKey = "[1, 2, 3]"
	req.Encryption = &other

	_, err := f.env.Services.Applet.Update(context.Background(), f.owner.ID, f.applet.ID, req)
	assertCode(t, err, "ENCRYPTION_ALREADY_SET")
}

func TestAppletRemovedActivityDropsSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := resubmit(f.applet)
	req.Activities = append(req.Activities, service.ActivityRequest{
		Key:   "weekly",
		Name:  "Weekly",
		Items: []service.ItemRequest{{Name: "sleep", ResponseType: "text"}},
	})
	two, err := f.env.Services.Applet.Update(ctx, f.owner.ID, f.applet.ID, req)
	require.NoError(t, err)
	require.Len(t, two.Activities, 2)

	events, err := f.env.Services.Schedule.List(ctx, f.owner.ID, f.applet.ID, nil)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	back, err := f.env.Services.Applet.Update(ctx, f.owner.ID, f.applet.ID, resubmit(f.applet))
	require.NoError(t, err)
	assert.Equal(t, "1.0.2", back.Version)

	events, err = f.env.Services.Schedule.List(ctx, f.owner.ID, f.applet.ID, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, f.activityID(), events[0].EntityID())
}
