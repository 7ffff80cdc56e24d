package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestSubmitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)

	req := f.answerRequest(t, resp, `{"value":"fine"}`)
	first, err := f.env.Services.Answer.Submit(ctx, resp.ID, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, entity.IDVersion(f.applet.ID, "1.0.0"), first.Answer.AppletHistoryID)
	require.NotNil(t, first.Answer.TargetSubjectID)
	assert.Equal(t, f.subjectOf(t, resp), *first.Answer.TargetSubjectID)

	again, err := f.env.Services.Answer.Submit(ctx, resp.ID, req)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Answer.ID, again.Answer.ID)

	page, err := f.env.Services.Answer.Review(ctx, f.owner.ID, f.applet.ID, service.ReviewFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	require.Len(t, page.Items[0].Items, 1)
	assert.Equal(t, req.Answer.ItemIDs, []string(page.Items[0].Items[0].ItemIDs))
	require.NotNil(t, page.Items[0].Activity)
	assert.Equal(t, "Daily", page.Items[0].Activity.Name)
	assert.Equal(t, `{"value":"fine"}`, f.openFor(t, resp, "password", page.Items[0].Items[0].Answer))
}

func TestSubmitSameIDByAnotherRespondent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.env.SeedUser("alice")
	b := f.env.SeedUser("bob")
	f.grant(t, a, entity.RoleRespondent)
	f.grant(t, b, entity.RoleRespondent)

	req := f.answerRequest(t, a, "{}")
	_, err := f.env.Services.Answer.Submit(ctx, a.ID, req)
	require.NoError(t, err)

	_, err = f.env.Services.Answer.Submit(ctx, b.ID, req)
	assertCode(t, err, "DUPLICATE_SUBMISSION")
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)
	stranger := f.env.SeedUser("stranger")

	req := f.answerRequest(t, resp, "{}")
	req.Version = "2.0.0"
	_, err := f.env.Services.Answer.Submit(ctx, resp.ID, req)
	assertCode(t, err, "APPLET_VERSION_NOT_FOUND")

	req = f.answerRequest(t, resp, "{}")
	req.ActivityID = "missing"
	_, err = f.env.Services.Answer.Submit(ctx, resp.ID, req)
	assertCode(t, err, "ACTIVITY_NOT_FOUND")

	_, err = f.env.Services.Answer.Submit(ctx, stranger.ID, f.answerRequest(t, stranger, "{}"))
	assertCode(t, err, "ACCESS_DENIED")

	req = f.answerRequest(t, resp, "{}")
	bad := "31/12/2024"
	req.Answer.LocalEndDate = &bad
	_, err = f.env.Services.Answer.Submit(ctx, resp.ID, req)
	assertCode(t, err, "INVALID_LOCAL_END_DATE")
}

func TestSubmitAboutAnotherSubjectNeedsRelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.env.SeedUser("parent")
	f.grant(t, parent, entity.RoleRespondent)

	child, err := f.env.Services.Subject.Create(ctx, f.owner.ID, &service.SubjectRequest{
		AppletID:     f.applet.ID,
		SecretUserID: "child-1",
		FirstName:    "Kid",
		LastName:     "Test",
	})
	require.NoError(t, err)

	req := f.answerRequest(t, parent, "{}")
	req.TargetSubjectID = &child.ID
	_, err = f.env.Services.Answer.Submit(ctx, parent.ID, req)
	assertCode(t, err, "SUBJECT_RELATION_REQUIRED")

	expires := frozen.Add(time.Hour)
	_, err = f.env.Services.Subject.CreateRelation(ctx, f.owner.ID, f.subjectOf(t, parent), child.ID,
		&service.RelationRequest{Relation: entity.RelationTakeNow, ExpiresAt: &expires})
	require.NoError(t, err)

	res, err := f.env.Services.Answer.Submit(ctx, parent.ID, req)
	require.NoError(t, err)
	assert.Equal(t, child.ID, *res.Answer.TargetSubjectID)
	assert.Equal(t, f.subjectOf(t, parent), *res.Answer.SourceSubjectID)

	f.env.Now = frozen.Add(2 * time.Hour)
	req = f.answerRequest(t, parent, "{}")
	req.TargetSubjectID = &child.ID
	_, err = f.env.Services.Answer.Submit(ctx, parent.ID, req)
	assertCode(t, err, "SUBJECT_RELATION_EXPIRED")
}

func TestReviewerSeesOnlyAssignedSubjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r1 := f.env.SeedUser("r1")
	r2 := f.env.SeedUser("r2")
	f.grant(t, r1, entity.RoleRespondent)
	f.grant(t, r2, entity.RoleRespondent)
	s1, s2 := f.subjectOf(t, r1), f.subjectOf(t, r2)

	a1, err := f.env.Services.Answer.Submit(ctx, r1.ID, f.answerRequest(t, r1, "{}"))
	require.NoError(t, err)
	a2, err := f.env.Services.Answer.Submit(ctx, r2.ID, f.answerRequest(t, r2, "{}"))
	require.NoError(t, err)

	reviewer := f.env.SeedUser("reviewer")
	f.grant(t, reviewer, entity.RoleReviewer, s1)

	page, err := f.env.Services.Answer.Review(ctx, reviewer.ID, f.applet.ID, service.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, a1.Answer.ID, page.Items[0].ID)

	// a subject outside the scope is silently omitted
	page, err = f.env.Services.Answer.Review(ctx, reviewer.ID, f.applet.ID, service.ReviewFilter{TargetSubjectID: s2})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int64(0), page.Total)

	_, err = f.env.Services.Answer.Assessment(ctx, reviewer.ID, f.applet.ID, a2.Answer.ID)
	assertCode(t, err, "REVIEWER_SUBJECT_DENIED")

	page, err = f.env.Services.Answer.Review(ctx, f.owner.ID, f.applet.ID, service.ReviewFilter{ActivityID: f.activityID()})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	_, err = f.env.Services.Answer.Review(ctx, r1.ID, f.applet.ID, service.ReviewFilter{})
	assertCode(t, err, "ACCESS_DENIED")
}

func TestAssessmentCopiesActivityIntoAnswerVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)

	answered, err := f.env.Services.Answer.Submit(ctx, resp.ID, f.answerRequest(t, resp, "{}"))
	require.NoError(t, err)

	req := resubmit(f.applet)
	req.Activities = append(req.Activities, service.ActivityRequest{
		Key:          "assessment",
		Name:         "Clinician review",
		IsReviewable: true,
		Items:        []service.ItemRequest{{Name: "score", ResponseType: "text"}},
	})
	updated, err := f.env.Services.Applet.Update(ctx, f.owner.ID, f.applet.ID, req)
	require.NoError(t, err)
	require.Equal(t, "1.0.1", updated.Version)
	assessmentID := updated.Activities[1].ID

	payload, pub := f.sealFor(t, f.owner, "password", `{"score":3}`)
	res, err := f.env.Services.Answer.Submit(ctx, f.owner.ID, &service.AnswerRequest{
		SubmitID:   "review-1",
		AppletID:   f.applet.ID,
		Version:    "1.0.1",
		ActivityID: assessmentID,
		Answer: service.ItemAnswerRequest{
			Answer:        payload,
			UserPublicKey: pub,
			ItemIDs:       []string{updated.Activities[1].Items[0].ID},
			StartTime:     frozen.UnixMilli(),
			EndTime:       frozen.UnixMilli(),
		},
		Meta: &service.AnswerMeta{Reviewing: &service.ReviewingMeta{ResponseID: answered.Answer.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, answered.Answer.ID, res.Answer.ID)

	view, err := f.env.Services.Answer.Assessment(ctx, f.owner.ID, f.applet.ID, answered.Answer.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Assessment)
	assert.True(t, view.Assessment.IsAssessment)
	require.NotNil(t, view.Assessment.AssessmentActivityID)
	assert.Equal(t, entity.IDVersion(assessmentID, "1.0.0"), *view.Assessment.AssessmentActivityID)
	require.NotNil(t, view.Activity)
	assert.Equal(t, "Clinician review", view.Activity.Name)

	list, err := f.env.Services.Answer.Assessments(ctx, f.owner.ID, f.applet.ID, service.ReviewFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)

	// the respondent's own item is still the only non-assessment item
	page, err := f.env.Services.Answer.Review(ctx, f.owner.ID, f.applet.ID, service.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Len(t, page.Items[0].Items, 1)
}

func TestSubmitAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)

	sub := &push.Subscriber{ID: "owner-conn", UserID: f.owner.ID, Events: make(chan push.Event, 4)}
	f.env.Hub.Register(sub)
	defer f.env.Hub.Unregister(sub.ID)

	req := f.answerRequest(t, resp, "{}")
	req.Alerts = []service.AlertRequest{{ActivityItemID: f.applet.Activities[0].Items[0].ID, Message: "Low mood reported"}}
	_, err := f.env.Services.Answer.Submit(ctx, resp.ID, req)
	require.NoError(t, err)

	select {
	case ev := <-sub.Events:
		assert.Equal(t, push.KindAlert, ev.EventType)
	case <-time.After(time.Second):
		t.Fatal("no alert pushed")
	}

	alerts, err := f.env.Services.Answer.Alerts(ctx, f.owner.ID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), alerts.Total)
	assert.Equal(t, "Low mood reported", alerts.Items[0].AlertMessage)
	assert.False(t, alerts.Items[0].IsWatched)

	require.NoError(t, f.env.Services.Answer.WatchAlert(ctx, f.owner.ID, alerts.Items[0].ID))
	assertCode(t, f.env.Services.Answer.WatchAlert(ctx, resp.ID, alerts.Items[0].ID), "ALERT_NOT_FOUND")

	none, err := f.env.Services.Answer.Alerts(ctx, resp.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, none.Items)
}

func TestAnswerNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)
	manager := f.env.SeedUser("manager")
	f.grant(t, manager, entity.RoleManager)

	res, err := f.env.Services.Answer.Submit(ctx, resp.ID, f.answerRequest(t, resp, "{}"))
	require.NoError(t, err)
	answerID, activityID := res.Answer.ID, f.activityID()
	svc := f.env.Services.Answer

	note, err := svc.CreateNote(ctx, f.owner.ID, f.applet.ID, answerID, activityID, &service.NoteRequest{Note: "follow up next week"})
	require.NoError(t, err)
	assert.Equal(t, "follow up next week", note.Note)

	var stored entity.AnswerNote
	require.NoError(t, f.env.DB.First(&stored, "id = ?", note.ID).Error)
	assert.NotEqual(t, "follow up next week", stored.Note, "note text is sealed at rest")

	notes, err := svc.ListNotes(ctx, manager.ID, f.applet.ID, answerID, activityID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "follow up next week", notes[0].Note)

	_, err = svc.UpdateNote(ctx, manager.ID, f.applet.ID, answerID, note.ID, &service.NoteRequest{Note: "x"})
	assertCode(t, err, "NOTE_AUTHOR_REQUIRED")

	updated, err := svc.UpdateNote(ctx, f.owner.ID, f.applet.ID, answerID, note.ID, &service.NoteRequest{Note: "done"})
	require.NoError(t, err)
	assert.Equal(t, "done", updated.Note)

	require.NoError(t, svc.DeleteNote(ctx, f.owner.ID, f.applet.ID, answerID, note.ID))
	_, err = svc.UpdateNote(ctx, f.owner.ID, f.applet.ID, answerID, note.ID, &service.NoteRequest{Note: "again"})
	assertCode(t, err, "NOTE_NOT_FOUND")
}

func TestSubmitStoresLocalEndTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)

	req := f.answerRequest(t, resp, "{}")
	date, clock, offset := "2024-03-17", "08:55:00", -300
	req.Answer.LocalEndDate = &date
	req.Answer.LocalEndTime = &clock
	req.Answer.TZOffset = &offset

	res, err := f.env.Services.Answer.Submit(ctx, resp.ID, req)
	require.NoError(t, err)
	item := res.Answer.Items[0]
	require.NotNil(t, item.LocalEndDate)
	assert.Equal(t, "2024-03-17", time.Time(*item.LocalEndDate).Format("2006-01-02"))
	require.NotNil(t, item.LocalEndTime)
	assert.Equal(t, datatypes.NewTime(8, 55, 0, 0), *item.LocalEndTime)
	assert.Equal(t, -300, *item.TZOffset)
}
