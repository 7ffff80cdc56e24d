package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectSecretIDIsUniquePerApplet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjects := f.env.Services.Subject

	first, err := subjects.Create(ctx, f.owner.ID, &service.SubjectRequest{AppletID: f.applet.ID, SecretUserID: "P-001"})
	require.NoError(t, err)
	assert.Equal(t, "en", first.Language)

	_, err = subjects.Create(ctx, f.owner.ID, &service.SubjectRequest{AppletID: f.applet.ID, SecretUserID: "P-001"})
	assertCode(t, err, "DUPLICATE_SECRET_USER_ID")

	// renaming to its own secret id is not a clash
	_, err = subjects.Update(ctx, f.owner.ID, first.ID, &service.SubjectRequest{SecretUserID: "P-001", Nickname: strp("Pat")})
	require.NoError(t, err)

	tag := "stranger"
	_, err = subjects.Create(ctx, f.owner.ID, &service.SubjectRequest{AppletID: f.applet.ID, SecretUserID: "P-002", Tag: &tag})
	assertCode(t, err, "INVALID_SUBJECT_TAG")

	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)
	_, err = subjects.Create(ctx, resp.ID, &service.SubjectRequest{AppletID: f.applet.ID, SecretUserID: "P-003"})
	assertCode(t, err, "ACCESS_DENIED")
}

func TestSubjectGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.env.SeedUser("alice")
	b := f.env.SeedUser("bob")
	f.grant(t, a, entity.RoleRespondent)
	f.grant(t, b, entity.RoleRespondent)
	reviewer := f.env.SeedUser("reviewer")
	f.grant(t, reviewer, entity.RoleReviewer, f.subjectOf(t, a))

	own, err := f.env.Services.Subject.Get(ctx, a.ID, f.subjectOf(t, a))
	require.NoError(t, err)
	assert.True(t, own.HasAccount)
	assert.True(t, own.IsRespondent)

	_, err = f.env.Services.Subject.Get(ctx, reviewer.ID, f.subjectOf(t, a))
	require.NoError(t, err)
	_, err = f.env.Services.Subject.Get(ctx, reviewer.ID, f.subjectOf(t, b))
	assertCode(t, err, "REVIEWER_SUBJECT_DENIED")
	_, err = f.env.Services.Subject.Get(ctx, a.ID, f.subjectOf(t, b))
	assertCode(t, err, "ACCESS_DENIED")
}

func TestSubjectRelations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subjects := f.env.Services.Subject
	parent := f.env.SeedUser("parent")
	f.grant(t, parent, entity.RoleRespondent)
	source := f.subjectOf(t, parent)
	child, err := subjects.Create(ctx, f.owner.ID, &service.SubjectRequest{AppletID: f.applet.ID, SecretUserID: "kid"})
	require.NoError(t, err)

	_, err = subjects.CreateRelation(ctx, f.owner.ID, source, child.ID, &service.RelationRequest{Relation: "cousin"})
	assertCode(t, err, "INVALID_RELATION")

	_, err = subjects.CreateRelation(ctx, f.owner.ID, source, source, &service.RelationRequest{Relation: entity.RelationParent})
	assertCode(t, err, "INVALID_RELATION")

	past := frozen.Add(-time.Minute)
	_, err = subjects.CreateRelation(ctx, f.owner.ID, source, child.ID, &service.RelationRequest{Relation: entity.RelationTakeNow, ExpiresAt: &past})
	assertCode(t, err, "INVALID_RELATION_EXPIRY")

	rel, err := subjects.CreateRelation(ctx, f.owner.ID, source, child.ID, &service.RelationRequest{Relation: entity.RelationParent})
	require.NoError(t, err)
	assert.False(t, rel.Expired(frozen.AddDate(10, 0, 0)), "parent relations never expire")

	_, err = subjects.CreateRelation(ctx, parent.ID, source, child.ID, &service.RelationRequest{Relation: entity.RelationParent})
	assertCode(t, err, "ACCESS_DENIED")

	require.NoError(t, subjects.DeleteRelation(ctx, f.owner.ID, source, child.ID))
	assertCode(t, subjects.DeleteRelation(ctx, f.owner.ID, source, child.ID), "RELATION_NOT_FOUND")
}

func TestSubjectDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)
	subjectID := f.subjectOf(t, resp)

	_, err := f.env.Services.Schedule.CreateIndividual(ctx, f.owner.ID, f.applet.ID, resp.ID)
	require.NoError(t, err)
	_, err = f.env.Services.Answer.Submit(ctx, resp.ID, f.answerRequest(t, resp, "{}"))
	require.NoError(t, err)

	assertCode(t, f.env.Services.Subject.Delete(ctx, f.owner.ID, f.subjectOf(t, f.owner), false), "CHANGE_OWN_ACCESS")

	require.NoError(t, f.env.Services.Subject.Delete(ctx, f.owner.ID, subjectID, true))

	_, err = f.env.Services.Access.Require(ctx, resp.ID, f.applet.ID, entity.RoleRespondent)
	assertCode(t, err, "ACCESS_DENIED")

	mine, err := f.env.Services.Schedule.List(ctx, f.owner.ID, f.applet.ID, &resp.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	page, err := f.env.Services.Answer.Review(ctx, f.owner.ID, f.applet.ID, service.ReviewFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = f.env.Services.Subject.Get(ctx, f.owner.ID, subjectID)
	assertCode(t, err, "SUBJECT_NOT_FOUND")
}
