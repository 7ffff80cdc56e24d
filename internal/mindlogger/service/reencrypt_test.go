package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/crypto"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changePassword(t *testing.T, f *fixture, user *entity.User, newPassword string) (*entity.Job, *queue.Message) {
	t.Helper()
	ctx := context.Background()
	job, err := f.env.Services.User.ChangePassword(ctx, user.ID, &service.ChangePasswordRequest{
		OldPassword: "password",
		NewPassword: newPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.JobPending, job.Status)

	msg, err := f.env.Queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, service.JobReencryptAnswers, msg.Kind)
	assert.Equal(t, job.ID, msg.JobID)
	assert.NotContains(t, string(msg.Payload), "password", "keys travel sealed")
	return job, msg
}

func TestReencryptAfterPasswordChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)

	_, err := f.env.Services.Answer.Submit(ctx, resp.ID, f.answerRequest(t, resp, `{"value":"calm"}`))
	require.NoError(t, err)

	job, msg := changePassword(t, f, resp, "new-password-1")
	require.NoError(t, f.env.Services.Reencrypt.Handle(ctx, *msg))

	stored, err := f.env.Repos.Job.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobSuccess, stored.Status)
	var details struct {
		Applets   int `json:"applets"`
		Converted int `json:"converted"`
	}
	require.NoError(t, json.Unmarshal(stored.Details, &details))
	assert.Equal(t, 1, details.Applets)
	assert.Equal(t, 1, details.Converted)

	page, err := f.env.Services.Answer.Review(ctx, f.owner.ID, f.applet.ID, service.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	item := page.Items[0].Items[0]
	assert.Equal(t, `{"value":"calm"}`, f.openFor(t, resp, "new-password-1", item.Answer))
	assert.Equal(t, `{"value":"calm"}`, f.openFor(t, resp, "new-password-1", item.Events))

	params, err := crypto.ParseParams(f.applet.Encryption.Prime, f.applet.Encryption.Base)
	require.NoError(t, err)
	newPub := crypto.FormatByteList(crypto.PublicKey(crypto.PrivateKey(resp.ID, resp.Email, "new-password-1"), params))
	assert.Equal(t, newPub, item.UserPublicKey)

	// a redelivered message finds nothing left to convert
	require.NoError(t, f.env.Services.Reencrypt.Handle(ctx, *msg))
	stored, err = f.env.Repos.Job.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(stored.Details, &details))
	assert.Equal(t, 0, details.Converted)
	assert.Equal(t, `{"value":"calm"}`, f.openFor(t, resp, "new-password-1", item.Answer))
}

func TestChangePasswordRejectsWrongOldPassword(t *testing.T) {
	f := newFixture(t)
	resp := f.env.SeedUser("resp")

	_, err := f.env.Services.User.ChangePassword(context.Background(), resp.ID, &service.ChangePasswordRequest{
		OldPassword: "not-it",
		NewPassword: "new-password-1",
	})
	assertCode(t, err, "INVALID_PASSWORD")

	ready, delayed, err := f.env.Queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ready+delayed)
}

func TestReencryptCancelledJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)
	_, err := f.env.Services.Answer.Submit(ctx, resp.ID, f.answerRequest(t, resp, "{}"))
	require.NoError(t, err)

	job, msg := changePassword(t, f, resp, "new-password-1")
	require.NoError(t, f.env.Services.User.CancelJob(ctx, resp.ID, job.ID))
	require.NoError(t, f.env.Services.Reencrypt.Handle(ctx, *msg))

	stored, err := f.env.Repos.Job.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobError, stored.Status)
	assert.Equal(t, "job cancelled", stored.LastError)

	assertCode(t, f.env.Services.User.CancelJob(ctx, resp.ID, job.ID), "JOB_FINISHED")
}

func TestReencryptRejectsTamperedPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")

	job, msg := changePassword(t, f, resp, "new-password-1")
	msg.Payload = json.RawMessage(`{"data":"not-sealed"}`)

	err := f.env.Services.Reencrypt.Handle(ctx, *msg)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))

	stored, err := f.env.Repos.Job.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobError, stored.Status)
}

func TestJobVisibleToCreatorOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.env.SeedUser("resp")

	job, _ := changePassword(t, f, resp, "new-password-1")

	got, err := f.env.Services.User.Job(ctx, resp.ID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, service.JobReencryptAnswers, got.Name)

	_, err = f.env.Services.User.Job(ctx, f.owner.ID, job.ID)
	assertCode(t, err, "JOB_NOT_FOUND")

	jobs, err := f.env.Services.User.Jobs(ctx, resp.ID)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
