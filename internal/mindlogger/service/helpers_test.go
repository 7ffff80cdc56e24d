package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/apperr"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/schema"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/testutil"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/shared/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var frozen = time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC)

// encryption returns applet encryption settings owned by the given key.
func encryption(ownerPriv []byte) *entity.Encryption {
	params := crypto.DefaultParams()
	prime, base := params.Encode()
	return &entity.Encryption{
		PublicKey: crypto.FormatByteList(crypto.PublicKey(ownerPriv, params)),
		Prime:     prime,
		Base:      base,
	}
}

func moodApplet(enc *entity.Encryption) *service.AppletRequest {
	return &service.AppletRequest{
		DisplayName: "Mood study",
		Encryption:  enc,
		Activities: []service.ActivityRequest{{
			Key:          "daily",
			Name:         "Daily",
			IsReviewable: false,
			Items: []service.ItemRequest{
				{Name: "feeling", ResponseType: "text"},
				{Name: "notes", ResponseType: "paragraphText"},
			},
		}},
	}
}

// resubmit turns a stored applet back into an update payload that keeps
// every identity and every versioned field.
func resubmit(full *service.AppletFull) *service.AppletRequest {
	req := &service.AppletRequest{
		DisplayName:         full.DisplayName,
		Description:         localized(full.Description),
		About:               localized(full.About),
		Image:               full.Image,
		WatermarkURL:        full.WatermarkURL,
		ThemeID:             full.ThemeID,
		ReportServerIP:      full.ReportServerIP,
		ReportPublicKey:     full.ReportPublicKey,
		ReportRecipients:    full.ReportRecipients,
		ReportIncludeUserID: full.ReportIncludeUserID,
		ReportIncludeCaseID: full.ReportIncludeCaseID,
		ReportEmailBody:     full.ReportEmailBody,
		StreamEnabled:       full.StreamEnabled,
		RetentionPeriod:     full.RetentionPeriod,
		RetentionType:       full.RetentionType,
	}
	if full.Encryption.IsSet() {
		enc := full.Encryption
		req.Encryption = &enc
	}
	for _, a := range full.Activities {
		id := a.ID
		ar := service.ActivityRequest{
			ID:                     &id,
			Key:                    a.ID,
			Name:                   a.Name,
			Description:            localized(a.Description),
			Splash:                 a.Splash,
			Image:                  a.Image,
			ShowAllAtOnce:          a.ShowAllAtOnce,
			IsSkippable:            a.IsSkippable,
			IsReviewable:           a.IsReviewable,
			IsHidden:               a.IsHidden,
			ResponseIsEditable:     a.ResponseIsEditable,
			ScoresAndReports:       json.RawMessage(a.ScoresAndReports),
			SubscaleSetting:        json.RawMessage(a.SubscaleSetting),
			ReportIncludedItemName: a.ReportIncludedItemName,
			PerformanceTaskType:    a.PerformanceTaskType,
		}
		for _, it := range a.Items {
			itemID := it.ID
			ar.Items = append(ar.Items, service.ItemRequest{
				ID:               &itemID,
				Name:             it.Name,
				Question:         localized(it.Question),
				ResponseType:     it.ResponseType,
				ResponseValues:   json.RawMessage(it.ResponseValues),
				Config:           json.RawMessage(it.Config),
				ConditionalLogic: json.RawMessage(it.ConditionalLogic),
				AllowEdit:        it.AllowEdit,
				IsHidden:         it.IsHidden,
			})
		}
		req.Activities = append(req.Activities, ar)
	}
	for _, f := range full.ActivityFlows {
		id := f.ID
		fr := service.FlowRequest{
			ID:                         &id,
			Key:                        f.ID,
			Name:                       f.Name,
			Description:                localized(f.Description),
			IsSingleReport:             f.IsSingleReport,
			HideBadge:                  f.HideBadge,
			IsHidden:                   f.IsHidden,
			ReportIncludedActivityName: f.ReportIncludedActivityName,
			ReportIncludedItemName:     f.ReportIncludedItemName,
		}
		for _, it := range f.Items {
			itemID := it.ID
			fr.Items = append(fr.Items, service.FlowItemRequest{ID: &itemID, ActivityKey: it.ActivityID})
		}
		req.ActivityFlows = append(req.ActivityFlows, fr)
	}
	return req
}

func localized(raw datatypes.JSON) schema.LocalizedText {
	if len(raw) == 0 {
		return nil
	}
	var t schema.LocalizedText
	if err := json.Unmarshal(raw, &t); err != nil {
		panic(err)
	}
	return t
}

type fixture struct {
	env    *testutil.TestEnv
	owner  *entity.User
	applet *service.AppletFull
}

// cryptoKey is the private key of a seeded user.
func cryptoKey(u *entity.User) []byte {
	return crypto.PrivateKey(u.ID, u.Email, "password")
}

func newFixture(t *testing.T) *fixture {
	env := testutil.NewEnv(t, frozen)
	owner := env.SeedUser("owner")
	applet, err := env.Services.Applet.Create(context.Background(), owner.ID, moodApplet(encryption(cryptoKey(owner))))
	require.NoError(t, err)
	return &fixture{env: env, owner: owner, applet: applet}
}

func (f *fixture) activityID() string { return f.applet.Activities[0].ID }

func (f *fixture) grant(t *testing.T, user *entity.User, role string, subjects ...string) {
	t.Helper()
	_, err := service.AddRole(context.Background(), f.env.Repos, service.Grant{
		AppletID: f.applet.ID,
		UserID:   user.ID,
		Role:     role,
		Subjects: subjects,
	})
	require.NoError(t, err)
}

func (f *fixture) subjectOf(t *testing.T, user *entity.User) string {
	t.Helper()
	s, err := f.env.Repos.Subject.FindByUserAndApplet(context.Background(), user.ID, f.applet.ID)
	require.NoError(t, err)
	return s.ID
}

// sealFor encrypts plain the way the app does for a respondent whose
// password is "password".
func (f *fixture) sealFor(t *testing.T, user *entity.User, password, plain string) (string, string) {
	t.Helper()
	params, err := crypto.ParseParams(f.applet.Encryption.Prime, f.applet.Encryption.Base)
	require.NoError(t, err)
	appletPub, err := crypto.ParseByteList(f.applet.Encryption.PublicKey)
	require.NoError(t, err)
	priv := crypto.PrivateKey(user.ID, user.Email, password)
	key, err := crypto.SharedKey(priv, appletPub, params)
	require.NoError(t, err)
	payload, err := crypto.Encrypt(key, plain)
	require.NoError(t, err)
	return payload, crypto.FormatByteList(crypto.PublicKey(priv, params))
}

func (f *fixture) openFor(t *testing.T, user *entity.User, password, payload string) string {
	t.Helper()
	params, err := crypto.ParseParams(f.applet.Encryption.Prime, f.applet.Encryption.Base)
	require.NoError(t, err)
	appletPub, err := crypto.ParseByteList(f.applet.Encryption.PublicKey)
	require.NoError(t, err)
	key, err := crypto.SharedKey(crypto.PrivateKey(user.ID, user.Email, password), appletPub, params)
	require.NoError(t, err)
	plain, err := crypto.Decrypt(key, payload)
	require.NoError(t, err)
	return plain
}

func (f *fixture) answerRequest(t *testing.T, user *entity.User, plain string) *service.AnswerRequest {
	payload, pub := f.sealFor(t, user, "password", plain)
	start := frozen.Add(-5 * time.Minute).UnixMilli()
	return &service.AnswerRequest{
		SubmitID:   uuid.New().String(),
		AppletID:   f.applet.ID,
		Version:    f.applet.Version,
		ActivityID: f.activityID(),
		Answer: service.ItemAnswerRequest{
			Answer:        payload,
			Events:        payload,
			ItemIDs:       []string{f.applet.Activities[0].Items[0].ID, f.applet.Activities[0].Items[1].ID},
			UserPublicKey: pub,
			StartTime:     start,
			EndTime:       frozen.UnixMilli(),
		},
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok, "expected a domain error, got %v", err)
	assert.Equal(t, code, e.Code)
}
