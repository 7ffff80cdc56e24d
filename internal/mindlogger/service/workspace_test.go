package service_test

import (
	"context"
	"testing"

	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/entity"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/service"
	"github.com/ChildMindInstitute/mindlogger-backend-refactor-sub001/internal/mindlogger/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswersRouteToArbitraryServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.env.Services.Workspace
	resp := f.env.SeedUser("resp")
	f.grant(t, resp, entity.RoleRespondent)

	// warm the cache with the default route
	db, err := ws.AnswerDB(ctx, f.applet.ID)
	require.NoError(t, err)
	assert.Same(t, f.env.DB, db)
	assert.True(t, f.env.Mini.Exists("arbitrary:applet:"+f.applet.ID))

	uri := testutil.SqliteURI(t, "workspace.db")
	saved, err := ws.SetArbitraryServer(ctx, f.owner.ID, f.owner.ID, &service.ArbitraryServerRequest{
		DatabaseURI:      uri,
		StorageType:      "aws",
		StorageBucket:    "answers",
		StorageSecretKey: "s3-secret",
	})
	require.NoError(t, err)
	assert.True(t, saved.UseArbitrary)
	assert.NotEqual(t, uri, saved.DatabaseURI, "uri is sealed at rest")
	assert.False(t, f.env.Mini.Exists("arbitrary:applet:"+f.applet.ID), "cached route dropped")

	info, err := ws.ArbitraryInfo(ctx, f.applet.ID)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, uri, info.DatabaseURI)
	assert.Equal(t, "s3-secret", info.StorageSecretKey)

	cached, err := f.env.Mini.Get("arbitrary:applet:" + f.applet.ID)
	require.NoError(t, err)
	assert.NotContains(t, cached, "workspace.db")
	assert.NotContains(t, cached, "s3-secret")

	res, err := f.env.Services.Answer.Submit(ctx, resp.ID, f.answerRequest(t, resp, "{}"))
	require.NoError(t, err)

	arb, err := f.env.Router.Get(ctx, uri)
	require.NoError(t, err)
	var inArb, inDefault int64
	require.NoError(t, arb.Model(&entity.Answer{}).Where("id = ?", res.Answer.ID).Count(&inArb).Error)
	require.NoError(t, f.env.DB.Model(&entity.Answer{}).Where("id = ?", res.Answer.ID).Count(&inDefault).Error)
	assert.Equal(t, int64(1), inArb)
	assert.Equal(t, int64(0), inDefault)

	page, err := f.env.Services.Answer.Review(ctx, f.owner.ID, f.applet.ID, service.ReviewFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, res.Answer.ID, page.Items[0].ID)
}

func TestSetArbitraryServerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.env.Services.Workspace
	other := f.env.SeedUser("other")

	_, err := ws.SetArbitraryServer(ctx, other.ID, f.owner.ID, &service.ArbitraryServerRequest{DatabaseURI: testutil.SqliteURI(t, "x.db")})
	assertCode(t, err, "WORKSPACE_OWNER_REQUIRED")

	_, err = ws.SetArbitraryServer(ctx, f.owner.ID, f.owner.ID, &service.ArbitraryServerRequest{DatabaseURI: "oracle://db"})
	assertCode(t, err, "INVALID_DATABASE_URI")

	settings, err := ws.Workspace(ctx, f.owner.ID, f.owner.ID)
	require.NoError(t, err)
	assert.False(t, settings.UseArbitrary)
}

func TestArbitrariesMapGroupsByDatabase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.env.Services.Workspace

	other := f.env.SeedUser("other")
	otherPriv := cryptoKey(other)
	second, err := f.env.Services.Applet.Create(ctx, other.ID, moodApplet(encryption(otherPriv)))
	require.NoError(t, err)

	uri := testutil.SqliteURI(t, "other.db")
	_, err = ws.SetArbitraryServer(ctx, other.ID, other.ID, &service.ArbitraryServerRequest{DatabaseURI: uri})
	require.NoError(t, err)

	groups, err := ws.ArbitrariesMap(ctx, []string{f.applet.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{f.applet.ID}, groups[""])
	assert.Equal(t, []string{second.ID}, groups[uri])

	dbs, err := ws.AnswerDBs(ctx, []string{f.applet.ID, second.ID})
	require.NoError(t, err)
	assert.Len(t, dbs, 2)
}
