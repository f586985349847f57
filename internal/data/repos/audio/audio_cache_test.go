package audio

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/fastingles-audio/internal/data/repos/testutil"
	types "github.com/yungbote/fastingles-audio/internal/domain"
	"github.com/yungbote/fastingles-audio/internal/modules/audio/keys"
	"github.com/yungbote/fastingles-audio/internal/platform/dbctx"
)

func newRecord(text string) *types.AudioCache {
	size := int64(42)
	return &types.AudioCache{
		ContentIdentity: keys.Hash(text, "en-US"),
		RawText:         text,
		Language:        "en-US",
		Provider:        "gtts",
		StorageKey:      "global/dictionary/r/" + keys.Slugify(text) + ".mp3",
		ByteSize:        &size,
	}
}

func TestAudioCacheRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAudioCacheRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	missing, err := repo.FindByIdentity(dbc, keys.Hash("nothing", "en-US"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	rec := newRecord("run")
	require.NoError(t, repo.Insert(dbc, rec))
	assert.NotEqual(t, "", rec.ID.String())
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := repo.FindByIdentity(dbc, rec.ContentIdentity)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.StorageKey, got.StorageKey)
	assert.Equal(t, int64(0), got.AccessCount)
	require.NotNil(t, got.ByteSize)
	assert.Equal(t, int64(42), *got.ByteSize)

	require.NoError(t, repo.IncrementAccess(dbc, rec.ContentIdentity))
	require.NoError(t, repo.IncrementAccess(dbc, rec.ContentIdentity))
	got, err = repo.FindByIdentity(dbc, rec.ContentIdentity)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.False(t, got.LastAccessedAt.Before(got.CreatedAt))

	shared, err := repo.ListByStorageKey(dbc, rec.StorageKey)
	require.NoError(t, err)
	assert.Len(t, shared, 1)

	require.NoError(t, repo.Delete(dbc, got))
	got, err = repo.FindByIdentity(dbc, rec.ContentIdentity)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAudioCacheRepoInsertDuplicateIdentity(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAudioCacheRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	require.NoError(t, repo.Insert(dbc, newRecord("walk")))
	err := repo.Insert(dbc, newRecord("walk"))
	require.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestAudioCacheRepoDuplicateInsideTransactionKeepsTxUsable(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAudioCacheRepo(db, testutil.Logger(t))
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	require.NoError(t, repo.Insert(dbc, newRecord("jump")))
	require.ErrorIs(t, repo.Insert(dbc, newRecord("jump")), ErrDuplicateIdentity)

	got, err := repo.FindByIdentity(dbc, keys.Hash("jump", "en-US"))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, repo.Insert(dbc, newRecord("swim")))
}

func TestAudioCacheRepoTruncatesRawText(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAudioCacheRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	rec := newRecord(strings.Repeat("á", types.MaxRawTextRunes+20))
	require.NoError(t, repo.Insert(dbc, rec))
	got, err := repo.FindByIdentity(dbc, rec.ContentIdentity)
	require.NoError(t, err)
	assert.Equal(t, types.MaxRawTextRunes, len([]rune(got.RawText)))
}

func TestAudioCacheRepoBlankInputs(t *testing.T) {
	db := testutil.DB(t)
	repo := NewAudioCacheRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	got, err := repo.FindByIdentity(dbc, " ")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, repo.DeleteByIdentity(dbc, ""))
	assert.NoError(t, repo.IncrementAccess(dbc, ""))
	assert.Error(t, repo.Insert(dbc, nil))
}
