package skillrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *BleveRepository {
	t.Helper()
	r, err := NewBleveRepository("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestUpsertFromMetadata_CreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	res, err := r.UpsertFromMetadata(ctx, Metadata{ContentSHA256: "sha-1", SkillID: "jest-helper", Name: "jest-helper"})
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)

	res2, err := r.UpsertFromMetadata(ctx, Metadata{ContentSHA256: "sha-2", SkillID: "jest-helper", Name: "jest-helper v2"})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res2.Action)
}

func TestUpsertFromMetadata_IdempotentOnContentHash(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	md := Metadata{ContentSHA256: "same-sha", SkillID: "skill-a", Name: "skill-a"}
	first, err := r.UpsertFromMetadata(ctx, md)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, first.Action)

	second, err := r.UpsertFromMetadata(ctx, md)
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, second.Action)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetByContentHash_ReturnsStoredSkill(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.UpsertFromMetadata(ctx, Metadata{ContentSHA256: "sha-x", SkillID: "skill-x", Name: "skill-x"})
	require.NoError(t, err)

	skill, err := r.GetByContentHash(ctx, "sha-x")
	require.NoError(t, err)
	require.NotNil(t, skill)
	assert.Equal(t, "skill-x", skill.ID)
}

func TestGetByContentHash_UnknownHashReturnsNil(t *testing.T) {
	r := newTestRepo(t)
	skill, err := r.GetByContentHash(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, skill)
}
