package definition

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-engine/pkg/core/dsl"
	"github.com/LENAX/workflow-engine/pkg/storage/sqlite"
)

const validDsl = `{
  "startAt": "a",
  "steps": [
    {"id": "a", "type": "PassStep", "transitions": [{"to": "b", "condition": "vars.ok"}]},
    {"id": "b", "type": "EndStep"}
  ]
}`

func setupService(t *testing.T) *AdminService {
	t.Helper()
	s, err := sqlite.NewStoreFromDSN(filepath.Join(t.TempDir(), "definition.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	builtins := func(stepType string) bool { return stepType == "PassStep" || stepType == "EndStep" }
	return NewAdminService(s, AnyOf(builtins, nil))
}

func TestAdminService_DefinitionLifecycle(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	def, err := svc.CreateDefinition(ctx, " order ", "", "orders")
	require.NoError(t, err)
	assert.Equal(t, "order", def.Code)
	assert.Equal(t, "order", def.Name)

	_, err = svc.CreateDefinition(ctx, "order", "again", "")
	assert.True(t, errors.Is(err, ErrDefinitionExists))
	_, err = svc.CreateDefinition(ctx, "  ", "", "")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	v1, err := svc.CreateVersion(ctx, "order", validDsl, "first")
	require.NoError(t, err)
	v2, err := svc.CreateVersion(ctx, "order", validDsl, "second")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.False(t, v1.IsPublished)

	_, err = svc.CreateVersion(ctx, "order", "{broken", "")
	assert.True(t, errors.Is(err, dsl.ErrParse))
	_, err = svc.CreateVersion(ctx, "missing", validDsl, "")
	assert.True(t, errors.Is(err, ErrDefinitionNotFound))

	published, result, err := svc.PublishVersion(ctx, "order", 2)
	require.NoError(t, err)
	assert.True(t, published.IsPublished)
	assert.NotNil(t, published.PublishedAt)
	assert.Len(t, result.Warnings, 1)

	versions, err := svc.ListVersions(ctx, "order")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.False(t, versions[0].IsPublished)
	assert.True(t, versions[1].IsPublished)

	unpublished, err := svc.UnpublishVersion(ctx, "order", 2)
	require.NoError(t, err)
	assert.False(t, unpublished.IsPublished)

	got, err := svc.GetVersion(ctx, "order", 2)
	require.NoError(t, err)
	assert.False(t, got.IsPublished)

	_, err = svc.GetVersion(ctx, "order", 7)
	assert.True(t, errors.Is(err, ErrVersionNotFound))

	defs, err := svc.ListDefinitions(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "order", defs[0].Code)
}

func TestAdminService_PublishRejectsInvalidDsl(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	_, err := svc.CreateDefinition(ctx, "bad", "", "")
	require.NoError(t, err)

	cases := []string{
		`{"startAt": "a", "steps": [{"id": "a", "type": "Mystery"}]}`,
		`{"startAt": "a", "steps": [{"id": "a", "type": "PassStep", "transitions": [{"to": "nowhere"}]}]}`,
		`{"startAt": "a", "steps": [
			{"id": "a", "type": "PassStep", "transitions": [{"to": "b"}]},
			{"id": "b", "type": "PassStep", "transitions": [{"to": "a"}]}]}`,
	}
	for i, dslJSON := range cases {
		v, err := svc.CreateVersion(ctx, "bad", dslJSON, "")
		require.NoError(t, err)

		_, result, err := svc.PublishVersion(ctx, "bad", v.VersionNumber)
		require.Error(t, err, "case %d", i)
		assert.True(t, errors.Is(err, ErrInvalidDsl))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.False(t, result.Valid())
		assert.Same(t, result, verr.Result)

		stored, err := svc.GetVersion(ctx, "bad", v.VersionNumber)
		require.NoError(t, err)
		assert.False(t, stored.IsPublished)
	}
}

func TestAdminService_DryRun(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	_, err := svc.CreateDefinition(ctx, "order", "", "")
	require.NoError(t, err)
	_, err = svc.CreateVersion(ctx, "order", validDsl, "")
	require.NoError(t, err)

	report, err := svc.DryRun(ctx, "order", 1, `{"orderId": "o-1"}`)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, "a", report.StartAt)
	assert.Equal(t, 2, report.StepCount)
	assert.Equal(t, []string{"PassStep", "EndStep"}, report.StepTypes)
	assert.Equal(t, "o-1", report.Input["orderId"])

	_, err = svc.DryRun(ctx, "order", 1, `[1, 2]`)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
