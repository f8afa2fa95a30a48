package service

import (
	"context"
	"errors"
	"testing"

	"attacknav/internal/layer"
	"attacknav/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int                            { return &n }
func floatPtr(f float64) *float64                  { return &f }
func kindPtr(k layer.LayoutKind) *layer.LayoutKind { return &k }

func columnIDs(c MatrixColumn) []string {
	ids := make([]string, 0, len(c.Techniques))
	for _, cell := range c.Techniques {
		ids = append(ids, cell.AttackID)
	}
	return ids
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	l := createScored(t, env, "settings", nil)

	fn := layer.AggregateMax
	updated, err := env.layers.UpdateSettings(ctx, l.ID, SettingsPatch{
		Name:            strPtr("renamed"),
		Sorting:         intPtr(int(layer.SortScoreDescending)),
		HideDisabled:    boolPtr(true),
		TogglePlatforms: []string{"Windows"},
		Gradient: &GradientPatch{
			Preset:      "bluered",
			AddColor:    true,
			RemoveColor: intPtr(0),
			MinValue:    floatPtr(0),
			MaxValue:    floatPtr(10),
		},
		Layout: &LayoutPatch{Layout: kindPtr(layer.LayoutMini), AggregateFunction: &fn},
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)

	stored, err := env.layers.GetLayer(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
	assert.Equal(t, layer.SortScoreDescending, stored.Sorting)
	assert.True(t, stored.HideDisabled)
	assert.Equal(t, []string{"Linux"}, stored.Filter.Platforms.Selection)
	assert.Equal(t, []string{"#ff66f4", "#ff6666", "#ff6666"}, stored.Gradient.Colors)
	assert.Equal(t, 0.0, stored.Gradient.MinValue)
	assert.Equal(t, 10.0, stored.Gradient.MaxValue)
	assert.Equal(t, layer.LayoutMini, stored.Layout.Layout())
	assert.False(t, stored.Layout.ShowName())
	assert.Equal(t, layer.AggregateMax, stored.Layout.AggregateFunction())

	t.Run("toggle back", func(t *testing.T) {
		_, err := env.layers.UpdateSettings(ctx, l.ID, SettingsPatch{TogglePlatforms: []string{"Windows"}})
		require.NoError(t, err)
		stored, err := env.layers.GetLayer(ctx, l.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Linux", "Windows"}, stored.Filter.Platforms.Selection)
	})

	t.Run("showing names leaves mini", func(t *testing.T) {
		updated, err := env.layers.UpdateSettings(ctx, l.ID, SettingsPatch{Layout: &LayoutPatch{ShowName: boolPtr(true)}})
		require.NoError(t, err)
		assert.Equal(t, layer.LayoutSide, updated.Layout.Layout())
	})
}

func TestUpdateSettingsRejectsInvalidPatches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	l := createScored(t, env, "invalid", nil)

	tests := []struct {
		name  string
		patch SettingsPatch
	}{
		{"unknown preset", SettingsPatch{TogglePlatforms: []string{"Linux"}, Gradient: &GradientPatch{Preset: "rainbow"}}},
		{"unknown platform", SettingsPatch{TogglePlatforms: []string{"Plan 9"}}},
		{"sort mode", SettingsPatch{Sorting: intPtr(7)}},
		{"empty range", SettingsPatch{Gradient: &GradientPatch{MinValue: floatPtr(5), MaxValue: floatPtr(5)}}},
		{"color index", SettingsPatch{Gradient: &GradientPatch{RemoveColor: intPtr(9)}}},
		{"layout", SettingsPatch{Layout: &LayoutPatch{Layout: kindPtr("grid")}}},
		{"blank name", SettingsPatch{Name: strPtr(" ")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.layers.UpdateSettings(ctx, l.ID, tt.patch)
			var validation *ValidationError
			assert.True(t, errors.As(err, &validation), "got %v", err)
		})
	}

	t.Run("two stops remain", func(t *testing.T) {
		_, err := env.layers.UpdateSettings(ctx, l.ID, SettingsPatch{
			Gradient: &GradientPatch{Preset: "whiteblue", RemoveColor: intPtr(0)},
		})
		assert.ErrorIs(t, err, layer.ErrTooFewStops)
	})

	t.Run("nothing saved", func(t *testing.T) {
		stored, err := env.layers.GetLayer(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Linux", "Windows"}, stored.Filter.Platforms.Selection)
		assert.Equal(t, layer.NewGradient().Colors, stored.Gradient.Colors)
	})

	t.Run("unknown layer", func(t *testing.T) {
		_, err := env.layers.UpdateSettings(ctx, "missing", SettingsPatch{})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestMatrix(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	l := createScored(t, env, "matrix", map[string]string{"T1059^execution": "10", "T1053^execution": "80"})

	views, err := env.layers.Matrix(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Test ATT&CK", views[0].Name)
	require.Len(t, views[0].Columns, 2)
	execution, persistence := views[0].Columns[0], views[0].Columns[1]
	assert.Equal(t, "execution", execution.Shortname)
	assert.Equal(t, []string{"T1059", "T1053"}, columnIDs(execution), "name ascending")
	assert.Equal(t, []string{"T1053"}, columnIDs(persistence))

	_, err = env.layers.UpdateSettings(ctx, l.ID, SettingsPatch{Sorting: intPtr(int(layer.SortScoreDescending))})
	require.NoError(t, err)
	views, err = env.layers.Matrix(ctx, l.ID)
	require.NoError(t, err)
	execution = views[0].Columns[0]
	assert.Equal(t, []string{"T1053", "T1059"}, columnIDs(execution))
	assert.Equal(t, "80", execution.Techniques[0].Score)
	assert.Equal(t, "T1053^execution", execution.Techniques[0].UnionID)
	assert.Equal(t, layer.NewGradient().GetColor("80"), execution.Techniques[0].Color)
	assert.True(t, execution.Techniques[0].Enabled)

	_, err = env.layers.UpdateSettings(ctx, l.ID, SettingsPatch{TogglePlatforms: []string{"Windows"}})
	require.NoError(t, err)
	views, err = env.layers.Matrix(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1059"}, columnIDs(views[0].Columns[0]))
	assert.Empty(t, views[0].Columns[1].Techniques)

	t.Run("unknown layer", func(t *testing.T) {
		_, err := env.layers.Matrix(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}
