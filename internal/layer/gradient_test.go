package layer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradientSerialize(t *testing.T) {
	g := NewGradient()
	assert.GreaterOrEqual(t, len(g.Colors), 2)
	g.MinValue = 10
	g.MaxValue = 90

	data, err := g.Serialize()
	require.NoError(t, err)

	g2 := NewGradient()
	require.NoError(t, g2.Deserialize(data))
	assert.Len(t, g2.Colors, len(g.Colors))
	assert.Equal(t, 10.0, g2.MinValue)
	assert.Equal(t, 90.0, g2.MaxValue)

	t.Run("too few stops", func(t *testing.T) {
		err := NewGradient().Deserialize([]byte(`{"colors":["#ffffff"],"minValue":0,"maxValue":1}`))
		assert.ErrorIs(t, err, ErrTooFewStops)
	})

	t.Run("bad color", func(t *testing.T) {
		err := NewGradient().Deserialize([]byte(`{"colors":["#ffffff","purple"],"minValue":0,"maxValue":1}`))
		assert.Error(t, err)
	})
}

func TestGradientPresets(t *testing.T) {
	g := NewGradient()
	initial := append([]string{}, g.Colors...)

	require.NoError(t, g.SetGradientPreset("bluered"))
	assert.GreaterOrEqual(t, len(g.Colors), 2)
	assert.NotEqual(t, initial, g.Colors)
	assert.NotEmpty(t, g.GradientRGB())

	err := g.SetGradientPreset("rainbow")
	assert.True(t, errors.Is(err, ErrUnknownPreset))

	for _, name := range Presets() {
		require.NoError(t, g.SetGradientPreset(name), name)
		assert.Len(t, g.GradientRGB(), gradientSteps+1, name)
	}
}

func TestGradientGetColor(t *testing.T) {
	g := NewGradient()
	g.MinValue = 0
	g.MaxValue = 100
	g.UpdateGradient()

	low := g.GetColor("0")
	high := g.GetColor("100")
	assert.Equal(t, "#ff6666", low)
	assert.Equal(t, "#8ec843", high)
	assert.NotEqual(t, low, high)

	assert.Equal(t, "#ffe766", g.GetColor("50"))
	assert.Equal(t, low, g.GetColor("-20"), "below range clamps")
	assert.Equal(t, high, g.GetColor("250"), "above range clamps")
	assert.Empty(t, g.GetColor(""))
	assert.Empty(t, g.GetColor("n/a"))

	t.Run("alpha stops", func(t *testing.T) {
		require.NoError(t, g.SetGradientPreset(BinaryPreset))
		g.MinValue, g.MaxValue = 0, 1
		assert.Equal(t, "#ffffff00", g.GetColor("0"))
		assert.Equal(t, "#66b1ff", g.GetColor("1"))
	})

	t.Run("flat range", func(t *testing.T) {
		g := NewGradient()
		g.MinValue, g.MaxValue = 5, 5
		assert.Equal(t, "#8ec843", g.GetColor("5"))
	})
}

func TestGradientAddRemoveColor(t *testing.T) {
	g := NewGradient()
	before := len(g.Colors)
	g.AddColor()
	assert.Len(t, g.Colors, before+1)
	require.NoError(t, g.RemoveColor(len(g.Colors)-1))
	assert.Len(t, g.Colors, before)

	require.NoError(t, g.RemoveColor(1))
	assert.Equal(t, []string{"#ff6666", "#8ec843"}, g.Colors)
	assert.ErrorIs(t, g.RemoveColor(0), ErrTooFewStops)
	assert.Len(t, g.Colors, 2)

	g.AddColor()
	assert.Error(t, g.RemoveColor(7))
}

func TestGradientClone(t *testing.T) {
	g := NewGradient()
	c := g.Clone()
	c.Colors[0] = "#000000"
	c.MaxValue = 5
	assert.Equal(t, "#ff6666", g.Colors[0])
	assert.Equal(t, 100.0, g.MaxValue)
}
