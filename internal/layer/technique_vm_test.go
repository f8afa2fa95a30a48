package layer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTechniqueVMAnnotations(t *testing.T) {
	tvm := NewTechniqueVM("T1000^exec")
	assert.False(t, tvm.Annotated())
	assert.False(t, tvm.Modified())

	tvm.Score = "5"
	tvm.Color = "#fff"
	tvm.Enabled = false
	tvm.Comment = "note"
	tvm.Links = append(tvm.Links, Link{Label: "l", URL: "u"})
	tvm.Metadata = append(tvm.Metadata, MetadataItem{Name: "k", Value: "v"})

	assert.True(t, tvm.Annotated())
	assert.True(t, tvm.Modified())

	data, err := tvm.Serialize()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"score": 5`), string(data))

	tvm.ResetAnnotations()
	assert.False(t, tvm.Annotated())
	assert.True(t, tvm.Enabled)
}

func TestTechniqueVMAnnotatedFields(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*TechniqueVM)
	}{
		{"score", func(v *TechniqueVM) { v.Score = "0" }},
		{"color", func(v *TechniqueVM) { v.Color = "#000000" }},
		{"disabled", func(v *TechniqueVM) { v.Enabled = false }},
		{"comment", func(v *TechniqueVM) { v.Comment = "x" }},
		{"links", func(v *TechniqueVM) { v.Links = []Link{{Label: "a", URL: "b"}} }},
		{"metadata", func(v *TechniqueVM) { v.Metadata = []MetadataItem{{Name: "a", Value: "b"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tvm := NewTechniqueVM("T1^execution")
			tt.apply(tvm)
			assert.True(t, tvm.Annotated())
		})
	}

	t.Run("show subtechniques is not an annotation", func(t *testing.T) {
		tvm := NewTechniqueVM("T1^execution")
		tvm.ShowSubtechniques = true
		assert.False(t, tvm.Annotated())
	})
}

func TestDeserializeTechniqueVM(t *testing.T) {
	rep := []byte(`{"score":3,"comment":"c","color":"#111111","enabled":false,"showSubtechniques":true,"metadata":[{"name":"a","value":"b"}],"links":[{"label":"L","url":"U"}]}`)

	tvm, err := DeserializeTechniqueVM(rep, "T2000", "exec")
	require.NoError(t, err)
	assert.Equal(t, "T2000^exec", tvm.UnionID)
	assert.Equal(t, "3", tvm.Score)
	assert.Equal(t, "c", tvm.Comment)
	assert.Equal(t, "#111111", tvm.Color)
	assert.False(t, tvm.Enabled)
	assert.True(t, tvm.ShowSubtechniques)
	assert.Equal(t, "a", tvm.Metadata[0].Name)
	assert.Equal(t, "L", tvm.Links[0].Label)

	t.Run("string score", func(t *testing.T) {
		tvm, err := DeserializeTechniqueVM([]byte(`{"score":"42"}`), "T1", "impact")
		require.NoError(t, err)
		assert.Equal(t, "42", tvm.Score)
		assert.True(t, tvm.Enabled)
	})

	t.Run("missing context", func(t *testing.T) {
		_, err := DeserializeTechniqueVM(rep, "T2000", "")
		var missing *MissingContextError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, "T2000", missing.TechniqueID)

		_, err = DeserializeTechniqueVM(rep, "", "exec")
		assert.True(t, errors.As(err, &missing))
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := DeserializeTechniqueVM([]byte(`{`), "T1", "exec")
		assert.Error(t, err)
	})
}

func TestTechniqueVMRoundTrip(t *testing.T) {
	tvm := NewTechniqueVM("T1059.001^execution")
	tvm.Score = "12.5"
	tvm.Color = "#abcdef"
	tvm.Comment = "seen in the wild"
	tvm.Enabled = false
	tvm.ShowSubtechniques = true
	tvm.Links = []Link{{Label: "report", URL: "https://example.com"}}
	tvm.Metadata = []MetadataItem{{Name: "owner", Value: "blue team"}}

	data, err := tvm.Serialize()
	require.NoError(t, err)

	restored, err := DeserializeTechniqueVM(data, tvm.TechniqueID(), tvm.Tactic())
	require.NoError(t, err)
	assert.Equal(t, tvm, restored)
}

func TestTechniqueVMClone(t *testing.T) {
	tvm := NewTechniqueVM("T1^execution")
	tvm.Metadata = []MetadataItem{{Name: "a", Value: "b"}}
	c := tvm.Clone()
	c.Metadata[0].Value = "changed"
	assert.Equal(t, "b", tvm.Metadata[0].Value)
}

func TestNumericScore(t *testing.T) {
	tests := []struct {
		score string
		want  float64
		ok    bool
	}{
		{"", 0, false},
		{"5", 5, true},
		{" 2.5 ", 2.5, true},
		{"-1", -1, true},
		{"high", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.score, func(t *testing.T) {
			v, ok := (&TechniqueVM{Score: tt.score}).NumericScore()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}
