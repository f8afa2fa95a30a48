package codec

import (
	"bytes"
	"strings"
	"testing"

	"attacknav/internal/layer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const navigatorJSON = `{
  "name": "APT review",
  "versions": {"attack": "14", "navigator": "4.9.1", "layer": "4.5"},
  "domain": "enterprise-attack",
  "description": "triage",
  "sorting": 3,
  "hideDisabled": true,
  "techniques": [
    {"techniqueID": "T1059", "tactic": "execution", "score": 3, "color": "", "comment": "seen",
     "enabled": true, "metadata": [{"name": "owner", "value": "blue"}], "links": [], "showSubtechniques": false},
    {"techniqueID": "T1566", "tactic": "initial-access", "score": "2.5", "color": "#ff0000", "comment": "",
     "metadata": [], "links": [{"label": "ref", "url": "https://example.com"}], "showSubtechniques": true}
  ],
  "gradient": {"colors": ["#ff6666", "#ffe766", "#8ec843"], "minValue": 0, "maxValue": 10},
  "legendItems": [{"label": "hot", "color": "#ff0000"}]
}`

const navigatorYAML = `name: APT review
versions:
  attack: "14"
  navigator: 4.9.1
  layer: "4.5"
domain: enterprise-attack
sorting: 3
techniques:
  - techniqueID: T1059
    tactic: execution
    score: 3
    comment: seen
  - techniqueID: T1566
    tactic: initial-access
    score: "2.5"
    enabled: false
gradient:
  colors: ["#ff6666", "#8ec843"]
  minValue: 0
  maxValue: 10
`

func TestJSONCodecParse(t *testing.T) {
	doc, err := NewJSONCodec().Parse(strings.NewReader(navigatorJSON))
	require.NoError(t, err)

	assert.Equal(t, "APT review", doc.Name)
	assert.Equal(t, "enterprise-attack", doc.Domain)
	assert.Equal(t, "14", doc.Versions.Attack)
	assert.Equal(t, 3, doc.Sorting)
	assert.True(t, doc.HideDisabled)
	require.Len(t, doc.Techniques, 2)
	assert.Equal(t, layer.ScoreValue("3"), doc.Techniques[0].Score)
	assert.Equal(t, layer.ScoreValue("2.5"), doc.Techniques[1].Score)
	assert.Nil(t, doc.Techniques[1].Enabled)
	assert.Equal(t, []layer.MetadataItem{{Name: "owner", Value: "blue"}}, doc.Techniques[0].Metadata)
	assert.Equal(t, 10.0, doc.Gradient.MaxValue)

	l, err := layer.FromDocument(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, "enterprise-attack-14", l.DomainVersionID)
	tvm, ok := l.Lookup("T1566^initial-access")
	require.True(t, ok)
	assert.True(t, tvm.Enabled)
	assert.True(t, tvm.ShowSubtechniques)
}

func TestYAMLCodecParse(t *testing.T) {
	doc, err := NewYAMLCodec().Parse(strings.NewReader(navigatorYAML))
	require.NoError(t, err)

	assert.Equal(t, "APT review", doc.Name)
	assert.Equal(t, "4.5", doc.Versions.Layer)
	require.Len(t, doc.Techniques, 2)
	assert.Equal(t, layer.ScoreValue("3"), doc.Techniques[0].Score)
	assert.Equal(t, layer.ScoreValue("2.5"), doc.Techniques[1].Score)
	require.NotNil(t, doc.Techniques[1].Enabled)
	assert.False(t, *doc.Techniques[1].Enabled)
	assert.Equal(t, []string{"#ff6666", "#8ec843"}, doc.Gradient.Colors)
}

func TestExportConvertsBetweenFormats(t *testing.T) {
	doc, err := NewJSONCodec().Parse(strings.NewReader(navigatorJSON))
	require.NoError(t, err)

	var yamlOut bytes.Buffer
	require.NoError(t, NewYAMLCodec().Export(doc, &yamlOut))
	assert.Contains(t, yamlOut.String(), "techniqueID: T1059")
	assert.Contains(t, yamlOut.String(), "score: 3")

	fromYAML, err := NewYAMLCodec().Parse(&yamlOut)
	require.NoError(t, err)
	assert.Equal(t, doc.Name, fromYAML.Name)
	assert.Equal(t, doc.Versions, fromYAML.Versions)
	assert.Equal(t, doc.Techniques, fromYAML.Techniques)
	assert.Equal(t, doc.Gradient, fromYAML.Gradient)
	assert.Equal(t, doc.LegendItems, fromYAML.LegendItems)

	var jsonOut bytes.Buffer
	require.NoError(t, NewJSONCodec().Export(fromYAML, &jsonOut))
	assert.Contains(t, jsonOut.String(), `"score": 2.5`)
}

func TestParseErrors(t *testing.T) {
	_, err := NewJSONCodec().Parse(strings.NewReader("{not json"))
	assert.ErrorContains(t, err, "failed to parse JSON")

	_, err = NewYAMLCodec().Parse(strings.NewReader("name: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse YAML")

	_, err = NewJSONCodec().Parse(strings.NewReader(`{"techniques": [{"techniqueID": "T1", "score": true}]}`))
	assert.Error(t, err)
}

func TestCodecSelection(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", "json"},
		{"", "json"},
		{"YAML", "yaml"},
		{".yml", "yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			c, err := ForFormat(tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Format())
		})
	}

	_, err := ForFormat("xml")
	assert.Error(t, err)

	c, err := ForPath("/tmp/layer.yaml")
	require.NoError(t, err)
	assert.Equal(t, "yaml", c.Format())

	assert.Equal(t, "yaml", ForContentType("application/x-yaml; charset=utf-8").Format())
	assert.Equal(t, "json", ForContentType("application/json").Format())
	assert.Equal(t, "json", ForContentType("").Format())
}
