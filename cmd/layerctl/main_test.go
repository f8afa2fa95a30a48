package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRunUsage(t *testing.T) {
	_, err := runCmd(t)
	assert.Error(t, err)

	_, err = runCmd(t, "frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	out, err := runCmd(t, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "changelog")
}

func TestChangelogCommand(t *testing.T) {
	out, err := runCmd(t, "changelog", "testdata/old.json", "testdata/new.json")
	require.NoError(t, err)
	assert.Contains(t, out, "Additions (1)\n  T1105\n")
	assert.Contains(t, out, "Changes (1)\n  T1059\n")
	assert.Contains(t, out, "Removed (1)\n  T1053\n")
	assert.Contains(t, out, "Unchanged (0)")

	out, err = runCmd(t, "changelog", "-json", "testdata/old.json", "testdata/new.json")
	require.NoError(t, err)
	var body map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, []string{"T1105"}, body["additions"])
	assert.Equal(t, []string{"T1053"}, body["removed"])

	_, err = runCmd(t, "changelog", "testdata/old.json")
	assert.Error(t, err)
}

func TestComposeCommand(t *testing.T) {
	out, err := runCmd(t, "compose",
		"-bundle", "testdata/old.json",
		"-expr", "a + b",
		"-bind", "a=testdata/a.json",
		"-bind", "b=testdata/b.yaml",
		"-inherit", "comments=a",
		"-name", "sum")
	require.NoError(t, err)

	var doc struct {
		Name       string `json:"name"`
		Domain     string `json:"domain"`
		Techniques []struct {
			TechniqueID string  `json:"techniqueID"`
			Tactic      string  `json:"tactic"`
			Score       float64 `json:"score"`
			Comment     string  `json:"comment"`
		} `json:"techniques"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "sum", doc.Name)
	assert.Equal(t, "enterprise-attack", doc.Domain)

	scores := map[string]float64{}
	comments := map[string]string{}
	for _, tech := range doc.Techniques {
		scores[tech.TechniqueID+"^"+tech.Tactic] = tech.Score
		comments[tech.TechniqueID+"^"+tech.Tactic] = tech.Comment
	}
	assert.Equal(t, map[string]float64{"T1059^execution": 4, "T1053^execution": 1}, scores)
	assert.Equal(t, "from red", comments["T1059^execution"])

	t.Run("writes yaml files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.yaml")
		_, err := runCmd(t, "compose", "-bundle", "testdata/old.json", "-expr", "a * 10", "-bind", "a=testdata/a.json", "-o", path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "techniqueID: T1059")
	})

	t.Run("errors", func(t *testing.T) {
		_, err := runCmd(t, "compose", "-expr", "a", "-bind", "a=testdata/a.json")
		assert.ErrorContains(t, err, "-bundle")

		_, err = runCmd(t, "compose", "-bundle", "testdata/old.json", "-expr", "a", "-bind", "a")
		assert.Error(t, err)

		_, err = runCmd(t, "compose", "-bundle", "testdata/old.json", "-expr", "a", "-bind", "a=testdata/a.json", "-inherit", "comments=z")
		assert.ErrorContains(t, err, "not bound")

		_, err = runCmd(t, "compose", "-bundle", "testdata/old.json", "-expr", "a + c", "-bind", "a=testdata/a.json")
		assert.Error(t, err)
	})
}

func TestChainsCommand(t *testing.T) {
	out, err := runCmd(t, "chains", "-technique", "t1059", "testdata/old.json")
	require.NoError(t, err)
	assert.Contains(t, out, "T1059 Command and Scripting Interpreter: 1 group(s)")
	assert.Contains(t, out, "G0001 Axiom")

	out, err = runCmd(t, "chains", "-index", "testdata/old.json")
	require.NoError(t, err)
	assert.Equal(t, "T1053\nT1059\n", out)

	_, err = runCmd(t, "chains", "-technique", "T0000", "testdata/old.json")
	assert.Error(t, err)
}
