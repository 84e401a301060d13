package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportJSONL(t *testing.T) {
	path := writeLog(t, `
{"context":[0.1,0.2],"action":0,"reward":1,"pscore":0.5}
{"context":[0.3,-0.4],"action":2,"reward":0,"pscore":0.25}

{"context":[1.0,1.0],"action":1,"reward":1,"pscore":0.4}
`)
	fb, err := ImportJSONL(path, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, fb.NRounds)
	assert.Equal(t, []int{0, 2, 1}, fb.Action)
	assert.Equal(t, 2, fb.DimContext())
	assert.Nil(t, fb.ExpectedReward)
}

func TestImportJSONLWithExpectedReward(t *testing.T) {
	path := writeLog(t, `{"context":[0.1],"action":0,"reward":1,"pscore":0.5,"expected_reward":[0.7,0.3]}`)
	fb, err := ImportJSONL(path, 2)
	require.NoError(t, err)
	require.Len(t, fb.ExpectedReward, 1)
	assert.InDelta(t, 0.7, fb.ExpectedReward[0][0], 1e-12)
}

func TestImportJSONLErrors(t *testing.T) {
	t.Run("malformed line carries line number", func(t *testing.T) {
		path := writeLog(t, `{"context":[0.1],"action":0,"reward":1,"pscore":0.5}
not json`)
		_, err := ImportJSONL(path, 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})

	t.Run("schema violation", func(t *testing.T) {
		path := writeLog(t, `{"context":[0.1],"action":0,"reward":1,"pscore":1.5}`)
		_, err := ImportJSONL(path, 2)
		assert.Error(t, err)
	})

	t.Run("action out of range", func(t *testing.T) {
		path := writeLog(t, `{"context":[0.1],"action":9,"reward":1,"pscore":0.5}`)
		_, err := ImportJSONL(path, 2)
		assert.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeLog(t, "\n\n")
		_, err := ImportJSONL(path, 2)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ImportJSONL(filepath.Join(t.TempDir(), "nope.jsonl"), 2)
		assert.Error(t, err)
	})
}
