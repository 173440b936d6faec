package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with the given args against a fresh command
// tree and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// jsonData runs a command in JSON mode and unpacks the response data.
func jsonData(t *testing.T, args ...string) map[string]any {
	t.Helper()
	out, err := execute(t, append(args, "--format", "json")...)
	require.NoError(t, err, "output: %s", out)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cli.db")
}

func TestRoot_RejectsInvalidFormat(t *testing.T) {
	_, err := execute(t, "status", "--db", testDB(t), "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestTopicApprove_EndToEnd(t *testing.T) {
	db := testDB(t)

	created := jsonData(t, "topic", "add", "Raised Bed Gardening", "--keyword", "raised beds", "--db", db)
	topicID, _ := created["ID"].(string)
	require.NotEmpty(t, topicID)
	assert.Equal(t, false, created["Approved"])

	approved := jsonData(t, "topic", "approve", topicID, "--db", db)
	articleID, _ := approved["ID"].(string)
	require.NotEmpty(t, articleID)
	assert.Equal(t, "pending", approved["State"])

	// Approving again reports the same article.
	again := jsonData(t, "topic", "approve", topicID, "--db", db)
	assert.Equal(t, articleID, again["ID"])

	shown := jsonData(t, "article", "show", articleID, "--db", db)
	assert.Equal(t, "Raised Bed Gardening", shown["Title"])
}

func TestTopicList_TextOutput(t *testing.T) {
	db := testDB(t)

	created := jsonData(t, "topic", "add", "Backlog Entry", "--db", db)
	topicID := created["ID"].(string)

	out, err := execute(t, "topic", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Backlog Entry")
	assert.Contains(t, out, topicID)

	out, err = execute(t, "topic", "list", "--approved", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No topics.")
}

func TestTopicList_ConflictingFilters(t *testing.T) {
	_, err := execute(t, "topic", "list", "--approved", "--pending", "--db", testDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestArticleShow_NotFound(t *testing.T) {
	_, err := execute(t, "article", "show", "missing-id", "--db", testDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestArticleExport_NoExportYet(t *testing.T) {
	db := testDB(t)

	created := jsonData(t, "topic", "add", "Unfinished", "--db", db)
	approved := jsonData(t, "topic", "approve", created["ID"].(string), "--db", db)

	_, err := execute(t, "article", "export", approved["ID"].(string), "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "no export yet")
}

func TestStatus_CountsApprovedArticle(t *testing.T) {
	db := testDB(t)

	created := jsonData(t, "topic", "add", "Counted", "--db", db)
	jsonData(t, "topic", "approve", created["ID"].(string), "--db", db)

	data := jsonData(t, "status", "--db", db)
	assert.Equal(t, float64(1), data["total"])
	assert.Equal(t, float64(1), data["queue_depth"])
	assert.Equal(t, float64(0), data["claimed"])

	states, ok := data["states"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), states["pending"])
}
