package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/larp/internal/engine"
)

const doorFile = `{
  "now": "2026-10-16T21:00:00Z",
  "action": {
    "id": "a-door",
    "name": "Open the door",
    "message_on_success": "The door opens",
    "message_on_failure": "The door stays shut",
    "forbidden_tags_to_display": [{"id": "t-cursed", "value": "cursed"}],
    "required_tags_to_succeed": [{"id": "t-key", "value": "has-key"}],
    "tags_to_apply_on_success": [{"id": "t-open", "value": "door-open", "is_unique": true}]
  },
  "holder": {
    "id": "rs1",
    "game_id": "g1",
    "role_id": "thief",
    "version": 3,
    "applied_tags": [
      {"tag": {"id": "t-key", "value": "has-key"}, "holder_id": "rs1", "applied_at": "2026-10-16T20:00:00Z"}
    ]
  }
}`

func runPreview(t *testing.T, input string, args ...string) (previewOutput, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(append([]string{"preview", "-"}, args...))

	if err := cmd.Execute(); err != nil {
		return previewOutput{}, err
	}
	var got previewOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	return got, nil
}

func TestPreview_Succeeds(t *testing.T) {
	got, err := runPreview(t, doorFile)
	require.NoError(t, err)

	assert.True(t, got.Outcome.Visible)
	assert.True(t, got.Outcome.Success())
	assert.Equal(t, "The door opens", got.Outcome.Message)
	require.Len(t, got.Holder.AppliedTags, 2)
	assert.Equal(t, engine.TagID("t-open"), got.Holder.AppliedTags[1].Tag.ID)
	assert.Equal(t, "2026-10-16T21:00:00Z", got.Holder.AppliedTags[1].AppliedAt.Format("2006-01-02T15:04:05Z07:00"))
}

func TestPreview_AtOverridesFileTime(t *testing.T) {
	got, err := runPreview(t, doorFile, "--at", "2026-10-17T09:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Holder.AppliedTags[1].AppliedAt.Hour())
}

func TestPreview_RejectsCollidingAction(t *testing.T) {
	bad := `{"action": {"id": "x", "name": "x",
	  "tags_to_apply_on_success": [{"id": "t-key", "value": "k"}],
	  "tags_to_remove_on_success": [{"id": "t-key", "value": "k"}]},
	  "holder": {"id": "rs1", "game_id": "g1", "role_id": "r", "version": 0, "applied_tags": []}}`

	_, err := runPreview(t, bad)
	require.Error(t, err)
	assert.True(t, engine.IsInvalidAction(err))
}

func TestPreview_RejectsUnknownFields(t *testing.T) {
	_, err := runPreview(t, `{"acton": {}}`)
	require.Error(t, err)
}
