package experience

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boothlabs/boothflow/internal/models"
)

const validYAML = `
id: exp-summer
name: Summer Booth
steps:
  - id: welcome
    type: info
    config:
      title: Welcome!
      body: Tap to begin
  - id: name
    type: short_text
    config:
      title: What's your name?
      required: true
  - id: photo
    type: capture
    config:
      title: Strike a pose
  - id: transform
    type: ai-transform
    config:
      prompt: "A portrait of {{name}} as an astronaut"
      outputSize: 1024x1536
      variables:
        - key: name
          sourceType: input
          sourceStepId: name
  - id: wait
    type: processing
    config:
      messages:
        - Painting stars...
        - Almost there...
  - id: done
    type: reward
    config:
      title: Here you go!
stepsOrder: [welcome, name, photo, transform, wait, done]
settings:
  persistSession: true
  allowBack: true
theme:
  primaryColor: "#ff6600"
`

func TestParseValidDefinition(t *testing.T) {
	def, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "exp-summer", def.ID)
	assert.Len(t, def.Steps, 6)
	assert.Equal(t, models.StepTypeAITransform, def.Steps[3].Type)
	assert.Equal(t, "1024x1536", def.Steps[3].Config.OutputSize)
	assert.True(t, def.Settings.PersistSession)
	assert.True(t, def.Settings.AllowBack)
	assert.False(t, def.Settings.AllowSkip)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("steps: [unclosed"))
	assert.Error(t, err)
}

func TestParseRejectsMissingID(t *testing.T) {
	_, err := Parse([]byte(`
name: No ID
steps:
  - id: a
    type: info
    config: {}
stepsOrder: [a]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "experience id is required")
}

func TestParseRejectsUnknownStepType(t *testing.T) {
	_, err := Parse([]byte(`
id: exp-bad
steps:
  - id: a
    type: hologram
    config: {}
stepsOrder: [a]
`))
	assert.Error(t, err)
}

func TestParseRejectsOrderMismatch(t *testing.T) {
	_, err := Parse([]byte(`
id: exp-bad
steps:
  - id: a
    type: info
    config: {}
  - id: b
    type: info
    config: {}
stepsOrder: [a]
`))
	assert.Error(t, err)
}

func TestParseRejectsUnknownOrderID(t *testing.T) {
	_, err := Parse([]byte(`
id: exp-bad
steps:
  - id: a
    type: info
    config: {}
stepsOrder: [z]
`))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	def, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "exp-summer", def.ID)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summer.yaml"), []byte(validYAML), 0o644))

	second := `
id: exp-winter
steps:
  - id: hello
    type: info
    config: {}
stepsOrder: [hello]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "winter.yml"), []byte(second), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, defs, 2)
	assert.Contains(t, defs, "exp-summer")
	assert.Contains(t, defs, "exp-winter")
}

func TestLoadDirRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(validYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(validYAML), 0o644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate experience id")
}

func TestEngineConfig(t *testing.T) {
	def, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	cfg := def.EngineConfig()
	assert.Equal(t, "exp-summer", cfg.ExperienceID)
	assert.Len(t, cfg.Steps, 6)
	assert.Equal(t, []string{"welcome", "name", "photo", "transform", "wait", "done"}, cfg.StepsOrder)
	assert.True(t, cfg.PersistSession)
	assert.True(t, cfg.AllowBack)
	assert.Equal(t, "#ff6600", cfg.Theme["primaryColor"])
	require.NoError(t, cfg.Validate())
}
