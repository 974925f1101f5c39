package plateflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflowYAML = `
stages:
  - name: image_conversion
    steps:
      - name: metaextract
      - name: metaconfig
      - name: imextract
  - name: image_analysis
    steps:
      - name: jterator
        args:
          batch_size: 25
`

func TestParseWorkflow(t *testing.T) {
	d, err := ParseWorkflow([]byte(workflowYAML), nil)
	require.NoError(t, err)
	assert.Len(t, d.Stages(), 2)
}

func TestLoadWorkflow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(workflowYAML), 0o644))

	d, err := LoadWorkflow(path, nil)
	require.NoError(t, err)
	assert.Len(t, d.Stages(), 2)

	_, err = LoadWorkflow(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestParseWorkflow_RejectsUnknownStage(t *testing.T) {
	_, err := ParseWorkflow([]byte(`
stages:
  - name: image_enhancement
    steps:
      - name: sharpen
`), nil)
	require.Error(t, err)
}
