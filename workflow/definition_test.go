package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateflow/plateflow/types"
)

const validWorkflowYAML = `
stages:
  - name: image_conversion
    steps:
      - name: metaextract
      - name: metaconfig
        args:
          file_format: cellvoyager
      - name: imextract
  - name: image_preprocessing
    steps:
      - name: corilla
      - name: align
        args:
          ref_cycle: 1
`

func TestFromYAML_Valid(t *testing.T) {
	r := Canonical()

	d, err := FromYAML(r, []byte(validWorkflowYAML), nil)
	require.NoError(t, err)

	assert.Equal(t,
		[]StageName{StageImageConversion, StageImagePreprocessing},
		d.StageNames(),
	)
	steps := d.Stages()[0].Steps()
	require.Len(t, steps, 3)
	assert.Equal(t, "cellvoyager", steps[1].Args()["file_format"])
}

func TestFromYAML_ValidationStillApplies(t *testing.T) {
	r := Canonical()

	// Decodes fine, but imextract precedes its upstream metaconfig.
	bad := `
stages:
  - name: image_conversion
    steps:
      - name: metaextract
      - name: imextract
      - name: metaconfig
`
	_, err := FromYAML(r, []byte(bad), nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingUpstreamStep, types.GetErrorCode(err))
}

func TestDefinition_RoundTrip(t *testing.T) {
	r := Canonical()

	d, err := FromYAML(r, []byte(validWorkflowYAML), nil)
	require.NoError(t, err)

	out, err := d.Definition().ToYAML()
	require.NoError(t, err)

	again, err := FromYAML(r, []byte(out), nil)
	require.NoError(t, err)
	assert.Equal(t, d.StageNames(), again.StageNames())
}
