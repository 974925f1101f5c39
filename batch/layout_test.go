package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepLayout_Lifecycle(t *testing.T) {
	root := t.TempDir()
	l := NewStepLayout(root, "metaextract")

	assert.Equal(t, filepath.Join(root, "workflow"), l.WorkflowDir())
	assert.Equal(t, filepath.Join(root, "workflow", "metaextract"), l.StepDir())

	require.NoError(t, l.Ensure())
	for _, dir := range []string{l.JobDescriptionsDir(), l.LogDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	// Ensure is idempotent.
	require.NoError(t, l.Ensure())

	require.NoError(t, l.Remove())
	_, err := os.Stat(l.StepDir())
	assert.True(t, os.IsNotExist(err))

	// Removing an already-removed layout is not an error.
	require.NoError(t, l.Remove())
}
