package batch

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateflow/plateflow/testutil"
)

func TestChunk(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, Chunk(items, 2))
	assert.Equal(t, [][]string{{"a", "b", "c", "d", "e"}}, Chunk(items, 10))
	assert.Len(t, Chunk(items, 0), 5, "non-positive size falls back to 1")
	assert.Nil(t, Chunk(nil, 3))
}

func TestFanOutPlanner_RunAndCollect(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "data", "exp")
	var inputs []string
	for i := 0; i < 5; i++ {
		inputs = append(inputs, filepath.Join(root, "images", fmt.Sprintf("site%d.png", i)))
	}

	p := &FanOutPlanner{
		Step:            "jterator",
		Inputs:          inputs,
		BatchSize:       2,
		OutputDir:       filepath.Join(root, "data"),
		CollectOutput:   filepath.Join(root, "data", "jterator.data.h5"),
		RemoveFragments: true,
	}

	set, err := p.CreateBatches(nil)
	require.NoError(t, err)

	require.Len(t, set.Run, 3)
	for i, b := range set.Run {
		assert.Equal(t, i+1, b.ID)
		assert.Equal(t, ShapeList, b.Inputs["image_files"].Shape())
	}
	assert.Equal(t,
		[]string{filepath.Join(root, "data", "jterator_000001.data.h5")},
		set.Run[0].Outputs["data_file"].Flatten(),
	)

	require.NotNil(t, set.Collect)
	assert.Len(t, set.Collect.Inputs["data_files"].Flatten(), 3)
	assert.Equal(t, []string{"data_files"}, set.Collect.Removals)
}

func TestFanOutPlanner_PlanPersistReload(t *testing.T) {
	root := testutil.TempExperimentRoot(t, 7)
	inputs, err := filepath.Glob(filepath.Join(root, "images", "*.png"))
	require.NoError(t, err)
	require.Len(t, inputs, 7)

	layout := NewStepLayout(root, "jterator")
	require.NoError(t, layout.Ensure())

	p := &FanOutPlanner{
		Step:          "jterator",
		Inputs:        inputs,
		BatchSize:     3,
		OutputDir:     layout.StepDir(),
		CollectOutput: filepath.Join(root, "data.h5"),
	}
	set, err := p.CreateBatches(nil)
	require.NoError(t, err)
	require.Len(t, set.Run, 3)

	jobStore := NewStore("jterator", root, layout.JobDescriptionsDir(), nil)
	require.NoError(t, jobStore.Write(set))

	loaded, err := jobStore.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, set.InputFiles(), loaded.InputFiles())
	assert.Equal(t, set.OutputFiles(), loaded.OutputFiles())
}

func TestFanOutPlanner_NoCollectPhase(t *testing.T) {
	p := &FanOutPlanner{
		Step:      "align",
		Inputs:    []string{"/e/a.png", "/e/b.png"},
		BatchSize: 1,
		OutputDir: "/e/out",
	}

	set, err := p.CreateBatches(nil)
	require.NoError(t, err)
	assert.Nil(t, set.Collect)
	assert.Len(t, set.Run, 2)
}

func TestFanOutPlanner_BatchSizeArgument(t *testing.T) {
	p := &FanOutPlanner{
		Step:      "align",
		Inputs:    []string{"/e/a.png", "/e/b.png", "/e/c.png"},
		BatchSize: 1,
		OutputDir: "/e/out",
	}

	set, err := p.CreateBatches(map[string]any{"batch_size": 3})
	require.NoError(t, err)
	assert.Len(t, set.Run, 1)

	// YAML and JSON decoders hand integers over as float64.
	set, err = p.CreateBatches(map[string]any{"batch_size": float64(2)})
	require.NoError(t, err)
	assert.Len(t, set.Run, 2)

	_, err = p.CreateBatches(map[string]any{"batch_size": "two"})
	require.Error(t, err)
}
