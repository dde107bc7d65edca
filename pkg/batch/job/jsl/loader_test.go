package jsl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/util/exception"
)

const validJSL = `
jobs:
  - id: importDwca
    name: DwC-A Import
    listeners:
      - ref: loggingJobListener
    steps:
      - id: fetchArchive
        ref: fetchArchiveTasklet
        properties:
          target: occurrence.txt
      - id: loadOccurrences
        ref: occurrenceChunkStep
        chunk:
          item-count: 250
          skip-limit: 3
        required-params: [DwcaPath, datasetShortname]
      - id: checkCompleteness
        ref: completenessTaskStep
  - id: computeUniqueValues
    name: Compute unique values
    steps:
      - id: computeUniqueValues
        ref: uniqueValuesTasklet
`

func TestParse_KeepsStepOrderAndProperties(t *testing.T) {
	jobs, err := Parse([]byte(validJSL))
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	job := jobs[0]
	assert.Equal(t, "importDwca", job.ID)
	require.Len(t, job.Steps, 3)
	assert.Equal(t, "fetchArchive", job.Steps[0].ID)
	assert.Equal(t, "loadOccurrences", job.Steps[1].ID)
	assert.Equal(t, "checkCompleteness", job.Steps[2].ID)
	assert.Equal(t, 250, job.Steps[1].Chunk.ItemCount)
	assert.Equal(t, 3, job.Steps[1].Chunk.SkipLimit)
	assert.Equal(t, "occurrence.txt", job.Steps[0].Property("target", "x"))
	assert.Equal(t, "x", job.Steps[0].Property("missing", "x"))

	params, err := job.Steps[1].SharedParams()
	require.NoError(t, err)
	assert.Equal(t, []core.SharedParameter{core.ParamDwcaPath, core.ParamDatasetShortname}, params)
}

func TestParse_RejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"no jobs":       "jobs: []",
		"missing name":  "jobs:\n  - id: a\n    steps:\n      - {id: s, ref: r}\n",
		"no steps":      "jobs:\n  - id: a\n    name: A\n",
		"step ref":      "jobs:\n  - id: a\n    name: A\n    steps:\n      - {id: s}\n",
		"dup step":      "jobs:\n  - id: a\n    name: A\n    steps:\n      - {id: s, ref: r}\n      - {id: s, ref: r}\n",
		"dup job":       "jobs:\n  - id: a\n    name: A\n    steps: [{id: s, ref: r}]\n  - id: a\n    name: B\n    steps: [{id: s, ref: r}]\n",
		"zero chunk":    "jobs:\n  - id: a\n    name: A\n    steps:\n      - {id: s, ref: r, chunk: {item-count: 0}}\n",
		"unknown param": "jobs:\n  - id: a\n    name: A\n    steps:\n      - {id: s, ref: r, required-params: [nope]}\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrConfiguration), "got %v", err)
		})
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("jobs: [::"))
	require.Error(t, err)
}

func TestLoadJSLDefinitionFromBytes_RegistersJobs(t *testing.T) {
	Reset()
	defer Reset()

	require.NoError(t, LoadJSLDefinitionFromBytes([]byte(validJSL)))
	assert.Equal(t, 2, GetLoadedJobCount())

	job, ok := GetJobDefinition("computeUniqueValues")
	require.True(t, ok)
	assert.Equal(t, "Compute unique values", job.Name)

	_, ok = GetJobDefinition("unknown")
	assert.False(t, ok)

	err := LoadJSLDefinitionFromBytes([]byte(validJSL))
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
	assert.Equal(t, 2, GetLoadedJobCount())
}
