package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-vre/pkg/dataset"
)

func loadWard(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, _, err := dataset.LoadFile(wardDataset, nil)
	require.NoError(t, err)
	return ds
}
