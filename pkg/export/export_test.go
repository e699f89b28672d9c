package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Class ranks",
		Headers: []string{"student_id", "class_rank"},
		Rows: []map[string]string{
			{"student_id": "s1", "class_rank": "1"},
			{"student_id": "s2", "class_rank": "2"},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	out, err := Render(FormatCSV, sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "student_id,class_rank\ns1,1\ns2,2\n", string(out))
}

func TestRenderPDF(t *testing.T) {
	out, err := Render(FormatPDF, sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsUnknownFormatAndEmptyHeaders(t *testing.T) {
	_, err := Render("xlsx", sampleDataset())
	require.Error(t, err)
	_, err = Render(FormatCSV, Dataset{})
	require.Error(t, err)
	_, err = Render(FormatPDF, Dataset{})
	require.Error(t, err)
}
