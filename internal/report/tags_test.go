package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/momentsapp/moments/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteTagReport(t *testing.T) {
	tags := []domain.TagCount{
		{ID: 3, Name: "dog", PhotoCount: 5},
		{ID: 1, Name: "beach", PhotoCount: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTagReport(&buf, tags, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(tagsSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"ID", "Tag", "Photos"},
		{"3", "dog", "5"},
		{"1", "beach", "2"},
	}, rows)

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Generated at", "2024-05-01T12:00:00Z"}, summary[0])
	assert.Equal(t, []string{"Tag links", "7"}, summary[2])
}
