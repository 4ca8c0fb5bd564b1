package decode

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vdavid/bbs2ch/internal/models"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []models.ThreadEntry
	}{
		{
			name: "parses dat id, title and count",
			body: "100.dat<>Thread One (2)\n200.dat<>Thread Two (1000)",
			expected: []models.ThreadEntry{
				{Dat: "100", Title: "Thread One", Total: 2},
				{Dat: "200", Title: "Thread Two", Total: 1000},
			},
		},
		{
			name: "keeps parentheses inside the title",
			body: "1314425987.dat<>【質問】 (初心者) スレ (12)\n",
			expected: []models.ThreadEntry{
				{Dat: "1314425987", Title: "【質問】 (初心者) スレ", Total: 12},
			},
		},
		{
			name: "skips lines that do not match",
			body: "garbage\n300.dat<>no count\n400.dat<>ok (1)\r\n\n",
			expected: []models.ThreadEntry{
				{Dat: "400", Title: "ok", Total: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, slices.Collect(Subject(tt.body)))
		})
	}
}
