package decode

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/bbs2ch/internal/models"
)

func TestDat(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []models.Message
	}{
		{
			name: "accepts 4, 5 and 6 field lines",
			body: "a<>sage<>2011/08/27 ID:abc<> first <>title\n" +
				"b<><>2011/08/27 ID:def<> second <>\n" +
				"c<><>2011/08/27 ID:ghi<> third <>deleted<>\n" +
				"d<><>2011/08/27 ID:jkl<> fourth \n",
			expected: []models.Message{
				{Name: "a", Mail: "sage", DateID: "2011/08/27 ID:abc", Body: " first "},
				{Name: "b", DateID: "2011/08/27 ID:def", Body: " second "},
				{Name: "c", DateID: "2011/08/27 ID:ghi", Body: " third "},
				{Name: "d", DateID: "2011/08/27 ID:jkl", Body: " fourth "},
			},
		},
		{
			name:     "skips blank lines",
			body:     "\n\r\n",
			expected: nil,
		},
		{
			name: "turns short lines into synthetic records",
			body: "broken<>line\n",
			expected: []models.Message{
				{Name: "名無し", Body: UnparsedPrefix + "broken&lt;&gt;line"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, slices.Collect(Dat(tt.body, "名無し")))
		})
	}
}

func TestDat_SevenFieldLine(t *testing.T) {
	line := "a<>b<>c<>d<>e<>f<>g"

	got := slices.Collect(Dat(line+"\n", "名無し"))

	require.Len(t, got, 1)
	assert.Equal(t, "名無し", got[0].Name)
	assert.Empty(t, got[0].Mail)
	assert.Empty(t, got[0].DateID)
	assert.Contains(t, got[0].Body, "a&lt;&gt;b&lt;&gt;c&lt;&gt;d&lt;&gt;e&lt;&gt;f&lt;&gt;g")
	assert.NotContains(t, got[0].Body, "<>")
}

func TestEncodeLine_RoundTrip(t *testing.T) {
	messages := []models.Message{
		{Name: "名無しさん", Mail: "sage", DateID: "2011/08/27(土) 15:19:47.11 ID:Abc123", Body: " 一行目 <br> 二行目 <br> "},
		{Name: "", Mail: "", DateID: "", Body: ""},
		{Name: "<b>fish</b>", Mail: "age", DateID: "x", Body: "<a href=\"../test/read.cgi/a/1/1\">&gt;&gt;1</a>"},
	}

	for _, m := range messages {
		line := EncodeLine(m)
		assert.False(t, strings.Contains(line, "\n"))

		got := ParseLine(line, "unused")
		assert.Equal(t, m, got)
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "スレタイ", Title("a<>b<>c<>d<>スレタイ\ne<>f<>g<>h<>\n"))
	assert.Equal(t, "", Title("a<>b<>c<>d\n"))
}
