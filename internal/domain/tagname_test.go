package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTagName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "lower-cases", input: "Dog", want: "dog"},
		{name: "trims and collapses", input: "  Land   vehicle ", want: "land vehicle"},
		{name: "strips surrounding punctuation", input: "#sunset!", want: "sunset"},
		{name: "keeps hyphen", input: "t-shirt", want: "t-shirt"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "only punctuation", input: "!!", wantErr: true},
		{name: "too long", input: strings.Repeat("a", MaxTagLength+1), wantErr: true},
		{name: "max length", input: strings.Repeat("a", MaxTagLength), want: strings.Repeat("a", MaxTagLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTagName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTag)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTagList(t *testing.T) {
	got := ParseTagList("Beach, sunset  beach,,#Sea")
	assert.Equal(t, []string{"beach", "sunset", "sea"}, got)

	assert.Empty(t, ParseTagList(" , "))
}

func TestPhotoEffectiveDescription(t *testing.T) {
	alt := "a dog on a beach"

	p := &Photo{}
	assert.Equal(t, "", p.EffectiveDescription())
	assert.True(t, p.NeedsAltText())

	p.AltText = &alt
	assert.Equal(t, alt, p.EffectiveDescription())
	assert.False(t, p.NeedsAltText())

	p.Description = "Max at the beach"
	assert.Equal(t, "Max at the beach", p.EffectiveDescription())
}

func TestDetectedObjectsScan(t *testing.T) {
	var objs DetectedObjects
	require.NoError(t, objs.Scan(`[{"name":"dog","confidence":0.93}]`))
	assert.Equal(t, DetectedObjects{{Name: "dog", Confidence: 0.93}}, objs)

	require.NoError(t, objs.Scan(nil))
	assert.Nil(t, objs)

	assert.Error(t, objs.Scan(42))

	v, err := DetectedObjects(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
