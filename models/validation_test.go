package models_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/duo/models"
)

func TestDecodeDrawing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"Valid", `[{"path":"M0 0 L10 10","color":"#ff0000","width":4}]`, false},
		{"Valid multiple strokes", `[{"path":"M0 0","color":"#000000","width":1},{"path":"M1 1 L2 2","color":"#ABCDEF","width":40}]`, false},
		{"Not JSON", `not json`, true},
		{"Empty list", `[]`, true},
		{"Empty path", `[{"path":" ","color":"#ff0000","width":4}]`, true},
		{"Bad color", `[{"path":"M0 0","color":"red","width":4}]`, true},
		{"Short color", `[{"path":"M0 0","color":"#fff","width":4}]`, true},
		{"Width too small", `[{"path":"M0 0","color":"#ff0000","width":0}]`, true},
		{"Width too large", `[{"path":"M0 0","color":"#ff0000","width":41}]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.DecodeDrawing(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, models.ErrInvalidDrawing))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEncodeDrawingRoundTrip(t *testing.T) {
	strokes := []models.DrawingStroke{{Path: "M0 0 L5 5", Color: "#112233", Width: 3}}
	content, err := models.EncodeDrawing(strokes)
	require.NoError(t, err)

	decoded, err := models.DecodeDrawing(content)
	require.NoError(t, err)
	assert.Equal(t, strokes, decoded)
}

func TestMessageKindJSON(t *testing.T) {
	b, err := models.EncodeMessage(models.Message{Id: "m1", AuthorId: "u1", Content: "hi", Kind: models.KindDrawing})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"drawing"`)

	_, err = models.DecodeMessage([]byte(`{"id":"m1","authorId":"u1","kind":"video"}`))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}

func TestDecodeRejectsMissingFields(t *testing.T) {
	_, err := models.DecodePairCode([]byte(`{"code":"ABCDEF"}`))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)

	_, err = models.DecodePair([]byte(`{"id":"a_a","userA":"a","userB":"a"}`))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)

	_, err = models.DecodeLatestMessage([]byte(`{"content":"x"}`))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)

	_, err = models.DecodeNudge([]byte(`[]`))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}

func TestUserFields(t *testing.T) {
	u := models.UserIdentity{Id: "u1", Name: "Ana", PairId: "p1", LastDoodleAt: 1700000000000}
	fields := models.UserFields(u)

	assert.Nil(t, fields[models.FieldMood])
	assert.Nil(t, fields[models.FieldAvatar])
	assert.Equal(t, []byte("p1"), fields[models.FieldPairId])

	// Nil entries are deletions; drop them as the store would
	stored := map[string][]byte{}
	for k, v := range fields {
		if v != nil {
			stored[k] = v
		}
	}
	got, err := models.UserFromFields(stored)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = models.UserFromFields(map[string][]byte{models.FieldName: []byte("x")})
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}

func TestPairPartner(t *testing.T) {
	p := models.Pair{Id: "a_b", UserA: "a", UserB: "b"}

	other, ok := p.Partner("a")
	assert.True(t, ok)
	assert.Equal(t, "b", other)

	other, ok = p.Partner("b")
	assert.True(t, ok)
	assert.Equal(t, "a", other)

	_, ok = p.Partner("c")
	assert.False(t, ok)
}
