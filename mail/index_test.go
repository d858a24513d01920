package mail

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndex_Search(t *testing.T) {
	ix := NewMemoryIndex()
	may1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	may5 := time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)

	ix.Upsert(
		Document{EmailID: "a", Chunk: 0, Date: may1, Vector: []float64{1, 0}},
		Document{EmailID: "a", Chunk: 1, Date: may1, Vector: []float64{0.9, 0.1}},
		Document{EmailID: "b", Chunk: 0, Date: may5, Vector: []float64{0.8, 0.2}},
		Document{EmailID: "c", Chunk: 0, Date: may5, Vector: []float64{0, 1}},
	)
	assert.Equal(t, 3, ix.Len())

	assert.Equal(t, []string{"a", "b"}, ix.Search([]float64{1, 0}, 2, nil, nil))
	assert.Equal(t, []string{"a", "b", "c"}, ix.Search([]float64{1, 0}, 10, nil, nil))

	from := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"b", "c"}, ix.Search([]float64{1, 0}, 5, &from, nil))

	to := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"a"}, ix.Search([]float64{1, 0}, 5, nil, &to))

	assert.Nil(t, ix.Search([]float64{1, 0}, 0, nil, nil))
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	ix := NewMemoryIndex()
	ix.Upsert(Document{EmailID: "a", Vector: []float64{1, 0}}, Document{EmailID: "a", Chunk: 1, Vector: []float64{1, 0}})
	ix.Upsert(Document{EmailID: "a", Vector: []float64{0, 1}})

	assert.True(t, ix.Contains("a"))
	assert.False(t, ix.Contains("b"))
	assert.Len(t, ix.docs["a"], 1)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk("   ", 10))
	assert.Equal(t, []string{"short"}, Chunk("short", 10))
	assert.Equal(t, []string{"hello", "world foo"}, Chunk("hello world foo", 10))
}

func TestChunk_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("chunks respect the size and keep every character", prop.ForAll(
		func(words []string, size int) bool {
			text := strings.Join(words, " ")
			chunks := Chunk(text, size)
			for _, c := range chunks {
				if utf8.RuneCountInString(c) > size {
					return false
				}
			}
			return strings.Join(strings.Fields(strings.Join(chunks, "")), "") ==
				strings.Join(strings.Fields(text), "")
		},
		gen.SliceOf(gen.AlphaString().Map(func(s string) string {
			if len(s) > 8 {
				return s[:8]
			}
			return s
		})),
		gen.IntRange(10, 60),
	))

	properties.TestingRun(t)
}

func TestEmbed(t *testing.T) {
	e := vocabEmbedder{vocab: []string{"lisbon", "flight"}}
	email := Email{ID: "m1", Subject: "Flight", Text: "Lisbon lisbon", Date: time.Unix(0, 0)}

	docs, err := Embed(context.Background(), e, email, 100)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "m1", docs[0].EmailID)
	assert.Equal(t, []float64{2, 1}, docs[0].Vector)
}
