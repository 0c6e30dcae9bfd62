package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mirror/internal/collection"
)

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`
collection: inventory
items:
  - key: "1"
    fields: {name: widget, stock: 3}
  - key: "2"
`))
	require.NoError(t, err)

	assert.Equal(t, "inventory", doc.Collection)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "widget", doc.Items[0].Fields["name"])
	assert.Nil(t, doc.Items[1].Fields)
}

func TestParseDocument_MissingKey(t *testing.T) {
	_, err := ParseDocument([]byte("items:\n  - fields: {v: a}\n"))
	assert.ErrorContains(t, err, "key is required")
}

func TestParseDocument_DuplicateKey(t *testing.T) {
	_, err := ParseDocument([]byte("items:\n  - key: a\n  - key: a\n"))
	assert.ErrorContains(t, err, `duplicate key "a"`)
}

func TestParseDocument_BadYAML(t *testing.T) {
	_, err := ParseDocument([]byte("items: ["))
	assert.ErrorContains(t, err, "parse items document")
}

func TestParseMutations(t *testing.T) {
	txn, err := ParseMutations([]byte(`
type: update
mutations:
  - key: "1"
    fields: {v: x}
`))
	require.NoError(t, err)

	assert.Equal(t, collection.ChangeUpdate, txn.Type)
	require.Len(t, txn.Mutations, 1)
	assert.Equal(t, "1", txn.Mutations[0].Key)
	assert.Equal(t, "x", txn.Mutations[0].Modified.Fields["v"])
}

func TestParseMutations_UnknownType(t *testing.T) {
	_, err := ParseMutations([]byte("type: upsert\nmutations:\n  - key: a\n"))
	assert.ErrorContains(t, err, `unknown mutation type "upsert"`)
}

func TestParseMutations_Empty(t *testing.T) {
	_, err := ParseMutations([]byte("type: delete\n"))
	assert.ErrorContains(t, err, "no mutations")
}
