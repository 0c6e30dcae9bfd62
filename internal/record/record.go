// Package record defines the concrete item type materialized by the CLI
// and the conformance harness: a string key plus an open set of fields.
package record

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mirror/internal/collection"
)

// Record is one keyed item. Fields carry the item's payload; the key is
// stable for the record's lifetime in a collection.
type Record struct {
	Key    string         `yaml:"key" json:"key"`
	Fields map[string]any `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Key returns a record's key; this is the collection key function.
func Key(r Record) string { return r.Key }

// Document is an items file: the full authoritative set for a collection.
type Document struct {
	Collection string   `yaml:"collection,omitempty"`
	Items      []Record `yaml:"items"`
}

// ParseDocument decodes and validates an items document. Every record
// needs a non-empty key, and keys must be unique within the document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse items document: %w", err)
	}

	seen := make(map[string]bool, len(doc.Items))
	for i, r := range doc.Items {
		if r.Key == "" {
			return Document{}, fmt.Errorf("item %d: key is required", i)
		}
		if seen[r.Key] {
			return Document{}, fmt.Errorf("duplicate key %q", r.Key)
		}
		seen[r.Key] = true
	}

	return doc, nil
}

// MutationDoc is a mutations file: one batch of same-type changes.
type MutationDoc struct {
	Type      string   `yaml:"type"`
	Mutations []Record `yaml:"mutations"`
}

// ParseMutations decodes a mutations file into a transaction.
func ParseMutations(data []byte) (collection.Transaction[Record], error) {
	var doc MutationDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return collection.Transaction[Record]{}, fmt.Errorf("parse mutations document: %w", err)
	}

	var txn collection.Transaction[Record]
	switch doc.Type {
	case "insert":
		txn.Type = collection.ChangeInsert
	case "update":
		txn.Type = collection.ChangeUpdate
	case "delete":
		txn.Type = collection.ChangeDelete
	default:
		return txn, fmt.Errorf("unknown mutation type %q (want insert, update or delete)", doc.Type)
	}

	if len(doc.Mutations) == 0 {
		return txn, fmt.Errorf("mutations document has no mutations")
	}
	for i, r := range doc.Mutations {
		if r.Key == "" {
			return txn, fmt.Errorf("mutation %d: key is required", i)
		}
		txn.Mutations = append(txn.Mutations, collection.Mutation[Record]{Key: r.Key, Modified: r})
	}

	return txn, nil
}
