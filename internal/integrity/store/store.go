// Package store holds the mutable copy of records. It is the copy that
// verification re-derives fingerprints from, so nothing here is trusted.
package store

import (
	"carebook/internal/integrity/models"
)

func clone(r *models.Record) *models.Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = r.Fields.Clone()
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}
