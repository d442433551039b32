package types

import (
	"encoding/json"
	"strconv"
)

// RawFragment is the outer markup of one element matched on a rendered page.
type RawFragment string

// TextBlock is a markup-free, single-line piece of text derived from one fragment.
type TextBlock string

// Columns lists the record fields in table order.
var Columns = []string{"book", "reviewer", "rating", "review"}

// ReviewRecord is one harvested review.
type ReviewRecord struct {
	// Book identifies the reviewed book. It is supplied by the caller, not parsed.
	Book string `json:"book" bson:"book"`

	// Reviewer is the display name of the reviewer.
	Reviewer string `json:"reviewer" bson:"reviewer"`

	// Rating is the rendered rating or shelf label, e.g. "it was amazing"
	// or "as to-read". It is carried as free text.
	Rating string `json:"rating" bson:"rating"`

	// Review is the review body with preview and truncation boilerplate removed.
	Review string `json:"review" bson:"review"`
}

// Fields returns the record values in Columns order.
func (r ReviewRecord) Fields() []string {
	return []string{r.Book, r.Reviewer, r.Rating, r.Review}
}

// Row returns the record prefixed with a 1-based row index, as written to tables.
func (r ReviewRecord) Row(index int) []string {
	return append([]string{strconv.Itoa(index)}, r.Fields()...)
}

// ToJSON serializes the record with its row index.
func (r ReviewRecord) ToJSON(index int) ([]byte, error) {
	return json.Marshal(struct {
		Row int `json:"row"`
		ReviewRecord
	}{
		Row:          index,
		ReviewRecord: r,
	})
}
