// Package model defines data structures used throughout the application.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrValidation is the sentinel wrapped by every ValidationError.
var ErrValidation = errors.New("validation failed")

// Validation constants.
const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 1000
)

// ValidationError reports a missing or mistyped field in an inbound payload.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match any validation failure with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Item represents a catalog entry.
type Item struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Category    string  `json:"category"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
}

// EntityID returns the item's identifier.
func (i Item) EntityID() int {
	return i.ID
}

// WithID returns a copy of the item carrying the given identifier.
func (i Item) WithID(id int) Item {
	i.ID = id
	return i
}

// ItemFields holds every field of an Item except the identifier.
type ItemFields struct {
	Title       string
	Description string
	Price       float64
	Stock       int
	Category    string
	Thumbnail   string
}

// Item builds an Item with the given id.
func (f ItemFields) Item(id int) Item {
	return Item{
		ID:          id,
		Title:       f.Title,
		Description: f.Description,
		Price:       f.Price,
		Stock:       f.Stock,
		Category:    f.Category,
		Thumbnail:   f.Thumbnail,
	}
}

// ItemPatch is a partial update. Nil fields are left untouched.
type ItemPatch struct {
	Title       *string
	Description *string
	Price       *float64
	Stock       *int
	Category    *string
	Thumbnail   *string
}

// Apply merges the set fields of the patch over item. The id is never touched.
func (p ItemPatch) Apply(item *Item) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Stock != nil {
		item.Stock = *p.Stock
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Thumbnail != nil {
		item.Thumbnail = *p.Thumbnail
	}
}

// ItemInput is the inbound shape of an item payload on both transports.
// Pointer fields distinguish a missing field from a zero value. Stock is
// decoded as a number so that 3.0 is accepted; Validate requires a whole value.
type ItemInput struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Stock       *float64 `json:"stock"`
	Category    *string  `json:"category"`
	Thumbnail   *string  `json:"thumbnail"`
}

// DecodeItemInput parses a JSON item payload. Type mismatches are reported
// as ValidationError so that `"price": "10"` is rejected like a missing field.
func DecodeItemInput(data []byte) (*ItemInput, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ValidationError{Reason: "request body is empty"}
	}

	var input ItemInput
	if err := json.Unmarshal(data, &input); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ValidationError{
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("must be of type %s", jsonTypeName(typeErr.Type.Kind().String())),
			}
		}
		return nil, &ValidationError{Reason: "malformed JSON body"}
	}

	return &input, nil
}

// jsonTypeName maps Go kinds to the names a JSON client understands.
func jsonTypeName(kind string) string {
	switch kind {
	case "float64", "float32":
		return "number"
	case "int", "int64", "int32":
		return "integer"
	default:
		return kind
	}
}

// Validate checks that every required field is present and within range.
func (in *ItemInput) Validate() error {
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if len(*in.Title) > MaxTitleLength {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("cannot exceed %d characters", MaxTitleLength)}
	}

	if in.Description == nil || strings.TrimSpace(*in.Description) == "" {
		return &ValidationError{Field: "description", Reason: "is required"}
	}
	if len(*in.Description) > MaxDescriptionLength {
		return &ValidationError{
			Field:  "description",
			Reason: fmt.Sprintf("cannot exceed %d characters", MaxDescriptionLength),
		}
	}

	if in.Price == nil {
		return &ValidationError{Field: "price", Reason: "is required"}
	}
	if *in.Price < 0 {
		return &ValidationError{Field: "price", Reason: "cannot be negative"}
	}

	if in.Stock == nil {
		return &ValidationError{Field: "stock", Reason: "is required"}
	}
	if *in.Stock < 0 {
		return &ValidationError{Field: "stock", Reason: "cannot be negative"}
	}
	if *in.Stock != math.Trunc(*in.Stock) || *in.Stock > math.MaxInt32 {
		return &ValidationError{Field: "stock", Reason: "must be an integer"}
	}

	if in.Category == nil || strings.TrimSpace(*in.Category) == "" {
		return &ValidationError{Field: "category", Reason: "is required"}
	}

	return nil
}

// Fields converts a validated input into ItemFields.
func (in *ItemInput) Fields() ItemFields {
	f := ItemFields{
		Title:       *in.Title,
		Description: *in.Description,
		Price:       *in.Price,
		Stock:       int(*in.Stock),
		Category:    *in.Category,
	}
	if in.Thumbnail != nil {
		f.Thumbnail = *in.Thumbnail
	}
	return f
}

// Patch converts a validated input into a full-replacement patch.
// Thumbnail is only replaced when the payload carries one.
func (in *ItemInput) Patch() ItemPatch {
	var stock *int
	if in.Stock != nil {
		n := int(*in.Stock)
		stock = &n
	}

	return ItemPatch{
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Stock:       stock,
		Category:    in.Category,
		Thumbnail:   in.Thumbnail,
	}
}

// ErrorResponse is the JSON body of every failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a plain confirmation body.
type MessageResponse struct {
	Message string `json:"message"`
}
