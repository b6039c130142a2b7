package models

import "github.com/shopspring/decimal"

func init() {
	// Prices travel as bare JSON numbers, e.g. {"Price":300}.
	decimal.MarshalJSONWithoutQuotes = true
}

// Item is one row of the item table. JSON keys mirror the column names.
type Item struct {
	ID    int64               `json:"ID" db:"id"`
	Name  *string             `json:"Name" db:"name"`
	Price decimal.NullDecimal `json:"Price" db:"price"`
}

type CreateItemRequest struct {
	ID    *int64              `json:"id"`
	Name  *string             `json:"name"`
	Price decimal.NullDecimal `json:"price"`
}

type CreateItemResponse struct {
	ID    int64               `json:"id"`
	Name  *string             `json:"name"`
	Price decimal.NullDecimal `json:"price"`
}

type UpdateItemRequest struct {
	Name  *string             `json:"name"`
	Price decimal.NullDecimal `json:"price"`
}

type UpdateItemResponse struct {
	Updated bool `json:"updated"`
}

type DeleteItemResponse struct {
	Deleted bool `json:"deleted"`
}

type UploadImageResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewPrice builds a present price from an integer amount.
func NewPrice(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
