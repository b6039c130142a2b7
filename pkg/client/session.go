package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

// Edit is the pending, unsaved text of one row.
type Edit struct {
	Name  string
	Price string
}

// Draft is the text of the new-item form.
type Draft struct {
	ID    string
	Name  string
	Price string
}

// Image is a file chosen for upload with the next Add.
type Image struct {
	Filename string
	Data     io.Reader
}

// Session holds the state of an editing client: the last fetched rows, an
// edit buffer per row and the new-item draft. Every mutation refetches the
// full list. A Session is not safe for concurrent use.
type Session struct {
	c *Client

	Items []Item
	Edits map[int64]Edit
	New   Draft
	image *Image
}

func NewSession(c *Client) *Session {
	return &Session{c: c, Edits: map[int64]Edit{}}
}

// Load fetches all rows and reseeds the edit buffer from them. Pending
// edits are discarded.
func (s *Session) Load(ctx context.Context) error {
	items, err := s.c.List(ctx)
	if err != nil {
		return err
	}
	edits := make(map[int64]Edit, len(items))
	for _, it := range items {
		var e Edit
		if it.Name != nil {
			e.Name = *it.Name
		}
		if it.Price != nil {
			e.Price = it.Price.String()
		}
		edits[it.ID] = e
	}
	s.Items = items
	s.Edits = edits
	return nil
}

// EditRow changes one field ("name" or "price") of a row's buffer.
func (s *Session) EditRow(id int64, field, value string) {
	e := s.Edits[id]
	switch field {
	case "name":
		e.Name = value
	case "price":
		e.Price = value
	default:
		return
	}
	s.Edits[id] = e
}

// EditNew changes one field ("id", "name" or "price") of the draft.
func (s *Session) EditNew(field, value string) {
	switch field {
	case "id":
		s.New.ID = value
	case "name":
		s.New.Name = value
	case "price":
		s.New.Price = value
	}
}

func (s *Session) SelectImage(img *Image) {
	s.image = img
}

func (s *Session) SelectedImage() *Image {
	return s.image
}

// Add creates the draft item, uploads the selected image under the draft's
// raw id text and then refetches. A request the server answered, even with an
// error status, counts as done and the steps continue; errors are joined into
// the result. A transport failure stops at that step, leaving the draft, the
// image selection and the list as they were.
func (s *Session) Add(ctx context.Context) error {
	var errs []error

	draft := s.New
	name := draft.Name
	_, err := s.c.Create(ctx, CreateRequest{
		ID:    Coerce(draft.ID),
		Name:  &name,
		Price: Coerce(draft.Price),
	})
	if !answered(err) {
		return err
	}
	errs = append(errs, err)
	s.New = Draft{}

	if s.image != nil {
		_, err := s.c.UploadImage(ctx, draft.ID, s.image.Filename, s.image.Data)
		if !answered(err) {
			return errors.Join(append(errs, err)...)
		}
		errs = append(errs, err)
	}

	if err := s.Load(ctx); err != nil {
		return errors.Join(append(errs, err)...)
	}
	s.image = nil
	return errors.Join(errs...)
}

// Update saves a row's buffer, then refetches.
func (s *Session) Update(ctx context.Context, id int64) error {
	e := s.Edits[id]
	name := e.Name
	_, err := s.c.Update(ctx, id, UpdateRequest{Name: &name, Price: Coerce(e.Price)})
	return s.reloadAfter(ctx, err)
}

// Delete removes a row, then refetches.
func (s *Session) Delete(ctx context.Context, id int64) error {
	_, err := s.c.Delete(ctx, id)
	return s.reloadAfter(ctx, err)
}

func (s *Session) reloadAfter(ctx context.Context, err error) error {
	if !answered(err) {
		return err
	}
	return errors.Join(err, s.Load(ctx))
}

// answered reports whether a request reached the server, successfully or
// with an error status.
func answered(err error) bool {
	var apiErr *APIError
	return err == nil || errors.As(err, &apiErr)
}

// Coerce converts form text to a JSON number the way a browser's Number()
// does: blank text is 0 and text that is not a finite number becomes null.
func Coerce(text string) *json.Number {
	text = strings.TrimSpace(text)
	if text == "" {
		n := json.Number("0")
		return &n
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := json.Number(strconv.FormatFloat(f, 'f', -1, 64))
	return &n
}
