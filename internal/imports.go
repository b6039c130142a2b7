package internal

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"inshokuten-api/internal/events"
	"inshokuten-api/internal/models"
)

// importedItems is the store the Excel importer writes through. Writes are
// counted and announced like the ones made by the item handlers.
type importedItems struct {
	s *Server
}

func (i *importedItems) Exists(ctx context.Context, id int64) (bool, error) {
	return i.s.Store.Exists(ctx, id)
}

func (i *importedItems) Create(ctx context.Context, id *int64, name *string, price decimal.NullDecimal) (models.Item, error) {
	created, err := i.s.Store.Create(ctx, id, name, price)
	i.s.Metrics.ObserveStore("create", err)
	if err != nil {
		return created, err
	}
	i.s.publish(ctx, events.New(events.ItemCreated, strconv.FormatInt(created.ID, 10), created))
	return created, nil
}

func (i *importedItems) Update(ctx context.Context, id int64, name *string, price decimal.NullDecimal) (bool, error) {
	updated, err := i.s.Store.Update(ctx, id, name, price)
	i.s.Metrics.ObserveStore("update", err)
	if err != nil {
		return false, err
	}
	if updated {
		i.s.publish(ctx, events.New(events.ItemUpdated, strconv.FormatInt(id, 10), models.Item{ID: id, Name: name, Price: price}))
	}
	return updated, nil
}
