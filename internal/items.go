package internal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"inshokuten-api/internal/events"
	"inshokuten-api/internal/models"
)

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.List(r.Context())
	s.Metrics.ObserveStore("list", err)
	if err != nil {
		s.storeError(w, r, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var in models.CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	created, err := s.Store.Create(r.Context(), in.ID, in.Name, in.Price)
	s.Metrics.ObserveStore("create", err)
	if err != nil {
		s.storeError(w, r, "create", err)
		return
	}

	s.publish(r.Context(), events.New(events.ItemCreated, strconv.FormatInt(created.ID, 10), created))
	writeJSON(w, http.StatusOK, models.CreateItemResponse{
		ID:    created.ID,
		Name:  in.Name,
		Price: in.Price,
	})
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var in models.UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	updated, err := s.Store.Update(r.Context(), id, in.Name, in.Price)
	s.Metrics.ObserveStore("update", err)
	if err != nil {
		s.storeError(w, r, "update", err)
		return
	}

	if updated {
		s.publish(r.Context(), events.New(events.ItemUpdated, strconv.FormatInt(id, 10), models.Item{ID: id, Name: in.Name, Price: in.Price}))
	}
	writeJSON(w, http.StatusOK, models.UpdateItemResponse{Updated: updated})
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	deleted, err := s.Store.Delete(r.Context(), id)
	s.Metrics.ObserveStore("delete", err)
	if err != nil {
		s.storeError(w, r, "delete", err)
		return
	}

	if deleted {
		s.publish(r.Context(), events.New(events.ItemDeleted, strconv.FormatInt(id, 10), nil))
	}
	writeJSON(w, http.StatusOK, models.DeleteItemResponse{Deleted: deleted})
}

// pathID parses the {id} URL parameter, answering 400 when it is not an integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	hlog.FromRequest(r).Error().Err(err).Str("op", op).Msg("store operation failed")
	writeError(w, http.StatusInternalServerError, op+" error: "+err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}
