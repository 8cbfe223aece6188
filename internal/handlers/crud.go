package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// crud serves the plain create/read/update/delete commands of one entity kind
type crud[T any] struct {
	kind   string
	create func(ctx context.Context, entity *T) (*T, error)
	get    func(ctx context.Context, key string) (*T, error)
	list   func(ctx context.Context) ([]*T, error)
	update func(ctx context.Context, key string, entity *T) (*T, error)
	remove func(ctx context.Context, key string) (*T, error)
}

func (c crud[T]) Create(w http.ResponseWriter, r *http.Request) {
	entity := new(T)
	if err := decode(w, r, entity); err != nil {
		fail(w, "Failed to create "+c.kind, err)
		return
	}

	created, err := c.create(r.Context(), entity)
	if err != nil {
		fail(w, "Failed to create "+c.kind, err)
		return
	}
	ok(w, http.StatusCreated, c.kind+" created", created)
}

func (c crud[T]) List(w http.ResponseWriter, r *http.Request) {
	entities, err := c.list(r.Context())
	if err != nil {
		fail(w, "Failed to list "+c.kind+" entries", err)
		return
	}
	ok(w, http.StatusOK, c.kind+" entries", entities)
}

func (c crud[T]) Get(w http.ResponseWriter, r *http.Request) {
	entity, err := c.get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, "Failed to get "+c.kind, err)
		return
	}
	ok(w, http.StatusOK, c.kind+" found", entity)
}

func (c crud[T]) Update(w http.ResponseWriter, r *http.Request) {
	entity := new(T)
	if err := decode(w, r, entity); err != nil {
		fail(w, "Failed to update "+c.kind, err)
		return
	}

	updated, err := c.update(r.Context(), chi.URLParam(r, "id"), entity)
	if err != nil {
		fail(w, "Failed to update "+c.kind, err)
		return
	}
	ok(w, http.StatusOK, c.kind+" updated", updated)
}

func (c crud[T]) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := c.remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, "Failed to delete "+c.kind, err)
		return
	}
	ok(w, http.StatusOK, c.kind+" deleted", deleted)
}

// mount registers the collection routes on r. Create, update and delete are skipped
// when their function is nil.
func (c crud[T]) mount(r chi.Router) {
	if c.create != nil {
		r.Post("/", c.Create)
	}
	r.Get("/", c.List)
	r.Get("/{id}", c.Get)
	if c.update != nil {
		r.Put("/{id}", c.Update)
	}
	if c.remove != nil {
		r.Delete("/{id}", c.Delete)
	}
}
