// Package web exposes the card store, dump engine and sync coordinator over
// a JSON HTTP API.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/knowcards/knowcards/internal/storage"
	"github.com/knowcards/knowcards/internal/sync"
)

// Generator produces a card proposal from freeform material. Implemented by
// ai.Client; nil when AI generation is not configured.
type Generator interface {
	GenerateCard(ctx context.Context, material string) (string, error)
}

// Server holds the dependencies for the HTTP API.
type Server struct {
	store     *storage.Store
	coord     *sync.Coordinator
	generator Generator
	router    chi.Router
}

// NewServer creates and configures a new server. coord and generator may be
// nil when sync or AI generation is not configured; the corresponding
// endpoints then report that the feature is unavailable.
func NewServer(store *storage.Store, coord *sync.Coordinator, generator Generator) *Server {
	s := &Server{
		store:     store,
		coord:     coord,
		generator: generator,
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Post("/", s.handleCreateGroup)
			r.Get("/{id}", s.handleGetGroup)
			r.Put("/{id}", s.handleUpdateGroup)
			r.Delete("/{id}", s.handleDeleteGroup)
			r.Get("/{id}/cards", s.handleListGroupCards)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", s.handleListCards)
			r.Post("/", s.handleCreateCard)
			r.Get("/due", s.handleListDueCards)
			r.Get("/new", s.handleListNewCards)
			r.Get("/{id}", s.handleGetCard)
			r.Put("/{id}", s.handleUpdateCard)
			r.Delete("/{id}", s.handleDeleteCard)
			r.Post("/{id}/review", s.handleReviewCard)
		})

		r.Get("/dump", s.handleExport)
		r.Post("/dump", s.handleImport)

		r.Post("/sync/push", s.handlePush)
		r.Post("/sync/pull", s.handlePull)

		r.Post("/generate", s.handleGenerate)
	})
}
