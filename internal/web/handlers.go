package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/knowcards/knowcards/internal/domain"
	"github.com/knowcards/knowcards/internal/dump"
)

// GroupResponse is the JSON shape of a group.
type GroupResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	Reserved  bool      `json:"reserved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CardResponse is the JSON shape of a card.
type CardResponse struct {
	ID             int64      `json:"id"`
	GroupID        int64      `json:"group_id"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
	ContentHash    string     `json:"content_hash"`
	Easiness       float64    `json:"easiness"`
	Repetitions    int        `json:"repetitions"`
	IntervalDays   int        `json:"interval_days"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	NextReviewAt   time.Time  `json:"next_review_at"`
}

func groupResponse(g domain.Group) GroupResponse {
	return GroupResponse{
		ID:        g.ID,
		Title:     g.Title,
		Subtitle:  g.Subtitle,
		Reserved:  g.ID == domain.ReservedGroupID,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func cardResponse(c domain.Card) CardResponse {
	return CardResponse{
		ID:             c.ID,
		GroupID:        c.GroupID,
		Question:       c.Question,
		Answer:         c.Answer,
		ContentHash:    c.ContentHash,
		Easiness:       c.Easiness,
		Repetitions:    c.Repetitions,
		IntervalDays:   c.IntervalDays,
		Status:         c.Status.String(),
		CreatedAt:      c.CreatedAt,
		LastReviewedAt: c.LastReviewedAt,
		NextReviewAt:   c.NextReviewAt,
	}
}

func cardResponses(cards []domain.Card) []CardResponse {
	out := make([]CardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, cardResponse(c))
	}
	return out
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupResponse(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	id, err := s.store.CreateGroup(req.Title, req.Subtitle)
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := s.store.GetGroup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, groupResponse(*g))
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid group id"))
		return
	}
	g, err := s.store.GetGroup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse(*g))
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid group id"))
		return
	}
	var req struct {
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if err := s.store.UpdateGroup(id, req.Title, req.Subtitle); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.store.GetGroup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse(*g))
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid group id"))
		return
	}
	if err := s.store.DeleteGroup(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGroupCards(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid group id"))
		return
	}
	cards, err := s.store.ListCardsInGroup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponses(cards))
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.store.ListCards()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponses(cards))
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
		GroupID  int64  `json:"group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if req.GroupID == 0 {
		req.GroupID = domain.ReservedGroupID
	}
	id, err := s.store.CreateCard(req.Question, req.Answer, req.GroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	card, err := s.store.GetCard(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cardResponse(*card))
}

func (s *Server) handleListDueCards(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	asOf := time.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("as_of must be RFC 3339"))
			return
		}
		asOf = parsed
	}
	cards, err := s.store.ListDueCards(asOf, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponses(cards))
}

func (s *Server) handleListNewCards(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	cards, err := s.store.ListNewCards(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponses(cards))
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid card id"))
		return
	}
	card, err := s.store.GetCard(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponse(*card))
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid card id"))
		return
	}
	var req struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
		GroupID  int64  `json:"group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if err := s.store.UpdateCard(id, req.Question, req.Answer, req.GroupID); err != nil {
		writeError(w, err)
		return
	}
	card, err := s.store.GetCard(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponse(*card))
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid card id"))
		return
	}
	if err := s.store.DeleteCard(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReviewCard(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid card id"))
		return
	}
	var req struct {
		Score int `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	card, err := s.store.ApplyReview(id, req.Score, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponse(*card))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	script, err := dump.Export(s.store)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(script))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read request body"))
		return
	}
	res, err := dump.Import(s.store, string(body))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changes": res.Changes,
		"message": res.Message,
	})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if s.coord == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("sync is not configured"))
		return
	}
	var req struct {
		RemotePath string `json:"remote_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RemotePath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("remote_path is required"))
		return
	}
	if err := s.coord.Push(r.Context(), req.RemotePath); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pushed"})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	if s.coord == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("sync is not configured"))
		return
	}
	var req struct {
		RemotePath string `json:"remote_path"`
		Confirm    bool   `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RemotePath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("remote_path is required"))
		return
	}
	// Pull overwrites the whole local store; the caller must say so.
	if !req.Confirm {
		writeJSON(w, http.StatusBadRequest, errorBody("pull overwrites local data, set confirm to true"))
		return
	}
	res, err := s.coord.Pull(r.Context(), req.RemotePath)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changes": res.Changes,
		"message": res.Message,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("card generation is not configured"))
		return
	}
	var req struct {
		Material string `json:"material"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Material == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("material is required"))
		return
	}
	proposal, err := s.generator.GenerateCard(r.Context(), req.Material)
	if err != nil {
		writeError(w, err)
		return
	}
	// The proposal is passed through untouched; malformed JSON from the
	// model is the client's problem to surface.
	writeJSON(w, http.StatusOK, map[string]string{"proposal": proposal})
}
