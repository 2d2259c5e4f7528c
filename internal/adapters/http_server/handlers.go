// internal/adapters/http_server/handlers.go
package httpserver

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/victorhugom-zz/rio-review/internal/app"
	"github.com/victorhugom-zz/rio-review/internal/domain"
)

const maxBody = 1 << 20

type Handlers struct {
	Q *app.QueryService
	C *app.CommandService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1/reviews", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/{id}", h.getReview)
		r.Put("/{id}", h.putReview)
		r.Delete("/{id}", h.deleteReview)
		r.Post("/{id}/vote", h.vote)
		r.Get("/{id}/vote", h.getVote)
		r.Post("/{id}/approve", h.approve)
	})

	s.mux.Route("/v1/items/{id}", func(r chi.Router) {
		r.Get("/reviews", h.listReviews)
		r.Get("/reviews/authors/{authorId}", h.reviewByAuthor)
		r.Get("/rating", h.rating)
		r.Get("/stars", h.stars)
		r.Get("/summary", h.summary)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps the domain error taxonomy onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		title  string
	)
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, title = http.StatusBadRequest, "Invalid Request"
	case errors.Is(err, domain.ErrNotFound):
		status, title = http.StatusNotFound, "Not Found"
	case errors.Is(err, domain.ErrEmptyAggregate):
		status, title = http.StatusNotFound, "No Reviews"
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, domain.ErrVersionMismatch):
		status, title = http.StatusConflict, "Conflict"
	case errors.Is(err, domain.ErrTimeout):
		status, title = http.StatusGatewayTimeout, "Store Timeout"
	case errors.Is(err, domain.ErrPersistence):
		status, title = http.StatusServiceUnavailable, "Store Unavailable"
	default:
		status, title = http.StatusInternalServerError, "Internal Error"
	}
	// store failures never expose driver text, even once retries turned them into a conflict
	if status >= http.StatusInternalServerError || errors.Is(err, domain.ErrPersistence) {
		log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
		writeProblem(w, status, title, "")
		return
	}
	writeProblem(w, status, title, err.Error())
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes a GET response with a weak ETag, short-circuiting to 304.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func writeValue(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	writeJSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: malformed JSON body: %v", domain.ErrValidation, err)
	}
	return nil
}

// ---- query parsing ----

func optBool(r *http.Request, name string) (*bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false", domain.ErrValidation, name)
	}
	return &b, nil
}

func optInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrValidation, name)
	}
	return n, nil
}

// ---- reviews ----

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request) {
	var in app.SubmitInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.C.Submit(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/reviews/"+rv.ID)
	writeValue(w, http.StatusCreated, app.ToView(rv, in.AuthorID))
}

func (h *Handlers) getReview(w http.ResponseWriter, r *http.Request) {
	v, err := h.Q.GetReview(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("voter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, v)
}

func (h *Handlers) putReview(w http.ResponseWriter, r *http.Request) {
	var rv domain.Review
	if err := decode(w, r, &rv); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.C.Put(r.Context(), chi.URLParam(r, "id"), &rv)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeValue(w, http.StatusOK, app.ToView(out, ""))
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.C.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// voteRequest also accepts the ledger's own "isRelevant" key.
type voteRequest struct {
	AuthorID   string            `json:"authorId"`
	Relevant   domain.Relevance  `json:"relevant"`
	IsRelevant *domain.Relevance `json:"isRelevant"`
}

func (h *Handlers) vote(w http.ResponseWriter, r *http.Request) {
	var in voteRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rel := in.Relevant
	if in.IsRelevant != nil {
		rel = *in.IsRelevant
	}
	rv, err := h.C.RegisterVote(r.Context(), chi.URLParam(r, "id"), in.AuthorID, rel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeValue(w, http.StatusOK, app.ToView(rv, in.AuthorID))
}

func (h *Handlers) getVote(w http.ResponseWriter, r *http.Request) {
	st, err := h.Q.VoteFor(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("authorId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, st)
}

// approve takes {"approved": bool} or a bare boolean.
func (h *Handlers) approve(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decode(w, r, &raw); err != nil {
		writeError(w, r, err)
		return
	}
	var approved bool
	if err := json.Unmarshal(raw, &approved); err != nil {
		var obj struct {
			Approved *bool `json:"approved"`
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		if err := dec.Decode(&obj); err != nil || obj.Approved == nil {
			writeError(w, r, fmt.Errorf("%w: body must be a boolean or {\"approved\": bool}", domain.ErrValidation))
			return
		}
		approved = *obj.Approved
	}
	rv, err := h.C.SetApproval(r.Context(), chi.URLParam(r, "id"), approved)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeValue(w, http.StatusOK, app.ToView(rv, ""))
}

// ---- items ----

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	onlyApproved, err := optBool(r, "onlyApproved")
	if err != nil {
		writeError(w, r, err)
		return
	}
	skip, err := optInt(r, "skip")
	if err != nil {
		writeError(w, r, err)
		return
	}
	take, err := optInt(r, "take")
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.Q.ListReviews(r.Context(), app.ListQuery{
		ItemID:       chi.URLParam(r, "id"),
		OnlyApproved: onlyApproved,
		Sort:         domain.SortOrder(r.URL.Query().Get("sort")),
		Skip:         skip,
		Take:         take,
		VoterID:      r.URL.Query().Get("voter"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) reviewByAuthor(w http.ResponseWriter, r *http.Request) {
	v, err := h.Q.ReviewByAuthor(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "authorId"), r.URL.Query().Get("voter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, v)
}

type ratingResponse struct {
	ItemID  string  `json:"itemId"`
	Average float64 `json:"average"`
}

func (h *Handlers) rating(w http.ResponseWriter, r *http.Request) {
	onlyApproved, err := optBool(r, "onlyApproved")
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID := chi.URLParam(r, "id")
	avg, err := h.Q.AverageRating(r.Context(), itemID, onlyApproved)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, ratingResponse{ItemID: itemID, Average: avg})
}

func (h *Handlers) stars(w http.ResponseWriter, r *http.Request) {
	onlyApproved, err := optBool(r, "onlyApproved")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.Q.StarsSummary(r.Context(), chi.URLParam(r, "id"), onlyApproved)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, s)
}

func (h *Handlers) summary(w http.ResponseWriter, r *http.Request) {
	onlyApproved, err := optBool(r, "onlyApproved")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.Q.Summary(r.Context(), chi.URLParam(r, "id"), onlyApproved)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, s)
}
