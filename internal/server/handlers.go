package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kitbuilder587/boing-search/internal/search"
	"github.com/kitbuilder587/boing-search/internal/textfold"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	pref := search.ParsePreference(q.Get("premium"))

	if !s.allow(w, r) {
		return
	}

	resp, err := s.engine.FirstSearch(r.Context(), query, pref)
	if err != nil {
		s.handleSearchError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.buildResponse(query, resp, q.Get("ascii") != ""))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ascii := q.Get("ascii") != ""
	q.Del("ascii")

	token := search.TokenFromValues(q)
	if token.IsEmpty() {
		s.writeError(w, http.StatusBadRequest, "invalid_token", "continuation parameters are required")
		return
	}

	if !s.allow(w, r) {
		return
	}

	resp, err := s.engine.NextPage(r.Context(), token)
	if err != nil {
		s.handleSearchError(w, err)
		return
	}

	query, _ := token.Get("q")
	s.writeJSON(w, http.StatusOK, s.buildResponse(query, resp, ascii))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if s.quota == nil {
		s.writeError(w, http.StatusNotFound, "not_configured", "premium provider is not configured")
		return
	}

	left, err := s.quota.SearchesLeft(r.Context())
	if err != nil {
		s.handleSearchError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, AccountResponse{SearchesLeft: left})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) buildResponse(query string, resp *search.Response, ascii bool) SearchResponse {
	records := resp.Records
	if ascii {
		records = make([]search.Record, len(resp.Records))
		for i, rec := range resp.Records {
			records[i] = search.Record{
				Link:          rec.Link,
				DisplayedLink: textfold.ASCII(rec.DisplayedLink),
				Title:         textfold.ASCII(rec.Title),
				Snippet:       textfold.ASCII(rec.Snippet),
			}
		}
	}
	if records == nil {
		records = []search.Record{}
	}

	out := SearchResponse{
		Query:   query,
		Premium: resp.Continuation.IsPremium(),
		Results: records,
	}
	if !resp.Continuation.IsEmpty() {
		values := resp.Continuation.Values()
		if ascii {
			values.Set("ascii", "1")
		}
		out.Next = &NextPage{
			Token: resp.Continuation,
			URL:   s.basePath + "api/next?" + values.Encode(),
		}
	}
	return out
}

func (s *Server) handleSearchError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("search failed", zap.Error(err))
	} else {
		s.logger.Info("search rejected", zap.Error(err))
	}
	s.writeError(w, status, code, err.Error())
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, search.ErrPolicyRejected):
		return http.StatusBadRequest, "policy_rejected"
	case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, search.ErrQueryTooLong):
		return http.StatusBadRequest, "bad_query"
	case errors.Is(err, search.ErrInvalidToken):
		return http.StatusBadRequest, "invalid_token"
	case errors.Is(err, search.ErrTimeout):
		return http.StatusBadGateway, "upstream_timeout"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}
