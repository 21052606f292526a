package server

import "github.com/kitbuilder587/boing-search/internal/search"

type SearchResponse struct {
	Query   string          `json:"query,omitempty"`
	Premium bool            `json:"premium"`
	Results []search.Record `json:"results"`
	Next    *NextPage       `json:"next,omitempty"`
}

// NextPage carries the continuation both as fields and as a ready link.
type NextPage struct {
	Token search.Token `json:"token"`
	URL   string       `json:"url"`
}

type AccountResponse struct {
	SearchesLeft int `json:"searches_left"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
