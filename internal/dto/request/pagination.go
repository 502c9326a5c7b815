package request

import (
	"net/url"

	"tour-booking/pkg/utils"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// PaginatedRequest selects one page of a caller's bookings.
type PaginatedRequest struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// PaginationFromQuery reads ?page= and ?per_page=; missing or non-positive
// values fall back to the first page of DefaultPerPage.
func PaginationFromQuery(q url.Values) *PaginatedRequest {
	return &PaginatedRequest{
		Page:    utils.ParseInt(q.Get("page"), 1),
		PerPage: utils.ParseInt(q.Get("per_page"), DefaultPerPage),
	}
}

func (p PaginatedRequest) CurrentPage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

func (p PaginatedRequest) Limit() int {
	switch {
	case p.PerPage < 1:
		return DefaultPerPage
	case p.PerPage > MaxPerPage:
		return MaxPerPage
	}
	return p.PerPage
}

// Offset uses the clamped page size so consecutive pages never overlap.
func (p PaginatedRequest) Offset() int {
	return (p.CurrentPage() - 1) * p.Limit()
}
