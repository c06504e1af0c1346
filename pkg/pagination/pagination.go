package pagination

import (
	"math"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	// MaxOffset bounds offsets so offset+limit and page arithmetic cannot
	// overflow, and stays within a 32-bit SQL integer.
	MaxOffset = math.MaxInt32 - MaxLimit
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context. The
// page number takes precedence over a raw offset.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if page, err := strconv.Atoi(c.QueryParam("page")); err == nil && page > 0 {
		if maxPage := MaxOffset/limit + 1; page > maxPage {
			page = maxPage
		}
		offset = (page - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}
	if offset > MaxOffset {
		offset = MaxOffset
	}

	return Params{Limit: limit, Offset: offset}
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   *Links      `json:"links,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Page is the 1-based page number of the current offset.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Pages is the number of pages needed for total results, at least 1.
func (p Params) Pages(total int) int {
	if p.Limit <= 0 || total <= 0 {
		return 1
	}
	return (total + p.Limit - 1) / p.Limit
}

// Links are navigation URLs for a paged list. Empty fields mean there is
// no such page.
type Links struct {
	Self     string `json:"self"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// Links builds page URLs for basePath. Filter parameters in query are
// carried over; offset and page parameters are replaced.
func (p Params) Links(basePath string, query url.Values, total int) Links {
	build := func(offset int) string {
		q := url.Values{}
		for k, vs := range query {
			if k == "offset" || k == "page" || k == "limit" {
				continue
			}
			for _, v := range vs {
				if v != "" {
					q.Add(k, v)
				}
			}
		}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(p.Limit))
		return basePath + "?" + q.Encode()
	}

	links := Links{Self: build(p.Offset)}
	if p.HasNext(total) {
		links.Next = build(p.NextOffset())
	}
	if p.HasPrevious() {
		links.Previous = build(p.PreviousOffset())
	}
	return links
}
