package api

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
)

const (
	defaultLimit = 25
	maxLimit     = 500
)

type meta struct {
	Count int `json:"count"`
}

type navigationLinks struct {
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
	Next  string `json:"next,omitempty"`
	Prev  string `json:"prev,omitempty"`
}

type paginatedResponse struct {
	Meta  meta            `json:"meta"`
	Links navigationLinks `json:"links"`
	Data  interface{}     `json:"data"`
}

func getOffsetAndLimitFromQueryParams(req *http.Request) (offset int, limit int, err error) {
	offset, err = intQueryParam(req, "offset", 0)
	if err != nil || offset < 0 {
		return 0, 0, errors.New("Invalid offset")
	}

	limit, err = intQueryParam(req, "limit", defaultLimit)
	if err != nil || limit < 1 || limit > maxLimit {
		return 0, 0, errors.New("Invalid limit")
	}

	return offset, limit, nil
}

func intQueryParam(req *http.Request, name string, defaultValue int) (int, error) {
	value := req.URL.Query().Get(name)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func buildPaginatedResponse(u *url.URL, offset int, limit int, total int, data interface{}) *paginatedResponse {
	m := meta{Count: total}
	l := buildNavigationLinks(u, offset, limit, total)
	return &paginatedResponse{Meta: m, Links: *l, Data: data}
}

func buildNavigationLink(originalUrl *url.URL, offset int, limit int) string {
	copiedUrl := *originalUrl
	values := copiedUrl.Query()
	values.Set("offset", strconv.Itoa(offset))
	values.Set("limit", strconv.Itoa(limit))
	copiedUrl.RawQuery = values.Encode()
	return copiedUrl.String()
}

func buildNavigationLinks(u *url.URL, offset, limit, total int) *navigationLinks {
	if total == 0 {
		return &navigationLinks{}
	}

	lastOffset := calculateOffsetOfLastPage(total, limit)
	nextOffset := offset + limit
	previousOffset := offset - limit
	if previousOffset < 0 {
		previousOffset = 0
	}

	l := navigationLinks{
		First: buildNavigationLink(u, 0, limit),
		Last:  buildNavigationLink(u, lastOffset, limit),
	}

	if nextOffset < total {
		l.Next = buildNavigationLink(u, nextOffset, limit)
	}

	if offset > 0 {
		l.Prev = buildNavigationLink(u, previousOffset, limit)
	}

	return &l
}

func calculateOffsetOfLastPage(total int, limit int) int {
	lastPage := int(math.Floor(math.Max(float64(total-1), 0) / float64(limit)))
	return lastPage * limit
}
