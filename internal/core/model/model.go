package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNoGeometry   = fmt.Errorf("no geometry: %w", ErrNotFound)
	ErrNoData       = fmt.Errorf("no data: %w", ErrNotFound)
	ErrBadReference = errors.New("bad reference")
)

// UpstreamError is returned when the record store or the warehouse fails.
type UpstreamError struct {
	Upstream string
	Op       string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Upstream, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func Upstream(upstream, op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Upstream: upstream, Op: op, Err: err}
}

// ApplicationID scopes projects to one of the client applications.
type ApplicationID string

const (
	AppAll ApplicationID = "all"
	AppCCL ApplicationID = "ccl"
	AppCID ApplicationID = "cid"
)

func (a ApplicationID) Valid() bool {
	switch a {
	case "", AppAll, AppCCL, AppCID:
		return true
	}
	return false
}

// GeoQuery selects the geographies of one city at one administrative level.
type GeoQuery struct {
	CityID      string
	AdminLevel  string
	IndicatorID string
}
