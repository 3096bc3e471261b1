package rpc

import (
	"errors"

	"github.com/fieldline/workspace-bff/model"
)

// Translate classifies any error escaping a dispatcher into a transportable
// APIError. The decision table is identical for every domain; only the
// fallback code differs.
//
// Order: auth (reauth required) → conflict → explicit status → fallback 500.
func Translate(err error, fallbackCode string) *model.APIError {
	if err == nil {
		return nil
	}
	var api *model.APIError
	if errors.As(err, &api) {
		switch {
		case api.RequiresReauth:
			out := *api
			out.StatusCode = 401
			if out.Code == "" {
				out.Code = model.CodeAuthRequired
			}
			return &out
		case api.Code == model.CodeConflict:
			out := *api
			if out.StatusCode == 0 {
				out.StatusCode = 409
			}
			return &out
		case api.StatusCode != 0:
			return api
		}
		out := *api
		out.StatusCode = 500
		if out.Code == "" {
			out.Code = fallbackCode
		}
		return &out
	}
	return model.NewInternal(fallbackCode)
}
