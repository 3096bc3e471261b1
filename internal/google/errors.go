package google

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/fieldline/workspace-bff/model"
)

// wrapError converts a Google API failure into the service's error currency.
// 401s are flagged for re-authentication; other statuses pass through with
// the upstream status and a stable code, never the raw upstream body.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var api *model.APIError
	if errors.As(err, &api) {
		return api
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	switch gerr.Code {
	case http.StatusUnauthorized:
		return model.NewAuthRequired("")
	case http.StatusForbidden:
		return &model.APIError{
			StatusCode: http.StatusForbidden,
			Code:       "GOOGLE_PERMISSION_DENIED",
			Message:    "Google rejected the request: insufficient permissions for this account",
		}
	case http.StatusNotFound:
		return &model.APIError{
			StatusCode: http.StatusNotFound,
			Code:       "GOOGLE_NOT_FOUND",
			Message:    "The requested Google resource does not exist",
		}
	case http.StatusTooManyRequests:
		return model.NewRateLimited("Google API rate limit exceeded; try again shortly")
	default:
		return &model.APIError{
			StatusCode: gerr.Code,
			Code:       "GOOGLE_API_ERROR",
			Message:    "Google API request failed",
		}
	}
}
