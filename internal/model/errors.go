package model

import "fmt"

// Error is the typed error surfaced to API clients. Every error carries a
// stable numeric code and machine-readable params so clients can branch
// without string matching.
type Error struct {
	Code       int
	HTTPStatus int
	Message    string
	Params     map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

// JSON returns the wire shape of the error envelope.
func (e *Error) JSON() map[string]any {
	params := e.Params
	if params == nil {
		params = map[string]string{}
	}
	return map[string]any{
		"code":   e.Code,
		"error":  e.Message,
		"params": params,
	}
}

// Error codes. These are part of the client contract and never renumbered.
const (
	CodeInternal           = 10
	CodeDisconnectedSource = 20
	CodeActionNotSupported = 30
	CodeSourceNotFound     = 40
	CodeUnauthenticated    = 50
	CodeNoPlan             = 60
	CodeExpiredPlan        = 70
	CodeInvalidFormat      = 60
	CodeTimeRangeEmpty     = 70
	CodeLimitExceeded      = 80
	CodeLayerNotFound      = 90
	CodeRouteNotFound      = 100
	CodeSourceAlreadyUsed  = 110
)

// NewDisconnectedSourceError reports that a source's credentials are
// permanently invalid; the client must prompt re-linking.
func NewDisconnectedSourceError(sourceID string) *Error {
	return &Error{
		Code:       CodeDisconnectedSource,
		HTTPStatus: 400,
		Message:    fmt.Sprintf("disconnected source `%s`", sourceID),
		Params:     map[string]string{"source_id": sourceID},
	}
}

// NewActionNotSupportedError reports that a provider has no implementation
// for the requested operation.
func NewActionNotSupportedError(action, providerName string) *Error {
	return &Error{
		Code:       CodeActionNotSupported,
		HTTPStatus: 400,
		Message:    fmt.Sprintf("action `%s` not supported for provider `%s`", action, providerName),
	}
}

// NewSourceNotFoundError reports that the referenced source is not attached
// to the user.
func NewSourceNotFoundError(sourceID string) *Error {
	return &Error{
		Code:       CodeSourceNotFound,
		HTTPStatus: 404,
		Message:    fmt.Sprintf("source `%s` not found", sourceID),
		Params:     map[string]string{"source_id": sourceID},
	}
}

// NewUnauthenticatedError reports a request with no valid session or user.
func NewUnauthenticatedError() *Error {
	return &Error{
		Code:       CodeUnauthenticated,
		HTTPStatus: 401,
		Message:    "user not authenticated",
	}
}

// NewNoPlanError reports that the user has no subscription plan.
func NewNoPlanError() *Error {
	return &Error{
		Code:       CodeNoPlan,
		HTTPStatus: 403,
		Message:    "user has no plan",
	}
}

// NewExpiredPlanError reports that the user's subscription has lapsed.
func NewExpiredPlanError() *Error {
	return &Error{
		Code:       CodeExpiredPlan,
		HTTPStatus: 403,
		Message:    "user's plan has expired",
	}
}

// NewInvalidFormatError reports a client-supplied value failing format
// validation, before any outbound call is made.
func NewInvalidFormatError(value, field, format string) *Error {
	return &Error{
		Code:       CodeInvalidFormat,
		HTTPStatus: 400,
		Message:    fmt.Sprintf("%s (`%s`) is in the wrong format `%s`", field, value, format),
	}
}

// NewTimeRangeEmptyError reports an empty time range (end before start).
func NewTimeRangeEmptyError(start, end string) *Error {
	return &Error{
		Code:       CodeTimeRangeEmpty,
		HTTPStatus: 400,
		Message:    fmt.Sprintf("time range between `%s` and `%s` is empty", start, end),
	}
}

// NewLimitError reports a field exceeding a provider-side limit.
func NewLimitError(field string, limit int) *Error {
	return &Error{
		Code:       CodeLimitExceeded,
		HTTPStatus: 400,
		Message:    fmt.Sprintf("`%s` reach the limit `%d`", field, limit),
	}
}

// NewLayerNotFoundError reports that the referenced layer is unknown.
func NewLayerNotFoundError(layerID string) *Error {
	return &Error{
		Code:       CodeLayerNotFound,
		HTTPStatus: 404,
		Message:    fmt.Sprintf("layer `%s` not found", layerID),
		Params:     map[string]string{"layer_id": layerID},
	}
}

// NewRouteNotFoundError reports an unknown route.
func NewRouteNotFoundError() *Error {
	return &Error{
		Code:       CodeRouteNotFound,
		HTTPStatus: 404,
		Message:    "route not found",
	}
}

// NewSourceAlreadyUsedError reports an alias collision: the provider account
// is already linked to a different user.
func NewSourceAlreadyUsedError(sourceID string) *Error {
	return &Error{
		Code:       CodeSourceAlreadyUsed,
		HTTPStatus: 400,
		Message:    fmt.Sprintf("source `%s` already used by another user", sourceID),
		Params:     map[string]string{"source_id": sourceID},
	}
}
