// AngelaMos | 2026
// response.go

package core

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Denial codes shared by every service that enforces access. Feature and
// service guards report role mismatches under their own code.
// INSUFFICIENT_ROLE is added for guards with no capability to name
// (RequireRole, Protect); ENTITLEMENT_MISCONFIGURED marks matrix drift and
// comes with a 500, never a 403.
const (
	CodeAuthRequired         = "AUTH_REQUIRED"
	CodeInsufficientRole     = "INSUFFICIENT_ROLE"
	CodeFeatureAccessDenied  = "FEATURE_ACCESS_DENIED"
	CodeServiceAccessDenied  = "SERVICE_ACCESS_DENIED"
	CodeProRequired          = "PRO_REQUIRED"
	CodeAlreadyPro           = "ALREADY_PRO"
	CodeEntitlementMisconfig = "ENTITLEMENT_MISCONFIGURED"
)

// Denial is the flat body returned by access guards. UpgradeURL is only
// populated together with UpgradeRequired.
type Denial struct {
	Error           string `json:"error"`
	Code            string `json:"code"`
	UpgradeRequired bool   `json:"upgradeRequired,omitempty"`
	UpgradeURL      string `json:"upgradeUrl,omitempty"`
}

func WriteDenial(w http.ResponseWriter, status int, d Denial) {
	if !d.UpgradeRequired {
		d.UpgradeURL = ""
	}
	writeJSON(w, status, d)
}

func JSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Paginated(w http.ResponseWriter, data any, page, pageSize, total int) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

func JSONError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		InternalServerError(w, err)
		return
	}

	writeJSON(w, appErr.StatusCode, Response{
		Success: false,
		Error: &ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
		},
	})
}

func BadRequest(w http.ResponseWriter, message string) {
	JSONError(w, NewAppError(ErrInvalidInput, message, http.StatusBadRequest, "BAD_REQUEST"))
}

func Unauthorized(w http.ResponseWriter, message string) {
	JSONError(w, UnauthorizedError(message))
}

func Forbidden(w http.ResponseWriter, message string) {
	JSONError(w, ForbiddenError(message))
}

func NotFound(w http.ResponseWriter, resource string) {
	JSONError(w, NotFoundError(resource))
}

func InternalServerError(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)

	writeJSON(w, http.StatusInternalServerError, Response{
		Success: false,
		Error: &ErrorBody{
			Code:    "INTERNAL_ERROR",
			Message: "internal server error",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort response write
	_ = json.NewEncoder(w).Encode(body)
}
