// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tipflix/internal/middleware"
	"github.com/hitoshi/tipflix/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 1 << 20

var errViewerMissing = errors.New("viewer session missing from request context")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードする。
// 空ボディや不正なJSONは INVALID_REQUEST を返す。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return model.NewInvalidRequestError()
	}
	return nil
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外は詳細をログに残し、INTERNAL_ERRORとして返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidRequest, model.ErrCodeInvalidView:
		return http.StatusBadRequest
	case model.ErrCodeMovieNotFound, model.ErrCodeBannerNotFound, model.ErrCodeMetadataNotFound:
		return http.StatusNotFound
	case model.ErrCodeConfirmationRequired:
		return http.StatusPreconditionRequired
	case model.ErrCodeCSRFFailed:
		return http.StatusForbidden
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
