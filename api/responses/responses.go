package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, SuccessEnvelope{Data: data})
}

// Status returns the HTTP status and public message for err.
func Status(err error) (int, string) {
	typed := pkgerrors.As(err)
	if typed == nil {
		meta := pkgerrors.MetadataFor(pkgerrors.CodeInternal)
		return meta.HTTPStatus, meta.PublicMessage
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	if meta.ExposeMessage && typed.Message() != "" {
		return meta.HTTPStatus, typed.Message()
	}
	return meta.HTTPStatus, meta.PublicMessage
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())
	status, msg := Status(typed)

	payload := ErrorEnvelope{
		Error: APIError{
			Code:    string(typed.Code()),
			Message: msg,
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	LogError(ctx, logg, status, err)

	WriteJSON(w, status, payload)
}

// LogError records a failed request. Client errors log at warn level; server
// errors log at error level with the Postgres fields and a stack.
func LogError(ctx context.Context, logg *logger.Logger, status int, err error) {
	fields := pkgerrors.Diagnose(err).Fields()
	fields["status"] = status
	if typed := pkgerrors.As(err); typed != nil {
		fields["retryable"] = pkgerrors.MetadataFor(typed.Code()).Retryable
	}
	if status < http.StatusInternalServerError {
		delete(fields, "error_chain")
		logg.Warn(logg.WithFields(ctx, fields), "request.rejected")
		return
	}
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zlog.Error().Err(err).Int("status", status).Msg("response.encode_failed")
	}
}
