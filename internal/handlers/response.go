package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
	"github.com/rs/zerolog/log"
)

// maxBodySize bounds command bodies
const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func ok[T any](w http.ResponseWriter, status int, message string, data T) {
	writeJSON(w, status, models.OK(message, data))
}

// fail renders err into the envelope with the status of its kind
func fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("error_kind", string(services.KindOf(err))).Msg(message)
	}
	writeJSON(w, status, models.Fail[any](message, err))
}

func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidInput:
		return http.StatusBadRequest
	case services.KindInvariantViolation:
		return http.StatusConflict
	case services.KindBusiness:
		return http.StatusUnprocessableEntity
	case services.KindGateway:
		return http.StatusBadGateway
	case services.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errEmptyBody = errors.New("request body is empty")

// decode reads a JSON body into v. Failures are InvalidInput.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			err = errEmptyBody
		}
		return &services.Error{Kind: services.KindInvalidInput, Message: "invalid request body", Err: err}
	}
	return nil
}

// decodeOptional is decode for bodies whose fields are all optional
func decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) error {
	err := decode(w, r, v)
	if err != nil && errors.Is(err, errEmptyBody) {
		return nil
	}
	return err
}

// rawOrString keeps engine output that is already JSON as JSON
func rawOrString(s string) interface{} {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}

func purgeMessage(result services.PurgeResult) string {
	msg := fmt.Sprintf("purged %d of %d", len(result.Deleted), result.Matched)
	if n := len(result.Failures); n > 0 {
		msg += fmt.Sprintf(", %d failed", n)
	}
	return msg
}
