package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/rs/zerolog/log"
)

// Recovery middleware recovers from panics and answers with a failed envelope
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Error().
					Interface("error", err).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(models.Fail[any]("Internal Server Error", fmt.Errorf("%v", err)))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
