package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/macroforge/macroforge/internal/executor"
	"github.com/macroforge/macroforge/internal/store"
)

// apiError carries the boundary error-kind taxonomy (spec §7) alongside an
// HTTP status and the message returned in the {"error": ...} body.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func errBadRequest(msg string) *apiError    { return &apiError{http.StatusBadRequest, msg} }
func errNotFound(msg string) *apiError      { return &apiError{http.StatusNotFound, msg} }
func errConflict(msg string) *apiError      { return &apiError{http.StatusConflict, msg} }
func errPrecondition(msg string) *apiError  { return &apiError{http.StatusPreconditionFailed, msg} }
func errExternalFail(msg string) *apiError  { return &apiError{http.StatusBadGateway, msg} }
func errInternal() *apiError                { return &apiError{http.StatusInternalServerError, "internal error"} }

// classifyErr maps a Store/Executor sentinel error onto spec §7's kind
// taxonomy. Anything unrecognized is redacted to Internal.
func classifyErr(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errNotFound(err.Error())
	case errors.Is(err, store.ErrForeignKey):
		return errBadRequest(err.Error())
	case errors.Is(err, store.ErrConflict):
		return errConflict(err.Error())
	case errors.Is(err, executor.ErrConflict):
		return errConflict(err.Error())
	case errors.Is(err, executor.ErrNotDone):
		return errPrecondition(err.Error())
	case errors.Is(err, executor.ErrPrecondition):
		return errPrecondition(err.Error())
	case errors.Is(err, executor.ErrNoSession):
		return errPrecondition(err.Error())
	default:
		return errInternal()
	}
}

func writeError(w http.ResponseWriter, err error) {
	ae := classifyErr(err)
	writeJSON(w, ae.status, map[string]string{"error": ae.message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest("malformed request body: " + err.Error())
	}
	return nil
}

func decodeJSONBytes(raw []byte, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadRequest("malformed request body: " + err.Error())
	}
	return nil
}
