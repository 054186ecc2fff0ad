package apiv1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/infra/logging"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const maxBodyBytes = 16 << 20

type errorBody struct {
	Error struct {
		Code    domain.Code `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
}

func statusOf(code domain.Code) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeBadRequest:
		return http.StatusBadRequest
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case domain.CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the taxonomy. Internal causes are logged, never
// returned to the caller.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := statusOf(code)
	if status >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	var body errorBody
	body.Error.Code = code
	body.Error.Message = domain.MessageOf(err, http.StatusText(status))
	writeJSON(w, status, body)
}

// decodeBody reads a JSON body into dst and validates it.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return domain.BadRequest("request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.BadRequest("request body is required")
		}
		return domain.BadRequest("malformed JSON body")
	}
	return s.check(dst)
}

func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.BadRequest(fmt.Sprintf("%s failed %s validation", lowerFirst(fe.Field()), fe.Tag()))
	}
	return domain.BadRequest("invalid request")
}

// pathID returns the uuid path parameter name; anything else cannot exist.
func pathID(r *http.Request, name, what string) (string, error) {
	v := urlParam(r, name)
	if _, err := uuid.Parse(v); err != nil {
		return "", domain.NotFound(what + " not found")
	}
	return v, nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
