package reject

import (
	"net/http"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/rs/zerolog/log"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:      http.StatusBadRequest,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindIneligibleState: http.StatusConflict,
	apperr.KindConflict:        http.StatusConflict,
	apperr.KindTransfer:        http.StatusBadGateway,
}

var kindTitle = map[apperr.Kind]string{
	apperr.KindValidation:      "Invalid request",
	apperr.KindNotFound:        "Record not found",
	apperr.KindIneligibleState: "Operation not allowed in current state",
	apperr.KindConflict:        "Concurrent modification",
	apperr.KindTransfer:        "Transfer failed",
}

// FromError maps a domain error to the problem returned to clients. Errors
// with no domain code become an unexpected problem.
func FromError(err error) *ProblemWithTrace {
	if err == nil {
		return nil
	}
	if p, ok := err.(*ProblemWithTrace); ok {
		return p
	}

	e, ok := apperr.As(err)
	if !ok {
		return &ProblemWithTrace{Problem: UnexpectedProblem(err), Cause: err}
	}
	status, known := kindStatus[e.Kind()]
	if !known {
		return &ProblemWithTrace{Problem: UnexpectedProblem(err), Cause: err}
	}
	if e.Kind() == apperr.KindTransfer {
		log.Warn().Err(err).Str("code", string(e.Code)).Msg("Transfer problem returned to client")
	}

	problem := NewProblem().
		WithTitle(kindTitle[e.Kind()]).
		WithStatus(status).
		WithCode(string(e.Code)).
		WithDetail(e.Message)
	for k, v := range e.Metadata {
		problem.WithParam(k, v)
	}
	return &ProblemWithTrace{Problem: problem.Build(), Cause: err}
}
