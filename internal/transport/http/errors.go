package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/ledger-service/internal/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.Unauthenticated:    http.StatusUnauthorized,
	apperr.PermissionDenied:   http.StatusForbidden,
	apperr.InvalidArgument:    http.StatusBadRequest,
	apperr.NotFound:           http.StatusNotFound,
	apperr.FailedPrecondition: http.StatusConflict,
	apperr.AlreadyExists:      http.StatusConflict,
	apperr.Internal:           http.StatusInternalServerError,
}

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Reason  string      `json:"reason,omitempty"`
	Message string      `json:"message"`
	LogID   string      `json:"log_id,omitempty"`
}

// writeError renders err with the status of its kind. Internal causes are
// not echoed to the caller.
func writeError(c *gin.Context, err error) {
	body := errorBody{Kind: apperr.Internal, Message: "internal error"}
	if e, ok := apperr.As(err); ok {
		body.Kind, body.Reason, body.LogID = e.Kind, e.Reason, e.LogID
		if e.Kind != apperr.Internal {
			body.Message = e.Message
		}
	}
	status, ok := statusByKind[body.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func badRequest(c *gin.Context, format string, args ...interface{}) {
	writeError(c, apperr.New(apperr.InvalidArgument, apperr.ReasonMissingField, format, args...))
}
