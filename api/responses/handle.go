package responses

import (
	"net/http"

	"github.com/bukkus/bukkus-backend/pkg/logger"
)

// ReplayedHeader marks a response served from an earlier identical request.
const ReplayedHeader = "Idempotent-Replayed"

// Reply is a successful outcome of an Endpoint.
type Reply struct {
	Status   int
	Body     any
	Replayed bool
}

func OK(body any) Reply { return Reply{Status: http.StatusOK, Body: body} }

func Created(body any) Reply { return Reply{Status: http.StatusCreated, Body: body} }

// Stored is Created for a fresh write and OK, flagged as replayed, for a
// write the ledger had already recorded under the same idempotency key.
func Stored(body any, replayed bool) Reply {
	if replayed {
		return Reply{Status: http.StatusOK, Body: body, Replayed: true}
	}
	return Created(body)
}

// Endpoint is a handler that returns its outcome instead of writing it.
type Endpoint func(r *http.Request) (Reply, error)

// Handle renders ep's Reply as a success envelope, or its error through WriteError.
func Handle(logg *logger.Logger, ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply, err := ep(r)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}
		if reply.Replayed {
			w.Header().Set(ReplayedHeader, "true")
		}
		status := reply.Status
		if status == 0 {
			status = http.StatusOK
		}
		WriteSuccessStatus(w, status, reply.Body)
	}
}
