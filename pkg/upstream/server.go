package upstream

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mhkang/flowscope/pkg/logging"
	"github.com/mhkang/flowscope/pkg/model"
)

// Handler returns the demo service's HTTP routes, mountable standalone or
// inside the panel server process.
func Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/network/customer-flow/segments", handleSegments).Methods("GET")
	r.HandleFunc("/network/customer-flow", handleFlow).Methods("POST")
	return r
}

func handleSegments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SegmentOptions())
}

func handleFlow(w http.ResponseWriter, r *http.Request) {
	var request model.FlowRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	response, err := BuildFlow(request)
	if err != nil {
		var notFound *ErrSegmentNotFound
		if errors.As(err, &notFound) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.ErrorContext(r.Context(), "failed to build flow", "segment", request.Segment, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build customer flow network")
		return
	}

	logging.DebugContext(r.Context(), "served demo flow",
		"segment", request.Segment, "edges", response.Summary.EdgeCount)
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
