package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func errNotFound(tankID string) error {
	return fmt.Errorf("tank %q not found", tankID)
}

// ErrorResponse is the JSON body returned on any handler error.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func handleError(err error, statusCode int, rw http.ResponseWriter) {
	alog.Warnf("request error: %s", err.Error())
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(ErrorResponse{
		Status: http.StatusText(statusCode),
		Error:  err.Error(),
	})
}

func decode(r io.Reader, val interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(val)
}

func writeJSON(rw http.ResponseWriter, val interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(val); err != nil {
		alog.Errorf("encode response: %v", err)
	}
}
