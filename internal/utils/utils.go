package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type Envelope map[string]interface{}

// WriteJSON writes data as indented JSON. data is usually an Envelope.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	js, err := json.MarshalIndent(data, "", " ")
	if err != nil {
		fmt.Printf("error marshaling JSON: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	js = append(js, '\n')
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(js); err != nil {
		fmt.Printf("error writing JSON response: %v", err)
	}
}

// WriteError writes the error body every endpoint shares.
func WriteError(w http.ResponseWriter, status int, detail string) {
	WriteJSON(w, status, Envelope{"detail": detail})
}
