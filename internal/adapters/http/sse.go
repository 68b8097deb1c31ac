package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

type streamChunk struct {
	Delta string `json:"delta"`
}

type streamFinal struct {
	Success  bool           `json:"success"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// streamResponse delivers an answer as server-sent events: one data event
// per text chunk, a final event with the complete response, then [DONE].
func streamResponse(w http.ResponseWriter, response domain.AgentResponse) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		drain(response.TextStream)
		writeJSON(w, statusForResponse(response), response)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for chunk := range response.TextStream {
		payload, err := json.Marshal(streamChunk{Delta: chunk})
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client gone. Unblock the chunk producer before giving up.
			drain(response.TextStream)
			return
		}
		flusher.Flush()
	}

	final, err := json.Marshal(streamFinal{
		Success:  response.Success,
		Text:     response.Text,
		Metadata: response.Metadata,
	})
	if err == nil {
		_, _ = fmt.Fprintf(w, "event: final\ndata: %s\n\n", final)
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func drain(stream <-chan string) {
	for range stream {
	}
}
