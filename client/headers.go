package client

import (
	"strings"

	"github.com/nczempin/httpc-conn/engine"
)

// Header is a request header name/value pair
type Header struct {
	Name  string
	Value string
}

type headerEntry struct {
	name  string
	value string
}

// headerStore maps case-insensitive header names to their last value
type headerStore struct {
	values map[string]headerEntry
}

func newHeaderStore() *headerStore {
	return &headerStore{values: make(map[string]headerEntry)}
}

func (h *headerStore) set(name, value string) {
	h.values[strings.ToLower(name)] = headerEntry{name: name, value: value}
}

func (h *headerStore) get(name string) (string, bool) {
	e, ok := h.values[strings.ToLower(name)]
	return e.value, ok
}

func (h *headerStore) len() int {
	return len(h.values)
}

func (h *headerStore) snapshot() map[string]string {
	out := make(map[string]string, len(h.values))
	for _, e := range h.values {
		out[e.name] = e.value
	}
	return out
}

// collector returns a handler that owns h for the duration of one fetch.
func (h *headerStore) collector() eventHandler {
	return func(ev *engine.Event) error {
		if ev.ID == engine.EventHeader {
			h.set(ev.HeaderKey, ev.HeaderValue)
		}
		return nil
	}
}
