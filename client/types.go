package client

import (
	"encoding/json"
	"sort"
)

// ArtifactDescriptor locates one output file on the backend
type ArtifactDescriptor struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Outputs maps an output slot (node id) to the artifacts it produced
type Outputs map[string][]ArtifactDescriptor

// Slot returns the artifacts of one slot, nil when absent
func (o Outputs) Slot(name string) []ArtifactDescriptor {
	return o[name]
}

// Clone returns a copy that shares no map or slice with o
func (o Outputs) Clone() Outputs {
	if o == nil {
		return nil
	}
	out := make(Outputs, len(o))
	for slot, artifacts := range o {
		out[slot] = append([]ArtifactDescriptor(nil), artifacts...)
	}
	return out
}

// Count returns the number of artifacts across all slots
func (o Outputs) Count() int {
	n := 0
	for _, artifacts := range o {
		n += len(artifacts)
	}
	return n
}

type promptRequest struct {
	Prompt   any    `json:"prompt"`
	ClientID string `json:"client_id"`
}

type promptResponse struct {
	PromptID   string                     `json:"prompt_id"`
	Number     int                        `json:"number"`
	NodeErrors map[string]json.RawMessage `json:"node_errors"`
}

type historyEntry struct {
	Outputs map[string]map[string]json.RawMessage `json:"outputs"`
	Status  *struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
}

// finished reports whether the entry can no longer change
func (h historyEntry) finished() bool {
	return h.Status == nil || h.Status.Completed || h.Status.StatusStr == "error"
}

// outputs collects every list-valued field whose entries carry a filename
func (h historyEntry) outputs() Outputs {
	out := make(Outputs, len(h.Outputs))
	for node, fields := range h.Outputs {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		var artifacts []ArtifactDescriptor
		for _, name := range names {
			var items []ArtifactDescriptor
			if err := json.Unmarshal(fields[name], &items); err != nil {
				continue
			}
			for _, item := range items {
				if item.Filename != "" {
					artifacts = append(artifacts, item)
				}
			}
		}
		if len(artifacts) > 0 {
			out[node] = artifacts
		}
	}
	return out
}

type backendError struct {
	Error      json.RawMessage            `json:"error"`
	NodeErrors map[string]json.RawMessage `json:"node_errors"`
}

type backendErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type nodeError struct {
	Errors []backendErrorDetail `json:"errors"`
}
