package requests

import (
	"encoding/json"
)

// NodeType is the "type" discriminator of a seed entry.
type NodeType = string

const (
	NodeDir   NodeType = "dir"
	NodeData  NodeType = "data"
	NodeMount NodeType = "mount"
)

// NodeRequestDTO is the JSON representation of the fields every seed entry
// carries.
type NodeRequestDTO struct {
	Path string   `json:"path"`
	Type NodeType `json:"type"`
	ID   *string  `json:"id,omitempty"` // Optional request ID for log correlation
}

type DirRequestDTO struct {
	NodeRequestDTO
}

// DataRequestDTO is the JSON representation of a data entry. Either Value or
// Sources is set; with sources the entry loads through them in order.
//
// Additional source fields depend on the source "type":
//
// Ex. For type="http" (see [adapters.HTTPSource]):
//
//	URL     string            `json:"url"`
//	Headers map\[string\]string `json:"headers,omitempty"`
//	TTL     *float64          `json:"ttl,omitempty"`
type DataRequestDTO struct {
	NodeRequestDTO
	Mode    *string           `json:"mode,omitempty"` // "r", "w", "s" letters; default "rws"
	Value   any               `json:"value,omitempty"`
	Sources []json.RawMessage `json:"sources,omitempty"`
	TTL     *float64          `json:"ttl,omitempty"` // Cache TTL in seconds for source backed data
}

// MountRequestDTO attaches a backend at Path.
type MountRequestDTO struct {
	NodeRequestDTO
	Backend string            `json:"backend"`
	Name    string            `json:"name,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}
