package requests

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/adapters"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/filesystem"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
)

// GetNodeType extracts the node type from JSON without full unmarshaling
func GetNodeType(data []byte) (NodeType, error) {
	var meta struct {
		Type NodeType `json:"type"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", fserr.Wrap(err, fserr.Invalid, "malformed seed entry")
	}
	return meta.Type, nil
}

// Unmarshal decodes one seed entry of any type.
func Unmarshal(data []byte, registry *adapters.Registry) (Request, error) {
	nodeType, err := GetNodeType(data)
	if err != nil {
		return nil, err
	}
	switch nodeType {
	case NodeDir:
		return UnmarshalDirRequest(data)
	case NodeData:
		return UnmarshalDataRequest(data, registry)
	case NodeMount:
		return UnmarshalMountRequest(data)
	case "":
		return nil, fserr.New(fserr.Missing, "seed entry has no type")
	default:
		return nil, fserr.Newf(fserr.Invalid, "unknown seed entry type %q", nodeType)
	}
}

// UnmarshalDirRequest handles explicit directory unmarshaling
func UnmarshalDirRequest(data []byte) (*DirRequest, error) {
	var dto DirRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fserr.Wrap(err, fserr.Invalid, "malformed dir entry")
	}
	node, err := convertNodeDTO(dto.NodeRequestDTO)
	if err != nil {
		return nil, err
	}
	return &DirRequest{NodeRequest: node}, nil
}

// UnmarshalDataRequest handles data unmarshaling, building sources through
// registry.
func UnmarshalDataRequest(data []byte, registry *adapters.Registry) (*DataRequest, error) {
	var dto DataRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fserr.Wrap(err, fserr.Invalid, "malformed data entry")
	}
	node, err := convertNodeDTO(dto.NodeRequestDTO)
	if err != nil {
		return nil, err
	}

	mode, err := ParseMode(valueOrDefault(dto.Mode, "rws"))
	if err != nil {
		return nil, err
	}
	req := &DataRequest{NodeRequest: node, Mode: mode, Value: dto.Value}
	if dto.TTL != nil {
		ttl := time.Duration(*dto.TTL * float64(time.Second))
		req.TTL = &ttl
	}

	if len(dto.Sources) > 0 && registry == nil {
		return nil, fserr.New(fserr.Invalid, "data entry has sources but no source registry is configured")
	}
	for i, raw := range dto.Sources {
		src, err := registry.NewSource(raw)
		if err != nil {
			return nil, fserr.Wrapf(err, fserr.KindOf(err), "source %d of %s", i, node.Path.Spec())
		}
		req.Sources = append(req.Sources, src)
	}
	return req, nil
}

// UnmarshalMountRequest handles mount unmarshaling
func UnmarshalMountRequest(data []byte) (*MountRequest, error) {
	var dto MountRequestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fserr.Wrap(err, fserr.Invalid, "malformed mount entry")
	}
	node, err := convertNodeDTO(dto.NodeRequestDTO)
	if err != nil {
		return nil, err
	}
	if dto.Backend == "" {
		return nil, fserr.Newf(fserr.Missing, "mount %s needs a backend", node.Path.Spec())
	}
	name := dto.Name
	if name == "" {
		name = node.Path.BaseName()
	}
	return &MountRequest{
		NodeRequest: node,
		Mount: config.MountConfig{
			Type:    dto.Backend,
			Name:    name,
			Path:    node.Path.Spec(),
			Options: dto.Options,
		},
	}, nil
}

// ParseMode reads a mode from its letters: r readable, w writable,
// s seekable.
func ParseMode(s string) (axiom.Mode, error) {
	var mode axiom.Mode
	for _, c := range strings.ToLower(s) {
		switch c {
		case 'r':
			mode |= axiom.ModeReadable
		case 'w':
			mode |= axiom.ModeWritable
		case 's':
			mode |= axiom.ModeSeekable
		default:
			return 0, fserr.Newf(fserr.Invalid, "unknown mode letter %q in %q", c, s)
		}
	}
	if mode == 0 {
		return filesystem.DefaultDataMode, nil
	}
	return mode, nil
}

// Conversion logic with defaults in the unmarshaling layer
func convertNodeDTO(dto NodeRequestDTO) (NodeRequest, error) {
	p := fspath.Parse(dto.Path)
	if dto.Path == "" || !p.IsValid() {
		return NodeRequest{}, fserr.Newf(fserr.Invalid, "invalid seed path %q", dto.Path)
	}
	if p.IsRoot() {
		return NodeRequest{}, fserr.New(fserr.Invalid, "seed entries cannot target the root")
	}
	return NodeRequest{
		ID:   valueOrDefault(dto.ID, uuid.New().String()),
		Path: p,
		Type: dto.Type,
	}, nil
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}
