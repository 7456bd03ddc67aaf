package config

// MountOptions holds high-level settings for the FUSE bridge.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug        bool    // fuse debug logs
	FsName       string  // mount's FsName
	Name         string  // mount's Name
	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
}

// Backend types accepted in [MountConfig.Type].
const (
	MountMemory = "memory"
	MountBilly  = "billy"
	MountS3     = "s3"
	MountRemote = "remote"
)

// MountConfig attaches a backend to the namespace at startup. Root mounts
// (Path empty) are addressed as "name:/..."; otherwise the backend is mounted
// at Path inside the default root.
type MountConfig struct {
	Type    string            `yaml:"type" json:"type"`
	Name    string            `yaml:"name" json:"name"`
	Path    string            `yaml:"path,omitempty" json:"path,omitempty"`
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// Option returns an option value or def.
func (m MountConfig) Option(key, def string) string {
	if v, ok := m.Options[key]; ok && v != "" {
		return v
	}
	return def
}
