package axiom

// OpenMode selects the capabilities an open context is armed with.
type OpenMode uint8

const (
	OpenRead OpenMode = 1 << iota
	OpenWrite

	OpenReadWrite = OpenRead | OpenWrite
)

// Requires maps the open mode onto the entry mode bits it needs.
func (m OpenMode) Requires() Mode {
	var need Mode
	if m&OpenRead != 0 {
		need |= ModeReadable
	}
	if m&OpenWrite != 0 {
		need |= ModeWritable
	}
	return need
}

func (m OpenMode) String() string {
	switch m {
	case OpenRead:
		return "r"
	case OpenWrite:
		return "w"
	case OpenReadWrite:
		return "rw"
	default:
		return "-"
	}
}

// ReadRequest parameterizes OpenContext.Read. Count limits a read from a
// seekable text or byte value; zero reads to the end.
type ReadRequest struct {
	Count int `json:"count,omitempty"`
}

// WriteRequest parameterizes OpenContext.Write.
type WriteRequest struct {
	Value any `json:"value"`
	// Append concatenates onto a text or byte value instead of replacing it.
	Append bool `json:"append,omitempty"`
}
