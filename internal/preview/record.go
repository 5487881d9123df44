package preview

import (
	"encoding/json"
	"io/fs"
	"time"
)

// Record is the side-car metadata stored next to a cached preview.
//
// It is written in stages: first with only MTime and Size, later with Width,
// Height and BlurHash once a preview has been rendered. Absent derived fields
// are a normal state, not a broken record.
type Record struct {
	MTime    *float64 `json:"mtime,omitempty"`
	Size     *int64   `json:"size,omitempty"`
	Width    *int     `json:"width,omitempty"`
	Height   *int     `json:"height,omitempty"`
	BlurHash *string  `json:"blurHash,omitempty"`
}

// Identity is the (mtime, size) snapshot of a source file. MTime is in
// milliseconds with sub-millisecond precision kept as a fraction.
type Identity struct {
	MTime float64
	Size  int64
}

// IdentityOf snapshots a file.
func IdentityOf(info fs.FileInfo) Identity {
	return Identity{MTime: MTimeMillis(info.ModTime()), Size: info.Size()}
}

// MTimeMillis converts a modification time to fractional milliseconds.
func MTimeMillis(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e6
}

// IsValid reports whether a record snapshot still matches the source file.
// There is no tolerance window: any drift is stale.
func IsValid(src Identity, recMTime *float64, recSize *int64) bool {
	if recMTime == nil || recSize == nil {
		return false
	}
	return *recMTime == src.MTime && *recSize == src.Size
}

// Matches reports whether r was taken from a file with identity id.
func (r *Record) Matches(id Identity) bool {
	return r != nil && IsValid(id, r.MTime, r.Size)
}

// HasDimensions reports whether width and height were recorded.
func (r *Record) HasDimensions() bool {
	return r != nil && r.Width != nil && r.Height != nil
}

func newRecord(id Identity) *Record {
	mtime, size := id.MTime, id.Size
	return &Record{MTime: &mtime, Size: &size}
}

func parseRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
