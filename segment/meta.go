package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
)

const MetaFilename = "shared_memory.meta"

// Meta is the process metadata stored next to the segment. Dirty stays set
// while a read-write process has the database open.
type Meta struct {
	Dirty bool      `json:"dirty"`
	Owner string    `json:"owner,omitempty"`
	Since time.Time `json:"since,omitzero"`
}

func ReadMeta(dir string) (*Meta, error) {
	meta := &Meta{}
	data, err := os.ReadFile(path.Join(dir, MetaFilename))
	if errors.Is(err, os.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("%w: meta: %v", ErrCorrupted, err)
	}
	return meta, nil
}

func WriteMeta(dir string, meta *Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	filename := path.Join(dir, MetaFilename)
	if err := os.WriteFile(filename+".tmp", data, 0666); err != nil {
		return err
	}
	return os.Rename(filename+".tmp", filename)
}

// CheckDirty fails with ErrDirty when a previous process did not close the
// database cleanly.
func CheckDirty(dir string, allowDirty bool) (*Meta, error) {
	meta, err := ReadMeta(dir)
	if err != nil {
		return nil, err
	}
	if meta.Dirty && !allowDirty {
		return meta, fmt.Errorf("%w: opened by %s since %s", ErrDirty, meta.Owner, meta.Since.Format(time.RFC3339))
	}
	return meta, nil
}

// MarkDirty sets the dirty flag on behalf of a new run.
func MarkDirty(dir string, allowDirty bool) (*Meta, error) {
	if _, err := CheckDirty(dir, allowDirty); err != nil {
		return nil, err
	}
	meta := &Meta{
		Dirty: true,
		Owner: uuid.NewString(),
		Since: time.Now().UTC(),
	}
	if err := WriteMeta(dir, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func MarkClean(dir string) error {
	return WriteMeta(dir, &Meta{})
}
