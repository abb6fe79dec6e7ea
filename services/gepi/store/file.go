package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File keeps the snapshot as a single JSON array on disk, written
// atomically through a rename. This mirrors how early deployments stored
// sessions next to the process.
type File struct {
	path string
}

func NewFile(path string) File {
	return File{path: path}
}

func (f File) Load(ctx context.Context) ([]Record, error) {
	contents, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	err = json.Unmarshal(contents, &records)
	if err != nil {
		return nil, fmt.Errorf("corrupt session snapshot at %s: %w", f.path, err)
	}
	return records, nil
}

func (f File) Save(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	contents, err := json.Marshal(records)
	if err != nil {
		return err
	}

	tmp := filepath.Join(
		filepath.Dir(f.path),
		fmt.Sprintf(".%s.tmp", filepath.Base(f.path)),
	)
	err = os.WriteFile(tmp, contents, 0600)
	if err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
