package main

import "os"

// fileTarget implements device.Target against a plain backing file; the
// real local block target (spec §1, "submit/endio semantics") is an
// external collaborator the core never implements, but the daemon still
// needs something concrete to exercise it against.
type fileTarget struct {
	f *os.File
}

func newFileTarget(path string) (*fileTarget, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileTarget{f: f}, nil
}

func (t *fileTarget) ReadAt(p []byte, sector uint64) (int, error) {
	return t.f.ReadAt(p, int64(sector))
}

func (t *fileTarget) WriteAt(p []byte, sector uint64) (int, error) {
	return t.f.WriteAt(p, int64(sector))
}

func (t *fileTarget) Close() error {
	return t.f.Close()
}
