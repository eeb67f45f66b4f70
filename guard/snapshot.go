package guard

import (
	"fmt"
	"os"
	"path/filepath"

	gjson "github.com/goccy/go-json"

	"github.com/glycerine/paxlock/hash"
)

// snapshot file layout: a small JSON envelope holding
// the zstd compressed JSON of snapState and the blake3
// sum of that JSON before compression.

const snapVersion = 1

type snapState struct {
	Record  Record  `json:"record"`
	History []Entry `json:"history"`
}

type snapFile struct {
	Version  int    `json:"version"`
	Checksum string `json:"checksum"`
	Zstd     []byte `json:"zstd"`
}

type snapshotter struct {
	path string
	z    *zstdCompressor
}

func newSnapshotter(path string) (*snapshotter, error) {
	z, err := newZstdCompressor()
	if err != nil {
		return nil, err
	}
	return &snapshotter{path: path, z: z}, nil
}

func (s *snapshotter) close() {
	s.z.Close()
}

// save writes st to a temp file, syncs it, and
// renames it over s.path, so a crash leaves either the
// old snapshot or the new one.
func (s *snapshotter) save(st *snapState) error {
	raw, err := gjson.Marshal(st)
	if err != nil {
		return err
	}
	by, err := gjson.Marshal(&snapFile{
		Version:  snapVersion,
		Checksum: hash.Blake3OfBytesString(raw),
		Zstd:     s.z.Compress(raw),
	})
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	_, err = f.Write(by)
	if err == nil {
		err = f.Sync()
	}
	if err1 := f.Close(); err == nil {
		err = err1
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// load returns nil, nil when there is no snapshot yet.
func (s *snapshotter) load() (*snapState, error) {
	by, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var env snapFile
	if err := gjson.Unmarshal(by, &env); err != nil {
		return nil, fmt.Errorf("snapshot '%v' unreadable: %w", s.path, err)
	}
	if env.Version != snapVersion {
		return nil, fmt.Errorf("snapshot '%v' has version %v; we read %v", s.path, env.Version, snapVersion)
	}
	raw, err := s.z.Decompress(env.Zstd)
	if err != nil {
		return nil, fmt.Errorf("snapshot '%v' does not decompress: %w", s.path, err)
	}
	if err := hash.Verify(raw, env.Checksum); err != nil {
		return nil, fmt.Errorf("snapshot '%v': %w", s.path, err)
	}
	st := &snapState{}
	if err := gjson.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("snapshot '%v' body unreadable: %w", s.path, err)
	}
	return st, nil
}

// Open returns a Guardian whose Record survives
// restarts. It is restored from path if the file
// exists, otherwise it starts empty and creates the
// file on the first accepted write. A snapshot that
// fails its checksum is an error wrapping
// hash.ErrChecksum.
func Open(path string) (*Guardian, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	snap, err := newSnapshotter(path)
	if err != nil {
		return nil, err
	}
	st, err := snap.load()
	if err != nil {
		snap.close()
		return nil, err
	}
	g := New()
	g.snap = snap
	if st != nil {
		g.rec = st.Record
		for i := range st.History {
			g.addHistory(&st.History[i])
		}
		pp("guardian restored from '%v': %v", path, g.rec)
	}
	return g, nil
}
