// Package snapshot persists world documents as zstd-compressed JSON. Writes
// are atomic: the document goes to a temp file in the same directory and is
// renamed over the target, so a crash never leaves a torn snapshot.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"stagecraft.ai/internal/sim/game"
)

func Write(path string, doc game.SnapshotDoc) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp, doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func write(f *os.File, doc game.SnapshotDoc) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)
	if err := json.NewEncoder(bw).Encode(doc); err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func Read(path string) (game.SnapshotDoc, error) {
	var doc game.SnapshotDoc
	f, err := os.Open(path)
	if err != nil {
		return doc, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return doc, err
	}
	defer dec.Close()

	if err := json.NewDecoder(bufio.NewReader(dec)).Decode(&doc); err != nil {
		return doc, fmt.Errorf("snapshot decode: %w", err)
	}
	return doc, nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
