package samply

import (
	"bytes"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadProfile reads and decodes a profile document. The file may be plain
// JSON or gzip/zstd compressed JSON; compression is detected by magic bytes.
func LoadProfile(path string) (*Profile, error) {
	data, err := readMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", path, err)
	}
	return &profile, nil
}

// LoadSyms reads and decodes a symbol side-car document, with the same
// transparent decompression as LoadProfile.
func LoadSyms(path string) (*SymsDocument, error) {
	data, err := readMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	var syms SymsDocument
	if err := json.Unmarshal(data, &syms); err != nil {
		return nil, fmt.Errorf("failed to decode syms %s: %w", path, err)
	}
	return &syms, nil
}

func readMaybeCompressed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b: // gzip
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip data in %s: %w", path, err)
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip data in %s: %w", path, err)
		}
		return out, nil
	case len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd: // zstd
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd data in %s: %w", path, err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress zstd data in %s: %w", path, err)
		}
		return out, nil
	}
	return data, nil
}
