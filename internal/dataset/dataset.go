// Package dataset loads batches of SAXS curves from disk into
// core.Sample values, transparently handling gzip/bzip2 compression and
// JSON/CSV encodings.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"

	"github.com/saxsflow/saxsflow/core"
)

// MalformedRecord describes one record that failed to parse; it carries
// enough context to locate the offending line without aborting the rest
// of the batch.
type MalformedRecord struct {
	Path  string
	Index int
	Err   error
}

// Load reads path, a single file or a directory, into Sample values.
// Malformed records are reported alongside the successfully loaded
// samples rather than aborting the load.
func Load(path string) (samples []*core.Sample, malformed []MalformedRecord, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: stat %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset: read dir %s: %w", path, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
	} else {
		files = append(files, path)
	}

	for _, f := range files {
		s, m, err := loadFile(f)
		if err != nil {
			return samples, malformed, err
		}
		samples = append(samples, s...)
		malformed = append(malformed, m...)
	}

	return samples, malformed, nil
}

func loadFile(path string) ([]*core.Sample, []MalformedRecord, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer fh.Close()

	r, err := decompress(path, fh)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: decompress %s: %w", path, err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}

	if isCSV(path) {
		return parseCSV(path, buf.B)
	}
	return parseJSON(path, buf.B)
}

// decompress picks a decompressor from path's trailing compression suffix
// (.gz or .bz2) and returns a reader over the decompressed content; any
// other path is read as is.
func decompress(path string, r io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return gzip.NewReader(bufio.NewReader(r))
	case strings.HasSuffix(path, ".bz2"):
		return bzip2.NewReader(bufio.NewReader(r), nil)
	default:
		return r, nil
	}
}

func isCSV(path string) bool {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(path, ".gz"), ".bz2")
	return strings.EqualFold(filepath.Ext(trimmed), ".csv")
}

// parseJSON extracts an array of {"id","q","y","sigma"} records using
// jsonparser for allocation-light scanning ahead of building the final
// []float64 slices, rather than paying for a full encoding/json
// unmarshal pass on a hot ingestion path.
func parseJSON(path string, data []byte) (samples []*core.Sample, malformed []MalformedRecord, err error) {
	idx := 0
	_, arrErr := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, innerErr error) {
		defer func() { idx++ }()
		if innerErr != nil {
			malformed = append(malformed, MalformedRecord{Path: path, Index: idx, Err: innerErr})
			return
		}

		id, err := jsonparser.GetString(value, "id")
		if err != nil {
			malformed = append(malformed, MalformedRecord{Path: path, Index: idx, Err: err})
			return
		}
		q, err := floatArray(value, "q")
		if err != nil {
			malformed = append(malformed, MalformedRecord{Path: path, Index: idx, Err: err})
			return
		}
		y, err := floatArray(value, "y")
		if err != nil {
			malformed = append(malformed, MalformedRecord{Path: path, Index: idx, Err: err})
			return
		}
		sigma, err := floatArray(value, "sigma")
		if err != nil {
			malformed = append(malformed, MalformedRecord{Path: path, Index: idx, Err: err})
			return
		}

		sample, err := core.NewSample(id, q, y, sigma)
		if err != nil {
			malformed = append(malformed, MalformedRecord{Path: path, Index: idx, Err: err})
			return
		}
		samples = append(samples, sample)
	})
	if arrErr != nil {
		return samples, malformed, fmt.Errorf("dataset: %s: not a JSON array: %w", path, arrErr)
	}
	return samples, malformed, nil
}

func floatArray(value []byte, key string) ([]float64, error) {
	var out []float64
	var arrErr error
	_, err := jsonparser.ArrayEach(value, func(v []byte, dataType jsonparser.ValueType, offset int, innerErr error) {
		f, err := jsonparser.ParseFloat(v)
		if err != nil {
			arrErr = err
			return
		}
		out = append(out, f)
	}, key)
	if err != nil {
		return nil, err
	}
	return out, arrErr
}

// parseCSV reads rows of "id,q-list,y-list,sigma-list" where each list is
// a semicolon-separated run of floats.
func parseCSV(path string, data []byte) (samples []*core.Sample, malformed []MalformedRecord, err error) {
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || i == 0 && strings.HasPrefix(line, "id,") {
			continue // skip blank lines and an optional header
		}

		fields := strings.SplitN(line, ",", 4)
		if len(fields) != 4 {
			malformed = append(malformed, MalformedRecord{Path: path, Index: i, Err: fmt.Errorf("expected 4 fields, got %d", len(fields))})
			continue
		}

		q, errQ := parseFloatList(fields[1])
		y, errY := parseFloatList(fields[2])
		sigma, errS := parseFloatList(fields[3])
		if errQ != nil || errY != nil || errS != nil {
			malformed = append(malformed, MalformedRecord{Path: path, Index: i, Err: firstNonNil(errQ, errY, errS)})
			continue
		}

		sample, err := core.NewSample(fields[0], q, y, sigma)
		if err != nil {
			malformed = append(malformed, MalformedRecord{Path: path, Index: i, Err: err})
			continue
		}
		samples = append(samples, sample)
	}
	return samples, malformed, nil
}

func parseFloatList(s string) ([]float64, error) {
	parts := strings.Split(s, ";")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
