package artifact

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrSizeExceeded reports that the next row would not fit under the
	// configured artifact byte cap. The partial file is left on disk.
	ErrSizeExceeded = errors.New("artifact: result file size exceeded")

	ErrNotFound = errors.New("artifact: not found")
)

var (
	componentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	datePrefix       = regexp.MustCompile(`^[0-9]{8}`)
)

const (
	resultSuffix = ".jsonl"
	errorSuffix  = ".err"
)

// Store resolves and manages artifact files keyed by (datasource, query id).
// Result artifacts hold one JSON array per line: the column names first,
// then one row per line. Error artifacts hold the failure message as text.
type Store struct {
	Root string
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

// ResultPath returns the location of the success artifact for a query.
// Query ids carrying a leading yyyymmdd stamp are grouped into a day
// directory so the sweeper can drop whole days cheaply.
func (s *Store) ResultPath(datasource, queryID string) (string, error) {
	return s.path(datasource, queryID, resultSuffix)
}

// ErrorPath returns the location of the failure artifact for a query.
func (s *Store) ErrorPath(datasource, queryID string) (string, error) {
	return s.path(datasource, queryID, errorSuffix)
}

func (s *Store) path(datasource, queryID, suffix string) (string, error) {
	if err := validateComponent(datasource, "datasource"); err != nil {
		return "", err
	}
	if err := validateComponent(queryID, "query id"); err != nil {
		return "", err
	}
	dir := filepath.Join(s.Root, datasource)
	if day := datePrefix.FindString(queryID); day != "" {
		dir = filepath.Join(dir, day)
	}
	return filepath.Join(dir, queryID+suffix), nil
}

// Create opens a fresh result writer for a query. maxBytes bounds the total
// size of row lines; zero or negative disables the cap.
func (s *Store) Create(datasource, queryID string, maxBytes int64) (*ResultWriter, error) {
	path, err := s.ResultPath(datasource, queryID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create result artifact: %w", err)
	}
	return &ResultWriter{
		path:     path,
		file:     file,
		buffered: bufio.NewWriter(file),
		maxBytes: maxBytes,
	}, nil
}

// WriteError writes the failure artifact for a query, replacing any
// previous one.
func (s *Store) WriteError(datasource, queryID, message string) error {
	path, err := s.ErrorPath(datasource, queryID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(message), 0o644); err != nil {
		return fmt.Errorf("write error artifact: %w", err)
	}
	return nil
}

// Delete removes the success artifact for a query.
func (s *Store) Delete(datasource, queryID string) error {
	path, err := s.ResultPath(datasource, queryID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete result artifact: %w", err)
	}
	return nil
}

// Result is a parsed success artifact.
type Result struct {
	Columns []string
	Rows    [][]*string
}

// ReadResult re-parses a success artifact into columns and rows. It is the
// read side of the durable format contract: what the writer stored must
// round-trip here exactly.
func (s *Store) ReadResult(datasource, queryID string) (Result, error) {
	path, err := s.ResultPath(datasource, queryID)
	if err != nil {
		return Result{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("open result artifact: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var result Result
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if first {
			if err := json.Unmarshal(line, &result.Columns); err != nil {
				return Result{}, fmt.Errorf("parse column header: %w", err)
			}
			first = false
			continue
		}
		var row []*string
		if err := json.Unmarshal(line, &row); err != nil {
			return Result{}, fmt.Errorf("parse result row: %w", err)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return Result{}, fmt.Errorf("read result artifact: %w", err)
	}
	if first {
		return Result{}, fmt.Errorf("result artifact has no header line")
	}
	return result, nil
}

// ReadError returns the failure artifact text for a query.
func (s *Store) ReadError(datasource, queryID string) (string, error) {
	path, err := s.ErrorPath(datasource, queryID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read error artifact: %w", err)
	}
	return string(data), nil
}

// ResultWriter appends JSON lines to one result artifact. The byte cap
// covers row lines only; the header always fits.
type ResultWriter struct {
	path     string
	file     *os.File
	buffered *bufio.Writer
	maxBytes int64
	rowBytes int64
	lines    int
	closed   bool
}

func (w *ResultWriter) Path() string {
	return w.path
}

// Lines counts every line written so far, header included.
func (w *ResultWriter) Lines() int {
	return w.lines
}

func (w *ResultWriter) WriteColumns(columns []string) error {
	return w.writeLine(columns, false)
}

// WriteRow appends one row line. Once the accumulated row bytes pass the
// cap it returns ErrSizeExceeded; the line that crossed the cap has already
// been written and stays in the file.
func (w *ResultWriter) WriteRow(row []*string) error {
	return w.writeLine(row, true)
}

func (w *ResultWriter) writeLine(value any, counted bool) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal artifact line: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := w.buffered.Write(payload); err != nil {
		return fmt.Errorf("write artifact line: %w", err)
	}
	w.lines++
	if counted {
		w.rowBytes += int64(len(payload))
		if w.maxBytes > 0 && w.rowBytes > w.maxBytes {
			return ErrSizeExceeded
		}
	}
	return nil
}

// Close flushes and closes the artifact. Safe to call more than once.
func (w *ResultWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.buffered.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush result artifact: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close result artifact: %w", closeErr)
	}
	return nil
}

// Size reports the artifact's on-disk byte size. Call after Close.
func (w *ResultWriter) Size() (int64, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return 0, fmt.Errorf("stat result artifact: %w", err)
	}
	return info.Size(), nil
}

func validateComponent(value, field string) error {
	if !componentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
