package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DirConsumer replays JSON-encoded alert files from a local directory, one
// file per poll, then ends the stream. Useful for offline runs and testing;
// the pipeline sees exactly what a live consumer would hand it.
type DirConsumer struct {
	topic  string
	files  []string
	next   int
	logger zerolog.Logger
}

// NewDirConsumer lists *.json files under dir in name order.
func NewDirConsumer(dir, topic string, logger zerolog.Logger) (*DirConsumer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read alert dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	return &DirConsumer{
		topic:  topic,
		files:  files,
		logger: logger.With().Str("component", "dir_consumer").Logger(),
	}, nil
}

// Poll returns the next alert file's decoded contents. Numbers decode as
// json.Number so large observation identifiers survive intact.
func (d *DirConsumer) Poll(ctx context.Context, timeout time.Duration) (string, map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if d.next >= len(d.files) {
		return "", nil, ErrEndOfStream
	}

	path := d.files[d.next]
	d.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read alert file %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return "", nil, fmt.Errorf("decode alert file %s: %w", path, err)
	}

	d.logger.Debug().Str("file", path).Msg("replayed alert file")
	return d.topic, record, nil
}

// Close is a no-op; the consumer holds no resources between polls.
func (d *DirConsumer) Close() error {
	return nil
}

var _ Consumer = (*DirConsumer)(nil)
