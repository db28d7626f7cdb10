package relay

import (
	"context"
	"encoding/json"

	"github.com/uhyunpark/hyperescrow/pkg/app/core/events"
	"github.com/uhyunpark/hyperescrow/pkg/storage"
)

// FilePublisher appends events as JSON lines to a local file.
type FilePublisher struct {
	wal *storage.FileWAL
}

func NewFilePublisher(path string) (*FilePublisher, error) {
	wal, err := storage.NewFileWAL(path)
	if err != nil {
		return nil, err
	}
	return &FilePublisher{wal: wal}, nil
}

func (p *FilePublisher) Publish(_ context.Context, batch []*events.Event) error {
	lines := make([][]byte, 0, len(batch))
	for _, ev := range batch {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}
	return p.wal.Append(lines...)
}

func (p *FilePublisher) Close() error { return p.wal.Close() }
