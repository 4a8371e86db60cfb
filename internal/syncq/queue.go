package syncq

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Command is a write the client could not deliver and will replay later.
type Command struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Body   map[string]any `json:"body,omitempty"`
	// Key coalesces writes: a pushed command replaces a queued one with the
	// same key, so only the latest schedule for a day is replayed.
	Key      string    `json:"key,omitempty"`
	QueuedAt time.Time `json:"queued_at"`
}

// SendFunc delivers one command.
type SendFunc func(ctx context.Context, cmd Command) error

type Queue struct {
	path string
}

func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Queue{path: filepath.Join(dir, "queue.json")}, nil
}

func (q *Queue) Load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) Save(commands []Command) error {
	if commands == nil {
		commands = []Command{}
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, raw, 0o600)
}

// Push appends cmd, replacing any queued command with the same key.
func (q *Queue) Push(cmd Command) (Command, error) {
	commands, err := q.Load()
	if err != nil {
		return Command{}, err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	if cmd.Key != "" {
		kept := commands[:0]
		for _, c := range commands {
			if c.Key != cmd.Key {
				kept = append(kept, c)
			}
		}
		commands = kept
	}
	commands = append(commands, cmd)
	return cmd, q.Save(commands)
}

// Drain sends queued commands in order. Commands that fail stay queued and
// are reported in failed; the rest are removed.
func (q *Queue) Drain(ctx context.Context, send SendFunc) (sent int, failed map[string]error, err error) {
	commands, err := q.Load()
	if err != nil {
		return 0, nil, err
	}
	failed = map[string]error{}
	remaining := make([]Command, 0, len(commands))
	for _, c := range commands {
		if ctx.Err() != nil {
			remaining = append(remaining, c)
			continue
		}
		if serr := send(ctx, c); serr != nil {
			failed[c.ID] = serr
			remaining = append(remaining, c)
			continue
		}
		sent++
	}
	if err := q.Save(remaining); err != nil {
		return sent, failed, err
	}
	return sent, failed, nil
}
