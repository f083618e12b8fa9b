package feed

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"corral/internal/fault"
	"corral/internal/logger"
)

// Replay reads JSONL feed events from a file and dispatches them in order.
// Invalid lines are dropped with a warning; the replay keeps going.
type Replay struct {
	Path string
}

func NewReplay(path string) *Replay { return &Replay{Path: path} }

func (r *Replay) Run(ctx context.Context, dispatch Dispatch) error {
	f, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("feed: opening replay file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	dropped := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		evt, err := Decode(raw)
		if err != nil {
			if fault.KindOf(err) == fault.KindRecoverableProtocolAnomaly {
				dropped++
				logger.Warnf("feed: dropping replay line %d: %v", line, err)
				continue
			}
			return fmt.Errorf("feed: replay line %d: %w", line, err)
		}
		if err := dispatch(evt); err != nil {
			return fmt.Errorf("feed: dispatching replay line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("feed: reading replay file: %w", err)
	}
	logger.Infof("feed: replay finished, %d lines (%d dropped)", line, dropped)
	return nil
}
