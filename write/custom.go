package write

import (
	"os"
)

// Action is what a write would do to the target file.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionUnchanged Action = "unchanged"
)

// DryRunWriter records what Write would do without touching the disk.
type DryRunWriter struct {
	base    *BaseWriter
	changes []Change
}

type Change struct {
	Path   string `json:"path"`
	Action Action `json:"action"`
	Size   int    `json:"size"`
}

func NewDryRunWriter() *DryRunWriter {
	return &DryRunWriter{
		base:    NewBaseWriter(nil),
		changes: make([]Change, 0),
	}
}

func (drw *DryRunWriter) Write(path string, content []byte, options WriteOptions) (Result, error) {
	action := ActionCreate
	if _, err := os.Stat(path); err == nil {
		action = ActionUpdate
		if !options.Force {
			needed, err := drw.base.NeedsWrite(path, content)
			if err != nil {
				return Result{Path: path}, err
			}
			if !needed {
				action = ActionUnchanged
			}
		}
	}

	drw.changes = append(drw.changes, Change{
		Path:   path,
		Action: action,
		Size:   len(content),
	})
	return Result{Path: path}, nil
}

func (drw *DryRunWriter) NeedsWrite(path string, content []byte) (bool, error) {
	return drw.base.NeedsWrite(path, content)
}

func (drw *DryRunWriter) Changes() []Change {
	return drw.changes
}

func (drw *DryRunWriter) Reset() {
	drw.changes = make([]Change, 0)
}
