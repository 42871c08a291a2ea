package source

import (
	"context"
	"fmt"

	"github.com/mackerelio/go-osstat/memory"
)

// OSStat reads machine memory through go-osstat.
type OSStat struct{}

var _ SystemMemoryReader = (*OSStat)(nil)

// NewOSStat returns a go-osstat backed reader.
func NewOSStat() *OSStat {
	return &OSStat{}
}

func (o *OSStat) SystemMemory(ctx context.Context) (SystemMemory, error) {
	if err := ctx.Err(); err != nil {
		return SystemMemory{}, err
	}

	m, err := memory.Get()
	if err != nil {
		return SystemMemory{}, fmt.Errorf("reading system memory: %w", err)
	}

	return SystemMemory{
		Total: m.Total,
		Used:  m.Used,
		Free:  m.Free,
	}, nil
}
