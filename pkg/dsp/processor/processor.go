package processor

import (
	"errors"
	"fmt"

	"github.com/norasector/tonewire/pkg/util"
)

var ErrEmptyInput = errors.New("must specify input")

// Processor runs float blocks in sequence. The returned buffers belong to the
// last block and are reused by the next call.
type Processor struct {
	Name        string
	blocks      []*DSPWorker
	initialized bool
}

func NewProcessor(name string) *Processor {
	return &Processor{
		Name: name,
	}
}

func (p *Processor) AddBlock(worker *DSPWorker) {
	p.blocks = append(p.blocks, worker)
	p.initialized = false
}

func (p *Processor) Len() int {
	return len(p.blocks)
}

// Initialize checks that adjacent blocks agree on their rates.
func (p *Processor) Initialize() error {
	if p.initialized {
		return nil
	}
	for i := 1; i < len(p.blocks); i++ {
		cur, next := p.blocks[i-1], p.blocks[i]
		if cur.OutputRate != next.InputRate {
			return fmt.Errorf("cur: %s next %s rate mismatch (%d %d)", cur.Name, next.Name, cur.OutputRate, next.InputRate)
		}
	}
	p.initialized = true
	return nil
}

// Process runs input through every block and records each block's duration
// in microseconds under "<block>_duration".
func (p *Processor) Process(input []float32, metrics util.Timings) ([]float32, error) {
	if len(input) == 0 {
		return nil, ErrEmptyInput
	}
	if err := p.Initialize(); err != nil {
		return nil, err
	}

	data := input
	for _, block := range p.blocks {
		var out []float32
		metrics.Time(fmt.Sprintf("%s_duration", block.Name), func() {
			out = block.work(data)
		})
		data = out
	}
	return data, nil
}

// Reset clears the state of every block that has any.
func (p *Processor) Reset() {
	for _, block := range p.blocks {
		if r, ok := block.ffWorker.(Resetter); ok {
			r.Reset()
		}
	}
}
