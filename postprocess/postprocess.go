// Package postprocess applies transformations to a generated script after the
// sections are assembled and before it is returned or written:
//
//	eng := engine.New(cfg)
//	eng.AddPostProcessor(processors.NewLineEndings(config.LineEndingsCRLF))
//	eng.AddPostProcessorFunc(func(name string, content []byte) ([]byte, error) {
//		return bytes.ReplaceAll(content, []byte("XPStyle on"), []byte("XPStyle off")), nil
//	})
package postprocess

import "fmt"

// Processor transforms the content of a generated script. name identifies
// the script being processed. Implementations should be stateless.
type Processor interface {
	ProcessContent(name string, content []byte) ([]byte, error)
}

// Named is implemented by processors that want to be identified by name in
// error messages.
type Named interface {
	Name() string
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(name string, content []byte) ([]byte, error)

func (f ProcessorFunc) ProcessContent(name string, content []byte) ([]byte, error) {
	return f(name, content)
}

// Chain runs processors in the order they were added.
type Chain struct {
	processors []Processor
}

func NewChain() *Chain {
	return &Chain{
		processors: make([]Processor, 0),
	}
}

func (c *Chain) Add(processor Processor) {
	c.processors = append(c.processors, processor)
}

func (c *Chain) AddFunc(fn func(name string, content []byte) ([]byte, error)) {
	c.processors = append(c.processors, ProcessorFunc(fn))
}

// Process runs every processor in sequence. The first failure stops the
// chain and nothing is returned.
func (c *Chain) Process(name string, content []byte) ([]byte, error) {
	result := content
	for i, processor := range c.processors {
		processed, err := processor.ProcessContent(name, result)
		if err != nil {
			return nil, fmt.Errorf("processor %s failed for %s: %w", label(i, processor), name, err)
		}
		result = processed
	}
	return result, nil
}

func label(i int, p Processor) string {
	if n, ok := p.(Named); ok {
		return fmt.Sprintf("%d (%s)", i, n.Name())
	}
	return fmt.Sprintf("%d", i)
}

func (c *Chain) HasProcessors() bool {
	return len(c.processors) > 0
}

func (c *Chain) Len() int {
	return len(c.processors)
}

func (c *Chain) Clear() {
	c.processors = c.processors[:0]
}
