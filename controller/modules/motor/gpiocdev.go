package motor

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// gpiocdevLines implements lineSet over real hardware lines opened
// through go-gpiocdev, one line per GPIO offset used by the board's
// H-bridges plus the shared standby line.
type gpiocdevLines struct {
	lines map[int]*gpiocdev.Line
}

// OpenGPIOLines requests every offset in offsets as an output line on
// chip, defaulting each to logic low.
func OpenGPIOLines(chip string, offsets []int) (*gpiocdevLines, error) {
	ls := &gpiocdevLines{lines: make(map[int]*gpiocdev.Line, len(offsets))}
	for _, offset := range offsets {
		line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
		if err != nil {
			ls.Close()
			return nil, fmt.Errorf("request line %d on %s: %w", offset, chip, err)
		}
		ls.lines[offset] = line
	}
	return ls, nil
}

func (l *gpiocdevLines) SetValue(offset int, value int) error {
	line, ok := l.lines[offset]
	if !ok {
		return fmt.Errorf("line %d was not requested", offset)
	}
	return line.SetValue(value)
}

func (l *gpiocdevLines) Close() error {
	var firstErr error
	for _, line := range l.lines {
		if err := line.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
