package framer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ledMatrix/sender/internal/entity"
)

var ErrUnknownSource = errors.New("unknown source")

type Options struct {
	Width    int
	Height   int
	Image    string
	Text     string
	Speed    int
	Location *time.Location
}

// Catalog builds framers by source name. The file source is only listed
// when an image path is configured.
type Catalog struct {
	opts Options
}

func NewCatalog(opts Options) *Catalog {
	return &Catalog{opts: opts}
}

func (c *Catalog) Names() []string {
	names := []string{entity.SourceClock, entity.SourceCount, entity.SourceScrollingText, entity.SourceSquare}
	if c.opts.Image != "" {
		names = append(names, entity.SourceFile)
	}
	return names
}

// Canonical returns the listed name matching name regardless of case.
func (c *Catalog) Canonical(name string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, n := range c.Names() {
		if n == lower {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, name)
}

func (c *Catalog) New(name string) (Framer, error) {
	n, err := c.Canonical(name)
	if err != nil {
		return nil, err
	}

	o := c.opts
	switch n {
	case entity.SourceClock:
		return NewClock(o.Width, o.Height, o.Location), nil
	case entity.SourceCount:
		return NewCount(o.Width, o.Height), nil
	case entity.SourceScrollingText:
		return NewScrollingText(o.Width, o.Height, o.Text, o.Speed), nil
	case entity.SourceFile:
		return NewFile(o.Image, o.Width, o.Height), nil
	default:
		return NewMovingSquare(o.Width, o.Height), nil
	}
}
