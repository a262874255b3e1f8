package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/c360/genstream/generation"
	"github.com/c360/genstream/protocol"
)

// progressPrinter writes one line per run update
type progressPrinter struct {
	mu           sync.Mutex
	w            io.Writer
	previews     int
	previewBytes uint64
}

var _ generation.Observer = (*progressPrinter)(nil)

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) OnState(jobID string, state generation.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "job %s %s\n", jobID, state)
}

func (p *progressPrinter) OnProgress(ev protocol.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.Max <= 0 {
		fmt.Fprintf(p.w, "  node %s step %d\n", ev.Node, ev.Value)
		return
	}
	fmt.Fprintf(p.w, "  node %s step %d/%d (%d%%)\n", ev.Node, ev.Value, ev.Max, ev.Value*100/ev.Max)
}

func (p *progressPrinter) OnPreview(frame protocol.Preview, recent []protocol.Preview) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews++
	p.previewBytes += uint64(len(frame.Data))
	fmt.Fprintf(p.w, "  preview %d %s %s (%d kept)\n",
		p.previews, frame.Format, humanize.Bytes(uint64(len(frame.Data))), len(recent))
}

func (p *progressPrinter) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.previews > 0 {
		fmt.Fprintf(p.w, "  %s previews, %s total\n",
			humanize.Comma(int64(p.previews)), humanize.Bytes(p.previewBytes))
	}
	p.previews = 0
	p.previewBytes = 0
}
