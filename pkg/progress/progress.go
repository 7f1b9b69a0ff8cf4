package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kadirbelkuyu/SQLBM/internal/pipeline"
)

type Bar struct {
	*progressbar.ProgressBar
	out io.Writer
}

func NewBar(max int64, description string, out io.Writer) *Bar {
	if out == nil {
		out = os.Stdout
	}

	bar := progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(out)
		}),
	)

	return &Bar{ProgressBar: bar, out: out}
}

func (b *Bar) Finish() {
	if b.ProgressBar == nil {
		return
	}
	b.ProgressBar.Finish()
}

// Track renders pipeline events as a statement counter until the final
// event arrives. ok is false when the channel closed without one.
func Track(events <-chan pipeline.Event, out io.Writer) (outcome pipeline.Outcome, ok bool) {
	var bar *Bar
	for evt := range events {
		if bar == nil {
			bar = NewBar(int64(evt.Total), "Starting", out)
		}
		if evt.Final() {
			if evt.Outcome.Succeeded {
				bar.Set(evt.Total)
				bar.Finish()
			} else {
				fmt.Fprintln(bar.out)
			}
			return *evt.Outcome, true
		}
		bar.Describe(fmt.Sprintf("Running [%d/%d] %s", evt.Index+1, evt.Total, evt.Preview))
		bar.Set(evt.Index)
	}
	return pipeline.Outcome{}, false
}
