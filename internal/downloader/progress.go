package downloader

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var progressRe = regexp.MustCompile(`(\d+\.?\d*)%\s*\(([^)]+)\)`)

// ParseProgress extracts the percentage and the byte detail from a progress
// line such as "[====    ] 42.5% (1.2 GB / 2.9 GB)".
func ParseProgress(line string) (percent float64, detail string, ok bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	p, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	if p > 100 {
		p = 100
	}
	return p, strings.TrimSpace(m[2]), true
}

// Sink receives typed events. *events.Stream satisfies it.
type Sink interface {
	Status(msg string)
	Progress(percent float64, detail string)
}

// ProgressAdapter turns raw tool output into status and progress events.
// Progress lines are rate limited; the final 100% is always delivered.
type ProgressAdapter struct {
	sink    Sink
	limiter *rate.Limiter
	last    float64
}

func NewProgressAdapter(sink Sink, every time.Duration) *ProgressAdapter {
	return &ProgressAdapter{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		last:    -1,
	}
}

func (a *ProgressAdapter) Line(line string) {
	pct, detail, ok := ParseProgress(line)
	if !ok {
		a.sink.Status(line)
		return
	}
	if pct == a.last {
		return
	}
	if pct < 100 && !a.limiter.Allow() {
		return
	}
	a.last = pct
	a.sink.Progress(pct, detail)
}
