package spinner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

type Spinner struct {
	wg     *sync.WaitGroup
	cancel context.CancelFunc
}

func (s Spinner) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Spin renders a braille spinner next to tips until Stop is called.
// withDone replaces the spinner with a green dot on completion.
func Spin(ctx context.Context, tips string, out *os.File, withDone bool) (spinner Spinner) {
	tips, hadNewline := strings.CutSuffix(tips, "\n")
	frames := []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}
	ctx, spinner.cancel = context.WithCancel(ctx)
	spinner.wg = &sync.WaitGroup{}
	spinner.wg.Add(1)
	go func() {
		defer spinner.wg.Done()
		fmt.Fprintf(out, "%s %s", string(frames[0]), tips)
		for i := 1; ; i++ {
			line := fmt.Sprintf("%s %s", string(frames[i%len(frames)]), tips)
			select {
			case <-ctx.Done():
				for range displayWidth(line) {
					fmt.Fprint(out, "\b")
				}
				if withDone {
					fmt.Fprintf(out, "\033[32m●\033[0m %s", tips)
				} else {
					fmt.Fprintf(out, "%s  \b\b", tips)
				}
				if hadNewline {
					fmt.Fprint(out, "\n")
				}
				return
			default:
				time.Sleep(100 * time.Millisecond)
				for range displayWidth(line) {
					fmt.Fprint(out, "\b")
				}
				fmt.Fprint(out, line)
			}
		}
	}()
	return
}

func displayWidth(s string) int {
	width := 0
	for _, r := range s {
		width += runewidth.RuneWidth(r)
	}
	return width
}
