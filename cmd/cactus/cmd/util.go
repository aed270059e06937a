package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	cactus "github.com/blacktop/go-cactus"
	"github.com/blacktop/go-cactus/internal/picker"
	"github.com/blacktop/go-cactus/internal/screen"
)

// ChatUI draws the conversation as chat bubbles: the user on the right in
// blue, the model on the left in green.
type ChatUI struct {
	terminalWidth  int
	maxBubbleWidth int
	userColor      *color.Color
	modelColor     *color.Color
	statusColor    *color.Color
	spinner        *spinner.Spinner
}

func NewChatUI() *ChatUI {
	return &ChatUI{
		terminalWidth:  80,
		maxBubbleWidth: 50,
		userColor:      color.New(color.FgHiBlue, color.Bold),
		modelColor:     color.New(color.FgHiGreen, color.Bold),
		statusColor:    color.New(color.Faint),
	}
}

// PrintUserMessage prints a right aligned bubble.
func (c *ChatUI) PrintUserMessage(message string) {
	pad := strings.Repeat(" ", c.terminalWidth-c.maxBubbleWidth-5)
	lines := c.wrapText(message, c.maxBubbleWidth-6)
	width := c.maxTextWidth(lines) + 4

	fmt.Println()
	c.userColor.Printf("%s🧑 ╭%s╮\n", pad, strings.Repeat("─", width-2))
	for _, line := range lines {
		c.userColor.Printf("%s   │ %-*s │\n", pad, width-4, line)
	}
	c.userColor.Printf("%s   ╰%s╯\n", pad, strings.Repeat("─", width-2))
}

// PrintAssistantMessage prints a left aligned bubble.
func (c *ChatUI) PrintAssistantMessage(message string) {
	var lines []string
	for _, para := range strings.Split(strings.TrimSpace(message), "\n") {
		lines = append(lines, c.wrapText(para, c.maxBubbleWidth-6)...)
	}
	width := c.maxTextWidth(lines) + 4

	fmt.Println()
	c.modelColor.Printf("🌵 ╭%s╮\n", strings.Repeat("─", width-2))
	for _, line := range lines {
		c.modelColor.Printf("   │ %-*s │\n", width-4, line)
	}
	c.modelColor.Printf("   ╰%s╯\n", strings.Repeat("─", width-2))
}

// PrintStatus prints a dimmed status line.
func (c *ChatUI) PrintStatus(status string) {
	c.statusColor.Println(status)
}

// ShowTypingIndicator starts a spinner with suffix, " cactus is typing..." when empty.
func (c *ChatUI) ShowTypingIndicator(suffix ...string) {
	c.HideTypingIndicator()
	c.spinner = spinner.New(spinner.CharSets[9], 150*time.Millisecond) // ⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏
	c.spinner.Color("green", "bold")
	c.spinner.Suffix = " cactus is typing..."
	if len(suffix) > 0 {
		c.spinner.Suffix = " " + suffix[0]
	}
	c.spinner.Start()
}

// UpdateTypingIndicator replaces the spinner text.
func (c *ChatUI) UpdateTypingIndicator(suffix string) {
	if c.spinner != nil {
		c.spinner.Lock()
		c.spinner.Suffix = " " + suffix
		c.spinner.Unlock()
	}
}

// HideTypingIndicator stops the spinner and clears its line.
func (c *ChatUI) HideTypingIndicator() {
	if c.spinner != nil && c.spinner.Active() {
		c.spinner.Stop()
		fmt.Print("\r\033[K")
	}
}

// PrintContextUsage prints the context window usage of lm.
func (c *ChatUI) PrintContextUsage(lm *cactus.LM) {
	used, size := lm.ContextUsage()
	if size == 0 {
		return
	}
	fmt.Printf("\nContext Usage: %d/%d tokens (%.1f%% used)\n", used, size, lm.ContextUsagePercent())
	if lm.IsContextNearLimit() {
		color.Yellow("⚠️  Context is near the limit - consider shorter prompts")
	}
}

// PrintStats prints the timing of a completion.
func (c *ChatUI) PrintStats(res *cactus.CompletionResult) {
	if res == nil {
		return
	}
	where := "on device"
	if res.Remote {
		where = "remote"
	}
	c.statusColor.Printf("⏱️  TTFT %.0fms • %.1f tok/s • %d tokens (%s)\n",
		res.TimeToFirstTokenMs, res.TokensPerSecond, res.DecodeTokens, where)
}

func (c *ChatUI) wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		switch {
		case line == "":
			line = word
		case len(line+" "+word) <= width:
			line += " " + word
		default:
			lines = append(lines, line)
			line = word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

func (c *ChatUI) maxTextWidth(lines []string) int {
	max := 0
	for _, line := range lines {
		if len(line) > max {
			max = len(line)
		}
	}
	return max
}

// prepareLM downloads and initializes model behind a spinner.
func prepareLM(ctx context.Context, ui *ChatUI, lm *cactus.LM, model string) error {
	ui.ShowTypingIndicator("downloading " + model + "...")
	defer ui.HideTypingIndicator()
	if err := lm.DownloadModel(ctx, model); err != nil {
		return downloadHint(err)
	}
	ui.UpdateTypingIndicator("initializing " + model + "...")
	return lm.InitializeModel(ctx, cactus.InitParams{Model: model, ContextSize: conf.LM.ContextSize})
}

// downloadHint points at the setting to fix when no download location is known.
func downloadHint(err error) error {
	if errors.Is(err, cactus.ErrNoDownloadURL) {
		return fmt.Errorf("%w: set catalog.download_url (or CACTUS_CATALOG_DOWNLOAD_URL) to the base URL serving <slug>.zip archives", err)
	}
	return err
}

// downloadProgress renders download progress on the spinner.
func downloadProgress(ui *ChatUI) cactus.ProgressFunc {
	return func(done, total int64) {
		if total > 0 {
			ui.UpdateTypingIndicator(fmt.Sprintf("downloading %d%%", done*100/total))
		} else {
			ui.UpdateTypingIndicator(fmt.Sprintf("downloading %.1f MB", float64(done)/(1<<20)))
		}
	}
}

// disposeOnCancel disposes s once ctx is done, ending its background work.
func disposeOnCancel(ctx context.Context, s screen.Screen) func() bool {
	return context.AfterFunc(ctx, s.Dispose)
}

// pathSelector picks path, or asks for one on stdin when it is empty.
// An empty answer cancels the selection.
func pathSelector(path string) picker.Selector {
	return func(ctx context.Context, mimeType string) (string, error) {
		if path != "" {
			return path, nil
		}
		fmt.Printf("Path to %s file (empty to cancel): ", picker.KindOf(mimeType))
		line, err := readLine(ctx)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

var stdin = bufio.NewReader(os.Stdin)

// readLine reads one line from stdin, giving up when ctx is done.
func readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := stdin.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return "", res.err
		}
		return strings.TrimRight(res.line, "\r\n"), nil
	}
}

// poll reads view until done accepts it or ctx ends.
func poll[V any](ctx context.Context, view func() V, done func(V) bool) (V, error) {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		v := view()
		if done(v) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-t.C:
		}
	}
}

// printReply prints the last assistant message of conv with its thinking.
func printReply(ui *ChatUI, conv screen.Conversation) {
	n := len(conv.Messages)
	if n == 0 || conv.Messages[n-1].Role != screen.RoleAssistant {
		ui.PrintStatus("no reply, see the log for details")
		return
	}
	last := conv.Messages[n-1]
	thinking, answer := screen.ParseThinking(last.Content)
	if thinking != "" {
		ui.PrintStatus("💭 " + thinking)
	}
	ui.PrintAssistantMessage(answer)
	ui.PrintStats(last.Result)
}

type waiter interface {
	screen.Screen
	Wait()
}

// runSteps runs each step and waits for s to settle before the next one.
func runSteps(ctx context.Context, s waiter, steps ...func()) error {
	defer disposeOnCancel(ctx, s)()
	for _, step := range steps {
		step()
		s.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
