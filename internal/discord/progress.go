package discord

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/conduit/internal/adapters"
	"github.com/haasonsaas/conduit/internal/engine"
	"github.com/haasonsaas/conduit/pkg/models"
)

// previewLimit bounds the streamed preview inside the progress message,
// leaving headroom for the activity line within Discord's 2000-char cap.
const previewLimit = 1700

func (b *Bot) onJobStarted(threadID, jobID string) {
	msg := b.send(threadID, "⏳ working…")
	if msg == nil {
		return
	}
	b.mu.Lock()
	b.views[jobID] = &progressView{channelID: threadID, messageID: msg.ID}
	b.mu.Unlock()
}

func (b *Bot) onJobProgress(_, jobID string, ev adapters.ProgressEvent) {
	b.mu.Lock()
	view, ok := b.views[jobID]
	if !ok {
		b.mu.Unlock()
		return
	}
	switch ev.Type {
	case "assistant_text":
		view.preview.WriteString(ev.Text)
	case "activity":
		signature := string(ev.Activity) + ":" + ev.Label
		if !b.suppress.Allow(jobID, signature) {
			b.mu.Unlock()
			return
		}
		switch ev.Activity {
		case adapters.ActivityThinking:
			view.activity = "💭 " + ev.Label
		case adapters.ActivityTool:
			view.activity = "🔧 " + ev.Label
		}
	}
	content := renderProgress(view)
	b.mu.Unlock()

	b.coalescer.Update(jobID, content)
}

func (b *Bot) onJobFinished(info engine.FinishInfo) {
	b.coalescer.Flush(info.JobID)
	b.suppress.Forget(info.JobID)

	b.mu.Lock()
	view := b.views[info.JobID]
	delete(b.views, info.JobID)
	b.mu.Unlock()

	if info.State == models.JobSuccess {
		text := info.ResultExcerpt
		if text == "" {
			text = "✅ done (no output)"
		}
		b.deliver(info.ThreadID, view, text)
		return
	}

	failure := fmt.Sprintf("❌ `%s` %s\n↻ /retry to run again", info.ErrorCode, info.ErrorMessage)
	b.deliver(info.ThreadID, view, failure)
}

// deliver replaces the progress message with the final text, spilling
// anything past Discord's limit into follow-up messages.
func (b *Bot) deliver(threadID string, view *progressView, text string) {
	chunks := splitMessage(text, maxMessageLen)
	if view != nil {
		b.edit(view.channelID, view.messageID, chunks[0])
		chunks = chunks[1:]
	}
	for _, chunk := range chunks {
		b.send(threadID, chunk)
	}
}

// flushEdit is the coalescer sink: one message edit per interval per job.
func (b *Bot) flushEdit(jobID, content string) {
	b.mu.Lock()
	view, ok := b.views[jobID]
	b.mu.Unlock()
	if !ok {
		return // job finished; final delivery already happened
	}
	b.edit(view.channelID, view.messageID, content)
}

func renderProgress(view *progressView) string {
	var sb strings.Builder
	if view.activity != "" {
		sb.WriteString(view.activity)
		sb.WriteByte('\n')
	}
	preview := view.preview.String()
	if r := []rune(preview); len(r) > previewLimit {
		preview = "…" + string(r[len(r)-previewLimit:])
	}
	if preview != "" {
		sb.WriteString(preview)
	} else if view.activity == "" {
		sb.WriteString("⏳ working…")
	}
	return truncateMessage(sb.String())
}

// truncateMessage bounds s to maxMessageLen runes, trimming on rune
// boundaries so multibyte text never gets split mid-character.
func truncateMessage(s string) string {
	r := []rune(s)
	if len(r) <= maxMessageLen {
		return s
	}
	return string(r[:maxMessageLen-1]) + "…"
}

// splitMessage breaks text into chunks of at most limit bytes, preferring
// line boundaries.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return []string{""}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
