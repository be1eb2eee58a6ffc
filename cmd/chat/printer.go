package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/fsy-chat/internal/chatclient"
	"github.com/zhouzirui/fsy-chat/internal/model/chat"
)

// printer renders client updates as a running transcript. The observer
// goroutine and the REPL both write through it.
type printer struct {
	mu        sync.Mutex
	out       io.Writer
	labels    map[chat.Role]lipgloss.Style
	notice    lipgloss.Style
	errStyle  lipgloss.Style
	streaming bool
}

func newPrinter(out io.Writer) *printer {
	r := lipgloss.NewRenderer(out)
	return &printer{
		out: out,
		labels: map[chat.Role]lipgloss.Style{
			chat.RoleUser:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
			chat.RoleAssistant: r.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
			chat.RoleSystem:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		},
		notice:   r.NewStyle().Foreground(lipgloss.Color("#888888")),
		errStyle: r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// Observe is the chatclient observer.
func (p *printer) Observe(u chatclient.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch u.Kind {
	case chatclient.UpdateReset:
		p.noticeLine("── session " + u.SessionID + " ──")
	case chatclient.UpdateAppended:
		p.endLine()
		fmt.Fprintf(p.out, "%s %s", p.labels[u.Message.Role].Render(string(u.Message.Role)+":"), u.Message.Content)
		if u.Message.Role == chat.RoleAssistant {
			p.streaming = true
			return
		}
		fmt.Fprintln(p.out)
	case chatclient.UpdateDelta:
		if p.streaming {
			fmt.Fprint(p.out, u.Delta)
		}
	case chatclient.UpdateDisconnected:
		p.endLine()
		if u.Error != "" {
			p.errorLine("stream closed: " + u.Error)
		}
	}
}

func (p *printer) Notice(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.noticeLine(text)
}

func (p *printer) Error(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorLine(text)
}

func (p *printer) noticeLine(text string) {
	p.endLine()
	fmt.Fprintln(p.out, p.notice.Render(text))
}

func (p *printer) errorLine(text string) {
	p.endLine()
	fmt.Fprintln(p.out, p.errStyle.Render(text))
}

func (p *printer) endLine() {
	if p.streaming {
		fmt.Fprintln(p.out)
		p.streaming = false
	}
}
