// internal/tui/model.go
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/facecam/internal/logging"
	"github.com/AlverezYari/facecam/internal/recognition"
	"github.com/AlverezYari/facecam/internal/server"
)

type tabType int

const (
	cameraTab tabType = iota
	detectionTab
	galleryTab
	serverTab
)

type tab struct {
	title string
	id    tabType
}

// Logging Setup

type Verbosity int

const (
	VerbosityError Verbosity = iota
	VerbosityInfo
	VerbosityDebug
)

func (v Verbosity) String() string {
	switch v {
	case VerbosityError:
		return "error"
	case VerbosityInfo:
		return "info"
	}
	return "debug"
}

func (m *Model) shouldShowLog(level string) bool {
	switch m.verbosity {
	case VerbosityDebug:
		return true
	case VerbosityInfo:
		return level != "DEBUG"
	case VerbosityError:
		return level == "ERROR" || level == "DPANIC" || level == "PANIC" || level == "FATAL"
	default:
		return false
	}
}

func (m *Model) setLogs(entries []logging.Entry) {
	m.logs = entries
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if !m.shouldShowLog(e.Level) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s [%s] %s", e.Timestamp.Format("15:04:05"), e.Level, e.Message))
	}
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	m.logViewport.GotoBottom()
}

// Msg types
type tickMsg time.Time

// pollMsg carries one round of reads from the device.
type pollMsg struct {
	status  map[string]int
	stats   server.Stats
	logs    []logging.Entry
	gallery []recognition.Identity
	err     error
}

// controlMsg reports the result of a control write.
type controlMsg struct {
	action string
	err    error
}

// Model holds our application state
type Model struct {
	client      *Client
	width       int
	height      int
	status      string
	startTime   time.Time
	currentTime time.Time
	activeTab   tabType
	tabs        []tab
	connected   bool

	device   map[string]int
	stats    server.Stats
	gallery  []recognition.Identity
	selected int

	logViewport viewport.Model
	logs        []logging.Entry
	verbosity   Verbosity
}

// New returns a Model polling the control port at base.
func New(client *Client) Model {
	now := time.Now()
	return Model{
		client:      client,
		status:      "Connecting to " + client.Base() + "...",
		startTime:   now,
		currentTime: now,
		activeTab:   cameraTab,
		tabs: []tab{
			{title: "Camera", id: cameraTab},
			{title: "Detection", id: detectionTab},
			{title: "Gallery", id: galleryTab},
			{title: "Server", id: serverTab},
		},
		logViewport: func() viewport.Model {
			vp := viewport.New(0, 10)
			vp.MouseWheelEnabled = true
			vp.YPosition = 0
			return vp
		}(),
		verbosity: VerbosityInfo,
	}
}

// Init runs any initial IO
func (m Model) Init() tea.Cmd {
	return tea.Batch(timeTickCmd(), pollCmd(m.client))
}

// Helper command for time updates
func timeTickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func pollCmd(c *Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var msg pollMsg
		if msg.status, msg.err = c.Status(ctx); msg.err != nil {
			return msg
		}
		if msg.stats, msg.err = c.Stats(ctx); msg.err != nil {
			return msg
		}
		if msg.logs, msg.err = c.Logs(ctx, logging.RingSize); msg.err != nil {
			return msg
		}
		msg.gallery, msg.err = c.Gallery(ctx)
		return msg
	}
}

func setCmd(c *Client, key string, val int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return controlMsg{action: fmt.Sprintf("%s=%d", key, val), err: c.Set(ctx, key, val)}
	}
}

func forgetCmd(c *Client, id int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return controlMsg{action: fmt.Sprintf("forget %d", id), err: c.Forget(ctx, id)}
	}
}
