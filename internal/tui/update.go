// internal/tui/update.go
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/facecam/internal/control"
	"github.com/AlverezYari/facecam/pkg/camera"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logViewport.Width = msg.Width

	case tickMsg:
		m.currentTime = time.Time(msg)
		return m, tea.Batch(timeTickCmd(), pollCmd(m.client))

	case pollMsg:
		if msg.err != nil {
			m.connected = false
			m.status = fmt.Sprintf("Error polling device: %v", msg.err)
			return m, nil
		}
		if !m.connected {
			m.status = "Connected to " + m.client.Base()
		}
		m.connected = true
		m.device = msg.status
		m.stats = msg.stats
		m.gallery = msg.gallery
		if m.selected >= len(m.gallery) {
			m.selected = max(len(m.gallery)-1, 0)
		}
		m.setLogs(msg.logs)

	case controlMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error applying %s: %v", msg.action, msg.err)
			return m, nil
		}
		m.status = "Applied " + msg.action
		return m, pollCmd(m.client)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "1":
			m.activeTab = cameraTab
		case "2":
			m.activeTab = detectionTab
		case "3":
			m.activeTab = galleryTab
		case "4":
			m.activeTab = serverTab
		case "tab":
			// Cycle through tabs
			m.activeTab = (m.activeTab + 1) % tabType(len(m.tabs))

		case "d":
			return m, m.flip(control.KeyDetect)
		case "r":
			return m, m.flip(control.KeyRecognize)
		case "e":
			return m, m.flip(control.KeyEnroll)

		case "v":
			if m.activeTab == cameraTab {
				return m, m.flip("vflip")
			}
			m.verbosity = (m.verbosity + 1) % (VerbosityDebug + 1)
			m.setLogs(m.logs)
			m.status = "Log verbosity: " + m.verbosity.String()
		case "h":
			if m.activeTab == cameraTab {
				return m, m.flip("hmirror")
			}
		case "+", "=":
			if m.activeTab == cameraTab {
				return m, m.step("framesize", 1)
			}
		case "-":
			if m.activeTab == cameraTab {
				return m, m.step("framesize", -1)
			}

		case "up", "down":
			if m.activeTab == galleryTab && len(m.gallery) > 0 {
				if msg.String() == "up" {
					m.selected = (m.selected - 1 + len(m.gallery)) % len(m.gallery)
				} else {
					m.selected = (m.selected + 1) % len(m.gallery)
				}
			}
		case "x", "delete":
			if m.activeTab == galleryTab && m.selected < len(m.gallery) {
				return m, forgetCmd(m.client, m.gallery[m.selected].ID)
			}

		case "pgup", "pgdown":
			if m.activeTab == serverTab {
				var cmd tea.Cmd
				m.logViewport, cmd = m.logViewport.Update(msg)
				return m, cmd
			}
		}

	case tea.MouseMsg:
		if m.activeTab == serverTab {
			var cmd tea.Cmd
			m.logViewport, cmd = m.logViewport.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

// flip toggles a 0/1 key based on the last status read.
func (m *Model) flip(key string) tea.Cmd {
	if m.device == nil {
		m.status = "Not connected"
		return nil
	}
	return setCmd(m.client, key, 1-m.device[key])
}

func (m *Model) step(key string, delta int) tea.Cmd {
	if m.device == nil {
		m.status = "Not connected"
		return nil
	}
	p, _ := camera.LookupParam(key)
	next := m.device[key] + delta
	if next < p.Min || next > p.Max {
		m.status = fmt.Sprintf("%s already at its limit", key)
		return nil
	}
	return setCmd(m.client, key, next)
}
