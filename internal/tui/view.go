// internal/tui/view.go
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AlverezYari/facecam/internal/control"
	"github.com/AlverezYari/facecam/pkg/camera"
)

// Style definitions
var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	mainContentStyle = lipgloss.NewStyle().
				Padding(1, 0)

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1)

	activeTabStyle = tabStyle.
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))

	onStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
)

// View renders the UI
func (m Model) View() string {
	timeStr := m.currentTime.Format("Mon Jan 2 15:04:05 2006")

	// Header with tabs
	headerContent := lipgloss.JoinHorizontal(
		lipgloss.Center,
		"📷 facecam",
		lipgloss.NewStyle().
			Width(max(m.width-14, 0)).
			Align(lipgloss.Right).
			Render(timeStr),
	)

	header := headerStyle.Width(m.width).Render(headerContent)
	tabs := m.renderTabs()
	mainContent := mainContentStyle.Render(m.renderActiveTabContent())

	statusBar := statusBarStyle.Width(m.width).Render(
		fmt.Sprintf("Status: %s | Tab or Num 1-4: Switch Views | d/r/e: toggles | q: quit", m.status),
	)

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, tabs, mainContent, statusBar)
}

// Helper function to render tabs
func (m Model) renderTabs() string {
	var renderedTabs []string

	for _, t := range m.tabs {
		style := tabStyle
		if t.id == m.activeTab {
			style = activeTabStyle
		}
		renderedTabs = append(renderedTabs, style.Render(t.title))
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		renderedTabs...,
	)
}

func onOff(v int) string {
	if v != 0 {
		return onStyle.Render("on")
	}
	return offStyle.Render("off")
}

// Helper function to render active tab content
func (m Model) renderActiveTabContent() string {
	if m.device == nil && m.activeTab != serverTab {
		return "Waiting for " + m.client.Base() + "..."
	}

	var b strings.Builder
	switch m.activeTab {
	case cameraTab:
		w, h := camera.FrameSize(m.device["framesize"]).Dimensions()
		fmt.Fprintf(&b, "Camera:\n• Resolution: %dx%d\n• Quality: %d\n", w, h, m.device["quality"])
		fmt.Fprintf(&b, "• V-Flip: %s ('v')  H-Mirror: %s ('h')\n", onOff(m.device["vflip"]), onOff(m.device["hmirror"]))
		fmt.Fprintf(&b, "• '+'/'-' change resolution\n\n")
		fmt.Fprintf(&b, "Frames: %d  Errors: %d  Frame time: %dms\n", m.stats.Frames, m.stats.Errors, m.stats.FrameMS)
		if m.stats.Camera != nil {
			fmt.Fprintf(&b, "Checkouts: %d acquired, %d released, %d rejected\n",
				m.stats.Camera.Acquired, m.stats.Camera.Released, m.stats.Camera.Rejected)
		}
		if m.stats.LastError != "" {
			b.WriteString(dimStyle.Render("Last error: "+m.stats.LastError) + "\n")
		}

	case detectionTab:
		fmt.Fprintf(&b, "Face Detection:   %s ('d')\n", onOff(m.device[control.KeyDetect]))
		fmt.Fprintf(&b, "Face Recognition: %s ('r')\n", onOff(m.device[control.KeyRecognize]))
		fmt.Fprintf(&b, "Enrolling:        %s ('e')\n\n", onOff(m.device[control.KeyEnroll]))
		fmt.Fprintf(&b, "Detection score: %.2f\nMatch similarity: %.2f\n\n",
			float64(m.stats.Score)/100, float64(m.stats.Similarity)/100)

		paths := make([]string, 0, len(m.stats.Paths))
		for p := range m.stats.Paths {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		b.WriteString("Frames by path:\n")
		for _, p := range paths {
			fmt.Fprintf(&b, "• %s: %d\n", p, m.stats.Paths[p])
		}

	case galleryTab:
		fmt.Fprintf(&b, "Enrolled identities: %d / %d\n\n", len(m.gallery), m.stats.GalleryCapacity)
		for i, id := range m.gallery {
			line := fmt.Sprintf("Subject %d  (%d samples, %s)", id.ID, id.Samples, id.Enrolled.Format("Jan 2 15:04"))
			if i == m.selected {
				line = cursorStyle.Render("> " + line)
			} else {
				line = "  " + line
			}
			b.WriteString(line + "\n")
		}
		if len(m.gallery) > 0 {
			b.WriteString(dimStyle.Render("\nup/down select • x forget"))
		}

	case serverTab:
		status := "Unreachable"
		if m.connected {
			status = "Connected"
		}
		fmt.Fprintf(&b, "Device:\n• Address: %s\n• Status: %s\n• Active streams: %d\n", m.client.Base(), status, m.stats.ActiveStreams)
		if m.stats.Buffers != nil {
			fmt.Fprintf(&b, "• Buffers outstanding: %d (%d bytes)\n", m.stats.Buffers.Outstanding, m.stats.Buffers.BytesOutstanding)
		}
		fmt.Fprintf(&b, "• Press 'v' to change verbosity (%s)\n\n", m.verbosity)
		b.WriteString("Recent Logs:\n")
		b.WriteString("------------\n")
		b.WriteString(m.logViewport.View())
	}
	return b.String()
}
