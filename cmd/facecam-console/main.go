// cmd/facecam-console/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/facecam/internal/config"
	"github.com/AlverezYari/facecam/internal/tui"
)

func main() {
	addr := flag.String("addr", "", "control address of the device (default from config)")
	flag.Parse()

	base := *addr
	if base == "" {
		// Load the configuration
		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		host := cfg.Server.IP
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		base = fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
	}

	p := tea.NewProgram(
		tui.New(tui.NewClient(base)),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
