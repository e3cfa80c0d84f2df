// Package main provides a command-line client for the player daemon.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/pefelippe/spotify-player/internal/app/player"
)

var (
	app    = kingpin.New("playerctl", "Control client for the player daemon")
	server = app.Flag("server", "Daemon address").Default("http://localhost:7066").String()

	// play command
	playCmd     = app.Command("play", "Play a track, optionally within a context")
	playURI     = playCmd.Arg("uri", "Track URI or URL").String()
	playContext = playCmd.Flag("context", "Context URI (album, playlist, artist)").String()

	pauseCmd  = app.Command("pause", "Pause playback")
	resumeCmd = app.Command("resume", "Resume playback")
	nextCmd   = app.Command("next", "Skip to the next track")
	prevCmd   = app.Command("prev", "Skip to the previous track")

	// seek command
	seekCmd = app.Command("seek", "Seek within the current track")
	seekPos = seekCmd.Arg("position-ms", "Position in milliseconds").Required().Int()

	// volume command
	volumeCmd   = app.Command("volume", "Set the output volume")
	volumeValue = volumeCmd.Arg("volume", "Volume (0.0 - 1.0)").Required().Float64()

	// shuffle command
	shuffleCmd   = app.Command("shuffle", "Set the shuffle state")
	shuffleState = shuffleCmd.Arg("state", "on or off").Required().Enum("on", "off")

	// repeat command
	repeatCmd  = app.Command("repeat", "Set the repeat mode")
	repeatMode = repeatCmd.Arg("mode", "off, context, or track").Required().Enum("off", "context", "track")

	devicesCmd = app.Command("devices", "List available playback devices")

	// transfer command
	transferCmd    = app.Command("transfer", "Transfer playback to another device")
	transferDevice = transferCmd.Arg("device-id", "Target device ID").Required().String()
	transferPlay   = transferCmd.Flag("play", "Start playback on the target device").Bool()

	statusCmd  = app.Command("status", "Show the current playback state")
	watchCmd   = app.Command("watch", "Stream playback state changes")
	dismissCmd = app.Command("dismiss-premium", "Dismiss the premium-required warning")
	logoutCmd  = app.Command("logout", "Clear the daemon's session")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case playCmd.FullCommand():
		post("/api/player/play", map[string]any{"uri": *playURI, "context_uri": *playContext})
	case pauseCmd.FullCommand():
		post("/api/player/pause", nil)
	case resumeCmd.FullCommand():
		post("/api/player/resume", nil)
	case nextCmd.FullCommand():
		post("/api/player/next", nil)
	case prevCmd.FullCommand():
		post("/api/player/previous", nil)
	case seekCmd.FullCommand():
		post("/api/player/seek", map[string]any{"position_ms": *seekPos})
	case volumeCmd.FullCommand():
		post("/api/player/volume", map[string]any{"volume": *volumeValue})
	case shuffleCmd.FullCommand():
		post("/api/player/shuffle", map[string]any{"state": *shuffleState == "on"})
	case repeatCmd.FullCommand():
		post("/api/player/repeat", map[string]any{"mode": *repeatMode})
	case devicesCmd.FullCommand():
		listDevices()
	case transferCmd.FullCommand():
		post("/api/player/transfer", map[string]any{"device_id": *transferDevice, "play": *transferPlay})
	case statusCmd.FullCommand():
		status()
	case watchCmd.FullCommand():
		watch()
	case dismissCmd.FullCommand():
		post("/api/player/premium-warning/dismiss", nil)
	case logoutCmd.FullCommand():
		post("/api/session/logout", nil)
	}
}

// post sends a command and prints the resulting snapshot.
func post(path string, body map[string]any) {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		data, err := json.Marshal(body)
		if err != nil {
			fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := http.Post(*server+path, "application/json", reader)
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		fmt.Printf("Error [%d]: %s\n", resp.StatusCode, errBody["error"])
		os.Exit(1)
	}

	var snap player.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err == nil {
		printSnapshot(&snap)
	}
}

func status() {
	resp, err := http.Get(*server + "/api/player/state")
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	var snap player.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fatal(err)
	}
	printSnapshot(&snap)
}

func listDevices() {
	resp, err := http.Get(*server + "/api/player/devices")
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Devices []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Type     string `json:"type"`
			IsActive bool   `json:"is_active"`
		} `json:"devices"`
		ActiveDeviceID string `json:"active_device_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fatal(err)
	}

	if len(body.Devices) == 0 {
		fmt.Println("No devices available")
		return
	}
	fmt.Println("Devices:")
	for _, d := range body.Devices {
		marker := " "
		if d.IsActive {
			marker = "*"
		}
		fmt.Printf("  %s %-24s %-12s %s\n", marker, d.Name, d.Type, d.ID)
	}
}

func watch() {
	resp, err := http.Get(*server + "/api/player/stream")
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	fmt.Println("Watching playback state. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nStopping...")
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap player.Snapshot
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
			continue
		}
		fmt.Println()
		printSnapshot(&snap)
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printSnapshot(snap *player.Snapshot) {
	if snap.IsPremiumRequired {
		fmt.Println("⚠ Premium required for playback control")
	}
	if !snap.IsReady {
		fmt.Println("Player not ready")
	}

	if snap.CurrentTrack == nil {
		fmt.Println("Nothing playing")
	} else {
		state := "⏸"
		if snap.IsPlaying {
			state = "▶"
		}
		fmt.Printf("%s %s - %s\n", state, snap.CurrentTrack.Name, strings.Join(snap.CurrentTrack.Artists, ", "))
		fmt.Printf("  %s / %s", formatMs(snap.PositionMs), formatMs(snap.DurationMs))
		if snap.RepeatMode != "off" {
			fmt.Printf("  repeat:%s", snap.RepeatMode)
		}
		if snap.Shuffle {
			fmt.Print("  shuffle:on")
		}
		fmt.Println()
	}

	if snap.ActiveDeviceID != "" {
		fmt.Printf("  device: %s\n", snap.ActiveDeviceID)
	}
}

func formatMs(ms int) string {
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func fatal(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}
