// Package tray provides a system tray menu for controlling CycleUp detection.
package tray

import (
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"

	"github.com/DuyLe0710edu/HackPrinceton-CycleUp/internal/detection"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(running bool)
	onReset  func()
	onOpen   func()
	onQuit   func()
	running  bool
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
	menuTotal  *systray.MenuItem
}

// New creates a new Tray instance with detection reported as stopped.
func New() *Tray {
	return &Tray{}
}

// OnToggle sets the callback invoked with the requested running state.
func (t *Tray) OnToggle(fn func(running bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnReset sets the callback for the "Reset statistics" item.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnOpenDashboard sets the callback for the "Open dashboard" item.
func (t *Tray) OnOpenDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray loop started by Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("CycleUp")
	systray.SetTooltip("CycleUp trash detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.running), "Start or stop detection")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem("Last: none", "Last detected item")
	t.menuLast.Disable()
	t.menuTotal = systray.AddMenuItem(totalTitle(0), "Items in the aggregation window")
	t.menuTotal.Disable()
	t.mu.Unlock()

	menuReset := systray.AddMenuItem("Reset statistics", "Clear all detection statistics")
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit CycleUp")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReset.ClickedCh:
				t.handleReset()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle requests the opposite of the current running state. The
// displayed state only changes once SetRunning confirms it.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	want := !t.running
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(want)
	}
}

func (t *Tray) handleReset() {
	t.mu.RLock()
	callback := t.onReset
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetRunning updates the toggle item to reflect the detection state.
func (t *Tray) SetRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = running
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(running))
	}
}

// SetLastDetection updates the last detection display in the menu.
func (t *Tray) SetLastDetection(r detection.Raw) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(r))
	}
}

// ClearLastDetection resets the last detection display.
func (t *Tray) ClearLastDetection() {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLast != nil {
		t.menuLast.SetTitle("Last: none")
	}
}

// SetTotal updates the retained item count.
func (t *Tray) SetTotal(n int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuTotal != nil {
		t.menuTotal.SetTitle(totalTitle(n))
	}
}

// IsRunning returns the detection state last reported by SetRunning.
func (t *Tray) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func toggleTitle(running bool) string {
	if running {
		return "● Detecting"
	}
	return "○ Stopped"
}

func lastTitle(r detection.Raw) string {
	if math.IsNaN(r.Confidence) {
		return "Last: " + r.Class
	}
	return fmt.Sprintf("Last: %s (%.2f)", r.Class, r.Confidence)
}

func totalTitle(n int) string {
	if n == 1 {
		return "1 item tracked"
	}
	return fmt.Sprintf("%d items tracked", n)
}

// OpenBrowser opens url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
