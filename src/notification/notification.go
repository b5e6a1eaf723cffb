// Package notification surfaces user-facing status: transient popups for
// capture results and failures, and a blocking modal for fatal errors.
package notification

import (
	"log"
	"runtime"
)

// Show displays a temporary popup with a short status message.
func Show(text string) {
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	if runtime.GOOS == "windows" {
		go func() {
			if err := showPopup(text); err != nil {
				log.Printf("notification: failed to show popup: %v", err)
			}
		}()
		return
	}
	log.Printf("notification: %s", text)
}
