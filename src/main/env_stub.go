//go:build !windows

package main

// DPI awareness is a Windows concern; other platforms report scale
// through the capture bounds instead.
func enableDPIAwareness() {}
