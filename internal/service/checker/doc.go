// Package checker performs one update check against a running server the way
// an expo-updates client would, and verifies what it receives.
package checker
