// ABOUTME: Version information for lanaudio binaries
// ABOUTME: Reported at startup and in mDNS TXT records
package version

const (
	// Version is the release version
	Version = "0.3.0"
	// Product names the software in discovery records
	Product = "lanaudio"
	// Manufacturer identifies the publisher
	Manufacturer = "Resonate Protocol"
)
