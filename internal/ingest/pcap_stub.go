//go:build !pcap
// +build !pcap

package ingest

import (
	"context"
	"fmt"
)

// ReplayPCAP is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable PCAP file reading.
func ReplayPCAP(ctx context.Context, pcapFile string, udpPort int, stats *PacketStats, handler Handler) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")
}
