//go:build pcap
// +build pcap

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/drivegate/internal/monitoring"
)

// ReplayPCAP reads recorded mask or POI traffic from a PCAP file and feeds
// each UDP payload on the given port to handler, exercising the same decode
// path as live ingestion. Only available when building with the 'pcap' tag.
func ReplayPCAP(ctx context.Context, pcapFile string, udpPort int, stats *PacketStats, handler Handler) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}
	monitoring.Logf("PCAP BPF filter set: %s", filterStr)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP replay stopping: %v (processed %d packets)", ctx.Err(), packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				elapsed := time.Since(startTime)
				monitoring.Logf("PCAP replay complete: %d packets in %v", packetCount, elapsed)
				return nil
			}

			packetCount++

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}

			payload := udp.Payload
			if len(payload) == 0 {
				continue
			}

			if stats != nil {
				stats.AddPacket(len(payload))
			}

			if handler != nil {
				if err := handler(payload); err != nil {
					if stats != nil {
						stats.AddMalformed()
					}
					monitoring.Logf("PCAP packet %d dropped: %v", packetCount, err)
				}
			}

			if packetCount%10000 == 0 {
				elapsed := time.Since(startTime)
				monitoring.Logf("PCAP progress: %d packets in %v (%.0f pkt/s)",
					packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
			}
		}
	}
}
