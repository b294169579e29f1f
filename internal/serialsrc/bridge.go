package serialsrc

import (
	"context"

	"github.com/banshee-data/drivegate/internal/fusion"
	"github.com/banshee-data/drivegate/internal/ingest"
	"github.com/banshee-data/drivegate/internal/monitoring"
)

// Bridge subscribes to the mux and feeds each detector line through the POI
// codec into the engine. It blocks until ctx is cancelled or the subscription
// channel closes. Lines the codec rejects drop individually; the stream keeps
// flowing.
func Bridge(ctx context.Context, mux Muxer, engine *fusion.Engine, stats *ingest.PacketStats) {
	id, c := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case line, ok := <-c:
			if !ok {
				return
			}
			if err := handleLine(engine, stats, line); err != nil {
				monitoring.Logf("serial: dropping detector line: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleLine decodes one detector line and hands the POI to the engine.
func handleLine(engine *fusion.Engine, stats *ingest.PacketStats, line string) error {
	if stats != nil {
		stats.AddPacket(len(line))
	}

	poi, err := ingest.DecodePOI([]byte(line))
	if err != nil {
		if stats != nil {
			stats.AddMalformed()
		}
		return err
	}

	engine.OnPOI(poi)
	return nil
}
