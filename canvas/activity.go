package canvas

import (
	"context"
	"log"

	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/store"
)

// WatchActivity reports the marker written with every canvas flush, for
// badges that must not subscribe to the whole grid.
func WatchActivity(ctx context.Context, remote store.RemoteStore, pairId string, fn func(models.CanvasActivity)) (store.Unsubscribe, error) {
	return remote.SubscribeValue(ctx, store.ActivityPath(pairId), func(snap store.Snapshot) {
		if !snap.Exists {
			return
		}
		activity, err := models.DecodeCanvasActivity(snap.Value)
		if err != nil {
			log.Printf("Dropping canvas activity for pair %s: %v", pairId, err)
			return
		}
		fn(activity)
	})
}
