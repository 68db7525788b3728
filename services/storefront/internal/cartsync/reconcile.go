package cartsync

import (
	"context"
	"log/slog"
	"slices"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/domain"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/gateway"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/store"
)

// syncLocked refreshes e.snapshot for the active scope.
//
// In user scope it first retries queued work (pending removals, then pending
// adds), then takes the cart from the first source that yields lines:
// the listing by user id, the listing by registered row ids, and finally the
// local mirror. Backend rows still queued for removal are hidden and lines
// with unconfirmed quantity are kept.
func (e *Engine) syncLocked(ctx context.Context) {
	if e.scope.IsGuest() {
		e.snapshot = e.loadSnapshotLocked(ctx)
		syncSourceTotal.WithLabelValues(SourceGuest).Inc()
		return
	}

	uid := e.scope.UserID
	log := logger.WithContext(ctx, e.logger)

	pendingRemovals := e.retryPendingRemovals(ctx)

	mirror := e.loadSnapshotLocked(ctx)
	e.retryPendingAdds(ctx, &mirror)

	source := SourceMirror
	var remote gateway.RemoteCart
	fetched := false

	if cart, err := e.remote.ListByUser(ctx, uid); err != nil {
		e.remoteFailed(ctx, "list_by_user", err)
	} else if len(cart.Lines) > 0 {
		remote, fetched, source = cart, true, SourceRemoteUser
	}

	if !fetched {
		if ids := e.readIDs(ctx, store.RowIDsKey(uid)); len(ids) > 0 {
			if cart, err := e.remote.ListByRowIDs(ctx, ids); err != nil {
				e.remoteFailed(ctx, "list_by_rows", err)
			} else if len(cart.Lines) > 0 {
				remote, fetched, source = cart, true, SourceRemoteRows
			}
		}
	}

	if fetched {
		e.snapshot = mergeRemote(remote, mirror, pendingRemovals)
		if remote.Declared && !remote.Total.Equal(e.snapshot.Summary().Total) {
			log.DebugContext(ctx, "declared cart total differs from line total",
				slog.String("declared", remote.Total.String()),
				slog.String("computed", e.snapshot.Summary().Total.String()),
			)
		}
	} else {
		e.snapshot = mirror
	}
	e.saveSnapshotLocked(ctx)

	syncSourceTotal.WithLabelValues(source).Inc()
	log.DebugContext(ctx, "cart synced",
		slog.String("source", source),
		slog.Int("lines", e.snapshot.Len()),
	)

	if e.events != nil {
		if err := e.events.PublishCartSynced(ctx, uid, source, e.snapshot.Summary()); err != nil {
			log.ErrorContext(ctx, "failed to publish cart.synced event",
				slog.String("user_id", uid),
				slog.String("error", err.Error()),
			)
		}
	}
}

// retryPendingRemovals re-sends queued removals and returns the ids that
// still could not be removed.
func (e *Engine) retryPendingRemovals(ctx context.Context) []string {
	key := store.PendingRemovalsKey(e.scope.UserID)
	pending := e.readIDs(ctx, key)
	if len(pending) == 0 {
		return nil
	}

	var still, removed []string
	for _, id := range pending {
		if err := e.removeRemote(ctx, id); err != nil {
			still = append(still, id)
			continue
		}
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		e.forgetRowIDs(ctx, removed...)
		e.writePendingRemovals(ctx, still)
	}
	return still
}

// retryPendingAdds re-sends the unconfirmed quantity of every pending line
// of mirror.
func (e *Engine) retryPendingAdds(ctx context.Context, mirror *domain.Snapshot) {
	for i := range mirror.Lines {
		line := &mirror.Lines[i]
		if line.SyncState != domain.SyncPendingAdd {
			continue
		}
		qty := line.PendingQuantity
		if qty < 1 {
			line.SyncState = domain.SyncConfirmed
			continue
		}
		rowID, err := e.remote.Add(ctx, e.scope.UserID, line.ProductID, qty)
		if err != nil {
			e.remoteFailed(ctx, "add", err, slog.String("product_id", line.ProductID))
			continue
		}
		line.PendingQuantity = 0
		line.SyncState = domain.SyncConfirmed
		switch {
		case line.ServerRowID == "":
			line.ServerRowID = rowID
		case rowID != "" && !slices.Contains(line.RowIDs(), rowID):
			line.MergedRowIDs = append(slices.Clip(line.MergedRowIDs), rowID)
		}
		e.recordRowIDs(ctx, rowID)
	}
}

// mergeRemote builds the snapshot from a backend listing. Rows queued for
// removal are dropped; quantity the backend has not confirmed yet is carried
// over from the local mirror.
func mergeRemote(remote gateway.RemoteCart, mirror domain.Snapshot, pendingRemovals []string) domain.Snapshot {
	out := domain.Snapshot{Lines: make([]domain.CartLine, 0, len(remote.Lines))}
	for _, line := range remote.Lines {
		if line.ServerRowID != "" && contains(pendingRemovals, line.ServerRowID) {
			continue
		}
		out.Add(line)
	}

	for _, local := range mirror.Lines {
		if local.SyncState != domain.SyncPendingAdd || local.PendingQuantity < 1 {
			continue
		}
		i := out.Find(local.ProductID)
		if i < 0 {
			out.Add(local)
			continue
		}
		out.Lines[i].Quantity += local.PendingQuantity
		out.Lines[i].PendingQuantity = local.PendingQuantity
		out.Lines[i].SyncState = domain.SyncPendingAdd
	}
	return out
}

// mergeLocked pushes every guest line to the backend under the active user.
// Accepted lines join the user's cart and leave the guest cart; rejected
// lines stay in the guest cart for a later attempt.
func (e *Engine) mergeLocked(ctx context.Context) {
	guest := domain.Snapshot{}
	if !e.store.Read(ctx, store.GuestCartKey, &guest) || guest.Len() == 0 {
		return
	}

	uid := e.scope.UserID
	log := logger.WithContext(ctx, e.logger)

	var remaining []domain.CartLine
	merged := 0
	for _, line := range guest.Lines {
		rowID, err := e.remote.Add(ctx, uid, line.ProductID, line.Quantity)
		if err != nil {
			e.remoteFailed(ctx, "merge_add", err, slog.String("product_id", line.ProductID))
			remaining = append(remaining, line)
			continue
		}
		merged++
		e.recordRowIDs(ctx, rowID)

		line.SyncState = domain.SyncConfirmed
		line.ServerRowID = rowID
		line.PendingQuantity = 0
		e.snapshot.Add(line)
	}

	if len(remaining) == 0 {
		e.store.Remove(ctx, store.GuestCartKey)
	} else {
		e.store.Write(ctx, store.GuestCartKey, domain.Snapshot{Lines: remaining})
	}
	if merged > 0 {
		e.saveSnapshotLocked(ctx)
	}

	mergedLinesTotal.WithLabelValues("merged").Add(float64(merged))
	mergedLinesTotal.WithLabelValues("failed").Add(float64(len(remaining)))
	log.InfoContext(ctx, "guest cart merged",
		slog.String("user_id", uid),
		slog.Int("merged", merged),
		slog.Int("failed", len(remaining)),
	)

	if e.events != nil {
		if err := e.events.PublishCartMerged(ctx, uid, merged, len(remaining)); err != nil {
			log.ErrorContext(ctx, "failed to publish cart.merged event",
				slog.String("user_id", uid),
				slog.String("error", err.Error()),
			)
		}
	}
}
