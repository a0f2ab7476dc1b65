package services

import (
	"context"
	"time"

	"dinero/internal/ledger"
	applog "dinero/internal/log"
)

const defaultStoreTimeout = 5 * time.Second

// Deps are the collaborators shared by the ledger services.
type Deps struct {
	Store     ledger.Store
	Projector *ledger.Projector
	Locker    *ledger.Locker
	Publisher ledger.Publisher // optional

	StoreTimeout time.Duration
	Logger       *applog.StructuredLogger // optional
}

func (d Deps) withDefaults() Deps {
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = defaultStoreTimeout
	}
	if d.Locker == nil {
		d.Locker = ledger.NewLocker()
	}
	if d.Projector == nil {
		d.Projector = ledger.NewProjector(d.Store, d.Store, nil)
	}
	if d.Logger == nil {
		d.Logger = applog.NewStructuredLogger(applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentLedger))
	}
	return d
}

// storeCtx bounds a single store call.
func (d Deps) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.StoreTimeout)
}

// publish sends e best effort. The entries are already durable, so a broker
// failure is logged and never returned.
func (d Deps) publish(ctx context.Context, e ledger.Event) {
	if d.Publisher == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := d.Publisher.PublishLedgerEvent(ctx, e); err != nil {
		d.Logger.LogError(ctx, "Failed to publish ledger event", err, applog.ComponentAMQP, applog.OpAppend,
			applog.LogFields{"event": e.Kind, "source_ids": e.SourceIDs, applog.FieldTransferID: e.TransferID})
	}
}
