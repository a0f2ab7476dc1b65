package services

// Ledger bundles the services that share one store, projector and locker.
type Ledger struct {
	Sources      *SourceService
	Transactions *TransactionService
	Transfers    *TransferService
	Dashboard    *DashboardService
}

// New fills in missing dependencies once so every service locks through the
// same Locker and invalidates the same Projector.
func New(d Deps) *Ledger {
	d = d.withDefaults()
	return &Ledger{
		Sources:      NewSourceService(d),
		Transactions: NewTransactionService(d),
		Transfers:    NewTransferService(d),
		Dashboard:    NewDashboardService(d),
	}
}
