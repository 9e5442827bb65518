package enums

// LedgerEntryKind classifies a balance change recorded in ledger_entries.
type LedgerEntryKind string

const (
	LedgerEntryDeposit     LedgerEntryKind = "deposit"
	LedgerEntryTransferOut LedgerEntryKind = "transfer_out"
	LedgerEntryTransferIn  LedgerEntryKind = "transfer_in"
	LedgerEntryRedemption  LedgerEntryKind = "redemption"
)

var ledgerEntryKinds = set[LedgerEntryKind]{
	LedgerEntryDeposit,
	LedgerEntryTransferOut,
	LedgerEntryTransferIn,
	LedgerEntryRedemption,
}

func (k LedgerEntryKind) IsValid() bool { return ledgerEntryKinds.has(k) }

// IsDebit reports whether the kind decreases the account balance.
func (k LedgerEntryKind) IsDebit() bool {
	return k == LedgerEntryTransferOut || k == LedgerEntryRedemption
}

func ParseLedgerEntryKind(value string) (LedgerEntryKind, error) {
	return ledgerEntryKinds.parse(value, "ledger entry kind")
}
