package transaction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackbill/stackbill/internal/types"
)

// Transaction is a client payment. Portions of its amount are applied to
// invoices through Application rows; the unapplied remainder stays available
// as client credit.
type Transaction struct {
	ID       string                  `db:"id" json:"id"`
	ClientID string                  `db:"client_id" json:"client_id"`
	Amount   decimal.Decimal         `db:"amount" json:"amount"`
	Currency string                  `db:"currency" json:"currency"`
	TxStatus types.TransactionStatus `db:"tx_status" json:"tx_status"`

	DateAdded time.Time `db:"date_added" json:"date_added"`

	Applications []*Application `json:"applications,omitempty"`
	types.BaseModel
}

// Applied returns how much of the transaction has been applied to invoices
func (t *Transaction) Applied() decimal.Decimal {
	total := decimal.Zero
	for _, a := range t.Applications {
		total = total.Add(a.Amount)
	}
	return total
}

// Available returns the unapplied remainder
func (t *Transaction) Available() decimal.Decimal {
	return t.Amount.Sub(t.Applied())
}

// Application is a portion of a transaction applied to one invoice
type Application struct {
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	InvoiceID     string          `db:"invoice_id" json:"invoice_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	DateApplied   time.Time       `db:"date_applied" json:"date_applied"`
}
