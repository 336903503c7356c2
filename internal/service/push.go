package service

import (
	"github.com/vipul43/ledger-sync-worker/internal/connector"
	"github.com/vipul43/ledger-sync-worker/internal/importer"
	"github.com/vipul43/ledger-sync-worker/internal/models"
)

// pushOutcome splits a pushed batch by per-item result.
type pushOutcome struct {
	pushed    []string
	remoteIDs map[string]string
	failures  []importer.RecordError
}

// matchPushResults pairs results with ids by position. An item with no
// matching result counts as failed and is never marked pushed.
func matchPushResults(ids []string, results []connector.PushResult) pushOutcome {
	o := pushOutcome{remoteIDs: make(map[string]string)}
	for i, id := range ids {
		if i >= len(results) {
			o.failures = append(o.failures, importer.RecordError{ExternalID: id, Error: "no result returned by connector"})
			continue
		}
		r := results[i]
		if !r.Success {
			msg := r.Error
			if msg == "" {
				msg = "rejected by provider"
			}
			o.failures = append(o.failures, importer.RecordError{ExternalID: id, Error: msg})
			continue
		}
		o.pushed = append(o.pushed, id)
		if r.ExternalID != "" {
			o.remoteIDs[id] = r.ExternalID
		}
	}
	return o
}

// invoiceToNormalized presents a platform invoice to a provider. The
// platform id is the provider's external id.
func invoiceToNormalized(inv *models.Invoice) connector.NormalizedInvoice {
	net := inv.NetAmount
	out := connector.NormalizedInvoice{
		ExternalID:            inv.ID,
		InvoiceNumber:         inv.InvoiceNumber,
		IssueDate:             inv.IssueDate,
		DueDate:               inv.DueDate,
		TotalAmount:           inv.TotalAmount,
		TaxAmount:             inv.TaxAmount,
		NetAmount:             &net,
		Currency:              inv.Currency,
		CounterpartyName:      inv.CounterpartyName,
		CounterpartyTaxNumber: inv.CounterpartyTaxNumber,
		Status:                inv.Status,
		Type:                  string(inv.Type),
		Lines:                 make([]connector.NormalizedInvoiceLine, 0, len(inv.Lines)),
	}
	if c := inv.ClientCompany; c != nil {
		out.ClientCompanyName = c.Name
		out.ClientCompanyTaxNumber = c.TaxNumber
		if c.ExternalID != nil {
			out.ClientCompanyExternalID = *c.ExternalID
		}
	}
	for _, l := range inv.Lines {
		out.Lines = append(out.Lines, connector.NormalizedInvoiceLine{
			LineNumber:  l.LineNumber,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
			VatRate:     l.VatRate,
			VatAmount:   l.VatAmount,
		})
	}
	return out
}

func transactionToNormalized(txn *models.Transaction) connector.NormalizedBankTransaction {
	out := connector.NormalizedBankTransaction{
		ExternalID:  txn.ID,
		BookingDate: txn.BookingDate,
		ValueDate:   txn.ValueDate,
		Description: txn.Description,
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		ReferenceNo: txn.ReferenceNo,
	}
	if txn.BalanceAfter != nil {
		b := *txn.BalanceAfter
		out.BalanceAfter = &b
	}
	if txn.BankAccount != nil {
		out.AccountIdentifier = txn.BankAccount.IBAN
	}
	return out
}
