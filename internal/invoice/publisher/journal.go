package publisher

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
)

// JournalMapping is the index mapping for the sync journal.
const JournalMapping = `{
  "mappings": {
    "properties": {
      "type":           {"type": "keyword"},
      "invoice_id":     {"type": "keyword"},
      "invoice_number": {"type": "keyword"},
      "sync_status":    {"type": "keyword"},
      "fiscal_id":      {"type": "keyword"},
      "message":        {"type": "text"},
      "sync_attempts":  {"type": "integer"},
      "total_amount":   {"type": "scaled_float", "scaling_factor": 100},
      "chassis":        {"type": "keyword"},
      "occurred_at":    {"type": "date"}
    }
  }
}`

type Indexer interface {
	CreateIndex(ctx context.Context, index, mapping string) error
	Index(ctx context.Context, index, id string, doc any) error
}

// ElasticJournal keeps one searchable document per invoice event for audit.
type ElasticJournal struct {
	indexer Indexer
	index   string
}

func NewElasticJournal(indexer Indexer, index string) *ElasticJournal {
	return &ElasticJournal{indexer: indexer, index: index}
}

// EnsureIndex creates the journal index if it does not exist yet.
func (j *ElasticJournal) EnsureIndex(ctx context.Context) error {
	return j.indexer.CreateIndex(ctx, j.index, JournalMapping)
}

func (j *ElasticJournal) PublishInvoiceEvent(ctx context.Context, ev invoice.Event) error {
	id := fmt.Sprintf("%s:%s:%d", ev.InvoiceID, ev.Type, ev.OccurredAt.UnixNano())
	if err := j.indexer.Index(ctx, j.index, id, ev); err != nil {
		return fmt.Errorf("failed to index %s event: %w", ev.Type, err)
	}
	return nil
}
