package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fekuna/omnipos-fiscal-service/internal/invoice"
	"github.com/fekuna/omnipos-fiscal-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMessage struct {
	topic string
	key   string
	value []byte
}

type fakeWriter struct {
	messages []capturedMessage
	err      error
}

func (f *fakeWriter) Publish(_ context.Context, topic, key string, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, capturedMessage{topic: topic, key: key, value: value})
	return nil
}

type fakeIndexer struct {
	mappings map[string]string
	docs     map[string]any
}

func (f *fakeIndexer) CreateIndex(_ context.Context, index, mapping string) error {
	f.mappings[index] = mapping
	return nil
}

func (f *fakeIndexer) Index(_ context.Context, index, id string, doc any) error {
	f.docs[index+"/"+id] = doc
	return nil
}

func sampleEvent() invoice.Event {
	return invoice.Event{
		Type:          invoice.EventSynced,
		InvoiceID:     "inv-1",
		InvoiceNumber: "U1-0001",
		Status:        model.SyncStatusSynced,
		FiscalID:      "9991",
		TotalAmount:   "118000",
		Chassis:       []string{"CH-001"},
		OccurredAt:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, "fiscal.invoice-events")

	require.NoError(t, p.PublishInvoiceEvent(context.Background(), sampleEvent()))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "fiscal.invoice-events", w.messages[0].topic)
	assert.Equal(t, "inv-1", w.messages[0].key)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.messages[0].value, &decoded))
	assert.Equal(t, "invoice.synced", decoded["type"])
	assert.Equal(t, "9991", decoded["fiscal_id"])
	assert.Equal(t, "SYNCED", decoded["sync_status"])
}

func TestKafkaPublisher_WrapsError(t *testing.T) {
	broken := errors.New("broker down")
	p := NewKafkaPublisher(&fakeWriter{err: broken}, "t")

	err := p.PublishInvoiceEvent(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, broken)
}

func TestElasticJournal(t *testing.T) {
	idx := &fakeIndexer{mappings: map[string]string{}, docs: map[string]any{}}
	j := NewElasticJournal(idx, "fiscal-invoices")

	require.NoError(t, j.EnsureIndex(context.Background()))
	assert.True(t, json.Valid([]byte(idx.mappings["fiscal-invoices"])))

	ev := sampleEvent()
	require.NoError(t, j.PublishInvoiceEvent(context.Background(), ev))
	require.Len(t, idx.docs, 1)
	for id, doc := range idx.docs {
		assert.Contains(t, id, "fiscal-invoices/inv-1:invoice.synced:")
		assert.Equal(t, ev, doc)
	}
}
