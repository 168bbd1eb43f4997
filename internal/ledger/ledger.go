// Package ledger tracks local payment records and reconciles them against
// gateway notifications.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gsPatrick/nutri-lp/internal/core/events"
)

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Outcome describes what ApplyEvent did.
type Outcome struct {
	Record   *Record
	Previous Status
	Current  Status
	Changed  bool
	Created  bool
	Ignored  bool
}

type Ledger struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	locks     stripedLock
	now       func() time.Time
}

// New builds a Ledger; publisher may be nil.
func New(store Store, publisher Publisher, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// maxWriteAttempts bounds the re-read loop when another process wrote the
// same record between our read and our write.
const maxWriteAttempts = 5

// UpsertOnCreate inserts a CREATED record for id. Calling it again for a known id
// never changes the status; blank metadata fields are filled in.
func (l *Ledger) UpsertOnCreate(ctx context.Context, id string, meta Metadata) (*Record, error) {
	if id == "" {
		return nil, errors.New("gateway payment id is required")
	}

	unlock := l.locks.lock(id)
	defer unlock()

	if meta.ExternalReference != "" {
		if err := l.ensureReferenceFree(ctx, id, meta.ExternalReference); err != nil {
			return nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		record, err := l.upsert(ctx, id, meta)
		if errors.Is(err, ErrConflict) && attempt < maxWriteAttempts {
			l.logger.Debug("payment record changed while upserting, retrying", "payment_id", id, "attempt", attempt)
			continue
		}
		return record, err
	}
}

func (l *Ledger) upsert(ctx context.Context, id string, meta Metadata) (*Record, error) {
	existing, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := l.now()
	if existing != nil {
		if !fillMetadata(existing, meta) {
			return existing, nil
		}
		existing.UpdatedAt = now
		if err := l.store.Put(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update payment record: %w", err)
		}
		return existing.Clone(), nil
	}

	record := &Record{
		GatewayPaymentID:  id,
		ExternalReference: meta.ExternalReference,
		CustomerID:        meta.CustomerID,
		CustomerEmail:     meta.CustomerEmail,
		BillingType:       meta.BillingType,
		Value:             meta.Value,
		Status:            StatusCreated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := l.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store payment record: %w", err)
	}

	l.logger.Info("payment record created",
		"payment_id", id,
		"external_reference", record.ExternalReference,
		"billing_type", record.BillingType)
	return record.Clone(), nil
}

// ApplyEvent moves the record for id through the transition table. Unknown
// event types and transitions that do not apply are no-ops.
func (l *Ledger) ApplyEvent(ctx context.Context, id string, event EventType, payload Payload) (Outcome, error) {
	if id == "" {
		return Outcome{}, errors.New("gateway payment id is required")
	}
	log := l.logger.With("payment_id", id, "event", event)

	if !event.Known() {
		log.Info("ignoring unknown payment event")
		return Outcome{Ignored: true}, nil
	}

	unlock := l.locks.lock(id)
	var (
		record  *Record
		outcome Outcome
		err     error
	)
	for attempt := 1; ; attempt++ {
		record, outcome, err = l.apply(ctx, id, event, payload, log)
		if !errors.Is(err, ErrConflict) || attempt == maxWriteAttempts {
			break
		}
		log.Debug("payment record changed while applying event, retrying", "attempt", attempt)
	}
	unlock()
	if err != nil {
		return Outcome{}, err
	}

	if outcome.Changed {
		l.announce(ctx, record, outcome.Previous)
	}
	return outcome, nil
}

func (l *Ledger) apply(ctx context.Context, id string, event EventType, payload Payload, log *slog.Logger) (*Record, Outcome, error) {
	record, err := l.load(ctx, id)
	if err != nil {
		return nil, Outcome{}, err
	}
	now := l.now()

	if record == nil {
		switch {
		case event == EventRefunded:
			record = l.fromPayload(id, payload, now)
			record.Status = StatusRefunded
			record.RefundedAt = &now
			if err := l.store.Put(ctx, record); err != nil {
				return nil, Outcome{}, fmt.Errorf("failed to store refund tombstone: %w", err)
			}
			log.Info("refund tombstone stored for unknown payment")
			return record, Outcome{Record: nil, Current: StatusRefunded, Changed: true, Created: true}, nil
		case createsRecord(event):
			record = l.fromPayload(id, payload, now)
			log.Info("payment record created from notification")
			outcome := Outcome{Created: true, Previous: "", Current: StatusCreated}
			if to, changed := next(StatusCreated, event); changed {
				stamp(record, event, payload, now)
				record.Status = to
				outcome.Current = to
			}
			if err := l.store.Put(ctx, record); err != nil {
				return nil, Outcome{}, fmt.Errorf("failed to store payment record: %w", err)
			}
			outcome.Changed = true
			outcome.Record = record.Clone()
			return record, outcome, nil
		default:
			log.Warn("no payment record for notification, ignoring")
			return nil, Outcome{Ignored: true}, nil
		}
	}

	if record.Tombstone() {
		log.Info("payment already refunded, ignoring notification")
		return nil, Outcome{Previous: StatusRefunded, Current: StatusRefunded, Ignored: true}, nil
	}

	previous := record.Status
	to, changed := next(previous, event)
	if !changed {
		// a late confirmation on a received record still tells us when it was confirmed
		if event == EventConfirmed && previous == StatusReceived && record.ConfirmedAt == nil {
			record.ConfirmedAt = timeOr(payload.ConfirmedDate, now)
			record.UpdatedAt = now
			if err := l.store.Put(ctx, record); err != nil {
				return nil, Outcome{}, fmt.Errorf("failed to update payment record: %w", err)
			}
		}
		log.Debug("payment event does not change status", "status", previous)
		return record, Outcome{Record: record.Clone(), Previous: previous, Current: previous}, nil
	}

	stamp(record, event, payload, now)
	record.Status = to
	record.UpdatedAt = now
	if err := l.store.Put(ctx, record); err != nil {
		return nil, Outcome{}, fmt.Errorf("failed to update payment record: %w", err)
	}

	log.Info("payment status changed", "from", previous, "to", to)

	outcome := Outcome{Previous: previous, Current: to, Changed: true}
	if !record.Tombstone() {
		outcome.Record = record.Clone()
	}
	return record, outcome, nil
}

// Get returns the live record for id; refunded records are reported as ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (*Record, error) {
	record, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Tombstone() {
		return nil, ErrNotFound
	}
	return record, nil
}

func (l *Ledger) LookupByExternalReference(ctx context.Context, ref string) (*Record, error) {
	records, err := l.store.ScanByField(ctx, FieldExternalReference, ref)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if !r.Tombstone() {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// Pending lists records the gateway may still settle.
func (l *Ledger) Pending(ctx context.Context) ([]*Record, error) {
	var out []*Record
	for _, status := range PendingStatuses {
		records, err := l.store.ScanByField(ctx, FieldStatus, string(status))
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s records: %w", status, err)
		}
		out = append(out, records...)
	}
	return out, nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

func (l *Ledger) load(ctx context.Context, id string) (*Record, error) {
	record, err := l.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment record: %w", err)
	}
	return record, nil
}

func (l *Ledger) ensureReferenceFree(ctx context.Context, id, ref string) error {
	records, err := l.store.ScanByField(ctx, FieldExternalReference, ref)
	if err != nil {
		return fmt.Errorf("failed to check external reference: %w", err)
	}
	for _, r := range records {
		if r.GatewayPaymentID != id {
			return ErrDuplicateReference
		}
	}
	return nil
}

func (l *Ledger) fromPayload(id string, p Payload, now time.Time) *Record {
	return &Record{
		GatewayPaymentID:  id,
		ExternalReference: p.ExternalReference,
		CustomerID:        p.CustomerID,
		CustomerEmail:     p.CustomerEmail,
		BillingType:       p.BillingType,
		Value:             p.Value,
		Status:            StatusCreated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (l *Ledger) announce(ctx context.Context, record *Record, previous Status) {
	if l.publisher == nil {
		return
	}

	change := events.PaymentChange{
		PaymentID:         record.GatewayPaymentID,
		ExternalReference: record.ExternalReference,
		CustomerEmail:     record.CustomerEmail,
		BillingType:       string(record.BillingType),
		Value:             record.Value.StringFixed(2),
		PreviousStatus:    string(previous),
		Status:            string(record.Status),
		At:                record.UpdatedAt,
	}

	types := []string{events.EventTypeStatusChanged}
	switch {
	case !previous.IsPaid() && record.Status.IsPaid():
		types = append(types, events.EventTypeAccessGranted)
	case previous.IsPaid() && !record.Status.IsPaid():
		types = append(types, events.EventTypeAccessRevoked)
	}

	for _, t := range types {
		if err := l.publisher.Publish(ctx, events.NewPaymentEvent(t, change)); err != nil {
			l.logger.Error("failed to publish payment event",
				"payment_id", record.GatewayPaymentID,
				"event_type", t,
				"error", err)
		}
	}
}

func stamp(r *Record, event EventType, p Payload, now time.Time) {
	switch event {
	case EventConfirmed:
		r.ConfirmedAt = timeOr(p.ConfirmedDate, now)
	case EventReceived:
		r.ReceivedAt = timeOr(p.PaymentDate, now)
		if r.ConfirmedAt == nil && p.ConfirmedDate != nil {
			r.ConfirmedAt = cloneTime(p.ConfirmedDate)
		}
		if p.CreditDate != nil {
			r.CreditDate = cloneTime(p.CreditDate)
		}
	case EventRefunded:
		r.RefundedAt = &now
	}
}

func fillMetadata(r *Record, meta Metadata) bool {
	changed := false
	if r.ExternalReference == "" && meta.ExternalReference != "" {
		r.ExternalReference = meta.ExternalReference
		changed = true
	}
	if r.CustomerID == "" && meta.CustomerID != "" {
		r.CustomerID = meta.CustomerID
		changed = true
	}
	if r.CustomerEmail == "" && meta.CustomerEmail != "" {
		r.CustomerEmail = meta.CustomerEmail
		changed = true
	}
	if r.BillingType == "" && meta.BillingType != "" {
		r.BillingType = meta.BillingType
		changed = true
	}
	if r.Value.IsZero() && !meta.Value.IsZero() {
		r.Value = meta.Value
		changed = true
	}
	return changed
}

func timeOr(t *time.Time, fallback time.Time) *time.Time {
	if t != nil {
		return cloneTime(t)
	}
	return &fallback
}
