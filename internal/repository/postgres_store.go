package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kyungseok/payment-es-go-practical/common/errors"
	"github.com/kyungseok/payment-es-go-practical/internal/domain"
)

// PostgresEventStore PostgreSQL 기반 이벤트 저장소
//
// 결제별 스냅샷 행을 FOR UPDATE로 잠가 동일 결제에 대한 동시 쓰기를
// 직렬화한다. 버전 검증, 이벤트 삽입, 스냅샷 upsert, outbox 기록이
// 하나의 트랜잭션으로 커밋된다.
type PostgresEventStore struct {
	db     *sql.DB
	outbox OutboxRepository
}

// NewPostgresEventStore PostgreSQL 이벤트 저장소 생성 (outbox는 nil 허용)
func NewPostgresEventStore(db *sql.DB, outbox OutboxRepository) *PostgresEventStore {
	return &PostgresEventStore{db: db, outbox: outbox}
}

// Append 이벤트와 스냅샷을 원자적으로 기록 (낙관적 동시성 검증 포함)
func (s *PostgresEventStore) Append(ctx context.Context, paymentID string, events []domain.Event, expectedVersion int64, snapshot domain.Snapshot) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.KindInfrastructure, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var currentVersion int64
	var rowExists bool
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM payments WHERE payment_id = $1 FOR UPDATE`,
		paymentID,
	).Scan(&currentVersion)
	switch {
	case err == sql.ErrNoRows:
		currentVersion = 0
	case err != nil:
		return errors.Wrap(errors.KindInfrastructure, "failed to read current payment version", err)
	default:
		rowExists = true
	}

	if currentVersion != expectedVersion {
		return conflictError(paymentID, expectedVersion, currentVersion)
	}

	version := expectedVersion
	for _, evt := range events {
		version++

		payload, err := domain.MarshalPayload(evt.Payload)
		if err != nil {
			return errors.Wrap(errors.KindInfrastructure, "failed to marshal event payload", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_events (event_id, payment_id, type, payload, occurred_at, version)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), paymentID, string(evt.Type()), payload, evt.OccurredAt, version)
		if err != nil {
			// (payment_id, version) 유니크 위반은 동시 쓰기 경합
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				return conflictError(paymentID, expectedVersion, currentVersion)
			}
			return errors.Wrap(errors.KindInfrastructure, "failed to insert payment event", err)
		}

		if s.outbox != nil {
			outboxEvent := &OutboxEvent{
				AggregateType: "payment",
				AggregateID:   paymentID,
				EventType:     string(evt.Type()),
				Payload:       payload,
				Status:        OutboxStatusPending,
				CreatedAt:     evt.OccurredAt,
			}
			if err := s.outbox.InsertTx(ctx, tx, outboxEvent); err != nil {
				return errors.Wrap(errors.KindInfrastructure, "failed to record outbox event", err)
			}
		}
	}

	if err := s.upsertSnapshot(ctx, tx, rowExists, snapshot); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.KindInfrastructure, "failed to commit transaction", err)
	}

	return nil
}

func (s *PostgresEventStore) upsertSnapshot(ctx context.Context, tx *sql.Tx, rowExists bool, snapshot domain.Snapshot) error {
	var err error
	if rowExists {
		_, err = tx.ExecContext(ctx, `
			UPDATE payments
			SET amount_minor = $2, currency = $3, state = $4, attempt = $5,
			    description = $6, customer_email = $7, checkout_url = $8,
			    checkout_expires_at = $9, provider_reference = $10, last_error = $11,
			    created_at = $12, updated_at = $13, version = $14
			WHERE payment_id = $1
		`, snapshotArgs(snapshot)...)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (payment_id, amount_minor, currency, state, attempt,
				description, customer_email, checkout_url, checkout_expires_at,
				provider_reference, last_error, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, snapshotArgs(snapshot)...)
	}
	if err != nil {
		return errors.Wrap(errors.KindInfrastructure, "failed to upsert payment snapshot", err)
	}
	return nil
}

func snapshotArgs(snapshot domain.Snapshot) []any {
	return []any{
		snapshot.ID,
		snapshot.AmountMinor,
		snapshot.Currency,
		string(snapshot.State),
		snapshot.Attempt,
		nullString(snapshot.Description),
		nullString(snapshot.CustomerEmail),
		nullString(snapshot.CheckoutURL),
		nullTime(snapshot.CheckoutExpiresAt),
		nullString(snapshot.ProviderReference),
		nullString(snapshot.LastError),
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
		snapshot.Version,
	}
}

// Load 이벤트 이력 조회 (이력이 없으면 not-found)
func (s *PostgresEventStore) Load(ctx context.Context, paymentID string) ([]domain.Event, error) {
	events, err := s.ListHistory(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, historyNotFoundError(paymentID)
	}
	return events, nil
}

// ListHistory 버전 오름차순 이벤트 이력 조회 (이력이 없으면 빈 시퀀스)
func (s *PostgresEventStore) ListHistory(ctx context.Context, paymentID string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, payload, occurred_at
		FROM payment_events
		WHERE payment_id = $1
		ORDER BY version ASC
	`, paymentID)
	if err != nil {
		return nil, errors.Wrap(errors.KindInfrastructure, "failed to query payment events", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			eventType  string
			payload    []byte
			occurredAt sql.NullTime
		)
		if err := rows.Scan(&eventType, &payload, &occurredAt); err != nil {
			return nil, errors.Wrap(errors.KindInfrastructure, "failed to scan payment event", err)
		}

		decoded, err := domain.UnmarshalPayload(domain.EventType(eventType), payload)
		if err != nil {
			return nil, errors.Wrap(errors.KindInfrastructure, "failed to decode event payload", err)
		}

		events = append(events, domain.Event{
			OccurredAt: occurredAt.Time,
			Payload:    decoded,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.KindInfrastructure, "failed to iterate payment events", err)
	}

	return events, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value time.Time) sql.NullTime {
	return sql.NullTime{Time: value, Valid: !value.IsZero()}
}
