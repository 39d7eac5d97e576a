// Package sqlite хранилище сигналов в SQLite
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/pkg/logger"
	"github.com/skalibog/cryptosignals/pkg/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SignalStore реализует storage.SignalRepository поверх SQLite
type SignalStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSignalStore открывает (или создает) базу и выполняет миграции.
// path ":memory:" создает базу в памяти.
func NewSignalStore(path string) (*SignalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия sqlite: %w", err)
	}
	// одно соединение: база в памяти живет в рамках соединения, запись все равно последовательная
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("ошибка включения WAL: %w", err)
		}
	}

	s := &SignalStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка миграции: %w", err)
	}

	logger.Info("Хранилище сигналов SQLite открыто", zap.String("path", path))
	return s, nil
}

// Close закрывает соединение с базой данных
func (s *SignalStore) Close() error {
	return s.db.Close()
}

func (s *SignalStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id             TEXT PRIMARY KEY,
			exchange       TEXT NOT NULL,
			pair           TEXT NOT NULL,
			direction      TEXT NOT NULL,
			entry_price    REAL NOT NULL,
			stop_loss      REAL NOT NULL,
			take_profits   TEXT NOT NULL,
			confidence     REAL NOT NULL,
			reasoning      TEXT NOT NULL,
			timeframe      TEXT NOT NULL,
			strategy       TEXT NOT NULL,
			status         TEXT NOT NULL,
			created_at     INTEGER NOT NULL,
			sent_at        INTEGER,
			executed_at    INTEGER,
			failure_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_pair ON signals(exchange, pair, status)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status, sent_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

const selectColumns = `id, exchange, pair, direction, entry_price, stop_loss, take_profits, confidence,
	reasoning, timeframe, strategy, status, created_at, sent_at, executed_at, failure_reason`

// Save сохраняет новый сигнал
func (s *SignalStore) Save(ctx context.Context, signal *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := toRow(signal)
	if err != nil {
		return err
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM signals WHERE id = ?`, signal.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrRepository, err)
	}
	if exists > 0 {
		return fmt.Errorf("сигнал %s: %w", signal.ID, storage.ErrDuplicate)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO signals (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, row.args()...)
	if err != nil {
		return fmt.Errorf("%w: сохранение сигнала %s: %v", models.ErrRepository, signal.ID, err)
	}
	return nil
}

// Update заменяет существующий сигнал
func (s *SignalStore) Update(ctx context.Context, signal *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := toRow(signal)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE signals SET
			exchange = ?, pair = ?, direction = ?, entry_price = ?, stop_loss = ?, take_profits = ?,
			confidence = ?, reasoning = ?, timeframe = ?, strategy = ?, status = ?, created_at = ?,
			sent_at = ?, executed_at = ?, failure_reason = ?
		WHERE id = ?`, append(row.args()[1:], row.id)...)
	if err != nil {
		return fmt.Errorf("%w: обновление сигнала %s: %v", models.ErrRepository, signal.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("сигнал %s: %w", signal.ID, storage.ErrNotFound)
	}
	return nil
}

// FindByID ищет сигнал по идентификатору
func (s *SignalStore) FindByID(ctx context.Context, id string) (*models.Signal, error) {
	signals, err := s.query(ctx, `SELECT `+selectColumns+` FROM signals WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, fmt.Errorf("сигнал %s: %w", id, storage.ErrNotFound)
	}
	return signals[0], nil
}

// FindActive все сигналы в статусах PENDING и SENT
func (s *SignalStore) FindActive(ctx context.Context) ([]*models.Signal, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM signals
		WHERE status IN (?, ?) ORDER BY created_at`, models.StatusPending, models.StatusSent)
}

// FindActiveByPair активные сигналы пары
func (s *SignalStore) FindActiveByPair(ctx context.Context, exchange, symbol string) ([]*models.Signal, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM signals
		WHERE exchange = ? AND pair = ? AND status IN (?, ?) ORDER BY created_at`,
		exchange, symbol, models.StatusPending, models.StatusSent)
}

// FindRecentByPair последние сигналы пары, новые первыми
func (s *SignalStore) FindRecentByPair(ctx context.Context, exchange, symbol string, limit int) ([]*models.Signal, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, `SELECT `+selectColumns+` FROM signals
		WHERE exchange = ? AND pair = ? ORDER BY created_at DESC LIMIT ?`, exchange, symbol, limit)
}

// CleanupExpiredSignals переводит SENT-сигналы старше maxAge в EXECUTED
func (s *SignalStore) CleanupExpiredSignals(ctx context.Context, maxAge time.Duration, now time.Time) ([]*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates, err := s.query(ctx, `SELECT `+selectColumns+` FROM signals
		WHERE status = ? AND sent_at IS NOT NULL AND sent_at < ? ORDER BY created_at`,
		models.StatusSent, now.Add(-maxAge).UnixNano())
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: очистка сигналов: %v", models.ErrRepository, err)
	}
	defer tx.Rollback()

	expired := make([]*models.Signal, 0, len(candidates))
	for _, sig := range candidates {
		if !storage.ExpireSignal(sig, maxAge, now) {
			continue
		}
		_, err := tx.ExecContext(ctx, `UPDATE signals SET status = ?, executed_at = ? WHERE id = ? AND status = ?`,
			models.StatusExecuted, now.UnixNano(), sig.ID, models.StatusSent)
		if err != nil {
			return nil, fmt.Errorf("%w: очистка сигнала %s: %v", models.ErrRepository, sig.ID, err)
		}
		expired = append(expired, sig)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: очистка сигналов: %v", models.ErrRepository, err)
	}
	return expired, nil
}

func (s *SignalStore) query(ctx context.Context, q string, args ...any) ([]*models.Signal, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: запрос сигналов: %v", models.ErrRepository, err)
	}
	defer rows.Close()

	var out []*models.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: чтение сигналов: %v", models.ErrRepository, err)
	}
	return out, nil
}

type signalRow struct {
	id, exchange, pair, direction string
	entry, stopLoss               float64
	takeProfits                   string
	confidence                    float64
	reasoning                     string
	timeframe, strategy, status   string
	createdAt                     int64
	sentAt, executedAt            sql.NullInt64
	failureReason                 string
}

func (r signalRow) args() []any {
	return []any{
		r.id, r.exchange, r.pair, r.direction, r.entry, r.stopLoss, r.takeProfits, r.confidence,
		r.reasoning, r.timeframe, r.strategy, r.status, r.createdAt, r.sentAt, r.executedAt, r.failureReason,
	}
}

func toRow(sig *models.Signal) (signalRow, error) {
	tps, err := json.Marshal(sig.Targets.TakeProfits)
	if err != nil {
		return signalRow{}, fmt.Errorf("%w: сериализация тейк-профитов: %v", models.ErrRepository, err)
	}
	reasoning, err := json.Marshal(sig.Reasoning)
	if err != nil {
		return signalRow{}, fmt.Errorf("%w: сериализация обоснования: %v", models.ErrRepository, err)
	}
	return signalRow{
		id:            sig.ID,
		exchange:      sig.Exchange,
		pair:          sig.Pair,
		direction:     string(sig.Direction),
		entry:         sig.EntryPrice,
		stopLoss:      sig.Targets.StopLoss,
		takeProfits:   string(tps),
		confidence:    sig.Confidence,
		reasoning:     string(reasoning),
		timeframe:     string(sig.Timeframe),
		strategy:      sig.Strategy,
		status:        string(sig.Status),
		createdAt:     sig.CreatedAt.UnixNano(),
		sentAt:        nullTime(sig.SentAt),
		executedAt:    nullTime(sig.ExecutedAt),
		failureReason: sig.FailureReason,
	}, nil
}

func scanSignal(rows *sql.Rows) (*models.Signal, error) {
	var r signalRow
	err := rows.Scan(&r.id, &r.exchange, &r.pair, &r.direction, &r.entry, &r.stopLoss, &r.takeProfits,
		&r.confidence, &r.reasoning, &r.timeframe, &r.strategy, &r.status, &r.createdAt,
		&r.sentAt, &r.executedAt, &r.failureReason)
	if err != nil {
		return nil, fmt.Errorf("%w: разбор строки: %v", models.ErrRepository, err)
	}

	sig := &models.Signal{
		ID:            r.id,
		Exchange:      r.exchange,
		Pair:          r.pair,
		Direction:     models.Direction(r.direction),
		EntryPrice:    r.entry,
		Confidence:    r.confidence,
		Timeframe:     models.Timeframe(r.timeframe),
		Strategy:      r.strategy,
		Status:        models.SignalStatus(r.status),
		CreatedAt:     time.Unix(0, r.createdAt).UTC(),
		SentAt:        fromNull(r.sentAt),
		ExecutedAt:    fromNull(r.executedAt),
		FailureReason: r.failureReason,
	}
	sig.Targets.StopLoss = r.stopLoss
	if err := json.Unmarshal([]byte(r.takeProfits), &sig.Targets.TakeProfits); err != nil {
		return nil, fmt.Errorf("%w: тейк-профиты сигнала %s: %v", models.ErrRepository, r.id, err)
	}
	if err := json.Unmarshal([]byte(r.reasoning), &sig.Reasoning); err != nil {
		return nil, fmt.Errorf("%w: обоснование сигнала %s: %v", models.ErrRepository, r.id, err)
	}
	return sig, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

var _ storage.SignalRepository = (*SignalStore)(nil)

