package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

var (
	// Metrics for PostgreSQL operations
	postgresWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postgres_write_total",
			Help: "Total number of decision writes to PostgreSQL",
		},
		[]string{"status"}, // "success" or "error"
	)

	postgresWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postgres_write_errors_total",
			Help: "Total number of write errors to PostgreSQL",
		},
		[]string{"error_type"},
	)

	postgresWriteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postgres_write_latency_seconds",
			Help:    "Write latency to PostgreSQL in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
		[]string{"operation"},
	)

	postgresWriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "postgres_write_queue_depth",
			Help: "Current depth of the decision write queue",
		},
	)

	postgresWriteBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postgres_write_batch_size",
			Help:    "Batch size for PostgreSQL decision writes",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
)

// PostgresStore persists signal decisions and alert subscribers. Decision
// writes go through an async queue with batch inserts so the scan cycle
// never blocks on the database; reads serve the recommendations API.
type PostgresStore struct {
	db          *sql.DB
	dbConfig    config.DatabaseConfig
	writeConfig WriteConfig

	// Write queue
	writeQueue chan []*models.SignalDecision
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

// WriteConfig holds configuration for the async write queue
type WriteConfig struct {
	BatchSize  int
	Interval   time.Duration
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// WriteConfigFromDatabaseConfig creates a WriteConfig from DatabaseConfig
func WriteConfigFromDatabaseConfig(dbConfig config.DatabaseConfig) WriteConfig {
	return WriteConfig{
		BatchSize:  dbConfig.WriteBatchSize,
		Interval:   dbConfig.WriteInterval,
		QueueSize:  dbConfig.WriteQueueSize,
		MaxRetries: dbConfig.MaxRetries,
		RetryDelay: dbConfig.RetryDelay,
	}
}

// NewPostgresStore creates a PostgreSQL store and verifies the connection
func NewPostgresStore(dbConfig config.DatabaseConfig, writeConfig WriteConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storeCtx, storeCancel := context.WithCancel(context.Background())

	store := &PostgresStore{
		db:          db,
		dbConfig:    dbConfig,
		writeConfig: writeConfig,
		writeQueue:  make(chan []*models.SignalDecision, writeConfig.QueueSize),
		ctx:         storeCtx,
		cancel:      storeCancel,
	}

	logger.Info("Connected to PostgreSQL",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.DBName),
	)

	return store, nil
}

// Start starts the write queue processor
func (s *PostgresStore) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("postgres store is already running")
	}
	s.running = true
	s.mu.Unlock()

	logger.Info("Starting decision write queue processor",
		logger.Int("batch_size", s.writeConfig.BatchSize),
		logger.Duration("interval", s.writeConfig.Interval),
	)

	s.wg.Add(1)
	go s.processWriteQueue()

	return nil
}

// Stop stops the write queue processor and flushes remaining writes
func (s *PostgresStore) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	logger.Info("Stopping decision write queue processor")
	s.cancel()

	// Flush remaining writes
	close(s.writeQueue)
	for decisions := range s.writeQueue {
		if len(decisions) > 0 {
			s.writeDecisionsSync(context.Background(), decisions)
		}
	}

	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	logger.Info("Postgres store stopped")
	return nil
}

// IsRunning returns whether the write queue processor is running
func (s *PostgresStore) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Close drains the queue and closes the connection. On a store that was
// never started (read-only use) it just closes the connection.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if running {
		return s.Stop()
	}
	return s.db.Close()
}

// SaveDecisions enqueues decisions for async writing
func (s *PostgresStore) SaveDecisions(ctx context.Context, decisions []*models.SignalDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	// Validate decisions
	valid := make([]*models.SignalDecision, 0, len(decisions))
	for _, decision := range decisions {
		if err := decision.Validate(); err != nil {
			logger.Warn("Invalid decision, skipping",
				logger.ErrorField(err),
				logger.String("symbol", decision.Symbol),
			)
			continue
		}
		valid = append(valid, decision)
	}

	if len(valid) == 0 {
		return nil
	}

	// Try to enqueue (non-blocking with timeout)
	select {
	case s.writeQueue <- valid:
		postgresWriteQueueDepth.Set(float64(len(s.writeQueue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		// Queue might be full, log warning but still try
		logger.Warn("Write queue may be full, attempting to enqueue",
			logger.Int("queue_depth", len(s.writeQueue)),
			logger.Int("decisions_count", len(valid)),
		)
		select {
		case s.writeQueue <- valid:
			postgresWriteQueueDepth.Set(float64(len(s.writeQueue)))
			return nil
		default:
			postgresWriteErrors.WithLabelValues("queue_full").Inc()
			return fmt.Errorf("write queue is full")
		}
	}
}

// processWriteQueue processes the write queue
func (s *PostgresStore) processWriteQueue() {
	defer s.wg.Done()

	batch := make([]*models.SignalDecision, 0, s.writeConfig.BatchSize)
	ticker := time.NewTicker(s.writeConfig.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			// Flush remaining batch
			if len(batch) > 0 {
				s.writeDecisionsSync(context.Background(), batch)
			}
			return

		case decisions, ok := <-s.writeQueue:
			if !ok {
				// Channel closed, flush and exit
				if len(batch) > 0 {
					s.writeDecisionsSync(context.Background(), batch)
				}
				return
			}

			batch = append(batch, decisions...)
			postgresWriteQueueDepth.Set(float64(len(s.writeQueue)))

			// Flush if batch is full
			if len(batch) >= s.writeConfig.BatchSize {
				s.writeDecisionsSync(context.Background(), batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			// Flush on interval
			if len(batch) > 0 {
				s.writeDecisionsSync(context.Background(), batch)
				batch = batch[:0]
			}
		}
	}
}

// writeDecisionsSync writes decisions synchronously with retry logic
func (s *PostgresStore) writeDecisionsSync(ctx context.Context, decisions []*models.SignalDecision) {
	if len(decisions) == 0 {
		return
	}

	startTime := time.Now()
	postgresWriteBatchSize.Observe(float64(len(decisions)))

	var err error
	for attempt := 0; attempt < s.writeConfig.MaxRetries; attempt++ {
		err = s.insertDecisions(ctx, decisions)
		if err == nil {
			break
		}

		if attempt < s.writeConfig.MaxRetries-1 {
			delay := s.writeConfig.RetryDelay * time.Duration(1<<uint(attempt)) // Exponential backoff
			logger.Warn("Failed to write decisions, retrying",
				logger.ErrorField(err),
				logger.Int("attempt", attempt+1),
				logger.Int("decisions_count", len(decisions)),
				logger.Duration("delay", delay),
			)
			time.Sleep(delay)
		}
	}

	postgresWriteLatency.WithLabelValues("write").Observe(time.Since(startTime).Seconds())

	if err != nil {
		postgresWriteErrors.WithLabelValues("write_failed").Inc()
		postgresWriteTotal.WithLabelValues("error").Add(float64(len(decisions)))
		logger.Error("Failed to write decisions after retries",
			logger.ErrorField(err),
			logger.Int("decisions_count", len(decisions)),
		)
		return
	}

	postgresWriteTotal.WithLabelValues("success").Add(float64(len(decisions)))
	logger.Debug("Wrote decisions to PostgreSQL",
		logger.Int("count", len(decisions)),
		logger.Duration("latency", time.Since(startTime)),
	)
}

// insertDecisions inserts decisions into signal_history using batch insert
func (s *PostgresStore) insertDecisions(ctx context.Context, decisions []*models.SignalDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signal_history (
			id, symbol, sector, timestamp, price, signal_type, strength,
			accepted, reason, tech_count, flow_count, depth_count,
			technical_indicators, trade_flow, market_depth,
			stop_loss, take_profit, position_size, market_cap, trace_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, decision := range decisions {
		indicatorsJSON := marshalOrEmpty(decision.Indicators)
		flowJSON := marshalOrEmpty(decision.Flow)
		depthJSON := marshalOrEmpty(decision.Depth)

		var stopLoss, takeProfit, positionSize sql.NullFloat64
		if decision.Risk != nil {
			stopLoss = sql.NullFloat64{Float64: decision.Risk.StopLoss, Valid: true}
			takeProfit = sql.NullFloat64{Float64: decision.Risk.TakeProfit, Valid: true}
			positionSize = sql.NullFloat64{Float64: decision.Risk.PositionSize, Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			decision.ID,
			decision.Symbol,
			decision.Sector,
			decision.Timestamp,
			decision.Price,
			string(decision.Type),
			decision.Strength,
			decision.Accepted,
			decision.Reason,
			decision.CategoryCount(models.CategoryTechnical),
			decision.CategoryCount(models.CategoryFlow),
			decision.CategoryCount(models.CategoryDepth),
			indicatorsJSON,
			flowJSON,
			depthJSON,
			stopLoss,
			takeProfit,
			positionSize,
			decision.MarketCap,
			decision.TraceID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert decision %s: %w", decision.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetDecisions retrieves decisions with filtering options
func (s *PostgresStore) GetDecisions(ctx context.Context, filter DecisionFilter) ([]*models.SignalDecision, error) {
	query := `
		SELECT id, symbol, sector, timestamp, price, signal_type, strength,
			accepted, reason, technical_indicators, trade_flow, market_depth,
			stop_loss, take_profit, position_size, market_cap, trace_id
		FROM signal_history
		WHERE 1=1
	`
	args := []interface{}{}
	argIndex := 1

	if filter.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIndex)
		args = append(args, filter.Symbol)
		argIndex++
	}

	if filter.AcceptedOnly {
		query += " AND accepted = TRUE"
	}

	if filter.MinStrength > 0 {
		query += fmt.Sprintf(" AND strength >= $%d", argIndex)
		args = append(args, filter.MinStrength)
		argIndex++
	}

	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
		args = append(args, filter.StartTime)
		argIndex++
	}

	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
		args = append(args, filter.EndTime)
		argIndex++
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
		argIndex++
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.SignalDecision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, decision)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return decisions, nil
}

// GetDecision retrieves a single decision by ID
func (s *PostgresStore) GetDecision(ctx context.Context, id string) (*models.SignalDecision, error) {
	query := `
		SELECT id, symbol, sector, timestamp, price, signal_type, strength,
			accepted, reason, technical_indicators, trade_flow, market_depth,
			stop_loss, take_profit, position_size, market_cap, trace_id
		FROM signal_history
		WHERE id = $1
	`

	row := s.db.QueryRowContext(ctx, query, id)
	decision, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// AddSubscriber registers a chat for alerts; re-adding is a no-op
func (s *PostgresStore) AddSubscriber(ctx context.Context, chatID string) error {
	query := `
		INSERT INTO subscribers (chat_id, created_at)
		VALUES ($1, $2)
		ON CONFLICT (chat_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, chatID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add subscriber: %w", err)
	}
	return nil
}

// RemoveSubscriber unregisters a chat
func (s *PostgresStore) RemoveSubscriber(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("failed to remove subscriber: %w", err)
	}
	return nil
}

// ListSubscribers returns every registered chat
func (s *PostgresStore) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, created_at FROM subscribers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []models.Subscriber
	for rows.Next() {
		var sub models.Subscriber
		if err := rows.Scan(&sub.ChatID, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subscribers = append(subscribers, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return subscribers, nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDecision reads one signal_history row back into a SignalDecision
func scanDecision(row rowScanner) (*models.SignalDecision, error) {
	var decision models.SignalDecision
	var signalType string
	var indicatorsJSON, flowJSON, depthJSON sql.NullString
	var stopLoss, takeProfit, positionSize sql.NullFloat64

	err := row.Scan(
		&decision.ID,
		&decision.Symbol,
		&decision.Sector,
		&decision.Timestamp,
		&decision.Price,
		&signalType,
		&decision.Strength,
		&decision.Accepted,
		&decision.Reason,
		&indicatorsJSON,
		&flowJSON,
		&depthJSON,
		&stopLoss,
		&takeProfit,
		&positionSize,
		&decision.MarketCap,
		&decision.TraceID,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}

	decision.Type = models.SignalType(signalType)

	if payload, ok := diagnosticsPayload(indicatorsJSON); ok {
		var indicators models.IndicatorSet
		if unmarshalDiagnostics(payload, &indicators, decision.ID) {
			decision.Indicators = &indicators
		}
	}
	if payload, ok := diagnosticsPayload(flowJSON); ok {
		var flow models.FlowMetrics
		if unmarshalDiagnostics(payload, &flow, decision.ID) {
			decision.Flow = &flow
		}
	}
	if payload, ok := diagnosticsPayload(depthJSON); ok {
		var depth models.DepthMetrics
		if unmarshalDiagnostics(payload, &depth, decision.ID) {
			decision.Depth = &depth
		}
	}

	if decision.Accepted && stopLoss.Valid && takeProfit.Valid && positionSize.Valid {
		decision.Risk = &models.RiskLevels{
			Entry:        decision.Price,
			StopLoss:     stopLoss.Float64,
			TakeProfit:   takeProfit.Float64,
			PositionSize: positionSize.Float64,
		}
	}

	return &decision, nil
}

// marshalOrEmpty serializes diagnostics to JSON, falling back to an
// empty object so a marshal failure never loses the row.
func marshalOrEmpty(v interface{}) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("Failed to marshal decision diagnostics, using empty object",
			logger.ErrorField(err))
		return "{}"
	}
	return string(data)
}

// diagnosticsPayload reports whether a stored JSON column carries data
func diagnosticsPayload(src sql.NullString) (string, bool) {
	if !src.Valid || src.String == "" || src.String == "{}" {
		return "", false
	}
	return src.String, true
}

func unmarshalDiagnostics(payload string, dst interface{}, decisionID string) bool {
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		logger.Warn("Failed to unmarshal decision diagnostics",
			logger.ErrorField(err),
			logger.String("decision_id", decisionID),
		)
		return false
	}
	return true
}
