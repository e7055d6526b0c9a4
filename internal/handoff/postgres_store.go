package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store uses.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists handoff state in Postgres.
type PostgresStore struct {
	pool PgxPool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("handoff: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

const requestColumns = `hr.id, hr.conversation_id, hr.status, hr.risk_score, hr.crisis_type,
		COALESCE(hr.user_status, ''), COALESCE(hr.user_channel, ''), hr.assigned_to,
		hr.summary_json, hr.created_at`

const listSelect = `
	SELECT ` + requestColumns + `,
		hm.id, hm.sender, hm.created_at
	FROM handoff_requests hr
	LEFT JOIN LATERAL (
		SELECT id, sender, created_at
		FROM handoff_messages
		WHERE request_id = hr.id
		ORDER BY id DESC
		LIMIT 1
	) hm ON true
`

const queueOrder = `
	ORDER BY
		CASE hr.status WHEN 'assigned' THEN 1 WHEN 'open' THEN 2 ELSE 3 END,
		CASE
			WHEN hr.status = 'open' THEN
				CASE
					WHEN hr.user_status = 'emergency' AND COALESCE(hr.risk_score, 0) = 0 THEN 90
					ELSE COALESCE(hr.risk_score, 0)
				END
		END DESC NULLS LAST,
		hr.created_at DESC,
		hr.id DESC
`

const insertMessageSQL = `
	INSERT INTO handoff_messages (request_id, sender, text)
	VALUES ($1, $2, $3)
	RETURNING id, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner, withLastMessage bool) (*Request, error) {
	var (
		req     Request
		status  string
		summary []byte
	)
	dest := []any{
		&req.ID, &req.ConversationID, &status, &req.RiskScore, &req.CrisisType,
		&req.UserStatus, &req.Channel, &req.AssignedTo, &summary, &req.CreatedAt,
	}
	var lastSender *string
	if withLastMessage {
		dest = append(dest, &req.LastMessageID, &lastSender, &req.LastMessageAt)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	req.Status = Status(status)
	if len(summary) > 0 {
		req.Summary = append([]byte(nil), summary...)
	}
	if lastSender != nil {
		sender := Sender(*lastSender)
		req.LastMessageSender = &sender
	}
	return &req, nil
}

func (s *PostgresStore) Escalate(ctx context.Context, rec EscalationRecord) (EscalationOutcome, error) {
	if strings.TrimSpace(rec.ConversationID) == "" {
		return EscalationOutcome{}, ErrMissingConversation
	}
	var (
		outcome EscalationOutcome
		err     error
	)
	// A concurrent insert for the same conversation trips the partial unique
	// index; the retry then finds and refreshes that row.
	for attempt := 0; attempt < 2; attempt++ {
		outcome, err = s.escalateOnce(ctx, rec)
		if !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return EscalationOutcome{}, fmt.Errorf("handoff: escalate: %w", err)
	}
	return outcome, nil
}

func (s *PostgresStore) escalateOnce(ctx context.Context, rec EscalationRecord) (EscalationOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return EscalationOutcome{}, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id
		FROM handoff_requests
		WHERE conversation_id = $1 AND status IN ('open', 'assigned')
		ORDER BY created_at DESC, id DESC
		FOR UPDATE
	`, rec.ConversationID)
	if err != nil {
		return EscalationOutcome{}, fmt.Errorf("lookup active: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return EscalationOutcome{}, fmt.Errorf("scan active: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return EscalationOutcome{}, fmt.Errorf("lookup active: %w", err)
	}

	var outcome EscalationOutcome
	if len(ids) > 1 {
		outcome.Superseded = ids[1:]
		if _, err := tx.Exec(ctx, `
			UPDATE handoff_requests
			SET status = 'closed'
			WHERE id = ANY($1)
		`, outcome.Superseded); err != nil {
			return EscalationOutcome{}, fmt.Errorf("close duplicates: %w", err)
		}
	}

	summary := nullableJSON(rec.Summary)
	if len(ids) > 0 {
		outcome.RequestID = ids[0]
		if _, err := tx.Exec(ctx, `
			UPDATE handoff_requests
			SET risk_score = $2,
				crisis_type = $3,
				user_status = $4,
				user_channel = $5,
				summary_json = $6
			WHERE id = $1
		`, outcome.RequestID, rec.RiskScore, rec.CrisisType, nullable(rec.UserStatus), nullable(rec.Channel), summary); err != nil {
			return EscalationOutcome{}, fmt.Errorf("refresh request: %w", err)
		}
	} else {
		if err := tx.QueryRow(ctx, `
			INSERT INTO handoff_requests
				(conversation_id, status, risk_score, crisis_type, user_status, user_channel, summary_json)
			VALUES ($1, 'open', $2, $3, $4, $5, $6)
			RETURNING id
		`, rec.ConversationID, rec.RiskScore, rec.CrisisType, nullable(rec.UserStatus), nullable(rec.Channel), summary).Scan(&outcome.RequestID); err != nil {
			return EscalationOutcome{}, fmt.Errorf("insert request: %w", err)
		}
		outcome.Created = true
	}

	if _, err := appendMessage(ctx, tx, outcome.RequestID, SenderSystem, EscalationCreatedText); err != nil {
		return EscalationOutcome{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return EscalationOutcome{}, fmt.Errorf("commit: %w", err)
	}
	return outcome, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Request, error) {
	req, err := scanRequest(s.pool.QueryRow(ctx, listSelect+` WHERE hr.id = $1`, id), true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("handoff: get request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Active(ctx context.Context, conversationID string) (*Request, error) {
	query := listSelect + `
		WHERE hr.conversation_id = $1 AND hr.status IN ('open', 'assigned')
		ORDER BY hr.created_at DESC, hr.id DESC
		LIMIT 1
	`
	req, err := scanRequest(s.pool.QueryRow(ctx, query, conversationID), true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("handoff: active request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("hr.status = $%d", len(args)))
	}
	if filter.Viewer.Operator() {
		args = append(args, filter.Viewer.Username)
		where = append(where, fmt.Sprintf(
			"hr.status IN ('open', 'assigned') AND (hr.status = 'open' OR hr.assigned_to = $%d)", len(args)))
	}

	query := listSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.Status != nil {
		query += " ORDER BY hr.created_at DESC, hr.id DESC"
	} else {
		query += queueOrder
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("handoff: list requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows, true)
		if err != nil {
			return nil, fmt.Errorf("handoff: scan request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("handoff: list requests: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Claim(ctx context.Context, id int64, operator string) (ClaimResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ClaimAlreadyAssigned, fmt.Errorf("handoff: claim: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE handoff_requests
		SET status = 'assigned', assigned_to = $2
		WHERE id = $1 AND assigned_to IS NULL AND status <> 'closed'
	`, id, operator)
	if err != nil {
		return ClaimAlreadyAssigned, fmt.Errorf("handoff: claim: %w", err)
	}

	if tag.RowsAffected() == 1 {
		if _, err := appendMessage(ctx, tx, id, SenderSystem, JoinedText(operator)); err != nil {
			return ClaimAlreadyAssigned, fmt.Errorf("handoff: claim: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return ClaimAlreadyAssigned, fmt.Errorf("handoff: claim: commit: %w", err)
		}
		return ClaimClaimed, nil
	}

	var (
		status   string
		assignee *string
	)
	err = tx.QueryRow(ctx, `SELECT status, assigned_to FROM handoff_requests WHERE id = $1`, id).Scan(&status, &assignee)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClaimAlreadyAssigned, ErrRequestNotFound
	}
	if err != nil {
		return ClaimAlreadyAssigned, fmt.Errorf("handoff: claim: lookup: %w", err)
	}
	switch {
	case Status(status) == StatusClosed:
		return ClaimClosed, nil
	case assignee != nil && *assignee == operator:
		return ClaimAlreadyYours, nil
	default:
		return ClaimAlreadyAssigned, nil
	}
}

func (s *PostgresStore) SetStatus(ctx context.Context, id int64, change StatusChange) (StatusUpdate, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return StatusUpdate{}, fmt.Errorf("handoff: set status: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanRequest(tx.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM handoff_requests hr
		WHERE hr.id = $1
		FOR UPDATE
	`, id), false)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusUpdate{}, ErrRequestNotFound
	}
	if err != nil {
		return StatusUpdate{}, fmt.Errorf("handoff: set status: lookup: %w", err)
	}
	update := StatusUpdate{PreviousStatus: current.Status, PreviousAssignee: current.Assignee()}

	plan, err := planTransition(*current, change)
	if err != nil {
		return StatusUpdate{}, err
	}
	if !plan.Changed {
		update.Request = current
		return update, nil
	}

	if current.Status == StatusClosed && plan.Status.Active() {
		var otherID int64
		err := tx.QueryRow(ctx, `
			SELECT id FROM handoff_requests
			WHERE conversation_id = $1 AND status IN ('open', 'assigned') AND id <> $2
			LIMIT 1
		`, current.ConversationID, id).Scan(&otherID)
		switch {
		case err == nil:
			return StatusUpdate{}, fmt.Errorf("%w: conversation has active request %d", ErrInvalidTransition, otherID)
		case !errors.Is(err, pgx.ErrNoRows):
			return StatusUpdate{}, fmt.Errorf("handoff: set status: active lookup: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE handoff_requests
		SET status = $2, assigned_to = $3
		WHERE id = $1
	`, id, string(plan.Status), plan.AssignedTo); err != nil {
		// ux_handoff_requests_active_conversation: another request went
		// active after the lookup above.
		if isUniqueViolation(err) {
			return StatusUpdate{}, fmt.Errorf("%w: conversation has another active request", ErrInvalidTransition)
		}
		return StatusUpdate{}, fmt.Errorf("handoff: set status: %w", err)
	}
	if plan.DeleteLeave {
		if _, err := tx.Exec(ctx, `
			DELETE FROM handoff_messages
			WHERE request_id = $1 AND sender = 'system' AND text = $2
		`, id, UserLeftText); err != nil {
			return StatusUpdate{}, fmt.Errorf("handoff: set status: delete leave message: %w", err)
		}
	}
	if plan.Join {
		if _, err := appendMessage(ctx, tx, id, SenderSystem, JoinedText(*plan.AssignedTo)); err != nil {
			return StatusUpdate{}, fmt.Errorf("handoff: set status: %w", err)
		}
	}
	if plan.Note != "" {
		if _, err := appendMessage(ctx, tx, id, SenderSystem, plan.Note); err != nil {
			return StatusUpdate{}, fmt.Errorf("handoff: set status: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return StatusUpdate{}, fmt.Errorf("handoff: set status: commit: %w", err)
	}

	current.Status = plan.Status
	current.AssignedTo = plan.AssignedTo
	update.Request = current
	return update, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, requestID int64, sender Sender, text string) (Message, error) {
	msg, err := appendMessage(ctx, s.pool, requestID, sender, text)
	if errors.Is(err, ErrRequestNotFound) {
		return Message{}, err
	}
	if err != nil {
		return Message{}, fmt.Errorf("handoff: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) Messages(ctx context.Context, requestID, afterID int64) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, sender, text, created_at
		FROM handoff_messages
		WHERE request_id = $1 AND id > $2
		ORDER BY id
	`, requestID, afterID)
	if err != nil {
		return nil, fmt.Errorf("handoff: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg    Message
			sender string
		)
		if err := rows.Scan(&msg.ID, &msg.RequestID, &sender, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("handoff: scan message: %w", err)
		}
		msg.Sender = Sender(sender)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("handoff: list messages: %w", err)
	}
	return out, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func appendMessage(ctx context.Context, q queryRower, requestID int64, sender Sender, text string) (Message, error) {
	msg := Message{RequestID: requestID, Sender: sender, Text: text}
	var createdAt time.Time
	err := q.QueryRow(ctx, insertMessageSQL, requestID, string(sender), text).Scan(&msg.ID, &createdAt)
	if isForeignKeyViolation(err) {
		return Message{}, ErrRequestNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	msg.CreatedAt = createdAt
	return msg, nil
}

func nullable(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
