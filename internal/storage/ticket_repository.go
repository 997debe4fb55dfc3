package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/types"
)

const ticketColumns = `id, name, email, wallet_address, subject, message, status, created_at, updated_at`

// TicketRepository handles support ticket persistence
type TicketRepository struct {
	db       *PostgresDB
	counters *CounterRepository
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(db *PostgresDB, counters *CounterRepository) *TicketRepository {
	return &TicketRepository{db: db, counters: counters}
}

// Create inserts a ticket with the next ticket id
func (r *TicketRepository) Create(ctx context.Context, t *models.Ticket) (*models.Ticket, error) {
	id, err := r.counters.Next(ctx, CounterTicket)
	if err != nil {
		return nil, err
	}
	if t.Status == "" {
		t.Status = types.TicketStatusOpen
	}

	query := `
		INSERT INTO tickets (id, name, email, wallet_address, subject, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + ticketColumns

	created, err := scanTicket(r.db.Pool().QueryRow(ctx, query, id, t.Name, t.Email, t.WalletAddress, t.Subject, t.Message, string(t.Status)))
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return created, nil
}

// List returns all tickets, newest first
func (r *TicketRepository) List(ctx context.Context) ([]*models.Ticket, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]*models.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// SetStatus updates the ticket status
func (r *TicketRepository) SetStatus(ctx context.Context, id int64, status types.TicketStatus) (*models.Ticket, error) {
	query := `UPDATE tickets SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + ticketColumns

	t, err := scanTicket(r.db.Pool().QueryRow(ctx, query, id, string(status)))
	if err != nil {
		return nil, notFound(err, "ticket")
	}
	return t, nil
}

// Delete removes a ticket. Deleting a missing ticket is not an error.
func (r *TicketRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	return nil
}

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	var t models.Ticket
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.WalletAddress, &t.Subject, &t.Message, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
