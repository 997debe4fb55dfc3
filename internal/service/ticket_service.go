package service

import (
	"context"
	"net/mail"
	"strings"

	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/types"
)

// TicketStore persists support tickets
type TicketStore interface {
	Create(ctx context.Context, t *models.Ticket) (*models.Ticket, error)
	List(ctx context.Context) ([]*models.Ticket, error)
	SetStatus(ctx context.Context, id int64, status types.TicketStatus) (*models.Ticket, error)
	Delete(ctx context.Context, id int64) error
}

// TicketService handles support tickets
type TicketService struct {
	store TicketStore
}

// NewTicketService creates a new ticket service
func NewTicketService(store TicketStore) *TicketService {
	return &TicketService{store: store}
}

// Create validates and stores a ticket. New tickets are always open.
func (s *TicketService) Create(ctx context.Context, t *models.Ticket) (*models.Ticket, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.Email = strings.TrimSpace(t.Email)
	t.Subject = strings.TrimSpace(t.Subject)
	t.Message = strings.TrimSpace(t.Message)
	t.WalletAddress = strings.TrimSpace(t.WalletAddress)

	required := []struct{ field, value string }{
		{"name", t.Name},
		{"email", t.Email},
		{"subject", t.Subject},
		{"message", t.Message},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, apperrors.NewInvalidParameterError(r.field, "required")
		}
	}
	if _, err := mail.ParseAddress(t.Email); err != nil {
		return nil, apperrors.NewInvalidParameterError("email", "invalid email format")
	}
	t.Status = types.TicketStatusOpen

	created, err := s.store.Create(ctx, t)
	if err != nil {
		return nil, apperrors.NewDatabaseError("create ticket", err)
	}
	logging.FromContext(ctx).WithField("ticketId", created.ID).Info("Support ticket created")
	return created, nil
}

// List returns all tickets, newest first
func (s *TicketService) List(ctx context.Context) ([]*models.Ticket, error) {
	tickets, err := s.store.List(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list tickets", err)
	}
	return tickets, nil
}

// SetStatus opens or closes a ticket
func (s *TicketService) SetStatus(ctx context.Context, id int64, status string) (*models.Ticket, error) {
	st := types.TicketStatus(strings.ToLower(strings.TrimSpace(status)))
	if !st.Valid() {
		return nil, apperrors.NewInvalidParameterError("status", "must be open or closed")
	}
	t, err := s.store.SetStatus(ctx, id, st)
	if err != nil {
		return nil, storeError(err, "Ticket", id, "update ticket status")
	}
	return t, nil
}

// Delete removes a ticket
func (s *TicketService) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return apperrors.NewDatabaseError("delete ticket", err)
	}
	return nil
}
