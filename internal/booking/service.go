package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/carebook/internal/catalog"
	"github.com/wolfman30/carebook/pkg/logging"
)

// ErrServiceNotFound is returned by FindService for an unknown id.
var ErrServiceNotFound = errors.New("booking: service not found")

// CatalogLister is satisfied by *catalog.Client.
type CatalogLister interface {
	ListServices(ctx context.Context) ([]catalog.ServiceListing, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Catalog         CatalogLister
	Appointments    AppointmentCreator
	Purchases       PurchaseCreator
	Cases           CaseOpener
	Observer        Observer
	Policy          RetryPolicy
	DefaultCurrency string
	Logger          *logging.Logger
}

// Service is the entry point for callers: list what can be booked, and book it.
type Service struct {
	cfg    ServiceConfig
	logger *logging.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	return &Service{cfg: cfg, logger: cfg.Logger}
}

// ListServices returns the catalog as the backend reports it.
func (s *Service) ListServices(ctx context.Context) ([]catalog.ServiceListing, error) {
	if s.cfg.Catalog == nil {
		return nil, errors.New("booking: catalog not configured")
	}
	return s.cfg.Catalog.ListServices(ctx)
}

// FindService looks id up in the catalog.
func (s *Service) FindService(ctx context.Context, id string) (*catalog.ServiceListing, error) {
	listings, err := s.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	for _, listing := range listings {
		if listing.ID == id {
			found := listing
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, id)
}

// Book runs one booking attempt on a fresh Orchestrator.
func (s *Service) Book(ctx context.Context, sel Selection) *Result {
	if strings.TrimSpace(sel.Currency) == "" {
		sel.Currency = s.cfg.DefaultCurrency
	}
	orchestrator := s.NewOrchestrator()
	result, err := orchestrator.Run(ctx, sel)
	if err != nil {
		// Unreachable with a fresh orchestrator.
		s.logger.Error("booking orchestrator refused run", "error", err)
		return &Result{Outcome: OutcomeAppointmentFailed, Reason: err}
	}
	return result
}

// NewOrchestrator builds an idle orchestrator with the service's dependencies.
func (s *Service) NewOrchestrator() *Orchestrator {
	return NewOrchestrator(Dependencies{
		Appointments: s.cfg.Appointments,
		Purchases:    s.cfg.Purchases,
		Policy:       s.cfg.Policy,
		Cases:        s.cfg.Cases,
		Observer:     s.cfg.Observer,
		Logger:       s.logger,
	})
}
