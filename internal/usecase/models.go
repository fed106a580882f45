package usecase

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/service/models"
)

// ModelCatalog is the slice of the catalog service the API layer needs.
type ModelCatalog interface {
	List(ctx context.Context) ([]models.Model, error)
	Refresh(ctx context.Context) ([]models.Model, error)
}

// ModelsService exposes the model catalog to handlers.
type ModelsService struct {
	Catalog ModelCatalog
}

// NewModelsService constructs a ModelsService over the given catalog.
func NewModelsService(c ModelCatalog) ModelsService { return ModelsService{Catalog: c} }

// List returns the available models.
func (s ModelsService) List(ctx domain.Context) ([]models.Model, error) {
	out, err := s.Catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.Models: %w", err)
	}
	return out, nil
}

// Refresh drops any cached catalog and returns a freshly fetched one.
func (s ModelsService) Refresh(ctx domain.Context) ([]models.Model, error) {
	out, err := s.Catalog.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.Models: %w", err)
	}
	return out, nil
}
