package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/assignment-grader/internal/service/models"
	"github.com/fairyhunter13/assignment-grader/internal/usecase"
)

type stubCatalog struct {
	listModels    []models.Model
	listErr       error
	refreshModels []models.Model
	refreshErr    error
}

func (s stubCatalog) List(context.Context) ([]models.Model, error) {
	return s.listModels, s.listErr
}

func (s stubCatalog) Refresh(context.Context) ([]models.Model, error) {
	return s.refreshModels, s.refreshErr
}

func TestModels_ListPassthrough(t *testing.T) {
	t.Parallel()
	catalog := stubCatalog{listModels: []models.Model{
		{ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini"},
		{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet"},
	}}

	svc := usecase.NewModelsService(catalog)
	got, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "openai/gpt-4o-mini", got[0].ID)
}

func TestModels_ListErrorWrapped(t *testing.T) {
	t.Parallel()
	catalog := stubCatalog{listErr: errors.New("openrouter unreachable")}

	svc := usecase.NewModelsService(catalog)
	_, err := svc.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=usecase.Models")
}

func TestModels_RefreshPassthrough(t *testing.T) {
	t.Parallel()
	catalog := stubCatalog{refreshModels: []models.Model{{ID: "m1", Name: "M1"}}}

	svc := usecase.NewModelsService(catalog)
	got, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}
