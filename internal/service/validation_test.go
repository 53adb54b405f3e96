package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
)

func TestCreatePortfolio_RejectsInvalidUTF8(t *testing.T) {
	ctx := testContext(t)
	svc, _ := newTestService(t)

	tests := []struct {
		name   string
		mutate func(in *CreatePortfolioInput)
	}{
		{"name", func(in *CreatePortfolioInput) { in.Portfolio.Name = "Fund \xff" }},
		{"symbol", func(in *CreatePortfolioInput) { in.Portfolio.Symbol = "AB\xfe" }},
		{"description", func(in *CreatePortfolioInput) { in.Portfolio.Description = strPtr("x\xff") }},
		{"custodian", func(in *CreatePortfolioInput) { in.Portfolio.Custodian = strPtr("\xfe") }},
		{"tag", func(in *CreatePortfolioInput) { in.Portfolio.Tags = []string{"\xff"} }},
		{"custom field", func(in *CreatePortfolioInput) {
			in.Portfolio.CustomFields = map[string]interface{}{"desk": []interface{}{"\xfe"}}
		}},
		{"asset id", func(in *CreatePortfolioInput) { in.Constituents[0].AssetID = "AAPL\xff" }},
		{"notes", func(in *CreatePortfolioInput) { in.Constituents[0].Notes = strPtr("\xfe") }},
		{"actor", func(in *CreatePortfolioInput) { in.Actor = "pm\xff@example.com" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := CreatePortfolioInput{
				Portfolio:    newPortfolio("UTF"),
				Constituents: []*models.Constituent{equity("AAPL", "0.5"), equity("MSFT", "0.5")},
				Actor:        testActor,
			}
			tt.mutate(&in)
			_, err := svc.CreatePortfolio(ctx, in)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}

	portfolios, err := svc.ListPortfolios(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, portfolios)
}

func TestUpdatePortfolio_InvalidUTF8NamesDoNotCollide(t *testing.T) {
	ctx := testContext(t)
	svc, _ := newTestService(t)
	created := createAlpha(t, svc)
	id := created.Portfolio.ID

	_, err := svc.UpdatePortfolio(ctx, id, UpdatePortfolioInput{Name: strPtr("Fund \xff"), Actor: testActor})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.UpdatePortfolio(ctx, id, UpdatePortfolioInput{Name: strPtr("Fund \xfe"), Actor: testActor})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	history, err := svc.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1, "rejected updates do not create versions")
}

func TestPortfolioName_LengthFitsColumn(t *testing.T) {
	ctx := testContext(t)
	svc, _ := newTestService(t)

	create := func(symbol, name string) error {
		in := newPortfolio(symbol)
		in.Name = name
		_, err := svc.CreatePortfolio(ctx, CreatePortfolioInput{
			Portfolio:    in,
			Constituents: []*models.Constituent{equity("AAPL", "1")},
			Actor:        testActor,
		})
		return err
	}

	err := create("LONG", strings.Repeat("n", MaxNameLength+1))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	require.NoError(t, create("EXACT", strings.Repeat("n", MaxNameLength)))
	// Characters are counted, not bytes
	require.NoError(t, create("WIDE", strings.Repeat("é", MaxNameLength)))

	p := newPortfolio("MGR")
	p.PortfolioManager = strPtr(strings.Repeat("m", MaxPartyLength+1))
	_, err = svc.CreatePortfolio(ctx, CreatePortfolioInput{Portfolio: p, Actor: testActor})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
