package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukex/labflow/pkg/events"
	"github.com/dukex/labflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSOWFixture(t *testing.T) (*fixture, *models.Job) {
	t.Helper()

	f := newFixture(t, BuildOptions{Mode: BuildModeTransactional})

	job, err := f.jobs.Create(context.Background(), alice, jobInput(linearWorkflow("first"), linearWorkflow("second")))
	require.NoError(t, err)

	return f, job
}

func draftSOW(t *testing.T, f *fixture, job *models.Job) *models.SOW {
	t.Helper()

	sow, err := f.sows.Upsert(context.Background(), tech, job.ID, UpsertSOWInput{SOWNumber: 1})
	require.NoError(t, err)

	return sow
}

func signature(role models.SignatureRole) SubmitSignatureInput {
	return SubmitSignatureInput{
		Role:     role,
		Name:     "Signer " + string(role),
		Title:    "Director",
		SignedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func countEvents(f *fixture, eventType events.EventType) int {
	n := 0

	for _, published := range f.bus.PublishedTypes() {
		if published == eventType {
			n++
		}
	}

	return n
}

func TestSOW_Upsert_DerivesLineItemsFromNodePrices(t *testing.T) {
	f, job := newSOWFixture(t)

	sow := draftSOW(t, f, job)
	assert.Equal(t, job.ID, sow.JobID)
	assert.Equal(t, models.SOWStatusDraft, sow.Status)
	require.Len(t, sow.Pricing.LineItems, 4)
	assert.Equal(t, "Node n1", sow.Pricing.LineItems[0].Description)
	assert.InDelta(t, 100, sow.Pricing.LineItems[0].Amount, 0.0001)
	assert.InDelta(t, 250, sow.Pricing.LineItems[1].Amount, 0.0001)
	assert.InDelta(t, 700, sow.Pricing.Subtotal, 0.0001)
	assert.InDelta(t, 700, sow.Pricing.Total, 0.0001)
	assert.False(t, sow.IssuedAt.IsZero())

	assert.Equal(t, 1, countEvents(f, events.SOWUpsertedEvent))
}

func TestSOW_Upsert_ExplicitLineItemsAndDiscount(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	validUntil := issued.AddDate(0, 1, 0)

	sow, err := f.sows.Upsert(ctx, tech, job.ID, UpsertSOWInput{
		SOWNumber: 7,
		LineItems: []models.LineItem{
			{Description: "Extraction", Amount: 120},
			{Description: "Sequencing", Amount: 380},
		},
		Discount:   50,
		IssuedAt:   issued,
		ValidUntil: &validUntil,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, sow.SOWNumber)
	assert.InDelta(t, 500, sow.Pricing.Subtotal, 0.0001)
	assert.InDelta(t, 450, sow.Pricing.Total, 0.0001)
	assert.Equal(t, issued, sow.IssuedAt)

	_, err = f.sows.Upsert(ctx, tech, job.ID, UpsertSOWInput{
		SOWNumber: 7,
		LineItems: []models.LineItem{{Description: "Extraction", Amount: 10}},
		Discount:  11,
	})
	assert.True(t, IsValidationError(err))

	before := issued.AddDate(0, 0, -1)
	_, err = f.sows.Upsert(ctx, tech, job.ID, UpsertSOWInput{SOWNumber: 7, IssuedAt: issued, ValidUntil: &before})
	assert.True(t, IsValidationError(err))

	_, err = f.sows.Upsert(ctx, tech, job.ID, UpsertSOWInput{
		SOWNumber: 7,
		LineItems: []models.LineItem{{Description: "Refund", Amount: -5}},
	})
	assert.True(t, IsValidationError(err))
}

func TestSOW_Upsert_Authorization(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()

	_, err := f.sows.Upsert(ctx, alice, job.ID, UpsertSOWInput{SOWNumber: 1})
	assert.True(t, IsAuthorizationError(err))

	_, err = f.sows.Upsert(ctx, tech, "missing", UpsertSOWInput{SOWNumber: 1})
	assert.True(t, IsNotFoundError(err))
}

func TestSOW_Upsert_ReplacesExistingAndClearsSignatures(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()

	first := draftSOW(t, f, job)

	_, err := f.sows.SubmitSignature(ctx, alice, first.ID, signature(models.SignatureRoleClient))
	require.NoError(t, err)

	second, err := f.sows.Upsert(ctx, tech, job.ID, UpsertSOWInput{SOWNumber: 2})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.SOWNumber)
	assert.Nil(t, second.ClientSignature)
	assert.Equal(t, models.SOWStatusDraft, second.Status)

	assert.Equal(t, 1, count(t, f.store.SOWs()))
}

func TestSOW_Upsert_RejectsSignedSOW(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()

	sow := draftSOW(t, f, job)

	_, err := f.sows.SubmitSignature(ctx, alice, sow.ID, signature(models.SignatureRoleClient))
	require.NoError(t, err)
	_, err = f.sows.SubmitSignature(ctx, tech, sow.ID, signature(models.SignatureRoleTechnician))
	require.NoError(t, err)

	_, err = f.sows.Upsert(ctx, tech, job.ID, UpsertSOWInput{SOWNumber: 2})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSOW_SubmitSignature_DualSignature(t *testing.T) {
	orders := map[string][]models.SignatureRole{
		"client first":     {models.SignatureRoleClient, models.SignatureRoleTechnician},
		"technician first": {models.SignatureRoleTechnician, models.SignatureRoleClient},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			f, job := newSOWFixture(t)
			ctx := context.Background()
			sow := draftSOW(t, f, job)

			signers := map[models.SignatureRole]func() *models.SOW{}
			for _, role := range order {
				principal := alice
				if role == models.SignatureRoleTechnician {
					principal = tech
				}

				signers[role] = func() *models.SOW {
					signed, err := f.sows.SubmitSignature(ctx, principal, sow.ID, signature(role))
					require.NoError(t, err)

					return signed
				}
			}

			afterFirst := signers[order[0]]()
			assert.Equal(t, models.SOWStatusDraft, afterFirst.Status)
			assert.False(t, afterFirst.FullySigned())

			afterSecond := signers[order[1]]()
			assert.Equal(t, models.SOWStatusSigned, afterSecond.Status)
			require.NotNil(t, afterSecond.ClientSignature)
			require.NotNil(t, afterSecond.TechnicianSignature)
			assert.Equal(t, alice.Email, afterSecond.ClientSignature.SubmittedBy.Email)
			assert.Equal(t, tech.Email, afterSecond.TechnicianSignature.SubmittedBy.Email)

			// Re-signing keeps the SOW signed and does not signal again.
			again := signers[order[0]]()
			assert.Equal(t, models.SOWStatusSigned, again.Status)

			assert.Equal(t, 3, countEvents(f, events.SOWSignatureSubmittedEvent))
			assert.Equal(t, 1, countEvents(f, events.SOWSignedEvent))
		})
	}
}

func TestSOW_SubmitSignature_ReplacesSameRole(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()
	sow := draftSOW(t, f, job)

	_, err := f.sows.SubmitSignature(ctx, alice, sow.ID, signature(models.SignatureRoleClient))
	require.NoError(t, err)

	input := signature(models.SignatureRoleClient)
	input.Name = "Alice Corrected"

	updated, err := f.sows.SubmitSignature(ctx, alice, sow.ID, input)
	require.NoError(t, err)
	assert.Equal(t, "Alice Corrected", updated.ClientSignature.Name)
	assert.Nil(t, updated.TechnicianSignature)
	assert.Equal(t, models.SOWStatusDraft, updated.Status)
}

func TestSOW_SubmitSignature_ConcurrentSignersSignOnce(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()
	sow := draftSOW(t, f, job)

	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			_, err := f.sows.SubmitSignature(ctx, alice, sow.ID, signature(models.SignatureRoleClient))
			assert.NoError(t, err)
		}()

		go func() {
			defer wg.Done()

			_, err := f.sows.SubmitSignature(ctx, tech, sow.ID, signature(models.SignatureRoleTechnician))
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	stored, err := f.sows.FetchByJob(ctx, alice, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SOWStatusSigned, stored.Status)
	assert.Equal(t, 1, countEvents(f, events.SOWSignedEvent))
}

func TestSOW_SubmitSignature_Authorization(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()
	sow := draftSOW(t, f, job)

	tests := []struct {
		name   string
		signer func() error
	}{
		{"other client signs as client", func() error {
			_, err := f.sows.SubmitSignature(ctx, bob, sow.ID, signature(models.SignatureRoleClient))

			return err
		}},
		{"owner signs as technician", func() error {
			_, err := f.sows.SubmitSignature(ctx, alice, sow.ID, signature(models.SignatureRoleTechnician))

			return err
		}},
		{"staff signs as client", func() error {
			_, err := f.sows.SubmitSignature(ctx, tech, sow.ID, signature(models.SignatureRoleClient))

			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsAuthorizationError(tt.signer()))
		})
	}

	stored, err := f.store.SOWs().FindByID(ctx, sow.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ClientSignature)
	assert.Nil(t, stored.TechnicianSignature)
}

func TestSOW_SubmitSignature_Validation(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()
	sow := draftSOW(t, f, job)

	oversized := signature(models.SignatureRoleClient)
	oversized.SignatureImage = "data:image/png;base64," + strings.Repeat("A", MaxSignatureImageBytes)

	_, err := f.sows.SubmitSignature(ctx, alice, sow.ID, oversized)
	assert.True(t, IsValidationError(err))

	atLimit := signature(models.SignatureRoleClient)
	atLimit.SignatureImage = strings.Repeat("A", MaxSignatureImageBytes)

	_, err = f.sows.SubmitSignature(ctx, alice, sow.ID, atLimit)
	assert.NoError(t, err)

	badRole := signature("WITNESS")
	_, err = f.sows.SubmitSignature(ctx, alice, sow.ID, badRole)
	assert.True(t, IsValidationError(err))

	unnamed := signature(models.SignatureRoleClient)
	unnamed.Name = ""
	_, err = f.sows.SubmitSignature(ctx, alice, sow.ID, unnamed)
	assert.True(t, IsValidationError(err))

	_, err = f.sows.SubmitSignature(ctx, alice, "missing", signature(models.SignatureRoleClient))
	assert.True(t, IsNotFoundError(err))
}

func TestSOW_SubmitSignature_CancelledSOW(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()
	sow := draftSOW(t, f, job)

	_, err := f.sows.ChangeStatus(ctx, tech, sow.ID, models.SOWStatusCancelled)
	require.NoError(t, err)

	_, err = f.sows.SubmitSignature(ctx, alice, sow.ID, signature(models.SignatureRoleClient))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSOW_ChangeStatus(t *testing.T) {
	tests := []struct {
		name  string
		path  []models.SOWStatus
		valid bool
	}{
		{"finalize", []models.SOWStatus{models.SOWStatusFinal}, true},
		{"back to draft", []models.SOWStatus{models.SOWStatusFinal, models.SOWStatusDraft}, true},
		{"send", []models.SOWStatus{models.SOWStatusFinal, models.SOWStatusSent}, true},
		{"send draft", []models.SOWStatus{models.SOWStatusSent}, false},
		{"same status", []models.SOWStatus{models.SOWStatusDraft}, true},
		{"cancel sent", []models.SOWStatus{models.SOWStatusFinal, models.SOWStatusSent, models.SOWStatusCancelled}, true},
		{"reopen cancelled", []models.SOWStatus{models.SOWStatusCancelled, models.SOWStatusDraft}, false},
		{"sign directly", []models.SOWStatus{models.SOWStatusSigned}, false},
		{"unknown", []models.SOWStatus{"ARCHIVED"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, job := newSOWFixture(t)
			ctx := context.Background()
			sow := draftSOW(t, f, job)

			var err error

			for _, status := range tt.path {
				sow, err = f.sows.ChangeStatus(ctx, tech, sow.ID, status)
				if err != nil {
					break
				}
			}

			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, tt.path[len(tt.path)-1], sow.Status)

				return
			}

			assert.True(t, IsValidationError(err))
		})
	}
}

func TestSOW_ChangeStatus_StaffOnly(t *testing.T) {
	f, job := newSOWFixture(t)
	sow := draftSOW(t, f, job)

	_, err := f.sows.ChangeStatus(context.Background(), alice, sow.ID, models.SOWStatusFinal)
	assert.True(t, IsAuthorizationError(err))

	_, err = f.sows.ChangeStatus(context.Background(), tech, "missing", models.SOWStatusFinal)
	assert.True(t, IsNotFoundError(err))
}

func TestSOW_FetchByJob(t *testing.T) {
	f, job := newSOWFixture(t)
	ctx := context.Background()

	_, err := f.sows.FetchByJob(ctx, alice, job.ID)
	assert.True(t, IsNotFoundError(err))

	sow := draftSOW(t, f, job)

	fetched, err := f.sows.FetchByJob(ctx, alice, job.ID)
	require.NoError(t, err)
	assert.Equal(t, sow.ID, fetched.ID)

	_, err = f.sows.FetchByJob(ctx, tech, job.ID)
	require.NoError(t, err)

	_, err = f.sows.FetchByJob(ctx, bob, job.ID)
	assert.True(t, IsAuthorizationError(err))

	_, err = f.sows.FetchByJob(ctx, tech, "missing")
	assert.True(t, IsNotFoundError(err))
}
