package referral

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/models"
	"github.com/revaspay/storefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func refer(t *testing.T, db *gorm.DB, referrer uuid.UUID, n int) {
	for i := 0; i < n; i++ {
		edge := models.Referral{
			ReferrerID:     referrer,
			ReferredUserID: uuid.New(),
			ReferralCode:   fmt.Sprintf("code-%d", i),
		}
		require.NoError(t, db.Create(&edge).Error)
	}
}

func TestDirectReferrer(t *testing.T) {
	db := testutil.NewTestDB(t, &models.Referral{})
	svc := NewReferralService(db)
	parent, child, orphan := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, db.Create(&models.Referral{ReferrerID: parent, ReferredUserID: child}).Error)

	got, err := svc.DirectReferrer(context.Background(), child)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, parent, *got)

	got, err = svc.DirectReferrer(context.Background(), orphan)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDirectReferrerIsOneHop(t *testing.T) {
	db := testutil.NewTestDB(t, &models.Referral{})
	svc := NewReferralService(db)
	grandparent, parent, child := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, db.Create(&models.Referral{ReferrerID: grandparent, ReferredUserID: parent}).Error)
	require.NoError(t, db.Create(&models.Referral{ReferrerID: parent, ReferredUserID: child}).Error)

	got, err := svc.DirectReferrer(context.Background(), child)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, parent, *got)
}

func TestReferralCounts(t *testing.T) {
	db := testutil.NewTestDB(t, &models.Referral{})
	svc := NewReferralService(db)
	big, small := uuid.New(), uuid.New()
	refer(t, db, big, 12)
	refer(t, db, small, 3)

	total, err := svc.CountDirectReferrals(context.Background(), big)
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)

	counts, err := svc.DirectReferralCounts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, big, counts[0].ReferrerID)
	assert.Equal(t, int64(12), counts[0].Total)
}
