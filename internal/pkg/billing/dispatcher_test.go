package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tableops/tableops/app/models"
	"gorm.io/gorm"
)

func adaSubscription(status string) *models.Subscription {
	return &models.Subscription{
		ID:                   1,
		OwnerID:              ada.ID,
		StripeSubscriptionID: "sub_1",
		StripeCustomerID:     "cus_1",
		PlanType:             models.PlanProfessional,
		Status:               status,
		MaxActiveRestaurants: 3,
	}
}

func TestDispatchCreatedSendsConfirmation(t *testing.T) {
	h := newHarness(nil, ada)

	out := h.dispatcher.Dispatch(context.Background(), TransitionCreated, Subject{Subscription: adaSubscription(models.SubscriptionStatusActive)})
	require.NoError(t, out.Err())

	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, sentNotice{kind: "confirmed", to: ada.Email, arg: "Professional"}, h.notifier.sent[0])
}

func TestDispatchTransitionsWithoutSideEffects(t *testing.T) {
	h := newHarness(nil, ada)
	h.restaurants.add(ada.ID, 2)

	for _, tr := range []Transition{TransitionUpdated, TransitionPaymentSucceeded, Transition("unknown")} {
		out := h.dispatcher.Dispatch(context.Background(), tr, Subject{Subscription: adaSubscription(models.SubscriptionStatusActive)})
		assert.Empty(t, out.Tasks, string(tr))
	}
	assert.Empty(t, h.notifier.sent)
	assert.Len(t, h.restaurants.activeIDs(ada.ID), 2)
}

func TestDispatchCanceledDeactivatesAndNotifies(t *testing.T) {
	h := newHarness(nil, ada)
	h.restaurants.add(ada.ID, 3)

	out := h.dispatcher.Dispatch(context.Background(), TransitionCanceled, Subject{Subscription: adaSubscription(models.SubscriptionStatusCanceled)})
	require.NoError(t, out.Err())

	assert.EqualValues(t, 3, out.Deactivated)
	assert.Empty(t, h.restaurants.activeIDs(ada.ID))
	assert.Equal(t, []string{"cancelled"}, h.notifier.kinds())
}

func TestDispatchFailingTaskDoesNotStopSiblings(t *testing.T) {
	h := newHarness(nil, ada)
	h.restaurants.add(ada.ID, 2)
	h.restaurants.failOwner[ada.ID] = errors.New("lock wait timeout")

	out := h.dispatcher.Dispatch(context.Background(), TransitionCanceled, Subject{Subscription: adaSubscription(models.SubscriptionStatusCanceled)})

	require.Len(t, out.Tasks, 2)
	assert.False(t, out.Succeeded(TaskDeactivateRestaurants))
	assert.True(t, out.Succeeded(TaskSendCancellation))
	assert.Zero(t, out.Deactivated)
	assert.Equal(t, []string{"cancelled"}, h.notifier.kinds())

	failed := out.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, TaskDeactivateRestaurants, failed[0].Name)
	assert.ErrorContains(t, out.Err(), "lock wait timeout")
}

func TestDispatchFailingEmailDoesNotStopDeactivation(t *testing.T) {
	h := newHarness(nil, ada)
	h.restaurants.add(ada.ID, 2)
	h.notifier.fail["trial_expired"] = errors.New("smtp down")

	out := h.dispatcher.Dispatch(context.Background(), TransitionTrialExpired, Subject{Subscription: adaSubscription(models.SubscriptionStatusCanceled)})

	assert.True(t, out.Succeeded(TaskDeactivateRestaurants))
	assert.False(t, out.Succeeded(TaskSendTrialExpired))
	assert.EqualValues(t, 2, out.Deactivated)
	assert.Empty(t, h.restaurants.activeIDs(ada.ID))
}

func TestDispatchRecoversPanickingTask(t *testing.T) {
	h := newHarness(nil, ada)
	h.restaurants.add(ada.ID, 1)
	h.notifier.panicOn = "cancelled"

	var out Outcome
	require.NotPanics(t, func() {
		out = h.dispatcher.Dispatch(context.Background(), TransitionCanceled, Subject{Subscription: adaSubscription(models.SubscriptionStatusCanceled)})
	})

	assert.True(t, out.Succeeded(TaskDeactivateRestaurants))
	assert.False(t, out.Succeeded(TaskSendCancellation))
	assert.ErrorContains(t, out.Err(), "panic")
}

func TestDispatchPaymentFailedFormatsAmount(t *testing.T) {
	h := newHarness(nil, ada)

	out := h.dispatcher.Dispatch(context.Background(), TransitionPaymentFailed, Subject{
		Subscription: adaSubscription(models.SubscriptionStatusPastDue),
		AmountDue:    4900,
		Currency:     "usd",
	})
	require.NoError(t, out.Err())
	assert.Equal(t, []sentNotice{{kind: "payment_failed", to: ada.Email, arg: "$49.00"}}, h.notifier.sent)
}

func TestDispatchTrialWillEndUsesEndDate(t *testing.T) {
	h := newHarness(nil, ada)
	ends := time.Date(2025, 3, 17, 23, 0, 0, 0, time.UTC)

	out := h.dispatcher.Dispatch(context.Background(), TransitionTrialWillEnd, Subject{OwnerID: ada.ID, EndsAt: &ends})
	require.NoError(t, out.Err())
	assert.Equal(t, []sentNotice{{kind: "trial_ending", to: ada.Email, arg: "March 17, 2025"}}, h.notifier.sent)

	sub := adaSubscription(models.SubscriptionStatusTrialing)
	sub.CurrentPeriodEnd = ptrTime(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	out = h.dispatcher.Dispatch(context.Background(), TransitionTrialWillEnd, Subject{Subscription: sub})
	require.NoError(t, out.Err())
	assert.Equal(t, "April 1, 2025", h.notifier.sent[1].arg)

	out = h.dispatcher.Dispatch(context.Background(), TransitionTrialWillEnd, Subject{Subscription: adaSubscription(models.SubscriptionStatusTrialing)})
	assert.Error(t, out.Err())
}

func TestDispatchUnknownOwner(t *testing.T) {
	h := newHarness(nil)

	out := h.dispatcher.Dispatch(context.Background(), TransitionCreated, Subject{Subscription: adaSubscription(models.SubscriptionStatusActive)})
	assert.True(t, errors.Is(out.Err(), gorm.ErrRecordNotFound))

	out = h.dispatcher.Dispatch(context.Background(), TransitionCanceled, Subject{})
	require.Len(t, out.Failed(), 2)
	assert.True(t, errors.Is(out.Err(), ErrOwnerNotResolved))
	assert.Empty(t, h.notifier.sent)
}
