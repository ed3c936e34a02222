package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"
	"danceportal_go/services/processor"

	"github.com/sirupsen/logrus"
)

const autopayMemo = "Autopay"

// DraftRun summarizes one autopay pass.
type DraftRun struct {
	Considered   int   `json:"considered"`
	Drafted      int   `json:"drafted"`
	Skipped      int   `json:"skipped"`
	Failed       int   `json:"failed"`
	DraftedCents int64 `json:"drafted_cents"`
}

// draftDue is the day of month autopay charges a family.
func draftDue(a models.AutopaySettings) int {
	day := a.DraftDay + a.GraceDays
	if day > maxDraftDay {
		day = maxDraftDay
	}
	if day < 1 {
		day = 1
	}
	return day
}

// autopayKey is stable per family and month, so a repeated pass never drafts twice.
func autopayKey(familyID uint, now time.Time) string {
	return fmt.Sprintf("autopay-%d-%s", familyID, now.UTC().Format("2006-01"))
}

// RunAutopayDraft charges the outstanding balance of every family whose
// autopay is due on now's day of month. One family's failure does not stop
// the pass.
func (s *Service) RunAutopayDraft(ctx context.Context, now time.Time) (*DraftRun, error) {
	settings, err := s.store.ListEnabledAutopay(ctx)
	if err != nil {
		return nil, err
	}

	run := &DraftRun{}
	for _, a := range settings {
		if draftDue(a) != now.UTC().Day() {
			continue
		}
		run.Considered++
		log := s.log.WithField("family_id", a.FamilyID)

		amount, err := s.draftFamily(ctx, a, now)
		switch {
		case errors.Is(err, errNothingToDraft):
			run.Skipped++
		case err != nil:
			run.Failed++
			log.WithError(err).Warn("autopay draft failed")
		default:
			run.Drafted++
			run.DraftedCents += amount
		}
	}

	s.log.WithFields(logrus.Fields{
		"considered":    run.Considered,
		"drafted":       run.Drafted,
		"skipped":       run.Skipped,
		"failed":        run.Failed,
		"drafted_cents": run.DraftedCents,
	}).Info("autopay pass finished")
	return run, nil
}

var errNothingToDraft = errors.New("nothing to draft")

func (s *Service) draftFamily(ctx context.Context, a models.AutopaySettings, now time.Time) (int64, error) {
	key := autopayKey(a.FamilyID, now)
	if _, err := s.store.GetPaymentByIdempotencyKey(ctx, key); err == nil {
		return 0, errNothingToDraft
	} else if !errors.Is(err, repository.ErrNotFound) {
		return 0, err
	}

	if a.DefaultPaymentMethodID == nil {
		return 0, badState("family %d has autopay enabled without a default method", a.FamilyID)
	}
	family, err := s.store.GetFamily(ctx, a.FamilyID)
	if err != nil {
		return 0, lookup("family", a.FamilyID, err)
	}
	if !family.HasProcessorCustomer() {
		return 0, badState("family %d has no processor customer", a.FamilyID)
	}
	pm, err := s.familyMethod(ctx, s.store, a.FamilyID, *a.DefaultPaymentMethodID)
	if err != nil {
		return 0, err
	}
	bal, err := s.GetBalance(ctx, a.FamilyID)
	if err != nil {
		return 0, err
	}
	if bal.BalanceCents <= 0 {
		return 0, errNothingToDraft
	}

	pctx, cancel := s.processorCtx(ctx)
	intent, err := s.processor.CreatePaymentIntent(pctx, processor.IntentRequest{
		CustomerID:      family.ProcessorCustomerID,
		PaymentMethodID: pm.ProcessorPaymentMethodID,
		AmountCents:     bal.BalanceCents,
		Currency:        s.currency,
		OffSession:      true,
		IdempotencyKey:  key,
		Description:     autopayMemo,
		Metadata:        map[string]string{"family_id": strconv.FormatUint(uint64(a.FamilyID), 10)},
	})
	cancel()
	if err != nil {
		return 0, upstream("create off-session payment intent", err)
	}

	if _, err := s.recordProcessorPayment(ctx, processorPayment{
		familyID:    a.FamilyID,
		methodID:    pm.ID,
		source:      models.PaymentSourceAutopay,
		amountCents: bal.BalanceCents,
		memo:        autopayMemo,
		key:         key,
		intent:      intent,
	}); err != nil {
		return 0, err
	}
	return bal.BalanceCents, nil
}
