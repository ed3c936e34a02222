package billing

import (
	"context"
	"errors"

	"danceportal_go/models"
	"danceportal_go/repository"

	"github.com/sirupsen/logrus"
)

const (
	defaultDraftDay  = 1
	defaultGraceDays = 0
	maxDraftDay      = 28
	maxGraceDays     = 30
)

// AutopayStatus is the effective autopay configuration, with defaults filled
// in when the family never configured autopay.
type AutopayStatus struct {
	FamilyID               uint  `json:"family_id"`
	Configured             bool  `json:"configured"`
	Enabled                bool  `json:"enabled"`
	DefaultPaymentMethodID *uint `json:"default_payment_method_id"`
	DraftDay               int   `json:"draft_day"`
	GraceDays              int   `json:"grace_days"`
}

// EnableAutopayInput selects the method to draft. Nil DraftDay or GraceDays
// keep the stored values.
type EnableAutopayInput struct {
	PaymentMethodID uint
	DraftDay        *int
	GraceDays       *int
}

// familyMethod loads a payment method and hides methods of other families.
func (s *Service) familyMethod(ctx context.Context, st repository.Store, familyID, methodID uint) (*models.PaymentMethod, error) {
	pm, err := st.GetPaymentMethod(ctx, methodID)
	if err != nil {
		return nil, lookup("payment method", methodID, err)
	}
	if pm.FamilyID != familyID {
		return nil, notFound("payment method", methodID)
	}
	return pm, nil
}

func newAutopaySettings(familyID uint) *models.AutopaySettings {
	return &models.AutopaySettings{
		FamilyID:  familyID,
		DraftDay:  defaultDraftDay,
		GraceDays: defaultGraceDays,
	}
}

// autopaySettings returns stored settings or fresh defaults.
func autopaySettings(ctx context.Context, tx repository.Store, familyID uint) (*models.AutopaySettings, bool, error) {
	settings, err := tx.GetAutopaySettings(ctx, familyID)
	if errors.Is(err, repository.ErrNotFound) {
		return newAutopaySettings(familyID), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return settings, true, nil
}

// makeDefault clears the flag on every sibling before setting it on pm.
func makeDefault(ctx context.Context, tx repository.Store, pm *models.PaymentMethod) error {
	if err := tx.ClearDefaultPaymentMethods(ctx, pm.FamilyID); err != nil {
		return err
	}
	pm.IsDefault = true
	return tx.UpdatePaymentMethod(ctx, pm)
}

// ListPaymentMethods returns the family's stored methods.
func (s *Service) ListPaymentMethods(ctx context.Context, familyID uint) ([]models.PaymentMethod, error) {
	if _, err := s.store.GetFamily(ctx, familyID); err != nil {
		return nil, lookup("family", familyID, err)
	}
	return s.store.ListPaymentMethods(ctx, familyID)
}

// AttachPaymentMethod stores a processor payment method for the family. The
// family's first method becomes the default and is written into its autopay
// settings, which are created disabled if missing.
func (s *Service) AttachPaymentMethod(ctx context.Context, familyID uint, processorMethodID string) (*models.PaymentMethod, error) {
	if processorMethodID == "" {
		return nil, invalid("processor payment method id is required")
	}
	if _, err := s.store.GetFamily(ctx, familyID); err != nil {
		return nil, lookup("family", familyID, err)
	}

	pctx, cancel := s.processorCtx(ctx)
	details, err := s.processor.RetrievePaymentMethod(pctx, processorMethodID)
	cancel()
	if err != nil {
		return nil, upstream("retrieve payment method", err)
	}

	pm := &models.PaymentMethod{
		FamilyID:                 familyID,
		Processor:                "stripe",
		ProcessorPaymentMethodID: processorMethodID,
		Type:                     methodType(details.Type),
		Brand:                    details.Brand,
		Last4:                    details.Last4,
		ExpMonth:                 details.ExpMonth,
		ExpYear:                  details.ExpYear,
	}
	err = s.store.RunInTx(ctx, func(tx repository.Store) error {
		if _, err := tx.LockFamily(ctx, familyID); err != nil {
			return lookup("family", familyID, err)
		}
		existing, err := tx.ListPaymentMethods(ctx, familyID)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.ProcessorPaymentMethodID == processorMethodID {
				return badState("payment method %s is already attached", processorMethodID)
			}
		}

		pm.IsDefault = len(existing) == 0
		if err := tx.CreatePaymentMethod(ctx, pm); err != nil {
			return err
		}
		if !pm.IsDefault {
			return nil
		}
		settings, _, err := autopaySettings(ctx, tx, familyID)
		if err != nil {
			return err
		}
		settings.DefaultPaymentMethodID = &pm.ID
		return tx.SaveAutopaySettings(ctx, settings)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"family_id":         familyID,
		"payment_method_id": pm.ID,
		"is_default":        pm.IsDefault,
	}).Info("payment method attached")
	return pm, nil
}

func methodType(t string) models.PaymentMethodType {
	if t == "bank" {
		return models.PaymentMethodBank
	}
	return models.PaymentMethodCard
}

// SetDefaultPaymentMethod moves the default flag and keeps autopay pointed at it.
func (s *Service) SetDefaultPaymentMethod(ctx context.Context, familyID, methodID uint) (*models.PaymentMethod, error) {
	var pm *models.PaymentMethod
	err := s.store.RunInTx(ctx, func(tx repository.Store) error {
		if _, err := tx.LockFamily(ctx, familyID); err != nil {
			return lookup("family", familyID, err)
		}
		var err error
		pm, err = s.familyMethod(ctx, tx, familyID, methodID)
		if err != nil {
			return err
		}
		if err := makeDefault(ctx, tx, pm); err != nil {
			return err
		}
		settings, err := tx.GetAutopaySettings(ctx, familyID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		settings.DefaultPaymentMethodID = &pm.ID
		return tx.SaveAutopaySettings(ctx, settings)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"family_id": familyID, "payment_method_id": methodID}).Info("default payment method changed")
	return pm, nil
}

// EnableAutopay makes the chosen method the sole default and turns autopay on.
func (s *Service) EnableAutopay(ctx context.Context, familyID uint, in EnableAutopayInput) (*AutopayStatus, error) {
	if in.DraftDay != nil && (*in.DraftDay < 1 || *in.DraftDay > maxDraftDay) {
		return nil, invalid("draft day must be between 1 and %d", maxDraftDay)
	}
	if in.GraceDays != nil && (*in.GraceDays < 0 || *in.GraceDays > maxGraceDays) {
		return nil, invalid("grace days must be between 0 and %d", maxGraceDays)
	}

	var settings *models.AutopaySettings
	err := s.store.RunInTx(ctx, func(tx repository.Store) error {
		if _, err := tx.LockFamily(ctx, familyID); err != nil {
			return lookup("family", familyID, err)
		}
		pm, err := s.familyMethod(ctx, tx, familyID, in.PaymentMethodID)
		if err != nil {
			return err
		}
		if err := makeDefault(ctx, tx, pm); err != nil {
			return err
		}
		settings, _, err = autopaySettings(ctx, tx, familyID)
		if err != nil {
			return err
		}
		settings.Enabled = true
		settings.DefaultPaymentMethodID = &pm.ID
		if in.DraftDay != nil {
			settings.DraftDay = *in.DraftDay
		}
		if in.GraceDays != nil {
			settings.GraceDays = *in.GraceDays
		}
		return tx.SaveAutopaySettings(ctx, settings)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"family_id":         familyID,
		"payment_method_id": in.PaymentMethodID,
		"draft_day":         settings.DraftDay,
		"grace_days":        settings.GraceDays,
	}).Info("autopay enabled")
	return statusFrom(settings, true), nil
}

// DisableAutopay turns autopay off and keeps the rest of the configuration.
func (s *Service) DisableAutopay(ctx context.Context, familyID uint) (*AutopayStatus, error) {
	var settings *models.AutopaySettings
	err := s.store.RunInTx(ctx, func(tx repository.Store) error {
		if _, err := tx.GetFamily(ctx, familyID); err != nil {
			return lookup("family", familyID, err)
		}
		var err error
		settings, err = tx.GetAutopaySettings(ctx, familyID)
		if err != nil {
			return lookup("autopay settings for family", familyID, err)
		}
		settings.Enabled = false
		return tx.SaveAutopaySettings(ctx, settings)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("family_id", familyID).Info("autopay disabled")
	return statusFrom(settings, true), nil
}

// GetAutopayStatus reports the stored settings or the defaults.
func (s *Service) GetAutopayStatus(ctx context.Context, familyID uint) (*AutopayStatus, error) {
	if _, err := s.store.GetFamily(ctx, familyID); err != nil {
		return nil, lookup("family", familyID, err)
	}
	settings, configured, err := autopaySettings(ctx, s.store, familyID)
	if err != nil {
		return nil, err
	}
	return statusFrom(settings, configured), nil
}

func statusFrom(a *models.AutopaySettings, configured bool) *AutopayStatus {
	return &AutopayStatus{
		FamilyID:               a.FamilyID,
		Configured:             configured,
		Enabled:                a.Enabled,
		DefaultPaymentMethodID: a.DefaultPaymentMethodID,
		DraftDay:               a.DraftDay,
		GraceDays:              a.GraceDays,
	}
}

// CreateSetupIntent starts processor-side collection of a new payment method.
func (s *Service) CreateSetupIntent(ctx context.Context, familyID uint) (string, error) {
	family, err := s.store.GetFamily(ctx, familyID)
	if err != nil {
		return "", lookup("family", familyID, err)
	}
	if !family.HasProcessorCustomer() {
		return "", badState("family %d has no processor customer", familyID)
	}
	pctx, cancel := s.processorCtx(ctx)
	defer cancel()
	secret, err := s.processor.CreateSetupIntent(pctx, family.ProcessorCustomerID)
	if err != nil {
		return "", upstream("create setup intent", err)
	}
	return secret, nil
}

// LinkProcessorCustomer creates the processor customer for a family that has none.
func (s *Service) LinkProcessorCustomer(ctx context.Context, familyID uint) (*models.Family, error) {
	family, err := s.store.GetFamily(ctx, familyID)
	if err != nil {
		return nil, lookup("family", familyID, err)
	}
	if family.HasProcessorCustomer() {
		return family, nil
	}

	pctx, cancel := s.processorCtx(ctx)
	customerID, err := s.processor.CreateCustomer(pctx, family.Name, family.Email)
	cancel()
	if err != nil {
		return nil, upstream("create customer", err)
	}

	family.ProcessorCustomerID = customerID
	if err := s.store.UpdateFamily(ctx, family); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"family_id": familyID, "customer_id": customerID}).Info("processor customer linked")
	return family, nil
}
