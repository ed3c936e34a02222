package billing

import (
	"context"
	"sort"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"
)

// Balance is a family's position. Positive BalanceCents means the family owes.
type Balance struct {
	FamilyID     uint  `json:"family_id"`
	DebitCents   int64 `json:"debit_cents"`
	CreditCents  int64 `json:"credit_cents"`
	BalanceCents int64 `json:"balance_cents"`
}

// Aging splits the outstanding debit amount by days since posting.
type Aging struct {
	FamilyID     uint  `json:"family_id"`
	CurrentCents int64 `json:"current_cents"` // under 30 days
	Days30Cents  int64 `json:"days_30_cents"` // 30-59
	Days60Cents  int64 `json:"days_60_cents"` // 60-89
	Days90Cents  int64 `json:"days_90_cents"` // 90 and over
	TotalCents   int64 `json:"total_cents"`
}

// ComputeBalance sums entries with debits positive and credits negative.
func ComputeBalance(familyID uint, entries []models.LedgerEntry) Balance {
	b := Balance{FamilyID: familyID}
	for _, e := range entries {
		switch e.Type {
		case models.LedgerDebit:
			b.DebitCents += e.AmountCents
		case models.LedgerCredit:
			b.CreditCents += e.AmountCents
		}
	}
	b.BalanceCents = b.DebitCents - b.CreditCents
	return b
}

// ComputeAging applies all credits to the oldest debits first, then buckets
// what remains of each debit by its age at now. A family in credit has no
// outstanding amount.
func ComputeAging(familyID uint, entries []models.LedgerEntry, now time.Time) Aging {
	sorted := make([]models.LedgerEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PostedAt.Equal(sorted[j].PostedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].PostedAt.Before(sorted[j].PostedAt)
	})

	var credit int64
	for _, e := range sorted {
		if e.Type == models.LedgerCredit {
			credit += e.AmountCents
		}
	}

	a := Aging{FamilyID: familyID}
	for _, e := range sorted {
		if e.Type != models.LedgerDebit {
			continue
		}
		outstanding := e.AmountCents
		if credit > 0 {
			applied := min(credit, outstanding)
			credit -= applied
			outstanding -= applied
		}
		if outstanding == 0 {
			continue
		}
		switch days := ageInDays(e.PostedAt, now); {
		case days < 30:
			a.CurrentCents += outstanding
		case days < 60:
			a.Days30Cents += outstanding
		case days < 90:
			a.Days60Cents += outstanding
		default:
			a.Days90Cents += outstanding
		}
		a.TotalCents += outstanding
	}
	return a
}

func ageInDays(posted, now time.Time) int {
	if now.Before(posted) {
		return 0
	}
	return int(now.Sub(posted).Hours() / 24)
}

// GetBalance recomputes the balance from every committed ledger entry.
func (s *Service) GetBalance(ctx context.Context, familyID uint) (*Balance, error) {
	entries, err := s.familyEntries(ctx, familyID)
	if err != nil {
		return nil, err
	}
	b := ComputeBalance(familyID, entries)
	return &b, nil
}

// GetAging recomputes the family's aging buckets as of the service clock.
func (s *Service) GetAging(ctx context.Context, familyID uint) (*Aging, error) {
	entries, err := s.familyEntries(ctx, familyID)
	if err != nil {
		return nil, err
	}
	a := ComputeAging(familyID, entries, s.now())
	return &a, nil
}

func (s *Service) familyEntries(ctx context.Context, familyID uint) ([]models.LedgerEntry, error) {
	if _, err := s.store.GetFamily(ctx, familyID); err != nil {
		return nil, lookup("family", familyID, err)
	}
	return s.store.ListLedgerEntries(ctx, repository.LedgerFilter{FamilyID: familyID})
}

// FamilyPosition pairs a family with its balance and aging.
type FamilyPosition struct {
	Family  models.Family `json:"family"`
	Balance Balance       `json:"balance"`
	Aging   Aging         `json:"aging"`
}

// Positions computes balance and aging for every family from one ledger scan.
func (s *Service) Positions(ctx context.Context) ([]FamilyPosition, error) {
	families, err := s.store.ListFamilies(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListLedgerEntries(ctx, repository.LedgerFilter{})
	if err != nil {
		return nil, err
	}
	byFamily := map[uint][]models.LedgerEntry{}
	for _, e := range entries {
		byFamily[e.FamilyID] = append(byFamily[e.FamilyID], e)
	}

	now := s.now()
	out := make([]FamilyPosition, 0, len(families))
	for _, f := range families {
		fe := byFamily[f.ID]
		out = append(out, FamilyPosition{
			Family:  f,
			Balance: ComputeBalance(f.ID, fe),
			Aging:   ComputeAging(f.ID, fe, now),
		})
	}
	return out, nil
}

// LedgerPage is one page of a family's history, newest first.
type LedgerPage struct {
	Items    []models.LedgerEntry `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Total    int64                `json:"total"`
}

const maxPageSize = 100

// NormalizePage clamps paging input: page starts at 1, size is 1..100.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

// GetLedger returns one page of a family's ledger ordered newest first.
func (s *Service) GetLedger(ctx context.Context, familyID uint, page, size int) (*LedgerPage, error) {
	if _, err := s.store.GetFamily(ctx, familyID); err != nil {
		return nil, lookup("family", familyID, err)
	}
	page, size = NormalizePage(page, size)
	items, total, err := s.store.PageLedgerEntries(ctx, familyID, page, size)
	if err != nil {
		return nil, err
	}
	return &LedgerPage{Items: items, Page: page, PageSize: size, Total: total}, nil
}

// Statement is a family's ledger activity for one calendar month.
type Statement struct {
	FamilyID     uint                 `json:"family_id"`
	FamilyName   string               `json:"family_name"`
	PeriodStart  time.Time            `json:"period_start"`
	PeriodEnd    time.Time            `json:"period_end"`
	OpeningCents int64                `json:"opening_cents"`
	ClosingCents int64                `json:"closing_cents"`
	Entries      []models.LedgerEntry `json:"entries"`
}

// GetStatement collects the month containing month (UTC) with opening and
// closing balances.
func (s *Service) GetStatement(ctx context.Context, familyID uint, month time.Time) (*Statement, error) {
	family, err := s.store.GetFamily(ctx, familyID)
	if err != nil {
		return nil, lookup("family", familyID, err)
	}
	month = month.UTC()
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	before, err := s.store.ListLedgerEntries(ctx, repository.LedgerFilter{FamilyID: familyID, To: &start})
	if err != nil {
		return nil, err
	}
	during, err := s.store.ListLedgerEntries(ctx, repository.LedgerFilter{FamilyID: familyID, From: &start, To: &end})
	if err != nil {
		return nil, err
	}

	opening := ComputeBalance(familyID, before).BalanceCents
	return &Statement{
		FamilyID:     familyID,
		FamilyName:   family.Name,
		PeriodStart:  start,
		PeriodEnd:    end,
		OpeningCents: opening,
		ClosingCents: opening + ComputeBalance(familyID, during).BalanceCents,
		Entries:      during,
	}, nil
}
