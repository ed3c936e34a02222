package controllers

import (
	"time"

	"danceportal_go/middleware"
	"danceportal_go/models"
	"danceportal_go/services"
	"danceportal_go/utils"

	"github.com/gofiber/fiber/v2"
)

// AdminController serves the staff back office.
type AdminController struct {
	admin *services.AdminService
}

func NewAdminController(admin *services.AdminService) *AdminController {
	return &AdminController{admin: admin}
}

// Families

func (ac *AdminController) ListFamilies(c *fiber.Ctx) error {
	families, err := ac.admin.ListFamilies(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"families": families})
}

func (ac *AdminController) CreateFamily(c *fiber.Ctx) error {
	var req services.CreateFamilyInput
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	created, err := ac.admin.CreateFamily(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "families", created.Family.ID, fiber.Map{
		"name":     created.Family.Name,
		"username": created.User.Username,
	})
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (ac *AdminController) GetFamily(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	detail, err := ac.admin.GetFamily(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(detail)
}

// LinkProcessorCustomer creates the family's processor customer when missing.
func (ac *AdminController) LinkProcessorCustomer(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	family, err := ac.admin.Billing().LinkProcessorCustomer(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"family": family})
}

// Students

type StudentRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Birthdate string `json:"birthdate" validate:"omitempty,datetime=2006-01-02"`
}

func (ac *AdminController) CreateStudent(c *fiber.Ctx) error {
	familyID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req StudentRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	in := services.StudentInput{FirstName: req.FirstName, LastName: req.LastName}
	if req.Birthdate != "" {
		b, err := utils.ParseDate(req.Birthdate)
		if err != nil {
			return respondError(c, invalidRequest("birthdate must be YYYY-MM-DD"))
		}
		in.Birthdate = &b
	}
	student, err := ac.admin.CreateStudent(c.UserContext(), familyID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"student": student})
}

// ListStudents lists one family's students, or all when no family id is given.
func (ac *AdminController) ListStudents(c *fiber.Ctx) error {
	var familyID uint
	if c.Params("id") != "" {
		id, err := paramID(c, "id")
		if err != nil {
			return respondError(c, err)
		}
		familyID = id
	}
	students, err := ac.admin.ListStudents(c.UserContext(), familyID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"students": students})
}

// Classes

func (ac *AdminController) CreateClass(c *fiber.Ctx) error {
	var req services.ClassInput
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	class, err := ac.admin.CreateClass(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"class": class})
}

func (ac *AdminController) ListClasses(c *fiber.Ctx) error {
	classes, err := ac.admin.ListClasses(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"classes": classes})
}

type PricingRequest struct {
	MonthlyTuitionCents int64 `json:"monthly_tuition_cents" validate:"min=0"`
}

func (ac *AdminController) SetClassPricing(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req PricingRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	pricing, err := ac.admin.SetClassPricing(c.UserContext(), id, req.MonthlyTuitionCents)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"pricing": pricing})
}

type ClassActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (ac *AdminController) SetClassActive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req ClassActiveRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	class, err := ac.admin.SetClassActive(c.UserContext(), id, *req.Active)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"class": class})
}

// Enrollments

type EnrollRequest struct {
	StudentID uint `json:"student_id" validate:"required"`
	ClassID   uint `json:"class_id" validate:"required"`
}

func (ac *AdminController) Enroll(c *fiber.Ctx) error {
	familyID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req EnrollRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	enrollment, err := ac.admin.Enroll(c.UserContext(), familyID, req.StudentID, req.ClassID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"enrollment": enrollment})
}

type EnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=completed canceled"`
}

func (ac *AdminController) UpdateEnrollmentStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req EnrollmentStatusRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	enrollment, err := ac.admin.UpdateEnrollmentStatus(c.UserContext(), id, models.EnrollmentStatus(req.Status))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"enrollment": enrollment})
}

// Money movement

type ChargeRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=tuition fee adjustment"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Memo        string `json:"memo" validate:"max=255"`
}

func (ac *AdminController) PostCharge(c *fiber.Ctx) error {
	familyID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req ChargeRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	charge, err := ac.admin.Billing().PostCharge(c.UserContext(), familyID, models.ChargeKind(req.Kind), req.AmountCents, req.Memo)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "charges", charge.ID, fiber.Map{
		"family_id":    familyID,
		"kind":         req.Kind,
		"amount_cents": req.AmountCents,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"charge": charge})
}

type ManualPaymentRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Memo        string `json:"memo" validate:"max=255"`
}

func (ac *AdminController) PostManualPayment(c *fiber.Ctx) error {
	familyID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req ManualPaymentRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	payment, err := ac.admin.Billing().PostManualPayment(c.UserContext(), familyID, req.AmountCents, req.Memo)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "payments", payment.ID, fiber.Map{
		"family_id":    familyID,
		"amount_cents": req.AmountCents,
		"source":       payment.Source,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment": payment})
}

// SyncPaymentStatus refreshes a processor payment's status.
func (ac *AdminController) SyncPaymentStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	payment, err := ac.admin.Billing().SyncPaymentStatus(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payment": payment})
}

// RunAutopay drafts every family due today without waiting for the cron.
func (ac *AdminController) RunAutopay(c *fiber.Ctx) error {
	b := ac.admin.Billing()
	run, err := b.RunAutopayDraft(c.UserContext(), b.Now())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"run": run})
}

// Ledger and statements

func (ac *AdminController) GetLedger(c *fiber.Ctx) error {
	familyID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	page, err := ac.admin.Billing().GetLedger(c.UserContext(), familyID, queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"entries": page.Items,
		"meta":    utils.NewPageMeta(page.Page, page.PageSize, page.Total),
	})
}

// GetStatement returns the month's statement as JSON, or as a workbook with ?format=xlsx.
func (ac *AdminController) GetStatement(c *fiber.Ctx) error {
	familyID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	month, err := queryMonth(c, ac.admin.Billing().Now())
	if err != nil {
		return respondError(c, err)
	}
	if c.Query("format") != "xlsx" {
		st, err := ac.admin.Billing().GetStatement(c.UserContext(), familyID, month)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(st)
	}
	file, err := ac.admin.ExportStatement(c.UserContext(), familyID, month, c.QueryBool("archive"))
	if err != nil {
		return respondError(c, err)
	}
	if file.ObjectKey != "" {
		c.Set("X-Archive-Key", file.ObjectKey)
	}
	return sendFile(c, file.FileName, file.ContentType, file.Content)
}

// Invoices

type GenerateInvoicesRequest struct {
	// Month (YYYY-MM) is shorthand for that calendar month.
	Month       string `json:"month" validate:"omitempty,datetime=2006-01"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

func (ac *AdminController) GenerateInvoices(c *fiber.Ctx) error {
	var req GenerateInvoicesRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	start, end, err := invoicePeriod(req)
	if err != nil {
		return respondError(c, err)
	}

	run, err := ac.admin.Billing().GenerateInvoices(c.UserContext(), start, end)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "invoices", 0, fiber.Map{
		"period_start": start.Format("2006-01-02"),
		"period_end":   end.Format("2006-01-02"),
		"count":        run.Count,
		"total_cents":  run.TotalCents,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"run": run})
}

// invoicePeriod resolves the billed period; period_end is exclusive.
func invoicePeriod(req GenerateInvoicesRequest) (time.Time, time.Time, error) {
	if req.Month != "" {
		start, err := utils.ParseMonth(req.Month)
		if err != nil {
			return time.Time{}, time.Time{}, invalidRequest("month must be YYYY-MM")
		}
		return start, start.AddDate(0, 1, 0), nil
	}
	if req.PeriodStart == "" || req.PeriodEnd == "" {
		return time.Time{}, time.Time{}, invalidRequest("month or period_start and period_end are required")
	}
	start, err := utils.ParseDate(req.PeriodStart)
	if err != nil {
		return time.Time{}, time.Time{}, invalidRequest("period_start must be YYYY-MM-DD")
	}
	end, err := utils.ParseDate(req.PeriodEnd)
	if err != nil {
		return time.Time{}, time.Time{}, invalidRequest("period_end must be YYYY-MM-DD")
	}
	return start, end, nil
}

func (ac *AdminController) FinalizeInvoice(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	inv, err := ac.admin.Billing().FinalizeInvoice(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoice": inv})
}

// ListInvoices lists invoices, narrowed with ?family_id=.
func (ac *AdminController) ListInvoices(c *fiber.Ctx) error {
	var familyID uint
	if v := c.Query("family_id"); v != "" {
		id, err := utils.ParseUint(v)
		if err != nil {
			return respondError(c, invalidRequest("invalid family_id"))
		}
		familyID = id
	}
	invoices, err := ac.admin.Billing().ListInvoices(c.UserContext(), familyID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoices": invoices})
}

func (ac *AdminController) GetInvoice(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	inv, err := ac.admin.Billing().GetInvoice(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoice": inv})
}

// Reports

// AgingReport returns every family's aging, or a workbook with ?format=xlsx.
func (ac *AdminController) AgingReport(c *fiber.Ctx) error {
	if c.Query("format") == "xlsx" {
		file, err := ac.admin.ExportAging(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return sendFile(c, file.FileName, file.ContentType, file.Content)
	}
	rows, err := ac.admin.AgingReport(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"rows": rows})
}

// RevenueReport groups payments by UTC day between ?from and ?to, both inclusive.
func (ac *AdminController) RevenueReport(c *fiber.Ctx) error {
	from, err := queryDate(c, "from")
	if err != nil {
		return respondError(c, err)
	}
	to, err := queryDate(c, "to")
	if err != nil {
		return respondError(c, err)
	}
	if from == nil || to == nil {
		return respondError(c, invalidRequest("from and to are required"))
	}

	if c.Query("format") == "xlsx" {
		file, err := ac.admin.ExportRevenue(c.UserContext(), *from, *to)
		if err != nil {
			return respondError(c, err)
		}
		return sendFile(c, file.FileName, file.ContentType, file.Content)
	}
	rows, err := ac.admin.RevenueReport(c.UserContext(), *from, *to)
	if err != nil {
		return respondError(c, err)
	}
	var total int64
	for _, r := range rows {
		total += r.RevenueCents
	}
	return c.JSON(fiber.Map{"days": rows, "total": utils.ToMoney(total)})
}
