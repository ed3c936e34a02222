package controllers

import (
	"strings"
	"time"

	"danceportal_go/middleware"
	"danceportal_go/services"
	"danceportal_go/services/billing"
	"danceportal_go/utils"

	"github.com/gofiber/fiber/v2"
)

// PortalController serves signed-in families. The family always comes from
// the caller's account, never from the request.
type PortalController struct {
	portal *services.PortalService
	now    func() time.Time
}

func NewPortalController(portal *services.PortalService, now func() time.Time) *PortalController {
	return &PortalController{portal: portal, now: now}
}

func currentUserID(c *fiber.Ctx) (uint, error) {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func (pc *PortalController) Overview(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	overview, err := pc.portal.Overview(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(overview)
}

func (pc *PortalController) Balance(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	bal, err := pc.portal.Balance(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"balance": bal,
		"display": utils.ToMoney(bal.BalanceCents),
	})
}

func (pc *PortalController) Aging(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	aging, err := pc.portal.Aging(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"aging": aging})
}

func (pc *PortalController) Ledger(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	page, err := pc.portal.Ledger(c.UserContext(), userID, queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"entries": page.Items,
		"meta":    utils.NewPageMeta(page.Page, page.PageSize, page.Total),
	})
}

// Payment methods

func (pc *PortalController) PaymentMethods(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	methods, err := pc.portal.PaymentMethods(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payment_methods": methods})
}

func (pc *PortalController) SetupIntent(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	secret, err := pc.portal.SetupIntent(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"client_secret": secret})
}

type AttachMethodRequest struct {
	ProcessorMethodID string `json:"processor_method_id" validate:"required,max=100"`
}

func (pc *PortalController) AttachPaymentMethod(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req AttachMethodRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	pm, err := pc.portal.AttachPaymentMethod(c.UserContext(), userID, req.ProcessorMethodID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment_method": pm})
}

func (pc *PortalController) SetDefaultPaymentMethod(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	pm, err := pc.portal.SetDefaultPaymentMethod(c.UserContext(), userID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payment_method": pm})
}

// Payments

type PayRequest struct {
	PaymentMethodID uint  `json:"payment_method_id" validate:"required"`
	AmountCents     int64 `json:"amount_cents" validate:"gt=0"`
}

// Pay charges a stored method. Clients retry safely by resending the same
// Idempotency-Key header.
func (pc *PortalController) Pay(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req PayRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	key := strings.Clone(c.Get("Idempotency-Key"))
	payment, err := pc.portal.Pay(c.UserContext(), userID, req.PaymentMethodID, req.AmountCents, key)
	if err != nil {
		return respondError(c, err)
	}
	middleware.LogActivity(c, "CREATE", "payments", payment.ID, fiber.Map{
		"family_id":    payment.FamilyID,
		"amount_cents": payment.AmountCents,
		"status":       payment.Status,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment": payment})
}

// Autopay

func (pc *PortalController) AutopayStatus(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	status, err := pc.portal.AutopayStatus(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"autopay": status})
}

type EnableAutopayRequest struct {
	PaymentMethodID uint `json:"payment_method_id" validate:"required"`
	DraftDay        *int `json:"draft_day" validate:"omitempty,min=1,max=28"`
	GraceDays       *int `json:"grace_days" validate:"omitempty,min=0,max=30"`
}

func (pc *PortalController) EnableAutopay(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req EnableAutopayRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	status, err := pc.portal.EnableAutopay(c.UserContext(), userID, billing.EnableAutopayInput{
		PaymentMethodID: req.PaymentMethodID,
		DraftDay:        req.DraftDay,
		GraceDays:       req.GraceDays,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"autopay": status})
}

func (pc *PortalController) DisableAutopay(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	status, err := pc.portal.DisableAutopay(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"autopay": status})
}

// Classes and enrollments

func (pc *PortalController) Classes(c *fiber.Ctx) error {
	classes, err := pc.portal.Classes(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"classes": classes})
}

func (pc *PortalController) Students(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	students, err := pc.portal.Students(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"students": students})
}

func (pc *PortalController) Enrollments(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	enrollments, err := pc.portal.Enrollments(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"enrollments": enrollments})
}

func (pc *PortalController) Enroll(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	var req EnrollRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	enrollment, err := pc.portal.Enroll(c.UserContext(), userID, req.StudentID, req.ClassID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"enrollment": enrollment})
}

// Invoices and statements

func (pc *PortalController) Invoices(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	invoices, err := pc.portal.Invoices(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoices": invoices})
}

func (pc *PortalController) Invoice(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	inv, err := pc.portal.Invoice(c.UserContext(), userID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"invoice": inv})
}

// Statement returns ?month=YYYY-MM as JSON, or as a workbook with ?format=xlsx.
// With &archive=true the workbook is also stored and its key returned in X-Archive-Key.
func (pc *PortalController) Statement(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return respondError(c, err)
	}
	month, err := queryMonth(c, pc.now())
	if err != nil {
		return respondError(c, err)
	}
	if c.Query("format") != "xlsx" {
		st, err := pc.portal.Statement(c.UserContext(), userID, month)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(st)
	}
	file, err := pc.portal.ExportStatement(c.UserContext(), userID, month, c.QueryBool("archive"))
	if err != nil {
		return respondError(c, err)
	}
	if file.ObjectKey != "" {
		c.Set("X-Archive-Key", file.ObjectKey)
	}
	return sendFile(c, file.FileName, file.ContentType, file.Content)
}
