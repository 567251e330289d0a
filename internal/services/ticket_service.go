package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"transitpay/internal/domain"
	"transitpay/internal/domain/models"
	"transitpay/internal/utils"

	"github.com/phpdave11/gofpdf"
	"go.uber.org/zap"
)

// TicketService issues the boarding ticket for a completed payment.
type TicketService struct {
	Vehicles VehicleLookup
}

// Reference is derived from the payment id and receipt, so it needs no storage.
func (TicketService) Reference(p models.Payment) string {
	if p.Status != models.PaymentCompleted {
		return ""
	}
	if p.ReceiptNumber == "" {
		return fmt.Sprintf("TKT-%d", p.ID)
	}
	return fmt.Sprintf("TKT-%d-%s", p.ID, strings.ToUpper(p.ReceiptNumber))
}

// RenderPDF returns the e-ticket document and its file name.
func (s TicketService) RenderPDF(ctx context.Context, p models.Payment) ([]byte, string, error) {
	if p.Status != models.PaymentCompleted {
		return nil, "", domain.ValidationError{Field: "status", Msg: "ticket is only available for completed payments"}
	}

	plate := ""
	if p.VehicleID != nil && s.Vehicles != nil {
		if v, err := s.Vehicles.GetVehicle(ctx, *p.VehicleID); err == nil {
			plate = v.PlateNumber
		}
	}

	ref := s.Reference(p)
	utils.LogEvent(utils.RequestIDFrom(ctx), "ticket", "render_pdf", "e-ticket generated", zap.Int64("payment_id", p.ID), zap.String("ticket", ref))
	return buildTicketPDF(p, ref, plate)
}

func buildTicketPDF(p models.Payment, ref, plate string) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetTitle("E-Ticket "+ref, false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		"Ticket     : " + ref,
		"Receipt    : " + orDash(p.ReceiptNumber),
		"Passenger  : " + utils.MaskPhone(p.Phone),
		fmt.Sprintf("Route      : #%d", p.RouteID),
		"Vehicle    : " + orDash(plate),
		"Fare       : " + utils.FormatKES(p.Amount),
		"Paid at    : " + utils.FormatDateTime(p.UpdatedAt),
	}
	for _, l := range lines {
		pdf.Cell(0, 7, l)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Valid for one seat. Show this ticket to the driver when boarding.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), strings.ToLower(ref) + ".pdf", nil
}
