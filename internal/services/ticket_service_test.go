package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"transitpay/internal/domain"
	"transitpay/internal/domain/models"
)

func TestTicketServiceRenderPDF(t *testing.T) {
	fleet := newMemFleet()
	fleet.addVehicle(models.Vehicle{ID: 10, RouteID: 1, PlateNumber: "KDA 010A", Capacity: 14})
	svc := TicketService{Vehicles: fleet}

	vid := int64(10)
	p := completedPayment(&vid)
	p.UpdatedAt = time.Now()

	pdf, filename, err := svc.RenderPDF(context.Background(), p)
	if err != nil {
		t.Fatalf("RenderPDF returned error: %v", err)
	}
	if len(pdf) == 0 || !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("RenderPDF returned invalid document")
	}
	if filename != "tkt-7-rcp1.pdf" {
		t.Fatalf("filename = %s", filename)
	}

	p.Status = models.PaymentPending
	if _, _, err := svc.RenderPDF(context.Background(), p); !domain.IsValidation(err) {
		t.Fatalf("pending payment should not get a ticket, got %v", err)
	}
	if ref := svc.Reference(p); ref != "" {
		t.Fatalf("pending reference = %q", ref)
	}
}
