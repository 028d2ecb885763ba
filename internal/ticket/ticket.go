// Package ticket renders the printable e-ticket for a confirmed booking.
package ticket

import (
	"bytes"
	"fmt"
	"strings"

	"luxe-booking/internal/models"

	"github.com/phpdave11/gofpdf"
)

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Reference is the short booking code printed on the ticket.
func Reference(b models.ConfirmedBooking) string {
	return "LX-" + strings.ToUpper(strings.ReplaceAll(b.ID.String(), "-", "")[:8])
}

func Filename(b models.ConfirmedBooking) string {
	return fmt.Sprintf("ETICKET_%s.pdf", Reference(b))
}

// Render returns an A4 PDF for b.
func Render(b models.ConfirmedBooking) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("E-Ticket "+Reference(b), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := [][2]string{
		{"Booking reference", Reference(b)},
		{"Passenger", b.FullName},
		{"Date of birth", b.DateOfBirth},
		{"Contact", b.ContactDetails},
		{"Destination", b.Destination},
		{"Departure date", b.DepartureDate},
		{"Vehicle", models.VehicleType(b.PreferredVehicle).Label()},
	}
	if b.GuardianName != "" || b.GuardianContact != "" {
		lines = append(lines,
			[2]string{"Guardian", b.GuardianName},
			[2]string{"Guardian contact", b.GuardianContact},
		)
	}
	for _, l := range lines {
		pdf.CellFormat(50, 7, tr(l[0]), "", 0, "", false, 0, "")
		pdf.CellFormat(0, 7, tr(orDash(l[1])), "", 1, "", false, 0, "")
	}

	if strings.TrimSpace(b.AllergiesOrRequests) != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 7, "Special requests")
		pdf.Ln(7)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, tr(b.AllergiesOrRequests), "", "", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please present this e-ticket to your chauffeur at departure.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render ticket: %w", err)
	}
	return buf.Bytes(), nil
}
