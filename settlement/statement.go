package settlement

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// WriteStatement renders a one-page PDF settlement statement to w.
// Figures are rounded to cents.
func WriteStatement(w io.Writer, emp leave.Employee, s Settlement) error {
	r := s.Rounded()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Exit settlement %s", emp.ID), false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Exit Settlement Statement")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s (%s)", emp.Name, emp.ID))
	pdf.Ln(7)
	if emp.Email != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Email: %s", emp.Email))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Hired: %s  Exit: %s (%s)", emp.HireDate, r.ExitDate, r.ExitType))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Service: %d years, %d months", r.ServicePeriod.Years, r.ServicePeriod.Months))
	pdf.Ln(10)

	section := func(title string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, title)
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
	}
	line := func(label string, amount decimal.Decimal) {
		pdf.CellFormat(120, 7, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, amount.StringFixed(2), "", 1, "R", false, 0, "")
	}

	section("Earnings")
	line("Basic salary", r.BasicSalary)
	line(fmt.Sprintf("Severance (x%s)", r.SeveranceMultiplier.String()), r.SeverancePay)
	line("Notice pay", r.NoticePay)
	for _, l := range r.LeaveLines {
		line(fmt.Sprintf("Leave in lieu: %s (%s days)", l.Category.Label(), l.Days.StringFixed(2)), l.Amount)
	}
	line("Pension contribution", r.PensionContribution)
	line("Medical benefits", r.MedicalBenefits)
	line("Bonus proration", r.BonusProration)
	line("Overtime", r.OvertimePayment)
	line("Total gross", r.TotalGross)
	pdf.Ln(4)

	section("Deductions")
	line("Tax", r.TaxDeductions)
	line("Social security", r.SocialSecurityDeductions)
	line("Other", r.OtherDeductions)
	line("Total deductions", r.TotalDeductions)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	line("Net payable", r.NetPayable)
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Rates %s, leave policy %s", r.RatesVersion, r.PolicyVersion))

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write settlement statement: %w", err)
	}
	return nil
}
