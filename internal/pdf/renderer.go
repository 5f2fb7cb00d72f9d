package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/clearbill/billing-api/internal/domain"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

const (
	pageMargin  = 15.0
	tableTop    = 95.0
	bottomLimit = 265.0
)

// Renderer produces invoice and quote PDFs. Layout is A4 portrait with a
// repeated footer carrying the page number of total.
type Renderer struct {
	companyName    string
	companyAddress string
	companyEmail   string
}

func NewRenderer(companyName, companyAddress, companyEmail string) *Renderer {
	return &Renderer{
		companyName:    companyName,
		companyAddress: companyAddress,
		companyEmail:   companyEmail,
	}
}

// documentData is the common shape of invoices and quotes for rendering
type documentData struct {
	Title             string
	Number            string
	IssueDate         time.Time
	SecondDateLabel   string
	SecondDate        *time.Time
	ServiceStart      *time.Time
	ServiceEnd        *time.Time
	Client            *domain.Client
	User              *domain.User
	Items             []itemData
	Subtotal          decimal.Decimal
	TaxRate           decimal.Decimal
	TaxAmount         decimal.Decimal
	Total             decimal.Decimal
	GlobalDiscount    decimal.Decimal
	IsReverseCharge   bool
	ReverseChargeNote string
	Notes             string
}

type itemData struct {
	Position    int
	ProductName string
	Description string
	Quantity    decimal.Decimal
	UnitName    string
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// RenderInvoice renders an invoice as a PDF byte buffer
func (r *Renderer) RenderInvoice(invoice *domain.Invoice) ([]byte, error) {
	data := documentData{
		Title:             "Rechnung",
		Number:            invoice.Number,
		IssueDate:         invoice.IssueDate,
		SecondDateLabel:   "Zahlbar bis",
		SecondDate:        invoice.DueDate,
		ServiceStart:      invoice.ServiceStart,
		ServiceEnd:        invoice.ServiceEnd,
		Client:            invoice.Client,
		User:              invoice.User,
		Subtotal:          invoice.Subtotal,
		TaxRate:           invoice.TaxRate,
		TaxAmount:         invoice.TaxAmount,
		Total:             invoice.Total,
		GlobalDiscount:    invoice.GlobalDiscount,
		IsReverseCharge:   invoice.IsReverseCharge,
		ReverseChargeNote: invoice.ReverseChargeNote,
		Notes:             invoice.Notes,
	}
	for _, item := range invoice.Items {
		data.Items = append(data.Items, itemData{
			Position:    item.Position,
			ProductName: item.ProductName,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitName:    item.UnitName,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			Total:       item.Total,
		})
	}
	return r.render(data)
}

// RenderQuote renders a quote as a PDF byte buffer
func (r *Renderer) RenderQuote(quote *domain.Quote) ([]byte, error) {
	data := documentData{
		Title:             "Angebot",
		Number:            quote.Number,
		IssueDate:         quote.IssueDate,
		SecondDateLabel:   "Gültig bis",
		SecondDate:        quote.ValidUntil,
		ServiceStart:      quote.ServiceStart,
		ServiceEnd:        quote.ServiceEnd,
		Client:            quote.Client,
		User:              quote.User,
		Subtotal:          quote.Subtotal,
		TaxRate:           quote.TaxRate,
		TaxAmount:         quote.TaxAmount,
		Total:             quote.Total,
		GlobalDiscount:    quote.GlobalDiscount,
		IsReverseCharge:   quote.IsReverseCharge,
		ReverseChargeNote: quote.ReverseChargeNote,
		Notes:             quote.Notes,
	}
	for _, item := range quote.Items {
		data.Items = append(data.Items, itemData{
			Position:    item.Position,
			ProductName: item.ProductName,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitName:    item.UnitName,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			Total:       item.Total,
		})
	}
	return r.render(data)
}

func (r *Renderer) render(data documentData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("%s %s", data.Title, data.Number), true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, 0)
	translate := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-18)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(128, 128, 128)
		footer := fmt.Sprintf("%s %s", data.Title, data.Number)
		pdf.CellFormat(0, 5, translate(footer), "T", 1, "L", false, 0, "")
		pdf.CellFormat(0, 5, fmt.Sprintf("Seite %d von {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AliasNbPages("")

	pdf.AddPage()
	r.renderHeader(pdf, translate, data)
	y := r.renderItemTable(pdf, translate, data)
	y = r.renderTotals(pdf, translate, data, y)
	r.renderNotes(pdf, translate, data, y)

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return out.Bytes(), nil
}

func (r *Renderer) renderHeader(pdf *gofpdf.Fpdf, translate func(string) string, data documentData) {
	// Issuer block, top right
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(120, pageMargin)
	issuerName := r.companyName
	issuerLines := []string{}
	if data.User != nil {
		if data.User.Company != "" {
			issuerName = data.User.Company
		} else if data.User.Name != "" {
			issuerName = data.User.Name
		}
		if data.User.Address != "" {
			issuerLines = append(issuerLines, data.User.Address)
		}
		if data.User.PostalCode != "" || data.User.City != "" {
			issuerLines = append(issuerLines, strings.TrimSpace(data.User.PostalCode+" "+data.User.City))
		}
		if data.User.VATNumber != "" {
			issuerLines = append(issuerLines, "UID: "+data.User.VATNumber)
		}
		if data.User.Email != "" {
			issuerLines = append(issuerLines, data.User.Email)
		}
	} else {
		issuerLines = append(issuerLines, r.companyAddress, r.companyEmail)
	}
	pdf.CellFormat(75, 5, translate(issuerName), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range issuerLines {
		if line == "" {
			continue
		}
		pdf.SetX(120)
		pdf.CellFormat(75, 4.5, translate(line), "", 1, "R", false, 0, "")
	}

	// Recipient block
	pdf.SetXY(pageMargin, 45)
	pdf.SetFont("Helvetica", "B", 10)
	if data.Client != nil {
		pdf.CellFormat(90, 5, translate(data.Client.Name), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		if data.Client.Address != "" {
			for _, line := range strings.Split(data.Client.Address, "\n") {
				pdf.CellFormat(90, 4.5, translate(line), "", 1, "L", false, 0, "")
			}
		}
		if data.Client.VATNumber != "" {
			pdf.CellFormat(90, 4.5, translate("UID: "+data.Client.VATNumber), "", 1, "L", false, 0, "")
		}
	}

	// Title and metadata
	pdf.SetXY(pageMargin, 72)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 8, translate(fmt.Sprintf("%s %s", data.Title, data.Number)), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, translate("Datum: "+data.IssueDate.Format("02.01.2006")), "", 1, "L", false, 0, "")
	if data.SecondDate != nil {
		pdf.CellFormat(0, 5, translate(fmt.Sprintf("%s: %s", data.SecondDateLabel, data.SecondDate.Format("02.01.2006"))), "", 1, "L", false, 0, "")
	}
	if data.ServiceStart != nil && data.ServiceEnd != nil {
		period := fmt.Sprintf("Leistungszeitraum: %s - %s",
			data.ServiceStart.Format("02.01.2006"), data.ServiceEnd.Format("02.01.2006"))
		pdf.CellFormat(0, 5, translate(period), "", 1, "L", false, 0, "")
	}
}

var tableWidths = []float64{10, 75, 20, 15, 25, 15, 20}

func (r *Renderer) tableHeader(pdf *gofpdf.Fpdf, translate func(string) string) {
	headers := []string{"Pos", "Beschreibung", "Menge", "Einheit", "Einzelpreis", "Rabatt", "Gesamt"}
	aligns := []string{"C", "L", "R", "L", "R", "R", "R"}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(240, 240, 240)
	for i, h := range headers {
		pdf.CellFormat(tableWidths[i], 7, translate(h), "1", 0, aligns[i], true, 0, "")
	}
	pdf.Ln(-1)
}

func (r *Renderer) renderItemTable(pdf *gofpdf.Fpdf, translate func(string) string, data documentData) float64 {
	pdf.SetY(tableTop)
	r.tableHeader(pdf, translate)

	pdf.SetFont("Helvetica", "", 9)
	for _, item := range data.Items {
		// New page when the row would cross the footer area
		if pdf.GetY() > bottomLimit-10 {
			pdf.AddPage()
			pdf.SetY(pageMargin + 10)
			r.tableHeader(pdf, translate)
			pdf.SetFont("Helvetica", "", 9)
		}

		description := item.Description
		if item.ProductName != "" {
			description = item.ProductName + " - " + item.Description
		}
		if len(description) > 60 {
			description = description[:57] + "..."
		}

		discount := ""
		if !item.Discount.IsZero() {
			discount = item.Discount.StringFixed(0) + " %"
		}

		pdf.CellFormat(tableWidths[0], 6, fmt.Sprintf("%d", item.Position), "1", 0, "C", false, 0, "")
		pdf.CellFormat(tableWidths[1], 6, translate(description), "1", 0, "L", false, 0, "")
		pdf.CellFormat(tableWidths[2], 6, item.Quantity.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(tableWidths[3], 6, translate(item.UnitName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(tableWidths[4], 6, formatAmount(item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(tableWidths[5], 6, discount, "1", 0, "R", false, 0, "")
		pdf.CellFormat(tableWidths[6], 6, formatAmount(item.Total), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	return pdf.GetY() + 4
}

func (r *Renderer) renderTotals(pdf *gofpdf.Fpdf, translate func(string) string, data documentData, y float64) float64 {
	if y > bottomLimit-40 {
		pdf.AddPage()
		y = pageMargin + 10
	}

	labelX := 120.0
	row := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.SetXY(labelX, y)
		pdf.CellFormat(40, 6, translate(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, value, "", 1, "R", false, 0, "")
		y += 6
	}

	if !data.GlobalDiscount.IsZero() {
		row(fmt.Sprintf("Rabatt (%s %%)", data.GlobalDiscount.StringFixed(0)), "", false)
	}
	row("Zwischensumme", formatAmount(data.Subtotal), false)
	row(fmt.Sprintf("USt. (%s %%)", data.TaxRate.StringFixed(0)), formatAmount(data.TaxAmount), false)

	pdf.Line(labelX, y+0.5, labelX+75, y+0.5)
	y += 1.5
	row("Gesamtbetrag", formatAmount(data.Total), true)

	return y + 6
}

func (r *Renderer) renderNotes(pdf *gofpdf.Fpdf, translate func(string) string, data documentData, y float64) {
	write := func(text string, size float64, style string) {
		if text == "" {
			return
		}
		if y > bottomLimit-20 {
			pdf.AddPage()
			y = pageMargin + 10
		}
		pdf.SetXY(pageMargin, y)
		pdf.SetFont("Helvetica", style, size)
		pdf.MultiCell(0, 4.5, translate(text), "", "L", false)
		y = pdf.GetY() + 4
	}

	if data.IsReverseCharge && data.ReverseChargeNote != "" {
		write(data.ReverseChargeNote, 8, "I")
	}
	write(data.Notes, 9, "")
}

func formatAmount(d decimal.Decimal) string {
	// Austrian number format: 1.234,56 EUR
	s := d.StringFixed(2)
	s = strings.ReplaceAll(s, ".", ",")
	intPart := s[:strings.Index(s, ",")]
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	var b strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteRune('.')
		}
		b.WriteRune(ch)
	}
	out := b.String() + s[strings.Index(s, ","):]
	if neg {
		out = "-" + out
	}
	return out + " EUR"
}
