// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/your-org/milkcart-backend/internal/config"
	"github.com/your-org/milkcart-backend/internal/domain/order"
)

// Service handles PDF generation
type Service struct {
	config *config.Config
}

// NewService creates a new PDF service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
	}
}

// GenerateInvoice generates a PDF invoice for an order
func (s *Service) GenerateInvoice(ord *order.Order) (*bytes.Buffer, error) {
	data := InvoiceData{
		InvoiceNumber: fmt.Sprintf("INV-%s", ord.OrderNumber),
		InvoiceDate:   time.Now().Format("January 2, 2006"),
		Order:         ord,
		Subtotal:      formatAmount(ord.SubtotalAmount),
		Delivery:      formatAmount(ord.DeliveryCharge),
		Total:         formatAmount(ord.TotalAmount),
		Company: CompanyInfo{
			Name:    s.config.Company.Name,
			Address: s.config.Company.Address,
			Phone:   s.config.Company.Phone,
			Email:   s.config.Company.Email,
		},
	}
	for _, item := range ord.Items {
		data.Lines = append(data.Lines, InvoiceLine{
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    formatAmount(item.Price),
			Total:    formatAmount(item.TotalPrice),
			IsFree:   item.IsFree,
		})
	}

	htmlContent, err := s.generateHTML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to generate HTML: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader([]byte(htmlContent)))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	page.Zoom.Set(0.95)

	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}

	return bytes.NewBuffer(pdfg.Bytes()), nil
}

// generateHTML generates HTML content from template
func (s *Service) generateHTML(data InvoiceData) (string, error) {
	tmpl := template.Must(template.New("invoice").Parse(invoiceTemplate))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// formatAmount renders a paise amount as rupees
func formatAmount(paise int64) string {
	return fmt.Sprintf("Rs %d.%02d", paise/100, paise%100)
}

// InvoiceData represents the data passed to the invoice template
type InvoiceData struct {
	InvoiceNumber string
	InvoiceDate   string
	Order         *order.Order
	Lines         []InvoiceLine
	Subtotal      string
	Delivery      string
	Total         string
	Company       CompanyInfo
}

// InvoiceLine is one formatted invoice row
type InvoiceLine struct {
	Name     string
	Quantity int
	Price    string
	Total    string
	IsFree   bool
}

// CompanyInfo represents company information
type CompanyInfo struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; color: #222; font-size: 13px; }
  .header { display: flex; justify-content: space-between; margin-bottom: 30px; }
  .company h1 { margin: 0 0 4px 0; font-size: 22px; }
  .muted { color: #777; }
  table { width: 100%; border-collapse: collapse; margin-top: 20px; }
  th { text-align: left; border-bottom: 2px solid #333; padding: 8px 4px; }
  td { border-bottom: 1px solid #ddd; padding: 8px 4px; }
  .num { text-align: right; }
  .totals { margin-top: 16px; width: 280px; margin-left: auto; }
  .totals td { border: none; padding: 4px; }
  .grand { font-weight: bold; border-top: 2px solid #333; }
  .free { color: #2a7; }
</style>
</head>
<body>
  <div class="header">
    <div class="company">
      <h1>{{.Company.Name}}</h1>
      <div class="muted">{{.Company.Address}}</div>
      <div class="muted">{{.Company.Phone}} {{.Company.Email}}</div>
    </div>
    <div>
      <h2>Invoice {{.InvoiceNumber}}</h2>
      <div class="muted">Date: {{.InvoiceDate}}</div>
      <div class="muted">Order: {{.Order.OrderNumber}}</div>
    </div>
  </div>

  <div>
    <strong>Deliver to:</strong><br>
    {{.Order.DeliveryAddress}}<br>
    {{.Order.Phone}}
  </div>

  <table>
    <tr><th>Item</th><th class="num">Qty</th><th class="num">Unit Price</th><th class="num">Total</th></tr>
    {{range .Lines}}
    <tr>
      <td>{{.Name}}{{if .IsFree}} <span class="free">(free)</span>{{end}}</td>
      <td class="num">{{.Quantity}}</td>
      <td class="num">{{.Price}}</td>
      <td class="num">{{.Total}}</td>
    </tr>
    {{end}}
  </table>

  <table class="totals">
    <tr><td>Subtotal</td><td class="num">{{.Subtotal}}</td></tr>
    <tr><td>Delivery</td><td class="num">{{.Delivery}}</td></tr>
    <tr class="grand"><td>Total</td><td class="num">{{.Total}}</td></tr>
  </table>
</body>
</html>`
