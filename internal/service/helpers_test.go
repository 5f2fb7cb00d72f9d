package service_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/clearbill/billing-api/internal/auth"
	"github.com/clearbill/billing-api/internal/domain"
	"github.com/clearbill/billing-api/internal/mailer"
	"github.com/clearbill/billing-api/internal/repository"
	"github.com/clearbill/billing-api/internal/service"
	"github.com/clearbill/billing-api/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeRenderer returns a fixed byte blob, or fails when broken is set
type fakeRenderer struct {
	broken bool
}

func (f *fakeRenderer) RenderInvoice(*domain.Invoice) ([]byte, error) {
	if f.broken {
		return nil, errors.New("render failed")
	}
	return []byte("%PDF-1.4 invoice"), nil
}

func (f *fakeRenderer) RenderQuote(*domain.Quote) ([]byte, error) {
	if f.broken {
		return nil, errors.New("render failed")
	}
	return []byte("%PDF-1.4 quote"), nil
}

// fakeMailer records sent messages
type fakeMailer struct {
	enabled bool
	broken  bool
	sent    []mailer.Message
}

func (f *fakeMailer) Enabled() bool { return f.enabled }

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if f.broken {
		return errors.New("smtp unreachable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

// documentFixture bundles everything the invoice and quote service tests need
type documentFixture struct {
	db       *gorm.DB
	invoices *service.InvoiceService
	quotes   *service.QuoteService
	renderer *fakeRenderer
	mail     *fakeMailer
	archive  *archiveRecorder
}

// archiveRecorder implements service.DocumentArchiver
type archiveRecorder struct {
	paths []string
}

func (a *archiveRecorder) Save(_ context.Context, path string, _ string, _ io.Reader) (int64, error) {
	a.paths = append(a.paths, path)
	return 0, nil
}

func setupDocumentServices(t *testing.T) *documentFixture {
	db := testutil.SetupTestDB(t)
	log := zap.NewNop()

	invoiceRepo := repository.NewInvoiceRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	clientRepo := repository.NewClientRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	auditSvc := service.NewAuditLogService(auditRepo, log)
	numbers := service.NewDocumentNumberService(invoiceRepo, quoteRepo, log)

	renderer := &fakeRenderer{}
	mail := &fakeMailer{enabled: true}
	archive := &archiveRecorder{}

	return &documentFixture{
		db:       db,
		invoices: service.NewInvoiceService(invoiceRepo, clientRepo, userRepo, numbers, renderer, mail, archive, auditSvc, log),
		quotes:   service.NewQuoteService(quoteRepo, invoiceRepo, clientRepo, userRepo, numbers, renderer, mail, archive, auditSvc, log),
		renderer: renderer,
		mail:     mail,
		archive:  archive,
	}
}

// ctxAs builds a request context for the given user
func ctxAs(user *domain.User) context.Context {
	return auth.WithUserContext(context.Background(), &auth.UserContext{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
}

// countAuditRows counts audit entries for one action
func countAuditRows(t *testing.T, db *gorm.DB, action domain.AuditAction) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&domain.AuditLog{}).Where("action = ?", action).Count(&count).Error; err != nil {
		t.Fatalf("failed to count audit rows: %v", err)
	}
	return count
}
