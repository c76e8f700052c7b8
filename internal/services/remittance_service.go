package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ruralpay/remittance/internal/audit"
	"github.com/ruralpay/remittance/internal/config"
	"github.com/ruralpay/remittance/internal/idgen"
	"github.com/ruralpay/remittance/internal/models"
	"github.com/ruralpay/remittance/internal/notify"
	"github.com/ruralpay/remittance/internal/repository"
	"github.com/ruralpay/remittance/internal/settlement"
	"github.com/ruralpay/remittance/internal/token"
)

// maxCodeAttempts bounds secret-code regeneration when a code is already live in the tenant.
const maxCodeAttempts = 5

// Deps are the collaborators of the remittance core. Settlement and History are optional.
type Deps struct {
	Store      repository.RemittanceStore
	Ledger     LedgerPort
	Rates      RateProvider
	Codec      TokenCodec
	Audit      audit.Sink
	History    AuditHistory
	Notifier   Notifier
	Settlement SettlementPublisher
	Clock      idgen.Clock
	Log        zerolog.Logger
	Config     config.RemittanceConfig
}

// CreateInput is a request to send money from one branch to another.
type CreateInput struct {
	SenderBranchID   string                `json:"senderBranchId" validate:"required,max=64"`
	ReceiverBranchID string                `json:"receiverBranchId" validate:"required,max=64"`
	Type             models.RemittanceType `json:"type" validate:"required,oneof=INTER_BRANCH INTERNATIONAL DOMESTIC CRYPTO"`
	SenderID         string                `json:"senderId" validate:"required,max=64"`
	SenderContact    string                `json:"senderContact,omitempty" validate:"max=64"`
	ReceiverInfo     models.ReceiverInfo   `json:"receiverInfo"`
	FromCurrency     string                `json:"fromCurrency" validate:"required,len=3,alpha"`
	ToCurrency       string                `json:"toCurrency" validate:"required,len=3,alpha"`
	Amount           decimal.Decimal       `json:"amount"`
	ExpiresAt        *time.Time            `json:"expiresAt,omitempty"`
	Notes            string                `json:"notes,omitempty" validate:"max=500"`
	IncludeQR        bool                  `json:"includeQr,omitempty"`
}

// CreateResult carries the claim credentials, which are only ever returned here.
type CreateResult struct {
	Remittance *models.Remittance `json:"remittance"`
	SecretCode string             `json:"secretCode"`
	QRToken    string             `json:"qrToken"`
	QRImage    []byte             `json:"qrImage,omitempty"`
}

// RemittanceService is the public contract of the remittance core. Every call
// is scoped to the tenant of the caller carried by ctx.
type RemittanceService struct {
	store      repository.RemittanceStore
	ledger     LedgerPort
	rates      RateProvider
	codec      TokenCodec
	history    AuditHistory
	clock      idgen.Clock
	log        zerolog.Logger
	cfg        config.RemittanceConfig
	validator  *ValidationHelper

	approvals  *ApprovalEngine
	redemption *RedemptionEngine
	holds      *holdKeeper
	journal    *journal

	supervisors map[string]bool
}

func NewRemittanceService(deps Deps) (*RemittanceService, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("remittance store is required")
	case deps.Ledger == nil:
		return nil, errors.New("ledger is required")
	case deps.Rates == nil:
		return nil, errors.New("rate provider is required")
	case deps.Codec == nil:
		return nil, errors.New("token codec is required")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogSink(deps.Log)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = idgen.SystemClock{}
	}

	log := deps.Log.With().Str("component", "remittance").Logger()
	j := &journal{
		audit:         deps.Audit,
		notifier:      deps.Notifier,
		notifyTimeout: deps.Config.NotifyTimeout,
		log:           log,
	}
	if j.notifyTimeout <= 0 {
		j.notifyTimeout = 2 * time.Second
	}

	retries := deps.Config.RedeemMaxRetries
	if retries < 1 {
		retries = 3
	}
	preApproval := make(map[models.RemittanceType]bool, len(deps.Config.PreApprovalRedeemTypes))
	for _, t := range deps.Config.PreApprovalRedeemTypes {
		preApproval[t] = true
	}

	s := &RemittanceService{
		store:      deps.Store,
		ledger:     deps.Ledger,
		rates:      deps.Rates,
		codec:      deps.Codec,
		history:    deps.History,
		clock:      deps.Clock,
		log:        log,
		cfg:        deps.Config,
		validator:  NewValidationHelper(),
		approvals:  NewApprovalEngine(deps.Config.ApprovalPolicy),
		journal:    j,
	}
	if len(deps.Config.SupervisorRoles) > 0 {
		s.supervisors = make(map[string]bool, len(deps.Config.SupervisorRoles))
		for _, role := range deps.Config.SupervisorRoles {
			s.supervisors[strings.ToLower(role)] = true
		}
	}
	s.holds = &holdKeeper{
		store:      deps.Store,
		ledger:     deps.Ledger,
		journal:    j,
		settlement: deps.Settlement,
		clock:      deps.Clock,
		log:        log,
	}
	s.redemption = &RedemptionEngine{
		store:       deps.Store,
		codec:       deps.Codec,
		holds:       s.holds,
		journal:     j,
		clock:       deps.Clock,
		log:         log.With().Str("engine", "redemption").Logger(),
		maxRetries:  retries,
		preApproval: preApproval,
	}
	return s, nil
}

// Reaper returns an expiry reaper sharing this service's collaborators.
func (s *RemittanceService) Reaper() *ExpiryReaper {
	tick := s.cfg.ReaperTick
	if tick <= 0 {
		tick = time.Minute
	}
	batch := s.cfg.ReaperBatch
	if batch <= 0 {
		batch = 256
	}
	perTenant := s.cfg.ReaperPerTenant
	if perTenant <= 0 {
		perTenant = batch
	}
	grace := s.cfg.DebitClaimGrace
	if grace <= 0 {
		grace = time.Minute
	}
	return &ExpiryReaper{
		store:     s.store,
		holds:     s.holds,
		journal:   s.journal,
		clock:     s.clock,
		log:       s.log.With().Str("engine", "reaper").Logger(),
		tick:      tick,
		jitter:    s.cfg.ReaperJitter,
		batch:     batch,
		perTenant: perTenant,
		grace:     grace,
	}
}

// Drain waits for notifications still in flight.
func (s *RemittanceService) Drain() {
	s.journal.wait()
}

// Create validates and prices the request, freezes the sender's funds and
// persists a PENDING remittance with fresh claim credentials.
func (s *RemittanceService) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	caller, err := models.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	in.FromCurrency = strings.ToUpper(in.FromCurrency)
	in.ToCurrency = strings.ToUpper(in.ToCurrency)
	in.ReceiverInfo.Name = strings.TrimSpace(in.ReceiverInfo.Name)

	if err := s.validator.Validate(&in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, models.NewError(models.KindValidation, "amount must be greater than zero")
	}
	if caller.BranchID != "" && caller.BranchID != in.SenderBranchID {
		return nil, models.NewError(models.KindUnauthorized, "caller branch %s cannot send from branch %s", caller.BranchID, in.SenderBranchID)
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.TokenTTL)
	if in.ExpiresAt != nil {
		expiresAt = in.ExpiresAt.UTC()
	}
	if !expiresAt.After(now) {
		return nil, models.NewError(models.KindValidation, "expiresAt must be in the future")
	}

	rate, err := s.rates.CurrentRate(ctx, caller.TenantID, in.FromCurrency, in.ToCurrency)
	if err != nil {
		if models.KindOf(err) == models.KindInternal {
			return nil, models.WrapError(models.KindRateUnavailable, err, "load exchange rate")
		}
		return nil, err
	}
	if err := rate.Validate(in.Amount); err != nil {
		return nil, err
	}
	conv := rate.Convert(in.Amount, models.SideBuy)

	handle, err := s.ledger.Freeze(ctx, caller.TenantID, in.SenderID, in.FromCurrency, in.Amount)
	if err != nil {
		return nil, ledgerError(err, "freeze sender funds")
	}

	r := &models.Remittance{
		RemittanceID:     idgen.NewRemittanceID(),
		TenantID:         caller.TenantID,
		SenderBranchID:   in.SenderBranchID,
		ReceiverBranchID: in.ReceiverBranchID,
		Type:             in.Type,
		Status:           models.StatusPending,
		SenderID:         in.SenderID,
		SenderContact:    in.SenderContact,
		ReceiverInfo:     in.ReceiverInfo,
		FromCurrency:     in.FromCurrency,
		ToCurrency:       in.ToCurrency,
		Amount:           in.Amount,
		ExchangeRate:     conv.Rate,
		ConvertedAmount:  conv.ConvertedAmount,
		Commission:       conv.Commission,
		TotalAmount:      conv.TotalCost,
		FreezeHandle:     handle,
		HoldState:        models.HoldHeld,
		ExpiresAt:        expiresAt,
		Approvals:        s.approvals.NewApprovals(in.Type),
		StatusHistory: models.StatusHistory{{
			Status:  models.StatusPending,
			At:      now,
			ActorID: caller.UserID,
			Note:    "created",
		}},
		Notes:     in.Notes,
		CreatedBy: caller.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.insertWithFreshCode(ctx, r); err != nil {
		if uerr := s.ledger.Unfreeze(context.WithoutCancel(ctx), handle); uerr != nil {
			s.log.Error().Err(uerr).Str("hold", string(handle)).Msg("failed to release hold after aborted create")
		}
		return nil, err
	}

	s.journal.record(ctx, r, audit.EventCreated, caller.UserID, now, map[string]string{
		"amount":          r.Amount.String(),
		"currency":        r.FromCurrency,
		"receiver_branch": r.ReceiverBranchID,
	})
	s.journal.notify(ctx, r, notify.TemplateCreated, r.ReceiverInfo.Contact, map[string]string{
		"code":      r.SecretCode,
		"amount":    r.ConvertedAmount.String(),
		"currency":  r.ToCurrency,
		"expiresAt": r.ExpiresAt.Format(time.RFC3339),
	}, now)

	s.log.Info().
		Str("remittance_id", r.RemittanceID).
		Str("tenant_id", r.TenantID).
		Str("code", idgen.MaskCode(r.SecretCode)).
		Msg("remittance created")

	result := &CreateResult{Remittance: r, SecretCode: r.SecretCode, QRToken: r.QRToken}
	if in.IncludeQR {
		png, err := token.RenderQR(r.QRToken, s.cfg.QRSize)
		if err != nil {
			s.log.Warn().Err(err).Str("remittance_id", r.RemittanceID).Msg("failed to render QR image")
		} else {
			result.QRImage = png
		}
	}
	return result, nil
}

func (s *RemittanceService) insertWithFreshCode(ctx context.Context, r *models.Remittance) error {
	for attempt := 1; ; attempt++ {
		code, err := idgen.NewSecretCode()
		if err != nil {
			return models.WrapError(models.KindInternal, err, "generate secret code")
		}
		signed, err := s.codec.Sign(token.Payload{
			RemittanceID: r.RemittanceID,
			SecretCode:   code,
			ExpiresAt:    r.ExpiresAt,
		})
		if err != nil {
			return err
		}
		r.SecretCode = code
		r.QRToken = signed

		err = s.store.Insert(ctx, r)
		if err == nil || !errors.Is(err, models.ErrDuplicateCode) || attempt == maxCodeAttempts {
			return err
		}
		s.log.Warn().Int("attempt", attempt).Msg("secret code collision, regenerating")
	}
}

// Approve signs one approval level. Completing the chain moves the remittance to APPROVED.
func (s *RemittanceService) Approve(ctx context.Context, id string, level int, notes string) (*models.Remittance, error) {
	r, caller, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.supervise(caller, "approve"); err != nil {
		return nil, err
	}
	if err := writable(r); err != nil {
		return nil, err
	}

	expected := r.Version
	prev := len(r.StatusHistory)
	now := s.clock.Now()
	completed, err := s.approvals.AddApproval(r, level, caller.UserID, notes, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, r, expected); err != nil {
		return nil, err
	}

	s.journal.record(ctx, r, audit.EventApproval, caller.UserID, now, map[string]string{
		"level":    strconv.Itoa(level),
		"complete": strconv.FormatBool(completed),
	})
	s.journal.transitions(ctx, r, prev)
	return r, nil
}

// Process starts processing an APPROVED remittance.
func (s *RemittanceService) Process(ctx context.Context, id string) (*models.Remittance, error) {
	return s.advance(ctx, id, models.StatusProcessing, "processing started", nil)
}

// ConfirmReceipt records the handoff at the destination branch.
func (s *RemittanceService) ConfirmReceipt(ctx context.Context, id string) (*models.Remittance, error) {
	return s.advance(ctx, id, models.StatusReceived, "received at destination branch", func(caller models.Caller, r *models.Remittance) error {
		if caller.BranchID != "" && caller.BranchID != r.ReceiverBranchID {
			return models.NewError(models.KindUnauthorized, "caller branch %s is not the receiving branch", caller.BranchID)
		}
		return nil
	})
}

func (s *RemittanceService) advance(ctx context.Context, id string, to models.Status, note string, guard func(models.Caller, *models.Remittance) error) (*models.Remittance, error) {
	r, caller, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(caller, r); err != nil {
			return nil, err
		}
	}
	if err := writable(r); err != nil {
		return nil, err
	}

	expected := r.Version
	prev := len(r.StatusHistory)
	if err := r.Transition(to, s.clock.Now(), caller.UserID, note); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, r, expected); err != nil {
		return nil, err
	}
	s.journal.transitions(ctx, r, prev)
	return r, nil
}

// Complete debits the sender and completes a PROCESSING remittance. When the
// ledger no longer knows the hold the remittance is failed.
func (s *RemittanceService) Complete(ctx context.Context, id string) (*models.Remittance, error) {
	r, caller, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := writable(r); err != nil {
		return nil, err
	}
	if r.Status != models.StatusProcessing {
		return nil, models.NewError(models.KindInvalidStatus, "remittance is %s, completion needs %s", r.Status, models.StatusProcessing)
	}

	prev := len(r.StatusHistory)
	err = s.holds.debit(ctx, r, "", func(r *models.Remittance, now time.Time) error {
		return completeTransitions(r, caller.UserID, now)
	})

	var de *debitError
	var ue *unsettledError
	switch {
	case err == nil:
	case errors.As(err, &de):
		if errors.Is(de.err, models.ErrUnknownHandle) && r.HoldState == models.HoldHeld {
			if ferr := s.holds.terminate(context.WithoutCancel(ctx), r, models.StatusFailed, caller.UserID, "ledger hold unknown"); ferr != nil {
				s.log.Error().Err(ferr).Str("remittance_id", r.RemittanceID).Msg("failed to fail remittance with unknown hold")
			}
		}
		return nil, ledgerError(de.err, "debit sender")
	case errors.As(err, &ue):
		return nil, ue.public()
	default:
		return nil, err
	}

	s.holds.settled(ctx, r, prev, caller.UserID)
	return r, nil
}

// Cancel cancels a PENDING or APPROVED remittance and releases the sender's funds.
func (s *RemittanceService) Cancel(ctx context.Context, id, reason string) (*models.Remittance, error) {
	r, caller, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "cancelled"
	}
	if err := s.holds.terminate(ctx, r, models.StatusCancelled, caller.UserID, reason); err != nil {
		return nil, err
	}

	s.journal.notify(ctx, r, notify.TemplateCancelled, r.SenderContact, map[string]string{
		"amount":   r.Amount.String(),
		"currency": r.FromCurrency,
		"reason":   reason,
	}, r.UpdatedAt)
	return r, nil
}

// Fail moves any active remittance to FAILED and releases the sender's funds.
func (s *RemittanceService) Fail(ctx context.Context, id, reason string) (*models.Remittance, error) {
	r, caller, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.supervise(caller, "fail"); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "failed"
	}
	if err := s.holds.terminate(ctx, r, models.StatusFailed, caller.UserID, reason); err != nil {
		return nil, err
	}
	return r, nil
}

// supervise allows only the configured supervisor roles through.
func (s *RemittanceService) supervise(caller models.Caller, action string) error {
	if s.supervisors == nil || s.supervisors[strings.ToLower(caller.Role)] {
		return nil
	}
	return models.NewError(models.KindUnauthorized, "role %q may not %s remittances", caller.Role, action)
}

// Redeem consumes a claim token or secret code at the destination branch.
func (s *RemittanceService) Redeem(ctx context.Context, req RedeemRequest) (*models.Remittance, error) {
	caller, err := models.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	req.TokenOrCode = strings.TrimSpace(req.TokenOrCode)
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}
	return s.redemption.Redeem(ctx, caller, req)
}

func (s *RemittanceService) Get(ctx context.Context, id string) (*models.Remittance, error) {
	r, _, err := s.load(ctx, id)
	return r, err
}

func (s *RemittanceService) List(ctx context.Context, filter models.ListFilter, page, size int) (*models.Page, error) {
	caller, err := models.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.List(ctx, caller.TenantID, filter, page, size)
}

func (s *RemittanceService) Stats(ctx context.Context, filter models.ListFilter) (*models.Stats, error) {
	caller, err := models.CallerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Stats(ctx, caller.TenantID, filter)
}

// QR renders the claim token of an active remittance as a PNG.
func (s *RemittanceService) QR(ctx context.Context, id string) ([]byte, error) {
	r, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Status.IsActive() {
		return nil, models.NewError(models.KindInvalidStatus, "remittance is %s, its claim is no longer valid", r.Status)
	}
	png, err := token.RenderQR(r.QRToken, s.cfg.QRSize)
	if err != nil {
		return nil, models.WrapError(models.KindInternal, err, "render QR")
	}
	return png, nil
}

// SettlementAdvice returns the pacs.008 document of a completed remittance.
func (s *RemittanceService) SettlementAdvice(ctx context.Context, id string) (string, error) {
	r, _, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	if r.Status != models.StatusCompleted {
		return "", models.NewError(models.KindInvalidStatus, "remittance is %s, settlement needs %s", r.Status, models.StatusCompleted)
	}
	doc, err := settlement.ToXML(settlement.BuildAdvice(r, r.UpdatedAt))
	if err != nil {
		return "", models.WrapError(models.KindInternal, err, "render settlement advice")
	}
	return doc, nil
}

// Events returns the audit trail of a remittance.
func (s *RemittanceService) Events(ctx context.Context, id string) ([]audit.Event, error) {
	r, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, models.NewError(models.KindInternal, "audit history is not available")
	}
	return s.history.History(ctx, r.TenantID, r.RemittanceID)
}

// load reads a remittance in the caller's tenant.
func (s *RemittanceService) load(ctx context.Context, id string) (*models.Remittance, models.Caller, error) {
	caller, err := models.CallerFromContext(ctx)
	if err != nil {
		return nil, models.Caller{}, err
	}
	if id == "" {
		return nil, caller, models.NewError(models.KindValidation, "remittance id is required")
	}

	r, err := s.store.Load(ctx, caller.TenantID, id)
	if err != nil {
		return nil, caller, err
	}
	if r.TenantID != caller.TenantID {
		return nil, caller, models.NewError(models.KindTenantMismatch, "remittance %s belongs to another tenant", id)
	}
	return r, caller, nil
}
