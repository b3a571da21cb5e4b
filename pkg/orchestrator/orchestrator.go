// Package orchestrator implements the ticket state machine (§4.1): given one
// ticket, it advances it by at most one observable step and returns a
// Processing Result. Every step must be safe to repeat — the ticket's
// comments and status are the only persisted state.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"useruploadagent/pkg/agenterr"
	"useruploadagent/pkg/aiadapter"
	"useruploadagent/pkg/approval"
	"useruploadagent/pkg/backend"
	"useruploadagent/pkg/fingerprint"
	"useruploadagent/pkg/journal"
	"useruploadagent/pkg/logx"
	"useruploadagent/pkg/metrics"
	"useruploadagent/pkg/model"
	"useruploadagent/pkg/normalizer"
	"useruploadagent/pkg/parser"
	"useruploadagent/pkg/teamsplit"
	"useruploadagent/pkg/tenant"
	"useruploadagent/pkg/tracker"
	"useruploadagent/pkg/validator"
	"useruploadagent/pkg/vault"
)

// ApprovalPolicy decides whether a dataset requires human approval before
// backend creation. Default is RequireApprovalIfNonEmpty (SPEC_FULL.md Open
// Question decision 1); the interface is left open for a row-count threshold.
type ApprovalPolicy func(rows []model.UserRow) bool

// RequireApprovalIfNonEmpty is the default policy: any dataset with at least
// one valid row requires approval.
func RequireApprovalIfNonEmpty(rows []model.UserRow) bool {
	for _, r := range rows {
		if r.Valid() {
			return true
		}
	}
	return false
}

// Config carries the orchestrator's wiring: tenant domain, bot identity, and
// operational limits (§6).
type Config struct {
	TrackerDomain      string
	BotAccountID       string
	BotAccountName     string
	AttachmentMaxBytes int64
	VaultEmailTemplate string // one %s verb for the tenant, e.g. "customersolutions+%s@example.com"
}

// Orchestrator composes every pipeline component behind the §4.1 state
// machine. AI may be nil (deterministic-only fallbacks apply throughout).
type Orchestrator struct {
	Tracker  tracker.Client
	AI       aiadapter.Client
	Vault    *vault.Store
	Backend  backend.Client
	Policy   ApprovalPolicy
	Config   Config
	Logger   *logx.Logger
	Now      func() time.Time

	// Journal, if set, records one entry per ProcessTicket pass for
	// --watch mode visibility. It is never consulted for correctness.
	Journal *journal.Journal

	// Metrics, if set, records Prometheus counters/histograms for the pass.
	Metrics *metrics.Recorder
}

// New builds an Orchestrator with the default approval policy and a logx
// component logger, mirroring the teacher's constructor style.
func New(trk tracker.Client, ai aiadapter.Client, vs *vault.Store, be backend.Client, cfg Config) *Orchestrator {
	return &Orchestrator{
		Tracker: trk,
		AI:      ai,
		Vault:   vs,
		Backend: be,
		Policy:  RequireApprovalIfNonEmpty,
		Config:  cfg,
		Logger:  logx.New("orchestrator"),
		Now:     time.Now,
	}
}

// ProcessTicket advances ticket by one observable step (§4.1).
func (o *Orchestrator) ProcessTicket(ctx context.Context, t *model.Ticket) (model.ProcessingResult, error) {
	log := o.Logger.With(t.Key)

	var result model.ProcessingResult
	var err error
	switch t.Status {
	case model.StatusOpen:
		result, err = o.processOpen(ctx, t, log)
	case model.StatusReview:
		result, err = o.processReview(ctx, t, log)
	default:
		log.Debug("ticket in terminal/unhandled status %q, skipping", t.Status)
		result, err = model.ProcessingResult{TicketKey: t.Key, Status: model.ResultSkipped, NextState: t.Status}, nil
	}

	if o.Journal != nil {
		if jErr := o.Journal.Record(ctx, result, o.now()); jErr != nil {
			log.Warn("failed to record run journal entry: %v", jErr)
		}
	}
	if o.Metrics != nil {
		o.Metrics.ObserveTicket(string(result.Status))
	}
	return result, err
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Orchestrator) observeVaultLookup(outcome string) {
	if o.Metrics != nil {
		o.Metrics.ObserveVaultLookup(outcome)
	}
}

func (o *Orchestrator) observeApprovalVerdict(verdict string) {
	if o.Metrics != nil {
		o.Metrics.ObserveApprovalVerdict(verdict)
	}
}

func (o *Orchestrator) observeBackendCreate(outcome string, d time.Duration) {
	if o.Metrics != nil {
		o.Metrics.ObserveBackendCreate(outcome, d)
	}
}

func (o *Orchestrator) processOpen(ctx context.Context, t *model.Ticket, log *logx.Logger) (model.ProcessingResult, error) {
	if o.AI != nil {
		intent, err := o.AI.ClassifyIntent(ctx, t.Summary, t.Description)
		if err != nil {
			log.Warn("intent classification failed, skipping this pass: %v", err)
			return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultSkipped, NextState: t.Status}, nil
		}
		if !intent.IsUserUpload {
			return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultSkipped, NextState: t.Status}, nil
		}
	}

	tenantID, ok := tenant.Extract(t.Text(), o.Config.TrackerDomain)
	if !ok {
		if err := o.commentAndTransition(ctx, t, "No tenant identifier found in this ticket. Please include one (e.g. \"tenant: acme\").", model.StatusInfoRequired); err != nil {
			return model.ProcessingResult{}, err
		}
		return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultPending, NextState: model.StatusInfoRequired}, nil
	}

	cred, err := o.Vault.Get(ctx, tenantID)
	if err != nil {
		var agErr *agenterr.Error
		if agenterr.As(err, &agErr) && agErr.Kind == agenterr.KindVaultUnavailable {
			o.observeVaultLookup("unavailable")
			return model.ProcessingResult{}, err // fatal: halts the whole run (§4.1, §7)
		}
		return model.ProcessingResult{}, err
	}
	if !cred.Found {
		o.observeVaultLookup("not_found")
		msg := fmt.Sprintf("No credential on file for tenant %q. Please provision a service account and vault entry, then reopen this ticket.", tenantID)
		if err := o.commentAndTransition(ctx, t, msg, model.StatusInfoRequired); err != nil {
			return model.ProcessingResult{}, err
		}
		return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultPending, NextState: model.StatusInfoRequired}, nil
	}
	o.observeVaultLookup("found")

	return o.buildProposal(ctx, t, tenantID, log)
}

// buildProposal runs Parser→Normalizer→Validator→Fingerprinter over the
// ticket's attachments and either posts an approval marker (moving to
// Review) or, when the policy says approval isn't required, proceeds
// straight to creation (§4.1 Open step 7).
func (o *Orchestrator) buildProposal(ctx context.Context, t *model.Ticket, tenantID string, log *logx.Logger) (model.ProcessingResult, error) {
	maxBytes := o.Config.AttachmentMaxBytes
	if maxBytes == 0 {
		maxBytes = parser.DefaultMaxAttachmentBytes
	}

	var allRows []model.UserRow
	var fingerprints []model.Fingerprint
	var splitNotice string
	parsedAny := false

	for _, att := range t.Attachments {
		content, err := o.Tracker.DownloadAttachment(ctx, att)
		if err != nil {
			log.Warn("could not download attachment %q: %v", att.Filename, err)
			continue
		}

		result, err := parser.Parse(ctx, o.AI, att.Filename, content, maxBytes)
		if err != nil {
			log.Warn("could not parse attachment %q: %v", att.Filename, err)
			continue
		}

		norm := normalizer.Normalize(ctx, o.AI, result.Headers)
		if norm.SchemaInvalid() {
			log.Warn("attachment %q missing required fields: %v", att.Filename, norm.Missing)
			continue
		}

		canonicalRows := make([]map[string]string, len(result.Rows))
		for i, row := range result.Rows {
			canonical := make(map[string]string, len(norm.Mapping))
			for raw, value := range row {
				if field, ok := norm.Mapping[raw]; ok {
					canonical[field] = value
				}
			}
			canonicalRows[i] = canonical
		}

		report := validator.Validate(canonicalRows, result.RowNumbers)
		if report.Valid == 0 {
			log.Warn("attachment %q: %v", att.Filename, agenterr.NewValidationFailed(report.ErrorHistogram))
		}
		if report.TeamSplitOccurred {
			splitNotice = teamsplit.Notice(report.TeamSeparator)
		}
		allRows = append(allRows, report.Rows...)
		fingerprints = append(fingerprints, fingerprint.Of(att.Filename, content))
		parsedAny = true
	}

	if !parsedAny {
		if err := o.commentAndTransition(ctx, t, "No attachment could be parsed into a valid user dataset. Please attach a CSV or XLSX file with the expected columns.", model.StatusInfoRequired); err != nil {
			return model.ProcessingResult{}, err
		}
		return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultPending, NextState: model.StatusInfoRequired}, nil
	}

	if o.Policy(allRows) {
		validRows := make([]model.UserRow, 0, len(allRows))
		for _, r := range allRows {
			if r.Valid() {
				validRows = append(validRows, r)
			}
		}
		return o.postApprovalRequest(ctx, t, tenantID, validRows, fingerprints, splitNotice)
	}

	return o.createFromApprovedDataset(ctx, t, tenantID, allRows, log)
}

func (o *Orchestrator) postApprovalRequest(ctx context.Context, t *model.Ticket, tenantID string, rows []model.UserRow, fingerprints []model.Fingerprint, splitNotice string) (model.ProcessingResult, error) {
	approvalCtx := approval.BuildContext(t.Key, tenantID, rows, fingerprints, splitNotice, o.Now())
	body := approval.Render(approvalCtx)

	if _, err := o.Tracker.AddComment(ctx, t.Key, body); err != nil {
		return model.ProcessingResult{}, err
	}

	csvBytes, err := approval.GenerateCSV(rows)
	if err != nil {
		return model.ProcessingResult{}, err
	}
	if err := o.Tracker.UploadAttachment(ctx, t.Key, approval.GenerateCSVFilename(), csvBytes); err != nil {
		return model.ProcessingResult{}, err
	}
	if err := o.Tracker.Transition(ctx, t.Key, model.StatusReview, ""); err != nil {
		return model.ProcessingResult{}, err
	}

	return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultPending, NextState: model.StatusReview}, nil
}

func (o *Orchestrator) processReview(ctx context.Context, t *model.Ticket, log *logx.Logger) (model.ProcessingResult, error) {
	var current []model.Fingerprint
	for _, att := range t.Attachments {
		content, err := o.Tracker.DownloadAttachment(ctx, att)
		if err != nil {
			log.Warn("could not download attachment %q for fingerprinting: %v", att.Filename, err)
			continue
		}
		current = append(current, fingerprint.Of(att.Filename, content))
	}

	verdict, _, marker := approval.Evaluate(t.Comments, current)
	o.observeApprovalVerdict(string(verdict))

	switch verdict {
	case model.VerdictPending:
		return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultPending, NextState: model.StatusReview}, nil

	case model.VerdictNoRequest:
		tenantID, ok := tenant.Extract(t.Text(), o.Config.TrackerDomain)
		if !ok {
			if err := o.commentAndTransition(ctx, t, "No tenant identifier found in this ticket. Please include one (e.g. \"tenant: acme\").", model.StatusInfoRequired); err != nil {
				return model.ProcessingResult{}, err
			}
			return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultPending, NextState: model.StatusInfoRequired}, nil
		}
		return o.buildProposal(ctx, t, tenantID, log)

	case model.VerdictInvalidated:
		tenantID, _ := tenant.Extract(t.Text(), o.Config.TrackerDomain)
		// Re-run the pipeline to produce a fresh marker pinned to the current
		// attachments rather than trying to patch the stale one.
		return o.buildProposal(ctx, t, tenantID, log)

	case model.VerdictApproved:
		tenantID := marker.Tenant
		return o.createFromMarker(ctx, t, tenantID, marker, log)

	default:
		return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultFailed, NextState: t.Status}, fmt.Errorf("unrecognized approval verdict %q", verdict)
	}
}

// createFromMarker re-derives the validated rows from the ticket's current
// attachments (the marker only pins fingerprints, not row content) and
// drives backend creation (§4.1 Review step 5).
func (o *Orchestrator) createFromMarker(ctx context.Context, t *model.Ticket, tenantID string, marker approval.Marker, log *logx.Logger) (model.ProcessingResult, error) {
	maxBytes := o.Config.AttachmentMaxBytes
	if maxBytes == 0 {
		maxBytes = parser.DefaultMaxAttachmentBytes
	}

	var allRows []model.UserRow
	for _, att := range t.Attachments {
		content, err := o.Tracker.DownloadAttachment(ctx, att)
		if err != nil {
			continue
		}
		result, err := parser.Parse(ctx, o.AI, att.Filename, content, maxBytes)
		if err != nil {
			continue
		}
		norm := normalizer.Normalize(ctx, o.AI, result.Headers)
		if norm.SchemaInvalid() {
			continue
		}
		canonicalRows := make([]map[string]string, len(result.Rows))
		for i, row := range result.Rows {
			canonical := make(map[string]string, len(norm.Mapping))
			for raw, value := range row {
				if field, ok := norm.Mapping[raw]; ok {
					canonical[field] = value
				}
			}
			canonicalRows[i] = canonical
		}
		report := validator.Validate(canonicalRows, result.RowNumbers)
		if report.Valid == 0 {
			log.Warn("attachment %q: %v", att.Filename, agenterr.NewValidationFailed(report.ErrorHistogram))
		}
		allRows = append(allRows, report.Rows...)
	}

	return o.createFromApprovedDataset(ctx, t, tenantID, allRows, log)
}

// createFromApprovedDataset re-acquires the tenant credential and drives
// idempotent backend creation (§4.1 Review step 5, §4.9).
func (o *Orchestrator) createFromApprovedDataset(ctx context.Context, t *model.Ticket, tenantID string, rows []model.UserRow, log *logx.Logger) (model.ProcessingResult, error) {
	cred, err := o.Vault.Get(ctx, tenantID)
	if err != nil {
		var agErr *agenterr.Error
		if agenterr.As(err, &agErr) && agErr.Kind == agenterr.KindVaultUnavailable {
			o.observeVaultLookup("unavailable")
			return model.ProcessingResult{}, err
		}
		return model.ProcessingResult{}, err
	}
	if !cred.Found {
		o.observeVaultLookup("not_found")
		msg := fmt.Sprintf("Credential for tenant %q is no longer on file. Please re-provision and reopen this ticket.", tenantID)
		if err := o.commentAndTransition(ctx, t, msg, model.StatusInfoRequired); err != nil {
			return model.ProcessingResult{}, err
		}
		return model.ProcessingResult{TicketKey: t.Key, Status: model.ResultPending, NextState: model.StatusInfoRequired}, nil
	}
	o.observeVaultLookup("found")

	email := vaultEmail(o.Config.VaultEmailTemplate, tenantID)
	session, err := o.Backend.Login(ctx, email, cred.Password)
	if err != nil {
		return model.ProcessingResult{}, agenterr.NewBackendFailure(1)
	}

	validRows := make([]model.UserRow, 0, len(rows))
	for _, r := range rows {
		if r.Valid() {
			validRows = append(validRows, r)
		}
	}

	reconcileStart := o.now()
	createdUsers, existingUsers, createdTeams, failures := backend.Reconcile(ctx, o.Backend, session, validRows)
	reconcileDuration := o.now().Sub(reconcileStart)

	result := model.ProcessingResult{
		TicketKey:     t.Key,
		CreatedUsers:  createdUsers,
		ExistingUsers: existingUsers,
		CreatedTeams:  createdTeams,
		Failures:      failures,
	}

	if len(failures) == 0 {
		msg := fmt.Sprintf("Created %d user(s) and %d team(s) for tenant %q.", len(createdUsers), len(createdTeams), tenantID)
		if err := o.commentAndTransition(ctx, t, msg, model.StatusDone); err != nil {
			return model.ProcessingResult{}, err
		}
		result.Status = model.ResultSuccess
		result.NextState = model.StatusDone
		result.Message = msg
		o.observeBackendCreate("success", reconcileDuration)
		return result, nil
	}

	msg := o.summarizeFailures(ctx, failures, log)
	if err := o.commentAndTransition(ctx, t, msg, model.StatusInfoRequired); err != nil {
		return model.ProcessingResult{}, err
	}
	if len(createdUsers) > 0 || len(existingUsers) > 0 {
		result.Status = model.ResultPartial
	} else {
		result.Status = model.ResultFailed
	}
	result.NextState = model.StatusInfoRequired
	result.Message = msg
	log.Warn("backend reconciliation for tenant %q produced %d failures", tenantID, len(failures))
	o.observeBackendCreate(string(result.Status), reconcileDuration)
	return result, nil
}

func (o *Orchestrator) commentAndTransition(ctx context.Context, t *model.Ticket, body string, status model.TicketStatus) error {
	return o.Tracker.Transition(ctx, t.Key, status, body)
}

func vaultEmail(template, tenantID string) string {
	if template == "" {
		return fmt.Sprintf("customersolutions+%s@example.com", tenantID)
	}
	return fmt.Sprintf(template, tenantID)
}

// summarizeFailures renders the failure-summary comment for a backend
// reconciliation pass. When an AI Adapter is configured it delegates to the
// SummarizeErrors task (§4.10); on a nil adapter, or if that call errors, it
// falls back to the deterministic builder, matching the nil-AI pattern
// already used in processOpen.
func (o *Orchestrator) summarizeFailures(ctx context.Context, failures []model.CreationFailure, log *logx.Logger) string {
	if o.AI != nil {
		histogram := make(map[string]int, len(failures))
		sample := make([]string, 0, len(failures))
		for _, f := range failures {
			histogram[f.Reason]++
			sample = append(sample, deterministicFailureLine(f))
		}
		result, err := o.AI.SummarizeErrors(ctx, histogram, sample)
		if err != nil {
			log.Warn("AI error summarization failed, falling back to deterministic summary: %v", err)
		} else {
			var b strings.Builder
			b.WriteString(result.Summary)
			for _, bullet := range result.BulletPoints {
				fmt.Fprintf(&b, "\n  - %s", bullet)
			}
			return b.String()
		}
	}
	return deterministicFailureSummary(failures)
}

func deterministicFailureSummary(failures []model.CreationFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backend creation completed with %d failure(s):\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(&b, "  %s\n", deterministicFailureLine(f))
	}
	return b.String()
}

func deterministicFailureLine(f model.CreationFailure) string {
	switch {
	case f.Email != "" && f.Team != "":
		return fmt.Sprintf("- %s (team %s): %s", f.Email, f.Team, f.Reason)
	case f.Email != "":
		return fmt.Sprintf("- %s: %s", f.Email, f.Reason)
	case f.Team != "":
		return fmt.Sprintf("- team %s: %s", f.Team, f.Reason)
	default:
		return fmt.Sprintf("- %s", f.Reason)
	}
}
