// Package api exposes the classification engine over HTTP as JSON endpoints.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Veraticus/spice-classifier/internal/engine"
	"github.com/Veraticus/spice-classifier/internal/feedback"
	"github.com/Veraticus/spice-classifier/internal/model"
	"github.com/Veraticus/spice-classifier/internal/suggest"
)

// Classifier runs the category and account pipelines.
type Classifier interface {
	ClassifyBatch(ctx context.Context, statementID int64, opts engine.Options) (*engine.Summary, error)
	ClassifyAccounts(ctx context.Context, statementID int64, opts engine.Options) (*engine.Summary, error)
	MatchOne(ctx context.Context, txnID int64, force bool) (*engine.MatchOutcome, error)
	MatchOneAccount(ctx context.Context, txnID int64, force bool) (*engine.MatchOutcome, error)
	Alternatives(ctx context.Context, txnID int64, pool model.RulePool, n int) (model.Alternatives, error)
	Statistics(ctx context.Context, target model.RuleTarget) (*model.Statistics, error)
}

// Learner applies verification outcomes and corrections.
type Learner interface {
	ApplyOutcome(ctx context.Context, ruleID int64, outcome model.Outcome) (*feedback.OutcomeResult, error)
	Review(ctx context.Context, txnID int64, reviewer string, approved bool) (*feedback.ReviewResult, error)
	SelectAlternative(ctx context.Context, txnID, ruleID int64, reviewer string) (*feedback.SelectionResult, error)
	CorrectCategory(ctx context.Context, txnID, subCategoryID int64, reviewer string) (*feedback.CorrectionResult, error)
	PromoteSuggestions(ctx context.Context) (*feedback.PromotionResult, error)
	DismissSuggestion(ctx context.Context, id int64) error
}

// SuggestionMiner proposes rules from unmatched transactions.
type SuggestionMiner interface {
	Analyze(ctx context.Context, statementID int64, filters suggest.Filters) ([]suggest.Suggestion, error)
}

// RuleManager performs rule CRUD.
type RuleManager interface {
	Create(ctx context.Context, rule *model.Rule) error
	Update(ctx context.Context, rule *model.Rule) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetPriority(ctx context.Context, id int64, priority int) error
	Retire(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*model.Rule, error)
	List(ctx context.Context, pool model.RulePool, includeInactive bool) ([]model.Rule, error)
}

// StatementImporter stores uploaded OFX files.
type StatementImporter interface {
	Import(ctx context.Context, reader io.Reader, sourceFile string) ([]model.Statement, error)
}

// StatementLister lists imported statements.
type StatementLister interface {
	ListStatements(ctx context.Context) ([]model.Statement, error)
}

// Dependencies are the collaborators the handlers call into.
type Dependencies struct {
	Classifier Classifier
	Learner    Learner
	Miner      SuggestionMiner
	Rules      RuleManager
	Importer   StatementImporter
	Statements StatementLister
}

// NewRouter builds the HTTP routes.
func NewRouter(deps Dependencies) *chi.Mux {
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// Statements
		r.Get("/statements", h.listStatements)
		r.Post("/statements/import", h.importStatement)
		r.Post("/statements/{statement_id}/classify", h.classifyStatement)
		r.Get("/statements/{statement_id}/suggestions", h.analyzeSuggestions)

		// Transactions
		r.Post("/transactions/{transaction_id}/match", h.matchTransaction)
		r.Get("/transactions/{transaction_id}/alternatives", h.alternatives)
		r.Post("/transactions/{transaction_id}/review", h.review)
		r.Post("/transactions/{transaction_id}/select", h.selectAlternative)
		r.Post("/transactions/{transaction_id}/correct", h.correctCategory)

		// Rules
		r.Get("/rules", h.listRules)
		r.Post("/rules", h.createRule)
		r.Get("/rules/{rule_id}", h.getRule)
		r.Put("/rules/{rule_id}", h.updateRule)
		r.Delete("/rules/{rule_id}", h.retireRule)
		r.Post("/rules/{rule_id}/activate", h.setRuleActive(true))
		r.Post("/rules/{rule_id}/deactivate", h.setRuleActive(false))
		r.Put("/rules/{rule_id}/priority", h.setRulePriority)
		r.Post("/rules/{rule_id}/outcome", h.applyOutcome)

		// Learning loop
		r.Post("/suggestions/promote", h.promoteSuggestions)
		r.Post("/suggestions/{suggestion_id}/dismiss", h.dismissSuggestion)

		// Statistics
		r.Get("/statistics/{pool}/{target_id}", h.statistics)
	})

	return r
}
