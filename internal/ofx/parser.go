// Package ofx turns OFX/QFX bank and credit card downloads into statements
// ready for classification.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-classifier/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags missing their closing bracket in SGML-style files.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// ParsedStatement is one account's statement from an OFX file.
type ParsedStatement struct {
	Statement    model.Statement
	Transactions []model.Transaction
	// FITIDs holds the bank's transaction ids, index-aligned with Transactions.
	FITIDs []string
}

// Parser implements OFX/QFX file parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses an OFX/QFX file into one statement per account.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]ParsedStatement, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	bank := strings.TrimSpace(string(resp.Signon.Org))
	var statements []ParsedStatement

	for _, msg := range resp.Bank {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		name := bank
		if name == "" {
			name = string(stmt.BankAcctFrom.BankID)
		}
		parsed, err := p.convertStatement(name, string(stmt.BankAcctFrom.AcctID), stmt.BankTranList)
		if err != nil {
			slog.Warn("Failed to process bank statement",
				"account", stmt.BankAcctFrom.AcctID,
				"error", err)
			continue
		}
		statements = append(statements, parsed)
	}

	for _, msg := range resp.CreditCard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		parsed, err := p.convertStatement(bank, string(stmt.CCAcctFrom.AcctID), stmt.BankTranList)
		if err != nil {
			slog.Warn("Failed to process credit card statement",
				"account", stmt.CCAcctFrom.AcctID,
				"error", err)
			continue
		}
		statements = append(statements, parsed)
	}

	total := 0
	for _, s := range statements {
		total += len(s.Transactions)
	}
	slog.Info("Parsed OFX file",
		"statements", len(statements),
		"total_transactions", total)

	return statements, nil
}

func (p *Parser) convertStatement(bank, accountNumber string, list *ofxgo.TransactionList) (ParsedStatement, error) {
	parsed := ParsedStatement{
		Statement: model.Statement{
			Bank:          bank,
			AccountNumber: accountNumber,
		},
	}
	if bank == "" {
		parsed.Statement.Bank = "UNKNOWN"
	}
	if list == nil {
		return parsed, nil
	}

	parsed.Statement.PeriodStart = dateOnly(list.DtStart.Time)
	parsed.Statement.PeriodEnd = dateOnly(list.DtEnd.Time)

	for _, ofxTx := range list.Transactions {
		txn, err := p.convertTransaction(ofxTx)
		if err != nil {
			return ParsedStatement{}, fmt.Errorf("transaction %s: %w", ofxTx.FiTID, err)
		}
		parsed.Transactions = append(parsed.Transactions, txn)
		parsed.FITIDs = append(parsed.FITIDs, string(ofxTx.FiTID))
	}
	return parsed, nil
}

// convertTransaction converts an OFX transaction to our model. OFX signs
// debits negative; they are split into the debit and credit columns.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction) (model.Transaction, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(2))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	txn := model.Transaction{
		Date:        dateOnly(ofxTx.DtPosted.Time),
		Description: p.extractDescription(ofxTx),
		Debit:       decimal.Zero,
		Credit:      decimal.Zero,
	}
	if amount.IsNegative() {
		txn.Debit = amount.Neg()
	} else {
		txn.Credit = amount
	}
	if txn.Description == "" {
		txn.Description = strings.ToUpper(fmt.Sprintf("%v", ofxTx.TrnType))
	}
	return txn, nil
}

// extractDescription builds the description rules are matched against.
func (p *Parser) extractDescription(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.Join(strings.Fields(name), " ")

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"PEMBELIAN DEBIT ",
		"TRX DEBIT ",
		"ACH DEBIT ",
		"CHECK CARD ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "DD/MM " posting dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	generic := []string{
		"DEBIT",
		"CREDIT",
		"PURCHASE",
		"PAYMENT",
		"TRANSFER",
		"POS TRANSACTION",
	}

	upperName := strings.ToUpper(strings.TrimSpace(name))
	for _, g := range generic {
		if upperName == g {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetAccounts extracts the account numbers present in an OFX file.
func (p *Parser) GetAccounts(_ context.Context, reader io.Reader) ([]string, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			accounts = append(accounts, id)
		}
	}
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			add(string(stmt.BankAcctFrom.AcctID))
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			add(string(stmt.CCAcctFrom.AcctID))
		}
	}
	return accounts, nil
}
