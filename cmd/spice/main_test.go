package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-classifier/internal/common"
	"github.com/Veraticus/spice-classifier/internal/engine"
	"github.com/Veraticus/spice-classifier/internal/feedback"
	"github.com/Veraticus/spice-classifier/internal/model"
)

const bcaStatement = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
<FI>
<ORG>BCA
<FID>014
</FI>
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>IDR
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25500.00
<FITID>2024011501
<NAME>INDOMARET CABANG 12
</STMTTRN>
<STMTTRN>
<TRNTYPE>FEE
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-6500.00
<FITID>2024012501
<NAME>BIAYA ADMIN
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>5000000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr bool
	}{
		{name: "valid", raw: "42", want: 42},
		{name: "zero", raw: "0", wantErr: true},
		{name: "negative", raw: "-3", wantErr: true},
		{name: "not a number", raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseID(tt.raw, "rule ID")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, common.ErrInvalidInput))
				assert.Contains(t, err.Error(), "rule ID")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePools(t *testing.T) {
	pools, err := parsePools("all")
	require.NoError(t, err)
	assert.Equal(t, model.Pools, pools)

	pools, err = parsePools("")
	require.NoError(t, err)
	assert.Equal(t, model.Pools, pools)

	pools, err = parsePools("account")
	require.NoError(t, err)
	assert.Equal(t, []model.RulePool{model.PoolAccount}, pools)

	_, err = parsePools("vendor")
	assert.Error(t, err)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "INDOMARET", truncateString("INDOMARET", 20))
	assert.Equal(t, "INDOM...", truncateString("INDOMARET CABANG", 8))
	assert.Equal(t, "IN", truncateString("INDOMARET", 2))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}

func TestOptionalValues(t *testing.T) {
	id := int64(7)
	confidence := 85
	assert.Equal(t, "-", optionalID(nil))
	assert.Equal(t, "7", optionalID(&id))
	assert.Equal(t, "-", optionalInt(nil))
	assert.Equal(t, "85", optionalInt(&confidence))
}

func TestExpandFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.ofx", "b.ofx", "c.qfx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(bcaStatement), 0600))
	}

	files, err := expandFiles([]string{filepath.Join(dir, "*.ofx")})
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = expandFiles([]string{filepath.Join(dir, "c.qfx"), filepath.Join(dir, "missing.ofx")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "c.qfx")}, files)

	_, err = expandFiles([]string{"[invalid"})
	assert.Error(t, err)
}

func TestPrintSummaries(t *testing.T) {
	var buf bytes.Buffer
	printSummaries(&buf, []*engine.Summary{
		{Pool: model.PoolCategory, StatementID: 3, Total: 4, Matched: 3, HighConfidence: 2, LowConfidence: 1, Unmatched: 1},
		{Pool: model.PoolAccount, StatementID: 3, Total: 4, Matched: 1, Unmatched: 2, Errors: 1, AuditFailures: 1},
	})

	out := buf.String()
	assert.Contains(t, out, "Statement 3 [category]: 4 total, 3 matched (2 high, 1 low confidence), 1 unmatched\n")
	assert.Contains(t, out, "1 errors")
	assert.Contains(t, out, "1 audit log failures")
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	printOutcome(&buf, "selected", &feedback.OutcomeResult{
		Rule:             &model.Rule{ID: 4, Priority: 9},
		PreviousPriority: 7,
		Changed:          true,
	})
	printOutcome(&buf, "", &feedback.OutcomeResult{Rule: &model.Rule{ID: 5, Priority: 10}})
	printOutcome(&buf, "replaced", nil)

	assert.Equal(t, "  selected rule 4 priority 7 -> 9\n  rule 5 unchanged at priority 10\n", buf.String())
}

func TestCommandTree(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{
		"migrate", "import", "statements", "classify", "match", "suggest", "rules",
		"categories", "accounts", "outcome", "review", "select", "correct",
		"promote", "stats", "serve", "snapshot", "version",
	} {
		assert.True(t, names[want], "missing command %s", want)
	}

	rules := rulesCmd()
	var sub []string
	for _, cmd := range rules.Commands() {
		sub = append(sub, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"list", "create", "activate", "deactivate", "priority", "retire", "test"}, sub)

	classify := classifyCmd()
	for _, flag := range []string{"all", "pool", "force", "concurrency"} {
		assert.NotNil(t, classify.Flags().Lookup(flag), "classify is missing --%s", flag)
	}
}

// execute runs the root command against the config file and returns its output.
func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--config", configPath, "--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCLIWorkflow(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	dbPath := filepath.Join(dir, "spice.db")
	require.NoError(t, os.WriteFile(configPath, []byte("database:\n  path: "+dbPath+"\n"), 0600))
	ofxPath := filepath.Join(dir, "bca-jan.ofx")
	require.NoError(t, os.WriteFile(ofxPath, []byte(bcaStatement), 0600))

	out, err := execute(t, configPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")

	out, err = execute(t, configPath, "import", ofxPath)
	require.NoError(t, err)
	assert.Contains(t, out, "statement 1 (BCA 1234567890)")

	_, err = execute(t, configPath, "categories", "add-type", "Expense")
	require.NoError(t, err)
	_, err = execute(t, configPath, "categories", "add-category", "1", "Food")
	require.NoError(t, err)
	out, err = execute(t, configPath, "categories", "add", "1", "Groceries")
	require.NoError(t, err)
	assert.Contains(t, out, `"Groceries" (ID: 1)`)

	out, err = execute(t, configPath, "rules", "create", "INDOMARET", "1", "--priority", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "Created rule 1")

	out, err = execute(t, configPath, "rules", "test", "PEMBAYARAN INDOMARET JAKARTA")
	require.NoError(t, err)
	assert.Contains(t, out, "1 ✓")
	assert.Contains(t, out, "Keywords: INDOMARET")

	out, err = execute(t, configPath, "rules", "test", "BIAYA ADMIN")
	require.NoError(t, err)
	assert.Contains(t, out, "No rule matched (1 active rules).")

	out, err = execute(t, configPath, "classify", "1", "--pool", "category")
	require.NoError(t, err)
	assert.Contains(t, out, "Statement 1 [category]: 2 total, 1 matched")

	out, err = execute(t, configPath, "match", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Already assigned")

	out, err = execute(t, configPath, "review", "1", "--reviewer", "tester")
	require.NoError(t, err)
	assert.Contains(t, out, "verified by tester")
	assert.Contains(t, out, "rule 1 priority 8 -> 9")

	out, err = execute(t, configPath, "stats", "category", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Total debit:")
	assert.Contains(t, out, decimal.NewFromInt(25500).StringFixed(2))

	out, err = execute(t, configPath, "snapshot", "create", "after-review")
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot after-review")
	assert.FileExists(t, filepath.Join(dir, "snapshots", "after-review.db"))

	_, err = execute(t, configPath, "rules", "priority", "1", "11")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrInvalidPriority))

	_, err = execute(t, configPath, "promote", "--dismiss", "42")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
