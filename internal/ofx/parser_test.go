package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
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
<NAME>POS PURCHASE INDOMARET CABANG 12
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>1250000.00
<FITID>2024012001
<NAME>TRANSFER
<MEMO>TRSF DARI BUDI SANTOSO
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
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
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
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>IDR
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-459900.00
<FITID>CC2024011001
<NAME>TOKOPEDIA*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-186000.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "valid bank statement",
			ofxData:       sampleBankOFX,
			expectedCount: 3,
		},
		{
			name:          "valid credit card statement",
			ofxData:       sampleCreditCardOFX,
			expectedCount: 2,
		},
		{
			name:          "invalid OFX data",
			ofxData:       "not valid OFX",
			expectedError: true,
		},
		{
			name:          "empty OFX",
			ofxData:       "",
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()

			statements, err := parser.ParseFile(context.Background(), strings.NewReader(tt.ofxData))

			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, statements, 1)
			assert.Len(t, statements[0].Transactions, tt.expectedCount)
			assert.Len(t, statements[0].FITIDs, tt.expectedCount)
		})
	}
}

func TestParseBankStatement(t *testing.T) {
	parser := NewParser()

	statements, err := parser.ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, statements, 1)

	stmt := statements[0].Statement
	assert.Equal(t, "BCA", stmt.Bank)
	assert.Equal(t, "1234567890", stmt.AccountNumber)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), stmt.PeriodStart)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), stmt.PeriodEnd)

	txns := statements[0].Transactions
	require.Len(t, txns, 3)

	// Purchase: prefix stripped, amount in the debit column
	assert.Equal(t, "INDOMARET CABANG 12", txns[0].Description)
	assert.True(t, decimal.RequireFromString("25500").Equal(txns[0].Debit))
	assert.True(t, txns[0].Credit.IsZero())
	assert.True(t, txns[0].IsDebit())
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), txns[0].Date)

	// Generic name falls back to the memo
	assert.Equal(t, "TRSF DARI BUDI SANTOSO", txns[1].Description)
	assert.True(t, decimal.RequireFromString("1250000").Equal(txns[1].Credit))
	assert.True(t, txns[1].Debit.IsZero())

	assert.Equal(t, "BIAYA ADMIN", txns[2].Description)
	assert.Equal(t, []string{"2024011501", "2024012001", "2024012501"}, statements[0].FITIDs)
}

func TestParseCreditCardStatement(t *testing.T) {
	parser := NewParser()

	statements, err := parser.ParseFile(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, statements, 1)

	// No FI aggregate in the signon
	assert.Equal(t, "UNKNOWN", statements[0].Statement.Bank)
	assert.Equal(t, "4111111111111111", statements[0].Statement.AccountNumber)

	txns := statements[0].Transactions
	require.Len(t, txns, 2)
	assert.Equal(t, "TOKOPEDIA*RT4Y7HG2", txns[0].Description)
	assert.True(t, decimal.RequireFromString("459900").Equal(txns[0].Debit))
	assert.Equal(t, "NETFLIX.COM", txns[1].Description)
	assert.True(t, decimal.RequireFromString("186000").Equal(txns[1].Amount()))
}

func TestParseFileCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().ParseFile(ctx, strings.NewReader(sampleBankOFX))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractDescription(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		tx       ofxgo.Transaction
		expected string
	}{
		{
			name:     "remove POS prefix",
			tx:       ofxgo.Transaction{Name: "POS PURCHASE ALFAMART"},
			expected: "ALFAMART",
		},
		{
			name:     "remove debit purchase prefix",
			tx:       ofxgo.Transaction{Name: "PEMBELIAN DEBIT KIMIA FARMA"},
			expected: "KIMIA FARMA",
		},
		{
			name:     "strip posting date",
			tx:       ofxgo.Transaction{Name: "TRX DEBIT 15/01 GRAB"},
			expected: "GRAB",
		},
		{
			name:     "collapse whitespace",
			tx:       ofxgo.Transaction{Name: "  GOPAY   TOPUP  "},
			expected: "GOPAY TOPUP",
		},
		{
			name:     "generic name uses memo",
			tx:       ofxgo.Transaction{Name: "Payment", Memo: "PLN PASCABAYAR"},
			expected: "PLN PASCABAYAR",
		},
		{
			name:     "specific name ignores memo",
			tx:       ofxgo.Transaction{Name: "NETFLIX.COM", Memo: "SUBSCRIPTION"},
			expected: "NETFLIX.COM",
		},
		{
			name: "payee wins",
			tx: ofxgo.Transaction{
				Name:  "POS PURCHASE",
				Payee: &ofxgo.Payee{Name: "Kopi Kenangan"},
			},
			expected: "Kopi Kenangan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parser.extractDescription(tt.tx))
		})
	}
}

func TestPreprocessOFX(t *testing.T) {
	parser := NewParser()

	out := parser.preprocessOFX("\n\n<OFX>\n<SEVERITY>Info</SEVERITY>\n<CODE\n")
	assert.True(t, strings.HasPrefix(out, "<OFX>"))
	assert.Contains(t, out, "<SEVERITY>INFO</SEVERITY>")
	assert.Contains(t, out, "<CODE>")
}

func TestGetAccounts(t *testing.T) {
	parser := NewParser()

	accounts, err := parser.GetAccounts(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890"}, accounts)

	accounts, err = parser.GetAccounts(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"4111111111111111"}, accounts)
}
