package classification

// defaultStopWords never form a keyword on their own and are trimmed from
// the ends of multi-word matches.
var defaultStopWords = []string{
	"PT", "CV", "TBK", "UD", "DARI", "KE", "DAN", "YANG", "DI", "UNTUK", "OLEH",
	"THE", "AND", "OF", "FOR", "TO", "FROM", "BY", "AT",
	"IDR", "RP", "NO", "REF", "TGL", "TANGGAL",
}

// DefaultPatterns returns the keyword library for Indonesian bank statements.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:     "Retail",
			Kind:     KindRetail,
			Regex:    `\b(INDOMARET|ALFAMART|ALFAMIDI|HYPERMART|TRANSMART|SUPERINDO|LOTTE\s*MART|HERO|RANCH\s*MARKET|TOKOPEDIA|SHOPEE|LAZADA|BLIBLI|BUKALAPAK|IKEA|ACE\s*HARDWARE)\b`,
			Priority: 90,
		},
		{
			Name:     "Pharmacy",
			Kind:     KindPharmacy,
			Regex:    `\b(KIMIA\s*FARMA|APOTEK\s*K-?24|GUARDIAN|CENTURY|WATSONS|HALODOC|APOTEK)\b`,
			Priority: 90,
		},
		{
			Name:     "Restaurant",
			Kind:     KindRestaurant,
			Regex:    `\b(MCDONALDS|MC\s*DONALDS|KFC|STARBUCKS|J\.?CO|PIZZA\s*HUT|HOKBEN|SOLARIA|JANJI\s*JIWA|KOPI\s*KENANGAN|FORE\s*COFFEE|GRABFOOD|GOFOOD|SHOPEEFOOD)\b`,
			Priority: 90,
		},
		{
			Name:     "Transport",
			Kind:     KindTransport,
			Regex:    `\b(GRAB|GOJEK|GO-JEK|MAXIM|BLUEBIRD|BLUE\s*BIRD|KAI|KCI|TRAVELOKA|TIKET\.COM|PERTAMINA|SHELL|JASA\s*MARGA|E-?TOLL)\b`,
			Priority: 85,
		},
		{
			Name:     "Utility",
			Kind:     KindUtility,
			Regex:    `\b(PLN|PDAM|TELKOM|INDIHOME|TELKOMSEL|INDOSAT|XL\s*AXIATA|SMARTFREN|BPJS(\s*KESEHATAN|\s*KETENAGAKERJAAN)?|FIRST\s*MEDIA|BIZNET|PGN)\b`,
			Priority: 85,
		},
		{
			Name:     "E-Wallet",
			Kind:     KindEWallet,
			Regex:    `\b(GOPAY|OVO|DANA|SHOPEEPAY|LINKAJA|FLIP)\b`,
			Priority: 80,
		},
		{
			Name:     "Bank",
			Kind:     KindBank,
			Regex:    `\b(BCA|BNI|BRI|MANDIRI|CIMB\s*NIAGA|PERMATA|DANAMON|BTN|BSI|OCBC|MAYBANK|PANIN|JAGO|SEABANK|JENIUS)\b`,
			Priority: 70,
		},
		{
			Name:     "Transfer",
			Kind:     KindTransfer,
			Regex:    `\b(TRANSFER|TRSF|BI-?FAST|SKN|RTGS|QRIS|VIRTUAL\s*ACCOUNT|SETORAN\s*TUNAI|TARIK\s*TUNAI|KARTU\s*KREDIT|AUTODEBET|AUTO\s*DEBET)\b`,
			Priority: 60,
		},
		{
			Name:          "Capitalized Phrase",
			Kind:          KindGeneric,
			Regex:         `\b[A-Z][A-Za-z&'.-]*(?:\s+[A-Z][A-Za-z&'.-]*){2,}`,
			Priority:      10,
			CaseSensitive: true,
			Fallback:      true,
		},
	}
}
