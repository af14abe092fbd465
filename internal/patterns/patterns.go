package patterns

import "regexp"

// CategoryRule scores content toward one security risk category.
type CategoryRule struct {
	Category string
	Keywords []string
	Patterns []*regexp.Regexp
	Weight   int // score contribution per match, capped per rule
	MaxScore int
}

// RegulationRule matches content against one regulatory category.
type RegulationRule struct {
	Regulation      string
	Description     string
	Keywords        []string
	Patterns        []*regexp.Regexp
	Weight          int
	MaxScore        int
	MandatoryReport bool
}

// Security risk categories.
const (
	CategoryDataExfiltration  = "data_exfiltration"
	CategoryCredentialSharing = "credential_sharing"
	CategoryExternalSharing   = "external_sharing"
	CategoryFinancialFraud    = "financial_fraud"
	CategoryHarassment        = "harassment"
)

// Regulation codes for compliance findings.
const (
	RegulationGDPR   = "gdpr"
	RegulationHIPAA  = "hipaa"
	RegulationPCIDSS = "pci_dss"
	RegulationSOX    = "sox"
)

// SecurityRules returns the static security-category rule table. The table
// is compiled once and safe for concurrent use.
func SecurityRules() []CategoryRule {
	return securityRules
}

// ComplianceRules returns the static regulation rule table.
func ComplianceRules() []RegulationRule {
	return complianceRules
}

var securityRules = []CategoryRule{
	{
		Category: CategoryDataExfiltration,
		Keywords: []string{
			"confidential", "proprietary", "trade secret", "internal only",
			"customer database", "source code dump", "export all",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(download|copy|export)\s+(the\s+)?(entire|all|full)\b`),
			regexp.MustCompile(`(?i)\bbefore\s+(i|my)\s+(leave|last\s+day|resignation)\b`),
		},
		Weight:   15,
		MaxScore: 45,
	},
	{
		Category: CategoryCredentialSharing,
		Keywords: []string{
			"password", "passwd", "api key", "secret key", "access token",
			"private key", "login credentials",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bpassword\s*[:=]\s*\S+`),
			regexp.MustCompile(`(?i)\b(api[_-]?key|token)\s*[:=]\s*[A-Za-z0-9_\-]{12,}`),
			regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
		},
		Weight:   20,
		MaxScore: 60,
	},
	{
		Category: CategoryExternalSharing,
		Keywords: []string{
			"personal email", "personal account", "my gmail", "dropbox link",
			"google drive link", "wetransfer",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bsend\s+(it\s+)?to\s+my\s+(personal|private|home)\b`),
			regexp.MustCompile(`(?i)https?://(www\.)?(wetransfer|mega|anonfiles)\.`),
		},
		Weight:   12,
		MaxScore: 36,
	},
	{
		Category: CategoryFinancialFraud,
		Keywords: []string{
			"wire transfer", "urgent payment", "change bank details",
			"invoice attached", "off the books", "kickback",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(update|change)\s+(our|the)\s+bank(ing)?\s+(details|account)\b`),
			regexp.MustCompile(`(?i)\bdo\s+not\s+(tell|inform|cc)\b.{0,40}\b(finance|audit|accounting)\b`),
		},
		Weight:   15,
		MaxScore: 45,
	},
	{
		Category: CategoryHarassment,
		Keywords: []string{
			"threat", "retaliate", "you will regret", "keep quiet about",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bif\s+you\s+(report|tell)\b.{0,40}\b(fired|consequences)\b`),
		},
		Weight:   10,
		MaxScore: 30,
	},
}

var complianceRules = []RegulationRule{
	{
		Regulation:  RegulationPCIDSS,
		Description: "payment card data",
		Keywords:    []string{"card number", "cvv", "cvc", "expiry date", "cardholder"},
		Patterns: []*regexp.Regexp{
			// 13-19 digit runs with optional space/dash separators; candidates
			// are Luhn-checked by the pre-screen before they count.
			regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
		},
		Weight:          25,
		MaxScore:        75,
		MandatoryReport: true,
	},
	{
		Regulation:  RegulationGDPR,
		Description: "personal data identifiers",
		Keywords: []string{
			"date of birth", "home address", "passport number", "national id",
			"personal data", "data subject",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
			regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), // SSN-like identifier
		},
		Weight:   10,
		MaxScore: 40,
	},
	{
		Regulation:  RegulationHIPAA,
		Description: "protected health information",
		Keywords: []string{
			"diagnosis", "medical record", "patient", "prescription",
			"treatment plan", "health condition",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bmrn\s*[:#]?\s*\d{6,10}\b`),
		},
		Weight:          20,
		MaxScore:        60,
		MandatoryReport: true,
	},
	{
		Regulation:  RegulationSOX,
		Description: "financial reporting terms",
		Keywords: []string{
			"earnings before release", "restate", "material weakness",
			"off-balance", "pre-announcement", "insider",
		},
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(q[1-4]|quarterly)\s+(numbers|results)\b.{0,60}\b(before|prior\s+to)\b.{0,30}\b(release|announce)`),
		},
		Weight:   15,
		MaxScore: 45,
	},
}

// Luhn reports whether the digits of s (ignoring spaces and dashes) pass the
// Luhn checksum. Used to cut false positives on card-like digit runs.
func Luhn(s string) bool {
	var digits []int
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
