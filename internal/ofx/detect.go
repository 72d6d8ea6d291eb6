package ofx

import "strings"

// Kind identifies which statement body an OFX document carries.
type Kind string

const (
	KindBank       Kind = "bank"
	KindCreditCard Kind = "creditcard"
	KindUnknown    Kind = "unknown"
)

// Message-set response markers. These are the section openers, not parsed
// structure: detection is a substring search over the body.
const (
	bankSectionMarker = "<BANKMSGSRSV1>"
	ccSectionMarker   = "<CREDITCARDMSGSRSV1>"
)

// DetectKind inspects the SGML body and reports whether it carries a bank
// statement response, a credit-card statement response, or neither. When both
// markers are present, bank takes precedence; observed real-world files only
// ever contain one, so the dual-marker case is an assumption rather than
// confirmed behavior. KindUnknown is a terminal condition for the caller:
// no transaction list can be located without a known kind.
func DetectKind(body string) Kind {
	if strings.Contains(body, bankSectionMarker) {
		return KindBank
	}
	if strings.Contains(body, ccSectionMarker) {
		return KindCreditCard
	}
	return KindUnknown
}
