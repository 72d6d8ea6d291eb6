package ofx

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the fully repaired, parsed statement tree. Exactly one of Bank
// or CreditCard is populated per successfully assembled document; mixed
// statements are not supported.
type Document struct {
	Kind       Kind
	SignOn     SignOn
	Bank       *Statement
	CreditCard *Statement
}

// Statement returns whichever statement section is populated.
func (d *Document) Statement() *Statement {
	if d.Bank != nil {
		return d.Bank
	}
	return d.CreditCard
}

// SignOn carries the sign-on section fields the importer cares about.
type SignOn struct {
	ServerDate  string
	Language    string
	Institution string
	FID         string
}

// Statement is one bank or credit-card statement body: the default currency
// declared by the institution, the source account identifier, the statement
// period bounds as raw OFX date literals, and the transaction list in
// statement order.
type Statement struct {
	Currency     string
	AccountID    string
	Start        string
	End          string
	Transactions []StatementTransaction
}

// StatementTransaction is one raw entry from the transaction list. All fields
// are the statement's literal strings; typing (decimal amount, calendar date)
// is deliberately left to the normalizer. FITID is unique within a single
// statement only, never globally; identity requires combining it with the
// owning account.
type StatementTransaction struct {
	Type   string `json:"TRNTYPE"`
	Posted string `json:"DTPOSTED"`
	Amount string `json:"TRNAMT"`
	FITID  string `json:"FITID"`
	Name   string `json:"NAME"`
	Memo   string `json:"MEMO"`
}

// Envelope structs mirroring the OFX aggregate nesting. Only the fields the
// importer consumes are mapped; everything else in the repaired JSON is
// ignored by Unmarshal.

type envelope struct {
	OFX struct {
		SignOn     signonSection `json:"SIGNONMSGSRSV1"`
		Bank       *bankSection  `json:"BANKMSGSRSV1"`
		CreditCard *ccSection    `json:"CREDITCARDMSGSRSV1"`
	} `json:"OFX"`
}

type signonSection struct {
	SONRS struct {
		ServerDate string `json:"DTSERVER"`
		Language   string `json:"LANGUAGE"`
		FI         struct {
			Org string `json:"ORG"`
			FID string `json:"FID"`
		} `json:"FI"`
	} `json:"SONRS"`
}

type bankSection struct {
	TrnRS struct {
		StmtRS struct {
			CurDef   string `json:"CURDEF"`
			AcctFrom struct {
				AcctID string `json:"ACCTID"`
			} `json:"BANKACCTFROM"`
			TranList tranList `json:"BANKTRANLIST"`
		} `json:"STMTRS"`
	} `json:"STMTTRNRS"`
}

type ccSection struct {
	TrnRS struct {
		StmtRS struct {
			CurDef   string `json:"CURDEF"`
			AcctFrom struct {
				AcctID string `json:"ACCTID"`
			} `json:"CCACCTFROM"`
			TranList tranList `json:"BANKTRANLIST"`
		} `json:"CCSTMTRS"`
	} `json:"CCSTMTTRNRS"`
}

// tranList absorbs the repaired transaction-list object. Entries arrive under
// STMTTRN or the STRTTRN variant spelling some institutions emit, as a single
// object when the statement has one entry and as an array otherwise.
type tranList struct {
	Start        string
	End          string
	Transactions []StatementTransaction
}

func (t *tranList) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start string    `json:"DTSTART"`
		End   string    `json:"DTEND"`
		Stmt  oneOrMany `json:"STMTTRN"`
		Strt  oneOrMany `json:"STRTTRN"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Start = raw.Start
	t.End = raw.End
	t.Transactions = append([]StatementTransaction(nil), raw.Stmt...)
	t.Transactions = append(t.Transactions, raw.Strt...)
	return nil
}

// oneOrMany accepts either a single transaction object or an array of them.
// The repairer only coerces to an array when a tag repeats, so a one-entry
// statement legitimately arrives as a bare object.
type oneOrMany []StatementTransaction

func (o *oneOrMany) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []StatementTransaction
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*o = list
		return nil
	}

	var single StatementTransaction
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*o = oneOrMany{single}
	return nil
}

func (s *bankSection) statement() *Statement {
	stmt := &s.TrnRS.StmtRS
	return &Statement{
		Currency:     stmt.CurDef,
		AccountID:    stmt.AcctFrom.AcctID,
		Start:        stmt.TranList.Start,
		End:          stmt.TranList.End,
		Transactions: stmt.TranList.Transactions,
	}
}

func (s *ccSection) statement() *Statement {
	stmt := &s.TrnRS.StmtRS
	return &Statement{
		Currency:     stmt.CurDef,
		AccountID:    stmt.AcctFrom.AcctID,
		Start:        stmt.TranList.Start,
		End:          stmt.TranList.End,
		Transactions: stmt.TranList.Transactions,
	}
}

func (e *envelope) document() (*Document, error) {
	doc := &Document{
		SignOn: SignOn{
			ServerDate:  e.OFX.SignOn.SONRS.ServerDate,
			Language:    e.OFX.SignOn.SONRS.Language,
			Institution: e.OFX.SignOn.SONRS.FI.Org,
			FID:         e.OFX.SignOn.SONRS.FI.FID,
		},
	}

	switch {
	case e.OFX.Bank != nil:
		doc.Kind = KindBank
		doc.Bank = e.OFX.Bank.statement()
	case e.OFX.CreditCard != nil:
		doc.Kind = KindCreditCard
		doc.CreditCard = e.OFX.CreditCard.statement()
	default:
		return nil, fmt.Errorf("document has neither a bank nor a credit-card statement section")
	}
	return doc, nil
}
