package firestore

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/ofximport/internal/domain"
)

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{
		ExternalID:     "acc-1",
		UserID:         "user-1",
		Date:           "2024-02-03",
		Description:    "Coffee",
		Amount:         "42.17",
		Classification: "expense",
		Currency:       "USD",
	}

	tests := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Transaction) {}, wantErr: false},
		{name: "missing external ID", mutate: func(tx *Transaction) { tx.ExternalID = "" }, wantErr: true},
		{name: "missing user ID", mutate: func(tx *Transaction) { tx.UserID = "" }, wantErr: true},
		{name: "bad date", mutate: func(tx *Transaction) { tx.Date = "02/03/2024" }, wantErr: true},
		{name: "bad amount", mutate: func(tx *Transaction) { tx.Amount = "forty-two" }, wantErr: true},
		{name: "negative amount", mutate: func(tx *Transaction) { tx.Amount = "-1.00" }, wantErr: true},
		{name: "bad classification", mutate: func(tx *Transaction) { tx.Classification = "transfer" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := valid
			tt.mutate(&txn)
			err := txn.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromRecordRoundTrip(t *testing.T) {
	record := domain.TransactionRecord{
		ExternalID:     "acc-1",
		GroupID:        "batch-1",
		Date:           "2024-02-03",
		Description:    "Coffee",
		Amount:         decimal.RequireFromString("42.17"),
		Classification: domain.ClassificationExpense,
		Currency:       "USD",
		Category:       "dining",
	}

	txn := FromRecord(record, "user-1")
	if txn.UserID != "user-1" || txn.Amount != "42.17" {
		t.Errorf("FromRecord() = %+v", txn)
	}
	if err := txn.Validate(); err != nil {
		t.Errorf("FromRecord() produced invalid transaction: %v", err)
	}

	back, err := txn.Record()
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if back.ExternalID != record.ExternalID || !back.Amount.Equal(record.Amount) {
		t.Errorf("round trip = %+v, want %+v", back, record)
	}
	if back.Classification != record.Classification || back.Currency != record.Currency {
		t.Errorf("round trip lost fields: %+v", back)
	}
}

func TestParseSessionValidate(t *testing.T) {
	valid := ParseSession{ID: "sess-1", UserID: "user-1", Status: ParseSessionStatusPending}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() valid session error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ParseSession)
	}{
		{name: "missing ID", mutate: func(s *ParseSession) { s.ID = "" }},
		{name: "missing user ID", mutate: func(s *ParseSession) { s.UserID = "" }},
		{name: "unknown status", mutate: func(s *ParseSession) { s.Status = "paused" }},
		{name: "negative file count", mutate: func(s *ParseSession) { s.FileCount = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := valid
			tt.mutate(&session)
			if err := session.Validate(); err == nil {
				t.Error("Validate() accepted invalid session")
			}
		})
	}
}
