package ofx

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRepairLeafClosing(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want map[string]interface{}
	}{
		{
			name: "unclosed leaf tags",
			src:  "<DTSTART>20240101<DTEND>20240131",
			want: map[string]interface{}{"DTSTART": "20240101", "DTEND": "20240131"},
		},
		{
			name: "explicitly closed leaf",
			src:  "<DTSTART>20240101</DTSTART>",
			want: map[string]interface{}{"DTSTART": "20240101"},
		},
		{
			name: "mixed closed and unclosed",
			src:  "<DTSTART>20240101</DTSTART><DTEND>20240131",
			want: map[string]interface{}{"DTSTART": "20240101", "DTEND": "20240131"},
		},
		{
			name: "aggregate with leaf children",
			src:  "<STMTTRN><FITID>1<TRNAMT>-12.50</STMTTRN>",
			want: map[string]interface{}{
				"STMTTRN": map[string]interface{}{"FITID": "1", "TRNAMT": "-12.50"},
			},
		},
		{
			name: "whitespace between tags is not a value",
			src:  "<STMTTRN>\n  <FITID>1\n</STMTTRN>",
			want: map[string]interface{}{
				"STMTTRN": map[string]interface{}{"FITID": "1"},
			},
		},
		{
			name: "empty fragment",
			src:  "",
			want: map[string]interface{}{},
		},
		{
			name: "explicitly closed empty element",
			src:  "<MEMO></MEMO>",
			want: map[string]interface{}{"MEMO": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Repair(tt.src)
			if err != nil {
				t.Fatalf("Repair() error = %v", err)
			}
			assertJSONEqual(t, out, tt.want)
		})
	}
}

func TestRepairSiblingArrayCoercion(t *testing.T) {
	src := "<DTSTART>20240101" +
		"<STMTTRN><FITID>1<TRNAMT>-12.50<NAME>Coffee Shop</STMTTRN>" +
		"<STMTTRN><FITID>2<TRNAMT>500.00<MEMO>Payroll</STMTTRN>" +
		"<STMTTRN><FITID>3<TRNAMT>-3.00</STMTTRN>"

	out, err := Repair(src)
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}

	var parsed struct {
		Entries []struct {
			FITID  string `json:"FITID"`
			Amount string `json:"TRNAMT"`
		} `json:"STMTTRN"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("repaired output is not valid JSON: %v\n%s", err, out)
	}

	if len(parsed.Entries) != 3 {
		t.Fatalf("got %d entries; want 3", len(parsed.Entries))
	}
	for i, wantID := range []string{"1", "2", "3"} {
		if parsed.Entries[i].FITID != wantID {
			t.Errorf("entry %d FITID = %q; want %q (original order must be preserved)", i, parsed.Entries[i].FITID, wantID)
		}
	}
	if parsed.Entries[1].Amount != "500.00" {
		t.Errorf("amounts must remain strings: got %q", parsed.Entries[1].Amount)
	}
}

// Unclosed sibling entry tags are the nastiest real-world shape: a new
// STMTTRN opens while the previous one is still open.
func TestRepairUnclosedSiblingEntries(t *testing.T) {
	src := "<STMTTRN><FITID>a<TRNAMT>-1.00" +
		"<STMTTRN><FITID>b<TRNAMT>-2.00" +
		"<STMTTRN><FITID>c<TRNAMT>-3.00"

	out, err := Repair(src)
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}

	var parsed map[string][]map[string]string
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("output not valid JSON: %v\n%s", err, out)
	}
	entries := parsed["STMTTRN"]
	if len(entries) != 3 {
		t.Fatalf("got %d entries; want 3", len(entries))
	}
	if entries[2]["FITID"] != "c" || entries[2]["TRNAMT"] != "-3.00" {
		t.Errorf("last entry = %v; want FITID c, TRNAMT -3.00", entries[2])
	}
}

func TestRepairValueEscaping(t *testing.T) {
	src := `<STMTTRN><NAME>ACME "TOOLS" \ CO<MEMO>TAB	AND &amp; ENTITY</STMTTRN>`

	out, err := Repair(src)
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}

	var parsed map[string]map[string]string
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("output not valid JSON: %v\n%s", err, out)
	}
	if got := parsed["STMTTRN"]["NAME"]; got != `ACME "TOOLS" \ CO` {
		t.Errorf("NAME = %q; want quotes and backslashes preserved", got)
	}
	// SGML entity escapes pass through untouched; unescaping is the
	// normalizer's job.
	if got := parsed["STMTTRN"]["MEMO"]; !strings.Contains(got, "&amp;") {
		t.Errorf("MEMO = %q; want &amp; left as-is", got)
	}
}

func TestRepairKeepsValuesAsStrings(t *testing.T) {
	out, err := Repair("<TRNAMT>-0012.50<DTPOSTED>20240101120000.000[-5:EST]")
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if _, ok := parsed["TRNAMT"].(string); !ok {
		t.Errorf("TRNAMT = %T; numeric literals must stay strings", parsed["TRNAMT"])
	}
	if parsed["DTPOSTED"] != "20240101120000.000[-5:EST]" {
		t.Errorf("DTPOSTED = %v; date literals must stay raw strings", parsed["DTPOSTED"])
	}
}

func TestRepairRoundTrip(t *testing.T) {
	// N sibling entries with unmatched leaf tags must survive as exactly N
	// array entries in original order.
	const n = 25
	var b strings.Builder
	b.WriteString("<DTSTART>20240101<DTEND>20240131")
	for i := 0; i < n; i++ {
		b.WriteString("<STMTTRN>")
		b.WriteString("<TRNTYPE>DEBIT")
		b.WriteString("<DTPOSTED>2024010")
		b.WriteString(string(rune('1' + i%9)))
		b.WriteString("<TRNAMT>-5.00")
		b.WriteString("<FITID>fit-")
		b.WriteString(strings.Repeat("x", i%3+1))
		b.WriteString("</STMTTRN>")
	}

	out, err := Repair(b.String())
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}

	var parsed struct {
		Entries []map[string]string `json:"STMTTRN"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if len(parsed.Entries) != n {
		t.Errorf("got %d entries; want %d", len(parsed.Entries), n)
	}
}

func TestRepairFailures(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "bare text outside any element",
			src:  "garbage before <FITID>1",
		},
		{
			name: "unterminated tag",
			src:  "<FITID",
		},
		{
			name: "closing tag with no open element",
			src:  "</STMTTRN><FITID>1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Repair(tt.src)
			if err == nil {
				t.Fatal("Repair() succeeded; want StageRepair error")
			}
			if !IsStage(err, StageRepair) {
				t.Errorf("error = %v; want stage %s", err, StageRepair)
			}
		})
	}
}

func TestRepairErrorSnippetIsBounded(t *testing.T) {
	src := "oops " + strings.Repeat("<STMTTRN><FITID>1</STMTTRN>", 500)
	_, err := Repair(src)
	if err == nil {
		t.Fatal("Repair() succeeded; want error")
	}
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("error type = %T; want *ParseError", err)
	}
	if len(pe.Snippet) > maxSnippetLen+3 {
		t.Errorf("snippet length = %d; must be bounded to %d", len(pe.Snippet), maxSnippetLen)
	}
}

func assertJSONEqual(t *testing.T, got string, want map[string]interface{}) {
	t.Helper()
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("output not valid JSON: %v\n%s", err, got)
	}
	wantJSON, _ := json.Marshal(want)
	gotJSON, _ := json.Marshal(parsed)
	if string(wantJSON) != string(gotJSON) {
		t.Errorf("repaired JSON = %s; want %s", gotJSON, wantJSON)
	}
}
