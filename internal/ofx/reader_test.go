package ofx

import (
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    string
		wantErr bool
	}{
		{
			name:  "plain ascii",
			input: []byte("OFXHEADER:100\r\n<OFX></OFX>"),
			want:  "OFXHEADER:100\r\n<OFX></OFX>",
		},
		{
			name:  "utf-8 with bom",
			input: append([]byte{0xEF, 0xBB, 0xBF}, []byte("<OFX></OFX>")...),
			want:  "<OFX></OFX>",
		},
		{
			name:  "utf-8 multibyte passes through",
			input: []byte("<NAME>Café Crédit</NAME>"),
			want:  "<NAME>Café Crédit</NAME>",
		},
		{
			name: "windows-1252 fallback",
			// 0xE9 is é in Windows-1252 and invalid as standalone UTF-8.
			input: []byte{'<', 'N', 'A', 'M', 'E', '>', 'C', 'a', 'f', 0xE9},
			want:  "<NAME>Café",
		},
		{
			name:    "empty input",
			input:   nil,
			wantErr: true,
		},
		{
			name:    "binary input with nul bytes",
			input:   []byte{'%', 'P', 'D', 'F', 0x00, 0x01, 0x02},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Decode() succeeded; want StageDecode error")
				}
				if !IsStage(err, StageDecode) {
					t.Errorf("error = %v; want stage %s", err, StageDecode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeWindows1252CurrencySign(t *testing.T) {
	// 0x80 is the euro sign in Windows-1252; in raw Latin-1 it would be a
	// control character. Exports from European banks hit this byte.
	got, err := Decode([]byte{'<', 'M', 'E', 'M', 'O', '>', 0x80, '5'})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !strings.Contains(got, "€5") {
		t.Errorf("Decode() = %q; want euro sign decoded", got)
	}
}
